package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/require"

	"github.com/DirtybitGames/unityctl-sub001/pkg/bridge"
	"github.com/DirtybitGames/unityctl-sub001/pkg/logstore"
	"github.com/DirtybitGames/unityctl-sub001/pkg/protocol"
)

// testApp is a fully wired bridge behind a real HTTP listener.
type testApp struct {
	server   *Server
	http     *httptest.Server
	manager  *bridge.ConnectionManager
	requests *bridge.RequestRegistry
	waiters  *bridge.EventWaiterRegistry
	reload   *bridge.ReloadCoordinator
	logs     *logstore.Store
}

func setupApp(t *testing.T, timeouts map[string]time.Duration) *testApp {
	t.Helper()

	requests := bridge.NewRequestRegistry()
	waiters := bridge.NewEventWaiterRegistry()
	reload := bridge.NewReloadCoordinator(bridge.DefaultReloadGrace, requests, waiters)
	logs := logstore.NewStore(100)
	manager := bridge.NewConnectionManager(bridge.Identity{ProjectID: "ab12cd34", Version: "test"},
		reload, requests, waiters, logs)
	dispatcher := bridge.NewDispatcher(manager, requests, waiters, timeouts)

	server := NewServer("ab12cd34", manager, dispatcher, requests, waiters, reload, logs)
	ts := httptest.NewServer(server.Echo())
	t.Cleanup(ts.Close)

	return &testApp{
		server:   server,
		http:     ts,
		manager:  manager,
		requests: requests,
		waiters:  waiters,
		reload:   reload,
		logs:     logs,
	}
}

// connectEditor attaches a fake editor plugin over the real /unity endpoint.
func (app *testApp) connectEditor(t *testing.T) *websocket.Conn {
	t.Helper()
	url := "ws" + app.http.URL[len("http"):] + "/unity"
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close(websocket.StatusNormalClosure, "") })

	require.Eventually(t, app.manager.Connected, time.Second, time.Millisecond)
	return conn
}

func editorWrite(t *testing.T, conn *websocket.Conn, v any) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	require.NoError(t, conn.Write(ctx, websocket.MessageText, data))
}

// editorReadRequest reads frames until a bridge request arrives.
func editorReadRequest(t *testing.T, conn *websocket.Conn) *protocol.Request {
	t.Helper()
	for {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		_, data, err := conn.Read(ctx)
		cancel()
		require.NoError(t, err)

		var req protocol.Request
		require.NoError(t, json.Unmarshal(data, &req))
		if req.Type == protocol.TypeRequest {
			return &req
		}
	}
}

func getJSON(t *testing.T, url string, out any) *http.Response {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp
}
