package api

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	echo "github.com/labstack/echo/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DirtybitGames/unityctl-sub001/pkg/bridge"
	"github.com/DirtybitGames/unityctl-sub001/pkg/logstore"
	"github.com/DirtybitGames/unityctl-sub001/pkg/protocol"
)

func TestMapBridgeError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code int
	}{
		{"peer absent", bridge.ErrPeerAbsent, http.StatusServiceUnavailable},
		{"wrapped peer absent", errors.Join(errors.New("send"), bridge.ErrPeerAbsent), http.StatusServiceUnavailable},
		{"timeout", bridge.ErrTimeout, http.StatusGatewayTimeout},
		{"cancelled", bridge.ErrCancelled, StatusClientClosedRequest},
		{"context canceled", context.Canceled, StatusClientClosedRequest},
		{"anything else", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			httpErr := mapBridgeError(tt.err)
			assert.Equal(t, tt.code, httpErr.Code)
		})
	}
}

func TestHealthHandler(t *testing.T) {
	app := setupApp(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	c := app.server.Echo().NewContext(req, rec)

	require.NoError(t, app.server.healthHandler(c))
	assert.Equal(t, http.StatusOK, rec.Code)

	var body HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body.Status)
	assert.Equal(t, "ab12cd34", body.ProjectID)
	assert.False(t, body.UnityConnected)
	assert.Empty(t, body.UnityVersion)
}

func TestStatusHandler(t *testing.T) {
	app := setupApp(t, nil)
	app.logs.Append(logstore.Entry{Source: "editor", Message: "hi"})

	req := httptest.NewRequest(http.MethodGet, "/status", nil)
	rec := httptest.NewRecorder()
	c := app.server.Echo().NewContext(req, rec)

	require.NoError(t, app.server.statusHandler(c))

	var body StatusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ab12cd34", body.ProjectID)
	assert.False(t, body.UnityConnected)
	assert.False(t, body.Reloading)
	assert.Zero(t, body.PendingRequests)
	assert.Equal(t, 1, body.LogEntries)
}

func TestRPCHandler_Validation(t *testing.T) {
	app := setupApp(t, nil)

	tests := []struct {
		name string
		body string
	}{
		{"missing command", `{"args":{}}`},
		{"malformed json", `{"command":`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/rpc", strings.NewReader(tt.body))
			req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
			rec := httptest.NewRecorder()
			c := app.server.Echo().NewContext(req, rec)

			err := app.server.rpcHandler(c)
			require.Error(t, err)
			httpErr, ok := err.(*echo.HTTPError)
			require.True(t, ok)
			assert.Equal(t, http.StatusBadRequest, httpErr.Code)
		})
	}
}

func TestLogsTailHandler(t *testing.T) {
	app := setupApp(t, nil)
	for i := 0; i < 5; i++ {
		app.logs.Append(logstore.Entry{Source: "editor", Level: "info", Message: "entry"})
	}
	app.logs.Append(logstore.Entry{Source: "console", Level: "error", Message: "boom"})

	tail := func(t *testing.T, query string) *TailResponse {
		t.Helper()
		req := httptest.NewRequest(http.MethodGet, "/logs/tail"+query, nil)
		rec := httptest.NewRecorder()
		c := app.server.Echo().NewContext(req, rec)
		require.NoError(t, app.server.logsTailHandler(c))
		var body TailResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		return &body
	}

	t.Run("default returns everything under the cap", func(t *testing.T) {
		assert.Len(t, tail(t, "").Entries, 6)
	})

	t.Run("lines limits to the newest", func(t *testing.T) {
		entries := tail(t, "?lines=2").Entries
		require.Len(t, entries, 2)
		assert.Equal(t, "boom", entries[1].Message)
	})

	t.Run("source filters", func(t *testing.T) {
		entries := tail(t, "?source=console").Entries
		require.Len(t, entries, 1)
		assert.Equal(t, "error", entries[0].Level)
	})

	t.Run("invalid lines rejected", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/logs/tail?lines=nope", nil)
		rec := httptest.NewRecorder()
		c := app.server.Echo().NewContext(req, rec)
		err := app.server.logsTailHandler(c)
		httpErr, ok := err.(*echo.HTTPError)
		require.True(t, ok)
		assert.Equal(t, http.StatusBadRequest, httpErr.Code)
	})

	t.Run("clear hides older entries", func(t *testing.T) {
		app.logs.Clear("test")
		assert.Empty(t, tail(t, "").Entries)
		assert.Len(t, tail(t, "?include_cleared=true").Entries, 6)
	})
}

func TestConsoleClearHandler(t *testing.T) {
	app := setupApp(t, nil)
	app.logs.Append(logstore.Entry{Source: "editor", Message: "old"})

	req := httptest.NewRequest(http.MethodPost, "/console/clear", bytes.NewReader(nil))
	rec := httptest.NewRecorder()
	c := app.server.Echo().NewContext(req, rec)

	require.NoError(t, app.server.consoleClearHandler(c))

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, true, body["success"])
	assert.Equal(t, float64(2), body["watermark"])
}

func TestRPC_PeerAbsent(t *testing.T) {
	app := setupApp(t, nil)

	resp, err := http.Post(app.http.URL+"/rpc", echo.MIMEApplicationJSON,
		strings.NewReader(`{"command":"play.status"}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestRPC_EndToEnd(t *testing.T) {
	app := setupApp(t, nil)
	conn := app.connectEditor(t)

	go func() {
		req := editorReadRequest(t, conn)
		editorWrite(t, conn, &protocol.Response{
			Type: protocol.TypeResponse, Origin: protocol.OriginEditor,
			RequestID: req.RequestID, Status: protocol.StatusOK,
			Result: map[string]any{"state": "stopped"},
		})
	}()

	resp, err := http.Post(app.http.URL+"/rpc", echo.MIMEApplicationJSON,
		strings.NewReader(`{"command":"play.status","agentId":"agent-1"}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body protocol.Response
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, protocol.StatusOK, body.Status)
	assert.Equal(t, map[string]any{"state": "stopped"}, body.Result)
}

func TestRPC_PeerErrorIsStillHTTP200(t *testing.T) {
	app := setupApp(t, nil)
	conn := app.connectEditor(t)

	go func() {
		req := editorReadRequest(t, conn)
		editorWrite(t, conn, &protocol.Response{
			Type: protocol.TypeResponse, Origin: protocol.OriginEditor,
			RequestID: req.RequestID, Status: protocol.StatusError,
			Error: &protocol.ErrorDetail{Code: "play_mode", Message: "already playing"},
		})
	}()

	resp, err := http.Post(app.http.URL+"/rpc", echo.MIMEApplicationJSON,
		strings.NewReader(`{"command":"play.enter"}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var body protocol.Response
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, protocol.StatusError, body.Status)
	require.NotNil(t, body.Error)
	assert.Equal(t, "play_mode", body.Error.Code)
}

func TestRPC_Timeout(t *testing.T) {
	app := setupApp(t, map[string]time.Duration{"default": 100 * time.Millisecond})
	conn := app.connectEditor(t)

	// The editor reads the request but never answers.
	go editorReadRequest(t, conn)

	resp, err := http.Post(app.http.URL+"/rpc", echo.MIMEApplicationJSON,
		strings.NewReader(`{"command":"scene.info"}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusGatewayTimeout, resp.StatusCode)
}

func TestLogsStream_DeliversEntries(t *testing.T) {
	app := setupApp(t, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, app.http.URL+"/logs/stream?source=console", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	// Wait for the handler's subscription before appending.
	require.Eventually(t, func() bool { return app.logs.Subscribers() == 1 },
		time.Second, time.Millisecond)

	app.logs.Append(logstore.Entry{Source: "editor", Level: "info", Message: "filtered out"})
	app.logs.Append(logstore.Entry{Source: "console", Level: "error", Message: "kept"})

	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var entry logstore.Entry
		require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &entry))
		assert.Equal(t, "console", entry.Source)
		assert.Equal(t, "kept", entry.Message)
		return
	}
	t.Fatalf("stream ended without a data record: %v", scanner.Err())
}

func TestLogsStream_UnsubscribesOnDisconnect(t *testing.T) {
	app := setupApp(t, nil)

	ctx, cancel := context.WithCancel(context.Background())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, app.http.URL+"/logs/stream", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Eventually(t, func() bool { return app.logs.Subscribers() == 1 },
		time.Second, time.Millisecond)

	cancel()
	require.Eventually(t, func() bool { return app.logs.Subscribers() == 0 },
		time.Second, time.Millisecond)
}
