package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/DirtybitGames/unityctl-sub001/pkg/logstore"
	"github.com/DirtybitGames/unityctl-sub001/pkg/protocol"
)

// defaultWriteTimeout bounds a single frame write to the peer.
const defaultWriteTimeout = 10 * time.Second

// Identity is what the bridge reports about itself in the hello
// acknowledgement.
type Identity struct {
	ProjectID string
	Version   string
}

// ConnectionManager owns the single editor peer connection. It installs an
// inbound WebSocket atomically, routes its frames, and funnels every
// disconnect through the ReloadCoordinator so cancellation is decided in
// exactly one place.
type ConnectionManager struct {
	identity     Identity
	reload       *ReloadCoordinator
	requests     *RequestRegistry
	waiters      *EventWaiterRegistry
	logs         *logstore.Store
	writeTimeout time.Duration

	mu          sync.Mutex
	peer        *websocket.Conn
	peerInfo    *protocol.Hello
	peerWaiters []chan struct{}
}

// NewConnectionManager wires the manager to the router targets.
func NewConnectionManager(identity Identity, reload *ReloadCoordinator, requests *RequestRegistry, waiters *EventWaiterRegistry, logs *logstore.Store) *ConnectionManager {
	return &ConnectionManager{
		identity:     identity,
		reload:       reload,
		requests:     requests,
		waiters:      waiters,
		logs:         logs,
		writeTimeout: defaultWriteTimeout,
	}
}

// HandleConnection installs conn as the peer and runs its read loop.
// Called by the WebSocket upgrade handler; blocks until the connection
// closes. A prior peer, if any, is torn down first.
func (m *ConnectionManager) HandleConnection(ctx context.Context, conn *websocket.Conn) {
	m.mu.Lock()
	old := m.peer
	m.peer = conn
	m.peerInfo = nil
	waiters := m.peerWaiters
	m.peerWaiters = nil
	m.mu.Unlock()

	if old != nil {
		slog.Warn("Replacing existing editor connection")
		old.Close(websocket.StatusPolicyViolation, "replaced by new connection")
	}

	// Coordinator observes the install before any waiter resumes, so a
	// reconnect during reload settles the reload state first.
	m.reload.PeerConnected()
	for _, ch := range waiters {
		close(ch)
	}
	slog.Info("Editor connected")

	defer func() {
		m.mu.Lock()
		wasCurrent := m.peer == conn
		if wasCurrent {
			m.peer = nil
			m.peerInfo = nil
		}
		m.mu.Unlock()
		// A replaced connection's exit is not a disconnect of the live
		// peer; only the current one funnels into the coordinator.
		if wasCurrent {
			slog.Info("Editor disconnected")
			m.reload.PeerLost()
		}
	}()

	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return
		}
		m.route(ctx, data)
	}
}

// Send transmits one frame to the current peer. A send racing a peer
// replacement fails soft: the stale connection is closed and the caller
// sees ErrPeerAbsent.
func (m *ConnectionManager) Send(ctx context.Context, frame any) error {
	m.mu.Lock()
	conn := m.peer
	m.mu.Unlock()
	if conn == nil {
		return ErrPeerAbsent
	}

	data, err := json.Marshal(frame)
	if err != nil {
		return fmt.Errorf("marshal frame: %w", err)
	}

	wctx, cancel := context.WithTimeout(ctx, m.writeTimeout)
	defer cancel()
	if err := conn.Write(wctx, websocket.MessageText, data); err != nil {
		// Treat a failed send like a transport close. Closing the
		// connection makes its read loop exit, which runs the one
		// disconnect path through the coordinator.
		conn.Close(websocket.StatusInternalError, "send failed")
		return fmt.Errorf("%w: send failed: %v", ErrPeerAbsent, err)
	}
	return nil
}

// Connected reports whether a peer is installed.
func (m *ConnectionManager) Connected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.peer != nil
}

// PeerInfo returns the identity from the peer's hello frame, nil before the
// handshake.
func (m *ConnectionManager) PeerInfo() *protocol.Hello {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.peerInfo
}

// WaitForPeer blocks until a peer is installed or ctx is done.
func (m *ConnectionManager) WaitForPeer(ctx context.Context) error {
	m.mu.Lock()
	if m.peer != nil {
		m.mu.Unlock()
		return nil
	}
	ch := make(chan struct{})
	m.peerWaiters = append(m.peerWaiters, ch)
	m.mu.Unlock()

	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for editor: %w", ErrCancelled)
	}
}

// Close tears down the current peer, if any. Used during shutdown; pending
// sends may be dropped.
func (m *ConnectionManager) Close() {
	m.mu.Lock()
	conn := m.peer
	m.mu.Unlock()
	if conn != nil {
		conn.Close(websocket.StatusGoingAway, "bridge shutting down")
	}
}

// route demultiplexes one inbound frame into the hello, response, or event
// path. Malformed frames are logged and dropped; they never tear down the
// peer.
func (m *ConnectionManager) route(ctx context.Context, data []byte) {
	frame, err := protocol.Decode(data)
	if err != nil {
		slog.Warn("Dropping malformed frame", "error", err)
		return
	}

	switch f := frame.(type) {
	case *protocol.Hello:
		m.handleHello(ctx, f)
	case *protocol.Response:
		m.requests.Complete(f.RequestID, f)
	case *protocol.Event:
		m.handleEvent(f)
	case *protocol.Request:
		slog.Warn("Dropping unexpected request frame from peer", "command", f.Command)
	}
}

// handleHello records the peer identity and acknowledges with the bridge's
// own. The ack is a synthetic response not correlated to any request.
func (m *ConnectionManager) handleHello(ctx context.Context, hello *protocol.Hello) {
	m.mu.Lock()
	m.peerInfo = hello
	m.mu.Unlock()

	slog.Info("Editor hello",
		"project_id", hello.ProjectID,
		"unity_version", hello.UnityVersion,
		"plugin_version", hello.PluginVersion,
		"capabilities", hello.Capabilities)

	ack := &protocol.Response{
		Type:      protocol.TypeResponse,
		Origin:    protocol.OriginBridge,
		RequestID: "hello",
		Status:    protocol.StatusOK,
		Result: map[string]any{
			"projectId":     m.identity.ProjectID,
			"bridgeVersion": m.identity.Version,
		},
	}
	if err := m.Send(ctx, ack); err != nil {
		slog.Warn("Failed to acknowledge hello", "error", err)
	}
}

// handleEvent dispatches an event: reload observation first, then armed
// waiters, then log ingestion for frames of logging kind.
func (m *ConnectionManager) handleEvent(ev *protocol.Event) {
	if ev.Event == protocol.EventReloadStarting {
		m.reload.ReloadStarting()
	}

	m.waiters.Process(ev)

	if ev.Event == protocol.EventLog {
		m.logs.Append(logEntryFromPayload(ev.Payload))
	}
}

// logEntryFromPayload maps a log event payload onto a store entry. Unknown
// fields are dropped; missing ones default to an editor-sourced info line.
func logEntryFromPayload(payload map[string]any) logstore.Entry {
	e := logstore.Entry{
		Source: "editor",
		Level:  "info",
	}
	if v, ok := payload["source"].(string); ok && v != "" {
		e.Source = v
	}
	if v, ok := payload["level"].(string); ok && v != "" {
		e.Level = v
	}
	if v, ok := payload["message"].(string); ok {
		e.Message = v
	}
	if v, ok := payload["stackTrace"].(string); ok {
		e.StackTrace = v
	}
	if v, ok := payload["color"].(string); ok {
		e.Color = v
	}
	return e
}
