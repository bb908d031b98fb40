package bridge

import (
	"log/slog"
	"sync"
	"time"
)

// DefaultReloadGrace is how long in-flight work survives an editor reload
// before being cancelled.
const DefaultReloadGrace = 60 * time.Second

// ReloadCoordinator tracks the editor's in-place reload. The editor drops
// and reopens the transport during a domain reload; commands in flight
// across one must look to HTTP callers like a single long operation, up to
// a bounded patience window.
//
// This is the only site that decides whether a disconnect cancels in-flight
// work. All disconnection paths funnel through PeerLost.
type ReloadCoordinator struct {
	mu        sync.Mutex
	reloading bool
	deadline  time.Time
	timer     *time.Timer
	grace     time.Duration

	requests *RequestRegistry
	waiters  *EventWaiterRegistry

	// Closed-and-replaced on each reload completion; AwaitIdle callers
	// block on the current one.
	idle chan struct{}
}

// NewReloadCoordinator wires the coordinator to the registries it cancels.
// grace <= 0 selects DefaultReloadGrace.
func NewReloadCoordinator(grace time.Duration, requests *RequestRegistry, waiters *EventWaiterRegistry) *ReloadCoordinator {
	if grace <= 0 {
		grace = DefaultReloadGrace
	}
	return &ReloadCoordinator{
		grace:    grace,
		requests: requests,
		waiters:  waiters,
		idle:     make(chan struct{}),
	}
}

// ReloadStarting enters the reload grace window. Called by the router on a
// reload_starting event. Re-entry while already reloading extends the
// deadline.
func (c *ReloadCoordinator) ReloadStarting() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.timer != nil {
		c.timer.Stop()
	}
	c.reloading = true
	c.deadline = time.Now().Add(c.grace)
	c.timer = time.AfterFunc(c.grace, c.expire)
	slog.Info("Editor reload starting, preserving in-flight work",
		"grace", c.grace, "deadline", c.deadline)
}

// PeerConnected observes a fresh peer. The first connection after
// ReloadStarting ends the reload and releases AwaitIdle callers.
func (c *ReloadCoordinator) PeerConnected() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.reloading {
		return
	}
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	c.reloading = false
	close(c.idle)
	c.idle = make(chan struct{})
	slog.Info("Editor reconnected, reload complete")
}

// PeerLost observes a disconnect. Outside a reload every pending request
// and waiter is cancelled; during one, outstanding work is preserved until
// reconnection or deadline expiry.
func (c *ReloadCoordinator) PeerLost() {
	c.mu.Lock()
	reloading := c.reloading
	c.mu.Unlock()

	if reloading {
		slog.Debug("Peer disconnected during reload, keeping pending work")
		return
	}
	slog.Info("Peer disconnected, cancelling pending work",
		"pending_requests", c.requests.Pending(),
		"armed_waiters", c.waiters.Active())
	c.requests.CancelAll()
	c.waiters.CancelAll()
}

// Reloading reports whether a reload window is open.
func (c *ReloadCoordinator) Reloading() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.reloading
}

// Deadline returns the current reload deadline, zero when idle.
func (c *ReloadCoordinator) Deadline() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.reloading {
		return time.Time{}
	}
	return c.deadline
}

// AwaitIdle returns a channel closed when the current reload completes.
// When no reload is in progress the channel stays open until the next
// reload cycle ends; check Reloading first.
func (c *ReloadCoordinator) AwaitIdle() <-chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.idle
}

// expire fires when the editor fails to reconnect within the grace window.
func (c *ReloadCoordinator) expire() {
	c.mu.Lock()
	if !c.reloading {
		c.mu.Unlock()
		return
	}
	c.reloading = false
	c.timer = nil
	close(c.idle)
	c.idle = make(chan struct{})
	c.mu.Unlock()

	slog.Warn("Editor did not reconnect within reload grace, cancelling pending work",
		"grace", c.grace)
	c.requests.CancelAll()
	c.waiters.CancelAll()
}
