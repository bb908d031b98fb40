package bridge

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/DirtybitGames/unityctl-sub001/pkg/protocol"
)

// FrameSender transmits one frame to the current peer. Implemented by
// ConnectionManager; abstracted so registry tests can run without a socket.
type FrameSender interface {
	Send(ctx context.Context, frame any) error
}

// requestOutcome is what a pending slot resolves to: a response, or one of
// the sentinel errors.
type requestOutcome struct {
	resp *protocol.Response
	err  error
}

// RequestRegistry correlates outbound requests with inbound responses by
// request id. Every Send resolves exactly once — response, timeout, or
// cancellation — and the pending entry is gone afterwards.
type RequestRegistry struct {
	mu      sync.Mutex
	pending map[string]*oneshot[requestOutcome]
}

// NewRequestRegistry creates an empty registry.
func NewRequestRegistry() *RequestRegistry {
	return &RequestRegistry{pending: make(map[string]*oneshot[requestOutcome])}
}

// Send registers a pending slot under req.RequestID, transmits the frame,
// and blocks until the first of: response, deadline, or ctx cancellation.
//
// Peer loss is not observed here directly; the ReloadCoordinator decides
// whether a disconnect cancels pending work and, if so, resolves the slot
// through CancelAll. During a reload the slot simply stays pending.
func (r *RequestRegistry) Send(ctx context.Context, sender FrameSender, req *protocol.Request, deadline time.Time) (*protocol.Response, error) {
	slot := newOneshot[requestOutcome]()

	r.mu.Lock()
	if _, exists := r.pending[req.RequestID]; exists {
		r.mu.Unlock()
		return nil, fmt.Errorf("duplicate request id %q", req.RequestID)
	}
	r.pending[req.RequestID] = slot
	r.mu.Unlock()

	if err := sender.Send(ctx, req); err != nil {
		r.remove(req.RequestID)
		return nil, err
	}

	timer := time.NewTimer(time.Until(deadline))
	defer timer.Stop()

	select {
	case out := <-slot.ch:
		return out.resp, out.err
	case <-timer.C:
		r.remove(req.RequestID)
		return nil, fmt.Errorf("command %q: %w", req.Command, ErrTimeout)
	case <-ctx.Done():
		r.remove(req.RequestID)
		return nil, fmt.Errorf("command %q: %w", req.Command, ErrCancelled)
	}
}

// Complete resolves the pending request with the peer's response. Unknown
// ids are ignored — a response arriving after timeout or cancellation is
// legitimate and silently dropped.
func (r *RequestRegistry) Complete(requestID string, resp *protocol.Response) {
	r.mu.Lock()
	slot, ok := r.pending[requestID]
	if ok {
		delete(r.pending, requestID)
	}
	r.mu.Unlock()
	if ok {
		slot.complete(requestOutcome{resp: resp})
	}
}

// CancelAll atomically drains the registry and resolves every pending
// request as cancelled. Observers never see a partially drained state: the
// map is swapped under the lock before any slot is completed.
func (r *RequestRegistry) CancelAll() {
	r.mu.Lock()
	drained := r.pending
	r.pending = make(map[string]*oneshot[requestOutcome])
	r.mu.Unlock()

	for _, slot := range drained {
		slot.complete(requestOutcome{err: ErrCancelled})
	}
}

// Pending returns the number of in-flight requests.
func (r *RequestRegistry) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pending)
}

func (r *RequestRegistry) remove(requestID string) {
	r.mu.Lock()
	delete(r.pending, requestID)
	r.mu.Unlock()
}
