package bridge

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/DirtybitGames/unityctl-sub001/pkg/protocol"
)

// StatePredicate narrows an event waiter to payloads whose Key field equals
// Value. Events with a different state are ignored for that waiter — it
// stays armed for later events.
type StatePredicate struct {
	Key   string
	Value string
}

func (p *StatePredicate) matches(payload map[string]any) bool {
	v, ok := payload[p.Key].(string)
	return ok && v == p.Value
}

// waiterOutcome is what an armed waiter resolves to: the matching event, or
// a cancellation.
type waiterOutcome struct {
	ev  *protocol.Event
	err error
}

// EventWaiter is one armed wait for a terminal event, tied to the request
// that triggered the work. Waiters must be registered before the request is
// sent so an event racing ahead of the response is not lost.
type EventWaiter struct {
	requestID string
	event     string
	expect    *StatePredicate
	slot      *oneshot[waiterOutcome]
}

// EventWaiterRegistry holds per-request waiters keyed by request id.
type EventWaiterRegistry struct {
	mu      sync.Mutex
	waiters map[string]*EventWaiter
}

// NewEventWaiterRegistry creates an empty registry.
func NewEventWaiterRegistry() *EventWaiterRegistry {
	return &EventWaiterRegistry{waiters: make(map[string]*EventWaiter)}
}

// Register arms a waiter for the named event. expect may be nil. Call this
// before sending the associated request.
func (r *EventWaiterRegistry) Register(requestID, event string, expect *StatePredicate) *EventWaiter {
	w := &EventWaiter{
		requestID: requestID,
		event:     event,
		expect:    expect,
		slot:      newOneshot[waiterOutcome](),
	}
	r.mu.Lock()
	r.waiters[requestID] = w
	r.mu.Unlock()
	return w
}

// Await blocks until the waiter's event arrives, the waiter is cancelled,
// the deadline passes, or ctx is cancelled. The waiter is removed from the
// registry on every exit path.
func (r *EventWaiterRegistry) Await(ctx context.Context, w *EventWaiter, deadline time.Time) (*protocol.Event, error) {
	timer := time.NewTimer(time.Until(deadline))
	defer timer.Stop()

	select {
	case out := <-w.slot.ch:
		if out.err != nil {
			return nil, fmt.Errorf("waiting for %q event: %w", w.event, out.err)
		}
		return out.ev, nil
	case <-timer.C:
		r.Cancel(w.requestID)
		return nil, fmt.Errorf("waiting for %q event: %w", w.event, ErrTimeout)
	case <-ctx.Done():
		r.Cancel(w.requestID)
		return nil, fmt.Errorf("waiting for %q event: %w", w.event, ErrCancelled)
	}
}

// Process offers an inbound event to every armed waiter. A waiter matches
// when the event name is equal and its predicate, if any, accepts the
// payload. All matching waiters complete — one event may satisfy several
// registered waits. Matched waiters are removed in the same pass.
func (r *EventWaiterRegistry) Process(ev *protocol.Event) {
	r.mu.Lock()
	var matched []*EventWaiter
	for id, w := range r.waiters {
		if w.event != ev.Event {
			continue
		}
		if w.expect != nil && !w.expect.matches(ev.Payload) {
			continue
		}
		matched = append(matched, w)
		delete(r.waiters, id)
	}
	r.mu.Unlock()

	for _, w := range matched {
		w.slot.complete(waiterOutcome{ev: ev})
	}
}

// Cancel disarms and resolves the waiter for the given request id if still
// present. Resolving an already-resolved waiter is a no-op.
func (r *EventWaiterRegistry) Cancel(requestID string) {
	r.mu.Lock()
	w, ok := r.waiters[requestID]
	if ok {
		delete(r.waiters, requestID)
	}
	r.mu.Unlock()
	if ok {
		w.slot.complete(waiterOutcome{err: ErrCancelled})
	}
}

// CancelAll atomically drains the registry and resolves every armed waiter
// as cancelled. The map is swapped under the lock before any slot completes,
// so observers never see a partially drained state.
func (r *EventWaiterRegistry) CancelAll() {
	r.mu.Lock()
	drained := r.waiters
	r.waiters = make(map[string]*EventWaiter)
	r.mu.Unlock()

	for _, w := range drained {
		w.slot.complete(waiterOutcome{err: ErrCancelled})
	}
}

// Active returns the number of armed waiters.
func (r *EventWaiterRegistry) Active() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.waiters)
}
