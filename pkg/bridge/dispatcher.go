package bridge

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/DirtybitGames/unityctl-sub001/pkg/protocol"
)

// DefaultCommandTimeout applies to every command without an explicit entry
// in the policy table.
const DefaultCommandTimeout = 30 * time.Second

// CommandPolicy decides when a dispatched command is complete: immediately
// on the peer's response, or only after a terminal event arrives.
type CommandPolicy struct {
	// Timeout is the default deadline for the whole dispatch, response and
	// terminal event included. Overridable per command via configuration.
	Timeout time.Duration

	// Event, when set, names the terminal event the dispatch waits for
	// after a successful response.
	Event string

	// Expect optionally narrows the terminal event by payload state.
	Expect *StatePredicate
}

// DefaultPolicies is the built-in completion policy table.
func DefaultPolicies() map[string]CommandPolicy {
	return map[string]CommandPolicy{
		"play.enter": {
			Timeout: 30 * time.Second,
			Event:   "playModeChanged",
			Expect:  &StatePredicate{Key: "state", Value: "EnteredPlayMode"},
		},
		"play.exit": {
			Timeout: 30 * time.Second,
			Event:   "playModeChanged",
			Expect:  &StatePredicate{Key: "state", Value: "ExitedPlayMode"},
		},
		"compile.scripts": {
			Timeout: 30 * time.Second,
			Event:   "compilation.finished",
		},
		"asset.import": {
			Timeout: 30 * time.Second,
			Event:   "asset.importComplete",
		},
		"asset.reimportAll": {
			Timeout: 30 * time.Second,
			Event:   "asset.reimportAllComplete",
		},
		"asset.refresh": {
			Timeout: 60 * time.Second,
			Event:   "refresh.complete",
		},
		"test.run": {
			Timeout: 300 * time.Second,
			Event:   "test.finished",
		},
	}
}

// Dispatcher turns a command into a correlated request/response exchange,
// applying the per-command completion policy.
type Dispatcher struct {
	manager  *ConnectionManager
	requests *RequestRegistry
	waiters  *EventWaiterRegistry
	policies map[string]CommandPolicy

	// timeouts maps command token to a configured override, resolved from
	// environment and project configuration at startup. May be nil.
	timeouts map[string]time.Duration
}

// NewDispatcher builds a dispatcher with the built-in policy table and the
// given timeout overrides.
func NewDispatcher(manager *ConnectionManager, requests *RequestRegistry, waiters *EventWaiterRegistry, timeouts map[string]time.Duration) *Dispatcher {
	return &Dispatcher{
		manager:  manager,
		requests: requests,
		waiters:  waiters,
		policies: DefaultPolicies(),
		timeouts: timeouts,
	}
}

// policyFor resolves the completion policy and effective timeout for a
// command token.
func (d *Dispatcher) policyFor(command string) CommandPolicy {
	policy, ok := d.policies[command]
	if !ok {
		policy = CommandPolicy{Timeout: DefaultCommandTimeout}
		if override, ok := d.timeouts["default"]; ok {
			policy.Timeout = override
		}
	}
	if override, ok := d.timeouts[command]; ok {
		policy.Timeout = override
	}
	return policy
}

// Dispatch sends a command to the editor and blocks until its completion
// policy is satisfied.
//
// For event-gated commands the waiter is registered before the request is
// sent; an event arriving between send and response is then never lost. On
// success the terminal event's payload replaces the response result, so the
// HTTP caller sees the state the editor actually reached.
func (d *Dispatcher) Dispatch(ctx context.Context, command, agentID string, args map[string]any) (*protocol.Response, error) {
	if !d.manager.Connected() {
		return nil, ErrPeerAbsent
	}

	policy := d.policyFor(command)
	requestID := uuid.NewString()
	deadline := time.Now().Add(policy.Timeout)

	var waiter *EventWaiter
	if policy.Event != "" {
		waiter = d.waiters.Register(requestID, policy.Event, policy.Expect)
		defer d.waiters.Cancel(requestID)
	}

	req := protocol.NewRequest(requestID, agentID, command, args)
	slog.Debug("Dispatching command",
		"request_id", requestID, "command", command, "timeout", policy.Timeout)

	resp, err := d.requests.Send(ctx, d.manager, req, deadline)
	if err != nil {
		return nil, err
	}
	if !resp.IsOK() {
		// Peer-reported errors travel back verbatim in a 200 body.
		return resp, nil
	}

	if waiter != nil {
		ev, err := d.waiters.Await(ctx, waiter, deadline)
		if err != nil {
			return nil, err
		}
		resp.Result = ev.Payload
	}
	return resp, nil
}
