// Package protocol defines the framed JSON messages exchanged with the
// editor plugin over the WebSocket transport.
//
// Every frame is a single JSON object with a mandatory "type" discriminator
// and an "origin" field. The bridge sends request frames (and one synthetic
// response acknowledging hello); the editor sends hello, response, and event
// frames.
package protocol

import (
	"encoding/json"
	"fmt"
)

// Frame type discriminators.
const (
	TypeHello    = "hello"
	TypeRequest  = "request"
	TypeResponse = "response"
	TypeEvent    = "event"
)

// Frame origins.
const (
	OriginBridge = "bridge"
	OriginEditor = "unity"
)

// Response status values.
const (
	StatusOK    = "ok"
	StatusError = "error"
)

// EventReloadStarting announces an in-place editor reload. The transport
// will drop and reopen shortly after this event.
const EventReloadStarting = "reload_starting"

// EventLog carries one classified editor log line. Log events are the only
// event kind ingested into the log store.
const EventLog = "log"

// Hello is the first frame a connecting editor sends. It identifies the
// project and plugin so the bridge can reject peers from a different project.
type Hello struct {
	Type             string   `json:"type"`
	Origin           string   `json:"origin"`
	ProjectID        string   `json:"projectId"`
	UnityVersion     string   `json:"unityVersion,omitempty"`
	EditorInstanceID string   `json:"editorInstanceId,omitempty"`
	ProtocolVersion  string   `json:"protocolVersion,omitempty"`
	PluginVersion    string   `json:"pluginVersion,omitempty"`
	Capabilities     []string `json:"capabilities,omitempty"`
}

// Request is a bridge-originated command dispatch.
type Request struct {
	Type      string         `json:"type"`
	Origin    string         `json:"origin"`
	RequestID string         `json:"requestId"`
	AgentID   string         `json:"agentId,omitempty"`
	Command   string         `json:"command"`
	Args      map[string]any `json:"args,omitempty"`
}

// ErrorDetail is the structured error record inside an error response.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// Response resolves exactly one Request, matched by RequestID. The bridge
// also sends a synthetic Response to acknowledge a hello frame; that one is
// not correlated to any request.
type Response struct {
	Type      string       `json:"type"`
	Origin    string       `json:"origin"`
	RequestID string       `json:"requestId"`
	Status    string       `json:"status"`
	Result    any          `json:"result,omitempty"`
	Error     *ErrorDetail `json:"error,omitempty"`
}

// Event is an unsolicited editor notification.
type Event struct {
	Type    string         `json:"type"`
	Origin  string         `json:"origin"`
	Event   string         `json:"event"`
	Payload map[string]any `json:"payload,omitempty"`
}

// NewRequest builds a request frame with the bridge origin set.
func NewRequest(requestID, agentID, command string, args map[string]any) *Request {
	return &Request{
		Type:      TypeRequest,
		Origin:    OriginBridge,
		RequestID: requestID,
		AgentID:   agentID,
		Command:   command,
		Args:      args,
	}
}

// IsOK reports whether the response carries an ok status.
func (r *Response) IsOK() bool {
	return r.Status == StatusOK
}

// Decode parses a raw frame and returns one of *Hello, *Request, *Response,
// or *Event depending on the "type" discriminator. A missing or unknown
// discriminator is an error; the caller logs and drops such frames without
// tearing down the peer.
func Decode(data []byte) (any, error) {
	var head struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, fmt.Errorf("unparseable frame: %w", err)
	}

	switch head.Type {
	case TypeHello:
		var f Hello
		if err := json.Unmarshal(data, &f); err != nil {
			return nil, fmt.Errorf("malformed hello frame: %w", err)
		}
		return &f, nil
	case TypeRequest:
		var f Request
		if err := json.Unmarshal(data, &f); err != nil {
			return nil, fmt.Errorf("malformed request frame: %w", err)
		}
		return &f, nil
	case TypeResponse:
		var f Response
		if err := json.Unmarshal(data, &f); err != nil {
			return nil, fmt.Errorf("malformed response frame: %w", err)
		}
		return &f, nil
	case TypeEvent:
		var f Event
		if err := json.Unmarshal(data, &f); err != nil {
			return nil, fmt.Errorf("malformed event frame: %w", err)
		}
		return &f, nil
	case "":
		return nil, fmt.Errorf("frame is missing the type discriminator")
	default:
		return nil, fmt.Errorf("unknown frame type %q", head.Type)
	}
}
