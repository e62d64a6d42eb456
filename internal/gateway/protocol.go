package gateway

import "encoding/json"

// Frame is the universal WebSocket message format.
// Three types: "req" (client→server), "res" (server→client), "event" (server→client push).
type Frame struct {
	Type    string          `json:"type"`              // "req" | "res" | "event"
	ID      string          `json:"id,omitempty"`      // request/response correlation ID
	Method  string          `json:"method,omitempty"`  // for req: method name
	Params  json.RawMessage `json:"params,omitempty"`  // for req: method parameters
	OK      *bool           `json:"ok,omitempty"`      // for res: success flag
	Payload json.RawMessage `json:"payload,omitempty"` // for res: response data
	Error   *ErrorPayload   `json:"error,omitempty"`   // for res: error details
	Event   string          `json:"event,omitempty"`   // for event: event name
	Seq     int             `json:"seq,omitempty"`     // for event: transcript version
}

type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Request methods accepted over /ws.
const MethodMessageSend = "message.send"

// Pushed events.
const (
	EventTranscript = "transcript" // payload: chat.Snapshot
	EventClosed     = "closed"     // payload: {"conversationId"}
)

// Error codes shared by the HTTP API and /ws responses.
const (
	CodeInvalidInput = "INVALID_INPUT"
	CodeNotFound     = "NOT_FOUND"
	CodeBusy         = "EXCHANGE_IN_FLIGHT"
	CodeUnauthorized = "AUTH_FAILED"
	CodeBadRequest   = "INVALID_PARAMS"
	CodeUnknown      = "UNKNOWN_METHOD"
	CodeInternal     = "ERROR"
)

// MessageSendParams submits one user input to a conversation.
// A repeated MessageID is acknowledged without being submitted again.
type MessageSendParams struct {
	Text      string `json:"text"`
	MessageID string `json:"messageId,omitempty"`
}

// Helper to create response frames

func ResOK(id string, payload any) Frame {
	data, _ := json.Marshal(payload)
	ok := true
	return Frame{Type: "res", ID: id, OK: &ok, Payload: data}
}

func ResErr(id string, code, message string) Frame {
	ok := false
	return Frame{Type: "res", ID: id, OK: &ok, Error: &ErrorPayload{Code: code, Message: message}}
}

func EventFrame(event string, seq int, payload any) Frame {
	data, _ := json.Marshal(payload)
	return Frame{Type: "event", Event: event, Seq: seq, Payload: data}
}
