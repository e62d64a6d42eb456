package wire

import "encoding/json"

// DefaultAction is the route key the backend dispatches chat queries on.
const DefaultAction = "sendMessage"

// Stream frame types.
const (
	TypeDelta = "delta"
	TypeEnd   = "end"
)

// Request is the outbound envelope, written once per exchange right after connect.
type Request struct {
	Action    string `json:"action"`
	QueryText string `json:"querytext"`
	SessionID string `json:"session_id"`
	Location  string `json:"location"`
}

// Reply is a complete single-shot answer.
type Reply struct {
	ResponseText string `json:"responsetext"`
}

// StreamFrame carries one delta fragment or the end marker.
type StreamFrame struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

// inbound is the union of every shape the backend may send.
// Field matching in encoding/json is case-insensitive, so "responseText" also lands here.
type inbound struct {
	Type         string  `json:"type"`
	Text         *string `json:"text"`
	ResponseText *string `json:"responsetext"`
}

// Helpers to build inbound payloads (used by backends and tests)

func ReplyPayload(text string) []byte {
	data, _ := json.Marshal(Reply{ResponseText: text})
	return data
}

func DeltaPayload(text string) []byte {
	// text is required on deltas, even when empty.
	data, _ := json.Marshal(struct {
		Type string `json:"type"`
		Text string `json:"text"`
	}{TypeDelta, text})
	return data
}

func EndPayload() []byte {
	data, _ := json.Marshal(StreamFrame{Type: TypeEnd})
	return data
}
