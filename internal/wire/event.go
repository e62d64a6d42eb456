package wire

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

var (
	ErrMalformedPayload = errors.New("malformed payload")
	ErrBufferOverflow   = errors.New("reassembly limit exceeded")
)

// EventKind classifies one fully-parsed inbound payload.
type EventKind string

const (
	EventHeartbeat      EventKind = "heartbeat"
	EventReply          EventKind = "reply"
	EventDelta          EventKind = "delta"
	EventEnd            EventKind = "end"
	EventMalformed      EventKind = "malformed"
	EventTransportError EventKind = "transport_error"
)

// Event is what an exchange yields to its consumer.
type Event struct {
	Kind EventKind
	Text string // reply or delta text
	Err  error  // malformed / transport_error
}

// Terminal reports whether no further events follow this one in the exchange.
func (e Event) Terminal() bool {
	switch e.Kind {
	case EventReply, EventEnd, EventMalformed, EventTransportError:
		return true
	}
	return false
}

// Failed reports whether the exchange ended without an answer.
func (e Event) Failed() bool {
	return e.Kind == EventMalformed || e.Kind == EventTransportError
}

func (e Event) String() string {
	switch e.Kind {
	case EventReply, EventDelta:
		return fmt.Sprintf("%s(%q)", e.Kind, e.Text)
	case EventMalformed, EventTransportError:
		return fmt.Sprintf("%s(%v)", e.Kind, e.Err)
	}
	return string(e.Kind)
}

// Malformed builds a malformed event wrapping ErrMalformedPayload.
func Malformed(format string, args ...any) Event {
	return Event{Kind: EventMalformed, Err: fmt.Errorf("%w: "+format, append([]any{ErrMalformedPayload}, args...)...)}
}

// TransportFailure builds a terminal transport error event.
func TransportFailure(err error) Event {
	return Event{Kind: EventTransportError, Err: err}
}

// Classify maps one complete JSON document to an event by shape.
// A non-empty "type" decides; "responsetext" is consulted only without one.
func Classify(doc []byte) Event {
	trimmed := bytes.TrimSpace(doc)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return Malformed("expected JSON object")
	}
	var in inbound
	if err := json.Unmarshal(trimmed, &in); err != nil {
		return Malformed("%v", err)
	}

	switch in.Type {
	case TypeDelta:
		if in.Text == nil {
			return Malformed("delta without text")
		}
		return Event{Kind: EventDelta, Text: *in.Text}
	case TypeEnd:
		return Event{Kind: EventEnd}
	case "":
		if in.ResponseText != nil {
			return Event{Kind: EventReply, Text: *in.ResponseText}
		}
		return Malformed("unrecognized payload shape")
	default:
		return Malformed("unknown type %q", in.Type)
	}
}
