package wire

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

const (
	DefaultMaxPendingFrames = 64
	DefaultMaxBufferBytes   = 1 << 20
)

// Limits bound how long a partial document may keep accumulating.
// Without them a single corrupt frame that still looks truncated would stall the exchange.
type Limits struct {
	MaxPendingFrames int // consecutive frames without a complete document
	MaxBufferBytes   int
}

func (l Limits) withDefaults() Limits {
	if l.MaxPendingFrames <= 0 {
		l.MaxPendingFrames = DefaultMaxPendingFrames
	}
	if l.MaxBufferBytes <= 0 {
		l.MaxBufferBytes = DefaultMaxBufferBytes
	}
	return l
}

// Reassembler turns raw text frames of one exchange into classified events.
// A JSON document may be split across frames; only a truncated tail (unexpected EOF)
// is kept for the next frame, any other syntax error is malformed.
// It is not safe for concurrent use and is not reusable across exchanges.
type Reassembler struct {
	limits  Limits
	buf     []byte
	pending int
	done    bool
}

func NewReassembler(limits Limits) *Reassembler {
	return &Reassembler{limits: limits.withDefaults()}
}

// Buffered returns the number of bytes waiting for the rest of a document.
func (r *Reassembler) Buffered() int { return len(r.buf) }

// Done reports whether a terminal event has been emitted.
func (r *Reassembler) Done() bool { return r.done }

// Feed consumes one frame and returns the events it completes, in order.
// Whitespace-only frames are heartbeats and leave any partial document untouched.
func (r *Reassembler) Feed(frame []byte) []Event {
	if r.done {
		return nil
	}
	if len(bytes.TrimSpace(frame)) == 0 {
		return []Event{{Kind: EventHeartbeat}}
	}

	r.buf = append(r.buf, frame...)

	var events []Event
	for {
		rest := bytes.TrimLeft(r.buf, " \t\r\n")
		if len(rest) == 0 {
			r.buf = nil
			break
		}

		dec := json.NewDecoder(bytes.NewReader(rest))
		var doc json.RawMessage
		if err := dec.Decode(&doc); err != nil {
			if errors.Is(err, io.ErrUnexpectedEOF) {
				r.buf = append([]byte(nil), rest...)
				break
			}
			return append(events, r.finish(Malformed("%v", err)))
		}

		r.buf = rest[dec.InputOffset():]
		r.pending = 0
		evt := Classify(doc)
		if evt.Terminal() {
			return append(events, r.finish(evt))
		}
		events = append(events, evt)
	}

	if len(r.buf) == 0 {
		r.pending = 0
		return events
	}
	r.pending++
	if r.pending > r.limits.MaxPendingFrames || len(r.buf) > r.limits.MaxBufferBytes {
		overflow := Event{Kind: EventMalformed, Err: fmt.Errorf("%w: %w", ErrMalformedPayload, ErrBufferOverflow)}
		return append(events, r.finish(overflow))
	}
	return events
}

func (r *Reassembler) finish(evt Event) Event {
	r.done = true
	r.buf = nil
	r.pending = 0
	return evt
}
