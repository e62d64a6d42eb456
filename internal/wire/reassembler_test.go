package wire

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func feedAll(r *Reassembler, frames ...string) [][]Event {
	out := make([][]Event, 0, len(frames))
	for _, f := range frames {
		out = append(out, r.Feed([]byte(f)))
	}
	return out
}

func TestReassembler_SplitDocument(t *testing.T) {
	r := NewReassembler(Limits{})
	got := feedAll(r, `{"ty`, `pe":"delta","tex`, `t":"hi"}`)

	assert.Empty(t, got[0])
	assert.Empty(t, got[1])
	require.Len(t, got[2], 1)
	assert.Equal(t, Event{Kind: EventDelta, Text: "hi"}, got[2][0])
	assert.Zero(t, r.Buffered())
}

func TestReassembler_HeartbeatKeepsPartial(t *testing.T) {
	r := NewReassembler(Limits{})

	assert.Empty(t, r.Feed([]byte(`{"type":"delta",`)))
	before := r.Buffered()

	for _, hb := range []string{"", "   ", "\n\t"} {
		evts := r.Feed([]byte(hb))
		require.Len(t, evts, 1)
		assert.Equal(t, EventHeartbeat, evts[0].Kind)
		assert.Equal(t, before, r.Buffered())
	}

	evts := r.Feed([]byte(`"text":"ok"}`))
	require.Len(t, evts, 1)
	assert.Equal(t, "ok", evts[0].Text)
}

func TestReassembler_StreamThenEnd(t *testing.T) {
	r := NewReassembler(Limits{})
	var text strings.Builder
	var last Event
	for _, f := range []string{`{"type":"delta","text":"Prune "}`, `{"type":"delta","text":"in winter."}`, `{"type":"end"}`} {
		for _, evt := range r.Feed([]byte(f)) {
			if evt.Kind == EventDelta {
				text.WriteString(evt.Text)
			}
			last = evt
		}
	}
	assert.Equal(t, EventEnd, last.Kind)
	assert.True(t, r.Done())
	assert.Equal(t, "Prune in winter.", text.String())

	assert.Nil(t, r.Feed([]byte(`{"type":"delta","text":"late"}`)))
}

func TestReassembler_ConcatenatedDocuments(t *testing.T) {
	r := NewReassembler(Limits{})
	evts := r.Feed([]byte(`{"type":"delta","text":"a"} {"type":"delta","text":"b"}{"type":"del`))
	require.Len(t, evts, 2)
	assert.Equal(t, "a", evts[0].Text)
	assert.Equal(t, "b", evts[1].Text)
	assert.Greater(t, r.Buffered(), 0)

	evts = r.Feed([]byte(`ta","text":"c"}{"type":"end"}`))
	require.Len(t, evts, 2)
	assert.Equal(t, "c", evts[0].Text)
	assert.Equal(t, EventEnd, evts[1].Kind)
}

func TestReassembler_SingleReply(t *testing.T) {
	r := NewReassembler(Limits{})
	evts := r.Feed([]byte(`{"responsetext":"Water deeply."}`))
	require.Len(t, evts, 1)
	assert.Equal(t, Event{Kind: EventReply, Text: "Water deeply."}, evts[0])
	assert.True(t, r.Done())
}

func TestReassembler_HardSyntaxErrorIsMalformed(t *testing.T) {
	r := NewReassembler(Limits{})
	evts := r.Feed([]byte(`{"type":}`))
	require.Len(t, evts, 1)
	assert.Equal(t, EventMalformed, evts[0].Kind)
	assert.True(t, errors.Is(evts[0].Err, ErrMalformedPayload))
	assert.Zero(t, r.Buffered())
	assert.True(t, r.Done())
}

func TestReassembler_PendingFrameLimit(t *testing.T) {
	r := NewReassembler(Limits{MaxPendingFrames: 2})
	got := feedAll(r, `{"text":"aaa`, `bbb`, `ccc`)

	assert.Empty(t, got[0])
	assert.Empty(t, got[1])
	require.Len(t, got[2], 1)
	assert.Equal(t, EventMalformed, got[2][0].Kind)
	assert.ErrorIs(t, got[2][0].Err, ErrBufferOverflow)
	assert.ErrorIs(t, got[2][0].Err, ErrMalformedPayload)
}

func TestReassembler_BufferByteLimit(t *testing.T) {
	r := NewReassembler(Limits{MaxBufferBytes: 16})
	evts := r.Feed([]byte(`{"text":"` + strings.Repeat("x", 32)))
	require.Len(t, evts, 1)
	assert.ErrorIs(t, evts[0].Err, ErrBufferOverflow)
}

func TestReassembler_PendingResetsAfterDocument(t *testing.T) {
	r := NewReassembler(Limits{MaxPendingFrames: 2})
	feedAll(r, `{"type":"delta",`, `"text":"x"}`)
	got := feedAll(r, `{"type":"delta",`, `"text":`, `"y"}`)
	assert.Empty(t, got[0])
	assert.Empty(t, got[1])
	require.Len(t, got[2], 1)
	assert.Equal(t, "y", got[2][0].Text)
}

func TestClassify(t *testing.T) {
	cases := []struct {
		name string
		doc  string
		kind EventKind
		text string
	}{
		{"reply", `{"responsetext":"hi"}`, EventReply, "hi"},
		{"reply camel case", `{"responseText":"hi"}`, EventReply, "hi"},
		{"empty reply", `{"responsetext":""}`, EventReply, ""},
		{"delta", `{"type":"delta","text":"x"}`, EventDelta, "x"},
		{"empty delta", `{"type":"delta","text":""}`, EventDelta, ""},
		{"end", `{"type":"end"}`, EventEnd, ""},
		{"type wins over reply", `{"type":"end","responsetext":"ignored"}`, EventEnd, ""},
		{"delta missing text", `{"type":"delta"}`, EventMalformed, ""},
		{"unknown type", `{"type":"ping"}`, EventMalformed, ""},
		{"empty object", `{}`, EventMalformed, ""},
		{"array", `["x"]`, EventMalformed, ""},
		{"string", `"hello"`, EventMalformed, ""},
		{"wrong text type", `{"type":"delta","text":5}`, EventMalformed, ""},
		{"null reply", `{"responsetext":null}`, EventMalformed, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			evt := Classify([]byte(tc.doc))
			assert.Equal(t, tc.kind, evt.Kind)
			assert.Equal(t, tc.text, evt.Text)
			if tc.kind == EventMalformed {
				assert.ErrorIs(t, evt.Err, ErrMalformedPayload)
			}
		})
	}
}

func TestEventTerminal(t *testing.T) {
	assert.False(t, Event{Kind: EventHeartbeat}.Terminal())
	assert.False(t, Event{Kind: EventDelta}.Terminal())
	assert.True(t, Event{Kind: EventReply}.Terminal())
	assert.True(t, Event{Kind: EventEnd}.Terminal())
	assert.True(t, Event{Kind: EventMalformed}.Terminal())
	assert.True(t, TransportFailure(errors.New("boom")).Terminal())
	assert.True(t, TransportFailure(errors.New("boom")).Failed())
}
