package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lhdbsbz/berrychat/internal/archive"
	"github.com/lhdbsbz/berrychat/internal/backendtest"
	"github.com/lhdbsbz/berrychat/internal/chat"
	"github.com/lhdbsbz/berrychat/internal/identity"
	"github.com/lhdbsbz/berrychat/internal/message"
	"github.com/lhdbsbz/berrychat/internal/metrics"
	"github.com/lhdbsbz/berrychat/internal/prompts"
	"github.com/lhdbsbz/berrychat/internal/transport"
	"github.com/lhdbsbz/berrychat/internal/wire"
)

const testToken = "gw-secret"

type harness struct {
	t       *testing.T
	srv     *Server
	http    *httptest.Server
	backend *backendtest.Server
	store   *archive.FileStore
	reg     *prometheus.Registry
}

// script streams the pruning answer, never answers "hang" and echoes anything else.
func script(req wire.Request) []backendtest.Step {
	switch req.QueryText {
	case "How do I prune?":
		return backendtest.Stream("Prune ", "in winter.")
	case "hang":
		return backendtest.Hang()
	default:
		return backendtest.Reply("echo: " + req.QueryText)
	}
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	h := &harness{t: t, backend: backendtest.New(t, script), store: archive.NewFileStore(t.TempDir()), reg: prometheus.NewRegistry()}
	m := metrics.New(h.reg)
	session := transport.NewSession(&transport.WSDialer{URL: h.backend.WSURL()}, wire.Limits{})
	registry := NewRegistry(func() *chat.Controller {
		ctrl := chat.NewController(chat.Options{
			Session: session,
			Tokens:  identity.Static("backend-token"),
			Timeout: 2 * time.Second,
			Metrics: m,
		})
		ctrl.OnExchangeDone(archive.Recorder(h.store))
		return ctrl
	}, m)
	h.srv = NewServer(ctx, Options{
		Registry:  registry,
		Archive:   h.store,
		Gatherer:  h.reg,
		AuthToken: func() string { return testToken },
	})
	h.http = httptest.NewServer(h.srv.Handler())
	t.Cleanup(func() {
		h.http.Close()
		registry.CloseAll()
	})
	return h
}

func (h *harness) do(method, path string, body any) (int, []byte) {
	h.t.Helper()
	var r io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(h.t, err)
		r = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, h.http.URL+path, r)
	require.NoError(h.t, err)
	req.Header.Set("Authorization", "Bearer "+testToken)
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(h.t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(h.t, err)
	return resp.StatusCode, data
}

func (h *harness) create() chat.Snapshot {
	h.t.Helper()
	status, data := h.do(http.MethodPost, "/api/conversations", nil)
	require.Equal(h.t, http.StatusCreated, status)
	var snap chat.Snapshot
	require.NoError(h.t, json.Unmarshal(data, &snap))
	return snap
}

func (h *harness) send(id, text, messageID string) (int, SubmitResult) {
	h.t.Helper()
	status, data := h.do(http.MethodPost, "/api/conversations/"+id+"/messages", MessageSendParams{Text: text, MessageID: messageID})
	var res SubmitResult
	if status < 300 {
		require.NoError(h.t, json.Unmarshal(data, &res))
	}
	return status, res
}

func (h *harness) snapshot(id string) chat.Snapshot {
	h.t.Helper()
	status, data := h.do(http.MethodGet, "/api/conversations/"+id, nil)
	require.Equal(h.t, http.StatusOK, status)
	var snap chat.Snapshot
	require.NoError(h.t, json.Unmarshal(data, &snap))
	return snap
}

func (h *harness) waitSettled(id string) chat.Snapshot {
	h.t.Helper()
	var snap chat.Snapshot
	require.Eventually(h.t, func() bool {
		snap = h.snapshot(id)
		return message.CountProcessing(snap.Messages) == 0
	}, 3*time.Second, 10*time.Millisecond)
	return snap
}

func TestAuth(t *testing.T) {
	h := newHarness(t)

	resp, err := http.Get(h.http.URL + "/api/conversations")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, err = http.Get(h.http.URL + "/api/conversations?token=" + testToken)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(h.http.URL + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestConversationLifecycle(t *testing.T) {
	h := newHarness(t)
	snap := h.create()
	require.Len(t, snap.Messages, 1)
	assert.Equal(t, prompts.PromptsEN.Welcome, snap.Messages[0].Text)
	assert.Equal(t, chat.StateAwaitingLocation, snap.State)

	status, data := h.do(http.MethodPost, "/api/conversations/"+snap.SessionID+"/messages", MessageSendParams{Text: "  "})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Contains(t, string(data), prompts.PromptsEN.InputHint)

	status, res := h.send(snap.SessionID, "Oregon, US", "")
	require.Equal(t, http.StatusAccepted, status)
	assert.Equal(t, chat.StateReady, res.Snapshot.State)
	assert.Equal(t, "Oregon, US", res.Snapshot.Location)
	assert.Empty(t, h.backend.Requests())

	status, _ = h.send(snap.SessionID, "How do I prune?", "")
	require.Equal(t, http.StatusAccepted, status)
	final := h.waitSettled(snap.SessionID)
	require.Len(t, final.Messages, 5)
	assert.Equal(t, "Prune in winter.", final.Messages[4].Text)
	assert.Equal(t, message.StatusReceived, final.Messages[4].Status)

	reqs := h.backend.Requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, "backend-token", reqs[0].Token)
	assert.Equal(t, "Oregon, US", reqs[0].Request.Location)

	status, data = h.do(http.MethodGet, "/api/conversations", nil)
	require.Equal(t, http.StatusOK, status)
	var list struct {
		Conversations []Summary `json:"conversations"`
	}
	require.NoError(t, json.Unmarshal(data, &list))
	require.Len(t, list.Conversations, 1)
	assert.Equal(t, 5, list.Conversations[0].Messages)

	status, _ = h.do(http.MethodDelete, "/api/conversations/"+snap.SessionID, nil)
	assert.Equal(t, http.StatusNoContent, status)
	status, _ = h.do(http.MethodGet, "/api/conversations/"+snap.SessionID, nil)
	assert.Equal(t, http.StatusNotFound, status)

	var arch struct {
		Exchanges []chat.ExchangeRecord `json:"exchanges"`
	}
	require.Eventually(t, func() bool {
		status, data = h.do(http.MethodGet, "/api/conversations/"+snap.SessionID+"/archive", nil)
		return status == http.StatusOK && json.Unmarshal(data, &arch) == nil && len(arch.Exchanges) == 1
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, "Prune in winter.", arch.Exchanges[0].Reply)
}

func TestSendMessage_Errors(t *testing.T) {
	h := newHarness(t)

	status, _ := h.send("missing", "hi", "")
	assert.Equal(t, http.StatusNotFound, status)

	snap := h.create()
	h.send(snap.SessionID, "Oregon, US", "")
	status, _ = h.send(snap.SessionID, "hang", "")
	require.Equal(t, http.StatusAccepted, status)

	status, _ = h.send(snap.SessionID, "second", "")
	assert.Equal(t, http.StatusConflict, status)

	status, _ = h.do(http.MethodPost, "/api/conversations/"+snap.SessionID+"/messages", "not an object")
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestSendMessage_DuplicateIsNoop(t *testing.T) {
	h := newHarness(t)
	snap := h.create()

	status, first := h.send(snap.SessionID, "Oregon, US", "m-1")
	require.Equal(t, http.StatusAccepted, status)
	status, dup := h.send(snap.SessionID, "Oregon, US", "m-1")
	require.Equal(t, http.StatusOK, status)

	assert.True(t, dup.Duplicate)
	assert.Equal(t, first.Snapshot.Messages, dup.Snapshot.Messages)
	assert.Len(t, h.snapshot(snap.SessionID).Messages, 3)
}

func TestSendMessage_RejectedIDCanBeRetried(t *testing.T) {
	h := newHarness(t)
	snap := h.create()

	status, _ := h.send(snap.SessionID, " ", "m-1")
	require.Equal(t, http.StatusBadRequest, status)
	status, res := h.send(snap.SessionID, "Oregon, US", "m-1")
	require.Equal(t, http.StatusAccepted, status)
	assert.False(t, res.Duplicate)
}

func wsURL(h *harness, id string) string {
	return "ws" + strings.TrimPrefix(h.http.URL, "http") + "/ws?conversation=" + id + "&token=" + testToken
}

func readUntil(t *testing.T, ws *websocket.Conn, match func(Frame) bool) Frame {
	t.Helper()
	require.NoError(t, ws.SetReadDeadline(time.Now().Add(3*time.Second)))
	for {
		var f Frame
		require.NoError(t, ws.ReadJSON(&f))
		if match(f) {
			return f
		}
	}
}

func TestWebSocket_PushesTranscript(t *testing.T) {
	h := newHarness(t)
	snap := h.create()

	ws, _, err := websocket.DefaultDialer.Dial(wsURL(h, snap.SessionID), nil)
	require.NoError(t, err)
	defer ws.Close()

	first := readUntil(t, ws, func(f Frame) bool { return f.Event == EventTranscript })
	var initial chat.Snapshot
	require.NoError(t, json.Unmarshal(first.Payload, &initial))
	assert.Len(t, initial.Messages, 1)

	params, _ := json.Marshal(MessageSendParams{Text: "Oregon, US"})
	require.NoError(t, ws.WriteJSON(Frame{Type: "req", ID: "1", Method: MethodMessageSend, Params: params}))
	res := readUntil(t, ws, func(f Frame) bool { return f.Type == "res" && f.ID == "1" })
	require.NotNil(t, res.OK)
	assert.True(t, *res.OK)

	params, _ = json.Marshal(MessageSendParams{Text: "How do I prune?"})
	require.NoError(t, ws.WriteJSON(Frame{Type: "req", ID: "2", Method: MethodMessageSend, Params: params}))

	var last chat.Snapshot
	readUntil(t, ws, func(f Frame) bool {
		if f.Event != EventTranscript {
			return false
		}
		require.NoError(t, json.Unmarshal(f.Payload, &last))
		return len(last.Messages) == 5 && last.Messages[4].Status == message.StatusReceived
	})
	assert.Equal(t, "Prune in winter.", last.Messages[4].Text)

	require.NoError(t, ws.WriteJSON(Frame{Type: "req", ID: "3", Method: "agent.run"}))
	res = readUntil(t, ws, func(f Frame) bool { return f.Type == "res" && f.ID == "3" })
	require.NotNil(t, res.Error)
	assert.Equal(t, CodeUnknown, res.Error.Code)

	require.NoError(t, h.srv.Registry.Remove(snap.SessionID))
	readUntil(t, ws, func(f Frame) bool { return f.Event == EventClosed })
}

func TestWebSocket_UnknownConversation(t *testing.T) {
	h := newHarness(t)
	_, resp, err := websocket.DefaultDialer.Dial(wsURL(h, "nope"), nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestMetricsEndpoint(t *testing.T) {
	h := newHarness(t)
	h.create()

	resp, err := http.Get(h.http.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "berrychat_conversations_active 1")
}

func TestSweeper_ClosesIdleConversations(t *testing.T) {
	h := newHarness(t)
	h.create()
	h.create()

	sweeper, err := NewSweeper("@every 1h", h.srv.Registry, func() time.Duration { return time.Nanosecond })
	require.NoError(t, err)
	time.Sleep(2 * time.Millisecond)

	assert.Equal(t, 2, sweeper.Run())
	assert.Zero(t, h.srv.Registry.Len())

	_, err = NewSweeper("not a schedule", h.srv.Registry, func() time.Duration { return time.Minute })
	assert.Error(t, err)
}

func TestSweeper_SkipsBusyConversation(t *testing.T) {
	h := newHarness(t)
	id := h.create().SessionID
	ctrl, err := h.srv.Registry.Get(id)
	require.NoError(t, err)
	require.NoError(t, ctrl.Submit("Oregon, US"))
	require.NoError(t, ctrl.Submit("hang"))
	require.True(t, ctrl.Busy())

	time.Sleep(100 * time.Millisecond)
	assert.Zero(t, h.srv.Registry.SweepIdle(50*time.Millisecond))
	assert.False(t, ctrl.Closed())
	assert.Equal(t, 1, h.srv.Registry.Len())

	msgs := ctrl.Messages()
	assert.Equal(t, message.StatusProcessing, msgs[len(msgs)-1].Status)
}

func TestSweeper_ZeroIdleDisables(t *testing.T) {
	h := newHarness(t)
	h.create()
	sweeper, err := NewSweeper("*/5 * * * * *", h.srv.Registry, func() time.Duration { return 0 })
	require.NoError(t, err)
	sweeper.Start()
	defer sweeper.Stop()

	assert.Zero(t, sweeper.Run())
	assert.Equal(t, 1, h.srv.Registry.Len())
}

func TestDedup(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	d := NewDedup(ctx, time.Minute)

	assert.False(t, d.IsDuplicate(""))
	assert.False(t, d.IsDuplicate(""))
	assert.False(t, d.IsDuplicate("a"))
	assert.True(t, d.IsDuplicate("a"))
	d.Forget("a")
	assert.False(t, d.IsDuplicate("a"))
}
