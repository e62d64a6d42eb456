// Package backendtest runs a scripted assistant backend over WebSocket for tests.
package backendtest

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/lhdbsbz/berrychat/internal/wire"
)

// Step is one scripted action after the request arrives.
type Step struct {
	Frame []byte        // text frame to send
	Delay time.Duration // wait before acting
	Close bool          // send a normal close frame and stop
	Hang  bool          // stop sending and wait for the client to go away
}

// Script chooses the steps for one received request.
type Script func(req wire.Request) []Step

// Received is one request observed by the backend.
type Received struct {
	Request wire.Request
	Token   string
}

type Server struct {
	*httptest.Server
	script Script

	mu       sync.Mutex
	received []Received
	conns    int
	closed   int
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// New starts a backend; it is shut down when the test ends.
func New(t testing.TB, script Script) *Server {
	t.Helper()
	s := &Server{script: script}
	s.Server = httptest.NewServer(http.HandlerFunc(s.serveWS))
	t.Cleanup(s.Close)
	return s
}

// WSURL is the ws:// endpoint of the backend.
func (s *Server) WSURL() string {
	return "ws" + strings.TrimPrefix(s.URL, "http") + "/ws"
}

func (s *Server) Requests() []Received {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Received(nil), s.received...)
}

// Connections counts accepted WebSocket upgrades.
func (s *Server) Connections() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conns
}

// Disconnects counts connections whose handler has returned.
func (s *Server) Disconnects() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *Server) serveWS(w http.ResponseWriter, r *http.Request) {
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer ws.Close()
	s.mu.Lock()
	s.conns++
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.closed++
		s.mu.Unlock()
	}()

	_, msg, err := ws.ReadMessage()
	if err != nil {
		return
	}
	var req wire.Request
	_ = json.Unmarshal(msg, &req)
	s.mu.Lock()
	s.received = append(s.received, Received{Request: req, Token: r.URL.Query().Get("token")})
	s.mu.Unlock()

	for _, step := range s.script(req) {
		if step.Delay > 0 {
			time.Sleep(step.Delay)
		}
		switch {
		case step.Hang:
			drain(ws)
			return
		case step.Close:
			_ = ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"))
			return
		default:
			if err := ws.WriteMessage(websocket.TextMessage, step.Frame); err != nil {
				return
			}
		}
	}
	drain(ws)
}

// drain blocks until the client closes its side.
func drain(ws *websocket.Conn) {
	for {
		if _, _, err := ws.ReadMessage(); err != nil {
			return
		}
	}
}

// Script helpers

func Frames(frames ...string) []Step {
	steps := make([]Step, 0, len(frames))
	for _, f := range frames {
		steps = append(steps, Step{Frame: []byte(f)})
	}
	return steps
}

func Stream(deltas ...string) []Step {
	steps := make([]Step, 0, len(deltas)+1)
	for _, d := range deltas {
		steps = append(steps, Step{Frame: wire.DeltaPayload(d)})
	}
	return append(steps, Step{Frame: wire.EndPayload()})
}

func Reply(text string) []Step {
	return []Step{{Frame: wire.ReplyPayload(text)}}
}

func Hang() []Step { return []Step{{Hang: true}} }

func CloseEarly(before ...Step) []Step { return append(before, Step{Close: true}) }

// Static returns the same steps for every request.
func Static(steps []Step) Script {
	return func(wire.Request) []Step { return steps }
}
