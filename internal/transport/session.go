package transport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/gorilla/websocket"
	"github.com/lhdbsbz/berrychat/internal/wire"
)

// Op names the stage of an exchange that failed.
type Op string

const (
	OpIdentity Op = "identity"
	OpDial     Op = "dial"
	OpWrite    Op = "write"
	OpRead     Op = "read"
	OpClosed   Op = "closed"
	OpTimeout  Op = "timeout"
	OpCanceled Op = "canceled"
)

// ErrClosedEarly means the backend closed the connection before a terminal frame.
var ErrClosedEarly = errors.New("connection closed before the reply finished")

// Error is carried by every wire.EventTransportError an exchange emits.
type Error struct {
	Op  Op
	Err error
}

func (e *Error) Error() string { return fmt.Sprintf("transport %s: %v", e.Op, e.Err) }
func (e *Error) Unwrap() error { return e.Err }

// Failure wraps err as a terminal transport event for the given stage.
func Failure(op Op, err error) wire.Event {
	return wire.TransportFailure(&Error{Op: op, Err: err})
}

// Session runs exchanges: one connection, one outbound envelope, frames until a terminal event.
// It does not interpret inbound JSON itself; every frame goes through a fresh wire.Reassembler.
type Session struct {
	Dialer Dialer
	Limits wire.Limits
}

func NewSession(d Dialer, limits wire.Limits) *Session {
	return &Session{Dialer: d, Limits: limits}
}

// Send opens a connection and writes req on connect.
// The returned channel yields classified events in arrival order and is closed after the
// first terminal event. Failures never retry. The caller must consume the channel until it's closed.
func (s *Session) Send(ctx context.Context, token string, req wire.Request) <-chan wire.Event {
	out := make(chan wire.Event, 16)
	go func() {
		defer close(out)
		s.run(ctx, token, req, out)
	}()
	return out
}

func (s *Session) run(ctx context.Context, token string, req wire.Request, out chan<- wire.Event) {
	conn, err := s.Dialer.Dial(ctx, token)
	if err != nil {
		out <- failure(ctx, OpDial, err)
		return
	}
	defer conn.Close()
	// Unblocks ReadMessage on timeout or cancel.
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	if err := conn.WriteJSON(req); err != nil {
		out <- failure(ctx, OpWrite, err)
		return
	}
	slog.Debug("exchange request sent", "session", req.SessionID)

	re := wire.NewReassembler(s.Limits)
	for {
		frame, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) && ctx.Err() == nil {
				out <- Failure(OpClosed, ErrClosedEarly)
				return
			}
			out <- failure(ctx, OpRead, err)
			return
		}
		for _, evt := range re.Feed(frame) {
			if evt.Kind == wire.EventHeartbeat {
				slog.Debug("heartbeat frame", "session", req.SessionID)
			}
			out <- evt
			if evt.Terminal() {
				return
			}
		}
		if n := re.Buffered(); n > 0 {
			slog.Debug("partial frame buffered", "session", req.SessionID, "bytes", n)
		}
	}
}

// failure attributes err to the context when the context ended first.
func failure(ctx context.Context, op Op, err error) wire.Event {
	switch {
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		return Failure(OpTimeout, ctx.Err())
	case errors.Is(ctx.Err(), context.Canceled):
		return Failure(OpCanceled, ctx.Err())
	}
	return Failure(op, err)
}
