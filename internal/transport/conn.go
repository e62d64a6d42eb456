package transport

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const closeGrace = time.Second

// Conn is one backend connection, scoped to a single exchange.
type Conn interface {
	WriteJSON(v any) error
	ReadMessage() ([]byte, error)
	Close() error
}

// Dialer opens a fresh connection for every exchange.
type Dialer interface {
	Dial(ctx context.Context, token string) (Conn, error)
}

// WSDialer dials the backend WebSocket endpoint with the bearer token in the query string.
type WSDialer struct {
	URL              string
	TokenParam       string
	HandshakeTimeout time.Duration
	Header           http.Header
}

func (d *WSDialer) Dial(ctx context.Context, token string) (Conn, error) {
	endpoint, err := d.endpoint(token)
	if err != nil {
		return nil, err
	}
	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: d.HandshakeTimeout,
		ReadBufferSize:   16 * 1024,
		WriteBufferSize:  16 * 1024,
	}
	ws, resp, err := dialer.DialContext(ctx, endpoint, d.Header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("%w (status %d)", err, resp.StatusCode)
		}
		return nil, err
	}
	return &wsConn{ws: ws}, nil
}

func (d *WSDialer) endpoint(token string) (string, error) {
	u, err := url.Parse(d.URL)
	if err != nil {
		return "", fmt.Errorf("parse backend url: %w", err)
	}
	if token != "" {
		param := d.TokenParam
		if param == "" {
			param = "token"
		}
		q := u.Query()
		q.Set(param, token)
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

// wsConn serializes writes; Close is safe to call from any goroutine, any number of times.
type wsConn struct {
	ws        *websocket.Conn
	writeMu   sync.Mutex
	closeOnce sync.Once
	closeErr  error
}

func (c *wsConn) WriteJSON(v any) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.ws.WriteJSON(v)
}

func (c *wsConn) ReadMessage() ([]byte, error) {
	_, msg, err := c.ws.ReadMessage()
	return msg, err
}

func (c *wsConn) Close() error {
	c.closeOnce.Do(func() {
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		_ = c.ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(closeGrace))
		c.closeErr = c.ws.Close()
	})
	return c.closeErr
}
