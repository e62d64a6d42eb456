package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/lhdbsbz/berrychat/internal/archive"
	"github.com/lhdbsbz/berrychat/internal/chat"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  16 * 1024,
	WriteBufferSize: 16 * 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

const dedupTTL = 10 * time.Minute

type Options struct {
	Port     int
	Registry *Registry
	Archive  archive.Store
	Gatherer prometheus.Gatherer
	// AuthToken returns the expected bearer token; empty disables auth.
	AuthToken func() string
}

// Server is the berrychat gateway: an HTTP API and a WebSocket push channel over live conversations.
type Server struct {
	Registry *Registry
	Conns    *ConnManager
	opts     Options
	dedup    *Dedup
	httpSrv  *http.Server
	startAt  time.Time
}

// NewServer builds the gateway. ctx bounds background housekeeping.
func NewServer(ctx context.Context, opts Options) *Server {
	if opts.Archive == nil {
		opts.Archive = archive.Nop{}
	}
	if opts.AuthToken == nil {
		opts.AuthToken = func() string { return "" }
	}
	s := &Server{
		Registry: opts.Registry,
		Conns:    NewConnManager(),
		opts:     opts,
		dedup:    NewDedup(ctx, dedupTTL),
		startAt:  time.Now(),
	}
	s.Registry.OnClose(s.Conns.CloseConversation)
	return s
}

// Handler returns the gin engine with every route registered.
func (s *Server) Handler() http.Handler {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())

	engine.GET("/health", s.ginHealth)
	engine.GET("/metrics", s.ginMetrics())
	engine.GET("/ws", s.apiAuthMiddleware(), s.ginWebSocket)
	s.registerAPIRoutes(engine)
	return engine
}

// Start begins listening for connections and blocks until ctx ends.
func (s *Server) Start(ctx context.Context) error {
	addr := fmt.Sprintf(":%d", s.opts.Port)
	s.httpSrv = &http.Server{
		Addr:    addr,
		Handler: s.Handler(),
	}

	slog.Info("berrychat gateway starting", "port", s.opts.Port)

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		s.httpSrv.Shutdown(shutdownCtx)
		s.Registry.CloseAll()
	}()

	if err := s.httpSrv.ListenAndServe(); err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) ginHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":        "ok",
		"uptime":        time.Since(s.startAt).String(),
		"conversations": s.Registry.Len(),
		"watchers":      s.Conns.Count(),
	})
}

func (s *Server) ginWebSocket(c *gin.Context) {
	convID := c.Query("conversation")
	ctrl, err := s.Registry.Get(convID)
	if err != nil {
		abortWithError(c, err)
		return
	}
	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		slog.Error("websocket upgrade failed", "error", err)
		return
	}
	defer ws.Close()

	conn := newConn(fmt.Sprintf("conn_%d", time.Now().UnixNano()), convID, ws)
	s.Conns.Add(conn)
	defer s.Conns.Remove(conn.ID)

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()
	unsubscribe := ctrl.Subscribe(conn.Offer)
	defer unsubscribe()
	conn.Offer(ctrl.Snapshot())
	go conn.pushLoop(ctx)

	slog.Info("watcher connected", "id", conn.ID, "conversation", convID)

	// Message loop
	for {
		frame, err := ReadFrame(ws)
		if err != nil {
			slog.Debug("watcher disconnected", "id", conn.ID, "error", err)
			return
		}
		if frame.Type != "req" {
			continue
		}
		if frame.Method != MethodMessageSend {
			conn.Send(ResErr(frame.ID, CodeUnknown, "only message.send is supported over WebSocket"))
			continue
		}
		var p MessageSendParams
		if err := json.Unmarshal(frame.Params, &p); err != nil {
			conn.Send(ResErr(frame.ID, CodeBadRequest, "invalid message.send params"))
			continue
		}
		result, err := s.submit(convID, ctrl, p)
		if err != nil {
			_, code, msg := classify(err)
			conn.Send(ResErr(frame.ID, code, msg))
			continue
		}
		conn.Send(ResOK(frame.ID, result))
	}
}

// SubmitResult is returned by both submit paths.
type SubmitResult struct {
	Duplicate bool          `json:"duplicate,omitempty"`
	Snapshot  chat.Snapshot `json:"snapshot"`
}

func (s *Server) submit(convID string, ctrl *chat.Controller, p MessageSendParams) (SubmitResult, error) {
	key := ""
	if p.MessageID != "" {
		key = convID + ":" + p.MessageID
	}
	if s.dedup.IsDuplicate(key) {
		slog.Debug("duplicate message ignored", "conversation", convID, "messageId", p.MessageID)
		return SubmitResult{Duplicate: true, Snapshot: ctrl.Snapshot()}, nil
	}
	if err := ctrl.Submit(p.Text); err != nil {
		if key != "" {
			s.dedup.Forget(key)
		}
		return SubmitResult{}, err
	}
	return SubmitResult{Snapshot: ctrl.Snapshot()}, nil
}

func (s *Server) authenticate(token string) bool {
	expected := s.opts.AuthToken()
	if expected == "" {
		return true // no auth configured
	}
	return token == expected
}

// classify maps controller and registry errors to an HTTP status, a code and a user-facing message.
func classify(err error) (int, string, string) {
	var verr *chat.ValidationError
	switch {
	case errors.As(err, &verr):
		return http.StatusBadRequest, CodeInvalidInput, verr.Hint
	case errors.Is(err, chat.ErrNotFound), errors.Is(err, chat.ErrClosed):
		return http.StatusNotFound, CodeNotFound, chat.ErrNotFound.Error()
	case errors.Is(err, chat.ErrExchangeInFlight):
		return http.StatusConflict, CodeBusy, err.Error()
	default:
		return http.StatusInternalServerError, CodeInternal, err.Error()
	}
}

func abortWithError(c *gin.Context, err error) {
	status, code, msg := classify(err)
	c.AbortWithStatusJSON(status, gin.H{"error": msg, "code": code})
}
