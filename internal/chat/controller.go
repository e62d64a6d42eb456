package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/lhdbsbz/berrychat/internal/identity"
	"github.com/lhdbsbz/berrychat/internal/message"
	"github.com/lhdbsbz/berrychat/internal/metrics"
	"github.com/lhdbsbz/berrychat/internal/prompts"
	"github.com/lhdbsbz/berrychat/internal/transport"
	"github.com/lhdbsbz/berrychat/internal/wire"
)

const DefaultExchangeTimeout = 90 * time.Second

// Exchanger runs one request/response cycle; transport.Session is the production one.
type Exchanger interface {
	Send(ctx context.Context, token string, req wire.Request) <-chan wire.Event
}

// Outcome labels how an exchange ended.
type Outcome string

const (
	OutcomeReply     Outcome = "reply"
	OutcomeStream    Outcome = "stream"
	OutcomeMalformed Outcome = "malformed"
	OutcomeTransport Outcome = "transport_error"
)

// ExchangeRecord describes a finished exchange.
type ExchangeRecord struct {
	SessionID  string        `json:"sessionId"`
	ExchangeID string        `json:"exchangeId"`
	Location   string        `json:"location"`
	Query      string        `json:"query"`
	Reply      string        `json:"reply"`
	Outcome    Outcome       `json:"outcome"`
	Error      string        `json:"error,omitempty"`
	StartedAt  time.Time     `json:"startedAt"`
	Duration   time.Duration `json:"duration"`
}

// Snapshot is the full transcript state handed to listeners after every mutation.
type Snapshot struct {
	SessionID string          `json:"sessionId"`
	State     State           `json:"state"`
	Location  string          `json:"location,omitempty"`
	Version   int             `json:"version"`
	Messages  []message.Block `json:"messages"`
}

// Listener receives snapshots in mutation order. It runs under the controller lock
// and must not call back into the Controller.
type Listener func(Snapshot)

type Options struct {
	Session Exchanger
	Tokens  identity.Source
	Prompts *prompts.Prompts
	Action  string        // outbound envelope action, default wire.DefaultAction
	Timeout time.Duration // bound on one exchange, default DefaultExchangeTimeout
	Metrics *metrics.Metrics
}

type exchange struct {
	id       string
	targetID string
	query    string
	started  time.Time
	cancel   context.CancelFunc
}

// Controller owns one transcript. Every mutation happens under mu, one event at a time;
// only one exchange may be in flight, tracked by the id of its placeholder block.
type Controller struct {
	mu        sync.Mutex
	conv      *Conversation
	blocks    []message.Block
	index     map[string]int // block id → position
	nextBlock int
	nextExch  int
	version   int
	active    *exchange
	closed    bool
	touched   time.Time

	listeners map[int]Listener
	nextSub   int
	onDone    []func(ExchangeRecord)

	opts   Options
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewController starts a transcript seeded with the welcome message.
func NewController(opts Options) *Controller {
	if opts.Prompts == nil {
		opts.Prompts = prompts.PromptsEN
	}
	if opts.Tokens == nil {
		opts.Tokens = identity.Anonymous{}
	}
	if opts.Action == "" {
		opts.Action = wire.DefaultAction
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultExchangeTimeout
	}
	ctx, cancel := context.WithCancel(context.Background())
	c := &Controller{
		conv:      NewConversation(),
		index:     make(map[string]int),
		listeners: make(map[int]Listener),
		touched:   time.Now(),
		opts:      opts,
		ctx:       ctx,
		cancel:    cancel,
	}
	c.append(message.BotText(c.newBlockID(), opts.Prompts.Welcome))
	return c
}

func (c *Controller) SessionID() string { return c.conv.SessionID() }

// Submit handles one user input without waiting for the backend.
// Blank input yields a *ValidationError and leaves the transcript untouched.
func (c *Controller) Submit(text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClosed
	}
	if c.active != nil {
		if _, err := c.conv.Route(text); errors.Is(err, ErrBlankInput) {
			return &ValidationError{Hint: c.opts.Prompts.InputHint}
		}
		return ErrExchangeInFlight
	}

	route, err := c.conv.Route(text)
	if err != nil {
		return &ValidationError{Hint: c.opts.Prompts.InputHint}
	}
	c.touched = time.Now()

	if route.Kind == RouteLocation {
		c.append(message.UserText(c.newBlockID(), text))
		c.append(message.BotText(c.newBlockID(), c.opts.Prompts.LocationAck))
		slog.Info("location captured", "session", c.conv.SessionID(), "location", route.Text)
		c.notify()
		return nil
	}

	c.append(message.UserText(c.newBlockID(), text))
	placeholder := message.BotPlaceholder(c.newBlockID())
	c.append(placeholder)

	c.nextExch++
	ctx, cancel := context.WithTimeout(c.ctx, c.opts.Timeout)
	x := &exchange{
		id:       fmt.Sprintf("x%d", c.nextExch),
		targetID: placeholder.ID,
		query:    route.Text,
		started:  time.Now(),
		cancel:   cancel,
	}
	c.active = x
	c.notify()

	req := wire.Request{
		Action:    c.opts.Action,
		QueryText: route.Text,
		SessionID: c.conv.SessionID(),
		Location:  c.conv.Location(),
	}
	slog.Info("exchange started", "session", req.SessionID, "exchange", x.id)

	c.wg.Add(1)
	go c.run(ctx, x.id, req)
	return nil
}

func (c *Controller) run(ctx context.Context, exchangeID string, req wire.Request) {
	defer c.wg.Done()

	token, err := c.opts.Tokens.Token(ctx)
	if err != nil {
		c.Apply(exchangeID, transport.Failure(transport.OpIdentity, err))
		return
	}
	if c.opts.Session == nil {
		c.Apply(exchangeID, transport.Failure(transport.OpDial, errors.New("no transport configured")))
		return
	}
	for evt := range c.opts.Session.Send(ctx, token, req) {
		c.Apply(exchangeID, evt)
	}
	// An exchanger that closes without a terminal event still has to release the placeholder.
	c.Apply(exchangeID, transport.Failure(transport.OpClosed, transport.ErrClosedEarly))
}

// Apply folds one event of the given exchange into the transcript.
// Events for any exchange other than the active one, or after Close, are dropped;
// the return value reports whether the event was accepted.
func (c *Controller) Apply(exchangeID string, evt wire.Event) bool {
	c.mu.Lock()
	if c.closed || c.active == nil || c.active.id != exchangeID {
		c.mu.Unlock()
		return false
	}
	c.opts.Metrics.Event(string(evt.Kind))

	x := c.active
	target := &c.blocks[c.index[x.targetID]]
	var outcome Outcome

	switch evt.Kind {
	case wire.EventHeartbeat:
		c.mu.Unlock()
		return true
	case wire.EventDelta:
		target.Text += evt.Text
		c.touched = time.Now()
		c.notify()
		c.mu.Unlock()
		return true
	case wire.EventReply:
		target.Text = evt.Text
		outcome = OutcomeReply
	case wire.EventEnd:
		outcome = OutcomeStream
	case wire.EventMalformed:
		target.Text = c.opts.Prompts.ExchangeFail
		outcome = OutcomeMalformed
	default:
		target.Text = c.opts.Prompts.ExchangeFail
		outcome = OutcomeTransport
	}
	target.Status = message.StatusReceived

	rec := ExchangeRecord{
		SessionID:  c.conv.SessionID(),
		ExchangeID: x.id,
		Location:   c.conv.Location(),
		Query:      x.query,
		Reply:      target.Text,
		Outcome:    outcome,
		StartedAt:  x.started,
		Duration:   time.Since(x.started),
	}
	if evt.Err != nil {
		rec.Error = evt.Err.Error()
	}
	c.active = nil
	x.cancel()
	c.touched = time.Now()
	c.notify()
	hooks := append([]func(ExchangeRecord){}, c.onDone...)
	c.mu.Unlock()

	c.opts.Metrics.ExchangeDone(string(outcome), rec.Duration)
	if evt.Failed() {
		slog.Warn("exchange failed", "session", rec.SessionID, "exchange", rec.ExchangeID, "outcome", outcome, "error", evt.Err, "duration", rec.Duration)
	} else {
		slog.Info("exchange completed", "session", rec.SessionID, "exchange", rec.ExchangeID, "outcome", outcome, "duration", rec.Duration)
	}
	for _, fn := range hooks {
		fn(rec)
	}
	return true
}

// ActiveExchange returns the id of the in-flight exchange, or "" when idle.
func (c *Controller) ActiveExchange() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active == nil {
		return ""
	}
	return c.active.id
}

// Messages returns a copy of the transcript in insertion order.
func (c *Controller) Messages() []message.Block {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.copyBlocks()
}

func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshot()
}

// Subscribe registers fn for every future mutation and returns its cancel func.
func (c *Controller) Subscribe(fn Listener) func() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return func() {}
	}
	id := c.nextSub
	c.nextSub++
	c.listeners[id] = fn
	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.listeners, id)
	}
}

// OnExchangeDone registers fn to run, outside the lock, after each exchange finishes.
func (c *Controller) OnExchangeDone(fn func(ExchangeRecord)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onDone = append(c.onDone, fn)
}

// IdleSince reports the last time the transcript changed or received input.
func (c *Controller) IdleSince() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.touched
}

func (c *Controller) Busy() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active != nil
}

// Close tears the transcript down: the open connection is closed and any later
// event is discarded. It waits for the exchange goroutine and is idempotent.
// Must not be called from a Listener.
func (c *Controller) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	if c.active != nil {
		slog.Info("exchange abandoned", "session", c.conv.SessionID(), "exchange", c.active.id)
		c.active.cancel()
	}
	c.cancel()
	c.listeners = make(map[int]Listener)
	c.mu.Unlock()

	c.wg.Wait()
}

func (c *Controller) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *Controller) newBlockID() string {
	c.nextBlock++
	return fmt.Sprintf("m%d", c.nextBlock)
}

func (c *Controller) append(b message.Block) {
	c.index[b.ID] = len(c.blocks)
	c.blocks = append(c.blocks, b)
}

func (c *Controller) copyBlocks() []message.Block {
	out := make([]message.Block, len(c.blocks))
	copy(out, c.blocks)
	return out
}

func (c *Controller) snapshot() Snapshot {
	return Snapshot{
		SessionID: c.conv.SessionID(),
		State:     c.conv.State(),
		Location:  c.conv.Location(),
		Version:   c.version,
		Messages:  c.copyBlocks(),
	}
}

func (c *Controller) notify() {
	c.version++
	if len(c.listeners) == 0 {
		return
	}
	snap := c.snapshot()
	for _, fn := range c.listeners {
		fn(snap)
	}
}
