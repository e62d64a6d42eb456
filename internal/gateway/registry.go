package gateway

import (
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/lhdbsbz/berrychat/internal/chat"
	"github.com/lhdbsbz/berrychat/internal/metrics"
)

// Factory builds the controller for a new conversation.
type Factory func() *chat.Controller

// Summary is the list view of a live conversation.
type Summary struct {
	ID        string     `json:"id"`
	State     chat.State `json:"state"`
	Location  string     `json:"location,omitempty"`
	Messages  int        `json:"messages"`
	Busy      bool       `json:"busy"`
	CreatedAt time.Time  `json:"createdAt"`
	IdleSince time.Time  `json:"idleSince"`
}

type entry struct {
	ctrl      *chat.Controller
	createdAt time.Time
}

// Registry holds the live conversations of the gateway, keyed by session id.
type Registry struct {
	mu      sync.Mutex
	convs   map[string]*entry
	factory Factory
	metrics *metrics.Metrics
	onClose []func(id string)
}

func NewRegistry(factory Factory, m *metrics.Metrics) *Registry {
	return &Registry{
		convs:   make(map[string]*entry),
		factory: factory,
		metrics: m,
	}
}

// OnClose registers fn to run after a conversation is closed and forgotten.
func (r *Registry) OnClose(fn func(id string)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onClose = append(r.onClose, fn)
}

func (r *Registry) Create() *chat.Controller {
	ctrl := r.factory()
	r.mu.Lock()
	r.convs[ctrl.SessionID()] = &entry{ctrl: ctrl, createdAt: time.Now()}
	r.mu.Unlock()
	r.metrics.ConversationOpened()
	slog.Info("conversation opened", "id", ctrl.SessionID())
	return ctrl
}

func (r *Registry) Get(id string) (*chat.Controller, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.convs[id]
	if !ok {
		return nil, chat.ErrNotFound
	}
	return e.ctrl, nil
}

// List returns the live conversations, oldest first.
func (r *Registry) List() []Summary {
	r.mu.Lock()
	entries := make([]*entry, 0, len(r.convs))
	for _, e := range r.convs {
		entries = append(entries, e)
	}
	r.mu.Unlock()

	out := make([]Summary, 0, len(entries))
	for _, e := range entries {
		snap := e.ctrl.Snapshot()
		out = append(out, Summary{
			ID:        snap.SessionID,
			State:     snap.State,
			Location:  snap.Location,
			Messages:  len(snap.Messages),
			Busy:      e.ctrl.Busy(),
			CreatedAt: e.createdAt,
			IdleSince: e.ctrl.IdleSince(),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.convs)
}

// Remove closes a conversation and forgets it.
func (r *Registry) Remove(id string) error {
	r.mu.Lock()
	e, ok := r.convs[id]
	if ok {
		delete(r.convs, id)
	}
	hooks := append([]func(string){}, r.onClose...)
	r.mu.Unlock()
	if !ok {
		return chat.ErrNotFound
	}

	e.ctrl.Close()
	r.metrics.ConversationClosed()
	for _, fn := range hooks {
		fn(id)
	}
	slog.Info("conversation closed", "id", id)
	return nil
}

// SweepIdle closes every conversation untouched for longer than maxIdle and returns how many went.
// A conversation with an exchange in flight is left alone; exchange.timeout bounds it.
func (r *Registry) SweepIdle(maxIdle time.Duration) int {
	cutoff := time.Now().Add(-maxIdle)
	r.mu.Lock()
	var stale []string
	for id, e := range r.convs {
		if !e.ctrl.Busy() && e.ctrl.IdleSince().Before(cutoff) {
			stale = append(stale, id)
		}
	}
	r.mu.Unlock()

	n := 0
	for _, id := range stale {
		if r.Remove(id) == nil {
			n++
		}
	}
	return n
}

// CloseAll closes every live conversation, used on shutdown.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	ids := make([]string, 0, len(r.convs))
	for id := range r.convs {
		ids = append(ids, id)
	}
	r.mu.Unlock()
	for _, id := range ids {
		_ = r.Remove(id)
	}
}
