package gateway

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// Sweeper closes idle conversations on a cron schedule.
type Sweeper struct {
	mu       sync.Mutex
	cron     *cron.Cron
	entry    cron.EntryID
	registry *Registry
	maxIdle  func() time.Duration
}

// NewSweeper schedules the sweep. The schedule takes an optional seconds field
// or a descriptor such as "@every 1m"; maxIdle is read on every run so reloads apply.
func NewSweeper(schedule string, registry *Registry, maxIdle func() time.Duration) (*Sweeper, error) {
	s := &Sweeper{
		cron:     cron.New(cron.WithParser(cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor))),
		registry: registry,
		maxIdle:  maxIdle,
	}
	if err := s.Reschedule(schedule); err != nil {
		return nil, err
	}
	return s, nil
}

// Reschedule replaces the sweep schedule.
func (s *Sweeper) Reschedule(schedule string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, err := s.cron.AddFunc(schedule, func() { s.Run() })
	if err != nil {
		return fmt.Errorf("invalid sweep schedule %q: %w", schedule, err)
	}
	if s.entry != 0 {
		s.cron.Remove(s.entry)
	}
	s.entry = id
	return nil
}

// Run performs one sweep.
func (s *Sweeper) Run() int {
	maxIdle := s.maxIdle()
	if maxIdle <= 0 {
		return 0
	}
	n := s.registry.SweepIdle(maxIdle)
	if n > 0 {
		slog.Info("idle conversations closed", "count", n, "maxIdle", maxIdle)
	}
	return n
}

func (s *Sweeper) Start() {
	s.cron.Start()
	slog.Info("idle sweeper started", "entries", len(s.cron.Entries()))
}

func (s *Sweeper) Stop() {
	<-s.cron.Stop().Done()
}
