// Package sweeper periodically counts expired tokens per family and
// publishes the counts as a gauge.
package sweeper

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/sipico/admin-auth/internal/metrics"
)

// Counter counts tokens of a family expired at now.
type Counter interface {
	CountExpiredTokens(ctx context.Context, family string, now time.Time) (int, error)
}

// Sweeper refreshes the expired token gauge on a cron schedule.
type Sweeper struct {
	store    Counter
	families []string
	logger   *slog.Logger
	now      func() time.Time
	timeout  time.Duration

	mu   sync.Mutex
	cron *cron.Cron
}

// New creates a Sweeper for families. A nil logger uses slog.Default().
func New(store Counter, families []string, logger *slog.Logger) *Sweeper {
	if logger == nil {
		logger = slog.Default()
	}
	return &Sweeper{
		store:    store,
		families: families,
		logger:   logger,
		now:      time.Now,
		timeout:  30 * time.Second,
	}
}

// RunOnce counts expired tokens for every family and updates the gauge.
// A failing family is logged and skipped; the first error is returned.
func (s *Sweeper) RunOnce(ctx context.Context) (map[string]int, error) {
	now := s.now().UTC()
	counts := make(map[string]int, len(s.families))
	var firstErr error
	for _, family := range s.families {
		n, err := s.store.CountExpiredTokens(ctx, family, now)
		if err != nil {
			s.logger.Error("failed to count expired tokens", "family", family, "error", err)
			if firstErr == nil {
				firstErr = fmt.Errorf("count expired %s: %w", family, err)
			}
			continue
		}
		counts[family] = n
		metrics.SetExpiredTokens(family, n)
	}
	return counts, firstErr
}

// Start runs RunOnce on schedule, a standard five-field cron expression or a
// descriptor such as "@every 1h". It also runs once immediately.
func (s *Sweeper) Start(schedule string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cron != nil {
		return fmt.Errorf("sweeper already started")
	}

	c := cron.New(cron.WithParser(cron.NewParser(
		cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
	)))
	if _, err := c.AddFunc(schedule, s.tick); err != nil {
		return fmt.Errorf("invalid sweep schedule %q: %w", schedule, err)
	}
	c.Start()
	s.cron = c

	go s.tick()
	s.logger.Info("token sweeper started", "schedule", schedule, "families", s.families)
	return nil
}

// Stop halts the schedule and waits for a running sweep until ctx is done.
func (s *Sweeper) Stop(ctx context.Context) {
	s.mu.Lock()
	c := s.cron
	s.cron = nil
	s.mu.Unlock()
	if c == nil {
		return
	}
	select {
	case <-c.Stop().Done():
	case <-ctx.Done():
	}
}

func (s *Sweeper) tick() {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	if _, err := s.RunOnce(ctx); err != nil {
		s.logger.Warn("token sweep incomplete", "error", err)
	}
}
