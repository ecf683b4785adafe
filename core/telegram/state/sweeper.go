package state

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/m3rciful/eventbot/core/logger"
	"github.com/m3rciful/eventbot/core/metrics"
)

// Sweeper periodically evicts idle sessions on a cron schedule.
type Sweeper struct {
	cron    *cron.Cron
	mgr     Manager
	maxIdle time.Duration
}

// NewSweeper schedules mgr.Sweep according to spec (e.g. "@every 1m").
func NewSweeper(mgr Manager, maxIdle time.Duration, spec string) (*Sweeper, error) {
	s := &Sweeper{
		cron:    cron.New(),
		mgr:     mgr,
		maxIdle: maxIdle,
	}
	if _, err := s.cron.AddFunc(spec, func() { s.RunOnce(context.Background()) }); err != nil {
		return nil, fmt.Errorf("sweeper schedule %q: %w", spec, err)
	}
	return s, nil
}

// Start launches the cron scheduler in its own goroutine.
func (s *Sweeper) Start() {
	s.cron.Start()
}

// Stop halts the scheduler and waits for a running sweep to finish.
func (s *Sweeper) Stop() {
	<-s.cron.Stop().Done()
}

// RunOnce performs a single sweep and returns the number of evicted sessions.
func (s *Sweeper) RunOnce(ctx context.Context) int {
	start := time.Now()
	n, err := s.mgr.Sweep(ctx, s.maxIdle)
	if err != nil {
		logger.Sessions.Warn("sweep failed",
			slog.String("event", "sessions.sweep"),
			slog.String("err", err.Error()),
		)
		return 0
	}
	metrics.SessionsEvicted(n)
	if n > 0 {
		logger.Sessions.Info("idle sessions evicted",
			slog.String("event", "sessions.sweep"),
			slog.Int("evicted", n),
			slog.Duration("duration", logger.RoundMS(time.Since(start))),
		)
	}
	return n
}
