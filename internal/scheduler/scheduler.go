// Package scheduler wires up the cron jobs that drive the matcher: the
// periodic matching run, the deferred-notification sweep, and daily
// listing maintenance.
package scheduler

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/robfig/cron/v3"
)

// Maintainer covers listing lifecycle housekeeping.
type Maintainer interface {
	DeactivateStale(ctx context.Context, olderThan time.Duration) (int64, error)
	DeleteExpired(ctx context.Context, olderThan time.Duration) (int64, error)
}

// Sweeper promotes due deferred notifications.
type Sweeper interface {
	PromoteDeferred(ctx context.Context, now time.Time) (int, error)
}

// Config holds the cadence and maintenance windows.
type Config struct {
	MatchInterval time.Duration
	StaleAfter    time.Duration
	Retention     time.Duration
}

// Scheduler wraps robfig/cron and manages the matcher's periodic work.
type Scheduler struct {
	cron       *cron.Cron
	runMatcher func(ctx context.Context)
	sweeper    Sweeper
	maint      Maintainer
	cfg        Config
}

// New creates a Scheduler. runMatcher is invoked once per tick and at
// startup.
func New(runMatcher func(ctx context.Context), sweeper Sweeper, maint Maintainer, cfg Config) *Scheduler {
	return &Scheduler{
		cron:       cron.New(cron.WithLogger(cron.DefaultLogger)),
		runMatcher: runMatcher,
		sweeper:    sweeper,
		maint:      maint,
		cfg:        cfg,
	}
}

// Start registers all jobs and starts the scheduler. A matching run fires
// immediately so a restart does not wait a full interval.
func (s *Scheduler) Start(ctx context.Context) error {
	matchSpec := fmt.Sprintf("@every %s", s.cfg.MatchInterval)
	if _, err := s.cron.AddFunc(matchSpec, func() { s.runMatcher(ctx) }); err != nil {
		return fmt.Errorf("cron.AddFunc(match): %w", err)
	}
	if _, err := s.cron.AddFunc("@every 1m", func() { s.runSweep(ctx) }); err != nil {
		return fmt.Errorf("cron.AddFunc(sweep): %w", err)
	}
	if _, err := s.cron.AddFunc("@daily", func() { s.runMaintenance(ctx) }); err != nil {
		return fmt.Errorf("cron.AddFunc(maintenance): %w", err)
	}

	s.cron.Start()
	log.Printf("[scheduler] Cron started — match: %s, sweep: @every 1m, maintenance: @daily", matchSpec)

	// Run immediately on startup (non-blocking)
	go s.runMatcher(ctx)

	return nil
}

// Stop gracefully shuts down the scheduler.
func (s *Scheduler) Stop() {
	s.cron.Stop()
	log.Println("[scheduler] Cron stopped")
}

func (s *Scheduler) runSweep(ctx context.Context) {
	promoted, err := s.sweeper.PromoteDeferred(ctx, time.Now().UTC())
	if err != nil {
		log.Printf("[scheduler] Deferred sweep error: %v", err)
		return
	}
	if promoted > 0 {
		log.Printf("[scheduler] Deferred sweep promoted %d notification(s)", promoted)
	}
}

func (s *Scheduler) runMaintenance(ctx context.Context) {
	deactivated, err := s.maint.DeactivateStale(ctx, s.cfg.StaleAfter)
	if err != nil {
		log.Printf("[scheduler] DeactivateStale error: %v", err)
	} else if deactivated > 0 {
		log.Printf("[scheduler] Deactivated %d stale listing(s)", deactivated)
	}

	deleted, err := s.maint.DeleteExpired(ctx, s.cfg.Retention)
	if err != nil {
		log.Printf("[scheduler] DeleteExpired error: %v", err)
	} else if deleted > 0 {
		log.Printf("[scheduler] Deleted %d expired listing(s)", deleted)
	}
}
