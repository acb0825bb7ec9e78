// Package runner orchestrates matching runs: active alerts × candidate
// listings through the score → gate → emit pipeline, with a MatchRun audit
// record around each batch.
package runner

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"autoradar/matcher-service/internal/match"
	"autoradar/matcher-service/internal/model"
)

// ErrStoreUnavailable aborts a run after repeated consecutive store
// failures, on the assumption the store is globally down rather than a
// single pair misbehaving.
var ErrStoreUnavailable = errors.New("notification store unavailable")

// ListingSource is the listing-store view the runner needs.
type ListingSource interface {
	GetListing(ctx context.Context, id string) (*model.Listing, error)
	// CandidatesSince returns active, non-duplicate listings scraped since
	// the given instant, oldest first. limit 0 means no limit.
	CandidatesSince(ctx context.Context, since time.Time, limit int) ([]model.Listing, error)
}

// AlertSource provides active alerts joined to active users.
type AlertSource interface {
	ActiveAlerts(ctx context.Context) ([]model.Alert, error)
}

// RunLog persists MatchRun records.
type RunLog interface {
	CreateRun(ctx context.Context, run *model.MatchRun) error
	FinalizeRun(ctx context.Context, run *model.MatchRun) error
	// LastSuccessfulRun returns the start time of the most recent completed
	// run, or nil when none exists.
	LastSuccessfulRun(ctx context.Context) (*time.Time, error)
}

// Emitter is the notification pipeline behind the gate.
type Emitter interface {
	Emit(ctx context.Context, a *model.Alert, l *model.Listing, mr *model.MatchResult, now time.Time) (*model.Notification, error)
}

// Config bounds one run.
type Config struct {
	Workers                   int
	Lookback                  time.Duration
	MaxListings               int
	MaxConsecutiveStoreErrors int
}

// Options override the candidate window for a single run.
type Options struct {
	Since       *time.Time
	MaxListings int // 0 = use Config.MaxListings
}

// Runner executes matching runs.
type Runner struct {
	listings ListingSource
	alerts   AlertSource
	runs     RunLog
	scorer   *match.Scorer
	emitter  Emitter
	cfg      Config
}

// New returns a configured Runner.
func New(listings ListingSource, alerts AlertSource, runs RunLog, scorer *match.Scorer, emitter Emitter, cfg Config) *Runner {
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	if cfg.Lookback <= 0 {
		cfg.Lookback = 2 * time.Hour
	}
	if cfg.MaxConsecutiveStoreErrors < 1 {
		cfg.MaxConsecutiveStoreErrors = 10
	}
	return &Runner{listings: listings, alerts: alerts, runs: runs, scorer: scorer, emitter: emitter, cfg: cfg}
}

// Run executes one matching run. The MatchRun record is finalized on every
// exit path — it never stays in running state. Pair-level store errors are
// logged and skipped; the run only fails when the store looks globally
// down or a fetch fails outright. Cancelling ctx aborts between pair
// evaluations and marks the run cancelled.
func (r *Runner) Run(ctx context.Context, opts Options) (*model.MatchRun, error) {
	now := time.Now().UTC()
	run := &model.MatchRun{
		ID:        uuid.NewString(),
		StartedAt: now,
		Status:    model.RunRunning,
	}
	if err := r.runs.CreateRun(ctx, run); err != nil {
		return nil, fmt.Errorf("create match run: %w", err)
	}

	since, err := r.candidateWindow(ctx, opts, now)
	if err != nil {
		return run, r.finalize(ctx, run, model.RunFailed, err)
	}

	maxListings := opts.MaxListings
	if maxListings == 0 {
		maxListings = r.cfg.MaxListings
	}

	alerts, err := r.alerts.ActiveAlerts(ctx)
	if err != nil {
		return run, r.finalize(ctx, run, model.RunFailed, fmt.Errorf("fetch active alerts: %w", err))
	}
	listings, err := r.listings.CandidatesSince(ctx, since, maxListings)
	if err != nil {
		return run, r.finalize(ctx, run, model.RunFailed, fmt.Errorf("fetch candidates: %w", err))
	}

	log.Printf("[runner] run %s: %d alert(s) × %d listing(s) since %s",
		run.ID, len(alerts), len(listings), since.Format(time.RFC3339))

	var matches, notifications, processed atomic.Int64
	var errStreak atomic.Int32

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.cfg.Workers)

	for i := range alerts {
		a := &alerts[i]
		if gctx.Err() != nil {
			break
		}
		if err := match.ValidateAlert(a); err != nil {
			slog.Warn("skipping alert with invalid criteria", "alertId", a.ID, "err", err)
			continue
		}
		g.Go(func() error {
			processed.Add(1)
			for j := range listings {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				l := &listings[j]
				mr, err := r.scorer.Score(a, l)
				if err != nil || mr == nil || !mr.Actionable {
					continue
				}
				matches.Add(1)
				n, err := r.emitter.Emit(gctx, a, l, mr, now)
				if err != nil {
					slog.Warn("emit failed for pair", "alertId", a.ID, "listingId", l.ID, "err", err)
					if int(errStreak.Add(1)) >= r.cfg.MaxConsecutiveStoreErrors {
						return fmt.Errorf("%w: %d consecutive failures", ErrStoreUnavailable, errStreak.Load())
					}
					continue
				}
				errStreak.Store(0)
				if n != nil {
					notifications.Add(1)
				}
			}
			return nil
		})
	}

	waitErr := g.Wait()

	run.AlertsProcessed = int(processed.Load())
	run.ListingsChecked = len(listings)
	run.MatchesFound = int(matches.Load())
	run.NotificationsCreated = int(notifications.Load())

	switch {
	case waitErr == nil && ctx.Err() == nil:
		return run, r.finalize(ctx, run, model.RunCompleted, nil)
	case ctx.Err() != nil:
		// Notifications already emitted stay valid; the record notes the
		// abort for operators.
		return run, r.finalize(context.WithoutCancel(ctx), run, model.RunCancelled, ctx.Err())
	default:
		return run, r.finalize(ctx, run, model.RunFailed, waitErr)
	}
}

// ProcessListing runs the pipeline for one listing against all active
// alerts, immediately after a scraper inserts it. No MatchRun record is
// written; run records audit batch executions only. Returns the number of
// notifications created.
func (r *Runner) ProcessListing(ctx context.Context, listingID string) (int, error) {
	l, err := r.listings.GetListing(ctx, listingID)
	if err != nil {
		return 0, fmt.Errorf("get listing %s: %w", listingID, err)
	}
	if l == nil || !l.IsActive || l.IsDuplicate {
		return 0, nil
	}

	alerts, err := r.alerts.ActiveAlerts(ctx)
	if err != nil {
		return 0, fmt.Errorf("fetch active alerts: %w", err)
	}

	now := time.Now().UTC()
	created := 0
	for i := range alerts {
		a := &alerts[i]
		if err := match.ValidateAlert(a); err != nil {
			slog.Warn("skipping alert with invalid criteria", "alertId", a.ID, "err", err)
			continue
		}
		mr, err := r.scorer.Score(a, l)
		if err != nil || mr == nil || !mr.Actionable {
			continue
		}
		n, err := r.emitter.Emit(ctx, a, l, mr, now)
		if err != nil {
			slog.Warn("emit failed for pair", "alertId", a.ID, "listingId", l.ID, "err", err)
			continue
		}
		if n != nil {
			created++
		}
	}
	return created, nil
}

func (r *Runner) candidateWindow(ctx context.Context, opts Options, now time.Time) (time.Time, error) {
	if opts.Since != nil {
		return *opts.Since, nil
	}
	last, err := r.runs.LastSuccessfulRun(ctx)
	if err != nil {
		return time.Time{}, fmt.Errorf("last successful run: %w", err)
	}
	if last != nil {
		return *last, nil
	}
	return now.Add(-r.cfg.Lookback), nil
}

func (r *Runner) finalize(ctx context.Context, run *model.MatchRun, status string, cause error) error {
	done := time.Now().UTC()
	run.Status = status
	run.CompletedAt = &done
	if cause != nil {
		run.Error = cause.Error()
	}
	if err := r.runs.FinalizeRun(ctx, run); err != nil {
		log.Printf("[runner] finalizing run %s as %s failed: %v", run.ID, status, err)
	}
	if cause != nil {
		log.Printf("[runner] run %s %s: %v", run.ID, status, cause)
	} else {
		log.Printf("[runner] run %s completed — alerts=%d listings=%d matches=%d notifications=%d",
			run.ID, run.AlertsProcessed, run.ListingsChecked, run.MatchesFound, run.NotificationsCreated)
	}
	return cause
}
