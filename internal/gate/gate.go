// Package gate decides whether a match is allowed to produce a
// notification: per-user and per-alert daily caps, (alert, listing)
// idempotency, and quiet-hour deferral.
package gate

import (
	"context"
	"fmt"
	"time"

	"autoradar/matcher-service/internal/model"
)

// Verdict is the outcome of a gate check.
type Verdict int

const (
	// Allow lets the emitter create a pending notification.
	Allow Verdict = iota
	// Deny suppresses the notification entirely.
	Deny
	// Defer creates the notification scheduled for DeferUntil instead of
	// dropping it (quiet hours).
	Defer
)

// Decision carries the verdict plus the deny reason or deferral time.
type Decision struct {
	Verdict    Verdict
	Reason     string
	DeferUntil time.Time
}

// Counts is the notification-store view the gate needs. All counts are
// "notifications created since the given instant".
type Counts interface {
	NotificationExists(ctx context.Context, alertID, listingID string) (bool, error)
	UserNotificationsSince(ctx context.Context, userID string, since time.Time) (int, error)
	AlertNotificationsSince(ctx context.Context, alertID string, since time.Time) (int, error)
}

// Config holds the fallback caps applied when an alert or user carries none.
type Config struct {
	DefaultUserMaxPerDay  int
	DefaultAlertMaxPerDay int
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{DefaultUserMaxPerDay: 10, DefaultAlertMaxPerDay: 5}
}

// Gate enforces the notification limits against a Counts store.
type Gate struct {
	counts Counts
	cfg    Config
}

// New returns a configured Gate.
func New(counts Counts, cfg Config) *Gate {
	return &Gate{counts: counts, cfg: cfg}
}

// Check runs all gate rules for one (alert, listing) pair at the given
// instant. The idempotency rule wins over everything: a listing never
// re-notifies the same alert, regardless of counters or quiet hours.
func (g *Gate) Check(ctx context.Context, a *model.Alert, listingID string, now time.Time) (Decision, error) {
	exists, err := g.counts.NotificationExists(ctx, a.ID, listingID)
	if err != nil {
		return Decision{}, fmt.Errorf("idempotency check: %w", err)
	}
	if exists {
		return Decision{Verdict: Deny, Reason: "already notified for this listing"}, nil
	}

	midnight := now.UTC().Truncate(24 * time.Hour)

	userMax := a.UserMaxPerDay
	if userMax <= 0 {
		userMax = g.cfg.DefaultUserMaxPerDay
	}
	userCount, err := g.counts.UserNotificationsSince(ctx, a.UserID, midnight)
	if err != nil {
		return Decision{}, fmt.Errorf("user daily count: %w", err)
	}
	if userCount >= userMax {
		return Decision{Verdict: Deny, Reason: fmt.Sprintf("user daily cap reached (%d/%d)", userCount, userMax)}, nil
	}

	alertMax := a.MaxPerDay
	if alertMax <= 0 {
		alertMax = g.cfg.DefaultAlertMaxPerDay
	}
	alertCount, err := g.counts.AlertNotificationsSince(ctx, a.ID, midnight)
	if err != nil {
		return Decision{}, fmt.Errorf("alert daily count: %w", err)
	}
	if alertCount >= alertMax {
		return Decision{Verdict: Deny, Reason: fmt.Sprintf("alert daily cap reached (%d/%d)", alertCount, alertMax)}, nil
	}

	if InQuietWindow(a.Quiet, now) {
		return Decision{Verdict: Defer, DeferUntil: QuietWindowEnd(a.Quiet, now)}, nil
	}

	return Decision{Verdict: Allow}, nil
}
