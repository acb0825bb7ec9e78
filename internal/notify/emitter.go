// Package notify turns gated matches into notification drafts for the
// external delivery collaborator. It never sends anything itself: drafts
// are queued in the notification store and announced on a Redis channel.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"autoradar/matcher-service/internal/gate"
	"autoradar/matcher-service/internal/model"
)

// Event channels consumed by the delivery collaborator.
const (
	EventNotificationCreated = "EVENT_NOTIFICATION_CREATED"
	EventNotificationReady   = "EVENT_NOTIFICATION_READY"
)

// Store is the notification-store view the emitter needs.
type Store interface {
	// CreateNotification inserts the draft, returning false without error
	// when the (alert_id, listing_id) pair already exists.
	CreateNotification(ctx context.Context, n *model.Notification) (created bool, err error)
	// PromoteDeferred flips deferred drafts whose time has passed to
	// pending and returns them.
	PromoteDeferred(ctx context.Context, now time.Time) ([]model.Notification, error)
}

// AlertBookkeeper records trigger bookkeeping on the alert.
type AlertBookkeeper interface {
	RecordAlertTrigger(ctx context.Context, alertID string, at time.Time) error
}

// Publisher announces events to the delivery collaborator. Publishing is
// non-fatal: the delivery worker also polls the pending queue.
type Publisher interface {
	Publish(ctx context.Context, channel string, payload []byte) error
}

// Emitter builds and queues notification drafts.
type Emitter struct {
	store  Store
	alerts AlertBookkeeper
	gate   *gate.Gate
	pub    Publisher
}

// New returns a configured Emitter.
func New(store Store, alerts AlertBookkeeper, g *gate.Gate, pub Publisher) *Emitter {
	return &Emitter{store: store, alerts: alerts, gate: g, pub: pub}
}

// contentPayload is the structured snapshot embedded in each draft so the
// delivery collaborator can render without re-reading the stores.
type contentPayload struct {
	Listing struct {
		ID        string   `json:"id"`
		URL       string   `json:"url"`
		Make      string   `json:"make"`
		Model     string   `json:"model"`
		Year      *int     `json:"year,omitempty"`
		Price     *float64 `json:"price,omitempty"`
		Currency  string   `json:"currency,omitempty"`
		MileageKM *int     `json:"mileageKm,omitempty"`
		City      string   `json:"city,omitempty"`
		Source    string   `json:"source"`
	} `json:"listing"`
	Alert struct {
		ID       string   `json:"id"`
		Name     string   `json:"name"`
		Make     string   `json:"make,omitempty"`
		Model    string   `json:"model,omitempty"`
		PriceMin *float64 `json:"priceMin,omitempty"`
		PriceMax *float64 `json:"priceMax,omitempty"`
	} `json:"alert"`
	Match struct {
		Score           float64  `json:"score"`
		MatchedCriteria []string `json:"matchedCriteria"`
		Perfect         bool     `json:"perfect"`
	} `json:"match"`
}

// Emit runs the gate and, when allowed or deferred, queues a draft.
// Returns nil without error when the gate denies.
func (e *Emitter) Emit(ctx context.Context, a *model.Alert, l *model.Listing, mr *model.MatchResult, now time.Time) (*model.Notification, error) {
	decision, err := e.gate.Check(ctx, a, l.ID, now)
	if err != nil {
		return nil, fmt.Errorf("gate: %w", err)
	}
	if decision.Verdict == gate.Deny {
		return nil, nil
	}

	n := &model.Notification{
		UserID:    a.UserID,
		AlertID:   a.ID,
		ListingID: l.ID,
		Title:     Title(l),
		Message:   Message(a, l, mr),
		Content:   buildContent(a, l, mr),
		Priority:  priorityFor(mr),
		Status:    model.NotificationPending,
		CreatedAt: now,
	}
	if decision.Verdict == gate.Defer {
		until := decision.DeferUntil
		n.Status = model.NotificationDeferred
		n.DeferredUntil = &until
	}

	created, err := e.store.CreateNotification(ctx, n)
	if err != nil {
		return nil, fmt.Errorf("create notification: %w", err)
	}
	if !created {
		// Lost a race with a parallel worker for the same pair; the other
		// emission stands.
		return nil, nil
	}

	if err := e.alerts.RecordAlertTrigger(ctx, a.ID, now); err != nil {
		slog.Warn("recording alert trigger failed", "alertId", a.ID, "err", err)
	}

	e.publish(ctx, EventNotificationCreated, n)
	return n, nil
}

// PromoteDeferred releases due deferred drafts and announces them. Invoked
// by the scheduler sweep and the admin endpoint.
func (e *Emitter) PromoteDeferred(ctx context.Context, now time.Time) (int, error) {
	promoted, err := e.store.PromoteDeferred(ctx, now)
	if err != nil {
		return 0, fmt.Errorf("promote deferred: %w", err)
	}
	for i := range promoted {
		e.publish(ctx, EventNotificationReady, &promoted[i])
	}
	return len(promoted), nil
}

func (e *Emitter) publish(ctx context.Context, channel string, n *model.Notification) {
	event, _ := json.Marshal(map[string]string{
		"type":           channel,
		"notificationId": n.ID,
		"userId":         n.UserID,
		"alertId":        n.AlertID,
		"listingId":      n.ListingID,
		"priority":       n.Priority,
	})
	if err := e.pub.Publish(ctx, channel, event); err != nil {
		slog.Warn("publish failed", "channel", channel, "err", err)
	}
}

// Title renders the one-line headline, e.g.
// "BMW 320i (2020) — €25,000 in Munich".
func Title(l *model.Listing) string {
	s := l.Make
	if l.Model != "" {
		s += " " + l.Model
	}
	if l.Year != nil {
		s += fmt.Sprintf(" (%d)", *l.Year)
	}
	if l.Price != nil {
		s += fmt.Sprintf(" — %s%s", currencySymbol(l.Currency), formatPrice(*l.Price))
	}
	if l.City != "" {
		s += " in " + l.City
	}
	return s
}

// Message renders the human-readable body including the match score.
func Message(a *model.Alert, l *model.Listing, mr *model.MatchResult) string {
	msg := fmt.Sprintf("%s. Match score: %d%%", Title(l), int(mr.Score*100+0.5))
	if a.Name != "" {
		msg = fmt.Sprintf("New match for %q: %s", a.Name, msg)
	}
	return msg
}

func buildContent(a *model.Alert, l *model.Listing, mr *model.MatchResult) json.RawMessage {
	var p contentPayload
	p.Listing.ID = l.ID
	p.Listing.URL = l.URL
	p.Listing.Make = l.Make
	p.Listing.Model = l.Model
	p.Listing.Year = l.Year
	p.Listing.Price = l.Price
	p.Listing.Currency = l.Currency
	p.Listing.MileageKM = l.MileageKM
	p.Listing.City = l.City
	p.Listing.Source = l.SourceSite
	p.Alert.ID = a.ID
	p.Alert.Name = a.Name
	p.Alert.Make = a.Make
	p.Alert.Model = a.Model
	p.Alert.PriceMin = a.PriceMin
	p.Alert.PriceMax = a.PriceMax
	p.Match.Score = mr.Score
	p.Match.MatchedCriteria = mr.MatchedCriteria
	p.Match.Perfect = mr.Perfect
	raw, _ := json.Marshal(p)
	return raw
}

func priorityFor(mr *model.MatchResult) string {
	if mr.Perfect {
		return "high"
	}
	return "normal"
}

func currencySymbol(code string) string {
	switch code {
	case "", "EUR":
		return "€"
	case "USD":
		return "$"
	case "GBP":
		return "£"
	}
	return code + " "
}

// formatPrice renders 25000 as "25,000".
func formatPrice(v float64) string {
	n := int64(v + 0.5)
	if n < 1000 {
		return fmt.Sprintf("%d", n)
	}
	out := fmt.Sprintf("%03d", n%1000)
	for n /= 1000; n >= 1000; n /= 1000 {
		out = fmt.Sprintf("%03d,%s", n%1000, out)
	}
	return fmt.Sprintf("%d,%s", n, out)
}
