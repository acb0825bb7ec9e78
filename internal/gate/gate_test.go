package gate

import (
	"context"
	"fmt"
	"testing"
	"time"

	"autoradar/matcher-service/internal/model"
)

// fakeCounts is an in-memory Counts backed by created notifications.
type fakeCounts struct {
	pairs       map[string]bool // "alertID/listingID"
	userCounts  map[string]int
	alertCounts map[string]int
	err         error
}

func newFakeCounts() *fakeCounts {
	return &fakeCounts{
		pairs:       map[string]bool{},
		userCounts:  map[string]int{},
		alertCounts: map[string]int{},
	}
}

func (f *fakeCounts) NotificationExists(_ context.Context, alertID, listingID string) (bool, error) {
	return f.pairs[alertID+"/"+listingID], f.err
}

func (f *fakeCounts) UserNotificationsSince(_ context.Context, userID string, _ time.Time) (int, error) {
	return f.userCounts[userID], f.err
}

func (f *fakeCounts) AlertNotificationsSince(_ context.Context, alertID string, _ time.Time) (int, error) {
	return f.alertCounts[alertID], f.err
}

func testAlert() *model.Alert {
	return &model.Alert{
		ID:            "alert-1",
		UserID:        "user-1",
		MaxPerDay:     5,
		UserMaxPerDay: 10,
	}
}

var noon = time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

// ── happy path ─────────────────────────────────────────────────────────────

func TestCheck_Allows(t *testing.T) {
	g := New(newFakeCounts(), DefaultConfig())
	d, err := g.Check(context.Background(), testAlert(), "listing-1", noon)
	if err != nil {
		t.Fatalf("Check returned error: %v", err)
	}
	if d.Verdict != Allow {
		t.Errorf("verdict = %v, want Allow (%s)", d.Verdict, d.Reason)
	}
}

// ── idempotency ────────────────────────────────────────────────────────────

func TestCheck_DeniesExistingPair(t *testing.T) {
	counts := newFakeCounts()
	counts.pairs["alert-1/listing-1"] = true

	g := New(counts, DefaultConfig())
	d, err := g.Check(context.Background(), testAlert(), "listing-1", noon)
	if err != nil {
		t.Fatalf("Check returned error: %v", err)
	}
	if d.Verdict != Deny {
		t.Errorf("already-notified pair must be denied, got %v", d.Verdict)
	}
}

func TestCheck_IdempotencyWinsOverQuietHours(t *testing.T) {
	counts := newFakeCounts()
	counts.pairs["alert-1/listing-1"] = true

	a := testAlert()
	a.Quiet = model.QuietHours{Enabled: true, Start: 0, End: 1439}

	g := New(counts, DefaultConfig())
	d, _ := g.Check(context.Background(), a, "listing-1", noon)
	if d.Verdict != Deny {
		t.Errorf("existing pair inside quiet hours must deny, not defer, got %v", d.Verdict)
	}
}

// ── daily caps ─────────────────────────────────────────────────────────────

func TestCheck_AlertCapBoundary(t *testing.T) {
	a := testAlert()
	a.MaxPerDay = 3

	counts := newFakeCounts()
	g := New(counts, DefaultConfig())

	// N-1 existing notifications: the Nth is allowed.
	counts.alertCounts["alert-1"] = 2
	if d, _ := g.Check(context.Background(), a, "l1", noon); d.Verdict != Allow {
		t.Errorf("count 2 of max 3 should allow, got %v (%s)", d.Verdict, d.Reason)
	}

	// N existing: the (N+1)-th is denied.
	counts.alertCounts["alert-1"] = 3
	if d, _ := g.Check(context.Background(), a, "l2", noon); d.Verdict != Deny {
		t.Errorf("count 3 of max 3 should deny, got %v", d.Verdict)
	}
}

func TestCheck_UserCapBoundary(t *testing.T) {
	a := testAlert()
	a.UserMaxPerDay = 4

	counts := newFakeCounts()
	g := New(counts, DefaultConfig())

	counts.userCounts["user-1"] = 3
	if d, _ := g.Check(context.Background(), a, "l1", noon); d.Verdict != Allow {
		t.Errorf("count 3 of max 4 should allow, got %v (%s)", d.Verdict, d.Reason)
	}

	counts.userCounts["user-1"] = 4
	if d, _ := g.Check(context.Background(), a, "l2", noon); d.Verdict != Deny {
		t.Errorf("count 4 of max 4 should deny, got %v", d.Verdict)
	}
}

func TestCheck_DefaultCapsApplyWhenUnset(t *testing.T) {
	a := testAlert()
	a.MaxPerDay = 0
	a.UserMaxPerDay = 0

	counts := newFakeCounts()
	counts.alertCounts["alert-1"] = 5 // default alert cap

	g := New(counts, DefaultConfig())
	if d, _ := g.Check(context.Background(), a, "l1", noon); d.Verdict != Deny {
		t.Errorf("default alert cap of 5 should deny at count 5, got %v", d.Verdict)
	}
}

// ── quiet hours ────────────────────────────────────────────────────────────

func TestCheck_QuietHoursDefer(t *testing.T) {
	a := testAlert()
	a.Quiet = model.QuietHours{Enabled: true, Start: 22 * 60, End: 8 * 60}

	lateNight := time.Date(2025, 3, 10, 23, 10, 0, 0, time.UTC)
	g := New(newFakeCounts(), DefaultConfig())
	d, err := g.Check(context.Background(), a, "l1", lateNight)
	if err != nil {
		t.Fatalf("Check returned error: %v", err)
	}
	if d.Verdict != Defer {
		t.Fatalf("match inside quiet hours should defer, got %v", d.Verdict)
	}
	want := time.Date(2025, 3, 11, 8, 0, 0, 0, time.UTC)
	if !d.DeferUntil.Equal(want) {
		t.Errorf("DeferUntil = %v, want %v", d.DeferUntil, want)
	}
}

func TestCheck_OutsideQuietHoursAllows(t *testing.T) {
	a := testAlert()
	a.Quiet = model.QuietHours{Enabled: true, Start: 22 * 60, End: 8 * 60}

	g := New(newFakeCounts(), DefaultConfig())
	if d, _ := g.Check(context.Background(), a, "l1", noon); d.Verdict != Allow {
		t.Errorf("noon is outside 22:00-08:00, should allow, got %v", d.Verdict)
	}
}

// ── store errors ───────────────────────────────────────────────────────────

func TestCheck_PropagatesStoreError(t *testing.T) {
	counts := newFakeCounts()
	counts.err = fmt.Errorf("connection refused")

	g := New(counts, DefaultConfig())
	if _, err := g.Check(context.Background(), testAlert(), "l1", noon); err == nil {
		t.Error("store error must propagate")
	}
}
