package gate

import (
	"testing"
	"time"

	"autoradar/matcher-service/internal/model"
)

func at(hour, min int) time.Time {
	return time.Date(2025, 3, 10, hour, min, 0, 0, time.UTC)
}

// ── InQuietWindow ──────────────────────────────────────────────────────────

func TestInQuietWindow_Daytime(t *testing.T) {
	q := model.QuietHours{Enabled: true, Start: 9 * 60, End: 17 * 60}
	cases := []struct {
		h, m   int
		inside bool
	}{
		{8, 59, false},
		{9, 0, true},
		{12, 30, true},
		{16, 59, true},
		{17, 0, false}, // end is exclusive
		{22, 0, false},
	}
	for _, c := range cases {
		if got := InQuietWindow(q, at(c.h, c.m)); got != c.inside {
			t.Errorf("InQuietWindow(09:00-17:00, %02d:%02d) = %v, want %v", c.h, c.m, got, c.inside)
		}
	}
}

func TestInQuietWindow_OvernightWraparound(t *testing.T) {
	q := model.QuietHours{Enabled: true, Start: 22 * 60, End: 8 * 60}
	cases := []struct {
		h, m   int
		inside bool
	}{
		{21, 59, false},
		{22, 0, true},
		{23, 10, true},
		{0, 0, true},
		{3, 30, true},
		{7, 59, true},
		{8, 0, false},
		{12, 0, false},
	}
	for _, c := range cases {
		if got := InQuietWindow(q, at(c.h, c.m)); got != c.inside {
			t.Errorf("InQuietWindow(22:00-08:00, %02d:%02d) = %v, want %v", c.h, c.m, got, c.inside)
		}
	}
}

func TestInQuietWindow_Disabled(t *testing.T) {
	q := model.QuietHours{Enabled: false, Start: 0, End: 1439}
	if InQuietWindow(q, at(12, 0)) {
		t.Error("disabled quiet hours must never match")
	}
}

func TestInQuietWindow_ZeroWidth(t *testing.T) {
	q := model.QuietHours{Enabled: true, Start: 600, End: 600}
	if InQuietWindow(q, at(10, 0)) {
		t.Error("zero-width window must never match")
	}
}

// ── QuietWindowEnd ─────────────────────────────────────────────────────────

func TestQuietWindowEnd_SameDay(t *testing.T) {
	q := model.QuietHours{Enabled: true, Start: 9 * 60, End: 17 * 60}
	end := QuietWindowEnd(q, at(12, 30))
	if want := at(17, 0); !end.Equal(want) {
		t.Errorf("QuietWindowEnd = %v, want %v", end, want)
	}
}

func TestQuietWindowEnd_OvernightBeforeMidnight(t *testing.T) {
	// A match at 23:10 inside a 22:00-08:00 window defers to 08:00 the
	// next morning.
	q := model.QuietHours{Enabled: true, Start: 22 * 60, End: 8 * 60}
	end := QuietWindowEnd(q, at(23, 10))
	want := time.Date(2025, 3, 11, 8, 0, 0, 0, time.UTC)
	if !end.Equal(want) {
		t.Errorf("QuietWindowEnd = %v, want %v", end, want)
	}
}

func TestQuietWindowEnd_OvernightAfterMidnight(t *testing.T) {
	q := model.QuietHours{Enabled: true, Start: 22 * 60, End: 8 * 60}
	end := QuietWindowEnd(q, at(3, 30))
	if want := at(8, 0); !end.Equal(want) {
		t.Errorf("QuietWindowEnd = %v, want %v", end, want)
	}
}
