package gate

import (
	"time"

	"autoradar/matcher-service/internal/model"
)

// InQuietWindow reports whether t (UTC) falls inside the [Start, End)
// minutes-of-day window. Overnight windows (Start > End, e.g. 22:00–08:00)
// wrap past midnight. A zero-width window never matches.
func InQuietWindow(q model.QuietHours, t time.Time) bool {
	if !q.Enabled || q.Start == q.End {
		return false
	}
	m := t.UTC().Hour()*60 + t.UTC().Minute()
	if q.Start < q.End {
		return m >= q.Start && m < q.End
	}
	return m >= q.Start || m < q.End
}

// QuietWindowEnd returns the next moment at or after t when the quiet
// window closes. Only meaningful when InQuietWindow(q, t) is true.
func QuietWindowEnd(q model.QuietHours, t time.Time) time.Time {
	t = t.UTC()
	end := time.Date(t.Year(), t.Month(), t.Day(), q.End/60, q.End%60, 0, 0, time.UTC)
	if !end.After(t) {
		end = end.Add(24 * time.Hour)
	}
	return end
}
