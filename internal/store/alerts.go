package store

import (
	"context"
	"fmt"
	"time"

	"autoradar/matcher-service/internal/model"
)

// ActiveAlerts returns all active alerts joined to their active owners,
// including the owner's daily cap and quiet-hours settings.
func (s *Store) ActiveAlerts(ctx context.Context) ([]model.Alert, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT a.id, a.user_id, a.name,
		        COALESCE(a.make, ''), COALESCE(a.model, ''),
		        a.price_min, a.price_max, a.year_min, a.year_max, a.max_mileage_km,
		        COALESCE(a.fuel_type, ''), COALESCE(a.transmission, ''), COALESCE(a.body_type, ''),
		        COALESCE(a.city, ''), COALESCE(a.region, ''),
		        a.is_active, a.frequency, a.last_triggered_at, a.trigger_count,
		        a.max_notifications_per_day,
		        u.max_notifications_per_day,
		        u.quiet_hours_enabled, u.quiet_start_minute, u.quiet_end_minute
		 FROM alerts a
		 JOIN users u ON u.id = a.user_id
		 WHERE a.is_active AND u.is_active
		 ORDER BY a.created_at`,
	)
	if err != nil {
		return nil, fmt.Errorf("active alerts query: %w", err)
	}
	defer rows.Close()

	alerts := make([]model.Alert, 0)
	for rows.Next() {
		var a model.Alert
		if err := rows.Scan(
			&a.ID, &a.UserID, &a.Name,
			&a.Make, &a.Model,
			&a.PriceMin, &a.PriceMax, &a.YearMin, &a.YearMax, &a.MaxMileageKM,
			&a.FuelType, &a.Transmission, &a.BodyType,
			&a.City, &a.Region,
			&a.IsActive, &a.Frequency, &a.LastTriggeredAt, &a.TriggerCount,
			&a.MaxPerDay,
			&a.UserMaxPerDay,
			&a.Quiet.Enabled, &a.Quiet.Start, &a.Quiet.End,
		); err != nil {
			return nil, fmt.Errorf("active alerts scan: %w", err)
		}
		alerts = append(alerts, a)
	}
	return alerts, rows.Err()
}

// RecordAlertTrigger bumps the alert's trigger bookkeeping.
func (s *Store) RecordAlertTrigger(ctx context.Context, alertID string, at time.Time) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE alerts
		 SET trigger_count = trigger_count + 1, last_triggered_at = $2
		 WHERE id = $1`,
		alertID, at)
	return err
}
