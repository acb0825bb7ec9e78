package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"autoradar/matcher-service/internal/model"
)

// CreateNotification inserts a draft, relying on the unique
// (alert_id, listing_id) constraint for idempotency under parallel
// emission. Returns false without error when the pair already exists; the
// draft's ID and CreatedAt are filled in on success.
func (s *Store) CreateNotification(ctx context.Context, n *model.Notification) (bool, error) {
	err := s.pool.QueryRow(ctx,
		`INSERT INTO notifications
			(user_id, alert_id, listing_id, title, message, content, priority, status, deferred_until)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 ON CONFLICT (alert_id, listing_id) DO NOTHING
		 RETURNING id, created_at`,
		n.UserID, n.AlertID, n.ListingID, n.Title, n.Message, n.Content,
		n.Priority, n.Status, n.DeferredUntil,
	).Scan(&n.ID, &n.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// NotificationExists reports whether the (alert, listing) pair was already
// notified, in any status.
func (s *Store) NotificationExists(ctx context.Context, alertID, listingID string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (
			SELECT 1 FROM notifications WHERE alert_id = $1 AND listing_id = $2
		 )`,
		alertID, listingID).Scan(&exists)
	return exists, err
}

// UserNotificationsSince counts notifications created for a user since the
// given instant. Deferred drafts count — they were created today even if
// they go out tomorrow morning.
func (s *Store) UserNotificationsSince(ctx context.Context, userID string, since time.Time) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx,
		`SELECT count(*) FROM notifications WHERE user_id = $1 AND created_at >= $2`,
		userID, since).Scan(&n)
	return n, err
}

// AlertNotificationsSince counts notifications created for an alert since
// the given instant.
func (s *Store) AlertNotificationsSince(ctx context.Context, alertID string, since time.Time) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx,
		`SELECT count(*) FROM notifications WHERE alert_id = $1 AND created_at >= $2`,
		alertID, since).Scan(&n)
	return n, err
}

// PendingNotifications lists undelivered pending drafts, oldest first, for
// the delivery collaborator's polling path.
func (s *Store) PendingNotifications(ctx context.Context, limit int) ([]model.Notification, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id, user_id, alert_id, listing_id, title, message, content,
		        priority, status, deferred_until, created_at
		 FROM notifications
		 WHERE status = 'pending'
		 ORDER BY created_at
		 LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("pending notifications query: %w", err)
	}
	defer rows.Close()

	pending := make([]model.Notification, 0)
	for rows.Next() {
		var n model.Notification
		if err := rows.Scan(
			&n.ID, &n.UserID, &n.AlertID, &n.ListingID, &n.Title, &n.Message, &n.Content,
			&n.Priority, &n.Status, &n.DeferredUntil, &n.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("pending notifications scan: %w", err)
		}
		pending = append(pending, n)
	}
	return pending, rows.Err()
}

// PromoteDeferred flips due deferred drafts to pending and returns them so
// the caller can announce each one.
func (s *Store) PromoteDeferred(ctx context.Context, now time.Time) ([]model.Notification, error) {
	rows, err := s.pool.Query(ctx,
		`UPDATE notifications
		 SET status = 'pending', deferred_until = NULL
		 WHERE status = 'deferred' AND deferred_until <= $1
		 RETURNING id, user_id, alert_id, listing_id, title, message, content,
		           priority, status, deferred_until, created_at`,
		now)
	if err != nil {
		return nil, fmt.Errorf("promote deferred query: %w", err)
	}
	defer rows.Close()

	promoted := make([]model.Notification, 0)
	for rows.Next() {
		var n model.Notification
		if err := rows.Scan(
			&n.ID, &n.UserID, &n.AlertID, &n.ListingID, &n.Title, &n.Message, &n.Content,
			&n.Priority, &n.Status, &n.DeferredUntil, &n.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("promote deferred scan: %w", err)
		}
		promoted = append(promoted, n)
	}
	return promoted, rows.Err()
}
