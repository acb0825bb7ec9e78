package store

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"autoradar/matcher-service/internal/model"
)

// CreateRun inserts a new MatchRun record in running state.
func (s *Store) CreateRun(ctx context.Context, run *model.MatchRun) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO match_runs (id, started_at, status)
		 VALUES ($1, $2, $3)`,
		run.ID, run.StartedAt, run.Status)
	return err
}

// FinalizeRun writes the terminal status and counters.
func (s *Store) FinalizeRun(ctx context.Context, run *model.MatchRun) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE match_runs
		 SET status = $2, completed_at = $3,
		     alerts_processed = $4, listings_checked = $5,
		     matches_found = $6, notifications_created = $7,
		     error = NULLIF($8, '')
		 WHERE id = $1`,
		run.ID, run.Status, run.CompletedAt,
		run.AlertsProcessed, run.ListingsChecked,
		run.MatchesFound, run.NotificationsCreated,
		run.Error)
	return err
}

// LastSuccessfulRun returns the start time of the most recent completed
// run, or nil when none exists yet.
func (s *Store) LastSuccessfulRun(ctx context.Context) (*time.Time, error) {
	var started time.Time
	err := s.pool.QueryRow(ctx,
		`SELECT started_at FROM match_runs
		 WHERE status = 'completed'
		 ORDER BY started_at DESC
		 LIMIT 1`).Scan(&started)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &started, nil
}

const runColumns = `id, started_at, completed_at, status, alerts_processed,
	listings_checked, matches_found, notifications_created, COALESCE(error, '')`

func scanRun(row pgx.Row) (*model.MatchRun, error) {
	var r model.MatchRun
	err := row.Scan(
		&r.ID, &r.StartedAt, &r.CompletedAt, &r.Status, &r.AlertsProcessed,
		&r.ListingsChecked, &r.MatchesFound, &r.NotificationsCreated, &r.Error,
	)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// GetRun fetches one run by id.
func (s *Store) GetRun(ctx context.Context, id string) (*model.MatchRun, error) {
	run, err := scanRun(s.pool.QueryRow(ctx,
		`SELECT `+runColumns+` FROM match_runs WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return run, err
}

// RecentRuns lists the latest runs, newest first.
func (s *Store) RecentRuns(ctx context.Context, limit int) ([]model.MatchRun, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.pool.Query(ctx,
		`SELECT `+runColumns+` FROM match_runs
		 ORDER BY started_at DESC
		 LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	runs := make([]model.MatchRun, 0, limit)
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *r)
	}
	return runs, rows.Err()
}
