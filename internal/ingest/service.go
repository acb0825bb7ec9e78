// Package ingest is the entry point for scraped listings: each candidate
// goes through deduplication and, when it produced a new master row,
// straight into the single-listing match pipeline.
package ingest

import (
	"context"
	"fmt"
	"log"
	"time"

	"autoradar/matcher-service/internal/dedup"
	"autoradar/matcher-service/internal/model"
)

// Matcher is the per-listing match hook.
type Matcher interface {
	ProcessListing(ctx context.Context, listingID string) (int, error)
}

// Stats summarizes one ingested batch.
type Stats struct {
	Received             int `json:"received"`
	Created              int `json:"created"`
	Merged               int `json:"merged"`
	Duplicates           int `json:"duplicates"`
	Failed               int `json:"failed"`
	NotificationsCreated int `json:"notificationsCreated"`
}

// Service ties the deduplicator to the match hook.
type Service struct {
	dedup   *dedup.Deduplicator
	matcher Matcher
}

// New returns a configured Service.
func New(d *dedup.Deduplicator, m Matcher) *Service {
	return &Service{dedup: d, matcher: m}
}

// ProcessBatch resolves every candidate and matches the newly created ones.
// A failing candidate is logged and skipped; the batch continues.
func (s *Service) ProcessBatch(ctx context.Context, raws []model.RawListing) (Stats, error) {
	stats := Stats{Received: len(raws)}
	for i := range raws {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		raw := &raws[i]
		if err := validate(raw); err != nil {
			log.Printf("[ingest] rejecting candidate %q: %v", raw.URL, err)
			stats.Failed++
			continue
		}
		res, err := s.dedup.Resolve(ctx, raw)
		if err != nil {
			log.Printf("[ingest] resolve failed for %q: %v", raw.URL, err)
			stats.Failed++
			continue
		}
		switch res.Outcome {
		case dedup.OutcomeCreated:
			stats.Created++
			n, err := s.matcher.ProcessListing(ctx, res.Listing.ID)
			if err != nil {
				log.Printf("[ingest] match hook failed for listing %s: %v", res.Listing.ID, err)
				continue
			}
			stats.NotificationsCreated += n
		case dedup.OutcomeMerged:
			stats.Merged++
		case dedup.OutcomeDuplicate:
			stats.Duplicates++
		}
	}
	log.Printf("[ingest] batch done — received=%d created=%d merged=%d duplicates=%d failed=%d notifications=%d",
		stats.Received, stats.Created, stats.Merged, stats.Duplicates, stats.Failed, stats.NotificationsCreated)
	return stats, nil
}

func validate(raw *model.RawListing) error {
	if raw.SourceSite == "" {
		return fmt.Errorf("sourceSite is required")
	}
	if raw.URL == "" {
		return fmt.Errorf("url is required")
	}
	if raw.VIN != "" && len(raw.VIN) != 17 {
		return fmt.Errorf("vin must be 17 characters, got %d", len(raw.VIN))
	}
	if raw.Price != nil && *raw.Price < 0 {
		return fmt.Errorf("price must be non-negative")
	}
	if raw.Year != nil {
		if max := time.Now().UTC().Year() + 1; *raw.Year < 1900 || *raw.Year > max {
			return fmt.Errorf("year must be within [1900, %d]", max)
		}
	}
	return nil
}
