// Package dedup decides whether a scraped listing is a new vehicle, a
// refresh of a known listing, or a cross-site duplicate of one.
package dedup

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgconn"

	"autoradar/matcher-service/internal/model"
)

// Outcome classifies what Resolve did with a candidate.
type Outcome string

const (
	// OutcomeCreated — no match found, a new master row was inserted.
	OutcomeCreated Outcome = "created"
	// OutcomeMerged — an exact match was found and refreshed in place.
	OutcomeMerged Outcome = "merged"
	// OutcomeDuplicate — a fuzzy match was found; the candidate was stored
	// as a flagged duplicate row pointing at the master.
	OutcomeDuplicate Outcome = "duplicate"
)

// Resolution is the result of resolving one candidate.
type Resolution struct {
	Listing     *model.Listing
	Outcome     Outcome
	PriceChange *model.PriceChange
}

// ListingStore is the listing-store view the deduplicator needs. All Find
// methods return (nil, nil) when nothing matches.
type ListingStore interface {
	FindByExternalID(ctx context.Context, sourceSite, externalID string) (*model.Listing, error)
	FindByURL(ctx context.Context, url string) (*model.Listing, error)
	FindByVIN(ctx context.Context, vin string) (*model.Listing, error)
	// FindFuzzy matches active, non-duplicate listings with the same make,
	// model and year whose mileage is within windowKM of the candidate's.
	FindFuzzy(ctx context.Context, make, mdl string, year, mileageKM, windowKM int) (*model.Listing, error)
	Insert(ctx context.Context, raw *model.RawListing) (*model.Listing, error)
	InsertDuplicate(ctx context.Context, raw *model.RawListing, masterID string) (*model.Listing, error)
	// Merge overwrites the row's fields with the candidate's non-null
	// fields, appends a price-history entry on price change, and refreshes
	// last_updated. The returned change is nil when the price is unchanged.
	Merge(ctx context.Context, listingID string, raw *model.RawListing) (*model.Listing, *model.PriceChange, error)
	// ResolveMaster follows duplicate_of links to the ultimate master id.
	ResolveMaster(ctx context.Context, listingID string) (string, error)
}

// Config holds the fuzzy-match window.
type Config struct {
	FuzzyMileageWindowKM int
}

// Deduplicator resolves candidates against the listing store.
type Deduplicator struct {
	store ListingStore
	cfg   Config
}

// New returns a configured Deduplicator.
func New(store ListingStore, cfg Config) *Deduplicator {
	if cfg.FuzzyMileageWindowKM <= 0 {
		cfg.FuzzyMileageWindowKM = 1000
	}
	return &Deduplicator{store: store, cfg: cfg}
}

// Resolve runs the lookup ladder in priority order, short-circuiting on the
// first hit:
//
//  1. (external_id, source_site)
//  2. listing_url
//  3. VIN
//  4. fuzzy: same make/model/year, mileage within the window
//
// Exact hits (1–3) merge the candidate into the matched row. A fuzzy hit
// inserts the candidate as a flagged duplicate of the match's master. No
// hit inserts a new master row; a unique-key race on that insert is
// recovered by retrying the lookup, never surfaced to the caller.
func (d *Deduplicator) Resolve(ctx context.Context, raw *model.RawListing) (*Resolution, error) {
	return d.resolve(ctx, raw, true)
}

func (d *Deduplicator) resolve(ctx context.Context, raw *model.RawListing, retryOnRace bool) (*Resolution, error) {
	exact, err := d.findExact(ctx, raw)
	if err != nil {
		return nil, err
	}
	if exact != nil {
		merged, change, err := d.store.Merge(ctx, exact.ID, raw)
		if err != nil {
			return nil, fmt.Errorf("merge into %s: %w", exact.ID, err)
		}
		return &Resolution{Listing: merged, Outcome: OutcomeMerged, PriceChange: change}, nil
	}

	if fuzzy, err := d.findFuzzy(ctx, raw); err != nil {
		return nil, err
	} else if fuzzy != nil {
		// Resolve to the ultimate master before writing the link so
		// duplicates never chain.
		masterID, err := d.store.ResolveMaster(ctx, fuzzy.ID)
		if err != nil {
			return nil, fmt.Errorf("resolve master of %s: %w", fuzzy.ID, err)
		}
		dup, err := d.store.InsertDuplicate(ctx, raw, masterID)
		if err != nil {
			if isUniqueViolation(err) && retryOnRace {
				return d.resolve(ctx, raw, false)
			}
			return nil, fmt.Errorf("insert duplicate of %s: %w", masterID, err)
		}
		return &Resolution{Listing: dup, Outcome: OutcomeDuplicate}, nil
	}

	created, err := d.store.Insert(ctx, raw)
	if err != nil {
		// Another scraper won the insert race; the lookup will find its
		// row now.
		if isUniqueViolation(err) && retryOnRace {
			slog.Warn("insert race on listing, retrying lookup", "url", raw.URL)
			return d.resolve(ctx, raw, false)
		}
		return nil, fmt.Errorf("insert listing: %w", err)
	}
	return &Resolution{Listing: created, Outcome: OutcomeCreated}, nil
}

func (d *Deduplicator) findExact(ctx context.Context, raw *model.RawListing) (*model.Listing, error) {
	if raw.ExternalID != "" {
		l, err := d.store.FindByExternalID(ctx, raw.SourceSite, raw.ExternalID)
		if err != nil {
			return nil, fmt.Errorf("lookup by external id: %w", err)
		}
		if l != nil {
			return l, nil
		}
	}
	if raw.URL != "" {
		l, err := d.store.FindByURL(ctx, raw.URL)
		if err != nil {
			return nil, fmt.Errorf("lookup by url: %w", err)
		}
		if l != nil {
			return l, nil
		}
	}
	if raw.VIN != "" {
		l, err := d.store.FindByVIN(ctx, raw.VIN)
		if err != nil {
			return nil, fmt.Errorf("lookup by vin: %w", err)
		}
		if l != nil {
			return l, nil
		}
	}
	return nil, nil
}

func (d *Deduplicator) findFuzzy(ctx context.Context, raw *model.RawListing) (*model.Listing, error) {
	if raw.Make == "" || raw.Model == "" || raw.Year == nil || raw.MileageKM == nil {
		return nil, nil
	}
	l, err := d.store.FindFuzzy(ctx, raw.Make, raw.Model, *raw.Year, *raw.MileageKM, d.cfg.FuzzyMileageWindowKM)
	if err != nil {
		return nil, fmt.Errorf("fuzzy lookup: %w", err)
	}
	return l, nil
}

// isUniqueViolation reports a Postgres unique-constraint error (23505).
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
