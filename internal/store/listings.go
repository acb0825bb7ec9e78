package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"autoradar/matcher-service/internal/model"
)

const listingColumns = `
	id, external_id, source_site, listing_url, vin, make, model, variant,
	year, price, currency, mileage_km, fuel_type, transmission, body_type,
	power_kw, city, region, country, scraped_at, last_updated,
	is_active, is_duplicate, duplicate_of, data_quality, confidence`

func scanListing(row pgx.Row) (*model.Listing, error) {
	var l model.Listing
	err := row.Scan(
		&l.ID, &l.ExternalID, &l.SourceSite, &l.URL, &l.VIN, &l.Make, &l.Model, &l.Variant,
		&l.Year, &l.Price, &l.Currency, &l.MileageKM, &l.FuelType, &l.Transmission, &l.BodyType,
		&l.PowerKW, &l.City, &l.Region, &l.Country, &l.ScrapedAt, &l.LastUpdated,
		&l.IsActive, &l.IsDuplicate, &l.DuplicateOf, &l.DataQuality, &l.Confidence,
	)
	if err != nil {
		return nil, err
	}
	return &l, nil
}

func (s *Store) findListing(ctx context.Context, where string, args ...any) (*model.Listing, error) {
	l, err := scanListing(s.pool.QueryRow(ctx,
		`SELECT `+listingColumns+` FROM listings WHERE `+where, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return l, err
}

// GetListing fetches one listing by id; (nil, nil) when absent.
func (s *Store) GetListing(ctx context.Context, id string) (*model.Listing, error) {
	return s.findListing(ctx, `id = $1`, id)
}

func (s *Store) FindByExternalID(ctx context.Context, sourceSite, externalID string) (*model.Listing, error) {
	return s.findListing(ctx, `source_site = $1 AND external_id = $2`, sourceSite, externalID)
}

func (s *Store) FindByURL(ctx context.Context, url string) (*model.Listing, error) {
	return s.findListing(ctx, `listing_url = $1`, url)
}

func (s *Store) FindByVIN(ctx context.Context, vin string) (*model.Listing, error) {
	return s.findListing(ctx, `vin = $1`, vin)
}

// FindFuzzy matches an active, non-duplicate listing with the same make,
// model and year whose mileage lies within windowKM of the candidate's.
// The closest mileage wins.
func (s *Store) FindFuzzy(ctx context.Context, mk, mdl string, year, mileageKM, windowKM int) (*model.Listing, error) {
	l, err := scanListing(s.pool.QueryRow(ctx,
		`SELECT `+listingColumns+`
		 FROM listings
		 WHERE lower(make) = lower($1)
		   AND lower(model) = lower($2)
		   AND year = $3
		   AND mileage_km BETWEEN $4 - $5 AND $4 + $5
		   AND is_active AND NOT is_duplicate
		 ORDER BY abs(mileage_km - $4)
		 LIMIT 1`,
		mk, mdl, year, mileageKM, windowKM))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return l, err
}

const insertListingSQL = `
	INSERT INTO listings (
		external_id, source_site, listing_url, vin, make, model, variant,
		year, price, currency, mileage_km, fuel_type, transmission, body_type,
		power_kw, city, region, country, scraped_at,
		is_duplicate, duplicate_of, data_quality, confidence
	) VALUES (
		NULLIF($1, ''), $2, $3, NULLIF($4, ''), $5, $6, NULLIF($7, ''),
		$8, $9, COALESCE(NULLIF($10, ''), 'EUR'), $11, $12, $13, $14,
		$15, $16, $17, $18, $19,
		$20, $21, $22, $23
	)
	RETURNING ` + listingColumns

func (s *Store) insertListing(ctx context.Context, raw *model.RawListing, isDuplicate bool, masterID *string) (*model.Listing, error) {
	return scanListing(s.pool.QueryRow(ctx, insertListingSQL,
		raw.ExternalID, raw.SourceSite, raw.URL, raw.VIN, raw.Make, raw.Model, raw.Variant,
		raw.Year, raw.Price, raw.Currency, raw.MileageKM, raw.FuelType, raw.Transmission, raw.BodyType,
		raw.PowerKW, raw.City, raw.Region, raw.Country, raw.ScrapedAt,
		isDuplicate, masterID, raw.DataQuality, raw.Confidence,
	))
}

// Insert creates a new master listing row.
func (s *Store) Insert(ctx context.Context, raw *model.RawListing) (*model.Listing, error) {
	return s.insertListing(ctx, raw, false, nil)
}

// InsertDuplicate creates a flagged duplicate row pointing at masterID.
// The caller resolves masterID to an ultimate master first.
func (s *Store) InsertDuplicate(ctx context.Context, raw *model.RawListing, masterID string) (*model.Listing, error) {
	return s.insertListing(ctx, raw, true, &masterID)
}

// Merge refreshes a listing with the candidate's non-null fields, appending
// a price-history entry when the price changed. Runs in a transaction so a
// concurrent merge cannot interleave between the price read and the write.
func (s *Store) Merge(ctx context.Context, listingID string, raw *model.RawListing) (*model.Listing, *model.PriceChange, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, nil, err
	}
	defer tx.Rollback(ctx)

	var oldPrice *float64
	if err := tx.QueryRow(ctx,
		`SELECT price FROM listings WHERE id = $1 FOR UPDATE`, listingID,
	).Scan(&oldPrice); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil, fmt.Errorf("merge target %s: %w", listingID, ErrNotFound)
		}
		return nil, nil, err
	}

	l, err := scanListing(tx.QueryRow(ctx,
		`UPDATE listings SET
			external_id  = COALESCE(NULLIF($2, ''), external_id),
			vin          = COALESCE(NULLIF($3, ''), vin),
			make         = COALESCE(NULLIF($4, ''), make),
			model        = COALESCE(NULLIF($5, ''), model),
			variant      = COALESCE(NULLIF($6, ''), variant),
			year         = COALESCE($7, year),
			price        = COALESCE($8, price),
			currency     = COALESCE(NULLIF($9, ''), currency),
			mileage_km   = COALESCE($10, mileage_km),
			fuel_type    = COALESCE(NULLIF($11, ''), fuel_type),
			transmission = COALESCE(NULLIF($12, ''), transmission),
			body_type    = COALESCE(NULLIF($13, ''), body_type),
			power_kw     = COALESCE($14, power_kw),
			city         = COALESCE(NULLIF($15, ''), city),
			region       = COALESCE(NULLIF($16, ''), region),
			country      = COALESCE(NULLIF($17, ''), country),
			scraped_at   = $18,
			is_active    = true,
			last_updated = NOW()
		 WHERE id = $1
		 RETURNING `+listingColumns,
		listingID,
		raw.ExternalID, raw.VIN, raw.Make, raw.Model, raw.Variant,
		raw.Year, raw.Price, raw.Currency, raw.MileageKM,
		raw.FuelType, raw.Transmission, raw.BodyType, raw.PowerKW,
		raw.City, raw.Region, raw.Country, raw.ScrapedAt,
	))
	if err != nil {
		return nil, nil, err
	}

	var change *model.PriceChange
	if raw.Price != nil && oldPrice != nil && *raw.Price != *oldPrice {
		change = &model.PriceChange{
			ListingID:  listingID,
			OldPrice:   *oldPrice,
			NewPrice:   *raw.Price,
			PctChange:  (*raw.Price - *oldPrice) / *oldPrice * 100,
			RecordedAt: time.Now().UTC(),
		}
		if _, err := tx.Exec(ctx,
			`INSERT INTO listing_price_history (listing_id, old_price, new_price, pct_change)
			 VALUES ($1, $2, $3, $4)`,
			listingID, change.OldPrice, change.NewPrice, change.PctChange,
		); err != nil {
			return nil, nil, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, nil, fmt.Errorf("merge commit: %w", err)
	}
	return l, change, nil
}

// ResolveMaster follows duplicate_of links to the ultimate master. The
// write-time invariant keeps chains from forming, so this normally takes a
// single hop; the loop is bounded in case old data predates the invariant.
func (s *Store) ResolveMaster(ctx context.Context, listingID string) (string, error) {
	id := listingID
	for hops := 0; hops < 10; hops++ {
		var master *string
		err := s.pool.QueryRow(ctx,
			`SELECT duplicate_of FROM listings WHERE id = $1`, id).Scan(&master)
		if errors.Is(err, pgx.ErrNoRows) {
			return "", fmt.Errorf("listing %s: %w", id, ErrNotFound)
		}
		if err != nil {
			return "", err
		}
		if master == nil {
			return id, nil
		}
		id = *master
	}
	return "", fmt.Errorf("duplicate chain too deep starting at %s", listingID)
}

// CandidatesSince lists active, non-duplicate listings scraped since the
// given instant, oldest first. limit 0 means no limit.
func (s *Store) CandidatesSince(ctx context.Context, since time.Time, limit int) ([]model.Listing, error) {
	q := `SELECT ` + listingColumns + `
	      FROM listings
	      WHERE scraped_at >= $1 AND is_active AND NOT is_duplicate
	      ORDER BY scraped_at`
	args := []any{since}
	if limit > 0 {
		q += ` LIMIT $2`
		args = append(args, limit)
	}
	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("candidates query: %w", err)
	}
	defer rows.Close()

	listings := make([]model.Listing, 0)
	for rows.Next() {
		l, err := scanListing(rows)
		if err != nil {
			return nil, fmt.Errorf("candidates scan: %w", err)
		}
		listings = append(listings, *l)
	}
	return listings, rows.Err()
}

// DeactivateStale flags listings not refreshed for the given period as
// inactive. Returns the number of rows affected.
func (s *Store) DeactivateStale(ctx context.Context, olderThan time.Duration) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE listings SET is_active = false
		 WHERE is_active AND last_updated < NOW() - $1::interval`,
		olderThan)
	return tag.RowsAffected(), err
}

// DeleteExpired hard-deletes inactive listings past the retention window,
// detaching any duplicate rows that still point at them.
func (s *Store) DeleteExpired(ctx context.Context, olderThan time.Duration) (int64, error) {
	_, err := s.pool.Exec(ctx,
		`UPDATE listings SET duplicate_of = NULL
		 WHERE duplicate_of IN (
			SELECT id FROM listings
			WHERE NOT is_active AND last_updated < NOW() - $1::interval
		 )`,
		olderThan)
	if err != nil {
		return 0, err
	}
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM listings
		 WHERE NOT is_active AND last_updated < NOW() - $1::interval`,
		olderThan)
	return tag.RowsAffected(), err
}
