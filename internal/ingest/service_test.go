package ingest

import (
	"context"
	"testing"

	"autoradar/matcher-service/internal/dedup"
	"autoradar/matcher-service/internal/model"
)

func intp(v int) *int         { return &v }
func f64p(v float64) *float64 { return &v }

// memStore is a minimal in-memory dedup.ListingStore keyed by URL.
type memStore struct {
	byURL  map[string]*model.Listing
	nextID int
}

func newMemStore() *memStore {
	return &memStore{byURL: map[string]*model.Listing{}}
}

func (m *memStore) FindByExternalID(_ context.Context, _, _ string) (*model.Listing, error) {
	return nil, nil
}

func (m *memStore) FindByURL(_ context.Context, url string) (*model.Listing, error) {
	return m.byURL[url], nil
}

func (m *memStore) FindByVIN(_ context.Context, _ string) (*model.Listing, error) {
	return nil, nil
}

func (m *memStore) FindFuzzy(_ context.Context, _, _ string, _, _, _ int) (*model.Listing, error) {
	return nil, nil
}

func (m *memStore) Insert(_ context.Context, raw *model.RawListing) (*model.Listing, error) {
	m.nextID++
	l := &model.Listing{ID: string(rune('a' + m.nextID)), URL: raw.URL, Make: raw.Make, Model: raw.Model, IsActive: true}
	m.byURL[raw.URL] = l
	return l, nil
}

func (m *memStore) InsertDuplicate(_ context.Context, raw *model.RawListing, masterID string) (*model.Listing, error) {
	return &model.Listing{ID: "dup", URL: raw.URL, IsDuplicate: true, DuplicateOf: &masterID}, nil
}

func (m *memStore) Merge(_ context.Context, listingID string, raw *model.RawListing) (*model.Listing, *model.PriceChange, error) {
	l := m.byURL[raw.URL]
	if l == nil {
		l = &model.Listing{ID: listingID, URL: raw.URL}
	}
	return l, nil, nil
}

func (m *memStore) ResolveMaster(_ context.Context, listingID string) (string, error) {
	return listingID, nil
}

type fakeMatcher struct {
	processed []string
	perHit    int
}

func (f *fakeMatcher) ProcessListing(_ context.Context, listingID string) (int, error) {
	f.processed = append(f.processed, listingID)
	return f.perHit, nil
}

func testService() (*Service, *fakeMatcher) {
	m := &fakeMatcher{perHit: 1}
	return New(dedup.New(newMemStore(), dedup.Config{}), m), m
}

func validRaw(url string) model.RawListing {
	return model.RawListing{
		SourceSite: "mobile.de",
		URL:        url,
		Make:       "BMW",
		Model:      "320i",
		Year:       intp(2020),
		Price:      f64p(25000),
	}
}

// ── batch outcomes ─────────────────────────────────────────────────────────

func TestProcessBatch_CountsOutcomes(t *testing.T) {
	svc, matcher := testService()

	batch := []model.RawListing{
		validRaw("https://mobile.de/1"),
		validRaw("https://mobile.de/2"),
		validRaw("https://mobile.de/1"), // re-scrape of the first: merge
	}
	stats, err := svc.ProcessBatch(context.Background(), batch)
	if err != nil {
		t.Fatalf("ProcessBatch returned error: %v", err)
	}
	if stats.Received != 3 || stats.Created != 2 || stats.Merged != 1 || stats.Failed != 0 {
		t.Errorf("stats = %+v, want received=3 created=2 merged=1", stats)
	}
	if stats.NotificationsCreated != 2 {
		t.Errorf("notifications = %d, want 2 (one per new listing)", stats.NotificationsCreated)
	}
	if len(matcher.processed) != 2 {
		t.Errorf("match hook should run only for created listings, ran %d times", len(matcher.processed))
	}
}

// ── validation ─────────────────────────────────────────────────────────────

func TestProcessBatch_RejectsInvalidCandidates(t *testing.T) {
	svc, matcher := testService()

	noSource := validRaw("https://mobile.de/1")
	noSource.SourceSite = ""

	noURL := validRaw("")

	badVIN := validRaw("https://mobile.de/2")
	badVIN.VIN = "TOO-SHORT"

	negPrice := validRaw("https://mobile.de/3")
	negPrice.Price = f64p(-1)

	badYear := validRaw("https://mobile.de/4")
	badYear.Year = intp(1850)

	stats, err := svc.ProcessBatch(context.Background(), []model.RawListing{noSource, noURL, badVIN, negPrice, badYear})
	if err != nil {
		t.Fatalf("ProcessBatch returned error: %v", err)
	}
	if stats.Failed != 5 {
		t.Errorf("failed = %d, want 5", stats.Failed)
	}
	if stats.Created != 0 || len(matcher.processed) != 0 {
		t.Error("invalid candidates must never reach the store or the matcher")
	}
}

func TestProcessBatch_FailureDoesNotAbortBatch(t *testing.T) {
	svc, _ := testService()

	bad := validRaw("https://mobile.de/1")
	bad.SourceSite = ""
	good := validRaw("https://mobile.de/2")

	stats, err := svc.ProcessBatch(context.Background(), []model.RawListing{bad, good})
	if err != nil {
		t.Fatalf("ProcessBatch returned error: %v", err)
	}
	if stats.Failed != 1 || stats.Created != 1 {
		t.Errorf("stats = %+v, want failed=1 created=1", stats)
	}
}

func TestProcessBatch_ContextCancellation(t *testing.T) {
	svc, _ := testService()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := svc.ProcessBatch(ctx, []model.RawListing{validRaw("https://mobile.de/1")})
	if err == nil {
		t.Error("cancelled context must abort the batch")
	}
}
