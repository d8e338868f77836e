package storage

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"realestate-scraper/models"
)

func floatPtr(f float64) *float64 { return &f }
func intPtr(n int) *int           { return &n }

func sampleRecord(id string) *models.ListingRecord {
	return &models.ListingRecord{
		ListingID:  id,
		PlatformID: "redfin",
		SourceURL:  "https://www.redfin.com/TX/Austin/456-Oak-Ave/home/1",
		BatchID:    "2026-08-25_zips2",
		ScrapedAt:  time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC),
		Address: models.Address{
			Street:     "456 Oak Ave",
			City:       "Austin",
			State:      "TX",
			PostalCode: "78702",
		},
		Beds:             floatPtr(3),
		Baths:            floatPtr(2),
		InteriorAreaSqft: intPtr(1500),
		ListPrice:        floatPtr(525000),
		Status:           models.StatusActive,
	}
}

func TestSnapshotRoundTrip(t *testing.T) {
	store := NewFileStore(t.TempDir())
	batchID := "2026-08-25_zips2"

	html := "<html><body>snapshot body</body></html>"
	if err := store.SaveSnapshot(batchID, 1001, "https://example.com/a", "redfin", html); err != nil {
		t.Fatalf("SaveSnapshot: %v", err)
	}

	got, err := store.LoadSnapshot(batchID, 1001)
	if err != nil {
		t.Fatalf("LoadSnapshot: %v", err)
	}
	if got != html {
		t.Errorf("snapshot round trip mismatch: %q", got)
	}

	// The metadata sidecar sits next to the raw file.
	meta := filepath.Join(store.batchDir(batchID), "raw", "1001_meta.json")
	if _, err := os.Stat(meta); err != nil {
		t.Errorf("metadata sidecar missing: %v", err)
	}

	if _, err := store.LoadSnapshot(batchID, 1002); err == nil {
		t.Error("expected error for missing snapshot")
	}
}

func TestRecordRoundTripPreservesNulls(t *testing.T) {
	store := NewFileStore(t.TempDir())
	rec := sampleRecord("ab12cd34ef56ab12")
	rec.YearBuilt = nil
	rec.DaysOnMarket = nil

	if err := store.SaveRecord(rec.BatchID, rec); err != nil {
		t.Fatalf("SaveRecord: %v", err)
	}
	got, err := store.LoadRecord(rec.BatchID, rec.ListingID)
	if err != nil {
		t.Fatalf("LoadRecord: %v", err)
	}

	if got.YearBuilt != nil || got.DaysOnMarket != nil {
		t.Error("nil numerics did not survive the round trip")
	}
	if got.Beds == nil || *got.Beds != 3 {
		t.Errorf("beds = %v; want 3", got.Beds)
	}
	if got.Address.Street != rec.Address.Street {
		t.Errorf("street = %q", got.Address.Street)
	}
	if !got.ScrapedAt.Equal(rec.ScrapedAt) {
		t.Errorf("scraped_timestamp drifted: %v", got.ScrapedAt)
	}
}

func TestListRecordsSkipsSeedsAndFailures(t *testing.T) {
	store := NewFileStore(t.TempDir())
	batchID := "2026-08-25_zips1"

	for _, id := range []string{"aaaa000000000001", "aaaa000000000002"} {
		if err := store.SaveRecord(batchID, sampleRecord(id)); err != nil {
			t.Fatalf("SaveRecord(%s): %v", id, err)
		}
	}
	if err := store.SaveSeeds(&models.BatchSeeds{BatchID: batchID, GeneratedAt: time.Now()}); err != nil {
		t.Fatalf("SaveSeeds: %v", err)
	}
	if err := store.SaveFailure(batchID, 1003, "https://example.com/c", "no strategy extracted any fields"); err != nil {
		t.Fatalf("SaveFailure: %v", err)
	}

	records, err := store.ListRecords(batchID)
	if err != nil {
		t.Fatalf("ListRecords: %v", err)
	}
	if len(records) != 2 {
		t.Errorf("got %d records; want 2 (seed file and failures excluded)", len(records))
	}

	if records, err := store.ListRecords("no-such-batch"); err != nil || records != nil {
		t.Errorf("missing batch should list empty, got %v, %v", records, err)
	}
}

func TestStateRoundTrip(t *testing.T) {
	store := NewFileStore(t.TempDir())
	now := time.Date(2026, 8, 25, 9, 30, 0, 0, time.UTC)
	state := &models.BatchState{
		BatchID:   "2026-08-25_zips3",
		CreatedAt: now,
		Entries: []*models.URLState{
			{Idx: 1001, URL: "https://example.com/a", PlatformID: "redfin", Status: models.URLParsed, ParsedAt: &now},
			{Idx: 1002, URL: "https://example.com/b", PlatformID: "zillow", Status: models.URLFetchFailed, Reason: "timeout"},
		},
	}

	if err := store.SaveState(state); err != nil {
		t.Fatalf("SaveState: %v", err)
	}

	// No stale temp file may survive the atomic write.
	if _, err := os.Stat(filepath.Join(store.batchDir(state.BatchID), "state.json.tmp")); !os.IsNotExist(err) {
		t.Error("temp state file left behind")
	}

	got, err := store.LoadState(state.BatchID)
	if err != nil {
		t.Fatalf("LoadState: %v", err)
	}
	if len(got.Entries) != 2 {
		t.Fatalf("got %d entries; want 2", len(got.Entries))
	}
	if got.Entries[0].Status != models.URLParsed || got.Entries[0].ParsedAt == nil {
		t.Errorf("entry 0 = %+v", got.Entries[0])
	}
	if got.Entries[1].Reason != "timeout" {
		t.Errorf("entry 1 reason = %q", got.Entries[1].Reason)
	}
}

func TestLatestBatchID(t *testing.T) {
	store := NewFileStore(t.TempDir())

	if _, err := store.LatestBatchID(); err == nil {
		t.Error("expected error with no batches on disk")
	}

	for _, id := range []string{"2026-08-23_zips2", "2026-08-25_zips2"} {
		if err := store.SaveState(&models.BatchState{BatchID: id, CreatedAt: time.Now()}); err != nil {
			t.Fatalf("SaveState(%s): %v", id, err)
		}
		// Directory mtimes need to differ for the ordering to be observable.
		time.Sleep(10 * time.Millisecond)
	}

	latest, err := store.LatestBatchID()
	if err != nil {
		t.Fatalf("LatestBatchID: %v", err)
	}
	if latest != "2026-08-25_zips2" {
		t.Errorf("latest = %q; want 2026-08-25_zips2", latest)
	}
}
