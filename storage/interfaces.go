package storage

import "realestate-scraper/models"

// SnapshotStore persists raw page snapshots keyed by batch and index, and
// reads them back for reprocessing without re-fetching.
type SnapshotStore interface {
	SaveSnapshot(batchID string, idx int, url, platformID, html string) error
	LoadSnapshot(batchID string, idx int) (string, error)
}

// RecordStore persists structured listing records keyed by listing id, plus
// per-listing failure artifacts. ListBatches enumerates every batch on disk
// so the dedup index can span earlier scrapes of the same listings.
type RecordStore interface {
	SaveRecord(batchID string, rec *models.ListingRecord) error
	LoadRecord(batchID, listingID string) (*models.ListingRecord, error)
	ListRecords(batchID string) ([]*models.ListingRecord, error)
	ListBatches() ([]string, error)
	SaveFailure(batchID string, idx int, url, reason string) error
}

// StateStore persists the batch progress ledger and the seed file written
// at batch initialization.
type StateStore interface {
	SaveState(state *models.BatchState) error
	LoadState(batchID string) (*models.BatchState, error)
	SaveSeeds(seeds *models.BatchSeeds) error
}

// RecordSink is an optional secondary sink for parsed records (Postgres,
// CSV export).
type RecordSink interface {
	Write(records []*models.ListingRecord) error
	Close() error
}
