package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"realestate-scraper/models"
)

// FileStore lays batches out on disk the way the pipeline has always done:
//
//	<data>/batches/<batch_id>/raw/1001_raw.html     raw snapshot
//	<data>/batches/<batch_id>/raw/1001_meta.json    fetch metadata
//	<data>/batches/<batch_id>/structured/<id>.json  parsed record
//	<data>/batches/<batch_id>/structured/failures/1001.json
//	<data>/batches/<batch_id>/state.json            batch ledger
//	<data>/batches/<batch_id>/structured/seed_search_pages.json
type FileStore struct {
	root string
}

// snapshotMeta is the sidecar written next to each raw snapshot.
type snapshotMeta struct {
	RequestedURL string    `json:"requested_url"`
	PlatformID   string    `json:"platform_id"`
	Idx          int       `json:"idx"`
	FetchedAt    time.Time `json:"fetched_at"`
}

// parseFailure is the structured artifact for a listing that could not be
// parsed; failures are data, not control flow.
type parseFailure struct {
	Idx      int       `json:"idx"`
	URL      string    `json:"url"`
	Status   string    `json:"status"`
	Reason   string    `json:"reason"`
	FailedAt time.Time `json:"failed_at"`
}

func NewFileStore(dataDir string) *FileStore {
	return &FileStore{root: dataDir}
}

func (s *FileStore) batchDir(batchID string) string {
	return filepath.Join(s.root, "batches", batchID)
}

// EnsureBatchDirs creates the batch directory tree.
func (s *FileStore) EnsureBatchDirs(batchID string) error {
	for _, dir := range []string{
		filepath.Join(s.batchDir(batchID), "raw"),
		filepath.Join(s.batchDir(batchID), "structured", "failures"),
	} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("storage: create batch dirs: %w", err)
		}
	}
	return nil
}

// BatchExists reports whether a batch directory is already on disk.
func (s *FileStore) BatchExists(batchID string) bool {
	info, err := os.Stat(s.batchDir(batchID))
	return err == nil && info.IsDir()
}

// LatestBatchID returns the most recently modified batch directory.
func (s *FileStore) LatestBatchID() (string, error) {
	entries, err := os.ReadDir(filepath.Join(s.root, "batches"))
	if err != nil {
		return "", fmt.Errorf("storage: no batches yet: %w", err)
	}

	type candidate struct {
		name  string
		mtime time.Time
	}
	var dirs []candidate
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		dirs = append(dirs, candidate{e.Name(), info.ModTime()})
	}
	if len(dirs) == 0 {
		return "", fmt.Errorf("storage: no batch directories under %s", s.root)
	}
	sort.Slice(dirs, func(i, j int) bool { return dirs[i].mtime.After(dirs[j].mtime) })
	return dirs[0].name, nil
}

// SaveSnapshot writes the raw HTML and its metadata sidecar.
func (s *FileStore) SaveSnapshot(batchID string, idx int, url, platformID, html string) error {
	raw := filepath.Join(s.batchDir(batchID), "raw")
	if err := os.MkdirAll(raw, 0755); err != nil {
		return fmt.Errorf("storage: snapshot dir: %w", err)
	}
	if err := os.WriteFile(filepath.Join(raw, fmt.Sprintf("%04d_raw.html", idx)), []byte(html), 0644); err != nil {
		return fmt.Errorf("storage: write snapshot %d: %w", idx, err)
	}

	meta := snapshotMeta{
		RequestedURL: url,
		PlatformID:   platformID,
		Idx:          idx,
		FetchedAt:    time.Now().UTC(),
	}
	return writeJSON(filepath.Join(raw, fmt.Sprintf("%04d_meta.json", idx)), meta)
}

// LoadSnapshot reads a raw snapshot back for reprocessing.
func (s *FileStore) LoadSnapshot(batchID string, idx int) (string, error) {
	path := filepath.Join(s.batchDir(batchID), "raw", fmt.Sprintf("%04d_raw.html", idx))
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("storage: read snapshot %d: %w", idx, err)
	}
	return string(data), nil
}

// SaveRecord writes the structured artifact keyed by listing id.
func (s *FileStore) SaveRecord(batchID string, rec *models.ListingRecord) error {
	dir := filepath.Join(s.batchDir(batchID), "structured")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("storage: structured dir: %w", err)
	}
	return writeJSON(filepath.Join(dir, rec.ListingID+".json"), rec)
}

// LoadRecord reads a structured record back (used by the backlink pass).
func (s *FileStore) LoadRecord(batchID, listingID string) (*models.ListingRecord, error) {
	path := filepath.Join(s.batchDir(batchID), "structured", listingID+".json")
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("storage: read record %s: %w", listingID, err)
	}
	var rec models.ListingRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("storage: decode record %s: %w", listingID, err)
	}
	return &rec, nil
}

// ListRecords loads every structured record in a batch; used to re-seed the
// deduplication index when resuming.
func (s *FileStore) ListRecords(batchID string) ([]*models.ListingRecord, error) {
	dir := filepath.Join(s.batchDir(batchID), "structured")
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("storage: list records: %w", err)
	}

	var records []*models.ListingRecord
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".json" || e.Name() == "seed_search_pages.json" {
			continue
		}
		rec, err := s.LoadRecord(batchID, e.Name()[:len(e.Name())-len(".json")])
		if err != nil {
			continue
		}
		records = append(records, rec)
	}
	return records, nil
}

// ListBatches returns every batch id on disk, oldest first. Batch ids are
// date-prefixed, so lexical order is chronological.
func (s *FileStore) ListBatches() ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(s.root, "batches"))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("storage: list batches: %w", err)
	}

	var ids []string
	for _, e := range entries {
		if e.IsDir() {
			ids = append(ids, e.Name())
		}
	}
	sort.Strings(ids)
	return ids, nil
}

// SaveFailure records a parse failure as a structured artifact.
func (s *FileStore) SaveFailure(batchID string, idx int, url, reason string) error {
	dir := filepath.Join(s.batchDir(batchID), "structured", "failures")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("storage: failures dir: %w", err)
	}
	f := parseFailure{
		Idx:      idx,
		URL:      url,
		Status:   string(models.URLParseFailed),
		Reason:   reason,
		FailedAt: time.Now().UTC(),
	}
	return writeJSON(filepath.Join(dir, fmt.Sprintf("%04d.json", idx)), f)
}

// SaveState atomically persists the batch ledger (write temp, rename).
func (s *FileStore) SaveState(state *models.BatchState) error {
	if err := os.MkdirAll(s.batchDir(state.BatchID), 0755); err != nil {
		return fmt.Errorf("storage: batch dir: %w", err)
	}
	path := filepath.Join(s.batchDir(state.BatchID), "state.json")

	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("storage: encode state: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("storage: write state: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("storage: commit state: %w", err)
	}
	return nil
}

// LoadState reads the batch ledger back.
func (s *FileStore) LoadState(batchID string) (*models.BatchState, error) {
	data, err := os.ReadFile(filepath.Join(s.batchDir(batchID), "state.json"))
	if err != nil {
		return nil, fmt.Errorf("storage: read state for %s: %w", batchID, err)
	}
	var state models.BatchState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("storage: decode state for %s: %w", batchID, err)
	}
	return &state, nil
}

// SaveSeeds persists the seed search pages file at batch initialization.
func (s *FileStore) SaveSeeds(seeds *models.BatchSeeds) error {
	dir := filepath.Join(s.batchDir(seeds.BatchID), "structured")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("storage: structured dir: %w", err)
	}
	return writeJSON(filepath.Join(dir, "seed_search_pages.json"), seeds)
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("storage: encode %s: %w", filepath.Base(path), err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("storage: write %s: %w", filepath.Base(path), err)
	}
	return nil
}
