package models

import "time"

// URLStatus tracks where a listing URL is in the fetch→parse pipeline.
type URLStatus string

const (
	URLPending     URLStatus = "pending"
	URLFetched     URLStatus = "fetched"
	URLFetchFailed URLStatus = "fetch_failed"
	URLParsed      URLStatus = "parsed"
	URLParseFailed URLStatus = "parse_failed"
)

// Terminal reports whether no further automatic transition occurs for this
// status. Terminal URLs are skipped on resume unless explicitly re-run.
func (s URLStatus) Terminal() bool {
	switch s {
	case URLParsed, URLParseFailed, URLFetchFailed:
		return true
	}
	return false
}

// URLState is the per-URL bookkeeping entry inside a batch. Idx is the
// stable snapshot index used to name raw artifacts on disk (1001_raw.html,
// 1002_raw.html, ...).
type URLState struct {
	Idx        int        `json:"idx"`
	URL        string     `json:"url"`
	PlatformID string     `json:"platform_id"`
	Status     URLStatus  `json:"status"`
	Reason     string     `json:"reason,omitempty"`
	FetchedAt  *time.Time `json:"fetched_at,omitempty"`
	ParsedAt   *time.Time `json:"parsed_at,omitempty"`
}

// BatchState is the per-batch progress ledger. It is owned exclusively by
// the orchestrator's state store and mutated only through its operations.
type BatchState struct {
	BatchID   string      `json:"batch_id"`
	CreatedAt time.Time   `json:"created_at"`
	Entries   []*URLState `json:"entries"`
}

// Entry returns the state for a URL, or nil if the URL is not in the batch.
func (b *BatchState) Entry(url string) *URLState {
	for _, e := range b.Entries {
		if e.URL == url {
			return e
		}
	}
	return nil
}

// SearchSeed is one platform search page derived from the area config.
type SearchSeed struct {
	PlatformID string `json:"platform_id"`
	Zip        string `json:"zip"`
	URL        string `json:"url"`
}

// BatchSeeds is the persisted seed file written at batch initialization,
// mirroring seed_search_pages.json from earlier pipeline iterations.
type BatchSeeds struct {
	BatchID     string       `json:"batch_id"`
	GeneratedAt time.Time    `json:"generated_at"`
	SearchPages []SearchSeed `json:"search_pages"`
	DetailPages []SearchSeed `json:"detail_pages"`
}
