package batch

import (
	"fmt"
	"sync"
	"time"

	"realestate-scraper/models"
	"realestate-scraper/storage"
)

// Ledger wraps a BatchState with a single-writer discipline: every
// transition takes the mutex, mutates the state, and persists it before
// returning. Per-URL transitions are therefore serialized; no two workers
// can interleave updates to the same entry.
type Ledger struct {
	mu    sync.Mutex
	store storage.StateStore
	state *models.BatchState
}

// NewLedger registers a fresh batch state and persists it.
func NewLedger(store storage.StateStore, state *models.BatchState) (*Ledger, error) {
	l := &Ledger{store: store, state: state}
	if err := store.SaveState(state); err != nil {
		return nil, err
	}
	return l, nil
}

// OpenLedger reloads a previously persisted batch state.
func OpenLedger(store storage.StateStore, batchID string) (*Ledger, error) {
	state, err := store.LoadState(batchID)
	if err != nil {
		return nil, err
	}
	return &Ledger{store: store, state: state}, nil
}

func (l *Ledger) BatchID() string {
	return l.state.BatchID
}

// Snapshot returns a copy of all entries in batch order.
func (l *Ledger) Snapshot() []models.URLState {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]models.URLState, len(l.state.Entries))
	for i, e := range l.state.Entries {
		out[i] = *e
	}
	return out
}

// Pending returns the entries still awaiting a fetch, in batch order.
func (l *Ledger) Pending() []models.URLState {
	return l.withStatus(models.URLPending)
}

// Fetched returns the entries awaiting a parse, in batch order.
func (l *Ledger) Fetched() []models.URLState {
	return l.withStatus(models.URLFetched)
}

func (l *Ledger) withStatus(status models.URLStatus) []models.URLState {
	l.mu.Lock()
	defer l.mu.Unlock()

	var out []models.URLState
	for _, e := range l.state.Entries {
		if e.Status == status {
			out = append(out, *e)
		}
	}
	return out
}

// MarkFetched transitions pending→fetched.
func (l *Ledger) MarkFetched(url string) error {
	return l.transition(url, models.URLFetched, "")
}

// MarkFetchFailed transitions pending→fetch_failed (terminal).
func (l *Ledger) MarkFetchFailed(url, reason string) error {
	return l.transition(url, models.URLFetchFailed, reason)
}

// MarkParsed transitions fetched→parsed (terminal).
func (l *Ledger) MarkParsed(url string) error {
	return l.transition(url, models.URLParsed, "")
}

// MarkParseFailed transitions fetched→parse_failed (terminal).
func (l *Ledger) MarkParseFailed(url, reason string) error {
	return l.transition(url, models.URLParseFailed, reason)
}

// Requeue re-enters a terminal entry for reprocessing: entries with a raw
// snapshot drop back to fetched, fetch failures back to pending. Only the
// explicit re-run path (--force) calls this.
func (l *Ledger) Requeue(url string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	e := l.state.Entry(url)
	if e == nil {
		return fmt.Errorf("batch: url not in batch %s: %s", l.state.BatchID, url)
	}
	switch e.Status {
	case models.URLParsed, models.URLParseFailed:
		e.Status = models.URLFetched
	case models.URLFetchFailed:
		e.Status = models.URLPending
	default:
		return nil
	}
	e.Reason = ""
	return l.store.SaveState(l.state)
}

func (l *Ledger) transition(url string, to models.URLStatus, reason string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	e := l.state.Entry(url)
	if e == nil {
		return fmt.Errorf("batch: url not in batch %s: %s", l.state.BatchID, url)
	}

	now := time.Now().UTC()
	e.Status = to
	e.Reason = reason
	switch to {
	case models.URLFetched:
		e.FetchedAt = &now
	case models.URLParsed, models.URLParseFailed:
		e.ParsedAt = &now
	}
	return l.store.SaveState(l.state)
}
