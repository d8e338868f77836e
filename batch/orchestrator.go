// Package batch drives the fetch→parse pipeline for one batch of listing
// URLs, with resumable, idempotent state tracking.
package batch

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"realestate-scraper/config"
	"realestate-scraper/extract"
	"realestate-scraper/models"
	"realestate-scraper/services"
	"realestate-scraper/storage"
	"realestate-scraper/utils"
)

// detailIdxBase is the first snapshot index for detail pages; search pages
// occupy the low range.
const detailIdxBase = 1001

// Fetcher is the external raw-fetch collaborator. Any error means
// fetch_failed for that URL; the orchestrator does not retry beyond what
// the collaborator does internally.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (string, error)
}

// Deps are the collaborators the orchestrator drives.
type Deps struct {
	Snapshots storage.SnapshotStore
	Records   storage.RecordStore
	States    storage.StateStore
	Fetcher   Fetcher
	Sinks     []storage.RecordSink
}

// Orchestrator owns batch state and drives the pipeline. ListingRecords
// are write-once per attempt; BatchState is the only shared mutable
// structure and all writes to it go through the Ledger.
type Orchestrator struct {
	cfg        *config.Config
	logger     *utils.Logger
	deps       Deps
	merger     *services.Merger
	dedup      *services.Deduplicator
	strategies []extract.Strategy

	mu        sync.Mutex
	backlinks []services.Backlink
}

// New creates an Orchestrator with the default strategy set.
func New(cfg *config.Config, logger *utils.Logger, merger *services.Merger, deps Deps) *Orchestrator {
	return &Orchestrator{
		cfg:        cfg,
		logger:     logger,
		deps:       deps,
		merger:     merger,
		dedup:      services.NewDeduplicator(),
		strategies: extract.DefaultStrategies(),
	}
}

// InitBatch derives the ZIP list from the area config, builds per-platform
// search seeds, persists the seed file, and registers the batch ledger with
// the configured detail URLs as pending entries. Returns the new ledger.
func (o *Orchestrator) InitBatch(seeds *config.SeedConfig) (*Ledger, error) {
	var zipCount int
	var searchPages []models.SearchSeed
	for _, area := range seeds.Areas {
		for _, zip := range area.Zips {
			zipCount++
			if seeds.Seeds.RedfinZipSearch != "" {
				searchPages = append(searchPages, models.SearchSeed{
					PlatformID: "redfin",
					Zip:        zip,
					URL:        strings.ReplaceAll(seeds.Seeds.RedfinZipSearch, "{ZIP}", zip),
				})
			}
			if seeds.Seeds.ZillowZipSearch != "" {
				searchPages = append(searchPages, models.SearchSeed{
					PlatformID: "zillow",
					Zip:        zip,
					URL:        strings.ReplaceAll(seeds.Seeds.ZillowZipSearch, "{ZIP}", zip),
				})
			}
		}
	}

	batchID := o.uniqueBatchID(fmt.Sprintf("%s_zips%d", time.Now().UTC().Format("2006-01-02"), zipCount))

	state := &models.BatchState{
		BatchID:   batchID,
		CreatedAt: time.Now().UTC(),
	}
	var detailPages []models.SearchSeed
	seen := utils.NewURLSet()
	for _, url := range seeds.Seeds.DetailURLs {
		if !seen.Add(url) {
			o.logger.Debug("[batch] Skipping duplicate seed url: %s", url)
			continue
		}
		platform := platformFromURL(url)
		detailPages = append(detailPages, models.SearchSeed{PlatformID: platform, URL: url})
		state.Entries = append(state.Entries, &models.URLState{
			Idx:        detailIdxBase + seen.Size() - 1,
			URL:        url,
			PlatformID: platform,
			Status:     models.URLPending,
		})
	}

	if err := o.deps.States.SaveSeeds(&models.BatchSeeds{
		BatchID:     batchID,
		GeneratedAt: time.Now().UTC(),
		SearchPages: searchPages,
		DetailPages: detailPages,
	}); err != nil {
		return nil, fmt.Errorf("batch: persist seeds: %w", err)
	}

	ledger, err := NewLedger(o.deps.States, state)
	if err != nil {
		return nil, fmt.Errorf("batch: register ledger: %w", err)
	}
	if err := o.seedDedupIndex(); err != nil {
		return nil, err
	}

	o.logger.Info("[batch] Initialized %s — %d zips, %d search seeds, %d detail urls",
		batchID, zipCount, len(searchPages), len(detailPages))
	return ledger, nil
}

// uniqueBatchID suffixes the id when a batch with the same name already
// exists (two inits on the same day).
func (o *Orchestrator) uniqueBatchID(base string) string {
	id := base
	for n := 2; ; n++ {
		if _, err := o.deps.States.LoadState(id); err != nil {
			return id
		}
		id = fmt.Sprintf("%s-%d", base, n)
	}
}

// Resume reloads a batch ledger. Subsequent Fetch/Parse calls naturally
// process only the non-terminal remainder, and the dedup index is re-seeded
// from every record already on disk, earlier batches included, so a
// re-scraped listing links back to the batch that first saw it.
func (o *Orchestrator) Resume(batchID string) (*Ledger, error) {
	ledger, err := OpenLedger(o.deps.States, batchID)
	if err != nil {
		return nil, err
	}
	if err := o.seedDedupIndex(); err != nil {
		return nil, err
	}

	remaining := 0
	for _, e := range ledger.Snapshot() {
		if !e.Status.Terminal() {
			remaining++
		}
	}
	o.logger.Info("[batch] Resumed %s — %d urls not yet terminal", batchID, remaining)
	return ledger, nil
}

// seedDedupIndex loads every persisted record, oldest batch first, so that
// new records match against earlier scrapes of the same listings.
func (o *Orchestrator) seedDedupIndex() error {
	batches, err := o.deps.Records.ListBatches()
	if err != nil {
		return fmt.Errorf("batch: enumerate batches for dedup: %w", err)
	}
	for _, id := range batches {
		records, err := o.deps.Records.ListRecords(id)
		if err != nil {
			return fmt.Errorf("batch: reload records for %s: %w", id, err)
		}
		for _, rec := range records {
			o.dedup.Annotate(rec)
		}
	}
	return nil
}

// Enumerate returns the pending URLs of the batch in order.
func (o *Orchestrator) Enumerate(ledger *Ledger) []string {
	entries := ledger.Pending()
	urls := make([]string, len(entries))
	for i, e := range entries {
		urls[i] = e.URL
	}
	return urls
}

// FetchDetails fetches up to n pending URLs through the worker pool,
// persisting raw snapshots and transitioning states. Fetch errors become
// fetch_failed entries, never control flow.
func (o *Orchestrator) FetchDetails(ctx context.Context, ledger *Ledger, n int, sum *services.RunSummary) {
	pending := ledger.Pending()
	if n > 0 && len(pending) > n {
		pending = pending[:n]
	}
	if len(pending) == 0 {
		o.logger.Info("[batch] No pending urls to fetch in %s", ledger.BatchID())
		return
	}

	pool := utils.NewWorkerPool(o.cfg.MaxConcurrency, o.cfg.RateLimitMs)
	for _, entry := range pending {
		e := entry
		// Cancelled entries stay pending for the next resume.
		pool.SubmitCtx(ctx, func() {
			o.fetchOne(ctx, ledger, e, sum)
		})
	}
	pool.Wait()
}

func (o *Orchestrator) fetchOne(ctx context.Context, ledger *Ledger, e models.URLState, sum *services.RunSummary) {
	html, err := o.deps.Fetcher.Fetch(ctx, e.URL)
	if err != nil {
		o.logger.Warn("[batch] Fetch failed for %s: %v", e.URL, err)
		o.recordFetchFailed(ledger, e.URL, err.Error())
		sum.AddFetchFailed()
		return
	}
	o.RecordFetched(ledger, e, html, sum)
}

// RecordFetched persists the raw artifact and transitions pending→fetched.
func (o *Orchestrator) RecordFetched(ledger *Ledger, e models.URLState, html string, sum *services.RunSummary) {
	if err := o.deps.Snapshots.SaveSnapshot(ledger.BatchID(), e.Idx, e.URL, e.PlatformID, html); err != nil {
		o.logger.Error("[batch] Snapshot persist failed for %s: %v", e.URL, err)
		o.recordFetchFailed(ledger, e.URL, "persist: "+err.Error())
		sum.AddFetchFailed()
		return
	}
	if err := ledger.MarkFetched(e.URL); err != nil {
		o.logger.Error("[batch] State update failed for %s: %v", e.URL, err)
		sum.AddFetchFailed()
		return
	}
	sum.AddFetched()
}

func (o *Orchestrator) recordFetchFailed(ledger *Ledger, url, reason string) {
	if err := ledger.MarkFetchFailed(url, reason); err != nil {
		o.logger.Error("[batch] State update failed for %s: %v", url, err)
	}
}

// ParseDetails parses up to limit fetched snapshots. With force, terminal
// entries are re-entered first; otherwise terminal states are skipped.
// After the loop the queued duplicate backlinks are applied out-of-band.
func (o *Orchestrator) ParseDetails(ctx context.Context, ledger *Ledger, limit int, force bool, sum *services.RunSummary) {
	if force {
		for _, e := range ledger.Snapshot() {
			if e.Status == models.URLParsed || e.Status == models.URLParseFailed {
				if err := ledger.Requeue(e.URL); err != nil {
					o.logger.Warn("[batch] Requeue failed for %s: %v", e.URL, err)
				}
			}
		}
	} else {
		for _, e := range ledger.Snapshot() {
			if e.Status.Terminal() {
				sum.AddSkipped()
			}
		}
	}

	fetched := ledger.Fetched()
	if limit > 0 && len(fetched) > limit {
		fetched = fetched[:limit]
	}
	if len(fetched) == 0 {
		o.logger.Info("[batch] No fetched urls to parse in %s", ledger.BatchID())
		return
	}

	pool := utils.NewWorkerPool(o.cfg.MaxConcurrency, 0)
	var parsed []*models.ListingRecord
	var parsedMu sync.Mutex

	for _, entry := range fetched {
		e := entry
		// Cancelled entries stay fetched for the next resume.
		pool.SubmitCtx(ctx, func() {
			if rec := o.parseOne(ledger, e, sum); rec != nil {
				parsedMu.Lock()
				parsed = append(parsed, rec)
				parsedMu.Unlock()
			}
		})
	}
	pool.Wait()

	o.applyBacklinks()
	o.flushSinks(parsed)
}

// parseOne runs every strategy over the stored snapshot, merges, dedups and
// persists one listing. Failures are recorded as data on the ledger.
func (o *Orchestrator) parseOne(ledger *Ledger, e models.URLState, sum *services.RunSummary) *models.ListingRecord {
	html, err := o.deps.Snapshots.LoadSnapshot(ledger.BatchID(), e.Idx)
	if err != nil {
		o.RecordParseFailed(ledger, e, "snapshot unavailable: "+err.Error(), sum)
		return nil
	}

	doc := &extract.RawDocument{
		PlatformID: e.PlatformID,
		SourceURL:  e.URL,
		HTML:       html,
	}
	partials := extract.RunAll(doc, o.strategies)

	contributed := 0
	for _, p := range partials {
		if !p.Empty() {
			contributed++
		}
		for _, note := range p.Notes {
			o.logger.Debug("[batch] %s: %s", e.URL, note)
		}
	}
	if contributed == 0 {
		o.RecordParseFailed(ledger, e, "no strategy extracted any fields", sum)
		return nil
	}

	rec := o.merger.Merge(e.PlatformID, doc, partials)
	rec.BatchID = ledger.BatchID()

	links := o.dedup.Annotate(rec)
	if len(links) > 0 {
		o.mu.Lock()
		o.backlinks = append(o.backlinks, links...)
		o.mu.Unlock()
	}

	return o.RecordParsed(ledger, e, rec, sum)
}

// RecordParsed persists the structured artifact and transitions
// fetched→parsed. A persistence error is fatal for this listing only.
func (o *Orchestrator) RecordParsed(ledger *Ledger, e models.URLState, rec *models.ListingRecord, sum *services.RunSummary) *models.ListingRecord {
	if err := o.deps.Records.SaveRecord(ledger.BatchID(), rec); err != nil {
		o.RecordParseFailed(ledger, e, "persist: "+err.Error(), sum)
		return nil
	}
	if err := ledger.MarkParsed(e.URL); err != nil {
		o.logger.Error("[batch] State update failed for %s: %v", e.URL, err)
		sum.AddParseFailed()
		return nil
	}
	sum.AddParsed(rec)
	o.logger.Info("[batch] Parsed %s -> %s", e.URL, rec.ListingID)
	return rec
}

// RecordParseFailed stores the failure artifact and transitions
// fetched→parse_failed.
func (o *Orchestrator) RecordParseFailed(ledger *Ledger, e models.URLState, reason string, sum *services.RunSummary) {
	o.logger.Warn("[batch] Parse failed for %s: %s", e.URL, reason)
	if err := o.deps.Records.SaveFailure(ledger.BatchID(), e.Idx, e.URL, reason); err != nil {
		o.logger.Error("[batch] Failure artifact persist failed for %s: %v", e.URL, err)
	}
	if err := ledger.MarkParseFailed(e.URL, reason); err != nil {
		o.logger.Error("[batch] State update failed for %s: %v", e.URL, err)
	}
	sum.AddParseFailed()
}

// Run pipelines fetch and parse per URL: each worker fetches its listing
// and parses it immediately, so parses overlap with fetches of later URLs.
// Already-fetched leftovers from an interrupted run are parsed too.
func (o *Orchestrator) Run(ctx context.Context, ledger *Ledger, n int, sum *services.RunSummary) {
	pending := ledger.Pending()
	if n > 0 && len(pending) > n {
		pending = pending[:n]
	}

	pool := utils.NewWorkerPool(o.cfg.MaxConcurrency, o.cfg.RateLimitMs)
	var parsed []*models.ListingRecord
	var parsedMu sync.Mutex

	work := func(e models.URLState, needsFetch bool) {
		if needsFetch {
			o.fetchOne(ctx, ledger, e, sum)
			if entry := o.entryState(ledger, e.URL); entry == nil || entry.Status != models.URLFetched {
				return
			}
		}
		if rec := o.parseOne(ledger, e, sum); rec != nil {
			parsedMu.Lock()
			parsed = append(parsed, rec)
			parsedMu.Unlock()
		}
	}

	for _, entry := range ledger.Fetched() {
		e := entry
		pool.SubmitCtx(ctx, func() { work(e, false) })
	}
	for _, entry := range pending {
		e := entry
		pool.SubmitCtx(ctx, func() { work(e, true) })
	}
	pool.Wait()

	o.applyBacklinks()
	o.flushSinks(parsed)
}

func (o *Orchestrator) entryState(ledger *Ledger, url string) *models.URLState {
	for _, e := range ledger.Snapshot() {
		if e.URL == url {
			state := e
			return &state
		}
	}
	return nil
}

// applyBacklinks makes duplicate links symmetric after the batch loop: the
// deduplicator only ever appends to the record it is annotating, so links
// back to earlier records, current batch or not, are applied here,
// out-of-band. A superseding scrape thus updates the superseded batch's
// artifact in place rather than losing the link.
func (o *Orchestrator) applyBacklinks() {
	o.mu.Lock()
	links := o.backlinks
	o.backlinks = nil
	o.mu.Unlock()

	for _, link := range links {
		if link.FromBatch == "" {
			o.logger.Debug("[batch] Backlink target %s has no batch, skipping", link.FromID)
			continue
		}
		rec, err := o.deps.Records.LoadRecord(link.FromBatch, link.FromID)
		if err != nil {
			o.logger.Error("[batch] Backlink target %s missing from batch %s: %v",
				link.FromID, link.FromBatch, err)
			continue
		}
		if containsID(rec.DuplicateCandidates, link.ToID) {
			continue
		}
		rec.DuplicateCandidates = append(rec.DuplicateCandidates, link.ToID)
		rec.PossibleDuplicate = true
		if err := o.deps.Records.SaveRecord(link.FromBatch, rec); err != nil {
			o.logger.Error("[batch] Backlink persist failed for %s: %v", link.FromID, err)
		}
	}
}

// flushSinks forwards successfully parsed records to the secondary sinks.
func (o *Orchestrator) flushSinks(records []*models.ListingRecord) {
	if len(records) == 0 {
		return
	}
	for _, sink := range o.deps.Sinks {
		if err := sink.Write(records); err != nil {
			o.logger.Error("[batch] Sink write failed: %v", err)
		}
	}
}

func platformFromURL(url string) string {
	switch {
	case strings.Contains(url, "redfin.com"):
		return "redfin"
	case strings.Contains(url, "zillow.com"):
		return "zillow"
	}
	return "unknown"
}

func containsID(ids []string, id string) bool {
	for _, existing := range ids {
		if existing == id {
			return true
		}
	}
	return false
}
