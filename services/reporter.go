package services

import (
	"fmt"
	"strings"
	"sync"

	"realestate-scraper/models"
)

// RunSummary accumulates per-listing outcomes for one CLI invocation.
// It is safe for concurrent use by the orchestrator's workers.
type RunSummary struct {
	mu sync.Mutex

	BatchID     string
	Fetched     int
	FetchFailed int
	Parsed      int
	ParseFailed int
	Skipped     int
	Duplicates  int

	prices []float64
}

func NewRunSummary(batchID string) *RunSummary {
	return &RunSummary{BatchID: batchID}
}

func (r *RunSummary) AddFetched()     { r.mu.Lock(); r.Fetched++; r.mu.Unlock() }
func (r *RunSummary) AddFetchFailed() { r.mu.Lock(); r.FetchFailed++; r.mu.Unlock() }
func (r *RunSummary) AddParseFailed() { r.mu.Lock(); r.ParseFailed++; r.mu.Unlock() }
func (r *RunSummary) AddSkipped()     { r.mu.Lock(); r.Skipped++; r.mu.Unlock() }

// AddParsed records a successful parse and folds the record into the stats.
func (r *RunSummary) AddParsed(rec *models.ListingRecord) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Parsed++
	if rec.PossibleDuplicate {
		r.Duplicates++
	}
	if rec.ListPrice != nil {
		r.prices = append(r.prices, *rec.ListPrice)
	}
}

// Failures returns the count of listings that ended in a terminal failure
// state during this invocation; the CLI exits non-zero iff it is positive.
func (r *RunSummary) Failures() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.FetchFailed + r.ParseFailed
}

// Print renders the end-of-run summary.
func (r *RunSummary) Print() {
	r.mu.Lock()
	defer r.mu.Unlock()

	sep := strings.Repeat("═", 54)
	thin := strings.Repeat("─", 54)

	fmt.Printf("\n\033[1;35m%s\033[0m\n", sep)
	fmt.Printf("\033[1;35m  BATCH SUMMARY — %s\033[0m\n", r.BatchID)
	fmt.Printf("\033[1;35m%s\033[0m\n\n", sep)

	fmt.Printf("  %s\n", thin)
	fmt.Printf("  Fetched              : \033[1m%d\033[0m\n", r.Fetched)
	fmt.Printf("  Fetch failures       : \033[1m%d\033[0m\n", r.FetchFailed)
	fmt.Printf("  Parsed               : \033[1m%d\033[0m\n", r.Parsed)
	fmt.Printf("  Parse failures       : \033[1m%d\033[0m\n", r.ParseFailed)
	fmt.Printf("  Skipped (terminal)   : \033[1m%d\033[0m\n", r.Skipped)
	fmt.Printf("  Possible duplicates  : \033[1m%d\033[0m\n", r.Duplicates)

	if len(r.prices) > 0 {
		min, max, total := r.prices[0], r.prices[0], 0.0
		for _, p := range r.prices {
			total += p
			if p < min {
				min = p
			}
			if p > max {
				max = p
			}
		}
		fmt.Printf("  %s\n", thin)
		fmt.Printf("  Listings with price  : \033[1m%d\033[0m\n", len(r.prices))
		fmt.Printf("  Price range          : \033[1m$%.0f – $%.0f\033[0m\n", min, max)
		fmt.Printf("  Average list price   : \033[1m$%.0f\033[0m\n", total/float64(len(r.prices)))
	}
	fmt.Println()
}
