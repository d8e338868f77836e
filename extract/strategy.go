// Package extract contains the per-document extraction strategies. Each
// strategy is a pure function over a raw document: it fills whatever subset
// of the canonical schema it can and never raises on malformed markup.
package extract

import (
	"sort"
	"sync"

	"realestate-scraper/models"
)

// Strategy names, also used as keys in the merger's priority tables.
const (
	StrategySchemaOrg     = "schema_org"
	StrategyEmbeddedState = "embedded_state"
	StrategyRegex         = "regex"
)

// Baseline confidences per strategy. Individual fields may deviate.
const (
	confSchemaOrg = 0.9
	confEmbedded  = 0.8
	confRegex     = 0.4
)

// RawDocument is one fetched listing page. Strategies treat it as read-only.
type RawDocument struct {
	PlatformID string
	SourceURL  string
	HTML       string
}

// Strategy is one self-contained extraction method.
type Strategy interface {
	Name() string
	// Extract never fails: malformed input yields an empty partial with a
	// note attached.
	Extract(doc *RawDocument) models.PartialRecord
}

// DefaultStrategies returns the strategy set in declaration order:
// structured metadata first, embedded state second, regex last resort.
func DefaultStrategies() []Strategy {
	return []Strategy{
		NewSchemaOrgStrategy(),
		NewEmbeddedStateStrategy(),
		NewRegexStrategy(),
	}
}

// RunAll executes every strategy against the document concurrently and
// returns the partials in declaration order so the merger's tie-break stays
// deterministic. Strategies are stateless and read-only.
func RunAll(doc *RawDocument, strategies []Strategy) []models.PartialRecord {
	partials := make([]models.PartialRecord, len(strategies))

	var wg sync.WaitGroup
	for i, s := range strategies {
		wg.Add(1)
		go func(i int, s Strategy) {
			defer wg.Done()
			partials[i] = s.Extract(doc)
		}(i, s)
	}
	wg.Wait()

	return partials
}

// walkJSON visits every JSON object nested inside n, outermost first.
// Sibling objects are visited in sorted key order: Go randomizes map
// iteration, and with first-hit-wins field capture the walk order decides
// which sibling's value sticks, so it must be the same on every run.
func walkJSON(n any, visit func(obj map[string]any)) {
	switch v := n.(type) {
	case map[string]any:
		visit(v)
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			walkJSON(v[k], visit)
		}
	case []any:
		for _, child := range v {
			walkJSON(child, visit)
		}
	}
}

// firstKey returns the first present, non-nil value among the given keys.
func firstKey(obj map[string]any, keys ...string) any {
	for _, k := range keys {
		if v, ok := obj[k]; ok && v != nil {
			return v
		}
	}
	return nil
}
