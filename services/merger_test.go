package services

import (
	"math"
	"reflect"
	"testing"

	"realestate-scraper/extract"
	"realestate-scraper/models"
	"realestate-scraper/schema"
	"realestate-scraper/utils"
)

func newTestMerger() *Merger {
	return NewMerger(schema.NewRegistry(), utils.NewLogger())
}

func partialWith(strategy string, fields map[string]models.FieldValue) models.PartialRecord {
	p := models.NewPartialRecord(strategy)
	for name, fv := range fields {
		fv.Strategy = strategy
		p.Fields[name] = fv
	}
	return p
}

func TestMergeStrategyPriority(t *testing.T) {
	m := newTestMerger()
	doc := &extract.RawDocument{PlatformID: "redfin", SourceURL: "https://example.com/home/1"}

	partials := []models.PartialRecord{
		partialWith(extract.StrategySchemaOrg, map[string]models.FieldValue{
			models.FieldBeds: {Value: float64(3), Confidence: 0.9},
		}),
		partialWith(extract.StrategyRegex, map[string]models.FieldValue{
			models.FieldBeds: {Value: float64(4), Confidence: 0.4},
		}),
	}

	rec := m.Merge("redfin", doc, partials)
	if rec.Beds == nil || *rec.Beds != 3 {
		t.Errorf("beds = %v; want 3 (schema_org wins by priority)", rec.Beds)
	}
}

func TestMergeConfidenceOverridesPriority(t *testing.T) {
	m := newTestMerger()
	doc := &extract.RawDocument{SourceURL: "https://example.com/home/2"}

	// Regex is last in priority but its confidence exceeds the margin over
	// the structured value, so it wins.
	partials := []models.PartialRecord{
		partialWith(extract.StrategySchemaOrg, map[string]models.FieldValue{
			models.FieldListPrice: {Value: "100000", Confidence: 0.3},
		}),
		partialWith(extract.StrategyRegex, map[string]models.FieldValue{
			models.FieldListPrice: {Value: float64(250000), Confidence: 0.9},
		}),
	}

	rec := m.Merge("zillow", doc, partials)
	if rec.ListPrice == nil || *rec.ListPrice != 250000 {
		t.Errorf("list_price = %v; want 250000 (confidence override)", rec.ListPrice)
	}
}

func TestMergePerFieldPriorityTables(t *testing.T) {
	m := newTestMerger()
	doc := &extract.RawDocument{SourceURL: "https://example.com/home/3"}

	partials := []models.PartialRecord{
		partialWith(extract.StrategySchemaOrg, map[string]models.FieldValue{
			models.FieldDescription: {Value: "short blurb", Confidence: 0.7},
			models.FieldListPrice:   {Value: float64(400000), Confidence: 0.9},
		}),
		partialWith(extract.StrategyEmbeddedState, map[string]models.FieldValue{
			models.FieldDescription: {Value: "full marketing remarks", Confidence: 0.8},
			models.FieldListPrice:   {Value: float64(410000), Confidence: 0.8},
		}),
	}

	rec := m.Merge("zillow", doc, partials)
	// description prefers embedded state; price prefers structured metadata.
	if rec.Description != "full marketing remarks" {
		t.Errorf("description = %q; want embedded-state value", rec.Description)
	}
	if rec.ListPrice == nil || *rec.ListPrice != 400000 {
		t.Errorf("list_price = %v; want 400000 (schema_org first)", rec.ListPrice)
	}
}

func TestMergeIdempotentListingID(t *testing.T) {
	m := newTestMerger()
	doc := &extract.RawDocument{SourceURL: "https://example.com/home/4"}
	partials := []models.PartialRecord{
		partialWith(extract.StrategyEmbeddedState, map[string]models.FieldValue{
			models.FieldStreet:     {Value: "789 Pine Rd", Confidence: 0.8},
			models.FieldCity:       {Value: "Austin", Confidence: 0.8},
			models.FieldState:      {Value: "TX", Confidence: 0.8},
			models.FieldPostalCode: {Value: "78703", Confidence: 0.8},
			models.FieldBeds:       {Value: float64(2), Confidence: 0.8},
			models.FieldListPrice:  {Value: float64(300000), Confidence: 0.8},
		}),
	}

	a := m.Merge("redfin", doc, partials)
	b := m.Merge("redfin", doc, partials)

	if a.ListingID == "" || a.ListingID != b.ListingID {
		t.Errorf("listing ids differ across reprocessing: %q vs %q", a.ListingID, b.ListingID)
	}
	// Field values must match too (timestamps aside).
	b.ScrapedAt = a.ScrapedAt
	if !reflect.DeepEqual(a, b) {
		t.Errorf("records differ across reprocessing:\n%+v\n%+v", a, b)
	}
}

func TestMergeDerivesPricePerSqft(t *testing.T) {
	m := newTestMerger()
	doc := &extract.RawDocument{SourceURL: "https://example.com/home/5"}
	partials := []models.PartialRecord{
		partialWith(extract.StrategySchemaOrg, map[string]models.FieldValue{
			models.FieldListPrice:        {Value: float64(450000), Confidence: 0.9},
			models.FieldInteriorAreaSqft: {Value: float64(1500), Confidence: 0.9},
		}),
	}

	rec := m.Merge("redfin", doc, partials)
	if rec.PricePerSqft == nil {
		t.Fatal("price_per_sqft not derived")
	}
	want := 450000.0 / 1500.0
	if math.Abs(*rec.PricePerSqft-want)/want > 0.01 {
		t.Errorf("price_per_sqft = %v; want within 1%% of %v", *rec.PricePerSqft, want)
	}
}

func TestMergePricePerSqftNilWhenInputsMissing(t *testing.T) {
	m := newTestMerger()
	doc := &extract.RawDocument{SourceURL: "https://example.com/home/6"}

	cases := [][]models.PartialRecord{
		{partialWith(extract.StrategySchemaOrg, map[string]models.FieldValue{
			models.FieldListPrice: {Value: float64(450000), Confidence: 0.9},
		})},
		{partialWith(extract.StrategySchemaOrg, map[string]models.FieldValue{
			models.FieldInteriorAreaSqft: {Value: float64(1500), Confidence: 0.9},
		})},
		{partialWith(extract.StrategySchemaOrg, map[string]models.FieldValue{
			models.FieldListPrice:        {Value: float64(450000), Confidence: 0.9},
			models.FieldInteriorAreaSqft: {Value: float64(0), Confidence: 0.9},
		})},
	}

	for i, partials := range cases {
		rec := m.Merge("redfin", doc, partials)
		if rec.PricePerSqft != nil {
			t.Errorf("case %d: price_per_sqft = %v; want nil", i, *rec.PricePerSqft)
		}
	}
}

func TestMergeNullSafety(t *testing.T) {
	// A document with no recognizable price yields a nil ListPrice, never 0.
	m := newTestMerger()
	doc := &extract.RawDocument{SourceURL: "https://example.com/home/7"}
	partials := []models.PartialRecord{
		partialWith(extract.StrategySchemaOrg, map[string]models.FieldValue{
			models.FieldBeds: {Value: float64(2), Confidence: 0.9},
		}),
		models.NewPartialRecord(extract.StrategyRegex),
	}

	rec := m.Merge("redfin", doc, partials)
	if rec.ListPrice != nil {
		t.Errorf("list_price = %v; want nil", *rec.ListPrice)
	}
	if rec.PricePerSqft != nil {
		t.Error("price_per_sqft should be nil without inputs")
	}
}

func TestMergeCoercionFailureNullsField(t *testing.T) {
	m := newTestMerger()
	doc := &extract.RawDocument{SourceURL: "https://example.com/home/8"}
	partials := []models.PartialRecord{
		partialWith(extract.StrategyEmbeddedState, map[string]models.FieldValue{
			models.FieldListPrice: {Value: "call for pricing", Confidence: 0.8},
			models.FieldBeds:      {Value: float64(3), Confidence: 0.8},
		}),
	}

	rec := m.Merge("zillow", doc, partials)
	if rec.ListPrice != nil {
		t.Errorf("list_price = %v; want nil after coercion failure", *rec.ListPrice)
	}
	if rec.Beds == nil || *rec.Beds != 3 {
		t.Errorf("beds = %v; coercion failure must not affect other fields", rec.Beds)
	}
}

func TestMergeStatusDefaultsToUnknown(t *testing.T) {
	m := newTestMerger()
	doc := &extract.RawDocument{SourceURL: "https://example.com/home/9"}
	rec := m.Merge("redfin", doc, []models.PartialRecord{models.NewPartialRecord(extract.StrategyRegex)})
	if rec.Status != models.StatusUnknown {
		t.Errorf("status = %v; want unknown", rec.Status)
	}
}

// End-to-end scenario from the pipeline contract: a document whose only
// machine-readable data is a JSON-LD block with numberOfRooms and price.
func TestMergeEndToEndSchemaOrgOnly(t *testing.T) {
	html := `<html><head><script type="application/ld+json">
	{"@type":"RealEstateListing","numberOfRooms":3,"offers":{"@type":"Offer","price":"450000"}}
	</script></head><body></body></html>`

	doc := &extract.RawDocument{PlatformID: "redfin", SourceURL: "https://example.com/home/10", HTML: html}
	partials := extract.RunAll(doc, extract.DefaultStrategies())

	rec := newTestMerger().Merge("redfin", doc, partials)
	if rec.Beds == nil || *rec.Beds != 3 {
		t.Errorf("beds = %v; want 3", rec.Beds)
	}
	if rec.ListPrice == nil || *rec.ListPrice != 450000 {
		t.Errorf("list_price = %v; want 450000", rec.ListPrice)
	}
	if rec.Status != models.StatusUnknown {
		t.Errorf("status = %v; want unknown when absent from source", rec.Status)
	}
}
