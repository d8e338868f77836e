package extract

import (
	"testing"

	"realestate-scraper/models"
)

const schemaOrgDoc = `<html><head>
<script type="application/ld+json">
{
  "@type": "SingleFamilyResidence",
  "name": "123 Main St",
  "numberOfRooms": 3,
  "bathroomCount": 2,
  "yearBuilt": 1987,
  "floorSize": {"@type": "QuantitativeValue", "value": 1500, "unitCode": "FTK"},
  "address": {
    "@type": "PostalAddress",
    "streetAddress": "123 Main St",
    "addressLocality": "Austin",
    "addressRegion": "TX",
    "postalCode": "78701"
  },
  "offers": {"@type": "Offer", "price": "450000"},
  "image": ["https://img.example.com/1.jpg", "https://img.example.com/2.jpg"]
}
</script>
</head><body>A lovely home.</body></html>`

const embeddedStateDoc = `<html><head>
<script id="__NEXT_DATA__" type="application/json">
{"props":{"pageProps":{"property":{
  "propertyId": "441210",
  "streetLine": "456 Oak Ave",
  "unitNumber": "2B",
  "city": "Austin",
  "state": "TX",
  "zip": "78702",
  "listPrice": 525000,
  "beds": 4,
  "baths": 2.5,
  "squareFeet": 1900,
  "yearBuilt": 2001,
  "mlsStatus": "Active",
  "daysOnMarket": 12,
  "pageViewCount": 321,
  "favoriteCount": 18,
  "description": "Updated craftsman near downtown.",
  "photos": [{"url": "https://photos.example.com/a.jpg"}, {"url": "https://photos.example.com/b.jpg"}]
}}}}
</script>
</head><body></body></html>`

const regexOnlyDoc = `<html><body>
<h1>Charming bungalow</h1>
<p>Asking $389,900 — 3 beds, 2 baths, 1,250 sqft. Year built: 1954.</p>
</body></html>`

func TestSchemaOrgStrategy(t *testing.T) {
	s := NewSchemaOrgStrategy()
	partial := s.Extract(&RawDocument{PlatformID: "redfin", HTML: schemaOrgDoc})

	wantFields := map[string]any{
		models.FieldBeds:       float64(3),
		models.FieldBaths:      float64(2),
		models.FieldYearBuilt:  float64(1987),
		models.FieldListPrice:  "450000",
		models.FieldStreet:     "123 Main St",
		models.FieldCity:       "Austin",
		models.FieldState:      "TX",
		models.FieldPostalCode: "78701",
	}
	for name, want := range wantFields {
		fv, ok := partial.Fields[name]
		if !ok {
			t.Errorf("field %q missing from schema.org partial", name)
			continue
		}
		if fv.Value != want {
			t.Errorf("field %q = %v (%T); want %v", name, fv.Value, fv.Value, want)
		}
		if fv.Strategy != StrategySchemaOrg {
			t.Errorf("field %q strategy = %q", name, fv.Strategy)
		}
	}

	if area, ok := partial.Fields[models.FieldInteriorAreaSqft]; !ok || area.Value != float64(1500) {
		t.Errorf("interior_area_sqft = %v; want 1500", area.Value)
	}
	if photos, ok := partial.Fields[models.FieldPhotos]; ok {
		urls := photos.Value.([]any)
		if len(urls) != 2 {
			t.Errorf("photos = %v; want 2 urls", urls)
		}
	} else {
		t.Error("photos missing from schema.org partial")
	}
}

func TestSchemaOrgStrategyTrimsAvailabilityURL(t *testing.T) {
	doc := `<html><head><script type="application/ld+json">
{"@type": "SingleFamilyResidence",
 "address": {"streetAddress": "9 Fir Rd", "addressLocality": "Austin"},
 "offers": {"@type": "Offer", "price": "450000", "availability": "https://schema.org/InStock"}}
</script></head><body></body></html>`

	s := NewSchemaOrgStrategy()
	partial := s.Extract(&RawDocument{PlatformID: "redfin", HTML: doc})

	fv, ok := partial.Fields[models.FieldStatus]
	if !ok {
		t.Fatal("status missing from schema.org partial")
	}
	if fv.Value != "InStock" {
		t.Errorf("status = %v; want the URL trimmed to InStock", fv.Value)
	}
}

func TestEmbeddedStateStrategy(t *testing.T) {
	s := NewEmbeddedStateStrategy()
	partial := s.Extract(&RawDocument{PlatformID: "redfin", HTML: embeddedStateDoc})

	checks := map[string]any{
		models.FieldExternalPropertyID: "441210",
		models.FieldStreet:             "456 Oak Ave",
		models.FieldUnit:               "2B",
		models.FieldCity:               "Austin",
		models.FieldPostalCode:         "78702",
		models.FieldListPrice:          float64(525000),
		models.FieldBeds:               float64(4),
		models.FieldBaths:              float64(2.5),
		models.FieldInteriorAreaSqft:   float64(1900),
		models.FieldStatus:             "Active",
		models.FieldDaysOnMarket:       float64(12),
		models.FieldViews:              float64(321),
		models.FieldSaves:              float64(18),
		models.FieldDescription:        "Updated craftsman near downtown.",
	}
	for name, want := range checks {
		fv, ok := partial.Fields[name]
		if !ok {
			t.Errorf("field %q missing from embedded-state partial", name)
			continue
		}
		if fv.Value != want {
			t.Errorf("field %q = %v; want %v", name, fv.Value, want)
		}
	}

	photos, ok := partial.Fields[models.FieldPhotos]
	if !ok {
		t.Fatal("photos missing from embedded-state partial")
	}
	urls := photos.Value.([]string)
	if len(urls) != 2 || urls[0] != "https://photos.example.com/a.jpg" {
		t.Errorf("photos = %v; want ordered pair starting with a.jpg", urls)
	}
}

// Two sibling state objects both carrying listing fields; the first in key
// order must win on every run.
const siblingListingsDoc = `<html><head>
<script id="__NEXT_DATA__" type="application/json">
{"listingCard": {"streetLine": "12 Birch Ln", "listPrice": 410000},
 "searchResult": {"streetLine": "99 Spruce Ct", "listPrice": 620000}}
</script>
</head><body></body></html>`

func TestEmbeddedStateSiblingOrderIsStable(t *testing.T) {
	s := NewEmbeddedStateStrategy()
	for i := 0; i < 100; i++ {
		partial := s.Extract(&RawDocument{PlatformID: "redfin", HTML: siblingListingsDoc})
		if fv := partial.Fields[models.FieldStreet]; fv.Value != "12 Birch Ln" {
			t.Fatalf("run %d: street = %v; want the first sibling's value every run", i, fv.Value)
		}
		if fv := partial.Fields[models.FieldListPrice]; fv.Value != float64(410000) {
			t.Fatalf("run %d: list_price = %v; want 410000 every run", i, fv.Value)
		}
	}
}

func TestEmbeddedStateIgnoresLocalityWithoutStreet(t *testing.T) {
	// City/state/zip on an object with no street line (a nearby-schools
	// block, say) must not be attributed to the listing.
	doc := `<html><head>
<script id="__NEXT_DATA__" type="application/json">
{"property": {"streetLine": "77 Cedar St", "listPrice": 350000},
 "schoolsNearby": {"city": "Round Rock", "state": "TX", "zip": "78664"}}
</script>
</head><body></body></html>`

	s := NewEmbeddedStateStrategy()
	partial := s.Extract(&RawDocument{PlatformID: "redfin", HTML: doc})

	if fv := partial.Fields[models.FieldStreet]; fv.Value != "77 Cedar St" {
		t.Errorf("street = %v; want 77 Cedar St", fv.Value)
	}
	for _, name := range []string{models.FieldCity, models.FieldState, models.FieldPostalCode} {
		if fv, ok := partial.Fields[name]; ok {
			t.Errorf("field %q = %v captured from an object with no street line", name, fv.Value)
		}
	}
}

func TestRegexStrategy(t *testing.T) {
	s := NewRegexStrategy()
	partial := s.Extract(&RawDocument{PlatformID: "unknown", HTML: regexOnlyDoc})

	if fv := partial.Fields[models.FieldListPrice]; fv.Value != float64(389900) {
		t.Errorf("list_price = %v; want 389900", fv.Value)
	}
	if fv := partial.Fields[models.FieldBeds]; fv.Value != float64(3) {
		t.Errorf("beds = %v; want 3", fv.Value)
	}
	if fv := partial.Fields[models.FieldBaths]; fv.Value != float64(2) {
		t.Errorf("baths = %v; want 2", fv.Value)
	}
	if fv := partial.Fields[models.FieldInteriorAreaSqft]; fv.Value != 1250 {
		t.Errorf("interior_area_sqft = %v; want 1250", fv.Value)
	}
	if fv := partial.Fields[models.FieldYearBuilt]; fv.Value != 1954 {
		t.Errorf("year_built = %v; want 1954", fv.Value)
	}
}

func TestRegexStrategyConvertsSquareMetres(t *testing.T) {
	s := NewRegexStrategy()
	partial := s.Extract(&RawDocument{HTML: `<html><body>Spacious flat, 100 sqm.</body></html>`})

	fv, ok := partial.Fields[models.FieldInteriorAreaSqft]
	if !ok {
		t.Fatal("expected interior_area_sqft from sqm pattern")
	}
	if fv.Value != 1076 {
		t.Errorf("interior_area_sqft = %v; want 1076 (100 sqm)", fv.Value)
	}
}

func TestStrategiesNeverFailOnGarbage(t *testing.T) {
	docs := []string{
		"",
		"<<<<not html at all",
		`<script type="application/ld+json">{broken json</script>`,
		`<script id="__NEXT_DATA__">{"unterminated": </script>`,
	}

	for _, s := range DefaultStrategies() {
		for _, html := range docs {
			partial := s.Extract(&RawDocument{HTML: html})
			if partial.Strategy != s.Name() {
				t.Errorf("%s: partial not attributed to strategy", s.Name())
			}
			// Empty result plus a note is the contract for malformed input.
			if partial.Empty() && len(partial.Notes) == 0 {
				t.Errorf("%s: empty partial for %q carries no note", s.Name(), html)
			}
		}
	}
}

func TestRunAllPreservesDeclarationOrder(t *testing.T) {
	strategies := DefaultStrategies()
	partials := RunAll(&RawDocument{HTML: regexOnlyDoc}, strategies)

	if len(partials) != len(strategies) {
		t.Fatalf("got %d partials; want %d", len(partials), len(strategies))
	}
	for i, s := range strategies {
		if partials[i].Strategy != s.Name() {
			t.Errorf("partial %d attributed to %q; want %q", i, partials[i].Strategy, s.Name())
		}
	}
}
