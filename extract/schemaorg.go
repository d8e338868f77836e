package extract

import (
	"encoding/json"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"realestate-scraper/models"
)

// listingTypes are the schema.org @type fragments that mark a block as a
// property listing worth mapping.
var listingTypes = []string{
	"residence", "singlefamily", "house", "apartment", "offer", "realestatelisting",
}

// SchemaOrgStrategy extracts fields from schema.org JSON-LD blocks
// (<script type="application/ld+json">) via a static mapping table.
type SchemaOrgStrategy struct{}

func NewSchemaOrgStrategy() *SchemaOrgStrategy { return &SchemaOrgStrategy{} }

func (s *SchemaOrgStrategy) Name() string { return StrategySchemaOrg }

func (s *SchemaOrgStrategy) Extract(doc *RawDocument) models.PartialRecord {
	partial := models.NewPartialRecord(StrategySchemaOrg)

	gq, err := goquery.NewDocumentFromReader(strings.NewReader(doc.HTML))
	if err != nil {
		partial.Note("schema_org: unparseable document: " + err.Error())
		return partial
	}

	blocks := 0
	gq.Find(`script[type="application/ld+json"]`).Each(func(_ int, sel *goquery.Selection) {
		var data any
		if err := json.Unmarshal([]byte(sel.Text()), &data); err != nil {
			partial.Note("schema_org: invalid JSON-LD block skipped")
			return
		}
		blocks++
		walkJSON(data, func(obj map[string]any) {
			s.mapObject(&partial, obj)
		})
	})

	if blocks == 0 {
		partial.Note("schema_org: no JSON-LD blocks found")
	}
	return partial
}

// mapObject applies the schema.org → canonical field mapping to one object.
func (s *SchemaOrgStrategy) mapObject(partial *models.PartialRecord, obj map[string]any) {
	if !isListingType(obj) {
		return
	}

	if offer, ok := obj["offers"].(map[string]any); ok {
		partial.Set(models.FieldListPrice, firstKey(offer, "price", "lowPrice", "highPrice"), confSchemaOrg)
		if avail, ok := offer["availability"].(string); ok {
			// Availability arrives as a schema.org URL (https://schema.org/InStock);
			// keep only the final path segment for the status vocabulary.
			if i := strings.LastIndex(avail, "/"); i >= 0 {
				avail = avail[i+1:]
			}
			partial.Set(models.FieldStatus, avail, confSchemaOrg)
		}
	}
	partial.Set(models.FieldListPrice, firstKey(obj, "price"), confSchemaOrg)

	if addr, ok := obj["address"].(map[string]any); ok {
		partial.Set(models.FieldStreet, firstKey(addr, "streetAddress"), confSchemaOrg)
		partial.Set(models.FieldCity, firstKey(addr, "addressLocality"), confSchemaOrg)
		partial.Set(models.FieldState, firstKey(addr, "addressRegion"), confSchemaOrg)
		partial.Set(models.FieldPostalCode, firstKey(addr, "postalCode"), confSchemaOrg)
	}

	partial.Set(models.FieldBeds, firstKey(obj, "numberOfRooms", "numberOfBedrooms", "bedrooms"), confSchemaOrg)
	partial.Set(models.FieldBaths, firstKey(obj, "bathroomCount", "numberOfBathroomsTotal", "bathrooms"), confSchemaOrg)

	if area, ok := obj["floorSize"].(map[string]any); ok {
		partial.Set(models.FieldInteriorAreaSqft, firstKey(area, "value"), confSchemaOrg)
	}
	if lot, ok := obj["lotSize"].(map[string]any); ok {
		partial.Set(models.FieldLotSqft, firstKey(lot, "value"), confSchemaOrg)
	}

	partial.Set(models.FieldYearBuilt, firstKey(obj, "yearBuilt"), confSchemaOrg)
	partial.Set(models.FieldDescription, firstKey(obj, "description"), 0.7)
	partial.Set(models.FieldListDate, firstKey(obj, "datePosted"), confSchemaOrg)
	partial.Set(models.FieldPhotos, firstKey(obj, "image", "photo"), confSchemaOrg)
}

func isListingType(obj map[string]any) bool {
	t, _ := firstKey(obj, "@type", "type").(string)
	if t == "" {
		return false
	}
	lower := strings.ToLower(t)
	for _, frag := range listingTypes {
		if strings.Contains(lower, frag) {
			return true
		}
	}
	return false
}
