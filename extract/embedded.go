package extract

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"realestate-scraper/models"
)

// embeddedSelectors are the inline bootstrap-state blobs source pages ship
// to hydrate their own UI. Next.js state, Zillow shared-data blocks and the
// Apollo preload cache cover the supported sources.
var embeddedSelectors = []string{
	`script#__NEXT_DATA__`,
	`script[data-zrr-shared-data-key]`,
	`script#hdpApolloPreloadedData`,
}

// EmbeddedStateStrategy walks inline application-state JSON along known key
// paths to recover listing attributes.
type EmbeddedStateStrategy struct{}

func NewEmbeddedStateStrategy() *EmbeddedStateStrategy { return &EmbeddedStateStrategy{} }

func (s *EmbeddedStateStrategy) Name() string { return StrategyEmbeddedState }

func (s *EmbeddedStateStrategy) Extract(doc *RawDocument) models.PartialRecord {
	partial := models.NewPartialRecord(StrategyEmbeddedState)

	gq, err := goquery.NewDocumentFromReader(strings.NewReader(doc.HTML))
	if err != nil {
		partial.Note("embedded_state: unparseable document: " + err.Error())
		return partial
	}

	var payloads []any
	for _, selector := range embeddedSelectors {
		gq.Find(selector).Each(func(_ int, sel *goquery.Selection) {
			txt := strings.TrimSpace(sel.Text())
			// Some blobs are wrapped in HTML comments to dodge naive parsers.
			txt = strings.TrimPrefix(txt, "<!--")
			txt = strings.TrimSuffix(txt, "-->")
			txt = strings.TrimSpace(txt)
			if txt == "" {
				return
			}
			var data any
			if err := json.Unmarshal([]byte(txt), &data); err != nil {
				partial.Note("embedded_state: invalid state blob skipped")
				return
			}
			payloads = append(payloads, data)
		})
	}

	if len(payloads) == 0 {
		partial.Note("embedded_state: no state blobs found")
		return partial
	}

	for _, payload := range payloads {
		walkJSON(payload, func(obj map[string]any) {
			s.mapObject(&partial, obj)
		})
	}
	return partial
}

// mapObject walks one state object against the known key paths. First hit
// wins per field: state blobs repeat listing data at several depths and the
// outermost copy is the one the page itself renders.
func (s *EmbeddedStateStrategy) mapObject(partial *models.PartialRecord, obj map[string]any) {
	if id := firstKey(obj, "zpid", "propertyId", "propertyIdStr", "listingId"); id != nil {
		if str, ok := asDigitString(id); ok {
			partial.Set(models.FieldExternalPropertyID, str, confEmbedded)
		}
	}

	street := firstKey(obj, "streetLine", "streetAddress")
	partial.Set(models.FieldStreet, street, confEmbedded)
	partial.Set(models.FieldUnit, firstKey(obj, "unitNumber", "unit"), confEmbedded)
	if street != nil {
		// City/state/zip keys are generic enough to appear on unrelated
		// objects (e.g. nearby-school blocks); only trust them when the same
		// object also carries a street line.
		partial.Set(models.FieldCity, firstKey(obj, "city"), confEmbedded)
		partial.Set(models.FieldState, firstKey(obj, "state", "stateCode"), confEmbedded)
		if zip := firstKey(obj, "zip", "zipcode", "postalCode"); zip != nil {
			if str, ok := asDigitString(zip); ok {
				partial.Set(models.FieldPostalCode, str, confEmbedded)
			}
		}
	}

	partial.Set(models.FieldListPrice, firstKey(obj, "listPrice", "priceForHDP", "price"), confEmbedded)
	partial.Set(models.FieldBeds, firstKey(obj, "beds", "bedrooms"), confEmbedded)
	partial.Set(models.FieldBaths, firstKey(obj, "baths", "bathrooms", "bathsTotal"), confEmbedded)
	partial.Set(models.FieldInteriorAreaSqft,
		firstKey(obj, "squareFeet", "sqFt", "livingArea", "livingAreaValue", "livingAreaSqFt", "finishedSqFt"),
		confEmbedded)
	partial.Set(models.FieldLotSqft, firstKey(obj, "lotSize", "lotAreaValue"), 0.6)
	partial.Set(models.FieldYearBuilt, firstKey(obj, "yearBuilt"), confEmbedded)
	partial.Set(models.FieldStatus, firstKey(obj, "homeStatus", "mlsStatus", "listingStatus"), confEmbedded)
	partial.Set(models.FieldListDate, firstKey(obj, "listDate", "datePosted", "datePostedString"), confEmbedded)
	partial.Set(models.FieldDaysOnMarket, firstKey(obj, "daysOnMarket", "daysOnZillow", "timeOnRedfin"), confEmbedded)
	partial.Set(models.FieldDescription, firstKey(obj, "description", "marketingRemarks", "homeDescription"), confEmbedded)
	partial.Set(models.FieldViews, firstKey(obj, "pageViewCount", "views", "viewCount"), confEmbedded)
	partial.Set(models.FieldSaves, firstKey(obj, "favoriteCount", "saves", "saveCount"), confEmbedded)
	partial.Set(models.FieldShareCount, firstKey(obj, "shareCount"), confEmbedded)

	if photos := collectMediaURLs(obj, "photos", "media", "photoGallery"); len(photos) > 0 {
		partial.Set(models.FieldPhotos, photos, confEmbedded)
	}
	if videos := collectMediaURLs(obj, "videos", "videoGallery"); len(videos) > 0 {
		partial.Set(models.FieldVideos, videos, confEmbedded)
	}
	if plans := collectMediaURLs(obj, "floorplans", "floorPlans"); len(plans) > 0 {
		partial.Set(models.FieldFloorplans, plans, confEmbedded)
	}
}

// collectMediaURLs gathers URL strings from list-of-object media keys in
// page order.
func collectMediaURLs(obj map[string]any, keys ...string) []string {
	var out []string
	seen := make(map[string]struct{})
	add := func(u string) {
		if u == "" {
			return
		}
		if _, dup := seen[u]; dup {
			return
		}
		seen[u] = struct{}{}
		out = append(out, u)
	}

	for _, key := range keys {
		switch v := obj[key].(type) {
		case []any:
			for _, item := range v {
				switch entry := item.(type) {
				case string:
					add(entry)
				case map[string]any:
					if u, ok := firstKey(entry, "url", "href", "src", "rawUrl", "hiRes").(string); ok {
						add(u)
					}
				}
			}
		case string:
			add(v)
		}
	}
	return out
}

// asDigitString accepts numeric ids arriving as strings or JSON numbers.
func asDigitString(v any) (string, bool) {
	switch id := v.(type) {
	case string:
		if id == "" {
			return "", false
		}
		for _, r := range id {
			if r < '0' || r > '9' {
				return "", false
			}
		}
		return id, true
	case float64:
		if id <= 0 || id != float64(int64(id)) {
			return "", false
		}
		return strconv.FormatInt(int64(id), 10), true
	}
	return "", false
}
