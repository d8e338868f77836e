package services

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math"
	"strings"
	"time"

	"realestate-scraper/extract"
	"realestate-scraper/models"
	"realestate-scraper/schema"
	"realestate-scraper/utils"
)

// MergePolicy declares, per field, which strategy to trust first. Fields
// absent from PerField use the Default order. Margin is how much higher a
// lower-priority strategy's confidence must be to override priority order.
type MergePolicy struct {
	Default  []string
	PerField map[string][]string
	Margin   float64
}

// DefaultMergePolicy trusts structured metadata first for hard attributes,
// but prefers embedded state for the fields source pages only ship in their
// bootstrap blobs (descriptions, market signals, status, media order).
func DefaultMergePolicy() MergePolicy {
	structuredFirst := []string{extract.StrategySchemaOrg, extract.StrategyEmbeddedState, extract.StrategyRegex}
	embeddedFirst := []string{extract.StrategyEmbeddedState, extract.StrategySchemaOrg, extract.StrategyRegex}

	return MergePolicy{
		Default: structuredFirst,
		PerField: map[string][]string{
			models.FieldDescription:        embeddedFirst,
			models.FieldStatus:             embeddedFirst,
			models.FieldDaysOnMarket:       embeddedFirst,
			models.FieldViews:              embeddedFirst,
			models.FieldSaves:              embeddedFirst,
			models.FieldShareCount:         embeddedFirst,
			models.FieldPhotos:             embeddedFirst,
			models.FieldVideos:             embeddedFirst,
			models.FieldFloorplans:         embeddedFirst,
			models.FieldExternalPropertyID: embeddedFirst,
			models.FieldUnit:               embeddedFirst,
		},
		Margin: 0.25,
	}
}

// Merger combines strategy partials into one normalized ListingRecord.
type Merger struct {
	registry *schema.Registry
	policy   MergePolicy
	logger   *utils.Logger
}

// NewMerger creates a Merger using the default policy.
func NewMerger(registry *schema.Registry, logger *utils.Logger) *Merger {
	return NewMergerWithPolicy(registry, DefaultMergePolicy(), logger)
}

// NewMergerWithPolicy creates a Merger with an externally supplied policy,
// letting a config layer swap the priority tables without touching core code.
func NewMergerWithPolicy(registry *schema.Registry, policy MergePolicy, logger *utils.Logger) *Merger {
	return &Merger{registry: registry, policy: policy, logger: logger}
}

// Merge selects the best value per field across the ordered partials, runs
// schema coercion on every selected value, derives price_per_sqft, and
// assigns a deterministic listing id. It never fails: unusable fields end
// up nil.
func (m *Merger) Merge(platformID string, doc *extract.RawDocument, partials []models.PartialRecord) *models.ListingRecord {
	rec := &models.ListingRecord{
		PlatformID: platformID,
		SourceURL:  doc.SourceURL,
		ScrapedAt:  time.Now().UTC(),
		Status:     models.StatusUnknown,
	}

	for _, name := range m.registry.Fields() {
		fv, ok := m.selectField(name, partials)
		if !ok {
			continue
		}

		coerced, err := m.registry.Coerce(name, fv.Value)
		if err != nil {
			m.logger.Warn("[merge] %s: dropping field %s from %s: %v", doc.SourceURL, name, fv.Strategy, err)
			continue
		}
		m.assign(rec, name, coerced)
	}

	m.derivePricePerSqft(rec)
	rec.ListingID = DeriveListingID(platformID, doc.SourceURL, rec.Address)
	return rec
}

// selectField picks one candidate per the policy: priority order wins
// unless another candidate's confidence exceeds the priority pick's by more
// than the margin; remaining ties go to the first-listed partial.
func (m *Merger) selectField(name string, partials []models.PartialRecord) (models.FieldValue, bool) {
	var candidates []models.FieldValue
	for _, p := range partials {
		if fv, ok := p.Fields[name]; ok && fv.Value != nil {
			candidates = append(candidates, fv)
		}
	}
	if len(candidates) == 0 {
		return models.FieldValue{}, false
	}
	if len(candidates) == 1 {
		return candidates[0], true
	}

	order := m.policy.Default
	if o, ok := m.policy.PerField[name]; ok {
		order = o
	}

	rank := func(strategy string) int {
		for i, s := range order {
			if s == strategy {
				return i
			}
		}
		return len(order)
	}

	chosen := candidates[0]
	for _, c := range candidates[1:] {
		if rank(c.Strategy) < rank(chosen.Strategy) {
			chosen = c
		}
	}

	best := candidates[0]
	for _, c := range candidates[1:] {
		if c.Confidence > best.Confidence {
			best = c
		}
	}

	if best.Strategy != chosen.Strategy && best.Confidence-chosen.Confidence > m.policy.Margin {
		m.logger.Warn("[merge] field %s: confidence override %s(%.2f) over %s(%.2f)",
			name, best.Strategy, best.Confidence, chosen.Strategy, chosen.Confidence)
		return best, true
	}

	if disagrees(candidates) {
		m.logger.Warn("[merge] field %s: strategies disagree, keeping %s by priority", name, chosen.Strategy)
	}
	return chosen, true
}

func disagrees(candidates []models.FieldValue) bool {
	first := fmt.Sprintf("%v", candidates[0].Value)
	for _, c := range candidates[1:] {
		if fmt.Sprintf("%v", c.Value) != first {
			return true
		}
	}
	return false
}

// assign writes one coerced value into its record slot.
func (m *Merger) assign(rec *models.ListingRecord, name string, v any) {
	if v == nil {
		return
	}
	switch name {
	case models.FieldStreet:
		rec.Address.Street = v.(string)
	case models.FieldUnit:
		rec.Address.Unit = v.(string)
	case models.FieldCity:
		rec.Address.City = v.(string)
	case models.FieldState:
		rec.Address.State = v.(string)
	case models.FieldPostalCode:
		rec.Address.PostalCode = v.(string)
	case models.FieldBeds:
		f := v.(float64)
		rec.Beds = &f
	case models.FieldBaths:
		f := v.(float64)
		rec.Baths = &f
	case models.FieldInteriorAreaSqft:
		n := v.(int)
		rec.InteriorAreaSqft = &n
	case models.FieldLotSqft:
		n := v.(int)
		rec.LotSqft = &n
	case models.FieldYearBuilt:
		n := v.(int)
		rec.YearBuilt = &n
	case models.FieldCondition:
		rec.Condition = v.(string)
	case models.FieldStatus:
		rec.Status = v.(models.ListingStatus)
	case models.FieldListDate:
		t := v.(time.Time)
		rec.ListDate = &t
	case models.FieldDaysOnMarket:
		n := v.(int)
		rec.DaysOnMarket = &n
	case models.FieldListPrice:
		f := v.(float64)
		rec.ListPrice = &f
	case models.FieldDescription:
		rec.Description = v.(string)
	case models.FieldPhotos:
		rec.Photos = v.([]string)
	case models.FieldVideos:
		rec.Videos = v.([]string)
	case models.FieldFloorplans:
		rec.Floorplans = v.([]string)
	case models.FieldViews:
		n := v.(int)
		rec.Views = &n
	case models.FieldSaves:
		n := v.(int)
		rec.Saves = &n
	case models.FieldShareCount:
		n := v.(int)
		rec.ShareCount = &n
	case models.FieldExternalPropertyID:
		rec.ExternalPropertyID = v.(string)
	}
}

// derivePricePerSqft fills the derived field when both inputs are present
// and sane; otherwise it stays nil.
func (m *Merger) derivePricePerSqft(rec *models.ListingRecord) {
	if rec.ListPrice == nil || rec.InteriorAreaSqft == nil || *rec.InteriorAreaSqft <= 0 {
		return
	}
	pps := math.Round(*rec.ListPrice / float64(*rec.InteriorAreaSqft) * 100) / 100
	rec.PricePerSqft = &pps
}

// DeriveListingID produces a stable id from platform, source URL and the
// canonical address, so the same listing reprocessed twice yields the same
// id even when the source ships no id of its own.
func DeriveListingID(platformID, sourceURL string, addr models.Address) string {
	canonical := strings.ToLower(schema.NormalizeText(strings.Join([]string{
		addr.Street, addr.Unit, addr.City, addr.State, addr.PostalCode,
	}, " ")))
	sum := sha256.Sum256([]byte(platformID + "|" + strings.ToLower(sourceURL) + "|" + canonical))
	return hex.EncodeToString(sum[:])[:16]
}
