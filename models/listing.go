package models

import "time"

// ListingStatus is the canonical market status of a listing.
type ListingStatus string

const (
	StatusActive    ListingStatus = "active"
	StatusPending   ListingStatus = "pending"
	StatusSold      ListingStatus = "sold"
	StatusOffMarket ListingStatus = "off-market"
	StatusUnknown   ListingStatus = "unknown"
)

// Address is the normalized postal address of a listing. Empty strings mean
// the component could not be extracted.
type Address struct {
	Street     string `json:"street"`
	Unit       string `json:"unit,omitempty"`
	City       string `json:"city"`
	State      string `json:"state"`
	PostalCode string `json:"postal_code"`
}

// ListingRecord is the canonical structured output of the extraction
// pipeline. Numeric attributes are pointers: nil means "unparsed", which is
// distinct from a legitimate zero value.
type ListingRecord struct {
	ListingID          string    `json:"listing_id"`
	PlatformID         string    `json:"platform_id"`
	ExternalPropertyID string    `json:"external_property_id,omitempty"`
	SourceURL          string    `json:"source_url"`
	BatchID            string    `json:"batch_id"`
	ScrapedAt          time.Time `json:"scraped_timestamp"`

	Address Address `json:"address"`

	Beds             *float64 `json:"beds"`
	Baths            *float64 `json:"baths"`
	InteriorAreaSqft *int     `json:"interior_area_sqft"`
	LotSqft          *int     `json:"lot_sqft"`
	YearBuilt        *int     `json:"year_built"`
	Condition        string   `json:"condition,omitempty"`

	Status       ListingStatus `json:"status"`
	ListDate     *time.Time    `json:"list_date"`
	DaysOnMarket *int          `json:"days_on_market"`
	ListPrice    *float64      `json:"list_price"`
	PricePerSqft *float64      `json:"price_per_sqft"`

	Photos     []string `json:"photos"`
	Videos     []string `json:"videos,omitempty"`
	Floorplans []string `json:"floorplans,omitempty"`

	Description string `json:"description,omitempty"`

	Views      *int `json:"views"`
	Saves      *int `json:"saves"`
	ShareCount *int `json:"share_count"`

	PossibleDuplicate   bool     `json:"possible_duplicate"`
	DuplicateCandidates []string `json:"duplicate_candidates"`
}

// Canonical field names shared by the schema registry, the extraction
// strategies and the merger.
const (
	FieldStreet             = "street"
	FieldUnit               = "unit"
	FieldCity               = "city"
	FieldState              = "state"
	FieldPostalCode         = "postal_code"
	FieldBeds               = "beds"
	FieldBaths              = "baths"
	FieldInteriorAreaSqft   = "interior_area_sqft"
	FieldLotSqft            = "lot_sqft"
	FieldYearBuilt          = "year_built"
	FieldCondition          = "condition"
	FieldStatus             = "status"
	FieldListDate           = "list_date"
	FieldDaysOnMarket       = "days_on_market"
	FieldListPrice          = "list_price"
	FieldDescription        = "description"
	FieldPhotos             = "photos"
	FieldVideos             = "videos"
	FieldFloorplans         = "floorplans"
	FieldViews              = "views"
	FieldSaves              = "saves"
	FieldShareCount         = "share_count"
	FieldExternalPropertyID = "external_property_id"
)

// FieldValue is one extracted value with its provenance.
type FieldValue struct {
	Value      any
	Confidence float64
	Strategy   string
}

// PartialRecord is the output of a single extraction strategy: whatever
// subset of the canonical fields it managed to recover, plus free-form notes
// about anything that went wrong. A failed strategy returns an empty partial
// with a note, never an error.
type PartialRecord struct {
	Strategy string
	Fields   map[string]FieldValue
	Notes    []string
}

// NewPartialRecord returns an empty partial attributed to the given strategy.
func NewPartialRecord(strategy string) PartialRecord {
	return PartialRecord{
		Strategy: strategy,
		Fields:   make(map[string]FieldValue),
	}
}

// Set records a field value unless it is nil or already present. Strategies
// walk documents outside-in, so the first hit wins within one strategy.
func (p *PartialRecord) Set(name string, value any, confidence float64) {
	if value == nil {
		return
	}
	if _, exists := p.Fields[name]; exists {
		return
	}
	p.Fields[name] = FieldValue{Value: value, Confidence: confidence, Strategy: p.Strategy}
}

// Note appends a field-level failure annotation.
func (p *PartialRecord) Note(msg string) {
	p.Notes = append(p.Notes, msg)
}

// Empty reports whether the strategy contributed no fields.
func (p *PartialRecord) Empty() bool {
	return len(p.Fields) == 0
}
