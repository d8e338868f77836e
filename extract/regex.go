package extract

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"realestate-scraper/models"
)

// sqmToSqft converts square metres to square feet.
const sqmToSqft = 10.7639

var (
	priceRegexp     = regexp.MustCompile(`\$\s*([\d,]+(?:\.\d+)?)`)
	bedsRegexp      = regexp.MustCompile(`(?i)(\d+(?:\.\d+)?)\s*beds?\b`)
	bathsRegexp     = regexp.MustCompile(`(?i)(\d+(?:\.\d+)?)\s*baths?\b`)
	sqftRegexp      = regexp.MustCompile(`(?i)([\d,]+(?:\.\d+)?)\s*(?:sq\.?\s*ft|sqft|square\s+feet)`)
	sqmRegexp       = regexp.MustCompile(`(?i)([\d,]+(?:\.\d+)?)\s*(?:sq\.?\s*m\b|sqm\b|m²)`)
	yearBuiltRegexp = regexp.MustCompile(`(?i)(?:year\s*built|built\s*in)[:\s]*([12]\d{3})`)
)

// RegexStrategy is the last-resort extractor: field-specific patterns over
// the page's visible text, with unit normalization for metric areas.
type RegexStrategy struct{}

func NewRegexStrategy() *RegexStrategy { return &RegexStrategy{} }

func (s *RegexStrategy) Name() string { return StrategyRegex }

func (s *RegexStrategy) Extract(doc *RawDocument) models.PartialRecord {
	partial := models.NewPartialRecord(StrategyRegex)

	// Strip markup so attribute values and script bodies don't produce
	// phantom matches. Fall back to the raw text when parsing fails.
	text := doc.HTML
	if gq, err := goquery.NewDocumentFromReader(strings.NewReader(doc.HTML)); err == nil {
		gq.Find("script, style").Remove()
		text = gq.Text()
	}

	if m := priceRegexp.FindStringSubmatch(text); m != nil {
		if f, ok := parseNumber(m[1]); ok {
			partial.Set(models.FieldListPrice, f, confRegex)
		}
	}
	if m := bedsRegexp.FindStringSubmatch(text); m != nil {
		if f, ok := parseNumber(m[1]); ok {
			partial.Set(models.FieldBeds, f, confRegex)
		}
	}
	if m := bathsRegexp.FindStringSubmatch(text); m != nil {
		if f, ok := parseNumber(m[1]); ok {
			partial.Set(models.FieldBaths, f, confRegex)
		}
	}

	if m := sqftRegexp.FindStringSubmatch(text); m != nil {
		if f, ok := parseNumber(m[1]); ok {
			partial.Set(models.FieldInteriorAreaSqft, int(f), confRegex)
		}
	} else if m := sqmRegexp.FindStringSubmatch(text); m != nil {
		if f, ok := parseNumber(m[1]); ok {
			partial.Set(models.FieldInteriorAreaSqft, int(f*sqmToSqft+0.5), confRegex)
		}
	}

	if m := yearBuiltRegexp.FindStringSubmatch(text); m != nil {
		if y, err := strconv.Atoi(m[1]); err == nil {
			partial.Set(models.FieldYearBuilt, y, confRegex)
		}
	}

	if partial.Empty() {
		partial.Note("regex: no field patterns matched")
	}
	return partial
}

func parseNumber(s string) (float64, bool) {
	f, err := strconv.ParseFloat(strings.ReplaceAll(s, ",", ""), 64)
	if err != nil {
		return 0, false
	}
	return f, true
}
