package schema

import (
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode"

	"realestate-scraper/models"
)

var numericRegexp = regexp.MustCompile(`-?[\d,]+(?:\.\d+)?`)

// NormalizeText strips leading/trailing whitespace and collapses internal
// whitespace runs to single spaces.
func NormalizeText(s string) string {
	fields := strings.FieldsFunc(strings.TrimSpace(s), func(r rune) bool {
		return unicode.IsSpace(r)
	})
	return strings.Join(fields, " ")
}

// ParseFloat normalizes a numeric-like value ("$450,000", "1,234.5 sqft",
// 450000) to a float64. Returns false when nothing numeric is present.
func ParseFloat(raw any) (float64, bool) {
	switch v := raw.(type) {
	case nil:
		return 0, false
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case string:
		match := numericRegexp.FindString(v)
		if match == "" {
			return 0, false
		}
		f, err := strconv.ParseFloat(strings.ReplaceAll(match, ",", ""), 64)
		if err != nil {
			return 0, false
		}
		return f, true
	}
	return 0, false
}

// ParseInt truncates the ParseFloat result to an int.
func ParseInt(raw any) (int, bool) {
	f, ok := ParseFloat(raw)
	if !ok {
		return 0, false
	}
	return int(f), true
}

// statusVocabulary maps site status wording to the canonical enum.
var statusVocabulary = map[string]models.ListingStatus{
	"active":          models.StatusActive,
	"for sale":        models.StatusActive,
	"for_sale":        models.StatusActive,
	"forsale":         models.StatusActive,
	"coming soon":     models.StatusActive,
	"instock":         models.StatusActive,
	"in stock":        models.StatusActive,
	"preorder":        models.StatusActive,
	"pending":         models.StatusPending,
	"under contract":  models.StatusPending,
	"contingent":      models.StatusPending,
	"sold":            models.StatusSold,
	"soldout":         models.StatusSold,
	"sold out":        models.StatusSold,
	"recently sold":   models.StatusSold,
	"recently_sold":   models.StatusSold,
	"closed":          models.StatusSold,
	"outofstock":      models.StatusOffMarket,
	"out of stock":    models.StatusOffMarket,
	"off market":      models.StatusOffMarket,
	"off-market":      models.StatusOffMarket,
	"off_market":      models.StatusOffMarket,
	"delisted":        models.StatusOffMarket,
	"othersoldstatus": models.StatusSold,
}

// ParseStatus maps raw site wording to the canonical status enum. Anything
// unrecognized maps to unknown rather than failing.
func ParseStatus(raw any) models.ListingStatus {
	s, ok := raw.(string)
	if !ok {
		return models.StatusUnknown
	}
	key := strings.ToLower(NormalizeText(s))
	if st, ok := statusVocabulary[key]; ok {
		return st
	}
	// Site enums sometimes arrive as e.g. "FOR_SALE" or "ForSale".
	key = strings.NewReplacer("_", " ", "-", " ").Replace(key)
	if st, ok := statusVocabulary[key]; ok {
		return st
	}
	return models.StatusUnknown
}

var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02",
	"01/02/2006",
	"Jan 2, 2006",
	"January 2, 2006",
}

// ParseDate tries the date layouts seen across source sites.
func ParseDate(raw any) (time.Time, bool) {
	switch v := raw.(type) {
	case time.Time:
		return v, true
	case float64:
		// Epoch millis are common in embedded state blobs.
		if v > 1e11 {
			return time.UnixMilli(int64(v)).UTC(), true
		}
		if v > 1e8 {
			return time.Unix(int64(v), 0).UTC(), true
		}
	case string:
		s := NormalizeText(v)
		for _, layout := range dateLayouts {
			if t, err := time.Parse(layout, s); err == nil {
				return t, true
			}
		}
	}
	return time.Time{}, false
}

// ParseURLList normalizes a raw value into a deduplicated, order-preserving
// URL slice.
func ParseURLList(raw any) ([]string, bool) {
	var in []string
	switch v := raw.(type) {
	case []string:
		in = v
	case string:
		if v != "" {
			in = []string{v}
		}
	case []any:
		for _, item := range v {
			if s, ok := item.(string); ok {
				in = append(in, s)
			}
		}
	}
	if len(in) == 0 {
		return nil, false
	}
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, u := range in {
		u = strings.TrimSpace(u)
		if u == "" {
			continue
		}
		if _, dup := seen[u]; dup {
			continue
		}
		seen[u] = struct{}{}
		out = append(out, u)
	}
	if len(out) == 0 {
		return nil, false
	}
	return out, true
}
