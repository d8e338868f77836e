// Package schema holds the canonical field definitions and the per-field
// type-coercion rules applied after merge. Coercion failures never abort a
// record; the caller leaves the offending field null.
package schema

import (
	"fmt"

	"realestate-scraper/models"
)

// FieldType selects the coercion applied to a field.
type FieldType string

const (
	TypeFloat     FieldType = "float"
	TypeInt       FieldType = "int"
	TypeNonNegInt FieldType = "non_negative_int"
	TypeString    FieldType = "string"
	TypeStatus    FieldType = "status"
	TypeDate      FieldType = "date"
	TypeURLList   FieldType = "url_list"
)

// CoercionError signals a raw value that cannot be safely cast to the
// field's declared type. The caller must treat the field as null.
type CoercionError struct {
	Field  string
	Raw    any
	Reason string
}

func (e *CoercionError) Error() string {
	return fmt.Sprintf("schema: cannot coerce field %q from %v: %s", e.Field, e.Raw, e.Reason)
}

// FieldSpec describes one canonical field.
type FieldSpec struct {
	Name     string
	Type     FieldType
	Required bool
}

// Registry maps canonical field names to their specs. It is immutable after
// NewRegistry returns.
type Registry struct {
	specs map[string]FieldSpec
	order []string
}

// NewRegistry builds the canonical listing schema.
func NewRegistry() *Registry {
	specs := []FieldSpec{
		{Name: models.FieldStreet, Type: TypeString},
		{Name: models.FieldUnit, Type: TypeString},
		{Name: models.FieldCity, Type: TypeString},
		{Name: models.FieldState, Type: TypeString},
		{Name: models.FieldPostalCode, Type: TypeString},
		{Name: models.FieldBeds, Type: TypeFloat},
		{Name: models.FieldBaths, Type: TypeFloat},
		{Name: models.FieldInteriorAreaSqft, Type: TypeInt},
		{Name: models.FieldLotSqft, Type: TypeInt},
		{Name: models.FieldYearBuilt, Type: TypeInt},
		{Name: models.FieldCondition, Type: TypeString},
		{Name: models.FieldStatus, Type: TypeStatus},
		{Name: models.FieldListDate, Type: TypeDate},
		{Name: models.FieldDaysOnMarket, Type: TypeNonNegInt},
		{Name: models.FieldListPrice, Type: TypeFloat},
		{Name: models.FieldDescription, Type: TypeString},
		{Name: models.FieldPhotos, Type: TypeURLList},
		{Name: models.FieldVideos, Type: TypeURLList},
		{Name: models.FieldFloorplans, Type: TypeURLList},
		{Name: models.FieldViews, Type: TypeNonNegInt},
		{Name: models.FieldSaves, Type: TypeNonNegInt},
		{Name: models.FieldShareCount, Type: TypeNonNegInt},
		{Name: models.FieldExternalPropertyID, Type: TypeString},
	}

	m := make(map[string]FieldSpec, len(specs))
	order := make([]string, 0, len(specs))
	for _, s := range specs {
		m[s.Name] = s
		order = append(order, s.Name)
	}
	return &Registry{specs: m, order: order}
}

// Spec returns the field spec for a canonical field name.
func (r *Registry) Spec(name string) (FieldSpec, bool) {
	s, ok := r.specs[name]
	return s, ok
}

// Fields returns the canonical field names in declaration order.
func (r *Registry) Fields() []string {
	return r.order
}

// Coerce converts a raw extracted value into the field's declared type.
// A nil raw value coerces to nil. The returned value is one of float64,
// int, string, models.ListingStatus, time.Time or []string.
func (r *Registry) Coerce(name string, raw any) (any, error) {
	if raw == nil {
		return nil, nil
	}
	spec, ok := r.specs[name]
	if !ok {
		return nil, &CoercionError{Field: name, Raw: raw, Reason: "unknown field"}
	}

	switch spec.Type {
	case TypeFloat:
		f, ok := ParseFloat(raw)
		if !ok {
			return nil, &CoercionError{Field: name, Raw: raw, Reason: "not numeric"}
		}
		return f, nil

	case TypeInt:
		n, ok := ParseInt(raw)
		if !ok {
			return nil, &CoercionError{Field: name, Raw: raw, Reason: "not numeric"}
		}
		return n, nil

	case TypeNonNegInt:
		n, ok := ParseInt(raw)
		if !ok {
			return nil, &CoercionError{Field: name, Raw: raw, Reason: "not numeric"}
		}
		if n < 0 {
			return nil, &CoercionError{Field: name, Raw: raw, Reason: "negative"}
		}
		return n, nil

	case TypeString:
		s, ok := raw.(string)
		if !ok {
			return nil, &CoercionError{Field: name, Raw: raw, Reason: "not a string"}
		}
		s = NormalizeText(s)
		if s == "" {
			return nil, nil
		}
		return s, nil

	case TypeStatus:
		return ParseStatus(raw), nil

	case TypeDate:
		t, ok := ParseDate(raw)
		if !ok {
			return nil, &CoercionError{Field: name, Raw: raw, Reason: "unrecognized date"}
		}
		return t, nil

	case TypeURLList:
		urls, ok := ParseURLList(raw)
		if !ok {
			return nil, &CoercionError{Field: name, Raw: raw, Reason: "no usable URLs"}
		}
		return urls, nil
	}

	return nil, &CoercionError{Field: name, Raw: raw, Reason: "unhandled type"}
}
