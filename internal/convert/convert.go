// Package convert turns raw cell strings into typed values.
//
// Every conversion failure is expressed as a nil result, never as an error.
// This keeps the downstream default/required logic uniform: a nil after
// conversion either picks up the column default or trips the required check.
package convert

import (
	"strconv"
	"strings"
	"time"
)

// FieldType enumerates the semantic types a mapped column can declare.
type FieldType string

const (
	TypeString   FieldType = "string"
	TypeInteger  FieldType = "integer"
	TypeFloat    FieldType = "float"
	TypeDate     FieldType = "date"
	TypeDateTime FieldType = "datetime"
	TypeBoolean  FieldType = "boolean"
	TypeCurrency FieldType = "currency"
)

// ParseFieldType validates a schema-declared type string.
func ParseFieldType(s string) (FieldType, bool) {
	switch FieldType(strings.ToLower(strings.TrimSpace(s))) {
	case TypeString:
		return TypeString, true
	case TypeInteger:
		return TypeInteger, true
	case TypeFloat:
		return TypeFloat, true
	case TypeDate:
		return TypeDate, true
	case TypeDateTime:
		return TypeDateTime, true
	case TypeBoolean:
		return TypeBoolean, true
	case TypeCurrency:
		return TypeCurrency, true
	}
	return "", false
}

// Fallback layouts tried in order when the column declares no explicit format.
// Order matters: first successful parse wins.
var dateLayouts = []string{
	"2006-01-02",
	"01/02/2006",
	"01/02/06",
	"02/01/2006",
	"2006/01/02",
	"01-02-2006",
}

var dateTimeLayouts = []string{
	"2006-01-02 15:04:05",
	"01/02/2006 15:04:05",
	"2006-01-02T15:04:05",
	"01/02/06 15:04",
}

// Convert parses a raw cell value into the given type.
//
// Behavior:
//   - Empty or whitespace-only input always yields nil.
//   - string:   trimmed passthrough.
//   - integer:  thousands separators stripped, parsed via float so "24.0"
//     style exports still land as int64; failure yields nil.
//   - float:    thousands separators stripped; failure yields nil.
//   - currency: $ and , and inner whitespace stripped, parsed as float64.
//   - date/datetime: explicit format first when given, else the fallback
//     layout list in order; exhaustion yields nil. Dates are normalized to
//     midnight UTC.
//   - boolean:  loose truthy/falsy token match; anything else nil.
//
// Convert never returns an error. Unknown types fall through to the trimmed
// string, matching the most forgiving interpretation of a bad schema that
// already passed load-time validation.
func Convert(raw string, typ FieldType, format string) any {
	v := strings.TrimSpace(raw)
	if v == "" {
		return nil
	}

	switch typ {
	case TypeString:
		return v

	case TypeInteger:
		cleaned := strings.ReplaceAll(v, ",", "")
		f, err := strconv.ParseFloat(cleaned, 64)
		if err != nil {
			return nil
		}
		return int64(f)

	case TypeFloat:
		cleaned := strings.ReplaceAll(v, ",", "")
		f, err := strconv.ParseFloat(cleaned, 64)
		if err != nil {
			return nil
		}
		return f

	case TypeCurrency:
		if f, ok := Currency(v); ok {
			return f
		}
		return nil

	case TypeDate:
		layouts := dateLayouts
		if format != "" {
			layouts = []string{format}
		}
		for _, lay := range layouts {
			if t, err := time.Parse(lay, v); err == nil {
				return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
			}
		}
		return nil

	case TypeDateTime:
		layouts := dateTimeLayouts
		if format != "" {
			layouts = []string{format}
		}
		for _, lay := range layouts {
			if t, err := time.Parse(lay, v); err == nil {
				return t
			}
		}
		return nil

	case TypeBoolean:
		if b, ok := Boolean(v); ok {
			return b
		}
		return nil
	}

	return v
}

// Currency strips $ signs, thousands separators and whitespace, then parses
// the remainder as a float. "($1,234.56)" style negatives are not supported;
// the source data never uses them.
func Currency(v string) (float64, bool) {
	var b strings.Builder
	b.Grow(len(v))
	for _, r := range v {
		switch r {
		case '$', ',', ' ', '\t':
		default:
			b.WriteRune(r)
		}
	}
	f, err := strconv.ParseFloat(b.String(), 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

// Boolean matches the fixed truthy/falsy token sets, case-insensitive.
func Boolean(v string) (bool, bool) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "true", "yes", "y", "1":
		return true, true
	case "false", "no", "n", "0":
		return false, true
	}
	return false, false
}
