// Package transform holds the fixed registry of named value transforms usable
// from mapping schemas, plus the customer/PO split shared with the weekly
// sheet parser.
package transform

import (
	"regexp"
	"strings"

	"mezzetl/internal/convert"
)

// Func is a pure transform applied to a resolved source cell. Transforms that
// change the value's type (clean_currency, yes_no_bool) return a non-string;
// the conversion layer passes non-string values through untouched downstream.
type Func func(value string) any

// Pre-compiled patterns. The PO marker is case-insensitive, optionally
// followed by '#' and whitespace, capturing the remainder of the field.
var (
	rePOSuffix    = regexp.MustCompile(`(?i)\bPO\s*#?\s*(\S+)`)
	reCustomerPO  = regexp.MustCompile(`(?i)^(.+?)\s*-\s*PO\s*#?\s*(.*)$`)
	rePunctOnly   = regexp.MustCompile(`^[\s\-#]+$`)
	reCustPrefix  = regexp.MustCompile(`(?i)^(.+?)\s*-\s*PO`)
)

var registry = map[string]Func{
	"uppercase": func(v string) any { return strings.ToUpper(v) },
	"lowercase": func(v string) any { return strings.ToLower(v) },
	"titlecase": func(v string) any { return titleCase(v) },
	"strip":     func(v string) any { return strings.TrimSpace(v) },

	"extract_po": func(v string) any {
		if po := ExtractPO(v); po != "" {
			return po
		}
		return nil
	},

	"extract_customer": func(v string) any {
		if m := reCustPrefix.FindStringSubmatch(v); m != nil {
			return strings.TrimSpace(m[1])
		}
		return strings.TrimSpace(v)
	},

	"clean_currency": func(v string) any {
		if f, ok := convert.Currency(v); ok {
			return f
		}
		return nil
	},

	"yes_no_bool": func(v string) any {
		if b, ok := convert.Boolean(v); ok {
			return b
		}
		return nil
	},
}

// Lookup returns the named transform. The second result is false for
// unregistered names; callers surface that as a warning and pass the value
// through unchanged rather than aborting the row.
func Lookup(name string) (Func, bool) {
	f, ok := registry[name]
	return f, ok
}

// Names returns the registered transform names, for mapping validation
// messages. Order is unspecified.
func Names() []string {
	out := make([]string, 0, len(registry))
	for k := range registry {
		out = append(out, k)
	}
	return out
}

// titleCase uppercases the first letter of each space-separated word and
// lowercases the rest. Customer names in the source data are plain ASCII.
func titleCase(v string) string {
	var b strings.Builder
	b.Grow(len(v))
	startOfWord := true
	for _, r := range v {
		switch {
		case r == ' ' || r == '\t':
			startOfWord = true
			b.WriteRune(r)
		case startOfWord:
			b.WriteString(strings.ToUpper(string(r)))
			startOfWord = false
		default:
			b.WriteString(strings.ToLower(string(r)))
		}
	}
	return b.String()
}

// ExtractPO pulls an order-reference hint out of free text like
// "Crown - PO # 779322". A capture that is only whitespace, dashes or '#'
// counts as absent.
func ExtractPO(v string) string {
	m := rePOSuffix.FindStringSubmatch(v)
	if m == nil {
		return ""
	}
	po := strings.TrimSpace(m[1])
	if po == "" || rePunctOnly.MatchString(po) {
		return ""
	}
	return po
}

// SplitCustomerPO splits a raw customer cell into the canonical customer name
// and an optional PO hint.
//
//	"Crown - PO # 779322"    -> ("Crown", "779322")
//	"PSFH (FROZEN) - PO#"    -> ("PSFH (FROZEN)", "")
//	"Met #165 Crown Hill"    -> ("Met #165 Crown Hill", "")
//
// The hint is advisory only; downstream matching never treats it as
// authoritative.
func SplitCustomerPO(raw string) (customer, poHint string) {
	v := strings.TrimSpace(raw)
	m := reCustomerPO.FindStringSubmatch(v)
	if m == nil {
		return v, ""
	}
	customer = strings.TrimSpace(m[1])
	poHint = strings.TrimSpace(m[2])
	return customer, poHint
}
