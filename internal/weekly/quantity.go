package weekly

import (
	"strconv"
	"strings"
)

// quantityDenylist holds token fragments that mark a cell as structural text
// rather than a quantity: unit/product/channel labels and spreadsheet error
// tokens. A denylisted cell is silently skipped, never warned about.
var quantityDenylist = []string{
	"TOTAL", "CASE", "EACH", "HUMMUS", "HARRA", "LABNEH", "BABA", "MUHAMMARA",
	"PSFH", "MET", "PCC", "RESTAURANT", "PRODUCTION", "LOT", "EXPIRATION",
	"#REF!", "#N/A", "#VALUE!", "#DIV/0!",
}

// ParseQuantity parses a quantity cell.
//
// Returns (qty, true) for a parseable number. The second result is false for
// empty cells, denylisted cells, and unparseable text; callers distinguish
// those cases via IsDenylisted when deciding whether to warn. A trailing '#'
// notation ("12#") is stripped before parsing.
func ParseQuantity(value string) (float64, bool) {
	v := strings.TrimSpace(value)
	if v == "" {
		return 0, false
	}
	if IsDenylisted(v) {
		return 0, false
	}

	v = strings.TrimSpace(strings.ReplaceAll(v, "#", ""))
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

// IsDenylisted reports whether the cell text contains any known non-numeric
// token fragment.
func IsDenylisted(value string) bool {
	upper := strings.ToUpper(value)
	for _, tok := range quantityDenylist {
		if strings.Contains(upper, tok) {
			return true
		}
	}
	return false
}

// ColLetter converts a 0-based column index to its spreadsheet letter
// (A, B, ... Z, AA, AB, ...), for warning coordinates.
func ColLetter(colIdx int) string {
	result := ""
	for idx := colIdx; idx >= 0; idx = idx/26 - 1 {
		result = string(rune('A'+idx%26)) + result
	}
	return result
}
