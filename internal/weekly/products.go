package weekly

import "strings"

// UnitKind is one of the two quantity units a product column can carry.
type UnitKind string

const (
	UnitCase UnitKind = "CASE"
	UnitEach UnitKind = "EACH"
)

// KnownProducts lists every product label that can appear in a header row.
// Order matters: longer/more specific names are checked before shorter names
// that are textual substrings of them ("HARRA HUMMUS" before "HARRA",
// "BASAL LABNEH" before "LABNEH"). Module-scoped and immutable.
var KnownProducts = []string{
	"HARRA HUMMUS",
	"BASAL LABNEH",
	"MAMA CHIPS",
	"MUHAMMARA",
	"HUMMUS",
	"LABNEH", // legacy label, usually the same product as BASAL LABNEH
	"HARRA",
	"BABA",
}

// ProductColumn assigns physical columns to one product's quantity cells
// within a table block. A column index of -1 means the unit has no column.
type ProductColumn struct {
	Product string
	CaseCol int
	EachCol int
}

// ExtractProductColumns derives the product column mapping for a table block
// from its period-header row and the unit-label row below it.
//
// Scanning is left to right. Each header cell is matched against
// KnownProducts, exact match first, then containment in either direction,
// respecting list order. A matched product claims its header column plus the
// CASE/EACH columns found within two columns to its right; a physical column
// claimed once is never reused by another product within the block. Products
// with neither unit column are dropped.
func ExtractProductColumns(headerRow, unitRow []string) []ProductColumn {
	var out []ProductColumn
	claimed := make(map[int]bool)

	for colIdx, cell := range headerRow {
		if claimed[colIdx] {
			continue
		}
		val := strings.ToUpper(strings.TrimSpace(cell))
		if val == "" {
			continue
		}

		product := matchProduct(val)
		if product == "" {
			continue
		}

		caseCol, eachCol := -1, -1
		for offset := 0; offset < 3; offset++ {
			check := colIdx + offset
			if check >= len(unitRow) || claimed[check] {
				continue
			}
			unit := strings.ToUpper(strings.TrimSpace(unitRow[check]))
			switch {
			case strings.Contains(unit, "CASE") && caseCol < 0:
				caseCol = check
			case strings.Contains(unit, "EACH") && eachCol < 0:
				eachCol = check
			}
		}
		if caseCol < 0 && eachCol < 0 {
			continue
		}

		out = append(out, ProductColumn{Product: product, CaseCol: caseCol, EachCol: eachCol})
		claimed[colIdx] = true
		if caseCol >= 0 {
			claimed[caseCol] = true
		}
		if eachCol >= 0 {
			claimed[eachCol] = true
		}
	}

	return out
}

func matchProduct(cell string) string {
	for _, p := range KnownProducts {
		if cell == p {
			return p
		}
	}
	for _, p := range KnownProducts {
		if strings.Contains(cell, p) || strings.Contains(p, cell) {
			return p
		}
	}
	return ""
}
