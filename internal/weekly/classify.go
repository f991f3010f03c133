package weekly

import (
	"regexp"
	"strings"
	"time"
)

// RowKind is the structural role a raw row plays in a weekly order tab.
type RowKind int

const (
	RowEmpty RowKind = iota
	RowDataNoLabel
	RowDayHeader
	RowDateRange
	RowTotals
	RowProductionDate
	RowLotNumber
	RowExpiration
	RowLotCodeSection
	RowData
)

func (k RowKind) String() string {
	switch k {
	case RowEmpty:
		return "empty"
	case RowDataNoLabel:
		return "data_no_label"
	case RowDayHeader:
		return "day_header"
	case RowDateRange:
		return "date_range"
	case RowTotals:
		return "totals"
	case RowProductionDate:
		return "production_date"
	case RowLotNumber:
		return "lot_number"
	case RowExpiration:
		return "expiration"
	case RowLotCodeSection:
		return "lot_code_section"
	default:
		return "data_row"
	}
}

// Classification patterns, matched against the trimmed first cell.
// Constructed once; never mutated at runtime.
var (
	reDayHeader  = regexp.MustCompile(`(?i)^(Monday|Tuesday|Wednesday|Thursday|Friday|Saturday|Sunday)\s*$`)
	reDateRange  = regexp.MustCompile(`^\d{1,2}/\d{1,2}/\d{2,4}\s*[-–]\s*\d{1,2}/\d{1,2}/\d{2,4}`)
	reTotals     = regexp.MustCompile(`(?i)^TOTALS?$`)
	reProdDate   = regexp.MustCompile(`(?i)^Production Date`)
	reLotNumber  = regexp.MustCompile(`(?i)^Lot Number`)
	reExpiration = regexp.MustCompile(`(?i)^Expiration`)
	reLotSection = regexp.MustCompile(`(?i)^Production Lot Code`)

	reRangeParts = regexp.MustCompile(`(\d{1,2})/(\d{1,2})/(\d{2,4})\s*[-–]\s*(\d{1,2})/(\d{1,2})/(\d{2,4})`)
)

// Classify determines a row's structural role from its first non-empty cell
// and overall content. It is a pure function and consumes no lookahead.
func Classify(row []string) RowKind {
	if len(row) == 0 {
		return RowEmpty
	}

	first := strings.TrimSpace(row[0])
	if first == "" {
		for _, cell := range row[1:] {
			if strings.TrimSpace(cell) != "" {
				return RowDataNoLabel
			}
		}
		return RowEmpty
	}

	switch {
	case reDayHeader.MatchString(first):
		return RowDayHeader
	case reDateRange.MatchString(first):
		return RowDateRange
	case reTotals.MatchString(first):
		return RowTotals
	case reProdDate.MatchString(first):
		return RowProductionDate
	case reLotNumber.MatchString(first):
		return RowLotNumber
	case reExpiration.MatchString(first):
		return RowExpiration
	case reLotSection.MatchString(first):
		return RowLotCodeSection
	}
	return RowData
}

// ParseDateRange parses a period header like "01/12/26 - 01/16/26" into the
// week's start and end dates. Two-digit years are normalized to the 2000s.
// Returns false when the cell does not carry a parseable range.
func ParseDateRange(s string) (start, end time.Time, ok bool) {
	m := reRangeParts.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil {
		return time.Time{}, time.Time{}, false
	}

	d1, ok1 := dateFromParts(m[1], m[2], m[3])
	d2, ok2 := dateFromParts(m[4], m[5], m[6])
	if !ok1 || !ok2 {
		return time.Time{}, time.Time{}, false
	}
	return d1, d2, true
}

func dateFromParts(ms, ds, ys string) (time.Time, bool) {
	month := atoi(ms)
	day := atoi(ds)
	year := atoi(ys)
	if year < 100 {
		year += 2000
	}
	if month < 1 || month > 12 || day < 1 || day > 31 {
		return time.Time{}, false
	}
	t := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
	// Reject rollovers like 02/30.
	if int(t.Month()) != month || t.Day() != day {
		return time.Time{}, false
	}
	return t, true
}

func atoi(s string) int {
	n := 0
	for _, r := range s {
		n = n*10 + int(r-'0')
	}
	return n
}
