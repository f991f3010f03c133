// Package weekly implements the heuristic multi-table parser for weekly order
// sheets: stacked sub-tables on one tab, one logical table per calendar week,
// schema inferred at parse time from recurring structural markers.
//
// Tab layout recognized per sub-table:
//
//	01/12/26 - 01/16/26   <- period header, also carries product columns
//	        CASE  EACH    <- unit-label row
//	Monday                <- day header
//	Crown - PO # 779322   <- customer data rows
//	TOTALS                <- closes the day block
//
// A "Production Lot Code" row terminates order parsing for the tab; rows from
// there on are retained raw so a later pass can extract channel summaries.
package weekly

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"mezzetl/internal/diag"
	"mezzetl/internal/transform"
)

// Logger is the minimal logging interface used by the parser.
// *log.Logger satisfies this interface.
type Logger interface {
	Printf(format string, v ...any)
}

// OrderLine is one extracted order: a single non-zero quantity cell, fully
// contextualized. Quantity is always strictly positive.
type OrderLine struct {
	WeekStart time.Time
	WeekEnd   time.Time
	DayOfWeek string

	Customer    string // canonical name, PO suffix stripped
	CustomerRaw string // original cell text
	POHint      string // advisory only; empty when absent

	Product  string
	UnitType UnitKind
	Quantity float64

	SourceTab string
	SourceRow int // 1-based
	RawValue  string
}

// Stats aggregates counters across one ParseAll invocation.
type Stats struct {
	diag.Stats
	// TabsProcessed counts attempted tabs, including ones whose retrieval or
	// parse failed.
	TabsProcessed   int `json:"tabs_processed"`
	UniqueCustomers int `json:"unique_customers"`
	UniqueProducts  int `json:"unique_products"`
}

// Result is the merged outcome across all parsed tabs.
type Result struct {
	Lines    []OrderLine
	Warnings []diag.Entry
	Errors   []diag.Entry
	Stats    Stats
}

// TabResult is the outcome of parsing one tab's grid.
type TabResult struct {
	Lines    []OrderLine
	Warnings []diag.Entry

	// TrailingRows holds the raw rows from the lot-code section onward,
	// retained for a later channel-summary pass.
	TrailingRows [][]string

	RowsProcessed int
	RowsSkipped   int
}

// GridSource yields raw row grids per tab. Implementations retrieve from a
// spreadsheet service or a local workbook; the parser never performs I/O
// itself beyond calling this seam.
type GridSource interface {
	Tabs(ctx context.Context) ([]string, error)
	Rows(ctx context.Context, tab string) ([][]string, error)
}

// Parser extracts order lines from weekly order tabs. The zero value is
// usable; Logger is optional.
type Parser struct {
	Logger Logger
}

func (p *Parser) logf(format string, v ...any) {
	if p.Logger == nil {
		return
	}
	p.Logger.Printf(format, v...)
}

// ParseAll fetches and parses every tab from the source. A tab whose
// retrieval or parse fails contributes one tab-scoped error entry; all other
// tabs still produce results. Partial results are always returned.
func (p *Parser) ParseAll(ctx context.Context, src GridSource) (Result, error) {
	res := Result{Lines: []OrderLine{}}
	var c diag.Collector

	tabs, err := src.Tabs(ctx)
	if err != nil {
		return res, fmt.Errorf("list tabs: %w", err)
	}

	for _, tab := range tabs {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		res.Stats.TabsProcessed++

		rows, err := src.Rows(ctx, tab)
		if err != nil {
			c.Error(diag.Entry{Kind: diag.KindTabParseError, Tab: tab, Message: err.Error()})
			continue
		}

		tr := p.ParseTab(tab, rows)
		res.Lines = append(res.Lines, tr.Lines...)
		for _, w := range tr.Warnings {
			c.Warn(w)
		}
		res.Stats.RowsProcessed += tr.RowsProcessed
		res.Stats.RowsSkipped += tr.RowsSkipped

		p.logf("stage=parse_tab tab=%q lines=%d warnings=%d", tab, len(tr.Lines), len(tr.Warnings))
	}

	res.Warnings = c.Warnings()
	res.Errors = c.Errors()
	res.Stats.RecordsCreated = len(res.Lines)
	c.Counts(&res.Stats.Stats)

	customers := make(map[string]struct{})
	products := make(map[string]struct{})
	for _, ol := range res.Lines {
		customers[ol.Customer] = struct{}{}
		products[ol.Product] = struct{}{}
	}
	res.Stats.UniqueCustomers = len(customers)
	res.Stats.UniqueProducts = len(products)

	return res, nil
}

// tabState is the per-tab parsing state. At most one table block is open at a
// time; the product mapping persists across day blocks until the next period
// header redefines it.
type tabState struct {
	weekStart time.Time
	weekEnd   time.Time
	day       string
	products  []ProductColumn
	inDay     bool
}

// ParseTab runs the single-pass state machine over one tab's grid.
// Rows must be presented in sheet order; state depends on it.
func (p *Parser) ParseTab(tabName string, rows [][]string) TabResult {
	tr := TabResult{Lines: []OrderLine{}}
	var st tabState

	for rowIdx := 0; rowIdx < len(rows); rowIdx++ {
		row := rows[rowIdx]
		rowNum := rowIdx + 1
		kind := Classify(row)

		first := ""
		if len(row) > 0 {
			first = strings.TrimSpace(row[0])
		}

		switch kind {
		case RowLotCodeSection:
			// Terminal for the tab: everything from here on is production
			// metadata, kept raw for the channel-summary pass.
			tr.TrailingRows = rows[rowIdx:]
			return tr

		case RowDateRange:
			start, end, ok := ParseDateRange(first)
			if !ok {
				tr.RowsSkipped++
				break
			}
			st.weekStart, st.weekEnd = start, end
			// The period header row doubles as the product header; the row
			// below carries the unit labels.
			var unitRow []string
			if rowIdx+1 < len(rows) {
				unitRow = rows[rowIdx+1]
			}
			st.products = ExtractProductColumns(row, unitRow)

		case RowDayHeader:
			st.day = normalizeDay(first)
			st.inDay = true

		case RowTotals:
			// Ends the day block; the product mapping persists for the next
			// day under the same period header.
			st.inDay = false

		case RowData:
			if !st.inDay {
				tr.RowsSkipped++
				break
			}
			tr.RowsProcessed++
			p.emitRowLines(tabName, rowNum, row, &st, &tr)

		default:
			tr.RowsSkipped++
		}
	}

	return tr
}

// emitRowLines reads every mapped product column of one customer row and
// emits an order line per strictly positive quantity.
func (p *Parser) emitRowLines(tabName string, rowNum int, row []string, st *tabState, tr *TabResult) {
	customerRaw := strings.TrimSpace(row[0])
	customer, poHint := transform.SplitCustomerPO(customerRaw)

	for _, pc := range st.products {
		p.emitCell(tabName, rowNum, row, st, tr, pc, pc.CaseCol, UnitCase, customer, customerRaw, poHint)
		p.emitCell(tabName, rowNum, row, st, tr, pc, pc.EachCol, UnitEach, customer, customerRaw, poHint)
	}
}

func (p *Parser) emitCell(
	tabName string,
	rowNum int,
	row []string,
	st *tabState,
	tr *TabResult,
	pc ProductColumn,
	colIdx int,
	unit UnitKind,
	customer, customerRaw, poHint string,
) {
	if colIdx < 0 || colIdx >= len(row) {
		return
	}
	raw := strings.TrimSpace(row[colIdx])
	if raw == "" {
		return
	}

	qty, ok := ParseQuantity(raw)
	switch {
	case ok && qty > 0:
		tr.Lines = append(tr.Lines, OrderLine{
			WeekStart:   st.weekStart,
			WeekEnd:     st.weekEnd,
			DayOfWeek:   st.day,
			Customer:    customer,
			CustomerRaw: customerRaw,
			POHint:      poHint,
			Product:     pc.Product,
			UnitType:    unit,
			Quantity:    qty,
			SourceTab:   tabName,
			SourceRow:   rowNum,
			RawValue:    raw,
		})
	case ok:
		// Zero or negative quantities are a valid "no order" signal, not an
		// anomaly.
	case IsDenylisted(raw):
		// Structural text spilling into a quantity column; silently skip.
	default:
		tr.Warnings = append(tr.Warnings, diag.Entry{
			Kind:     diag.KindUnparseableQuantity,
			Tab:      tabName,
			Cell:     fmt.Sprintf("%s%d", ColLetter(colIdx), rowNum),
			Value:    raw,
			Customer: customer,
			Product:  pc.Product,
		})
	}
}

func normalizeDay(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + strings.ToLower(s[1:])
}

var _ Logger = (*log.Logger)(nil)
