// Package xlsx adapts a local workbook file to the weekly parser's GridSource
// seam. Sheets are materialized into raw string grids; the engine never sees
// excelize types.
package xlsx

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/xuri/excelize/v2"
)

// Source reads raw row grids from an .xlsx workbook.
type Source struct {
	f *excelize.File

	// TabFilter, when non-nil, selects which sheet names are returned by
	// Tabs. Defaults to WeeklyOrderTabs.
	TabFilter func(name string) bool
}

// Open opens a workbook. Close must be called when done.
func Open(path string) (*Source, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	return &Source{f: f, TabFilter: WeeklyOrderTabs}, nil
}

// Close releases the underlying workbook.
func (s *Source) Close() error { return s.f.Close() }

// WeeklyOrderTabs keeps the weekly order tabs and drops the master template,
// mirroring how the production spreadsheet is organized.
func WeeklyOrderTabs(name string) bool {
	return strings.Contains(name, "Weekly Order") && name != "Weekly Order Master"
}

// Tabs returns the filtered sheet names sorted by name, so workbooks with
// reordered sheets still parse in a stable order.
func (s *Source) Tabs(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var out []string
	for _, name := range s.f.GetSheetList() {
		if s.TabFilter == nil || s.TabFilter(name) {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out, nil
}

// Rows returns one sheet's cells as a raw string grid. Trailing empty cells
// within a row are preserved as empty strings by excelize; absent cells stay
// absent, which the parser tolerates (rows may be shorter than the logical
// column count).
func (s *Source) Rows(ctx context.Context, tab string) ([][]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	rows, err := s.f.GetRows(tab)
	if err != nil {
		return nil, fmt.Errorf("read sheet %q: %w", tab, err)
	}
	return rows, nil
}
