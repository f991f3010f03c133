// Package csvmap implements the configured mapper: a mapping schema applied
// uniformly row-by-row to a CSV source, producing typed records plus
// diagnostics.
//
// The mapper is single-pass and terminal on completion or on a load-time
// fatal condition (missing required header columns). No error ever escapes as
// control flow; every failure mode is a diagnostics entry plus a well-defined
// partial result.
package csvmap

import (
	"encoding/csv"
	"fmt"
	"io"
	"log"
	"os"
	"regexp"
	"strconv"
	"strings"

	"mezzetl/internal/convert"
	"mezzetl/internal/diag"
	"mezzetl/internal/mapping"
	"mezzetl/internal/transform"
)

// Logger is the minimal logging interface used by the mapper.
// *log.Logger satisfies this interface.
type Logger interface {
	Printf(format string, v ...any)
}

// Record is one mapped row: target field name -> converted value, plus the
// originating 1-based row number. Records are immutable once returned.
type Record struct {
	SourceRow int
	Fields    map[string]any
}

// Result is the complete outcome of one parse invocation.
type Result struct {
	Records  []Record
	Warnings []diag.Entry
	Errors   []diag.Entry
	Stats    diag.Stats
}

// Mapper applies one compiled mapping schema. A Mapper is cheap and may be
// reused across files; each Parse call owns its own diagnostics state.
type Mapper struct {
	cfg    *mapping.Config
	Logger Logger
}

// New builds a mapper around a compiled schema.
func New(cfg *mapping.Config) *Mapper {
	return &Mapper{cfg: cfg}
}

func (m *Mapper) logf(format string, v ...any) {
	if m.Logger == nil {
		return
	}
	m.Logger.Printf(format, v...)
}

// ParseFile reads and maps a CSV file. A missing file yields an empty result
// with one file_not_found error entry rather than a Go error; I/O failures
// during read are the only hard errors.
func (m *Mapper) ParseFile(path string) (Result, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			var c diag.Collector
			c.Error(diag.Entry{Kind: diag.KindFileNotFound, Value: path})
			res := Result{Records: []Record{}}
			finish(&res, &c)
			return res, nil
		}
		return Result{}, fmt.Errorf("open csv: %w", err)
	}
	defer f.Close()

	r, err := decodeReader(f, m.cfg.Encoding)
	if err != nil {
		return Result{}, err
	}
	return m.parse(r)
}

// ParseLines maps in-memory raw line strings, already decoded.
func (m *Mapper) ParseLines(lines []string) (Result, error) {
	return m.parse(strings.NewReader(strings.Join(lines, "\n")))
}

func (m *Mapper) parse(src io.Reader) (Result, error) {
	cfg := m.cfg
	var c diag.Collector
	res := Result{Records: []Record{}}

	cr := csv.NewReader(src)
	cr.Comma = []rune(cfg.Delimiter)[0]
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	rows := make([][]string, 0, 256)
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return Result{}, fmt.Errorf("csv read: %w", err)
		}
		rows = append(rows, rec)
	}

	// Leading rows declared as noise are dropped before the header is
	// resolved.
	if cfg.SkipRows > 0 {
		if cfg.SkipRows >= len(rows) {
			rows = nil
		} else {
			rows = rows[cfg.SkipRows:]
		}
	}
	if len(rows) == 0 {
		finish(&res, &c)
		return res, nil
	}

	headerIdx := 0
	if cfg.HeaderRow != nil {
		headerIdx = *cfg.HeaderRow
	}
	if headerIdx >= len(rows) {
		var ce diag.Collector
		ce.Error(diag.Entry{
			Kind:    diag.KindBadMapping,
			Message: fmt.Sprintf("header_row %d beyond input (%d rows)", headerIdx, len(rows)),
		})
		finish(&res, &ce)
		return res, nil
	}

	header := rows[headerIdx]
	dataRows := rows[headerIdx+1:]

	headerIndex := make(map[string]int, len(header))
	for i, h := range header {
		headerIndex[strings.TrimSpace(h)] = i
	}

	// Fatal before any data row: every declared required column must resolve.
	for _, req := range cfg.RequiredColumns {
		if _, ok := headerIndex[req]; !ok {
			c.Error(diag.Entry{
				Kind:      diag.KindMissingRequiredColumn,
				Column:    req,
				Available: headerNames(header),
			})
		}
	}
	if c.HasErrors() {
		finish(&res, &c)
		m.logf("stage=load mapping=%s status=missing_required_columns errors=%d", cfg.Name, res.Stats.ErrorsCount)
		return res, nil
	}

	for rowIdx, row := range dataRows {
		// 1-based source row in the original file, counting skipped leading
		// rows and the header.
		rowNum := rowIdx + cfg.SkipRows + headerIdx + 2

		line := strings.Join(row, cfg.Delimiter)

		if re := cfg.StopRegexp(); re != nil && re.MatchString(line) {
			break
		}
		if matchAny(cfg.SkipRegexps(), line) || allEmpty(row) {
			res.Stats.RowsSkipped++
			continue
		}

		rec := Record{SourceRow: rowNum, Fields: make(map[string]any, len(cfg.Columns))}
		rowInvalid := false

		for i := range cfg.Columns {
			col := &cfg.Columns[i]
			val := m.evalColumn(col, row, headerIndex, header, rowNum, &c)

			if val == nil && col.Default != nil {
				val = col.Default
			}
			if val == nil && col.Required {
				c.Error(diag.Entry{
					Kind:   diag.KindMissingRequiredValue,
					Column: col.Source,
					Target: col.Target,
					Row:    rowNum,
				})
				rowInvalid = true
			}
			rec.Fields[col.Target] = val
		}

		if !rowInvalid {
			res.Records = append(res.Records, rec)
		}
		res.Stats.RowsProcessed++
	}

	finish(&res, &c)
	m.logf("stage=map mapping=%s rows_processed=%d rows_skipped=%d records=%d warnings=%d errors=%d",
		cfg.Name, res.Stats.RowsProcessed, res.Stats.RowsSkipped, res.Stats.RecordsCreated,
		res.Stats.WarningsCount, res.Stats.ErrorsCount)
	return res, nil
}

// evalColumn resolves one column rule against one raw row: three-tier source
// lookup, strip characters, extraction pattern, named transform, then type
// conversion. Default and required handling stay with the caller.
func (m *Mapper) evalColumn(
	col *mapping.Column,
	row []string,
	headerIndex map[string]int,
	header []string,
	rowNum int,
	c *diag.Collector,
) any {
	raw, found := resolveSource(col.Source, row, headerIndex, header)
	if !found || raw == "" {
		return nil
	}

	if col.StripChars != "" {
		raw = stripChars(raw, col.StripChars)
	}

	if re := col.Extract(); re != nil && raw != "" {
		sub := re.FindStringSubmatch(raw)
		if sub == nil || len(sub) < 2 {
			return nil
		}
		raw = sub[1]
	}

	// The value leaves string-land only here: a transform may yield a typed
	// value (clean_currency, yes_no_bool) or nil.
	var val any = raw
	if col.Transform != "" && raw != "" {
		fn, ok := transform.Lookup(col.Transform)
		if !ok {
			c.Warn(diag.Entry{
				Kind:      diag.KindUnknownTransform,
				Transform: col.Transform,
				Row:       rowNum,
			})
		} else {
			val = fn(raw)
		}
	}

	switch s := val.(type) {
	case nil:
		return nil
	case string:
		return convert.Convert(s, col.FieldType(), col.Format)
	default:
		// Already typed by a transform; conversion is a passthrough.
		return val
	}
}

// resolveSource applies the three-tier lookup. An exact numeric source string
// is always positional, even when a header is literally named "0".
func resolveSource(source string, row []string, headerIndex map[string]int, header []string) (string, bool) {
	if idx, err := strconv.Atoi(source); err == nil && idx >= 0 {
		if idx < len(row) {
			return row[idx], true
		}
		return "", false
	}

	if idx, ok := headerIndex[source]; ok {
		if idx < len(row) {
			return row[idx], true
		}
		return "", false
	}

	lower := strings.ToLower(source)
	for i, h := range header {
		if strings.Contains(strings.ToLower(strings.TrimSpace(h)), lower) {
			if i < len(row) {
				return row[i], true
			}
			return "", false
		}
	}
	return "", false
}

func stripChars(v, chars string) string {
	for _, r := range chars {
		v = strings.ReplaceAll(v, string(r), "")
	}
	return v
}

func matchAny(res []*regexp.Regexp, line string) bool {
	for _, re := range res {
		if re.MatchString(line) {
			return true
		}
	}
	return false
}

func allEmpty(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}

func headerNames(header []string) []string {
	out := make([]string, 0, len(header))
	for _, h := range header {
		out = append(out, strings.TrimSpace(h))
	}
	return out
}

func finish(res *Result, c *diag.Collector) {
	res.Warnings = c.Warnings()
	res.Errors = c.Errors()
	res.Stats.RecordsCreated = len(res.Records)
	c.Counts(&res.Stats)
}

var _ Logger = (*log.Logger)(nil)
