// Package mapping defines the declarative schema applied by the configured
// mapper: how source columns in an irregular CSV export resolve to typed
// target fields.
//
// Schemas are authored as YAML documents (see Load) and validated eagerly:
// anything malformed is a load-time fatal error, because a half-understood
// schema silently producing wrong records is worse than refusing to run.
package mapping

import (
	"fmt"
	"regexp"
	"strings"

	"mezzetl/internal/convert"
	"mezzetl/internal/transform"
)

// Column maps one source column onto one target field.
//
// Source resolution is three-tier, tried in this priority order:
//  1. an exact numeric string is ALWAYS a 0-based positional index, even when
//     a header cell is literally named "0" (fixed rule, not inferred)
//  2. exact match against the trimmed header name
//  3. case-insensitive substring of a header name, first header wins
type Column struct {
	Source     string `yaml:"source"`
	Target     string `yaml:"target"`
	Type       string `yaml:"type"`
	Format     string `yaml:"format"`
	Default    any    `yaml:"default"`
	Required   bool   `yaml:"required"`
	Transform  string `yaml:"transform"`
	Regex      string `yaml:"regex"`
	StripChars string `yaml:"strip_chars"`

	// Resolved during Compile.
	fieldType convert.FieldType
	extract   *regexp.Regexp
}

// FieldType returns the parsed semantic type. Valid only after Compile.
func (c *Column) FieldType() convert.FieldType { return c.fieldType }

// Extract returns the compiled extraction pattern, or nil.
func (c *Column) Extract() *regexp.Regexp { return c.extract }

// Config is a complete mapping schema.
type Config struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	SourceType  string `yaml:"source_type"`

	// CSV shape.
	Delimiter string `yaml:"delimiter"`
	Encoding  string `yaml:"encoding"`
	SkipRows  int    `yaml:"skip_rows"`
	HeaderRow *int   `yaml:"header_row"` // index into rows after skip; nil means first row

	Columns []Column `yaml:"columns"`

	// Row filtering. Skip patterns drop a row; the stop pattern halts the
	// whole parse on first match.
	SkipPatterns []string `yaml:"skip_patterns"`
	StopPattern  string   `yaml:"stop_pattern"`

	// Columns that must exist in the resolved header or the parse is
	// rejected before any data row is processed.
	RequiredColumns []string `yaml:"required_columns"`

	OutputType string `yaml:"output_type"`

	// Compiled during Compile.
	skipRes []*regexp.Regexp
	stopRe  *regexp.Regexp
}

// SkipRegexps returns the compiled skip patterns. Valid only after Compile.
func (c *Config) SkipRegexps() []*regexp.Regexp { return c.skipRes }

// StopRegexp returns the compiled stop pattern, or nil.
func (c *Config) StopRegexp() *regexp.Regexp { return c.stopRe }

// Compile validates the schema and compiles its patterns and types in place.
//
// Errors:
//   - missing column source/target/type, unknown type names
//   - duplicate target field names within one schema
//   - invalid regex in column extraction, skip patterns, or stop pattern
//   - unknown transform names are NOT fatal here; they surface as per-row
//     warnings so one bad column does not block an otherwise useful schema
func (c *Config) Compile() error {
	if c.Delimiter == "" {
		c.Delimiter = ","
	}
	if len([]rune(c.Delimiter)) != 1 {
		return fmt.Errorf("mapping %s: delimiter must be a single character, got %q", c.Name, c.Delimiter)
	}
	if c.Encoding == "" {
		c.Encoding = "utf-8"
	}
	if c.OutputType == "" {
		c.OutputType = "dict"
	}
	if len(c.Columns) == 0 {
		return fmt.Errorf("mapping %s: no column mappings defined", c.Name)
	}

	seen := make(map[string]struct{}, len(c.Columns))
	for i := range c.Columns {
		col := &c.Columns[i]
		if strings.TrimSpace(col.Source) == "" {
			return fmt.Errorf("mapping %s: columns[%d]: source is required", c.Name, i)
		}
		if strings.TrimSpace(col.Target) == "" {
			return fmt.Errorf("mapping %s: columns[%d]: target is required", c.Name, i)
		}
		if _, dup := seen[col.Target]; dup {
			return fmt.Errorf("mapping %s: duplicate target field %q", c.Name, col.Target)
		}
		seen[col.Target] = struct{}{}

		typ := col.Type
		if typ == "" {
			typ = string(convert.TypeString)
		}
		ft, ok := convert.ParseFieldType(typ)
		if !ok {
			return fmt.Errorf("mapping %s: columns[%d]: unknown type %q", c.Name, i, col.Type)
		}
		col.fieldType = ft

		if col.Regex != "" {
			re, err := regexp.Compile(col.Regex)
			if err != nil {
				return fmt.Errorf("mapping %s: columns[%d]: regex: %w", c.Name, i, err)
			}
			col.extract = re
		}
	}

	c.skipRes = c.skipRes[:0]
	for _, p := range c.SkipPatterns {
		re, err := regexp.Compile("(?i)" + p)
		if err != nil {
			return fmt.Errorf("mapping %s: skip pattern %q: %w", c.Name, p, err)
		}
		c.skipRes = append(c.skipRes, re)
	}
	if c.StopPattern != "" {
		re, err := regexp.Compile("(?i)" + c.StopPattern)
		if err != nil {
			return fmt.Errorf("mapping %s: stop pattern %q: %w", c.Name, c.StopPattern, err)
		}
		c.stopRe = re
	}

	return nil
}

// Issues lints a compiled schema for conditions that are worth flagging but do
// not block a parse, mirroring the validate subcommand's output.
func (c *Config) Issues() []string {
	var out []string
	for _, col := range c.Columns {
		if col.Transform == "" {
			continue
		}
		if _, ok := transform.Lookup(col.Transform); !ok {
			out = append(out, fmt.Sprintf("unknown transform %q for column %q", col.Transform, col.Source))
		}
	}
	return out
}
