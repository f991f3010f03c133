package mapping

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"mezzetl/internal/convert"
)

const sampleYAML = `
name: orders
description: daily order export
source_type: csv
delimiter: ","
skip_rows: 1
columns:
  - source: "Customer"
    target: customer
    type: string
    transform: strip
    required: true
  - source: "1"
    target: product
    type: string
  - source: "Qty"
    target: quantity
    type: integer
    default: 0
skip_patterns:
  - "^#"
stop_pattern: "^Total"
required_columns:
  - Customer
`

func TestParseCompilesSchema(t *testing.T) {
	cfg, err := Parse([]byte(sampleYAML))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	if cfg.Name != "orders" || cfg.Delimiter != "," || cfg.SkipRows != 1 {
		t.Fatalf("unexpected header fields: %+v", cfg)
	}
	if len(cfg.Columns) != 3 {
		t.Fatalf("columns = %d, want 3", len(cfg.Columns))
	}
	if cfg.Columns[2].FieldType() != convert.TypeInteger {
		t.Errorf("quantity type = %v", cfg.Columns[2].FieldType())
	}
	if len(cfg.SkipRegexps()) != 1 || cfg.StopRegexp() == nil {
		t.Error("patterns not compiled")
	}
	// Skip and stop patterns are case-insensitive.
	if !cfg.StopRegexp().MatchString("TOTAL ROW") {
		t.Error("stop pattern should match case-insensitively")
	}
}

func TestCompileDefaults(t *testing.T) {
	cfg := &Config{Columns: []Column{{Source: "A", Target: "a"}}}
	if err := cfg.Compile(); err != nil {
		t.Fatalf("Compile: %v", err)
	}
	if cfg.Delimiter != "," || cfg.Encoding != "utf-8" || cfg.OutputType != "dict" {
		t.Fatalf("defaults not applied: %+v", cfg)
	}
	if cfg.Columns[0].FieldType() != convert.TypeString {
		t.Errorf("missing type should default to string, got %v", cfg.Columns[0].FieldType())
	}
}

func TestCompileFatalCases(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantSub string
	}{
		{
			"no columns",
			Config{},
			"no column mappings",
		},
		{
			"multi-char delimiter",
			Config{Delimiter: "||", Columns: []Column{{Source: "A", Target: "a"}}},
			"delimiter",
		},
		{
			"missing source",
			Config{Columns: []Column{{Target: "a"}}},
			"source is required",
		},
		{
			"missing target",
			Config{Columns: []Column{{Source: "A"}}},
			"target is required",
		},
		{
			"duplicate target",
			Config{Columns: []Column{
				{Source: "A", Target: "a"},
				{Source: "B", Target: "a"},
			}},
			"duplicate target",
		},
		{
			"unknown type",
			Config{Columns: []Column{{Source: "A", Target: "a", Type: "decimal"}}},
			"unknown type",
		},
		{
			"bad extraction regex",
			Config{Columns: []Column{{Source: "A", Target: "a", Regex: "("}}},
			"regex",
		},
		{
			"bad skip pattern",
			Config{
				Columns:      []Column{{Source: "A", Target: "a"}},
				SkipPatterns: []string{"["},
			},
			"skip pattern",
		},
		{
			"bad stop pattern",
			Config{
				Columns:     []Column{{Source: "A", Target: "a"}},
				StopPattern: "[",
			},
			"stop pattern",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Compile()
			if err == nil {
				t.Fatal("Compile succeeded, want error")
			}
			if !strings.Contains(err.Error(), tt.wantSub) {
				t.Fatalf("error %q does not mention %q", err, tt.wantSub)
			}
		})
	}
}

func TestUnknownTransformIsLintNotFatal(t *testing.T) {
	cfg := &Config{Columns: []Column{
		{Source: "A", Target: "a", Transform: "reverse"},
	}}
	if err := cfg.Compile(); err != nil {
		t.Fatalf("unknown transform must not be fatal: %v", err)
	}
	issues := cfg.Issues()
	if len(issues) != 1 || !strings.Contains(issues[0], "reverse") {
		t.Fatalf("Issues() = %v", issues)
	}
}

func TestParseRejectsUnknownFields(t *testing.T) {
	_, err := Parse([]byte("name: x\nsurprise: true\ncolumns:\n  - source: A\n    target: a\n"))
	if err == nil {
		t.Fatal("unknown YAML field accepted")
	}
}

func TestLoadDefaultsNameFromFilename(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "daily_orders.yaml")
	yaml := "columns:\n  - source: A\n    target: a\n"
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Name != "daily_orders" {
		t.Fatalf("Name = %q, want daily_orders", cfg.Name)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("Load of missing file succeeded")
	}
}
