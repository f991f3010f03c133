// Package gsheets adapts the Google Sheets API to the weekly parser's
// GridSource seam. Authentication uses a service-account JSON key; the key
// path comes from GOOGLE_APPLICATION_CREDENTIALS or falls back to
// credentials.json in the working directory.
package gsheets

import (
	"context"
	"fmt"
	"os"
	"sort"

	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"
)

// readRange bounds a per-tab fetch. Weekly order tabs never exceed 26
// columns or 200 rows in practice.
const readRange = "A1:Z200"

// Client reads raw row grids from one spreadsheet.
type Client struct {
	srv           *sheets.Service
	spreadsheetID string

	// TabFilter selects which tabs Tabs returns; nil keeps all.
	TabFilter func(name string) bool
}

// NewClient builds a read-only Sheets client for the given spreadsheet.
func NewClient(ctx context.Context, spreadsheetID string) (*Client, error) {
	credsPath := os.Getenv("GOOGLE_APPLICATION_CREDENTIALS")
	if credsPath == "" {
		credsPath = "credentials.json"
	}

	b, err := os.ReadFile(credsPath)
	if err != nil {
		return nil, fmt.Errorf("read service account key: %w", err)
	}

	cfg, err := google.JWTConfigFromJSON(b, sheets.SpreadsheetsReadonlyScope)
	if err != nil {
		return nil, fmt.Errorf("parse service account key: %w", err)
	}

	srv, err := sheets.NewService(ctx, option.WithHTTPClient(cfg.Client(ctx)))
	if err != nil {
		return nil, fmt.Errorf("sheets service: %w", err)
	}

	return &Client{srv: srv, spreadsheetID: spreadsheetID}, nil
}

// Tabs lists the spreadsheet's sheet titles, filtered and sorted by name so
// a reordered spreadsheet still parses in a stable order.
func (c *Client) Tabs(ctx context.Context) ([]string, error) {
	meta, err := c.srv.Spreadsheets.Get(c.spreadsheetID).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("spreadsheet metadata: %w", err)
	}
	var out []string
	for _, sh := range meta.Sheets {
		if sh.Properties == nil {
			continue
		}
		name := sh.Properties.Title
		if c.TabFilter == nil || c.TabFilter(name) {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out, nil
}

// Rows fetches one tab's cells as a raw string grid. The Sheets API returns
// ragged rows (trailing empty cells omitted); the parser tolerates that.
func (c *Client) Rows(ctx context.Context, tab string) ([][]string, error) {
	resp, err := c.srv.Spreadsheets.Values.
		Get(c.spreadsheetID, fmt.Sprintf("'%s'!%s", tab, readRange)).
		Context(ctx).
		Do()
	if err != nil {
		return nil, fmt.Errorf("fetch tab %q: %w", tab, err)
	}

	out := make([][]string, 0, len(resp.Values))
	for _, row := range resp.Values {
		cells := make([]string, 0, len(row))
		for _, v := range row {
			cells = append(cells, fmt.Sprint(v))
		}
		out = append(out, cells)
	}
	return out, nil
}
