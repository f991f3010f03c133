package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"mezzetl/internal/diag"
	"mezzetl/internal/runner"
	"mezzetl/internal/source/gsheets"
	"mezzetl/internal/source/xlsx"
	"mezzetl/internal/weekly"
)

type sheetLine struct {
	WeekStart string  `json:"week_start,omitempty"`
	WeekEnd   string  `json:"week_end,omitempty"`
	DayOfWeek string  `json:"day_of_week"`
	Customer  string  `json:"customer"`
	POHint    string  `json:"po_hint,omitempty"`
	Product   string  `json:"product"`
	UnitType  string  `json:"unit_type"`
	Quantity  float64 `json:"quantity"`
	SourceTab string  `json:"source_tab"`
	SourceRow int     `json:"source_row"`
}

type sheetReport struct {
	RunID    string       `json:"run_id"`
	Lines    []sheetLine  `json:"lines"`
	Warnings []diag.Entry `json:"warnings"`
	Errors   []diag.Entry `json:"errors"`
	Stats    weekly.Stats `json:"stats"`
	Stored   int64        `json:"stored,omitempty"`
}

func newSheetCmd(flags *rootFlags) *cobra.Command {
	var (
		filePath      string
		spreadsheetID string
		workers       int
		allTabs       bool
	)

	cmd := &cobra.Command{
		Use:   "sheet",
		Short: "parse weekly order tabs from a workbook file or Google spreadsheet",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			if (filePath == "") == (spreadsheetID == "") {
				return fmt.Errorf("exactly one of --file or --spreadsheet-id is required")
			}

			var src weekly.GridSource
			switch {
			case filePath != "":
				wb, err := xlsx.Open(filePath)
				if err != nil {
					return err
				}
				defer wb.Close()
				if allTabs {
					wb.TabFilter = nil
				}
				src = wb
			default:
				client, err := gsheets.NewClient(ctx, spreadsheetID)
				if err != nil {
					return err
				}
				if !allTabs {
					client.TabFilter = xlsx.WeeklyOrderTabs
				}
				src = client
			}

			m := flags.newMetrics(ctx, "sheet")
			defer func() { _ = m.Close() }()

			r := &runner.Runner{
				Parser:  &weekly.Parser{Logger: flags.logger()},
				Metrics: m,
				Logger:  flags.logger(),
				Workers: workers,
			}

			rep, err := r.Run(ctx, src, runner.Options{
				RunID:   flags.runID,
				Storage: flags.storageConfig(),
			})
			if err != nil {
				return err
			}

			out := sheetReport{
				RunID:    rep.RunID,
				Lines:    make([]sheetLine, 0, len(rep.Result.Lines)),
				Warnings: rep.Result.Warnings,
				Errors:   rep.Result.Errors,
				Stats:    rep.Result.Stats,
				Stored:   rep.LinesStored,
			}
			for _, l := range rep.Result.Lines {
				out.Lines = append(out.Lines, sheetLine{
					WeekStart: dateString(l.WeekStart),
					WeekEnd:   dateString(l.WeekEnd),
					DayOfWeek: l.DayOfWeek,
					Customer:  l.Customer,
					POHint:    l.POHint,
					Product:   l.Product,
					UnitType:  string(l.UnitType),
					Quantity:  l.Quantity,
					SourceTab: l.SourceTab,
					SourceRow: l.SourceRow,
				})
			}

			return writeJSON(cmd.OutOrStdout(), out)
		},
	}

	cmd.Flags().StringVarP(&filePath, "file", "f", "", "local .xlsx workbook path")
	cmd.Flags().StringVar(&spreadsheetID, "spreadsheet-id", "", "Google spreadsheet ID")
	cmd.Flags().IntVar(&workers, "workers", 4, "concurrent tab parsers")
	cmd.Flags().BoolVar(&allTabs, "all-tabs", false, "parse every tab instead of only weekly order tabs")
	return cmd
}

func dateString(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format("2006-01-02")
}
