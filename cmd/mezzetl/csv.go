package main

import (
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"mezzetl/internal/csvmap"
	"mezzetl/internal/diag"
	"mezzetl/internal/mapping"
	"mezzetl/internal/metrics"
	"mezzetl/internal/storage"
)

type csvRecord struct {
	Row    int            `json:"row"`
	Fields map[string]any `json:"fields"`
}

type csvReport struct {
	Mapping  string       `json:"mapping"`
	Records  []csvRecord  `json:"records"`
	Warnings []diag.Entry `json:"warnings"`
	Errors   []diag.Entry `json:"errors"`
	Stats    diag.Stats   `json:"stats"`
	RunID    string       `json:"run_id,omitempty"`
	Stored   int64        `json:"stored,omitempty"`
}

func newCSVCmd(flags *rootFlags) *cobra.Command {
	var mappingPath string

	cmd := &cobra.Command{
		Use:   "csv <input-file>",
		Short: "map a delimited file through a mapping schema",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			cfg, err := mapping.Load(mappingPath)
			if err != nil {
				return fmt.Errorf("load mapping: %w", err)
			}
			for _, iss := range cfg.Issues() {
				fmt.Fprintln(os.Stderr, "warning:", iss)
			}

			m := flags.newMetrics(ctx, "csv")
			defer func() { _ = m.Close() }()

			mapper := csvmap.New(cfg)
			mapper.Logger = flags.logger()

			res, err := mapper.ParseFile(args[0])
			if err != nil {
				return err
			}

			m.IncCounter(metrics.RowsTotal, float64(res.Stats.RowsProcessed), metrics.Labels{"kind": "processed"})
			m.IncCounter(metrics.RowsTotal, float64(res.Stats.RowsSkipped), metrics.Labels{"kind": "skipped"})
			for _, w := range res.Warnings {
				m.IncCounter(metrics.WarningsTotal, 1, metrics.Labels{"type": w.Kind})
			}

			rep := csvReport{
				Mapping:  cfg.Name,
				Records:  make([]csvRecord, 0, len(res.Records)),
				Warnings: res.Warnings,
				Errors:   res.Errors,
				Stats:    res.Stats,
			}
			for _, rec := range res.Records {
				rep.Records = append(rep.Records, csvRecord{Row: rec.SourceRow, Fields: rec.Fields})
			}

			if sc := flags.storageConfig(); sc != nil {
				rep.RunID = flags.runID
				if rep.RunID == "" {
					rep.RunID = uuid.NewString()
				}
				stored, err := persistRecords(cmd, *sc, rep.RunID, rep.Mapping, res.Records)
				if err != nil {
					return err
				}
				rep.Stored = stored
			}

			if err := writeJSON(cmd.OutOrStdout(), rep); err != nil {
				return err
			}
			if len(res.Errors) > 0 {
				return fmt.Errorf("mapping failed with %d error(s)", len(res.Errors))
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&mappingPath, "mapping", "m", "", "mapping schema YAML (required)")
	_ = cmd.MarkFlagRequired("mapping")
	return cmd
}

func persistRecords(cmd *cobra.Command, cfg storage.Config, runID, mappingName string, records []csvmap.Record) (int64, error) {
	ctx := cmd.Context()

	repo, err := storage.New(ctx, cfg)
	if err != nil {
		return 0, fmt.Errorf("storage init: %w", err)
	}
	defer repo.Close()

	if err := repo.EnsureSchema(ctx); err != nil {
		return 0, err
	}
	return repo.InsertRecords(ctx, runID, mappingName, records)
}
