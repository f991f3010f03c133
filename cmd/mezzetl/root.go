package main

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"os"

	"github.com/spf13/cobra"

	"mezzetl/internal/metrics"
	"mezzetl/internal/metrics/datadog"
	"mezzetl/internal/storage"

	// register all backends with the storage factory; --storage picks one.
	_ "mezzetl/internal/storage/all"
)

// rootFlags are shared across subcommands via the root command.
type rootFlags struct {
	verbose        bool
	metricsBackend string
	metricsTags    string
	storageKind    string
	storageDSN     string
	runID          string
}

func newRootCmd() *cobra.Command {
	flags := &rootFlags{}

	root := &cobra.Command{
		Use:           "mezzetl",
		Short:         "extract order records from spreadsheets, workbooks, and mail archives",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := root.PersistentFlags()
	pf.BoolVarP(&flags.verbose, "verbose", "v", false, "enable stage logging on stderr")
	pf.StringVar(&flags.metricsBackend, "metrics-backend", "none", "metrics backend (datadog, none)")
	pf.StringVar(&flags.metricsTags, "metrics-tags", "", "extra metric tags, e.g. env:prod,service:orders")
	pf.StringVar(&flags.storageKind, "storage", "", "persist results to this backend (postgres, sqlite, mssql)")
	pf.StringVar(&flags.storageDSN, "dsn", "", "storage DSN; env vars are expanded")
	pf.StringVar(&flags.runID, "run-id", "", "run identifier for persisted rows (default: random UUID)")

	root.AddCommand(
		newCSVCmd(flags),
		newSheetCmd(flags),
		newMboxCmd(flags),
		newValidateCmd(),
	)
	return root
}

// logger returns a stderr logger in verbose mode and a discarding one
// otherwise, so it can always be handed to the engine's Logger seams.
func (f *rootFlags) logger() *log.Logger {
	if !f.verbose {
		return log.New(io.Discard, "", 0)
	}
	return log.New(os.Stderr, "", log.LstdFlags)
}

// newMetrics builds the configured metrics backend. The returned backend is
// never nil; Close must be called before exit so the final flush happens.
func (f *rootFlags) newMetrics(ctx context.Context, job string) metrics.Backend {
	switch f.metricsBackend {
	case "datadog":
		return datadog.New(ctx, datadog.Options{
			JobName: job,
			Tags:    datadog.ParseTagsCSV(f.metricsTags),
		})
	default:
		return metrics.Nop{}
	}
}

// storageConfig returns the persistence target, or nil when none requested.
func (f *rootFlags) storageConfig() *storage.Config {
	if f.storageKind == "" {
		return nil
	}
	return &storage.Config{
		Kind: f.storageKind,
		DSN:  os.ExpandEnv(f.storageDSN),
	}
}

// writeJSON renders the command's report to stdout.
func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
