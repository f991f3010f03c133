package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"mezzetl/internal/mapping"
)

func newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <mapping.yaml>...",
		Short: "check mapping schemas without parsing any data",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			bad := 0
			for _, path := range args {
				cfg, err := mapping.Load(path)
				if err != nil {
					fmt.Fprintf(cmd.OutOrStdout(), "%s: FAIL: %v\n", path, err)
					bad++
					continue
				}

				issues := cfg.Issues()
				for _, iss := range issues {
					fmt.Fprintf(cmd.OutOrStdout(), "%s: warning: %s\n", path, iss)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s: OK (%d columns)\n", path, len(cfg.Columns))
			}

			if bad > 0 {
				return fmt.Errorf("%d schema(s) failed validation", bad)
			}
			return nil
		},
	}
}
