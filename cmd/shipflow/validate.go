package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/drblury/shipflow/internal/runtime/config"
)

func newValidateCmd(opts *rootOptions) *cobra.Command {
	var show bool
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Load and validate the configuration",
		Example: `  shipflow validate --config config/latest.yaml
  shipflow validate --show`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := opts.path("")
			cfg, err := config.Load(path)
			if err != nil {
				return fmt.Errorf("invalid config: %w", err)
			}
			out := cmd.OutOrStdout()
			if show {
				fmt.Fprintln(out, cfg.String())
			}
			fmt.Fprintf(out, "%s: ok (%d sources, transport %s)\n", path, len(cfg.Sources), cfg.Transport.Type)
			return nil
		},
	}
	cmd.Flags().BoolVar(&show, "show", false, "print the decoded config with secrets redacted")
	return cmd
}
