package main

import (
	"github.com/spf13/cobra"

	"github.com/drblury/shipflow/internal/runtime/config"
)

type rootOptions struct {
	configPath string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:   "shipflow",
		Short: "Ship records through the configured pipeline",
		Long: `shipflow runs the event-shipping pipeline outside of a function host.

Records are matched to a configured source, deserialized, transformed,
serialized and delivered to the configured sink.`,
		Version:      "0.1.0",
		SilenceUsage: true,
	}

	root.PersistentFlags().StringVar(&opts.configPath, "config", "",
		"config file (default: $"+config.PathEnv+" or ./config/latest.yaml)")

	root.AddCommand(newRunCmd(opts), newValidateCmd(opts))
	return root
}

// path returns the explicit --config value or the resolved default.
func (o *rootOptions) path(alias string) string {
	if o.configPath != "" {
		return o.configPath
	}
	return config.Resolve(".", alias)
}
