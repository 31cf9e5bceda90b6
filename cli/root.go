// Package cli holds the scribe command tree.
package cli

import (
	"github.com/spf13/cobra"

	"github.com/EasterCompany/dex-scribe-service/config"
)

// Version is set at build time.
var Version = "dev"

type options struct {
	configPath string
}

func (o *options) load() (*config.AllConfig, error) {
	return config.Load(o.configPath)
}

// NewRootCmd builds the scribe command. With no subcommand it runs the service.
func NewRootCmd() *cobra.Command {
	opts := &options{}
	rootCmd := &cobra.Command{
		Use:           "scribe",
		Short:         "Record Discord voice meetings and post summaries",
		Long:          "A Discord bot that follows one user between voice channels, records every speaker, and posts an AI summary of each meeting.",
		SilenceUsage:  true,
		SilenceErrors: true,
		Version:       Version,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runService(cmd.Context(), opts)
		},
	}
	rootCmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "path to config.yaml (default ~/Scribe/config.yaml)")

	rootCmd.AddCommand(newRunCmd(opts))
	rootCmd.AddCommand(newVerifyConfigCmd(opts))
	rootCmd.AddCommand(newCacheCmd(opts))

	return rootCmd
}
