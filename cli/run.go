package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/EasterCompany/dex-scribe-service/app"
)

func newRunCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the service until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runService(cmd.Context(), opts)
		},
	}
}

func runService(ctx context.Context, opts *options) error {
	cfg, err := opts.load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.NewApp(ctx, cfg)
	if err != nil {
		return fmt.Errorf("initializing app: %w", err)
	}
	return a.Run(ctx)
}
