package cli

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/EasterCompany/dex-scribe-service/cache"
	"github.com/EasterCompany/dex-scribe-service/guild"
)

func newCacheCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect the session snapshot cache",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List stored session snapshots",
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := openCache(cmd, opts)
			if err != nil {
				return err
			}
			defer db.Close()

			snaps, err := db.LoadSessions(cmd.Context())
			if err != nil {
				return fmt.Errorf("failed to load sessions: %w", err)
			}
			printSnapshots(cmd.OutOrStdout(), snaps, time.Now())
			return nil
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "purge",
		Short: "Delete every stored session snapshot",
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := openCache(cmd, opts)
			if err != nil {
				return err
			}
			defer db.Close()

			n, err := db.PurgeSessions(cmd.Context())
			if err != nil {
				return fmt.Errorf("failed to purge sessions: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed %d session snapshot(s)\n", n)
			return nil
		},
	})
	return cmd
}

func openCache(cmd *cobra.Command, opts *options) (*cache.DB, error) {
	cfg, err := opts.load()
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	db, err := cache.New(cmd.Context(), cfg.Cache)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to cache: %w", err)
	}
	if db == nil {
		return nil, fmt.Errorf("cache.addr is not configured")
	}
	return db, nil
}

func printSnapshots(out io.Writer, snaps []*guild.Snapshot, now time.Time) {
	if len(snaps) == 0 {
		fmt.Fprintln(out, "No session snapshots.")
		return
	}
	for _, s := range snaps {
		fmt.Fprintf(out, "\n--- Guild: %s ---\n", s.GuildID)
		fmt.Fprintf(out, "Session: %s\n", s.ID)
		fmt.Fprintf(out, "Room:    %s\n", s.RoomID)
		fmt.Fprintf(out, "State:   %s\n", s.State)
		fmt.Fprintf(out, "Started: %s (%s ago)\n", s.StartedAt.Format(time.RFC3339), now.Sub(s.StartedAt).Round(time.Second))
		if s.WorkDir != "" {
			fmt.Fprintf(out, "WorkDir: %s\n", s.WorkDir)
		}
	}
}
