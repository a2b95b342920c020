package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/okian/xpmeter/internal/replay"
)

func newReplayCommand() *cobra.Command {
	cfg := replay.Config{}
	cmd := &cobra.Command{
		Use:   "replay",
		Short: "Drive a running service with synthetic snapshots and verify its series",
		Example: `  xpmeter replay --url http://localhost:9080 --players 50 --snapshots 10
  xpmeter replay --seed 7 --output snapshots.json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			stats, err := replay.Run(ctx, &cfg)
			if stats != nil {
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "verified %d/%d players in %s\n",
					stats.Verified, stats.Verified+stats.Mismatched, stats.Duration.Round(time.Millisecond))
			}
			return err
		},
	}

	f := cmd.Flags()
	f.StringVar(&cfg.BaseURL, "url", "http://localhost:9080", "base URL of the service")
	f.IntVar(&cfg.Players, "players", 20, "number of distinct players")
	f.IntVar(&cfg.SnapshotsPerPlayer, "snapshots", 5, "snapshots sent per player")
	f.IntVar(&cfg.Workers, "workers", 8, "players submitted concurrently")
	f.DurationVar(&cfg.Timeout, "timeout", 5*time.Second, "HTTP request timeout")
	f.DurationVar(&cfg.Settle, "settle", 10*time.Second, "how long to wait for the service to catch up")
	f.Uint64Var(&cfg.Seed, "seed", 1, "generator seed")
	f.StringVar(&cfg.OutputFile, "output", "", "write generated snapshots to this JSON file")
	return cmd
}
