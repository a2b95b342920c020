package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/okian/xpmeter/internal/adapters/influx"
	"github.com/okian/xpmeter/internal/config"
	"github.com/okian/xpmeter/internal/domain/measurement"
	"github.com/okian/xpmeter/internal/domain/snapshot"
)

func newBuildCommand() *cobra.Command {
	var (
		catalogPath string
		at          string
	)
	cmd := &cobra.Command{
		Use:   "build <snapshot.json>",
		Short: "Print the line protocol a snapshot produces",
		Long: `Build every record implied by one snapshot document and print it as
InfluxDB line protocol. Record groups that fail are reported on stderr and
the remaining records are still printed.`,
		Example: `  xpmeter build snapshot.json
  xpmeter build --catalog items.yaml --at 2024-01-01T00:00:00Z snapshot.json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ts := time.Now()
			if at != "" {
				parsed, err := time.Parse(time.RFC3339, at)
				if err != nil {
					return fmt.Errorf("invalid --at: %w", err)
				}
				ts = parsed
			}

			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer func() { _ = f.Close() }()

			snap, err := snapshot.Decode(f)
			if err != nil {
				return err
			}
			state, err := snap.State()
			if err != nil {
				return err
			}

			cfg := config.New()
			cfg.CatalogPath = catalogPath
			valuer, err := newValuer(cfg)
			if err != nil {
				return err
			}

			recs, buildErr := measurement.Collect(measurement.NewBuilder(state, valuer).Snapshot(cmd.Context()))
			out, err := influx.Encode(recs, ts)
			if err != nil {
				return err
			}
			if _, err := cmd.OutOrStdout().Write(out); err != nil {
				return err
			}
			if buildErr != nil {
				return fmt.Errorf("%d records built, some groups failed: %w", len(recs), buildErr)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&catalogPath, "catalog", "", "item catalog YAML (default: built-in)")
	cmd.Flags().StringVar(&at, "at", "", "RFC3339 timestamp for every line (default: now)")
	return cmd
}
