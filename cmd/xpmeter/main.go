// Command xpmeter turns player game-state snapshots into time-series
// measurements.
package main

import (
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/okian/xpmeter/pkg/logger"
)

func main() {
	// system gauges are published by updateSystemMetrics
	prometheus.Unregister(collectors.NewGoCollector())
	prometheus.Unregister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "xpmeter",
		Short: "Build and ship game-state measurements",
		Long: `xpmeter ingests player game-state snapshots, builds tagged
time-series records from them (skills, status, location, inventory value and
kill counts) and writes the ones that changed to an InfluxDB compatible
backend.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			// stdout carries command output
			return logger.InitWithWriter(cmd.ErrOrStderr())
		},
	}
	root.AddCommand(newServeCommand(), newBuildCommand(), newReplayCommand())
	return root
}
