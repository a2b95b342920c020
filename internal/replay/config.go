// Package replay drives a running service with synthetic snapshots and checks
// that the series it reports match what was sent.
package replay

import "time"

// Config holds configuration for a replay run.
type Config struct {
	BaseURL            string        // Base URL of the service
	Players            int           // Number of distinct players
	SnapshotsPerPlayer int           // Snapshots sent per player, in order
	Workers            int           // Players submitted concurrently
	Timeout            time.Duration // HTTP request timeout
	Settle             time.Duration // How long to wait for the queue to drain
	Seed               uint64        // Generator seed, for repeatable runs
	OutputFile         string        // Optional JSON dump of generated snapshots
}

// AckResponse represents the response from snapshot submission.
type AckResponse struct {
	Status     string `json:"status"`
	Duplicate  bool   `json:"duplicate"`
	SnapshotID string `json:"snapshot_id"`
}

// Stats holds run statistics.
type Stats struct {
	Generated  int
	Submitted  int
	Accepted   int
	Duplicate  int
	Failed     int
	Verified   int
	Mismatched int
	StartTime  time.Time
	EndTime    time.Time
	Duration   time.Duration
}
