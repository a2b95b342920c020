package replay

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/okian/xpmeter/internal/domain/snapshot"
	"github.com/okian/xpmeter/pkg/logger"
)

const (
	filePermission = 0o600
	pollInterval   = 100 * time.Millisecond
)

// Run generates snapshots, submits them concurrently, waits for the service
// to drain its queue and verifies the reported series.
func Run(ctx context.Context, cfg *Config) (*Stats, error) {
	log := logger.Get().Named("replay")
	stats := &Stats{StartTime: time.Now()}
	client := NewClient(cfg.BaseURL, cfg.Timeout)

	log.Info(ctx, "starting replay",
		logger.String("baseURL", cfg.BaseURL),
		logger.Int("players", cfg.Players),
		logger.Int("snapshotsPerPlayer", cfg.SnapshotsPerPlayer),
		logger.Int("workers", cfg.Workers),
	)

	if err := client.Health(ctx); err != nil {
		return nil, fmt.Errorf("service health check failed: %w", err)
	}

	players := Generate(cfg.Players, cfg.SnapshotsPerPlayer, cfg.Seed)
	stats.Generated = cfg.Players * cfg.SnapshotsPerPlayer

	if cfg.OutputFile != "" {
		if err := save(cfg.OutputFile, players); err != nil {
			log.Warn(ctx, "failed to save snapshots", logger.Error(err))
		}
	}

	if err := submit(ctx, client, cfg.Workers, players, stats); err != nil {
		return stats, fmt.Errorf("submission failed: %w", err)
	}

	if err := waitForDrain(ctx, client, cfg.Settle); err != nil {
		log.Warn(ctx, "queue did not drain", logger.Error(err))
	}

	if err := verify(ctx, client, cfg.Workers, cfg.Settle, players, stats); err != nil {
		return stats, err
	}

	stats.EndTime = time.Now()
	stats.Duration = stats.EndTime.Sub(stats.StartTime)
	log.Info(ctx, "replay completed",
		logger.Int("submitted", stats.Submitted),
		logger.Int("accepted", stats.Accepted),
		logger.Int("duplicate", stats.Duplicate),
		logger.Int("failed", stats.Failed),
		logger.Int("verified", stats.Verified),
		logger.Duration("duration", stats.Duration),
	)
	return stats, nil
}

// submit sends each player's snapshots in order, players in parallel.
func submit(ctx context.Context, client *Client, workers int, players [][]snapshot.Snapshot, stats *Stats) error {
	var accepted, duplicate, failed atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(workers, 1))
	for _, snaps := range players {
		g.Go(func() error {
			for i := range snaps {
				ack, err := client.PostSnapshot(gctx, &snaps[i])
				switch {
				case err != nil:
					failed.Add(1)
					logger.Get().Debug(gctx, "snapshot rejected", logger.String("snapshot", snaps[i].ID), logger.Error(err))
					if gctx.Err() != nil {
						return gctx.Err()
					}
				case ack.Duplicate:
					duplicate.Add(1)
				default:
					accepted.Add(1)
				}
			}
			return nil
		})
	}
	err := g.Wait()

	stats.Accepted = int(accepted.Load())
	stats.Duplicate = int(duplicate.Load())
	stats.Failed = int(failed.Load())
	stats.Submitted = stats.Accepted + stats.Duplicate + stats.Failed
	return err
}

func waitForDrain(ctx context.Context, client *Client, limit time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, limit)
	defer cancel()

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	for {
		n, err := client.QueueLength(ctx)
		if err == nil && n == 0 {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func save(path string, players [][]snapshot.Snapshot) error {
	data, err := json.MarshalIndent(players, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, filePermission)
}
