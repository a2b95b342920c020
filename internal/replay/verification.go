package replay

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/okian/xpmeter/internal/domain/measurement"
	"github.com/okian/xpmeter/internal/domain/skill"
	"github.com/okian/xpmeter/internal/domain/snapshot"
	"github.com/okian/xpmeter/internal/domain/types"
	"github.com/okian/xpmeter/pkg/logger"
)

// ErrMismatch is returned when the service reports a different final state
// than the one submitted.
var ErrMismatch = errors.New("series mismatch")

// verify checks every player's final skill xp and kill counts. A player that
// does not match yet is polled again until settle elapses.
func verify(ctx context.Context, client *Client, workers int, settle time.Duration, players [][]snapshot.Snapshot, stats *Stats) error {
	var verified, mismatched atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(workers, 1))
	for _, snaps := range players {
		if len(snaps) == 0 {
			continue
		}
		last := snaps[len(snaps)-1]
		g.Go(func() error {
			deadline := time.Now().Add(settle)
			for {
				entries, err := client.UserSeries(gctx, last.User)
				if err == nil {
					err = compare(&last, entries)
				}
				if err == nil {
					verified.Add(1)
					return nil
				}
				if time.Now().After(deadline) || gctx.Err() != nil {
					mismatched.Add(1)
					logger.Get().Warn(gctx, "final state differs", logger.String("user", last.User), logger.Error(err))
					return gctx.Err()
				}
				time.Sleep(pollInterval)
			}
		})
	}
	err := g.Wait()

	stats.Verified = int(verified.Load())
	stats.Mismatched = int(mismatched.Load())
	if err != nil {
		return err
	}
	if stats.Mismatched > 0 {
		return fmt.Errorf("%w: %d of %d players", ErrMismatch, stats.Mismatched, len(players))
	}
	return nil
}

// compare checks entries against the final snapshot of one player.
func compare(last *snapshot.Snapshot, entries []types.SeriesEntry) error {
	byKey := make(map[string]types.SeriesEntry, len(entries))
	for _, e := range entries {
		byKey[e.Key] = e
	}

	for name, st := range last.Skills {
		sk, err := skill.Parse(name)
		if err != nil {
			return err
		}
		key := fmt.Sprintf("%s,user=%s,skill=%s", measurement.SeriesSkill, last.User, sk)
		if err := expectInt(byKey, key, "xp", st.XP); err != nil {
			return err
		}
	}
	// earlier snapshots may have reported other bosses; only the last one is checked
	for _, kc := range last.KillCounts {
		key := fmt.Sprintf("%s,user=%s,boss=%s", measurement.SeriesKillCount, last.User, kc.Boss)
		if err := expectInt(byKey, key, "kc", kc.Count); err != nil {
			return err
		}
	}
	return nil
}

func expectInt(byKey map[string]types.SeriesEntry, key, field string, want int64) error {
	e, ok := byKey[key]
	if !ok {
		return fmt.Errorf("%s missing", key)
	}
	// JSON numbers decode as float64
	got, ok := e.Fields[field].(float64)
	if !ok || int64(got) != want {
		return fmt.Errorf("%s %s = %v, want %d", key, field, e.Fields[field], want)
	}
	return nil
}
