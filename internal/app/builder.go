package service

import (
	"context"
	"fmt"
	"iter"

	workerpool "github.com/okian/xpmeter/internal/adapters/mq/worker"
	"github.com/okian/xpmeter/internal/domain/measurement"
	"github.com/okian/xpmeter/internal/domain/model"
	"github.com/okian/xpmeter/internal/domain/snapshot"
)

// recordBuilder adapts measurement.Builder to workerpool.Builder. A fresh
// builder is created per job over that job's state.
type recordBuilder struct {
	items measurement.ItemLookup
}

var _ workerpool.Builder = recordBuilder{}

func (b recordBuilder) Build(ctx context.Context, job model.Job) iter.Seq2[measurement.Record, error] { //nolint:gocritic // hugeParam: jobs travel by value
	switch job.Kind {
	case model.JobSnapshot:
		if job.Snapshot == nil {
			return fail(fmt.Errorf("%w: job %s has no snapshot", measurement.ErrInvalidState, job.ID))
		}
		state, err := job.Snapshot.State()
		if err != nil {
			return fail(fmt.Errorf("%w: %w", measurement.ErrInvalidState, err))
		}
		return measurement.NewBuilder(state, b.items).Snapshot(ctx)

	case model.JobKillCount:
		return func(yield func(measurement.Record, error) bool) {
			rec, err := measurement.NewBuilder(snapshot.Session(job.Player), b.items).KillCount(ctx, job.Boss, job.Count)
			yield(rec, err)
		}

	default:
		return fail(fmt.Errorf("%w: %d", ErrUnknownJob, job.Kind))
	}
}

func fail(err error) iter.Seq2[measurement.Record, error] {
	return func(yield func(measurement.Record, error) bool) {
		yield(measurement.Record{}, err)
	}
}
