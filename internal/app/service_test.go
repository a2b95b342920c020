package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/okian/xpmeter/internal/adapters/catalog"
	"github.com/okian/xpmeter/internal/domain/measurement"
	"github.com/okian/xpmeter/internal/domain/model"
	"github.com/okian/xpmeter/internal/domain/snapshot"
	"github.com/okian/xpmeter/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func init() {
	if err := logger.Init(); err != nil {
		panic(err)
	}
}

func TestService_New(t *testing.T) {
	Convey("Given a new service with default options", t, func() {
		svc := New()

		Convey("Then it should have sensible defaults", func() {
			So(svc.workerCount, ShouldBeGreaterThan, 0)
			So(svc.queueSize, ShouldEqual, 10_000)
			So(svc.shardCount, ShouldEqual, 16)
		})
	})

	Convey("Given a new service with custom options", t, func() {
		svc := New(
			WithWorkerCount(8),
			WithQueueSize(50_000),
			WithDedupeSize(0),
			WithShardCount(2),
			WithWorkerCount(-1),
		)

		Convey("Then valid options should apply and invalid ones be ignored", func() {
			So(svc.workerCount, ShouldEqual, 8)
			So(svc.queueSize, ShouldEqual, 50_000)
			So(svc.dedupeSize, ShouldEqual, 0)
			So(svc.shardCount, ShouldEqual, 2)
		})
	})
}

func TestService_Lifecycle(t *testing.T) {
	ctx := context.Background()

	Convey("Given a service that was never started", t, func() {
		svc := New()

		Convey("Then every operation should report it", func() {
			_, err := svc.SubmitSnapshot(ctx, &snapshot.Snapshot{User: "a"})
			So(errors.Is(err, ErrNotStarted), ShouldBeTrue)
			So(errors.Is(svc.SubmitKillCount(ctx, "a", "Zulrah", 1), ErrNotStarted), ShouldBeTrue)
			_, err = svc.Series(ctx, "", 10)
			So(errors.Is(err, ErrNotStarted), ShouldBeTrue)
			So(svc.Stop(ctx), ShouldBeNil)
			So(svc.Size(), ShouldEqual, 0)
			So(svc.GetStats()["started"], ShouldEqual, false)
		})
	})

	Convey("Given a started service", t, func() {
		svc := New(WithWorkerCount(1))
		So(svc.Start(ctx), ShouldBeNil)
		So(svc.Start(ctx), ShouldBeNil)

		Convey("When stopping it", func() {
			So(svc.Stop(ctx), ShouldBeNil)

			Convey("Then it should be marked as stopped", func() {
				So(svc.GetStats()["started"], ShouldEqual, false)
				So(svc.Stop(ctx), ShouldBeNil)
			})
		})
	})
}

func TestRecordBuilder(t *testing.T) {
	ctx := context.Background()
	c, err := catalog.Default()
	if err != nil {
		t.Fatal(err)
	}
	b := recordBuilder{items: catalog.NewValuer(c)}

	Convey("Given a kill-count job", t, func() {
		recs, err := measurement.Collect(b.Build(ctx, model.NewKillCountJob("1", "zezima", "Vorkath", 50, time.Time{})))

		Convey("Then it should build one record", func() {
			So(err, ShouldBeNil)
			So(recs, ShouldHaveLength, 1)
			So(recs[0].Key(), ShouldEqual, "rs_killcount,user=zezima,boss=Vorkath")
		})
	})

	Convey("Given an invalid snapshot job", t, func() {
		job := model.NewSnapshotJob(&snapshot.Snapshot{}, time.Time{})
		recs, err := measurement.Collect(b.Build(ctx, job))

		Convey("Then it should yield a single state error", func() {
			So(recs, ShouldBeEmpty)
			So(errors.Is(err, measurement.ErrInvalidState), ShouldBeTrue)
			So(errors.Is(err, snapshot.ErrMissingUser), ShouldBeTrue)
		})
	})

	Convey("Given a job of unknown kind", t, func() {
		_, err := measurement.Collect(b.Build(ctx, model.Job{ID: "x"}))
		So(errors.Is(err, ErrUnknownJob), ShouldBeTrue)
	})
}
