package model_test

import (
	"testing"
	"time"

	"github.com/okian/xpmeter/internal/domain/model"
	"github.com/okian/xpmeter/internal/domain/snapshot"
	"github.com/smartystreets/goconvey/convey"
)

func TestJob(t *testing.T) {
	convey.Convey("Given queued jobs", t, func() {
		now := time.Now()

		convey.Convey("When wrapping a snapshot", func() {
			job := model.NewSnapshotJob(&snapshot.Snapshot{ID: "snap-1", User: "zezima"}, now)

			convey.Convey("Then it should carry the snapshot identity", func() {
				convey.So(job.ID, convey.ShouldEqual, "snap-1")
				convey.So(job.Kind, convey.ShouldEqual, model.JobSnapshot)
				convey.So(job.User(), convey.ShouldEqual, "zezima")
				convey.So(job.ReceivedAt, convey.ShouldEqual, now)
			})
		})

		convey.Convey("When wrapping a kill count", func() {
			job := model.NewKillCountJob("kc-1", "lynx", "Zulrah", 12, now)

			convey.Convey("Then it should carry the reading", func() {
				convey.So(job.Kind, convey.ShouldEqual, model.JobKillCount)
				convey.So(job.User(), convey.ShouldEqual, "lynx")
				convey.So(job.Boss, convey.ShouldEqual, "Zulrah")
				convey.So(job.Count, convey.ShouldEqual, 12)
			})
		})

		convey.Convey("When naming kinds", func() {
			convey.So(model.JobSnapshot.String(), convey.ShouldEqual, "snapshot")
			convey.So(model.JobKillCount.String(), convey.ShouldEqual, "killcount")
			convey.So(model.JobKind(0).String(), convey.ShouldEqual, "unknown")
		})
	})
}
