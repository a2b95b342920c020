package replay_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/okian/xpmeter/internal/adapters/http/api"
	service "github.com/okian/xpmeter/internal/app"
	"github.com/okian/xpmeter/internal/domain/snapshot"
	"github.com/okian/xpmeter/internal/replay"
	"github.com/okian/xpmeter/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func init() {
	_ = logger.Init()
}

func TestGenerate(t *testing.T) {
	Convey("Given a seeded generator", t, func() {
		a := replay.Generate(3, 4, 42)
		b := replay.Generate(3, 4, 42)

		Convey("Then runs with the same seed should match", func() {
			So(cmp.Diff(a, b), ShouldBeEmpty)
			So(a, ShouldHaveLength, 3)
			So(a[0], ShouldHaveLength, 4)
		})

		Convey("Then every snapshot should be valid and progress monotonically", func() {
			for _, snaps := range a {
				for i := range snaps {
					So(snaps[i].Validate(), ShouldBeNil)
					if i == 0 {
						continue
					}
					for name, st := range snaps[i].Skills {
						So(st.XP, ShouldBeGreaterThanOrEqualTo, snaps[i-1].Skills[name].XP)
					}
				}
			}
		})

		Convey("Then ids should be unique", func() {
			seen := map[string]bool{}
			for _, snaps := range a {
				for _, s := range snaps {
					So(seen[s.ID], ShouldBeFalse)
					seen[s.ID] = true
				}
			}
		})
	})
}

func TestRun(t *testing.T) {
	Convey("Given a running service behind HTTP", t, func() {
		ctx := context.Background()
		svc := service.New(service.WithWorkerCount(4))
		So(svc.Start(ctx), ShouldBeNil)
		defer func() { _ = svc.Stop(ctx) }()

		mux := http.NewServeMux()
		api.NewServer(svc, 1000).Register(ctx, mux)
		srv := httptest.NewServer(mux)
		defer srv.Close()

		Convey("When replaying synthetic players", func() {
			stats, err := replay.Run(ctx, &replay.Config{
				BaseURL:            srv.URL,
				Players:            5,
				SnapshotsPerPlayer: 3,
				Workers:            3,
				Timeout:            5 * time.Second,
				Settle:             5 * time.Second,
				Seed:               7,
			})

			Convey("Then every player should verify", func() {
				So(err, ShouldBeNil)
				So(stats.Submitted, ShouldEqual, 15)
				So(stats.Accepted, ShouldEqual, 15)
				So(stats.Verified, ShouldEqual, 5)
				So(stats.Mismatched, ShouldEqual, 0)
			})

			Convey("And replaying the same seed again", func() {
				stats, err := replay.Run(ctx, &replay.Config{
					BaseURL: srv.URL, Players: 5, SnapshotsPerPlayer: 3, Workers: 3,
					Timeout: 5 * time.Second, Settle: time.Second, Seed: 7,
				})

				Convey("Then every snapshot should be a duplicate", func() {
					So(err, ShouldBeNil)
					So(stats.Duplicate, ShouldEqual, 15)
				})
			})
		})
	})

	Convey("Given no service", t, func() {
		_, err := replay.Run(context.Background(), &replay.Config{BaseURL: "http://127.0.0.1:1", Timeout: time.Second})
		So(err, ShouldNotBeNil)
	})
}

func TestClientErrors(t *testing.T) {
	Convey("Given a service rejecting snapshots", t, func() {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = w.Write([]byte(`{"code":"backpressure","message":"queue full"}`))
		}))
		defer srv.Close()

		c := replay.NewClient(srv.URL, time.Second)
		_, err := c.PostSnapshot(context.Background(), &snapshot.Snapshot{User: "a"})

		Convey("Then the status should surface", func() {
			So(errors.Is(err, replay.ErrUnexpectedStatus), ShouldBeTrue)
			So(err.Error(), ShouldContainSubstring, "backpressure")
		})
	})
}
