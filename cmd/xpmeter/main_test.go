package main

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/smartystreets/goconvey/convey"

	"github.com/okian/xpmeter/internal/config"
	"github.com/okian/xpmeter/pkg/logger"
)

func init() {
	_ = logger.Init()
}

const snapshotDoc = `{
  "user": "zezima",
  "skills": {"attack": {"xp": 13034431}},
  "position": {"x": 3222, "y": 3218, "plane": 0},
  "quest_points": 3,
  "inventories": [{"id": "INVENTORY", "items": [{"id": 995, "quantity": 100}]}],
  "kill_counts": [{"boss": "Zulrah", "count": 12}]
}`

func run(args ...string) (string, error) {
	var out, errOut bytes.Buffer
	root := newRootCommand()
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestRootCommand(t *testing.T) {
	convey.Convey("Given the root command", t, func() {
		root := newRootCommand()

		convey.Convey("Then every subcommand should be registered", func() {
			var names []string
			for _, c := range root.Commands() {
				names = append(names, c.Name())
			}
			convey.So(names, convey.ShouldContain, "serve")
			convey.So(names, convey.ShouldContain, "build")
			convey.So(names, convey.ShouldContain, "replay")
		})

		convey.Convey("When an unknown command is given", func() {
			_, err := run("nope")
			convey.So(err, convey.ShouldNotBeNil)
		})
	})
}

func TestBuildCommand(t *testing.T) {
	convey.Convey("Given a snapshot file", t, func() {
		dir := t.TempDir()
		path := filepath.Join(dir, "snapshot.json")
		convey.So(os.WriteFile(path, []byte(snapshotDoc), 0o600), convey.ShouldBeNil)

		convey.Convey("When building it at a fixed time", func() {
			out, err := run("build", "--at", "2024-01-01T00:00:00Z", path)

			convey.Convey("Then every record should be printed as line protocol", func() {
				convey.So(err, convey.ShouldBeNil)
				lines := strings.Split(strings.TrimSpace(out), "\n")
				// 24 skills, status, location, two inventory lines and one kill count
				convey.So(lines, convey.ShouldHaveLength, 29)
				convey.So(out, convey.ShouldContainSubstring, "rs_skill,skill=ATTACK,user=zezima xp=13034431i,virtualLevel=99i,realLevel=99i 1704067200000000000\n")
				convey.So(out, convey.ShouldContainSubstring, "rs_killcount,boss=Zulrah,user=zezima kc=12i 1704067200000000000\n")
				convey.So(out, convey.ShouldContainSubstring, "rs_inventory,inventory=INVENTORY,type=GE,user=zezima")
			})
		})

		convey.Convey("When the timestamp is malformed", func() {
			_, err := run("build", "--at", "yesterday", path)
			convey.So(err, convey.ShouldNotBeNil)
		})

		convey.Convey("When the file does not exist", func() {
			_, err := run("build", filepath.Join(dir, "missing.json"))
			convey.So(err, convey.ShouldNotBeNil)
		})

		convey.Convey("When the document is invalid", func() {
			bad := filepath.Join(dir, "bad.json")
			convey.So(os.WriteFile(bad, []byte(`{"skills": {}}`), 0o600), convey.ShouldBeNil)
			_, err := run("build", bad)
			convey.So(err, convey.ShouldNotBeNil)
		})
	})
}

func TestWiring(t *testing.T) {
	ctx := context.Background()

	convey.Convey("Given a default config", t, func() {
		cfg := config.New()

		convey.Convey("When building the valuer", func() {
			v, err := newValuer(cfg)
			convey.So(err, convey.ShouldBeNil)
			def, err := v.Definition(ctx, 995)
			convey.So(err, convey.ShouldBeNil)
			convey.So(def.Name, convey.ShouldEqual, "Coins")
		})

		convey.Convey("When the catalog path is missing", func() {
			cfg.CatalogPath = "/nonexistent/items.yaml"
			_, err := newValuer(cfg)
			convey.So(err, convey.ShouldNotBeNil)
		})

		convey.Convey("When an InfluxDB backend is configured", func() {
			var (
				lines atomic.Int64
				path  atomic.Value
			)
			influxSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				body, _ := io.ReadAll(r.Body)
				path.Store(r.URL.Path)
				lines.Add(int64(strings.Count(string(body), "\n")))
				w.WriteHeader(http.StatusNoContent)
			}))
			defer influxSrv.Close()

			cfg.InfluxURL = influxSrv.URL
			cfg.InfluxBucket = "runelite"
			cfg.InfluxOrg = "home"
			cfg.FlushInterval = time.Hour
			cfg.WorkerCount = 2

			svc, err := newService(cfg)
			convey.So(err, convey.ShouldBeNil)
			convey.So(svc.Start(ctx), convey.ShouldBeNil)

			apiSrv := httptest.NewServer(newHTTPServer(ctx, cfg, svc).Handler)
			defer apiSrv.Close()

			resp, err := http.Post(apiSrv.URL+"/snapshots", "application/json", strings.NewReader(snapshotDoc))
			convey.So(err, convey.ShouldBeNil)
			_ = resp.Body.Close()
			convey.So(resp.StatusCode, convey.ShouldEqual, http.StatusAccepted)

			convey.Convey("Then stopping the service should flush records to it", func() {
				convey.So(svc.Stop(ctx), convey.ShouldBeNil)
				convey.So(path.Load(), convey.ShouldEqual, "/api/v2/write")
				convey.So(lines.Load(), convey.ShouldEqual, 29)
			})
		})
	})
}

func TestMetricsUpdaters(t *testing.T) {
	convey.Convey("Given the metrics updaters", t, func() {
		convey.Convey("Then a single system update should not panic", func() {
			convey.So(updateSystemMetrics, convey.ShouldNotPanic)
		})

		convey.Convey("Then the loops should return when the context ends", func() {
			ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
			defer cancel()
			convey.So(func() { startSystemMetricsUpdater(ctx) }, convey.ShouldNotPanic)

			svc, err := newService(config.New())
			convey.So(err, convey.ShouldBeNil)
			convey.So(func() { startServiceMetricsUpdater(ctx, svc) }, convey.ShouldNotPanic)
		})
	})
}
