package worker_test

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/okian/xpmeter/internal/adapters/mq/worker"
	"github.com/okian/xpmeter/internal/domain/measurement"
	"github.com/okian/xpmeter/internal/domain/model"
	logging "github.com/okian/xpmeter/pkg/logger"
	"github.com/smartystreets/goconvey/convey"
)

type mockQueue struct {
	jobs chan model.Job
	once sync.Once
}

func newMockQueue() *mockQueue {
	return &mockQueue{jobs: make(chan model.Job, 64)}
}

func (mq *mockQueue) Dequeue(context.Context) <-chan model.Job { return mq.jobs }

func (mq *mockQueue) Close() error {
	mq.once.Do(func() { close(mq.jobs) })
	return nil
}

// kcBuilder builds one kill-count record per job and fails for boss "broken".
type kcBuilder struct{}

func (kcBuilder) Build(_ context.Context, job model.Job) iter.Seq2[measurement.Record, error] {
	return func(yield func(measurement.Record, error) bool) {
		if job.Boss == "broken" {
			yield(measurement.Record{}, fmt.Errorf("%w: broken", measurement.ErrItemNotFound))
			return
		}
		yield(measurement.Record{
			Series: measurement.Series{
				Measurement: measurement.SeriesKillCount,
				Tags:        measurement.TagSet{{Key: "user", Value: job.Player}, {Key: "boss", Value: job.Boss}},
			},
			Fields: measurement.FieldSet{{Key: "kc", Value: measurement.Int(job.Count)}},
		}, nil)
	}
}

type mockStore struct {
	mu     sync.Mutex
	latest map[string]measurement.FieldSet
	err    error
}

func newMockStore() *mockStore {
	return &mockStore{latest: make(map[string]measurement.FieldSet)}
}

func (s *mockStore) Upsert(_ context.Context, rec measurement.Record) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return false, s.err
	}
	if prev, ok := s.latest[rec.Key()]; ok && prev.Equal(rec.Fields) {
		return false, nil
	}
	s.latest[rec.Key()] = rec.Fields
	return true, nil
}

type mockSink struct {
	mu      sync.Mutex
	written []measurement.Record
	err     error
}

func (s *mockSink) Write(_ context.Context, recs ...measurement.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.written = append(s.written, recs...)
	return nil
}

func (s *mockSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.written)
}

func kcJob(id, boss string, count int64) model.Job {
	return model.NewKillCountJob(id, "zezima", boss, count, time.Now())
}

func TestInMemoryWorker(t *testing.T) {
	convey.Convey("Given a new InMemoryWorker", t, func() {
		_ = logging.Init()

		q := newMockQueue()
		store := newMockStore()
		sink := &mockSink{}
		w := worker.NewInMemoryWorker(q, kcBuilder{}, store, sink, worker.WithName("test-worker"))
		ctx := context.Background()

		convey.Convey("When processing a job", func() {
			err := w.Process(ctx, kcJob("kc-1", "Zulrah", 12))

			convey.Convey("Then the record should be stored and shipped", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(sink.count(), convey.ShouldEqual, 1)
				convey.So(sink.written[0].Key(), convey.ShouldEqual, "rs_killcount,user=zezima,boss=Zulrah")
			})
		})

		convey.Convey("When the same reading arrives twice", func() {
			_ = w.Process(ctx, kcJob("kc-1", "Zulrah", 12))
			err := w.Process(ctx, kcJob("kc-2", "Zulrah", 12))

			convey.Convey("Then only the first should reach the sink", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(sink.count(), convey.ShouldEqual, 1)
			})
		})

		convey.Convey("When a build group fails", func() {
			err := w.Process(ctx, kcJob("kc-1", "broken", 1))

			convey.Convey("Then the error should surface and nothing is shipped", func() {
				convey.So(errors.Is(err, measurement.ErrItemNotFound), convey.ShouldBeTrue)
				convey.So(sink.count(), convey.ShouldEqual, 0)
			})
		})

		convey.Convey("When the store fails", func() {
			store.err = errors.New("disk on fire")
			err := w.Process(ctx, kcJob("kc-1", "Zulrah", 1))
			convey.So(err, convey.ShouldNotBeNil)
			convey.So(sink.count(), convey.ShouldEqual, 0)
		})

		convey.Convey("When the sink fails", func() {
			sink.err = errors.New("backend down")
			err := w.Process(ctx, kcJob("kc-1", "Zulrah", 1))
			convey.So(err, convey.ShouldNotBeNil)
			convey.So(err.Error(), convey.ShouldContainSubstring, "sink")
		})

		convey.Convey("When running until the queue closes", func() {
			go w.Run(ctx)
			q.jobs <- kcJob("kc-1", "Zulrah", 1)
			q.jobs <- kcJob("kc-2", "Vorkath", 2)
			_ = q.Close()

			shutdownCtx, cancel := context.WithTimeout(ctx, time.Second)
			defer cancel()
			time.Sleep(50 * time.Millisecond)

			convey.Convey("Then both jobs should be processed", func() {
				convey.So(sink.count(), convey.ShouldEqual, 2)
				convey.So(w.Shutdown(shutdownCtx), convey.ShouldBeNil)
			})
		})

		convey.Convey("When the context is cancelled", func() {
			runCtx, cancel := context.WithCancel(ctx)
			go w.Run(runCtx)
			cancel()

			shutdownCtx, stop := context.WithTimeout(ctx, time.Second)
			defer stop()

			convey.Convey("Then the worker should stop", func() {
				convey.So(w.Shutdown(shutdownCtx), convey.ShouldBeNil)
			})
		})
	})
}

func TestWorkerPool(t *testing.T) {
	convey.Convey("Given a worker pool", t, func() {
		_ = logging.Init()

		q := newMockQueue()
		sink := &mockSink{}
		ctx := context.Background()

		convey.Convey("When created with a non-positive count", func() {
			p := worker.NewPool(0, q, kcBuilder{}, newMockStore(), sink)
			convey.So(p.Size(), convey.ShouldBeGreaterThan, 0)
		})

		convey.Convey("When many jobs are processed concurrently", func() {
			p := worker.NewPool(4, q, kcBuilder{}, newMockStore(), sink)
			p.Start(ctx)
			for i := 0; i < 40; i++ {
				q.jobs <- kcJob(fmt.Sprintf("kc-%d", i), fmt.Sprintf("boss-%d", i), int64(i))
			}

			convey.Convey("Then shutdown should drain every job", func() {
				convey.So(p.Shutdown(ctx), convey.ShouldBeNil)
				convey.So(sink.count(), convey.ShouldEqual, 40)
			})
		})
	})
}

// xpBuilder emits one rs_skill record per job carrying job.Count as xp. Jobs
// whose id starts with "slow" take a while to build.
type xpBuilder struct{ delay time.Duration }

func (b xpBuilder) Build(_ context.Context, job model.Job) iter.Seq2[measurement.Record, error] {
	return func(yield func(measurement.Record, error) bool) {
		if strings.HasPrefix(job.ID, "slow") {
			time.Sleep(b.delay)
		}
		yield(measurement.Record{
			Series: measurement.Series{
				Measurement: measurement.SeriesSkill,
				Tags:        measurement.TagSet{{Key: "user", Value: job.Player}, {Key: "skill", Value: "ATTACK"}},
			},
			Fields: measurement.FieldSet{{Key: "xp", Value: measurement.Int(job.Count)}},
		}, nil)
	}
}

func (s *mockSink) lastXP(user string) (int64, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var (
		xp  int64
		pos = -1
	)
	for i, r := range s.written {
		if v, _ := r.Series.Tags.Get("user"); v == user {
			f, _ := r.Fields.Get("xp")
			xp, pos = f.IntValue(), i
		}
	}
	return xp, pos
}

func TestWorkerPoolOrdering(t *testing.T) {
	convey.Convey("Given a pool where an older snapshot builds slowly", t, func() {
		_ = logging.Init()

		q := newMockQueue()
		store := newMockStore()
		sink := &mockSink{}
		ctx := context.Background()
		p := worker.NewPool(4, q, xpBuilder{delay: 150 * time.Millisecond}, store, sink)
		p.Start(ctx)

		q.jobs <- model.NewKillCountJob("slow-alice-1", "alice", "", 100, time.Now())
		q.jobs <- model.NewKillCountJob("bob-1", "bob", "", 7, time.Now())
		q.jobs <- model.NewKillCountJob("alice-2", "alice", "", 5000, time.Now())

		convey.Convey("When the pool drains", func() {
			convey.So(p.Shutdown(ctx), convey.ShouldBeNil)

			convey.Convey("Then the newer reading should be the latest in the store and the sink", func() {
				aliceXP, alicePos := sink.lastXP("alice")
				convey.So(aliceXP, convey.ShouldEqual, 5000)
				convey.So(store.latest["rs_skill,user=alice,skill=ATTACK"], convey.ShouldResemble,
					measurement.FieldSet{{Key: "xp", Value: measurement.Int(5000)}})

				convey.Convey("And another user's job should not wait behind the slow one", func() {
					_, bobPos := sink.lastXP("bob")
					convey.So(bobPos, convey.ShouldBeBetweenOrEqual, 0, alicePos)
					convey.So(sink.written[0].Series.Tags[0].Value, convey.ShouldEqual, "bob")
				})
			})
		})
	})
}

// splitBuilder yields a valid kill-count record and, for job "mixed", one
// whose boss tag the line protocol cannot carry.
type splitBuilder struct{}

func (splitBuilder) Build(ctx context.Context, job model.Job) iter.Seq2[measurement.Record, error] {
	return func(yield func(measurement.Record, error) bool) {
		for rec, err := range (kcBuilder{}).Build(ctx, job) {
			if !yield(rec, err) {
				return
			}
		}
		if job.ID == "mixed" {
			yield(measurement.Record{
				Series: measurement.Series{
					Measurement: measurement.SeriesKillCount,
					Tags:        measurement.TagSet{{Key: "user", Value: job.Player}, {Key: "boss", Value: "Zul\nrah"}},
				},
				Fields: measurement.FieldSet{{Key: "kc", Value: measurement.Int(1)}},
			}, nil)
		}
	}
}

func TestWorkerRejectsUnencodableRecords(t *testing.T) {
	convey.Convey("Given a job whose records are partly unencodable", t, func() {
		_ = logging.Init()

		store := newMockStore()
		sink := &mockSink{}
		w := worker.NewInMemoryWorker(newMockQueue(), splitBuilder{}, store, sink)
		ctx := context.Background()

		err := w.Process(ctx, kcJob("mixed", "Zulrah", 12))

		convey.Convey("Then the bad record should be reported and kept out of the store", func() {
			convey.So(errors.Is(err, measurement.ErrInvalidRecord), convey.ShouldBeTrue)
			convey.So(sink.count(), convey.ShouldEqual, 1)
			convey.So(store.latest, convey.ShouldHaveLength, 1)

			convey.Convey("And the valid record should still have been shipped once", func() {
				convey.So(w.Process(ctx, kcJob("again", "Zulrah", 12)), convey.ShouldBeNil)
				convey.So(sink.count(), convey.ShouldEqual, 1)
				convey.So(sink.written[0].Key(), convey.ShouldEqual, "rs_killcount,user=zezima,boss=Zulrah")
			})
		})
	})
}
