package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/okian/xpmeter/internal/domain/model"
	"github.com/okian/xpmeter/internal/domain/snapshot"
)

func snapshotJob(id string) model.Job {
	return model.NewSnapshotJob(&snapshot.Snapshot{ID: id, User: "zezima"}, time.Now())
}

func TestInMemoryQueue_BasicOperations(t *testing.T) {
	q := NewInMemoryQueue(WithCapacity(2))
	ctx := context.Background()

	if l := q.Len(ctx); l != 0 {
		t.Errorf("expected length 0, got %d", l)
	}

	if err := q.Enqueue(ctx, snapshotJob("snap1")); err != nil {
		t.Fatalf("expected enqueue to succeed, got %v", err)
	}
	if err := q.Enqueue(ctx, model.NewKillCountJob("kc1", "zezima", "Zulrah", 3, time.Now())); err != nil {
		t.Fatalf("expected enqueue to succeed, got %v", err)
	}
	if l := q.Len(ctx); l != 2 {
		t.Errorf("expected length 2, got %d", l)
	}

	jobs := q.Dequeue(ctx)
	first, second := <-jobs, <-jobs
	if first.ID != "snap1" || first.Kind != model.JobSnapshot {
		t.Errorf("expected snapshot job snap1 first, got %+v", first)
	}
	if second.ID != "kc1" || second.Boss != "Zulrah" {
		t.Errorf("expected kill-count job kc1 second, got %+v", second)
	}
}

func TestInMemoryQueue_Capacity(t *testing.T) {
	q := NewInMemoryQueue(WithCapacity(2))
	ctx := context.Background()

	for _, id := range []string{"snap1", "snap2"} {
		if err := q.Enqueue(ctx, snapshotJob(id)); err != nil {
			t.Fatalf("expected enqueue to succeed, got %v", err)
		}
	}
	if err := q.Enqueue(ctx, snapshotJob("snap3")); !errors.Is(err, ErrFull) {
		t.Errorf("expected ErrFull, got %v", err)
	}
	if q.Cap() != 2 {
		t.Errorf("expected capacity 2, got %d", q.Cap())
	}
}

func TestInMemoryQueue_CancelledContext(t *testing.T) {
	q := NewInMemoryQueue(WithCapacity(2))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := q.Enqueue(ctx, snapshotJob("snap1")); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestInMemoryQueue_ConcurrentAccess(t *testing.T) {
	q := NewInMemoryQueue(WithCapacity(100))
	ctx := context.Background()
	const producers, perProducer = 10, 100

	var wg sync.WaitGroup
	for i := 0; i < producers; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for j := 0; j < perProducer; j++ {
				for q.Enqueue(ctx, snapshotJob(fmt.Sprintf("snap%d_%d", id, j))) != nil {
					time.Sleep(time.Millisecond)
				}
			}
		}(i)
	}

	var (
		mu   sync.Mutex
		seen = make(map[string]bool)
		cwg  sync.WaitGroup
	)
	for i := 0; i < 4; i++ {
		cwg.Add(1)
		go func() {
			defer cwg.Done()
			for j := range q.Dequeue(ctx) {
				mu.Lock()
				seen[j.ID] = true
				mu.Unlock()
			}
		}()
	}

	wg.Wait()
	_ = q.Close()
	cwg.Wait()

	if len(seen) != producers*perProducer {
		t.Errorf("expected %d distinct jobs, got %d", producers*perProducer, len(seen))
	}
	if l := q.Len(ctx); l != 0 {
		t.Errorf("expected final length 0, got %d", l)
	}
}

func TestInMemoryQueue_GracefulShutdown(t *testing.T) {
	q := NewInMemoryQueue(WithCapacity(10))
	ctx := context.Background()

	_ = q.Enqueue(ctx, snapshotJob("snap1"))
	_ = q.Enqueue(ctx, snapshotJob("snap2"))

	if q.IsClosed() {
		t.Error("expected queue to be open initially")
	}
	if err := q.Close(); err != nil {
		t.Errorf("expected close to succeed, got error: %v", err)
	}
	if !q.IsClosed() {
		t.Error("expected queue to be closed after Close()")
	}
	if err := q.Enqueue(ctx, snapshotJob("snap3")); !errors.Is(err, ErrClosed) {
		t.Errorf("expected ErrClosed, got %v", err)
	}

	// buffered jobs drain before the channel closes
	var drained []string
	timeout := time.After(time.Second)
	jobs := q.Dequeue(ctx)
	for done := false; !done; {
		select {
		case j, ok := <-jobs:
			if !ok {
				done = true
				break
			}
			drained = append(drained, j.ID)
		case <-timeout:
			t.Fatal("expected dequeue channel to be closed within timeout")
		}
	}
	if len(drained) != 2 {
		t.Errorf("expected 2 drained jobs, got %v", drained)
	}

	if err := q.Close(); err != nil {
		t.Errorf("expected second close to succeed, got error: %v", err)
	}
}

func TestInMemoryQueue_AbandonedReaderKeepsNoJob(t *testing.T) {
	q := NewInMemoryQueue(WithCapacity(4))
	ctx, cancel := context.WithCancel(context.Background())

	_ = q.Dequeue(ctx)
	cancel()
	if err := q.Enqueue(context.Background(), snapshotJob("snap1")); err != nil {
		t.Fatalf("expected enqueue to succeed, got %v", err)
	}
	time.Sleep(10 * time.Millisecond)

	if l := q.Len(context.Background()); l != 1 {
		t.Fatalf("expected the job to stay queued, got length %d", l)
	}
	select {
	case j := <-q.Dequeue(context.Background()):
		if j.ID != "snap1" {
			t.Errorf("expected snap1, got %q", j.ID)
		}
	case <-time.After(time.Second):
		t.Fatal("job was held by an abandoned reader")
	}
}
