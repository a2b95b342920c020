// Package model contains domain models passed between layers.
package model

import (
	"time"

	"github.com/okian/xpmeter/internal/domain/snapshot"
)

// JobKind tells the worker how to build a job.
type JobKind uint8

const (
	// JobSnapshot builds every record implied by a full state snapshot.
	JobSnapshot JobKind = iota + 1
	// JobKillCount builds a single kill-count record.
	JobKillCount
)

func (k JobKind) String() string {
	switch k {
	case JobSnapshot:
		return "snapshot"
	case JobKillCount:
		return "killcount"
	default:
		return "unknown"
	}
}

// Job is one unit of queued work.
type Job struct {
	ID         string             // idempotency key
	Kind       JobKind            // selects Snapshot or the kill-count fields
	Snapshot   *snapshot.Snapshot // set for JobSnapshot
	Player     string             // set for JobKillCount
	Boss       string
	Count      int64
	ReceivedAt time.Time
}

// NewSnapshotJob wraps a validated snapshot.
func NewSnapshotJob(s *snapshot.Snapshot, receivedAt time.Time) Job {
	return Job{ID: s.ID, Kind: JobSnapshot, Snapshot: s, ReceivedAt: receivedAt}
}

// NewKillCountJob wraps one kill-count reading.
func NewKillCountJob(id, user, boss string, count int64, receivedAt time.Time) Job {
	return Job{ID: id, Kind: JobKillCount, Player: user, Boss: boss, Count: count, ReceivedAt: receivedAt}
}

// User returns the account the job belongs to.
func (j Job) User() string {
	if j.Kind == JobSnapshot && j.Snapshot != nil {
		return j.Snapshot.User
	}
	return j.Player
}
