// Package jobutil records job lifecycle transitions: each transition is
// logged and persisted to the job ledger.
//
// Ledger writes are best effort. A failing ledger is logged and never fails
// the video being processed.
package jobutil

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/fpang/videointel/internal/store"
)

// Tracker persists the lifecycle of one job. A nil Store makes every
// method a logging-only no-op.
type Tracker struct {
	Store store.JobStore
	Job   store.Job
}

// Start records the job as running.
func Start(ctx context.Context, s store.JobStore, id, videoID, source string) *Tracker {
	t := &Tracker{
		Store: s,
		Job: store.Job{
			ID:        id,
			VideoID:   videoID,
			Source:    source,
			Status:    store.StatusRunning,
			CreatedAt: time.Now().UTC(),
		},
	}
	log.Info().Str("job", id).Str("video", videoID).Str("source", source).Msg("Job started")
	t.put(ctx)
	return t
}

// Complete records the job as completed with its output location.
func (t *Tracker) Complete(ctx context.Context, recordPath string, shotCount int) {
	t.Job.Status = store.StatusCompleted
	t.Job.Error = ""
	t.Job.RecordPath = recordPath
	t.Job.ShotCount = shotCount
	log.Info().
		Str("job", t.Job.ID).
		Str("video", t.Job.VideoID).
		Str("record", recordPath).
		Int("shots", shotCount).
		Msg("Job completed")
	t.put(ctx)
}

// Fail records err as the job's terminal state. A context cancellation is
// recorded as cancelled rather than failed.
func (t *Tracker) Fail(ctx context.Context, err error) {
	status := store.StatusFailed
	if errors.Is(err, context.Canceled) {
		status = store.StatusCancelled
	}
	t.Job.Status = status
	t.Job.Error = err.Error()

	ev := log.Error()
	if status == store.StatusCancelled {
		ev = log.Warn()
	}
	ev.Str("job", t.Job.ID).Str("video", t.Job.VideoID).Str("error", t.Job.Error).Msg("Job " + status)

	// The job context may already be cancelled; the terminal write must
	// still land.
	t.put(context.WithoutCancel(ctx))
}

func (t *Tracker) put(ctx context.Context) {
	if t.Store == nil {
		return
	}
	if err := t.Store.PutJob(ctx, &t.Job); err != nil {
		log.Warn().Err(err).Str("job", t.Job.ID).Str("status", t.Job.Status).Msg("Failed to persist job status")
	}
}
