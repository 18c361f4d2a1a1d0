package fusion

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/fpang/videointel/internal/filehandler"
	"github.com/fpang/videointel/internal/store"
)

// ErrQueueFull is returned by Submit when the backlog is at capacity.
var ErrQueueFull = errors.New("job queue is full")

// Runner processes submitted videos in the background, one at a time per
// worker. It backs the local API server.
type Runner struct {
	engine *Engine
	cfg    JobConfig
	queue  chan VideoJob
	wg     sync.WaitGroup
	once   sync.Once
}

// NewRunner starts workers that process jobs until ctx is done or Close is
// called. backlog bounds the number of queued jobs.
func NewRunner(ctx context.Context, engine *Engine, cfg JobConfig, workers, backlog int) *Runner {
	r := &Runner{
		engine: engine,
		cfg:    cfg,
		queue:  make(chan VideoJob, max(backlog, 1)),
	}
	for range max(workers, 1) {
		r.wg.Add(1)
		go r.work(ctx)
	}
	return r
}

func (r *Runner) work(ctx context.Context) {
	defer r.wg.Done()
	for {
		select {
		case <-ctx.Done():
			r.drain()
			return
		case job, ok := <-r.queue:
			if !ok {
				return
			}
			if _, err := r.engine.Process(ctx, job); err != nil {
				log.Warn().Err(err).Str("jobId", job.ID).Str("videoId", job.VideoID).Msg("Background job did not complete")
			}
		}
	}
}

// Submit validates path, records a pending job, and queues it.
func (r *Runner) Submit(ctx context.Context, path string) (*store.Job, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve path: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("input not found: %s", path)
	}
	if info.IsDir() || !filehandler.IsVideo(filepath.Ext(abs)) {
		return nil, fmt.Errorf("unsupported input: %s", path)
	}

	job := NewJob(abs, r.cfg)
	rec := &store.Job{
		ID:        job.ID,
		VideoID:   job.VideoID,
		Source:    job.Source,
		Status:    store.StatusPending,
		CreatedAt: time.Now().UTC(),
	}

	ledger := r.engine.Ledger
	if ledger != nil {
		if err := ledger.PutJob(ctx, rec); err != nil {
			log.Warn().Err(err).Str("jobId", job.ID).Msg("Failed to record pending job")
			ledger = nil
		}
	}
	select {
	case r.queue <- job:
	default:
		if ledger != nil {
			if err := ledger.UpdateJobStatus(ctx, job.ID, store.StatusFailed, ErrQueueFull.Error()); err != nil {
				log.Warn().Err(err).Str("jobId", job.ID).Msg("Failed to record rejected job")
			}
		}
		return nil, ErrQueueFull
	}
	log.Info().Str("jobId", job.ID).Str("videoId", job.VideoID).Msg("Job queued")
	return rec, nil
}

// Close stops accepting jobs and waits for queued ones to finish. Jobs
// still queued after the workers stopped are marked cancelled.
func (r *Runner) Close() {
	r.once.Do(func() { close(r.queue) })
	r.wg.Wait()
	r.drain()
}

// drain marks every job left in the queue as cancelled.
func (r *Runner) drain() {
	for {
		select {
		case job, ok := <-r.queue:
			if !ok {
				return
			}
			r.cancelQueued(job)
		default:
			return
		}
	}
}

func (r *Runner) cancelQueued(job VideoJob) {
	log.Warn().Str("jobId", job.ID).Str("videoId", job.VideoID).Msg("Server shutting down, queued job cancelled")
	if r.engine.Ledger == nil {
		return
	}
	if err := r.engine.Ledger.UpdateJobStatus(context.Background(), job.ID, store.StatusCancelled, "server shut down before the job started"); err != nil {
		log.Warn().Err(err).Str("jobId", job.ID).Msg("Failed to record cancelled job")
	}
}
