package fusion

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/fpang/videointel/internal/store"
)

// BatchSummary counts the outcome of every video in a batch.
type BatchSummary struct {
	Processed int
	Failed    int
	Cancelled int
	// Skipped counts videos never started because the batch was cancelled.
	Skipped int
	Results []*Result
}

// Err is non-nil when any video did not complete.
func (s *BatchSummary) Err() error {
	if s.Failed == 0 && s.Cancelled == 0 && s.Skipped == 0 {
		return nil
	}
	return fmt.Errorf("%d of %d videos did not complete (%d failed, %d cancelled, %d skipped)",
		s.Failed+s.Cancelled+s.Skipped, s.Processed+s.Failed+s.Cancelled+s.Skipped, s.Failed, s.Cancelled, s.Skipped)
}

// ProcessBatch runs every job in order. One video's failure never stops
// the others; cancellation stops the batch and counts the rest as skipped.
func (e *Engine) ProcessBatch(ctx context.Context, batch []VideoJob) *BatchSummary {
	s := &BatchSummary{}
	for i, job := range batch {
		if ctx.Err() != nil {
			s.Skipped = len(batch) - i
			break
		}
		log.Info().
			Str("videoId", job.VideoID).
			Int("index", i+1).
			Int("total", len(batch)).
			Msg("Processing video")

		res, err := e.Process(ctx, job)
		s.Results = append(s.Results, res)
		switch {
		case err == nil:
			s.Processed++
		case res.Status == store.StatusCancelled:
			s.Cancelled++
		default:
			s.Failed++
		}
	}

	log.Info().
		Int("processed", s.Processed).
		Int("failed", s.Failed).
		Int("cancelled", s.Cancelled).
		Int("skipped", s.Skipped).
		Msg("Batch complete")
	return s
}
