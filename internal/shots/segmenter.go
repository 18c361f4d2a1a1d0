package shots

import (
	"context"
	"errors"
	"fmt"
	"image"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/fpang/videointel/internal/domain"
)

// ErrNoShots is returned when not even a fallback shot can be built.
var ErrNoShots = errors.New("no valid shots")

// KeyframeSaver stores one keyframe image at path.
type KeyframeSaver func(img image.Image, path string) error

// Result is the outcome of segmenting one video.
type Result struct {
	Shots []domain.Shot
	// Fallback is true when frames could not be decoded and Shots holds the
	// single whole-video shot.
	Fallback bool
	Frames   int
}

// Segmenter reads a frame source twice: once to score frame differences,
// once to store the keyframe of each shot.
type Segmenter struct {
	Options Options
	Save    KeyframeSaver
}

// KeyframePath returns where the keyframe of shotID for videoID is stored.
func KeyframePath(dir, videoID, shotID string) string {
	return filepath.Join(dir, fmt.Sprintf("%s_%s.jpg", videoID, shotID))
}

// Run segments the video behind src. A decode failure is not fatal: it
// yields the fallback shot. Only cancellation or a duration that admits no
// shot returns an error.
func (s *Segmenter) Run(ctx context.Context, src domain.FrameSource, videoID string, durationS float64, keyframeDir string) (*Result, error) {
	start := time.Now()

	sig, err := ComputeSignal(ctx, src)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		log.Warn().Err(err).Str("videoId", videoID).Msg("Frame decoding failed, using whole-video fallback shot")
		return fallbackResult(durationS)
	}
	if sig.Len() == 0 {
		log.Warn().Str("videoId", videoID).Msg("No frames decoded, using whole-video fallback shot")
		return fallbackResult(durationS)
	}

	shots := Segment(sig, durationS, s.Options)
	if len(shots) == 0 {
		return nil, ErrNoShots
	}

	if s.Save != nil && keyframeDir != "" {
		if err := s.storeKeyframes(ctx, src, videoID, shots, keyframeDir); err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			log.Warn().Err(err).Str("videoId", videoID).Msg("Keyframe pass failed, affected shots have no keyframe")
		}
	}

	log.Info().
		Str("videoId", videoID).
		Int("frames", sig.Len()).
		Int("shots", len(shots)).
		Float64("threshold", s.Options.Threshold).
		Str("policy", string(s.Options.Policy)).
		Dur("duration", time.Since(start)).
		Msg("Shot segmentation complete")

	return &Result{Shots: shots, Frames: sig.Len()}, nil
}

func fallbackResult(durationS float64) (*Result, error) {
	shots := Fallback(durationS)
	if len(shots) == 0 {
		return nil, ErrNoShots
	}
	return &Result{Shots: shots, Fallback: true}, nil
}

// ComputeSignal scores every frame against its predecessor.
func ComputeSignal(ctx context.Context, src domain.FrameSource) (Signal, error) {
	it, err := src.Frames(ctx)
	if err != nil {
		return Signal{}, fmt.Errorf("open frames: %w", err)
	}
	defer it.Close()

	var sig Signal
	var prev *ColorHistogram
	for it.Next() {
		if err := ctx.Err(); err != nil {
			return Signal{}, err
		}
		f := it.Frame()
		hist := ComputeHistogram(f.Image)
		score := 0.0
		if prev != nil {
			score = Difference(prev, hist)
		}
		sig.Times = append(sig.Times, f.TimeS)
		sig.Scores = append(sig.Scores, score)
		prev = hist
	}
	if err := it.Err(); err != nil {
		return Signal{}, fmt.Errorf("decode frames: %w", err)
	}
	return sig, nil
}

// storeKeyframes saves the chosen frame of each shot and fills in
// Shot.Keyframe. A shot whose frame fails to save keeps an empty Keyframe.
func (s *Segmenter) storeKeyframes(ctx context.Context, src domain.FrameSource, videoID string, shots []domain.Shot, dir string) error {
	wanted := make(map[int][]int, len(shots))
	for i, sh := range shots {
		if sh.KeyframeIndex >= 0 {
			wanted[sh.KeyframeIndex] = append(wanted[sh.KeyframeIndex], i)
		}
	}
	if len(wanted) == 0 {
		return nil
	}

	it, err := src.Frames(ctx)
	if err != nil {
		return fmt.Errorf("reopen frames: %w", err)
	}
	defer it.Close()

	remaining := len(wanted)
	for remaining > 0 && it.Next() {
		if err := ctx.Err(); err != nil {
			return err
		}
		f := it.Frame()
		idxs, ok := wanted[f.Index]
		if !ok {
			continue
		}
		remaining--
		for _, i := range idxs {
			path := KeyframePath(dir, videoID, shots[i].ID)
			if err := s.Save(f.Image, path); err != nil {
				log.Warn().Err(err).Str("videoId", videoID).Str("shotId", shots[i].ID).Msg("Failed to store keyframe")
				continue
			}
			shots[i].Keyframe = path
		}
	}
	return it.Err()
}
