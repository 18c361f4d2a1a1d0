package filehandler

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/fpang/videointel/internal/domain"
)

// Media is an opened video ready for the pipeline.
type Media struct {
	Path      string
	Info      VideoInfo
	DurationS float64
	// AudioPath is the extracted WAV, or empty when the video has no audio.
	AudioPath string
	Frames    domain.FrameSource
}

// Extractor probes a video, extracts its audio, and exposes its frames.
type Extractor struct {
	// SampleFPS overrides the duration-based frame sampling rate when > 0.
	SampleFPS float64
}

// Extract opens path. The audio track is written to audioPath. Any failure
// to read the container is wrapped in ErrUnreadableMedia.
func (e *Extractor) Extract(ctx context.Context, path, audioPath string) (*Media, error) {
	start := time.Now()

	info, err := Probe(ctx, path)
	if err != nil {
		return nil, err
	}

	sample := e.SampleFPS
	if sample <= 0 {
		sample = DetermineSampleFPS(info.FrameRate, info.DurationS)
	}

	m := &Media{
		Path:      path,
		Info:      *info,
		DurationS: info.DurationS,
		Frames:    &VideoFrames{Path: path, SampleFPS: sample},
	}

	if info.HasAudio && audioPath != "" {
		if err := ExtractAudio(ctx, path, audioPath); err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil, err
			}
			return nil, fmt.Errorf("%w: %v", ErrUnreadableMedia, err)
		}
		m.AudioPath = audioPath
	}

	log.Info().
		Str("video", filepath.Base(path)).
		Float64("duration_s", m.DurationS).
		Float64("sample_fps", sample).
		Bool("has_audio", m.AudioPath != "").
		Dur("elapsed", time.Since(start)).
		Msg("Media extracted")
	return m, nil
}
