// Package enrich runs per-shot model collaborators (captioning, OCR,
// object detection) against shot keyframes.
//
// Each collaborator is an Enricher: a strategy with a uniform
// (keyframe, options) -> result|failure contract. The Orchestrator fans
// calls out over a bounded pool, applies per-call timeouts and bounded
// retries, and turns every failure into a typed EnrichmentError so one
// modality or shot never blocks another. Adding a modality means adding an
// Enricher; the orchestrator does not change.
package enrich

import (
	"context"
	"fmt"
	"os"

	"github.com/fpang/videointel/internal/domain"
)

// Keyframe is the read-only image a shot is enriched from.
type Keyframe struct {
	ShotID string
	Path   string
}

// Load reads the keyframe image. Failures are decode errors.
func (k Keyframe) Load() ([]byte, error) {
	if k.Path == "" {
		return nil, DecodeError(fmt.Errorf("shot %s has no keyframe", k.ShotID))
	}
	data, err := os.ReadFile(k.Path)
	if err != nil {
		return nil, DecodeError(fmt.Errorf("read keyframe: %w", err))
	}
	if len(data) == 0 {
		return nil, DecodeError(fmt.Errorf("keyframe %s is empty", k.Path))
	}
	return data, nil
}

// Options are passed unchanged to every Enricher call for a job.
type Options struct {
	// NumCaptions is how many alternative captions to request.
	NumCaptions int
	// Language is the transcript language, used as an OCR hint.
	Language string
}

// Result is a modality-specific payload; an Enricher fills only the field
// matching its Modality.
type Result struct {
	Captions []domain.Caption
	Text     string
	Objects  []domain.DetectedObject
}

// Enricher is one model-backed modality.
type Enricher interface {
	Modality() domain.Modality
	// Model identifies the backing model for processing.models.
	Model() string
	Infer(ctx context.Context, kf Keyframe, opts Options) (Result, error)
}

// Func adapts a function to the Enricher interface.
type Func struct {
	Mod   domain.Modality
	Name  string
	Infer func(ctx context.Context, kf Keyframe, opts Options) (Result, error)
}

type funcEnricher struct{ f Func }

// NewFunc wraps f as an Enricher.
func NewFunc(f Func) Enricher { return funcEnricher{f} }

func (e funcEnricher) Modality() domain.Modality { return e.f.Mod }
func (e funcEnricher) Model() string             { return e.f.Name }
func (e funcEnricher) Infer(ctx context.Context, kf Keyframe, opts Options) (Result, error) {
	return e.f.Infer(ctx, kf, opts)
}
