package enrich

import (
	"context"
	"errors"
	"fmt"

	"github.com/fpang/videointel/internal/domain"
)

// Reason classifies an enrichment failure in the output record.
type Reason string

const (
	ReasonTimeout     Reason = "timeout"
	ReasonModelError  Reason = "model-error"
	ReasonDecodeError Reason = "decode-error"
)

// EnrichmentError is the typed failure of one modality on one shot.
type EnrichmentError struct {
	Modality domain.Modality
	Reason   Reason
	// Transient failures are retried before becoming permanent.
	Transient bool
	Err       error
}

func (e *EnrichmentError) Error() string {
	if e.Modality == "" {
		return fmt.Sprintf("%s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Modality, e.Reason, e.Err)
}

func (e *EnrichmentError) Unwrap() error { return e.Err }

// ModelError reports a failure inside the model call.
func ModelError(err error, transient bool) *EnrichmentError {
	return &EnrichmentError{Reason: ReasonModelError, Transient: transient, Err: err}
}

// DecodeError reports an unreadable keyframe or an unparseable model reply.
func DecodeError(err error) *EnrichmentError {
	return &EnrichmentError{Reason: ReasonDecodeError, Err: err}
}

// classify turns any error from an Enricher into an EnrichmentError.
func classify(mod domain.Modality, err error) *EnrichmentError {
	var ee *EnrichmentError
	if errors.As(err, &ee) {
		out := *ee
		if out.Modality == "" {
			out.Modality = mod
		}
		return &out
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &EnrichmentError{Modality: mod, Reason: ReasonTimeout, Transient: true, Err: err}
	}
	return &EnrichmentError{Modality: mod, Reason: ReasonModelError, Err: err}
}
