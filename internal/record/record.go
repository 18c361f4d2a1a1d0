// Package record defines the per-video output document and the pure
// functions that build, validate, and encode it.
package record

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/fpang/videointel/internal/domain"
)

// SchemaVersion is written to processing.version. Bump the minor version
// for additive changes; consumers must ignore unknown fields.
const SchemaVersion = "0.1.0"

// VideoRecord is the JSON document written once per video.
type VideoRecord struct {
	VideoID    string     `json:"video_id"`
	Filename   string     `json:"filename"`
	DurationS  float64    `json:"duration_s"`
	Language   string     `json:"language"`
	Transcript Transcript `json:"transcript"`
	Shots      []Shot     `json:"shots"`
	Processing Processing `json:"processing"`
}

// Transcript is the full recognized speech.
type Transcript struct {
	Text  string        `json:"text"`
	Words []domain.Word `json:"words"`
}

// Shot is one shot with its aligned words and enrichment. A modality that
// was disabled has a nil field and no key in the JSON.
type Shot struct {
	ShotID   string        `json:"shot_id"`
	StartS   float64       `json:"start_s"`
	EndS     float64       `json:"end_s"`
	Keyframe string        `json:"keyframe,omitempty"`
	Words    []domain.Word `json:"words"`

	Captions *Field[[]domain.Caption]        `json:"captions,omitempty"`
	OCRText  *Field[string]                  `json:"ocr_text,omitempty"`
	Objects  *Field[[]domain.DetectedObject] `json:"objects,omitempty"`
}

// Processing describes how the record was produced.
type Processing struct {
	CreatedAt string            `json:"created_at"`
	Models    map[string]string `json:"models"`
	Version   string            `json:"version"`
}

// StatusUnavailable marks a modality that was enabled but failed.
const StatusUnavailable = "unavailable"

// Unavailable is the JSON marker written in place of a failed result.
type Unavailable struct {
	Status string `json:"status"`
	Reason string `json:"reason"`
	Error  string `json:"error,omitempty"`
}

// Field holds either a modality result or an Unavailable marker.
type Field[T any] struct {
	Value       T
	Unavailable *Unavailable
}

// Available wraps a successful result.
func Available[T any](v T) *Field[T] {
	return &Field[T]{Value: v}
}

// Failed builds the marker for a failed modality.
func Failed[T any](reason, detail string) *Field[T] {
	return &Field[T]{Unavailable: &Unavailable{Status: StatusUnavailable, Reason: reason, Error: detail}}
}

// OK reports whether the field holds a real result.
func (f *Field[T]) OK() bool {
	return f != nil && f.Unavailable == nil
}

// MarshalJSON writes the bare value, or the unavailable object.
func (f Field[T]) MarshalJSON() ([]byte, error) {
	if f.Unavailable != nil {
		return json.Marshal(f.Unavailable)
	}
	return json.Marshal(f.Value)
}

// UnmarshalJSON accepts either form.
func (f *Field[T]) UnmarshalJSON(b []byte) error {
	trimmed := bytes.TrimSpace(b)
	if len(trimmed) > 0 && trimmed[0] == '{' {
		var u Unavailable
		if err := json.Unmarshal(trimmed, &u); err == nil && u.Status == StatusUnavailable {
			f.Unavailable = &u
			return nil
		}
	}
	f.Unavailable = nil
	return json.Unmarshal(trimmed, &f.Value)
}

// Encode renders rec as indented JSON with a trailing newline. Field order
// follows the struct definitions and map keys are sorted, so equal records
// encode to identical bytes.
func Encode(rec *VideoRecord) ([]byte, error) {
	b, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode record %s: %w", rec.VideoID, err)
	}
	return append(b, '\n'), nil
}

// Decode parses a record. Unknown fields are ignored.
func Decode(b []byte) (*VideoRecord, error) {
	var rec VideoRecord
	if err := json.Unmarshal(b, &rec); err != nil {
		return nil, fmt.Errorf("decode record: %w", err)
	}
	return &rec, nil
}
