// Package domain holds the value types shared by every stage of the video
// pipeline: words, transcripts, shots, enrichment payloads, and the frame
// source abstraction the segmenter reads from.
//
// Types here are plain data. They carry no behaviour beyond small helpers and
// are safe to share read-only between goroutines.
package domain

import (
	"context"
	"fmt"
	"image"
	"math"
)

// Word is one recognized word with its time span in seconds.
type Word struct {
	Text   string  `json:"word"`
	StartS float64 `json:"start_s"`
	EndS   float64 `json:"end_s"`
}

// Transcript is the full speech-recognition result for one video.
type Transcript struct {
	Text     string
	Language string
	Words    []Word
}

// UnknownLanguage is reported when neither the caller nor the recognizer
// supplies a language.
const UnknownLanguage = "unknown"

// Shot is a half-open interval [StartS, EndS) of visually homogeneous video.
type Shot struct {
	ID     string
	StartS float64
	EndS   float64

	// KeyframeIndex is the sampled-frame index chosen to represent the shot,
	// or -1 when no frame could be decoded.
	KeyframeIndex int

	// Keyframe is the path of the stored keyframe image. Empty for a
	// fallback shot.
	Keyframe string
}

// ShotID returns the stable identifier for the shot at ordinal position i
// (zero-based): s001, s002, ...
func ShotID(i int) string {
	return fmt.Sprintf("s%03d", i+1)
}

// Duration returns EndS - StartS.
func (s Shot) Duration() float64 {
	return s.EndS - s.StartS
}

// Contains reports whether t falls inside the half-open interval.
func (s Shot) Contains(t float64) bool {
	return t >= s.StartS && t < s.EndS
}

// Caption is one generated description of a keyframe.
type Caption struct {
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
}

// DetectedObject is one labelled detection on a keyframe.
type DetectedObject struct {
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
}

// Modality names one per-shot enrichment capability.
type Modality string

const (
	ModalityCaption Modality = "caption"
	ModalityOCR     Modality = "ocr"
	ModalityObjects Modality = "object_detector"
)

// ModelKeyASR is the processing.models key for the speech recognizer.
const ModelKeyASR = "asr"

// ModelNone marks a disabled collaborator in processing.models.
const ModelNone = "none"

// AllModalities lists every modality in canonical order.
var AllModalities = []Modality{ModalityCaption, ModalityOCR, ModalityObjects}

// ParseModality maps a configuration string to a Modality. Both the long
// record key ("object_detector") and the short form ("objects") are accepted.
func ParseModality(s string) (Modality, error) {
	switch s {
	case "caption", "captions":
		return ModalityCaption, nil
	case "ocr":
		return ModalityOCR, nil
	case "object_detector", "objects":
		return ModalityObjects, nil
	}
	return "", fmt.Errorf("unknown modality %q", s)
}

// Frame is one decoded video frame.
type Frame struct {
	// Index is the position of the frame in the sampled sequence.
	Index int
	// TimeS is the presentation time of the frame in seconds.
	TimeS float64
	Image image.Image
}

// FrameIterator walks frames in presentation order, in the style of
// sql.Rows: call Next until it returns false, then check Err.
type FrameIterator interface {
	Next() bool
	Frame() Frame
	Err() error
	Close() error
}

// FrameSource can be opened more than once; each call starts a fresh pass
// over the same sampled frames.
type FrameSource interface {
	Frames(ctx context.Context) (FrameIterator, error)
}

// Round2 rounds to two decimal places, the precision used for every time
// value in the output record.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}
