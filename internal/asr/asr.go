// Package asr defines the speech-recognition collaborator and the
// whisper.cpp implementation of it.
package asr

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/fpang/videointel/internal/domain"
)

// Transcriber turns an audio file into a word-timed transcript.
type Transcriber interface {
	// Transcribe recognizes audioPath. languageHint may be empty for
	// auto-detection.
	Transcribe(ctx context.Context, audioPath, languageHint string) (domain.Transcript, error)
	// Model identifies the recognizer for processing.models.
	Model() string
}

// ErrEmptyAudio is wrapped when there is no audio to recognize.
var ErrEmptyAudio = errors.New("empty audio")

// TranscriptionError is a failed recognition. It is fatal for the video
// unless the job allows running without a transcript.
type TranscriptionError struct {
	Model string
	Err   error
}

func (e *TranscriptionError) Error() string {
	return fmt.Sprintf("transcription failed (%s): %v", e.Model, e.Err)
}

func (e *TranscriptionError) Unwrap() error { return e.Err }

// Normalize cleans recognizer output into the shape the record expects:
// words are trimmed, empty tokens dropped, times rounded to two decimals
// and clamped so that start <= end and starts never go backwards. The
// full text is rebuilt from the words when the recognizer gave none.
func Normalize(tr domain.Transcript) (domain.Transcript, error) {
	out := domain.Transcript{
		Text:     strings.Join(strings.Fields(tr.Text), " "),
		Language: strings.TrimSpace(tr.Language),
		Words:    make([]domain.Word, 0, len(tr.Words)),
	}

	prevStart := 0.0
	for i, w := range tr.Words {
		text := strings.TrimSpace(w.Text)
		if text == "" {
			continue
		}
		if math.IsNaN(w.StartS) || math.IsNaN(w.EndS) || math.IsInf(w.StartS, 0) || math.IsInf(w.EndS, 0) {
			return domain.Transcript{}, fmt.Errorf("word %d (%q) has a non-finite timestamp", i, text)
		}
		start := max(domain.Round2(w.StartS), prevStart, 0)
		end := max(domain.Round2(w.EndS), start)
		out.Words = append(out.Words, domain.Word{Text: text, StartS: start, EndS: end})
		prevStart = start
	}

	if out.Text == "" && len(out.Words) > 0 {
		parts := make([]string, len(out.Words))
		for i, w := range out.Words {
			parts[i] = w.Text
		}
		out.Text = strings.Join(parts, " ")
	}
	return out, nil
}
