package chat

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog/log"
	"google.golang.org/genai"

	"github.com/fpang/videointel/internal/asr"
	"github.com/fpang/videointel/internal/assets"
	"github.com/fpang/videointel/internal/domain"
	"github.com/fpang/videointel/internal/metrics"
)

const (
	audioMIMEType = "audio/wav"

	// DefaultMaxInlineAudioBytes keeps requests under the API's inline
	// payload limit; larger files go through the Files API.
	DefaultMaxInlineAudioBytes int64 = 15 * 1024 * 1024

	uploadPollingInterval = 2 * time.Second
	uploadTimeout         = 5 * time.Minute

	// wavHeaderSize is the canonical PCM WAV header.
	wavHeaderSize = 44
)

// Transcriber recognizes speech with a multimodal Gemini model.
type Transcriber struct {
	gen   Generator
	files FileStore
	model string

	MaxInlineBytes int64
}

var _ asr.Transcriber = (*Transcriber)(nil)

// NewTranscriber returns a Gemini transcriber. files may be nil, in which
// case audio larger than MaxInlineBytes is rejected.
func NewTranscriber(gen Generator, files FileStore, model string) *Transcriber {
	return &Transcriber{gen: gen, files: files, model: model, MaxInlineBytes: DefaultMaxInlineAudioBytes}
}

func (t *Transcriber) Model() string { return t.model }

type transcriptReply struct {
	Language string        `json:"language"`
	Text     string        `json:"text"`
	Words    []domain.Word `json:"words"`
}

func (t *Transcriber) Transcribe(ctx context.Context, audioPath, languageHint string) (domain.Transcript, error) {
	tr, err := t.transcribe(ctx, audioPath, languageHint)
	if err != nil {
		if ctx.Err() != nil {
			return domain.Transcript{}, ctx.Err()
		}
		return domain.Transcript{}, &asr.TranscriptionError{Model: t.model, Err: err}
	}
	return tr, nil
}

func (t *Transcriber) transcribe(ctx context.Context, audioPath, languageHint string) (domain.Transcript, error) {
	info, err := os.Stat(audioPath)
	if err != nil {
		return domain.Transcript{}, fmt.Errorf("audio: %w", err)
	}
	if info.Size() <= wavHeaderSize {
		return domain.Transcript{}, fmt.Errorf("%w: %s", asr.ErrEmptyAudio, audioPath)
	}

	audio, cleanup, err := t.audioPart(ctx, audioPath, info.Size())
	if err != nil {
		return domain.Transcript{}, err
	}
	defer cleanup()

	start := time.Now()
	text, err := generate(ctx, t.gen, request{
		operation: "transcribe",
		model:     t.model,
		system:    assets.TranscribeSystemPrompt,
		parts: []*genai.Part{
			audio,
			{Text: assets.RenderTranscribeRequest(assets.RequestData{Language: languageHint})},
		},
		jsonOut: true,
	})
	if err != nil {
		return domain.Transcript{}, err
	}

	reply, err := parseJSON[transcriptReply](text)
	if err != nil {
		return domain.Transcript{}, fmt.Errorf("transcript reply: %w", err)
	}
	tr, err := asr.Normalize(domain.Transcript{Text: reply.Text, Language: reply.Language, Words: reply.Words})
	if err != nil {
		return domain.Transcript{}, err
	}
	if tr.Language == "" && languageHint != "" {
		tr.Language = languageHint
	}

	log.Info().
		Str("model", t.model).
		Str("language", tr.Language).
		Int("words", len(tr.Words)).
		Dur("duration", time.Since(start)).
		Msg("Transcription complete")
	return tr, nil
}

// audioPart returns the audio as an inline blob, or uploads it through the
// Files API when it is too large. cleanup deletes any uploaded file.
func (t *Transcriber) audioPart(ctx context.Context, path string, size int64) (*genai.Part, func(), error) {
	if size <= t.MaxInlineBytes {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, nil, fmt.Errorf("read audio: %w", err)
		}
		return &genai.Part{InlineData: &genai.Blob{MIMEType: audioMIMEType, Data: data}}, func() {}, nil
	}
	if t.files == nil {
		return nil, nil, fmt.Errorf("audio is %d bytes, above the %d byte inline limit", size, t.MaxInlineBytes)
	}

	file, err := t.uploadAudio(ctx, path, size)
	if err != nil {
		return nil, nil, err
	}
	cleanup := func() {
		// The job context may already be cancelled.
		delCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if _, err := t.files.Delete(delCtx, file.Name, nil); err != nil {
			log.Warn().Err(err).Str("file", file.Name).Msg("Failed to delete uploaded Gemini file")
		}
	}
	return &genai.Part{FileData: &genai.FileData{MIMEType: file.MIMEType, FileURI: file.URI}}, cleanup, nil
}

// uploadAudio uploads a file and waits until the API has processed it.
func (t *Transcriber) uploadAudio(ctx context.Context, path string, size int64) (*genai.File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open audio: %w", err)
	}
	defer f.Close()

	uploadStart := time.Now()
	file, err := t.files.Upload(ctx, f, &genai.UploadFileConfig{MIMEType: audioMIMEType})
	if err != nil {
		return nil, fmt.Errorf("failed to upload audio: %w", err)
	}

	deadline := time.Now().Add(uploadTimeout)
	for file.State == genai.FileStateProcessing {
		if time.Now().After(deadline) {
			return nil, fmt.Errorf("timeout waiting for audio processing after %v", uploadTimeout)
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(uploadPollingInterval):
		}
		file, err = t.files.Get(ctx, file.Name, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to get file state: %w", err)
		}
	}
	if file.State == genai.FileStateFailed {
		return nil, fmt.Errorf("audio processing failed")
	}

	elapsed := time.Since(uploadStart)
	log.Info().
		Str("name", file.Name).
		Int64("size_bytes", size).
		Dur("total_time", elapsed).
		Msg("Audio ready for transcription")
	metrics.New(metrics.Namespace).
		Dimension("Operation", "filesApiUpload").
		Millis("GeminiFilesApiUploadMs", elapsed).
		Metric("GeminiFilesApiUploadBytes", float64(size), metrics.UnitBytes).
		Flush()
	return file, nil
}
