// Package pipeline assembles a fusion.Engine from a resolved Config. The
// CLI, the local server, and the Lambdas differ only in the writer, ledger,
// and notifier they pass in.
package pipeline

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/rs/zerolog/log"
	"google.golang.org/genai"

	"github.com/fpang/videointel/internal/asr"
	"github.com/fpang/videointel/internal/chat"
	"github.com/fpang/videointel/internal/config"
	"github.com/fpang/videointel/internal/domain"
	"github.com/fpang/videointel/internal/enrich"
	"github.com/fpang/videointel/internal/filehandler"
	"github.com/fpang/videointel/internal/fusion"
	"github.com/fpang/videointel/internal/notify"
	"github.com/fpang/videointel/internal/ocr"
	"github.com/fpang/videointel/internal/output"
	"github.com/fpang/videointel/internal/shots"
	"github.com/fpang/videointel/internal/store"
)

// Deps are the surface-specific collaborators.
type Deps struct {
	Writer   output.Writer
	Ledger   store.JobStore
	Notifier notify.Publisher
	// Gemini is required when cfg.NeedsGemini reports true.
	Gemini *genai.Client
}

// Build returns an engine for cfg. cfg must already be resolved and
// validated.
func Build(cfg *config.Config, deps Deps) (*fusion.Engine, error) {
	if deps.Writer == nil {
		return nil, fmt.Errorf("pipeline needs a record writer")
	}
	if cfg.NeedsGemini() && deps.Gemini == nil {
		return nil, fmt.Errorf("configuration uses Gemini but no client was provided")
	}

	policy, err := shots.ParseKeyframePolicy(cfg.KeyframePolicy)
	if err != nil {
		return nil, err
	}

	transcriber, err := NewTranscriber(cfg, deps.Gemini)
	if err != nil {
		return nil, err
	}

	enrichers, err := NewEnrichers(cfg, deps.Gemini)
	if err != nil {
		return nil, err
	}
	orch, err := enrich.NewOrchestrator(enrichers, enrich.Config{
		Concurrency: cfg.Concurrency,
		CallTimeout: cfg.CallTimeout,
		MaxRetries:  cfg.MaxRetries,
	})
	if err != nil {
		return nil, err
	}

	log.Debug().
		Str("asr", transcriber.Model()).
		Interface("models", orch.Models()).
		Msg("Pipeline assembled")

	return &fusion.Engine{
		Extractor: &filehandler.Extractor{},
		Segmenter: &shots.Segmenter{
			Options: shots.Options{
				Threshold: cfg.SceneThreshold,
				Policy:    policy,
				MinShotS:  cfg.MinShotS,
			},
			Save: filehandler.SaveKeyframe,
		},
		Transcriber: transcriber,
		Enricher:    orch,
		Writer:      deps.Writer,
		Ledger:      deps.Ledger,
		Notifier:    deps.Notifier,
	}, nil
}

// NewTranscriber returns the configured speech recognizer.
func NewTranscriber(cfg *config.Config, client *genai.Client) (asr.Transcriber, error) {
	switch cfg.ASR {
	case config.BackendWhisper:
		return asr.NewWhisper(cfg.WhisperBin, cfg.WhisperModel), nil
	case config.BackendGemini:
		if client == nil {
			return nil, fmt.Errorf("gemini transcription needs a client")
		}
		return chat.NewTranscriber(client.Models, client.Files, GeminiModel(cfg)), nil
	}
	return nil, fmt.Errorf("unknown asr backend %q", cfg.ASR)
}

// NewEnrichers returns one enricher per enabled modality, in canonical
// order.
func NewEnrichers(cfg *config.Config, client *genai.Client) ([]enrich.Enricher, error) {
	mods, err := cfg.EnabledModalities()
	if err != nil {
		return nil, err
	}
	var out []enrich.Enricher
	for _, mod := range mods {
		if mod == domain.ModalityOCR && cfg.OCR == config.BackendTesseract {
			out = append(out, ocr.NewTesseract(cfg.Concurrency))
			continue
		}
		if client == nil {
			return nil, fmt.Errorf("%s enricher needs a Gemini client", mod)
		}
		model := GeminiModel(cfg)
		switch mod {
		case domain.ModalityCaption:
			out = append(out, chat.NewCaptioner(client.Models, model))
		case domain.ModalityObjects:
			out = append(out, chat.NewObjectDetector(client.Models, model))
		case domain.ModalityOCR:
			out = append(out, chat.NewOCR(client.Models, model))
		}
	}
	return out, nil
}

// JobConfig maps cfg to the per-video settings. Keyframe paths in the
// record are made relative to recordRoot; pass "" to keep them as stored.
func JobConfig(cfg *config.Config, recordRoot string) fusion.JobConfig {
	return fusion.JobConfig{
		LanguageHint:      cfg.Language,
		NumCaptions:       cfg.NumCaptions,
		FramesDir:         cfg.FramesDir,
		WorkDir:           cfg.WorkDir,
		RecordRoot:        recordRoot,
		KeepFrames:        cfg.KeepFrames,
		KeepAudio:         cfg.KeepAudio,
		AllowNoTranscript: cfg.AllowNoTranscript,
	}
}

// OpenGemini creates a client when cfg needs one and returns nil
// otherwise. apiKey is resolved lazily so runs without Gemini never ask
// for one.
func OpenGemini(ctx context.Context, cfg *config.Config, apiKey func() (string, error)) (*genai.Client, error) {
	if !cfg.NeedsGemini() {
		return nil, nil
	}
	key, err := apiKey()
	if err != nil {
		return nil, err
	}
	return chat.NewClient(ctx, key)
}

// LocalWriter returns the writer for cfg.OutputDir.
func LocalWriter(cfg *config.Config) *output.LocalWriter {
	return &output.LocalWriter{Dir: filepath.Clean(cfg.OutputDir), Compress: cfg.Compress}
}

// GeminiModel returns the configured model or the process default.
func GeminiModel(cfg *config.Config) string {
	if cfg.GeminiModel != "" {
		return cfg.GeminiModel
	}
	return chat.GetModelName()
}
