package asr

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/fpang/videointel/internal/domain"
)

// wavHeaderSize is the canonical PCM WAV header; a file no larger than this
// carries no samples.
const wavHeaderSize = 44

// Whisper runs a local whisper.cpp binary. Each output segment is limited
// to one word (-ml 1 -sow), which yields word-level timestamps without a
// separate alignment pass.
type Whisper struct {
	Bin       string
	ModelPath string
	Threads   int
}

var _ Transcriber = (*Whisper)(nil)

// NewWhisper returns a whisper.cpp transcriber.
func NewWhisper(bin, modelPath string) *Whisper {
	return &Whisper{Bin: bin, ModelPath: modelPath}
}

// Model returns "whisper.cpp:<model file stem>".
func (w *Whisper) Model() string {
	base := filepath.Base(w.ModelPath)
	return "whisper.cpp:" + strings.TrimSuffix(base, filepath.Ext(base))
}

// Check verifies the binary and model are present.
func (w *Whisper) Check() error {
	if _, err := exec.LookPath(w.Bin); err != nil {
		return fmt.Errorf("whisper.cpp binary %q not found: %w", w.Bin, err)
	}
	if _, err := os.Stat(w.ModelPath); err != nil {
		return fmt.Errorf("whisper model: %w", err)
	}
	return nil
}

func (w *Whisper) Transcribe(ctx context.Context, audioPath, languageHint string) (domain.Transcript, error) {
	tr, err := w.transcribe(ctx, audioPath, languageHint)
	if err != nil {
		if ctx.Err() != nil {
			return domain.Transcript{}, ctx.Err()
		}
		return domain.Transcript{}, &TranscriptionError{Model: w.Model(), Err: err}
	}
	return tr, nil
}

func (w *Whisper) transcribe(ctx context.Context, audioPath, languageHint string) (domain.Transcript, error) {
	info, err := os.Stat(audioPath)
	if err != nil {
		return domain.Transcript{}, fmt.Errorf("audio: %w", err)
	}
	if info.Size() <= wavHeaderSize {
		return domain.Transcript{}, fmt.Errorf("%w: %s", ErrEmptyAudio, audioPath)
	}

	outDir, err := os.MkdirTemp("", "videointel-whisper-*")
	if err != nil {
		return domain.Transcript{}, fmt.Errorf("create output dir: %w", err)
	}
	defer os.RemoveAll(outDir)
	outPrefix := filepath.Join(outDir, "whisper")

	lang := languageHint
	if lang == "" {
		lang = "auto"
	}
	args := []string{
		"-m", w.ModelPath,
		"-f", audioPath,
		"-l", lang,
		"-ml", "1",
		"-sow",
		"-oj",
		"-of", outPrefix,
		"-np",
	}
	if w.Threads > 0 {
		args = append(args, "-t", fmt.Sprint(w.Threads))
	}

	start := time.Now()
	log.Debug().Str("bin", w.Bin).Strs("args", args).Msg("Running whisper.cpp")
	cmd := exec.CommandContext(ctx, w.Bin, args...)
	if out, err := cmd.CombinedOutput(); err != nil {
		return domain.Transcript{}, fmt.Errorf("whisper.cpp failed: %w\n%s", err, tail(string(out), 2000))
	}

	data, err := os.ReadFile(outPrefix + ".json")
	if err != nil {
		return domain.Transcript{}, fmt.Errorf("read whisper output: %w", err)
	}
	tr, err := parseWhisperJSON(data)
	if err != nil {
		return domain.Transcript{}, err
	}
	if tr.Language == "" && languageHint != "" {
		tr.Language = languageHint
	}

	log.Info().
		Str("model", w.Model()).
		Str("language", tr.Language).
		Int("words", len(tr.Words)).
		Dur("duration", time.Since(start)).
		Msg("Transcription complete")
	return tr, nil
}

type whisperOutput struct {
	Params struct {
		Language string `json:"language"`
	} `json:"params"`
	Result struct {
		Language string `json:"language"`
	} `json:"result"`
	Transcription []whisperSegment `json:"transcription"`
}

type whisperSegment struct {
	Offsets struct {
		From int64 `json:"from"`
		To   int64 `json:"to"`
	} `json:"offsets"`
	Text string `json:"text"`
}

// parseWhisperJSON reads whisper.cpp's -oj output. Offsets are milliseconds.
func parseWhisperJSON(data []byte) (domain.Transcript, error) {
	var out whisperOutput
	if err := json.Unmarshal(data, &out); err != nil {
		return domain.Transcript{}, fmt.Errorf("parse whisper output: %w", err)
	}

	words := make([]domain.Word, 0, len(out.Transcription))
	for _, seg := range out.Transcription {
		words = append(words, domain.Word{
			Text:   seg.Text,
			StartS: float64(seg.Offsets.From) / 1000,
			EndS:   float64(seg.Offsets.To) / 1000,
		})
	}

	lang := out.Result.Language
	if lang == "" && out.Params.Language != "auto" {
		lang = out.Params.Language
	}
	return Normalize(domain.Transcript{Language: lang, Words: words})
}

func tail(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return "..." + s[len(s)-n:]
}
