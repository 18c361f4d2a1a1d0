package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/otiai10/gosseract/v2"

	"github.com/fpang/videointel/internal/asr"
	"github.com/fpang/videointel/internal/auth"
	"github.com/fpang/videointel/internal/chat"
	"github.com/fpang/videointel/internal/config"
	"github.com/fpang/videointel/internal/domain"
	"github.com/fpang/videointel/internal/filehandler"
)

// DescribeValidationError maps an API key validation failure to advice.
func DescribeValidationError(err error) string {
	if errors.Is(err, auth.ErrNoAPIKey) {
		return "no API key configured, set GEMINI_API_KEY or store it in ~/.videointel/credentials.gpg"
	}
	var validationErr *auth.ValidationError
	if !errors.As(err, &validationErr) {
		return "unexpected error during API key validation"
	}
	switch validationErr.Type {
	case auth.ErrTypeInvalidKey:
		return "invalid API key, check the key and try again"
	case auth.ErrTypeNetworkError:
		return "network error, check your internet connection"
	case auth.ErrTypeQuotaExceeded:
		return "API quota exceeded, try again later or check your usage limits"
	}
	return "API key validation failed"
}

// Check is the outcome of one environment probe.
type Check struct {
	Name string
	Err  error
	// Skipped is set when the configuration does not use the component.
	Skipped bool
}

// Doctor holds the probes run by the doctor command. The function fields
// default to the real checks and are replaced in tests.
type Doctor struct {
	Tool      func(name string) error
	Whisper   func(bin, model string) error
	Tesseract func() error
	APIKey    func(ctx context.Context, model string) error
}

// NewDoctor returns a Doctor wired to the real environment.
func NewDoctor() *Doctor {
	return &Doctor{
		Tool: filehandler.CheckTool,
		Whisper: func(bin, model string) error {
			return asr.NewWhisper(bin, model).Check()
		},
		Tesseract: checkTesseract,
		APIKey: func(ctx context.Context, model string) error {
			key, err := auth.GetAPIKey()
			if err != nil {
				return err
			}
			return auth.ValidateKey(ctx, key, model)
		},
	}
}

// Run probes every external dependency cfg needs.
func (d *Doctor) Run(ctx context.Context, cfg *config.Config) []Check {
	checks := []Check{
		{Name: "ffprobe", Err: d.Tool("ffprobe")},
		{Name: "ffmpeg", Err: d.Tool("ffmpeg")},
	}

	whisper := Check{Name: "whisper.cpp", Skipped: cfg.ASR != config.BackendWhisper}
	if !whisper.Skipped {
		whisper.Err = d.Whisper(cfg.WhisperBin, cfg.WhisperModel)
	}
	checks = append(checks, whisper)

	tess := Check{Name: "tesseract", Skipped: !ocrEnabled(cfg) || cfg.OCR != config.BackendTesseract}
	if !tess.Skipped {
		tess.Err = d.Tesseract()
	}
	checks = append(checks, tess)

	gemini := Check{Name: "gemini api key", Skipped: !cfg.NeedsGemini()}
	if !gemini.Skipped {
		model := cfg.GeminiModel
		if model == "" {
			model = chat.GetModelName()
		}
		if err := d.APIKey(ctx, model); err != nil {
			gemini.Err = fmt.Errorf("%s: %w", DescribeValidationError(err), err)
		}
	}
	checks = append(checks, gemini)

	checks = append(checks, Check{Name: "output directory", Err: checkWritable(cfg.OutputDir)})
	return checks
}

// PrintChecks writes the checks and reports whether all passed.
func PrintChecks(w io.Writer, checks []Check) bool {
	ok := true
	for _, c := range checks {
		switch {
		case c.Skipped:
			fmt.Fprintf(w, "  -  %-18s not used\n", c.Name)
		case c.Err != nil:
			ok = false
			fmt.Fprintf(w, "  ✗  %-18s %v\n", c.Name, c.Err)
		default:
			fmt.Fprintf(w, "  ✓  %-18s ok\n", c.Name)
		}
	}
	return ok
}

func ocrEnabled(cfg *config.Config) bool {
	mods, err := cfg.EnabledModalities()
	if err != nil {
		return false
	}
	for _, m := range mods {
		if m == domain.ModalityOCR {
			return true
		}
	}
	return false
}

func checkTesseract() error {
	if gosseract.Version() == "" {
		return errors.New("tesseract library not available")
	}
	return nil
}

// checkWritable creates dir if needed and verifies a file can be written.
func checkWritable(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	f, err := os.CreateTemp(dir, ".doctor-*")
	if err != nil {
		return fmt.Errorf("not writable: %w", err)
	}
	name := f.Name()
	f.Close()
	return os.Remove(filepath.Clean(name))
}
