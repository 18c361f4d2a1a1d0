// Package ocr reads on-screen text from keyframes with a local Tesseract
// install through gosseract.
package ocr

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/otiai10/gosseract/v2"
	"github.com/rs/zerolog/log"

	"github.com/fpang/videointel/internal/domain"
	"github.com/fpang/videointel/internal/enrich"
)

// DefaultLanguages is used when the transcript language has no mapping.
var DefaultLanguages = []string{"eng"}

// transcriptLanguages maps an ISO 639-1 transcript language to the
// Tesseract models to load alongside English.
var transcriptLanguages = map[string][]string{
	"no": {"eng", "nor"},
	"nb": {"eng", "nor"},
	"nn": {"eng", "nor"},
	"sv": {"eng", "swe"},
	"da": {"eng", "dan"},
	"de": {"eng", "deu"},
	"fr": {"eng", "fra"},
	"es": {"eng", "spa"},
}

// Languages returns the Tesseract language models for a transcript language.
func Languages(transcriptLang string) []string {
	if langs, ok := transcriptLanguages[strings.ToLower(transcriptLang)]; ok {
		return langs
	}
	return DefaultLanguages
}

// Tesseract is an OCR enricher. A gosseract client is not safe for
// concurrent use, so each call creates its own; Slots bounds how many run
// at once.
type Tesseract struct {
	// Fixed overrides language selection when non-empty.
	Fixed []string
	slots chan struct{}

	versionOnce sync.Once
	version     string
}

var _ enrich.Enricher = (*Tesseract)(nil)

// NewTesseract returns an enricher running at most slots concurrent OCR
// passes.
func NewTesseract(slots int) *Tesseract {
	return &Tesseract{slots: make(chan struct{}, max(slots, 1))}
}

func (t *Tesseract) Modality() domain.Modality { return domain.ModalityOCR }

// Model returns "tesseract-<version>".
func (t *Tesseract) Model() string {
	t.versionOnce.Do(func() {
		t.version = gosseract.Version()
	})
	if t.version == "" {
		return "tesseract"
	}
	return "tesseract-" + t.version
}

func (t *Tesseract) Infer(ctx context.Context, kf enrich.Keyframe, opts enrich.Options) (enrich.Result, error) {
	data, err := kf.Load()
	if err != nil {
		return enrich.Result{}, err
	}

	select {
	case t.slots <- struct{}{}:
	case <-ctx.Done():
		return enrich.Result{}, ctx.Err()
	}
	defer func() { <-t.slots }()

	langs := t.Fixed
	if len(langs) == 0 {
		langs = Languages(opts.Language)
	}

	client := gosseract.NewClient()
	defer client.Close()

	if err := client.SetLanguage(langs...); err != nil {
		return enrich.Result{}, enrich.ModelError(fmt.Errorf("set languages %v: %w", langs, err), false)
	}
	if err := client.SetImageFromBytes(data); err != nil {
		return enrich.Result{}, enrich.DecodeError(fmt.Errorf("load keyframe into tesseract: %w", err))
	}
	text, err := client.Text()
	if err != nil {
		return enrich.Result{}, enrich.ModelError(fmt.Errorf("tesseract: %w", err), false)
	}

	text = strings.TrimSpace(text)
	log.Debug().
		Str("shotId", kf.ShotID).
		Strs("languages", langs).
		Int("chars", len(text)).
		Msg("OCR complete")
	return enrich.Result{Text: text}, nil
}
