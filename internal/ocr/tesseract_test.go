package ocr

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/fpang/videointel/internal/enrich"
)

func TestLanguages(t *testing.T) {
	tests := []struct {
		lang string
		want []string
	}{
		{"no", []string{"eng", "nor"}},
		{"NB", []string{"eng", "nor"}},
		{"nn", []string{"eng", "nor"}},
		{"en", []string{"eng"}},
		{"", []string{"eng"}},
		{"unknown", []string{"eng"}},
	}
	for _, tt := range tests {
		t.Run(tt.lang, func(t *testing.T) {
			if diff := cmp.Diff(tt.want, Languages(tt.lang)); diff != "" {
				t.Errorf("Languages(%q) mismatch (-want +got):\n%s", tt.lang, diff)
			}
		})
	}
}

func TestInferMissingKeyframe(t *testing.T) {
	tess := NewTesseract(1)
	_, err := tess.Infer(context.Background(), enrich.Keyframe{ShotID: "s001"}, enrich.Options{})
	var ee *enrich.EnrichmentError
	if !errors.As(err, &ee) || ee.Reason != enrich.ReasonDecodeError {
		t.Errorf("expected decode error, got %v", err)
	}
}
