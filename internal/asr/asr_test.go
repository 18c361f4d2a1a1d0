package asr

import (
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/fpang/videointel/internal/domain"
)

func TestParseWhisperJSON(t *testing.T) {
	data := []byte(`{
		"params": {"language": "auto"},
		"result": {"language": "en"},
		"transcription": [
			{"offsets": {"from": 100, "to": 400}, "text": " ok"},
			{"offsets": {"from": 400, "to": 420}, "text": " "},
			{"offsets": {"from": 4200, "to": 4604}, "text": " great"}
		]
	}`)

	got, err := parseWhisperJSON(data)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := domain.Transcript{
		Text:     "ok great",
		Language: "en",
		Words: []domain.Word{
			{Text: "ok", StartS: 0.1, EndS: 0.4},
			{Text: "great", StartS: 4.2, EndS: 4.6},
		},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("transcript mismatch (-want +got):\n%s", diff)
	}
}

func TestParseWhisperJSONLanguageFromParams(t *testing.T) {
	got, err := parseWhisperJSON([]byte(`{"params":{"language":"no"},"transcription":[]}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Language != "no" {
		t.Errorf("expected language no, got %q", got.Language)
	}
	if len(got.Words) != 0 || got.Text != "" {
		t.Errorf("expected empty transcript, got %+v", got)
	}
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		name    string
		in      domain.Transcript
		want    domain.Transcript
		wantErr bool
	}{
		{
			name: "keeps given text",
			in: domain.Transcript{Text: "  Hello,   world. ", Language: " en ", Words: []domain.Word{
				{Text: " Hello,", StartS: 0.004, EndS: 0.5},
				{Text: "world.", StartS: 0.6, EndS: 1.0},
			}},
			want: domain.Transcript{Text: "Hello, world.", Language: "en", Words: []domain.Word{
				{Text: "Hello,", StartS: 0, EndS: 0.5},
				{Text: "world.", StartS: 0.6, EndS: 1.0},
			}},
		},
		{
			name: "clamps inverted and backwards times",
			in: domain.Transcript{Words: []domain.Word{
				{Text: "a", StartS: 1.0, EndS: 0.8},
				{Text: "b", StartS: 0.9, EndS: 1.2},
			}},
			want: domain.Transcript{Text: "a b", Words: []domain.Word{
				{Text: "a", StartS: 1.0, EndS: 1.0},
				{Text: "b", StartS: 1.0, EndS: 1.2},
			}},
		},
		{
			name:    "rejects NaN",
			in:      domain.Transcript{Words: []domain.Word{{Text: "x", StartS: math.NaN(), EndS: 1}}},
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Normalize(tt.in)
			if tt.wantErr {
				if err == nil {
					t.Error("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestWhisperEmptyAudio(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audio.wav")
	if err := os.WriteFile(path, make([]byte, wavHeaderSize), 0o644); err != nil {
		t.Fatal(err)
	}
	w := NewWhisper("whisper-cli", "/models/ggml-base.en.bin")

	_, err := w.Transcribe(context.Background(), path, "")
	var te *TranscriptionError
	if !errors.As(err, &te) {
		t.Fatalf("expected TranscriptionError, got %v", err)
	}
	if !errors.Is(err, ErrEmptyAudio) {
		t.Errorf("expected ErrEmptyAudio, got %v", err)
	}
	if te.Model != "whisper.cpp:ggml-base.en" {
		t.Errorf("unexpected model %q", te.Model)
	}
}
