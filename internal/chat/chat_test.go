package chat

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"google.golang.org/genai"

	"github.com/fpang/videointel/internal/asr"
	"github.com/fpang/videointel/internal/domain"
	"github.com/fpang/videointel/internal/enrich"
	"github.com/fpang/videointel/internal/metrics"
)

func init() {
	metrics.SetOutput(nil)
}

// fakeGenerator replies with text or err and records every request.
type fakeGenerator struct {
	mu    sync.Mutex
	text  string
	err   error
	calls []fakeCall
}

type fakeCall struct {
	model    string
	contents []*genai.Content
	config   *genai.GenerateContentConfig
}

func (f *fakeGenerator) GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	f.mu.Lock()
	f.calls = append(f.calls, fakeCall{model: model, contents: contents, config: config})
	f.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if f.err != nil {
		return nil, f.err
	}
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content: &genai.Content{Role: "model", Parts: []*genai.Part{{Text: f.text}}},
		}},
	}, nil
}

func writeKeyframe(t *testing.T) enrich.Keyframe {
	t.Helper()
	path := filepath.Join(t.TempDir(), "clip_s001.jpg")
	if err := os.WriteFile(path, []byte{0xFF, 0xD8, 0xFF, 0xD9}, 0o644); err != nil {
		t.Fatal(err)
	}
	return enrich.Keyframe{ShotID: "s001", Path: path}
}

func TestParseJSON(t *testing.T) {
	type obj struct {
		Text string `json:"text"`
	}
	tests := []struct {
		name    string
		raw     string
		want    string
		wantErr bool
	}{
		{"plain", `{"text":"hi"}`, "hi", false},
		{"fenced", "```json\n{\"text\":\"hi\"}\n```", "hi", false},
		{"prose", `Here you go: {"text":"hi"} hope that helps`, "hi", false},
		{"no json", "sorry, I cannot", "", true},
		{"broken", `{"text":`, "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseJSON[obj](tt.raw)
			if tt.wantErr {
				if err == nil {
					t.Errorf("expected error, got %+v", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got.Text != tt.want {
				t.Errorf("expected %q, got %q", tt.want, got.Text)
			}
		})
	}
}

func TestExtractJSONPrefersFirstDelimiter(t *testing.T) {
	got, err := extractJSON(`[{"a":1},{"a":2}]`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != `[{"a":1},{"a":2}]` {
		t.Errorf("unexpected extraction %q", got)
	}
}

func TestCaptioner(t *testing.T) {
	tests := []struct {
		name  string
		reply string
		num   int
		want  []domain.Caption
	}{
		{
			name:  "model confidences are clamped and rounded",
			reply: `[{"text":" A man walks a dog. ","confidence":0.8765},{"text":"A street","confidence":1.7}]`,
			num:   2,
			want:  []domain.Caption{{Text: "A man walks a dog.", Confidence: 0.88}, {Text: "A street", Confidence: 1}},
		},
		{
			name:  "missing confidence falls back to rank",
			reply: "```json\n[{\"text\":\"first\"},{\"text\":\"\"},{\"text\":\"second\"}]\n```",
			num:   3,
			want:  []domain.Caption{{Text: "first", Confidence: 1}, {Text: "second", Confidence: 0.5}},
		},
		{
			name:  "extra captions are dropped",
			reply: `[{"text":"a","confidence":0.9},{"text":"b","confidence":0.8}]`,
			num:   1,
			want:  []domain.Caption{{Text: "a", Confidence: 0.9}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gen := &fakeGenerator{text: tt.reply}
			c := NewCaptioner(gen, "gemini-test")
			res, err := c.Infer(context.Background(), writeKeyframe(t), enrich.Options{NumCaptions: tt.num})
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if diff := cmp.Diff(tt.want, res.Captions); diff != "" {
				t.Errorf("captions mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestCaptionerRequestShape(t *testing.T) {
	gen := &fakeGenerator{text: `[{"text":"x"}]`}
	c := NewCaptioner(gen, "gemini-test")
	if _, err := c.Infer(context.Background(), writeKeyframe(t), enrich.Options{NumCaptions: 1}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(gen.calls) != 1 {
		t.Fatalf("expected 1 call, got %d", len(gen.calls))
	}
	call := gen.calls[0]
	if call.model != "gemini-test" {
		t.Errorf("expected model gemini-test, got %s", call.model)
	}
	if call.config.SystemInstruction == nil || call.config.ResponseMIMEType != "application/json" {
		t.Errorf("unexpected config %+v", call.config)
	}
	parts := call.contents[0].Parts
	if len(parts) != 2 || parts[0].InlineData == nil || parts[0].InlineData.MIMEType != "image/jpeg" {
		t.Errorf("expected inline keyframe followed by prompt, got %+v", parts)
	}
}

func TestKeyframeCallErrors(t *testing.T) {
	t.Run("unparseable reply is a decode error", func(t *testing.T) {
		c := NewCaptioner(&fakeGenerator{text: "I see a dog"}, "m")
		_, err := c.Infer(context.Background(), writeKeyframe(t), enrich.Options{})
		var ee *enrich.EnrichmentError
		if !errors.As(err, &ee) || ee.Reason != enrich.ReasonDecodeError {
			t.Errorf("expected decode error, got %v", err)
		}
	})

	t.Run("empty caption list is a decode error", func(t *testing.T) {
		c := NewCaptioner(&fakeGenerator{text: "[]"}, "m")
		_, err := c.Infer(context.Background(), writeKeyframe(t), enrich.Options{})
		var ee *enrich.EnrichmentError
		if !errors.As(err, &ee) || ee.Reason != enrich.ReasonDecodeError {
			t.Errorf("expected decode error, got %v", err)
		}
	})

	t.Run("missing keyframe is a decode error without a call", func(t *testing.T) {
		gen := &fakeGenerator{text: "{}"}
		o := NewOCR(gen, "m")
		_, err := o.Infer(context.Background(), enrich.Keyframe{ShotID: "s001", Path: "/nope.jpg"}, enrich.Options{})
		var ee *enrich.EnrichmentError
		if !errors.As(err, &ee) || ee.Reason != enrich.ReasonDecodeError {
			t.Errorf("expected decode error, got %v", err)
		}
		if len(gen.calls) != 0 {
			t.Errorf("expected no API call, got %d", len(gen.calls))
		}
	})

	tests := []struct {
		name      string
		err       error
		transient bool
	}{
		{"rate limited", genai.APIError{Code: 429, Message: "quota"}, true},
		{"server error", genai.APIError{Code: 503, Message: "unavailable"}, true},
		{"bad request", genai.APIError{Code: 400, Message: "invalid"}, false},
		{"opaque", errors.New("boom"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := NewObjectDetector(&fakeGenerator{err: tt.err}, "m")
			_, err := d.Infer(context.Background(), writeKeyframe(t), enrich.Options{})
			var ee *enrich.EnrichmentError
			if !errors.As(err, &ee) {
				t.Fatalf("expected EnrichmentError, got %v", err)
			}
			if ee.Reason != enrich.ReasonModelError || ee.Transient != tt.transient {
				t.Errorf("expected model-error transient=%v, got %+v", tt.transient, ee)
			}
		})
	}

	t.Run("deadline passes through", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		o := NewOCR(&fakeGenerator{text: "{}"}, "m")
		_, err := o.Infer(ctx, writeKeyframe(t), enrich.Options{})
		if !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
	})
}

func TestObjectDetectorMergesLabels(t *testing.T) {
	gen := &fakeGenerator{text: `[
		{"label":"Person","confidence":0.7},
		{"label":"car","confidence":0.9},
		{"label":"person ","confidence":0.95},
		{"label":"","confidence":1},
		{"label":"bicycle"}
	]`}
	res, err := NewObjectDetector(gen, "m").Infer(context.Background(), writeKeyframe(t), enrich.Options{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []domain.DetectedObject{
		{Label: "person", Confidence: 0.95},
		{Label: "car", Confidence: 0.9},
		{Label: "bicycle", Confidence: 0.2},
	}
	if diff := cmp.Diff(want, res.Objects); diff != "" {
		t.Errorf("objects mismatch (-want +got):\n%s", diff)
	}
}

func TestOCR(t *testing.T) {
	gen := &fakeGenerator{text: `{"text":"  EXIT\nLevel 2  "}`}
	o := NewOCR(gen, "m")
	res, err := o.Infer(context.Background(), writeKeyframe(t), enrich.Options{Language: "no"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Text != "EXIT\nLevel 2" {
		t.Errorf("unexpected text %q", res.Text)
	}
	if o.Modality() != domain.ModalityOCR || o.Model() != "m" {
		t.Errorf("unexpected identity %s/%s", o.Modality(), o.Model())
	}
}

func writeAudio(t *testing.T, size int) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "audio.wav")
	if err := os.WriteFile(path, make([]byte, size), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestTranscriberInline(t *testing.T) {
	gen := &fakeGenerator{text: `{"language":"en","text":"ok great","words":[
		{"word":"ok","start_s":0.1,"end_s":0.4},
		{"word":"great","start_s":4.2,"end_s":4.6}]}`}
	tr := NewTranscriber(gen, nil, "gemini-test")

	got, err := tr.Transcribe(context.Background(), writeAudio(t, 1024), "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := domain.Transcript{
		Text:     "ok great",
		Language: "en",
		Words:    []domain.Word{{Text: "ok", StartS: 0.1, EndS: 0.4}, {Text: "great", StartS: 4.2, EndS: 4.6}},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("transcript mismatch (-want +got):\n%s", diff)
	}
	blob := gen.calls[0].contents[0].Parts[0].InlineData
	if blob == nil || blob.MIMEType != "audio/wav" || len(blob.Data) != 1024 {
		t.Errorf("expected inline WAV part, got %+v", gen.calls[0].contents[0].Parts[0])
	}
}

func TestTranscriberErrors(t *testing.T) {
	t.Run("empty audio", func(t *testing.T) {
		_, err := NewTranscriber(&fakeGenerator{}, nil, "m").Transcribe(context.Background(), writeAudio(t, 10), "en")
		var te *asr.TranscriptionError
		if !errors.As(err, &te) || !errors.Is(err, asr.ErrEmptyAudio) {
			t.Errorf("expected TranscriptionError wrapping ErrEmptyAudio, got %v", err)
		}
	})

	t.Run("too large without file store", func(t *testing.T) {
		tr := NewTranscriber(&fakeGenerator{}, nil, "m")
		tr.MaxInlineBytes = 100
		_, err := tr.Transcribe(context.Background(), writeAudio(t, 200), "")
		var te *asr.TranscriptionError
		if !errors.As(err, &te) {
			t.Errorf("expected TranscriptionError, got %v", err)
		}
	})

	t.Run("hint fills missing language", func(t *testing.T) {
		gen := &fakeGenerator{text: `{"text":"hei","words":[{"word":"hei","start_s":0,"end_s":0.3}]}`}
		got, err := NewTranscriber(gen, nil, "m").Transcribe(context.Background(), writeAudio(t, 100), "no")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got.Language != "no" {
			t.Errorf("expected language no, got %q", got.Language)
		}
	})
}

type fakeFiles struct {
	uploaded bool
	deleted  []string
}

func (f *fakeFiles) Upload(ctx context.Context, r io.Reader, config *genai.UploadFileConfig) (*genai.File, error) {
	f.uploaded = true
	return &genai.File{Name: "files/abc", URI: "https://example.test/files/abc", MIMEType: config.MIMEType, State: genai.FileStateActive}, nil
}

func (f *fakeFiles) Get(ctx context.Context, name string, config *genai.GetFileConfig) (*genai.File, error) {
	return &genai.File{Name: name, State: genai.FileStateActive}, nil
}

func (f *fakeFiles) Delete(ctx context.Context, name string, config *genai.DeleteFileConfig) (*genai.DeleteFileResponse, error) {
	f.deleted = append(f.deleted, name)
	return &genai.DeleteFileResponse{}, nil
}

func TestTranscriberUploadsLargeAudio(t *testing.T) {
	gen := &fakeGenerator{text: `{"language":"en","text":"","words":[]}`}
	files := &fakeFiles{}
	tr := NewTranscriber(gen, files, "m")
	tr.MaxInlineBytes = 100

	if _, err := tr.Transcribe(context.Background(), writeAudio(t, 500), ""); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !files.uploaded {
		t.Fatal("expected audio upload")
	}
	part := gen.calls[0].contents[0].Parts[0]
	if part.FileData == nil || part.FileData.FileURI != "https://example.test/files/abc" {
		t.Errorf("expected file reference part, got %+v", part)
	}
	if diff := cmp.Diff([]string{"files/abc"}, files.deleted); diff != "" {
		t.Errorf("uploaded file not cleaned up (-want +got):\n%s", diff)
	}
}
