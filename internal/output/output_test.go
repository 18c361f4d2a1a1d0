package output

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/google/go-cmp/cmp"

	"github.com/fpang/videointel/internal/domain"
	"github.com/fpang/videointel/internal/enrich"
	"github.com/fpang/videointel/internal/record"
)

func sampleRecord(t *testing.T) *record.VideoRecord {
	t.Helper()
	rec, err := record.Assemble(
		record.Meta{
			VideoID:    "clip",
			Filename:   "clip.mp4",
			DurationS:  10,
			Modalities: []domain.Modality{domain.ModalityOCR},
			Models:     map[string]string{"asr": "whisper.cpp:base", "ocr": "tesseract"},
			CreatedAt:  time.Date(2026, 10, 19, 0, 0, 0, 0, time.UTC),
		},
		domain.Transcript{Text: "ok", Language: "en", Words: []domain.Word{{Text: "ok", StartS: 0.1, EndS: 0.4}}},
		[]domain.Shot{{ID: "s001", StartS: 0, EndS: 10, Keyframe: "clip/clip_s001.jpg"}},
		map[string]enrich.ShotEnrichment{"s001": {domain.ModalityOCR: {Result: &enrich.Result{Text: "EXIT"}}}},
	)
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	return rec
}

func TestLocalWriterRoundTrip(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "out")
	w := &LocalWriter{Dir: dir}
	rec := sampleRecord(t)

	path, err := w.Write(context.Background(), rec)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if path != filepath.Join(dir, "clip.json") {
		t.Errorf("unexpected path %s", path)
	}

	want, _ := record.Encode(rec)
	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(want, got) {
		t.Error("file contents differ from encoded record")
	}

	back, err := w.Read(context.Background(), "clip")
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if back.VideoID != "clip" || len(back.Shots) != 1 || back.Shots[0].OCRText.Value != "EXIT" {
		t.Errorf("unexpected record %+v", back)
	}
}

func TestLocalWriterOverwritesWithoutLeftovers(t *testing.T) {
	dir := t.TempDir()
	w := &LocalWriter{Dir: dir}
	rec := sampleRecord(t)

	for range 3 {
		if _, err := w.Write(context.Background(), rec); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0].Name() != "clip.json" {
		names := make([]string, len(entries))
		for i, e := range entries {
			names[i] = e.Name()
		}
		t.Errorf("expected only clip.json, got %v", names)
	}
}

func TestLocalWriterCompressed(t *testing.T) {
	dir := t.TempDir()
	w := &LocalWriter{Dir: dir, Compress: true}
	rec := sampleRecord(t)

	if _, err := w.Write(context.Background(), rec); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	packed, err := os.ReadFile(filepath.Join(dir, "clip.json.zst"))
	if err != nil {
		t.Fatalf("compressed copy missing: %v", err)
	}
	plain, err := decompress(packed)
	if err != nil {
		t.Fatal(err)
	}
	want, _ := record.Encode(rec)
	if !bytes.Equal(plain, want) {
		t.Error("decompressed copy differs from the plain record")
	}

	// Read falls back to the compressed copy.
	if err := os.Remove(filepath.Join(dir, "clip.json")); err != nil {
		t.Fatal(err)
	}
	back, err := w.Read(context.Background(), "clip")
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if back.VideoID != "clip" {
		t.Errorf("unexpected record %+v", back)
	}
}

func TestLocalWriterCompressFailureKeepsPreviousRecord(t *testing.T) {
	dir := t.TempDir()
	w := &LocalWriter{Dir: dir, Compress: true}
	previous := []byte(`{"video_id":"clip"}`)
	if err := os.WriteFile(filepath.Join(dir, "clip.json"), previous, 0o644); err != nil {
		t.Fatal(err)
	}
	// A directory in place of the compressed copy makes its rename fail.
	if err := os.MkdirAll(filepath.Join(dir, "clip.json.zst", "blocker"), 0o755); err != nil {
		t.Fatal(err)
	}

	if _, err := w.Write(context.Background(), sampleRecord(t)); err == nil {
		t.Fatal("expected the compressed write to fail")
	}
	got, err := os.ReadFile(filepath.Join(dir, "clip.json"))
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, previous) {
		t.Errorf("plain record was replaced by a write that failed: %s", got)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	if diff := cmp.Diff([]string{"clip.json", "clip.json.zst"}, names); diff != "" {
		t.Errorf("temp files left behind (-want +got):\n%s", diff)
	}
}

func TestLocalWriterReadMissing(t *testing.T) {
	w := &LocalWriter{Dir: t.TempDir()}
	if _, err := w.Read(context.Background(), "nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestLocalWriterCancelled(t *testing.T) {
	dir := t.TempDir()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := (&LocalWriter{Dir: dir}).Write(ctx, sampleRecord(t)); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
	if entries, _ := os.ReadDir(dir); len(entries) != 0 {
		t.Error("cancelled write must not create files")
	}
}

type memS3 struct {
	objects map[string][]byte
	inputs  map[string]*s3.PutObjectInput
}

func (m *memS3) GetObject(ctx context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	data, ok := m.objects[*in.Key]
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data))}, nil
}

func (m *memS3) PutObject(ctx context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	data, _ := io.ReadAll(in.Body)
	m.objects[*in.Key] = data
	m.inputs[*in.Key] = in
	return &s3.PutObjectOutput{}, nil
}

func TestS3Writer(t *testing.T) {
	tests := []struct {
		name     string
		compress bool
		key      string
		encoding string
	}{
		{"plain", false, "records/clip.json", ""},
		{"compressed", true, "records/clip.json.zst", "zstd"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := &memS3{objects: map[string][]byte{}, inputs: map[string]*s3.PutObjectInput{}}
			w := &S3Writer{Client: client, Bucket: "bucket", Prefix: "records", Compress: tt.compress}
			rec := sampleRecord(t)

			loc, err := w.Write(context.Background(), rec)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if loc != "s3://bucket/"+tt.key {
				t.Errorf("unexpected location %s", loc)
			}
			in, ok := client.inputs[tt.key]
			if !ok {
				t.Fatalf("object %s not written", tt.key)
			}
			gotEnc := ""
			if in.ContentEncoding != nil {
				gotEnc = *in.ContentEncoding
			}
			if gotEnc != tt.encoding {
				t.Errorf("expected encoding %q, got %q", tt.encoding, gotEnc)
			}

			back, err := w.Read(context.Background(), "clip")
			if err != nil {
				t.Fatalf("Read: %v", err)
			}
			if diff := cmp.Diff(rec.Transcript, back.Transcript); diff != "" {
				t.Errorf("transcript mismatch (-want +got):\n%s", diff)
			}
			if _, err := w.Read(context.Background(), "other"); !errors.Is(err, ErrNotFound) {
				t.Errorf("expected ErrNotFound, got %v", err)
			}
		})
	}
}
