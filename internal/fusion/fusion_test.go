package fusion

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/fpang/videointel/internal/asr"
	"github.com/fpang/videointel/internal/domain"
	"github.com/fpang/videointel/internal/enrich"
	"github.com/fpang/videointel/internal/filehandler"
	"github.com/fpang/videointel/internal/metrics"
	"github.com/fpang/videointel/internal/notify"
	"github.com/fpang/videointel/internal/output"
	"github.com/fpang/videointel/internal/record"
	"github.com/fpang/videointel/internal/shots"
	"github.com/fpang/videointel/internal/store"
)

func init() {
	metrics.SetOutput(nil)
}

var fixedNow = time.Date(2026, 5, 4, 10, 30, 0, 0, time.UTC)

func solid(c color.RGBA) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, 32, 32))
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i], img.Pix[i+1], img.Pix[i+2], img.Pix[i+3] = c.R, c.G, c.B, 255
	}
	return img
}

type sliceSource struct {
	frames []domain.Frame
}

func (s *sliceSource) Frames(ctx context.Context) (domain.FrameIterator, error) {
	return &sliceIter{frames: s.frames, pos: -1}, nil
}

type sliceIter struct {
	frames []domain.Frame
	pos    int
}

func (it *sliceIter) Next() bool {
	it.pos++
	return it.pos < len(it.frames)
}
func (it *sliceIter) Frame() domain.Frame { return it.frames[it.pos] }
func (it *sliceIter) Err() error          { return nil }
func (it *sliceIter) Close() error        { return nil }

// cutAtFour is one frame per second of a 10 s video: red until 4 s, blue after.
func cutAtFour() *sliceSource {
	red, blue := solid(color.RGBA{R: 250}), solid(color.RGBA{B: 250})
	src := &sliceSource{}
	for i := range 10 {
		img := red
		if i >= 4 {
			img = blue
		}
		src.frames = append(src.frames, domain.Frame{Index: i, TimeS: float64(i), Image: img})
	}
	return src
}

type fakeVideo struct {
	durationS float64
	frames    domain.FrameSource
	noAudio   bool
	err       error
}

type fakeExtractor struct {
	videos map[string]fakeVideo
}

func (f *fakeExtractor) Extract(ctx context.Context, path, audioPath string) (*filehandler.Media, error) {
	v, ok := f.videos[path]
	if !ok {
		return nil, fmt.Errorf("%w: %s", filehandler.ErrUnreadableMedia, path)
	}
	if v.err != nil {
		return nil, v.err
	}
	m := &filehandler.Media{Path: path, DurationS: v.durationS, Frames: v.frames}
	if !v.noAudio {
		if err := os.WriteFile(audioPath, []byte("RIFF----WAVEfmt "), 0o644); err != nil {
			return nil, err
		}
		m.AudioPath = audioPath
	}
	return m, nil
}

type fakeTranscriber struct {
	tr    domain.Transcript
	err   error
	hook  func()
	calls int
	mu    sync.Mutex
}

func (f *fakeTranscriber) Model() string { return "fake-asr" }

func (f *fakeTranscriber) Transcribe(ctx context.Context, audioPath, hint string) (domain.Transcript, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.hook != nil {
		f.hook()
		return domain.Transcript{}, ctx.Err()
	}
	if f.err != nil {
		return domain.Transcript{}, &asr.TranscriptionError{Model: f.Model(), Err: f.err}
	}
	return f.tr, nil
}

var okGreat = domain.Transcript{
	Text:     "ok great",
	Language: "en",
	Words:    []domain.Word{{Text: "ok", StartS: 0.1, EndS: 0.4}, {Text: "great", StartS: 4.2, EndS: 4.6}},
}

func captioner() enrich.Enricher {
	return enrich.NewFunc(enrich.Func{
		Mod:  domain.ModalityCaption,
		Name: "fake-caption",
		Infer: func(ctx context.Context, kf enrich.Keyframe, opts enrich.Options) (enrich.Result, error) {
			if _, err := kf.Load(); err != nil {
				return enrich.Result{}, err
			}
			return enrich.Result{Captions: []domain.Caption{{Text: "scene " + kf.ShotID, Confidence: 1}}}, nil
		},
	})
}

func ocrFunc(fail bool) enrich.Enricher {
	return enrich.NewFunc(enrich.Func{
		Mod:  domain.ModalityOCR,
		Name: "fake-ocr",
		Infer: func(ctx context.Context, kf enrich.Keyframe, opts enrich.Options) (enrich.Result, error) {
			if fail {
				return enrich.Result{}, errors.New("ocr engine crashed")
			}
			return enrich.Result{Text: "EXIT"}, nil
		},
	})
}

type memPublisher struct {
	events []notify.VideoProcessed
}

func (m *memPublisher) Publish(_ context.Context, ev notify.VideoProcessed) error {
	m.events = append(m.events, ev)
	return nil
}

type harness struct {
	engine    *Engine
	cfg       JobConfig
	outDir    string
	ledger    *store.SQLiteStore
	published *memPublisher
	asr       *fakeTranscriber
	extractor *fakeExtractor
}

func newHarness(t *testing.T, enrichers ...enrich.Enricher) *harness {
	t.Helper()
	outDir := t.TempDir()
	orch, err := enrich.NewOrchestrator(enrichers, enrich.Config{Concurrency: 2, CallTimeout: time.Second})
	if err != nil {
		t.Fatal(err)
	}
	ledger, err := store.OpenSQLite(filepath.Join(outDir, "jobs.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { ledger.Close() })

	h := &harness{
		outDir:    outDir,
		ledger:    ledger,
		published: &memPublisher{},
		asr:       &fakeTranscriber{tr: okGreat},
		extractor: &fakeExtractor{videos: map[string]fakeVideo{
			"/videos/clip.mp4": {durationS: 10, frames: cutAtFour()},
		}},
		cfg: JobConfig{
			NumCaptions: 1,
			FramesDir:   filepath.Join(outDir, "frames"),
			WorkDir:     filepath.Join(outDir, "audio"),
			RecordRoot:  outDir,
		},
	}
	h.engine = &Engine{
		Extractor:   h.extractor,
		Segmenter:   &shots.Segmenter{Options: shots.Options{Threshold: shots.DefaultThreshold}, Save: filehandler.SaveKeyframe},
		Transcriber: h.asr,
		Enricher:    orch,
		Writer:      &output.LocalWriter{Dir: outDir},
		Ledger:      ledger,
		Notifier:    h.published,
		Now:         func() time.Time { return fixedNow },
	}
	return h
}

func (h *harness) job(path string) VideoJob {
	return NewJob(path, h.cfg)
}

func TestProcessCutAtFour(t *testing.T) {
	h := newHarness(t, captioner(), ocrFunc(false))
	job := h.job("/videos/clip.mp4")

	res, err := h.engine.Process(context.Background(), job)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Status != store.StatusCompleted || res.Shots != 2 || res.Words != 2 {
		t.Errorf("unexpected result %+v", res)
	}
	if want := filepath.Join(h.outDir, "clip.json"); res.RecordPath != want {
		t.Errorf("expected record at %s, got %s", want, res.RecordPath)
	}

	data, err := os.ReadFile(res.RecordPath)
	if err != nil {
		t.Fatalf("record not written: %v", err)
	}
	rec, err := record.Decode(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}

	type shotView struct {
		ID         string
		Start, End float64
		Words      []string
		Keyframe   string
		Caption    string
		OCR        string
	}
	var got []shotView
	for _, sh := range rec.Shots {
		v := shotView{ID: sh.ShotID, Start: sh.StartS, End: sh.EndS, Keyframe: sh.Keyframe}
		for _, w := range sh.Words {
			v.Words = append(v.Words, w.Text)
		}
		if sh.Captions.OK() {
			v.Caption = sh.Captions.Value[0].Text
		}
		if sh.OCRText.OK() {
			v.OCR = sh.OCRText.Value
		}
		got = append(got, v)
	}
	want := []shotView{
		{ID: "s001", Start: 0, End: 4, Words: []string{"ok"}, Keyframe: "frames/clip/clip_s001.jpg", Caption: "scene s001", OCR: "EXIT"},
		{ID: "s002", Start: 4, End: 10, Words: []string{"great"}, Keyframe: "frames/clip/clip_s002.jpg", Caption: "scene s002", OCR: "EXIT"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("shots (-want +got):\n%s", diff)
	}
	if rec.Language != "en" || rec.Processing.Models["asr"] != "fake-asr" || rec.Processing.Models["object_detector"] != "none" {
		t.Errorf("unexpected header: language %q models %v", rec.Language, rec.Processing.Models)
	}

	if _, err := os.Stat(filepath.Join(h.outDir, "frames", "clip")); !os.IsNotExist(err) {
		t.Errorf("keyframes should be removed after the record is written, stat err = %v", err)
	}
	if _, err := os.Stat(filepath.Join(h.outDir, "audio", "clip.wav")); !os.IsNotExist(err) {
		t.Errorf("audio should be removed, stat err = %v", err)
	}

	stored, err := h.ledger.GetJob(context.Background(), job.ID)
	if err != nil || stored == nil {
		t.Fatalf("job not in ledger: %v", err)
	}
	if stored.Status != store.StatusCompleted || stored.ShotCount != 2 || stored.RecordPath != res.RecordPath {
		t.Errorf("unexpected ledger row %+v", stored)
	}
	if len(h.published.events) != 1 || h.published.events[0].Status != store.StatusCompleted {
		t.Errorf("expected one completed event, got %+v", h.published.events)
	}
}

func TestProcessKeepArtifacts(t *testing.T) {
	h := newHarness(t, captioner())
	h.cfg.KeepFrames = true
	h.cfg.KeepAudio = true
	if _, err := h.engine.Process(context.Background(), h.job("/videos/clip.mp4")); err != nil {
		t.Fatal(err)
	}
	for _, p := range []string{
		filepath.Join(h.outDir, "frames", "clip", "clip_s001.jpg"),
		filepath.Join(h.outDir, "frames", "clip", "clip_s002.jpg"),
		filepath.Join(h.outDir, "audio", "clip.wav"),
	} {
		if _, err := os.Stat(p); err != nil {
			t.Errorf("expected %s to be kept: %v", p, err)
		}
	}
}

func TestProcessFailedRerunKeepsPreviousKeyframes(t *testing.T) {
	tests := []struct {
		name  string
		setup func(h *harness, cancel context.CancelFunc)
	}{
		{"transcription error", func(h *harness, _ context.CancelFunc) { h.asr.err = errors.New("model not loaded") }},
		{"cancelled", func(h *harness, cancel context.CancelFunc) { h.asr.hook = cancel }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, captioner())
			h.cfg.KeepFrames = true
			if _, err := h.engine.Process(context.Background(), h.job("/videos/clip.mp4")); err != nil {
				t.Fatalf("first run: %v", err)
			}

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			tt.setup(h, cancel)
			if _, err := h.engine.Process(ctx, h.job("/videos/clip.mp4")); err == nil {
				t.Fatal("expected the second run to fail")
			}

			data, err := os.ReadFile(filepath.Join(h.outDir, "clip.json"))
			if err != nil {
				t.Fatalf("previous record missing: %v", err)
			}
			rec, err := record.Decode(data)
			if err != nil {
				t.Fatal(err)
			}
			for _, sh := range rec.Shots {
				if _, err := os.Stat(filepath.Join(h.outDir, filepath.FromSlash(sh.Keyframe))); err != nil {
					t.Errorf("keyframe %s of the previous record is gone: %v", sh.Keyframe, err)
				}
			}

			entries, err := os.ReadDir(filepath.Join(h.outDir, "frames"))
			if err != nil {
				t.Fatal(err)
			}
			var names []string
			for _, e := range entries {
				names = append(names, e.Name())
			}
			if diff := cmp.Diff([]string{"clip"}, names); diff != "" {
				t.Errorf("frames directory (-want +got):\n%s", diff)
			}
		})
	}
}

func TestProcessRerunReplacesKeyframes(t *testing.T) {
	h := newHarness(t, captioner())
	h.cfg.KeepFrames = true
	stale := filepath.Join(h.outDir, "frames", "clip", "clip_s009.jpg")
	if err := os.MkdirAll(filepath.Dir(stale), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(stale, []byte("old"), 0o644); err != nil {
		t.Fatal(err)
	}

	if _, err := h.engine.Process(context.Background(), h.job("/videos/clip.mp4")); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(stale); !os.IsNotExist(err) {
		t.Errorf("keyframe from an earlier run should be replaced, stat err = %v", err)
	}
	if _, err := os.Stat(filepath.Join(h.outDir, "frames", "clip", "clip_s001.jpg")); err != nil {
		t.Errorf("new keyframe missing: %v", err)
	}
}

func TestProcessIsIdempotent(t *testing.T) {
	h := newHarness(t, captioner(), ocrFunc(false))
	var outputs [][]byte
	for range 2 {
		res, err := h.engine.Process(context.Background(), h.job("/videos/clip.mp4"))
		if err != nil {
			t.Fatal(err)
		}
		data, err := os.ReadFile(res.RecordPath)
		if err != nil {
			t.Fatal(err)
		}
		outputs = append(outputs, data)
	}
	if !bytes.Equal(outputs[0], outputs[1]) {
		t.Errorf("re-run produced different bytes:\n%s\n---\n%s", outputs[0], outputs[1])
	}
}

func TestProcessDisabledVersusFailedOCR(t *testing.T) {
	disabled := newHarness(t, captioner())
	res, err := disabled.engine.Process(context.Background(), disabled.job("/videos/clip.mp4"))
	if err != nil {
		t.Fatal(err)
	}
	data, _ := os.ReadFile(res.RecordPath)
	if bytes.Contains(data, []byte(`"ocr_text"`)) {
		t.Error("disabled OCR must not produce an ocr_text key")
	}
	if res.Record.Processing.Models["ocr"] != "none" {
		t.Errorf("expected ocr model none, got %q", res.Record.Processing.Models["ocr"])
	}

	failing := newHarness(t, captioner(), ocrFunc(true))
	res, err = failing.engine.Process(context.Background(), failing.job("/videos/clip.mp4"))
	if err != nil {
		t.Fatalf("a failing modality must not fail the job: %v", err)
	}
	for _, sh := range res.Record.Shots {
		if sh.OCRText == nil || sh.OCRText.Unavailable == nil || sh.OCRText.Unavailable.Status != record.StatusUnavailable {
			t.Errorf("shot %s: expected unavailable OCR marker, got %+v", sh.ShotID, sh.OCRText)
		}
		if !sh.Captions.OK() {
			t.Errorf("shot %s: captions should be unaffected", sh.ShotID)
		}
	}
	if res.Record.Processing.Models["ocr"] != "fake-ocr" {
		t.Errorf("failed-but-enabled OCR keeps its model name, got %q", res.Record.Processing.Models["ocr"])
	}
}

func TestProcessDegenerateInputs(t *testing.T) {
	h := newHarness(t, captioner())
	h.extractor.videos["/videos/blink.mp4"] = fakeVideo{
		durationS: 0.4,
		frames:    &sliceSource{frames: []domain.Frame{{Index: 0, TimeS: 0, Image: solid(color.RGBA{G: 200})}}},
	}
	h.extractor.videos["/videos/silent.mp4"] = fakeVideo{durationS: 10, frames: cutAtFour(), noAudio: true}

	res, err := h.engine.Process(context.Background(), h.job("/videos/blink.mp4"))
	if err != nil {
		t.Fatalf("single frame: %v", err)
	}
	if len(res.Record.Shots) != 1 || res.Record.Shots[0].EndS != 0.4 {
		t.Errorf("expected one shot covering 0.4 s, got %+v", res.Record.Shots)
	}

	calls := h.asr.calls
	res, err = h.engine.Process(context.Background(), h.job("/videos/silent.mp4"))
	if err != nil {
		t.Fatalf("silent video: %v", err)
	}
	if h.asr.calls != calls {
		t.Error("recognizer should not run without an audio track")
	}
	if len(res.Record.Transcript.Words) != 0 || res.Record.Processing.Models["asr"] != "none" {
		t.Errorf("expected empty transcript, got %+v", res.Record.Transcript)
	}
}

func TestProcessFatalErrors(t *testing.T) {
	tests := []struct {
		name      string
		path      string
		setup     func(h *harness)
		wantStage Stage
		wantIs    error
	}{
		{
			name:      "unreadable media",
			path:      "/videos/corrupt.mp4",
			wantStage: StageExtract,
			wantIs:    filehandler.ErrUnreadableMedia,
		},
		{
			name:      "transcription failure",
			path:      "/videos/clip.mp4",
			setup:     func(h *harness) { h.asr.err = errors.New("model not loaded") },
			wantStage: StageTranscribe,
		},
		{
			name:      "no duration",
			path:      "/videos/broken.mp4",
			setup:     func(h *harness) { h.extractor.videos["/videos/broken.mp4"] = fakeVideo{durationS: -1, frames: &sliceSource{}} },
			wantStage: StageSegment,
		},
		{
			name: "write failure",
			path: "/videos/clip.mp4",
			setup: func(h *harness) {
				blocker := filepath.Join(h.outDir, "blocked")
				os.WriteFile(blocker, []byte("file"), 0o644)
				h.engine.Writer = &output.LocalWriter{Dir: filepath.Join(blocker, "out")}
			},
			wantStage: StageWrite,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, captioner())
			if tt.setup != nil {
				tt.setup(h)
			}
			job := h.job(tt.path)
			res, err := h.engine.Process(context.Background(), job)

			var fatal *FatalJobError
			if !errors.As(err, &fatal) {
				t.Fatalf("expected *FatalJobError, got %T %v", err, err)
			}
			if fatal.Stage != tt.wantStage || fatal.VideoID != job.VideoID {
				t.Errorf("expected stage %s for %s, got %+v", tt.wantStage, job.VideoID, fatal)
			}
			if tt.wantIs != nil && !errors.Is(err, tt.wantIs) {
				t.Errorf("expected errors.Is %v, got %v", tt.wantIs, err)
			}
			if res.Status != store.StatusFailed || res.Record != nil {
				t.Errorf("expected failed without record, got %+v", res)
			}
			if _, err := os.Stat(filepath.Join(h.outDir, job.VideoID+".json")); !os.IsNotExist(err) {
				t.Errorf("no record file may be written for a failed job")
			}
			stored, _ := h.ledger.GetJob(context.Background(), job.ID)
			if stored == nil || stored.Status != store.StatusFailed || stored.Error == "" {
				t.Errorf("ledger should hold the failure, got %+v", stored)
			}
		})
	}
}

func TestProcessTranscriptionErrorIsTyped(t *testing.T) {
	h := newHarness(t)
	h.asr.err = errors.New("model not loaded")
	_, err := h.engine.Process(context.Background(), h.job("/videos/clip.mp4"))
	var terr *asr.TranscriptionError
	if !errors.As(err, &terr) || terr.Model != "fake-asr" {
		t.Errorf("expected wrapped TranscriptionError, got %v", err)
	}
}

func TestProcessAllowNoTranscript(t *testing.T) {
	h := newHarness(t, captioner())
	h.cfg.AllowNoTranscript = true
	h.cfg.LanguageHint = "no"
	h.asr.err = errors.New("model not loaded")

	res, err := h.engine.Process(context.Background(), h.job("/videos/clip.mp4"))
	if err != nil {
		t.Fatalf("opt-in mode should complete: %v", err)
	}
	rec := res.Record
	if rec.Transcript.Text != "" || len(rec.Transcript.Words) != 0 {
		t.Errorf("expected empty transcript, got %+v", rec.Transcript)
	}
	if rec.Processing.Models["asr"] != "none" || rec.Language != "no" {
		t.Errorf("expected asr none and hinted language, got %v %q", rec.Processing.Models, rec.Language)
	}
	if len(rec.Shots) != 2 {
		t.Errorf("shots should still be produced, got %d", len(rec.Shots))
	}
}

func TestProcessCancelled(t *testing.T) {
	h := newHarness(t, captioner())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h.asr.hook = cancel

	job := h.job("/videos/clip.mp4")
	res, err := h.engine.Process(ctx, job)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected cancellation, got %v", err)
	}
	var fatal *FatalJobError
	if errors.As(err, &fatal) {
		t.Error("cancellation is not a fatal job error")
	}
	if res.Status != store.StatusCancelled || res.Record != nil {
		t.Errorf("expected cancelled without record, got %+v", res)
	}
	if _, err := os.Stat(filepath.Join(h.outDir, "clip.json")); !os.IsNotExist(err) {
		t.Error("cancelled job must not write a record")
	}
	stored, _ := h.ledger.GetJob(context.Background(), job.ID)
	if stored == nil || stored.Status != store.StatusCancelled {
		t.Errorf("ledger should record cancelled, got %+v", stored)
	}
}

func TestProcessBatchIsolatesFailures(t *testing.T) {
	h := newHarness(t, captioner())
	h.extractor.videos["/videos/b.mp4"] = fakeVideo{durationS: 10, frames: cutAtFour()}

	batch := []VideoJob{h.job("/videos/clip.mp4"), h.job("/videos/corrupt.mp4"), h.job("/videos/b.mp4")}
	summary := h.engine.ProcessBatch(context.Background(), batch)

	if summary.Processed != 2 || summary.Failed != 1 || summary.Skipped != 0 {
		t.Errorf("unexpected summary %+v", summary)
	}
	if summary.Err() == nil {
		t.Error("a batch with failures should report an error")
	}
	for _, name := range []string{"clip.json", "b.json"} {
		if _, err := os.Stat(filepath.Join(h.outDir, name)); err != nil {
			t.Errorf("expected %s despite the failed video: %v", name, err)
		}
	}
	if len(h.published.events) != 3 {
		t.Errorf("expected an event per video, got %d", len(h.published.events))
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	summary = h.engine.ProcessBatch(ctx, batch)
	if summary.Skipped != 3 || summary.Processed != 0 {
		t.Errorf("cancelled batch should skip everything, got %+v", summary)
	}
}

func TestRecordKeyframe(t *testing.T) {
	tests := []struct {
		name string
		root string
		path string
		want string
	}{
		{"relative to root", "/data/out", "/data/out/frames/clip/clip_s001.jpg", "frames/clip/clip_s001.jpg"},
		{"no root", "", "/data/out/frames/clip/clip_s001.jpg", "/data/out/frames/clip/clip_s001.jpg"},
		{"empty", "/data/out", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			job := VideoJob{Config: JobConfig{RecordRoot: tt.root}}
			if got := job.recordKeyframe(tt.path); got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestRunnerSubmit(t *testing.T) {
	h := newHarness(t, captioner())
	dir := t.TempDir()
	videoPath := filepath.Join(dir, "clip.mp4")
	if err := os.WriteFile(videoPath, []byte("not really a video"), 0o644); err != nil {
		t.Fatal(err)
	}
	h.extractor.videos[videoPath] = fakeVideo{durationS: 10, frames: cutAtFour()}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	runner := NewRunner(ctx, h.engine, h.cfg, 1, 4)

	job, err := runner.Submit(ctx, videoPath)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if job.Status != store.StatusPending || job.VideoID != "clip" {
		t.Errorf("unexpected queued job %+v", job)
	}
	if _, err := runner.Submit(ctx, filepath.Join(dir, "missing.mp4")); err == nil {
		t.Error("expected error for a missing file")
	}
	if _, err := runner.Submit(ctx, dir); err == nil {
		t.Error("expected error for a directory")
	}

	runner.Close()

	stored, err := h.ledger.GetJob(context.Background(), job.ID)
	if err != nil || stored == nil {
		t.Fatalf("job missing from ledger: %v", err)
	}
	if stored.Status != store.StatusCompleted {
		t.Errorf("expected completed after Close, got %s (%s)", stored.Status, stored.Error)
	}
}

func TestRunnerShutdownCancelsQueuedJobs(t *testing.T) {
	h := newHarness(t, captioner())
	dir := t.TempDir()
	var paths []string
	for _, name := range []string{"a.mp4", "b.mp4", "c.mp4"} {
		p := filepath.Join(dir, name)
		if err := os.WriteFile(p, []byte("not really a video"), 0o644); err != nil {
			t.Fatal(err)
		}
		h.extractor.videos[p] = fakeVideo{durationS: 10, frames: cutAtFour()}
		paths = append(paths, p)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	runner := NewRunner(ctx, h.engine, h.cfg, 1, 4)

	var ids []string
	for _, p := range paths {
		job, err := runner.Submit(context.Background(), p)
		if err != nil {
			t.Fatalf("Submit: %v", err)
		}
		ids = append(ids, job.ID)
	}
	runner.Close()

	for _, id := range ids {
		stored, err := h.ledger.GetJob(context.Background(), id)
		if err != nil || stored == nil {
			t.Fatalf("job %s missing from ledger: %v", id, err)
		}
		if stored.Status != store.StatusCancelled {
			t.Errorf("job %s: expected cancelled after shutdown, got %s", id, stored.Status)
		}
	}
}
