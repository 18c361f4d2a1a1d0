package fusion

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/fpang/videointel/internal/asr"
	"github.com/fpang/videointel/internal/domain"
	"github.com/fpang/videointel/internal/enrich"
	"github.com/fpang/videointel/internal/filehandler"
	"github.com/fpang/videointel/internal/jobutil"
	"github.com/fpang/videointel/internal/metrics"
	"github.com/fpang/videointel/internal/notify"
	"github.com/fpang/videointel/internal/output"
	"github.com/fpang/videointel/internal/record"
	"github.com/fpang/videointel/internal/shots"
	"github.com/fpang/videointel/internal/store"
)

// Extractor opens a video and writes its audio track to audioPath.
type Extractor interface {
	Extract(ctx context.Context, path, audioPath string) (*filehandler.Media, error)
}

// Segmenter splits a video into shots and stores their keyframes.
type Segmenter interface {
	Run(ctx context.Context, src domain.FrameSource, videoID string, durationS float64, keyframeDir string) (*shots.Result, error)
}

// Enrichment runs the enabled modalities over every shot.
type Enrichment interface {
	Run(ctx context.Context, shots []domain.Shot, opts enrich.Options) (map[string]enrich.ShotEnrichment, enrich.Stats, error)
	Modalities() []domain.Modality
	Models() map[domain.Modality]string
}

// Engine wires the pipeline stages. Ledger and Notifier are optional.
type Engine struct {
	Extractor   Extractor
	Segmenter   Segmenter
	Transcriber asr.Transcriber
	Enricher    Enrichment
	Writer      output.Writer

	Ledger   store.JobStore
	Notifier notify.Publisher
	// Now stamps processing.created_at; defaults to time.Now.
	Now func() time.Time
}

// Result describes one processed video, successful or not.
type Result struct {
	JobID      string
	VideoID    string
	Status     string
	RecordPath string
	Record     *record.VideoRecord
	Shots      int
	Words      int
	// Fallback is set when frames could not be decoded and the video was
	// treated as one shot.
	Fallback bool
	Stats    enrich.Stats
	Duration time.Duration
	Err      error
}

// Process runs job to a terminal status. The returned error is nil on
// success, a *FatalJobError when the video failed, or wraps the context
// error when the job was cancelled; the Result is always non-nil.
func (e *Engine) Process(ctx context.Context, job VideoJob) (*Result, error) {
	start := time.Now()
	if job.Source == "" {
		job.Source = job.Path
	}
	if job.Filename == "" {
		job.Filename = filepath.Base(job.Path)
	}
	tracker := jobutil.Start(ctx, e.Ledger, job.ID, job.VideoID, job.Source)

	res := &Result{JobID: job.ID, VideoID: job.VideoID}
	err := e.run(ctx, job, res)
	res.Duration = time.Since(start)
	if err != nil {
		res.Err = err
		tracker.Fail(ctx, err)
	} else {
		tracker.Complete(ctx, res.RecordPath, res.Shots)
	}
	res.Status = tracker.Job.Status

	e.emitMetrics(res)
	e.publish(ctx, res)
	return res, err
}

func (e *Engine) run(ctx context.Context, job VideoJob, res *Result) error {
	fatal := func(stage Stage, err error) error {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fmt.Errorf("%s: %w", stage, ctxErr)
		}
		return &FatalJobError{VideoID: job.VideoID, Stage: stage, Err: err}
	}

	audioPath := job.audioPath()
	if err := os.MkdirAll(filepath.Dir(audioPath), 0o755); err != nil {
		return fatal(StageExtract, fmt.Errorf("create work directory: %w", err))
	}
	media, err := e.Extractor.Extract(ctx, job.Path, audioPath)
	if err != nil {
		return fatal(StageExtract, err)
	}
	if media.AudioPath != "" && !job.Config.KeepAudio {
		defer removeArtifact(job.VideoID, media.AudioPath)
	}

	// Keyframes are written to a staging directory and only replace the
	// previous run's directory once the new record is written.
	kfDir := job.keyframeDir()
	stageDir := ""
	if kfDir != "" {
		if err := os.MkdirAll(filepath.Dir(kfDir), 0o755); err != nil {
			return fatal(StageSegment, fmt.Errorf("create frames directory: %w", err))
		}
		stageDir, err = os.MkdirTemp(filepath.Dir(kfDir), job.VideoID+".tmp-*")
		if err != nil {
			return fatal(StageSegment, fmt.Errorf("create keyframe staging directory: %w", err))
		}
	}
	committed := false
	defer func() {
		if stageDir != "" && !committed {
			removeArtifact(job.VideoID, stageDir)
		}
	}()

	var (
		seg      *shots.Result
		tr       domain.Transcript
		asrModel = domain.ModelNone
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		start := time.Now()
		r, err := e.Segmenter.Run(gctx, media.Frames, job.VideoID, media.DurationS, stageDir)
		if err != nil {
			return fatal(StageSegment, err)
		}
		if len(r.Shots) == 0 {
			return fatal(StageSegment, shots.ErrNoShots)
		}
		seg = r
		log.Debug().Str("videoId", job.VideoID).Str("stage", string(StageSegment)).Dur("duration", time.Since(start)).Msg("Stage complete")
		return nil
	})
	g.Go(func() error {
		start := time.Now()
		t, model, err := e.transcribe(gctx, job, media)
		if err != nil {
			if gctx.Err() != nil && ctx.Err() == nil {
				// The segmenter failed first; its error wins.
				return gctx.Err()
			}
			return fatal(StageTranscribe, err)
		}
		tr, asrModel = t, model
		log.Debug().Str("videoId", job.VideoID).Str("stage", string(StageTranscribe)).Dur("duration", time.Since(start)).Msg("Stage complete")
		return nil
	})
	if err := g.Wait(); err != nil {
		return err
	}

	res.Shots = len(seg.Shots)
	res.Words = len(tr.Words)
	res.Fallback = seg.Fallback

	lang := tr.Language
	if lang == "" || lang == domain.UnknownLanguage {
		lang = job.Config.LanguageHint
	}
	enrichments, stats, err := e.enrich(ctx, seg.Shots, enrich.Options{NumCaptions: job.Config.NumCaptions, Language: lang})
	res.Stats = stats
	if err != nil {
		return fatal(StageEnrich, err)
	}

	recShots := make([]domain.Shot, len(seg.Shots))
	for i, sh := range seg.Shots {
		sh.Keyframe = job.recordKeyframe(committedKeyframe(kfDir, sh.Keyframe))
		recShots[i] = sh
	}

	meta := record.Meta{
		VideoID:      job.VideoID,
		Filename:     job.Filename,
		DurationS:    media.DurationS,
		LanguageHint: job.Config.LanguageHint,
		Models:       map[string]string{domain.ModelKeyASR: asrModel},
		CreatedAt:    e.now(),
	}
	if e.Enricher != nil {
		meta.Modalities = e.Enricher.Modalities()
		for mod, name := range e.Enricher.Models() {
			meta.Models[string(mod)] = name
		}
	}
	rec, err := record.Assemble(meta, tr, recShots, enrichments)
	if err != nil {
		return fatal(StageAssemble, err)
	}

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%s: %w", StageWrite, err)
	}
	path, err := e.Writer.Write(ctx, rec)
	if err != nil {
		return fatal(StageWrite, err)
	}
	res.Record = rec
	res.RecordPath = path

	if stageDir != "" {
		committed = true
		commitKeyframes(job, stageDir, kfDir)
	}
	return nil
}

// committedKeyframe maps a staged keyframe path to where it lives once
// the staging directory is committed.
func committedKeyframe(kfDir, staged string) string {
	if staged == "" || kfDir == "" {
		return staged
	}
	return filepath.Join(kfDir, filepath.Base(staged))
}

// commitKeyframes replaces the previous keyframe directory with the
// staged one, or drops both when frames are not kept.
func commitKeyframes(job VideoJob, stageDir, kfDir string) {
	if err := os.RemoveAll(kfDir); err != nil {
		log.Warn().Err(err).Str("videoId", job.VideoID).Msg("Failed to clear previous keyframes")
	}
	if !job.Config.KeepFrames {
		removeArtifact(job.VideoID, stageDir)
		return
	}
	if err := os.Rename(stageDir, kfDir); err != nil {
		log.Warn().Err(err).Str("videoId", job.VideoID).Str("staging", stageDir).Msg("Failed to move keyframes into place")
		removeArtifact(job.VideoID, stageDir)
	}
}

// transcribe returns the transcript and the recognizer name for
// processing.models. A video without an audio track has an empty
// transcript.
func (e *Engine) transcribe(ctx context.Context, job VideoJob, media *filehandler.Media) (domain.Transcript, string, error) {
	if media.AudioPath == "" {
		log.Warn().Str("videoId", job.VideoID).Msg("Video has no audio track, transcript is empty")
		return domain.Transcript{}, domain.ModelNone, nil
	}
	if e.Transcriber == nil {
		if job.Config.AllowNoTranscript {
			return domain.Transcript{}, domain.ModelNone, nil
		}
		return domain.Transcript{}, "", errors.New("no transcriber configured")
	}

	tr, err := e.Transcriber.Transcribe(ctx, media.AudioPath, job.Config.LanguageHint)
	if err != nil {
		if ctx.Err() != nil || !job.Config.AllowNoTranscript {
			return domain.Transcript{}, "", err
		}
		log.Warn().Err(err).Str("videoId", job.VideoID).Msg("Transcription failed, continuing without transcript")
		return domain.Transcript{}, domain.ModelNone, nil
	}
	return tr, e.Transcriber.Model(), nil
}

func (e *Engine) enrich(ctx context.Context, shotList []domain.Shot, opts enrich.Options) (map[string]enrich.ShotEnrichment, enrich.Stats, error) {
	if e.Enricher == nil {
		out := make(map[string]enrich.ShotEnrichment, len(shotList))
		for _, sh := range shotList {
			out[sh.ID] = enrich.ShotEnrichment{}
		}
		return out, enrich.Stats{}, ctx.Err()
	}
	return e.Enricher.Run(ctx, shotList, opts)
}

func (e *Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func removeArtifact(videoID, path string) {
	if err := os.RemoveAll(path); err != nil {
		log.Warn().Err(err).Str("videoId", videoID).Str("path", path).Msg("Failed to remove intermediate artifact")
	}
}

func (e *Engine) emitMetrics(res *Result) {
	failed := 0.0
	if res.Err != nil {
		failed = 1
	}
	metrics.New(metrics.Namespace).
		Dimension("Status", res.Status).
		Millis("JobDurationMs", res.Duration).
		Metric("ShotCount", float64(res.Shots), metrics.UnitCount).
		Metric("WordCount", float64(res.Words), metrics.UnitCount).
		Metric("JobFailures", failed, metrics.UnitCount).
		Property("videoId", res.VideoID).
		Property("jobId", res.JobID).
		Flush()

	for mod, st := range res.Stats {
		if st.Calls == 0 {
			continue
		}
		metrics.New(metrics.Namespace).
			Dimension("Modality", string(mod)).
			Metric("EnrichCalls", float64(st.Calls), metrics.UnitCount).
			Metric("EnrichFailures", float64(st.Failures), metrics.UnitCount).
			Metric("EnrichRetries", float64(st.Retries), metrics.UnitCount).
			Millis("EnrichLatencyMs", st.Latency/time.Duration(st.Calls)).
			Property("videoId", res.VideoID).
			Flush()
	}
}

func (e *Engine) publish(ctx context.Context, res *Result) {
	if e.Notifier == nil {
		return
	}
	event := notify.VideoProcessed{
		JobID:      res.JobID,
		VideoID:    res.VideoID,
		Status:     res.Status,
		RecordPath: res.RecordPath,
		ShotCount:  res.Shots,
		DurationMs: res.Duration.Milliseconds(),
	}
	if res.Err != nil {
		event.Error = res.Err.Error()
	}
	if err := e.Notifier.Publish(context.WithoutCancel(ctx), event); err != nil {
		log.Warn().Err(err).Str("videoId", res.VideoID).Msg("Failed to publish job event")
	}
}
