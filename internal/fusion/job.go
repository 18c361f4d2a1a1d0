// Package fusion runs one video through the whole pipeline: extraction,
// shot segmentation and transcription in parallel, per-shot enrichment,
// record assembly, and persistence. It is the only place where the
// results of independent stages are joined.
package fusion

import (
	"fmt"
	"path/filepath"

	"github.com/fpang/videointel/internal/filehandler"
	"github.com/fpang/videointel/internal/jobs"
)

// Stage names a pipeline step, used in errors, logs, and metrics.
type Stage string

const (
	StageExtract    Stage = "extract"
	StageSegment    Stage = "segment"
	StageTranscribe Stage = "transcribe"
	StageEnrich     Stage = "enrich"
	StageAssemble   Stage = "assemble"
	StageWrite      Stage = "write"
)

// FatalJobError aborts a video. No record is written for it.
type FatalJobError struct {
	VideoID string
	Stage   Stage
	Err     error
}

func (e *FatalJobError) Error() string {
	return fmt.Sprintf("video %s failed at %s: %v", e.VideoID, e.Stage, e.Err)
}

func (e *FatalJobError) Unwrap() error { return e.Err }

// JobConfig holds the per-run settings shared by every video of a batch.
type JobConfig struct {
	// LanguageHint is passed to the recognizer and used when it reports no
	// language.
	LanguageHint string
	NumCaptions  int
	// FramesDir receives keyframes under <FramesDir>/<video_id>/.
	FramesDir string
	// WorkDir receives the extracted audio.
	WorkDir string
	// RecordRoot is the directory keyframe paths in the record are
	// relative to. Empty keeps paths as stored.
	RecordRoot string

	KeepFrames bool
	KeepAudio  bool
	// AllowNoTranscript turns a recognizer failure into an empty
	// transcript instead of a failed job.
	AllowNoTranscript bool
}

// VideoJob is one video to process. All job state lives here and in the
// engine call processing it.
type VideoJob struct {
	ID      string
	VideoID string
	// Path is the local video file.
	Path string
	// Source is where the video came from, recorded in the ledger; it
	// defaults to Path.
	Source   string
	Filename string
	Config   JobConfig
}

// NewJob builds a job for the video at path with a fresh ID.
func NewJob(path string, cfg JobConfig) VideoJob {
	return VideoJob{
		ID:       jobs.NewID(),
		VideoID:  filehandler.VideoID(path),
		Path:     path,
		Source:   path,
		Filename: filepath.Base(path),
		Config:   cfg,
	}
}

func (j VideoJob) keyframeDir() string {
	if j.Config.FramesDir == "" {
		return ""
	}
	return filepath.Join(j.Config.FramesDir, j.VideoID)
}

func (j VideoJob) audioPath() string {
	dir := j.Config.WorkDir
	if dir == "" {
		dir = filepath.Dir(j.Path)
	}
	return filepath.Join(dir, j.VideoID+".wav")
}

// recordKeyframe converts a stored keyframe path to its record form.
func (j VideoJob) recordKeyframe(path string) string {
	if path == "" || j.Config.RecordRoot == "" {
		return filepath.ToSlash(path)
	}
	abs, err1 := filepath.Abs(path)
	root, err2 := filepath.Abs(j.Config.RecordRoot)
	if err1 != nil || err2 != nil {
		return filepath.ToSlash(path)
	}
	rel, err := filepath.Rel(root, abs)
	if err != nil {
		return filepath.ToSlash(path)
	}
	return filepath.ToSlash(rel)
}
