// Package main provides the Lambda entry point that turns uploaded videos
// into records.
//
// The Lambda is triggered by S3 ObjectCreated events on the video bucket.
// For each supported video it downloads the object to /tmp, runs the
// pipeline, uploads {RECORD_PREFIX}/{video_id}.json, tracks the job in
// DynamoDB, and publishes a VideoProcessed event.
//
// Container: Heavy (ffmpeg and whisper.cpp)
// Memory: 4 GB
// Timeout: 15 minutes
package main

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"github.com/rs/zerolog/log"

	"github.com/fpang/videointel/internal/config"
	"github.com/fpang/videointel/internal/filehandler"
	"github.com/fpang/videointel/internal/fusion"
	"github.com/fpang/videointel/internal/jobs"
	"github.com/fpang/videointel/internal/lambdaboot"
	"github.com/fpang/videointel/internal/logging"
	"github.com/fpang/videointel/internal/output"
	"github.com/fpang/videointel/internal/pipeline"
	"github.com/fpang/videointel/internal/s3util"
)

const defaultRecordPrefix = "records"

var coldStart = true

// Initialized at cold start.
var (
	s3Client     s3util.ObjectAPI
	recordPrefix string
	engine       *fusion.Engine
	jobCfg       fusion.JobConfig
)

func init() {
	initStart := time.Now()
	logging.Init("", "json")

	cfg, err := config.Load("")
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}
	// Lambda can only write to /tmp, and nothing there outlives the
	// invocation.
	cfg.OutputDir = filepath.Join(os.TempDir(), "videointel")
	cfg.FramesDir = ""
	cfg.WorkDir = ""
	cfg.KeepFrames = false
	cfg.KeepAudio = false
	cfg.Resolve()
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}

	awsClients := lambdaboot.InitAWS()
	s3s := lambdaboot.InitS3(awsClients.Config, "VIDEO_BUCKET_NAME")
	s3Client = s3s.Client
	ledger := lambdaboot.InitDynamo(awsClients.Config, "JOBS_TABLE_NAME")
	notifier := lambdaboot.InitEventBridge(awsClients.Config, "EVENT_BUS_NAME")

	recordPrefix = os.Getenv("RECORD_PREFIX")
	if recordPrefix == "" {
		recordPrefix = defaultRecordPrefix
	}

	client, err := pipeline.OpenGemini(context.Background(), cfg, func() (string, error) {
		return lambdaboot.FetchGeminiKey(context.Background(), awsClients.SSM)
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create Gemini client")
	}

	engine, err = pipeline.Build(cfg, pipeline.Deps{
		Writer: &output.S3Writer{
			Client:   s3s.Client,
			Bucket:   s3s.Bucket,
			Prefix:   recordPrefix,
			Compress: cfg.Compress,
		},
		Ledger:   ledger,
		Notifier: notifier,
		Gemini:   client,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to build pipeline")
	}
	jobCfg = pipeline.JobConfig(cfg, cfg.OutputDir)

	lambdaboot.StartupLog("ingest-lambda", initStart).
		S3Bucket("videoBucket", s3s.Bucket).
		DynamoTable("jobs", os.Getenv("JOBS_TABLE_NAME")).
		Config("recordPrefix", recordPrefix).
		Config("asr", cfg.ASR).
		Config("modalities", strings.Join(cfg.Modalities, ",")).
		Feature("gemini", client != nil).
		Log()
}

func main() {
	lambda.Start(handler)
}

func handler(ctx context.Context, s3Event events.S3Event) error {
	if coldStart {
		coldStart = false
		log.Info().Str("function", "ingest-lambda").Msg("Cold start, first invocation")
	}

	for _, rec := range s3Event.Records {
		bucket := rec.S3.Bucket.Name
		key, err := url.QueryUnescape(strings.ReplaceAll(rec.S3.Object.Key, "+", " "))
		if err != nil {
			log.Error().Err(err).Str("key", rec.S3.Object.Key).Msg("Malformed object key")
			continue
		}
		if err := processObject(ctx, bucket, key); err != nil {
			// Other videos in the batch still run; the ledger holds the failure.
			log.Error().Err(err).Str("bucket", bucket).Str("key", key).Msg("Failed to process video")
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
	return nil
}

// skipKey reports why key should not be processed, or "" to process it.
func skipKey(key, prefix string) string {
	if strings.HasPrefix(key, strings.TrimSuffix(prefix, "/")+"/") {
		return "record output"
	}
	if strings.HasSuffix(key, "/") {
		return "folder marker"
	}
	if !filehandler.IsVideo(path.Ext(key)) {
		return "unsupported extension"
	}
	return ""
}

func processObject(ctx context.Context, bucket, key string) error {
	if reason := skipKey(key, recordPrefix); reason != "" {
		log.Debug().Str("key", key).Str("reason", reason).Msg("Skipping object")
		return nil
	}

	localPath, cleanup, err := s3util.DownloadToTempDir(ctx, s3Client, bucket, key)
	if err != nil {
		return fmt.Errorf("download: %w", err)
	}
	defer cleanup()

	job := fusion.VideoJob{
		ID:       jobs.NewID(),
		VideoID:  filehandler.VideoID(key),
		Path:     localPath,
		Source:   fmt.Sprintf("s3://%s/%s", bucket, key),
		Filename: path.Base(key),
		Config:   jobCfg,
	}
	res, err := engine.Process(ctx, job)
	if err != nil {
		return err
	}
	log.Info().
		Str("jobId", res.JobID).
		Str("videoId", res.VideoID).
		Str("record", res.RecordPath).
		Int("shots", res.Shots).
		Dur("duration", res.Duration).
		Msg("Video processed")
	return nil
}
