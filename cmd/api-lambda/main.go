// Package main provides the Lambda entry point for the read-only job API.
//
// It serves job status from the DynamoDB ledger and records from the video
// bucket behind API Gateway (HTTP API, payload v2). Submission is not
// exposed here: videos are ingested by uploading them to the bucket.
//
// Container: Light
// Memory: 256 MB
// Timeout: 30 seconds
package main

import (
	"os"
	"time"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/awslabs/aws-lambda-go-api-proxy/httpadapter"
	"github.com/rs/zerolog/log"

	"github.com/fpang/videointel/internal/api"
	"github.com/fpang/videointel/internal/config"
	"github.com/fpang/videointel/internal/lambdaboot"
	"github.com/fpang/videointel/internal/logging"
	"github.com/fpang/videointel/internal/output"
)

// commitHash is set at build time with -ldflags "-X main.commitHash=...".
var commitHash = "dev"

var adapter *httpadapter.HandlerAdapterV2

func init() {
	initStart := time.Now()
	logging.Init("", "json")

	cfg, err := config.Load("")
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}

	awsClients := lambdaboot.InitAWS()
	s3s := lambdaboot.InitS3(awsClients.Config, "VIDEO_BUCKET_NAME")
	ledger := lambdaboot.InitDynamo(awsClients.Config, "JOBS_TABLE_NAME")

	prefix := os.Getenv("RECORD_PREFIX")
	if prefix == "" {
		prefix = "records"
	}
	records := &output.S3Writer{
		Client:   s3s.Client,
		Bucket:   s3s.Bucket,
		Prefix:   prefix,
		Compress: cfg.Compress,
	}

	router := api.NewRouter(api.ServerConfig{
		Jobs:      ledger,
		Records:   records,
		Version:   commitHash,
		StartTime: initStart,
	})
	adapter = httpadapter.NewV2(router)

	lambdaboot.StartupLog("api-lambda", initStart).
		CommitHash(commitHash).
		S3Bucket("videoBucket", s3s.Bucket).
		DynamoTable("jobs", os.Getenv("JOBS_TABLE_NAME")).
		Config("recordPrefix", prefix).
		Log()
}

func main() {
	lambda.Start(adapter.ProxyWithContext)
}
