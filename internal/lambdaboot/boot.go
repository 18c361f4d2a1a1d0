// Package lambdaboot holds the cold-start bootstrap shared by the Lambda
// binaries: AWS config, S3, DynamoDB, EventBridge, the Gemini key from SSM,
// and startup logging. Each Lambda's init() is a short composition of
// these helpers.
package lambdaboot

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/eventbridge"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/rs/zerolog/log"

	"github.com/fpang/videointel/internal/logging"
	"github.com/fpang/videointel/internal/notify"
	"github.com/fpang/videointel/internal/store"
)

// DefaultGeminiKeyParam is read when SSM_API_KEY_PARAM is unset.
const DefaultGeminiKeyParam = "/videointel/prod/gemini-api-key"

// AWSClients holds the core AWS SDK clients used across Lambdas.
type AWSClients struct {
	Config aws.Config
	SSM    *ssm.Client
}

// S3Clients holds the S3 client and the bucket it targets.
type S3Clients struct {
	Client *s3.Client
	Bucket string
}

// InitAWS loads the default AWS config and returns it along with common clients.
func InitAWS() AWSClients {
	cfg, err := awsconfig.LoadDefaultConfig(context.Background())
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load AWS config")
	}
	log.Debug().Str("region", cfg.Region).Msg("AWS config loaded")
	return AWSClients{
		Config: cfg,
		SSM:    ssm.NewFromConfig(cfg),
	}
}

// InitS3 creates an S3 client for the bucket named by bucketEnvVar. Fatals
// if the variable is empty.
func InitS3(cfg aws.Config, bucketEnvVar string) S3Clients {
	bucket := os.Getenv(bucketEnvVar)
	if bucket == "" {
		log.Fatal().Str("envVar", bucketEnvVar).Msg("Bucket environment variable is required")
	}
	return S3Clients{Client: s3.NewFromConfig(cfg), Bucket: bucket}
}

// InitDynamo creates the job ledger for the table named by tableEnvVar.
// Fatals if the variable is empty.
func InitDynamo(cfg aws.Config, tableEnvVar string) *store.DynamoStore {
	tableName := os.Getenv(tableEnvVar)
	if tableName == "" {
		log.Fatal().Str("envVar", tableEnvVar).Msg("DynamoDB table environment variable is required")
	}
	return store.NewDynamoStore(dynamodb.NewFromConfig(cfg), tableName)
}

// InitEventBridge returns a publisher for the bus named by busEnvVar, or a
// log-only publisher when the variable is unset.
func InitEventBridge(cfg aws.Config, busEnvVar string) notify.Publisher {
	bus := os.Getenv(busEnvVar)
	if bus == "" {
		log.Warn().Str("envVar", busEnvVar).Msg("Event bus not set, job events are logged only")
		return notify.LogPublisher{}
	}
	return &notify.EventBridgePublisher{Client: eventbridge.NewFromConfig(cfg), BusName: bus}
}

// ParameterAPI is the subset of the SSM client used to read secrets.
type ParameterAPI interface {
	GetParameter(ctx context.Context, in *ssm.GetParameterInput, optFns ...func(*ssm.Options)) (*ssm.GetParameterOutput, error)
}

// FetchGeminiKey returns GEMINI_API_KEY if set, else the decrypted value of
// the SSM parameter named by SSM_API_KEY_PARAM (default
// DefaultGeminiKeyParam).
func FetchGeminiKey(ctx context.Context, client ParameterAPI) (string, error) {
	if key := os.Getenv("GEMINI_API_KEY"); key != "" {
		return key, nil
	}
	paramName := os.Getenv("SSM_API_KEY_PARAM")
	if paramName == "" {
		paramName = DefaultGeminiKeyParam
	}
	start := time.Now()
	result, err := client.GetParameter(ctx, &ssm.GetParameterInput{
		Name:           &paramName,
		WithDecryption: aws.Bool(true),
	})
	if err != nil {
		return "", fmt.Errorf("read %s: %w", paramName, err)
	}
	if result.Parameter == nil || aws.ToString(result.Parameter.Value) == "" {
		return "", fmt.Errorf("parameter %s is empty", paramName)
	}
	log.Debug().Str("param", paramName).Dur("elapsed", time.Since(start)).Msg("Gemini API key loaded from SSM")
	return aws.ToString(result.Parameter.Value), nil
}

// LoadGeminiKey is FetchGeminiKey for init(): it exports the key as
// GEMINI_API_KEY and fatals on error.
func LoadGeminiKey(client ParameterAPI) {
	key, err := FetchGeminiKey(context.Background(), client)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load Gemini API key")
	}
	os.Setenv("GEMINI_API_KEY", key)
}

// StartupLog is a convenience wrapper for the startup logger.
func StartupLog(name string, initStart time.Time) *logging.StartupLogger {
	return logging.NewStartupLogger(name).InitDuration(time.Since(initStart))
}
