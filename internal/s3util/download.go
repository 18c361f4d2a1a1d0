// Package s3util holds the S3 helpers shared by the Lambda entry points and
// the record writer.
package s3util

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog/log"
)

// ObjectAPI is the subset of *s3.Client used here.
type ObjectAPI interface {
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// DownloadToFile downloads an object to localPath, creating parent
// directories as needed.
func DownloadToFile(ctx context.Context, client ObjectAPI, bucket, key, localPath string) error {
	log.Debug().Str("bucket", bucket).Str("key", key).Str("localPath", localPath).Msg("Downloading from S3")
	result, err := client.GetObject(ctx, &s3.GetObjectInput{Bucket: &bucket, Key: &key})
	if err != nil {
		return fmt.Errorf("S3 GetObject: %w", err)
	}
	defer result.Body.Close()

	if err := os.MkdirAll(filepath.Dir(localPath), 0o755); err != nil {
		return fmt.Errorf("create directory: %w", err)
	}
	f, err := os.Create(localPath)
	if err != nil {
		return fmt.Errorf("create file: %w", err)
	}
	if _, err := io.Copy(f, result.Body); err != nil {
		f.Close()
		os.Remove(localPath)
		return fmt.Errorf("download: %w", err)
	}
	return f.Close()
}

// DownloadToTempDir downloads an object into a fresh temporary directory,
// keeping the key's base name so the file stem survives. cleanup removes
// the directory.
func DownloadToTempDir(ctx context.Context, client ObjectAPI, bucket, key string) (string, func(), error) {
	dir, err := os.MkdirTemp("", "s3dl-*")
	if err != nil {
		return "", nil, fmt.Errorf("create temp dir: %w", err)
	}
	cleanup := func() { os.RemoveAll(dir) }

	localPath := filepath.Join(dir, filepath.Base(key))
	if err := DownloadToFile(ctx, client, bucket, key, localPath); err != nil {
		cleanup()
		return "", nil, err
	}
	return localPath, cleanup, nil
}

// GetBytes reads a whole object into memory.
func GetBytes(ctx context.Context, client ObjectAPI, bucket, key string) ([]byte, error) {
	result, err := client.GetObject(ctx, &s3.GetObjectInput{Bucket: &bucket, Key: &key})
	if err != nil {
		return nil, fmt.Errorf("S3 GetObject: %w", err)
	}
	defer result.Body.Close()
	data, err := io.ReadAll(result.Body)
	if err != nil {
		return nil, fmt.Errorf("read object: %w", err)
	}
	return data, nil
}
