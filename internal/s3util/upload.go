package s3util

import (
	"bytes"
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog/log"
)

// PutOptions describe the stored object.
type PutOptions struct {
	ContentType     string
	ContentEncoding string
}

// PutBytes uploads data to key with the project tag. A single PutObject is
// atomic: readers see either the previous object or the new one.
func PutBytes(ctx context.Context, client ObjectAPI, bucket, key string, data []byte, opts PutOptions) error {
	in := &s3.PutObjectInput{
		Bucket:  &bucket,
		Key:     &key,
		Body:    bytes.NewReader(data),
		Tagging: ProjectTagging(),
	}
	if opts.ContentType != "" {
		in.ContentType = &opts.ContentType
	}
	if opts.ContentEncoding != "" {
		in.ContentEncoding = &opts.ContentEncoding
	}
	if _, err := client.PutObject(ctx, in); err != nil {
		return fmt.Errorf("S3 PutObject %s: %w", key, err)
	}
	log.Debug().Str("bucket", bucket).Str("key", key).Int("bytes", len(data)).Msg("Uploaded to S3")
	return nil
}
