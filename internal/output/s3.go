package output

import (
	"context"
	"errors"
	"fmt"
	"path"

	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/rs/zerolog/log"

	"github.com/fpang/videointel/internal/record"
	"github.com/fpang/videointel/internal/s3util"
)

// S3Writer stores records under {Prefix}/{video_id}.json in Bucket. With
// Compress set the object is zstd-encoded and gets a .zst suffix.
type S3Writer struct {
	Client   s3util.ObjectAPI
	Bucket   string
	Prefix   string
	Compress bool
}

var (
	_ Writer = (*S3Writer)(nil)
	_ Reader = (*S3Writer)(nil)
)

// Key returns the object key for videoID.
func (w *S3Writer) Key(videoID string) string {
	key := path.Join(w.Prefix, videoID+".json")
	if w.Compress {
		key += CompressedExt
	}
	return key
}

func (w *S3Writer) Write(ctx context.Context, rec *record.VideoRecord) (string, error) {
	data, err := record.Encode(rec)
	if err != nil {
		return "", err
	}
	opts := s3util.PutOptions{ContentType: "application/json"}
	body := data
	if w.Compress {
		if body, err = compress(data); err != nil {
			return "", err
		}
		opts.ContentEncoding = "zstd"
	}

	key := w.Key(rec.VideoID)
	if err := s3util.PutBytes(ctx, w.Client, w.Bucket, key, body, opts); err != nil {
		return "", err
	}
	location := fmt.Sprintf("s3://%s/%s", w.Bucket, key)
	log.Info().
		Str("videoId", rec.VideoID).
		Str("location", location).
		Int("bytes", len(body)).
		Msg("Record uploaded")
	return location, nil
}

func (w *S3Writer) Read(ctx context.Context, videoID string) (*record.VideoRecord, error) {
	data, err := s3util.GetBytes(ctx, w.Client, w.Bucket, w.Key(videoID))
	if err != nil {
		var nsk *types.NoSuchKey
		if errors.As(err, &nsk) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, videoID)
		}
		return nil, err
	}
	if w.Compress {
		if data, err = decompress(data); err != nil {
			return nil, err
		}
	}
	return record.Decode(data)
}
