// Package output persists finished video records. Writers replace any
// previous record for the same video atomically, so a re-run never leaves a
// partial file behind.
package output

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/klauspost/compress/zstd"

	"github.com/fpang/videointel/internal/record"
)

// ErrNotFound is returned by Read when no record exists for the video.
var ErrNotFound = errors.New("record not found")

// Writer stores a validated record and returns where it went.
type Writer interface {
	Write(ctx context.Context, rec *record.VideoRecord) (string, error)
}

// Reader loads a stored record by video ID.
type Reader interface {
	Read(ctx context.Context, videoID string) (*record.VideoRecord, error)
}

// CompressedExt is appended to the record file name when compression is on.
const CompressedExt = ".zst"

var (
	encoderOnce sync.Once
	encoder     *zstd.Encoder
	decoderOnce sync.Once
	decoder     *zstd.Decoder
)

// compress zstd-encodes data. EncodeAll is safe for concurrent use.
func compress(data []byte) ([]byte, error) {
	var err error
	encoderOnce.Do(func() {
		encoder, err = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedBetterCompression))
	})
	if err != nil {
		return nil, fmt.Errorf("create zstd encoder: %w", err)
	}
	if encoder == nil {
		return nil, errors.New("zstd encoder unavailable")
	}
	return encoder.EncodeAll(data, make([]byte, 0, len(data)/4)), nil
}

func decompress(data []byte) ([]byte, error) {
	var err error
	decoderOnce.Do(func() {
		decoder, err = zstd.NewReader(nil)
	})
	if err != nil {
		return nil, fmt.Errorf("create zstd decoder: %w", err)
	}
	if decoder == nil {
		return nil, errors.New("zstd decoder unavailable")
	}
	out, err := decoder.DecodeAll(data, nil)
	if err != nil {
		return nil, fmt.Errorf("zstd decode: %w", err)
	}
	return out, nil
}
