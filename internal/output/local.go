package output

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"

	"github.com/fpang/videointel/internal/record"
)

// LocalWriter writes {Dir}/{video_id}.json. With Compress set it also
// writes a zstd copy next to it.
type LocalWriter struct {
	Dir      string
	Compress bool
}

var (
	_ Writer = (*LocalWriter)(nil)
	_ Reader = (*LocalWriter)(nil)
)

// Path returns the record path for videoID.
func (w *LocalWriter) Path(videoID string) string {
	return filepath.Join(w.Dir, videoID+".json")
}

func (w *LocalWriter) Write(ctx context.Context, rec *record.VideoRecord) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	data, err := record.Encode(rec)
	if err != nil {
		return "", err
	}
	var packed []byte
	if w.Compress {
		if packed, err = compress(data); err != nil {
			return "", err
		}
	}
	if err := os.MkdirAll(w.Dir, 0o755); err != nil {
		return "", fmt.Errorf("create output directory: %w", err)
	}

	// Both files are staged before either is renamed, so a failed compressed
	// write leaves the previous plain record in place.
	path := w.Path(rec.VideoID)
	plain, err := stageFile(path, data)
	if err != nil {
		return "", err
	}
	if w.Compress {
		zst, err := stageFile(path+CompressedExt, packed)
		if err != nil {
			plain.discard()
			return "", err
		}
		if err := zst.commit(); err != nil {
			plain.discard()
			return "", err
		}
	}
	if err := plain.commit(); err != nil {
		return "", err
	}

	log.Info().
		Str("videoId", rec.VideoID).
		Str("path", path).
		Int("bytes", len(data)).
		Bool("compressed", w.Compress).
		Msg("Record written")
	return path, nil
}

func (w *LocalWriter) Read(ctx context.Context, videoID string) (*record.VideoRecord, error) {
	path := w.Path(videoID)
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		packed, zerr := os.ReadFile(path + CompressedExt)
		if errors.Is(zerr, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, videoID)
		}
		if zerr != nil {
			return nil, fmt.Errorf("read record: %w", zerr)
		}
		if data, err = decompress(packed); err != nil {
			return nil, err
		}
	} else if err != nil {
		return nil, fmt.Errorf("read record: %w", err)
	}
	return record.Decode(data)
}

// stagedFile is a fully written and synced temporary file waiting to be
// renamed over path. Readers see the old file or the new one, never a mix.
type stagedFile struct {
	tmp  string
	path string
}

// stageFile writes data to a temporary file in the directory of path.
func stageFile(path string, data []byte) (stagedFile, error) {
	dir, base := filepath.Split(path)
	if dir == "" {
		dir = "."
	}
	tmp, err := os.CreateTemp(dir, "."+base+".tmp-*")
	if err != nil {
		return stagedFile{}, fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	fail := func(err error) (stagedFile, error) {
		tmp.Close()
		os.Remove(tmpName)
		return stagedFile{}, err
	}

	if _, err := tmp.Write(data); err != nil {
		return fail(fmt.Errorf("write %s: %w", path, err))
	}
	if err := tmp.Sync(); err != nil {
		return fail(fmt.Errorf("sync %s: %w", path, err))
	}
	if err := tmp.Chmod(0o644); err != nil {
		return fail(fmt.Errorf("chmod %s: %w", path, err))
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return stagedFile{}, fmt.Errorf("close %s: %w", path, err)
	}
	return stagedFile{tmp: tmpName, path: path}, nil
}

func (s stagedFile) commit() error {
	if err := os.Rename(s.tmp, s.path); err != nil {
		os.Remove(s.tmp)
		return fmt.Errorf("rename into %s: %w", s.path, err)
	}
	return nil
}

func (s stagedFile) discard() {
	os.Remove(s.tmp)
}
