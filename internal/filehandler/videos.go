package filehandler

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rs/zerolog/log"
)

// SupportedVideoExtensions maps accepted extensions to MIME types.
var SupportedVideoExtensions = map[string]string{
	".mp4":  "video/mp4",
	".mov":  "video/quicktime",
	".avi":  "video/x-msvideo",
	".webm": "video/webm",
	".mkv":  "video/x-matroska",
}

// IsVideo reports whether ext (with dot, any case) is a supported video.
func IsVideo(ext string) bool {
	_, ok := SupportedVideoExtensions[strings.ToLower(ext)]
	return ok
}

// VideoID derives the record identifier from a file name: its base name
// without extension.
func VideoID(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// ResolveInputs expands path into the videos to process. A file is returned
// as is if supported; a directory yields its supported files (not
// recursive), sorted by name.
func ResolveInputs(path string) ([]string, error) {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("input not found: %s", path)
		}
		return nil, fmt.Errorf("stat input: %w", err)
	}

	if !info.IsDir() {
		if !IsVideo(filepath.Ext(path)) {
			return nil, fmt.Errorf("unsupported video format: %s", filepath.Ext(path))
		}
		return []string{path}, nil
	}

	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, fmt.Errorf("read directory: %w", err)
	}
	var out []string
	skipped := 0
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if !IsVideo(filepath.Ext(e.Name())) {
			skipped++
			continue
		}
		out = append(out, filepath.Join(path, e.Name()))
	}
	sort.Strings(out)

	for id, paths := range DuplicateVideoIDs(out) {
		log.Warn().
			Str("videoId", id).
			Strs("files", paths).
			Msg("Files share a video id, each run overwrites the previous record")
	}

	log.Info().
		Str("path", path).
		Int("videos", len(out)).
		Int("skipped", skipped).
		Msg("Scanned input directory")
	return out, nil
}

// DuplicateVideoIDs returns the video ids that more than one path maps to,
// with the colliding paths in input order.
func DuplicateVideoIDs(paths []string) map[string][]string {
	byID := make(map[string][]string, len(paths))
	for _, p := range paths {
		id := VideoID(p)
		byID[id] = append(byID[id], p)
	}
	dups := make(map[string][]string)
	for id, ps := range byID {
		if len(ps) > 1 {
			dups[id] = ps
		}
	}
	return dups
}
