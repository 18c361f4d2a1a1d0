package filehandler

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/rs/zerolog/log"
)

// Audio extraction format expected by the speech recognizers.
const (
	AudioSampleRate = 16000
	AudioChannels   = 1
)

// ExtractAudio writes the first audio track of videoPath to outPath as
// 16 kHz mono 16-bit PCM WAV.
func ExtractAudio(ctx context.Context, videoPath, outPath string) error {
	ffmpegPath, err := exec.LookPath("ffmpeg")
	if err != nil {
		return fmt.Errorf("ffmpeg not found: audio extraction requires ffmpeg: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return fmt.Errorf("create audio directory: %w", err)
	}

	args := []string{
		"-y",
		"-i", videoPath,
		"-vn",
		"-acodec", "pcm_s16le",
		"-ar", fmt.Sprint(AudioSampleRate),
		"-ac", fmt.Sprint(AudioChannels),
		outPath,
	}
	cmd := exec.CommandContext(ctx, ffmpegPath, args...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("audio extraction failed: %w\nOutput: %s", err, tail(output, 2048))
	}

	info, err := os.Stat(outPath)
	if err != nil {
		return fmt.Errorf("audio output missing after extraction: %w", err)
	}
	log.Debug().
		Str("video", filepath.Base(videoPath)).
		Str("audio", outPath).
		Int64("size_bytes", info.Size()).
		Msg("Audio extracted")
	return nil
}

// tail returns at most the last n bytes of b; ffmpeg puts the error at the
// end of a long banner.
func tail(b []byte, n int) string {
	if len(b) > n {
		b = b[len(b)-n:]
	}
	return string(b)
}
