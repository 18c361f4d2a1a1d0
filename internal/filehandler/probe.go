// Package filehandler is the media side of the pipeline: it probes video
// containers, extracts the mono audio track, decodes frames for shot
// detection, and stores keyframe images.
//
// Probing and audio extraction shell out to ffprobe/ffmpeg. Frame decoding
// goes through Vidio, which drives ffmpeg over a pipe and hands back raw
// RGBA buffers.
package filehandler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"
)

// ErrUnreadableMedia is returned when the container or codec cannot be
// decoded. Callers treat it as fatal for the video.
var ErrUnreadableMedia = errors.New("unreadable media")

// VideoInfo is what the pipeline needs from a container probe.
type VideoInfo struct {
	DurationS  float64
	FrameRate  float64
	Width      int
	Height     int
	Codec      string
	HasAudio   bool
	AudioCodec string
	AudioRate  int
}

type ffprobeOutput struct {
	Format  ffprobeFormat   `json:"format"`
	Streams []ffprobeStream `json:"streams"`
}

type ffprobeFormat struct {
	Duration   string `json:"duration"`
	FormatName string `json:"format_name"`
}

type ffprobeStream struct {
	CodecName  string `json:"codec_name"`
	CodecType  string `json:"codec_type"`
	Width      int    `json:"width"`
	Height     int    `json:"height"`
	RFrameRate string `json:"r_frame_rate"`
	Duration   string `json:"duration"`
	SampleRate string `json:"sample_rate"`
}

// CheckTool returns an error naming the missing binary and how to install it.
func CheckTool(name string) error {
	path, err := exec.LookPath(name)
	if err != nil {
		return fmt.Errorf("%s not found in PATH. Install FFmpeg with: brew install ffmpeg (macOS) or apt install ffmpeg (Linux)", name)
	}
	log.Debug().Str("tool", name).Str("path", path).Msg("Tool found")
	return nil
}

// Probe reads stream and container metadata with ffprobe.
func Probe(ctx context.Context, path string) (*VideoInfo, error) {
	ffprobePath, err := exec.LookPath("ffprobe")
	if err != nil {
		return nil, fmt.Errorf("ffprobe not found in PATH: %w", err)
	}

	cmd := exec.CommandContext(ctx, ffprobePath,
		"-v", "quiet",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		path,
	)
	out, err := cmd.Output()
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: ffprobe %s: %v", ErrUnreadableMedia, path, err)
	}

	info, err := parseProbe(out)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrUnreadableMedia, path, err)
	}

	log.Debug().
		Str("path", path).
		Float64("duration_s", info.DurationS).
		Float64("frame_rate", info.FrameRate).
		Int("width", info.Width).
		Int("height", info.Height).
		Str("codec", info.Codec).
		Bool("has_audio", info.HasAudio).
		Msg("Video probed")
	return info, nil
}

// parseProbe interprets ffprobe JSON. A file without a video stream is
// rejected.
func parseProbe(data []byte) (*VideoInfo, error) {
	var probe ffprobeOutput
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, fmt.Errorf("parse ffprobe output: %w", err)
	}

	info := &VideoInfo{}
	hasVideo := false
	var streamDuration float64
	for _, s := range probe.Streams {
		switch s.CodecType {
		case "video":
			if hasVideo {
				continue
			}
			hasVideo = true
			info.Width, info.Height = s.Width, s.Height
			info.Codec = s.CodecName
			info.FrameRate = parseFrameRate(s.RFrameRate)
			streamDuration, _ = strconv.ParseFloat(s.Duration, 64)
		case "audio":
			if info.HasAudio {
				continue
			}
			info.HasAudio = true
			info.AudioCodec = s.CodecName
			info.AudioRate, _ = strconv.Atoi(s.SampleRate)
		}
	}
	if !hasVideo {
		return nil, errors.New("no video stream")
	}

	if d, err := strconv.ParseFloat(probe.Format.Duration, 64); err == nil && d >= 0 {
		info.DurationS = d
	} else {
		info.DurationS = streamDuration
	}
	return info, nil
}

// parseFrameRate parses ffprobe's rational frame rate ("30000/1001").
func parseFrameRate(value string) float64 {
	num, den, ok := strings.Cut(value, "/")
	if ok {
		n, _ := strconv.ParseFloat(num, 64)
		d, _ := strconv.ParseFloat(den, 64)
		if d != 0 {
			return n / d
		}
		return 0
	}
	rate, _ := strconv.ParseFloat(value, 64)
	return rate
}
