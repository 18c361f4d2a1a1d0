package filehandler

import (
	"context"
	"fmt"
	"image"
	"math"

	vidio "github.com/AlexEidt/Vidio"

	"github.com/fpang/videointel/internal/domain"
)

// Frame sampling rates for shot detection. Cuts are visible at a few frames
// per second, so long videos are sampled more sparsely.
const (
	SampleFPSShort  = 10.0 // up to one minute
	SampleFPSMedium = 5.0  // up to ten minutes
	SampleFPSLong   = 2.0

	fallbackFPS = 25.0
)

// DetermineSampleFPS picks a sampling rate from the video duration, never
// above the source frame rate.
func DetermineSampleFPS(originalFPS, durationS float64) float64 {
	var rate float64
	switch {
	case durationS <= 60:
		rate = SampleFPSShort
	case durationS <= 600:
		rate = SampleFPSMedium
	default:
		rate = SampleFPSLong
	}
	if originalFPS > 0 && originalFPS < rate {
		return originalFPS
	}
	return rate
}

// sampleStride returns how many decoded frames to advance per sample.
func sampleStride(sourceFPS, sampleFPS float64) int {
	if sampleFPS <= 0 || sourceFPS <= sampleFPS {
		return 1
	}
	return max(1, int(math.Round(sourceFPS/sampleFPS)))
}

// VideoFrames is a re-openable frame source over one video file.
type VideoFrames struct {
	Path string
	// SampleFPS is the target sampling rate; 0 reads every frame.
	SampleFPS float64
}

var _ domain.FrameSource = (*VideoFrames)(nil)

// Frames starts a new decoding pass. The image in each Frame is reused by
// the next call to Next.
func (v *VideoFrames) Frames(ctx context.Context) (domain.FrameIterator, error) {
	video, err := vidio.NewVideo(v.Path)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %v", ErrUnreadableMedia, v.Path, err)
	}
	if video.Width() <= 0 || video.Height() <= 0 {
		video.Close()
		return nil, fmt.Errorf("%w: %s has no decodable video stream", ErrUnreadableMedia, v.Path)
	}

	img := image.NewRGBA(image.Rect(0, 0, video.Width(), video.Height()))
	if err := video.SetFrameBuffer(img.Pix); err != nil {
		video.Close()
		return nil, fmt.Errorf("set frame buffer: %w", err)
	}

	fps := video.FPS()
	if fps <= 0 {
		fps = fallbackFPS
	}
	return &vidioIterator{
		ctx:    ctx,
		video:  video,
		img:    img,
		fps:    fps,
		stride: sampleStride(fps, v.SampleFPS),
		expect: video.Frames(),
	}, nil
}

type vidioIterator struct {
	ctx    context.Context
	video  *vidio.Video
	img    *image.RGBA
	fps    float64
	stride int
	expect int

	decoded int
	sampled int
	cur     domain.Frame
	err     error
	closed  bool
}

func (it *vidioIterator) Next() bool {
	if it.closed || it.err != nil {
		return false
	}
	for {
		if err := it.ctx.Err(); err != nil {
			it.err = err
			return false
		}
		if !it.video.Read() {
			if it.decoded == 0 && it.expect > 0 {
				it.err = fmt.Errorf("%w: decoder produced no frames", ErrUnreadableMedia)
			}
			return false
		}
		n := it.decoded
		it.decoded++
		if n%it.stride != 0 {
			continue
		}
		it.cur = domain.Frame{Index: it.sampled, TimeS: float64(n) / it.fps, Image: it.img}
		it.sampled++
		return true
	}
}

func (it *vidioIterator) Frame() domain.Frame { return it.cur }

func (it *vidioIterator) Err() error { return it.err }

func (it *vidioIterator) Close() error {
	if !it.closed {
		it.closed = true
		it.video.Close()
	}
	return nil
}
