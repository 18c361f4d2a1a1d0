// Package shots turns a stream of decoded frames into an ordered,
// gap-free sequence of shots, each with one representative keyframe.
//
// Segmentation is split in two: ComputeSignal reduces frames to a
// per-frame difference score, and Segment is a pure function from that
// signal to shots. The Segmenter type wires both to a frame source and
// stores the chosen keyframes.
package shots

import (
	"fmt"
	"math"

	"github.com/fpang/videointel/internal/domain"
)

// DefaultThreshold is the difference score above which a cut is declared.
// It corresponds to a histogram correlation of 0.92 between neighbours:
// higher catches camera pans as cuts, lower merges scenes with similar
// palettes.
const DefaultThreshold = 0.08

// KeyframePolicy selects which frame represents a shot.
type KeyframePolicy string

const (
	// KeyframeFirst picks the first frame after the boundary.
	KeyframeFirst KeyframePolicy = "first"
	// KeyframeMiddle picks the frame halfway through the shot.
	KeyframeMiddle KeyframePolicy = "middle"
	// KeyframePeak picks the frame with the highest difference score,
	// breaking ties by earliest index.
	KeyframePeak KeyframePolicy = "peak"
)

// ParseKeyframePolicy validates a policy name. Empty means KeyframeFirst.
func ParseKeyframePolicy(s string) (KeyframePolicy, error) {
	switch KeyframePolicy(s) {
	case "", KeyframeFirst:
		return KeyframeFirst, nil
	case KeyframeMiddle, KeyframePeak:
		return KeyframePolicy(s), nil
	}
	return "", fmt.Errorf("unknown keyframe policy %q (want first, middle or peak)", s)
}

// Signal is the per-frame content-difference series for one video.
// Times and Scores have equal length; Scores[0] is always 0.
type Signal struct {
	Times  []float64
	Scores []float64
}

// Len returns the number of sampled frames.
func (s Signal) Len() int {
	return len(s.Times)
}

// Options tunes Segment.
type Options struct {
	Threshold float64
	Policy    KeyframePolicy
	// MinShotS suppresses a boundary closer than this to the previous one.
	MinShotS float64
}

// Segment splits [0, durationS) into shots at every frame whose score
// exceeds opts.Threshold. The result is never empty for a non-negative
// duration: with no boundary, or with fewer than two frames, it is a single
// shot covering the whole video (zero-length when durationS rounds to 0).
func Segment(sig Signal, durationS float64, opts Options) []domain.Shot {
	if math.IsNaN(durationS) || durationS < 0 {
		return nil
	}
	end := domain.Round2(durationS)

	if sig.Len() < 2 || end == 0 {
		kf := -1
		if sig.Len() > 0 {
			kf = 0
		}
		return []domain.Shot{{ID: domain.ShotID(0), StartS: 0, EndS: end, KeyframeIndex: kf}}
	}

	// firstFrames[i] is the index of the first sampled frame of shot i.
	firstFrames := []int{0}
	starts := []float64{0}
	for i := 1; i < sig.Len(); i++ {
		if sig.Scores[i] <= opts.Threshold {
			continue
		}
		t := domain.Round2(sig.Times[i])
		prev := starts[len(starts)-1]
		if t <= prev || t >= end {
			continue
		}
		if opts.MinShotS > 0 && t-prev < opts.MinShotS {
			continue
		}
		firstFrames = append(firstFrames, i)
		starts = append(starts, t)
	}

	out := make([]domain.Shot, len(starts))
	for i := range starts {
		shotEnd := end
		lastFrame := sig.Len() - 1
		if i+1 < len(starts) {
			shotEnd = starts[i+1]
			lastFrame = firstFrames[i+1] - 1
		}
		out[i] = domain.Shot{
			ID:            domain.ShotID(i),
			StartS:        starts[i],
			EndS:          shotEnd,
			KeyframeIndex: pickKeyframe(sig, firstFrames[i], lastFrame, opts.Policy),
		}
	}
	return out
}

func pickKeyframe(sig Signal, first, last int, policy KeyframePolicy) int {
	switch policy {
	case KeyframeMiddle:
		return first + (last-first)/2
	case KeyframePeak:
		best := first
		for i := first + 1; i <= last; i++ {
			if sig.Scores[i] > sig.Scores[best] {
				best = i
			}
		}
		return best
	default:
		return first
	}
}

// Fallback is the single whole-video shot used when no frame could be
// decoded. It has no keyframe.
func Fallback(durationS float64) []domain.Shot {
	if math.IsNaN(durationS) || durationS < 0 {
		return nil
	}
	return []domain.Shot{{ID: domain.ShotID(0), StartS: 0, EndS: domain.Round2(durationS), KeyframeIndex: -1}}
}
