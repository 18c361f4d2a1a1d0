package shots

import (
	"image"
	"math"
)

// HistogramBins is the number of bins per RGB channel. 32 bins is coarse
// enough to ignore sensor noise and mild lighting drift while still
// separating scenes with different palettes.
const HistogramBins = 32

// pixelStride samples every Nth pixel on each axis. Full-resolution
// histograms give the same cut decisions at a fraction of the speed.
const pixelStride = 2

// ColorHistogram is a normalized 3D RGB histogram stored flat:
// index = r*B*B + g*B + b with B = HistogramBins.
type ColorHistogram struct {
	Bins   [HistogramBins * HistogramBins * HistogramBins]float64
	Pixels int
}

func binIndex(r8, g8, b8 uint8) int {
	const shift = 3 // 256 / HistogramBins == 8
	return int(r8>>shift)*HistogramBins*HistogramBins + int(g8>>shift)*HistogramBins + int(b8>>shift)
}

// ComputeHistogram builds a normalized color histogram for img. *image.RGBA
// (what the frame decoder hands out) is read straight from its pixel buffer.
func ComputeHistogram(img image.Image) *ColorHistogram {
	hist := &ColorHistogram{}
	bounds := img.Bounds()

	if rgba, ok := img.(*image.RGBA); ok {
		for y := bounds.Min.Y; y < bounds.Max.Y; y += pixelStride {
			row := rgba.Pix[(y-rgba.Rect.Min.Y)*rgba.Stride:]
			for x := bounds.Min.X; x < bounds.Max.X; x += pixelStride {
				off := (x - rgba.Rect.Min.X) * 4
				hist.Bins[binIndex(row[off], row[off+1], row[off+2])]++
				hist.Pixels++
			}
		}
	} else {
		for y := bounds.Min.Y; y < bounds.Max.Y; y += pixelStride {
			for x := bounds.Min.X; x < bounds.Max.X; x += pixelStride {
				r, g, b, _ := img.At(x, y).RGBA()
				hist.Bins[binIndex(uint8(r>>8), uint8(g>>8), uint8(b>>8))]++
				hist.Pixels++
			}
		}
	}

	if hist.Pixels > 0 {
		total := float64(hist.Pixels)
		for i := range hist.Bins {
			hist.Bins[i] /= total
		}
	}
	return hist
}

// Correlation returns the Pearson correlation of two histograms in [-1, 1].
// Two flat (uniform) histograms are treated as identical.
func Correlation(h1, h2 *ColorHistogram) float64 {
	n := float64(len(h1.Bins))

	var mean1, mean2 float64
	for i := range h1.Bins {
		mean1 += h1.Bins[i]
		mean2 += h2.Bins[i]
	}
	mean1 /= n
	mean2 /= n

	var num, den1, den2 float64
	for i := range h1.Bins {
		d1 := h1.Bins[i] - mean1
		d2 := h2.Bins[i] - mean2
		num += d1 * d2
		den1 += d1 * d1
		den2 += d2 * d2
	}

	den := math.Sqrt(den1 * den2)
	if den < 1e-10 {
		return 1.0
	}
	return num / den
}

// Difference converts correlation into a content-difference score in [0, 2]:
// 0 for identical frames, growing as the palettes diverge.
func Difference(h1, h2 *ColorHistogram) float64 {
	return 1 - Correlation(h1, h2)
}
