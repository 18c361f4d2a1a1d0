package filehandler

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	"os"
	"path/filepath"

	"golang.org/x/image/draw"
)

// Keyframe encoding settings. 1280px keeps text legible for OCR while
// keeping model uploads small.
const (
	KeyframeMaxDimension = 1280
	KeyframeJPEGQuality  = 90
)

// SaveKeyframe downscales img to fit KeyframeMaxDimension and writes it as
// JPEG. The file is written to a temporary name first and renamed into
// place, so a crash never leaves a truncated keyframe.
func SaveKeyframe(img image.Image, path string) error {
	data, err := EncodeKeyframe(img, KeyframeMaxDimension)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create keyframe directory: %w", err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write keyframe: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("rename keyframe: %w", err)
	}
	return nil
}

// EncodeKeyframe returns img as JPEG, scaled so its longer side is at most
// maxDim. Images already within bounds are encoded as is.
func EncodeKeyframe(img image.Image, maxDim int) ([]byte, error) {
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	if w == 0 || h == 0 {
		return nil, fmt.Errorf("empty image")
	}

	src := img
	if maxDim > 0 && (w > maxDim || h > maxDim) {
		nw, nh := fitWithin(w, h, maxDim)
		dst := image.NewRGBA(image.Rect(0, 0, nw, nh))
		draw.CatmullRom.Scale(dst, dst.Bounds(), img, bounds, draw.Over, nil)
		src = dst
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, src, &jpeg.Options{Quality: KeyframeJPEGQuality}); err != nil {
		return nil, fmt.Errorf("encode keyframe: %w", err)
	}
	return buf.Bytes(), nil
}

// fitWithin scales (w, h) so the longer side equals maxDim, keeping aspect.
func fitWithin(w, h, maxDim int) (int, int) {
	if w >= h {
		return maxDim, max(1, h*maxDim/w)
	}
	return max(1, w*maxDim/h), maxDim
}
