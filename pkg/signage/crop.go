package signage

import (
	"image"
	"image/draw"
	"math"

	"github.com/teslashibe/go-wayfinder/pkg/detection"
)

// CropRect maps a model-space box back to frame pixels. The model square is
// scaled uniformly to cover the frame and centered, so the larger scale factor
// applies and the overflow is split evenly on both sides.
func CropRect(frame image.Rectangle, box detection.Box, modelSize float64) (image.Rectangle, bool) {
	fw, fh := float64(frame.Dx()), float64(frame.Dy())
	if modelSize <= 0 || fw <= 0 || fh <= 0 {
		return image.Rectangle{}, false
	}
	scale := math.Max(fw/modelSize, fh/modelSize)
	offX := (fw - modelSize*scale) / 2
	offY := (fh - modelSize*scale) / 2

	px := func(v, off, limit float64) int {
		return int(math.Max(0, math.Min(limit, off+v*scale)))
	}
	l := px(box.Left, offX, fw)
	t := px(box.Top, offY, fh)
	r := px(box.Right, offX, fw)
	b := px(box.Bottom, offY, fh)
	if r <= l || b <= t {
		return image.Rectangle{}, false
	}
	return image.Rect(l, t, r, b).Add(frame.Min), true
}

type subImager interface {
	SubImage(r image.Rectangle) image.Image
}

// Crop cuts the region of a model-space box out of the frame.
func Crop(frame image.Image, box detection.Box, modelSize float64) (image.Image, bool) {
	if frame == nil {
		return nil, false
	}
	r, ok := CropRect(frame.Bounds(), box, modelSize)
	if !ok {
		return nil, false
	}
	if s, ok := frame.(subImager); ok {
		return s.SubImage(r), true
	}
	dst := image.NewRGBA(image.Rect(0, 0, r.Dx(), r.Dy()))
	draw.Draw(dst, dst.Bounds(), frame, r.Min, draw.Src)
	return dst, true
}
