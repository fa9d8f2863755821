// Package crop cuts the selected problem out of a captured image.
package crop

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"math"

	"github.com/disintegration/imaging"
	"github.com/scanhelper/scanhelper/internal/geometry"
	"github.com/scanhelper/scanhelper/internal/images"
)

// ErrCropFailure is returned when no bitmap could be produced for a crop.
var ErrCropFailure = errors.New("crop failed")

// Executor crops encoded images.
type Executor struct{}

// NewExecutor returns a crop executor.
func NewExecutor() *Executor {
	return &Executor{}
}

// Crop returns the part of img covered by r, given in pixel space.
func (e *Executor) Crop(img images.Image, r geometry.Rect) (images.Image, error) {
	src, err := imaging.Decode(bytes.NewReader(img.Data))
	if err != nil {
		return images.Image{}, fmt.Errorf("%w: decode source: %v", ErrCropFailure, err)
	}

	bounds := src.Bounds()
	rect := pixelRect(r).Add(bounds.Min).Intersect(bounds)
	if rect.Empty() {
		return images.Image{}, fmt.Errorf("%w: rect %s has no pixels inside %v", ErrCropFailure, r, bounds)
	}

	out, err := images.Encode(imaging.Crop(src, rect))
	if err != nil {
		return images.Image{}, fmt.Errorf("%w: %v", ErrCropFailure, err)
	}
	return out, nil
}

// Apply maps crop from display space into img and crops it. Invalid
// geometry or a failed crop falls back to img itself; Apply never blocks
// the flow.
func (e *Executor) Apply(img images.Image, cropRect, frame geometry.Rect) (images.Image, bool) {
	pixel, err := geometry.MapDisplayRectToImageRect(cropRect, frame, img.Size())
	if err != nil {
		slog.Warn("Using uncropped image", "reason", "invalid geometry", "error", err)
		return img, false
	}
	out, err := e.Crop(img, pixel)
	if err != nil {
		slog.Warn("Using uncropped image", "reason", "crop failure", "error", err)
		return img, false
	}
	slog.Debug("Cropped image", "rect", pixel.String(), "width", out.Width, "height", out.Height)
	return out, true
}

func pixelRect(r geometry.Rect) image.Rectangle {
	return image.Rect(
		int(math.Round(r.MinX())),
		int(math.Round(r.MinY())),
		int(math.Round(r.MaxX())),
		int(math.Round(r.MaxY())),
	)
}
