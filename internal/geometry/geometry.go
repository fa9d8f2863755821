// Package geometry maps crop rectangles drawn over an aspect-fit image back
// into the pixel space of the source image.
package geometry

import (
	"errors"
	"fmt"
	"math"
)

// ErrInvalidGeometry is returned when a frame, image size or crop collapses
// to zero area. Callers fall back to using the whole image.
var ErrInvalidGeometry = errors.New("invalid geometry")

// Point is a location in display or pixel space.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Size is a width/height pair.
type Size struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Rect is an axis-aligned rectangle with its origin at the top-left corner.
type Rect struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

func (r Rect) MinX() float64 { return r.X }
func (r Rect) MinY() float64 { return r.Y }
func (r Rect) MaxX() float64 { return r.X + r.Width }
func (r Rect) MaxY() float64 { return r.Y + r.Height }

// Origin returns the top-left corner.
func (r Rect) Origin() Point { return Point{X: r.X, Y: r.Y} }

// Size returns the rectangle's dimensions.
func (r Rect) Size() Size { return Size{Width: r.Width, Height: r.Height} }

// Empty reports whether the rectangle has no area.
func (r Rect) Empty() bool {
	return !(r.Width > 0) || !(r.Height > 0)
}

// Contains reports whether p lies inside r (edges included).
func (r Rect) Contains(p Point) bool {
	return p.X >= r.MinX() && p.X <= r.MaxX() && p.Y >= r.MinY() && p.Y <= r.MaxY()
}

// Intersect returns the overlap of r and o. A disjoint pair yields a
// zero-size rectangle, never a negative one.
func (r Rect) Intersect(o Rect) Rect {
	minX := math.Max(r.MinX(), o.MinX())
	minY := math.Max(r.MinY(), o.MinY())
	maxX := math.Min(r.MaxX(), o.MaxX())
	maxY := math.Min(r.MaxY(), o.MaxY())
	if maxX <= minX || maxY <= minY {
		return Rect{X: minX, Y: minY}
	}
	return Rect{X: minX, Y: minY, Width: maxX - minX, Height: maxY - minY}
}

func (r Rect) String() string {
	return fmt.Sprintf("(%.2f, %.2f, %.2f×%.2f)", r.X, r.Y, r.Width, r.Height)
}

// FitScale returns the scale factor an aspect-fit layout applies to natural
// when rendering it inside frame.
func FitScale(frame Rect, natural Size) (float64, error) {
	if !(frame.Width > 0) || !(frame.Height > 0) {
		return 0, fmt.Errorf("%w: display frame %s has no area", ErrInvalidGeometry, frame)
	}
	if !(natural.Width > 0) || !(natural.Height > 0) {
		return 0, fmt.Errorf("%w: image size %.0fx%.0f has no area", ErrInvalidGeometry, natural.Width, natural.Height)
	}
	return math.Min(frame.Width/natural.Width, frame.Height/natural.Height), nil
}

// DisplayedImageRect returns where the image is actually drawn inside frame
// under aspect-fit scaling, i.e. the frame minus its letterbox bars.
func DisplayedImageRect(frame Rect, natural Size) (Rect, error) {
	displayed, _, err := fit(frame, natural)
	return displayed, err
}

func fit(frame Rect, natural Size) (Rect, float64, error) {
	scale, err := FitScale(frame, natural)
	if err != nil {
		return Rect{}, 0, err
	}
	w := natural.Width * scale
	h := natural.Height * scale
	return Rect{
		X:      frame.X + (frame.Width-w)/2,
		Y:      frame.Y + (frame.Height-h)/2,
		Width:  w,
		Height: h,
	}, scale, nil
}

// MapDisplayRectToImageRect converts crop, expressed in the same space as
// frame, into a pixel rectangle of an image with the given natural size that
// was rendered into frame with aspect-fit scaling.
//
// The part of crop that falls on letterbox bars is discarded; the origin is
// never moved outward. A crop that does not overlap the rendered image
// returns ErrInvalidGeometry.
func MapDisplayRectToImageRect(crop, frame Rect, natural Size) (Rect, error) {
	displayed, scale, err := fit(frame, natural)
	if err != nil {
		return Rect{}, err
	}

	relX := crop.X - displayed.X
	relY := crop.Y - displayed.Y

	minX := math.Max(0, relX)
	minY := math.Max(0, relY)
	maxX := math.Min(displayed.Width, relX+crop.Width)
	maxY := math.Min(displayed.Height, relY+crop.Height)
	if !(maxX > minX) || !(maxY > minY) {
		return Rect{}, fmt.Errorf("%w: crop %s lies outside displayed image %s", ErrInvalidGeometry, crop, displayed)
	}

	inv := 1 / scale
	pixel := Rect{
		X:      minX * inv,
		Y:      minY * inv,
		Width:  (maxX - minX) * inv,
		Height: (maxY - minY) * inv,
	}
	pixel = pixel.Intersect(Rect{Width: natural.Width, Height: natural.Height})
	if pixel.Empty() {
		return Rect{}, fmt.Errorf("%w: crop %s collapses to zero pixels", ErrInvalidGeometry, crop)
	}
	return pixel, nil
}

// ImageRectToDisplayRect projects a pixel rectangle back into display space.
// It is the inverse of MapDisplayRectToImageRect for crops that lie fully
// inside the rendered image.
func ImageRectToDisplayRect(pixel, frame Rect, natural Size) (Rect, error) {
	displayed, scale, err := fit(frame, natural)
	if err != nil {
		return Rect{}, err
	}
	return Rect{
		X:      displayed.X + pixel.X*scale,
		Y:      displayed.Y + pixel.Y*scale,
		Width:  pixel.Width * scale,
		Height: pixel.Height * scale,
	}, nil
}
