package geometry

import "math"

// DefaultMinDimension is the smallest width or height a crop box can be
// dragged down to.
const DefaultMinDimension = 100

// Corner identifies one of the four draggable corners of a CropBox.
type Corner int

const (
	TopLeft Corner = iota
	TopRight
	BottomLeft
	BottomRight
)

func (c Corner) String() string {
	switch c {
	case TopLeft:
		return "top-left"
	case TopRight:
		return "top-right"
	case BottomLeft:
		return "bottom-left"
	case BottomRight:
		return "bottom-right"
	default:
		return "unknown"
	}
}

// CropBox is the user-adjustable crop rectangle. Every mutation keeps
// Width and Height at or above MinDimension by clamping the requested
// change, so the box can never invert or collapse.
type CropBox struct {
	Rect         Rect
	MinDimension float64
}

// NewCropBox returns a box for r, grown if necessary to satisfy minDim.
// A non-positive minDim selects DefaultMinDimension.
func NewCropBox(r Rect, minDim float64) *CropBox {
	if !(minDim > 0) {
		minDim = DefaultMinDimension
	}
	b := &CropBox{Rect: r, MinDimension: minDim}
	if !(b.Rect.Width >= minDim) {
		b.Rect.Width = minDim
	}
	if !(b.Rect.Height >= minDim) {
		b.Rect.Height = minDim
	}
	return b
}

// NewCenteredCropBox returns the initial crop box shown over bounds:
// 80% of the width and 40% of the height, centered.
func NewCenteredCropBox(bounds Rect, minDim float64) *CropBox {
	w := bounds.Width * 0.8
	h := bounds.Height * 0.4
	return NewCropBox(Rect{
		X:      bounds.X + (bounds.Width-w)/2,
		Y:      bounds.Y + (bounds.Height-h)/2,
		Width:  w,
		Height: h,
	}, minDim)
}

// DragCorner moves corner c towards loc while the opposite corner stays
// anchored. Locations that would shrink the box below MinDimension are
// clamped.
func (b *CropBox) DragCorner(c Corner, loc Point) {
	if math.IsNaN(loc.X) || math.IsNaN(loc.Y) {
		return
	}
	r := b.Rect
	m := b.MinDimension
	switch c {
	case TopLeft:
		newX := math.Min(r.MaxX()-m, loc.X)
		newY := math.Min(r.MaxY()-m, loc.Y)
		b.Rect = Rect{X: newX, Y: newY, Width: r.MaxX() - newX, Height: r.MaxY() - newY}
	case TopRight:
		newY := math.Min(r.MaxY()-m, loc.Y)
		b.Rect = Rect{X: r.X, Y: newY, Width: math.Max(m, loc.X-r.X), Height: r.MaxY() - newY}
	case BottomLeft:
		newX := math.Min(r.MaxX()-m, loc.X)
		b.Rect = Rect{X: newX, Y: r.Y, Width: r.MaxX() - newX, Height: math.Max(m, loc.Y-r.Y)}
	case BottomRight:
		b.Rect = Rect{X: r.X, Y: r.Y, Width: math.Max(m, loc.X-r.X), Height: math.Max(m, loc.Y-r.Y)}
	}
}

// Move translates the whole box by delta, keeping it inside bounds. When the
// box is larger than bounds on an axis it is pinned to the bounds origin.
func (b *CropBox) Move(delta Point, bounds Rect) {
	if math.IsNaN(delta.X) || math.IsNaN(delta.Y) {
		return
	}
	b.Rect.X = clamp(b.Rect.X+delta.X, bounds.X, bounds.MaxX()-b.Rect.Width)
	b.Rect.Y = clamp(b.Rect.Y+delta.Y, bounds.Y, bounds.MaxY()-b.Rect.Height)
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(v, hi))
}
