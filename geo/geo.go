// Package geo provides the axis-aligned rectangle arithmetic used to match
// estimated glyph-run geometry against redaction boxes.
package geo

import "math"

// Rect is an axis-aligned rectangle in page space. X1,Y1 is the lower-left
// corner and X2,Y2 the upper-right; constructors normalize inverted inputs.
type Rect struct {
	X1, Y1, X2, Y2 float64
}

// New returns a normalized rectangle from two opposite corners.
func New(x1, y1, x2, y2 float64) Rect {
	return Rect{
		X1: math.Min(x1, x2),
		Y1: math.Min(y1, y2),
		X2: math.Max(x1, x2),
		Y2: math.Max(y1, y2),
	}
}

// FromXYWH builds a rectangle from an origin and extents.
func FromXYWH(x, y, w, h float64) Rect { return New(x, y, x+w, y+h) }

func (r Rect) Width() float64  { return r.X2 - r.X1 }
func (r Rect) Height() float64 { return r.Y2 - r.Y1 }
func (r Rect) Area() float64   { return r.Width() * r.Height() }

func (r Rect) Empty() bool { return r.Width() <= 0 || r.Height() <= 0 }

// Intersects reports whether the two rectangles share any area.
// Edge-touching rectangles do not intersect.
func (r Rect) Intersects(o Rect) bool {
	if r.Empty() || o.Empty() {
		return false
	}
	return r.X1 < o.X2 && o.X1 < r.X2 && r.Y1 < o.Y2 && o.Y1 < r.Y2
}

// Contains reports whether o lies entirely within r.
func (r Rect) Contains(o Rect) bool {
	return o.X1 >= r.X1 && o.Y1 >= r.Y1 && o.X2 <= r.X2 && o.Y2 <= r.Y2
}

// Union returns the smallest rectangle covering both r and o.
func (r Rect) Union(o Rect) Rect {
	if r.Empty() {
		return o
	}
	if o.Empty() {
		return r
	}
	return Rect{
		X1: math.Min(r.X1, o.X1),
		Y1: math.Min(r.Y1, o.Y1),
		X2: math.Max(r.X2, o.X2),
		Y2: math.Max(r.Y2, o.Y2),
	}
}

// Pad grows the rectangle outward by d on every side.
func (r Rect) Pad(d float64) Rect {
	return Rect{X1: r.X1 - d, Y1: r.Y1 - d, X2: r.X2 + d, Y2: r.Y2 + d}
}
