package sprites

import (
	"image"
	"math"
)

// Vec2 is a 2D position, offset or size in screen pixels.
type Vec2 struct {
	X, Y float64
}

// V is shorthand for Vec2{X: x, Y: y}.
func V(x, y float64) Vec2 {
	return Vec2{X: x, Y: y}
}

// Add returns the componentwise sum of v and d.
func (v Vec2) Add(d Vec2) Vec2 {
	return Vec2{X: v.X + d.X, Y: v.Y + d.Y}
}

// Scale multiplies both components by s.
func (v Vec2) Scale(s float64) Vec2 {
	return Vec2{X: v.X * s, Y: v.Y * s}
}

// Round snaps v to the nearest whole pixel (half away from zero).
func (v Vec2) Round() Vec2 {
	return Vec2{X: math.Round(v.X), Y: math.Round(v.Y)}
}

// Rect is an axis-aligned rectangle given by its top-left corner and size.
type Rect struct {
	X, Y, W, H float64
}

// Image converts r to an image.Rectangle, rounding each edge to the nearest
// whole pixel.
func (r Rect) Image() image.Rectangle {
	return image.Rect(int(math.Round(r.X)), int(math.Round(r.Y)), int(math.Round(r.X+r.W)), int(math.Round(r.Y+r.H)))
}
