package humanoid

import "math"

// Vector2D is a point or direction in page pixel space.
type Vector2D struct {
	X float64
	Y float64
}

func (v Vector2D) Add(o Vector2D) Vector2D { return Vector2D{v.X + o.X, v.Y + o.Y} }
func (v Vector2D) Sub(o Vector2D) Vector2D { return Vector2D{v.X - o.X, v.Y - o.Y} }
func (v Vector2D) Mul(s float64) Vector2D  { return Vector2D{v.X * s, v.Y * s} }

// Mag returns the vector magnitude.
func (v Vector2D) Mag() float64 { return math.Hypot(v.X, v.Y) }

// Dist returns the distance to another point.
func (v Vector2D) Dist(o Vector2D) float64 { return v.Sub(o).Mag() }

// Normalize returns a unit vector in the same direction, or the zero vector.
func (v Vector2D) Normalize() Vector2D {
	m := v.Mag()
	if m == 0 {
		return Vector2D{}
	}
	return Vector2D{v.X / m, v.Y / m}
}

// ElementGeometry is the measured on-screen box of a DOM element.
type ElementGeometry struct {
	X      float64
	Y      float64
	Width  float64
	Height float64
}

// Center returns the box midpoint, and false for degenerate boxes.
func (g *ElementGeometry) Center() (Vector2D, bool) {
	if g == nil || g.Width <= 0 || g.Height <= 0 {
		return Vector2D{}, false
	}
	return Vector2D{X: g.X + g.Width/2.0, Y: g.Y + g.Height/2.0}, true
}
