// Package geom holds the planar primitives used by the placement kernel.
package geom

import "math"

// Point is a position on the room plane.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Vector is a displacement between two points.
type Vector struct {
	X float64
	Y float64
}

// Sub returns the vector from q to p.
func (p Point) Sub(q Point) Vector { return Vector{X: p.X - q.X, Y: p.Y - q.Y} }

// Add moves p by v.
func (p Point) Add(v Vector) Point { return Point{X: p.X + v.X, Y: p.Y + v.Y} }

// Transpose swaps the coordinates.
func (p Point) Transpose() Point { return Point{X: p.Y, Y: p.X} }

func (v Vector) Add(w Vector) Vector    { return Vector{X: v.X + w.X, Y: v.Y + w.Y} }
func (v Vector) Scale(k float64) Vector { return Vector{X: v.X * k, Y: v.Y * k} }
func (v Vector) Dot(w Vector) float64   { return v.X*w.X + v.Y*w.Y }
func (v Vector) Cross(w Vector) float64 { return v.X*w.Y - v.Y*w.X }
func (v Vector) Norm2() float64         { return v.X*v.X + v.Y*v.Y }
func (v Vector) Norm() float64          { return math.Sqrt(v.Norm2()) }
func (v Vector) Angle() float64         { return math.Atan2(v.Y, v.X) }

// Dist2 is the squared Euclidean distance; prefer it wherever only ordering matters.
func Dist2(p, q Point) float64 { return p.Sub(q).Norm2() }

// Dist is the Euclidean distance.
func Dist(p, q Point) float64 { return math.Sqrt(Dist2(p, q)) }

// Segment is the closed segment From-To.
type Segment struct {
	From Point
	To   Point
}

// DistToPoint returns the distance from p to the nearest point of the segment.
func (s Segment) DistToPoint(p Point) float64 {
	v := s.To.Sub(s.From)
	w0 := p.Sub(s.From)
	if w0.Dot(v) <= 0 {
		return w0.Norm()
	}
	w1 := p.Sub(s.To)
	if w1.Dot(v) >= 0 {
		return w1.Norm()
	}
	return math.Abs(v.Cross(w0)) / v.Norm()
}
