// Package interval implements interval arithmetic over one integration step.
// A swept quantity is represented by its value at the start and end of the
// step; products are bounded by enumerating every endpoint combination, so an
// enclosure that straddles zero means the underlying product may vanish
// somewhere inside the step.
package interval

import (
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

// Scalar is a closed interval on the real line.
type Scalar struct {
	Lo, Hi float64
}

// Vector bounds a world-frame 3-vector swept linearly across the step.
type Vector struct {
	Lower, Upper r3.Vec
}

// Point returns the degenerate interval containing only v.
func Point(v r3.Vec) Vector {
	return Vector{Lower: v, Upper: v}
}

// Sweep returns the interval spanning a quantity from its start-of-step to
// end-of-step value.
func Sweep(start, end r3.Vec) Vector {
	return Vector{Lower: start, Upper: end}
}

// Add sums two vector intervals endpoint-wise.
func (a Vector) Add(b Vector) Vector {
	return Vector{
		Lower: r3.Add(a.Lower, b.Lower),
		Upper: r3.Add(a.Upper, b.Upper),
	}
}

// Sub subtracts b from a endpoint-wise.
func (a Vector) Sub(b Vector) Vector {
	return Vector{
		Lower: r3.Sub(a.Lower, b.Lower),
		Upper: r3.Sub(a.Upper, b.Upper),
	}
}

// Neg negates the interval.
func (a Vector) Neg() Vector {
	return Vector{
		Lower: r3.Scale(-1, a.Lower),
		Upper: r3.Scale(-1, a.Upper),
	}
}

// Static reports whether the interval has collapsed to a single point.
func (a Vector) Static() bool {
	return a.Lower == a.Upper
}

// productBounds returns the min and max of x*y over the four endpoint
// combinations.
func productBounds(xLo, xHi, yLo, yHi float64) (float64, float64) {
	p1 := xLo * yLo
	p2 := xLo * yHi
	p3 := xHi * yLo
	p4 := xHi * yHi
	return math.Min(math.Min(p1, p2), math.Min(p3, p4)),
		math.Max(math.Max(p1, p2), math.Max(p3, p4))
}

func component(v r3.Vec, i int) float64 {
	switch i {
	case 0:
		return v.X
	case 1:
		return v.Y
	default:
		return v.Z
	}
}

// Dot bounds the dot product of two vector intervals. Each componentwise
// product is bounded independently and the bounds summed.
func Dot(a, b Vector) Scalar {
	var s Scalar
	for i := 0; i < 3; i++ {
		lo, hi := productBounds(component(a.Lower, i), component(a.Upper, i),
			component(b.Lower, i), component(b.Upper, i))
		s.Lo += lo
		s.Hi += hi
	}
	return s
}

// Cross bounds the cross product of two vector intervals. Each component is a
// difference of two products; the bound subtracts the opposing extreme so the
// enclosure holds for every endpoint combination.
func Cross(a, b Vector) Vector {
	cross := func(ai, bj, aj, bi int) (float64, float64) {
		lo1, hi1 := productBounds(component(a.Lower, ai), component(a.Upper, ai),
			component(b.Lower, bj), component(b.Upper, bj))
		lo2, hi2 := productBounds(component(a.Lower, aj), component(a.Upper, aj),
			component(b.Lower, bi), component(b.Upper, bi))
		return lo1 - hi2, hi1 - lo2
	}

	xLo, xHi := cross(1, 2, 2, 1)
	yLo, yHi := cross(2, 0, 0, 2)
	zLo, zHi := cross(0, 1, 1, 0)

	return Vector{
		Lower: r3.Vec{X: xLo, Y: yLo, Z: zLo},
		Upper: r3.Vec{X: xHi, Y: yHi, Z: zHi},
	}
}

// Straddles reports whether the interval spans zero with margin beyond tol on
// both sides.
func (s Scalar) Straddles(tol float64) bool {
	return (s.Lo <= -tol && s.Hi >= tol) || (s.Lo >= tol && s.Hi <= -tol)
}

// Contains reports whether x lies inside the interval.
func (s Scalar) Contains(x float64) bool {
	return s.Lo <= x && x <= s.Hi
}

// MaxAbs returns the largest magnitude attained over the interval.
func (s Scalar) MaxAbs() float64 {
	return math.Max(math.Abs(s.Lo), math.Abs(s.Hi))
}
