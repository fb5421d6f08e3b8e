package geometry

import (
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

// Closest-approach classification for a pair of segments.
const (
	// ApproachInterior: both closest points lie strictly within their
	// segments.
	ApproachInterior = 1
	// ApproachParallel: the segments are (near-)parallel and a representative
	// midpoint pair was produced from the overlap region.
	ApproachParallel = 0
	// ApproachClamped: a closest point fell outside a segment and was clamped
	// to an endpoint, or no parallel overlap exists.
	ApproachClamped = -1
)

const parallelDenomTol = 1e-9

// SegmentClosestPoints finds the closest approach between segments (a1,a2)
// and (b1,b2). It returns the point on each segment and a classification.
// Near-parallel pairs are resolved case by case from the overlap arrangement
// of the two segments; disjoint parallel segments classify as clamped.
func SegmentClosestPoints(a1, a2, b1, b2 r3.Vec) (pa, pb r3.Vec, class int) {
	lineBA := r3.Sub(a2, a1)
	lineB := r3.Sub(b2, b1)

	// Orient the second segment along the first so the overlap cases below
	// only have one arrangement to consider.
	if r3.Dot(lineBA, lineB) < 0 {
		b1, b2 = b2, b1
		lineB = r3.Sub(b2, b1)
	}

	l13 := r3.Sub(a1, b1)
	d1343 := r3.Dot(l13, lineB)
	d4321 := r3.Dot(lineB, lineBA)
	d1321 := r3.Dot(l13, lineBA)
	d4343 := r3.Dot(lineB, lineB)
	d2121 := r3.Dot(lineBA, lineBA)

	denom := d2121*d4343 - d4321*d4321
	if math.Abs(denom) < parallelDenomTol {
		return parallelClosestPoints(a1, a2, b1, b2, lineBA, lineB, d2121, d4343)
	}

	mua := (d1343*d4321 - d1321*d4343) / denom
	mub := (d1343 + d4321*mua) / d4343

	class = ApproachInterior
	switch {
	case mua < 0:
		pa = a1
		class = ApproachClamped
	case mua > 1:
		pa = a2
		class = ApproachClamped
	default:
		pa = r3.Add(a1, r3.Scale(mua, lineBA))
	}
	switch {
	case mub < 0:
		pb = b1
		class = ApproachClamped
	case mub > 1:
		pb = b2
		class = ApproachClamped
	default:
		pb = r3.Add(b1, r3.Scale(mub, lineB))
	}
	return pa, pb, class
}

// parallelClosestPoints handles the near-parallel arrangements: partial
// overlaps from either end, containment of one segment in the other's span,
// and endpoint-touching configurations. Representative points are midpoints
// of the overlapping stretch.
func parallelClosestPoints(a1, a2, b1, b2, lineA, lineB r3.Vec, d2121, d4343 float64) (pa, pb r3.Vec, class int) {
	// No overlap along the shared direction: A ends before B starts, or A
	// starts after B ends.
	if r3.Dot(lineA, r3.Sub(b1, a2)) > 1e-6 || r3.Dot(lineA, r3.Sub(a1, b2)) > 1e-6 {
		return pa, pb, ApproachClamped
	}

	l13 := r3.Sub(a1, b1)
	l23 := r3.Sub(a2, b1)
	l24 := r3.Sub(a2, b2)
	l41 := r3.Sub(b2, a1)

	project := func(origin r3.Vec, dir r3.Vec, d float64, w r3.Vec) r3.Vec {
		return r3.Add(origin, r3.Scale(r3.Dot(w, dir)/d, dir))
	}

	aBeforeB := r3.Dot(l13, lineB) < 0
	aEndsInsideB := r3.Dot(l24, r3.Scale(-1, lineB)) > 0

	if aBeforeB && aEndsInsideB {
		// A starts before B and ends inside it: overlap is [b1, a2].
		pa = project(a1, lineA, d2121, r3.Scale(-1, l13))
		pa = r3.Scale(0.5, r3.Add(pa, a2))
		pb = project(b1, lineB, d4343, l23)
		pb = r3.Scale(0.5, r3.Add(pb, b1))
		return pa, pb, ApproachParallel
	}
	if aBeforeB && !aEndsInsideB {
		// B is contained in A's span.
		pa = project(a1, lineA, d2121, r3.Scale(-1, l13))
		pa2 := project(a1, lineA, d2121, l41)
		pa = r3.Scale(0.5, r3.Add(pa, pa2))
		pb = r3.Scale(0.5, r3.Add(b1, b2))
		return pa, pb, ApproachParallel
	}
	if !aEndsInsideB && !aBeforeB && r3.Dot(l13, lineB) > 0 {
		// A starts inside B and extends past it: overlap is [a1, b2].
		pa = project(a1, lineA, d2121, l41)
		pa = r3.Scale(0.5, r3.Add(pa, a1))
		pb = project(b1, lineB, d4343, l13)
		pb = r3.Scale(0.5, r3.Add(pb, b2))
		return pa, pb, ApproachParallel
	}
	if aEndsInsideB && r3.Dot(l13, lineB) > 0 {
		// A is contained in B's span.
		pa = r3.Scale(0.5, r3.Add(a1, a2))
		pb = project(b1, lineB, d4343, l13)
		pb2 := project(b1, lineB, d4343, l23)
		pb = r3.Scale(0.5, r3.Add(pb, pb2))
		return pa, pb, ApproachParallel
	}

	// Touching end to end.
	if math.Abs(r3.Dot(lineA, r3.Scale(-1, l23))) <= 1e-6 {
		return a2, b1, ApproachParallel
	}
	if math.Abs(r3.Dot(r3.Scale(-1, l41), lineA)) <= 1e-6 {
		return a1, b2, ApproachParallel
	}

	// Exactly coincident spans.
	if math.Abs(r3.Dot(lineA, l13)) <= 1e-6 && math.Abs(r3.Dot(lineA, l24)) <= 1e-6 {
		pa = r3.Scale(0.5, r3.Add(a1, a2))
		pb = r3.Scale(0.5, r3.Add(b1, b2))
		return pa, pb, ApproachParallel
	}

	return pa, pb, ApproachClamped
}
