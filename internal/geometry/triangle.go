package geometry

import (
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

// ProjectOntoTriangle drops the support point onto the plane of triangle
// (t0,t1,t2) and tests whether the projection lands inside the triangle. The
// triangle winding is counter-clockwise about its outward normal. The test
// partitions the plane by the vertex angle bisectors, then confirms the
// projection sits on the interior side of the edge owning that sector.
//
// Returns the projected point, the unsigned distance from the support point
// to the plane, and whether the projection is inside.
func ProjectOntoTriangle(support, t0, t1, t2 r3.Vec) (contact r3.Vec, dist float64, inside bool) {
	u01 := r3.Sub(t1, t0)
	u02 := r3.Sub(t2, t0)
	u12 := r3.Sub(t2, t1)
	n := r3.Unit(r3.Cross(u01, u02))

	alpha := r3.Dot(r3.Sub(support, t0), n)
	contact = r3.Add(support, r3.Scale(-alpha, n))
	dist = math.Abs(alpha)

	// Angle bisector directions at each vertex, pointing away from the
	// triangle.
	b0 := r3.Sub(r3.Scale(-1, r3.Unit(u01)), r3.Unit(u02))
	b1 := r3.Add(r3.Scale(-1, r3.Unit(u12)), r3.Unit(u01))
	b2 := r3.Add(r3.Unit(u02), r3.Unit(u12))

	f0 := r3.Dot(r3.Cross(b0, r3.Sub(contact, t0)), n)
	f1 := r3.Dot(r3.Cross(b1, r3.Sub(contact, t1)), n)
	f2 := r3.Dot(r3.Cross(b2, r3.Sub(contact, t2)), n)

	edgeSide := func(va, vb r3.Vec) bool {
		return r3.Dot(r3.Cross(r3.Sub(va, contact), r3.Sub(vb, contact)), n) >= -1e-9
	}

	switch {
	case f1 <= 0 && f0 > 0:
		inside = edgeSide(t0, t1)
	case f2 <= 0 && f1 > 0:
		inside = edgeSide(t1, t2)
	case f0 <= 0 && f2 > 0:
		inside = edgeSide(t2, t0)
	}
	return contact, dist, inside
}
