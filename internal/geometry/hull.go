package geometry

import (
	"sort"

	"gonum.org/v1/gonum/spatial/r3"
)

// collinearTol is the cross-product magnitude below which three projected
// points are treated as collinear.
const collinearTol = 0.01

// turn returns the z-component of (b-a) x (c-b) in the x-y projection.
// Positive means a left (counter-clockwise) turn.
func turn(a, b, c r3.Vec) float64 {
	return (b.X-a.X)*(c.Y-b.Y) - (b.Y-a.Y)*(c.X-b.X)
}

// ConvexHull2D computes the convex hull of the points projected onto the x-y
// plane with a Graham scan. The z-coordinates of the input are carried through
// untouched. Returns nil when the projection is degenerate (fewer than three
// non-collinear points); callers fall back to the raw point set.
func ConvexHull2D(points []r3.Vec) []r3.Vec {
	if len(points) < 3 {
		return nil
	}

	pts := make([]r3.Vec, len(points))
	copy(pts, points)

	// Anchor at the lowest point, breaking ties toward smaller x.
	anchor := 0
	for i := 1; i < len(pts); i++ {
		if pts[i].Y < pts[anchor].Y ||
			(pts[i].Y == pts[anchor].Y && pts[i].X < pts[anchor].X) {
			anchor = i
		}
	}
	pts[0], pts[anchor] = pts[anchor], pts[0]
	p0 := pts[0]

	// Sort the rest by polar angle about the anchor; collinear points sort by
	// increasing distance so the scan keeps the furthest.
	rest := pts[1:]
	sort.Slice(rest, func(i, j int) bool {
		cross := turn(p0, rest[i], rest[j])
		if cross > collinearTol {
			return true
		}
		if cross < -collinearTol {
			return false
		}
		di := r3.Norm2(r3.Sub(rest[i], p0))
		dj := r3.Norm2(r3.Sub(rest[j], p0))
		return di < dj
	})

	// Drop all but the furthest of each collinear run.
	kept := make([]r3.Vec, 0, len(rest))
	for i := 0; i < len(rest); i++ {
		for i+1 < len(rest) {
			cross := turn(p0, rest[i], rest[i+1])
			if cross > collinearTol || cross < -collinearTol {
				break
			}
			i++
		}
		kept = append(kept, rest[i])
	}
	if len(kept) < 2 {
		return nil
	}

	hull := []r3.Vec{p0, kept[0]}
	for _, p := range kept[1:] {
		for len(hull) >= 2 && turn(hull[len(hull)-2], hull[len(hull)-1], p) <= collinearTol {
			hull = hull[:len(hull)-1]
		}
		hull = append(hull, p)
	}
	if len(hull) < 3 {
		return nil
	}
	return hull
}
