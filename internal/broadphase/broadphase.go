// Package broadphase filters body and cluster pairs before the expensive
// narrow-phase tests. Two passes run over the swept step: bounding-sphere
// overlap between bodies, then a separating-axis test between swept cluster
// boxes.
package broadphase

import (
	"math"

	"contactsim/internal/body"
	"contactsim/internal/geometry"
	"contactsim/internal/interval"

	"gonum.org/v1/gonum/spatial/r3"
)

// Pair indexes two bodies admitted by the sphere pass, first index smaller.
type Pair struct {
	A, B int
}

// Overlap indexes a cluster of body A against a cluster of body B that the
// box pass could not separate.
type Overlap struct {
	C1, C2 int
}

// SpherePairs admits every unordered body pair whose swept center distance
// drops below the sum of bounding radii at either end of the step.
func SpherePairs(bodies []*body.Body) []Pair {
	var pairs []Pair
	for i := 0; i < len(bodies)-1; i++ {
		for j := i + 1; j < len(bodies); j++ {
			diff := interval.Sweep(
				r3.Sub(bodies[i].State.R, bodies[j].State.R),
				r3.Sub(bodies[i].Future.R, bodies[j].Future.R),
			)
			dist2 := interval.Dot(diff, diff)
			reach := bodies[i].BoundingRadius + bodies[j].BoundingRadius
			if math.Sqrt(math.Abs(dist2.Lo)) < reach || math.Sqrt(math.Abs(dist2.Hi)) < reach {
				pairs = append(pairs, Pair{A: i, B: j})
			}
		}
	}
	return pairs
}

// sweptBox is one cluster's oriented box swept across the step: its three
// body axes as intervals plus the (fudge-inflated) half extents.
type sweptBox struct {
	axis [3]interval.Vector
	half r3.Vec
}

func makeSweptBox(b *body.Body, cluster int, fudge float64) sweptBox {
	var box sweptBox
	for i := 0; i < 3; i++ {
		box.axis[i] = interval.Sweep(
			geometry.Column(b.State.DCMNB, i),
			geometry.Column(b.Future.DCMNB, i),
		)
	}
	box.half = r3.Scale(fudge, b.Clusters[cluster].HalfExtent)
	return box
}

// BoxPairs runs the 15-axis swept separating-plane test over every cluster
// pair of an admitted body pair. A cluster pair survives only if no candidate
// axis separates it anywhere in the step.
func BoxPairs(b1, b2 *body.Body, fudge float64) []Overlap {
	var overlaps []Overlap
	for c1 := range b1.Clusters {
		box1 := makeSweptBox(b1, c1, fudge)
		center1 := interval.Sweep(
			body.VertexWorld(b1.State, b1.Clusters[c1].Centroid),
			body.VertexWorld(b1.Future, b1.Clusters[c1].Centroid),
		)
		for c2 := range b2.Clusters {
			box2 := makeSweptBox(b2, c2, fudge)
			center2 := interval.Sweep(
				body.VertexWorld(b2.State, b2.Clusters[c2].Centroid),
				body.VertexWorld(b2.Future, b2.Clusters[c2].Centroid),
			)
			displacement := center1.Sub(center2)

			if separated(displacement, box1, box2) {
				continue
			}
			overlaps = append(overlaps, Overlap{C1: c1, C2: c2})
		}
	}
	return overlaps
}

func separated(displacement interval.Vector, box1, box2 sweptBox) bool {
	for i := 0; i < 3; i++ {
		if separatingPlane(displacement, box1.axis[i], box1, box2) {
			return true
		}
		if separatingPlane(displacement, box2.axis[i], box1, box2) {
			return true
		}
	}
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			if separatingPlane(displacement, interval.Cross(box1.axis[i], box2.axis[j]), box1, box2) {
				return true
			}
		}
	}
	return false
}

// separatingPlane projects the center displacement and both boxes onto the
// candidate axis over the whole step; the axis separates when the worst-case
// displacement exceeds the combined worst-case box reach.
func separatingPlane(displacement, candidate interval.Vector, box1, box2 sweptBox) bool {
	lhs := interval.Dot(candidate, displacement).MaxAbs()

	rhs := box1.half.X*interval.Dot(candidate, box1.axis[0]).MaxAbs() +
		box1.half.Y*interval.Dot(candidate, box1.axis[1]).MaxAbs() +
		box1.half.Z*interval.Dot(candidate, box1.axis[2]).MaxAbs() +
		box2.half.X*interval.Dot(candidate, box2.axis[0]).MaxAbs() +
		box2.half.Y*interval.Dot(candidate, box2.axis[1]).MaxAbs() +
		box2.half.Z*interval.Dot(candidate, box2.axis[2]).MaxAbs()

	return lhs > rhs
}
