// Package narrowphase localizes contact points between admitted cluster
// pairs. Candidate features are screened with swept interval tests across the
// step, then localized at the instant of the call: vertices against faces by
// plane projection, edges against edges by closest approach.
package narrowphase

import (
	"gonum.org/v1/gonum/spatial/r3"

	"contactsim/internal/body"
	"contactsim/internal/broadphase"
	"contactsim/internal/geometry"
	"contactsim/internal/interval"
)

// Contact is one localized contact: the point on each body's surface in the
// inertial frame and the unit normal oriented so that an approaching relative
// velocity (body 1 minus body 2) projects negatively onto it.
type Contact struct {
	P1, P2 r3.Vec
	Normal r3.Vec
	// Err is the separation between the touching features at the sampled
	// instant.
	Err float64
}

// Result collects the accepted contacts of one body pair, the worst
// positional error among them, and how many candidates were localized but
// rejected for exceeding the error gate.
type Result struct {
	Contacts []Contact
	MaxError float64
	Rejected int

	maxPosError float64
}

const (
	// straddleTol screens swept triple products: the interval must clear this
	// margin on both sides of zero before a feature pair is localized.
	straddleTol = 1e-12
	// dedupRadius drops contacts sharing either contact point, so a vertex on
	// a shared edge of two triangles reports once.
	dedupRadius = 1e-3
	// opposeTol decides whether a face normal opposes the relative velocity
	// in edge-edge normal selection.
	opposeTol = 1e-12
)

// sweptVertex is one candidate vertex swept across the step.
type sweptVertex struct {
	span interval.Vector
	used bool
}

// sweptEdge is one candidate edge swept across the step, with the current
// world normals of its adjacent faces. n2 is unset for boundary edges.
type sweptEdge struct {
	start, end interval.Vector
	n1, n2     r3.Vec
	boundary   bool
}

// FindContacts runs the swept feature tests for every admitted cluster pair
// of one body pair, using the given current and end-of-step states. Localized
// candidates separated by more than maxPosError are counted but not kept.
func FindContacts(b1, b2 *body.Body, cur1, cur2, fut1, fut2 body.State, overlaps []broadphase.Overlap, maxPosError float64) Result {
	res := Result{maxPosError: maxPosError}
	for _, ov := range overlaps {
		cl1 := &b1.Clusters[ov.C1]
		cl2 := &b2.Clusters[ov.C2]

		verts1 := sweepVerts(b1, cur1, fut1, cl1.UniqueVerts)
		verts2 := sweepVerts(b2, cur2, fut2, cl2.UniqueVerts)
		edges1 := sweepEdges(b1, cur1, fut1, ov.C1)
		edges2 := sweepEdges(b2, cur2, fut2, ov.C2)

		// Faces of body 1 against vertices of body 2. The face supports the
		// contact, so the normal is the face normal flipped toward body 1.
		for fi, tri := range cl1.Faces {
			nWorld := geometry.MulVec(cur1.DCMNB, cl1.Normals[fi])
			res.faceVertexPass(b1, cur1, fut1, tri, verts2, r3.Scale(-1, nWorld), false)
		}
		// Faces of body 2 against vertices of body 1.
		for fi, tri := range cl2.Faces {
			nWorld := geometry.MulVec(cur2.DCMNB, cl2.Normals[fi])
			res.faceVertexPass(b2, cur2, fut2, tri, verts1, nWorld, true)
		}
		res.edgeEdgePass(cur1, cur2, edges1, edges2)
	}
	return res
}

func sweepVerts(b *body.Body, cur, fut body.State, indices []int) []sweptVertex {
	out := make([]sweptVertex, len(indices))
	for i, idx := range indices {
		out[i].span = interval.Sweep(
			body.VertexWorld(cur, b.Vertices[idx]),
			body.VertexWorld(fut, b.Vertices[idx]),
		)
	}
	return out
}

func sweepEdges(b *body.Body, cur, fut body.State, cluster int) []sweptEdge {
	cl := &b.Clusters[cluster]
	out := make([]sweptEdge, len(cl.Edges))
	for i, e := range cl.Edges {
		out[i].start = interval.Sweep(
			body.VertexWorld(cur, b.Vertices[e.V0]),
			body.VertexWorld(fut, b.Vertices[e.V0]),
		)
		out[i].end = interval.Sweep(
			body.VertexWorld(cur, b.Vertices[e.V1]),
			body.VertexWorld(fut, b.Vertices[e.V1]),
		)
		out[i].n1 = geometry.MulVec(cur.DCMNB, cl.Normals[e.Face])
		if e.Boundary() {
			out[i].boundary = true
		} else {
			out[i].n2 = geometry.MulVec(cur.DCMNB, b.Clusters[e.OtherCluster].Normals[e.OtherFace])
		}
	}
	return out
}

// faceVertexPass tests one swept face of the supporting body against every
// unclaimed swept vertex of the other body. faceOnBody2 orders the contact
// record: the face point belongs to body 1 when false, body 2 when true.
func (res *Result) faceVertexPass(b *body.Body, cur, fut body.State, tri [3]int, verts []sweptVertex, normal r3.Vec, faceOnBody2 bool) {
	f0 := interval.Sweep(body.VertexWorld(cur, b.Vertices[tri[0]]), body.VertexWorld(fut, b.Vertices[tri[0]]))
	f1 := interval.Sweep(body.VertexWorld(cur, b.Vertices[tri[1]]), body.VertexWorld(fut, b.Vertices[tri[1]]))
	f2 := interval.Sweep(body.VertexWorld(cur, b.Vertices[tri[2]]), body.VertexWorld(fut, b.Vertices[tri[2]]))
	leg1 := f0.Sub(f1)
	leg2 := f0.Sub(f2)

	for i := range verts {
		if verts[i].used {
			continue
		}
		support := verts[i].span.Sub(f0)
		triple := interval.Dot(support, interval.Cross(leg1, leg2))
		if !triple.Straddles(straddleTol) {
			continue
		}

		contact, dist, inside := geometry.ProjectOntoTriangle(
			verts[i].span.Lower, f0.Lower, f1.Lower, f2.Lower)
		if !inside {
			continue
		}

		c := Contact{Normal: normal, Err: dist}
		if faceOnBody2 {
			c.P1 = verts[i].span.Lower
			c.P2 = contact
		} else {
			c.P1 = contact
			c.P2 = verts[i].span.Lower
		}
		if res.insert(c) {
			verts[i].used = true
		}
	}
}

// edgeEdgePass tests every swept edge pair. The contact normal comes from the
// faces adjacent to the body-2 edge: the sum of both normals when both oppose
// the relative velocity, the single opposing one otherwise, or no contact at
// all when neither does.
func (res *Result) edgeEdgePass(cur1, cur2 body.State, edges1, edges2 []sweptEdge) {
	for i := range edges1 {
		dir1 := edges1[i].end.Sub(edges1[i].start)
		for j := range edges2 {
			dir2 := edges2[j].end.Sub(edges2[j].start)
			mixed := edges2[j].start.Sub(edges1[i].start)
			triple := interval.Dot(mixed, interval.Cross(dir1, dir2))
			if !(triple.Lo < 0 && triple.Hi > 0) {
				continue
			}

			pa, pb, class := geometry.SegmentClosestPoints(
				edges1[i].start.Lower, edges1[i].end.Lower,
				edges2[j].start.Lower, edges2[j].end.Lower)
			if class == geometry.ApproachClamped {
				continue
			}

			relVel := r3.Sub(body.SurfaceVelocity(cur1, pa), body.SurfaceVelocity(cur2, pb))
			normal, ok := edgeNormal(edges2[j], relVel)
			if !ok {
				continue
			}

			res.insert(Contact{
				P1:     pa,
				P2:     pb,
				Normal: normal,
				Err:    r3.Norm(r3.Sub(pa, pb)),
			})
		}
	}
}

func edgeNormal(e sweptEdge, relVel r3.Vec) (r3.Vec, bool) {
	if e.boundary {
		if r3.Dot(relVel, e.n1) < -opposeTol {
			return e.n1, true
		}
		return r3.Vec{}, false
	}
	opp1 := r3.Dot(relVel, e.n1) < -opposeTol
	opp2 := r3.Dot(relVel, e.n2) < -opposeTol
	switch {
	case opp1 && opp2:
		return r3.Unit(r3.Add(e.n1, e.n2)), true
	case opp1:
		return e.n1, true
	case opp2:
		return e.n2, true
	}
	return r3.Vec{}, false
}

// insert adds a contact unless it fails the positional-error gate, first
// evicting any existing contact that shares either contact point within
// dedupRadius.
func (res *Result) insert(c Contact) bool {
	if c.Err > res.maxPosError {
		res.Rejected++
		return false
	}
	kept := res.Contacts[:0]
	for _, old := range res.Contacts {
		if r3.Norm(r3.Sub(c.P1, old.P1)) < dedupRadius ||
			r3.Norm(r3.Sub(c.P2, old.P2)) < dedupRadius {
			continue
		}
		kept = append(kept, old)
	}
	res.Contacts = append(kept, c)
	if c.Err > res.MaxError {
		res.MaxError = c.Err
	}
	return true
}
