// Package mesh groups a triangulated body into spatially coherent clusters
// and derives the edge-face adjacency used by the collision phases. Clusters
// are the unit of broad-phase culling: each carries its own oriented bounding
// box in the body frame.
package mesh

import (
	"fmt"
	"log"
	"math"
	"sort"

	"gonum.org/v1/gonum/spatial/r3"

	"contactsim/internal/geometry"
)

// Options controls cluster growth and bounding-box sizing.
type Options struct {
	// MaxBoundingBoxDim caps the worst-case pairwise vertex distance inside a
	// cluster. A single triangle larger than the cap still forms its own
	// cluster.
	MaxBoundingBoxDim float64
	// MinBoundingBoxDim is the minimum per-axis half-extent of a cluster box,
	// so swept overlap tests always have nonzero width.
	MinBoundingBoxDim float64
}

// Shape is one group of triangles from the mesh source. Vertex indices are
// counter-clockwise when viewed from outside the body.
type Shape struct {
	Triangles [][3]int
}

// Edge is a unique mesh edge together with its two adjacent faces. Interior
// edges are stored once, in the cluster owning the first face encountered.
type Edge struct {
	V0, V1 int
	// Face indexes the adjacent face inside the owning cluster.
	Face int
	// OtherCluster and OtherFace locate the second adjacent face anywhere in
	// the body. OtherCluster is -1 for boundary edges.
	OtherCluster int
	OtherFace    int
}

// Boundary reports whether the edge has only one adjacent face.
func (e Edge) Boundary() bool {
	return e.OtherCluster < 0
}

// Cluster is a spatially coherent group of triangles with its bounding box in
// the body frame.
type Cluster struct {
	Faces           [][3]int
	Normals         []r3.Vec
	Centroids       []r3.Vec
	FaceHalfExtents []r3.Vec

	Centroid   r3.Vec
	HalfExtent r3.Vec

	Edges []Edge

	// UniqueVerts are the vertex indices owned by this cluster and no earlier
	// one, so vertex-face tests never report a shared vertex twice.
	UniqueVerts []int
}

const degenerateAreaTol = 1e-12

// Build clusters every triangle of the body. Degenerate (zero-area) triangles
// are skipped; non-manifold edges are kept with best-effort adjacency.
func Build(vertices []r3.Vec, shapes []Shape, opt Options) ([]Cluster, error) {
	if len(vertices) == 0 {
		return nil, fmt.Errorf("mesh: no vertices")
	}
	if opt.MaxBoundingBoxDim <= 0 {
		return nil, fmt.Errorf("mesh: max bounding box dimension must be positive, got %g", opt.MaxBoundingBoxDim)
	}

	var (
		faces     [][3]int
		normals   []r3.Vec
		centroids []r3.Vec
		halfExts  []r3.Vec
		maxDist   []float64
		skipped   int
	)
	for _, shape := range shapes {
		for _, tri := range shape.Triangles {
			for _, idx := range tri {
				if idx < 0 || idx >= len(vertices) {
					return nil, fmt.Errorf("mesh: vertex index %d out of range", idx)
				}
			}
			v0, v1, v2 := vertices[tri[0]], vertices[tri[1]], vertices[tri[2]]
			n := r3.Cross(r3.Sub(v1, v0), r3.Sub(v2, v1))
			if r3.Norm(n) < degenerateAreaTol {
				skipped++
				continue
			}
			c := r3.Scale(1.0/3.0, r3.Add(r3.Add(v0, v1), v2))
			var he r3.Vec
			for _, v := range []r3.Vec{v0, v1, v2} {
				d := r3.Sub(v, c)
				he.X = math.Max(he.X, math.Abs(d.X))
				he.Y = math.Max(he.Y, math.Abs(d.Y))
				he.Z = math.Max(he.Z, math.Abs(d.Z))
			}
			faces = append(faces, tri)
			normals = append(normals, r3.Unit(n))
			centroids = append(centroids, c)
			halfExts = append(halfExts, he)
			maxDist = append(maxDist, math.Max(r3.Norm(v0), math.Max(r3.Norm(v1), r3.Norm(v2))))
		}
	}
	if skipped > 0 {
		log.Printf("mesh: skipped %d degenerate triangles", skipped)
	}
	if len(faces) == 0 {
		return nil, fmt.Errorf("mesh: no usable triangles")
	}

	neighbors := faceAdjacency(faces)
	grouping := growClusters(vertices, faces, neighbors, maxDist, opt.MaxBoundingBoxDim)

	clusters := make([]Cluster, len(grouping))
	for ci, members := range grouping {
		cl := &clusters[ci]
		for _, f := range members {
			cl.Faces = append(cl.Faces, faces[f])
			cl.Normals = append(cl.Normals, normals[f])
			cl.Centroids = append(cl.Centroids, centroids[f])
			cl.FaceHalfExtents = append(cl.FaceHalfExtents, halfExts[f])
		}
		boundClusterBox(cl, vertices, opt.MinBoundingBoxDim)
	}

	assignUniqueVerts(clusters)
	pairEdges(clusters)
	return clusters, nil
}

// faceAdjacency maps each face to its up-to-three neighbors: faces sharing an
// edge in the opposite orientation, which is what consistent counter-clockwise
// winding produces on a closed surface.
func faceAdjacency(faces [][3]int) [][]int {
	owner := make(map[[2]int]int, 3*len(faces))
	for fi, tri := range faces {
		for k := 0; k < 3; k++ {
			owner[[2]int{tri[k], tri[(k+1)%3]}] = fi
		}
	}
	neighbors := make([][]int, len(faces))
	for fi, tri := range faces {
		for k := 0; k < 3; k++ {
			if other, ok := owner[[2]int{tri[(k+1)%3], tri[k]}]; ok && other != fi {
				neighbors[fi] = append(neighbors[fi], other)
			}
		}
	}
	return neighbors
}

// growClusters seeds each cluster with the ungrouped face furthest from the
// body origin, then repeatedly adds the adjacent ungrouped face whose worst
// pairwise vertex distance to the cluster is smallest, stopping once every
// candidate would stretch the cluster past maxDim.
func growClusters(vertices []r3.Vec, faces [][3]int, neighbors [][]int, maxDist []float64, maxDim float64) [][]int {
	order := make([]int, len(faces))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(i, j int) bool {
		return maxDist[order[i]] > maxDist[order[j]]
	})

	grouped := make([]bool, len(faces))
	var grouping [][]int

	for _, seed := range order {
		if grouped[seed] {
			continue
		}
		members := []int{seed}
		grouped[seed] = true
		clusterVerts := trianglePoints(vertices, faces[seed])

		for {
			candidates := adjacentUngrouped(members, neighbors, grouped)
			if len(candidates) == 0 {
				break
			}
			best, bestDist := -1, math.Inf(1)
			for _, cand := range candidates {
				d := worstPairDistance(clusterVerts, trianglePoints(vertices, faces[cand]))
				if d < bestDist {
					best, bestDist = cand, d
				}
			}
			if bestDist >= maxDim {
				break
			}
			members = append(members, best)
			grouped[best] = true
			clusterVerts = append(clusterVerts, trianglePoints(vertices, faces[best])...)
		}
		grouping = append(grouping, members)
	}
	return grouping
}

func trianglePoints(vertices []r3.Vec, tri [3]int) []r3.Vec {
	return []r3.Vec{vertices[tri[0]], vertices[tri[1]], vertices[tri[2]]}
}

func adjacentUngrouped(members []int, neighbors [][]int, grouped []bool) []int {
	seen := make(map[int]bool)
	var out []int
	for _, m := range members {
		for _, n := range neighbors[m] {
			if !grouped[n] && !seen[n] {
				seen[n] = true
				out = append(out, n)
			}
		}
	}
	return out
}

func worstPairDistance(a, b []r3.Vec) float64 {
	worst := 0.0
	for _, p := range a {
		for _, q := range b {
			if d := r3.Norm(r3.Sub(p, q)); d > worst {
				worst = d
			}
		}
	}
	return worst
}

// boundClusterBox fits the cluster's body-frame box from the 2D convex hull of
// its vertices, falling back to the raw vertex set when the hull degenerates.
func boundClusterBox(cl *Cluster, vertices []r3.Vec, minDim float64) {
	seen := make(map[int]bool)
	var pts []r3.Vec
	for _, tri := range cl.Faces {
		for _, idx := range tri {
			if !seen[idx] {
				seen[idx] = true
				pts = append(pts, vertices[idx])
			}
		}
	}

	hull := geometry.ConvexHull2D(pts)
	if hull == nil {
		hull = pts
	}

	// The projected hull fixes the x-y footprint; z bounds come from the full
	// vertex set since the projection discards depth.
	lo := r3.Vec{X: math.Inf(1), Y: math.Inf(1), Z: math.Inf(1)}
	hi := r3.Vec{X: math.Inf(-1), Y: math.Inf(-1), Z: math.Inf(-1)}
	for _, p := range hull {
		lo.X = math.Min(lo.X, p.X)
		lo.Y = math.Min(lo.Y, p.Y)
		hi.X = math.Max(hi.X, p.X)
		hi.Y = math.Max(hi.Y, p.Y)
	}
	for _, p := range pts {
		lo.Z = math.Min(lo.Z, p.Z)
		hi.Z = math.Max(hi.Z, p.Z)
	}
	cl.Centroid = r3.Scale(0.5, r3.Add(lo, hi))

	half := r3.Scale(0.5, r3.Sub(hi, lo))
	cl.HalfExtent = r3.Vec{
		X: math.Max(half.X, minDim),
		Y: math.Max(half.Y, minDim),
		Z: math.Max(half.Z, minDim),
	}
}

// assignUniqueVerts walks clusters in build order and gives each one the
// vertex indices not claimed by an earlier cluster.
func assignUniqueVerts(clusters []Cluster) {
	claimed := make(map[int]bool)
	for ci := range clusters {
		seen := make(map[int]bool)
		var unique []int
		for _, tri := range clusters[ci].Faces {
			for _, idx := range tri {
				if !seen[idx] {
					seen[idx] = true
					if !claimed[idx] {
						unique = append(unique, idx)
					}
				}
			}
		}
		sort.Ints(unique)
		clusters[ci].UniqueVerts = unique
		for _, idx := range unique {
			claimed[idx] = true
		}
	}
}

type directedEdge struct {
	cluster, face int
}

// pairEdges emits the three directed edges of every face, matches each with
// its reverse-oriented twin anywhere in the body, and stores the pair once in
// the cluster of the first occurrence. Unmatched edges are kept as boundary
// edges carrying their single face.
func pairEdges(clusters []Cluster) {
	type key [2]int
	pending := make(map[key]struct {
		owner directedEdge
		slot  int
	})

	for ci := range clusters {
		for fi, tri := range clusters[ci].Faces {
			for k := 0; k < 3; k++ {
				a, b := tri[k], tri[(k+1)%3]
				if match, ok := pending[key{b, a}]; ok {
					delete(pending, key{b, a})
					owner := &clusters[match.owner.cluster]
					owner.Edges[match.slot].OtherCluster = ci
					owner.Edges[match.slot].OtherFace = fi
					continue
				}
				clusters[ci].Edges = append(clusters[ci].Edges, Edge{
					V0: a, V1: b, Face: fi,
					OtherCluster: -1, OtherFace: -1,
				})
				pending[key{a, b}] = struct {
					owner directedEdge
					slot  int
				}{directedEdge{ci, fi}, len(clusters[ci].Edges) - 1}
			}
		}
	}
}
