package mesh

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"
)

// cubeMesh is a unit cube centered at the origin, counter-clockwise winding
// viewed from outside.
func cubeMesh() ([]r3.Vec, []Shape) {
	verts := []r3.Vec{
		{X: -0.5, Y: -0.5, Z: -0.5}, {X: 0.5, Y: -0.5, Z: -0.5},
		{X: 0.5, Y: 0.5, Z: -0.5}, {X: -0.5, Y: 0.5, Z: -0.5},
		{X: -0.5, Y: -0.5, Z: 0.5}, {X: 0.5, Y: -0.5, Z: 0.5},
		{X: 0.5, Y: 0.5, Z: 0.5}, {X: -0.5, Y: 0.5, Z: 0.5},
	}
	tris := [][3]int{
		{0, 2, 1}, {0, 3, 2},
		{4, 5, 6}, {4, 6, 7},
		{0, 1, 5}, {0, 5, 4},
		{2, 3, 7}, {2, 7, 6},
		{1, 2, 6}, {1, 6, 5},
		{3, 0, 4}, {3, 4, 7},
	}
	return verts, []Shape{{Triangles: tris}}
}

// icosahedronMesh is a regular icosahedron with edge length 1.
func icosahedronMesh() ([]r3.Vec, []Shape) {
	phi := (1 + math.Sqrt(5)) / 2
	raw := []r3.Vec{
		{X: -1, Y: phi}, {X: 1, Y: phi}, {X: -1, Y: -phi}, {X: 1, Y: -phi},
		{Y: -1, Z: phi}, {Y: 1, Z: phi}, {Y: -1, Z: -phi}, {Y: 1, Z: -phi},
		{X: phi, Z: -1}, {X: phi, Z: 1}, {X: -phi, Z: -1}, {X: -phi, Z: 1},
	}
	verts := make([]r3.Vec, len(raw))
	for i, v := range raw {
		verts[i] = r3.Scale(0.5, v) // edge length 2 -> 1
	}
	tris := [][3]int{
		{0, 11, 5}, {0, 5, 1}, {0, 1, 7}, {0, 7, 10}, {0, 10, 11},
		{1, 5, 9}, {5, 11, 4}, {11, 10, 2}, {10, 7, 6}, {7, 1, 8},
		{3, 9, 4}, {3, 4, 2}, {3, 2, 6}, {3, 6, 8}, {3, 8, 9},
		{4, 9, 5}, {2, 4, 11}, {6, 2, 10}, {8, 6, 7}, {9, 8, 1},
	}
	return verts, []Shape{{Triangles: tris}}
}

func TestBuildCubeSingleCluster(t *testing.T) {
	verts, shapes := cubeMesh()
	clusters, err := Build(verts, shapes, Options{MaxBoundingBoxDim: 3, MinBoundingBoxDim: 0.005})
	require.NoError(t, err)
	require.Len(t, clusters, 1)

	cl := clusters[0]
	assert.Len(t, cl.Faces, 12)
	// 12 triangles on a closed cube share 18 unique edges, none boundary.
	assert.Len(t, cl.Edges, 18)
	for _, e := range cl.Edges {
		assert.False(t, e.Boundary())
	}
	assert.Len(t, cl.UniqueVerts, 8)

	assert.InDelta(t, 0, cl.Centroid.X, 1e-12)
	assert.InDelta(t, 0, cl.Centroid.Y, 1e-12)
	assert.InDelta(t, 0, cl.Centroid.Z, 1e-12)
	assert.InDelta(t, 0.5, cl.HalfExtent.X, 1e-12)
	assert.InDelta(t, 0.5, cl.HalfExtent.Y, 1e-12)
	assert.InDelta(t, 0.5, cl.HalfExtent.Z, 1e-12)
}

func TestBuildIcosahedronSplits(t *testing.T) {
	verts, shapes := icosahedronMesh()
	clusters, err := Build(verts, shapes, Options{MaxBoundingBoxDim: 0.6, MinBoundingBoxDim: 0.005})
	require.NoError(t, err)
	assert.GreaterOrEqual(t, len(clusters), 2)

	// Every triangle lands in exactly one cluster.
	seen := make(map[[3]int]int)
	total := 0
	for _, cl := range clusters {
		total += len(cl.Faces)
		for _, f := range cl.Faces {
			seen[f]++
		}
	}
	assert.Equal(t, 20, total)
	for f, n := range seen {
		assert.Equal(t, 1, n, "face %v grouped %d times", f, n)
	}

	// A closed icosahedron has 30 edges, each shared by exactly two faces.
	edges := 0
	for _, cl := range clusters {
		for _, e := range cl.Edges {
			edges++
			assert.False(t, e.Boundary(), "edge %d-%d lost its second face", e.V0, e.V1)
			require.Less(t, e.OtherCluster, len(clusters))
			require.Less(t, e.OtherFace, len(clusters[e.OtherCluster].Faces))
		}
	}
	assert.Equal(t, 30, edges)

	// Vertex ownership covers all 12 vertices exactly once.
	owned := make(map[int]int)
	for _, cl := range clusters {
		for _, v := range cl.UniqueVerts {
			owned[v]++
		}
	}
	assert.Len(t, owned, 12)
	for v, n := range owned {
		assert.Equal(t, 1, n, "vertex %d owned %d times", v, n)
	}
}

func TestBuildBoundaryEdges(t *testing.T) {
	// A single triangle has three boundary edges.
	verts := []r3.Vec{{X: 0}, {X: 1}, {Y: 1}}
	clusters, err := Build(verts, []Shape{{Triangles: [][3]int{{0, 1, 2}}}},
		Options{MaxBoundingBoxDim: 5, MinBoundingBoxDim: 0.005})
	require.NoError(t, err)
	require.Len(t, clusters, 1)
	require.Len(t, clusters[0].Edges, 3)
	for _, e := range clusters[0].Edges {
		assert.True(t, e.Boundary())
	}
}

func TestBuildMinHalfExtent(t *testing.T) {
	// A flat plate still gets the configured minimum thickness.
	verts := []r3.Vec{{X: -1, Y: -1}, {X: 1, Y: -1}, {X: 1, Y: 1}, {X: -1, Y: 1}}
	clusters, err := Build(verts, []Shape{{Triangles: [][3]int{{0, 1, 2}, {0, 2, 3}}}},
		Options{MaxBoundingBoxDim: 10, MinBoundingBoxDim: 0.005})
	require.NoError(t, err)
	require.Len(t, clusters, 1)
	assert.InDelta(t, 1.0, clusters[0].HalfExtent.X, 1e-12)
	assert.InDelta(t, 1.0, clusters[0].HalfExtent.Y, 1e-12)
	assert.InDelta(t, 0.005, clusters[0].HalfExtent.Z, 1e-12)
}

func TestBuildSkipsDegenerate(t *testing.T) {
	verts := []r3.Vec{{X: 0}, {X: 1}, {Y: 1}, {X: 2}}
	tris := [][3]int{
		{0, 1, 2},
		{0, 1, 3}, // collinear, zero area
	}
	clusters, err := Build(verts, []Shape{{Triangles: tris}},
		Options{MaxBoundingBoxDim: 5, MinBoundingBoxDim: 0.005})
	require.NoError(t, err)
	total := 0
	for _, cl := range clusters {
		total += len(cl.Faces)
	}
	assert.Equal(t, 1, total)
}

func TestBuildRejectsBadInput(t *testing.T) {
	_, err := Build(nil, nil, Options{MaxBoundingBoxDim: 1, MinBoundingBoxDim: 0.005})
	assert.Error(t, err)

	verts := []r3.Vec{{X: 0}, {X: 1}, {Y: 1}}
	_, err = Build(verts, []Shape{{Triangles: [][3]int{{0, 1, 7}}}},
		Options{MaxBoundingBoxDim: 1, MinBoundingBoxDim: 0.005})
	assert.Error(t, err)
}

func TestFaceNormalsOutward(t *testing.T) {
	verts, shapes := cubeMesh()
	clusters, err := Build(verts, shapes, Options{MaxBoundingBoxDim: 3, MinBoundingBoxDim: 0.005})
	require.NoError(t, err)
	for _, cl := range clusters {
		for i, n := range cl.Normals {
			// Outward means the normal points away from the cube center.
			assert.Greater(t, r3.Dot(n, cl.Centroids[i]), 0.0)
			assert.InDelta(t, 1.0, r3.Norm(n), 1e-12)
		}
	}
}
