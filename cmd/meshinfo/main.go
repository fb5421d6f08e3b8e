// Inspects how a triangulated mesh clusters under the half-edge builder.
// Input is a plain text file of "v x y z" and "f i j k" lines (1-based,
// counter-clockwise), which is enough to sanity-check a bounding-box cap
// before wiring a body into a simulation.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/spatial/r3"

	"contactsim/internal/mesh"
)

func main() {
	maxDim := flag.Float64("max-dim", 1.0, "cluster growth cap (worst pairwise vertex distance)")
	minDim := flag.Float64("min-dim", 0.005, "minimum per-axis cluster box half-extent")
	flag.Parse()

	if flag.NArg() != 1 {
		fmt.Fprintf(os.Stderr, "usage: meshinfo [flags] <mesh file>\n")
		flag.PrintDefaults()
		os.Exit(2)
	}

	verts, tris, err := readMesh(flag.Arg(0))
	if err != nil {
		log.Fatalf("meshinfo: %v", err)
	}

	clusters, err := mesh.Build(verts, []mesh.Shape{{Triangles: tris}}, mesh.Options{
		MaxBoundingBoxDim: *maxDim,
		MinBoundingBoxDim: *minDim,
	})
	if err != nil {
		log.Fatalf("meshinfo: %v", err)
	}

	fmt.Printf("%d vertices, %d triangles, %d clusters\n", len(verts), len(tris), len(clusters))
	totalEdges, boundary := 0, 0
	for i, cl := range clusters {
		he := cl.HalfExtent
		fmt.Printf("cluster %2d: %3d faces %3d edges %3d owned verts  box (%.3f %.3f %.3f) @ (%.3f %.3f %.3f)\n",
			i, len(cl.Faces), len(cl.Edges), len(cl.UniqueVerts),
			he.X, he.Y, he.Z, cl.Centroid.X, cl.Centroid.Y, cl.Centroid.Z)
		totalEdges += len(cl.Edges)
		for _, e := range cl.Edges {
			if e.Boundary() {
				boundary++
			}
		}
	}
	fmt.Printf("%d unique edges, %d boundary\n", totalEdges, boundary)
}

func readMesh(path string) ([]r3.Vec, [][3]int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	defer f.Close()

	var verts []r3.Vec
	var tris [][3]int
	sc := bufio.NewScanner(f)
	line := 0
	for sc.Scan() {
		line++
		fields := strings.Fields(sc.Text())
		if len(fields) == 0 || strings.HasPrefix(fields[0], "#") {
			continue
		}
		switch fields[0] {
		case "v":
			if len(fields) != 4 {
				return nil, nil, fmt.Errorf("%s:%d: vertex needs 3 coordinates", path, line)
			}
			var v r3.Vec
			if v.X, err = strconv.ParseFloat(fields[1], 64); err != nil {
				return nil, nil, fmt.Errorf("%s:%d: %w", path, line, err)
			}
			if v.Y, err = strconv.ParseFloat(fields[2], 64); err != nil {
				return nil, nil, fmt.Errorf("%s:%d: %w", path, line, err)
			}
			if v.Z, err = strconv.ParseFloat(fields[3], 64); err != nil {
				return nil, nil, fmt.Errorf("%s:%d: %w", path, line, err)
			}
			verts = append(verts, v)
		case "f":
			if len(fields) != 4 {
				return nil, nil, fmt.Errorf("%s:%d: only triangular faces are supported", path, line)
			}
			var tri [3]int
			for i := 0; i < 3; i++ {
				idx, err := strconv.Atoi(strings.SplitN(fields[i+1], "/", 2)[0])
				if err != nil {
					return nil, nil, fmt.Errorf("%s:%d: %w", path, line, err)
				}
				tri[i] = idx - 1
			}
			tris = append(tris, tri)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, nil, err
	}
	return verts, tris, nil
}
