package body

import (
	"fmt"

	"gonum.org/v1/gonum/spatial/r3"

	"contactsim/internal/mesh"
)

// MeshData is the parsed form of a body's surface: vertex positions in the
// body frame and triangle groups indexing into them. File parsing happens
// upstream; only triangulated input is accepted here.
type MeshData struct {
	Vertices []r3.Vec
	Shapes   []mesh.Shape
}

// Registry owns every registered body. Bodies are appended at setup and never
// removed; indices are stable handles for the rest of the pipeline.
type Registry struct {
	Bodies []*Body
}

// AddDynamic registers a fully simulated body. The mesh is clustered
// immediately so later cycles only read prebuilt geometry.
func (r *Registry) AddDynamic(data MeshData, tag string, states StateSource, masses MassSource, boundingRadius, restitution, friction float64, opt mesh.Options) (*Body, error) {
	if states == nil || masses == nil {
		return nil, fmt.Errorf("registry: body %s: missing state or mass source", tag)
	}
	b, err := r.add(data, tag, boundingRadius, restitution, friction, opt)
	if err != nil {
		return nil, err
	}
	b.StateSrc = states
	b.MassSrc = masses
	return b, nil
}

// AddKinematic registers a body whose trajectory is imposed externally. It
// participates in contacts only as the partner; the solver treats it as
// having infinite mass.
func (r *Registry) AddKinematic(data MeshData, tag string, ephem EphemerisSource, boundingRadius, restitution, friction float64, opt mesh.Options) (*Body, error) {
	if ephem == nil {
		return nil, fmt.Errorf("registry: body %s: missing ephemeris source", tag)
	}
	b, err := r.add(data, tag, boundingRadius, restitution, friction, opt)
	if err != nil {
		return nil, err
	}
	b.Kinematic = true
	b.EphemSrc = ephem
	return b, nil
}

func (r *Registry) add(data MeshData, tag string, boundingRadius, restitution, friction float64, opt mesh.Options) (*Body, error) {
	if boundingRadius <= 0 {
		return nil, fmt.Errorf("registry: body %s: bounding radius must be positive", tag)
	}
	if restitution < 0 || restitution > 1 {
		return nil, fmt.Errorf("registry: body %s: restitution %g outside [0,1]", tag, restitution)
	}
	if friction < 0 {
		return nil, fmt.Errorf("registry: body %s: negative friction %g", tag, friction)
	}
	clusters, err := mesh.Build(data.Vertices, data.Shapes, opt)
	if err != nil {
		return nil, fmt.Errorf("registry: body %s: %w", tag, err)
	}
	b := &Body{
		Tag:            tag,
		Vertices:       data.Vertices,
		Clusters:       clusters,
		BoundingRadius: boundingRadius,
		Restitution:    restitution,
		Friction:       friction,
	}
	r.Bodies = append(r.Bodies, b)
	return b, nil
}

// IngestAll pulls fresh messages for every body.
func (r *Registry) IngestAll() error {
	if len(r.Bodies) == 0 {
		return fmt.Errorf("registry: no bodies registered")
	}
	for _, b := range r.Bodies {
		if err := b.Ingest(); err != nil {
			return err
		}
	}
	return nil
}
