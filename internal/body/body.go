// Package body holds per-body geometry, mass properties and kinematic state,
// along with the message interfaces that deliver state from the host
// simulator each cycle.
package body

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/num/quat"
	"gonum.org/v1/gonum/spatial/r3"

	"contactsim/internal/geometry"
	"contactsim/internal/mesh"
)

// StateMessage is one sample of a dynamic body's kinematic state from the
// host bus. Attitude is a unit quaternion rotating body-frame vectors into
// the inertial frame; rates and the non-conservative acceleration are in the
// body frame.
type StateMessage struct {
	Position r3.Vec
	Velocity r3.Vec
	Attitude quat.Number
	Omega    r3.Vec
	OmegaDot r3.Vec
	// NonConservativeAccel is the body-frame linear acceleration from
	// non-conservative forces, used when propagating to interior stage times.
	NonConservativeAccel r3.Vec
}

// MassMessage carries a dynamic body's mass properties.
type MassMessage struct {
	Mass float64
	// Inertia is the 3x3 body-frame inertia about the body origin.
	Inertia *mat.Dense
}

// EphemerisMessage is one sample of a kinematic body's externally imposed
// trajectory. DCM rotates inertial vectors into the body frame; DCMRate is
// its time derivative.
type EphemerisMessage struct {
	Position r3.Vec
	Velocity r3.Vec
	DCM      *mat.Dense
	DCMRate  *mat.Dense
}

// StateSource, MassSource and EphemerisSource are the narrow read interfaces
// onto the host message bus.
type StateSource interface {
	State() StateMessage
}

type MassSource interface {
	MassProps() MassMessage
}

type EphemerisSource interface {
	Ephemeris() EphemerisMessage
}

// State is a body's kinematics at one instant, with the derived rotation
// matrices cached. DCMBN rotates inertial vectors into the body frame, DCMNB
// the reverse.
type State struct {
	R r3.Vec
	V r3.Vec
	// ANonCons is the body-frame non-conservative linear acceleration.
	ANonCons r3.Vec
	Omega    r3.Vec
	OmegaDot r3.Vec
	Attitude quat.Number

	Mass       float64
	Inertia    *mat.Dense
	InertiaInv *mat.Dense

	DCMBN *mat.Dense
	DCMNB *mat.Dense
}

// Body is one registered rigid body: immutable geometry and contact
// parameters plus the mutable per-cycle state.
type Body struct {
	Tag      string
	Vertices []r3.Vec
	Clusters []mesh.Cluster

	BoundingRadius float64
	Restitution    float64
	Friction       float64

	// Kinematic bodies follow an externally imposed trajectory and are
	// treated as having infinite mass by the solver.
	Kinematic bool

	StateSrc StateSource
	MassSrc  MassSource
	EphemSrc EphemerisSource

	State  State
	Future State
}

// Ingest pulls the body's current messages and rebuilds the derived state.
func (b *Body) Ingest() error {
	if b.Kinematic {
		msg := b.EphemSrc.Ephemeris()
		if msg.DCM == nil || msg.DCMRate == nil {
			return fmt.Errorf("body %s: ephemeris message missing attitude", b.Tag)
		}
		b.State = State{
			R:     msg.Position,
			V:     msg.Velocity,
			DCMBN: mat.DenseCopyOf(msg.DCM),
		}
		b.State.DCMNB = mat.DenseCopyOf(b.State.DCMBN.T())
		// omega tilde in the body frame follows from the DCM rate:
		// d/dt(BN) = -tilde(omega) * BN.
		var tilde mat.Dense
		tilde.Mul(msg.DCMRate, b.State.DCMBN.T())
		b.State.Omega = r3.Vec{X: -tilde.At(2, 1), Y: -tilde.At(0, 2), Z: -tilde.At(1, 0)}
		return nil
	}

	st := b.StateSrc.State()
	mp := b.MassSrc.MassProps()
	if mp.Mass <= 0 {
		return fmt.Errorf("body %s: non-positive mass %g", b.Tag, mp.Mass)
	}
	if mp.Inertia == nil {
		return fmt.Errorf("body %s: mass message missing inertia", b.Tag)
	}
	var inv mat.Dense
	if err := inv.Inverse(mp.Inertia); err != nil {
		return fmt.Errorf("body %s: inertia not invertible: %w", b.Tag, err)
	}

	b.State = State{
		R:          st.Position,
		V:          st.Velocity,
		ANonCons:   st.NonConservativeAccel,
		Omega:      st.Omega,
		OmegaDot:   st.OmegaDot,
		Attitude:   st.Attitude,
		Mass:       mp.Mass,
		Inertia:    mat.DenseCopyOf(mp.Inertia),
		InertiaInv: &inv,
	}
	b.State.DCMNB = geometry.DCMFromQuat(st.Attitude)
	b.State.DCMBN = mat.DenseCopyOf(b.State.DCMNB.T())
	return nil
}

// Propagate returns the state advanced dt seconds from s, holding the
// accelerations constant: position picks up the non-conservative term,
// attitude follows the linearized quaternion kinematic, and the body rate
// advances along omega dot. Kinematic bodies translate uniformly and their
// attitude integrates the DCM rate directly.
func (b *Body) Propagate(s State, dt float64) State {
	out := s
	if b.Kinematic {
		out.R = r3.Add(s.R, r3.Scale(dt, s.V))
		var d mat.Dense
		d.Mul(geometry.Tilde(s.Omega), s.DCMBN)
		d.Scale(-dt, &d)
		var bn mat.Dense
		bn.Add(s.DCMBN, &d)
		out.DCMBN = &bn
		out.DCMNB = mat.DenseCopyOf(bn.T())
		return out
	}

	accelN := geometry.MulVec(s.DCMNB, s.ANonCons)
	out.R = r3.Add(s.R, r3.Add(r3.Scale(dt, s.V), r3.Scale(0.5*dt*dt, accelN)))
	out.V = r3.Add(s.V, r3.Scale(dt, accelN))
	out.Omega = r3.Add(s.Omega, r3.Scale(dt, s.OmegaDot))
	out.Attitude = geometry.PropagateQuat(s.Attitude, out.Omega, dt)
	out.DCMNB = geometry.DCMFromQuat(out.Attitude)
	out.DCMBN = mat.DenseCopyOf(out.DCMNB.T())
	return out
}

// SetFuture caches the end-of-step extrapolation used by the swept phases.
func (b *Body) SetFuture(dt float64) {
	b.Future = b.Propagate(b.State, dt)
}

// VertexWorld maps a body-frame vertex into the inertial frame under state s.
func VertexWorld(s State, v r3.Vec) r3.Vec {
	return r3.Add(s.R, geometry.MulVec(s.DCMNB, v))
}

// SurfaceVelocity is the inertial velocity of the material point of the body
// currently at world position p.
func SurfaceVelocity(s State, p r3.Vec) r3.Vec {
	armB := geometry.MulVec(s.DCMBN, r3.Sub(p, s.R))
	return r3.Add(s.V, geometry.MulVec(s.DCMNB, r3.Cross(s.Omega, armB)))
}
