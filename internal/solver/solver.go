// Package solver resolves multi-point impulsive collisions with Coulomb
// friction and Stronge's energetic restitution law. The contact state is
// integrated with a fixed-step RK4 in impulse space until every contact has
// worked off its restitution energy.
package solver

import (
	"log"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r3"

	"contactsim/internal/body"
	"contactsim/internal/geometry"
	"contactsim/internal/narrowphase"
)

// Params tunes one solve.
type Params struct {
	Restitution float64
	Friction    float64
	// Step is the RK4 step in impulse space.
	Step float64
	// SlipTolerance is the tangential speed below which the contact sticks
	// and no friction impulse is pumped.
	SlipTolerance float64
	// MaxIterations caps the integration; on hit the partial impulse is used.
	MaxIterations int
}

// Output is the resolved response. Force1 acts on body 1 in the inertial
// frame; Torque1 is about body 1's origin in its body frame. Force2/Torque2
// are the reaction on body 2. Impulses holds the per-contact world impulse on
// body 1.
type Output struct {
	Force1, Torque1 r3.Vec
	Force2, Torque2 r3.Vec
	Impulses        []r3.Vec
	Iterations      int
	CapHit          bool
}

// frameAlignTol rejects a reference direction nearly parallel to the contact
// normal when building the tangent frame.
const frameAlignTol = 1e-9

// contactFrames builds, per contact, the rotation from the inertial frame
// into the contact frame (third axis along the normal) and the composite
// rotations from each body frame.
func contactFrames(contacts []narrowphase.Contact, s1, s2 body.State) (cn, cb1, cb2 []*mat.Dense) {
	zRef := geometry.Column(s2.DCMNB, 2)
	xRef := geometry.Column(s2.DCMNB, 0)

	cn = make([]*mat.Dense, len(contacts))
	cb1 = make([]*mat.Dense, len(contacts))
	cb2 = make([]*mat.Dense, len(contacts))
	for i, c := range contacts {
		c3 := r3.Unit(c.Normal)
		c1 := r3.Cross(c3, zRef)
		if r3.Norm(c1) < frameAlignTol {
			c1 = r3.Cross(c3, xRef)
		}
		c1 = r3.Unit(c1)
		c2 := r3.Unit(r3.Cross(c3, c1))

		cn[i] = mat.NewDense(3, 3, []float64{
			c1.X, c1.Y, c1.Z,
			c2.X, c2.Y, c2.Z,
			c3.X, c3.Y, c3.Z,
		})
		var m1, m2 mat.Dense
		m1.Mul(cn[i], s1.DCMNB)
		cb1[i] = mat.DenseCopyOf(&m1)
		m2.Mul(cn[i], s2.DCMNB)
		cb2[i] = mat.DenseCopyOf(&m2)
	}
	return cn, cb1, cb2
}

// massMatrix assembles the 3k x 3k map from contact-frame impulses to the
// change in contact-frame relative velocity. The body 2 term is omitted when
// that body is kinematic.
func massMatrix(contacts []narrowphase.Contact, s1, s2 body.State, body2Kinematic bool, cn, cb1, cb2 []*mat.Dense) *mat.Dense {
	k := len(contacts)
	total := mat.NewDense(3*k, 3*k, nil)

	bodyTerm := func(dst *mat.Dense, mass float64, inertiaInv *mat.Dense, cb *mat.Dense, leverI, leverJ r3.Vec) {
		var rot, term mat.Dense
		rot.Mul(cb, inertiaInv)
		rot.Mul(&rot, cb.T())
		term.Mul(geometry.Tilde(leverI), &rot)
		term.Mul(&term, geometry.Tilde(leverJ))
		for r := 0; r < 3; r++ {
			for c := 0; c < 3; c++ {
				v := -term.At(r, c)
				if r == c {
					v += 1.0 / mass
				}
				dst.Set(r, c, dst.At(r, c)+v)
			}
		}
	}

	for i := 0; i < k; i++ {
		for j := 0; j < k; j++ {
			block := mat.NewDense(3, 3, nil)
			lever1i := geometry.MulVec(cn[i], r3.Sub(contacts[i].P1, s1.R))
			lever1j := geometry.MulVec(cn[i], r3.Sub(contacts[j].P1, s1.R))
			bodyTerm(block, s1.Mass, s1.InertiaInv, cb1[i], lever1i, lever1j)

			if !body2Kinematic {
				lever2i := geometry.MulVec(cn[i], r3.Sub(contacts[i].P2, s2.R))
				lever2j := geometry.MulVec(cn[i], r3.Sub(contacts[j].P2, s2.R))
				bodyTerm(block, s2.Mass, s2.InertiaInv, cb2[i], lever2i, lever2j)
			}

			if i != j {
				// Rotate frame-j impulses into frame i.
				var rel mat.Dense
				rel.Mul(cb1[i], cb1[j].T())
				block.Mul(block, &rel)
			}
			total.Slice(i*3, i*3+3, j*3, j*3+3).(*mat.Dense).Copy(block)
		}
	}
	return total
}

// collisionState lays out the 8k solve vector: per-contact relative velocity
// (3k), accumulated impulse (3k), then compression/restitution work pairs
// (2k), all in contact-frame coordinates.
type collisionState struct {
	k int
	x []float64
}

func (s *collisionState) vel(i int) []float64     { return s.x[i*3 : i*3+3] }
func (s *collisionState) impulse(i int) []float64 { return s.x[s.k*3+i*3 : s.k*3+i*3+3] }

// restitutionDone is the Stronge energetic condition: the contact is finished
// once the restitution work has recovered e^2 of the compression work.
func restitutionDone(x []float64, k, i int, e float64) bool {
	return x[k*6+i*2+1] >= -(e*e)*x[k*6+i*2]
}

// derivative evaluates the collision ODE at state x into dst. Active contacts
// pump unit normal impulse with a Coulomb-friction tangential component
// opposing the slip direction; work terms integrate the normal velocity in
// their respective phases.
func derivative(dst, x []float64, k int, m *mat.Dense, p Params, scratch []float64) {
	for i := range dst {
		dst[i] = 0
	}
	for i := 0; i < k; i++ {
		vx, vy, vz := x[i*3], x[i*3+1], x[i*3+2]
		active := !restitutionDone(x, k, i, p.Restitution)
		if active {
			if math.Hypot(vx, vy) > p.SlipTolerance {
				phi := math.Atan2(vy, vx)
				dst[k*3+i*3] = -p.Friction * math.Cos(phi)
				dst[k*3+i*3+1] = -p.Friction * math.Sin(phi)
			}
			dst[k*3+i*3+2] = 1.0
		}
		if vz < 0 {
			dst[k*6+i*2] = vz
		} else if active {
			dst[k*6+i*2+1] = vz
		}
	}

	dP := mat.NewVecDense(3*k, dst[k*3:k*6])
	dv := mat.NewVecDense(3*k, scratch[:3*k])
	dv.MulVec(m, dP)
	copy(dst[:3*k], scratch[:3*k])
}

// Resolve integrates the contact set to completion and converts the
// accumulated impulses into the force and torque each body receives over the
// step dt.
func Resolve(contacts []narrowphase.Contact, s1, s2 body.State, body2Kinematic bool, p Params, dt float64) Output {
	k := len(contacts)
	out := Output{Impulses: make([]r3.Vec, k)}
	if k == 0 {
		return out
	}

	cn, cb1, cb2 := contactFrames(contacts, s1, s2)
	m := massMatrix(contacts, s1, s2, body2Kinematic, cn, cb1, cb2)

	state := collisionState{k: k, x: make([]float64, 8*k)}
	for i, c := range contacts {
		rel := r3.Sub(body.SurfaceVelocity(s1, c.P1), body.SurfaceVelocity(s2, c.P2))
		vC := geometry.MulVec(cn[i], rel)
		state.vel(i)[0] = vC.X
		state.vel(i)[1] = vC.Y
		state.vel(i)[2] = vC.Z
		// Seed the restitution work with the sign of the initial normal
		// approach to keep the termination test well-defined at zero.
		if vC.Z < 0 {
			state.x[k*6+i*2+1] = -1e-14
		} else {
			state.x[k*6+i*2+1] = 1e-14
		}
	}

	n := 8 * k
	k1 := make([]float64, n)
	k2 := make([]float64, n)
	k3 := make([]float64, n)
	k4 := make([]float64, n)
	stage := make([]float64, n)
	scratch := make([]float64, 3*k)

	h := p.Step
	for {
		out.Iterations++

		derivative(k1, state.x, k, m, p, scratch)
		axpy(stage, state.x, k1, h/2)
		derivative(k2, stage, k, m, p, scratch)
		axpy(stage, state.x, k2, h/2)
		derivative(k3, stage, k, m, p, scratch)
		axpy(stage, state.x, k3, h)
		derivative(k4, stage, k, m, p, scratch)

		for i := 0; i < n; i++ {
			state.x[i] += h / 6 * (k1[i] + 2*k2[i] + 2*k3[i] + k4[i])
		}

		done := true
		for i := 0; i < k; i++ {
			if !restitutionDone(state.x, k, i, p.Restitution) {
				done = false
				break
			}
		}
		if done {
			break
		}
		if out.Iterations >= p.MaxIterations {
			out.CapHit = true
			log.Printf("solver: iteration cap %d hit with %d contacts, using partial impulse", p.MaxIterations, k)
			break
		}
	}

	for i, c := range contacts {
		pC := state.impulse(i)
		impulse := geometry.MulVecT(cn[i], r3.Vec{X: pC[0], Y: pC[1], Z: pC[2]})
		out.Impulses[i] = impulse

		out.Force1 = r3.Add(out.Force1, r3.Scale(1/dt, impulse))
		arm1 := r3.Sub(c.P1, s1.R)
		out.Torque1 = r3.Add(out.Torque1,
			geometry.MulVec(s1.DCMBN, r3.Scale(1/dt, r3.Cross(arm1, impulse))))

		out.Force2 = r3.Sub(out.Force2, r3.Scale(1/dt, impulse))
		arm2 := r3.Sub(c.P2, s2.R)
		out.Torque2 = r3.Sub(out.Torque2,
			geometry.MulVec(s2.DCMBN, r3.Scale(1/dt, r3.Cross(arm2, impulse))))
	}
	return out
}

// axpy writes dst = x + a*y.
func axpy(dst, x, y []float64, a float64) {
	for i := range dst {
		dst[i] = x[i] + a*y[i]
	}
}
