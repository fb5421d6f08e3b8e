// Package contactsim resolves mechanical contact between rigid polyhedral
// bodies for a host rigid-body simulator. Bodies register once at setup; each
// host cycle then runs ingestion, a swept broad phase, narrow-phase contact
// localization and an impulsive contact solve, with the resolved force and
// torque served back to the host's integrator stages.
package contactsim

import (
	"fmt"
	"log"
	"math"
	"math/rand"

	"gonum.org/v1/gonum/spatial/r3"

	"contactsim/internal/body"
	"contactsim/internal/broadphase"
	"contactsim/internal/mesh"
	"contactsim/internal/narrowphase"
	"contactsim/internal/solver"
)

// Re-exported registration types so hosts only import this package.
type (
	MeshData         = body.MeshData
	Shape            = mesh.Shape
	StateMessage     = body.StateMessage
	MassMessage      = body.MassMessage
	EphemerisMessage = body.EphemerisMessage
	StateSource      = body.StateSource
	MassSource       = body.MassSource
	EphemerisSource  = body.EphemerisSource
)

const nanoToSec = 1e-9

// topCallTol detects repeats of the macro step's leading (time, step) pair.
const topCallTol = 1e-15

// responseKind is the per-body slot state of the coordinator's machine.
type responseKind int

const (
	slotIdle responseKind = iota
	slotCached
	slotSentinel
)

// responseSlot caches one body's resolved share of a pairwise response, or
// marks it locked to the sentinel for the rest of the macro step.
type responseSlot struct {
	kind      responseKind
	force     r3.Vec
	torque    r3.Vec
	timeFound float64
	step      float64
}

// Effector is the cycle coordinator. All methods are called from the host's
// integrator thread; nothing here is safe for concurrent use.
type Effector struct {
	cfg Config
	reg body.Registry
	rng *rand.Rand

	simTime float64

	// pairs and overlaps come out of the broad phase each Update. Pairs are
	// ordered with a dynamic body first.
	pairs    []broadphase.Pair
	overlaps [][]broadphase.Overlap

	// dynamicOrder lists the bodies the host queries, in registration order.
	dynamicOrder []int

	newMacroStep bool
	topTime      float64
	topStep      float64
	cursor       int
	slots        []responseSlot
}

// New creates an effector with the given configuration.
func New(cfg Config) (*Effector, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Effector{
		cfg: cfg,
		rng: rand.New(rand.NewSource(1)),
	}, nil
}

// Config returns the effector's configuration.
func (e *Effector) Config() Config {
	return e.cfg
}

func (e *Effector) meshOptions() mesh.Options {
	return mesh.Options{
		MaxBoundingBoxDim: e.cfg.MaxBoundingBoxDim,
		MinBoundingBoxDim: e.cfg.MinBoundingBoxDim,
	}
}

// RegisterBody adds a fully simulated body fed by state and mass-property
// messages.
func (e *Effector) RegisterBody(data MeshData, tag string, states StateSource, masses MassSource, boundingRadius, restitution, friction float64) error {
	b, err := e.reg.AddDynamic(data, tag, states, masses, boundingRadius, restitution, friction, e.meshOptions())
	if err != nil {
		return err
	}
	e.dynamicOrder = append(e.dynamicOrder, indexOf(e.reg.Bodies, b))
	e.slots = append(e.slots, responseSlot{})
	return nil
}

// RegisterKinematicBody adds a body whose trajectory is imposed externally.
// It never appears as the active body in a cycle, only as the partner.
func (e *Effector) RegisterKinematicBody(data MeshData, tag string, ephem EphemerisSource, boundingRadius, restitution, friction float64) error {
	_, err := e.reg.AddKinematic(data, tag, ephem, boundingRadius, restitution, friction, e.meshOptions())
	if err != nil {
		return err
	}
	e.slots = append(e.slots, responseSlot{})
	return nil
}

func indexOf(bodies []*body.Body, b *body.Body) int {
	for i := range bodies {
		if bodies[i] == b {
			return i
		}
	}
	return -1
}

// Update ingests fresh body states, extrapolates the end-of-step kinematics
// and runs both broad-phase passes. It resets the per-macro-step cache, so it
// must be called once at the top of each host cycle.
func (e *Effector) Update(simTimeNs uint64) error {
	if err := e.reg.IngestAll(); err != nil {
		return err
	}
	e.simTime = float64(simTimeNs) * nanoToSec
	for _, b := range e.reg.Bodies {
		b.SetFuture(e.cfg.SimTimeStep)
	}

	e.pairs = e.pairs[:0]
	e.overlaps = e.overlaps[:0]
	for _, p := range broadphase.SpherePairs(e.reg.Bodies) {
		// The solver owns body 1 of a pair, so a dynamic body goes first.
		if e.reg.Bodies[p.A].Kinematic {
			if e.reg.Bodies[p.B].Kinematic {
				continue
			}
			p.A, p.B = p.B, p.A
		}
		ov := broadphase.BoxPairs(e.reg.Bodies[p.A], e.reg.Bodies[p.B], e.cfg.BoundingBoxFF)
		if len(ov) == 0 {
			continue
		}
		e.pairs = append(e.pairs, p)
		e.overlaps = append(e.overlaps, ov)
	}

	for i := range e.slots {
		e.slots[i] = responseSlot{}
	}
	e.newMacroStep = true
	e.cursor = 0
	return nil
}

// ComputeForceTorque returns the force on the current body in the inertial
// frame and the torque about its origin in its body frame. The host may call
// it several times per macro step with varying step sizes; matching calls are
// served from the cached pairwise solution so both bodies see one consistent
// result.
func (e *Effector) ComputeForceTorque(currentTime, timeStep float64) (r3.Vec, r3.Vec) {
	if len(e.dynamicOrder) == 0 {
		return r3.Vec{}, r3.Vec{}
	}

	if e.newMacroStep {
		e.newMacroStep = false
		e.topTime = currentTime
		e.topStep = timeStep
		e.cursor = 0
	} else if math.Abs(currentTime-e.topTime) < topCallTol && math.Abs(timeStep-e.topStep) < topCallTol {
		// A repeat of the leading (time, step) pair means the host moved on
		// to the next body in its cycle.
		e.cursor = (e.cursor + 1) % len(e.dynamicOrder)
	}

	active := e.dynamicOrder[e.cursor]
	slot := &e.slots[active]

	switch slot.kind {
	case slotSentinel:
		if math.Abs(timeStep-slot.step) < e.cfg.TimeSynchTol {
			return e.sentinel(timeStep)
		}
		// The host shrank its step; try a real resolution again.
		slot.kind = slotIdle
	case slotCached:
		if slot.timeFound >= currentTime && math.Abs(timeStep-slot.step) < e.cfg.TimeSynchTol {
			return slot.force, slot.torque
		}
		slot.kind = slotIdle
	}

	return e.probe(active, currentTime, timeStep)
}

// probe runs narrow phase and the impulse solve for the active body's
// admitted pair at the queried instant.
func (e *Effector) probe(active int, currentTime, timeStep float64) (r3.Vec, r3.Vec) {
	pairIdx := -1
	for i, p := range e.pairs {
		if p.A == active || p.B == active {
			pairIdx = i
			break
		}
	}
	if pairIdx < 0 {
		return r3.Vec{}, r3.Vec{}
	}
	p := e.pairs[pairIdx]
	b1 := e.reg.Bodies[p.A]
	b2 := e.reg.Bodies[p.B]

	elapsed := currentTime - e.simTime
	cur1 := b1.Propagate(b1.State, elapsed)
	cur2 := b2.Propagate(b2.State, elapsed)
	fut1 := b1.Propagate(cur1, timeStep)
	fut2 := b2.Propagate(cur2, timeStep)

	res := narrowphase.FindContacts(b1, b2, cur1, cur2, fut1, fut2, e.overlaps[pairIdx], e.cfg.MaxPosError)

	slot := &e.slots[active]
	if len(res.Contacts) == 0 {
		// Either the step is too long to catch the approach, or everything
		// found had already interpenetrated past the error gate. Lock to the
		// sentinel so the host rejects the step and retries shorter.
		slot.kind = slotSentinel
		slot.timeFound = currentTime + timeStep + 1e-15
		slot.step = timeStep
		if res.Rejected > 0 {
			log.Printf("contact: %s/%s penetration beyond %g at t=%.6f, rejecting step (dt=%g)",
				b1.Tag, b2.Tag, e.cfg.MaxPosError, currentTime, timeStep)
			return e.sentinel(timeStep)
		}
		return r3.Vec{}, r3.Vec{}
	}

	out := solver.Resolve(res.Contacts, cur1, cur2, b2.Kinematic, solver.Params{
		Restitution:   b1.Restitution,
		Friction:      b1.Friction,
		Step:          e.cfg.CollisionIntegrationStep,
		SlipTolerance: e.cfg.SlipTolerance,
		MaxIterations: e.cfg.SolverIterationCap,
	}, timeStep)

	timeFound := currentTime + timeStep + 1e-15
	e.slots[p.A] = responseSlot{
		kind: slotCached, force: out.Force1, torque: out.Torque1,
		timeFound: timeFound, step: timeStep,
	}
	e.slots[p.B] = responseSlot{
		kind: slotCached, force: out.Force2, torque: out.Torque2,
		timeFound: timeFound, step: timeStep,
	}

	if active == p.A {
		return out.Force1, out.Torque1
	}
	return out.Force2, out.Torque2
}

// sentinel produces the deliberately huge pseudo-random response that drives
// an adaptive host integrator to reject the step and shrink it.
func (e *Effector) sentinel(timeStep float64) (r3.Vec, r3.Vec) {
	pick := func() float64 {
		return (float64(e.rng.Intn(1000)) + 1000.0) / timeStep
	}
	force := r3.Vec{X: pick(), Y: pick(), Z: pick()}
	torque := r3.Vec{X: pick(), Y: pick(), Z: pick()}
	return force, torque
}

// BodyCount returns the number of registered bodies.
func (e *Effector) BodyCount() int {
	return len(e.reg.Bodies)
}

// Body exposes a registered body for inspection.
func (e *Effector) Body(i int) (*body.Body, error) {
	if i < 0 || i >= len(e.reg.Bodies) {
		return nil, fmt.Errorf("contactsim: body index %d out of range", i)
	}
	return e.reg.Bodies[i], nil
}
