package contactsim

import (
	"math"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/num/quat"
	"gonum.org/v1/gonum/spatial/r3"
)

// hostBody drives a dynamic body from the test side.
type hostBody struct {
	pos, vel, omega r3.Vec
	mass            float64
}

func (h *hostBody) State() StateMessage {
	return StateMessage{
		Position: h.pos,
		Velocity: h.vel,
		Omega:    h.omega,
		Attitude: quat.Number{Real: 1},
	}
}

func (h *hostBody) MassProps() MassMessage {
	m := h.mass
	return MassMessage{
		Mass:    m,
		Inertia: mat.NewDense(3, 3, []float64{m / 6, 0, 0, 0, m / 6, 0, 0, 0, m / 6}),
	}
}

type hostPlate struct{}

func (hostPlate) Ephemeris() EphemerisMessage {
	return EphemerisMessage{
		DCM:     mat.NewDense(3, 3, []float64{1, 0, 0, 0, 1, 0, 0, 0, 1}),
		DCMRate: mat.NewDense(3, 3, nil),
	}
}

func cubeMeshData() MeshData {
	verts := []r3.Vec{
		{X: -0.5, Y: -0.5, Z: -0.5}, {X: 0.5, Y: -0.5, Z: -0.5},
		{X: 0.5, Y: 0.5, Z: -0.5}, {X: -0.5, Y: 0.5, Z: -0.5},
		{X: -0.5, Y: -0.5, Z: 0.5}, {X: 0.5, Y: -0.5, Z: 0.5},
		{X: 0.5, Y: 0.5, Z: 0.5}, {X: -0.5, Y: 0.5, Z: 0.5},
	}
	tris := [][3]int{
		{0, 2, 1}, {0, 3, 2}, {4, 5, 6}, {4, 6, 7},
		{0, 1, 5}, {0, 5, 4}, {2, 3, 7}, {2, 7, 6},
		{1, 2, 6}, {1, 6, 5}, {3, 0, 4}, {3, 4, 7},
	}
	return MeshData{Vertices: verts, Shapes: []Shape{{Triangles: tris}}}
}

func plateMeshData() MeshData {
	verts := []r3.Vec{
		{X: -5, Y: -5}, {X: 5, Y: -5}, {X: 5, Y: 5}, {X: -5, Y: 5},
	}
	return MeshData{Vertices: verts, Shapes: []Shape{{Triangles: [][3]int{{0, 1, 2}, {0, 2, 3}}}}}
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.MaxBoundingBoxDim = 2
	return cfg
}

func newDropRig(t *testing.T, cubeZ, cubeVZ float64, cfg Config) (*Effector, *hostBody) {
	t.Helper()
	eff, err := New(cfg)
	require.NoError(t, err)

	cube := &hostBody{pos: r3.Vec{Z: cubeZ}, vel: r3.Vec{Z: cubeVZ}, mass: 1}
	require.NoError(t, eff.RegisterBody(cubeMeshData(), "cube", cube, cube, 1.0, 0.5, 0))
	require.NoError(t, eff.RegisterKinematicBody(plateMeshData(), "plate", hostPlate{}, 8.0, 0.5, 0))
	return eff, cube
}

func TestCubeDropEndToEnd(t *testing.T) {
	eff, _ := newDropRig(t, 0.5005, -1, testConfig())
	require.NoError(t, eff.Update(0))

	dt := 1e-3
	force, torque := eff.ComputeForceTorque(0, dt)

	// Flat impact with e=0.5: impulse (1+e)*m*|v| spread over the step.
	assert.InDelta(t, 1500, force.Z, 1.0)
	assert.InDelta(t, 0, force.X, 1e-6)
	assert.InDelta(t, 0, force.Y, 1e-6)
	assert.InDelta(t, 0, r3.Norm(torque), 1e-3)
}

func TestRepeatedCallServedFromCache(t *testing.T) {
	eff, _ := newDropRig(t, 0.5005, -1, testConfig())
	require.NoError(t, eff.Update(0))

	dt := 1e-3
	f1, tq1 := eff.ComputeForceTorque(0, dt)
	f2, tq2 := eff.ComputeForceTorque(0, dt)
	assert.Equal(t, f1, f2)
	assert.Equal(t, tq1, tq2)
}

func TestInteriorStageRecomputes(t *testing.T) {
	eff, _ := newDropRig(t, 0.5005, -1, testConfig())
	require.NoError(t, eff.Update(0))

	eff.ComputeForceTorque(0, 1e-3)
	// An interior stage with a shorter step re-resolves at that step.
	force, _ := eff.ComputeForceTorque(4e-4, 5e-4)
	assert.InDelta(t, 3000, force.Z, 2.0)
}

func TestNoContactSentinel(t *testing.T) {
	// Boxes overlap for the step but no feature crossing occurs: the first
	// call returns zero, subsequent matched calls the huge random response.
	eff, _ := newDropRig(t, 0.5049, -0.1, testConfig())
	require.NoError(t, eff.Update(0))

	dt := 1e-3
	force, torque := eff.ComputeForceTorque(0, dt)
	assert.Zero(t, r3.Norm(force))
	assert.Zero(t, r3.Norm(torque))

	force, torque = eff.ComputeForceTorque(0, dt)
	assert.GreaterOrEqual(t, force.X, 1000/dt)
	assert.GreaterOrEqual(t, torque.Z, 1000/dt)
}

func TestDeepPenetrationSentinel(t *testing.T) {
	// Fast approach already past the error gate at the sampled instant:
	// sentinel immediately.
	cfg := testConfig()
	cfg.BoundingBoxFF = 1.2
	eff, _ := newDropRig(t, 0.506, -10, cfg)
	require.NoError(t, eff.Update(0))

	dt := 1e-3
	force, _ := eff.ComputeForceTorque(0, dt)
	assert.GreaterOrEqual(t, r3.Norm(force), 1000/dt)
}

func TestSentinelClearsOnShorterStep(t *testing.T) {
	eff, _ := newDropRig(t, 0.5049, -0.1, testConfig())
	require.NoError(t, eff.Update(0))

	dt := 1e-3
	eff.ComputeForceTorque(0, dt)
	f, _ := eff.ComputeForceTorque(0, dt)
	require.Greater(t, r3.Norm(f), 1e5)

	// A shrunk step drops the lock and probes again (still no contact at
	// this range, so back to the quiet first response).
	f, _ = eff.ComputeForceTorque(0, dt/4)
	assert.Zero(t, r3.Norm(f))
}

func TestTwoCubeSymmetricCollision(t *testing.T) {
	// The cubes start 1 mm apart on x, beyond the unit box reach the swept
	// box pass compares against; the fudge factor admits the pair.
	cfg := testConfig()
	cfg.BoundingBoxFF = 1.2
	eff, err := New(cfg)
	require.NoError(t, err)

	left := &hostBody{pos: r3.Vec{X: -0.5005}, vel: r3.Vec{X: 1}, mass: 1}
	right := &hostBody{pos: r3.Vec{X: 0.5005}, vel: r3.Vec{X: -1}, mass: 1}
	require.NoError(t, eff.RegisterBody(cubeMeshData(), "left", left, left, 1.0, 0.5, 0))
	require.NoError(t, eff.RegisterBody(cubeMeshData(), "right", right, right, 1.0, 0.5, 0))
	require.NoError(t, eff.Update(0))

	dt := 1e-3
	fLeft, _ := eff.ComputeForceTorque(0, dt)
	// Each cube reverses to e times its approach speed: impulse 1.5 on each.
	assert.InDelta(t, -1500, fLeft.X, 2.0)

	// The partner is served the negated share of the same resolution.
	fRight, _ := eff.ComputeForceTorque(0, dt)
	assert.InDelta(t, 0, fLeft.X+fRight.X, 1e-9)
	assert.InDelta(t, 0, fLeft.Y+fRight.Y, 1e-9)
	assert.InDelta(t, 0, fLeft.Z+fRight.Z, 1e-9)
}

func TestUpdateResetsCycle(t *testing.T) {
	eff, cube := newDropRig(t, 0.5005, -1, testConfig())
	require.NoError(t, eff.Update(0))
	f1, _ := eff.ComputeForceTorque(0, 1e-3)
	require.Greater(t, f1.Z, 0.0)

	// Host applied the bounce; next macro step has the cube receding.
	cube.pos = r3.Vec{Z: 0.5006}
	cube.vel = r3.Vec{Z: 0.5}
	require.NoError(t, eff.Update(1_000_000))

	f2, _ := eff.ComputeForceTorque(1e-3, 1e-3)
	assert.Zero(t, r3.Norm(f2))
}

func TestNoBodiesIsError(t *testing.T) {
	eff, err := New(testConfig())
	require.NoError(t, err)
	assert.Error(t, eff.Update(0))
}

func TestConfigRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "contact.yaml")

	cfg := DefaultConfig()
	cfg.MaxPosError = 0.25
	cfg.SolverIterationCap = 42
	require.NoError(t, SaveConfig(path, cfg))

	loaded, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)

	// Missing files fall back to defaults silently.
	missing, err := LoadConfig(filepath.Join(dir, "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), missing)
}

func TestConfigValidation(t *testing.T) {
	cfg := DefaultConfig()
	cfg.CollisionIntegrationStep = 0
	_, err := New(cfg)
	assert.Error(t, err)

	cfg = DefaultConfig()
	cfg.MaxBoundingBoxDim = -1
	_, err = New(cfg)
	assert.Error(t, err)
}

func TestRegistrationValidation(t *testing.T) {
	eff, err := New(testConfig())
	require.NoError(t, err)

	cube := &hostBody{mass: 1}
	assert.Error(t, eff.RegisterBody(cubeMeshData(), "cube", cube, cube, -1, 0.5, 0))
	assert.Error(t, eff.RegisterBody(MeshData{}, "empty", cube, cube, 1, 0.5, 0))
	assert.Error(t, eff.RegisterKinematicBody(plateMeshData(), "plate", nil, 1, 0.5, 0))

	require.NoError(t, eff.RegisterBody(cubeMeshData(), "cube", cube, cube, 1, 0.5, 0))
	assert.Equal(t, 1, eff.BodyCount())

	_, err = eff.Body(5)
	assert.Error(t, err)
	b, err := eff.Body(0)
	require.NoError(t, err)
	assert.False(t, math.IsNaN(b.BoundingRadius))
}
