// Visual harness for the contact pipeline: drops a spinning unit cube onto a
// kinematic platform and renders the bodies, contact response and the
// adaptive stepping driven by the sentinel rejection.
package main

import (
	"fmt"
	"log"

	gui "github.com/gen2brain/raylib-go/raygui"
	rl "github.com/gen2brain/raylib-go/raylib"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/num/quat"
	"gonum.org/v1/gonum/spatial/r3"

	"contactsim"
)

const (
	screenWidth  = 1280
	screenHeight = 720

	cubeMass = 1.0
	gravity  = -1.0

	// Forces beyond this are treated as the step-rejection sentinel.
	sentinelThreshold = 1e5
)

// hostCube is the host-side dynamic body: it owns the true state and feeds it
// to the effector through the message interfaces.
type hostCube struct {
	pos, vel r3.Vec
	att      quat.Number
	omega    r3.Vec
}

func (h *hostCube) State() contactsim.StateMessage {
	return contactsim.StateMessage{
		Position: h.pos,
		Velocity: h.vel,
		Attitude: h.att,
		Omega:    h.omega,
	}
}

func (h *hostCube) MassProps() contactsim.MassMessage {
	return contactsim.MassMessage{
		Mass:    cubeMass,
		Inertia: mat.NewDense(3, 3, []float64{cubeMass / 6, 0, 0, 0, cubeMass / 6, 0, 0, 0, cubeMass / 6}),
	}
}

// hostPlatform is the fixed kinematic partner.
type hostPlatform struct{}

func (hostPlatform) Ephemeris() contactsim.EphemerisMessage {
	return contactsim.EphemerisMessage{
		DCM:     mat.NewDense(3, 3, []float64{1, 0, 0, 0, 1, 0, 0, 0, 1}),
		DCMRate: mat.NewDense(3, 3, nil),
	}
}

func cubeMesh(half float64) contactsim.MeshData {
	verts := []r3.Vec{
		{X: -half, Y: -half, Z: -half}, {X: half, Y: -half, Z: -half},
		{X: half, Y: half, Z: -half}, {X: -half, Y: half, Z: -half},
		{X: -half, Y: -half, Z: half}, {X: half, Y: -half, Z: half},
		{X: half, Y: half, Z: half}, {X: -half, Y: half, Z: half},
	}
	tris := [][3]int{
		{0, 2, 1}, {0, 3, 2}, // bottom (-z)
		{4, 5, 6}, {4, 6, 7}, // top (+z)
		{0, 1, 5}, {0, 5, 4}, // -y
		{2, 3, 7}, {2, 7, 6}, // +y
		{1, 2, 6}, {1, 6, 5}, // +x
		{3, 0, 4}, {3, 4, 7}, // -x
	}
	return contactsim.MeshData{Vertices: verts, Shapes: []contactsim.Shape{{Triangles: tris}}}
}

func platformMesh() contactsim.MeshData {
	verts := []r3.Vec{
		{X: -4, Y: -4, Z: 0}, {X: 4, Y: -4, Z: 0},
		{X: 4, Y: 4, Z: 0}, {X: -4, Y: 4, Z: 0},
	}
	tris := [][3]int{{0, 1, 2}, {0, 2, 3}}
	return contactsim.MeshData{Vertices: verts, Shapes: []contactsim.Shape{{Triangles: tris}}}
}

func main() {
	cfg := contactsim.DefaultConfig()
	cfg.MaxBoundingBoxDim = 2.0
	cfg.MaxPosError = 0.01
	cfg.CollisionIntegrationStep = 1e-4

	eff, err := contactsim.New(cfg)
	if err != nil {
		log.Fatalf("contactviz: %v", err)
	}

	cube := &hostCube{
		pos:   r3.Vec{Z: 2.0},
		vel:   r3.Vec{Z: -1.0},
		att:   quat.Number{Real: 1},
		omega: r3.Vec{Z: 0.5},
	}
	if err := eff.RegisterBody(cubeMesh(0.5), "cube", cube, cube, 1.0, 0.6, 0.2); err != nil {
		log.Fatalf("contactviz: register cube: %v", err)
	}
	if err := eff.RegisterKinematicBody(platformMesh(), "platform", hostPlatform{}, 6.0, 0.6, 0.2); err != nil {
		log.Fatalf("contactviz: register platform: %v", err)
	}

	rl.InitWindow(screenWidth, screenHeight, "contactsim viewer")
	defer rl.CloseWindow()
	rl.SetTargetFPS(60)

	camera := rl.Camera3D{
		Position:   rl.Vector3{X: 4, Y: -5, Z: 3},
		Target:     rl.Vector3{X: 0, Y: 0, Z: 1},
		Up:         rl.Vector3{X: 0, Y: 0, Z: 1},
		Fovy:       45,
		Projection: rl.CameraPerspective,
	}

	simTime := 0.0
	stepScale := float32(1.0)
	paused := false
	lastForce := r3.Vec{}
	rejects := 0

	for !rl.WindowShouldClose() {
		if !paused {
			macroStep := cfg.SimTimeStep * float64(stepScale)
			stepHost(eff, cube, simTime, macroStep, &lastForce, &rejects)
			simTime += macroStep
		}

		rl.BeginDrawing()
		rl.ClearBackground(rl.RayWhite)
		rl.BeginMode3D(camera)

		rl.DrawCube(rl.Vector3{X: 0, Y: 0, Z: -0.05}, 8, 8, 0.1, rl.LightGray)
		drawCubeEdges(cube)
		rl.EndMode3D()

		paused = gui.CheckBox(rl.NewRectangle(20, 20, 20, 20), "pause", paused)
		stepScale = gui.Slider(rl.NewRectangle(20, 50, 200, 20), "", fmt.Sprintf("step x%.2f", stepScale), stepScale, 0.1, 4.0)
		rl.DrawText(fmt.Sprintf("t=%.3fs  v=(%.2f %.2f %.2f)  rejects=%d",
			simTime, cube.vel.X, cube.vel.Y, cube.vel.Z, rejects), 20, 80, 18, rl.DarkGray)
		rl.DrawText(fmt.Sprintf("last force (%.1f %.1f %.1f)", lastForce.X, lastForce.Y, lastForce.Z), 20, 104, 18, rl.DarkGray)
		rl.EndDrawing()
	}
}

// stepHost advances the host one macro step, halving the step on sentinel
// rejection the way an adaptive integrator backs off.
func stepHost(eff *contactsim.Effector, cube *hostCube, simTime, macroStep float64, lastForce *r3.Vec, rejects *int) {
	dt := macroStep
	remaining := macroStep
	for remaining > 1e-9 {
		if dt > remaining {
			dt = remaining
		}
		if err := eff.Update(uint64(simTime * 1e9)); err != nil {
			log.Printf("contactviz: update: %v", err)
			return
		}
		force, torque := eff.ComputeForceTorque(simTime, dt)
		if r3.Norm(force) > sentinelThreshold {
			*rejects++
			dt /= 2
			if dt < 1e-7 {
				dt = 1e-7
			}
			continue
		}
		*lastForce = force

		accel := r3.Add(r3.Scale(1/cubeMass, force), r3.Vec{Z: gravity})
		cube.vel = r3.Add(cube.vel, r3.Scale(dt, accel))
		cube.pos = r3.Add(cube.pos, r3.Scale(dt, cube.vel))
		// Torque comes back in the body frame; diagonal inertia here.
		cube.omega = r3.Add(cube.omega, r3.Scale(dt*6/cubeMass, torque))
		dq := quat.Mul(cube.att, quat.Number{Imag: cube.omega.X, Jmag: cube.omega.Y, Kmag: cube.omega.Z})
		cube.att = quat.Add(cube.att, quat.Scale(0.5*dt, dq))
		n := quat.Abs(cube.att)
		cube.att = quat.Scale(1/n, cube.att)

		simTime += dt
		remaining -= dt
	}
}

var cubeEdgePairs = [12][2]int{
	{0, 1}, {1, 2}, {2, 3}, {3, 0},
	{4, 5}, {5, 6}, {6, 7}, {7, 4},
	{0, 4}, {1, 5}, {2, 6}, {3, 7},
}

func drawCubeEdges(cube *hostCube) {
	mesh := cubeMesh(0.5)
	world := make([]rl.Vector3, len(mesh.Vertices))
	for i, v := range mesh.Vertices {
		q := quat.Mul(quat.Mul(cube.att, quat.Number{Imag: v.X, Jmag: v.Y, Kmag: v.Z}), quat.Conj(cube.att))
		world[i] = rl.Vector3{
			X: float32(cube.pos.X + q.Imag),
			Y: float32(cube.pos.Y + q.Jmag),
			Z: float32(cube.pos.Z + q.Kmag),
		}
	}
	for _, e := range cubeEdgePairs {
		rl.DrawLine3D(world[e[0]], world[e[1]], rl.Maroon)
	}
}
