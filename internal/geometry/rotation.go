package geometry

import (
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/num/quat"
	"gonum.org/v1/gonum/spatial/r3"
)

// DCMFromQuat builds the direction cosine matrix rotating body-frame vectors
// into the inertial frame for a unit attitude quaternion.
func DCMFromQuat(q quat.Number) *mat.Dense {
	w, x, y, z := q.Real, q.Imag, q.Jmag, q.Kmag
	return mat.NewDense(3, 3, []float64{
		1 - 2*(y*y+z*z), 2 * (x*y - w*z), 2 * (x*z + w*y),
		2 * (x*y + w*z), 1 - 2*(x*x+z*z), 2 * (y*z - w*x),
		2 * (x*z - w*y), 2 * (y*z + w*x), 1 - 2*(x*x+y*y),
	})
}

// MulVec applies a 3x3 matrix to a vector.
func MulVec(m mat.Matrix, v r3.Vec) r3.Vec {
	return r3.Vec{
		X: m.At(0, 0)*v.X + m.At(0, 1)*v.Y + m.At(0, 2)*v.Z,
		Y: m.At(1, 0)*v.X + m.At(1, 1)*v.Y + m.At(1, 2)*v.Z,
		Z: m.At(2, 0)*v.X + m.At(2, 1)*v.Y + m.At(2, 2)*v.Z,
	}
}

// MulVecT applies the transpose of a 3x3 matrix to a vector.
func MulVecT(m mat.Matrix, v r3.Vec) r3.Vec {
	return r3.Vec{
		X: m.At(0, 0)*v.X + m.At(1, 0)*v.Y + m.At(2, 0)*v.Z,
		Y: m.At(0, 1)*v.X + m.At(1, 1)*v.Y + m.At(2, 1)*v.Z,
		Z: m.At(0, 2)*v.X + m.At(1, 2)*v.Y + m.At(2, 2)*v.Z,
	}
}

// Tilde returns the skew-symmetric cross-product matrix of v, so that
// Tilde(v)*w equals v cross w.
func Tilde(v r3.Vec) *mat.Dense {
	return mat.NewDense(3, 3, []float64{
		0, -v.Z, v.Y,
		v.Z, 0, -v.X,
		-v.Y, v.X, 0,
	})
}

// Column extracts column i of a 3x3 matrix as a vector.
func Column(m mat.Matrix, i int) r3.Vec {
	return r3.Vec{X: m.At(0, i), Y: m.At(1, i), Z: m.At(2, i)}
}

// PropagateQuat advances a unit attitude quaternion by the body-frame rate
// omega over dt using the linearized kinematic q' = q + 0.5*q*omega*dt, then
// renormalizes.
func PropagateQuat(q quat.Number, omega r3.Vec, dt float64) quat.Number {
	dq := quat.Mul(q, quat.Number{Imag: omega.X, Jmag: omega.Y, Kmag: omega.Z})
	out := quat.Add(q, quat.Scale(0.5*dt, dq))
	n := quat.Abs(out)
	if n == 0 {
		return q
	}
	return quat.Scale(1/n, out)
}
