// Package spatialmath defines the rotations and vector helpers used to pose joints in a skeleton.
package spatialmath

import (
	"github.com/go-gl/mathgl/mgl64"
	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/num/quat"

	"go.viam.com/jacobik/utils"
)

// QuatIdentity returns the quaternion representing no rotation.
func QuatIdentity() quat.Number {
	return quat.Number{Real: 1}
}

// RotationAbout returns the unit quaternion rotating theta radians about axis.
func RotationAbout(axis r3.Vector, theta float64) quat.Number {
	return NewR4AAFromAxis(theta, axis).ToQuat()
}

// Compose returns the rotation that applies b first and then a.
func Compose(a, b quat.Number) quat.Number {
	return quat.Mul(a, b)
}

// RotateVector rotates v by the unit quaternion q.
func RotateVector(q quat.Number, v r3.Vector) r3.Vector {
	p := quat.Number{Imag: v.X, Jmag: v.Y, Kmag: v.Z}
	rotated := quat.Mul(quat.Mul(q, p), quat.Conj(q))
	return r3.Vector{X: rotated.Imag, Y: rotated.Jmag, Z: rotated.Kmag}
}

// R3VectorAlmostEqual compares two r3.Vector objects and returns if the all elementwise differences are less
// than epsilon.
func R3VectorAlmostEqual(a, b r3.Vector, epsilon float64) bool {
	return utils.Float64AlmostEqual(a.X, b.X, epsilon) &&
		utils.Float64AlmostEqual(a.Y, b.Y, epsilon) &&
		utils.Float64AlmostEqual(a.Z, b.Z, epsilon)
}

// QuatToMat3 converts a unit quaternion to a 3x3 rotation matrix.
func QuatToMat3(q quat.Number) mgl64.Mat3 {
	mq := mgl64.Quat{W: q.Real, V: mgl64.Vec3{q.Imag, q.Jmag, q.Kmag}}
	return mq.Normalize().Mat4().Mat3()
}

// R3ToVec3 converts an r3.Vector to an mgl64 vector.
func R3ToVec3(v r3.Vector) mgl64.Vec3 {
	return mgl64.Vec3{v.X, v.Y, v.Z}
}

// Vec3ToR3 converts an mgl64 vector to an r3.Vector.
func Vec3ToR3(v mgl64.Vec3) r3.Vector {
	return r3.Vector{X: v.X(), Y: v.Y(), Z: v.Z()}
}
