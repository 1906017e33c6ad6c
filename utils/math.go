// Package utils contains small numeric helpers shared by the kinematics packages.
package utils

import (
	"math"
)

// DegToRad converts degrees to radians.
func DegToRad(degrees float64) float64 {
	return degrees * math.Pi / 180
}

// RadToDeg converts radians to degrees.
func RadToDeg(radians float64) float64 {
	return radians * 180 / math.Pi
}

// Square returns n*n.
func Square(n float64) float64 {
	return n * n
}

// Float64AlmostEqual compares two float64s and returns if the difference between them is less than epsilon.
func Float64AlmostEqual(a, b, epsilon float64) bool {
	return math.Abs(a-b) <= epsilon
}

// Clamp returns value restricted to the closed interval [min, max].
func Clamp(value, min, max float64) float64 {
	if value < min {
		return min
	}
	if value > max {
		return max
	}
	return value
}

// NearZero reports whether |x| is at most tolerance.
func NearZero(x, tolerance float64) bool {
	return math.Abs(x) <= tolerance
}

// RadiansToDegrees converts a slice of angles in radians to degrees.
func RadiansToDegrees(radians []float64) []float64 {
	n := make([]float64, len(radians))
	for idx, a := range radians {
		n[idx] = RadToDeg(a)
	}
	return n
}
