// Package linalg holds the dense vector and matrix helpers the Jacobian solvers are written against.
// Vectors are *mat.VecDense and matrices *mat.Dense; the routines here add the 3-row block
// access and thresholding that the kinematics code needs on top of gonum.
package linalg

import (
	"math"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"go.viam.com/jacobik/utils"
)

// NearZero is the magnitude below which singular values, norms and divisors are treated as zero.
const NearZero = 1e-10

var (
	// ErrSVDFailed is returned when the singular value decomposition does not converge.
	ErrSVDFailed = errors.New("linalg: singular value decomposition failed")
	// ErrDimensionMismatch is returned when operand shapes are incompatible.
	ErrDimensionMismatch = errors.New("linalg: dimension mismatch")
	// ErrSingular is returned when a system expected to be positive definite cannot be factorized.
	ErrSingular = errors.New("linalg: matrix is singular or not positive definite")
)

// IsNearZero reports whether |x| is at most NearZero.
func IsNearZero(x float64) bool {
	return utils.NearZero(x, NearZero)
}

// Triple returns rows 3i, 3i+1, 3i+2 of v.
func Triple(v mat.Vector, i int) r3.Vector {
	return r3.Vector{X: v.AtVec(3 * i), Y: v.AtVec(3*i + 1), Z: v.AtVec(3*i + 2)}
}

// SetTriple writes t into rows 3i, 3i+1, 3i+2 of v.
func SetTriple(v *mat.VecDense, i int, t r3.Vector) {
	v.SetVec(3*i, t.X)
	v.SetVec(3*i+1, t.Y)
	v.SetVec(3*i+2, t.Z)
}

// MatrixTriple returns rows 3i..3i+2 of column j of m.
func MatrixTriple(m mat.Matrix, i, j int) r3.Vector {
	return r3.Vector{X: m.At(3*i, j), Y: m.At(3*i+1, j), Z: m.At(3*i+2, j)}
}

// SetMatrixTriple writes t into rows 3i..3i+2 of column j of m.
func SetMatrixTriple(m *mat.Dense, i, j int, t r3.Vector) {
	m.Set(3*i, j, t.X)
	m.Set(3*i+1, j, t.Y)
	m.Set(3*i+2, j, t.Z)
}

// NumTriples is the number of whole 3-row blocks in v.
func NumTriples(v mat.Vector) int {
	return v.Len() / 3
}

// MaxAbs returns the largest absolute entry of v.
func MaxAbs(v mat.Vector) float64 {
	return mat.Norm(v, math.Inf(1))
}

// BlockNorms returns the euclidean norm of each 3-row block of v.
func BlockNorms(v mat.Vector) []float64 {
	out := make([]float64, NumTriples(v))
	for i := range out {
		out[i] = Triple(v, i).Norm()
	}
	return out
}

// SumAbs returns the sum of the absolute values of the given entries.
func SumAbs(vals []float64) float64 {
	return floats.Norm(vals, 1)
}

// ScaleToMaxAbs scales v down so that no entry exceeds maxAbs in magnitude. It returns the factor applied,
// which is 1 when v was already within bounds.
func ScaleToMaxAbs(v *mat.VecDense, maxAbs float64) float64 {
	largest := MaxAbs(v)
	if largest <= maxAbs || IsNearZero(largest) {
		return 1
	}
	scale := maxAbs / largest
	v.ScaleVec(scale, v)
	// (maxAbs/largest)*largest can round one ulp past maxAbs.
	for i := 0; i < v.Len(); i++ {
		v.SetVec(i, utils.Clamp(v.AtVec(i), -maxAbs, maxAbs))
	}
	return scale
}

// AddToDiagonal adds d to every entry on the main diagonal of the square matrix m.
func AddToDiagonal(m *mat.SymDense, d float64) {
	n := m.SymmetricDim()
	for i := 0; i < n; i++ {
		m.SetSym(i, i, m.At(i, i)+d)
	}
}

// CheckDims returns ErrDimensionMismatch, annotated with what, unless m has the given shape.
func CheckDims(what string, m mat.Matrix, rows, cols int) error {
	r, c := m.Dims()
	if r != rows || c != cols {
		return errors.Wrapf(ErrDimensionMismatch, "%s is %dx%d, expected %dx%d", what, r, c, rows, cols)
	}
	return nil
}

// CheckLen returns ErrDimensionMismatch, annotated with what, unless v has length n.
func CheckLen(what string, v mat.Vector, n int) error {
	if v.Len() != n {
		return errors.Wrapf(ErrDimensionMismatch, "%s has length %d, expected %d", what, v.Len(), n)
	}
	return nil
}
