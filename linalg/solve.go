package linalg

import (
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// SolveSPD solves a·x = b for a symmetric positive definite a using a Cholesky factorization and
// writes x into dst.
func SolveSPD(dst *mat.VecDense, a *mat.SymDense, b mat.Vector) error {
	n := a.SymmetricDim()
	if err := CheckLen("right hand side", b, n); err != nil {
		return err
	}
	if !dst.IsEmpty() {
		if err := CheckLen("solution", dst, n); err != nil {
			return err
		}
	}
	var chol mat.Cholesky
	if ok := chol.Factorize(a); !ok {
		return errors.Wrapf(ErrSingular, "cholesky of %dx%d system", n, n)
	}
	// An ill-conditioned but factorizable system still yields a usable solution.
	var cond mat.Condition
	if err := chol.SolveVecTo(dst, b); err != nil && !errors.As(err, &cond) {
		return errors.Wrap(ErrSingular, err.Error())
	}
	return nil
}

// PseudoSolveSym writes the minimum-norm least squares solution of a·x = b into dst, where a is
// symmetric positive semi-definite. Eigenvalues at or below relTol times the largest eigenvalue are
// treated as zero.
func PseudoSolveSym(dst *mat.VecDense, a *mat.SymDense, b mat.Vector, relTol float64) error {
	n := a.SymmetricDim()
	if err := CheckLen("right hand side", b, n); err != nil {
		return err
	}
	values, vectors, err := keptEigen(a, relTol)
	if err != nil {
		return err
	}
	if dst.IsEmpty() {
		dst.ReuseAsVec(n)
	} else if err := CheckLen("solution", dst, n); err != nil {
		return err
	}
	dst.Zero()
	for i, lambda := range values {
		if lambda == 0 {
			continue
		}
		col := vectors.ColView(i)
		dst.AddScaledVec(dst, mat.Dot(col, b)/lambda, col)
	}
	return nil
}

// PseudoInverseSym returns the Moore-Penrose inverse of the symmetric positive semi-definite matrix a,
// dropping eigenvalues the same way PseudoSolveSym does.
func PseudoInverseSym(a *mat.SymDense, relTol float64) (*mat.SymDense, error) {
	values, vectors, err := keptEigen(a, relTol)
	if err != nil {
		return nil, err
	}
	inv := mat.NewSymDense(a.SymmetricDim(), nil)
	for i, lambda := range values {
		if lambda == 0 {
			continue
		}
		inv.SymRankOne(inv, 1/lambda, vectors.ColView(i))
	}
	return inv, nil
}

// keptEigen factorizes a and zeroes every eigenvalue at or below relTol times the largest, or near zero.
func keptEigen(a *mat.SymDense, relTol float64) ([]float64, *mat.Dense, error) {
	var eig mat.EigenSym
	if ok := eig.Factorize(a, true); !ok {
		n := a.SymmetricDim()
		return nil, nil, errors.Wrapf(ErrSVDFailed, "eigen decomposition of %dx%d system", n, n)
	}
	values := eig.Values(nil)
	minEigen := relTol * values[len(values)-1]
	for i, lambda := range values {
		if lambda <= minEigen || IsNearZero(lambda) {
			values[i] = 0
		}
	}
	var vectors mat.Dense
	eig.VectorsTo(&vectors)
	return values, &vectors, nil
}

// NormalMatrix returns j·jᵗ.
func NormalMatrix(j mat.Matrix) *mat.SymDense {
	r, _ := j.Dims()
	out := mat.NewSymDense(r, nil)
	out.SymOuterK(1, j)
	return out
}

// JointSpaceNormalMatrix returns jᵗ·j.
func JointSpaceNormalMatrix(j mat.Matrix) *mat.SymDense {
	_, c := j.Dims()
	out := mat.NewSymDense(c, nil)
	out.SymOuterK(1, j.T())
	return out
}

// InverseSPD returns the inverse of the symmetric positive definite matrix a.
func InverseSPD(a *mat.SymDense) (*mat.SymDense, error) {
	var chol mat.Cholesky
	if ok := chol.Factorize(a); !ok {
		n := a.SymmetricDim()
		return nil, errors.Wrapf(ErrSingular, "cholesky of %dx%d system", n, n)
	}
	var inv mat.SymDense
	var cond mat.Condition
	if err := chol.InverseTo(&inv); err != nil && !errors.As(err, &cond) {
		return nil, errors.Wrap(ErrSingular, err.Error())
	}
	return &inv, nil
}
