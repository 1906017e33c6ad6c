package linalg

import (
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// SVD is a thin singular value decomposition A = U·diag(W)·Vᵗ. For an m×n matrix with k = min(m, n),
// U is m×k, V is n×k and W holds the k singular values in descending order. Column i of U and V
// belongs to W[i].
type SVD struct {
	U *mat.Dense
	W []float64
	V *mat.Dense
}

// ComputeSVD factorizes a.
func ComputeSVD(a mat.Matrix) (*SVD, error) {
	var svd mat.SVD
	if ok := svd.Factorize(a, mat.SVDThin); !ok {
		r, c := a.Dims()
		return nil, errors.Wrapf(ErrSVDFailed, "factorizing %dx%d matrix", r, c)
	}
	out := &SVD{U: &mat.Dense{}, V: &mat.Dense{}}
	svd.UTo(out.U)
	svd.VTo(out.V)
	out.W = svd.Values(nil)
	return out, nil
}

// Len is the number of singular triples.
func (s *SVD) Len() int {
	return len(s.W)
}

// MaxSingularValue returns the largest singular value, or 0 for an empty decomposition.
func (s *SVD) MaxSingularValue() float64 {
	if len(s.W) == 0 {
		return 0
	}
	return s.W[0]
}

// Rank counts the singular values larger than tol.
func (s *SVD) Rank(tol float64) int {
	rank := 0
	for _, w := range s.W {
		if w > tol {
			rank++
		}
	}
	return rank
}

// Reconstruct returns U·diag(W)·Vᵗ.
func (s *SVD) Reconstruct() *mat.Dense {
	var uw mat.Dense
	uw.Mul(s.U, mat.NewDiagDense(len(s.W), append([]float64(nil), s.W...)))
	var out mat.Dense
	out.Mul(&uw, s.V.T())
	return &out
}
