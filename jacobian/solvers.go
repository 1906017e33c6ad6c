package jacobian

import (
	"math"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"go.viam.com/jacobik/linalg"
	"go.viam.com/jacobik/utils"
)

// CalcDeltaThetas computes joint angle changes with the current update mode. The displacement is clamped from
// dS first. With an undefined mode the changes are zeroed and ErrUndefinedUpdateMode is returned.
func (j *Jacobian) CalcDeltaThetas() error {
	switch j.mode {
	case JacobianTranspose:
		return j.CalcDeltaThetasTranspose()
	case PseudoInverse:
		return j.CalcDeltaThetasPseudoinverse()
	case DLS:
		return j.CalcDeltaThetasDLS()
	case SDLS:
		return j.CalcDeltaThetasSDLS()
	case Undefined:
		j.ZeroDeltaThetas()
		return ErrUndefinedUpdateMode
	default:
		j.ZeroDeltaThetas()
		return errors.Wrapf(ErrUndefinedUpdateMode, "mode %d", int(j.mode))
	}
}

// ZeroDeltaThetas sets every joint change to zero.
func (j *Jacobian) ZeroDeltaThetas() {
	j.dTheta.Zero()
}

// DeltaTheta returns a copy of the joint changes computed by the last solve.
func (j *Jacobian) DeltaTheta() *mat.VecDense {
	return mat.VecDenseCopyOf(j.dTheta)
}

// SVD returns the decomposition of the active Jacobian made by the last SVD based solve. The second return is
// false when no such solve has run since the last Reset.
func (j *Jacobian) SVD() (*linalg.SVD, bool) {
	return j.svd, j.svd != nil
}

// CalcDeltaThetasTranspose computes dθ = α·Jᵗ·dT, where α minimizes the residual along Jᵗ·dT and is limited so
// no joint moves more than MaxAngleJtranspose.
func (j *Jacobian) CalcDeltaThetasTranspose() error {
	j.CalcdTClampedFromdS()
	jm := j.active
	j.dTheta.MulVec(jm.T(), j.dT1)

	var jdTheta mat.VecDense
	jdTheta.MulVec(jm, j.dTheta)
	jdNorm := mat.Norm(&jdTheta, 2)
	if linalg.IsNearZero(jdNorm) || linalg.IsNearZero(linalg.MaxAbs(j.dTheta)) {
		j.ZeroDeltaThetas()
		return nil
	}
	alpha := mat.Dot(j.dT1, &jdTheta) / utils.Square(jdNorm)
	j.dTheta.ScaleVec(alpha, j.dTheta)
	linalg.ScaleToMaxAbs(j.dTheta, j.cfg.MaxAngleJtranspose)
	return nil
}

// CalcDeltaThetasPseudoinverse computes dθ = J⁺·dT. Singular directions whose singular value is below
// PseudoInverseThresholdFactor times the largest are dropped. The result is scaled down so no joint moves more
// than MaxAnglePseudoinverse.
func (j *Jacobian) CalcDeltaThetasPseudoinverse() error {
	j.CalcdTClampedFromdS()
	jm := j.active
	if linalg.IsNearZero(linalg.MaxAbs(j.dT1)) {
		j.ZeroDeltaThetas()
		return nil
	}

	// J⁺ = Jᵗ·(J·Jᵗ)⁺, and the eigenvalues of J·Jᵗ are the squared singular values of J.
	var y mat.VecDense
	relTol := utils.Square(j.cfg.PseudoInverseThresholdFactor)
	if err := linalg.PseudoSolveSym(&y, linalg.NormalMatrix(jm), j.dT1, relTol); err != nil {
		j.ZeroDeltaThetas()
		return err
	}
	j.dTheta.MulVec(jm.T(), &y)
	linalg.ScaleToMaxAbs(j.dTheta, j.cfg.MaxAnglePseudoinverse)
	return nil
}

// CalcDeltaThetasDLS computes dθ = Jᵗ·(J·Jᵗ + λ²I)⁻¹·dT and scales it down so no joint moves more than
// MaxAngleDLS.
func (j *Jacobian) CalcDeltaThetasDLS() error {
	j.CalcdTClampedFromdS()
	jm := j.active

	normal := linalg.NormalMatrix(jm)
	linalg.AddToDiagonal(normal, j.dampingLambdaSq)
	var y mat.VecDense
	if err := j.solveDamped(&y, normal, j.dT1); err != nil {
		j.ZeroDeltaThetas()
		return err
	}
	j.dTheta.MulVec(jm.T(), &y)
	linalg.ScaleToMaxAbs(j.dTheta, j.cfg.MaxAngleDLS)
	return nil
}

// CalcDeltaThetasDLS2 is damped least squares for an explicit displacement dVec, solved in joint space as
// (Jᵗ·J + λ²I)·dθ = Jᵗ·dVec. dS and its clamp are not used.
func (j *Jacobian) CalcDeltaThetasDLS2(dVec mat.Vector) error {
	if err := linalg.CheckLen("displacement", dVec, j.nRow); err != nil {
		return err
	}
	jm := j.active

	normal := linalg.JointSpaceNormalMatrix(jm)
	linalg.AddToDiagonal(normal, j.dampingLambdaSq)
	var rhs mat.VecDense
	rhs.MulVec(jm.T(), dVec)
	if err := j.solveDamped(j.dTheta, normal, &rhs); err != nil {
		j.ZeroDeltaThetas()
		return err
	}
	linalg.ScaleToMaxAbs(j.dTheta, j.cfg.MaxAngleDLS)
	return nil
}

// CalcDeltaThetasDLSwithSVD computes the damped least squares step from the singular value decomposition,
// dθ = Σ σᵢ/(σᵢ²+λ²)·⟨uᵢ, dT⟩·vᵢ, and scales it down so no joint moves more than MaxAngleDLS.
func (j *Jacobian) CalcDeltaThetasDLSwithSVD() error {
	j.CalcdTClampedFromdS()
	svd, err := linalg.ComputeSVD(j.active)
	if err != nil {
		j.ZeroDeltaThetas()
		return err
	}
	j.svd = svd

	j.dTheta.Zero()
	for i, w := range svd.W {
		if linalg.IsNearZero(w) {
			continue
		}
		alpha := mat.Dot(svd.U.ColView(i), j.dT1) * w / (utils.Square(w) + j.dampingLambdaSq)
		j.dTheta.AddScaledVec(j.dTheta, alpha, svd.V.ColView(i))
	}
	linalg.ScaleToMaxAbs(j.dTheta, j.cfg.MaxAngleDLS)
	return nil
}

// CalcDeltaThetasDLSwithNullspace computes the damped least squares step plus the projection of desired onto
// the null space of J, (I − J⁺·J)·desired, where J⁺ is the damped pseudoinverse. The secondary motion moves the
// joints without moving the effectors, to first order. With zero damping and a singular J the Moore-Penrose
// inverse of J·Jᵗ is used.
func (j *Jacobian) CalcDeltaThetasDLSwithNullspace(desired mat.Vector) error {
	if err := linalg.CheckLen("desired joint change", desired, j.nCol); err != nil {
		return err
	}
	j.CalcdTClampedFromdS()
	jm := j.active

	normal := linalg.NormalMatrix(jm)
	linalg.AddToDiagonal(normal, j.dampingLambdaSq)
	inv, err := j.invertDamped(normal)
	if err != nil {
		j.ZeroDeltaThetas()
		return err
	}
	var jInv mat.Dense
	jInv.Mul(jm.T(), inv)
	j.dTheta.MulVec(&jInv, j.dT1)

	// P = I − J⁺·J
	var proj mat.Dense
	proj.Mul(&jInv, jm)
	proj.Scale(-1, &proj)
	for i := 0; i < j.nCol; i++ {
		proj.Set(i, i, proj.At(i, i)+1)
	}
	var secondary mat.VecDense
	secondary.MulVec(&proj, desired)
	j.dTheta.AddVec(j.dTheta, &secondary)
	linalg.ScaleToMaxAbs(j.dTheta, j.cfg.MaxAngleDLS)
	return nil
}

// CalcDeltaThetasSDLS computes the selectively damped least squares step. Each singular direction gets its own
// limit on joint motion, smaller when a unit change along it would move the effectors much less than the joints'
// lever arms allow.
func (j *Jacobian) CalcDeltaThetasSDLS() error {
	j.CalcdTClampedFromdS()
	jm := j.active
	svd, err := linalg.ComputeSVD(jm)
	if err != nil {
		j.ZeroDeltaThetas()
		return err
	}
	j.svd = svd

	nBlocks := j.nRow / 3
	for e := 0; e < nBlocks; e++ {
		for c := 0; c < j.nCol; c++ {
			j.jnorms.Set(e, c, linalg.MatrixTriple(jm, e, c).Norm())
		}
	}
	colNorms := make([]float64, j.nCol)
	for c := range colNorms {
		colNorms[c] = mat.Sum(j.jnorms.ColView(c))
	}

	j.dTheta.Zero()
	for i, w := range svd.W {
		if linalg.IsNearZero(w) {
			continue
		}
		wInv := 1 / w
		u := svd.U.ColView(i)
		v := svd.V.ColView(i)

		alpha := mat.Dot(u, j.dT1)

		// N is the size of the effector response to this direction, M bounds it through the joint lever arms.
		n := linalg.SumAbs(linalg.BlockNorms(u))
		m := 0.0
		for c := 0; c < j.nCol; c++ {
			m += math.Abs(v.AtVec(c)) * colNorms[c]
		}
		m *= math.Abs(wInv)

		gamma := j.cfg.MaxAngleSDLS
		if n < m {
			gamma *= n / m
		}

		j.dPreTheta.ScaleVec(alpha*wInv, v)
		rescale := gamma / (gamma + linalg.MaxAbs(j.dPreTheta))
		j.dTheta.AddScaledVec(j.dTheta, rescale, j.dPreTheta)
	}

	maxChange := linalg.MaxAbs(j.dTheta)
	if maxChange > j.cfg.MaxAngleSDLS {
		j.dTheta.ScaleVec(j.cfg.MaxAngleSDLS/(j.cfg.MaxAngleSDLS+maxChange), j.dTheta)
	}
	return nil
}

// solveDamped solves a damped normal system. A system that is not positive definite, which only happens with
// zero damping, falls back to the pseudoinverse.
func (j *Jacobian) solveDamped(dst *mat.VecDense, a *mat.SymDense, b mat.Vector) error {
	err := linalg.SolveSPD(dst, a, b)
	if err == nil || !errors.Is(err, linalg.ErrSingular) {
		return err
	}
	return linalg.PseudoSolveSym(dst, a, b, linalg.NearZero)
}

// invertDamped inverts a damped normal matrix, falling back to the pseudoinverse like solveDamped.
func (j *Jacobian) invertDamped(a *mat.SymDense) (*mat.SymDense, error) {
	inv, err := linalg.InverseSPD(a)
	if err == nil || !errors.Is(err, linalg.ErrSingular) {
		return inv, err
	}
	return linalg.PseudoInverseSym(a, linalg.NearZero)
}
