package jacobian

import (
	"time"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"

	"go.viam.com/jacobik/utils"
)

// UpdateThetas adds the computed joint changes to the tree's joints, clamped to the joint limits, and
// recomputes the tree. Frozen joints are left alone.
func (j *Jacobian) UpdateThetas() error {
	return j.applyDeltaThetas(1)
}

// UpdateThetaDot treats the computed joint changes as angular velocities in radians per second and advances the
// joints by dt.
func (j *Jacobian) UpdateThetaDot(dt time.Duration) error {
	return j.applyDeltaThetas(dt.Seconds())
}

func (j *Jacobian) applyDeltaThetas(scale float64) error {
	if j.tree == nil {
		return ErrNoTree
	}
	for i := 0; i < j.nCol; i++ {
		n, err := j.tree.Joint(i)
		if err != nil {
			return err
		}
		if n.IsFrozen() {
			continue
		}
		n.AddToTheta(scale * j.dTheta.AtVec(i))
	}
	j.tree.Compute()
	return nil
}

// UpdateErrorArray stores the distance from each effector to its target and returns their sum.
func (j *Jacobian) UpdateErrorArray(targets []r3.Vector) (float64, error) {
	if j.tree == nil {
		return 0, ErrNoTree
	}
	if len(targets) != j.nEffector {
		return 0, newTargetCountError(j.nEffector, len(targets))
	}
	total := 0.0
	for i, target := range targets {
		s, err := j.tree.EffectorPosition(i)
		if err != nil {
			return 0, err
		}
		j.errorArray[i] = target.Sub(s).Norm()
		total += j.errorArray[i]
	}
	return total, nil
}

// ErrorArray returns a copy of the per effector errors stored by the last UpdateErrorArray.
func (j *Jacobian) ErrorArray() []float64 {
	return append([]float64(nil), j.errorArray...)
}

func checkComparable(j1, j2 *Jacobian) error {
	if j1 == nil || j2 == nil {
		return errors.New("cannot compare a nil jacobian")
	}
	if len(j1.errorArray) != len(j2.errorArray) {
		return utils.NewLengthMismatchError("error array", len(j1.errorArray), len(j2.errorArray))
	}
	return nil
}

// CompareErrors weighs the per effector errors of two solves against each other. For every effector the solve
// with the smaller error scores the ratio of the two errors and the other scores 1; ties score nothing. Smaller
// totals are better.
func CompareErrors(j1, j2 *Jacobian) (weightedDist1, weightedDist2 float64, err error) {
	if err := checkComparable(j1, j2); err != nil {
		return 0, 0, err
	}
	for i, x := range j1.errorArray {
		y := j2.errorArray[i]
		switch {
		case x < y:
			weightedDist1 += x / y
			weightedDist2++
		case y < x:
			weightedDist1++
			weightedDist2 += y / x
		}
	}
	return weightedDist1, weightedDist2, nil
}

// CountErrors counts, per effector, which of two solves got closer to its target.
func CountErrors(j1, j2 *Jacobian) (numBetter1, numBetter2, numTies int, err error) {
	if err := checkComparable(j1, j2); err != nil {
		return 0, 0, 0, err
	}
	for i, x := range j1.errorArray {
		y := j2.errorArray[i]
		switch {
		case x < y:
			numBetter1++
		case y < x:
			numBetter2++
		default:
			numTies++
		}
	}
	return numBetter1, numBetter2, numTies, nil
}
