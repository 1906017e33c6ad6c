package jacobian

import (
	"math"
	"testing"
	"time"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"go.viam.com/test"

	"go.viam.com/jacobik/linalg"
	"go.viam.com/jacobik/spatialmath"
)

// solveLoop runs the standard iteration and returns the total error after each step.
func solveLoop(t *testing.T, j *Jacobian, targets []r3.Vector, iterations int) []float64 {
	t.Helper()
	history := make([]float64, 0, iterations)
	for i := 0; i < iterations; i++ {
		test.That(t, j.ComputeJacobian(targets), test.ShouldBeNil)
		test.That(t, j.CalcDeltaThetas(), test.ShouldBeNil)
		test.That(t, j.UpdateThetas(), test.ShouldBeNil)
		test.That(t, j.UpdatedSClampValue(targets), test.ShouldBeNil)
		total, err := j.UpdateErrorArray(targets)
		test.That(t, err, test.ShouldBeNil)
		history = append(history, total)
	}
	return history
}

func TestPlanarArmReachesTarget(t *testing.T) {
	targets := []r3.Vector{{X: 1.5, Y: 0.5}}
	for _, mode := range []UpdateMode{DLS, SDLS} {
		t.Run(mode.String(), func(t *testing.T) {
			j, err := New(planarArm(t), NewDefaultConfig())
			test.That(t, err, test.ShouldBeNil)
			j.SetCurrentMode(mode)

			start, err := j.UpdateErrorArray(targets)
			test.That(t, err, test.ShouldBeNil)
			history := solveLoop(t, j, targets, 1000)

			test.That(t, history[len(history)-1], test.ShouldBeLessThan, 1e-3)
			test.That(t, history[49], test.ShouldBeLessThan, start)
			test.That(t, history[len(history)-1], test.ShouldBeLessThan, history[9])

			pos, err := j.Tree().EffectorPosition(0)
			test.That(t, err, test.ShouldBeNil)
			test.That(t, spatialmath.R3VectorAlmostEqual(pos, targets[0], 1e-3), test.ShouldBeTrue)
		})
	}
}

func TestTransposeConvergesTightly(t *testing.T) {
	targets := []r3.Vector{{X: 1.5, Y: 0.5}}
	j, err := New(planarArm(t), NewDefaultConfig())
	test.That(t, err, test.ShouldBeNil)
	j.SetCurrentMode(JacobianTranspose)

	history := solveLoop(t, j, targets, 500)
	test.That(t, history[len(history)-1], test.ShouldBeLessThan, 1e-6)
}

func TestUnreachableTargetPlateaus(t *testing.T) {
	targets := []r3.Vector{{Y: 3}}
	for _, mode := range []UpdateMode{DLS, SDLS} {
		t.Run(mode.String(), func(t *testing.T) {
			j, err := New(planarArm(t), NewDefaultConfig())
			test.That(t, err, test.ShouldBeNil)
			j.SetCurrentMode(mode)
			history := solveLoop(t, j, targets, 500)

			final := history[len(history)-1]
			// the arm is 2 long, so the closest it can get is 1
			test.That(t, final, test.ShouldBeGreaterThanOrEqualTo, 1-1e-9)
			test.That(t, final, test.ShouldBeLessThan, 1.1)
			lo, hi := math.Inf(1), math.Inf(-1)
			for _, e := range history[len(history)-20:] {
				lo = math.Min(lo, e)
				hi = math.Max(hi, e)
			}
			test.That(t, hi-lo, test.ShouldBeLessThan, 0.05)
		})
	}
}

func TestUpdateThetas(t *testing.T) {
	j, err := New(planarArm(t), NewDefaultConfig())
	test.That(t, err, test.ShouldBeNil)
	j.SetCurrentMode(SDLS)
	targets := []r3.Vector{{X: 1.5, Y: 0.5}}
	test.That(t, j.ComputeJacobian(targets), test.ShouldBeNil)
	test.That(t, j.CalcDeltaThetas(), test.ShouldBeNil)
	dTheta := j.DeltaTheta()
	test.That(t, linalg.MaxAbs(dTheta), test.ShouldBeGreaterThan, 0)

	test.That(t, j.UpdateThetas(), test.ShouldBeNil)
	test.That(t, j.Tree().IsDirty(), test.ShouldBeFalse)
	thetas := j.Tree().Thetas()
	test.That(t, thetas[0], test.ShouldAlmostEqual, dTheta.AtVec(0))
	test.That(t, thetas[1], test.ShouldAlmostEqual, dTheta.AtVec(1))

	t.Run("theta dot", func(t *testing.T) {
		test.That(t, j.Tree().SetThetas([]float64{0, 0}), test.ShouldBeNil)
		test.That(t, j.UpdateThetaDot(500*time.Millisecond), test.ShouldBeNil)
		thetas := j.Tree().Thetas()
		test.That(t, thetas[0], test.ShouldAlmostEqual, 0.5*dTheta.AtVec(0))
		test.That(t, thetas[1], test.ShouldAlmostEqual, 0.5*dTheta.AtVec(1))
	})

	t.Run("frozen joints do not move", func(t *testing.T) {
		test.That(t, j.Tree().SetThetas([]float64{0, 0}), test.ShouldBeNil)
		elbow, err := j.Tree().Joint(1)
		test.That(t, err, test.ShouldBeNil)
		elbow.Freeze()
		test.That(t, j.UpdateThetas(), test.ShouldBeNil)
		test.That(t, elbow.Theta(), test.ShouldEqual, 0.)
		j.Tree().UnFreeze()
	})
}

func TestUpdateErrorArray(t *testing.T) {
	j, err := New(forkedTree(t), NewDefaultConfig())
	test.That(t, err, test.ShouldBeNil)
	positions := j.Tree().EffectorPositions()
	targets := []r3.Vector{positions[0].Add(r3.Vector{X: 3, Y: 4}), positions[1].Add(r3.Vector{Z: 1})}

	total, err := j.UpdateErrorArray(targets)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, total, test.ShouldAlmostEqual, 6)
	errs := j.ErrorArray()
	test.That(t, errs, test.ShouldHaveLength, 2)
	test.That(t, errs[0], test.ShouldAlmostEqual, 5)
	test.That(t, errs[1], test.ShouldAlmostEqual, 1)

	_, err = j.UpdateErrorArray(targets[:1])
	test.That(t, errors.Is(err, ErrTargetCount), test.ShouldBeTrue)
}

func TestCompareErrors(t *testing.T) {
	j1, err := NewStandalone(false, 1, 3, NewDefaultConfig())
	test.That(t, err, test.ShouldBeNil)
	j2, err := NewStandalone(false, 1, 3, NewDefaultConfig())
	test.That(t, err, test.ShouldBeNil)
	copy(j1.errorArray, []float64{0.5, 2, 1})
	copy(j2.errorArray, []float64{1, 1, 1})

	w1, w2, err := CompareErrors(j1, j2)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, w1, test.ShouldAlmostEqual, 1.5)
	test.That(t, w2, test.ShouldAlmostEqual, 1.5)

	better1, better2, ties, err := CountErrors(j1, j2)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, better1, test.ShouldEqual, 1)
	test.That(t, better2, test.ShouldEqual, 1)
	test.That(t, ties, test.ShouldEqual, 1)

	w1, w2, err = CompareErrors(j2, j2)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, w1, test.ShouldEqual, 0.)
	test.That(t, w2, test.ShouldEqual, 0.)

	other, err := NewStandalone(false, 1, 2, NewDefaultConfig())
	test.That(t, err, test.ShouldBeNil)
	_, _, err = CompareErrors(j1, other)
	test.That(t, err, test.ShouldNotBeNil)
	_, _, _, err = CountErrors(nil, j1)
	test.That(t, err, test.ShouldNotBeNil)
}
