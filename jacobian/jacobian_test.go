package jacobian

import (
	"math"
	"testing"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"go.viam.com/test"
	"gonum.org/v1/gonum/mat"

	"go.viam.com/jacobik/linalg"
	"go.viam.com/jacobik/skeleton"
	"go.viam.com/jacobik/spatialmath"
)

// planarArm builds a two joint arm rotating about z, with the elbow at (1, 0, 0) and the hand at (2, 0, 0).
func planarArm(t *testing.T) *skeleton.Tree {
	t.Helper()
	tree := skeleton.NewTree()
	j0, err := skeleton.NewJointNode("shoulder", r3.Vector{}, r3.Vector{Z: 1}, skeleton.Unbounded(), 0)
	test.That(t, err, test.ShouldBeNil)
	j1, err := skeleton.NewJointNode("elbow", r3.Vector{X: 1}, r3.Vector{Z: 1}, skeleton.Unbounded(), 0)
	test.That(t, err, test.ShouldBeNil)
	id0, err := tree.InsertRoot(j0)
	test.That(t, err, test.ShouldBeNil)
	id1, err := tree.InsertLeftChild(id0, j1)
	test.That(t, err, test.ShouldBeNil)
	_, err = tree.InsertLeftChild(id1, skeleton.NewEffectorNode("hand", r3.Vector{X: 2}))
	test.That(t, err, test.ShouldBeNil)
	tree.Init()
	return tree
}

func forkedTree(t *testing.T) *skeleton.Tree {
	t.Helper()
	tree, err := skeleton.ParseModelJSONFile("../skeleton/testdata/forked.json")
	test.That(t, err, test.ShouldBeNil)
	return tree
}

func TestNewDimensions(t *testing.T) {
	j, err := New(planarArm(t), NewDefaultConfig())
	test.That(t, err, test.ShouldBeNil)
	test.That(t, j.NumRows(), test.ShouldEqual, 3)
	test.That(t, j.NumCols(), test.ShouldEqual, 2)
	test.That(t, j.CurrentMode(), test.ShouldEqual, Undefined)
	test.That(t, j.DampingLambda(), test.ShouldEqual, 0.6)

	j, err = New(forkedTree(t), NewDefaultConfig())
	test.That(t, err, test.ShouldBeNil)
	test.That(t, j.NumRows(), test.ShouldEqual, 3*j.Tree().NumEffector())
	test.That(t, j.NumCols(), test.ShouldEqual, j.Tree().NumJoint())
	r, c := j.Jend().Dims()
	test.That(t, r, test.ShouldEqual, 6)
	test.That(t, c, test.ShouldEqual, 4)
	r, c = j.Jtarget().Dims()
	test.That(t, r, test.ShouldEqual, 6)
	test.That(t, c, test.ShouldEqual, 4)

	for _, tc := range []struct {
		angular    bool
		rows, cols int
	}{
		{false, 6, 5},
		{true, 12, 5},
	} {
		j, err := NewStandalone(tc.angular, 5, 2, NewDefaultConfig())
		test.That(t, err, test.ShouldBeNil)
		test.That(t, j.NumRows(), test.ShouldEqual, tc.rows)
		test.That(t, j.NumCols(), test.ShouldEqual, tc.cols)
		test.That(t, j.UsesAngular(), test.ShouldEqual, tc.angular)
		test.That(t, j.DeltaSClamp(), test.ShouldHaveLength, tc.rows/3)
		test.That(t, j.Tree(), test.ShouldBeNil)
	}

	_, err = New(nil, NewDefaultConfig())
	test.That(t, errors.Is(err, ErrNoTree), test.ShouldBeTrue)
	_, err = NewStandalone(false, 0, 1, NewDefaultConfig())
	test.That(t, err, test.ShouldNotBeNil)

	lonely := skeleton.NewTree()
	joint, err := skeleton.NewJointNode("j", r3.Vector{}, r3.Vector{Z: 1}, skeleton.Unbounded(), 0)
	test.That(t, err, test.ShouldBeNil)
	_, err = lonely.InsertRoot(joint)
	test.That(t, err, test.ShouldBeNil)
	_, err = New(lonely, NewDefaultConfig())
	test.That(t, err, test.ShouldNotBeNil)

	badCfg := NewDefaultConfig()
	badCfg.MaxAngleDLS = 0
	_, err = New(planarArm(t), badCfg)
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "max_angle_dls")
}

func TestComputeJacobian(t *testing.T) {
	j, err := New(planarArm(t), NewDefaultConfig())
	test.That(t, err, test.ShouldBeNil)
	targets := []r3.Vector{{X: 1.5, Y: 0.5}}
	test.That(t, j.ComputeJacobian(targets), test.ShouldBeNil)

	// w × (s − s_j) with w = z
	test.That(t, linalg.MatrixTriple(j.Jend(), 0, 0), test.ShouldResemble, r3.Vector{Y: 2})
	test.That(t, linalg.MatrixTriple(j.Jend(), 0, 1), test.ShouldResemble, r3.Vector{Y: 1})
	test.That(t, linalg.MatrixTriple(j.Jtarget(), 0, 0), test.ShouldResemble, r3.Vector{X: -0.5, Y: 1.5})
	test.That(t, linalg.MatrixTriple(j.Jtarget(), 0, 1), test.ShouldResemble, r3.Vector{X: -0.5, Y: 0.5})
	test.That(t, linalg.Triple(j.DeltaS(), 0), test.ShouldResemble, r3.Vector{X: -0.5, Y: 0.5})

	t.Run("frozen joints have zero columns", func(t *testing.T) {
		elbow, err := j.Tree().Joint(1)
		test.That(t, err, test.ShouldBeNil)
		elbow.Freeze()
		defer elbow.UnFreeze()
		test.That(t, j.ComputeJacobian(targets), test.ShouldBeNil)
		test.That(t, linalg.MatrixTriple(j.Jend(), 0, 1), test.ShouldResemble, r3.Vector{})
		test.That(t, linalg.MatrixTriple(j.Jtarget(), 0, 1), test.ShouldResemble, r3.Vector{})
		test.That(t, linalg.MatrixTriple(j.Jend(), 0, 0), test.ShouldResemble, r3.Vector{Y: 2})
	})

	t.Run("target count", func(t *testing.T) {
		err := j.ComputeJacobian(nil)
		test.That(t, errors.Is(err, ErrTargetCount), test.ShouldBeTrue)
	})

	t.Run("stale positions are recomputed", func(t *testing.T) {
		test.That(t, j.Tree().SetThetas([]float64{math.Pi / 2, 0}), test.ShouldBeNil)
		test.That(t, j.ComputeJacobian(targets), test.ShouldBeNil)
		col0 := linalg.MatrixTriple(j.Jend(), 0, 0)
		test.That(t, spatialmath.R3VectorAlmostEqual(col0, r3.Vector{X: -2}, 1e-9), test.ShouldBeTrue)
	})

	t.Run("branches only see their own joints", func(t *testing.T) {
		jf, err := New(forkedTree(t), NewDefaultConfig())
		test.That(t, err, test.ShouldBeNil)
		test.That(t, jf.ComputeJacobian(jf.Tree().EffectorPositions()), test.ShouldBeNil)
		// joint 3 is the right arm, effector 0 the left hand
		test.That(t, linalg.MatrixTriple(jf.Jend(), 0, 3), test.ShouldResemble, r3.Vector{})
		test.That(t, linalg.MatrixTriple(jf.Jend(), 1, 2), test.ShouldResemble, r3.Vector{})
		test.That(t, linalg.MatrixTriple(jf.Jend(), 0, 2).Norm(), test.ShouldBeGreaterThan, 0)
		test.That(t, linalg.MaxAbs(jf.DeltaS()), test.ShouldEqual, 0.)
	})

	standalone, err := NewStandalone(false, 2, 1, NewDefaultConfig())
	test.That(t, err, test.ShouldBeNil)
	test.That(t, errors.Is(standalone.ComputeJacobian(targets), ErrNoTree), test.ShouldBeTrue)
}

func TestActiveJacobian(t *testing.T) {
	j, err := New(planarArm(t), NewDefaultConfig())
	test.That(t, err, test.ShouldBeNil)
	test.That(t, j.ActiveJacobian(), test.ShouldEqual, j.Jend())
	j.SetJtargetActive()
	test.That(t, j.ActiveJacobian(), test.ShouldEqual, j.Jtarget())
	j.SetJendActive()
	test.That(t, j.ActiveJacobian(), test.ShouldEqual, j.Jend())
}

func TestStandaloneInputs(t *testing.T) {
	j, err := NewStandalone(false, 2, 1, NewDefaultConfig())
	test.That(t, err, test.ShouldBeNil)

	err = j.SetJendTrans(mat.NewDense(2, 2, nil))
	test.That(t, errors.Is(err, linalg.ErrDimensionMismatch), test.ShouldBeTrue)
	test.That(t, j.SetJendTrans(mat.NewDense(3, 2, []float64{1, 0, 0, 1, 0, 0})), test.ShouldBeNil)
	test.That(t, j.Jend().At(1, 1), test.ShouldEqual, 1.)

	err = j.SetDeltaS(mat.NewVecDense(2, nil))
	test.That(t, errors.Is(err, linalg.ErrDimensionMismatch), test.ShouldBeTrue)
	test.That(t, j.SetDeltaS(mat.NewVecDense(3, []float64{1, 2, 3})), test.ShouldBeNil)
	test.That(t, j.DeltaS().RawVector().Data, test.ShouldResemble, []float64{1, 2, 3})

	// the copy does not alias the internal vector
	j.DeltaS().SetVec(0, 100)
	test.That(t, j.DeltaS().AtVec(0), test.ShouldEqual, 1.)

	test.That(t, errors.Is(j.UpdateThetas(), ErrNoTree), test.ShouldBeTrue)
	test.That(t, errors.Is(j.UpdatedSClampValue(nil), ErrNoTree), test.ShouldBeTrue)
	_, err = j.UpdateErrorArray(nil)
	test.That(t, errors.Is(err, ErrNoTree), test.ShouldBeTrue)
}

func TestClampDetection(t *testing.T) {
	j, err := New(planarArm(t), NewDefaultConfig())
	test.That(t, err, test.ShouldBeNil)
	for _, c := range j.DeltaSClamp() {
		test.That(t, math.IsInf(c, 1), test.ShouldBeTrue)
	}

	targets := []r3.Vector{{X: 2, Y: 3}}
	test.That(t, j.ComputeJacobian(targets), test.ShouldBeNil)

	// unclamped
	j.CalcdTClampedFromdS()
	test.That(t, linalg.Triple(j.ClampedDeltaS(), 0), test.ShouldResemble, r3.Vector{Y: 3})

	// no motion means no growth
	test.That(t, j.UpdatedSClampValue(targets), test.ShouldBeNil)
	test.That(t, j.DeltaSClamp()[0], test.ShouldAlmostEqual, 0.4)
	j.CalcdTClampedFromdS()
	test.That(t, spatialmath.R3VectorAlmostEqual(linalg.Triple(j.ClampedDeltaS(), 0), r3.Vector{Y: 0.4}, 1e-12), test.ShouldBeTrue)

	// moving away from the target widens the clamp by the distance lost
	test.That(t, j.Tree().SetThetas([]float64{-0.5, 0}), test.ShouldBeNil)
	test.That(t, j.UpdatedSClampValue(targets), test.ShouldBeNil)
	s, err := j.Tree().EffectorPosition(0)
	test.That(t, err, test.ShouldBeNil)
	lost := targets[0].Sub(s).Norm() - 3
	test.That(t, lost, test.ShouldBeGreaterThan, 0)
	test.That(t, j.DeltaSClamp()[0], test.ShouldAlmostEqual, 0.4+lost)

	// lifting the clamp keeps the pose
	j.ResetClamp()
	test.That(t, math.IsInf(j.DeltaSClamp()[0], 1), test.ShouldBeTrue)
	test.That(t, j.Tree().Thetas(), test.ShouldResemble, []float64{-0.5, 0})
	j.CalcdTClampedFromdS()
	test.That(t, linalg.Triple(j.ClampedDeltaS(), 0), test.ShouldResemble, r3.Vector{Y: 3})

	j.Reset()
	test.That(t, math.IsInf(j.DeltaSClamp()[0], 1), test.ShouldBeTrue)
	test.That(t, j.Tree().Thetas(), test.ShouldResemble, []float64{0, 0})
	test.That(t, linalg.MaxAbs(j.DeltaS()), test.ShouldEqual, 0.)

	t.Run("fixed", func(t *testing.T) {
		cfg := NewDefaultConfig()
		cfg.Clamp = ClampFixed
		cfg.MaxTargetDist = 0.25
		j, err := New(planarArm(t), cfg)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, j.ComputeJacobian(targets), test.ShouldBeNil)
		test.That(t, j.Tree().SetThetas([]float64{-0.5, 0}), test.ShouldBeNil)
		test.That(t, j.UpdatedSClampValue(targets), test.ShouldBeNil)
		test.That(t, j.DeltaSClamp()[0], test.ShouldEqual, 0.25)
		j.CalcdTClampedFromdS()
		test.That(t, linalg.Triple(j.ClampedDeltaS(), 0).Norm(), test.ShouldAlmostEqual, 0.25)
	})
}

func TestParseUpdateMode(t *testing.T) {
	for _, mode := range Modes {
		parsed, err := ParseUpdateMode(mode.String())
		test.That(t, err, test.ShouldBeNil)
		test.That(t, parsed, test.ShouldEqual, mode)
	}
	parsed, err := ParseUpdateMode(" SDLS ")
	test.That(t, err, test.ShouldBeNil)
	test.That(t, parsed, test.ShouldEqual, SDLS)
	parsed, err = ParseUpdateMode("jt")
	test.That(t, err, test.ShouldBeNil)
	test.That(t, parsed, test.ShouldEqual, JacobianTranspose)

	_, err = ParseUpdateMode("undefined")
	test.That(t, err, test.ShouldNotBeNil)
	_, err = ParseUpdateMode("newton")
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, UpdateMode(42).String(), test.ShouldEqual, "unknown")
}
