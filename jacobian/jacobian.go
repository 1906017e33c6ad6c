// Package jacobian builds the Jacobian of a skeleton's effector positions with respect to its joint angles and
// turns effector displacements into joint angle changes.
package jacobian

import (
	"math"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"go.viam.com/jacobik/linalg"
	"go.viam.com/jacobik/skeleton"
	"go.viam.com/jacobik/utils"
)

// Jacobian holds the Jacobian matrices for a tree together with the working vectors of one solve step.
// Row 3i..3i+2 belongs to effector i and column j to joint j. A Jacobian and its tree are not safe for
// concurrent use.
type Jacobian struct {
	tree *skeleton.Tree
	cfg  Config

	nEffector  int
	nRow, nCol int
	useAngular bool

	// Jend uses the effector positions, Jtarget the target positions.
	jend    *mat.Dense
	jtarget *mat.Dense
	active  *mat.Dense
	jnorms  *mat.Dense

	svd *linalg.SVD

	dS        *mat.VecDense
	dT1       *mat.VecDense
	dSclamp   []float64
	dTheta    *mat.VecDense
	dPreTheta *mat.VecDense

	errorArray []float64

	mode            UpdateMode
	dampingLambda   float64
	dampingLambdaSq float64
}

// New returns a Jacobian for tree. The tree must have at least one joint and one effector, and must not gain
// nodes afterwards.
func New(tree *skeleton.Tree, cfg Config) (*Jacobian, error) {
	if tree == nil {
		return nil, ErrNoTree
	}
	if tree.NumJoint() == 0 || tree.NumEffector() == 0 {
		return nil, errors.Errorf(
			"tree needs at least one joint and one effector, has %d joints and %d effectors",
			tree.NumJoint(), tree.NumEffector())
	}
	j, err := newJacobian(tree.NumEffector(), 3*tree.NumEffector(), tree.NumJoint(), cfg)
	if err != nil {
		return nil, err
	}
	j.tree = tree
	tree.ComputeIfDirty()
	return j, nil
}

// NewStandalone returns a Jacobian that is not bound to a tree. The caller supplies the matrix with SetJendTrans
// and the displacement with SetDeltaS. With useAngularJacobian each effector has six rows, three for position
// and three for orientation.
func NewStandalone(useAngularJacobian bool, nDof, numEndEffectors int, cfg Config) (*Jacobian, error) {
	if nDof < 1 || numEndEffectors < 1 {
		return nil, errors.Errorf("need at least one degree of freedom and one effector, got %d and %d", nDof, numEndEffectors)
	}
	rows := 3 * numEndEffectors
	if useAngularJacobian {
		rows = 6 * numEndEffectors
	}
	j, err := newJacobian(numEndEffectors, rows, nDof, cfg)
	if err != nil {
		return nil, err
	}
	j.useAngular = useAngularJacobian
	return j, nil
}

func newJacobian(nEffector, nRow, nCol int, cfg Config) (*Jacobian, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	j := &Jacobian{
		cfg:        cfg,
		nEffector:  nEffector,
		nRow:       nRow,
		nCol:       nCol,
		jend:       mat.NewDense(nRow, nCol, nil),
		jtarget:    mat.NewDense(nRow, nCol, nil),
		jnorms:     mat.NewDense(nRow/3, nCol, nil),
		dS:         mat.NewVecDense(nRow, nil),
		dT1:        mat.NewVecDense(nRow, nil),
		dSclamp:    make([]float64, nRow/3),
		dTheta:     mat.NewVecDense(nCol, nil),
		dPreTheta:  mat.NewVecDense(nCol, nil),
		errorArray: make([]float64, nEffector),
	}
	j.active = j.jend
	j.Reset()
	return j, nil
}

// Reset returns the tree to its rest pose, restores the configured damping, removes all target clamping and
// clears the working vectors.
func (j *Jacobian) Reset() {
	if j.tree != nil {
		j.tree.Init()
	}
	j.SetDampingDLS(j.cfg.DampingLambda)
	j.ResetClamp()
	j.dS.Zero()
	j.dT1.Zero()
	j.dTheta.Zero()
	j.dPreTheta.Zero()
	for i := range j.errorArray {
		j.errorArray[i] = 0
	}
	j.svd = nil
}

// Tree returns the tree the Jacobian was built for, nil when standalone.
func (j *Jacobian) Tree() *skeleton.Tree { return j.tree }

// Config returns the tuning in use.
func (j *Jacobian) Config() Config { return j.cfg }

// NumRows is 3 per effector, or 6 for a standalone angular Jacobian.
func (j *Jacobian) NumRows() int { return j.nRow }

// NumCols is the number of joints.
func (j *Jacobian) NumCols() int { return j.nCol }

// NumEffectors is the number of effectors.
func (j *Jacobian) NumEffectors() int { return j.nEffector }

// UsesAngular reports whether the Jacobian carries orientation rows.
func (j *Jacobian) UsesAngular() bool { return j.useAngular }

// SetCurrentMode selects the algorithm used by CalcDeltaThetas.
func (j *Jacobian) SetCurrentMode(mode UpdateMode) { j.mode = mode }

// CurrentMode returns the algorithm used by CalcDeltaThetas.
func (j *Jacobian) CurrentMode() UpdateMode { return j.mode }

// SetDampingDLS sets the damping factor lambda used by the DLS modes.
func (j *Jacobian) SetDampingDLS(lambda float64) {
	j.dampingLambda = lambda
	j.dampingLambdaSq = utils.Square(lambda)
}

// DampingLambda returns the damping factor used by the DLS modes.
func (j *Jacobian) DampingLambda() float64 { return j.dampingLambda }

// ComputeJacobian fills Jend and Jtarget for the current pose and sets the displacement dS to the vector from
// each effector to its target. Frozen joints get zero columns.
func (j *Jacobian) ComputeJacobian(targets []r3.Vector) error {
	if j.tree == nil {
		return ErrNoTree
	}
	if len(targets) != j.nEffector {
		return newTargetCountError(j.nEffector, len(targets))
	}
	if j.tree.NumJoint() != j.nCol || j.tree.NumEffector() != j.nEffector {
		return errors.Wrapf(linalg.ErrDimensionMismatch,
			"tree has %d joints and %d effectors, jacobian was built for %d and %d",
			j.tree.NumJoint(), j.tree.NumEffector(), j.nCol, j.nEffector)
	}
	j.tree.ComputeIfDirty()
	j.jend.Zero()
	j.jtarget.Zero()

	for i, target := range targets {
		eff, err := j.tree.Effector(i)
		if err != nil {
			return err
		}
		s := eff.GlobalPosition()
		linalg.SetTriple(j.dS, i, target.Sub(s))

		for p := j.tree.Parent(eff.ID()); p != skeleton.NoNode; p = j.tree.Parent(p) {
			m, err := j.tree.Node(p)
			if err != nil {
				return err
			}
			if !m.IsJoint() || m.IsFrozen() {
				continue
			}
			col := m.JointNum()
			w := m.GlobalAxis()
			sj := m.GlobalPosition()
			linalg.SetMatrixTriple(j.jend, i, col, w.Cross(s.Sub(sj)))
			linalg.SetMatrixTriple(j.jtarget, i, col, w.Cross(target.Sub(sj)))
		}
	}
	return nil
}

// SetJendActive makes the end position Jacobian the one the solvers use.
func (j *Jacobian) SetJendActive() { j.active = j.jend }

// SetJtargetActive makes the target position Jacobian the one the solvers use.
func (j *Jacobian) SetJtargetActive() { j.active = j.jtarget }

// ActiveJacobian returns the matrix the solvers use, either Jend or Jtarget.
func (j *Jacobian) ActiveJacobian() *mat.Dense { return j.active }

// Jend returns the end position Jacobian.
func (j *Jacobian) Jend() *mat.Dense { return j.jend }

// Jtarget returns the target position Jacobian.
func (j *Jacobian) Jtarget() *mat.Dense { return j.jtarget }

// SetJendTrans loads a caller supplied matrix into Jend.
func (j *Jacobian) SetJendTrans(jm mat.Matrix) error {
	if err := linalg.CheckDims("jacobian", jm, j.nRow, j.nCol); err != nil {
		return err
	}
	j.jend.Copy(jm)
	return nil
}

// SetDeltaS loads a caller supplied effector displacement.
func (j *Jacobian) SetDeltaS(s mat.Vector) error {
	if err := linalg.CheckLen("displacement", s, j.nRow); err != nil {
		return err
	}
	j.dS.CopyVec(s)
	return nil
}

// DeltaS returns a copy of the effector displacement.
func (j *Jacobian) DeltaS() *mat.VecDense {
	return mat.VecDenseCopyOf(j.dS)
}

// ClampedDeltaS returns a copy of the clamped displacement used by the last solve.
func (j *Jacobian) ClampedDeltaS() *mat.VecDense {
	return mat.VecDenseCopyOf(j.dT1)
}

// ResetClamp lifts every clamp distance to +Inf, so the first step of a new solve is not limited by the
// previous solve's last step.
func (j *Jacobian) ResetClamp() {
	for i := range j.dSclamp {
		j.dSclamp[i] = math.Inf(1)
	}
}

// DeltaSClamp returns the current clamp distance of each 3-row block.
func (j *Jacobian) DeltaSClamp() []float64 {
	return append([]float64(nil), j.dSclamp...)
}

// UpdatedSClampValue recomputes the clamp distance of each effector after a step. With adaptive clamping an
// effector that ended up further from its target than before gets a larger clamp.
func (j *Jacobian) UpdatedSClampValue(targets []r3.Vector) error {
	if j.tree == nil {
		return ErrNoTree
	}
	if len(targets) != j.nEffector {
		return newTargetCountError(j.nEffector, len(targets))
	}
	for i, target := range targets {
		if j.cfg.Clamp == ClampFixed {
			j.dSclamp[i] = j.cfg.MaxTargetDist
			continue
		}
		s, err := j.tree.EffectorPosition(i)
		if err != nil {
			return err
		}
		changedDist := target.Sub(s).Norm() - linalg.Triple(j.dS, i).Norm()
		if changedDist > 0 {
			j.dSclamp[i] = j.cfg.BaseMaxTargetDist + changedDist
		} else {
			j.dSclamp[i] = j.cfg.BaseMaxTargetDist
		}
	}
	return nil
}

// CalcdTClampedFromdS sets dT1 to dS with every 3-row block longer than its clamp shortened to the clamp.
func (j *Jacobian) CalcdTClampedFromdS() {
	for i := range j.dSclamp {
		tri := linalg.Triple(j.dS, i)
		normSq := tri.Norm2()
		if normSq > utils.Square(j.dSclamp[i]) {
			tri = tri.Mul(j.dSclamp[i] / math.Sqrt(normSq))
		}
		linalg.SetTriple(j.dT1, i, tri)
	}
}
