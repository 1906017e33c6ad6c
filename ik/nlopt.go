//go:build !windows && !no_cgo

package ik

import (
	"context"
	"math"

	"github.com/go-nlopt/nlopt"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.viam.com/utils"
	"gonum.org/v1/gonum/mat"

	"go.viam.com/jacobik/jacobian"
	"go.viam.com/jacobik/linalg"
	"go.viam.com/jacobik/logging"
	"go.viam.com/jacobik/skeleton"
)

// NloptMethod names solutions found by the NloptSolver.
const NloptMethod = "nlopt"

const nloptTolerance = 1e-10

type optimizeReturn struct {
	solution []float64
	score    float64
	err      error
}

// NloptSolver minimizes the squared effector distances directly with SLSQP, using the end effector Jacobian as
// the gradient and the joint limits as bounds.
type NloptSolver struct {
	jac    *jacobian.Jacobian
	opts   Options
	logger logging.Logger
}

// NewNloptSolver creates an nlopt solver that moves the joints of tree. Options.Mode is ignored and
// Options.MaxIterations bounds the number of objective evaluations.
func NewNloptSolver(tree *skeleton.Tree, cfg jacobian.Config, opts Options, logger logging.Logger) (*NloptSolver, error) {
	if opts.MaxIterations < 1 {
		return nil, errors.Errorf("max_iterations must be at least 1, got %d", opts.MaxIterations)
	}
	jac, err := jacobian.New(tree, cfg)
	if err != nil {
		return nil, err
	}
	return &NloptSolver{jac: jac, opts: opts, logger: logger}, nil
}

// Jacobian returns the Jacobian used for gradients and error bookkeeping.
func (ik *NloptSolver) Jacobian() *jacobian.Jacobian { return ik.jac }

// Options returns the options the solver was created with.
func (ik *NloptSolver) Options() Options { return ik.opts }

// Reset restores the tree to its rest pose.
func (ik *NloptSolver) Reset() { ik.jac.Reset() }

// bounds returns the joint limits, pinning frozen joints at their current angle.
func (ik *NloptSolver) bounds() (lower, upper []float64, err error) {
	tree := ik.jac.Tree()
	lower = make([]float64, tree.NumJoint())
	upper = make([]float64, tree.NumJoint())
	for i := range lower {
		joint, err := tree.Joint(i)
		if err != nil {
			return nil, nil, err
		}
		if joint.IsFrozen() {
			lower[i], upper[i] = joint.Theta(), joint.Theta()
			continue
		}
		lim := joint.Limit()
		lower[i], upper[i] = lim.Min, lim.Max
	}
	return lower, upper, nil
}

// Solve runs SLSQP from the current pose. The best pose found is left on the tree.
func (ik *NloptSolver) Solve(ctx context.Context, targets []r3.Vector) (*Solution, error) {
	tree := ik.jac.Tree()
	start, err := ik.jac.UpdateErrorArray(targets)
	if err != nil {
		return nil, err
	}
	sol := &Solution{Method: NloptMethod, History: make([]float64, 0, ik.opts.MaxIterations)}
	if start <= ik.opts.GoalThreshold {
		ik.fill(sol, start)
		sol.Converged = true
		return sol, nil
	}
	if tree.NumJoint() == 0 {
		ik.fill(sol, start)
		return sol, nil
	}

	lower, upper, err := ik.bounds()
	if err != nil {
		return nil, err
	}
	opt, err := nlopt.NewNLopt(nlopt.LD_SLSQP, uint(tree.NumJoint()))
	if err != nil {
		return nil, errors.Wrap(err, "nlopt creation error")
	}
	defer opt.Destroy()

	var evalErr error
	// x holds joint angles. gradient is backed by C memory and is filled in place.
	minFunc := func(x, gradient []float64) float64 {
		if err := tree.SetThetas(x); err != nil {
			evalErr = err
			return math.Inf(1)
		}
		tree.Compute()
		if err := ik.jac.ComputeJacobian(targets); err != nil {
			evalErr = err
			return math.Inf(1)
		}
		dS := ik.jac.DeltaS()
		sol.History = append(sol.History, linalg.SumAbs(linalg.BlockNorms(dS)))
		if len(gradient) > 0 {
			g := mat.NewVecDense(len(gradient), gradient)
			g.MulVec(ik.jac.Jend().T(), dS)
			g.ScaleVec(-1, g)
		}
		return 0.5 * mat.Dot(dS, dS)
	}

	// Each effector within GoalThreshold / nEffector keeps the summed error under GoalThreshold.
	perEffector := ik.opts.GoalThreshold / float64(tree.NumEffector())
	err = multierr.Combine(
		opt.SetLowerBounds(lower),
		opt.SetUpperBounds(upper),
		opt.SetStopVal(0.5*perEffector*perEffector),
		opt.SetFtolRel(nloptTolerance),
		opt.SetXtolRel(nloptTolerance),
		opt.SetMaxEval(ik.opts.MaxIterations),
		opt.SetMinObjective(minFunc),
	)
	if err != nil {
		return nil, errors.Wrap(err, "failed to configure nlopt")
	}

	ik.logger.Debugw("starting solve", "method", NloptMethod, "error", start, "targets", len(targets))
	seed := tree.Thetas()
	solveChan := make(chan *optimizeReturn, 1)
	utils.PanicCapturingGoWithCallback(func() {
		x, score, err := opt.Optimize(seed)
		solveChan <- &optimizeReturn{x, score, err}
	}, func(err interface{}) {
		solveChan <- &optimizeReturn{err: errors.Errorf("nlopt panicked: %v", err)}
	})

	var result *optimizeReturn
	select {
	case <-ctx.Done():
		stopErr := opt.ForceStop()
		<-solveChan
		if err := tree.SetThetas(seed); err != nil {
			return nil, err
		}
		total, err := ik.jac.UpdateErrorArray(targets)
		if err != nil {
			return nil, err
		}
		ik.fill(sol, total)
		return sol, multierr.Combine(errors.Wrap(ctx.Err(), "nlopt solve stopped"), stopErr)
	case result = <-solveChan:
	}
	if evalErr != nil {
		return nil, evalErr
	}

	best := result.solution
	if len(best) != tree.NumJoint() {
		best = seed
	}
	if err := tree.SetThetas(best); err != nil {
		return nil, err
	}
	total, err := ik.jac.UpdateErrorArray(targets)
	if err != nil {
		return nil, err
	}
	if total > start {
		// nlopt can give up on a worse point than it started from.
		if err := tree.SetThetas(seed); err != nil {
			return nil, err
		}
		if total, err = ik.jac.UpdateErrorArray(targets); err != nil {
			return nil, err
		}
	}
	ik.fill(sol, total)
	sol.Iterations = len(sol.History)
	sol.Converged = total <= ik.opts.GoalThreshold
	if result.err != nil && !sol.Converged {
		// SLSQP reports roundoff and similar stops as errors, the pose is still the best it found.
		ik.logger.Debugw("nlopt stopped early", "error", result.err)
	}
	ik.logger.Debugw("solve finished", "method", NloptMethod, "iterations", sol.Iterations, "error", total,
		"converged", sol.Converged)
	return sol, nil
}

func (ik *NloptSolver) fill(sol *Solution, total float64) {
	sol.Thetas = ik.jac.Tree().Thetas()
	sol.Error = total
	sol.Errors = ik.jac.ErrorArray()
}
