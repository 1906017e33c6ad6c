// Package ik drives a Jacobian to move a skeleton's effectors onto their targets.
package ik

import (
	"context"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"

	"go.viam.com/jacobik/jacobian"
	"go.viam.com/jacobik/logging"
	"go.viam.com/jacobik/skeleton"
	"go.viam.com/jacobik/utils"
)

const (
	defaultMaxIterations = 1000
	defaultGoalThreshold = 1e-3
)

// Options controls the solve loop.
type Options struct {
	// MaxIterations bounds the number of Jacobian steps.
	MaxIterations int `json:"max_iterations"`
	// GoalThreshold is the summed effector distance at which the solve stops.
	GoalThreshold float64 `json:"goal_threshold"`
	// ClampDetection updates the target clamp after every step.
	ClampDetection bool `json:"clamp_detection"`
	// UseJtarget solves with the Jacobian taken at the targets instead of at the effectors.
	UseJtarget bool                `json:"use_jtarget"`
	Mode       jacobian.UpdateMode `json:"mode"`
	// UseNlopt adds an nlopt solver when solving with a CombinedSolver.
	UseNlopt bool `json:"use_nlopt"`
}

// NewDefaultOptions returns options for an SDLS solve with clamp detection.
func NewDefaultOptions() Options {
	return Options{
		MaxIterations:  defaultMaxIterations,
		GoalThreshold:  defaultGoalThreshold,
		ClampDetection: true,
		Mode:           jacobian.SDLS,
	}
}

// Validate ensures all parts of the options are valid.
func (opts *Options) Validate() error {
	if opts.MaxIterations < 1 {
		return errors.Errorf("max_iterations must be at least 1, got %d", opts.MaxIterations)
	}
	if opts.GoalThreshold < 0 {
		return errors.Errorf("goal_threshold must be non-negative, got %v", opts.GoalThreshold)
	}
	if opts.Mode == jacobian.Undefined {
		return jacobian.ErrUndefinedUpdateMode
	}
	return nil
}

// Solution is the outcome of a solve.
type Solution struct {
	// Method names the solver that produced the solution: an update mode name or NloptMethod.
	Method string
	// Mode is the update mode used, Undefined for solvers that do not step a Jacobian.
	Mode jacobian.UpdateMode
	// Thetas are the joint angles in radians, by joint sequence number.
	Thetas []float64
	// Error is the summed distance from each effector to its target.
	Error float64
	// Errors is the distance of each effector from its target.
	Errors     []float64
	Iterations int
	Converged  bool
	// History holds Error after every iteration.
	History []float64
}

// ThetasDegrees returns Thetas in degrees.
func (s *Solution) ThetasDegrees() []float64 {
	return utils.RadiansToDegrees(s.Thetas)
}

// Solver runs the iterative Jacobian solve on one tree.
type Solver struct {
	jac    *jacobian.Jacobian
	opts   Options
	logger logging.Logger
}

// NewSolver creates a solver that moves the joints of tree. The tree is owned by the solver while a solve runs.
func NewSolver(tree *skeleton.Tree, cfg jacobian.Config, opts Options, logger logging.Logger) (*Solver, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	jac, err := jacobian.New(tree, cfg)
	if err != nil {
		return nil, err
	}
	jac.SetCurrentMode(opts.Mode)
	if opts.UseJtarget {
		jac.SetJtargetActive()
	}
	return &Solver{jac: jac, opts: opts, logger: logger}, nil
}

// Jacobian returns the Jacobian the solver steps with.
func (s *Solver) Jacobian() *jacobian.Jacobian { return s.jac }

// Options returns the options the solver was created with.
func (s *Solver) Options() Options { return s.opts }

// Reset returns the tree to its rest pose and clears the Jacobian state.
func (s *Solver) Reset() { s.jac.Reset() }

// Solve steps from the current pose until the effectors are within GoalThreshold of targets, MaxIterations
// is reached or ctx is done. The target clamp starts lifted on every call. The returned solution reflects the
// last completed step, also when an error is returned.
func (s *Solver) Solve(ctx context.Context, targets []r3.Vector) (*Solution, error) {
	sol := &Solution{
		Method:  s.opts.Mode.String(),
		Mode:    s.opts.Mode,
		History: make([]float64, 0, s.opts.MaxIterations),
	}
	total, err := s.jac.UpdateErrorArray(targets)
	if err != nil {
		return nil, err
	}
	s.jac.ResetClamp()
	s.logger.Debugw("starting solve", "mode", s.opts.Mode.String(), "error", total, "targets", len(targets))

	for total > s.opts.GoalThreshold && sol.Iterations < s.opts.MaxIterations {
		if err := ctx.Err(); err != nil {
			s.fill(sol, total)
			return sol, errors.Wrapf(err, "solve stopped after %d iterations", sol.Iterations)
		}
		next, err := s.step(targets)
		if err != nil {
			s.fill(sol, total)
			return sol, err
		}
		total = next
		sol.Iterations++
		sol.History = append(sol.History, total)
	}
	s.fill(sol, total)
	sol.Converged = total <= s.opts.GoalThreshold

	if sol.Converged {
		s.logger.Debugw("solve converged", "mode", s.opts.Mode.String(), "iterations", sol.Iterations, "error", total)
	} else {
		s.logger.Debugw("solve did not converge", "mode", s.opts.Mode.String(), "iterations", sol.Iterations, "error", total)
	}
	return sol, nil
}

func (s *Solver) step(targets []r3.Vector) (float64, error) {
	if err := s.jac.ComputeJacobian(targets); err != nil {
		return 0, err
	}
	if err := s.jac.CalcDeltaThetas(); err != nil {
		return 0, err
	}
	if err := s.jac.UpdateThetas(); err != nil {
		return 0, err
	}
	if s.opts.ClampDetection {
		if err := s.jac.UpdatedSClampValue(targets); err != nil {
			return 0, err
		}
	}
	return s.jac.UpdateErrorArray(targets)
}

func (s *Solver) fill(sol *Solution, total float64) {
	sol.Thetas = s.jac.Tree().Thetas()
	sol.Error = total
	sol.Errors = s.jac.ErrorArray()
}
