package ik

import (
	"context"
	"sync"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.viam.com/utils"

	"go.viam.com/jacobik/jacobian"
	"go.viam.com/jacobik/logging"
	"go.viam.com/jacobik/skeleton"
)

// InverseKinematics moves the joints of the tree it was created with so its effectors reach targets.
type InverseKinematics interface {
	Solve(ctx context.Context, targets []r3.Vector) (*Solution, error)
	Jacobian() *jacobian.Jacobian
	Options() Options
	Reset()
}

// CombinedSolver runs one solver per update mode, each on its own copy of the tree, and keeps the best result.
type CombinedSolver struct {
	tree    *skeleton.Tree
	solvers []InverseKinematics
	names   []string
	logger  logging.Logger
}

// NewCombinedSolver creates a combined solver for tree. With no modes given every update mode is tried.
// Options.UseNlopt adds an NloptSolver to the set.
func NewCombinedSolver(
	tree *skeleton.Tree,
	cfg jacobian.Config,
	opts Options,
	logger logging.Logger,
	modes ...jacobian.UpdateMode,
) (*CombinedSolver, error) {
	if tree == nil {
		return nil, jacobian.ErrNoTree
	}
	if len(modes) == 0 {
		modes = jacobian.Modes
	}
	c := &CombinedSolver{tree: tree, logger: logger}
	for _, mode := range modes {
		modeOpts := opts
		modeOpts.Mode = mode
		solver, err := NewSolver(tree.Clone(), cfg, modeOpts, logger.Sublogger(mode.String()))
		if err != nil {
			return nil, errors.Wrapf(err, "creating %s solver", mode)
		}
		c.solvers = append(c.solvers, solver)
		c.names = append(c.names, mode.String())
	}
	if opts.UseNlopt {
		solver, err := NewNloptSolver(tree.Clone(), cfg, opts, logger.Sublogger(NloptMethod))
		if err != nil {
			return nil, errors.Wrapf(err, "creating %s solver", NloptMethod)
		}
		c.solvers = append(c.solvers, solver)
		c.names = append(c.names, NloptMethod)
	}
	return c, nil
}

// Solve runs every solver in parallel from the tree's current pose. The best solution is applied to the tree and
// returned along with the solution of every solver that finished, in mode order. Errors from individual solvers
// are combined; Solve only fails outright when no solver produced a solution.
func (c *CombinedSolver) Solve(ctx context.Context, targets []r3.Vector) (*Solution, []*Solution, error) {
	start := c.tree.Thetas()
	c.logger.Debugf("starting joint positions: %v", start)

	results := make([]*Solution, len(c.solvers))
	var solveErrors error
	var resultLock sync.Mutex
	var activeSolvers sync.WaitGroup

	for i, solver := range c.solvers {
		idx, thisSolver, name := i, solver, c.names[i]
		if err := thisSolver.Jacobian().Tree().SetThetas(start); err != nil {
			return nil, nil, err
		}

		activeSolvers.Add(1)
		utils.PanicCapturingGo(func() {
			defer activeSolvers.Done()
			sol, err := thisSolver.Solve(ctx, targets)

			resultLock.Lock()
			defer resultLock.Unlock()
			if err != nil {
				solveErrors = multierr.Combine(solveErrors, errors.Wrapf(err, "%s solver", name))
				return
			}
			results[idx] = sol
		})
	}
	activeSolvers.Wait()

	best := -1
	finished := make([]*Solution, 0, len(results))
	for i, sol := range results {
		if sol == nil {
			continue
		}
		finished = append(finished, sol)
		if best < 0 {
			best = i
			continue
		}
		better, err := c.better(i, best)
		if err != nil {
			solveErrors = multierr.Combine(solveErrors, err)
			continue
		}
		if better {
			best = i
		}
	}
	if best < 0 {
		return nil, nil, multierr.Combine(errors.New("no solver produced a solution"), solveErrors)
	}

	winner := results[best]
	if err := c.tree.SetThetas(winner.Thetas); err != nil {
		return nil, nil, err
	}
	c.tree.Compute()
	c.logger.Infow("combined solve finished",
		"method", winner.Method,
		"error", winner.Error,
		"iterations", winner.Iterations,
		"converged", winner.Converged,
	)
	return winner, finished, solveErrors
}

// better reports whether solver i beat solver j. Converged solves win over unconverged ones; otherwise the per
// effector errors are weighed against each other, falling back to the summed error on a draw.
func (c *CombinedSolver) better(i, j int) (bool, error) {
	si, sj := c.solvers[i], c.solvers[j]
	wi, wj, err := jacobian.CompareErrors(si.Jacobian(), sj.Jacobian())
	if err != nil {
		return false, err
	}
	ei, ej := si.Jacobian().ErrorArray(), sj.Jacobian().ErrorArray()
	sumI, sumJ := 0.0, 0.0
	for k := range ei {
		sumI += ei[k]
		sumJ += ej[k]
	}
	threshold := si.Options().GoalThreshold
	convI, convJ := sumI <= threshold, sumJ <= threshold
	switch {
	case convI != convJ:
		return convI, nil
	case wi != wj:
		return wi < wj, nil
	default:
		return sumI < sumJ, nil
	}
}
