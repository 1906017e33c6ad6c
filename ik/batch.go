package ik

import (
	"context"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"go.viam.com/jacobik/jacobian"
	"go.viam.com/jacobik/logging"
	"go.viam.com/jacobik/skeleton"
	"go.viam.com/jacobik/utils"
)

// SolveBatch solves each set of targets independently, starting every query from the tree's current pose.
// Queries run concurrently on copies of the tree; tree itself is left untouched. Results are returned in
// query order. The first failing query cancels the rest.
func SolveBatch(
	ctx context.Context,
	tree *skeleton.Tree,
	cfg jacobian.Config,
	opts Options,
	logger logging.Logger,
	queries [][]r3.Vector,
) ([]*Solution, error) {
	if tree == nil {
		return nil, jacobian.ErrNoTree
	}
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	results := make([]*Solution, len(queries))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(utils.ParallelFactor)
	for i, targets := range queries {
		idx, queryTargets := i, targets
		g.Go(func() error {
			solver, err := NewSolver(tree.Clone(), cfg, opts, logger)
			if err != nil {
				return err
			}
			sol, err := solver.Solve(gctx, queryTargets)
			if err != nil {
				return errors.Wrapf(err, "query %d", idx)
			}
			results[idx] = sol
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	logger.Debugw("batch solve finished", "queries", len(queries))
	return results, nil
}
