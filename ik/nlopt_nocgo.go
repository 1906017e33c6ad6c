//go:build windows || no_cgo

package ik

import (
	"context"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"

	"go.viam.com/jacobik/jacobian"
	"go.viam.com/jacobik/logging"
	"go.viam.com/jacobik/skeleton"
)

// NloptMethod names solutions found by the NloptSolver.
const NloptMethod = "nlopt"

var errNloptUnsupported = errors.New("nlopt is not supported on this build")

// NloptSolver mimics the type in the cgo compiled code.
type NloptSolver struct{}

// NewNloptSolver is not supported on no_cgo builds.
func NewNloptSolver(tree *skeleton.Tree, cfg jacobian.Config, opts Options, logger logging.Logger) (*NloptSolver, error) {
	return nil, errNloptUnsupported
}

// Jacobian returns nil. The solver isn't real.
func (ik *NloptSolver) Jacobian() *jacobian.Jacobian { return nil }

// Options returns zero options.
func (ik *NloptSolver) Options() Options { return Options{} }

// Reset does nothing.
func (ik *NloptSolver) Reset() {}

// Solve refuses to solve problems without cgo.
func (ik *NloptSolver) Solve(ctx context.Context, targets []r3.Vector) (*Solution, error) {
	return nil, errNloptUnsupported
}
