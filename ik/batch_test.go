package ik

import (
	"context"
	"testing"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"go.viam.com/test"

	"go.viam.com/jacobik/jacobian"
	"go.viam.com/jacobik/logging"
)

func TestSolveBatch(t *testing.T) {
	tree := loadTree(t, "planar2.json")
	queries := [][]r3.Vector{
		{{X: 1.5, Y: 0.5}},
		{{X: 1, Y: 1}},
		{{X: 0.5, Y: -1.5}},
	}
	results, err := SolveBatch(
		context.Background(), tree, jacobian.NewDefaultConfig(), NewDefaultOptions(), logging.NewTestLogger(t), queries)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, results, test.ShouldHaveLength, len(queries))
	for _, sol := range results {
		test.That(t, sol.Converged, test.ShouldBeTrue)
	}
	test.That(t, tree.Thetas(), test.ShouldResemble, []float64{0, 0})

	queries = append(queries, []r3.Vector{{X: 1}, {X: 2}})
	_, err = SolveBatch(
		context.Background(), tree, jacobian.NewDefaultConfig(), NewDefaultOptions(), logging.NewTestLogger(t), queries)
	test.That(t, errors.Is(err, jacobian.ErrTargetCount), test.ShouldBeTrue)
	test.That(t, err.Error(), test.ShouldContainSubstring, "query 3")
}
