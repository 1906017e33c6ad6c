// Package main is the ik-solve command, which solves a kinematic model for effector targets.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"

	"go.viam.com/jacobik/ik"
	"go.viam.com/jacobik/jacobian"
	"go.viam.com/jacobik/logging"
	"go.viam.com/jacobik/skeleton"
)

const (
	flagModel      = "model"
	flagMode       = "mode"
	flagIterations = "iterations"
	flagThreshold  = "threshold"
	flagNoClamp    = "no-clamp"
	flagJtarget    = "jtarget"
	flagNlopt      = "nlopt"
	flagBatch      = "batch"
	flagPlot       = "plot"
	flagHistogram  = "histogram"
	flagDebug      = "debug"

	modeCombined = "combined"
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	var logger logging.Logger

	return &cli.App{
		Name:      "ik-solve",
		Usage:     "solve inverse kinematics for a joint tree",
		UsageText: "ik-solve --model FILE [options] x,y,z [x,y,z ...]",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     flagModel,
				Aliases:  []string{"m"},
				Usage:    "load the kinematic model from `FILE`",
				Required: true,
			},
			&cli.StringFlag{
				Name:  flagMode,
				Value: jacobian.SDLS.String(),
				Usage: "update mode: sdls, dls, pseudoinverse, transpose, nlopt or combined",
			},
			&cli.IntFlag{
				Name:  flagIterations,
				Value: ik.NewDefaultOptions().MaxIterations,
				Usage: "maximum number of solver steps",
			},
			&cli.Float64Flag{
				Name:  flagThreshold,
				Value: ik.NewDefaultOptions().GoalThreshold,
				Usage: "summed effector distance at which a solve has converged",
			},
			&cli.BoolFlag{
				Name:  flagNoClamp,
				Usage: "disable adaptive clamp detection",
			},
			&cli.BoolFlag{
				Name:  flagJtarget,
				Usage: "differentiate with respect to the targets instead of the effectors",
			},
			&cli.BoolFlag{
				Name:  flagNlopt,
				Usage: "include the nlopt solver in combined mode",
			},
			&cli.StringFlag{
				Name:  flagBatch,
				Usage: "solve every target set listed in the JSON `FILE` instead of the positional targets",
			},
			&cli.StringFlag{
				Name:  flagPlot,
				Usage: "write a convergence plot to `FILE` (png, svg or pdf)",
			},
			&cli.BoolFlag{
				Name:  flagHistogram,
				Usage: "print a histogram of the per-step error",
			},
			&cli.BoolFlag{
				Name:    flagDebug,
				Aliases: []string{"vvv"},
				Usage:   "enable debug logging",
			},
		},
		Before: func(c *cli.Context) error {
			if c.Bool(flagDebug) {
				logger = logging.NewDebugLogger("ik-solve")
			} else {
				logger = logging.NewLogger("ik-solve")
			}
			return nil
		},
		Action: func(c *cli.Context) error {
			return solveAction(c, logger)
		},
	}
}

func solveAction(c *cli.Context, logger logging.Logger) error {
	tree, err := skeleton.ParseModelJSONFile(c.String(flagModel))
	if err != nil {
		return err
	}
	logger.Debugf("loaded model:\n%s", tree)

	opts := ik.NewDefaultOptions()
	opts.MaxIterations = c.Int(flagIterations)
	opts.GoalThreshold = c.Float64(flagThreshold)
	opts.ClampDetection = !c.Bool(flagNoClamp)
	opts.UseJtarget = c.Bool(flagJtarget)
	opts.UseNlopt = c.Bool(flagNlopt)
	combined := strings.EqualFold(c.String(flagMode), modeCombined)
	useNlopt := strings.EqualFold(c.String(flagMode), ik.NloptMethod)
	if !combined && !useNlopt {
		if opts.Mode, err = jacobian.ParseUpdateMode(c.String(flagMode)); err != nil {
			return err
		}
	}
	cfg := jacobian.NewDefaultConfig()
	w := c.App.Writer
	ctx := c.Context
	if ctx == nil {
		ctx = context.Background()
	}

	if batchFile := c.String(flagBatch); batchFile != "" {
		if combined || useNlopt {
			return errors.Errorf("%s mode cannot be used with --batch", c.String(flagMode))
		}
		queries, err := readBatchFile(batchFile)
		if err != nil {
			return err
		}
		solutions, err := ik.SolveBatch(ctx, tree, cfg, opts, logger, queries)
		if err != nil {
			return err
		}
		printBatch(w, solutions)
		return writeReports(c, solutions)
	}

	targets, err := parseTargets(c.Args().Slice())
	if err != nil {
		return err
	}
	if len(targets) != tree.NumEffector() {
		return errors.Errorf("model has %d effectors but %d targets were given", tree.NumEffector(), len(targets))
	}

	var (
		best *ik.Solution
		all  []*ik.Solution
	)
	switch {
	case useNlopt:
		solver, err := ik.NewNloptSolver(tree, cfg, opts, logger)
		if err != nil {
			return err
		}
		if best, err = solver.Solve(ctx, targets); err != nil {
			return err
		}
		all = []*ik.Solution{best}
	case combined:
		solver, err := ik.NewCombinedSolver(tree, cfg, opts, logger)
		if err != nil {
			return err
		}
		if best, all, err = solver.Solve(ctx, targets); err != nil {
			if best == nil {
				return err
			}
			logger.Warnw("some solvers failed", "error", err)
		}
	default:
		solver, err := ik.NewSolver(tree, cfg, opts, logger)
		if err != nil {
			return err
		}
		if best, err = solver.Solve(ctx, targets); err != nil {
			return err
		}
		all = []*ik.Solution{best}
	}

	if len(all) > 1 {
		printSummary(w, all)
	}
	printSummary(w, []*ik.Solution{best})
	printJoints(w, tree)
	printEffectors(w, tree, targets, best)
	return writeReports(c, all)
}

// parseTargets parses each argument as a comma separated x,y,z triple.
func parseTargets(args []string) ([]r3.Vector, error) {
	if len(args) == 0 {
		return nil, errors.New("no targets given, expected one x,y,z argument per effector")
	}
	targets := make([]r3.Vector, 0, len(args))
	for _, arg := range args {
		parts := strings.Split(arg, ",")
		if len(parts) != 3 {
			return nil, errors.Errorf("target %q does not follow the format x,y,z", arg)
		}
		var xyz [3]float64
		for i, part := range parts {
			v, err := strconv.ParseFloat(strings.TrimSpace(part), 64)
			if err != nil {
				return nil, errors.Wrapf(err, "target %q", arg)
			}
			xyz[i] = v
		}
		targets = append(targets, r3.Vector{X: xyz[0], Y: xyz[1], Z: xyz[2]})
	}
	return targets, nil
}

// readBatchFile reads a JSON list of target sets, each a list of [x, y, z] triples.
func readBatchFile(filename string) ([][]r3.Vector, error) {
	//nolint:gosec
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read batch file")
	}
	var raw [][][3]float64
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal batch file")
	}
	queries := make([][]r3.Vector, 0, len(raw))
	for _, set := range raw {
		targets := make([]r3.Vector, 0, len(set))
		for _, xyz := range set {
			targets = append(targets, r3.Vector{X: xyz[0], Y: xyz[1], Z: xyz[2]})
		}
		queries = append(queries, targets)
	}
	return queries, nil
}

func writeReports(c *cli.Context, solutions []*ik.Solution) error {
	if path := c.String(flagPlot); path != "" {
		if err := plotConvergence(path, solutions); err != nil {
			return err
		}
	}
	if c.Bool(flagHistogram) {
		for _, sol := range solutions {
			if err := printHistogram(c.App.Writer, sol); err != nil {
				return err
			}
		}
	}
	return nil
}
