package main

import (
	"fmt"
	"io"

	"github.com/aybabtme/uniplot/histogram"
	"github.com/golang/geo/r3"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/montanaflynn/stats"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"

	"go.viam.com/jacobik/ik"
	"go.viam.com/jacobik/skeleton"
	"go.viam.com/jacobik/utils"
)

const histogramWidth = 40

func formatVector(v r3.Vector) string {
	return fmt.Sprintf("X:%.4f, Y:%.4f, Z:%.4f", v.X, v.Y, v.Z)
}

func printSummary(w io.Writer, solutions []*ik.Solution) {
	tw := table.NewWriter()
	tw.SetOutputMirror(w)
	tw.AppendHeader(table.Row{"Method", "Converged", "Iterations", "Error"})
	for _, sol := range solutions {
		tw.AppendRow(table.Row{sol.Method, sol.Converged, sol.Iterations, fmt.Sprintf("%.6f", sol.Error)})
	}
	tw.Render()
}

func printJoints(w io.Writer, tree *skeleton.Tree) {
	tw := table.NewWriter()
	tw.SetOutputMirror(w)
	tw.AppendHeader(table.Row{"Joint", "Theta (deg)", "Min (deg)", "Max (deg)"})
	for i := 0; i < tree.NumJoint(); i++ {
		joint, err := tree.Joint(i)
		if err != nil {
			continue
		}
		lim := joint.Limit()
		minDeg, maxDeg := "", ""
		if joint.HasLimits() {
			minDeg = fmt.Sprintf("%.2f", utils.RadToDeg(lim.Min))
			maxDeg = fmt.Sprintf("%.2f", utils.RadToDeg(lim.Max))
		}
		tw.AppendRow(table.Row{joint.Name(), fmt.Sprintf("%.2f", utils.RadToDeg(joint.Theta())), minDeg, maxDeg})
	}
	tw.Render()
}

func printEffectors(w io.Writer, tree *skeleton.Tree, targets []r3.Vector, sol *ik.Solution) {
	tree.ComputeIfDirty()
	tw := table.NewWriter()
	tw.SetOutputMirror(w)
	tw.AppendHeader(table.Row{"Effector", "Target", "Position", "Error"})
	for i, target := range targets {
		eff, err := tree.Effector(i)
		if err != nil {
			continue
		}
		dist := ""
		if i < len(sol.Errors) {
			dist = fmt.Sprintf("%.6f", sol.Errors[i])
		}
		tw.AppendRow(table.Row{eff.Name(), formatVector(target), formatVector(eff.GlobalPosition()), dist})
	}
	tw.Render()
}

func printBatch(w io.Writer, solutions []*ik.Solution) {
	tw := table.NewWriter()
	tw.SetOutputMirror(w)
	tw.AppendHeader(table.Row{"Query", "Converged", "Iterations", "Error", "Thetas (deg)"})
	for i, sol := range solutions {
		thetas := ""
		for j, deg := range sol.ThetasDegrees() {
			if j > 0 {
				thetas += " "
			}
			thetas += fmt.Sprintf("%.2f", deg)
		}
		tw.AppendRow(table.Row{i, sol.Converged, sol.Iterations, fmt.Sprintf("%.6f", sol.Error), thetas})
	}
	tw.Render()
}

// historyPoints returns the error after each step, with the starting error left out since it is not recorded.
func historyPoints(sol *ik.Solution) plotter.XYs {
	pts := make(plotter.XYs, len(sol.History))
	for i, e := range sol.History {
		pts[i].X = float64(i + 1)
		pts[i].Y = e
	}
	return pts
}

// plotConvergence saves a line plot of the error history of each solution to path.
func plotConvergence(path string, solutions []*ik.Solution) error {
	p := plot.New()
	p.Title.Text = "IK convergence"
	p.X.Label.Text = "iteration"
	p.Y.Label.Text = "error"

	methodCounts := map[string]int{}
	for _, sol := range solutions {
		methodCounts[sol.Method]++
	}
	lines := make([]interface{}, 0, 2*len(solutions))
	for i, sol := range solutions {
		if len(sol.History) == 0 {
			continue
		}
		name := sol.Method
		if methodCounts[name] > 1 {
			name = fmt.Sprintf("%s #%d", name, i)
		}
		lines = append(lines, name, historyPoints(sol))
	}
	if len(lines) == 0 {
		return errors.New("no solver steps to plot")
	}
	if err := plotutil.AddLinePoints(p, lines...); err != nil {
		return errors.Wrap(err, "failed to add convergence lines")
	}
	if err := p.Save(6*vg.Inch, 4*vg.Inch, path); err != nil {
		return errors.Wrapf(err, "failed to save plot to %s", path)
	}
	return nil
}

// printHistogram prints summary statistics and the distribution of the per-step errors of sol.
func printHistogram(w io.Writer, sol *ik.Solution) error {
	if len(sol.History) == 0 {
		return nil
	}
	data := stats.Float64Data(sol.History)
	mean, err := data.Mean()
	median, err2 := data.Median()
	sd, err3 := data.StandardDeviation()
	if err := multierr.Combine(err, err2, err3); err != nil {
		return err
	}
	fmt.Fprintf(w, "%s error distribution over %d steps (mean %.6f, median %.6f, sd %.6f):\n",
		sol.Method, len(sol.History), mean, median, sd)
	bins := max(1, len(sol.History)/10)
	hist := histogram.Hist(bins, sol.History)
	return histogram.Fprint(w, hist, histogram.Linear(histogramWidth))
}
