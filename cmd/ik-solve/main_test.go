package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/golang/geo/r3"
	"go.viam.com/test"

	"go.viam.com/jacobik/ik"
	"go.viam.com/jacobik/jacobian"
)

const planarModel = "../../skeleton/testdata/planar2.json"

func TestParseTargets(t *testing.T) {
	targets, err := parseTargets([]string{"1.5,0.5,0", " -1, 2.25 ,3"})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, targets, test.ShouldResemble, []r3.Vector{{X: 1.5, Y: 0.5}, {X: -1, Y: 2.25, Z: 3}})

	_, err = parseTargets(nil)
	test.That(t, err, test.ShouldNotBeNil)
	_, err = parseTargets([]string{"1,2"})
	test.That(t, err, test.ShouldBeError, `target "1,2" does not follow the format x,y,z`)
	_, err = parseTargets([]string{"1,2,z"})
	test.That(t, err.Error(), test.ShouldContainSubstring, `target "1,2,z"`)
}

func TestReadBatchFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "batch.json")
	test.That(t, os.WriteFile(path, []byte(`[[[1.5, 0.5, 0]], [[1, 1, 0]]]`), 0o600), test.ShouldBeNil)
	queries, err := readBatchFile(path)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, queries, test.ShouldResemble, [][]r3.Vector{{{X: 1.5, Y: 0.5}}, {{X: 1, Y: 1}}})

	test.That(t, os.WriteFile(path, []byte(`{"not": "a list"}`), 0o600), test.ShouldBeNil)
	_, err = readBatchFile(path)
	test.That(t, err.Error(), test.ShouldContainSubstring, "failed to unmarshal batch file")

	_, err = readBatchFile(filepath.Join(t.TempDir(), "missing.json"))
	test.That(t, err.Error(), test.ShouldContainSubstring, "failed to read batch file")
}

func runApp(t *testing.T, args ...string) (string, error) {
	t.Helper()
	app := newApp()
	out := &bytes.Buffer{}
	app.Writer = out
	app.ErrWriter = out
	err := app.Run(append([]string{"ik-solve"}, args...))
	return out.String(), err
}

func TestSolveCommand(t *testing.T) {
	out, err := runApp(t, "--model", planarModel, "1.5,0.5,0")
	test.That(t, err, test.ShouldBeNil)
	test.That(t, out, test.ShouldContainSubstring, "sdls")
	test.That(t, out, test.ShouldContainSubstring, "hand")
	test.That(t, out, test.ShouldContainSubstring, "elbow")
	test.That(t, out, test.ShouldContainSubstring, "true")

	_, err = runApp(t, "--model", planarModel, "1,1,0", "2,2,0")
	test.That(t, err, test.ShouldBeError, "model has 1 effectors but 2 targets were given")

	_, err = runApp(t, "--model", planarModel, "--mode", "bogus", "1,1,0")
	test.That(t, err, test.ShouldNotBeNil)
}

func TestSolveCommandCombined(t *testing.T) {
	plotPath := filepath.Join(t.TempDir(), "convergence.png")
	out, err := runApp(t, "--model", planarModel, "--mode", "combined", "--plot", plotPath, "--histogram", "1,1,0")
	test.That(t, err, test.ShouldBeNil)
	for _, mode := range jacobian.Modes {
		test.That(t, out, test.ShouldContainSubstring, mode.String())
	}
	test.That(t, out, test.ShouldContainSubstring, "error distribution")
	info, err := os.Stat(plotPath)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, info.Size(), test.ShouldBeGreaterThan, 0)
}

func TestSolveCommandBatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "batch.json")
	test.That(t, os.WriteFile(path, []byte(`[[[1.5, 0.5, 0]], [[1, 1, 0]]]`), 0o600), test.ShouldBeNil)
	out, err := runApp(t, "--model", planarModel, "--mode", "dls", "--batch", path)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, out, test.ShouldContainSubstring, "QUERY")

	_, err = runApp(t, "--model", planarModel, "--mode", "combined", "--batch", path)
	test.That(t, err, test.ShouldBeError, "combined mode cannot be used with --batch")
}

func TestPlotConvergence(t *testing.T) {
	err := plotConvergence(filepath.Join(t.TempDir(), "empty.png"), []*ik.Solution{{Method: "sdls"}})
	test.That(t, err, test.ShouldBeError, "no solver steps to plot")

	sols := []*ik.Solution{
		{Method: "dls", History: []float64{1, 0.5, 0.1}},
		{Method: "dls", History: []float64{1, 0.25}},
	}
	test.That(t, historyPoints(sols[0]), test.ShouldHaveLength, 3)
	test.That(t, historyPoints(sols[0])[2].Y, test.ShouldEqual, 0.1)
	path := filepath.Join(t.TempDir(), "two.svg")
	test.That(t, plotConvergence(path, sols), test.ShouldBeNil)
	_, err = os.Stat(path)
	test.That(t, err, test.ShouldBeNil)
}

func TestPrintHistogram(t *testing.T) {
	out := &bytes.Buffer{}
	test.That(t, printHistogram(out, &ik.Solution{Method: "sdls"}), test.ShouldBeNil)
	test.That(t, out.Len(), test.ShouldEqual, 0)

	sol := &ik.Solution{Method: "sdls", History: []float64{4, 2, 1, 1, 0}}
	test.That(t, printHistogram(out, sol), test.ShouldBeNil)
	test.That(t, out.String(), test.ShouldContainSubstring, "sdls error distribution over 5 steps")
	test.That(t, out.String(), test.ShouldContainSubstring, "mean 1.600000, median 1.000000")
}
