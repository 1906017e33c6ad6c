package logging

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"go.viam.com/test"
)

type solveReport struct {
	Mode       string
	Iterations int
}

func newBufferedLogger(name string, level Level) (Logger, *bytes.Buffer) {
	buf := &bytes.Buffer{}
	logger := &impl{name, NewAtomicLevelAt(level), true, []Appender{NewWriterAppender(buf)}}
	return logger, buf
}

func splitLogLine(t *testing.T, buf *bytes.Buffer) []string {
	t.Helper()
	line, err := buf.ReadString('\n')
	test.That(t, err, test.ShouldBeNil)
	return strings.Split(strings.TrimSuffix(line, "\n"), "\t")
}

func TestConsoleFormatting(t *testing.T) {
	logger, buf := newBufferedLogger("solver", DEBUG)

	logger.Infof("converged after %d iterations", 12)
	parts := splitLogLine(t, buf)
	test.That(t, parts, test.ShouldHaveLength, 5)
	test.That(t, len(parts[0]), test.ShouldEqual, len("2023-10-30T09:12:09.459Z"))
	test.That(t, parts[1], test.ShouldEqual, "INFO")
	test.That(t, parts[2], test.ShouldEqual, "solver")
	test.That(t, parts[3], test.ShouldStartWith, "logging/impl_test.go:")
	test.That(t, parts[4], test.ShouldEqual, "converged after 12 iterations")

	logger.Debugw("step", "report", solveReport{"SDLS", 3}, "error", 0.5)
	parts = splitLogLine(t, buf)
	test.That(t, parts, test.ShouldHaveLength, 6)
	test.That(t, parts[4], test.ShouldEqual, "step")

	fields := map[string]any{}
	test.That(t, json.Unmarshal([]byte(parts[5]), &fields), test.ShouldBeNil)
	test.That(t, fields["error"], test.ShouldEqual, 0.5)
	test.That(t, fields["report"], test.ShouldResemble, map[string]any{"Mode": "SDLS", "Iterations": 3.0})
}

func TestLevels(t *testing.T) {
	logger, buf := newBufferedLogger("", WARN)
	logger.Debug("hidden")
	logger.Info("hidden")
	test.That(t, buf.Len(), test.ShouldEqual, 0)

	logger.Warn("shown")
	parts := splitLogLine(t, buf)
	test.That(t, parts[1], test.ShouldEqual, "WARN")
	test.That(t, parts[len(parts)-1], test.ShouldEqual, "shown")

	logger.SetLevel(DEBUG)
	test.That(t, logger.GetLevel(), test.ShouldEqual, DEBUG)
	logger.Debug("now shown")
	test.That(t, buf.Len(), test.ShouldBeGreaterThan, 0)

	for _, tc := range []struct {
		in  string
		out Level
	}{
		{"debug", DEBUG},
		{"INFO", INFO},
		{"Warning", WARN},
		{"error", ERROR},
	} {
		lvl, err := LevelFromString(tc.in)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, lvl, test.ShouldEqual, tc.out)
	}
	_, err := LevelFromString("loud")
	test.That(t, err, test.ShouldNotBeNil)

	var lvl Level
	test.That(t, json.Unmarshal([]byte(`"warn"`), &lvl), test.ShouldBeNil)
	test.That(t, lvl, test.ShouldEqual, WARN)
	out, err := json.Marshal(ERROR)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, string(out), test.ShouldEqual, `"error"`)
}

func TestSublogger(t *testing.T) {
	logger, buf := newBufferedLogger("ik", INFO)
	sub := logger.Sublogger("sdls")
	sub.Info("hello")
	parts := splitLogLine(t, buf)
	test.That(t, parts[2], test.ShouldEqual, "ik.sdls")
	test.That(t, sub.GetLevel(), test.ShouldEqual, INFO)
}

func TestObservedTestLogger(t *testing.T) {
	logger, logs := NewObservedTestLogger(t)
	logger.Infow("solved", "iterations", 7)
	logger.Errorf("failed %s", "badly")

	test.That(t, logs.Len(), test.ShouldEqual, 2)
	test.That(t, logs.FilterMessage("solved").Len(), test.ShouldEqual, 1)
	test.That(t, logs.FilterMessageSnippet("badly").Len(), test.ShouldEqual, 1)

	logger.AsZap().Info("through zap")
	test.That(t, logs.FilterMessage("through zap").Len(), test.ShouldEqual, 1)
	test.That(t, logger.Sync(), test.ShouldBeNil)
}
