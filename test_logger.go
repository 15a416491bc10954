package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/geni-nsf/am-contract-tests/framework"

	"github.com/fatih/color"
)

type ConsoleTestLogger struct {
	DebugOutputOnFailure bool
	DebugOutputOnSuccess bool
}

func (c *ConsoleTestLogger) TestStarted(id framework.TestID) {
	fmt.Printf("[%s]\n", id)
}

func (c *ConsoleTestLogger) TestError(id framework.TestID, err error) {
	for _, line := range strings.Split(err.Error(), "\n") {
		fmt.Printf("  %s\n", line)
	}
}

func (c *ConsoleTestLogger) TestFinished(id framework.TestID, failed bool, debugOutput framework.CapturedOutput) {
	if failed {
		color.New(color.FgRed).Printf("  FAILED: %s\n", id)
	}
	if len(debugOutput) > 0 &&
		((failed && c.DebugOutputOnFailure) || (!failed && c.DebugOutputOnSuccess)) {
		debugOutput.Dump(os.Stdout, "    DEBUG ")
	}
}

func (c *ConsoleTestLogger) TestSkipped(id framework.TestID, reason string) {
	if reason == "" {
		color.New(color.FgYellow).Printf("  SKIPPED: %s\n", id)
	} else {
		color.New(color.FgYellow).Printf("  SKIPPED: %s (%s)\n", id, reason)
	}
}

// MonitoringTestLogger emits one machine-readable line per completed test, in
// the format expected by the GENI operations monitoring collectors:
//
//	MONITORING <test_name> <1|0>
//
// where 1 means passed and 0 means failed. Group contexts and skipped tests
// produce no output.
type MonitoringTestLogger struct {
	lastStarted string
}

func (m *MonitoringTestLogger) TestStarted(id framework.TestID) {
	m.lastStarted = id.String()
}

func (m *MonitoringTestLogger) TestError(id framework.TestID, err error) {}

func (m *MonitoringTestLogger) TestFinished(id framework.TestID, failed bool, debugOutput framework.CapturedOutput) {
	// A context that finishes while it is still the most recently started one
	// had no subtests, so it is a leaf.
	if id.String() != m.lastStarted {
		return
	}
	result := 1
	if failed {
		result = 0
	}
	fmt.Printf("MONITORING %s %d\n", monitoringName(id), result)
}

func (m *MonitoringTestLogger) TestSkipped(id framework.TestID, reason string) {}

func monitoringName(id framework.TestID) string {
	return strings.ReplaceAll(id.String(), " ", "_")
}
