package framework

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
)

// Results is the outcome of a test run. Skipped tests are not included.
type Results struct {
	Tests    []TestResult
	Failures []TestResult
}

type TestResult struct {
	TestID  TestID
	Errors  []error
	Skipped bool
}

// OK returns true if no tests failed.
func (r Results) OK() bool {
	return len(r.Failures) == 0
}

// TestID identifies a test as a path of names from the root of the suite.
type TestID struct {
	Path []string
}

func (t TestID) String() string {
	return strings.Join(t.Path, "/")
}

type TestFailure struct {
	ID  TestID
	Err error
}

func (f TestFailure) Error() string {
	return fmt.Sprintf("[%s]: %s", f.ID, f.Err)
}

// PrintResults writes a summary of the test run, listing each failed test
// with its failure messages.
func PrintResults(dest io.Writer, results Results) {
	if results.OK() {
		color.New(color.FgGreen).Fprintf(dest, "All %d tests passed\n", len(results.Tests))
		return
	}
	fmt.Fprintln(dest)
	color.New(color.FgRed, color.Bold).Fprintf(dest, "FAILED TESTS (%d/%d):\n",
		len(results.Failures), len(results.Tests))
	for _, f := range results.Failures {
		color.New(color.FgRed).Fprintf(dest, "* %s\n", f.TestID)
		for _, err := range f.Errors {
			for _, line := range strings.Split(err.Error(), "\n") {
				fmt.Fprintf(dest, "  - %s\n", line)
			}
		}
	}
}
