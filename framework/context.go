package framework

import (
	"errors"
	"fmt"
	"runtime/debug"
	"strings"
)

type environment struct {
	results    Results
	testLogger TestLogger
	filter     Filter
}

// Context represents one running test or subtest. It accumulates failure
// messages, captures debug output, and runs registered cleanups when the test
// body returns, whether normally or via FailNow or Skip.
type Context struct {
	env         *environment
	id          TestID
	debugLogger CapturingLogger
	failed      bool
	skipped     bool
	skipReason  string
	errors      []error
	cleanups    []func()
}

// Run executes a top-level test function and returns the accumulated results
// of it and all of its subtests.
func Run(
	filter Filter,
	testLogger TestLogger,
	action func(*Context),
) Results {
	if testLogger == nil {
		testLogger = nullTestLogger{}
	}
	env := &environment{
		filter:     filter,
		testLogger: testLogger,
	}
	c := &Context{env: env}
	c.run(action)
	return env.results
}

func (c *Context) run(action func(*Context)) {
	defer func() {
		r := recover()

		// Cleanups run in reverse order no matter how the body exited. A
		// test that failed or skipped partway through may still be holding
		// remote resources.
		for i := len(c.cleanups) - 1; i >= 0; i-- {
			c.runCleanup(c.cleanups[i])
		}

		if r != nil && !c.skipped {
			c.failed = true
			var addError error
			if _, ok := r.(*Context); ok {
				if len(c.errors) == 0 {
					addError = errors.New("test failed with no failure message")
				}
			} else {
				addError = fmt.Errorf("unexpected panic in test: %+v\n%s", r, string(debug.Stack()))
			}
			if addError != nil {
				c.errors = append(c.errors, addError)
				c.env.testLogger.TestError(c.id, addError)
			}
		}
		if c.skipped {
			return
		}
		result := TestResult{TestID: c.id, Errors: c.errors}
		c.env.results.Tests = append(c.env.results.Tests, result)
		if c.failed {
			c.env.results.Failures = append(c.env.results.Failures, result)
		}
	}()

	action(c)
}

func (c *Context) runCleanup(cleanup func()) {
	defer func() {
		if r := recover(); r != nil {
			c.failed = true
			err := fmt.Errorf("panic in test cleanup: %+v", r)
			c.errors = append(c.errors, err)
			c.env.testLogger.TestError(c.id, err)
		}
	}()
	cleanup()
}

// ID returns the identifier of the current test.
func (c *Context) ID() TestID {
	return c.id
}

// Run executes a subtest in its own context. The subtest's failures do not
// stop the parent, and its cleanups run as soon as it finishes.
func (c *Context) Run(name string, action func(*Context)) {
	path := make([]string, 0, len(c.id.Path)+1)
	path = append(path, c.id.Path...)
	id := TestID{Path: append(path, name)}

	c.env.testLogger.TestStarted(id)
	if c.env.filter != nil && !c.env.filter(id) {
		c.env.testLogger.TestSkipped(id, "excluded by filter parameters")
		return
	}
	c1 := &Context{
		id:  id,
		env: c.env,
	}
	c1.run(action)
	if c1.skipped {
		c.env.testLogger.TestSkipped(id, c1.skipReason)
	} else {
		c.env.testLogger.TestFinished(id, c1.failed, c1.debugLogger.Output())
	}
}

// Errorf records a test failure without stopping the test. It has the same
// signature as testing.T.Errorf so assertion libraries can drive it.
func (c *Context) Errorf(format string, args ...interface{}) {
	c.failed = true
	err := fmt.Errorf(format, args...)
	c.errors = append(c.errors, err)
	c.env.testLogger.TestError(c.id, reformatError(err))
}

// FailNow stops the test immediately. Registered cleanups still run.
func (c *Context) FailNow() {
	panic(c)
}

// Skip stops the test immediately without recording a result.
func (c *Context) Skip() {
	c.skipped = true
	panic(c)
}

// SkipWithReason is Skip with an explanation for the test logger.
func (c *Context) SkipWithReason(reason string) {
	c.skipReason = reason
	c.Skip()
}

// Defer registers a cleanup function to run when this test finishes, even if
// the test fails, panics, or is skipped. Cleanups run in reverse registration
// order.
func (c *Context) Defer(cleanup func()) {
	c.cleanups = append(c.cleanups, cleanup)
}

// Debug writes a message to the test's captured debug output.
func (c *Context) Debug(message string, args ...interface{}) {
	c.debugLogger.Printf(message, args...)
}

// DebugLogger returns the logger for the test's captured debug output, for
// passing to components that take a Logger.
func (c *Context) DebugLogger() Logger {
	return &c.debugLogger
}

// reformatError strips the blank and whitespace-only lines that assertion
// libraries emit, so console output stays compact.
func reformatError(err error) error {
	lines := strings.Split(err.Error(), "\n")
	kept := make([]string, 0, len(lines))
	for _, line := range lines {
		if strings.TrimSpace(line) == "" {
			continue
		}
		kept = append(kept, strings.TrimRight(line, " \t"))
	}
	if len(kept) == len(lines) {
		return err
	}
	return errors.New(strings.Join(kept, "\n"))
}
