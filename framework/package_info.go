// Package framework contains the low-level test harness infrastructure that is
// not specific to the aggregate-manager domain.
//
// The general model is:
//
// 1. There is a notion of a test context which is similar to Go's *testing.T,
// allowing pieces of test logic to be associated with a test identifier and to
// accumulate success/failure results outside of the Go test runner.
//
// 2. Scenario selection is done with regex filters supplied on the command
// line, and reporting goes through a pluggable TestLogger so the same run can
// produce either human-readable console output or fixed-format monitoring
// lines.
//
// 3. Each test context owns a capturing debug logger; domain code writes every
// request and response to it, and the captured output is dumped when a
// scenario fails so that failures can be diagnosed without re-running.
//
// The domain-specific code that knows what is being tested is responsible for
// providing the protocol client, the resource lifecycle orchestrator, and the
// scenario catalog, and builds a domain test API on top of this package.
package framework
