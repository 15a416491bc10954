package amtests

import (
	"errors"
	"fmt"
	"strings"

	"github.com/stretchr/testify/require"

	"github.com/geni-nsf/am-contract-tests/amapi"
	"github.com/geni-nsf/am-contract-tests/credential"
	"github.com/geni-nsf/am-contract-tests/fault"
	"github.com/geni-nsf/am-contract-tests/framework"
	"github.com/geni-nsf/am-contract-tests/rspec"
	"github.com/geni-nsf/am-contract-tests/workflow"
)

// T represents one running scenario or subtest in the conformance suite.
//
// It implements the same basic functionality as Go's testing.T, but outside
// the Go test runner, with per-scenario debug capture provided by the
// framework package. Assertions from the assert and require packages work
// against a *T exactly as against a *testing.T.
//
// It also carries the aggregate-manager domain: each scenario that touches
// the target gets its own protocol client, whose request and response logging
// lands in the scenario's debug output, and its own lifecycle orchestrator,
// whose teardown is registered to run when the scenario finishes no matter
// how it finishes.
type T struct {
	context      *framework.Context
	harness      *Harness
	gateway      amapi.Gateway
	orchestrator *workflow.Orchestrator
}

func newTestScope(context *framework.Context, harness *Harness) *T {
	return &T{context: context, harness: harness}
}

// Errorf is called by assertions to record a failure without stopping the
// scenario.
func (t *T) Errorf(format string, args ...interface{}) {
	t.context.Errorf(format, args...)
}

// FailNow is called by assertions when a scenario should fail and stop
// immediately. Registered cleanups still run.
func (t *T) FailNow() {
	t.context.FailNow()
}

// Skip stops the scenario without recording a result.
func (t *T) Skip() {
	t.context.Skip()
}

// SkipWithReason is Skip with an explanation for the output.
func (t *T) SkipWithReason(reason string) {
	t.context.SkipWithReason(reason)
}

// Run runs a subtest with its own scope, teardown, and debug output.
func (t *T) Run(name string, action func(*T)) {
	t.context.Run(name, func(c *framework.Context) {
		action(newTestScope(c, t.harness))
	})
}

// Debug writes a message to the scenario's captured debug output.
func (t *T) Debug(format string, args ...interface{}) {
	t.context.Debug(format, args...)
}

// DebugLogger returns the scenario's capturing debug logger.
func (t *T) DebugLogger() framework.Logger {
	return t.context.DebugLogger()
}

// Defer registers a cleanup to run when the scenario finishes, even if it
// fails or is skipped.
func (t *T) Defer(cleanup func()) {
	t.context.Defer(cleanup)
}

// Version returns the aggregate's version information from the startup probe.
func (t *T) Version() *amapi.VersionInfo {
	return t.harness.version
}

// Strict reports whether the run insists on precise conforming behavior.
func (t *T) Strict() bool {
	return t.harness.cfg.Strict
}

// Gateway returns this scenario's protocol client, creating it on first use.
func (t *T) Gateway() amapi.Gateway {
	if t.gateway == nil {
		gateway, err := t.harness.newGateway(t.DebugLogger())
		require.NoError(t, err, "could not create an aggregate manager client")
		t.gateway = gateway
	}
	return t.gateway
}

// Orchestrator returns this scenario's lifecycle orchestrator, creating it on
// first use and registering its teardown with the scenario.
func (t *T) Orchestrator() *workflow.Orchestrator {
	if t.orchestrator == nil {
		var authority amapi.SliceAuthority
		if t.harness.newAuthority != nil {
			a, err := t.harness.newAuthority(t.DebugLogger())
			require.NoError(t, err, "could not create a slice authority client")
			authority = a
		}
		t.orchestrator = workflow.New(t.Gateway(), workflow.Config{
			Authority:       authority,
			ReuseCredential: t.harness.reuse,
			ReuseName:       t.harness.cfg.ReuseSlice,
			RSpecVersion:    t.harness.RSpecVersionPref(),
			Logger:          t.DebugLogger(),
		})
		t.Defer(t.orchestrator.ReleaseAll)
	}
	return t.orchestrator
}

// AllocateSlice produces a slice for the scenario, skipping the scenario when
// the run has no way to get one.
func (t *T) AllocateSlice() *workflow.Slice {
	slice, err := t.Orchestrator().AllocateSlice()
	if errors.Is(err, workflow.ErrNoSliceSource) {
		t.SkipWithReason("no slice authority is configured and no slice is being reused")
	}
	require.NoError(t, err, "could not obtain a slice to test in")
	return slice
}

// BoundRequest returns the run's bound request descriptor.
func (t *T) BoundRequest() []byte {
	return t.harness.artifacts.request
}

// UnboundRequest returns the run's unbound request descriptor, skipping the
// scenario when none is configured.
func (t *T) UnboundRequest() []byte {
	if t.harness.artifacts.unboundRequest == nil {
		t.SkipWithReason("no unbound request descriptor is configured")
	}
	return t.harness.artifacts.unboundRequest
}

// ManifestDocument returns a well-formed manifest-role document, for
// submitting where a request belongs.
func (t *T) ManifestDocument() []byte {
	return t.harness.artifacts.manifestDoc
}

// MalformedDocument returns a descriptor that is not well-formed markup.
func (t *T) MalformedDocument() []byte {
	return t.harness.artifacts.malformedDoc
}

// UntrustedCredential returns the configured credential from an authority the
// target does not trust, skipping the scenario when none is configured.
func (t *T) UntrustedCredential() *credential.Credential {
	if t.harness.artifacts.untrustedCred == nil {
		t.SkipWithReason("no untrusted-authority credential is configured")
	}
	return t.harness.artifacts.untrustedCred
}

// DelegatedCredential returns the configured delegated credential, skipping
// the scenario when none is configured.
func (t *T) DelegatedCredential() *credential.Credential {
	if t.harness.artifacts.delegatedCred == nil {
		t.SkipWithReason("no delegated credential is configured")
	}
	return t.harness.artifacts.delegatedCred
}

// RequireValidator returns the external schema validator, skipping the
// scenario when the tool is not installed. Skipped, never silently passed.
func (t *T) RequireValidator() rspec.Validator {
	if !t.harness.validator.Available() {
		t.SkipWithReason("the rspeclint schema validator is not available")
	}
	return t.harness.validator
}

// RequireDestructive skips the scenario unless destructive scenarios were
// explicitly enabled for this run.
func (t *T) RequireDestructive() {
	if !t.harness.cfg.Destructive {
		t.SkipWithReason("destructive scenarios are disabled; enable them with -destructive")
	}
}

// CompareOptions returns the manifest comparison options for this run.
func (t *T) CompareOptions() rspec.CompareOptions {
	return rspec.CompareOptions{ForbidDuplicateIDs: t.harness.cfg.StrictDuplicates}
}

// AdOptions returns listing options for an advertisement fetch made directly
// through the Gateway.
func (t *T) AdOptions() amapi.ListOptions {
	return amapi.ListOptions{Version: t.harness.RSpecVersionPref()}
}

// RequireFault fails the scenario unless err is a fault of one of the given
// kinds. Use it where the contract requires a specific, distinguishable kind
// regardless of strictness.
func (t *T) RequireFault(err error, kinds ...fault.Kind) {
	if problem := faultViolation(err, true, kinds); problem != "" {
		require.Fail(t, "wrong outcome", problem)
	}
	t.Debug("refused as expected: %s", err)
}

// RequireRejection fails the scenario unless the operation was refused at the
// protocol level. The default mode accepts any fault kind except Transport;
// strict runs require one of the given kinds.
func (t *T) RequireRejection(err error, kinds ...fault.Kind) {
	if problem := faultViolation(err, t.Strict(), kinds); problem != "" {
		require.Fail(t, "wrong outcome", problem)
	}
	t.Debug("refused as expected: %s", err)
}

// faultViolation reports why err does not satisfy a scenario that expected a
// refusal, or "" if it does. A transport-level failure never satisfies one:
// it means the exchange with the target broke, not that the target refused.
func faultViolation(err error, mustMatch bool, kinds []fault.Kind) string {
	if err == nil {
		return fmt.Sprintf("the operation succeeded where a %s fault was expected", kindNames(kinds))
	}
	kind := fault.KindOf(err)
	if kind == "" {
		return fmt.Sprintf("the operation failed outside the protocol: %s", err)
	}
	if kind == fault.KindTransport && !containsKind(kinds, fault.KindTransport) {
		return fmt.Sprintf("transport-level failure where a %s fault was expected: %s", kindNames(kinds), err)
	}
	if containsKind(kinds, kind) {
		return ""
	}
	if mustMatch {
		return fmt.Sprintf("fault kind %s where %s was expected: %s", kind, kindNames(kinds), err)
	}
	return ""
}

func containsKind(kinds []fault.Kind, kind fault.Kind) bool {
	for _, k := range kinds {
		if k == kind {
			return true
		}
	}
	return false
}

func kindNames(kinds []fault.Kind) string {
	if len(kinds) == 0 {
		return "protocol"
	}
	names := make([]string, 0, len(kinds))
	for _, k := range kinds {
		names = append(names, string(k))
	}
	return strings.Join(names, " or ")
}
