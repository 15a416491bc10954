package amtests

import (
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/geni-nsf/am-contract-tests/amapi"
	"github.com/geni-nsf/am-contract-tests/fault"
)

// The shutdown scenarios are destructive: a shut-down sliver needs operator
// attention at the aggregate afterward. They run only with -destructive.

func shutdownGroup() ScenarioGroup {
	return ScenarioGroup{
		Name:        "shutdown",
		Description: "administrative shutdown (destructive, disabled by default)",
		Scenarios: []Scenario{
			{
				Name:        "stops a sliver on command",
				Description: "Shutdown succeeds against an active sliver, and the sliver no longer reports business as usual afterward",
				Run:         testShutdownStopsSliver,
			},
			{
				Name:        "refuses shutdown under a foreign credential",
				Description: "Shutdown of one slice presented with another slice's credential is refused as an authorization failure",
				Run:         testShutdownForeignCredentialRefused,
			},
		},
	}
}

func testShutdownStopsSliver(t *T) {
	t.RequireDestructive()
	slice := t.AllocateSlice()
	o := t.Orchestrator()
	_, err := o.CreateSliver(slice, t.BoundRequest())
	require.NoError(t, err)

	ok, err := o.Shutdown(slice)
	require.NoError(t, err, "Shutdown was refused for the slice's own credential")
	assert.True(t, ok, "Shutdown reported false for an active sliver")

	record, err := o.Status(slice)
	if t.Strict() {
		t.RequireRejection(err, fault.KindNoSuchSliver, fault.KindUnavailable)
		return
	}
	// Aggregates differ on what a shut-down sliver answers; what none may do
	// is keep reporting a ready sliver.
	if err != nil {
		require.NotEqual(t, fault.KindTransport, fault.KindOf(err),
			"status after shutdown failed at the transport level: %s", err)
		t.Debug("status after shutdown refused: %s", err)
		return
	}
	assert.NotEqual(t, amapi.StateReady, record.State,
		"the sliver still reports ready after an administrative shutdown")
}

func testShutdownForeignCredentialRefused(t *T) {
	t.RequireDestructive()
	o := t.Orchestrator()

	victim := t.AllocateSlice()
	_, err := o.CreateSliver(victim, t.BoundRequest())
	require.NoError(t, err)
	intruder := t.AllocateSlice()

	_, err = t.Gateway().Shutdown(victim.URN().String(),
		[]string{intruder.Credential.String()})
	t.RequireFault(err, fault.KindAuthorization)

	// The refusal must have left the sliver alone.
	record, err := o.Status(victim)
	require.NoError(t, err, "the sliver is gone after a refused shutdown")
	assert.NotEqual(t, amapi.StateFailed, record.State,
		"the sliver reports failed after a refused shutdown")
}
