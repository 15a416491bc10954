package amtests

import (
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/geni-nsf/am-contract-tests/amapi"
	"github.com/geni-nsf/am-contract-tests/fault"
	"github.com/geni-nsf/am-contract-tests/rspec"
	"github.com/geni-nsf/am-contract-tests/workflow"
)

const (
	shortRenewal = 48 * time.Hour
	longRenewal  = 120 * time.Hour
)

func lifecycleGroup() ScenarioGroup {
	return ScenarioGroup{
		Name:        "lifecycle",
		Description: "sliver creation, status, renewal, and deletion",
		Scenarios: []Scenario{
			{
				Name:        "grants a bound request exactly",
				Description: "creating from a bound request grants exactly the named components, and deletion leaves nothing behind",
				Run:         testBoundRoundTrip,
			},
			{
				Name:        "grants an unbound request",
				Description: "creating from a request that names no components grants a non-empty set chosen by the aggregate",
				Run:         testUnboundCreate,
			},
			{
				Name:        "renews consistently",
				Description: "a short and a long renewal of the same sliver produce the same accept-or-refuse outcome",
				Run:         testRenewalsAgree,
			},
			{
				Name:        "rejects an empty descriptor",
				Description: "creation from a zero-length descriptor is refused as an empty document, not a transport failure",
				Run:         testEmptyDescriptorRejected,
			},
			{
				Name:        "rejects a manifest as a request",
				Description: "a manifest-role document submitted where a request belongs is refused, never silently accepted",
				Run:         testManifestAsRequestRejected,
			},
			{
				Name:        "rejects a malformed descriptor",
				Description: "a descriptor that is not well-formed markup is refused as malformed",
				Run:         testMalformedDescriptorRejected,
			},
			{
				Name:        "refuses a second create",
				Description: "creating a second sliver for a slice that already has one is refused",
				Run:         testDoubleCreateRefused,
			},
			{
				Name:        "reports deletion exactly once",
				Description: "deleting a sliver succeeds once; the slice thereafter reports no such sliver on every operation",
				Run:         testDeleteIdempotence,
			},
			{
				Name:        "reports a missing sliver",
				Description: "status and deletion on a slice that never had a sliver report no such sliver, not a crash or silent success",
				Run:         testMissingSliverReported,
			},
		},
	}
}

func testBoundRoundTrip(t *T) {
	slice := t.AllocateSlice()
	o := t.Orchestrator()

	sliver, err := o.CreateSliver(slice, t.BoundRequest())
	require.NoError(t, err)
	require.NotNil(t, sliver.Request, "the bound request descriptor did not parse")
	require.NotNil(t, sliver.Manifest)
	if t.Strict() {
		assert.Equal(t, rspec.RoleManifest, sliver.Manifest.Role,
			"the granted descriptor's declared role is %q, not manifest", sliver.Manifest.Role)
	}
	assert.NoError(t, rspec.Compare(sliver.Request, sliver.Manifest, t.CompareOptions()))

	record, err := o.Status(slice)
	require.NoError(t, err)
	assert.NotEqual(t, amapi.StateFailed, record.State, "the fresh sliver reports a failed state")
	if t.Strict() {
		assert.Contains(t, []amapi.SliverState{amapi.StateProvisioning, amapi.StateReady}, record.State,
			"the fresh sliver reports state %q (raw %q)", record.State, record.RawState)
	}

	deleted, err := o.DeleteSliver(slice)
	require.NoError(t, err)
	assert.True(t, deleted, "deletion reported false for an existing sliver")

	_, err = o.Status(slice)
	t.RequireRejection(err, fault.KindNoSuchSliver)
}

func testUnboundCreate(t *T) {
	request := t.UnboundRequest()
	reqDoc, err := rspec.Parse(request)
	require.NoError(t, err, "the configured unbound request does not parse")
	require.False(t, reqDoc.Bound(),
		"the configured unbound request names components; point -unbound-rspec at a role-only request")

	slice := t.AllocateSlice()
	o := t.Orchestrator()
	sliver, err := o.CreateSliver(slice, request)
	require.NoError(t, err)
	require.NotNil(t, sliver.Manifest)
	assert.NoError(t, rspec.Compare(reqDoc, sliver.Manifest, t.CompareOptions()))

	deleted, err := o.DeleteSliver(slice)
	require.NoError(t, err)
	assert.True(t, deleted)
}

func testRenewalsAgree(t *T) {
	slice := t.AllocateSlice()
	if slice.Credential.ExpiresWithin(longRenewal + time.Hour) {
		t.SkipWithReason("the slice credential expires too soon to test renewals")
	}
	o := t.Orchestrator()
	_, err := o.CreateSliver(slice, t.BoundRequest())
	require.NoError(t, err)

	shortGranted := renewOutcome(t, slice, shortRenewal)
	longGranted := renewOutcome(t, slice, longRenewal)
	assert.Equal(t, shortGranted, longGranted,
		"the renewal outcome depends on the duration: short granted=%t, long granted=%t",
		shortGranted, longGranted)
	if t.Strict() {
		assert.True(t, shortGranted, "the short renewal was refused")
		assert.True(t, longGranted, "the long renewal was refused")
	}
}

// renewOutcome reduces a renewal to granted or cleanly refused. A transport
// failure or an untyped error is neither, and fails the scenario.
func renewOutcome(t *T, slice *workflow.Slice, d time.Duration) bool {
	granted, err := t.Orchestrator().Renew(slice, time.Now().Add(d))
	if err == nil {
		return granted
	}
	kind := fault.KindOf(err)
	require.NotEqual(t, fault.Kind(""), kind, "renewal failed outside the protocol: %s", err)
	require.NotEqual(t, fault.KindTransport, kind, "renewal failed at the transport level: %s", err)
	t.Debug("renewal by %s refused: %s", d, err)
	return false
}

func testEmptyDescriptorRejected(t *T) {
	slice := t.AllocateSlice()
	_, err := t.Orchestrator().CreateSliver(slice, []byte{})
	t.RequireRejection(err, fault.KindEmptyDocument, fault.KindBadDescriptor)
}

func testManifestAsRequestRejected(t *T) {
	slice := t.AllocateSlice()
	_, err := t.Orchestrator().CreateSliver(slice, t.ManifestDocument())
	t.RequireRejection(err, fault.KindWrongRole, fault.KindBadDescriptor)
}

func testMalformedDescriptorRejected(t *T) {
	slice := t.AllocateSlice()
	_, err := t.Orchestrator().CreateSliver(slice, t.MalformedDocument())
	t.RequireRejection(err, fault.KindMalformedDocument, fault.KindBadDescriptor)
}

func testDoubleCreateRefused(t *T) {
	slice := t.AllocateSlice()
	o := t.Orchestrator()
	_, err := o.CreateSliver(slice, t.BoundRequest())
	require.NoError(t, err)

	_, err = o.CreateSliver(slice, t.BoundRequest())
	t.RequireRejection(err, fault.KindAlreadyExists)
}

func testDeleteIdempotence(t *T) {
	slice := t.AllocateSlice()
	o := t.Orchestrator()
	_, err := o.CreateSliver(slice, t.BoundRequest())
	require.NoError(t, err)

	deleted, err := o.DeleteSliver(slice)
	require.NoError(t, err)
	assert.True(t, deleted)

	_, err = o.DeleteSliver(slice)
	t.RequireRejection(err, fault.KindNoSuchSliver)
	_, err = o.Status(slice)
	t.RequireRejection(err, fault.KindNoSuchSliver)
}

func testMissingSliverReported(t *T) {
	slice := t.AllocateSlice()
	o := t.Orchestrator()

	_, err := o.Status(slice)
	t.RequireRejection(err, fault.KindNoSuchSliver)
	_, err = o.DeleteSliver(slice)
	t.RequireRejection(err, fault.KindNoSuchSliver)
}
