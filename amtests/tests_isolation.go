package amtests

import (
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/geni-nsf/am-contract-tests/fault"
	"github.com/geni-nsf/am-contract-tests/rspec"
	"github.com/geni-nsf/am-contract-tests/workflow"
)

func isolationGroup() ScenarioGroup {
	return ScenarioGroup{
		Name:        "isolation",
		Description: "separation of concurrently held slices under distinct credentials",
		Scenarios: []Scenario{
			{
				Name:        "refuses foreign credentials across slices",
				Description: "with two slices active, listing either slice's manifest with the other's credential is refused as an authorization failure, never answered with the wrong slice's resources",
				Run:         testCrossSliceListingRefused,
			},
			{
				Name:        "keeps concurrent manifests separate",
				Description: "each of two active slices lists its own manifest under its own credential, and both delete cleanly afterward",
				Run:         testConcurrentSlicesStaySeparate,
			},
		},
	}
}

// activeSlice pairs a slice with its granted sliver for the isolation checks.
type activeSlice struct {
	slice  *workflow.Slice
	sliver *workflow.Sliver
}

// setUpTwoSlices allocates two slices with distinct credentials and creates a
// sliver in each. Setup calls go out one at a time, each awaited before the
// next.
func setUpTwoSlices(t *T) []activeSlice {
	o := t.Orchestrator()

	slices := make([]activeSlice, 0, 2)
	for i := 0; i < 2; i++ {
		slice := t.AllocateSlice()
		sliver, err := o.CreateSliver(slice, t.BoundRequest())
		require.NoError(t, err, "could not create a sliver in slice %s", slice.Name)
		slices = append(slices, activeSlice{slice: slice, sliver: sliver})
	}

	require.NotEqual(t, slices[0].slice.URN(), slices[1].slice.URN())
	require.NotEqual(t, slices[0].slice.Credential.String(), slices[1].slice.Credential.String(),
		"the authority issued the same credential for both slices")
	return slices
}

func testCrossSliceListingRefused(t *T) {
	slices := setUpTwoSlices(t)

	// Every ordered pair: present slice j's credential against slice i's
	// manifest. A conforming aggregate refuses outright; scoping the answer to
	// either slice would be an isolation breach.
	for i, victim := range slices {
		for j, intruder := range slices {
			if i == j {
				continue
			}
			raw, err := t.Orchestrator().ListManifestWith(victim.slice, intruder.slice.Credential)
			if err == nil {
				require.Fail(t, "isolation breach",
					"listing slice %s with slice %s's credential was answered instead of refused (%s)",
					victim.slice.Name, intruder.slice.Name, describeLeak(raw, victim))
			}
			t.RequireFault(err, fault.KindAuthorization)
		}
	}
}

// describeLeak says whose resources a wrongly-answered cross-credential
// listing contained, for the failure message.
func describeLeak(raw []byte, victim activeSlice) string {
	doc, err := rspec.Parse(raw)
	if err != nil {
		return "the answer does not even parse"
	}
	if len(doc.ComponentIDs) == 0 {
		return "the answer names no components"
	}
	if victim.sliver.Manifest != nil &&
		assert.ObjectsAreEqual(victim.sliver.Manifest.IDSet(), doc.IDSet()) {
		return "the answer is the granted manifest"
	}
	return "the answer names components"
}

func testConcurrentSlicesStaySeparate(t *T) {
	slices := setUpTwoSlices(t)
	o := t.Orchestrator()

	// Positive control: each slice's own credential still works while the
	// other slice is active, and returns that slice's own grant. Without this,
	// an aggregate that refuses every manifest listing would pass the
	// cross-credential checks.
	for _, active := range slices {
		raw, err := o.ListManifest(active.slice)
		require.NoError(t, err, "slice %s cannot list its own manifest", active.slice.Name)
		listed, err := rspec.Parse(raw)
		require.NoError(t, err, "the manifest for slice %s does not parse", active.slice.Name)
		if active.sliver.Manifest != nil {
			assert.Equal(t, active.sliver.Manifest.IDSet(), listed.IDSet(),
				"slice %s lists a different component set than creation granted", active.slice.Name)
		}
	}

	for _, active := range slices {
		deleted, err := o.DeleteSliver(active.slice)
		require.NoError(t, err, "deleting the sliver of slice %s failed", active.slice.Name)
		assert.True(t, deleted, "deletion reported false for the sliver of slice %s", active.slice.Name)
	}
}
