package amtests

import (
	"errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/geni-nsf/am-contract-tests/rspec"
	"github.com/geni-nsf/am-contract-tests/workflow"
)

func resourceGroup() ScenarioGroup {
	return ScenarioGroup{
		Name:        "resources",
		Description: "resource listing in advertisement and manifest scope",
		Scenarios: []Scenario{
			{
				Name:        "returns an advertisement",
				Description: "ListResources without a slice returns a parseable advertisement of the aggregate's offerings",
				Run:         testAdvertisement,
			},
			{
				Name:        "compressed advertisement matches plain",
				Description: "a compressed listing inflates to the same component set as a plain one",
				Run:         testCompressedAdvertisement,
			},
			{
				Name:        "available resources are a subset",
				Description: "restricting a listing to available resources never invents components absent from the full advertisement",
				Run:         testAvailableSubset,
			},
			{
				Name:        "documents validate against their schema",
				Description: "the advertisement passes the external schema validator for the advertised namespace and schema",
				Run:         testSchemaValidation,
			},
			{
				Name:        "scopes the manifest to an active sliver",
				Description: "ListResources for a slice returns the manifest of that slice's sliver, matching what creation granted",
				Run:         testManifestListing,
			},
		},
	}
}

func fetchAdvertisement(t *T, slice *workflow.Slice, opts workflow.AdOptions) *rspec.Document {
	raw, err := t.Orchestrator().ListAdvertisement(slice, opts)
	require.NoError(t, err)
	doc, err := rspec.Parse(raw)
	require.NoError(t, err, "the advertisement does not parse")
	return doc
}

func testAdvertisement(t *T) {
	slice := t.AllocateSlice()
	doc := fetchAdvertisement(t, slice, workflow.AdOptions{})
	if t.Strict() {
		assert.Equal(t, rspec.RoleAdvertisement, doc.Role,
			"the listing's declared role is %q, not advertisement", doc.Role)
	}
}

func testCompressedAdvertisement(t *T) {
	slice := t.AllocateSlice()
	plain := fetchAdvertisement(t, slice, workflow.AdOptions{})
	compressed := fetchAdvertisement(t, slice, workflow.AdOptions{Compressed: true})
	assert.Equal(t, plain.IDSet(), compressed.IDSet(),
		"the compressed listing names a different component set than the plain one")
}

func testAvailableSubset(t *T) {
	slice := t.AllocateSlice()
	all := fetchAdvertisement(t, slice, workflow.AdOptions{})
	available := fetchAdvertisement(t, slice, workflow.AdOptions{Available: true})

	allIDs := all.IDSet()
	for _, id := range available.IDSet() {
		assert.Contains(t, allIDs, id,
			"available-only listing names %s, which the full advertisement does not", id)
	}
}

func testSchemaValidation(t *T) {
	validator := t.RequireValidator()
	pref := t.harness.RSpecVersionPref()
	pairs := t.Version().SchemaPairsFor(pref.Type, pref.Version)
	if len(pairs) == 0 {
		t.SkipWithReason("the aggregate does not advertise a namespace and schema to validate against")
	}

	slice := t.AllocateSlice()
	raw, err := t.Orchestrator().ListAdvertisement(slice, workflow.AdOptions{})
	require.NoError(t, err)

	schemaPairs := make([]rspec.SchemaPair, 0, len(pairs))
	for _, p := range pairs {
		schemaPairs = append(schemaPairs, rspec.SchemaPair{Namespace: p[0], Schema: p[1]})
	}
	err = validator.Validate(raw, schemaPairs...)
	if errors.Is(err, rspec.ErrValidatorUnavailable) {
		t.SkipWithReason("the rspeclint schema validator is not available")
	}
	assert.NoError(t, err, "the advertisement fails schema validation")
}

func testManifestListing(t *T) {
	slice := t.AllocateSlice()
	sliver, err := t.Orchestrator().CreateSliver(slice, t.BoundRequest())
	require.NoError(t, err)

	raw, err := t.Orchestrator().ListManifest(slice)
	require.NoError(t, err)
	listed, err := rspec.Parse(raw)
	require.NoError(t, err, "the slice-scoped listing does not parse")

	if t.Strict() {
		assert.Equal(t, rspec.RoleManifest, listed.Role,
			"the listing's declared role is %q, not manifest", listed.Role)
	}
	require.NotNil(t, sliver.Request, "the bound request descriptor did not parse")
	assert.NoError(t, rspec.Compare(sliver.Request, listed, t.CompareOptions()))
	if sliver.Manifest != nil {
		assert.Equal(t, sliver.Manifest.IDSet(), listed.IDSet(),
			"the listed manifest names a different component set than creation granted")
	}
}
