package amtests

import (
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/geni-nsf/am-contract-tests/amapi"
)

func versionGroup() ScenarioGroup {
	return ScenarioGroup{
		Name:        "version",
		Description: "version discovery and response normalization",
		Scenarios: []Scenario{
			{
				Name:        "answers version discovery",
				Description: "GetVersion returns a well-formed response naming a positive API version",
				Run:         testVersionDiscovery,
			},
			{
				Name:        "matches the declared API version",
				Description: "the advertised geni_api agrees with the API version this run was configured for",
				Run:         testVersionMatchesDeclared,
			},
			{
				Name:        "normalizes both key dialects identically",
				Description: "the advertised descriptor versions normalize to the same canonical form under the old and new key names",
				Run:         testVersionDialectsAgree,
			},
			{
				Name:        "advertises descriptor formats",
				Description: "version discovery advertises at least one request or advertisement descriptor format",
				Run:         testVersionAdvertisesFormats,
			},
		},
	}
}

func testVersionDiscovery(t *T) {
	info, err := t.Gateway().GetVersion()
	require.NoError(t, err)
	assert.Greater(t, info.APIMajor, 0, "geni_api must be a positive version number")
}

func testVersionMatchesDeclared(t *T) {
	declared := t.harness.cfg.APIVersion
	assert.Equal(t, declared, t.Version().APIMajor,
		"the aggregate advertises a different API major version than this run declared")
}

// testVersionDialectsAgree rebuilds the aggregate's own advertised version
// lists under each key dialect and checks that both normalize to the same
// canonical structure.
func testVersionDialectsAgree(t *T) {
	info := t.Version()
	requests := versionListValue(info.RequestVersions)
	ads := versionListValue(info.AdVersions)

	fromLegacy, err := amapi.NormalizeVersion(map[string]interface{}{
		"geni_api":               info.APIMajor,
		"request_rspec_versions": requests,
		"ad_rspec_versions":      ads,
	})
	require.NoError(t, err)
	fromGeni, err := amapi.NormalizeVersion(map[string]interface{}{
		"geni_api":                    info.APIMajor,
		"geni_request_rspec_versions": requests,
		"geni_ad_rspec_versions":      ads,
	})
	require.NoError(t, err)

	assert.Equal(t, fromGeni.APIMajor, fromLegacy.APIMajor)
	assert.Equal(t, fromGeni.RequestVersions, fromLegacy.RequestVersions)
	assert.Equal(t, fromGeni.AdVersions, fromLegacy.AdVersions)
	assert.Equal(t, amapi.DialectLegacy, fromLegacy.Dialect)
	assert.Equal(t, amapi.DialectGeni, fromGeni.Dialect)
}

func testVersionAdvertisesFormats(t *T) {
	info := t.Version()
	assert.True(t, len(info.RequestVersions) > 0 || len(info.AdVersions) > 0,
		"the aggregate advertises no descriptor formats at all")
	if t.Strict() {
		assert.NotEmpty(t, info.RequestVersions, "no request descriptor formats advertised")
		assert.NotEmpty(t, info.AdVersions, "no advertisement descriptor formats advertised")
		pref := t.harness.RSpecVersionPref()
		assert.True(t, info.SupportsRequestVersion(pref.Type, pref.Version),
			"the aggregate does not advertise the configured descriptor format %s %s",
			pref.Type, pref.Version)
	}
}

func versionListValue(versions []amapi.RSpecVersion) []interface{} {
	out := make([]interface{}, 0, len(versions))
	for _, v := range versions {
		out = append(out, map[string]interface{}{
			"type":      v.Type,
			"version":   v.Version,
			"namespace": v.Namespace,
			"schema":    v.Schema,
		})
	}
	return out
}
