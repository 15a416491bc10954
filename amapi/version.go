package amapi

import (
	"fmt"
	"strings"

	"github.com/geni-nsf/am-contract-tests/fault"
)

// Dialect says which key family a version-discovery response used.
// Aggregates predating API version 2 advertise descriptor formats under
// request_rspec_versions/ad_rspec_versions; newer ones prefix the keys with
// geni_. Both appear in the wild, sometimes together.
type Dialect string

const (
	DialectGeni   Dialect = "geni"
	DialectLegacy Dialect = "legacy"
)

// RSpecVersion is one descriptor format an aggregate advertises. Type and
// Version arrive as strings or integers depending on the aggregate, so both
// are canonicalized to strings.
type RSpecVersion struct {
	Type      string
	Version   string
	Namespace string
	Schema    string
}

func (v RSpecVersion) String() string {
	return v.Type + " " + v.Version
}

// VersionInfo is a normalized version-discovery response.
type VersionInfo struct {
	APIMajor        int
	Dialect         Dialect
	RequestVersions []RSpecVersion
	AdVersions      []RSpecVersion

	// APIVersions maps advertised API version numbers to endpoint URLs, for
	// aggregates that serve several versions at once.
	APIVersions map[string]string

	// Raw preserves the response for checks the normalized form loses.
	Raw map[string]interface{}
}

// SupportsRequestVersion reports whether the aggregate advertises the given
// request descriptor format. Type comparison ignores case.
func (v *VersionInfo) SupportsRequestVersion(rspecType, rspecVersion string) bool {
	for _, rv := range v.RequestVersions {
		if strings.EqualFold(rv.Type, rspecType) && rv.Version == rspecVersion {
			return true
		}
	}
	return false
}

// SchemaPairsFor returns the namespace/schema pairs advertised for the given
// descriptor format, for driving an external schema validator.
func (v *VersionInfo) SchemaPairsFor(rspecType, rspecVersion string) [][2]string {
	var pairs [][2]string
	for _, rv := range append(append([]RSpecVersion(nil), v.RequestVersions...), v.AdVersions...) {
		if strings.EqualFold(rv.Type, rspecType) && rv.Version == rspecVersion &&
			rv.Namespace != "" && rv.Schema != "" {
			pairs = append(pairs, [2]string{rv.Namespace, rv.Schema})
		}
	}
	return pairs
}

// NormalizeVersion folds a version-discovery response into VersionInfo.
// The response must carry an integer geni_api and at least one recognized
// descriptor version list; anything else is a VersionFormat fault, because a
// harness that guessed here would mask real interoperability bugs.
func NormalizeVersion(raw interface{}) (*VersionInfo, error) {
	value, ok := raw.(map[string]interface{})
	if !ok {
		return nil, fault.Newf(fault.KindVersionFormat,
			"version discovery returned %T, not a struct", raw)
	}

	apiMajor, err := intish(value["geni_api"])
	if err != nil {
		return nil, fault.Newf(fault.KindVersionFormat, "geni_api member: %s", err)
	}

	info := &VersionInfo{APIMajor: apiMajor, Raw: value}

	reqKey, reqDialect := pickKey(value, "geni_request_rspec_versions", "request_rspec_versions")
	adKey, adDialect := pickKey(value, "geni_ad_rspec_versions", "ad_rspec_versions")
	if reqKey == "" && adKey == "" {
		return nil, fault.New(fault.KindVersionFormat,
			"version discovery advertises no descriptor versions under any recognized key")
	}
	info.Dialect = DialectLegacy
	if reqDialect == DialectGeni || adDialect == DialectGeni {
		info.Dialect = DialectGeni
	}

	if reqKey != "" {
		info.RequestVersions = parseVersionList(value[reqKey])
	}
	if adKey != "" {
		info.AdVersions = parseVersionList(value[adKey])
	}

	if versions, ok := value["geni_api_versions"].(map[string]interface{}); ok {
		info.APIVersions = map[string]string{}
		for k, v := range versions {
			if url, ok := v.(string); ok {
				info.APIVersions[k] = url
			}
		}
	}
	return info, nil
}

func pickKey(value map[string]interface{}, geniKey, legacyKey string) (string, Dialect) {
	if _, ok := value[geniKey]; ok {
		return geniKey, DialectGeni
	}
	if _, ok := value[legacyKey]; ok {
		return legacyKey, DialectLegacy
	}
	return "", ""
}

// parseVersionList reads a descriptor version list, skipping entries that do
// not have the two required members. A lone struct where a list belongs is
// treated as a list of one, which some older aggregates send.
func parseVersionList(raw interface{}) []RSpecVersion {
	var entries []interface{}
	switch v := raw.(type) {
	case []interface{}:
		entries = v
	case map[string]interface{}:
		entries = []interface{}{v}
	default:
		return nil
	}

	var out []RSpecVersion
	for _, entry := range entries {
		m, ok := entry.(map[string]interface{})
		if !ok {
			continue
		}
		rv := RSpecVersion{
			Type:    stringish(m["type"]),
			Version: stringish(m["version"]),
		}
		if rv.Type == "" || rv.Version == "" {
			continue
		}
		rv.Namespace = stringish(m["namespace"])
		rv.Schema = stringish(m["schema"])
		out = append(out, rv)
	}
	return out
}

// intish accepts the integer encodings seen across XML-RPC implementations.
func intish(raw interface{}) (int, error) {
	switch v := raw.(type) {
	case int:
		return v, nil
	case int64:
		return int(v), nil
	case float64:
		return int(v), nil
	case string:
		var n int
		if _, err := fmt.Sscanf(strings.TrimSpace(v), "%d", &n); err != nil {
			return 0, fmt.Errorf("%q is not an integer", v)
		}
		return n, nil
	case nil:
		return 0, fmt.Errorf("missing")
	default:
		return 0, fmt.Errorf("%T is not an integer", raw)
	}
}

// stringish canonicalizes the string-or-number values aggregates put in
// version structs.
func stringish(raw interface{}) string {
	switch v := raw.(type) {
	case string:
		return strings.TrimSpace(v)
	case int64:
		return fmt.Sprintf("%d", v)
	case int:
		return fmt.Sprintf("%d", v)
	case float64:
		if v == float64(int64(v)) {
			return fmt.Sprintf("%d", int64(v))
		}
		return fmt.Sprintf("%g", v)
	default:
		return ""
	}
}
