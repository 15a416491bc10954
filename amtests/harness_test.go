package amtests

import (
	"errors"
	"io/ioutil"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/geni-nsf/am-contract-tests/amapi"
	"github.com/geni-nsf/am-contract-tests/credential"
	"github.com/geni-nsf/am-contract-tests/fault"
	"github.com/geni-nsf/am-contract-tests/framework"
	"github.com/geni-nsf/am-contract-tests/rspec"
)

func TestRunConfigDefaults(t *testing.T) {
	cfg := RunConfig{URL: "https://am.example:12346"}.withDefaults()

	assert.Equal(t, 2, cfg.APIVersion)
	assert.Equal(t, "geni:gpo:gcf", cfg.AuthorityName)
	assert.Equal(t, 30*time.Second, cfg.StartupTimeout)
	assert.Equal(t, "GENI", cfg.RSpecType)
	assert.Equal(t, "3", cfg.RSpecVersion)
}

func TestRunConfigDefaultsKeepExplicitValues(t *testing.T) {
	cfg := RunConfig{
		APIVersion:     1,
		AuthorityName:  "geni:example:ch",
		StartupTimeout: time.Second,
		RSpecType:      "ProtoGENI",
		RSpecVersion:   "2",
	}.withDefaults()

	assert.Equal(t, 1, cfg.APIVersion)
	assert.Equal(t, "geni:example:ch", cfg.AuthorityName)
	assert.Equal(t, time.Second, cfg.StartupTimeout)
	assert.Equal(t, "ProtoGENI", cfg.RSpecType)
	assert.Equal(t, "2", cfg.RSpecVersion)
}

func TestFaultViolationSuccessIsAViolation(t *testing.T) {
	problem := faultViolation(nil, true, []fault.Kind{fault.KindAuthorization})
	assert.Contains(t, problem, "succeeded")
	assert.Contains(t, problem, "Authorization")
}

func TestFaultViolationUntypedError(t *testing.T) {
	problem := faultViolation(errors.New("boom"), false, nil)
	assert.Contains(t, problem, "outside the protocol")
}

func TestFaultViolationTransportNeverSatisfies(t *testing.T) {
	err := fault.New(fault.KindTransport, "connection reset")

	problem := faultViolation(err, false, []fault.Kind{fault.KindAuthorization})
	assert.Contains(t, problem, "transport-level failure")

	// unless the scenario asked for a transport fault in the first place
	assert.Equal(t, "", faultViolation(err, true, []fault.Kind{fault.KindTransport}))
}

func TestFaultViolationListedKindSatisfies(t *testing.T) {
	err := fault.New(fault.KindExpired, "slice credential has expired")
	kinds := []fault.Kind{fault.KindAuthorization, fault.KindExpired}

	assert.Equal(t, "", faultViolation(err, true, kinds))
	assert.Equal(t, "", faultViolation(err, false, kinds))
}

func TestFaultViolationUnlistedKind(t *testing.T) {
	err := fault.New(fault.KindOperation, "refused")

	problem := faultViolation(err, true, []fault.Kind{fault.KindAuthorization})
	assert.Contains(t, problem, "Operation")
	assert.Contains(t, problem, "Authorization")

	// The lenient mode takes any protocol-level refusal.
	assert.Equal(t, "", faultViolation(err, false, []fault.Kind{fault.KindAuthorization}))
}

func TestKindNames(t *testing.T) {
	assert.Equal(t, "protocol", kindNames(nil))
	assert.Equal(t, "Authorization", kindNames([]fault.Kind{fault.KindAuthorization}))
	assert.Equal(t, "Authorization or Expired",
		kindNames([]fault.Kind{fault.KindAuthorization, fault.KindExpired}))
}

func TestLoadDocumentBuiltinFallback(t *testing.T) {
	doc, err := loadDocument("", defaultRequestRSpec)
	require.NoError(t, err)
	assert.Equal(t, defaultRequestRSpec, string(doc))
}

func TestLoadDocumentFileOverride(t *testing.T) {
	f, err := ioutil.TempFile("", "rspec")
	require.NoError(t, err)
	t.Cleanup(func() { _ = os.Remove(f.Name()) })
	_, err = f.WriteString(`<rspec type="request"/>`)
	require.NoError(t, err)
	require.NoError(t, f.Close())

	doc, err := loadDocument(f.Name(), defaultRequestRSpec)
	require.NoError(t, err)
	assert.Equal(t, `<rspec type="request"/>`, string(doc))

	_, err = loadDocument(f.Name()+".missing", defaultRequestRSpec)
	assert.Error(t, err)
}

func TestBuiltinDescriptorsAreUsable(t *testing.T) {
	doc, err := rspec.Parse([]byte(defaultRequestRSpec))
	require.NoError(t, err)
	assert.Equal(t, rspec.RoleRequest, doc.Role)
	assert.Equal(t, []string{
		"urn:publicid:IDN+geni:gpo:gcf+node+fake-pc-1",
		"urn:publicid:IDN+geni:gpo:gcf+node+fake-pc-2",
	}, doc.IDSet())

	manifest, err := rspec.Parse([]byte(defaultManifestRSpec))
	require.NoError(t, err)
	assert.Equal(t, rspec.RoleManifest, manifest.Role)

	_, err = rspec.Parse([]byte(defaultMalformedRSpec))
	assert.Error(t, err, "the malformed descriptor must not parse")
}

func TestLoadArtifactsBuiltinsByDefault(t *testing.T) {
	h := &Harness{cfg: RunConfig{}.withDefaults()}

	require.NoError(t, h.loadArtifacts())
	assert.Equal(t, defaultRequestRSpec, string(h.artifacts.request))
	assert.Nil(t, h.artifacts.unboundRequest, "there is no built-in unbound request")
	assert.Nil(t, h.artifacts.untrustedCred)
}

func TestLoadArtifactsRejectsWrongRoleRequest(t *testing.T) {
	f, err := ioutil.TempFile("", "rspec")
	require.NoError(t, err)
	t.Cleanup(func() { _ = os.Remove(f.Name()) })
	_, err = f.WriteString(defaultManifestRSpec)
	require.NoError(t, err)
	require.NoError(t, f.Close())

	h := &Harness{cfg: RunConfig{RequestFile: f.Name()}.withDefaults()}
	err = h.loadArtifacts()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "role")
}

func TestMissingCapabilitiesListsEveryAbsentPrerequisite(t *testing.T) {
	h := &Harness{
		cfg:       RunConfig{}.withDefaults(),
		validator: rspec.Validator{Path: "/nonexistent/rspeclint"},
	}

	assert.Equal(t, []string{
		"slice-allocation",
		"unbound-request",
		"untrusted-credential",
		"delegated-credential",
		"schema-validation",
		"destructive-shutdown",
	}, h.MissingCapabilities())
}

func TestMissingCapabilitiesEmptyWhenFullyEquipped(t *testing.T) {
	tool, err := ioutil.TempFile("", "rspeclint")
	require.NoError(t, err)
	t.Cleanup(func() { _ = os.Remove(tool.Name()) })
	require.NoError(t, tool.Close())
	require.NoError(t, os.Chmod(tool.Name(), 0o755))

	h := &Harness{
		cfg: RunConfig{Destructive: true}.withDefaults(),
		artifacts: artifacts{
			unboundRequest: []byte(`<rspec type="request"/>`),
			untrustedCred:  &credential.Credential{},
			delegatedCred:  &credential.Credential{},
		},
		validator:    rspec.Validator{Path: tool.Name()},
		newAuthority: func(framework.Logger) (amapi.SliceAuthority, error) { return nil, nil },
	}

	assert.Empty(t, h.MissingCapabilities())
}

func TestHasSliceSourceViaReusedSlice(t *testing.T) {
	h := &Harness{reuse: &credential.Credential{}}

	assert.True(t, h.HasSliceSource())
	assert.NotContains(t, h.MissingCapabilities(), "slice-allocation")
}
