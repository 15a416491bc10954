package amtests

import (
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/geni-nsf/am-contract-tests/fault"
	"github.com/geni-nsf/am-contract-tests/rspec"
)

func credentialGroup() ScenarioGroup {
	return ScenarioGroup{
		Name:        "credentials",
		Description: "credential verification, trust-chain checking, and delegation",
		Scenarios: []Scenario{
			{
				Name:        "refuses an altered signature",
				Description: "a well-formed credential whose signature no longer matches is refused as an authorization failure",
				Run:         testAlteredSignatureRefused,
			},
			{
				Name:        "refuses a corrupted credential",
				Description: "a credential that is not well-formed markup is refused as a malformed document, not an authorization failure",
				Run:         testCorruptedCredentialRefused,
			},
			{
				Name:        "distinguishes tampering from corruption",
				Description: "an altered signature and a corrupted encoding yield different fault kinds, never one generic failure",
				Run:         testCredentialFaultsDistinguishable,
			},
			{
				Name:        "refuses a truncated credential",
				Description: "a credential cut off mid-document is refused",
				Run:         testTruncatedCredentialRefused,
			},
			{
				Name:        "refuses an untrusted authority",
				Description: "a credential validly signed by an authority the aggregate does not trust is refused, proving trust-chain validation",
				Run:         testUntrustedAuthorityRefused,
			},
			{
				Name:        "accepts a delegated credential",
				Description: "a credential properly re-issued to another principal is accepted like a direct grant",
				Run:         testDelegatedCredentialAccepted,
			},
		},
	}
}

// listWithRawCredential presents arbitrary credential text on an
// advertisement listing. The tampered variants cannot go through the
// orchestrator, which only handles parseable credentials.
func listWithRawCredential(t *T, credentialText string) error {
	_, err := t.Gateway().ListResources([]string{credentialText}, t.AdOptions())
	return err
}

func testAlteredSignatureRefused(t *T) {
	slice := t.AllocateSlice()
	altered, err := slice.Credential.AlteredSignature()
	require.NoError(t, err, "could not derive an altered-signature credential")

	t.RequireFault(listWithRawCredential(t, altered), fault.KindAuthorization)
}

func testCorruptedCredentialRefused(t *T) {
	slice := t.AllocateSlice()
	corrupted, err := slice.Credential.CorruptedPrefix()
	require.NoError(t, err, "could not derive a corrupted credential")

	t.RequireFault(listWithRawCredential(t, corrupted), fault.KindMalformedDocument)
}

func testCredentialFaultsDistinguishable(t *T) {
	slice := t.AllocateSlice()
	altered, err := slice.Credential.AlteredSignature()
	require.NoError(t, err)
	corrupted, err := slice.Credential.CorruptedPrefix()
	require.NoError(t, err)

	alteredErr := listWithRawCredential(t, altered)
	corruptedErr := listWithRawCredential(t, corrupted)
	require.Error(t, alteredErr, "the altered-signature credential was accepted")
	require.Error(t, corruptedErr, "the corrupted credential was accepted")

	alteredKind := fault.KindOf(alteredErr)
	corruptedKind := fault.KindOf(corruptedErr)
	assert.NotEqual(t, fault.KindTransport, alteredKind)
	assert.NotEqual(t, fault.KindTransport, corruptedKind)
	assert.NotEqual(t, alteredKind, corruptedKind,
		"both credential faults report kind %s; a conforming aggregate tells a bad signature apart from a bad document",
		alteredKind)
}

func testTruncatedCredentialRefused(t *T) {
	slice := t.AllocateSlice()
	t.RequireRejection(listWithRawCredential(t, slice.Credential.Truncated()),
		fault.KindMalformedDocument)
}

func testUntrustedAuthorityRefused(t *T) {
	cred := t.UntrustedCredential()
	t.RequireFault(listWithRawCredential(t, cred.String()), fault.KindAuthorization)
}

func testDelegatedCredentialAccepted(t *T) {
	cred := t.DelegatedCredential()
	assert.True(t, cred.Delegated,
		"the configured delegated credential carries no parent chain; check the file")

	raw, err := t.Gateway().ListResources([]string{cred.String()}, t.AdOptions())
	require.NoError(t, err, "the delegated credential was refused")
	_, err = rspec.Parse(raw)
	assert.NoError(t, err, "the listing under a delegated credential does not parse")
}
