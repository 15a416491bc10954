package rspec

import (
	"fmt"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/geni-nsf/am-contract-tests/fault"
)

const (
	nodeAlpha = "urn:publicid:IDN+geni:test:am+node+alpha"
	nodeBeta  = "urn:publicid:IDN+geni:test:am+node+beta"
	ifaceID   = "urn:publicid:IDN+geni:test:am+interface+alpha:if0"
)

func makeDescriptor(role string, body string) string {
	return fmt.Sprintf(`<?xml version="1.0"?>
<rspec type="%s" xmlns="http://www.geni.net/resources/rspec/3">
%s</rspec>
`, role, body)
}

func twoNodeBody() string {
	return fmt.Sprintf(`  <node client_id="vm1" component_id="%s">
    <interface component_id="%s"/>
  </node>
  <node client_id="vm2" component_id="%s"/>
`, nodeAlpha, ifaceID, nodeBeta)
}

func TestParseCollectsComponentIDsAtAnyDepth(t *testing.T) {
	doc, err := Parse([]byte(makeDescriptor("request", twoNodeBody())))
	require.NoError(t, err)

	assert.Equal(t, RoleRequest, doc.Role)
	assert.Equal(t, "", cmp.Diff([]string{ifaceID, nodeAlpha, nodeBeta}, doc.IDSet()))
	assert.True(t, doc.Bound())
	assert.Empty(t, doc.DuplicateIDs())
}

func TestParseRoles(t *testing.T) {
	for attr, role := range map[string]Role{
		"request":       RoleRequest,
		"manifest":      RoleManifest,
		"advertisement": RoleAdvertisement,
		"ad":            RoleAdvertisement,
		"Manifest":      RoleManifest,
	} {
		doc, err := Parse([]byte(makeDescriptor(attr, "")))
		require.NoError(t, err, "type %q", attr)
		assert.Equal(t, role, doc.Role, "type %q", attr)
	}
}

func TestParseUnknownRoleIsPreserved(t *testing.T) {
	doc, err := Parse([]byte(makeDescriptor("delete", "")))
	require.NoError(t, err)
	assert.Equal(t, Role("delete"), doc.Role)
}

func TestParseUppercaseRootElement(t *testing.T) {
	doc, err := Parse([]byte(`<RSpec type="advertisement"></RSpec>`))
	require.NoError(t, err)
	assert.Equal(t, RoleAdvertisement, doc.Role)
}

func TestParseRootWithoutTypeAttribute(t *testing.T) {
	doc, err := Parse([]byte(`<rspec></rspec>`))
	require.NoError(t, err)
	assert.Equal(t, Role(""), doc.Role)
	assert.False(t, doc.Bound())
}

func TestParseEmptyDocument(t *testing.T) {
	for _, input := range []string{"", "  \n\t "} {
		_, err := Parse([]byte(input))
		assert.Equal(t, fault.KindEmptyDocument, fault.KindOf(err), "input %q", input)
	}
}

func TestParseMalformedDocument(t *testing.T) {
	for name, input := range map[string]string{
		"unclosed tag":     `<rspec type="request"><node>`,
		"mismatched close": `<rspec type="request"></node></rspec>`,
		"trailing garbage": `<rspec type="request"></rspec></rspec>`,
		"no root element":  `<!-- nothing here -->`,
	} {
		_, err := Parse([]byte(input))
		assert.Equal(t, fault.KindMalformedDocument, fault.KindOf(err), "case %q", name)
	}
}

func TestParseNonDescriptorRoot(t *testing.T) {
	_, err := Parse([]byte(`<signed-credential></signed-credential>`))
	assert.Equal(t, fault.KindBadDescriptor, fault.KindOf(err))
}

func TestDuplicateIDsAreCounted(t *testing.T) {
	body := fmt.Sprintf(`  <node component_id="%s"/>
  <node component_id="%s"/>
  <node component_id="%s"/>
`, nodeAlpha, nodeAlpha, nodeBeta)
	doc, err := Parse([]byte(makeDescriptor("manifest", body)))
	require.NoError(t, err)

	assert.Equal(t, 2, doc.ComponentIDs[nodeAlpha])
	assert.Equal(t, []string{nodeAlpha}, doc.DuplicateIDs())
}

func TestEmptyComponentIDAttributeIsIgnored(t *testing.T) {
	doc, err := Parse([]byte(makeDescriptor("manifest", `  <node component_id=""/>
`)))
	require.NoError(t, err)
	assert.Empty(t, doc.IDSet())
}
