// Package credential loads GENI slice credentials and derives the
// deliberately-invalid variants used for negative testing.
//
// A credential is a signed XML assertion of rights over a slice, issued by a
// slice authority. The package treats the signed document as immutable: every
// invalid variant is a new value derived from the original bytes, so one
// loaded credential can seed any number of tests.
package credential

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"io/ioutil"
	"strings"
	"time"

	"github.com/geni-nsf/am-contract-tests/fault"
)

// Credential is a parsed signed slice credential. The zero value is not
// usable; obtain one from Parse or LoadFile.
type Credential struct {
	raw       []byte
	Type      string
	OwnerURN  URN
	TargetURN URN
	Expires   time.Time
	Delegated bool
}

type signedCredentialDoc struct {
	XMLName    xml.Name          `xml:"signed-credential"`
	Credential credentialElement `xml:"credential"`
}

type credentialElement struct {
	Type      string         `xml:"type"`
	OwnerURN  string         `xml:"owner_urn"`
	TargetURN string         `xml:"target_urn"`
	Expires   string         `xml:"expires"`
	Parent    *parentElement `xml:"parent"`
}

type parentElement struct {
	Credential credentialElement `xml:"credential"`
}

// Parse reads a signed credential document. An empty input and a document
// that is not a well-formed signed credential produce distinct fault kinds,
// because tests need to tell those apart.
func Parse(raw []byte) (*Credential, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil, fault.New(fault.KindEmptyDocument, "credential document is empty")
	}
	var doc signedCredentialDoc
	if err := xml.Unmarshal(raw, &doc); err != nil {
		return nil, fault.Wrapf(fault.KindMalformedDocument, err, "credential is not a well-formed signed credential: %s", err)
	}
	target, err := ParseURN(doc.Credential.TargetURN)
	if err != nil {
		return nil, fault.Wrapf(fault.KindMalformedDocument, err, "credential target_urn: %s", err)
	}
	owner, err := ParseURN(doc.Credential.OwnerURN)
	if err != nil {
		return nil, fault.Wrapf(fault.KindMalformedDocument, err, "credential owner_urn: %s", err)
	}
	expires, err := parseExpires(doc.Credential.Expires)
	if err != nil {
		return nil, fault.Wrapf(fault.KindMalformedDocument, err, "credential expires: %s", err)
	}
	return &Credential{
		raw:       append([]byte(nil), raw...),
		Type:      doc.Credential.Type,
		OwnerURN:  owner,
		TargetURN: target,
		Expires:   expires,
		Delegated: doc.Credential.Parent != nil,
	}, nil
}

// LoadFile reads and parses a credential from disk.
func LoadFile(path string) (*Credential, error) {
	raw, err := ioutil.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading credential file: %w", err)
	}
	c, err := Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("credential file %s: %w", path, err)
	}
	return c, nil
}

// String returns the signed document exactly as loaded, which is the form
// aggregate manager calls expect.
func (c *Credential) String() string {
	return string(c.raw)
}

// SliceName returns the slice's short name when the credential's target is a
// slice, or "" otherwise.
func (c *Credential) SliceName() string {
	if c.TargetURN.Type != "slice" {
		return ""
	}
	return c.TargetURN.Name
}

// ExpiresWithin reports whether the credential expires before now+d. Scenario
// setup uses this to skip renewal tests that could not possibly succeed.
func (c *Credential) ExpiresWithin(d time.Duration) bool {
	return c.Expires.Before(time.Now().Add(d))
}

// The authority writes expirations in a few ISO 8601 shapes depending on its
// version; timestamps without a zone are UTC.
var expiresLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05.999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

func parseExpires(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, fmt.Errorf("no expires element")
	}
	for _, layout := range expiresLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", value)
}

// URN is a parsed GENI identifier of the form
// urn:publicid:IDN+<authority>+<type>+<name>.
type URN struct {
	Authority string
	Type      string
	Name      string
}

const urnPrefix = "urn:publicid:IDN+"

// ParseURN splits a GENI URN into its authority, type, and name parts.
func ParseURN(s string) (URN, error) {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, urnPrefix) {
		return URN{}, fmt.Errorf("%q does not start with %q", s, urnPrefix)
	}
	parts := strings.Split(strings.TrimPrefix(s, urnPrefix), "+")
	if len(parts) != 3 || parts[0] == "" || parts[1] == "" || parts[2] == "" {
		return URN{}, fmt.Errorf("%q is not authority+type+name", s)
	}
	return URN{Authority: parts[0], Type: parts[1], Name: parts[2]}, nil
}

// MakeSliceURN builds the URN for a named slice under an authority.
func MakeSliceURN(authority, name string) URN {
	return URN{Authority: authority, Type: "slice", Name: name}
}

func (u URN) String() string {
	return urnPrefix + u.Authority + "+" + u.Type + "+" + u.Name
}

// IsZero reports whether the URN has no parts set.
func (u URN) IsZero() bool {
	return u == URN{}
}
