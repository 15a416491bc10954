// Package rspec parses resource descriptor documents and compares a granted
// manifest against the request that produced it.
//
// Descriptors appear in three roles: a request names what a caller wants, a
// manifest names what an aggregate granted, and an advertisement catalogs
// what an aggregate offers. All three share one root element whose type
// attribute states the role, and identify components with component_id
// attributes that may appear on any element.
package rspec

import (
	"bytes"
	"encoding/xml"
	"io"
	"io/ioutil"
	"sort"
	"strings"

	"github.com/geni-nsf/am-contract-tests/fault"
)

// Role is the declared purpose of a descriptor document.
type Role string

const (
	RoleRequest       Role = "request"
	RoleManifest      Role = "manifest"
	RoleAdvertisement Role = "advertisement"
)

// Document is a parsed resource descriptor.
type Document struct {
	Role Role

	// ComponentIDs maps each component identifier to the number of times it
	// appears. Well-behaved documents mention each component once, but
	// duplicate detection is a test concern, so the count is kept.
	ComponentIDs map[string]int
}

// Parse reads a descriptor document. Empty input and non-well-formed input
// are distinct fault kinds: a test that feeds an aggregate a bad descriptor
// needs to know which kind of bad it was.
func Parse(raw []byte) (*Document, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil, fault.New(fault.KindEmptyDocument, "descriptor document is empty")
	}

	doc := &Document{ComponentIDs: map[string]int{}}
	dec := xml.NewDecoder(bytes.NewReader(raw))
	sawRoot := false
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fault.Wrapf(fault.KindMalformedDocument, err, "descriptor is not well-formed: %s", err)
		}
		start, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}
		if !sawRoot {
			sawRoot = true
			if !strings.EqualFold(start.Name.Local, "rspec") {
				return nil, fault.Newf(fault.KindBadDescriptor,
					"root element is <%s>, not <rspec>", start.Name.Local)
			}
			doc.Role = roleFromAttr(start)
		}
		for _, attr := range start.Attr {
			if attr.Name.Local == "component_id" && attr.Value != "" {
				doc.ComponentIDs[attr.Value]++
			}
		}
	}
	if !sawRoot {
		return nil, fault.New(fault.KindMalformedDocument, "descriptor has no root element")
	}
	return doc, nil
}

// LoadFile reads and parses a descriptor from disk.
func LoadFile(path string) (*Document, error) {
	raw, err := ioutil.ReadFile(path)
	if err != nil {
		return nil, fault.Wrapf(fault.KindBadDescriptor, err, "reading descriptor file: %s", err)
	}
	return Parse(raw)
}

func roleFromAttr(start xml.StartElement) Role {
	for _, attr := range start.Attr {
		if attr.Name.Local != "type" {
			continue
		}
		switch strings.ToLower(strings.TrimSpace(attr.Value)) {
		case "request":
			return RoleRequest
		case "manifest":
			return RoleManifest
		case "advertisement", "ad":
			return RoleAdvertisement
		}
		return Role(strings.TrimSpace(attr.Value))
	}
	return ""
}

// IDSet returns the distinct component identifiers in sorted order.
func (d *Document) IDSet() []string {
	ids := make([]string, 0, len(d.ComponentIDs))
	for id := range d.ComponentIDs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// DuplicateIDs returns the identifiers that appear more than once, sorted.
func (d *Document) DuplicateIDs() []string {
	var dups []string
	for id, n := range d.ComponentIDs {
		if n > 1 {
			dups = append(dups, id)
		}
	}
	sort.Strings(dups)
	return dups
}

// Bound reports whether the descriptor names specific components. A request
// with no component identifiers asks the aggregate to choose, so the granted
// set cannot be predicted from it.
func (d *Document) Bound() bool {
	return len(d.ComponentIDs) > 0
}
