// Package amapi is the client side of the GENI Aggregate Manager API.
//
// An aggregate manager is an XML-RPC service reached over TLS with client
// certificate authentication. Two major versions of the API are in active
// use and differ in two ways: version 2 appends an options struct to every
// call, and wraps every response in a result envelope carrying a geni_code
// instead of signaling failures as XML-RPC faults. The Client here exposes
// one operation set for both versions and folds their response shapes and
// failure signals into common types, so test scenarios never branch on the
// wire dialect.
package amapi

import (
	"time"

	"gopkg.in/launchdarkly/go-sdk-common.v2/ldvalue"
)

// Gateway is the operation set of an aggregate manager. Client implements it
// against a live aggregate; tests substitute fakes.
type Gateway interface {
	// GetVersion reports the aggregate's API version and the descriptor
	// formats it speaks, normalized from whichever response dialect the
	// aggregate uses.
	GetVersion() (*VersionInfo, error)

	// ListResources returns an advertisement of everything the aggregate
	// offers, or the manifest for one slice when options name it.
	ListResources(credentials []string, options ListOptions) ([]byte, error)

	// CreateSliver allocates the resources in the request descriptor to the
	// slice and returns the granted manifest.
	CreateSliver(sliceURN string, credentials []string, request []byte, users []User) ([]byte, error)

	// SliverStatus reports the provisioning state of the slice's sliver.
	SliverStatus(sliceURN string, credentials []string) (*StatusRecord, error)

	// RenewSliver asks the aggregate to extend the sliver to the given
	// expiration. False with a nil error is a clean refusal.
	RenewSliver(sliceURN string, credentials []string, expiration time.Time) (bool, error)

	// DeleteSliver releases the slice's resources.
	DeleteSliver(sliceURN string, credentials []string) (bool, error)

	// Shutdown stops a misbehaving sliver pending an investigation. This is
	// an operator action, not part of the normal lifecycle.
	Shutdown(sliceURN string, credentials []string) (bool, error)
}

// ListOptions selects what ListResources returns.
type ListOptions struct {
	// Slice scopes the listing to one slice's manifest. When absent the
	// aggregate returns its advertisement.
	Slice ldvalue.OptionalString

	// Available restricts an advertisement to currently-available resources.
	Available bool

	// Compressed asks for the descriptor zlib-compressed and base64-encoded.
	// The client decompresses, so callers always see plain markup.
	Compressed bool

	// Version names the descriptor format to return. Version 2 of the API
	// requires it; version 1 aggregates ignore it.
	Version *RSpecVersion
}

// User is an account to be provisioned on created resources, identified by
// URN with SSH public keys for login.
type User struct {
	URN  string
	Keys []string
}

func (u User) toValue() map[string]interface{} {
	keys := make([]interface{}, 0, len(u.Keys))
	for _, k := range u.Keys {
		keys = append(keys, k)
	}
	return map[string]interface{}{"urn": u.URN, "keys": keys}
}
