// Package workflow drives the sliver lifecycle against one aggregate manager.
//
// An Orchestrator owns every slice and sliver a test scenario creates and is
// solely responsible for releasing them. Scenario code registers resources
// implicitly by going through the Orchestrator's operations; however the
// scenario ends, ReleaseAll tears down whatever exists, in reverse creation
// order, suppressing but logging secondary faults so a cleanup problem never
// masks the scenario's own verdict.
package workflow

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gopkg.in/launchdarkly/go-sdk-common.v2/ldvalue"

	"github.com/geni-nsf/am-contract-tests/amapi"
	"github.com/geni-nsf/am-contract-tests/credential"
	"github.com/geni-nsf/am-contract-tests/fault"
	"github.com/geni-nsf/am-contract-tests/framework"
	"github.com/geni-nsf/am-contract-tests/rspec"
)

// ErrNoSliceSource means a scenario needed a slice but the run has neither a
// slice authority nor a slice to reuse. Scenarios treat this as a reason to
// skip rather than a failure.
var ErrNoSliceSource = errors.New("no slice authority configured and no slice to reuse")

const defaultNamePrefix = "conf"

// Config is the run-scoped configuration threaded into an Orchestrator.
type Config struct {
	// Authority registers and retires slices. Nil is allowed when every
	// scenario either reuses an existing slice or never needs one.
	Authority amapi.SliceAuthority

	// NamePrefix starts every generated slice name. Names are kept short:
	// some slice authorities cap them well under typical identifier lengths.
	NamePrefix string

	// ReuseCredential, when set, makes the first AllocateSlice return the
	// operator's existing slice instead of creating one. The reused slice is
	// never deleted; its slivers still are.
	ReuseCredential *credential.Credential

	// ReuseName overrides the reused slice's short name when it differs from
	// the name inside the credential.
	ReuseName string

	// Users are provisioned on every created sliver.
	Users []amapi.User

	// RSpecVersion is the descriptor format requested on every listing.
	RSpecVersion *amapi.RSpecVersion

	Logger framework.Logger
}

// Orchestrator sequences lifecycle operations against one aggregate and
// guarantees the release of everything it creates. Calls are issued one at a
// time; each blocks for the full round trip.
type Orchestrator struct {
	gateway amapi.Gateway
	cfg     Config
	logger  framework.Logger
	slices  []*Slice
	reused  bool
}

// New returns an Orchestrator that calls the aggregate through gateway.
func New(gateway amapi.Gateway, cfg Config) *Orchestrator {
	if cfg.NamePrefix == "" {
		cfg.NamePrefix = defaultNamePrefix
	}
	logger := cfg.Logger
	if logger == nil {
		logger = framework.NullLogger()
	}
	return &Orchestrator{gateway: gateway, cfg: cfg, logger: logger}
}

// Slice is one allocation container held by the Orchestrator. Fields are set
// at allocation and never change.
type Slice struct {
	Name       string
	Credential *credential.Credential

	reused bool
	sliver *Sliver
}

// URN returns the slice's full identifier.
func (s *Slice) URN() credential.URN {
	return s.Credential.TargetURN
}

func (s *Slice) credentials() []string {
	return []string{s.Credential.String()}
}

// Sliver records one creation attempt against a slice: what was asked for and
// what was granted. Request is nil when the submitted document did not parse,
// which negative scenarios do on purpose.
type Sliver struct {
	Request       *rspec.Document
	Manifest      *rspec.Document
	ManifestBytes []byte

	state sliverState
}

type sliverState int

const (
	sliverPending sliverState = iota
	sliverLive
	sliverReleased
)

// Released reports whether the sliver has been deleted, or never existed at
// the aggregate in the first place.
func (s *Sliver) Released() bool {
	return s.state == sliverReleased
}

// Slices returns the slices currently tracked, in creation order.
func (o *Orchestrator) Slices() []*Slice {
	return append([]*Slice(nil), o.slices...)
}

// AllocateSlice produces a slice for the scenario to work in. When the run
// reuses an operator-supplied slice, the first call returns it and skips the
// authority; every other call registers a fresh, uniquely named slice. Either
// way the slice is tracked for teardown, the reused one only for its slivers.
func (o *Orchestrator) AllocateSlice() (*Slice, error) {
	if o.cfg.ReuseCredential != nil && !o.reused {
		o.reused = true
		name := o.cfg.ReuseName
		if name == "" {
			name = o.cfg.ReuseCredential.SliceName()
		}
		slice := &Slice{Name: name, Credential: o.cfg.ReuseCredential, reused: true}
		o.slices = append(o.slices, slice)
		o.logger.Printf("reusing existing slice %s (expires %s)", slice.URN(), slice.Credential.Expires)
		return slice, nil
	}
	if o.cfg.Authority == nil {
		return nil, ErrNoSliceSource
	}

	name := fmt.Sprintf("%s-%.8s", o.cfg.NamePrefix, uuid.NewString())
	cred, err := o.cfg.Authority.CreateSlice(name)
	if err != nil {
		return nil, fmt.Errorf("allocating slice %s: %w", name, err)
	}
	slice := &Slice{Name: name, Credential: cred}
	o.slices = append(o.slices, slice)
	o.logger.Printf("allocated slice %s (credential expires %s)", slice.URN(), cred.Expires)
	return slice, nil
}

// CreateSliver submits a request descriptor for the slice and returns the
// granted sliver. The attempt is tracked before the call goes out, so a
// partial allocation left behind by a failed call is still released at
// teardown. The submitted document is passed through untouched: sending
// deliberately broken descriptors is how negative scenarios work.
func (o *Orchestrator) CreateSliver(slice *Slice, request []byte) (*Sliver, error) {
	sliver := slice.sliver
	if sliver == nil || sliver.state == sliverReleased {
		sliver = &Sliver{}
		if req, err := rspec.Parse(request); err == nil {
			sliver.Request = req
		}
		slice.sliver = sliver
	}

	o.logger.Printf("request descriptor for %s:\n%s", slice.URN(), request)
	manifest, err := o.gateway.CreateSliver(slice.URN().String(), slice.credentials(), request, o.cfg.Users)
	if err != nil {
		return nil, err
	}
	sliver.state = sliverLive
	sliver.ManifestBytes = manifest
	o.logger.Printf("manifest descriptor for %s:\n%s", slice.URN(), manifest)

	doc, err := rspec.Parse(manifest)
	if err != nil {
		return nil, fault.Wrapf(fault.KindProtocol, err,
			"CreateSliver returned an unusable manifest: %s", err)
	}
	sliver.Manifest = doc
	return sliver, nil
}

// Status queries the provisioning state of the slice's sliver.
func (o *Orchestrator) Status(slice *Slice) (*amapi.StatusRecord, error) {
	return o.gateway.SliverStatus(slice.URN().String(), slice.credentials())
}

// AdOptions selects what an advertisement listing asks for.
type AdOptions struct {
	Available  bool
	Compressed bool
}

// ListAdvertisement fetches the aggregate's capability catalog using the
// slice's credential.
func (o *Orchestrator) ListAdvertisement(slice *Slice, opts AdOptions) ([]byte, error) {
	doc, err := o.gateway.ListResources(slice.credentials(), amapi.ListOptions{
		Available:  opts.Available,
		Compressed: opts.Compressed,
		Version:    o.cfg.RSpecVersion,
	})
	if err != nil {
		return nil, err
	}
	o.logger.Printf("advertisement descriptor:\n%s", doc)
	return doc, nil
}

// ListManifest fetches the manifest for the slice using its own credential.
func (o *Orchestrator) ListManifest(slice *Slice) ([]byte, error) {
	return o.ListManifestWith(slice, slice.Credential)
}

// ListManifestWith fetches the manifest for the slice using an arbitrary
// credential. Isolation scenarios use this to present one slice's credential
// against another slice's manifest, which a conforming aggregate must refuse.
func (o *Orchestrator) ListManifestWith(slice *Slice, cred *credential.Credential) ([]byte, error) {
	doc, err := o.gateway.ListResources([]string{cred.String()}, amapi.ListOptions{
		Slice:   ldvalue.NewOptionalString(slice.URN().String()),
		Version: o.cfg.RSpecVersion,
	})
	if err != nil {
		return nil, err
	}
	o.logger.Printf("manifest descriptor for %s:\n%s", slice.URN(), doc)
	return doc, nil
}

// Renew asks the aggregate to extend the slice's sliver to the given time.
func (o *Orchestrator) Renew(slice *Slice, until time.Time) (bool, error) {
	return o.gateway.RenewSliver(slice.URN().String(), slice.credentials(), until)
}

// DeleteSliver releases the slice's sliver. Success, or a report that no
// sliver exists, both mean there is nothing left to tear down.
func (o *Orchestrator) DeleteSliver(slice *Slice) (bool, error) {
	ok, err := o.gateway.DeleteSliver(slice.URN().String(), slice.credentials())
	if err == nil || fault.IsKind(err, fault.KindNoSuchSliver) {
		if s := slice.sliver; s != nil {
			s.state = sliverReleased
		}
	}
	return ok, err
}

// Shutdown administratively stops the slice's sliver. The sliver stays
// tracked: teardown will still attempt an ordinary delete afterward, and logs
// the refusal if the aggregate no longer allows it.
func (o *Orchestrator) Shutdown(slice *Slice) (bool, error) {
	return o.gateway.Shutdown(slice.URN().String(), slice.credentials())
}

// ReleaseAll tears down every tracked sliver and every slice this
// Orchestrator created, newest first. Each sliver gets exactly one delete
// attempt; faults are logged and suppressed. Reused slices are the operator's
// to retire, so only their slivers are released.
func (o *Orchestrator) ReleaseAll() {
	for i := len(o.slices) - 1; i >= 0; i-- {
		slice := o.slices[i]
		if s := slice.sliver; s != nil && s.state != sliverReleased {
			s.state = sliverReleased
			if _, err := o.gateway.DeleteSliver(slice.URN().String(), slice.credentials()); err != nil {
				if fault.IsKind(err, fault.KindNoSuchSliver) {
					o.logger.Printf("teardown: slice %s had no sliver to delete", slice.Name)
				} else {
					o.logger.Printf("teardown: deleting sliver of slice %s failed: %s", slice.Name, err)
				}
			} else {
				o.logger.Printf("teardown: deleted sliver of slice %s", slice.Name)
			}
		}
		if slice.reused {
			continue
		}
		if err := o.cfg.Authority.DeleteSlice(slice.Name); err != nil {
			o.logger.Printf("teardown: retiring slice %s failed: %s", slice.Name, err)
		} else {
			o.logger.Printf("teardown: retired slice %s", slice.Name)
		}
	}
	o.slices = nil
}
