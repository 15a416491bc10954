package workflow

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/geni-nsf/am-contract-tests/amapi"
	"github.com/geni-nsf/am-contract-tests/credential"
	"github.com/geni-nsf/am-contract-tests/fault"
)

const (
	fakeAuthority = "geni:test:gcf"
	fakeNodeA     = "urn:publicid:IDN+geni:test:am+node+a"
	fakeNodeB     = "urn:publicid:IDN+geni:test:am+node+b"
)

func fakeCredentialText(sliceName string) string {
	target := credential.MakeSliceURN(fakeAuthority, sliceName)
	return fmt.Sprintf(`<?xml version="1.0"?>
<signed-credential>
  <credential xml:id="ref0">
    <type>privilege</type>
    <owner_urn>urn:publicid:IDN+geni:test:gcf+user+tester</owner_urn>
    <target_urn>%s</target_urn>
    <expires>2027-01-01T00:00:00Z</expires>
  </credential>
  <signatures>
    <Signature><SignatureValue>ZmFrZXNpZ25hdHVyZQ==</SignatureValue></Signature>
  </signatures>
</signed-credential>`, target)
}

func fakeCredential(t *testing.T, sliceName string) *credential.Credential {
	c, err := credential.Parse([]byte(fakeCredentialText(sliceName)))
	require.NoError(t, err)
	return c
}

// fakeAuthorityClient implements amapi.SliceAuthority in memory.
type fakeAuthorityClient struct {
	created []string
	deleted []string
	fail    error
}

func (a *fakeAuthorityClient) CreateSlice(name string) (*credential.Credential, error) {
	if a.fail != nil {
		return nil, a.fail
	}
	a.created = append(a.created, name)
	c, err := credential.Parse([]byte(fakeCredentialText(name)))
	if err != nil {
		return nil, err
	}
	return c, nil
}

func (a *fakeAuthorityClient) DeleteSlice(name string) error {
	a.deleted = append(a.deleted, name)
	return nil
}

// fakeGateway implements amapi.Gateway in memory, tracking one sliver per
// slice URN the way the reference aggregate does.
type fakeGateway struct {
	slivers map[string]string // slice URN -> manifest returned at creation
	calls   []string

	manifestFor     func(request []byte) string
	createFault     error
	deleteFault     error
	listFault       error
	deletedCount    map[string]int
	renewedUntil    map[string]time.Time
	shutdownCount   int
	lastCredentials []string
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{
		slivers:      map[string]string{},
		deletedCount: map[string]int{},
		renewedUntil: map[string]time.Time{},
	}
}

func (g *fakeGateway) record(op, sliceURN string) {
	g.calls = append(g.calls, op+" "+sliceURN)
}

func (g *fakeGateway) GetVersion() (*amapi.VersionInfo, error) {
	return &amapi.VersionInfo{APIMajor: 2}, nil
}

func (g *fakeGateway) ListResources(credentials []string, options amapi.ListOptions) ([]byte, error) {
	slice, _ := options.Slice.Get()
	g.record("ListResources", slice)
	g.lastCredentials = credentials
	if g.listFault != nil {
		return nil, g.listFault
	}
	if slice == "" {
		return []byte(`<rspec type="advertisement"/>`), nil
	}
	manifest, ok := g.slivers[slice]
	if !ok {
		return nil, fault.New(fault.KindNoSuchSliver, "no sliver for "+slice)
	}
	return []byte(manifest), nil
}

func (g *fakeGateway) CreateSliver(sliceURN string, credentials []string, request []byte, users []amapi.User) ([]byte, error) {
	g.record("CreateSliver", sliceURN)
	if g.createFault != nil {
		return nil, g.createFault
	}
	if _, exists := g.slivers[sliceURN]; exists {
		return nil, fault.New(fault.KindAlreadyExists, "sliver already exists")
	}
	manifest := fmt.Sprintf(`<rspec type="manifest"><node component_id="%s"/></rspec>`, fakeNodeA)
	if g.manifestFor != nil {
		manifest = g.manifestFor(request)
	}
	g.slivers[sliceURN] = manifest
	return []byte(manifest), nil
}

func (g *fakeGateway) SliverStatus(sliceURN string, credentials []string) (*amapi.StatusRecord, error) {
	g.record("SliverStatus", sliceURN)
	if _, ok := g.slivers[sliceURN]; !ok {
		return nil, fault.New(fault.KindNoSuchSliver, "no sliver for "+sliceURN)
	}
	return &amapi.StatusRecord{URN: sliceURN, State: amapi.StateReady, RawState: "ready"}, nil
}

func (g *fakeGateway) RenewSliver(sliceURN string, credentials []string, expiration time.Time) (bool, error) {
	g.record("RenewSliver", sliceURN)
	if _, ok := g.slivers[sliceURN]; !ok {
		return false, fault.New(fault.KindNoSuchSliver, "no sliver for "+sliceURN)
	}
	g.renewedUntil[sliceURN] = expiration
	return true, nil
}

func (g *fakeGateway) DeleteSliver(sliceURN string, credentials []string) (bool, error) {
	g.record("DeleteSliver", sliceURN)
	g.deletedCount[sliceURN]++
	if g.deleteFault != nil {
		return false, g.deleteFault
	}
	if _, ok := g.slivers[sliceURN]; !ok {
		return false, fault.New(fault.KindNoSuchSliver, "no sliver for "+sliceURN)
	}
	delete(g.slivers, sliceURN)
	return true, nil
}

func (g *fakeGateway) Shutdown(sliceURN string, credentials []string) (bool, error) {
	g.record("Shutdown", sliceURN)
	g.shutdownCount++
	return true, nil
}

func newTestOrchestrator(t *testing.T) (*Orchestrator, *fakeGateway, *fakeAuthorityClient) {
	gateway := newFakeGateway()
	authority := &fakeAuthorityClient{}
	o := New(gateway, Config{Authority: authority, NamePrefix: "tst"})
	return o, gateway, authority
}

func TestAllocateSliceRegistersUniqueNames(t *testing.T) {
	o, _, authority := newTestOrchestrator(t)

	first, err := o.AllocateSlice()
	require.NoError(t, err)
	second, err := o.AllocateSlice()
	require.NoError(t, err)

	assert.NotEqual(t, first.Name, second.Name)
	assert.Equal(t, []string{first.Name, second.Name}, authority.created)
	assert.Equal(t, "slice", first.URN().Type)
	assert.Equal(t, first.Name, first.URN().Name)
	assert.Len(t, o.Slices(), 2)
}

func TestAllocateSliceWithoutAnySourceIsSentinelError(t *testing.T) {
	o := New(newFakeGateway(), Config{})

	_, err := o.AllocateSlice()
	assert.True(t, errors.Is(err, ErrNoSliceSource))
}

func TestAllocateSliceReusesOperatorSliceOnce(t *testing.T) {
	gateway := newFakeGateway()
	authority := &fakeAuthorityClient{}
	reused := fakeCredential(t, "operator-slice")
	o := New(gateway, Config{Authority: authority, ReuseCredential: reused})

	first, err := o.AllocateSlice()
	require.NoError(t, err)
	assert.Equal(t, "operator-slice", first.Name)
	assert.Empty(t, authority.created, "reused slice must not be re-created")

	second, err := o.AllocateSlice()
	require.NoError(t, err)
	assert.NotEqual(t, "operator-slice", second.Name, "only the first allocation reuses")
	assert.Len(t, authority.created, 1)
}

func TestCreateSliverRecordsRequestAndManifest(t *testing.T) {
	o, _, _ := newTestOrchestrator(t)
	slice, err := o.AllocateSlice()
	require.NoError(t, err)

	request := fmt.Sprintf(`<rspec type="request"><node component_id="%s"/></rspec>`, fakeNodeA)
	sliver, err := o.CreateSliver(slice, []byte(request))
	require.NoError(t, err)

	require.NotNil(t, sliver.Request)
	assert.Equal(t, []string{fakeNodeA}, sliver.Request.IDSet())
	require.NotNil(t, sliver.Manifest)
	assert.Equal(t, []string{fakeNodeA}, sliver.Manifest.IDSet())
	assert.False(t, sliver.Released())
}

func TestCreateSliverPassesUnparseableRequestThrough(t *testing.T) {
	// Negative scenarios deliberately submit broken documents; the aggregate
	// must be the one to reject them.
	o, gateway, _ := newTestOrchestrator(t)
	gateway.createFault = fault.New(fault.KindMalformedDocument, "rspec not parseable")
	slice, err := o.AllocateSlice()
	require.NoError(t, err)

	_, err = o.CreateSliver(slice, []byte("<rspec type='request'><node>"))
	assert.Equal(t, fault.KindMalformedDocument, fault.KindOf(err))
	assert.Contains(t, gateway.calls, "CreateSliver "+slice.URN().String(),
		"the broken document must still reach the aggregate")
}

func TestCreateSliverFailureStillTracksForTeardown(t *testing.T) {
	// A failed create may have allocated partial state at the aggregate, so
	// teardown must attempt a delete anyway.
	o, gateway, _ := newTestOrchestrator(t)
	gateway.createFault = fault.New(fault.KindOperation, "mid-call failure")
	slice, err := o.AllocateSlice()
	require.NoError(t, err)

	_, err = o.CreateSliver(slice, []byte(`<rspec type="request"/>`))
	require.Error(t, err)

	o.ReleaseAll()
	assert.Equal(t, 1, gateway.deletedCount[slice.URN().String()])
}

func TestCreateSliverUnusableManifestIsProtocolFault(t *testing.T) {
	o, gateway, _ := newTestOrchestrator(t)
	gateway.manifestFor = func([]byte) string { return "<rspec><node>" }
	slice, err := o.AllocateSlice()
	require.NoError(t, err)

	_, err = o.CreateSliver(slice, []byte(`<rspec type="request"/>`))
	assert.Equal(t, fault.KindProtocol, fault.KindOf(err))

	// The sliver exists at the aggregate even though the manifest was junk.
	o.ReleaseAll()
	assert.Empty(t, gateway.slivers)
}

func TestLifecycleRoundTrip(t *testing.T) {
	o, gateway, _ := newTestOrchestrator(t)
	slice, err := o.AllocateSlice()
	require.NoError(t, err)

	_, err = o.CreateSliver(slice, []byte(`<rspec type="request"/>`))
	require.NoError(t, err)

	record, err := o.Status(slice)
	require.NoError(t, err)
	assert.Equal(t, amapi.StateReady, record.State)

	until := time.Now().Add(48 * time.Hour)
	renewed, err := o.Renew(slice, until)
	require.NoError(t, err)
	assert.True(t, renewed)
	assert.Equal(t, until, gateway.renewedUntil[slice.URN().String()])

	deleted, err := o.DeleteSliver(slice)
	require.NoError(t, err)
	assert.True(t, deleted)
	assert.True(t, slice.sliver.Released())

	_, err = o.Status(slice)
	assert.Equal(t, fault.KindNoSuchSliver, fault.KindOf(err))
}

func TestDeleteSliverOnEmptySliceReportsNoSuchSliver(t *testing.T) {
	o, _, _ := newTestOrchestrator(t)
	slice, err := o.AllocateSlice()
	require.NoError(t, err)

	_, err = o.DeleteSliver(slice)
	assert.Equal(t, fault.KindNoSuchSliver, fault.KindOf(err))
}

func TestListManifestWithUsesTheGivenCredential(t *testing.T) {
	o, gateway, _ := newTestOrchestrator(t)
	slice, err := o.AllocateSlice()
	require.NoError(t, err)
	_, err = o.CreateSliver(slice, []byte(`<rspec type="request"/>`))
	require.NoError(t, err)

	other := fakeCredential(t, "other-slice")
	gateway.listFault = fault.New(fault.KindAuthorization, "credential not for this slice")
	_, err = o.ListManifestWith(slice, other)
	assert.Equal(t, fault.KindAuthorization, fault.KindOf(err))
	assert.Equal(t, []string{other.String()}, gateway.lastCredentials,
		"the presented credential, not the slice's own, goes on the wire")
}

func TestListAdvertisement(t *testing.T) {
	o, _, _ := newTestOrchestrator(t)
	slice, err := o.AllocateSlice()
	require.NoError(t, err)

	doc, err := o.ListAdvertisement(slice, AdOptions{Available: true})
	require.NoError(t, err)
	assert.Contains(t, string(doc), "advertisement")
}

func TestReleaseAllTearsDownInReverseOrder(t *testing.T) {
	o, gateway, authority := newTestOrchestrator(t)

	first, err := o.AllocateSlice()
	require.NoError(t, err)
	second, err := o.AllocateSlice()
	require.NoError(t, err)
	_, err = o.CreateSliver(first, []byte(`<rspec type="request"/>`))
	require.NoError(t, err)
	_, err = o.CreateSliver(second, []byte(`<rspec type="request"/>`))
	require.NoError(t, err)

	o.ReleaseAll()

	assert.Empty(t, gateway.slivers, "all slivers deleted")
	assert.Equal(t, []string{second.Name, first.Name}, authority.deleted, "newest first")
	assert.Empty(t, o.Slices())
}

func TestReleaseAllSkipsAlreadyDeletedSlivers(t *testing.T) {
	o, gateway, _ := newTestOrchestrator(t)
	slice, err := o.AllocateSlice()
	require.NoError(t, err)
	_, err = o.CreateSliver(slice, []byte(`<rspec type="request"/>`))
	require.NoError(t, err)

	_, err = o.DeleteSliver(slice)
	require.NoError(t, err)
	o.ReleaseAll()

	assert.Equal(t, 1, gateway.deletedCount[slice.URN().String()],
		"a sliver the scenario already deleted gets no second delete call")
}

func TestReleaseAllSuppressesTeardownFaults(t *testing.T) {
	o, gateway, authority := newTestOrchestrator(t)
	slice, err := o.AllocateSlice()
	require.NoError(t, err)
	_, err = o.CreateSliver(slice, []byte(`<rspec type="request"/>`))
	require.NoError(t, err)

	gateway.deleteFault = fault.New(fault.KindBusy, "try again later")
	o.ReleaseAll() // must not panic, and must still retire the slice

	assert.Equal(t, 1, gateway.deletedCount[slice.URN().String()], "exactly one delete attempt")
	assert.Equal(t, []string{slice.Name}, authority.deleted)
}

func TestReleaseAllLeavesReusedSliceAlone(t *testing.T) {
	gateway := newFakeGateway()
	authority := &fakeAuthorityClient{}
	o := New(gateway, Config{Authority: authority, ReuseCredential: fakeCredential(t, "operator-slice")})

	slice, err := o.AllocateSlice()
	require.NoError(t, err)
	_, err = o.CreateSliver(slice, []byte(`<rspec type="request"/>`))
	require.NoError(t, err)

	o.ReleaseAll()

	assert.Empty(t, gateway.slivers, "the reused slice's sliver is still torn down")
	assert.Empty(t, authority.deleted, "the operator's slice is not retired")
}

func TestShutdownLeavesSliverTracked(t *testing.T) {
	o, gateway, _ := newTestOrchestrator(t)
	slice, err := o.AllocateSlice()
	require.NoError(t, err)
	_, err = o.CreateSliver(slice, []byte(`<rspec type="request"/>`))
	require.NoError(t, err)

	ok, err := o.Shutdown(slice)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 1, gateway.shutdownCount)

	o.ReleaseAll()
	assert.Equal(t, 1, gateway.deletedCount[slice.URN().String()],
		"teardown still attempts a delete after shutdown")
}

func TestDoubleCreateKeepsOriginalSliverTracked(t *testing.T) {
	o, gateway, _ := newTestOrchestrator(t)
	slice, err := o.AllocateSlice()
	require.NoError(t, err)

	first, err := o.CreateSliver(slice, []byte(`<rspec type="request"/>`))
	require.NoError(t, err)

	_, err = o.CreateSliver(slice, []byte(`<rspec type="request"/>`))
	assert.Equal(t, fault.KindAlreadyExists, fault.KindOf(err))
	assert.Same(t, first, slice.sliver, "the live sliver record survives the failed second create")

	o.ReleaseAll()
	assert.Empty(t, gateway.slivers)
}
