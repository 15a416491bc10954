package amapi

import (
	"errors"
	"fmt"
	"time"

	"github.com/kolo/xmlrpc"

	"github.com/geni-nsf/am-contract-tests/credential"
	"github.com/geni-nsf/am-contract-tests/fault"
	"github.com/geni-nsf/am-contract-tests/framework"
)

// SliceAuthority issues and retires the slices that tests run against.
type SliceAuthority interface {
	// CreateSlice registers a slice under the given short name and returns
	// its credential.
	CreateSlice(name string) (*credential.Credential, error)

	// DeleteSlice retires the named slice.
	DeleteSlice(name string) error
}

// AuthorityOptions configures an AuthorityClient.
type AuthorityOptions struct {
	// URL is the clearinghouse's XML-RPC endpoint.
	URL string

	// Authority is the naming authority for slice URNs, such as
	// "geni:gpo:gcf".
	Authority string

	CertFile string
	KeyFile  string
	Timeout  time.Duration
	Logger   framework.Logger
}

// AuthorityClient talks to a reference clearinghouse, which registers slices
// and hands back their credentials.
type AuthorityClient struct {
	rpc       *xmlrpc.Client
	authority string
	logger    framework.Logger
}

var _ SliceAuthority = (*AuthorityClient)(nil)

// NewAuthorityClient returns a client for the clearinghouse at opts.URL.
func NewAuthorityClient(opts AuthorityOptions) (*AuthorityClient, error) {
	if opts.Authority == "" {
		return nil, fmt.Errorf("slice authority name is required to build slice URNs")
	}
	logger := opts.Logger
	if logger == nil {
		logger = framework.NullLogger()
	}
	transport, err := newTransport(opts.CertFile, opts.KeyFile, opts.Timeout)
	if err != nil {
		return nil, err
	}
	rpc, err := xmlrpc.NewClient(opts.URL, transport)
	if err != nil {
		return nil, fmt.Errorf("creating XML-RPC client for %s: %w", opts.URL, err)
	}
	return &AuthorityClient{rpc: rpc, authority: opts.Authority, logger: logger}, nil
}

// CreateSlice implements SliceAuthority.
func (a *AuthorityClient) CreateSlice(name string) (*credential.Credential, error) {
	urn := credential.MakeSliceURN(a.authority, name)
	a.logger.Printf("CreateSlice: %s", urn)
	value, err := a.call("CreateSlice", []interface{}{urn.String()})
	if err != nil {
		return nil, err
	}
	raw, ok := value.(string)
	if !ok {
		return nil, fault.Newf(fault.KindProtocol, "CreateSlice: result is %T, not a credential", value)
	}
	cred, err := credential.Parse([]byte(raw))
	if err != nil {
		return nil, fmt.Errorf("CreateSlice returned an unusable credential: %w", err)
	}
	a.logger.Printf("CreateSlice: credential for %s expires %s", cred.TargetURN, cred.Expires)
	return cred, nil
}

// DeleteSlice implements SliceAuthority.
func (a *AuthorityClient) DeleteSlice(name string) error {
	urn := credential.MakeSliceURN(a.authority, name)
	a.logger.Printf("DeleteSlice: %s", urn)
	if _, err := a.call("DeleteSlice", []interface{}{urn.String()}); err != nil {
		return err
	}
	return nil
}

func (a *AuthorityClient) call(op string, args []interface{}) (interface{}, error) {
	var reply interface{}
	if err := a.rpc.Call(op, args, &reply); err != nil {
		var fe xmlrpc.FaultError
		if errors.As(err, &fe) {
			f := classifyFaultString(op, fe.String)
			a.logger.Printf("%s: fault: %s", op, f)
			return nil, f
		}
		a.logger.Printf("%s: transport error: %s", op, err)
		return nil, fault.Wrapf(fault.KindTransport, err, "%s: %s", op, err)
	}
	return reply, nil
}
