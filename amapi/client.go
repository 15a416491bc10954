package amapi

import (
	"bytes"
	"compress/zlib"
	"crypto/tls"
	"encoding/base64"
	"errors"
	"fmt"
	"io/ioutil"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/kolo/xmlrpc"

	"github.com/geni-nsf/am-contract-tests/fault"
	"github.com/geni-nsf/am-contract-tests/framework"
)

const defaultTimeout = time.Second * 30

// Options configures a Client.
type Options struct {
	// URL is the aggregate's XML-RPC endpoint.
	URL string

	// APIVersion is 1 or 2. Zero means 2.
	APIVersion int

	// CertFile and KeyFile hold the PEM client certificate and key used to
	// authenticate the TLS connection.
	CertFile string
	KeyFile  string

	// Timeout bounds each phase of a call: dialing, TLS, and waiting for
	// the response headers. Zero means 30 seconds.
	Timeout time.Duration

	// Delay is slept before every call, for aggregates that throttle
	// rapid-fire requests.
	Delay time.Duration

	Logger framework.Logger
}

// Client calls one aggregate manager. It is safe to create several clients
// for the same aggregate with different credentials or versions.
type Client struct {
	rpc    *xmlrpc.Client
	api    int
	delay  time.Duration
	logger framework.Logger
}

var _ Gateway = (*Client)(nil)

// New returns a Client for the aggregate at opts.URL.
func New(opts Options) (*Client, error) {
	api := opts.APIVersion
	if api == 0 {
		api = 2
	}
	if api != 1 && api != 2 {
		return nil, fmt.Errorf("unsupported API version %d", api)
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
	return &Client{rpc: rpc, api: api, delay: opts.Delay, logger: logger}, nil
}

// newTransport builds the mutually-authenticated TLS transport. Server
// certificates are not verified: aggregates run with self-signed
// certificates, and authorization rests on the credentials inside each call.
func newTransport(certFile, keyFile string, timeout time.Duration) (http.RoundTripper, error) {
	if timeout == 0 {
		timeout = defaultTimeout
	}
	tlsConfig := &tls.Config{InsecureSkipVerify: true}
	if certFile != "" {
		cert, err := tls.LoadX509KeyPair(certFile, keyFile)
		if err != nil {
			return nil, fmt.Errorf("loading client certificate: %w", err)
		}
		tlsConfig.Certificates = []tls.Certificate{cert}
	}
	return &http.Transport{
		TLSClientConfig:       tlsConfig,
		DialContext:           (&net.Dialer{Timeout: timeout}).DialContext,
		TLSHandshakeTimeout:   timeout,
		ResponseHeaderTimeout: timeout,
	}, nil
}

// GetVersion implements Gateway.
func (c *Client) GetVersion() (*VersionInfo, error) {
	var args []interface{}
	if c.api >= 2 {
		args = append(args, map[string]interface{}{})
	}
	value, err := c.invoke("GetVersion", args)
	if err != nil {
		return nil, err
	}
	info, err := NormalizeVersion(value)
	if err != nil {
		return nil, err
	}
	c.logger.Printf("GetVersion: api %d, %s dialect, %d request and %d ad descriptor formats",
		info.APIMajor, info.Dialect, len(info.RequestVersions), len(info.AdVersions))
	return info, nil
}

// ListResources implements Gateway.
func (c *Client) ListResources(credentials []string, options ListOptions) ([]byte, error) {
	opts := map[string]interface{}{
		"geni_available":  options.Available,
		"geni_compressed": options.Compressed,
	}
	what := "advertisement"
	if slice, ok := options.Slice.Get(); ok {
		opts["geni_slice_urn"] = slice
		what = "manifest for " + slice
	}
	if options.Version != nil {
		opts["geni_rspec_version"] = map[string]interface{}{
			"type":    options.Version.Type,
			"version": options.Version.Version,
		}
	}
	c.logger.Printf("ListResources: %s (available=%t compressed=%t)",
		what, options.Available, options.Compressed)
	value, err := c.invoke("ListResources", []interface{}{credentialValues(credentials), opts})
	if err != nil {
		return nil, err
	}
	doc, err := decodeDescriptor("ListResources", value, options.Compressed)
	if err != nil {
		return nil, err
	}
	c.logger.Printf("ListResources: %d bytes of descriptor", len(doc))
	return doc, nil
}

// CreateSliver implements Gateway.
func (c *Client) CreateSliver(sliceURN string, credentials []string, request []byte, users []User) ([]byte, error) {
	userValues := make([]interface{}, 0, len(users))
	for _, u := range users {
		userValues = append(userValues, u.toValue())
	}
	args := []interface{}{sliceURN, credentialValues(credentials), string(request), userValues}
	if c.api >= 2 {
		args = append(args, map[string]interface{}{})
	}
	c.logger.Printf("CreateSliver: slice %s, %d byte request, %d users",
		sliceURN, len(request), len(users))
	value, err := c.invoke("CreateSliver", args)
	if err != nil {
		return nil, err
	}
	manifest, err := decodeDescriptor("CreateSliver", value, false)
	if err != nil {
		return nil, err
	}
	c.logger.Printf("CreateSliver: %d byte manifest", len(manifest))
	return manifest, nil
}

// SliverStatus implements Gateway.
func (c *Client) SliverStatus(sliceURN string, credentials []string) (*StatusRecord, error) {
	args := []interface{}{sliceURN, credentialValues(credentials)}
	if c.api >= 2 {
		args = append(args, map[string]interface{}{})
	}
	c.logger.Printf("SliverStatus: slice %s", sliceURN)
	value, err := c.invoke("SliverStatus", args)
	if err != nil {
		return nil, err
	}
	record, err := normalizeStatus(value)
	if err != nil {
		return nil, err
	}
	c.logger.Printf("SliverStatus: %s (%d resources)", record.State, len(record.Resources))
	return record, nil
}

// RenewSliver implements Gateway.
func (c *Client) RenewSliver(sliceURN string, credentials []string, expiration time.Time) (bool, error) {
	expires := expiration.UTC().Format(time.RFC3339)
	args := []interface{}{sliceURN, credentialValues(credentials), expires}
	if c.api >= 2 {
		args = append(args, map[string]interface{}{})
	}
	c.logger.Printf("RenewSliver: slice %s until %s", sliceURN, expires)
	value, err := c.invoke("RenewSliver", args)
	if err != nil {
		return false, err
	}
	return truthyValue("RenewSliver", value)
}

// DeleteSliver implements Gateway.
func (c *Client) DeleteSliver(sliceURN string, credentials []string) (bool, error) {
	args := []interface{}{sliceURN, credentialValues(credentials)}
	if c.api >= 2 {
		args = append(args, map[string]interface{}{})
	}
	c.logger.Printf("DeleteSliver: slice %s", sliceURN)
	value, err := c.invoke("DeleteSliver", args)
	if err != nil {
		return false, err
	}
	return truthyValue("DeleteSliver", value)
}

// Shutdown implements Gateway.
func (c *Client) Shutdown(sliceURN string, credentials []string) (bool, error) {
	args := []interface{}{sliceURN, credentialValues(credentials)}
	if c.api >= 2 {
		args = append(args, map[string]interface{}{})
	}
	c.logger.Printf("Shutdown: slice %s", sliceURN)
	value, err := c.invoke("Shutdown", args)
	if err != nil {
		return false, err
	}
	return truthyValue("Shutdown", value)
}

// invoke performs one XML-RPC call and folds every failure channel into a
// *fault.Fault: transport errors, version 1 faults, and non-success result
// envelopes.
func (c *Client) invoke(op string, args []interface{}) (interface{}, error) {
	if c.delay > 0 {
		time.Sleep(c.delay)
	}
	var reply interface{}
	if err := c.rpc.Call(op, args, &reply); err != nil {
		var fe xmlrpc.FaultError
		if errors.As(err, &fe) {
			f := classifyFaultString(op, fe.String)
			c.logger.Printf("%s: fault: %s", op, f)
			return nil, f
		}
		c.logger.Printf("%s: transport error: %s", op, err)
		return nil, fault.Wrapf(fault.KindTransport, err, "%s: %s", op, err)
	}
	return c.unwrap(op, reply)
}

// unwrap recognizes a result envelope by its shape rather than by the
// configured version: some aggregates wrap version 1 responses anyway, and a
// harness that trusted configuration over evidence would misreport them.
func (c *Client) unwrap(op string, raw interface{}) (interface{}, error) {
	if env, ok := raw.(map[string]interface{}); ok {
		if codeRaw, present := env["code"]; present {
			if code, err := envelopeCode(codeRaw); err == nil {
				if code == codeSuccess {
					return env["value"], nil
				}
				output, _ := env["output"].(string)
				f := classifyEnvelope(op, code, output)
				c.logger.Printf("%s: %s", op, f)
				return nil, f
			}
		}
	}
	if c.api >= 2 {
		return nil, fault.Newf(fault.KindProtocol, "%s: response carries no result envelope", op)
	}
	return raw, nil
}

// envelopeCode reads the envelope's result code, which is nominally a struct
// with a geni_code member but arrives as a bare integer from some aggregates.
func envelopeCode(raw interface{}) (int, error) {
	if m, ok := raw.(map[string]interface{}); ok {
		return intish(m["geni_code"])
	}
	return intish(raw)
}

func credentialValues(credentials []string) []interface{} {
	values := make([]interface{}, 0, len(credentials))
	for _, c := range credentials {
		values = append(values, c)
	}
	return values
}

// decodeDescriptor extracts descriptor bytes from a response value,
// reversing the optional base64+zlib transport encoding. An aggregate that
// was asked for compression but returned plain markup is tolerated.
func decodeDescriptor(op string, value interface{}, compressed bool) ([]byte, error) {
	var raw []byte
	switch v := value.(type) {
	case string:
		raw = []byte(v)
	case []byte:
		raw = v
	default:
		return nil, fault.Newf(fault.KindProtocol, "%s: descriptor value is %T, not a string", op, value)
	}
	if !compressed || bytes.HasPrefix(bytes.TrimSpace(raw), []byte("<")) {
		return raw, nil
	}
	if decoded, err := base64.StdEncoding.DecodeString(stripSpace(string(raw))); err == nil {
		raw = decoded
	}
	r, err := zlib.NewReader(bytes.NewReader(raw))
	if err != nil {
		return nil, fault.Wrapf(fault.KindProtocol, err, "%s: compressed descriptor does not inflate: %s", op, err)
	}
	defer r.Close()
	doc, err := ioutil.ReadAll(r)
	if err != nil {
		return nil, fault.Wrapf(fault.KindProtocol, err, "%s: compressed descriptor is truncated: %s", op, err)
	}
	return doc, nil
}

func stripSpace(s string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case ' ', '\t', '\n', '\r':
			return -1
		}
		return r
	}, s)
}

// truthyValue normalizes the boolean results that arrive as bool, integer,
// or string depending on the aggregate's XML-RPC library. False with no
// fault is a meaningful outcome: a clean refusal.
func truthyValue(op string, value interface{}) (bool, error) {
	switch v := value.(type) {
	case bool:
		return v, nil
	case int64:
		return v != 0, nil
	case int:
		return v != 0, nil
	case string:
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "true", "1", "yes":
			return true, nil
		case "false", "0", "no", "":
			return false, nil
		}
		return false, fault.Newf(fault.KindProtocol, "%s: result %q is not a boolean", op, v)
	case nil:
		return false, nil
	default:
		return false, fault.Newf(fault.KindProtocol, "%s: result is %T, not a boolean", op, value)
	}
}
