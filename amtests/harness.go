package amtests

import (
	"fmt"
	"io"
	"io/ioutil"
	"time"

	"github.com/geni-nsf/am-contract-tests/amapi"
	"github.com/geni-nsf/am-contract-tests/credential"
	"github.com/geni-nsf/am-contract-tests/fault"
	"github.com/geni-nsf/am-contract-tests/framework"
	"github.com/geni-nsf/am-contract-tests/rspec"
)

const defaultStartupTimeout = time.Second * 30
const startupRetryInterval = time.Millisecond * 100

// RunConfig is the run-wide configuration for one conformance run. It is
// threaded explicitly into the harness and from there into every scenario;
// there is no package-level state.
type RunConfig struct {
	// URL is the aggregate manager's XML-RPC endpoint.
	URL string

	// APIVersion is the AM API major version to speak, 1 or 2.
	APIVersion int

	// AuthorityURL is the slice authority endpoint used to register fresh
	// slices. Empty means no slices can be created, and scenarios that need
	// one are skipped unless an existing slice is reused.
	AuthorityURL string

	// AuthorityName is the naming authority written into generated slice
	// URNs. The default matches the GENI reference clearinghouse.
	AuthorityName string

	// CertFile and KeyFile are the PEM client certificate and key presented
	// on every TLS connection.
	CertFile string
	KeyFile  string

	// StartupTimeout bounds the initial version-discovery probe.
	StartupTimeout time.Duration

	// Delay is slept before every aggregate call, for targets that refuse
	// rapid-fire requests. It is an accommodation, not a correctness
	// mechanism.
	Delay time.Duration

	// RSpecType and RSpecVersion name the descriptor format requested on
	// listings. Defaults are GENI 3.
	RSpecType    string
	RSpecVersion string

	// Strict makes scenarios insist on the precise conforming behavior where
	// the default mode tolerates common target quirks.
	Strict bool

	// StrictDuplicates forbids duplicate component identifiers in manifests
	// granted for unbound requests.
	StrictDuplicates bool

	// Destructive enables the shutdown scenario set, which leaves the target
	// needing operator attention afterward.
	Destructive bool

	// ReuseSlice names an existing slice to run in instead of registering
	// fresh ones. Reuse shifts slice teardown to the operator; sliver
	// teardown still runs.
	ReuseSlice string

	// SliceCredFile is the credential for the reused slice. When empty and
	// ReuseSlice is set, the credential is fetched from the authority.
	SliceCredFile string

	// Descriptor overrides. Empty fields fall back to the built-in defaults,
	// except UnboundRequestFile: there is no usable built-in unbound request,
	// so unbound scenarios are skipped when it is not set.
	RequestFile        string
	UnboundRequestFile string
	ManifestFile       string
	MalformedFile      string

	// UntrustedCredFile is a credential validly issued by an authority the
	// target does not trust. DelegatedCredFile is a credential re-issued by
	// its holder to another principal. Both are operator-supplied: the
	// harness cannot forge either.
	UntrustedCredFile string
	DelegatedCredFile string

	// ValidatorPath overrides the location of the external rspeclint tool.
	ValidatorPath string
}

func (cfg RunConfig) withDefaults() RunConfig {
	if cfg.APIVersion == 0 {
		cfg.APIVersion = 2
	}
	if cfg.AuthorityName == "" {
		cfg.AuthorityName = "geni:gpo:gcf"
	}
	if cfg.StartupTimeout == 0 {
		cfg.StartupTimeout = defaultStartupTimeout
	}
	if cfg.RSpecType == "" {
		cfg.RSpecType = "GENI"
	}
	if cfg.RSpecVersion == "" {
		cfg.RSpecVersion = "3"
	}
	return cfg
}

// artifacts is the set of documents and credentials a run works from, loaded
// once at startup so a missing or unreadable file fails fast.
type artifacts struct {
	request        []byte
	unboundRequest []byte
	manifestDoc    []byte
	malformedDoc   []byte
	untrustedCred  *credential.Credential
	delegatedCred  *credential.Credential
}

// Harness holds everything scenarios share: the run configuration, the
// aggregate's advertised version information from the startup probe, and the
// loaded artifacts. It hands out a fresh protocol client per test scope so
// each scenario's wire traffic lands in that scenario's debug log.
type Harness struct {
	cfg       RunConfig
	version   *amapi.VersionInfo
	artifacts artifacts
	validator rspec.Validator
	reuse     *credential.Credential

	newGateway   func(framework.Logger) (amapi.Gateway, error)
	newAuthority func(framework.Logger) (amapi.SliceAuthority, error)
}

// NewHarness connects to the aggregate manager, retrying until it answers a
// version-discovery call or the startup timeout passes, and loads the run's
// descriptor and credential artifacts.
func NewHarness(cfg RunConfig, debugLogger framework.Logger, startupOutput io.Writer) (*Harness, error) {
	if debugLogger == nil {
		debugLogger = framework.NullLogger()
	}
	cfg = cfg.withDefaults()
	if cfg.URL == "" {
		return nil, fmt.Errorf("an aggregate manager URL is required")
	}
	if cfg.APIVersion != 1 && cfg.APIVersion != 2 {
		return nil, fmt.Errorf("unsupported API version %d", cfg.APIVersion)
	}

	h := &Harness{cfg: cfg}
	h.newGateway = func(logger framework.Logger) (amapi.Gateway, error) {
		return amapi.New(amapi.Options{
			URL:        cfg.URL,
			APIVersion: cfg.APIVersion,
			CertFile:   cfg.CertFile,
			KeyFile:    cfg.KeyFile,
			Delay:      cfg.Delay,
			Logger:     logger,
		})
	}
	if cfg.AuthorityURL != "" {
		h.newAuthority = func(logger framework.Logger) (amapi.SliceAuthority, error) {
			return amapi.NewAuthorityClient(amapi.AuthorityOptions{
				URL:       cfg.AuthorityURL,
				Authority: cfg.AuthorityName,
				CertFile:  cfg.CertFile,
				KeyFile:   cfg.KeyFile,
				Logger:    logger,
			})
		}
	}

	if err := h.connect(debugLogger, startupOutput); err != nil {
		return nil, err
	}
	return h, nil
}

// connect performs the startup probe and loads artifacts. Transport faults
// are retried until the timeout, to ride out an aggregate that is still
// starting; any other fault means the aggregate answered and the answer is
// the answer.
func (h *Harness) connect(debugLogger framework.Logger, startupOutput io.Writer) error {
	probe, err := h.newGateway(debugLogger)
	if err != nil {
		return err
	}

	fmt.Fprintf(startupOutput, "Connecting to aggregate manager at %s", h.cfg.URL)
	deadline := time.Now().Add(h.cfg.StartupTimeout)
	for {
		fmt.Fprintf(startupOutput, ".")
		info, err := probe.GetVersion()
		if err == nil {
			fmt.Fprintln(startupOutput)
			fmt.Fprintf(startupOutput,
				"Aggregate reports API version %d (%s dialect), %d request and %d advertisement descriptor formats\n",
				info.APIMajor, info.Dialect, len(info.RequestVersions), len(info.AdVersions))
			h.version = info
			break
		}
		if !fault.IsKind(err, fault.KindTransport) {
			fmt.Fprintln(startupOutput)
			return fmt.Errorf("aggregate manager answered the version probe with: %w", err)
		}
		if !time.Now().Before(deadline) {
			fmt.Fprintln(startupOutput)
			return fmt.Errorf("timed out waiting for the aggregate manager, last error: %w", err)
		}
		time.Sleep(startupRetryInterval)
	}

	if err := h.loadArtifacts(); err != nil {
		return err
	}
	if err := h.resolveReusedSlice(debugLogger); err != nil {
		return err
	}
	h.validator = rspec.Validator{Path: h.cfg.ValidatorPath}
	return nil
}

func (h *Harness) loadArtifacts() error {
	var err error
	if h.artifacts.request, err = loadDocument(h.cfg.RequestFile, defaultRequestRSpec); err != nil {
		return fmt.Errorf("request descriptor: %w", err)
	}
	if h.artifacts.manifestDoc, err = loadDocument(h.cfg.ManifestFile, defaultManifestRSpec); err != nil {
		return fmt.Errorf("manifest descriptor: %w", err)
	}
	if h.artifacts.malformedDoc, err = loadDocument(h.cfg.MalformedFile, defaultMalformedRSpec); err != nil {
		return fmt.Errorf("malformed descriptor: %w", err)
	}
	if h.cfg.UnboundRequestFile != "" {
		if h.artifacts.unboundRequest, err = ioutil.ReadFile(h.cfg.UnboundRequestFile); err != nil {
			return fmt.Errorf("unbound request descriptor: %w", err)
		}
	}

	// The configured bound request must itself be usable, or every lifecycle
	// scenario would fail with a confusing aggregate-side error.
	doc, err := rspec.Parse(h.artifacts.request)
	if err != nil {
		return fmt.Errorf("request descriptor is not usable: %w", err)
	}
	if doc.Role != "" && doc.Role != rspec.RoleRequest {
		return fmt.Errorf("request descriptor has role %q, not request", doc.Role)
	}

	if h.cfg.UntrustedCredFile != "" {
		if h.artifacts.untrustedCred, err = credential.LoadFile(h.cfg.UntrustedCredFile); err != nil {
			return fmt.Errorf("untrusted credential: %w", err)
		}
	}
	if h.cfg.DelegatedCredFile != "" {
		if h.artifacts.delegatedCred, err = credential.LoadFile(h.cfg.DelegatedCredFile); err != nil {
			return fmt.Errorf("delegated credential: %w", err)
		}
	}
	return nil
}

// resolveReusedSlice turns the reuse configuration into a credential. A
// credential file wins; otherwise the slice authority is asked for the named
// slice, which the reference clearinghouse answers for existing slices too.
func (h *Harness) resolveReusedSlice(debugLogger framework.Logger) error {
	if h.cfg.SliceCredFile != "" {
		cred, err := credential.LoadFile(h.cfg.SliceCredFile)
		if err != nil {
			return fmt.Errorf("reused slice credential: %w", err)
		}
		h.reuse = cred
		return nil
	}
	if h.cfg.ReuseSlice == "" {
		return nil
	}
	if h.newAuthority == nil {
		return fmt.Errorf("reusing slice %q needs either a credential file or a slice authority", h.cfg.ReuseSlice)
	}
	authority, err := h.newAuthority(debugLogger)
	if err != nil {
		return err
	}
	cred, err := authority.CreateSlice(h.cfg.ReuseSlice)
	if err != nil {
		return fmt.Errorf("fetching credential for reused slice %q: %w", h.cfg.ReuseSlice, err)
	}
	h.reuse = cred
	return nil
}

func loadDocument(path, builtin string) ([]byte, error) {
	if path == "" {
		return []byte(builtin), nil
	}
	return ioutil.ReadFile(path)
}

// Version returns the aggregate's normalized version information from the
// startup probe.
func (h *Harness) Version() *amapi.VersionInfo {
	return h.version
}

// Config returns the run configuration.
func (h *Harness) Config() RunConfig {
	return h.cfg
}

// RSpecVersionPref is the descriptor format listings should ask for.
func (h *Harness) RSpecVersionPref() *amapi.RSpecVersion {
	return &amapi.RSpecVersion{Type: h.cfg.RSpecType, Version: h.cfg.RSpecVersion}
}

// HasSliceSource reports whether scenarios can obtain a slice at all, either
// from the authority or by reusing the operator's.
func (h *Harness) HasSliceSource() bool {
	return h.newAuthority != nil || h.reuse != nil
}

// MissingCapabilities lists the optional prerequisites this run does not
// have. Scenarios needing one of these are skipped, and the list is printed
// before the run so the skips are no surprise.
func (h *Harness) MissingCapabilities() []string {
	var missing []string
	if !h.HasSliceSource() {
		missing = append(missing, "slice-allocation")
	}
	if h.artifacts.unboundRequest == nil {
		missing = append(missing, "unbound-request")
	}
	if h.artifacts.untrustedCred == nil {
		missing = append(missing, "untrusted-credential")
	}
	if h.artifacts.delegatedCred == nil {
		missing = append(missing, "delegated-credential")
	}
	if !h.validator.Available() {
		missing = append(missing, "schema-validation")
	}
	if !h.cfg.Destructive {
		missing = append(missing, "destructive-shutdown")
	}
	return missing
}
