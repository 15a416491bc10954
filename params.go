package main

import (
	"flag"
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/alessio/shellescape"

	"github.com/geni-nsf/am-contract-tests/amtests"
	"github.com/geni-nsf/am-contract-tests/framework"
)

type commandParams struct {
	cfg        amtests.RunConfig
	configFile string
	filters    framework.RegexFilters
	monitoring bool
	list       bool
	debug      bool
	debugAll   bool
}

func (c *commandParams) Read(args []string) bool {
	fs := flag.NewFlagSet("", flag.ExitOnError)
	fs.StringVar(&c.cfg.URL, "url", "", "aggregate manager endpoint URL")
	fs.IntVar(&c.cfg.APIVersion, "api", 0, "AM API major version to speak (1 or 2, default 2)")
	fs.StringVar(&c.cfg.AuthorityURL, "ch", "", "slice authority (clearinghouse) endpoint URL")
	fs.StringVar(&c.cfg.AuthorityName, "authority", "", "naming authority for generated slice URNs")
	fs.StringVar(&c.cfg.CertFile, "cert", "", "PEM client certificate file")
	fs.StringVar(&c.cfg.KeyFile, "key", "", "PEM client key file")
	fs.StringVar(&c.configFile, "config", "", "JSONC configuration file (flags override its values)")
	fs.StringVar(&c.cfg.RequestFile, "rspec", "", "bound request descriptor file")
	fs.StringVar(&c.cfg.UnboundRequestFile, "unbound-rspec", "", "unbound (role-only) request descriptor file")
	fs.StringVar(&c.cfg.ManifestFile, "manifest-rspec", "", "manifest-role descriptor file, submitted where a request belongs")
	fs.StringVar(&c.cfg.MalformedFile, "malformed-rspec", "", "non-well-formed descriptor file")
	fs.StringVar(&c.cfg.UntrustedCredFile, "untrusted-cred", "", "credential file issued by an authority the aggregate does not trust")
	fs.StringVar(&c.cfg.DelegatedCredFile, "delegated-cred", "", "delegated credential file")
	fs.StringVar(&c.cfg.SliceCredFile, "slice-cred", "", "credential file for the reused slice")
	fs.StringVar(&c.cfg.ReuseSlice, "reuse-slice", "", "name of an existing slice to run in instead of creating fresh ones")
	fs.StringVar(&c.cfg.RSpecType, "rspec-type", "", "descriptor format type to request on listings (default GENI)")
	fs.StringVar(&c.cfg.RSpecVersion, "rspec-version", "", "descriptor format version to request on listings (default 3)")
	fs.StringVar(&c.cfg.ValidatorPath, "rspeclint", "", "path to the rspeclint schema validator")
	fs.BoolVar(&c.cfg.Strict, "strict", false, "insist on precise conforming behavior instead of tolerating common quirks")
	fs.BoolVar(&c.cfg.StrictDuplicates, "strict-duplicates", false, "forbid duplicate component ids in manifests granted for unbound requests")
	fs.BoolVar(&c.cfg.Destructive, "destructive", false, "enable the destructive shutdown scenarios")
	fs.DurationVar(&c.cfg.Delay, "delay", 0, "delay inserted before every aggregate call, for rate-sensitive targets")
	fs.DurationVar(&c.cfg.StartupTimeout, "timeout", 0, "how long to wait for the aggregate to answer version discovery")
	fs.Var(&c.filters.MustMatch, "run", "regex pattern(s) to select tests to run")
	fs.Var(&c.filters.MustNotMatch, "skip", "regex pattern(s) to select tests not to run")
	fs.BoolVar(&c.monitoring, "monitoring", false, "emit one MONITORING line per test instead of console output")
	fs.BoolVar(&c.list, "list", false, "print the scenario catalog and exit")
	fs.BoolVar(&c.debug, "debug", false, "enable debug logging for failed tests")
	fs.BoolVar(&c.debugAll, "debug-all", false, "enable debug logging for all tests")

	if err := fs.Parse(args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		fs.Usage()
		return false
	}

	if c.configFile != "" {
		setFlags := map[string]bool{}
		fs.Visit(func(f *flag.Flag) { setFlags[f.Name] = true })
		if err := applyConfigFile(&c.cfg, c.configFile, setFlags); err != nil {
			fmt.Fprintln(os.Stderr, err)
			return false
		}
	}

	if c.cfg.URL == "" && !c.list {
		fmt.Fprintln(os.Stderr, "-url is required")
		fs.Usage()
		return false
	}
	return true
}

// rerunCommand builds a command line that re-runs exactly the failed tests:
// the original invocation (args is the full os.Args) with any -run/-skip
// selections replaced by one -run pattern per failure.
func (c *commandParams) rerunCommand(args []string, failures []framework.TestResult) string {
	var b commandBuilder
	skipNext := false
	for i, arg := range args {
		switch {
		case skipNext:
			skipNext = false
		case i > 0 && isFilterFlag(arg, false):
			skipNext = true
		case i > 0 && isFilterFlag(arg, true):
		default:
			b.add(arg)
		}
	}
	for _, f := range failures {
		b.add("-run", "^"+regexp.QuoteMeta(f.TestID.String())+"$")
	}
	return b.String()
}

func isFilterFlag(arg string, withValue bool) bool {
	for _, name := range []string{"run", "skip"} {
		for _, dashes := range []string{"-", "--"} {
			if withValue && strings.HasPrefix(arg, dashes+name+"=") {
				return true
			}
			if !withValue && arg == dashes+name {
				return true
			}
		}
	}
	return false
}

type commandBuilder []string

func (b *commandBuilder) add(args ...string) {
	for _, a := range args {
		*b = append(*b, shellescape.Quote(a))
	}
}

func (b commandBuilder) String() string {
	return strings.Join(b, " ")
}
