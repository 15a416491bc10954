package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/geni-nsf/am-contract-tests/framework"
)

func testFailure(path ...string) framework.TestResult {
	return framework.TestResult{TestID: framework.TestID{Path: path}}
}

func TestRerunCommandReplacesFilterSelections(t *testing.T) {
	var p commandParams
	cmd := p.rerunCommand(
		[]string{"./am-contract-tests", "-url", "https://am.example:12346", "-run", "version", "--skip=resources"},
		[]framework.TestResult{testFailure("lifecycle", "create grants a manifest")},
	)
	assert.Equal(t,
		"./am-contract-tests -url https://am.example:12346 -run '^lifecycle/create grants a manifest$'",
		cmd)
}

func TestRerunCommandKeepsUnrelatedFlags(t *testing.T) {
	var p commandParams
	cmd := p.rerunCommand(
		[]string{"./am-contract-tests", "-url", "https://am.example", "-strict", "-run=credentials"},
		[]framework.TestResult{testFailure("version", "discovery")},
	)
	assert.Equal(t,
		"./am-contract-tests -url https://am.example -strict -run '^version/discovery$'",
		cmd)
}

func TestRerunCommandOnePatternPerFailure(t *testing.T) {
	var p commandParams
	cmd := p.rerunCommand(
		[]string{"./am-contract-tests", "-url", "u"},
		[]framework.TestResult{
			testFailure("version", "discovery"),
			testFailure("resources", "advertisement is well-formed"),
		},
	)
	assert.Equal(t,
		"./am-contract-tests -url u"+
			" -run '^version/discovery$'"+
			" -run '^resources/advertisement is well-formed$'",
		cmd)
}

func TestRerunCommandQuotesRegexMetacharacters(t *testing.T) {
	var p commandParams
	cmd := p.rerunCommand(
		[]string{"t"},
		[]framework.TestResult{testFailure("resources", "listing (compressed)")},
	)
	assert.Equal(t, `t -run '^resources/listing \(compressed\)$'`, cmd)
}

func TestReadParsesFullSurface(t *testing.T) {
	var p commandParams
	ok := p.Read([]string{
		"cmd",
		"-url", "https://am.example:12346",
		"-api", "1",
		"-ch", "https://ch.example:8000",
		"-cert", "alice.pem",
		"-key", "alice.key",
		"-rspec", "request.xml",
		"-reuse-slice", "mon",
		"-strict",
		"-destructive",
		"-delay", "2s",
		"-run", "lifecycle",
		"-skip", "shutdown",
		"-monitoring",
	})
	require.True(t, ok)
	assert.Equal(t, "https://am.example:12346", p.cfg.URL)
	assert.Equal(t, 1, p.cfg.APIVersion)
	assert.Equal(t, "https://ch.example:8000", p.cfg.AuthorityURL)
	assert.Equal(t, "alice.pem", p.cfg.CertFile)
	assert.Equal(t, "request.xml", p.cfg.RequestFile)
	assert.Equal(t, "mon", p.cfg.ReuseSlice)
	assert.True(t, p.cfg.Strict)
	assert.True(t, p.cfg.Destructive)
	assert.Equal(t, 2*time.Second, p.cfg.Delay)
	assert.True(t, p.monitoring)

	assert.True(t, p.filters.AsFilter(framework.TestID{Path: []string{"lifecycle", "renew"}}))
	assert.False(t, p.filters.AsFilter(framework.TestID{Path: []string{"shutdown", "stops"}}))
	assert.False(t, p.filters.AsFilter(framework.TestID{Path: []string{"version", "discovery"}}))
}
