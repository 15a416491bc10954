package main

import (
	"encoding/json"
	"fmt"
	"io/ioutil"
	"time"

	"github.com/tailscale/hujson"

	"github.com/geni-nsf/am-contract-tests/amtests"
)

// fileConfig mirrors the flag surface with snake_case keys. Every field is a
// pointer so an absent key is distinguishable from a zero value; durations are
// strings in time.ParseDuration syntax. Comments and trailing commas are
// allowed in the file.
type fileConfig struct {
	URL              *string `json:"url"`
	API              *int    `json:"api"`
	AuthorityURL     *string `json:"ch"`
	AuthorityName    *string `json:"authority"`
	CertFile         *string `json:"cert"`
	KeyFile          *string `json:"key"`
	RequestFile      *string `json:"rspec"`
	UnboundFile      *string `json:"unbound_rspec"`
	ManifestFile     *string `json:"manifest_rspec"`
	MalformedFile    *string `json:"malformed_rspec"`
	UntrustedCred    *string `json:"untrusted_cred"`
	DelegatedCred    *string `json:"delegated_cred"`
	SliceCred        *string `json:"slice_cred"`
	ReuseSlice       *string `json:"reuse_slice"`
	RSpecType        *string `json:"rspec_type"`
	RSpecVersion     *string `json:"rspec_version"`
	ValidatorPath    *string `json:"rspeclint"`
	Strict           *bool   `json:"strict"`
	StrictDuplicates *bool   `json:"strict_duplicates"`
	Destructive      *bool   `json:"destructive"`
	Delay            *string `json:"delay"`
	Timeout          *string `json:"timeout"`
}

// applyConfigFile fills cfg from a JSONC file. Values given on the command
// line win: a field is taken from the file only when its flag was not set.
func applyConfigFile(cfg *amtests.RunConfig, path string, flagWasSet map[string]bool) error {
	data, err := ioutil.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config file: %w", err)
	}
	fc, err := parseConfigFile(data)
	if err != nil {
		return fmt.Errorf("config file %s: %w", path, err)
	}

	setString := func(flagName string, dst *string, src *string) {
		if src != nil && !flagWasSet[flagName] {
			*dst = *src
		}
	}
	setBool := func(flagName string, dst *bool, src *bool) {
		if src != nil && !flagWasSet[flagName] {
			*dst = *src
		}
	}
	setDuration := func(flagName string, dst *time.Duration, src *string) error {
		if src == nil || flagWasSet[flagName] {
			return nil
		}
		d, err := time.ParseDuration(*src)
		if err != nil {
			return fmt.Errorf("config file %s: %s: %w", path, flagName, err)
		}
		*dst = d
		return nil
	}

	setString("url", &cfg.URL, fc.URL)
	if fc.API != nil && !flagWasSet["api"] {
		cfg.APIVersion = *fc.API
	}
	setString("ch", &cfg.AuthorityURL, fc.AuthorityURL)
	setString("authority", &cfg.AuthorityName, fc.AuthorityName)
	setString("cert", &cfg.CertFile, fc.CertFile)
	setString("key", &cfg.KeyFile, fc.KeyFile)
	setString("rspec", &cfg.RequestFile, fc.RequestFile)
	setString("unbound-rspec", &cfg.UnboundRequestFile, fc.UnboundFile)
	setString("manifest-rspec", &cfg.ManifestFile, fc.ManifestFile)
	setString("malformed-rspec", &cfg.MalformedFile, fc.MalformedFile)
	setString("untrusted-cred", &cfg.UntrustedCredFile, fc.UntrustedCred)
	setString("delegated-cred", &cfg.DelegatedCredFile, fc.DelegatedCred)
	setString("slice-cred", &cfg.SliceCredFile, fc.SliceCred)
	setString("reuse-slice", &cfg.ReuseSlice, fc.ReuseSlice)
	setString("rspec-type", &cfg.RSpecType, fc.RSpecType)
	setString("rspec-version", &cfg.RSpecVersion, fc.RSpecVersion)
	setString("rspeclint", &cfg.ValidatorPath, fc.ValidatorPath)
	setBool("strict", &cfg.Strict, fc.Strict)
	setBool("strict-duplicates", &cfg.StrictDuplicates, fc.StrictDuplicates)
	setBool("destructive", &cfg.Destructive, fc.Destructive)
	if err := setDuration("delay", &cfg.Delay, fc.Delay); err != nil {
		return err
	}
	return setDuration("timeout", &cfg.StartupTimeout, fc.Timeout)
}

func parseConfigFile(data []byte) (*fileConfig, error) {
	standardized, err := hujson.Standardize(data)
	if err != nil {
		return nil, fmt.Errorf("invalid JSONC: %w", err)
	}
	var fc fileConfig
	if err := json.Unmarshal(standardized, &fc); err != nil {
		return nil, fmt.Errorf("invalid JSON: %w", err)
	}
	return &fc, nil
}
