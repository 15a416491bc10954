package rspec

import (
	"fmt"
	"strings"
)

// CompareOptions adjusts how strictly a manifest is held to its request.
type CompareOptions struct {
	// ForbidDuplicateIDs fails the comparison if the manifest lists the same
	// component more than once. Off by default: some aggregates legitimately
	// repeat an identifier on nested elements of one granted component.
	ForbidDuplicateIDs bool
}

// Compare checks a manifest against the request that produced it.
//
// For a bound request the granted set must be exactly the requested set, and
// the error reports which identifiers are missing and which are unexpected.
// For an unbound request the aggregate chose the components, so the manifest
// need only show that something was granted.
func Compare(request, manifest *Document, opts CompareOptions) error {
	var problems []string

	if opts.ForbidDuplicateIDs {
		if dups := manifest.DuplicateIDs(); len(dups) > 0 {
			problems = append(problems,
				fmt.Sprintf("manifest repeats component ids: %s", strings.Join(dups, ", ")))
		}
	}

	if request.Bound() {
		var missing, extra []string
		for _, id := range request.IDSet() {
			if manifest.ComponentIDs[id] == 0 {
				missing = append(missing, id)
			}
		}
		for _, id := range manifest.IDSet() {
			if request.ComponentIDs[id] == 0 {
				extra = append(extra, id)
			}
		}
		if len(missing) > 0 {
			problems = append(problems,
				fmt.Sprintf("requested components absent from manifest: %s", strings.Join(missing, ", ")))
		}
		if len(extra) > 0 {
			problems = append(problems,
				fmt.Sprintf("manifest contains components that were not requested: %s", strings.Join(extra, ", ")))
		}
	} else if len(manifest.ComponentIDs) == 0 {
		problems = append(problems, "manifest names no components for an accepted request")
	}

	if len(problems) > 0 {
		return fmt.Errorf("manifest does not match request:\n  %s", strings.Join(problems, "\n  "))
	}
	return nil
}
