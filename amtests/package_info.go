// Package amtests contains the aggregate-manager conformance scenarios and
// their supporting API.
//
// Harness infrastructure that is not specific to the aggregate-manager
// domain, such as test contexts, filtering, and result reporting, is in the
// lower-level framework package. The protocol client, descriptor tooling, and
// lifecycle orchestration live in amapi, rspec, credential, and workflow;
// this package ties them together under a scenario catalog.
package amtests
