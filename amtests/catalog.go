package amtests

import (
	"fmt"
	"io"

	"github.com/geni-nsf/am-contract-tests/framework"
)

// Scenario is one named conformance check. The description states what a
// conforming aggregate must do, and appears in the catalog listing and at the
// top of the scenario's debug output.
type Scenario struct {
	Name        string
	Description string
	Run         func(*T)
}

// ScenarioGroup is a themed set of scenarios run under one name.
type ScenarioGroup struct {
	Name        string
	Description string
	Scenarios   []Scenario
}

// AllGroups returns the full scenario catalog in run order.
func AllGroups() []ScenarioGroup {
	return []ScenarioGroup{
		versionGroup(),
		resourceGroup(),
		credentialGroup(),
		lifecycleGroup(),
		isolationGroup(),
		shutdownGroup(),
	}
}

// RunTestSuite runs every catalog scenario that passes the filter and returns
// the accumulated results.
func RunTestSuite(
	harness *Harness,
	filter framework.Filter,
	testLogger framework.TestLogger,
) framework.Results {
	return framework.Run(filter, testLogger, func(c *framework.Context) {
		t := newTestScope(c, harness)
		for _, group := range AllGroups() {
			group := group
			t.Run(group.Name, func(t *T) {
				for _, scenario := range group.Scenarios {
					scenario := scenario
					t.Run(scenario.Name, func(t *T) {
						t.Debug("%s", scenario.Description)
						scenario.Run(t)
					})
				}
			})
		}
	})
}

// PrintCatalog writes every scenario's name and description, for the -list
// option.
func PrintCatalog(dest io.Writer) {
	for _, group := range AllGroups() {
		fmt.Fprintf(dest, "%s: %s\n", group.Name, group.Description)
		for _, scenario := range group.Scenarios {
			fmt.Fprintf(dest, "  %s/%s\n", group.Name, scenario.Name)
			fmt.Fprintf(dest, "      %s\n", scenario.Description)
		}
		fmt.Fprintln(dest)
	}
}
