package main

import (
	"fmt"
	"log"
	"os"

	"github.com/geni-nsf/am-contract-tests/amtests"
	"github.com/geni-nsf/am-contract-tests/framework"
)

func main() {
	var params commandParams
	if !params.Read(os.Args) {
		os.Exit(1)
	}

	if params.list {
		amtests.PrintCatalog(os.Stdout)
		return
	}

	mainDebugLogger := framework.NullLogger()
	if params.debugAll {
		mainDebugLogger = log.New(os.Stdout, "", log.LstdFlags)
	}

	harness, err := amtests.NewHarness(params.cfg, mainDebugLogger, os.Stdout)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Aggregate manager error: %s\n", err)
		os.Exit(1)
	}

	fmt.Println()
	framework.PrintFilterDescription(params.filters, harness.MissingCapabilities())

	var testLogger framework.TestLogger
	if params.monitoring {
		testLogger = &MonitoringTestLogger{}
	} else {
		fmt.Println("Running test suite")
		testLogger = &ConsoleTestLogger{
			DebugOutputOnFailure: params.debug || params.debugAll,
			DebugOutputOnSuccess: params.debugAll,
		}
	}

	results := amtests.RunTestSuite(harness, params.filters.AsFilter, testLogger)

	if !params.monitoring {
		fmt.Println()
		framework.PrintResults(os.Stdout, results)
		if !results.OK() {
			fmt.Println()
			fmt.Println("To re-run only the failed tests:")
			fmt.Printf("  %s\n", params.rerunCommand(os.Args, results.Failures))
		}
	}
	if !results.OK() {
		os.Exit(1)
	}
}
