// Package main is the entry point for cut, the CLIProxy usage tracker.
//
// Without a subcommand it runs the terminal dashboard. The subcommands expose
// the same services headless: a long-running collector with an HTTP API, one
// shot collection, windowed usage reports and rate-limit management.
package main

func main() {
	Execute()
}
