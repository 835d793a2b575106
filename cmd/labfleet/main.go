// Package main is the entry point for the labfleet CLI.
//
// Labfleet orchestrates multi-tenant training labs on a sandbox automation
// platform: per-trainee app duplication, sandbox provisioning, student links
// and end-of-session teardown.
//
// Usage:
//
//	labfleet [command] [flags]
//
// Commands:
//
//	setup      Run the training environment setup workflow
//	teardown   Unwind a training environment
//	monitor    Serve the trainee status API for a running session
package main

import "github.com/labfleet/labfleet/internal/cli"

// Version information (set via ldflags at build time)
var (
	Version   = "dev"
	GitCommit = "unknown"
)

func main() {
	cli.SetVersion(Version, GitCommit)
	cli.Execute()
}
