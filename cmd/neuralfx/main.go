// Package main is the neuralfx command line host.
//
// Usage:
//
//	neuralfx [flags] <command> [args]
//
// Commands:
//
//	render   - process a wav file offline
//	live     - process default input device into default output device
//	inspect  - print and validate a model schema
//	version  - show version information
package main

import (
	"fmt"
	"os"

	"pipelined.dev/neural/cmd/neuralfx/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
