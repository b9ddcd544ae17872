// Package cmd provides small helpers shared by every command in
// cmd/sdcore, mirroring mutagen's own cmd package: a Cobra entry-point
// adapter that still allows defer-based cleanup, and colorized
// warning/error/fatal printers.
package cmd

import (
	"github.com/spf13/cobra"
)

// Mainify wraps a Cobra entry point that returns an error (so it can rely
// on defer-based cleanup) into the standard Cobra Run signature, printing
// and exiting on a non-nil error.
func Mainify(entry func(*cobra.Command, []string) error) func(*cobra.Command, []string) {
	return func(command *cobra.Command, arguments []string) {
		if err := entry(command, arguments); err != nil {
			Fatal(err)
		}
	}
}
