package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/sd-io/sdcore/pkg/sdcore"
)

func rootMain(command *cobra.Command, arguments []string) {
	// Print version information, if requested.
	if rootConfiguration.version {
		fmt.Println(sdcore.VersionCurrent.String())
		return
	}

	// If no flags were set, then print help information and bail. Arguments
	// can't reach this point on their own: Cobra mistakes an unrecognized
	// argument for a subcommand and reports an error before Run is called.
	command.Help()
}

var rootCommand = &cobra.Command{
	Use:   "sdcore",
	Short: "sdcore manages a device's libraries, jobs, and peer connections",
	Run:   rootMain,
}

var rootConfiguration struct {
	help    bool
	version bool
}

func init() {
	flags := rootCommand.Flags()
	flags.BoolVarP(&rootConfiguration.help, "help", "h", false, "Show help information")
	flags.BoolVarP(&rootConfiguration.version, "version", "V", false, "Show version information")

	// Disable Cobra's alphabetical command sorting in help output.
	cobra.EnableCommandSorting = false

	// Disable Cobra's mousetrap check: it assumes the binary is only ever
	// launched from a console, which isn't true when daemon start forks it.
	cobra.MousetrapHelpText = ""

	// Register commands here, rather than in individual init functions, so
	// their order in help output is controlled.
	rootCommand.AddCommand(
		daemonCommand,
		jobCommand,
		pairCommand,
		deviceCommand,
		dropCommand,
	)
}

func main() {
	if err := rootCommand.Execute(); err != nil {
		os.Exit(1)
	}
}
