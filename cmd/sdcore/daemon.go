package main

import (
	"github.com/spf13/cobra"

	"github.com/sd-io/sdcore/cmd"
)

func daemonMain(command *cobra.Command, arguments []string) error {
	command.Help()
	return nil
}

var daemonCommand = &cobra.Command{
	Use:   "daemon",
	Short: "Controls the sdcore daemon lifecycle",
	Run:   cmd.Mainify(daemonMain),
}

var daemonConfiguration struct {
	help bool
}

func init() {
	flags := daemonCommand.Flags()
	flags.SortFlags = false
	flags.BoolVarP(&daemonConfiguration.help, "help", "h", false, "Show help information")

	daemonCommand.AddCommand(
		daemonRunCommand,
		daemonStartCommand,
		daemonStopCommand,
		daemonStatusCommand,
	)
}
