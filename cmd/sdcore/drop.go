package main

import (
	"github.com/spf13/cobra"

	"github.com/sd-io/sdcore/cmd"
)

func dropMain(command *cobra.Command, arguments []string) error {
	command.Help()
	return nil
}

var dropCommand = &cobra.Command{
	Use:   "drop",
	Short: "Sends files directly to a paired, reachable device",
	Run:   cmd.Mainify(dropMain),
}

var dropConfiguration struct {
	help bool
}

func init() {
	flags := dropCommand.Flags()
	flags.SortFlags = false
	flags.BoolVarP(&dropConfiguration.help, "help", "h", false, "Show help information")

	dropCommand.AddCommand(
		dropSendCommand,
	)
}
