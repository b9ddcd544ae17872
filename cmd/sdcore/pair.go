package main

import (
	"github.com/spf13/cobra"

	"github.com/sd-io/sdcore/cmd"
)

func pairMain(command *cobra.Command, arguments []string) error {
	command.Help()
	return nil
}

var pairCommand = &cobra.Command{
	Use:   "pair",
	Short: "Pairs this device with another over the peer-to-peer overlay",
	Run:   cmd.Mainify(pairMain),
}

var pairConfiguration struct {
	help bool
}

func init() {
	flags := pairCommand.Flags()
	flags.SortFlags = false
	flags.BoolVarP(&pairConfiguration.help, "help", "h", false, "Show help information")

	pairCommand.AddCommand(
		pairInitCommand,
		pairJoinCommand,
		pairStatusCommand,
	)
}
