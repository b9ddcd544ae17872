package main

import (
	"github.com/spf13/cobra"

	"github.com/sd-io/sdcore/cmd"
)

func deviceMain(command *cobra.Command, arguments []string) error {
	command.Help()
	return nil
}

var deviceCommand = &cobra.Command{
	Use:   "device",
	Short: "Manages devices paired with this one",
	Run:   cmd.Mainify(deviceMain),
}

var deviceConfiguration struct {
	help bool
}

func init() {
	flags := deviceCommand.Flags()
	flags.SortFlags = false
	flags.BoolVarP(&deviceConfiguration.help, "help", "h", false, "Show help information")

	deviceCommand.AddCommand(
		deviceListCommand,
		deviceRevokeCommand,
	)
}
