package main

import (
	"fmt"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/sd-io/sdcore/cmd"
)

func deviceListMain(command *cobra.Command, arguments []string) error {
	if len(arguments) != 0 {
		return errors.New("unexpected arguments provided")
	}

	var result deviceListResult
	if err := callDaemon(methodDeviceList, struct{}{}, &result); err != nil {
		return errors.Wrap(err, "unable to list devices")
	}

	if len(result.Devices) == 0 {
		fmt.Println("No paired devices")
		return nil
	}
	for _, d := range result.Devices {
		fmt.Printf("%s: %s\n", d.DeviceUUID, d.Name)
		fmt.Printf("\tOS: %s\n", d.OS)
		fmt.Printf("\tApp version: %s\n", d.AppVersion)
	}
	return nil
}

var deviceListCommand = &cobra.Command{
	Use:   "list",
	Short: "Lists devices paired with this one",
	Run:   cmd.Mainify(deviceListMain),
}

var deviceListConfiguration struct {
	help bool
}

func init() {
	flags := deviceListCommand.Flags()
	flags.SortFlags = false
	flags.BoolVarP(&deviceListConfiguration.help, "help", "h", false, "Show help information")
}
