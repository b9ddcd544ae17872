package main

import (
	"fmt"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/sd-io/sdcore/cmd"
)

func pairStatusMain(command *cobra.Command, arguments []string) error {
	if len(arguments) != 0 {
		return errors.New("unexpected arguments provided")
	}

	var status pairStatusResult
	if err := callDaemon(methodPairStatus, struct{}{}, &status); err != nil {
		return errors.Wrap(err, "unable to query pairing status")
	}

	if status.Active {
		fmt.Println("Status: Waiting for a peer")
		return nil
	}
	if status.Error != "" {
		fmt.Println("Status: Failed -", status.Error)
		return nil
	}
	if status.DeviceUUID == "" {
		fmt.Println("Status: No pairing attempt has been made")
		return nil
	}
	fmt.Println("Status: Completed")
	fmt.Println("Device:", status.Name, "("+status.DeviceUUID+")")
	return nil
}

var pairStatusCommand = &cobra.Command{
	Use:   "status",
	Short: "Shows the status of the most recent pairing attempt",
	Run:   cmd.Mainify(pairStatusMain),
}

var pairStatusConfiguration struct {
	help bool
}

func init() {
	flags := pairStatusCommand.Flags()
	flags.SortFlags = false
	flags.BoolVarP(&pairStatusConfiguration.help, "help", "h", false, "Show help information")
}
