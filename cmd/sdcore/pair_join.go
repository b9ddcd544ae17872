package main

import (
	"fmt"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/sd-io/sdcore/cmd"
)

func pairJoinMain(command *cobra.Command, arguments []string) error {
	if len(arguments) != 1 {
		return errors.New("exactly one pairing code must be specified")
	}

	var result pairJoinResult
	if err := callDaemon(methodPairJoin, pairJoinParams{Mnemonic: arguments[0]}, &result); err != nil {
		return errors.Wrap(err, "unable to join pairing")
	}

	fmt.Println("Paired with", result.Name, "("+result.DeviceUUID+")")
	return nil
}

var pairJoinCommand = &cobra.Command{
	Use:   "join <code>",
	Short: "Joins a pairing code generated by another device",
	Run:   cmd.Mainify(pairJoinMain),
}

var pairJoinConfiguration struct {
	help bool
}

func init() {
	flags := pairJoinCommand.Flags()
	flags.SortFlags = false
	flags.BoolVarP(&pairJoinConfiguration.help, "help", "h", false, "Show help information")
}
