package main

import (
	"fmt"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/sd-io/sdcore/cmd"
)

func pairInitMain(command *cobra.Command, arguments []string) error {
	if len(arguments) != 0 {
		return errors.New("unexpected arguments provided")
	}

	var initResult pairInitResult
	if err := callDaemon(methodPairInit, struct{}{}, &initResult); err != nil {
		return errors.Wrap(err, "unable to start pairing")
	}

	fmt.Println("Pairing code:", initResult.Mnemonic)
	fmt.Println("Enter this code on the other device with 'sdcore pair join' before", initResult.ExpiresAt.Local().Format(time.Kitchen))

	if !pairInitConfiguration.wait {
		return nil
	}

	fmt.Println("Waiting for a peer to join...")
	for {
		var status pairStatusResult
		if err := callDaemon(methodPairStatus, struct{}{}, &status); err != nil {
			return errors.Wrap(err, "unable to query pairing status")
		}
		if !status.Active {
			if status.Error != "" {
				return errors.New(status.Error)
			}
			if status.DeviceUUID != "" {
				fmt.Println("Paired with", status.Name, "("+status.DeviceUUID+")")
			}
			return nil
		}
		time.Sleep(500 * time.Millisecond)
	}
}

var pairInitCommand = &cobra.Command{
	Use:   "init",
	Short: "Generates a pairing code that another device can join",
	Run:   cmd.Mainify(pairInitMain),
}

var pairInitConfiguration struct {
	help bool
	wait bool
}

func init() {
	flags := pairInitCommand.Flags()
	flags.SortFlags = false
	flags.BoolVarP(&pairInitConfiguration.help, "help", "h", false, "Show help information")
	flags.BoolVar(&pairInitConfiguration.wait, "wait", true, "Wait and report once a peer joins")
}
