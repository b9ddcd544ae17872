package main

import (
	"fmt"
	"path/filepath"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/sd-io/sdcore/cmd"
)

func dropSendMain(command *cobra.Command, arguments []string) error {
	if len(arguments) != 2 {
		return errors.New("a device identifier and a file path must be specified")
	}
	deviceUUID, path := arguments[0], arguments[1]

	absPath, err := filepath.Abs(path)
	if err != nil {
		return errors.Wrap(err, "unable to resolve file path")
	}

	var result struct{}
	params := dropSendParams{DeviceUUID: deviceUUID, FilePath: absPath}
	if err := callDaemon(methodDropSend, params, &result); err != nil {
		return errors.Wrap(err, "unable to send file")
	}

	fmt.Println("Sent", filepath.Base(absPath), "to", deviceUUID)
	return nil
}

var dropSendCommand = &cobra.Command{
	Use:   "send <device> <file>",
	Short: "Sends a file to a paired device",
	Run:   cmd.Mainify(dropSendMain),
}

var dropSendConfiguration struct {
	help bool
}

func init() {
	flags := dropSendCommand.Flags()
	flags.SortFlags = false
	flags.BoolVarP(&dropSendConfiguration.help, "help", "h", false, "Show help information")
}
