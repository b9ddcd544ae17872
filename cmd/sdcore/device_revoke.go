package main

import (
	"fmt"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/sd-io/sdcore/cmd"
)

func deviceRevokeMain(command *cobra.Command, arguments []string) error {
	if len(arguments) != 1 {
		return errors.New("exactly one device identifier must be specified")
	}

	var result struct{}
	if err := callDaemon(methodDeviceRevoke, deviceRevokeParams{DeviceUUID: arguments[0]}, &result); err != nil {
		return errors.Wrap(err, "unable to revoke device")
	}

	fmt.Println("Revoked device", arguments[0])
	return nil
}

var deviceRevokeCommand = &cobra.Command{
	Use:   "revoke <device>",
	Short: "Revokes a paired device's trust, severing its access",
	Run:   cmd.Mainify(deviceRevokeMain),
}

var deviceRevokeConfiguration struct {
	help bool
}

func init() {
	flags := deviceRevokeCommand.Flags()
	flags.SortFlags = false
	flags.BoolVarP(&deviceRevokeConfiguration.help, "help", "h", false, "Show help information")
}
