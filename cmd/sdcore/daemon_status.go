package main

import (
	"fmt"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/sd-io/sdcore/cmd"
	"github.com/sd-io/sdcore/pkg/daemon"
)

func daemonStatusMain(command *cobra.Command, arguments []string) error {
	if len(arguments) != 0 {
		return errors.New("unexpected arguments provided")
	}

	conn, err := createDaemonConnection()
	if err != nil {
		fmt.Println("Status: Not running")
		return nil
	}
	defer conn.Close()

	resp, err := daemon.Call(conn, daemon.Request{Method: "version"})
	if err != nil {
		return errors.Wrap(err, "unable to query daemon version")
	}

	fmt.Println("Status: Running")
	fmt.Println("Version:", resp.Version)
	return nil
}

var daemonStatusCommand = &cobra.Command{
	Use:   "status",
	Short: "Shows the status of the sdcore daemon",
	Run:   cmd.Mainify(daemonStatusMain),
}

var daemonStatusConfiguration struct {
	help bool
}

func init() {
	flags := daemonStatusCommand.Flags()
	flags.SortFlags = false
	flags.BoolVarP(&daemonStatusConfiguration.help, "help", "h", false, "Show help information")
}
