package main

import (
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/sd-io/sdcore/cmd"
	"github.com/sd-io/sdcore/pkg/daemon"
)

func daemonStopMain(command *cobra.Command, arguments []string) error {
	if len(arguments) != 0 {
		return errors.New("unexpected arguments provided")
	}

	conn, err := createDaemonConnection()
	if err != nil {
		// Already stopped (or never started) is not an error for "stop".
		return nil
	}
	defer conn.Close()

	// Ignore the response: the daemon may close the connection before it
	// has a chance to send one, since terminate tears down its listener.
	daemon.CallJSON(conn, "terminate", nil, nil)
	return nil
}

var daemonStopCommand = &cobra.Command{
	Use:   "stop",
	Short: "Stops the sdcore daemon if it's running",
	Run:   cmd.Mainify(daemonStopMain),
}

var daemonStopConfiguration struct {
	help bool
}

func init() {
	flags := daemonStopCommand.Flags()
	flags.SortFlags = false
	flags.BoolVarP(&daemonStopConfiguration.help, "help", "h", false, "Show help information")
}
