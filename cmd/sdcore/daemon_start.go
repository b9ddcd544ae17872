package main

import (
	"os"
	"os/exec"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/sd-io/sdcore/cmd"
)

func daemonStartMain(command *cobra.Command, arguments []string) error {
	if len(arguments) != 0 {
		return errors.New("unexpected arguments provided")
	}

	executablePath, err := os.Executable()
	if err != nil {
		return errors.Wrap(err, "unable to determine executable path")
	}

	args := []string{"daemon", "run"}
	if daemonStartConfiguration.enableNetworking {
		args = append(args, "--enable-networking")
	}
	if daemonStartConfiguration.instance != "" {
		args = append(args, "--instance", daemonStartConfiguration.instance)
	}
	if daemonStartConfiguration.foreground {
		args = append(args, "--foreground")
	}

	if daemonStartConfiguration.foreground {
		process := &exec.Cmd{
			Path:   executablePath,
			Args:   append([]string{"sdcore"}, args...),
			Stdin:  os.Stdin,
			Stdout: os.Stdout,
			Stderr: os.Stderr,
		}
		return process.Run()
	}

	process := &exec.Cmd{
		Path: executablePath,
		Args: append([]string{"sdcore"}, args...),
	}
	if err := process.Start(); err != nil {
		return errors.Wrap(err, "unable to fork daemon")
	}
	return nil
}

var daemonStartCommand = &cobra.Command{
	Use:   "start",
	Short: "Starts the sdcore daemon if it's not already running",
	Run:   cmd.Mainify(daemonStartMain),
}

var daemonStartConfiguration struct {
	help              bool
	foreground        bool
	enableNetworking  bool
	instance          string
}

func init() {
	flags := daemonStartCommand.Flags()
	flags.SortFlags = false
	flags.BoolVarP(&daemonStartConfiguration.help, "help", "h", false, "Show help information")
	flags.BoolVar(&daemonStartConfiguration.foreground, "foreground", false, "Run the daemon in the foreground instead of forking it")
	flags.BoolVar(&daemonStartConfiguration.enableNetworking, "enable-networking", false, "Enable the peer-to-peer networking overlay (pairing, sync, drops)")
	flags.StringVar(&daemonStartConfiguration.instance, "instance", "", "Name this device uses to identify itself to peers")
}
