package main

import (
	"fmt"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/sd-io/sdcore/cmd"
)

func jobPauseMain(command *cobra.Command, arguments []string) error {
	if len(arguments) != 1 {
		return errors.New("exactly one job identifier must be specified")
	}

	var result struct{}
	if err := callDaemon(methodJobPause, jobIDParams{ID: arguments[0]}, &result); err != nil {
		return errors.Wrap(err, "unable to pause job")
	}

	fmt.Println("Paused job", arguments[0])
	return nil
}

var jobPauseCommand = &cobra.Command{
	Use:   "pause <job>",
	Short: "Pauses a running job",
	Run:   cmd.Mainify(jobPauseMain),
}

var jobPauseConfiguration struct {
	help bool
}

func init() {
	flags := jobPauseCommand.Flags()
	flags.SortFlags = false
	flags.BoolVarP(&jobPauseConfiguration.help, "help", "h", false, "Show help information")
}
