package main

import (
	"fmt"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/sd-io/sdcore/cmd"
)

func jobCancelMain(command *cobra.Command, arguments []string) error {
	if len(arguments) != 1 {
		return errors.New("exactly one job identifier must be specified")
	}

	var result struct{}
	if err := callDaemon(methodJobCancel, jobIDParams{ID: arguments[0]}, &result); err != nil {
		return errors.Wrap(err, "unable to cancel job")
	}

	fmt.Println("Canceled job", arguments[0])
	return nil
}

var jobCancelCommand = &cobra.Command{
	Use:   "cancel <job>",
	Short: "Cancels a job",
	Run:   cmd.Mainify(jobCancelMain),
}

var jobCancelConfiguration struct {
	help bool
}

func init() {
	flags := jobCancelCommand.Flags()
	flags.SortFlags = false
	flags.BoolVarP(&jobCancelConfiguration.help, "help", "h", false, "Show help information")
}
