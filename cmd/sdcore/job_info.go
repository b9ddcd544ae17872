package main

import (
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/sd-io/sdcore/cmd"
)

func jobInfoMain(command *cobra.Command, arguments []string) error {
	if len(arguments) != 1 {
		return errors.New("exactly one job identifier must be specified")
	}

	var result jobInfoResult
	if err := callDaemon(methodJobInfo, jobIDParams{ID: arguments[0]}, &result); err != nil {
		return errors.Wrap(err, "unable to query job")
	}

	printJob(result.Job)
	return nil
}

var jobInfoCommand = &cobra.Command{
	Use:   "info <job>",
	Short: "Shows detailed information about a job",
	Run:   cmd.Mainify(jobInfoMain),
}

var jobInfoConfiguration struct {
	help bool
}

func init() {
	flags := jobInfoCommand.Flags()
	flags.SortFlags = false
	flags.BoolVarP(&jobInfoConfiguration.help, "help", "h", false, "Show help information")
}
