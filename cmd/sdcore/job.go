package main

import (
	"github.com/spf13/cobra"

	"github.com/sd-io/sdcore/cmd"
)

func jobMain(command *cobra.Command, arguments []string) error {
	command.Help()
	return nil
}

var jobCommand = &cobra.Command{
	Use:   "job",
	Short: "Inspects and controls background jobs",
	Run:   cmd.Mainify(jobMain),
}

var jobConfiguration struct {
	help bool
}

func init() {
	flags := jobCommand.Flags()
	flags.SortFlags = false
	flags.BoolVarP(&jobConfiguration.help, "help", "h", false, "Show help information")

	jobCommand.AddCommand(
		jobListCommand,
		jobInfoCommand,
		jobMonitorCommand,
		jobPauseCommand,
		jobResumeCommand,
		jobCancelCommand,
		jobClearCommand,
	)
}
