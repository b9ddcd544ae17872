package main

import (
	"fmt"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/sd-io/sdcore/cmd"
)

func jobResumeMain(command *cobra.Command, arguments []string) error {
	if len(arguments) != 1 {
		return errors.New("exactly one job identifier must be specified")
	}

	var result struct{}
	if err := callDaemon(methodJobResume, jobIDParams{ID: arguments[0]}, &result); err != nil {
		return errors.Wrap(err, "unable to resume job")
	}

	fmt.Println("Resumed job", arguments[0])
	return nil
}

var jobResumeCommand = &cobra.Command{
	Use:   "resume <job>",
	Short: "Resumes a paused job",
	Run:   cmd.Mainify(jobResumeMain),
}

var jobResumeConfiguration struct {
	help bool
}

func init() {
	flags := jobResumeCommand.Flags()
	flags.SortFlags = false
	flags.BoolVarP(&jobResumeConfiguration.help, "help", "h", false, "Show help information")
}
