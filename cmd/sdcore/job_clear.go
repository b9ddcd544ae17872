package main

import (
	"fmt"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/sd-io/sdcore/cmd"
)

func jobClearMain(command *cobra.Command, arguments []string) error {
	if len(arguments) != 0 {
		return errors.New("unexpected arguments provided")
	}

	var result jobClearResult
	params := jobClearParams{Failed: jobClearConfiguration.failed}
	if err := callDaemon(methodJobClear, params, &result); err != nil {
		return errors.Wrap(err, "unable to clear jobs")
	}

	fmt.Printf("Cleared %d job(s)\n", result.Removed)
	return nil
}

var jobClearCommand = &cobra.Command{
	Use:   "clear",
	Short: "Removes jobs that are no longer queued or running from the job list",
	Run:   cmd.Mainify(jobClearMain),
}

var jobClearConfiguration struct {
	help   bool
	failed bool
}

func init() {
	flags := jobClearCommand.Flags()
	flags.SortFlags = false
	flags.BoolVarP(&jobClearConfiguration.help, "help", "h", false, "Show help information")
	flags.BoolVar(&jobClearConfiguration.failed, "failed", false, "Only clear failed jobs")
}
