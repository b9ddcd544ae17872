package main

import (
	"fmt"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/sd-io/sdcore/cmd"
)

// jobMonitorUpdateInterval bounds how often job.monitor polls job.info, to
// keep CLI and daemon CPU usage reasonable, mirroring mutagen's monitor
// command's own minimum update interval.
const jobMonitorUpdateInterval = 250 * time.Millisecond

func jobMonitorMain(command *cobra.Command, arguments []string) error {
	if len(arguments) != 1 {
		return errors.New("exactly one job identifier must be specified")
	}
	id := arguments[0]

	var lineLength int
	printStatus := func(line string) {
		fmt.Printf("\r%-*s", lineLength, line)
		lineLength = len(line)
	}
	defer fmt.Println()

	for {
		var result jobInfoResult
		if err := callDaemon(methodJobInfo, jobIDParams{ID: id}, &result); err != nil {
			return errors.Wrap(err, "unable to query job")
		}

		status := result.Job.Status
		if result.Job.Total > 0 {
			status = fmt.Sprintf("%s [%d/%d] %s", status, result.Job.Completed, result.Job.Total, result.Job.Message)
		}
		printStatus(status)

		switch result.Job.Status {
		case "completed", "completed_with_errors", "failed", "canceled":
			if result.Job.Error != "" {
				return errors.New(result.Job.Error)
			}
			return nil
		}

		time.Sleep(jobMonitorUpdateInterval)
	}
}

var jobMonitorCommand = &cobra.Command{
	Use:   "monitor <job>",
	Short: "Displays streaming status for a job",
	Run:   cmd.Mainify(jobMonitorMain),
}

var jobMonitorConfiguration struct {
	help bool
}

func init() {
	flags := jobMonitorCommand.Flags()
	flags.SortFlags = false
	flags.BoolVarP(&jobMonitorConfiguration.help, "help", "h", false, "Show help information")
}
