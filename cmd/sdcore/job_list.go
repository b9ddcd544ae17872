package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/sd-io/sdcore/cmd"
)

// formatJobStatus colorizes a job status for display, mirroring how
// mutagen's sync list command flags paused/errored sessions.
func formatJobStatus(j jobSummary) string {
	if j.Error != "" {
		return color.RedString(j.Status)
	}
	if j.Status == "completed_with_errors" {
		return color.YellowString(j.Status)
	}
	if j.Status == "running" {
		return color.GreenString(j.Status)
	}
	return j.Status
}

func printJob(j jobSummary) {
	fmt.Printf("%s: %s\n", j.ID, j.Type)
	fmt.Printf("\tStatus: %s\n", formatJobStatus(j))
	if j.Total > 0 {
		fmt.Printf("\tProgress: %d/%d\n", j.Completed, j.Total)
	}
	if j.Message != "" {
		fmt.Printf("\tMessage: %s\n", j.Message)
	}
	if len(j.NonCriticalErrors) > 0 {
		color.Yellow("\tNon-critical errors:\n")
		for _, e := range j.NonCriticalErrors {
			color.Yellow("\t\t%s\n", e)
		}
	}
	if j.Error != "" {
		color.Red("\tError: %s\n", j.Error)
	}
}

func jobListMain(command *cobra.Command, arguments []string) error {
	if len(arguments) != 0 {
		return errors.New("unexpected arguments provided")
	}

	var result jobListResult
	params := jobListParams{Status: jobListConfiguration.status, Recent: jobListConfiguration.recent}
	if err := callDaemon(methodJobList, params, &result); err != nil {
		return errors.Wrap(err, "unable to list jobs")
	}

	if len(result.Jobs) == 0 {
		fmt.Println("No jobs found")
		return nil
	}
	for _, j := range result.Jobs {
		printJob(j)
	}
	return nil
}

var jobListCommand = &cobra.Command{
	Use:   "list",
	Short: "Lists background jobs",
	Run:   cmd.Mainify(jobListMain),
}

var jobListConfiguration struct {
	help   bool
	status string
	recent bool
}

func init() {
	flags := jobListCommand.Flags()
	flags.SortFlags = false
	flags.BoolVarP(&jobListConfiguration.help, "help", "h", false, "Show help information")
	flags.StringVar(&jobListConfiguration.status, "status", "", "Only list jobs in the specified status")
	flags.BoolVar(&jobListConfiguration.recent, "recent", false, "Only list the 10 most recently created jobs")
}
