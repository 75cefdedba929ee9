package main

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/steadyhq/steady/pkg/client"
)

var (
	enqPriority   int
	enqRetryLimit int
	enqRetryDelay time.Duration
	enqBackoff    bool
	enqStartAfter string
	enqKeepFor    time.Duration
)

var enqueueCmd = &cobra.Command{
	Use:   "enqueue <name> <payload>",
	Short: "Enqueue a job",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		name := args[0]
		payload := json.RawMessage(args[1])
		if !json.Valid(payload) {
			return fmt.Errorf("payload must be valid JSON")
		}

		var opts []client.EnqueueOption
		if enqPriority != 0 {
			opts = append(opts, client.WithPriority(enqPriority))
		}
		if enqRetryLimit >= 0 {
			opts = append(opts, client.WithRetryLimit(enqRetryLimit))
		}
		if enqRetryDelay > 0 {
			opts = append(opts, client.WithRetryDelay(enqRetryDelay))
		}
		if enqBackoff {
			opts = append(opts, client.WithBackoff())
		}
		if enqStartAfter != "" {
			t, err := time.Parse(time.RFC3339, enqStartAfter)
			if err != nil {
				return fmt.Errorf("invalid --start-after (RFC3339): %w", err)
			}
			opts = append(opts, client.WithStartAfter(t))
		}
		if enqKeepFor > 0 {
			opts = append(opts, client.WithKeepFor(enqKeepFor))
		}

		result, err := api().Enqueue(name, payload, opts...)
		if err != nil {
			return err
		}
		if outputJSON {
			return printJSON(result)
		}
		fmt.Printf("enqueued %s (%s)\n", result.JobID, result.State)
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:   "status <job-id>",
	Short: "Show a job's state and attempt history",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		job, err := api().Status(args[0])
		if err != nil {
			return err
		}
		if outputJSON {
			return printJSON(job)
		}
		fmt.Printf("%s  %s  state=%s  attempts=%d/%d\n",
			job.ID, job.Name, job.State, job.RetryCount, job.RetryLimit)
		if job.StartedOn != nil {
			fmt.Printf("  started:   %s\n", job.StartedOn.Format(time.RFC3339))
		}
		if job.CompletedOn != nil {
			fmt.Printf("  completed: %s\n", job.CompletedOn.Format(time.RFC3339))
		}
		for _, je := range job.Errors {
			fmt.Printf("  attempt %d: %s\n", je.Attempt, je.Error)
		}
		return nil
	},
}

var cancelCmd = &cobra.Command{
	Use:   "cancel <job-id>",
	Short: "Cancel a job that has not started running",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := api().Cancel(args[0]); err != nil {
			return err
		}
		fmt.Printf("cancelled %s\n", args[0])
		return nil
	},
}

var queuesCmd = &cobra.Command{
	Use:   "queues",
	Short: "List job names with live state counts",
	RunE: func(cmd *cobra.Command, args []string) error {
		counts, err := api().Queues()
		if err != nil {
			return err
		}
		if outputJSON {
			return printJSON(counts)
		}
		for _, qc := range counts {
			fmt.Printf("%s  created=%d active=%d retry=%d completed=%d failed=%d cancelled=%d\n",
				qc.Name, qc.Created, qc.Active, qc.Retry, qc.Completed, qc.Failed, qc.Cancelled)
		}
		return nil
	},
}

func init() {
	enqueueCmd.Flags().IntVar(&enqPriority, "priority", 0, "Priority (higher is claimed first)")
	enqueueCmd.Flags().IntVar(&enqRetryLimit, "retry-limit", -1, "Attempts allowed (server default when unset)")
	enqueueCmd.Flags().DurationVar(&enqRetryDelay, "retry-delay", 0, "Base delay between attempts")
	enqueueCmd.Flags().BoolVar(&enqBackoff, "backoff", false, "Double the delay on every failed attempt")
	enqueueCmd.Flags().StringVar(&enqStartAfter, "start-after", "", "Defer eligibility until this RFC3339 time")
	enqueueCmd.Flags().DurationVar(&enqKeepFor, "keep-for", 0, "Retention horizon for the terminal job row")
}
