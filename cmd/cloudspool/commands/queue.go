package commands

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/cloudspool/cloudspool/internal/cli/output"
	"github.com/cloudspool/cloudspool/pkg/store/models"
)

var (
	queueState string
	queueLimit int
)

var queueCmd = &cobra.Command{
	Use:   "queue",
	Short: "Inspect and manage the upload queue",
}

var queueListCmd = &cobra.Command{
	Use:   "list",
	Short: "List queued jobs",
	Long: `List upload jobs, newest first.

Examples:
  cloudspool queue list
  cloudspool queue list --state failed
  cloudspool queue list --state pending --limit 20`,
	RunE: runQueueList,
}

var queueStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show job counts per state",
	RunE:  runQueueStats,
}

var queueRetryCmd = &cobra.Command{
	Use:   "retry <id>",
	Short: "Requeue a failed job",
	Long:  `Put a failed job back in the queue with a clean attempt counter.`,
	Args:  cobra.ExactArgs(1),
	RunE:  runQueueRetry,
}

func init() {
	queueListCmd.Flags().StringVar(&queueState, "state", "", "Filter by state (pending, inflight, succeeded, failed)")
	queueListCmd.Flags().IntVar(&queueLimit, "limit", 50, "Maximum rows to show (0 for all)")

	queueCmd.AddCommand(queueListCmd)
	queueCmd.AddCommand(queueStatsCmd)
	queueCmd.AddCommand(queueRetryCmd)
}

func runQueueList(cmd *cobra.Command, args []string) error {
	_, st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	state := models.JobState(queueState)
	if queueState != "" && !state.Valid() {
		return fmt.Errorf("unknown job state: %s", queueState)
	}

	jobs, err := st.ListJobs(cmd.Context(), state, queueLimit)
	if err != nil {
		return err
	}
	if len(jobs) == 0 {
		fmt.Println("No jobs found.")
		return nil
	}

	table := output.NewTableData("ID", "SOURCE", "PATH", "STATE", "ATTEMPTS", "NEXT ATTEMPT", "LAST ERROR")
	for _, j := range jobs {
		lastErr := ""
		if j.LastError != nil {
			lastErr = *j.LastError
		}
		nextAt := ""
		if j.State == models.JobPending {
			nextAt = j.NextAttemptAt.Format(time.RFC3339)
		}
		table.AddRow(
			strconv.FormatUint(uint64(j.ID), 10),
			j.SourceName,
			j.LocalPath,
			string(j.State),
			strconv.Itoa(j.Attempts),
			nextAt,
			lastErr,
		)
	}
	return output.PrintTable(os.Stdout, table)
}

func runQueueStats(cmd *cobra.Command, args []string) error {
	_, st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	counts, err := st.CountJobsByState(cmd.Context())
	if err != nil {
		return err
	}

	pairs := make([][2]string, 0, 4)
	for _, state := range []models.JobState{models.JobPending, models.JobInFlight, models.JobSucceeded, models.JobFailed} {
		pairs = append(pairs, [2]string{string(state), strconv.FormatInt(counts[state], 10)})
	}
	return output.SimpleTable(os.Stdout, pairs)
}

func runQueueRetry(cmd *cobra.Command, args []string) error {
	_, st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	id, err := strconv.ParseUint(args[0], 10, 32)
	if err != nil {
		return fmt.Errorf("invalid job id: %s", args[0])
	}

	if err := st.ResetJob(cmd.Context(), uint(id), time.Now()); err != nil {
		return err
	}
	fmt.Printf("Job %d requeued\n", id)
	return nil
}
