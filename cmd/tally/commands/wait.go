package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/dyluth/tally/internal/engine"
	"github.com/dyluth/tally/internal/jobs"
	"github.com/dyluth/tally/internal/printer"
)

var (
	waitTimeout  time.Duration
	waitInterval time.Duration
	waitAnswers  bool
)

var waitCmd = &cobra.Command{
	Use:   "wait KEY",
	Short: "Block until a recorded task has all its assignments",
	Long: `Poll the marketplace until the task recorded under KEY is complete.

KEY may be a unique prefix, as shown by 'tally jobs'.

Examples:
  # Wait up to an hour, printing the collected answers
  tally wait 3f2a9c --timeout 1h --answers`,
	Args: cobra.ExactArgs(1),
	RunE: runWait,
}

func init() {
	waitCmd.Flags().DurationVar(&waitTimeout, "timeout", 0, "Give up after this long (default from tally.yml)")
	waitCmd.Flags().DurationVar(&waitInterval, "interval", 0, "Delay between polls (default from tally.yml)")
	waitCmd.Flags().BoolVar(&waitAnswers, "answers", false, "Print the collected answers as JSON when complete")
	rootCmd.AddCommand(waitCmd)
}

func runWait(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	store, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		return printer.Error("ledger unavailable", err.Error(), nil)
	}
	defer closeStore()

	job, err := jobs.Find(ctx, store, args[0])
	if err != nil {
		if jobs.IsNotFound(err) {
			return printer.Error(
				err.Error(),
				"No task is recorded under that key.",
				[]string{"List recorded tasks:\n  tally jobs"},
			)
		}
		return err
	}

	eng, err := buildEngine(ctx, cfg, store)
	if err != nil {
		return printer.Error("startup failed", err.Error(), nil)
	}

	opts := waitOptions(cfg)
	if cmd.Flags().Changed("timeout") {
		opts.Timeout = waitTimeout
	}
	if cmd.Flags().Changed("interval") {
		opts.Interval = waitInterval
	}

	res, err := eng.WaitForTask(ctx, job.Key, opts)
	if err != nil {
		return fmt.Errorf("failed to wait for task: %w", err)
	}
	printer.Status(res.Key, res.Status.String(), res.Completed, res.Expected)

	switch res.Status {
	case engine.StatusComplete:
		if waitAnswers {
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(res.Answers)
		}
		return nil
	case engine.StatusTimedOut:
		return printer.Error(
			"task timed out",
			fmt.Sprintf("Task %s had %d of %d assignments after %s.", res.ExternalID, res.Completed, res.Expected, res.Elapsed.Round(time.Second)),
			[]string{fmt.Sprintf("Keep waiting:\n  tally wait %s", res.Key)},
		)
	default:
		return printer.Error("task not found", fmt.Sprintf("Task %s disappeared from the ledger while waiting.", res.Key), nil)
	}
}
