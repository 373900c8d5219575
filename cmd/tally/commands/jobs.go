package commands

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dyluth/tally/internal/jobs"
	"github.com/dyluth/tally/internal/printer"
)

var (
	jobsOutputFormat string
	jobsKeyGlob      string
	jobsExpiring     int
	jobsUntracked    bool
)

var jobsCmd = &cobra.Command{
	Use:   "jobs [KEY]",
	Short: "Inspect tasks recorded in the ledger",
	Long: `Inspect recorded tasks in list or get mode.

List Mode (no KEY):
  Displays jobs matching filters as a table or JSONL stream.

Get Mode (with KEY):
  Displays one job as pretty-printed JSON. Accepts a unique key prefix.

Filters (list mode only):
  --key        - Glob pattern on the full key ("3f*")
  --expiring   - Jobs a reconcile at this generation would expire
  --untracked  - Jobs created without a reset generation

Examples:
  # List all jobs
  tally jobs

  # Pipe external ids to jq
  tally jobs --output=jsonl | jq -r .external_id

  # Show one job
  tally jobs 3f2a9c`,
	Args: cobra.MaximumNArgs(1),
	RunE: runJobs,
}

func init() {
	jobsCmd.Flags().StringVarP(&jobsOutputFormat, "output", "o", "default", "Output format: default or jsonl (ignored in get mode)")
	jobsCmd.Flags().StringVar(&jobsKeyGlob, "key", "", "Filter by key (glob pattern)")
	jobsCmd.Flags().IntVar(&jobsExpiring, "expiring", -1, "Only jobs a reconcile at this generation would expire")
	jobsCmd.Flags().BoolVar(&jobsUntracked, "untracked", false, "Only jobs without a reset generation")
	rootCmd.AddCommand(jobsCmd)
}

func runJobs(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	isGetMode := len(args) > 0

	var outputFormat jobs.OutputFormat
	if !isGetMode {
		switch jobsOutputFormat {
		case "default":
			outputFormat = jobs.OutputFormatDefault
		case "jsonl":
			outputFormat = jobs.OutputFormatJSONL
		default:
			return printer.Error(
				"invalid output format",
				fmt.Sprintf("Unknown format: %s", jobsOutputFormat),
				[]string{"Valid formats: default, jsonl"},
			)
		}
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	store, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		return printer.Error("ledger unavailable", err.Error(), nil)
	}
	defer closeStore()

	if isGetMode {
		err := jobs.GetJob(ctx, store, args[0], cmd.OutOrStdout())
		switch {
		case err == nil:
			return nil
		case jobs.IsNotFound(err):
			return printer.Error(err.Error(), "No task is recorded under that key.", []string{"List all jobs:\n  tally jobs"})
		case errors.Is(err, jobs.ErrAmbiguousKey):
			return printer.Error("ambiguous key", err.Error(), []string{"Use more characters of the key"})
		default:
			return fmt.Errorf("failed to get job: %w", err)
		}
	}

	filters := &jobs.FilterCriteria{KeyGlob: jobsKeyGlob, Untracked: jobsUntracked}
	if jobsExpiring >= 0 {
		filters.Expiring = &jobsExpiring
	}

	if err := jobs.ListJobs(ctx, store, ledgerLabel(cfg), outputFormat, filters, cmd.OutOrStdout()); err != nil {
		return fmt.Errorf("failed to list jobs: %w", err)
	}
	return nil
}
