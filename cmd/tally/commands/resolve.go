package commands

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dyluth/tally/internal/engine"
	"github.com/dyluth/tally/internal/printer"
	"github.com/dyluth/tally/internal/resolve"
	"github.com/dyluth/tally/pkg/crowd"
	"github.com/dyluth/tally/pkg/ledger"
)

var (
	resolveFile        string
	resolveOutput      string
	resolveResetLedger bool
	resolveReconcile   int
)

var resolveCmd = &cobra.Command{
	Use:   "resolve [ENTITY...]",
	Short: "Deduplicate entities with crowd verification",
	Long: `Resolve a list of entity names to one representative per duplicate group.

Candidate pairs are chosen by a cheap similarity check, batched into tasks,
and posted to the marketplace. The command blocks until every task is
answered. Restarting an interrupted run reuses the tasks already posted.

Entities come from arguments, or one per line from --file ("-" for stdin).

Output Formats:
  default - One representative per line
  json    - Full resolution: candidates, confirmed duplicates, components and task keys

Examples:
  # Resolve a short list
  tally resolve ketchup catsup mustard relish

  # Resolve a file, expiring tasks left over from generation 3 first
  tally resolve --file groceries.txt --reconcile 3`,
	RunE: runResolve,
}

func init() {
	resolveCmd.Flags().StringVarP(&resolveFile, "file", "f", "", "Read entities from a file, one per line (- for stdin)")
	resolveCmd.Flags().StringVarP(&resolveOutput, "output", "o", "default", "Output format: default or json")
	resolveCmd.Flags().BoolVar(&resolveResetLedger, "reset-ledger", false, "Forget every recorded job before starting")
	resolveCmd.Flags().IntVar(&resolveReconcile, "reconcile", -1, "Expire and forget jobs tagged with this generation or later before starting")
	rootCmd.AddCommand(resolveCmd)
}

// resolutionOutput is the JSON shape of --output=json.
type resolutionOutput struct {
	RunID           string       `json:"run_id"`
	Representatives []string     `json:"representatives"`
	Components      [][]string   `json:"components"`
	Candidates      []crowd.Pair `json:"candidates"`
	Duplicates      []crowd.Pair `json:"duplicates"`
	TaskKeys        []string     `json:"task_keys"`
}

func runResolve(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	if resolveOutput != "default" && resolveOutput != "json" {
		return printer.Error(
			"invalid output format",
			fmt.Sprintf("Unknown format: %s", resolveOutput),
			[]string{"Valid formats: default, json"},
		)
	}

	entities, err := readEntities(args, resolveFile)
	if err != nil {
		return printer.Error("could not read entities", err.Error(), nil)
	}
	if len(entities) == 0 {
		return printer.Error(
			"no entities to resolve",
			"Pass entity names as arguments or with --file.",
			nil,
		)
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

	if resolveResetLedger {
		removed, err := ledger.Reset(ctx, store)
		if err != nil {
			return fmt.Errorf("failed to reset ledger: %w", err)
		}
		printer.Warning("Removed %d jobs from ledger '%s'\n", removed, ledgerLabel(cfg))
	}

	eng, err := buildEngine(ctx, cfg, store)
	if err != nil {
		return printer.Error("startup failed", err.Error(), nil)
	}

	if resolveReconcile >= 0 {
		expired, err := eng.Reconcile(ctx, resolveReconcile)
		if err != nil {
			return fmt.Errorf("failed to reconcile ledger: %w", err)
		}
		printer.Step("Expired %d stale tasks (generation >= %d)\n", expired, resolveReconcile)
	}

	resolver, err := resolve.NewResolver(eng, resolverOptions(cfg))
	if err != nil {
		return err
	}

	printer.Step("Resolving %d entities\n", len(entities))
	res, err := resolver.Run(ctx, entities)
	if err != nil {
		return resolveError(err, cfg.Instance)
	}

	if resolveOutput == "json" {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(resolutionOutput{
			RunID:           res.RunID,
			Representatives: res.Representatives,
			Components:      res.Components,
			Candidates:      res.Candidates,
			Duplicates:      res.Duplicates,
			TaskKeys:        res.TaskKeys,
		})
	}

	for _, rep := range res.Representatives {
		fmt.Fprintln(cmd.OutOrStdout(), rep)
	}
	printer.Success("%d entities resolved to %d (%d tasks)\n", len(entities), len(res.Representatives), len(res.TaskKeys))
	return nil
}

func resolveError(err error, instance string) error {
	switch {
	case errors.Is(err, resolve.ErrUnresolved):
		return printer.Error(
			"resolution incomplete",
			err.Error(),
			[]string{
				"Run the same command again to keep waiting; posted tasks are reused",
				"Inspect outstanding tasks:\n  tally jobs",
			},
		)
	case errors.Is(err, engine.ErrTaskCreationFailed):
		var tce *engine.TaskCreationError
		details := map[string]string{"Instance": instance}
		if errors.As(err, &tce) {
			details["Key"] = tce.Key
		}
		return printer.ErrorWithContext("task creation failed", err.Error(), details, nil)
	case errors.Is(err, resolve.ErrQuestionKeyCollision):
		return printer.Error(
			"ambiguous entity names",
			err.Error(),
			[]string{"Rename entities so no two pairs join to the same question key"},
		)
	default:
		return fmt.Errorf("resolution failed: %w", err)
	}
}

// readEntities takes args, or lines of path when set. Blank lines are skipped.
func readEntities(args []string, path string) ([]string, error) {
	if path == "" {
		return args, nil
	}
	if len(args) > 0 {
		return nil, fmt.Errorf("pass entities as arguments or with --file, not both")
	}

	f := os.Stdin
	if path != "-" {
		var err error
		if f, err = os.Open(path); err != nil {
			return nil, err
		}
		defer f.Close()
	}

	var entities []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		if line := strings.TrimSpace(scanner.Text()); line != "" {
			entities = append(entities, line)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return entities, nil
}
