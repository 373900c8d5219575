package commands

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/dyluth/tally/internal/printer"
	"github.com/dyluth/tally/pkg/ledger"
)

var resetConfirmed bool

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Forget every task recorded in the ledger",
	Long: `Remove every job from the ledger. Tasks already posted to the marketplace
are left alone; use 'tally reconcile' to expire them first.

Requires --yes.`,
	Args: cobra.NoArgs,
	RunE: runReset,
}

var reconcileCmd = &cobra.Command{
	Use:   "reconcile GENERATION",
	Short: "Expire and forget tasks tagged with a generation or later",
	Long: `Expire every recorded task whose reset generation is GENERATION or higher,
then remove it from the ledger. Tasks created without a generation are kept.`,
	Args: cobra.ExactArgs(1),
	RunE: runReconcile,
}

func init() {
	resetCmd.Flags().BoolVar(&resetConfirmed, "yes", false, "Confirm removal of all jobs")
	rootCmd.AddCommand(resetCmd)
	rootCmd.AddCommand(reconcileCmd)
}

func runReset(cmd *cobra.Command, args []string) error {
	if !resetConfirmed {
		return printer.Error(
			"confirmation required",
			"Resetting forgets every recorded task, so rerunning a resolution will post and pay for it again.",
			[]string{"Confirm:\n  tally reset --yes"},
		)
	}

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

	removed, err := ledger.Reset(ctx, store)
	if err != nil {
		return fmt.Errorf("failed to reset ledger: %w", err)
	}

	printer.Success("Removed %d jobs from ledger '%s'\n", removed, ledgerLabel(cfg))
	return nil
}

func runReconcile(cmd *cobra.Command, args []string) error {
	generation, err := strconv.Atoi(args[0])
	if err != nil || generation < 0 {
		return printer.Error(
			"invalid generation",
			fmt.Sprintf("Generation must be a non-negative integer, got %q.", args[0]),
			nil,
		)
	}

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

	eng, err := buildEngine(ctx, cfg, store)
	if err != nil {
		return printer.Error("startup failed", err.Error(), nil)
	}

	expired, err := eng.Reconcile(ctx, generation)
	if err != nil {
		return fmt.Errorf("failed to reconcile ledger: %w", err)
	}

	printer.Success("Expired %d tasks (generation >= %d)\n", expired, generation)
	return nil
}
