package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dyluth/tally/internal/printer"
	"github.com/dyluth/tally/internal/scaffold"
)

var forceInit bool

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize a new tally project",
	Long: `Initialize a new tally project in the current directory.

Creates:
  • tally.yml - Project configuration (sandbox marketplace, SQLite ledger, local page hosting)
  • templates/crowdER_template.html - Editable copy of the built-in task page

Use --force to reinitialize an existing project (WARNING: overwrites existing configuration).`,
	RunE: runInit,
}

func init() {
	initCmd.Flags().BoolVar(&forceInit, "force", false, "Force reinitialization (removes existing tally.yml and templates/)")
	rootCmd.AddCommand(initCmd)
}

func runInit(cmd *cobra.Command, args []string) error {
	if !forceInit {
		if err := scaffold.CheckExisting("."); err != nil {
			return printer.Error("project already initialized", err.Error(), nil)
		}
	}

	if err := scaffold.Initialize(".", forceInit); err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	scaffold.PrintSuccess()
	return nil
}
