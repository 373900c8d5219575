package scaffold

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// CheckExisting returns an error naming any tally.yml or templates/ already in dir.
func CheckExisting(dir string) error {
	var existing []string

	if _, err := os.Stat(filepath.Join(dir, configFile)); err == nil {
		existing = append(existing, configFile)
	}
	if info, err := os.Stat(filepath.Join(dir, templatesDir)); err == nil && info.IsDir() {
		existing = append(existing, templatesDir+"/")
	}

	if len(existing) == 0 {
		return nil
	}

	var b strings.Builder
	b.WriteString("project already initialized\n\nFound existing")
	if len(existing) == 1 {
		fmt.Fprintf(&b, ": %s\n", existing[0])
	} else {
		b.WriteString(" files:\n")
		for _, f := range existing {
			fmt.Fprintf(&b, "  - %s\n", f)
		}
	}
	b.WriteString("\nUse 'tally init --force' to reinitialize (this will overwrite existing configuration)")

	return fmt.Errorf("%s", b.String())
}
