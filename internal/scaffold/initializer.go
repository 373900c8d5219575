package scaffold

import (
	"embed"
	"fmt"
	"os"
	"path/filepath"

	"github.com/dyluth/tally/internal/config"
	"github.com/dyluth/tally/internal/printer"
	"github.com/dyluth/tally/internal/render"
)

//go:embed templates/*
var templatesFS embed.FS

const (
	configFile   = "tally.yml"
	templatesDir = "templates"
	pageTemplate = "crowdER_template.html"
)

// FileInfo represents a file to be created during initialization
type FileInfo struct {
	Path        string
	Content     []byte
	Permissions os.FileMode
}

// Initialize writes tally.yml and a copy of the built-in task template into dir.
// If force is true, existing tally.yml and templates/ are removed first.
func Initialize(dir string, force bool) error {
	if force {
		if err := handleForce(dir); err != nil {
			return err
		}
	}

	files, err := getTemplateFiles()
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Join(dir, templatesDir), 0755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", templatesDir, err)
	}

	for _, file := range files {
		path := filepath.Join(dir, file.Path)
		if err := os.WriteFile(path, file.Content, file.Permissions); err != nil {
			return fmt.Errorf("failed to write %s: %w", file.Path, err)
		}
	}

	return validateCreatedFiles(dir)
}

// handleForce removes existing files if --force was specified
func handleForce(dir string) error {
	if _, err := os.Stat(filepath.Join(dir, configFile)); err == nil {
		printer.Warning("Removing existing %s...\n", configFile)
		if err := os.Remove(filepath.Join(dir, configFile)); err != nil {
			return fmt.Errorf("failed to remove %s: %w", configFile, err)
		}
	}

	if info, err := os.Stat(filepath.Join(dir, templatesDir)); err == nil && info.IsDir() {
		printer.Warning("Removing existing %s/ directory...\n", templatesDir)
		if err := os.RemoveAll(filepath.Join(dir, templatesDir)); err != nil {
			return fmt.Errorf("failed to remove %s/ directory: %w", templatesDir, err)
		}
	}

	return nil
}

func getTemplateFiles() ([]FileInfo, error) {
	tallyYml, err := templatesFS.ReadFile("templates/tally.yml.tmpl")
	if err != nil {
		return nil, fmt.Errorf("failed to read tally.yml template: %w", err)
	}

	page, err := render.BuiltinTemplate(pageTemplate)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", pageTemplate, err)
	}

	return []FileInfo{
		{Path: configFile, Content: tallyYml, Permissions: 0644},
		{Path: filepath.Join(templatesDir, pageTemplate), Content: page, Permissions: 0644},
	}, nil
}

// validateCreatedFiles loads the written tally.yml through the normal config path.
func validateCreatedFiles(dir string) error {
	cwd, err := os.Getwd()
	if err != nil {
		return err
	}
	// templates: is relative to the project root
	if err := os.Chdir(dir); err != nil {
		return err
	}
	defer os.Chdir(cwd)

	if _, err := config.Load(configFile); err != nil {
		return fmt.Errorf("created %s is invalid: %w", configFile, err)
	}
	return nil
}

// PrintSuccess prints the success message with created files
func PrintSuccess() {
	printer.Success("Initialized tally project\n")
	printer.Println("\nCreated:")
	printer.Printf("  ✓ %s\n", configFile)
	printer.Printf("  ✓ %s\n", filepath.Join(templatesDir, pageTemplate))
	printer.Println("\nNext steps:")
	printer.Println("  1. Add '.tally/' and 'pages/' to your .gitignore file")
	printer.Println("  2. Point hosting at a public bucket before posting live tasks")
	printer.Println("  3. Run 'tally resolve <entities-file>' against the sandbox")
}
