package commands

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dyluth/tally/internal/config"
	"github.com/dyluth/tally/internal/marketplace"
	"github.com/dyluth/tally/internal/marketplace/fake"
	"github.com/dyluth/tally/internal/printer"
	"github.com/dyluth/tally/pkg/crowd"
	"github.com/dyluth/tally/pkg/ledger"
)

type project struct {
	market *fake.Marketplace
	dir    string
	stderr *bytes.Buffer
}

// setupProject writes a tally.yml using a temp SQLite ledger and local page
// hosting, and routes marketplace calls to a fake.
func setupProject(t *testing.T, extra string) *project {
	t.Helper()
	dir := t.TempDir()

	content := fmt.Sprintf(`version: "1.0"
instance: cli-test
ledger:
  backend: sqlite
  sqlite_path: %s
hosting:
  backend: file
  dir: %s
  base_url: https://pages.example
polling:
  interval: 5ms
  timeout: 1s
resolver:
  levenshtein_threshold: 100
%s`, filepath.Join(dir, "ledger.db"), filepath.Join(dir, "pages"), extra)
	configFile := filepath.Join(dir, "tally.yml")
	require.NoError(t, os.WriteFile(configFile, []byte(content), 0644))

	p := &project{market: fake.New(), dir: dir, stderr: &bytes.Buffer{}}
	p.market.Responder = fake.Unanimous(func(pair crowd.Pair) string {
		if pair.Canonical() == (crowd.Pair{A: "catsup", B: "ketchup"}).Canonical() {
			return crowd.SameVerdict
		}
		return "different"
	})

	original := newMarketplace
	newMarketplace = func(context.Context, *config.TallyConfig) (marketplace.Marketplace, error) {
		return p.market, nil
	}

	color.NoColor = true
	printer.SetOutput(&bytes.Buffer{}, p.stderr)

	t.Cleanup(func() {
		newMarketplace = original
		printer.SetOutput(nil, nil)
		configPath = config.DefaultPath
	})

	configPath = configFile
	return p
}

// run executes the CLI with fresh flag values and returns stdout.
func run(t *testing.T, args ...string) (string, error) {
	t.Helper()

	resolveFile, resolveOutput, resolveResetLedger, resolveReconcile = "", "default", false, -1
	jobsOutputFormat, jobsKeyGlob, jobsExpiring, jobsUntracked = "default", "", -1, false
	resetConfirmed, waitAnswers = false, false

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(append([]string{"--config", configPath}, args...))
	t.Cleanup(func() { rootCmd.SetArgs(nil) })

	err := Execute()
	return out.String(), err
}

func listJobs(t *testing.T) []ledger.Job {
	t.Helper()
	out, err := run(t, "jobs", "--output", "jsonl")
	require.NoError(t, err)

	var result []ledger.Job
	for _, line := range strings.Split(strings.TrimSpace(out), "\n") {
		if line == "" {
			continue
		}
		var j ledger.Job
		require.NoError(t, json.Unmarshal([]byte(line), &j))
		result = append(result, j)
	}
	return result
}

var groceries = []string{"catsup", "ketchup", "mustard", "relish"}

func TestResolve_EndToEnd(t *testing.T) {
	p := setupProject(t, "")

	out, err := run(t, append([]string{"resolve"}, groceries...)...)
	require.NoError(t, err)
	assert.Equal(t, "catsup\nmustard\nrelish\n", out)

	// 6 candidate pairs in batches of 5
	assert.Equal(t, 2, p.market.Creates())
	assert.Len(t, listJobs(t), 2)

	// A rerun reuses the recorded tasks
	out, err = run(t, append([]string{"resolve"}, groceries...)...)
	require.NoError(t, err)
	assert.Equal(t, "catsup\nmustard\nrelish\n", out)
	assert.Equal(t, 2, p.market.Creates())
}

func TestResolve_FromFileAsJSON(t *testing.T) {
	p := setupProject(t, "")
	input := filepath.Join(p.dir, "entities.txt")
	require.NoError(t, os.WriteFile(input, []byte("catsup\n\nketchup\n  mustard  \nrelish\n"), 0644))

	out, err := run(t, "resolve", "--file", input, "--output", "json")
	require.NoError(t, err)

	var res resolutionOutput
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.Equal(t, []string{"catsup", "mustard", "relish"}, res.Representatives)
	assert.Equal(t, []crowd.Pair{{A: "catsup", B: "ketchup"}}, res.Duplicates)
	assert.Len(t, res.Candidates, 6)
	assert.Len(t, res.TaskKeys, 2)
	assert.NotEmpty(t, res.RunID)
}

func TestResolve_Incomplete(t *testing.T) {
	p := setupProject(t, "")
	p.market.Responder = nil

	_, err := run(t, append([]string{"resolve"}, groceries...)...)
	require.Error(t, err)
	assert.Equal(t, "resolution incomplete", err.Error())
	assert.Contains(t, p.stderr.String(), "tally jobs")
}

func TestResolve_ResetLedger(t *testing.T) {
	p := setupProject(t, "")

	_, err := run(t, append([]string{"resolve"}, groceries...)...)
	require.NoError(t, err)

	_, err = run(t, append([]string{"resolve", "--reset-ledger"}, groceries...)...)
	require.NoError(t, err)
	assert.Equal(t, 4, p.market.Creates(), "forgotten tasks are posted again")
	assert.Contains(t, p.stderr.String(), "Removed 2 jobs from ledger 'sqlite'")
}

func TestResolve_InputErrors(t *testing.T) {
	setupProject(t, "")

	_, err := run(t, "resolve")
	assert.EqualError(t, err, "no entities to resolve")

	_, err = run(t, "resolve", "--output", "xml", "a", "b")
	assert.EqualError(t, err, "invalid output format")

	_, err = run(t, "resolve", "--file", "/nonexistent/entities.txt")
	assert.EqualError(t, err, "could not read entities")
}

func TestReconcile(t *testing.T) {
	p := setupProject(t, "  reset_generation: 1\n")

	_, err := run(t, append([]string{"resolve"}, groceries...)...)
	require.NoError(t, err)

	_, err = run(t, "reconcile", "2")
	require.NoError(t, err)
	assert.Len(t, listJobs(t), 2, "generation 1 survives a reconcile at 2")

	_, err = run(t, "reconcile", "1")
	require.NoError(t, err)
	assert.Empty(t, listJobs(t))
	for _, task := range p.market.Tasks() {
		assert.True(t, task.Expired)
	}

	_, err = run(t, "reconcile", "-3")
	assert.Error(t, err)
}

func TestResetRequiresConfirmation(t *testing.T) {
	setupProject(t, "")

	_, err := run(t, append([]string{"resolve"}, groceries...)...)
	require.NoError(t, err)

	_, err = run(t, "reset")
	assert.EqualError(t, err, "confirmation required")
	assert.Len(t, listJobs(t), 2)

	_, err = run(t, "reset", "--yes")
	require.NoError(t, err)
	assert.Empty(t, listJobs(t))
}

func TestWait(t *testing.T) {
	setupProject(t, "")

	_, err := run(t, append([]string{"resolve"}, groceries...)...)
	require.NoError(t, err)
	job := listJobs(t)[0]

	out, err := run(t, "wait", job.Key[:12], "--answers")
	require.NoError(t, err)

	var answers crowd.Answers
	require.NoError(t, json.Unmarshal([]byte(out), &answers))
	assert.NotEmpty(t, answers)

	_, err = run(t, "wait", "does-not-exist")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestJobs_GetMode(t *testing.T) {
	setupProject(t, "")

	_, err := run(t, append([]string{"resolve"}, groceries...)...)
	require.NoError(t, err)
	job := listJobs(t)[0]

	out, err := run(t, "jobs", job.Key[:12])
	require.NoError(t, err)
	assert.Contains(t, out, job.ExternalID)

	out, err = run(t, "jobs")
	require.NoError(t, err)
	assert.Contains(t, out, "2 jobs found")
}

func TestMissingConfig(t *testing.T) {
	p := setupProject(t, "")
	configPath = filepath.Join(p.dir, "absent.yml")

	_, err := run(t, "jobs")
	assert.EqualError(t, err, "configuration not found")
	assert.Contains(t, p.stderr.String(), "tally init")
}

func TestReadEntities(t *testing.T) {
	got, err := readEntities([]string{"a", "b"}, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, got)

	_, err = readEntities([]string{"a"}, "entities.txt")
	assert.Error(t, err)
}
