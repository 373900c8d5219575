package jobs

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/dyluth/tally/pkg/ledger"
)

// FormatTable writes jobs as a table with columns KEY, EXTERNAL ID, EXPECTED and GEN.
// Returns the number of jobs formatted.
func FormatTable(w io.Writer, jobs []*ledger.Job, label string) int {
	if len(jobs) == 0 {
		fmt.Fprintf(w, "No jobs found in ledger '%s'\n", label)
		return 0
	}

	fmt.Fprintf(w, "Jobs in ledger '%s':\n\n", label)
	fmt.Fprintf(w, "%-16s %-32s %-8s %s\n", "KEY", "EXTERNAL ID", "EXPECTED", "GEN")
	fmt.Fprintf(w, "%-16s %-32s %-8s %s\n", "----------------", "--------------------------------", "--------", "---")

	for _, j := range jobs {
		fmt.Fprintf(w, "%-16s %-32s %-8d %s\n",
			formatKey(j.Key),
			formatExternalID(j.ExternalID),
			j.ExpectedAssignments,
			formatGeneration(j.ResetGeneration),
		)
	}

	noun := "job"
	if len(jobs) != 1 {
		noun = "jobs"
	}
	fmt.Fprintf(w, "\n%d %s found\n", len(jobs), noun)

	return len(jobs)
}

// FormatJSONL writes one compact JSON object per job, for piping into jq.
func FormatJSONL(w io.Writer, jobs []*ledger.Job) error {
	for _, job := range jobs {
		data, err := json.Marshal(job)
		if err != nil {
			return fmt.Errorf("failed to marshal job to JSON: %w", err)
		}
		if _, err := fmt.Fprintf(w, "%s\n", data); err != nil {
			return fmt.Errorf("failed to write JSONL output: %w", err)
		}
	}
	return nil
}

// FormatSingleJSON writes one job as indented JSON.
func FormatSingleJSON(w io.Writer, job *ledger.Job) error {
	data, err := json.MarshalIndent(job, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal job to JSON: %w", err)
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("failed to write JSON output: %w", err)
	}
	fmt.Fprintln(w)
	return nil
}

// formatKey shortens content hashes to a 16 character prefix.
func formatKey(key string) string {
	if len(key) > 16 {
		return key[:16]
	}
	return key
}

func formatExternalID(id string) string {
	if len(id) > 32 {
		return id[:29] + "..."
	}
	return id
}

// formatGeneration shows "-" for jobs that opted out of reconciliation.
func formatGeneration(gen *int) string {
	if gen == nil {
		return "-"
	}
	return fmt.Sprintf("%d", *gen)
}
