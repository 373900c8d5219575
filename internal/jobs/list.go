package jobs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/dyluth/tally/pkg/ledger"
)

// OutputFormat specifies how to format the job list output.
type OutputFormat string

const (
	// OutputFormatDefault uses a table with shortened keys
	OutputFormatDefault OutputFormat = "default"

	// OutputFormatJSONL outputs complete jobs as line-delimited JSON
	OutputFormatJSONL OutputFormat = "jsonl"
)

// FilterCriteria narrows the jobs listed. All filters are ANDed together.
type FilterCriteria struct {
	KeyGlob   string // Glob pattern matched against the full job key, empty = no filter
	Expiring  *int   // Only jobs a reconcile at this generation would expire, nil = no filter
	Untracked bool   // Only jobs without a reset generation
}

func (fc *FilterCriteria) matches(job *ledger.Job) bool {
	if fc.KeyGlob != "" {
		matched, err := filepath.Match(fc.KeyGlob, job.Key)
		if err != nil || !matched {
			return false
		}
	}
	if fc.Expiring != nil && !job.ExpiresAt(*fc.Expiring) {
		return false
	}
	if fc.Untracked && job.ResetGeneration != nil {
		return false
	}
	return true
}

// Collect reads every job matching filters in one read-only session, sorted by key.
// Jobs that fail to decode are skipped with a warning to stderr.
func Collect(ctx context.Context, store ledger.Store, filters *FilterCriteria) ([]*ledger.Job, error) {
	var jobs []*ledger.Job
	err := ledger.View(ctx, store, func(s ledger.Session) error {
		keys, err := ledger.CollectKeys(ctx, s)
		if err != nil {
			return fmt.Errorf("failed to scan jobs: %w", err)
		}

		for _, key := range keys {
			job, err := s.Get(ctx, key)
			if errors.Is(err, ledger.ErrNotFound) {
				continue // removed mid-scan
			}
			if err != nil {
				fmt.Fprintf(os.Stderr, "⚠️  Skipping malformed job: key=%s (error: %v)\n", key, err)
				continue
			}

			if filters != nil && !filters.matches(job) {
				continue
			}
			jobs = append(jobs, job)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(jobs, func(i, j int) bool { return jobs[i].Key < jobs[j].Key })
	return jobs, nil
}

// ListJobs writes every matching job in the requested format.
func ListJobs(ctx context.Context, store ledger.Store, label string, format OutputFormat, filters *FilterCriteria, w io.Writer) error {
	jobs, err := Collect(ctx, store, filters)
	if err != nil {
		return err
	}

	switch format {
	case OutputFormatDefault:
		FormatTable(w, jobs, label)
	case OutputFormatJSONL:
		if err := FormatJSONL(w, jobs); err != nil {
			return fmt.Errorf("failed to format JSONL output: %w", err)
		}
	default:
		return fmt.Errorf("unknown output format: %s", format)
	}

	return nil
}
