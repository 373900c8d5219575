package jobs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/dyluth/tally/pkg/ledger"
)

// ErrAmbiguousKey is returned when a key prefix matches more than one job.
var ErrAmbiguousKey = errors.New("key prefix matches more than one job")

// JobNotFoundError reports that no job matches a key or key prefix.
type JobNotFoundError struct {
	Key string
}

func (e *JobNotFoundError) Error() string {
	return fmt.Sprintf("job with key '%s' not found", e.Key)
}

// IsNotFound returns true if the error is a JobNotFoundError.
func IsNotFound(err error) bool {
	var nf *JobNotFoundError
	return errors.As(err, &nf)
}

// Find resolves a full key or a unique key prefix, as printed by the table view.
func Find(ctx context.Context, store ledger.Store, key string) (*ledger.Job, error) {
	if key == "" {
		return nil, fmt.Errorf("job key cannot be empty")
	}

	var found *ledger.Job
	err := ledger.View(ctx, store, func(s ledger.Session) error {
		job, err := s.Get(ctx, key)
		if err == nil {
			found = job
			return nil
		}
		if !errors.Is(err, ledger.ErrNotFound) {
			return err
		}

		var match string
		for k, err := range s.Keys(ctx) {
			if err != nil {
				return fmt.Errorf("failed to scan jobs: %w", err)
			}
			if !strings.HasPrefix(k, key) {
				continue
			}
			if match != "" {
				return fmt.Errorf("%w: %s", ErrAmbiguousKey, key)
			}
			match = k
		}
		if match == "" {
			return &JobNotFoundError{Key: key}
		}

		found, err = s.Get(ctx, match)
		return err
	})
	if err != nil {
		return nil, err
	}
	return found, nil
}

// GetJob writes a single job as indented JSON.
func GetJob(ctx context.Context, store ledger.Store, key string, w io.Writer) error {
	job, err := Find(ctx, store, key)
	if err != nil {
		return err
	}
	if err := FormatSingleJSON(w, job); err != nil {
		return fmt.Errorf("failed to format job: %w", err)
	}
	return nil
}
