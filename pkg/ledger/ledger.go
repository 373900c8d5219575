package ledger

import (
	"context"
	"errors"
	"fmt"
	"iter"
)

var (
	// ErrNotFound is returned by Get when no job exists for the key.
	ErrNotFound = errors.New("ledger: job not found")

	// ErrReadOnly is returned by writes on a session opened read-only.
	ErrReadOnly = errors.New("ledger: session is read-only")

	// ErrClosed is returned by any call on a session after Close.
	ErrClosed = errors.New("ledger: session is closed")
)

// Job is the ledger record for one created task.
type Job struct {
	Key                 string `json:"key"`
	ExternalID          string `json:"external_id"`
	ExpectedAssignments int    `json:"expected_assignments"`
	ResetGeneration     *int   `json:"reset_generation,omitempty"` // nil when the job opts out of reconciliation
}

// Validate checks the fields every backend requires.
func (j *Job) Validate() error {
	if j.Key == "" {
		return fmt.Errorf("job key cannot be empty")
	}
	if j.ExternalID == "" {
		return fmt.Errorf("job %s: external id cannot be empty", j.Key)
	}
	if j.ExpectedAssignments < 1 {
		return fmt.Errorf("job %s: expected assignments must be >= 1, got %d", j.Key, j.ExpectedAssignments)
	}
	return nil
}

// ExpiresAt reports whether reconciling at the given generation should expire
// this job: the job carries a generation and it is >= the requested one.
func (j *Job) ExpiresAt(generation int) bool {
	return j.ResetGeneration != nil && *j.ResetGeneration >= 0 && *j.ResetGeneration >= generation
}

// Mode selects what a session may do.
type Mode int

const (
	// ReadOnly sessions reject Put and Remove.
	ReadOnly Mode = iota
	// ReadWrite sessions allow all operations.
	ReadWrite
)

func (m Mode) String() string {
	if m == ReadOnly {
		return "read-only"
	}
	return "read-write"
}

// Store opens scoped sessions on the underlying storage.
type Store interface {
	Open(ctx context.Context, mode Mode) (Session, error)
}

// Session is one open/close cycle on the ledger.
// A session is not safe for concurrent use; open one per goroutine.
type Session interface {
	Has(ctx context.Context, key string) (bool, error)
	Get(ctx context.Context, key string) (*Job, error)
	Put(ctx context.Context, job *Job) error
	Remove(ctx context.Context, job *Job) error

	// Keys lazily enumerates every job key. Each call starts a fresh pass.
	// Iteration stops at the first error, which is yielded once.
	Keys(ctx context.Context) iter.Seq2[string, error]

	Close() error
}

// View runs fn in a read-only session and closes it before returning.
func View(ctx context.Context, store Store, fn func(Session) error) error {
	return with(ctx, store, ReadOnly, fn)
}

// Update runs fn in a read-write session and closes it before returning.
func Update(ctx context.Context, store Store, fn func(Session) error) error {
	return with(ctx, store, ReadWrite, fn)
}

func with(ctx context.Context, store Store, mode Mode, fn func(Session) error) (err error) {
	session, err := store.Open(ctx, mode)
	if err != nil {
		return fmt.Errorf("failed to open ledger (%s): %w", mode, err)
	}
	defer func() {
		if cerr := session.Close(); cerr != nil {
			err = errors.Join(err, fmt.Errorf("failed to close ledger: %w", cerr))
		}
	}()

	return fn(session)
}

// CollectKeys drains Keys into a slice. Use it when the caller is about to
// remove entries, so removal does not race the enumeration.
func CollectKeys(ctx context.Context, s Session) ([]string, error) {
	var keys []string
	for key, err := range s.Keys(ctx) {
		if err != nil {
			return nil, err
		}
		keys = append(keys, key)
	}
	return keys, nil
}

// Reset removes every job from the store.
// Returns the number of jobs removed.
func Reset(ctx context.Context, store Store) (int, error) {
	removed := 0
	err := Update(ctx, store, func(s Session) error {
		keys, err := CollectKeys(ctx, s)
		if err != nil {
			return err
		}
		for _, key := range keys {
			if err := s.Remove(ctx, &Job{Key: key}); err != nil {
				return err
			}
			removed++
		}
		return nil
	})
	return removed, err
}

// Generation returns a pointer to g, for populating Job.ResetGeneration.
func Generation(g int) *int {
	return &g
}
