package engine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/dyluth/tally/pkg/crowd"
	"github.com/dyluth/tally/pkg/ledger"
)

// DefaultPollInterval is used when WaitOptions.Interval is not set.
const DefaultPollInterval = 60 * time.Second

// WaitStatus is the outcome of WaitForTask.
type WaitStatus int

const (
	// StatusComplete means the expected number of assignments was observed.
	StatusComplete WaitStatus = iota
	// StatusTimedOut means the timeout elapsed first.
	StatusTimedOut
	// StatusNotFound means the ledger has no job for the key.
	StatusNotFound
)

func (s WaitStatus) String() string {
	switch s {
	case StatusComplete:
		return "complete"
	case StatusTimedOut:
		return "timed-out"
	case StatusNotFound:
		return "not-found"
	default:
		return fmt.Sprintf("WaitStatus(%d)", int(s))
	}
}

// WaitOptions controls polling.
type WaitOptions struct {
	Interval time.Duration // Delay between polls (default 60s)
	Timeout  time.Duration // Give up after this long; 0 waits forever
}

// WaitResult is returned by WaitForTask. Answers and Times are only set when
// Status is StatusComplete.
type WaitResult struct {
	Key        string
	ExternalID string
	Status     WaitStatus
	Completed  int
	Expected   int
	Elapsed    time.Duration
	Answers    crowd.Answers
	Times      []crowd.AssignmentTimes
}

// WaitForTask polls the marketplace until the task for key has all its
// expected assignments or the timeout elapses. The ledger is reopened on
// every poll and never held across the sleep.
func (e *Engine) WaitForTask(ctx context.Context, key string, opts WaitOptions) (*WaitResult, error) {
	interval := opts.Interval
	if interval <= 0 {
		interval = DefaultPollInterval
	}

	start := time.Now()
	for {
		job, err := e.lookup(ctx, key)
		if err != nil {
			return nil, err
		}
		if job == nil {
			log.Printf("[Engine] %s: job was never created, nothing to wait for", key)
			return &WaitResult{Key: key, Status: StatusNotFound}, nil
		}

		if err := e.limiter.Wait(ctx); err != nil {
			return nil, err
		}
		assignments, err := e.market.Assignments(ctx, job.ExternalID)
		if err != nil {
			return nil, fmt.Errorf("failed to poll task %s: %w", job.ExternalID, err)
		}
		e.metrics.polls.Add(ctx, 1)

		result := &WaitResult{
			Key:        key,
			ExternalID: job.ExternalID,
			Completed:  len(assignments),
			Expected:   job.ExpectedAssignments,
			Elapsed:    time.Since(start),
		}
		log.Printf("[Engine] %s: %d/%d assignments completed", key, result.Completed, result.Expected)

		if result.Completed == result.Expected {
			result.Status = StatusComplete
			result.Answers, result.Times = UnpackAssignments(assignments)
			if err := e.completed(ctx, job); err != nil {
				return nil, err
			}
			return result, nil
		}

		if opts.Timeout > 0 && result.Elapsed > opts.Timeout {
			e.metrics.timeouts.Add(ctx, 1)
			e.logEvent("wait_timed_out", map[string]interface{}{
				"key":         key,
				"external_id": job.ExternalID,
				"completed":   result.Completed,
				"expected":    result.Expected,
				"elapsed_ms":  result.Elapsed.Milliseconds(),
			})
			result.Status = StatusTimedOut
			return result, nil
		}

		timer := time.NewTimer(interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
}

// CreateAndWaitForTask creates spec (or finds it in the ledger) and waits for it.
func (e *Engine) CreateAndWaitForTask(ctx context.Context, spec *crowd.TaskSpec, wait WaitOptions, opts ...CreateOption) (*WaitResult, error) {
	key, err := e.CreateTask(ctx, spec, opts...)
	if err != nil {
		return nil, err
	}
	return e.WaitForTask(ctx, key, wait)
}

// lookup reads one job in its own read-only session. A missing job is (nil, nil).
func (e *Engine) lookup(ctx context.Context, key string) (*ledger.Job, error) {
	var job *ledger.Job
	err := ledger.View(ctx, e.store, func(s ledger.Session) error {
		exists, err := s.Has(ctx, key)
		if err != nil || !exists {
			return err
		}
		job, err = s.Get(ctx, key)
		if errors.Is(err, ledger.ErrNotFound) {
			return nil
		}
		return err
	})
	return job, err
}

// completed applies the retention policy once a job's results are in hand.
func (e *Engine) completed(ctx context.Context, job *ledger.Job) error {
	e.logEvent("task_completed", map[string]interface{}{
		"key":         job.Key,
		"external_id": job.ExternalID,
		"assignments": job.ExpectedAssignments,
	})
	if e.retainCompleted {
		return nil
	}

	err := ledger.Update(ctx, e.store, func(s ledger.Session) error {
		return s.Remove(ctx, job)
	})
	if err != nil {
		return fmt.Errorf("failed to prune completed job %s: %w", job.Key, err)
	}
	return nil
}
