package engine

import (
	"context"
	"fmt"
	"log"

	"github.com/dyluth/tally/internal/marketplace"
	"github.com/dyluth/tally/pkg/crowd"
	"github.com/dyluth/tally/pkg/ledger"
)

type createOptions struct {
	key        string
	generation *int
}

// CreateOption customizes a single CreateTask call.
type CreateOption func(*createOptions)

// WithKey uses key instead of deriving one from the rendered content.
func WithKey(key string) CreateOption {
	return func(o *createOptions) { o.key = key }
}

// WithResetGeneration marks the job for expiry by Reconcile at generation g or lower.
func WithResetGeneration(g int) CreateOption {
	return func(o *createOptions) { o.generation = ledger.Generation(g) }
}

// CreateTask posts spec to the marketplace unless the ledger already holds its
// key, and returns the key either way.
func (e *Engine) CreateTask(ctx context.Context, spec *crowd.TaskSpec, opts ...CreateOption) (string, error) {
	var o createOptions
	for _, opt := range opts {
		opt(&o)
	}

	spec.Normalize()
	if err := spec.Validate(); err != nil {
		return "", fmt.Errorf("invalid task spec: %w", err)
	}

	rendered, err := e.renderer.Render(ctx, spec)
	if err != nil {
		return "", fmt.Errorf("failed to render task: %w", err)
	}

	key := o.key
	if key == "" {
		key, err = DeriveKey(spec, rendered)
		if err != nil {
			return "", err
		}
	}

	err = ledger.Update(ctx, e.store, func(s ledger.Session) error {
		exists, err := s.Has(ctx, key)
		if err != nil {
			return err
		}
		if exists {
			e.metrics.skipped.Add(ctx, 1)
			log.Printf("[Engine] %s: job with that key already exists, not creating", key)
			e.logEvent("task_exists", map[string]interface{}{
				"key":        key,
				"annotation": spec.Annotation,
			})
			return nil
		}

		externalID, err := e.post(ctx, spec, key, rendered)
		if err != nil {
			e.metrics.failed.Add(ctx, 1)
			e.logEvent("task_creation_failed", map[string]interface{}{
				"key":   key,
				"error": err.Error(),
			})
			return &TaskCreationError{Key: key, Cause: err}
		}

		job := &ledger.Job{
			Key:                 key,
			ExternalID:          externalID,
			ExpectedAssignments: spec.MaxAssignments,
			ResetGeneration:     o.generation,
		}
		if err := s.Put(ctx, job); err != nil {
			return fmt.Errorf("task %s created but not recorded: %w", externalID, err)
		}

		e.metrics.created.Add(ctx, 1)
		log.Printf("[Engine] %s: created task %s", key, externalID)
		e.logEvent("task_created", map[string]interface{}{
			"key":                  key,
			"external_id":          externalID,
			"expected_assignments": spec.MaxAssignments,
			"pairs":                len(spec.Pairs),
		})
		return nil
	})
	if err != nil {
		return "", err
	}

	return key, nil
}

// post hosts the rendered page and creates the marketplace task.
func (e *Engine) post(ctx context.Context, spec *crowd.TaskSpec, key string, rendered []byte) (string, error) {
	name := fmt.Sprintf("%s_%s.html", spec.Annotation, contentHash(rendered)[:16])
	url, err := e.host.Upload(ctx, name, rendered)
	if err != nil {
		return "", fmt.Errorf("failed to host task page: %w", err)
	}

	if err := e.limiter.Wait(ctx); err != nil {
		return "", err
	}

	externalID, err := e.market.Create(ctx, spec, marketplace.ExternalQuestion{
		URL:         url,
		FrameHeight: spec.FrameHeight,
	})
	if err != nil {
		return "", err
	}
	if externalID == "" {
		return "", marketplace.ErrNoExternalID
	}
	return externalID, nil
}
