package engine

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/dyluth/tally/pkg/ledger"
)

// Reconcile expires every task whose job carries a reset generation at or
// above generation, and removes those jobs from the ledger.
// Returns the number of tasks expired.
func (e *Engine) Reconcile(ctx context.Context, generation int) (int, error) {
	expired := 0

	err := ledger.Update(ctx, e.store, func(s ledger.Session) error {
		keys, err := ledger.CollectKeys(ctx, s)
		if err != nil {
			return err
		}

		for _, key := range keys {
			job, err := s.Get(ctx, key)
			if errors.Is(err, ledger.ErrNotFound) {
				continue
			}
			if err != nil {
				return err
			}
			if !job.ExpiresAt(generation) {
				continue
			}

			if err := e.limiter.Wait(ctx); err != nil {
				return err
			}
			if err := e.market.Expire(ctx, job.ExternalID); err != nil {
				return fmt.Errorf("failed to expire task %s: %w", job.ExternalID, err)
			}
			if err := s.Remove(ctx, job); err != nil {
				return err
			}

			expired++
			e.metrics.expired.Add(ctx, 1)
			log.Printf("[Engine] Disabled task %s (key %s, generation %d)", job.ExternalID, key, *job.ResetGeneration)
		}
		return nil
	})

	e.logEvent("reconciled", map[string]interface{}{
		"generation": generation,
		"expired":    expired,
		"ok":         err == nil,
	})
	return expired, err
}
