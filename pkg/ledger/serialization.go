package ledger

import (
	"fmt"
	"strconv"
)

// Serialization helpers for converting between Job and a Redis hash.
//
// Redis hashes are string-to-string maps. An absent reset generation is
// stored as an empty field so every job hash carries the same four fields.

// JobToHash converts a Job to Redis hash fields.
func JobToHash(j *Job) map[string]interface{} {
	generation := ""
	if j.ResetGeneration != nil {
		generation = strconv.Itoa(*j.ResetGeneration)
	}

	return map[string]interface{}{
		"key":                  j.Key,
		"external_id":          j.ExternalID,
		"expected_assignments": j.ExpectedAssignments,
		"reset_generation":     generation,
	}
}

// HashToJob converts Redis hash fields back to a Job.
func HashToJob(hash map[string]string) (*Job, error) {
	expected, err := strconv.Atoi(hash["expected_assignments"])
	if err != nil {
		return nil, fmt.Errorf("invalid expected_assignments field: %w", err)
	}

	var generation *int
	if raw := hash["reset_generation"]; raw != "" {
		g, err := strconv.Atoi(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid reset_generation field: %w", err)
		}
		generation = &g
	}

	return &Job{
		Key:                 hash["key"],
		ExternalID:          hash["external_id"],
		ExpectedAssignments: expected,
		ResetGeneration:     generation,
	}, nil
}
