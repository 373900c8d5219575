package ledger

import "fmt"

// Redis key pattern helpers
//
// All Redis keys are namespaced so several tally deployments (for example a
// sandbox and a live run) can share one Redis server.
//
// Key pattern: tally:{namespace}:job:{key}

// JobKey returns the Redis key for a job.
// Pattern: tally:{namespace}:job:{key}
func JobKey(namespace, key string) string {
	return JobKeyPrefix(namespace) + key
}

// JobKeyPrefix returns the prefix shared by every job key in a namespace.
func JobKeyPrefix(namespace string) string {
	return fmt.Sprintf("tally:%s:job:", namespace)
}

// JobKeyPattern returns the SCAN MATCH pattern for a namespace's jobs.
func JobKeyPattern(namespace string) string {
	return JobKeyPrefix(namespace) + "*"
}
