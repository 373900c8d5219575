// Package resolve implements crowd-verified entity resolution: cheap blocking
// to pick candidate pairs, batching them into tasks, and merging confirmed
// duplicates into equivalence classes.
package resolve

import (
	"fmt"

	"github.com/dyluth/tally/pkg/crowd"
)

// GeneratePairs returns every unordered pair of distinct entities. Each pair
// keeps the orientation of its first occurrence in the input, and a pair that
// appears again (in either orientation) is dropped.
func GeneratePairs(entities []string) []crowd.Pair {
	seen := make(map[string]struct{})
	var pairs []crowd.Pair

	for i, a := range entities {
		for _, b := range entities[i+1:] {
			if a == b {
				continue
			}
			p := crowd.Pair{A: a, B: b}
			c := p.Canonical()
			if _, dup := seen[c]; dup {
				continue
			}
			seen[c] = struct{}{}
			pairs = append(pairs, p)
		}
	}
	return pairs
}

// Filter keeps the pairs the predicate flags as possible duplicates.
func Filter(pairs []crowd.Pair, pred Predicate) []crowd.Pair {
	var out []crowd.Pair
	for _, p := range pairs {
		if pred(p) {
			out = append(out, p)
		}
	}
	return out
}

// Chunk splits pairs into consecutive batches of at most size pairs.
func Chunk(pairs []crowd.Pair, size int) ([][]crowd.Pair, error) {
	if size < 1 {
		return nil, fmt.Errorf("chunk size must be >= 1, got %d", size)
	}

	batches := make([][]crowd.Pair, 0, (len(pairs)+size-1)/size)
	for start := 0; start < len(pairs); start += size {
		end := min(start+size, len(pairs))
		batches = append(batches, pairs[start:end:end])
	}
	return batches, nil
}
