package crowd

// QuestionKeyDelimiter joins the two entity strings of a question key.
const QuestionKeyDelimiter = "_"

// QuestionKey returns the identifier used to correlate a crowd answer with the
// pair (a, b). Task templates and verdict lookup must agree on this format.
func QuestionKey(a, b string) string {
	return a + QuestionKeyDelimiter + b
}

// KeyCollisions reports question keys shared by more than one distinct pair.
// The result maps each colliding key to the pairs that produce it.
func KeyCollisions(pairs []Pair) map[string][]Pair {
	byKey := make(map[string][]Pair, len(pairs))
	for _, p := range pairs {
		k := p.Key()
		seen := false
		for _, existing := range byKey[k] {
			if existing == p {
				seen = true
				break
			}
		}
		if !seen {
			byKey[k] = append(byKey[k], p)
		}
	}

	collisions := make(map[string][]Pair)
	for k, ps := range byKey {
		if len(ps) > 1 {
			collisions[k] = ps
		}
	}
	return collisions
}
