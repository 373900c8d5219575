// Package crowd defines the data model shared by every tally component that
// talks about crowd work: task specifications, entity pairs, worker
// assignments and the answers extracted from them.
//
// # Overview
//
// A TaskSpec describes one unit of crowd work (a HIT on Mechanical Turk). It
// carries the presentation fields the marketplace needs (title, reward,
// duration, ...) and the batch of Pairs the workers are asked to compare.
//
// Workers submit Assignments. Each assignment holds one or more answer blocks,
// and each block is an ordered list of QuestionAnswer records. The engine
// flattens these into Answers, keyed by question identifier.
//
// # Question keys
//
// The identifier that correlates a crowd answer back to a Pair is built by
// QuestionKey. Templates and verdict lookup must both use it:
//
//	key := crowd.QuestionKey("catsup", "ketchup")
//	// key = "catsup_ketchup"
//
// Entities that contain the delimiter can produce the same key for different
// pairs. Callers that cannot rule this out should check with KeyCollisions
// before submitting work.
package crowd
