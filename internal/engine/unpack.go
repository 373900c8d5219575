package engine

import (
	"github.com/dyluth/tally/pkg/crowd"
)

// UnpackAssignments flattens submissions into per-question answer lists and
// per-assignment timestamps, both in encounter order.
//
// See crowd.Answers for why callers should only trust the first entry.
func UnpackAssignments(assignments []crowd.Assignment) (crowd.Answers, []crowd.AssignmentTimes) {
	answers := make(crowd.Answers)
	times := make([]crowd.AssignmentTimes, 0, len(assignments))

	for _, a := range assignments {
		times = append(times, crowd.AssignmentTimes{AcceptTime: a.AcceptTime, SubmitTime: a.SubmitTime})
		for _, block := range a.Answers {
			for _, q := range block {
				reply := append([]string{}, q.Fields...)
				answers[q.QuestionID] = append(answers[q.QuestionID], reply)
			}
		}
	}

	return answers, times
}
