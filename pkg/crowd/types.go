package crowd

import (
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"
)

const (
	// MaxTitleRunes is the longest title accepted by the marketplace listing.
	MaxTitleRunes = 120

	// DefaultLifetime is how long a task stays discoverable by workers.
	DefaultLifetime = 7 * 24 * time.Hour

	// DefaultApprovalDelay is the auto-approval delay for submitted work.
	DefaultApprovalDelay = 30 * time.Minute

	// DefaultFrameHeight is the iframe height used for hosted question pages.
	DefaultFrameHeight = 1000

	// SameVerdict is the literal answer a worker gives for a duplicate pair.
	SameVerdict = "same"
)

// Pair is an unordered comparison between two entities.
// A is the entity that appeared first in the input; the orientation only
// matters for building the question key.
type Pair struct {
	A string `json:"a"`
	B string `json:"b"`
}

// Key returns the question identifier for this pair.
func (p Pair) Key() string {
	return QuestionKey(p.A, p.B)
}

// Canonical returns the orientation-independent form of the pair, used to
// deduplicate (a, b) against (b, a).
func (p Pair) Canonical() string {
	if p.B < p.A {
		return strconv.Quote(p.B) + "," + strconv.Quote(p.A)
	}
	return strconv.Quote(p.A) + "," + strconv.Quote(p.B)
}

// String implements fmt.Stringer.
func (p Pair) String() string {
	return fmt.Sprintf("(%s, %s)", p.A, p.B)
}

// TaskSpec describes one unit of crowd work.
type TaskSpec struct {
	Title          string        `json:"title" yaml:"title"`
	Description    string        `json:"description" yaml:"description"`
	Keywords       []string      `json:"keywords" yaml:"keywords"`
	Duration       time.Duration `json:"duration" yaml:"duration"`             // time a worker has once they accept
	Lifetime       time.Duration `json:"lifetime" yaml:"lifetime"`             // time the task stays listed
	ApprovalDelay  time.Duration `json:"approval_delay" yaml:"approval_delay"` // auto-approval delay
	Reward         string        `json:"reward" yaml:"reward"`                 // decimal USD, e.g. "0.15"
	MaxAssignments int           `json:"max_assignments" yaml:"max_assignments"`
	Annotation     string        `json:"annotation" yaml:"annotation"`       // stable label, locates the template
	TemplateName   string        `json:"template_name" yaml:"template_name"` // defaults to <annotation>.html
	FrameHeight    int           `json:"frame_height" yaml:"frame_height"`
	USOnly         bool          `json:"us_only" yaml:"us_only"`
	Pairs          []Pair        `json:"pairs" yaml:"pairs"`
}

// Normalize fills in defaults and enforces marketplace field limits.
// It is safe to call more than once.
func (s *TaskSpec) Normalize() {
	s.Title = strings.TrimSpace(s.Title)
	if utf8.RuneCountInString(s.Title) > MaxTitleRunes {
		s.Title = string([]rune(s.Title)[:MaxTitleRunes])
	}
	if s.Description == "" {
		s.Description = s.Title
	}
	if s.TemplateName == "" && s.Annotation != "" {
		s.TemplateName = s.Annotation + ".html"
	}
	if s.Lifetime == 0 {
		s.Lifetime = DefaultLifetime
	}
	if s.ApprovalDelay == 0 {
		s.ApprovalDelay = DefaultApprovalDelay
	}
	if s.FrameHeight == 0 {
		s.FrameHeight = DefaultFrameHeight
	}
	if s.MaxAssignments == 0 {
		s.MaxAssignments = 1
	}
}

// Validate checks the fields the marketplace and the ledger depend on.
func (s *TaskSpec) Validate() error {
	if s.Title == "" {
		return fmt.Errorf("title is required")
	}
	if s.Annotation == "" {
		return fmt.Errorf("annotation is required")
	}
	if s.MaxAssignments < 1 {
		return fmt.Errorf("max_assignments must be >= 1, got %d", s.MaxAssignments)
	}
	if s.Duration <= 0 {
		return fmt.Errorf("duration must be positive, got %s", s.Duration)
	}
	if _, err := strconv.ParseFloat(s.Reward, 64); err != nil {
		return fmt.Errorf("invalid reward %q: must be a decimal amount", s.Reward)
	}
	return nil
}

// QuestionAnswer is one worker's reply to one question: the ordered values of
// the form fields submitted for it.
type QuestionAnswer struct {
	QuestionID string   `json:"question_id"`
	Fields     []string `json:"fields"`
}

// Assignment is one worker's submission for a task.
type Assignment struct {
	ID         string             `json:"id"`
	WorkerID   string             `json:"worker_id"`
	AcceptTime time.Time          `json:"accept_time"`
	SubmitTime time.Time          `json:"submit_time"`
	Answers    [][]QuestionAnswer `json:"answers"` // answer blocks, each an ordered list of questions
}

// AssignmentTimes records when a worker accepted and submitted an assignment.
type AssignmentTimes struct {
	AcceptTime time.Time `json:"accept_time"`
	SubmitTime time.Time `json:"submit_time"`
}

// Answers maps a question identifier to the field lists recorded for it, in
// the order assignments were returned by the marketplace.
//
// Index i of one question's list is not guaranteed to come from the same
// worker as index i of another question, nor to be stable across polls.
// Only the first entry should be relied upon.
type Answers map[string][][]string

// First returns the first field of the first recorded answer for a question.
func (a Answers) First(questionID string) (string, bool) {
	replies := a[questionID]
	if len(replies) == 0 || len(replies[0]) == 0 {
		return "", false
	}
	return replies[0][0], true
}

// Count returns how many answer lists were recorded for a question.
func (a Answers) Count(questionID string) int {
	return len(a[questionID])
}
