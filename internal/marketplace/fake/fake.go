// Package fake provides an in-memory Marketplace for tests and dry runs.
package fake

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dyluth/tally/internal/marketplace"
	"github.com/dyluth/tally/pkg/crowd"
)

// Responder produces the assignments a freshly created task will report.
// Returning nil leaves the task with no submissions.
type Responder func(spec *crowd.TaskSpec) []crowd.Assignment

// Task is the fake's record of one created task.
type Task struct {
	ID          string
	Spec        crowd.TaskSpec
	Question    marketplace.ExternalQuestion
	Assignments []crowd.Assignment
	Expired     bool
}

// Marketplace is a thread-safe in-memory marketplace.
type Marketplace struct {
	mu sync.Mutex

	tasks   map[string]*Task
	order   []string
	creates int
	polls   int

	// Responder, when set, seeds assignments at create time.
	Responder Responder

	// CreateErr, when set, is returned by every Create call.
	CreateErr error

	// EmptyID makes Create succeed without an identifier.
	EmptyID bool
}

var _ marketplace.Marketplace = (*Marketplace)(nil)

// New creates an empty fake marketplace.
func New() *Marketplace {
	return &Marketplace{tasks: make(map[string]*Task)}
}

// Create records the task and returns a generated identifier.
func (m *Marketplace) Create(_ context.Context, spec *crowd.TaskSpec, question marketplace.ExternalQuestion) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.creates++
	if m.CreateErr != nil {
		return "", m.CreateErr
	}
	if m.EmptyID {
		return "", nil
	}

	id := "HIT-" + uuid.New().String()
	task := &Task{ID: id, Spec: *spec, Question: question}
	if m.Responder != nil {
		task.Assignments = m.Responder(spec)
	}
	m.tasks[id] = task
	m.order = append(m.order, id)
	return id, nil
}

// Assignments returns a copy of the task's current submissions.
func (m *Marketplace) Assignments(_ context.Context, externalID string) ([]crowd.Assignment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.polls++
	task, ok := m.tasks[externalID]
	if !ok {
		return nil, fmt.Errorf("unknown task %s", externalID)
	}
	return append([]crowd.Assignment(nil), task.Assignments...), nil
}

// Expire marks a task expired.
func (m *Marketplace) Expire(_ context.Context, externalID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	task, ok := m.tasks[externalID]
	if !ok {
		return fmt.Errorf("unknown task %s", externalID)
	}
	task.Expired = true
	return nil
}

// Submit appends a worker submission to an existing task.
func (m *Marketplace) Submit(externalID string, a crowd.Assignment) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	task, ok := m.tasks[externalID]
	if !ok {
		return fmt.Errorf("unknown task %s", externalID)
	}
	task.Assignments = append(task.Assignments, a)
	return nil
}

// Task returns a snapshot of one created task.
func (m *Marketplace) Task(externalID string) (Task, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	task, ok := m.tasks[externalID]
	if !ok {
		return Task{}, false
	}
	return *task, true
}

// Tasks returns snapshots of all created tasks in creation order.
func (m *Marketplace) Tasks() []Task {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]Task, 0, len(m.order))
	for _, id := range m.order {
		out = append(out, *m.tasks[id])
	}
	return out
}

// Creates returns how many times Create was called.
func (m *Marketplace) Creates() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.creates
}

// Polls returns how many times Assignments was called.
func (m *Marketplace) Polls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.polls
}

// Answer builds a single-block assignment answering each question with one field.
func Answer(workerID string, replies map[string]string) crowd.Assignment {
	now := time.Now().UTC()
	block := make([]crowd.QuestionAnswer, 0, len(replies))
	for q, v := range replies {
		block = append(block, crowd.QuestionAnswer{QuestionID: q, Fields: []string{v}})
	}
	return crowd.Assignment{
		ID:         "ASG-" + uuid.New().String(),
		WorkerID:   workerID,
		AcceptTime: now,
		SubmitTime: now,
		Answers:    [][]crowd.QuestionAnswer{block},
	}
}

// Unanimous returns a Responder where maxAssignments workers each give the
// verdict chosen by judge for every pair in the task.
func Unanimous(judge func(crowd.Pair) string) Responder {
	return func(spec *crowd.TaskSpec) []crowd.Assignment {
		replies := make(map[string]string, len(spec.Pairs))
		for _, p := range spec.Pairs {
			replies[p.Key()] = judge(p)
		}
		out := make([]crowd.Assignment, 0, spec.MaxAssignments)
		for i := 0; i < spec.MaxAssignments; i++ {
			out = append(out, Answer(fmt.Sprintf("W%d", i+1), replies))
		}
		return out
	}
}
