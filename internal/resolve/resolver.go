package resolve

import (
	"context"
	"errors"
	"fmt"
	"log"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/dyluth/tally/internal/engine"
	"github.com/dyluth/tally/pkg/crowd"
)

var (
	// ErrUnresolved is returned when any task timed out or was never created.
	// No partial result accompanies it.
	ErrUnresolved = errors.New("could not resolve entities")

	// ErrQuestionKeyCollision is returned when two candidate pairs would share
	// a question key, making their verdicts indistinguishable.
	ErrQuestionKeyCollision = errors.New("question key collision")

	// ErrMissingAnswer is returned when a completed task has no answer for one
	// of its pairs.
	ErrMissingAnswer = errors.New("missing answer")
)

// DefaultComparisonsPerTask is how many pairs one task shows a worker.
const DefaultComparisonsPerTask = 5

// TaskRunner creates and waits on crowd tasks.
type TaskRunner interface {
	CreateTask(ctx context.Context, spec *crowd.TaskSpec, opts ...engine.CreateOption) (string, error)
	WaitForTask(ctx context.Context, key string, opts engine.WaitOptions) (*engine.WaitResult, error)
}

// TaskDefaults holds the listing fields shared by every entity resolution task.
type TaskDefaults struct {
	Title          string
	Keywords       []string
	Duration       time.Duration
	MaxAssignments int
	Annotation     string
	Reward         string
	USOnly         bool
}

// DefaultTaskDefaults returns the standard "are these the same" task listing.
func DefaultTaskDefaults() TaskDefaults {
	return TaskDefaults{
		Title:          "Are these things the same?",
		Keywords:       []string{"entity", "resolution", "english"},
		Duration:       600 * time.Second,
		MaxAssignments: 1,
		Annotation:     "crowdER_template",
		Reward:         "0.15",
	}
}

// EntityResolutionTask builds the task asking workers to judge pairs.
func EntityResolutionTask(pairs []crowd.Pair, d TaskDefaults) *crowd.TaskSpec {
	spec := &crowd.TaskSpec{
		Title:          d.Title,
		Keywords:       slices.Clone(d.Keywords),
		Duration:       d.Duration,
		Reward:         d.Reward,
		MaxAssignments: d.MaxAssignments,
		Annotation:     d.Annotation,
		USOnly:         d.USOnly,
		Pairs:          slices.Clone(pairs),
	}
	spec.Normalize()
	return spec
}

// Options configures a Resolver.
type Options struct {
	Predicate          Predicate
	ComparisonsPerTask int
	Task               TaskDefaults
	Wait               engine.WaitOptions
	Concurrency        int  // Maximum tasks waited on at once
	ResetGeneration    *int // Tag created jobs for later reconciliation
}

// DefaultOptions returns the standard blocking, batching and listing settings.
func DefaultOptions() Options {
	return Options{
		Predicate:          DefaultPredicate(),
		ComparisonsPerTask: DefaultComparisonsPerTask,
		Task:               DefaultTaskDefaults(),
		Concurrency:        4,
	}
}

// Resolution is the outcome of a resolution run.
type Resolution struct {
	RunID           string
	Representatives []string
	Components      [][]string
	Candidates      []crowd.Pair
	Duplicates      []crowd.Pair
	TaskKeys        []string
}

// Resolver deduplicates entities with crowd verification.
type Resolver struct {
	runner TaskRunner
	opts   Options
}

// NewResolver validates opts and fills unset fields with defaults.
func NewResolver(runner TaskRunner, opts Options) (*Resolver, error) {
	if runner == nil {
		return nil, fmt.Errorf("resolver requires a task runner")
	}
	if opts.Predicate == nil {
		opts.Predicate = DefaultPredicate()
	}
	if opts.ComparisonsPerTask == 0 {
		opts.ComparisonsPerTask = DefaultComparisonsPerTask
	}
	if opts.ComparisonsPerTask < 1 {
		return nil, fmt.Errorf("comparisons per task must be >= 1, got %d", opts.ComparisonsPerTask)
	}
	if opts.Concurrency < 1 {
		opts.Concurrency = 1
	}
	if opts.Task.Title == "" {
		opts.Task = DefaultTaskDefaults()
	}

	return &Resolver{runner: runner, opts: opts}, nil
}

// Resolve returns one representative per duplicate cluster, sorted.
func (r *Resolver) Resolve(ctx context.Context, entities []string) ([]string, error) {
	res, err := r.Run(ctx, entities)
	if err != nil {
		return nil, err
	}
	return res.Representatives, nil
}

// Run performs a full resolution and reports the intermediate results.
func (r *Resolver) Run(ctx context.Context, entities []string) (*Resolution, error) {
	res := &Resolution{RunID: uuid.New().String()}

	pairs := GeneratePairs(entities)
	res.Candidates = Filter(pairs, r.opts.Predicate)
	log.Printf("[Resolver] run %s: %d entities, %d pairs, %d candidates",
		res.RunID, len(entities), len(pairs), len(res.Candidates))

	if collisions := crowd.KeyCollisions(res.Candidates); len(collisions) > 0 {
		keys := make([]string, 0, len(collisions))
		for k := range collisions {
			keys = append(keys, k)
		}
		slices.Sort(keys)
		return nil, fmt.Errorf("%w: %s", ErrQuestionKeyCollision, strings.Join(keys, ", "))
	}

	batches, err := Chunk(res.Candidates, r.opts.ComparisonsPerTask)
	if err != nil {
		return nil, err
	}

	var createOpts []engine.CreateOption
	if r.opts.ResetGeneration != nil {
		createOpts = append(createOpts, engine.WithResetGeneration(*r.opts.ResetGeneration))
	}

	// Post every task before waiting on any, so workers see them all at once
	res.TaskKeys = make([]string, len(batches))
	for i, batch := range batches {
		key, err := r.runner.CreateTask(ctx, EntityResolutionTask(batch, r.opts.Task), createOpts...)
		if err != nil {
			return nil, err
		}
		res.TaskKeys[i] = key
	}

	results, err := r.waitAll(ctx, res.TaskKeys)
	if err != nil {
		return nil, err
	}

	graph := NewGraph(entities...)
	for i, batch := range batches {
		for _, p := range batch {
			verdict, ok := results[i].Answers.First(p.Key())
			if !ok {
				return nil, fmt.Errorf("%w: task %s has no answer for %s", ErrMissingAnswer, res.TaskKeys[i], p)
			}
			if verdict == crowd.SameVerdict {
				res.Duplicates = append(res.Duplicates, p)
				graph.AddEdge(p.A, p.B)
			}
		}
	}

	res.Components = graph.Components()
	res.Representatives = graph.Representatives()
	log.Printf("[Resolver] run %s: %d duplicates confirmed, %d entities remain",
		res.RunID, len(res.Duplicates), len(res.Representatives))
	return res, nil
}

// waitAll waits on every key concurrently. The first task that does not
// complete cancels the remaining waits.
func (r *Resolver) waitAll(ctx context.Context, keys []string) ([]*engine.WaitResult, error) {
	results := make([]*engine.WaitResult, len(keys))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.opts.Concurrency)
	for i, key := range keys {
		g.Go(func() error {
			result, err := r.runner.WaitForTask(gctx, key, r.opts.Wait)
			if err != nil {
				return err
			}
			if result.Status != engine.StatusComplete {
				return fmt.Errorf("%w: task %s %s", ErrUnresolved, key, result.Status)
			}
			results[i] = result
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}
