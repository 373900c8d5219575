package engine

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/dyluth/tally/internal/hosting"
	"github.com/dyluth/tally/internal/marketplace/fake"
	"github.com/dyluth/tally/internal/render"
	"github.com/dyluth/tally/pkg/crowd"
	"github.com/dyluth/tally/pkg/ledger"
)

type testEnv struct {
	engine *Engine
	store  *ledger.RedisStore
	market *fake.Marketplace
	mr     *miniredis.Miniredis
	dir    string
}

// setupTestEngine wires an engine to miniredis, the fake marketplace and a
// file host in a temp directory.
func setupTestEngine(t *testing.T, opts ...Option) *testEnv {
	mr := miniredis.NewMiniRedis()
	require.NoError(t, mr.Start())
	t.Cleanup(mr.Close)

	store, err := ledger.NewRedisStore(&redis.Options{Addr: mr.Addr()}, "test-instance")
	require.NoError(t, err)

	renderer, err := render.NewTemplateRenderer(true, "")
	require.NoError(t, err)

	dir := filepath.Join(t.TempDir(), "pages")
	host, err := hosting.NewFileHost(dir, "https://pages.example")
	require.NoError(t, err)

	market := fake.New()
	e, err := New(store, market, renderer, host, opts...)
	require.NoError(t, err)

	return &testEnv{engine: e, store: store, market: market, mr: mr, dir: dir}
}

func testSpec(pairs ...crowd.Pair) *crowd.TaskSpec {
	if len(pairs) == 0 {
		pairs = []crowd.Pair{{A: "catsup", B: "ketchup"}}
	}
	return &crowd.TaskSpec{
		Title:          "Are these things the same?",
		Keywords:       []string{"entity", "resolution", "english"},
		Duration:       10 * time.Minute,
		Reward:         "0.15",
		MaxAssignments: 1,
		Annotation:     "crowdER_template",
		Pairs:          pairs,
	}
}

func ledgerKeys(t *testing.T, store ledger.Store) []string {
	var keys []string
	require.NoError(t, ledger.View(context.Background(), store, func(s ledger.Session) error {
		var err error
		keys, err = ledger.CollectKeys(context.Background(), s)
		return err
	}))
	return keys
}

func TestNew_RequiresCollaborators(t *testing.T) {
	_, err := New(nil, fake.New(), nil, nil)
	assert.Error(t, err)
}

func TestCreateTask_Idempotent(t *testing.T) {
	env := setupTestEngine(t)
	ctx := context.Background()

	first, err := env.engine.CreateTask(ctx, testSpec())
	require.NoError(t, err)
	second, err := env.engine.CreateTask(ctx, testSpec())
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Len(t, first, 64)
	assert.Equal(t, 1, env.market.Creates())
	assert.Equal(t, []string{first}, ledgerKeys(t, env.store))
}

func TestCreateTask_PersistsJob(t *testing.T) {
	env := setupTestEngine(t)
	ctx := context.Background()

	spec := testSpec()
	spec.MaxAssignments = 3
	key, err := env.engine.CreateTask(ctx, spec, WithResetGeneration(4))
	require.NoError(t, err)

	tasks := env.market.Tasks()
	require.Len(t, tasks, 1)
	assert.Contains(t, tasks[0].Question.URL, "https://pages.example/crowdER_template_")
	assert.Equal(t, crowd.DefaultFrameHeight, tasks[0].Question.FrameHeight)

	require.NoError(t, ledger.View(ctx, env.store, func(s ledger.Session) error {
		job, err := s.Get(ctx, key)
		require.NoError(t, err)
		assert.Equal(t, tasks[0].ID, job.ExternalID)
		assert.Equal(t, 3, job.ExpectedAssignments)
		require.NotNil(t, job.ResetGeneration)
		assert.Equal(t, 4, *job.ResetGeneration)
		return nil
	}))
}

func TestCreateTask_ExplicitKey(t *testing.T) {
	env := setupTestEngine(t)
	ctx := context.Background()

	key, err := env.engine.CreateTask(ctx, testSpec(), WithKey("batch-7"))
	require.NoError(t, err)
	assert.Equal(t, "batch-7", key)

	// Different content under an existing key is not re-created
	_, err = env.engine.CreateTask(ctx, testSpec(crowd.Pair{A: "x", B: "y"}), WithKey("batch-7"))
	require.NoError(t, err)
	assert.Equal(t, 1, env.market.Creates())
}

func TestCreateTask_DistinctContentDistinctKeys(t *testing.T) {
	env := setupTestEngine(t)
	ctx := context.Background()

	a, err := env.engine.CreateTask(ctx, testSpec(crowd.Pair{A: "a", B: "b"}))
	require.NoError(t, err)
	b, err := env.engine.CreateTask(ctx, testSpec(crowd.Pair{A: "c", B: "d"}))
	require.NoError(t, err)

	assert.NotEqual(t, a, b)
	assert.Equal(t, 2, env.market.Creates())
}

func TestCreateTask_Failures(t *testing.T) {
	t.Run("marketplace error", func(t *testing.T) {
		env := setupTestEngine(t)
		env.market.CreateErr = errors.New("service unavailable")

		_, err := env.engine.CreateTask(context.Background(), testSpec())
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrTaskCreationFailed)

		var tce *TaskCreationError
		require.True(t, errors.As(err, &tce))
		assert.Len(t, tce.Key, 64)
		assert.Contains(t, tce.Error(), "service unavailable")
		assert.Empty(t, ledgerKeys(t, env.store))
	})

	t.Run("no identifier", func(t *testing.T) {
		env := setupTestEngine(t)
		env.market.EmptyID = true

		_, err := env.engine.CreateTask(context.Background(), testSpec())
		assert.ErrorIs(t, err, ErrTaskCreationFailed)
		assert.Empty(t, ledgerKeys(t, env.store))
	})

	t.Run("invalid spec", func(t *testing.T) {
		env := setupTestEngine(t)
		spec := testSpec()
		spec.Reward = "free"

		_, err := env.engine.CreateTask(context.Background(), spec)
		require.Error(t, err)
		assert.NotErrorIs(t, err, ErrTaskCreationFailed)
		assert.Equal(t, 0, env.market.Creates())
	})

	t.Run("ledger unreachable", func(t *testing.T) {
		env := setupTestEngine(t)
		env.mr.Close()

		_, err := env.engine.CreateTask(context.Background(), testSpec())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "redis not reachable")
		assert.Equal(t, 0, env.market.Creates())
	})
}

func TestWaitForTask_NotFound(t *testing.T) {
	env := setupTestEngine(t)

	result, err := env.engine.WaitForTask(context.Background(), "never-created", WaitOptions{Interval: time.Millisecond})
	require.NoError(t, err)
	assert.Equal(t, StatusNotFound, result.Status)
	assert.Equal(t, 0, env.market.Polls())
}

func TestWaitForTask_CompletesOnFirstMatchingPoll(t *testing.T) {
	env := setupTestEngine(t)
	env.market.Responder = fake.Unanimous(func(crowd.Pair) string { return crowd.SameVerdict })
	ctx := context.Background()

	key, err := env.engine.CreateTask(ctx, testSpec())
	require.NoError(t, err)

	result, err := env.engine.WaitForTask(ctx, key, WaitOptions{Interval: time.Hour, Timeout: time.Hour})
	require.NoError(t, err)
	assert.Equal(t, StatusComplete, result.Status)
	assert.Equal(t, 1, env.market.Polls())

	verdict, ok := result.Answers.First("catsup_ketchup")
	require.True(t, ok)
	assert.Equal(t, "same", verdict)
	assert.Len(t, result.Times, 1)

	// Completed jobs are retained by default
	assert.Equal(t, []string{key}, ledgerKeys(t, env.store))
}

func TestWaitForTask_CompletesAfterSubmission(t *testing.T) {
	env := setupTestEngine(t)
	ctx := context.Background()

	key, err := env.engine.CreateTask(ctx, testSpec())
	require.NoError(t, err)
	externalID := env.market.Tasks()[0].ID

	go func() {
		time.Sleep(30 * time.Millisecond)
		_ = env.market.Submit(externalID, fake.Answer("W1", map[string]string{"catsup_ketchup": "different"}))
	}()

	result, err := env.engine.WaitForTask(ctx, key, WaitOptions{Interval: 5 * time.Millisecond, Timeout: 5 * time.Second})
	require.NoError(t, err)
	assert.Equal(t, StatusComplete, result.Status)
	assert.Greater(t, env.market.Polls(), 1)

	verdict, _ := result.Answers.First("catsup_ketchup")
	assert.Equal(t, "different", verdict)
}

func TestWaitForTask_TimesOut(t *testing.T) {
	env := setupTestEngine(t)
	ctx := context.Background()

	key, err := env.engine.CreateTask(ctx, testSpec())
	require.NoError(t, err)

	timeout := 20 * time.Millisecond
	result, err := env.engine.WaitForTask(ctx, key, WaitOptions{Interval: 5 * time.Millisecond, Timeout: timeout})
	require.NoError(t, err)
	assert.Equal(t, StatusTimedOut, result.Status)
	assert.Greater(t, result.Elapsed, timeout)
	assert.Equal(t, 0, result.Completed)
	assert.Equal(t, 1, result.Expected)
	assert.Nil(t, result.Answers)
}

func TestWaitForTask_ContextCancelled(t *testing.T) {
	env := setupTestEngine(t)

	key, err := env.engine.CreateTask(context.Background(), testSpec())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err = env.engine.WaitForTask(ctx, key, WaitOptions{Interval: time.Hour})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestWaitForTask_PrunesWhenNotRetaining(t *testing.T) {
	env := setupTestEngine(t, WithRetainCompleted(false))
	env.market.Responder = fake.Unanimous(func(crowd.Pair) string { return crowd.SameVerdict })
	ctx := context.Background()

	result, err := env.engine.CreateAndWaitForTask(ctx, testSpec(), WaitOptions{Interval: time.Millisecond})
	require.NoError(t, err)
	assert.Equal(t, StatusComplete, result.Status)
	assert.Empty(t, ledgerKeys(t, env.store))
}

func TestReconcile(t *testing.T) {
	env := setupTestEngine(t)
	ctx := context.Background()

	old, err := env.engine.CreateTask(ctx, testSpec(crowd.Pair{A: "a", B: "b"}), WithResetGeneration(1))
	require.NoError(t, err)
	current, err := env.engine.CreateTask(ctx, testSpec(crowd.Pair{A: "c", B: "d"}), WithResetGeneration(3))
	require.NoError(t, err)
	untracked, err := env.engine.CreateTask(ctx, testSpec(crowd.Pair{A: "e", B: "f"}))
	require.NoError(t, err)

	expired, err := env.engine.Reconcile(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, 1, expired)

	keys := ledgerKeys(t, env.store)
	assert.ElementsMatch(t, []string{old, untracked}, keys)
	assert.NotContains(t, keys, current)

	for _, task := range env.market.Tasks() {
		assert.Equal(t, task.Spec.Pairs[0].A == "c", task.Expired, "task %s", task.ID)
	}
}

func TestReconcile_ExpireFailurePropagates(t *testing.T) {
	env := setupTestEngine(t)
	ctx := context.Background()

	// A job pointing at a task the marketplace does not know
	require.NoError(t, ledger.Update(ctx, env.store, func(s ledger.Session) error {
		return s.Put(ctx, &ledger.Job{Key: "ghost", ExternalID: "HIT-missing", ExpectedAssignments: 1, ResetGeneration: ledger.Generation(0)})
	}))

	_, err := env.engine.Reconcile(ctx, 0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "HIT-missing")
	assert.Equal(t, []string{"ghost"}, ledgerKeys(t, env.store))
}

func TestEngineMetrics(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	env := setupTestEngine(t, WithMeter(provider.Meter("test")))
	ctx := context.Background()

	_, err := env.engine.CreateTask(ctx, testSpec())
	require.NoError(t, err)
	_, err = env.engine.CreateTask(ctx, testSpec())
	require.NoError(t, err)

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(ctx, &rm))

	counts := map[string]int64{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if sum, ok := m.Data.(metricdata.Sum[int64]); ok {
				for _, dp := range sum.DataPoints {
					counts[m.Name] += dp.Value
				}
			}
		}
	}
	assert.Equal(t, int64(1), counts["tally.tasks.created"])
	assert.Equal(t, int64(1), counts["tally.tasks.skipped"])
}
