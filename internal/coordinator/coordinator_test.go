// internal/coordinator/coordinator_test.go
package coordinator

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	evalerrors "ace-pipeline/internal/common/errors"
	"ace-pipeline/internal/common/logger"
	"ace-pipeline/internal/ledger"
	"ace-pipeline/internal/models"
	"ace-pipeline/internal/router"
)

// ==========================
// Test Helper Functions
// ==========================

type scriptedEvaluator struct {
	mu      sync.Mutex
	kind    models.TaskKind
	calls   int
	results []error // per-call error; nil means success
}

func (e *scriptedEvaluator) Kind() models.TaskKind { return e.kind }

func (e *scriptedEvaluator) Evaluate(ctx context.Context, task *models.Task) (*models.ScoreVector, error) {
	e.mu.Lock()
	idx := e.calls
	e.calls++
	e.mu.Unlock()

	var err error
	if idx < len(e.results) {
		err = e.results[idx]
	}
	if err != nil {
		return nil, err
	}
	return &models.ScoreVector{
		TaskID:        task.TaskID,
		EvaluatorKind: e.kind,
		EvaluatedAt:   time.Now().UTC(),
		Scores: map[models.Dimension]models.DimensionScore{
			models.DimAnalysis: {Score: 0.8, Weight: 1.0},
		},
	}, nil
}

func (e *scriptedEvaluator) callCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls
}

type recordingSink struct {
	mu       sync.Mutex
	outcomes []*models.TaskOutcome
}

func (s *recordingSink) Consume(ctx context.Context, outcome *models.TaskOutcome) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.outcomes = append(s.outcomes, outcome)
	return nil
}

func (s *recordingSink) consumed() []*models.TaskOutcome {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*models.TaskOutcome(nil), s.outcomes...)
}

type testHarness struct {
	coordinator *Coordinator
	store       *MemoryOutcomeStore
	queue       *MemoryTaskQueue
	faults      *ledger.MemoryLedger
	sink        *recordingSink
	evaluator   *scriptedEvaluator
}

func newHarness(t *testing.T, maxAttempts int, results []error) *testHarness {
	evaluator := &scriptedEvaluator{kind: models.KindText, results: results}
	r := router.New(logger.NewTestLogger(t))
	r.Register(evaluator)

	store := NewMemoryOutcomeStore()
	queue := NewMemoryTaskQueue(16)
	faults := ledger.NewMemoryLedger()
	sink := &recordingSink{}

	c := New(Config{
		TimeoutFor:  func(models.TaskKind) time.Duration { return time.Second },
		MaxAttempts: maxAttempts,
		BackoffBase: time.Millisecond,
		BackoffCap:  2 * time.Millisecond,
	}, r, store, queue, faults, sink, logger.NewTestLogger(t))

	return &testHarness{coordinator: c, store: store, queue: queue, faults: faults, sink: sink, evaluator: evaluator}
}

func textTask(id string) models.Task {
	payload, _ := json.Marshal(models.TextPayload{Text: "a sufficiently long answer"})
	return models.Task{
		TaskID:       id,
		LearnerID:    "learner-1",
		AssignmentID: "assignment-1",
		Kind:         models.KindText,
		Payload:      payload,
		RubricRef:    "full",
	}
}

// ==========================
// Idempotency
// ==========================

func TestCoordinator_RedeliveryShortCircuits(t *testing.T) {
	h := newHarness(t, 3, nil)
	ctx := context.Background()
	delivery := &Delivery{Task: textTask("t-1"), Attempt: 1}

	first, err := h.coordinator.Process(ctx, delivery)
	require.NoError(t, err)
	assert.Equal(t, models.StateSucceeded, first.State)

	// same delivery arrives again
	second, err := h.coordinator.Process(ctx, delivery)
	require.NoError(t, err)
	assert.Equal(t, models.StateSucceeded, second.State)

	assert.Equal(t, 1, h.evaluator.callCount(), "evaluator must run once per task")
	assert.Len(t, h.sink.consumed(), 1, "sink must see the outcome once")
}

func TestCoordinator_ConcurrentDeliveriesCommitOnce(t *testing.T) {
	h := newHarness(t, 3, nil)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := h.coordinator.Process(ctx, &Delivery{Task: textTask("t-race"), Attempt: 1})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Len(t, h.sink.consumed(), 1, "exactly one terminal outcome may reach the sink")
	stored, err := h.store.Get(ctx, "t-race")
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, models.StateSucceeded, stored.State)
}

// ==========================
// Retry and dead-letter policy
// ==========================

func TestCoordinator_RetryableFailureSchedulesRedelivery(t *testing.T) {
	h := newHarness(t, 3, []error{
		evalerrors.NewUpstreamFailureError("scoring", assert.AnError),
	})
	ctx := context.Background()

	outcome, err := h.coordinator.Process(ctx, &Delivery{Task: textTask("t-1"), Attempt: 1})
	require.NoError(t, err)
	assert.Equal(t, models.StateFailed, outcome.State)
	assert.False(t, outcome.Terminal())

	// the delayed redelivery lands on the interactive lane
	dequeueCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	redelivery, err := h.queue.Dequeue(dequeueCtx, LaneInteractive)
	require.NoError(t, err)
	assert.Equal(t, "t-1", redelivery.Task.TaskID)
	assert.Equal(t, 2, redelivery.Attempt)

	entries, err := h.faults.ListByTask(ctx, "t-1")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.False(t, entries[0].Terminal)
}

func TestCoordinator_RetryExhaustionDeadLetters(t *testing.T) {
	failures := []error{
		evalerrors.NewUpstreamFailureError("scoring", assert.AnError),
		evalerrors.NewUpstreamTimeoutError("scoring"),
		evalerrors.NewUpstreamFailureError("scoring", assert.AnError),
	}
	h := newHarness(t, 3, failures)
	ctx := context.Background()

	var outcome *models.TaskOutcome
	var err error
	delivery := &Delivery{Task: textTask("t-1"), Attempt: 1}
	for attempt := 1; attempt <= 3; attempt++ {
		delivery.Attempt = attempt
		outcome, err = h.coordinator.Process(ctx, delivery)
		require.NoError(t, err)
	}

	assert.Equal(t, 3, h.evaluator.callCount(), "exactly max_attempts evaluations")
	assert.Equal(t, models.StateDeadLettered, outcome.State)
	require.NotNil(t, outcome.Failure)
	assert.Equal(t, string(evalerrors.ErrCodeRetryExhausted), outcome.Failure.Code)
	assert.Equal(t, 3, outcome.Attempts)

	// attempt four never runs
	again, err := h.coordinator.Process(ctx, &Delivery{Task: textTask("t-1"), Attempt: 4})
	require.NoError(t, err)
	assert.Equal(t, models.StateDeadLettered, again.State)
	assert.Equal(t, 3, h.evaluator.callCount())

	dead, err := h.faults.IsDeadLettered(ctx, "t-1")
	require.NoError(t, err)
	assert.True(t, dead)
}

func TestCoordinator_NonRetryableFailureDeadLettersImmediately(t *testing.T) {
	h := newHarness(t, 5, []error{evalerrors.NewSchemaError("text shorter than 3 words")})
	ctx := context.Background()

	outcome, err := h.coordinator.Process(ctx, &Delivery{Task: textTask("t-1"), Attempt: 1})
	require.NoError(t, err)

	assert.Equal(t, models.StateDeadLettered, outcome.State)
	assert.Equal(t, string(evalerrors.ErrCodeSchema), outcome.Failure.Code)
	assert.Equal(t, 1, outcome.Attempts)
	assert.Equal(t, 1, h.evaluator.callCount())

	// no redelivery was scheduled
	dequeueCtx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()
	_, err = h.queue.Dequeue(dequeueCtx, LaneInteractive)
	assert.Error(t, err)
}

func TestCoordinator_UnsupportedKindDeadLettersWithoutRetry(t *testing.T) {
	h := newHarness(t, 5, nil)
	ctx := context.Background()

	task := textTask("t-1")
	task.Kind = models.TaskKind("video")

	outcome, err := h.coordinator.Process(ctx, &Delivery{Task: task, Attempt: 1})
	require.NoError(t, err)

	assert.Equal(t, models.StateDeadLettered, outcome.State)
	assert.Equal(t, string(evalerrors.ErrCodeUnsupportedKind), outcome.Failure.Code)
	assert.Equal(t, 0, h.evaluator.callCount(), "no evaluator may run for an unsupported kind")

	entries, err := h.faults.ListByTask(ctx, "t-1")
	require.NoError(t, err)
	require.NotEmpty(t, entries)
}

func TestCoordinator_TimeoutIsRetryable(t *testing.T) {
	h := newHarness(t, 2, []error{context.DeadlineExceeded, nil})
	ctx := context.Background()

	outcome, err := h.coordinator.Process(ctx, &Delivery{Task: textTask("t-1"), Attempt: 1})
	require.NoError(t, err)
	assert.Equal(t, models.StateFailed, outcome.State)
	assert.Equal(t, string(evalerrors.ErrCodeUpstreamTimeout), outcome.Failure.Code)

	outcome, err = h.coordinator.Process(ctx, &Delivery{Task: textTask("t-1"), Attempt: 2})
	require.NoError(t, err)
	assert.Equal(t, models.StateSucceeded, outcome.State)
}

func TestCoordinator_SucceededAfterDeadLetterIsImpossible(t *testing.T) {
	h := newHarness(t, 1, []error{evalerrors.NewUpstreamFailureError("scoring", assert.AnError), nil})
	ctx := context.Background()

	outcome, err := h.coordinator.Process(ctx, &Delivery{Task: textTask("t-1"), Attempt: 1})
	require.NoError(t, err)
	assert.Equal(t, models.StateDeadLettered, outcome.State)

	// a stale redelivery cannot flip the recorded state
	again, err := h.coordinator.Process(ctx, &Delivery{Task: textTask("t-1"), Attempt: 1})
	require.NoError(t, err)
	assert.Equal(t, models.StateDeadLettered, again.State)
	assert.Equal(t, 1, h.evaluator.callCount())
}

// ==========================
// Structural validation
// ==========================

func TestCoordinator_InvalidTaskDeadLetters(t *testing.T) {
	h := newHarness(t, 3, nil)
	ctx := context.Background()

	task := textTask("t-1")
	task.RubricRef = ""

	outcome, err := h.coordinator.Process(ctx, &Delivery{Task: task, Attempt: 1})
	require.NoError(t, err)
	assert.Equal(t, models.StateDeadLettered, outcome.State)
	assert.Equal(t, string(evalerrors.ErrCodeSchema), outcome.Failure.Code)
	assert.Equal(t, 0, h.evaluator.callCount())
}

// ==========================
// Backoff
// ==========================

func TestBackoffDelay_Bounds(t *testing.T) {
	base := 100 * time.Millisecond
	cap := time.Second

	for attempt := 1; attempt <= 10; attempt++ {
		for i := 0; i < 50; i++ {
			delay := BackoffDelay(attempt, base, cap)
			assert.GreaterOrEqual(t, delay, time.Duration(0))
			assert.LessOrEqual(t, delay, cap)
		}
	}
}

func TestBackoffDelay_CeilingGrowsWithAttempt(t *testing.T) {
	base := 100 * time.Millisecond
	cap := time.Hour

	// full jitter: the maximum possible delay doubles each attempt
	maxSeen := func(attempt int) time.Duration {
		var max time.Duration
		for i := 0; i < 500; i++ {
			if d := BackoffDelay(attempt, base, cap); d > max {
				max = d
			}
		}
		return max
	}

	assert.LessOrEqual(t, maxSeen(1), base)
	assert.LessOrEqual(t, maxSeen(3), 4*base)
	assert.Greater(t, maxSeen(5), 4*base)
}
