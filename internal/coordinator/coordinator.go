// Package coordinator owns the task execution lifecycle. It drives every
// delivery through route → evaluate → record, enforcing per-kind timeouts,
// capped exponential retries and the exactly-once-effective guarantee on top
// of the queue's at-least-once delivery.
package coordinator

import (
	"context"
	"time"

	evalerrors "ace-pipeline/internal/common/errors"
	"ace-pipeline/internal/common/logger"
	"ace-pipeline/internal/common/metrics"
	"ace-pipeline/internal/common/observability"
	"ace-pipeline/internal/ledger"
	"ace-pipeline/internal/models"
	"ace-pipeline/internal/router"
)

// OutcomeSink receives terminal outcomes as they commit. The aggregator sits
// behind this; sink errors are logged, never propagated, because the outcome
// is already durable.
type OutcomeSink interface {
	Consume(ctx context.Context, outcome *models.TaskOutcome) error
}

// Notifier is told about dead-lettered tasks so operators hear about them.
type Notifier interface {
	NotifyDeadLetter(ctx context.Context, outcome *models.TaskOutcome, entry ledger.Entry)
}

// Config holds the coordinator's retry and timeout policy.
type Config struct {
	// TimeoutFor returns the evaluation budget for a kind.
	TimeoutFor func(kind models.TaskKind) time.Duration

	MaxAttempts int
	BackoffBase time.Duration
	BackoffCap  time.Duration
}

type Coordinator struct {
	config   Config
	router   *router.Router
	store    OutcomeStore
	queue    TaskQueue
	faults   ledger.Ledger
	sink     OutcomeSink
	notifier Notifier
	obs      *observability.Observability
	logger   logger.Logger
}

func New(config Config, r *router.Router, store OutcomeStore, queue TaskQueue, faults ledger.Ledger, sink OutcomeSink, log logger.Logger) *Coordinator {
	if config.MaxAttempts < 1 {
		config.MaxAttempts = 1
	}
	if config.TimeoutFor == nil {
		config.TimeoutFor = func(models.TaskKind) time.Duration { return 30 * time.Second }
	}
	return &Coordinator{
		config: config,
		router: r,
		store:  store,
		queue:  queue,
		faults: faults,
		sink:   sink,
		logger: log,
	}
}

// WithNotifier attaches a dead-letter notifier.
func (c *Coordinator) WithNotifier(n Notifier) *Coordinator {
	c.notifier = n
	return c
}

// WithObservability attaches tracing and OTel metrics.
func (c *Coordinator) WithObservability(obs *observability.Observability) *Coordinator {
	c.obs = obs
	return c
}

// Process drives one delivery through the lifecycle and returns the
// resulting outcome. A redelivered task with a recorded terminal outcome is
// answered from the store without re-running the evaluator, so downstream
// effects happen at most once per task.
func (c *Coordinator) Process(ctx context.Context, delivery *Delivery) (*models.TaskOutcome, error) {
	task := &delivery.Task
	attempt := delivery.Attempt
	if attempt < 1 {
		attempt = 1
	}

	log := c.logger.WithFields(map[string]interface{}{
		"taskId":       task.TaskID,
		"assignmentId": task.AssignmentID,
		"kind":         string(task.Kind),
		"attempt":      attempt,
	})

	existing, err := c.store.Get(ctx, task.TaskID)
	if err != nil {
		return nil, err
	}
	if existing != nil && existing.Terminal() {
		metrics.RedeliveriesShortCircuited.WithLabelValues(string(task.Kind)).Inc()
		log.Info("redelivery short-circuited from recorded outcome", map[string]interface{}{
			"state": string(existing.State),
		})
		return existing, nil
	}

	if err := task.Validate(); err != nil {
		return c.handleFailure(ctx, task, attempt, evalerrors.NewSchemaError(err.Error()), log)
	}

	evaluator, err := c.router.Route(task)
	if err != nil {
		return c.handleFailure(ctx, task, attempt, evalerrors.Classify(err), log)
	}

	spanCtx := ctx
	endSpan := func() {}
	if c.obs != nil {
		spanCtx, endSpan = c.obs.StartSpan(ctx, "evaluate."+string(task.Kind), task.TaskID)
	}
	defer endSpan()

	evalCtx, cancel := context.WithTimeout(spanCtx, c.config.TimeoutFor(task.Kind))
	defer cancel()

	start := time.Now()
	vector, err := evaluator.Evaluate(evalCtx, task)
	duration := time.Since(start)
	metrics.EvaluationDuration.WithLabelValues(string(task.Kind)).Observe(duration.Seconds())
	if c.obs != nil {
		state := string(models.StateSucceeded)
		if err != nil {
			state = string(models.StateFailed)
		}
		c.obs.RecordTaskDuration(ctx, duration, state)
	}

	if err != nil {
		return c.handleFailure(ctx, task, attempt, evalerrors.Classify(err), log)
	}

	outcome := &models.TaskOutcome{
		TaskID:       task.TaskID,
		LearnerID:    task.LearnerID,
		AssignmentID: task.AssignmentID,
		State:        models.StateSucceeded,
		Score:        vector,
		Attempts:     attempt,
		RecordedAt:   time.Now().UTC(),
	}
	return c.commitTerminal(ctx, task, outcome, log)
}

// handleFailure records the fault and decides between delayed redelivery and
// dead-lettering.
func (c *Coordinator) handleFailure(ctx context.Context, task *models.Task, attempt int, evalErr *evalerrors.EvaluationError, log logger.Logger) (*models.TaskOutcome, error) {
	metrics.TasksFailed.WithLabelValues(string(task.Kind), string(evalErr.Code)).Inc()

	retrying := evalErr.Retryable && attempt < c.config.MaxAttempts

	if err := c.faults.Append(ctx, ledger.Entry{
		TaskID:       task.TaskID,
		LearnerID:    task.LearnerID,
		AssignmentID: task.AssignmentID,
		Attempt:      attempt,
		Code:         string(evalErr.Code),
		Message:      evalErr.Message,
		Retryable:    evalErr.Retryable,
		Terminal:     false,
		RecordedAt:   time.Now().UTC(),
	}); err != nil {
		log.WithError(err).Warn("fault ledger append failed", nil)
	}

	if retrying {
		delay := BackoffDelay(attempt, c.config.BackoffBase, c.config.BackoffCap)
		if err := c.queue.EnqueueAfter(ctx, Delivery{Task: *task, Attempt: attempt + 1}, delay); err != nil {
			log.WithError(err).Error("retry enqueue failed", nil)
			return nil, err
		}
		metrics.RetriesScheduled.WithLabelValues(string(task.Kind)).Inc()
		log.Warn("evaluation failed, retry scheduled", map[string]interface{}{
			"errorCode": string(evalErr.Code),
			"delayMs":   delay.Milliseconds(),
		})

		return &models.TaskOutcome{
			TaskID:       task.TaskID,
			LearnerID:    task.LearnerID,
			AssignmentID: task.AssignmentID,
			State:        models.StateFailed,
			Failure: &models.FailureReason{
				Code:      string(evalErr.Code),
				Message:   evalErr.Message,
				Retryable: true,
			},
			Attempts:   attempt,
			RecordedAt: time.Now().UTC(),
		}, nil
	}

	terminalErr := evalErr
	if evalErr.Retryable {
		terminalErr = evalerrors.NewRetryExhaustedError(evalErr, attempt)
	}

	outcome := &models.TaskOutcome{
		TaskID:       task.TaskID,
		LearnerID:    task.LearnerID,
		AssignmentID: task.AssignmentID,
		State:        models.StateDeadLettered,
		Failure: &models.FailureReason{
			Code:      string(terminalErr.Code),
			Message:   terminalErr.Message,
			Retryable: false,
		},
		Attempts:   attempt,
		RecordedAt: time.Now().UTC(),
	}
	return c.commitTerminal(ctx, task, outcome, log)
}

// commitTerminal records a terminal outcome with first-writer-wins semantics
// and runs the side effects only when this call actually won the commit.
func (c *Coordinator) commitTerminal(ctx context.Context, task *models.Task, outcome *models.TaskOutcome, log logger.Logger) (*models.TaskOutcome, error) {
	stored, err := c.store.PutTerminal(ctx, outcome)
	if err != nil {
		return nil, err
	}
	if !stored {
		existing, err := c.store.Get(ctx, task.TaskID)
		if err != nil {
			return nil, err
		}
		metrics.RedeliveriesShortCircuited.WithLabelValues(string(task.Kind)).Inc()
		log.Info("terminal outcome already recorded by a concurrent delivery", nil)
		return existing, nil
	}

	switch outcome.State {
	case models.StateSucceeded:
		metrics.TasksSucceeded.WithLabelValues(string(task.Kind)).Inc()
		log.Info("task succeeded", map[string]interface{}{
			"dimensions": len(outcome.Score.Scores),
			"durationMs": outcome.Score.DurationMS,
		})

	case models.StateDeadLettered:
		metrics.TasksDeadLettered.WithLabelValues(string(task.Kind), outcome.Failure.Code).Inc()
		entry := ledger.Entry{
			TaskID:       task.TaskID,
			LearnerID:    task.LearnerID,
			AssignmentID: task.AssignmentID,
			Attempt:      outcome.Attempts,
			Code:         outcome.Failure.Code,
			Message:      outcome.Failure.Message,
			Retryable:    false,
			Terminal:     true,
			RecordedAt:   outcome.RecordedAt,
		}
		if err := c.faults.Append(ctx, entry); err != nil {
			log.WithError(err).Warn("fault ledger append failed", nil)
		}
		log.Error("task dead-lettered", map[string]interface{}{
			"errorCode": outcome.Failure.Code,
			"attempts":  outcome.Attempts,
		})
		if c.notifier != nil {
			c.notifier.NotifyDeadLetter(ctx, outcome, entry)
		}
	}

	if c.obs != nil {
		c.obs.RecordTaskProcessed(ctx, string(outcome.State))
	}

	if c.sink != nil {
		if err := c.sink.Consume(ctx, outcome); err != nil {
			log.WithError(err).Warn("outcome sink rejected terminal outcome", nil)
		}
	}
	return outcome, nil
}
