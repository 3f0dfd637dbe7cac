// internal/models/outcome.go
package models

import "time"

// OutcomeState is the lifecycle state of a task's evaluation.
//
// Pending → Evaluating → {Succeeded | Failed → (backoff) → Evaluating | DeadLettered}
//
// Succeeded and DeadLettered are terminal.
type OutcomeState string

const (
	StatePending      OutcomeState = "pending"
	StateEvaluating   OutcomeState = "evaluating"
	StateSucceeded    OutcomeState = "succeeded"
	StateFailed       OutcomeState = "failed"
	StateDeadLettered OutcomeState = "dead_lettered"
)

// FailureReason carries the classified error for a failed or dead-lettered
// attempt. Code matches the error taxonomy in internal/common/errors.
type FailureReason struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable"`
}

// TaskOutcome is the tagged result of executing a task. The coordinator owns
// the lifecycle; everything downstream sees only this closed set of states,
// never raw evaluator errors.
type TaskOutcome struct {
	TaskID       string         `json:"task_id"`
	LearnerID    string         `json:"learner_id"`
	AssignmentID string         `json:"assignment_id"`
	State        OutcomeState   `json:"state"`
	Score        *ScoreVector   `json:"score,omitempty"`
	Failure      *FailureReason `json:"failure,omitempty"`
	Attempts     int            `json:"attempts"`
	RecordedAt   time.Time      `json:"recorded_at"`
}

// Terminal reports whether the outcome will never change again. Redelivery of
// a task with a terminal outcome short-circuits without re-evaluation.
func (o *TaskOutcome) Terminal() bool {
	return o.State == StateSucceeded || o.State == StateDeadLettered
}
