// Package evaluators defines the contract every task evaluator satisfies.
// The router dispatches on kind; the coordinator owns timeouts and retries,
// so evaluators stay single-shot and side-effect free.
package evaluators

import (
	"context"

	"ace-pipeline/internal/models"
)

// Evaluator scores one task of its declared kind. Evaluate must honor ctx
// cancellation and must not retry internally; transient faults surface as
// errors and the coordinator decides what happens next.
type Evaluator interface {
	Kind() models.TaskKind
	Evaluate(ctx context.Context, task *models.Task) (*models.ScoreVector, error)
}

// RubricSource resolves a task's rubric_ref to its dimension declarations.
type RubricSource interface {
	Rubric(ref string) (models.Rubric, bool)
}
