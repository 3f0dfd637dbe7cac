// Package ingress is the boundary where normalized learner submissions enter
// the pipeline: it expands a submission into canonical tasks, publishes them
// on the queue, and optionally bridges a Zeebe broker into the same path.
package ingress

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"ace-pipeline/internal/common/logger"
	"ace-pipeline/internal/coordinator"
	"ace-pipeline/internal/models"
)

// SubmissionItem is one gradable unit inside a submission, already normalized
// upstream.
type SubmissionItem struct {
	Kind      models.TaskKind `json:"kind"`
	Payload   json.RawMessage `json:"payload"`
	RubricRef string          `json:"rubric_ref"`
}

// Submission is everything a learner handed in for one assignment.
type Submission struct {
	LearnerID    string           `json:"learner_id"`
	AssignmentID string           `json:"assignment_id"`
	Items        []SubmissionItem `json:"items"`
}

// Submitter expands submissions into tasks and enqueues them.
type Submitter struct {
	queue  coordinator.TaskQueue
	logger logger.Logger
}

func NewSubmitter(queue coordinator.TaskQueue, log logger.Logger) *Submitter {
	return &Submitter{queue: queue, logger: log}
}

// ExpandSubmission turns a submission into canonical tasks plus the manifest
// the aggregator measures completeness against. Task IDs are fresh UUIDs, so
// resubmitting the same content yields new tasks rather than colliding with
// recorded outcomes.
func ExpandSubmission(sub *Submission) ([]models.Task, models.Manifest, error) {
	if sub.LearnerID == "" || sub.AssignmentID == "" {
		return nil, models.Manifest{}, fmt.Errorf("submission requires learner_id and assignment_id")
	}
	if len(sub.Items) == 0 {
		return nil, models.Manifest{}, fmt.Errorf("submission has no items")
	}

	tasks := make([]models.Task, 0, len(sub.Items))
	manifest := models.Manifest{
		LearnerID:    sub.LearnerID,
		AssignmentID: sub.AssignmentID,
	}

	for i, item := range sub.Items {
		task := models.Task{
			TaskID:       uuid.NewString(),
			LearnerID:    sub.LearnerID,
			AssignmentID: sub.AssignmentID,
			Kind:         item.Kind,
			Payload:      item.Payload,
			RubricRef:    item.RubricRef,
		}
		if err := task.Validate(); err != nil {
			return nil, models.Manifest{}, fmt.Errorf("item %d: %w", i, err)
		}
		tasks = append(tasks, task)
		manifest.TaskIDs = append(manifest.TaskIDs, task.TaskID)
	}

	return tasks, manifest, nil
}

// Submit expands a submission and enqueues every task. Returns the manifest
// for the caller to register with the aggregation side.
func (s *Submitter) Submit(ctx context.Context, sub *Submission) (models.Manifest, error) {
	tasks, manifest, err := ExpandSubmission(sub)
	if err != nil {
		return models.Manifest{}, err
	}

	for i := range tasks {
		if err := s.queue.Enqueue(ctx, &tasks[i]); err != nil {
			return models.Manifest{}, fmt.Errorf("enqueue task %s: %w", tasks[i].TaskID, err)
		}
	}

	s.logger.Info("submission expanded and enqueued", map[string]interface{}{
		"learnerId":    sub.LearnerID,
		"assignmentId": sub.AssignmentID,
		"tasks":        len(tasks),
	})
	return manifest, nil
}
