// internal/models/task.go
package models

import (
	"encoding/json"
	"fmt"
)

// TaskKind identifies which evaluator a task is routed to.
type TaskKind string

const (
	KindMCQ   TaskKind = "mcq"
	KindText  TaskKind = "text"
	KindAudio TaskKind = "audio"
)

// KnownKinds lists every kind with a built-in evaluator.
var KnownKinds = []TaskKind{KindMCQ, KindText, KindAudio}

// Task is one unit of gradable work, normalized upstream. The payload stays
// raw JSON until the evaluator for the declared kind decodes it.
type Task struct {
	TaskID       string          `json:"task_id"`
	LearnerID    string          `json:"learner_id"`
	AssignmentID string          `json:"assignment_id"`
	Kind         TaskKind        `json:"kind"`
	Payload      json.RawMessage `json:"payload"`
	RubricRef    string          `json:"rubric_ref"`
}

// Validate checks the structural fields every task must carry, independent of
// kind-specific payload shape.
func (t *Task) Validate() error {
	switch {
	case t.TaskID == "":
		return fmt.Errorf("task_id is required")
	case t.LearnerID == "":
		return fmt.Errorf("learner_id is required")
	case t.AssignmentID == "":
		return fmt.Errorf("assignment_id is required")
	case t.Kind == "":
		return fmt.Errorf("kind is required")
	case t.RubricRef == "":
		return fmt.Errorf("rubric_ref is required")
	case len(t.Payload) == 0:
		return fmt.Errorf("payload is required")
	}
	return nil
}

// MCQPayload is the normalized content of a multiple-choice task.
type MCQPayload struct {
	Answers []MCQAnswer `json:"answers"`
}

// MCQAnswer pairs a learner's selected option with the answer key.
type MCQAnswer struct {
	QuestionID string `json:"question_id"`
	Selected   string `json:"selected"`
	Key        string `json:"key"`
}

// TextPayload is the normalized content of a free-text task.
type TextPayload struct {
	Text string `json:"text"`
}

// AudioPayload references a spoken-response recording. The audio bytes
// themselves live in object storage owned by the ingestion boundary.
type AudioPayload struct {
	AudioURL        string  `json:"audio_url"`
	Format          string  `json:"format,omitempty"`
	DurationSeconds float64 `json:"duration_seconds,omitempty"`
}

// Manifest is the expected task set for a (learner, assignment) pair,
// supplied by the normalization layer. Completeness is computed against it.
type Manifest struct {
	LearnerID    string   `json:"learner_id"`
	AssignmentID string   `json:"assignment_id"`
	TaskIDs      []string `json:"task_ids"`
}
