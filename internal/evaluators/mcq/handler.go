// internal/evaluators/mcq/handler.go
package mcq

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	evalerrors "ace-pipeline/internal/common/errors"
	"ace-pipeline/internal/common/logger"
	"ace-pipeline/internal/common/validation"
	"ace-pipeline/internal/evaluators"
	"ace-pipeline/internal/models"
)

// Handler scores multiple-choice tasks by exact match against the answer key.
// No upstream calls, no confidence: a given payload always produces the same
// vector.
type Handler struct {
	config  *Config
	rubrics evaluators.RubricSource
	logger  logger.Logger
}

func NewHandler(config *Config, rubrics evaluators.RubricSource, log logger.Logger) *Handler {
	if config == nil {
		config = DefaultConfig()
	}
	return &Handler{
		config:  config,
		rubrics: rubrics,
		logger:  log.WithFields(map[string]interface{}{"evaluator": string(models.KindMCQ)}),
	}
}

func (h *Handler) Kind() models.TaskKind {
	return models.KindMCQ
}

func (h *Handler) Evaluate(ctx context.Context, task *models.Task) (*models.ScoreVector, error) {
	start := time.Now()

	if err := validation.ValidatePayload(models.KindMCQ, task.Payload); err != nil {
		return nil, evalerrors.NewSchemaError(err.Error())
	}

	var payload models.MCQPayload
	if err := json.Unmarshal(task.Payload, &payload); err != nil {
		return nil, evalerrors.NewSchemaError(fmt.Sprintf("decode mcq payload: %v", err))
	}

	rubric, ok := h.rubrics.Rubric(task.RubricRef)
	if !ok {
		return nil, evalerrors.NewSchemaError(fmt.Sprintf("unknown rubric_ref: %s", task.RubricRef))
	}

	correct := 0
	for _, ans := range payload.Answers {
		if strings.EqualFold(strings.TrimSpace(ans.Selected), strings.TrimSpace(ans.Key)) {
			correct++
		}
	}
	accuracy := float64(correct) / float64(len(payload.Answers))

	scores := make(map[models.Dimension]models.DimensionScore)
	for _, dim := range rubric.DeclaredDimensions() {
		score := h.dimensionScore(dim, accuracy)
		scores[dim] = models.DimensionScore{
			Score:    score,
			Weight:   rubric.Weights[dim],
			Feedback: models.FeedbackForScore(score),
		}
	}

	h.logger.Debug("mcq task scored", map[string]interface{}{
		"taskId":   task.TaskID,
		"correct":  correct,
		"total":    len(payload.Answers),
		"accuracy": accuracy,
	})

	return &models.ScoreVector{
		TaskID:        task.TaskID,
		EvaluatorKind: models.KindMCQ,
		EvaluatedAt:   time.Now().UTC(),
		Scores:        scores,
		Feedback: fmt.Sprintf("%d of %d answers correct. %s",
			correct, len(payload.Answers), models.FeedbackForScore(accuracy)),
		DurationMS: time.Since(start).Milliseconds(),
		Metadata: map[string]string{
			"correct_answers": strconv.Itoa(correct),
			"total_questions": strconv.Itoa(len(payload.Answers)),
		},
	}, nil
}

// dimensionScore derives one rubric axis from raw accuracy. Analysis and
// evaluation track accuracy directly; communication is capped because option
// selection cannot demonstrate articulation beyond a point.
func (h *Handler) dimensionScore(dim models.Dimension, accuracy float64) float64 {
	switch dim {
	case models.DimCommunication:
		if accuracy > h.config.CommunicationCap {
			return h.config.CommunicationCap
		}
		return models.ClampScore(accuracy)
	default:
		return models.ClampScore(accuracy)
	}
}
