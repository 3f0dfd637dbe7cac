// internal/evaluators/text/handler.go
package text

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	evalerrors "ace-pipeline/internal/common/errors"
	"ace-pipeline/internal/common/genai"
	"ace-pipeline/internal/common/logger"
	"ace-pipeline/internal/common/validation"
	"ace-pipeline/internal/evaluators"
	"ace-pipeline/internal/models"
)

// Scorer is the upstream text-scoring contract. *genai.ScoringClient
// satisfies it.
type Scorer interface {
	ScoreText(ctx context.Context, text string) (*genai.ScoreResult, error)
}

// Handler scores free-text tasks through the upstream scoring service. The
// service's per-dimension scores are filtered down to the task's rubric
// declarations; undeclared dimensions never leak into the vector.
type Handler struct {
	config  *Config
	scorer  Scorer
	rubrics evaluators.RubricSource
	logger  logger.Logger
}

func NewHandler(config *Config, scorer Scorer, rubrics evaluators.RubricSource, log logger.Logger) *Handler {
	if config == nil {
		config = DefaultConfig()
	}
	return &Handler{
		config:  config,
		scorer:  scorer,
		rubrics: rubrics,
		logger:  log.WithFields(map[string]interface{}{"evaluator": string(models.KindText)}),
	}
}

func (h *Handler) Kind() models.TaskKind {
	return models.KindText
}

func (h *Handler) Evaluate(ctx context.Context, task *models.Task) (*models.ScoreVector, error) {
	start := time.Now()

	if err := validation.ValidatePayload(models.KindText, task.Payload); err != nil {
		return nil, evalerrors.NewSchemaError(err.Error())
	}

	var payload models.TextPayload
	if err := json.Unmarshal(task.Payload, &payload); err != nil {
		return nil, evalerrors.NewSchemaError(fmt.Sprintf("decode text payload: %v", err))
	}
	if len(strings.Fields(payload.Text)) < h.config.MinWords {
		return nil, evalerrors.NewSchemaError(fmt.Sprintf("text shorter than %d words", h.config.MinWords))
	}

	rubric, ok := h.rubrics.Rubric(task.RubricRef)
	if !ok {
		return nil, evalerrors.NewSchemaError(fmt.Sprintf("unknown rubric_ref: %s", task.RubricRef))
	}

	result, err := h.scorer.ScoreText(ctx, payload.Text)
	if err != nil {
		return nil, err
	}

	vector := BuildVector(task.TaskID, models.KindText, rubric, result)
	vector.DurationMS = time.Since(start).Milliseconds()

	h.logger.Debug("text task scored", map[string]interface{}{
		"taskId":     task.TaskID,
		"dimensions": len(vector.Scores),
		"confidence": result.Confidence,
	})

	return vector, nil
}

// BuildVector assembles a score vector from an upstream scoring result,
// keeping only the rubric-declared dimensions. Shared with the audio
// evaluator, which scores transcripts through the same service.
func BuildVector(taskID string, kind models.TaskKind, rubric models.Rubric, result *genai.ScoreResult) *models.ScoreVector {
	raw := map[models.Dimension]struct {
		score    float64
		feedback string
	}{
		models.DimAnalysis:      {result.AnalysisScore, result.AnalysisFeedback},
		models.DimCommunication: {result.CommunicationScore, result.CommunicationFeedback},
		models.DimEvaluation:    {result.EvaluationScore, result.EvaluationFeedback},
	}

	scores := make(map[models.Dimension]models.DimensionScore)
	for _, dim := range rubric.DeclaredDimensions() {
		r := raw[dim]
		feedback := r.feedback
		if feedback == "" {
			feedback = models.FeedbackForScore(r.score)
		}
		scores[dim] = models.DimensionScore{
			Score:    models.ClampScore(r.score),
			Weight:   rubric.Weights[dim],
			Feedback: feedback,
		}
	}

	confidence := result.Confidence
	return &models.ScoreVector{
		TaskID:        taskID,
		EvaluatorKind: kind,
		EvaluatedAt:   time.Now().UTC(),
		Scores:        scores,
		Confidence:    &confidence,
		Feedback:      result.OverallFeedback,
	}
}
