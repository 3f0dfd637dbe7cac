// internal/evaluators/mcq/handler_test.go
package mcq

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	evalerrors "ace-pipeline/internal/common/errors"
	"ace-pipeline/internal/common/logger"
	"ace-pipeline/internal/models"
)

// ==========================
// Test Helper Functions
// ==========================

type stubRubrics map[string]models.Rubric

func (s stubRubrics) Rubric(ref string) (models.Rubric, bool) {
	r, ok := s[ref]
	return r, ok
}

func createTestRubrics() stubRubrics {
	return stubRubrics{
		"analysis-only": {Weights: map[models.Dimension]float64{
			models.DimAnalysis: 1.0,
		}},
		"full": {Weights: map[models.Dimension]float64{
			models.DimAnalysis:      0.5,
			models.DimCommunication: 0.3,
			models.DimEvaluation:    0.2,
		}},
	}
}

func createTestHandler(t *testing.T) *Handler {
	return NewHandler(nil, createTestRubrics(), logger.NewTestLogger(t))
}

func createTask(t *testing.T, rubricRef string, answers []models.MCQAnswer) *models.Task {
	payload, err := json.Marshal(models.MCQPayload{Answers: answers})
	require.NoError(t, err)
	return &models.Task{
		TaskID:       "task-1",
		LearnerID:    "learner-1",
		AssignmentID: "assignment-1",
		Kind:         models.KindMCQ,
		Payload:      payload,
		RubricRef:    rubricRef,
	}
}

// ==========================
// Core Functionality Tests
// ==========================

func TestHandler_Evaluate_Accuracy(t *testing.T) {
	tests := []struct {
		name             string
		answers          []models.MCQAnswer
		expectedAnalysis float64
	}{
		{
			name: "single correct answer scores full analysis",
			answers: []models.MCQAnswer{
				{QuestionID: "q1", Selected: "B", Key: "B"},
			},
			expectedAnalysis: 1.0,
		},
		{
			name: "single wrong answer scores zero",
			answers: []models.MCQAnswer{
				{QuestionID: "q1", Selected: "A", Key: "B"},
			},
			expectedAnalysis: 0.0,
		},
		{
			name: "half correct scores half",
			answers: []models.MCQAnswer{
				{QuestionID: "q1", Selected: "A", Key: "A"},
				{QuestionID: "q2", Selected: "C", Key: "B"},
			},
			expectedAnalysis: 0.5,
		},
		{
			name: "case and whitespace are ignored",
			answers: []models.MCQAnswer{
				{QuestionID: "q1", Selected: " b ", Key: "B"},
			},
			expectedAnalysis: 1.0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := createTestHandler(t)
			task := createTask(t, "analysis-only", tt.answers)

			vector, err := handler.Evaluate(context.Background(), task)

			require.NoError(t, err)
			require.NotNil(t, vector)
			assert.Equal(t, models.KindMCQ, vector.EvaluatorKind)
			assert.Equal(t, task.TaskID, vector.TaskID)
			assert.InDelta(t, tt.expectedAnalysis, vector.Scores[models.DimAnalysis].Score, 1e-9)
		})
	}
}

func TestHandler_Evaluate_OnlyDeclaredDimensions(t *testing.T) {
	handler := createTestHandler(t)
	task := createTask(t, "analysis-only", []models.MCQAnswer{
		{QuestionID: "q1", Selected: "B", Key: "B"},
	})

	vector, err := handler.Evaluate(context.Background(), task)

	require.NoError(t, err)
	assert.Len(t, vector.Scores, 1)
	assert.Contains(t, vector.Scores, models.DimAnalysis)
	assert.NotContains(t, vector.Scores, models.DimCommunication)
	assert.NotContains(t, vector.Scores, models.DimEvaluation)
}

func TestHandler_Evaluate_CommunicationCap(t *testing.T) {
	handler := createTestHandler(t)
	task := createTask(t, "full", []models.MCQAnswer{
		{QuestionID: "q1", Selected: "A", Key: "A"},
		{QuestionID: "q2", Selected: "B", Key: "B"},
	})

	vector, err := handler.Evaluate(context.Background(), task)

	require.NoError(t, err)
	assert.InDelta(t, 1.0, vector.Scores[models.DimAnalysis].Score, 1e-9)
	assert.InDelta(t, 0.8, vector.Scores[models.DimCommunication].Score, 1e-9)
	assert.InDelta(t, 1.0, vector.Scores[models.DimEvaluation].Score, 1e-9)
}

func TestHandler_Evaluate_NoConfidence(t *testing.T) {
	handler := createTestHandler(t)
	task := createTask(t, "analysis-only", []models.MCQAnswer{
		{QuestionID: "q1", Selected: "B", Key: "B"},
	})

	vector, err := handler.Evaluate(context.Background(), task)

	require.NoError(t, err)
	assert.Nil(t, vector.Confidence)
}

func TestHandler_Evaluate_Determinism(t *testing.T) {
	handler := createTestHandler(t)
	task := createTask(t, "full", []models.MCQAnswer{
		{QuestionID: "q1", Selected: "A", Key: "A"},
		{QuestionID: "q2", Selected: "C", Key: "B"},
		{QuestionID: "q3", Selected: "D", Key: "D"},
	})

	first, err := handler.Evaluate(context.Background(), task)
	require.NoError(t, err)

	second, err := handler.Evaluate(context.Background(), task)
	require.NoError(t, err)

	for dim, ds := range first.Scores {
		assert.Equal(t, ds.Score, second.Scores[dim].Score)
		assert.Equal(t, ds.Weight, second.Scores[dim].Weight)
	}
}

// ==========================
// Error Cases
// ==========================

func TestHandler_Evaluate_ErrorCases(t *testing.T) {
	handler := createTestHandler(t)

	t.Run("malformed payload is a schema error", func(t *testing.T) {
		task := &models.Task{
			TaskID:       "task-bad",
			LearnerID:    "learner-1",
			AssignmentID: "assignment-1",
			Kind:         models.KindMCQ,
			Payload:      json.RawMessage(`{"answers": []}`),
			RubricRef:    "analysis-only",
		}

		vector, err := handler.Evaluate(context.Background(), task)

		require.Error(t, err)
		assert.Nil(t, vector)
		evalErr := evalerrors.Classify(err)
		assert.Equal(t, evalerrors.ErrCodeSchema, evalErr.Code)
		assert.False(t, evalErr.Retryable)
	})

	t.Run("unknown rubric ref is a schema error", func(t *testing.T) {
		task := createTask(t, "no-such-rubric", []models.MCQAnswer{
			{QuestionID: "q1", Selected: "B", Key: "B"},
		})

		vector, err := handler.Evaluate(context.Background(), task)

		require.Error(t, err)
		assert.Nil(t, vector)
		assert.Equal(t, evalerrors.ErrCodeSchema, evalerrors.Classify(err).Code)
	})
}
