// internal/coordinator/store_test.go
package coordinator

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redismock/v9"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ace-pipeline/internal/models"
)

func succeededOutcome(taskID string) *models.TaskOutcome {
	return &models.TaskOutcome{
		TaskID:       taskID,
		LearnerID:    "learner-1",
		AssignmentID: "assignment-1",
		State:        models.StateSucceeded,
		Score: &models.ScoreVector{
			TaskID:        taskID,
			EvaluatorKind: models.KindMCQ,
			Scores: map[models.Dimension]models.DimensionScore{
				models.DimAnalysis: {Score: 1.0, Weight: 1.0},
			},
		},
		Attempts:   1,
		RecordedAt: time.Now().UTC(),
	}
}

func TestRedisOutcomeStore_FirstWriterWins(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	store := NewRedisOutcomeStore(client)
	ctx := context.Background()

	first := succeededOutcome("t-1")
	stored, err := store.PutTerminal(ctx, first)
	require.NoError(t, err)
	assert.True(t, stored)

	second := &models.TaskOutcome{
		TaskID:       "t-1",
		LearnerID:    "learner-1",
		AssignmentID: "assignment-1",
		State:        models.StateDeadLettered,
		Failure:      &models.FailureReason{Code: "UPSTREAM_FAILURE"},
		Attempts:     2,
		RecordedAt:   time.Now().UTC(),
	}
	stored, err = store.PutTerminal(ctx, second)
	require.NoError(t, err)
	assert.False(t, stored, "second terminal write must lose")

	got, err := store.Get(ctx, "t-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, models.StateSucceeded, got.State)
	assert.Equal(t, 1, got.Attempts)
}

func TestRedisOutcomeStore_GetMissing(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	store := NewRedisOutcomeStore(client)

	got, err := store.Get(context.Background(), "absent")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestRedisOutcomeStore_RejectsNonTerminal(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	store := NewRedisOutcomeStore(client)

	outcome := succeededOutcome("t-1")
	outcome.State = models.StateEvaluating

	_, err := store.PutTerminal(context.Background(), outcome)
	require.Error(t, err)
}

func TestRedisOutcomeStore_PutTerminalCommand(t *testing.T) {
	client, mock := redismock.NewClientMock()
	store := NewRedisOutcomeStore(client)

	outcome := succeededOutcome("t-1")
	data, err := json.Marshal(outcome)
	require.NoError(t, err)

	mock.ExpectSetNX("outcome:t-1", data, 0).SetVal(true)

	stored, err := store.PutTerminal(context.Background(), outcome)
	require.NoError(t, err)
	assert.True(t, stored)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMemoryOutcomeStore_FirstWriterWins(t *testing.T) {
	store := NewMemoryOutcomeStore()
	ctx := context.Background()

	stored, err := store.PutTerminal(ctx, succeededOutcome("t-1"))
	require.NoError(t, err)
	assert.True(t, stored)

	stored, err = store.PutTerminal(ctx, succeededOutcome("t-1"))
	require.NoError(t, err)
	assert.False(t, stored)
}
