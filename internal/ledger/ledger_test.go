// internal/ledger/ledger_test.go
package ledger

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func entry(taskID, assignmentID string, attempt int, code string, terminal bool) Entry {
	return Entry{
		TaskID:       taskID,
		LearnerID:    "learner-1",
		AssignmentID: assignmentID,
		Attempt:      attempt,
		Code:         code,
		Message:      "upstream unavailable",
		Retryable:    !terminal,
		Terminal:     terminal,
		RecordedAt:   time.Now().UTC(),
	}
}

func TestMemoryLedger_AppendAndListByTask(t *testing.T) {
	l := NewMemoryLedger()
	ctx := context.Background()

	require.NoError(t, l.Append(ctx, entry("t-1", "a-1", 1, "UPSTREAM_FAILURE", false)))
	require.NoError(t, l.Append(ctx, entry("t-1", "a-1", 2, "UPSTREAM_TIMEOUT", false)))
	require.NoError(t, l.Append(ctx, entry("t-2", "a-1", 1, "SCHEMA_ERROR", true)))

	entries, err := l.ListByTask(ctx, "t-1")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, 1, entries[0].Attempt)
	assert.Equal(t, 2, entries[1].Attempt)
}

func TestMemoryLedger_HistorySurvivesLaterEntries(t *testing.T) {
	l := NewMemoryLedger()
	ctx := context.Background()

	require.NoError(t, l.Append(ctx, entry("t-1", "a-1", 1, "UPSTREAM_FAILURE", false)))
	require.NoError(t, l.Append(ctx, entry("t-1", "a-1", 2, "UPSTREAM_FAILURE", false)))

	entries, err := l.ListByTask(ctx, "t-1")
	require.NoError(t, err)
	assert.Len(t, entries, 2)
	assert.Equal(t, "UPSTREAM_FAILURE", entries[0].Code)
}

func TestMemoryLedger_ListDeadLettered(t *testing.T) {
	l := NewMemoryLedger()
	ctx := context.Background()

	require.NoError(t, l.Append(ctx, entry("t-1", "a-1", 1, "UPSTREAM_FAILURE", false)))
	require.NoError(t, l.Append(ctx, entry("t-1", "a-1", 5, "RETRY_BUDGET_EXHAUSTED", true)))
	require.NoError(t, l.Append(ctx, entry("t-3", "a-2", 1, "SCHEMA_ERROR", true)))

	dead, err := l.ListDeadLettered(ctx, "a-1")
	require.NoError(t, err)
	require.Len(t, dead, 1)
	assert.Equal(t, "t-1", dead[0].TaskID)
	assert.Equal(t, "RETRY_BUDGET_EXHAUSTED", dead[0].Code)
}

func TestMemoryLedger_IsDeadLettered(t *testing.T) {
	l := NewMemoryLedger()
	ctx := context.Background()

	require.NoError(t, l.Append(ctx, entry("t-1", "a-1", 1, "UPSTREAM_FAILURE", false)))
	require.NoError(t, l.Append(ctx, entry("t-2", "a-1", 1, "UNSUPPORTED_KIND", true)))

	dead, err := l.IsDeadLettered(ctx, "t-1")
	require.NoError(t, err)
	assert.False(t, dead)

	dead, err = l.IsDeadLettered(ctx, "t-2")
	require.NoError(t, err)
	assert.True(t, dead)
}
