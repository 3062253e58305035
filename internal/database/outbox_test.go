package database

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/afiqaffendi/rbs/internal/models"
)

func TestOutboxQueue(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()
	ctx := context.Background()

	task := &models.OutboxTask{
		EventType: models.EventInventoryUpdated,
		Payload:   `{"restaurant_id":1}`,
	}
	require.NoError(t, db.CreateOutboxTask(ctx, task))
	assert.NotZero(t, task.ID)
	assert.Equal(t, models.OutboxStatusPending, task.Status)

	tasks, err := db.GetPendingOutboxTasks(ctx, 10)
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, task.ID, tasks[0].ID)

	// Retry in the future hides the task.
	next := time.Now().Add(time.Hour)
	require.NoError(t, db.UpdateOutboxTaskStatus(ctx, task.ID, models.OutboxStatusRetry, "broker down", &next))
	tasks, err = db.GetPendingOutboxTasks(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, tasks)

	// Retry in the past makes it due again.
	past := time.Now().Add(-time.Minute)
	require.NoError(t, db.UpdateOutboxTaskStatus(ctx, task.ID, models.OutboxStatusRetry, "broker down", &past))
	tasks, err = db.GetPendingOutboxTasks(ctx, 10)
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, 2, tasks[0].RetryCount)
	require.NotNil(t, tasks[0].LastError)
	assert.Equal(t, "broker down", *tasks[0].LastError)

	require.NoError(t, db.UpdateOutboxTaskStatus(ctx, task.ID, models.OutboxStatusFailed, "gave up", nil))
	failed, err := db.GetFailedOutboxTasks(ctx)
	require.NoError(t, err)
	require.Len(t, failed, 1)
	assert.NotNil(t, failed[0].ProcessedAt)

	counts, err := db.CountOutboxByStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{models.OutboxStatusFailed: 1}, counts)
}

func TestOutboxQueue_Done(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()
	ctx := context.Background()

	task := &models.OutboxTask{EventType: models.EventHoursUpdated, Payload: "{}"}
	require.NoError(t, db.CreateOutboxTask(ctx, task))
	require.NoError(t, db.UpdateOutboxTaskStatus(ctx, task.ID, models.OutboxStatusDone, "", nil))

	tasks, err := db.GetPendingOutboxTasks(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, tasks)
}
