package tasks

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"payment_app_echo/internal/models"
)

func TestBuildScheduledTask(t *testing.T) {
	due := time.Now().Add(time.Hour)
	recurrence := "FREQ=MINUTELY;INTERVAL=5"

	task, err := BuildScheduledTask(
		"expire_pending_payments",
		map[string]interface{}{"max_age_minutes": 30},
		due,
		&recurrence,
		models.ScheduledTaskTypeRecurring,
		3,
	)
	require.NoError(t, err)

	assert.Equal(t, "expire_pending_payments", task.TaskName)
	assert.Equal(t, models.ScheduledTaskStatusActive, task.Status)
	assert.Equal(t, models.ScheduledTaskTypeRecurring, task.TaskType)
	assert.Equal(t, 3, task.MaxAttempt)
	require.NotNil(t, task.RecurringInterval)
	assert.Equal(t, recurrence, *task.RecurringInterval)
	// args pass through json, numbers come back as float64
	assert.Equal(t, float64(30), task.Arguments["max_age_minutes"])
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	DefineTasks(r)

	_, found := r.Get(ExpirePendingTask.TaskID())
	assert.True(t, found)

	_, found = r.Get("unknown_task")
	assert.False(t, found)
}
