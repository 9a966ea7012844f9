package tasks

import (
	"errors"
	"time"

	"gorm.io/gorm"

	"payment_app_echo/internal/models"
)

// DefineTasks registers all available tasks
func DefineTasks(r *Registry) {
	r.Register(ExpirePendingTask.TaskID(), ExpirePendingTask.HandleExecution)
}

// expiryRecurrence runs the expiry sweep every five minutes
const expiryRecurrence = "FREQ=MINUTELY;INTERVAL=5"

// EnsureDefaultTasks seeds the recurring expiry task if no active one exists
func EnsureDefaultTasks(db *gorm.DB) error {
	var existing models.ScheduledTask
	err := db.Where("task_name = ? AND status = ?",
		ExpirePendingTask.TaskID(), models.ScheduledTaskStatusActive).
		First(&existing).Error
	if err == nil {
		return nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}

	recurrence := expiryRecurrence
	task, err := BuildScheduledTask(
		ExpirePendingTask.TaskID(),
		map[string]interface{}{"max_age_minutes": DefaultPendingMaxAgeMinutes},
		time.Now(),
		&recurrence,
		models.ScheduledTaskTypeRecurring,
		3,
	)
	if err != nil {
		return err
	}
	return db.Create(task).Error
}
