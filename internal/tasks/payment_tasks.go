package tasks

import (
	"context"
	"time"
)

// DefaultPendingMaxAgeMinutes is how long a payment may stay PENDING before
// the expiry task fails it.
const DefaultPendingMaxAgeMinutes = 30

// ExpirePendingTaskDef fails PENDING payments that were never confirmed
type ExpirePendingTaskDef struct{}

// TaskID returns the unique identifier for this task
func (t *ExpirePendingTaskDef) TaskID() string {
	return "expire_pending_payments"
}

// HandleExecution expires stale PENDING payments. The max_age_minutes
// argument overrides the default window.
func (t *ExpirePendingTaskDef) HandleExecution(ctx context.Context, env *Env, args map[string]interface{}) (map[string]interface{}, error) {
	maxAgeMinutes := DefaultPendingMaxAgeMinutes
	// JSON numbers decode as float64
	if v, ok := args["max_age_minutes"].(float64); ok && v > 0 {
		maxAgeMinutes = int(v)
	}

	expired, err := env.Payments.ExpireStalePayments(ctx, time.Duration(maxAgeMinutes)*time.Minute)
	if err != nil {
		return nil, err
	}

	return map[string]interface{}{
		"status":          "success",
		"expired_count":   expired,
		"max_age_minutes": maxAgeMinutes,
	}, nil
}

// ExpirePendingTask is the singleton instance of ExpirePendingTaskDef
var ExpirePendingTask = &ExpirePendingTaskDef{}
