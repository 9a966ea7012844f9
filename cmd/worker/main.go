package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"payment_app_echo/internal/models"
	"payment_app_echo/internal/services"
	"payment_app_echo/internal/tasks"
)

func main() {
	// Load environment variables
	if err := godotenv.Load(); err != nil {
		fmt.Println("No .env file found, using system environment")
	}

	logger := services.NewLogger("payment-worker")
	defer logger.Sync()

	databaseURL := os.Getenv("DATABASE_URL")
	if databaseURL == "" {
		logger.Fatal("DATABASE_URL not set")
	}
	db, err := services.InitDB(databaseURL)
	if err != nil {
		logger.Fatal("failed to connect to database", zap.Error(err))
	}

	gateway := selectGateway()
	store := services.NewGormPaymentStore(db)
	payments := services.NewPaymentService(store, gateway, nil, nil, logger)

	env := &tasks.Env{DB: db, Payments: payments}
	registry := tasks.NewRegistry()
	tasks.DefineTasks(registry)

	if err := tasks.EnsureDefaultTasks(db); err != nil {
		logger.Fatal("failed to seed default tasks", zap.Error(err))
	}

	logger.Info("worker started, waiting for next tick")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan
		logger.Info("shutting down worker")
		cancel()
	}()

	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	// Run once at startup, then on every tick
	processScheduledTasks(ctx, db, registry, env, logger)

	for {
		select {
		case <-ticker.C:
			processScheduledTasks(ctx, db, registry, env, logger)
		case <-ctx.Done():
			return
		}
	}
}

func selectGateway() services.PaymentGateway {
	if os.Getenv("PAYMENT_GATEWAY") == "midtrans" {
		return services.NewMidtransGateway()
	}
	return services.NewTossService()
}

func processScheduledTasks(ctx context.Context, db *gorm.DB, registry *tasks.Registry, env *tasks.Env, logger *zap.Logger) {
	var pendingTasks []models.ScheduledTask
	now := time.Now()
	if err := db.Where("status = ? AND due <= ?", models.ScheduledTaskStatusActive, now).Find(&pendingTasks).Error; err != nil {
		logger.Error("failed to fetch pending tasks", zap.Error(err))
		return
	}

	if len(pendingTasks) == 0 {
		return
	}
	logger.Info("found pending tasks", zap.Int("count", len(pendingTasks)))

	for _, task := range pendingTasks {
		if ctx.Err() != nil {
			return
		}
		executeTask(ctx, db, registry, env, logger, task, 1)
	}
}

func executeTask(ctx context.Context, db *gorm.DB, registry *tasks.Registry, env *tasks.Env, logger *zap.Logger, task models.ScheduledTask, curAttempt int) {
	logger.Info("processing task",
		zap.String("task_name", task.TaskName),
		zap.Uint("task_id", task.ID),
		zap.Int("attempt", curAttempt))

	if task.Arguments == nil {
		task.Arguments = make(map[string]interface{})
	}

	handler, found := registry.Get(task.TaskName)
	if !found {
		logger.Error("task handler not found, marking as failure",
			zap.String("task_name", task.TaskName))

		now := time.Now()
		db.Model(&task).Updates(map[string]interface{}{
			"status":   models.ScheduledTaskStatusFailure,
			"last_run": &now,
		})
		history := models.ScheduledTaskHistory{
			ScheduledTaskID: task.ID,
			TaskName:        task.TaskName,
			RunAt:           now,
			Status:          "handler_not_found",
			AttemptNumber:   curAttempt,
			Arguments:       task.Arguments,
			Result:          map[string]interface{}{"error": "handler not found"},
		}
		db.Create(&history)
		return
	}

	startTime := time.Now()
	result, err := handler(ctx, env, task.Arguments)
	runtimeMs := int(time.Since(startTime).Milliseconds())

	status := "success"
	var resultData map[string]interface{}
	if err != nil {
		status = "failure"
		resultData = map[string]interface{}{"error": err.Error()}
		logger.Error("task failed", zap.String("task_name", task.TaskName), zap.Error(err))
	} else {
		resultData = result
		logger.Info("task completed", zap.String("task_name", task.TaskName), zap.Int("runtime_ms", runtimeMs))
	}

	history := models.ScheduledTaskHistory{
		ScheduledTaskID: task.ID,
		TaskName:        task.TaskName,
		RunAt:           startTime,
		Runtime:         runtimeMs,
		Status:          status,
		AttemptNumber:   curAttempt,
		Arguments:       task.Arguments,
		Result:          resultData,
	}
	db.Create(&history)

	taskUpdates := map[string]interface{}{
		"last_run": &startTime,
	}

	if status != "success" {
		if curAttempt < task.MaxAttempt {
			executeTask(ctx, db, registry, env, logger, task, curAttempt+1)
			return
		}
		taskUpdates["status"] = models.ScheduledTaskStatusFailure
	} else {
		switch task.TaskType {
		case models.ScheduledTaskTypeOneTime:
			taskUpdates["status"] = models.ScheduledTaskStatusDone
		case models.ScheduledTaskTypeRecurring:
			nextDue := task.NextDue()
			// the next due must move forward, otherwise the task would run
			// again on every tick
			if nextDue.After(task.Due) {
				taskUpdates["status"] = models.ScheduledTaskStatusActive
				taskUpdates["due"] = nextDue
			} else {
				taskUpdates["status"] = models.ScheduledTaskStatusDone
			}
		}
	}

	db.Model(&task).Updates(taskUpdates)
}
