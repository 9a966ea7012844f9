package tasks

import (
	"context"
	"sync"

	"gorm.io/gorm"

	"payment_app_echo/internal/services"
)

// Env carries the dependencies a task handler may need. The worker builds
// one Env at startup and shares it across executions.
type Env struct {
	DB       *gorm.DB
	Payments *services.PaymentService
}

// TaskHandler executes one scheduled task run. The returned map is stored as
// the run result in the task history.
type TaskHandler func(ctx context.Context, env *Env, args map[string]interface{}) (map[string]interface{}, error)

// Registry stores the mapping of task names to handlers
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]TaskHandler
}

func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string]TaskHandler)}
}

// Register adds a handler for a task name
func (r *Registry) Register(name string, handler TaskHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[name] = handler
}

// Get retrieves a handler for a task name
func (r *Registry) Get(name string) (TaskHandler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	handler, ok := r.handlers[name]
	return handler, ok
}
