package queue

import (
	"context"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"
)

// HandlerFunc processes one task type.
type HandlerFunc func(ctx context.Context, task *Task) error

// TaskHandler обрабатывает задачи из очереди, выбирая обработчик по типу
type TaskHandler struct {
	mu       sync.RWMutex
	handlers map[TaskType]HandlerFunc
}

// NewTaskHandler создает новый обработчик задач
func NewTaskHandler() *TaskHandler {
	return &TaskHandler{handlers: make(map[TaskType]HandlerFunc)}
}

func (h *TaskHandler) Register(taskType TaskType, fn HandlerFunc) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.handlers[taskType] = fn
}

// HandleTask обрабатывает задачу
func (h *TaskHandler) HandleTask(ctx context.Context, task *Task) error {
	logrus.WithFields(logrus.Fields{
		"task_id":  task.ID,
		"type":     task.Type,
		"attempts": task.Attempts,
	}).Debug("Handling task")

	h.mu.RLock()
	fn, ok := h.handlers[task.Type]
	h.mu.RUnlock()

	if !ok {
		return Permanent(fmt.Errorf("unknown task type: %s", task.Type))
	}
	return fn(ctx, task)
}
