package service

import (
	"context"
	"time"

	"github.com/ds124wfegd/WB_L3/parking/pkg/queue"
)

// QueueAdapter публикует уведомления в очередь задач вместо прямой доставки
type QueueAdapter struct {
	queue      queue.Queue
	maxRetries int
}

// NewQueueAdapter создает новый адаптер для очереди
func NewQueueAdapter(q queue.Queue, maxRetries int) *QueueAdapter {
	return &QueueAdapter{queue: q, maxRetries: maxRetries}
}

// Notify кладет задачу notify в очередь; доставку выполняет NotificationDispatcher
func (a *QueueAdapter) Notify(ctx context.Context, target Target, eventType string, payload map[string]interface{}) error {
	if a.queue == nil {
		return nil // Если очередь не инициализирована, игнорируем
	}

	task := &queue.Task{
		Type: queue.TaskTypeNotify,
		Data: map[string]interface{}{
			"role":       string(target.Role),
			"ticketCode": target.TicketCode,
			"event":      eventType,
			"payload":    payload,
		},
		ExecuteAt:  time.Now(),
		MaxRetries: a.maxRetries,
	}

	return a.queue.Publish(ctx, task)
}
