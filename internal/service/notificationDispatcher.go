package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ds124wfegd/WB_L3/parking/internal/database"
	"github.com/ds124wfegd/WB_L3/parking/internal/entity"
	"github.com/ds124wfegd/WB_L3/parking/internal/metrics"
	"github.com/ds124wfegd/WB_L3/parking/pkg/queue"
	"github.com/sirupsen/logrus"
)

// PushPublisher hands a push request to the external delivery service.
type PushPublisher interface {
	Publish(ctx context.Context, message interface{}) error
}

// ChatSender posts a text message to the admin chat.
type ChatSender interface {
	SendMessage(ctx context.Context, chatID, text string) error
}

// PushRequest is the message consumed by the push delivery service.
type PushRequest struct {
	SubscriptionID string                 `json:"subscriptionId"`
	Endpoint       string                 `json:"endpoint"`
	Event          string                 `json:"event"`
	TicketCode     string                 `json:"ticketCode,omitempty"`
	Title          string                 `json:"title"`
	Body           string                 `json:"body"`
	Tag            string                 `json:"tag"`
	Data           map[string]interface{} `json:"data,omitempty"`
	CreatedAt      time.Time              `json:"createdAt"`
}

// NotificationDispatcher resolves subscriptions of a target and delivers to
// each of them. It is both a direct Notifier and the handler of queued
// notify tasks.
type NotificationDispatcher struct {
	subs database.SubscriptionRepository
	push PushPublisher
	chat ChatSender
}

// NewNotificationDispatcher: push and chat may be nil, the sink is then skipped.
func NewNotificationDispatcher(subs database.SubscriptionRepository, push PushPublisher, chat ChatSender) *NotificationDispatcher {
	return &NotificationDispatcher{subs: subs, push: push, chat: chat}
}

func (d *NotificationDispatcher) Notify(ctx context.Context, target Target, eventType string, payload map[string]interface{}) error {
	if eventType == "" {
		return fmt.Errorf("notification type is required")
	}
	if target.Role == entity.RoleUser && target.TicketCode == "" {
		return fmt.Errorf("user notification requires a ticket code")
	}

	title, body := renderNotification(eventType, target.TicketCode, payload)
	var errs []error

	if target.Role == entity.RoleAdmin && d.chat != nil {
		if err := d.chat.SendMessage(ctx, "", title+"\n"+body); err != nil {
			errs = append(errs, fmt.Errorf("telegram: %w", err))
		}
	}

	if d.push != nil {
		subs, err := d.subs.GetActive(ctx, target.Role, target.TicketCode)
		if err != nil {
			return fmt.Errorf("failed to load subscriptions: %w", err)
		}
		for _, sub := range subs {
			req := &PushRequest{
				SubscriptionID: sub.ID,
				Endpoint:       sub.Endpoint,
				Event:          eventType,
				TicketCode:     target.TicketCode,
				Title:          title,
				Body:           body,
				Tag:            fmt.Sprintf("%s-%s", eventType, target.TicketCode),
				Data:           payload,
				CreatedAt:      time.Now().UTC(),
			}
			if err := d.push.Publish(ctx, req); err != nil {
				errs = append(errs, fmt.Errorf("push %s: %w", sub.ID, err))
			}
		}
	}

	if len(errs) > 0 {
		metrics.Notifications.WithLabelValues("failed").Inc()
		return errors.Join(errs...)
	}
	metrics.Notifications.WithLabelValues("sent").Inc()

	logrus.WithFields(logrus.Fields{
		"event":       eventType,
		"role":        target.Role,
		"ticket_code": target.TicketCode,
	}).Debug("Notification delivered")
	return nil
}

// HandleTask decodes a queued notify task and delivers it.
func (d *NotificationDispatcher) HandleTask(ctx context.Context, task *queue.Task) error {
	event := task.GetString("event")
	role := entity.Role(task.GetString("role"))
	if event == "" || (role != entity.RoleAdmin && role != entity.RoleUser) {
		return queue.Permanent(fmt.Errorf("malformed notify task %s", task.ID))
	}
	return d.Notify(ctx, Target{Role: role, TicketCode: task.GetString("ticketCode")}, event, task.GetMap("payload"))
}

func renderNotification(event, ticketCode string, payload map[string]interface{}) (string, string) {
	plate, _ := payload["plate"].(string)
	if plate == "" {
		plate = "N/A"
	}

	switch event {
	case NotifyVehicleRegistered:
		return "Vehicle registered", fmt.Sprintf("Vehicle %s registered. Ticket: %s", plate, ticketCode)
	case NotifyVehicleParked:
		return "Vehicle parked", fmt.Sprintf("Vehicle %s confirmed on ticket %s", plate, ticketCode)
	case NotifyPaymentReceived:
		return "Payment received", fmt.Sprintf("Ticket %s: payment of %v for %s awaits validation", ticketCode, payload["amount"], plate)
	case NotifyPaymentValidated:
		return "Payment validated", fmt.Sprintf("Your payment of %v for ticket %s was validated", payload["amount"], ticketCode)
	case NotifyVehicleExit:
		return "Vehicle left", fmt.Sprintf("Vehicle %s left ticket %s after %v minutes", plate, ticketCode, payload["duration"])
	case NotifyQuickExit:
		return "Quick exit", fmt.Sprintf("Vehicle %s left ticket %s through quick exit", plate, ticketCode)
	}
	return event, fmt.Sprintf("Ticket %s: %s", ticketCode, event)
}
