package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"tableside/internal/common/logger"
	"tableside/internal/common/mq"
	"tableside/internal/domain"
)

// Notifier publishes a notification about a change that is already
// committed. Delivery is best effort: a failure is logged by the caller and
// never undoes the change.
type Notifier interface {
	Notify(ctx context.Context, n domain.Notification) error
}

type NopNotifier struct{}

func (NopNotifier) Notify(context.Context, domain.Notification) error { return nil }

// Publisher is the part of mq.Client the notifier needs.
type Publisher interface {
	Publish(ctx context.Context, exchange, key string, body []byte, headers amqp.Table) error
}

type AMQPNotifier struct {
	pub     Publisher
	timeout time.Duration
}

func NewAMQPNotifier(pub Publisher) *AMQPNotifier {
	return &AMQPNotifier{pub: pub, timeout: 5 * time.Second}
}

func (a *AMQPNotifier) Notify(ctx context.Context, n domain.Notification) error {
	body, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("failed to marshal notification: %w", err)
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.timeout)
	defer cancel()
	return a.pub.Publish(ctx, mq.NotificationsExchange, n.Event, body, amqp.Table{
		"x-source": "storage-service",
		"x-event":  n.Event,
	})
}

// notify builds and sends one notification, logging instead of failing.
func notify(ctx context.Context, n Notifier, lg *logger.Logger, event string, payload any, rooms ...string) {
	msg, err := domain.NewNotification(event, payload, rooms...)
	if err == nil {
		err = n.Notify(ctx, msg)
	}
	if err != nil {
		lg.Warn("notification_failed", err, map[string]any{"event": event, "rooms": rooms})
		return
	}
	lg.Debug("notification_published", map[string]any{"event": event, "rooms": rooms})
}

func orderRooms(o domain.Order) []string {
	return []string{domain.BranchRoom(o.Branch.ID()), domain.OrderRoom(o.ID), domain.SessionRoom(o.SessionID)}
}
