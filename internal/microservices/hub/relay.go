package hub

import (
	"context"
	"encoding/json"
	"errors"

	amqp "github.com/rabbitmq/amqp091-go"

	"tableside/internal/domain"
)

// Relay publishes every notification arriving on deliveries until ctx is
// cancelled or the channel closes. Undecodable messages are rejected
// without requeue so they end up on the dead-letter queue.
func (h *Hub) Relay(ctx context.Context, deliveries <-chan amqp.Delivery) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-deliveries:
			if !ok {
				return errors.New("notification stream closed")
			}
			h.relayOne(d)
		}
	}
}

func (h *Hub) relayOne(d amqp.Delivery) {
	var n domain.Notification
	if err := json.Unmarshal(d.Body, &n); err != nil || n.Event == "" || len(n.Rooms) == 0 {
		h.log.Warn("notification_rejected", err, map[string]any{"message_id": d.MessageId, "routing_key": d.RoutingKey})
		_ = d.Nack(false, false)
		return
	}
	delivered := h.Publish(n)
	h.log.Debug("notification_relayed", map[string]any{"event": n.Event, "rooms": n.Rooms, "clients": delivered})
	_ = d.Ack(false)
}
