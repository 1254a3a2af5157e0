package hub

import (
	"context"

	"tableside/internal/common/logger"
	"tableside/internal/common/mq"
	"tableside/internal/config"
	hubsvc "tableside/internal/microservices/hub"
)

// Run starts the realtime hub. Without a RabbitMQ section the hub still
// accepts clients but receives no notifications.
func Run(ctx context.Context, cfg *config.Config, lg *logger.Logger) error {
	var client *mq.Client
	if err := cfg.RequireRabbitMQ(); err != nil {
		lg.Warn("rabbitmq_skipped", err, nil)
	} else {
		c, err := mq.Dial(cfg.RabbitMQ)
		if err != nil {
			return err
		}
		defer c.Close()
		client = c
		lg.Info("rabbitmq_connected", map[string]any{"host": cfg.RabbitMQ.Host, "vhost": cfg.RabbitMQ.VHost})
	}
	return hubsvc.Run(ctx, cfg.Realtime, client, lg)
}
