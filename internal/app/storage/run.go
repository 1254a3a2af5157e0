package storage

import (
	"context"

	"tableside/internal/common/db"
	"tableside/internal/common/logger"
	"tableside/internal/common/mq"
	"tableside/internal/config"
	storagesvc "tableside/internal/microservices/storage"
)

// Run connects what the configured driver needs and serves the storage
// API. RabbitMQ is optional: without it the API works but nothing is
// pushed to the hub.
func Run(ctx context.Context, cfg *config.Config, lg *logger.Logger) error {
	var deps storagesvc.Deps

	if cfg.Storage.Driver == "postgres" {
		if err := cfg.RequireDatabase(); err != nil {
			return err
		}
		conn, err := db.Connect(ctx, cfg.Database, lg.With("db"))
		if err != nil {
			return err
		}
		defer conn.Close()
		deps.Pool = conn.Pool
		lg.Info("db_connected", map[string]any{"host": cfg.Database.Host, "database": cfg.Database.Database})
	}

	if err := cfg.RequireRabbitMQ(); err != nil {
		lg.Warn("rabbitmq_skipped", err, nil)
	} else {
		client, err := mq.Dial(cfg.RabbitMQ)
		if err != nil {
			return err
		}
		defer client.Close()
		deps.MQ = client
		lg.Info("rabbitmq_connected", map[string]any{"host": cfg.RabbitMQ.Host, "vhost": cfg.RabbitMQ.VHost})
	}

	return storagesvc.Run(ctx, cfg, deps, lg)
}
