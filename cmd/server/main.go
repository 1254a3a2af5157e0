// Command server runs the storage service and the realtime hub in one
// process over a shared database pool and RabbitMQ connection.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"tableside/internal/common/db"
	"tableside/internal/common/logger"
	"tableside/internal/common/mq"
	"tableside/internal/config"
	"tableside/internal/microservices/hub"
	"tableside/internal/microservices/storage"
)

func main() {
	cfgPath := pflag.String("config", "config.yaml", "path to YAML config")
	pflag.Parse()

	lg := logger.New("server")
	if err := run(*cfgPath, lg); err != nil {
		lg.Error("fatal", err, nil)
		os.Exit(1)
	}
}

func run(cfgPath string, lg *logger.Logger) error {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return err
	}
	if err := cfg.RequireRabbitMQ(); err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var deps storage.Deps
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
		lg.Info("db_connected", map[string]any{"host": cfg.Database.Host, "port": cfg.Database.Port, "database": cfg.Database.Database})
	}

	// Each side gets its own AMQP channel; the publisher runs in confirm
	// mode and the relay holds a consumer.
	pub, err := mq.Dial(cfg.RabbitMQ)
	if err != nil {
		return err
	}
	defer pub.Close()
	sub, err := mq.Dial(cfg.RabbitMQ)
	if err != nil {
		return err
	}
	defer sub.Close()
	if err := pub.Ping(); err != nil {
		return err
	}
	deps.MQ = pub
	lg.Info("rabbitmq_connected", map[string]any{"host": cfg.RabbitMQ.Host, "port": cfg.RabbitMQ.Port, "vhost": cfg.RabbitMQ.VHost})

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return storage.Run(ctx, cfg, deps, lg.With("storage")) })
	g.Go(func() error { return hub.Run(ctx, cfg.Realtime, sub, lg.With("hub")) })

	lg.Info("server_started", map[string]any{"storage_addr": cfg.Storage.Addr, "hub_addr": cfg.Realtime.Addr})
	err = g.Wait()
	lg.Info("server_stopped", nil)
	return err
}
