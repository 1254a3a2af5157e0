package hub

import (
	"context"
	"net/http"
	"strings"

	amqp "github.com/rabbitmq/amqp091-go"
	"golang.org/x/sync/errgroup"

	"tableside/internal/common/httpx"
	"tableside/internal/common/logger"
	"tableside/internal/common/mq"
	"tableside/internal/config"
)

const relayPrefetch = 50

// Mux serves the hub on /<namespace> plus a health endpoint.
func (h *Hub) Mux(namespace string) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("GET /"+strings.Trim(namespace, "/"), h)
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	return mux
}

// Run serves websocket clients and, when rmq is set, relays the storage
// service's notifications to them. It returns when ctx is cancelled or
// either side fails.
func Run(ctx context.Context, cfg config.RealtimeConfig, rmq *mq.Client, lg *logger.Logger) error {
	h := New(lg)
	defer h.Close()

	var deliveries <-chan amqp.Delivery
	if rmq != nil {
		if err := rmq.DeclareNotifications(); err != nil {
			return err
		}
		var err error
		if deliveries, err = rmq.Subscribe(mq.NotificationsExchange, "realtime-hub", relayPrefetch); err != nil {
			return err
		}
	} else {
		lg.Warn("relay_disabled", nil, map[string]any{"reason": "no rabbitmq connection"})
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		lg.Info("hub_listening", map[string]any{"addr": cfg.Addr, "namespace": cfg.Namespace})
		return httpx.New(cfg.Addr, h.Mux(cfg.Namespace)).OnShutdown(h.Close).Run(ctx)
	})
	if deliveries != nil {
		g.Go(func() error { return h.Relay(ctx, deliveries) })
	}
	return g.Wait()
}
