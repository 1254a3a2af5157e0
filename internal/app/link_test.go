package app

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"tableside/internal/common/logger"
	"tableside/internal/config"
	"tableside/internal/domain"
	"tableside/internal/microservices/hub"
	"tableside/internal/microservices/storage/handler"
	"tableside/internal/microservices/storage/repository"
	"tableside/internal/microservices/storage/service"
	"tableside/internal/realtime"
)

// testConfig points a client at a storage service and at a hub that
// refuses websocket upgrades until up is set.
func testConfig(t *testing.T, up *atomic.Bool) *config.Config {
	t.Helper()
	gin.SetMode(gin.TestMode)
	mem := repository.NewMemory()
	mem.Seed(domain.Branch{ID: "b1"}, []domain.Table{{ID: "t1", Number: 1, Capacity: 4}}, nil)
	svc := service.New(mem.Repository(), nil, logger.Nop())
	storage := httptest.NewServer(handler.Router(handler.New(svc), nil, logger.Nop()))
	t.Cleanup(storage.Close)

	h := hub.New(logger.Nop())
	mux := h.Mux("orders")
	gate := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !up.Load() {
			http.Error(w, "hub down", http.StatusServiceUnavailable)
			return
		}
		mux.ServeHTTP(w, r)
	}))
	t.Cleanup(func() {
		h.Close()
		gate.Close()
	})

	cfg := &config.Config{}
	cfg.Client.APIURL = storage.URL
	cfg.Client.BranchID = "b1"
	cfg.Realtime.URL = "ws" + strings.TrimPrefix(gate.URL, "http")
	cfg.Realtime.Namespace = "orders"
	cfg.Realtime.AckTimeout = 2 * time.Second
	cfg.Realtime.ReconnectAttempts = 1
	cfg.Realtime.ReconnectDelay = 10 * time.Millisecond
	return cfg
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestDialWithoutHubJoinsLater(t *testing.T) {
	defer func(d time.Duration) { redialInterval = d }(redialInterval)
	redialInterval = 20 * time.Millisecond

	var up atomic.Bool
	cfg := testConfig(t, &up)
	ctx := context.Background()

	link, err := Dial(ctx, cfg, logger.Nop())
	if err != nil {
		t.Fatalf("Dial with hub down: %v", err)
	}
	defer link.Close()
	if link.Online() {
		t.Fatal("online with hub down")
	}
	if _, err := link.API.Tables(ctx, "b1"); err != nil {
		t.Fatalf("REST unusable while hub down: %v", err)
	}

	var subscribed, reloads atomic.Int32
	link.Track(ctx, domain.RoomBranch, "b1",
		func(realtime.Subscriber) { subscribed.Add(1) },
		func(context.Context) error { reloads.Add(1); return nil })
	if subscribed.Load() != 0 {
		t.Fatal("subscribed without a hub")
	}

	up.Store(true)
	waitFor(t, "link up", link.Online)
	waitFor(t, "branch room joined", func() bool { return subscribed.Load() == 1 && reloads.Load() >= 1 })
	if held := link.Rooms.Held(); len(held) != 1 || held[0] != "branch:b1" {
		t.Fatalf("held rooms = %v", held)
	}
}

func TestDialNeedsStorage(t *testing.T) {
	var up atomic.Bool
	up.Store(true)
	cfg := testConfig(t, &up)
	cfg.Client.APIURL = "http://127.0.0.1:1"

	if _, err := Dial(context.Background(), cfg, logger.Nop()); err == nil {
		t.Fatal("Dial succeeded without a storage service")
	}
}
