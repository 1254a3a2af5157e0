package storage

import (
	"context"
	"fmt"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"

	"tableside/internal/common/httpx"
	"tableside/internal/common/logger"
	"tableside/internal/common/mq"
	"tableside/internal/config"
	"tableside/internal/domain"
	"tableside/internal/microservices/storage/handler"
	"tableside/internal/microservices/storage/repository"
	"tableside/internal/microservices/storage/service"
)

// Deps are the connections the storage service runs on. Pool is required
// by the postgres driver; MQ may be nil, in which case nothing is
// published.
type Deps struct {
	Pool *pgxpool.Pool
	MQ   *mq.Client
}

// Run serves the storage API until ctx is cancelled.
func Run(ctx context.Context, cfg *config.Config, deps Deps, lg *logger.Logger) error {
	repo, err := openRepository(ctx, cfg.Storage, deps.Pool, lg)
	if err != nil {
		return err
	}

	var notifier service.Notifier = service.NopNotifier{}
	if deps.MQ != nil {
		if err := deps.MQ.DeclareNotifications(); err != nil {
			return fmt.Errorf("declaring notification exchange: %w", err)
		}
		notifier = service.NewAMQPNotifier(deps.MQ)
	} else {
		lg.Warn("notifications_disabled", nil, map[string]any{"reason": "no rabbitmq connection"})
	}

	gin.SetMode(gin.ReleaseMode)
	svc := service.New(repo, notifier, lg)
	router := handler.Router(handler.New(svc), cfg.Storage.CORSOrigins, lg)

	lg.Info("storage_listening", map[string]any{"addr": cfg.Storage.Addr, "driver": cfg.Storage.Driver})
	return httpx.New(cfg.Storage.Addr, router).Run(ctx)
}

func openRepository(ctx context.Context, cfg config.StorageConfig, pool *pgxpool.Pool, lg *logger.Logger) (*repository.Repository, error) {
	switch cfg.Driver {
	case "postgres":
		if pool == nil {
			return nil, fmt.Errorf("postgres driver needs a database connection")
		}
		if err := repository.Migrate(ctx, pool); err != nil {
			return nil, err
		}
		return repository.NewPostgres(pool), nil
	case "memory":
		mem := repository.NewMemory()
		seedDemo(mem)
		lg.Warn("memory_storage", nil, map[string]any{"branch_id": demoBranch.ID})
		return mem.Repository(), nil
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
	}
}

var demoBranch = domain.Branch{ID: "demo", Name: "Demo branch"}

// seedDemo gives the memory driver a small floor to work with.
func seedDemo(mem *repository.Memory) {
	var tables []domain.Table
	for i := 1; i <= 6; i++ {
		tables = append(tables, domain.Table{ID: fmt.Sprintf("demo-t%d", i), Number: i, Capacity: 2 + 2*(i%2)})
	}
	mem.Seed(demoBranch, tables, []domain.MenuItem{
		{ID: "demo-ramen", Name: "Shoyu ramen", Price: 1200, Category: "mains"},
		{ID: "demo-gyoza", Name: "Gyoza", Price: 650, Category: "starters"},
		{ID: "demo-tea", Name: "Green tea", Price: 300, Category: "drinks"},
	})
}
