package service

import (
	"errors"

	"tableside/internal/common/logger"
	"tableside/internal/microservices/storage/repository"
)

var (
	ErrNotFound = repository.ErrNotFound
	ErrConflict = repository.ErrConflict
	ErrInvalid  = errors.New("invalid request")
)

type Service struct {
	SessionService SessionServiceInterface
	OrderService   OrderServiceInterface
	TableService   TableServiceInterface
	QueueService   QueueServiceInterface
}

func New(repo *repository.Repository, n Notifier, lg *logger.Logger) *Service {
	if n == nil {
		n = NopNotifier{}
	}
	if lg == nil {
		lg = logger.Nop()
	}
	return &Service{
		SessionService: NewSessionService(repo.SessionRepo, n, lg),
		OrderService:   NewOrderService(repo.OrderRepo, n, lg),
		TableService:   NewTableService(repo.TableRepo, n, lg),
		QueueService:   NewQueueService(repo.QueueRepo),
	}
}
