package service

import (
	"context"
	"fmt"

	"tableside/internal/common/logger"
	"tableside/internal/domain"
	"tableside/internal/microservices/storage/repository"
)

type TableServiceInterface interface {
	ListTables(ctx context.Context, branchID string) ([]domain.Table, error)
	UpdateTableStatus(ctx context.Context, id string, status domain.TableStatus) (domain.Table, error)
	ListMenu(ctx context.Context, branchID string) ([]domain.MenuItem, error)
}

type TableService struct {
	repo     repository.TableRepositoryInterface
	notifier Notifier
	log      *logger.Logger
}

func NewTableService(repo repository.TableRepositoryInterface, n Notifier, lg *logger.Logger) TableServiceInterface {
	return &TableService{repo: repo, notifier: n, log: lg.With("tables")}
}

func (s *TableService) ListTables(ctx context.Context, branchID string) ([]domain.Table, error) {
	return s.repo.ListTables(ctx, branchID)
}

func (s *TableService) UpdateTableStatus(ctx context.Context, id string, status domain.TableStatus) (domain.Table, error) {
	if !status.Valid() {
		return domain.Table{}, fmt.Errorf("%w: unknown table status %q", ErrInvalid, status)
	}
	out, change, err := s.repo.UpdateTableStatus(ctx, id, status)
	if err != nil {
		return domain.Table{}, err
	}
	if change.PreviousStatus != change.NewStatus {
		s.log.Info("table_status_updated", map[string]any{"table_id": id, "from": change.PreviousStatus, "to": change.NewStatus})
		notify(ctx, s.notifier, s.log, domain.EventTableStatusChanged, change, domain.BranchRoom(change.BranchID))
	}
	return out, nil
}

func (s *TableService) ListMenu(ctx context.Context, branchID string) ([]domain.MenuItem, error) {
	return s.repo.ListMenu(ctx, branchID)
}
