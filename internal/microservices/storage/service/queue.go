package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"tableside/internal/domain"
	"tableside/internal/microservices/storage/repository"
)

type QueueServiceInterface interface {
	ListQueue(ctx context.Context, branchID string) ([]domain.QueueItem, error)
	Enqueue(ctx context.Context, in domain.QueueItemInput) (domain.QueueItem, error)
	UpdateQueueItem(ctx context.Context, id string, in domain.QueueItemInput) (domain.QueueItem, error)
	DeleteQueueItem(ctx context.Context, id string) error
}

type QueueService struct {
	repo repository.QueueRepositoryInterface
}

func NewQueueService(repo repository.QueueRepositoryInterface) QueueServiceInterface {
	return &QueueService{repo: repo}
}

func (s *QueueService) ListQueue(ctx context.Context, branchID string) ([]domain.QueueItem, error) {
	return s.repo.ListQueue(ctx, branchID)
}

func (s *QueueService) Enqueue(ctx context.Context, in domain.QueueItemInput) (domain.QueueItem, error) {
	if in.BranchID == "" || in.PartyName == "" {
		return domain.QueueItem{}, fmt.Errorf("%w: branchId and partyName are required", ErrInvalid)
	}
	if in.PartySize <= 0 {
		return domain.QueueItem{}, fmt.Errorf("%w: partySize must be positive", ErrInvalid)
	}
	if in.Status == "" {
		in.Status = domain.QueueWaiting
	}
	if !in.Status.Valid() {
		return domain.QueueItem{}, fmt.Errorf("%w: unknown queue status %q", ErrInvalid, in.Status)
	}
	return s.repo.CreateQueueItem(ctx, domain.QueueItem{
		ID:          uuid.NewString(),
		BranchID:    in.BranchID,
		PartyName:   in.PartyName,
		Contact:     in.Contact,
		PartySize:   in.PartySize,
		RequestedAt: time.Now().UTC(),
		Status:      in.Status,
	})
}

// UpdateQueueItem overwrites the editable fields; zero values keep the
// current ones.
func (s *QueueService) UpdateQueueItem(ctx context.Context, id string, in domain.QueueItemInput) (domain.QueueItem, error) {
	if in.Status != "" && !in.Status.Valid() {
		return domain.QueueItem{}, fmt.Errorf("%w: unknown queue status %q", ErrInvalid, in.Status)
	}
	if in.PartySize < 0 {
		return domain.QueueItem{}, fmt.Errorf("%w: partySize must be positive", ErrInvalid)
	}
	cur, err := s.repo.GetQueueItem(ctx, id)
	if err != nil {
		return domain.QueueItem{}, err
	}
	if in.PartyName != "" {
		cur.PartyName = in.PartyName
	}
	if in.Contact != "" {
		cur.Contact = in.Contact
	}
	if in.PartySize > 0 {
		cur.PartySize = in.PartySize
	}
	if in.Status != "" {
		cur.Status = in.Status
	}
	return s.repo.UpdateQueueItem(ctx, cur)
}

func (s *QueueService) DeleteQueueItem(ctx context.Context, id string) error {
	return s.repo.DeleteQueueItem(ctx, id)
}
