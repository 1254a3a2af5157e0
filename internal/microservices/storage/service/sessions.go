package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"tableside/internal/common/logger"
	"tableside/internal/domain"
	"tableside/internal/microservices/storage/repository"
)

type SessionServiceInterface interface {
	CreateSession(ctx context.Context, req domain.CreateSessionRequest) (domain.Session, error)
	JoinSession(ctx context.Context, req domain.JoinSessionRequest) (domain.Session, error)
	GetSession(ctx context.Context, id string) (domain.Session, error)
	GetSessionByCode(ctx context.Context, code string) (domain.Session, error)
	GetActiveSession(ctx context.Context, tableID string) (domain.Session, error)
	Checkout(ctx context.Context, id string) (domain.Session, error)
}

type SessionService struct {
	sessions repository.SessionRepositoryInterface
	notifier Notifier
	log      *logger.Logger
}

func NewSessionService(sessions repository.SessionRepositoryInterface, n Notifier, lg *logger.Logger) SessionServiceInterface {
	return &SessionService{sessions: sessions, notifier: n, log: lg.With("sessions")}
}

const joinCodeAttempts = 3

func (s *SessionService) CreateSession(ctx context.Context, req domain.CreateSessionRequest) (domain.Session, error) {
	if req.BranchID == "" || req.TableID == "" {
		return domain.Session{}, fmt.Errorf("%w: branchId and tableId are required", ErrInvalid)
	}

	var (
		out    domain.Session
		change domain.TableStatusChange
		err    error
	)
	for attempt := 0; attempt < joinCodeAttempts; attempt++ {
		sess := domain.Session{
			ID:        uuid.NewString(),
			Branch:    domain.Reference[domain.Branch](req.BranchID),
			Table:     domain.Reference[domain.Table](req.TableID),
			JoinCode:  newJoinCode(),
			CheckInAt: time.Now().UTC(),
		}
		out, change, err = s.sessions.CreateSession(ctx, sess)
		if err == nil || !errors.Is(err, ErrConflict) {
			break
		}
		// Only a join code collision is worth another try.
		if _, lookupErr := s.sessions.GetActiveSession(ctx, req.TableID); lookupErr == nil {
			break
		}
	}
	if err != nil {
		return domain.Session{}, err
	}

	s.log.Info("session_created", map[string]any{"session_id": out.ID, "table_id": req.TableID, "join_code": out.JoinCode})
	notify(ctx, s.notifier, s.log, domain.EventTableStatusChanged, change, domain.BranchRoom(change.BranchID))
	return out, nil
}

func (s *SessionService) JoinSession(ctx context.Context, req domain.JoinSessionRequest) (domain.Session, error) {
	if req.JoinCode == "" || req.ClientID == "" {
		return domain.Session{}, fmt.Errorf("%w: joinCode and clientId are required", ErrInvalid)
	}
	out, err := s.sessions.AddMember(ctx, req.JoinCode, domain.Member{
		ClientID: req.ClientID,
		Label:    req.Label,
		JoinedAt: time.Now().UTC(),
	})
	if err != nil {
		return domain.Session{}, err
	}
	s.log.Info("session_joined", map[string]any{"session_id": out.ID, "client_id": req.ClientID})
	return out, nil
}

func (s *SessionService) GetSession(ctx context.Context, id string) (domain.Session, error) {
	return s.sessions.GetSession(ctx, id)
}

func (s *SessionService) GetSessionByCode(ctx context.Context, code string) (domain.Session, error) {
	return s.sessions.GetSessionByCode(ctx, code)
}

func (s *SessionService) GetActiveSession(ctx context.Context, tableID string) (domain.Session, error) {
	return s.sessions.GetActiveSession(ctx, tableID)
}

// Checkout closes the session and frees its table. Orders still pending or
// preparing make it a conflict; callers serve them first.
func (s *SessionService) Checkout(ctx context.Context, id string) (domain.Session, error) {
	out, change, err := s.sessions.Checkout(ctx, id, time.Now().UTC())
	if err != nil {
		return domain.Session{}, err
	}
	s.log.Info("session_checked_out", map[string]any{"session_id": id, "orders": len(out.OrderIDs)})

	branchRoom := domain.BranchRoom(out.Branch.ID())
	notify(ctx, s.notifier, s.log, domain.EventTableStatusChanged, change, branchRoom)
	notify(ctx, s.notifier, s.log, domain.EventSessionCheckout, out, branchRoom, domain.SessionRoom(out.ID))
	return out, nil
}

// newJoinCode is short enough to read out at the table.
func newJoinCode() string {
	return strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
}
