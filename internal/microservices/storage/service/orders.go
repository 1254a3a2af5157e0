package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"tableside/internal/common/logger"
	"tableside/internal/domain"
	"tableside/internal/microservices/storage/repository"
	"tableside/internal/orders"
)

type OrderServiceInterface interface {
	CreateOrder(ctx context.Context, req domain.CreateOrderRequest) (domain.Order, error)
	GetOrder(ctx context.Context, id string) (domain.Order, error)
	ListOrders(ctx context.Context, f repository.OrderFilter) ([]domain.Order, error)
	UpdateOrderStatus(ctx context.Context, id string, req domain.UpdateOrderStatusRequest) (domain.Order, error)
	UpdateLineStatus(ctx context.Context, id string, line int, req domain.UpdateLineStatusRequest) (domain.Order, error)
	Timeline(ctx context.Context, id string, limit, offset int) ([]domain.StatusLogEntry, error)
}

type OrderService struct {
	repo     repository.OrderRepositoryInterface
	notifier Notifier
	log      *logger.Logger
}

func NewOrderService(repo repository.OrderRepositoryInterface, n Notifier, lg *logger.Logger) OrderServiceInterface {
	return &OrderService{repo: repo, notifier: n, log: lg.With("orders")}
}

func (s *OrderService) CreateOrder(ctx context.Context, req domain.CreateOrderRequest) (domain.Order, error) {
	// 1. Basic validation
	if req.SessionID == "" {
		return domain.Order{}, fmt.Errorf("%w: sessionId is required", ErrInvalid)
	}
	if req.ClientID == "" {
		return domain.Order{}, fmt.Errorf("%w: clientId is required", ErrInvalid)
	}
	if len(req.Lines) == 0 {
		return domain.Order{}, fmt.Errorf("%w: at least one line is required", ErrInvalid)
	}

	// 2. Build lines and check the total
	lines := make([]domain.OrderLine, len(req.Lines))
	for i, in := range req.Lines {
		if in.MenuItemID == "" {
			return domain.Order{}, fmt.Errorf("%w: line %d has no menu item", ErrInvalid, i)
		}
		if in.Quantity <= 0 {
			return domain.Order{}, fmt.Errorf("%w: invalid quantity for item %s", ErrInvalid, in.Name)
		}
		if in.UnitPrice < 0 {
			return domain.Order{}, fmt.Errorf("%w: invalid price for item %s", ErrInvalid, in.Name)
		}
		lines[i] = domain.OrderLine{
			MenuItem:  domain.Reference[domain.MenuItem](in.MenuItemID),
			Name:      in.Name,
			UnitPrice: in.UnitPrice,
			Quantity:  in.Quantity,
			Note:      in.Note,
			Status:    domain.OrderPending,
		}
	}
	total := domain.LinesTotal(lines)
	if req.Total != 0 && req.Total != total {
		return domain.Order{}, fmt.Errorf("%w: total %d does not match lines (%d)", ErrInvalid, req.Total, total)
	}

	// 3. Save
	now := time.Now().UTC()
	out, err := s.repo.CreateOrder(ctx, domain.Order{
		ID:          uuid.NewString(),
		SessionID:   req.SessionID,
		ClientID:    req.ClientID,
		DisplayName: req.DisplayName,
		Lines:       lines,
		Total:       total,
		Status:      domain.OrderPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	})
	if err != nil {
		return domain.Order{}, err
	}

	s.log.Info("order_created", map[string]any{"order_id": out.ID, "session_id": out.SessionID, "total": out.Total})
	notify(ctx, s.notifier, s.log, domain.EventNewOrder, out,
		domain.BranchRoom(out.Branch.ID()), domain.SessionRoom(out.SessionID))
	return out, nil
}

func (s *OrderService) GetOrder(ctx context.Context, id string) (domain.Order, error) {
	return s.repo.GetOrder(ctx, id)
}

func (s *OrderService) ListOrders(ctx context.Context, f repository.OrderFilter) ([]domain.Order, error) {
	for _, st := range f.Statuses {
		if !st.Valid() {
			return nil, fmt.Errorf("%w: unknown status %q", ErrInvalid, st)
		}
	}
	list, err := s.repo.ListOrders(ctx, f)
	if err != nil {
		return nil, err
	}
	if list == nil {
		list = []domain.Order{}
	}
	return list, nil
}

// UpdateOrderStatus moves the whole order forward. Statuses never regress:
// asking for a status the order is already past is a conflict, asking for
// the current one is a no-op.
func (s *OrderService) UpdateOrderStatus(ctx context.Context, id string, req domain.UpdateOrderStatusRequest) (domain.Order, error) {
	action, err := orders.ActionFor(req.Status)
	if err != nil {
		return domain.Order{}, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	return s.advance(ctx, id, req.ChangedBy, orders.Event{Action: action})
}

// UpdateLineStatus serves one line. Only "served" is accepted per line.
func (s *OrderService) UpdateLineStatus(ctx context.Context, id string, line int, req domain.UpdateLineStatusRequest) (domain.Order, error) {
	if req.Status != domain.OrderServed {
		return domain.Order{}, fmt.Errorf("%w: lines can only be marked served", ErrInvalid)
	}
	return s.advance(ctx, id, req.ChangedBy, orders.Event{Action: orders.ServeLine, Line: line})
}

func (s *OrderService) advance(ctx context.Context, id, changedBy string, ev orders.Event) (domain.Order, error) {
	var prev domain.OrderStatus
	out, changed, err := s.repo.UpdateOrder(ctx, id, changedBy, func(cur domain.Order) (domain.Order, bool, error) {
		prev = cur.Status
		return orders.Advance(cur, ev)
	})
	if errors.Is(err, orders.ErrInvalidTransition) {
		return domain.Order{}, fmt.Errorf("%w: %v", ErrConflict, err)
	}
	if err != nil {
		return domain.Order{}, err
	}
	if !changed {
		return out, nil
	}

	s.log.Info("order_status_updated", map[string]any{
		"order_id": id, "action": ev.Action.String(), "from": prev, "to": out.Status, "changed_by": changedBy,
	})
	rooms := orderRooms(out)
	notify(ctx, s.notifier, s.log, domain.EventOrderStatusChanged, out, rooms...)
	if out.Status == domain.OrderPaid && prev != domain.OrderPaid {
		notify(ctx, s.notifier, s.log, domain.EventPaymentStatusChanged, domain.Payment{
			Amount:    out.Total,
			Status:    domain.PaymentPaid,
			OrderID:   out.ID,
			SessionID: out.SessionID,
			TableID:   out.Table.ID(),
		}, rooms...)
	}
	return out, nil
}

func (s *OrderService) Timeline(ctx context.Context, id string, limit, offset int) ([]domain.StatusLogEntry, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	if _, err := s.repo.GetOrder(ctx, id); err != nil {
		return nil, err
	}
	events, err := s.repo.Timeline(ctx, id, limit, offset)
	if err != nil {
		return nil, err
	}
	if events == nil {
		events = []domain.StatusLogEntry{}
	}
	return events, nil
}
