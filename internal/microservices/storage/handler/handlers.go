package handler

import "tableside/internal/microservices/storage/service"

type Handler struct {
	SessionHandler *SessionHandler
	OrderHandler   *OrderHandler
	TableHandler   *TableHandler
	QueueHandler   *QueueHandler
}

func New(svc *service.Service) *Handler {
	return &Handler{
		SessionHandler: NewSessionHandler(svc.SessionService),
		OrderHandler:   NewOrderHandler(svc.OrderService),
		TableHandler:   NewTableHandler(svc.TableService),
		QueueHandler:   NewQueueHandler(svc.QueueService),
	}
}
