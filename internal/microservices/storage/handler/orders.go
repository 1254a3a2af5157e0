package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"tableside/internal/domain"
	"tableside/internal/microservices/storage/repository"
	"tableside/internal/microservices/storage/service"
)

type OrderHandler struct {
	service service.OrderServiceInterface
}

func NewOrderHandler(s service.OrderServiceInterface) *OrderHandler {
	return &OrderHandler{service: s}
}

func (h *OrderHandler) Create(c *gin.Context) {
	var req domain.CreateOrderRequest
	if !bind(c, &req) {
		return
	}
	o, err := h.service.CreateOrder(c.Request.Context(), req)
	if err != nil {
		writeError(c, err)
		return
	}
	writeJSON(c, http.StatusCreated, o)
}

func (h *OrderHandler) Get(c *gin.Context) {
	o, err := h.service.GetOrder(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, o)
}

func (h *OrderHandler) ListBySession(c *gin.Context) {
	h.list(c, repository.OrderFilter{SessionID: c.Param("id")})
}

func (h *OrderHandler) ListByTable(c *gin.Context) {
	h.list(c, repository.OrderFilter{TableID: c.Param("id")})
}

func (h *OrderHandler) ListByBranch(c *gin.Context) {
	f := repository.OrderFilter{BranchID: c.Param("id")}
	for _, s := range c.QueryArray("status") {
		f.Statuses = append(f.Statuses, domain.OrderStatus(s))
	}
	h.list(c, f)
}

func (h *OrderHandler) list(c *gin.Context, f repository.OrderFilter) {
	list, err := h.service.ListOrders(c.Request.Context(), f)
	if err != nil {
		writeError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, list)
}

func (h *OrderHandler) UpdateStatus(c *gin.Context) {
	var req domain.UpdateOrderStatusRequest
	if !bind(c, &req) {
		return
	}
	o, err := h.service.UpdateOrderStatus(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		writeError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, o)
}

func (h *OrderHandler) UpdateLineStatus(c *gin.Context) {
	line, err := strconv.Atoi(c.Param("line"))
	if err != nil {
		writeProblem(c, http.StatusBadRequest, "invalid_request", "line must be a number")
		return
	}
	var req domain.UpdateLineStatusRequest
	if !bind(c, &req) {
		return
	}
	o, err := h.service.UpdateLineStatus(c.Request.Context(), c.Param("id"), line, req)
	if err != nil {
		writeError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, o)
}

func (h *OrderHandler) Timeline(c *gin.Context) {
	id := c.Param("id")
	limit := atoiDefault(c.Query("limit"), 50)
	offset := atoiDefault(c.Query("offset"), 0)
	events, err := h.service.Timeline(c.Request.Context(), id, limit, offset)
	if err != nil {
		writeError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"orderId": id, "events": events})
}
