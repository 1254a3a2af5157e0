package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"tableside/internal/domain"
	"tableside/internal/microservices/storage/service"
)

type QueueHandler struct {
	service service.QueueServiceInterface
}

func NewQueueHandler(s service.QueueServiceInterface) *QueueHandler {
	return &QueueHandler{service: s}
}

func (h *QueueHandler) List(c *gin.Context) {
	items, err := h.service.ListQueue(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, items)
}

func (h *QueueHandler) Create(c *gin.Context) {
	var in domain.QueueItemInput
	if !bind(c, &in) {
		return
	}
	q, err := h.service.Enqueue(c.Request.Context(), in)
	if err != nil {
		writeError(c, err)
		return
	}
	writeJSON(c, http.StatusCreated, q)
}

func (h *QueueHandler) Update(c *gin.Context) {
	var in domain.QueueItemInput
	if !bind(c, &in) {
		return
	}
	q, err := h.service.UpdateQueueItem(c.Request.Context(), c.Param("id"), in)
	if err != nil {
		writeError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, q)
}

func (h *QueueHandler) Delete(c *gin.Context) {
	if err := h.service.DeleteQueueItem(c.Request.Context(), c.Param("id")); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
