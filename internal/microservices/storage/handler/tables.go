package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"tableside/internal/domain"
	"tableside/internal/microservices/storage/service"
)

type TableHandler struct {
	service service.TableServiceInterface
}

func NewTableHandler(s service.TableServiceInterface) *TableHandler {
	return &TableHandler{service: s}
}

func (h *TableHandler) List(c *gin.Context) {
	tables, err := h.service.ListTables(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, tables)
}

func (h *TableHandler) UpdateStatus(c *gin.Context) {
	var req domain.UpdateTableStatusRequest
	if !bind(c, &req) {
		return
	}
	t, err := h.service.UpdateTableStatus(c.Request.Context(), c.Param("id"), req.Status)
	if err != nil {
		writeError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, t)
}

func (h *TableHandler) Menu(c *gin.Context) {
	menu, err := h.service.ListMenu(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, menu)
}
