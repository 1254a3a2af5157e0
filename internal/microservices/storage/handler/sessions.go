package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"tableside/internal/domain"
	"tableside/internal/microservices/storage/service"
)

type SessionHandler struct {
	service service.SessionServiceInterface
}

func NewSessionHandler(s service.SessionServiceInterface) *SessionHandler {
	return &SessionHandler{service: s}
}

func (h *SessionHandler) Create(c *gin.Context) {
	var req domain.CreateSessionRequest
	if !bind(c, &req) {
		return
	}
	s, err := h.service.CreateSession(c.Request.Context(), req)
	if err != nil {
		writeError(c, err)
		return
	}
	writeJSON(c, http.StatusCreated, s)
}

func (h *SessionHandler) Join(c *gin.Context) {
	var req domain.JoinSessionRequest
	if !bind(c, &req) {
		return
	}
	s, err := h.service.JoinSession(c.Request.Context(), req)
	if err != nil {
		writeError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, s)
}

func (h *SessionHandler) Get(c *gin.Context) {
	s, err := h.service.GetSession(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, s)
}

func (h *SessionHandler) GetByCode(c *gin.Context) {
	s, err := h.service.GetSessionByCode(c.Request.Context(), c.Param("code"))
	if err != nil {
		writeError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, s)
}

func (h *SessionHandler) GetActive(c *gin.Context) {
	s, err := h.service.GetActiveSession(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, s)
}

func (h *SessionHandler) Checkout(c *gin.Context) {
	s, err := h.service.Checkout(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, s)
}
