package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"tableside/internal/microservices/storage/service"
)

func writeJSON(c *gin.Context, code int, v any) {
	c.JSON(code, v)
}

// writeProblem answers with a simplified RFC 7807 body.
func writeProblem(c *gin.Context, code int, typ, detail string) {
	c.Header("Content-Type", "application/problem+json")
	c.AbortWithStatusJSON(code, gin.H{
		"type":   typ,
		"title":  http.StatusText(code),
		"status": code,
		"detail": detail,
	})
}

// writeError maps service errors onto problem responses.
func writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrInvalid):
		writeProblem(c, http.StatusBadRequest, "invalid_request", err.Error())
	case errors.Is(err, service.ErrNotFound):
		writeProblem(c, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, service.ErrConflict):
		writeProblem(c, http.StatusConflict, "conflict", err.Error())
	default:
		_ = c.Error(err)
		writeProblem(c, http.StatusInternalServerError, "db_error", err.Error())
	}
}

// bind decodes the JSON body into v, answering 400 itself on failure.
func bind(c *gin.Context, v any) bool {
	if err := c.ShouldBindJSON(v); err != nil {
		writeProblem(c, http.StatusBadRequest, "invalid_json", err.Error())
		return false
	}
	return true
}

func atoiDefault(s string, d int) int {
	if s == "" {
		return d
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return d
	}
	return n
}
