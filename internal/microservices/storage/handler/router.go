package handler

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"tableside/internal/common/logger"
)

// Router mounts every storage endpoint. An empty origins list allows any
// origin.
func Router(h *Handler, origins []string, lg *logger.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), requestLog(lg), corsMiddleware(origins))

	r.GET("/health", func(c *gin.Context) { writeJSON(c, http.StatusOK, gin.H{"status": "ok"}) })

	r.POST("/sessions", h.SessionHandler.Create)
	r.POST("/sessions/join", h.SessionHandler.Join)
	r.GET("/sessions/code/:code", h.SessionHandler.GetByCode)
	r.GET("/sessions/:id", h.SessionHandler.Get)
	r.GET("/sessions/:id/orders", h.OrderHandler.ListBySession)
	r.POST("/sessions/:id/checkout", h.SessionHandler.Checkout)

	r.POST("/orders", h.OrderHandler.Create)
	r.GET("/orders/:id", h.OrderHandler.Get)
	r.PUT("/orders/:id/status", h.OrderHandler.UpdateStatus)
	r.PUT("/orders/:id/lines/:line/status", h.OrderHandler.UpdateLineStatus)
	r.GET("/orders/:id/timeline", h.OrderHandler.Timeline)

	r.GET("/tables/:id/session", h.SessionHandler.GetActive)
	r.GET("/tables/:id/orders", h.OrderHandler.ListByTable)
	r.PUT("/tables/:id/status", h.TableHandler.UpdateStatus)

	r.GET("/branches/:id/tables", h.TableHandler.List)
	r.GET("/branches/:id/menu", h.TableHandler.Menu)
	r.GET("/branches/:id/orders", h.OrderHandler.ListByBranch)
	r.GET("/branches/:id/queue", h.QueueHandler.List)

	r.POST("/queue", h.QueueHandler.Create)
	r.PUT("/queue/:id", h.QueueHandler.Update)
	r.DELETE("/queue/:id", h.QueueHandler.Delete)

	r.NoRoute(func(c *gin.Context) { writeProblem(c, http.StatusNotFound, "not_found", "no such endpoint") })
	return r
}

func corsMiddleware(origins []string) gin.HandlerFunc {
	cfg := cors.Config{
		AllowMethods:  []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:  []string{"Content-Type", "Accept", "X-Request-ID"},
		ExposeHeaders: []string{"Content-Length", "X-Request-ID"},
		MaxAge:        12 * time.Hour,
	}
	if len(origins) == 0 {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = origins
	}
	return cors.New(cfg)
}

func requestLog(lg *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		id := c.GetHeader("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		c.Header("X-Request-ID", id)
		c.Next()

		fields := map[string]any{
			"request_id":  id,
			"method":      c.Request.Method,
			"path":        c.FullPath(),
			"status":      c.Writer.Status(),
			"duration_ms": time.Since(start).Milliseconds(),
		}
		if c.Writer.Status() >= http.StatusInternalServerError {
			var err error
			if last := c.Errors.Last(); last != nil {
				err = last.Err
			}
			lg.Error("http_request", err, fields)
			return
		}
		lg.Debug("http_request", fields)
	}
}
