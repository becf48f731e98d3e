package handler

import (
	"time"

	"github.com/gin-gonic/gin"

	"tradeberg/internal/transport/http/response"
)

type HealthHandler struct {
	name      string
	startedAt time.Time
}

func NewHealthHandler(name string, startedAt time.Time) *HealthHandler {
	return &HealthHandler{name: name, startedAt: startedAt}
}

func (h *HealthHandler) Check(c *gin.Context) {
	response.OK(c, gin.H{
		"service": h.name,
		"status":  "healthy",
		"uptime":  time.Since(h.startedAt).String(),
	})
}
