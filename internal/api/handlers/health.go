package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// Health reports component status for load balancers and dashboards.
func (h *Handlers) Health(c *gin.Context) {
	status := "healthy"
	components := gin.H{
		"coordinator": h.coordinator.Running(),
		"ws_clients":  h.hub.GetClientCount(),
	}

	if h.dbPing != nil {
		if err := h.dbPing(); err != nil {
			status = "degraded"
			components["database"] = "unreachable"
		} else {
			components["database"] = "ok"
		}
	}
	if !h.coordinator.Running() {
		status = "degraded"
	}

	code := http.StatusOK
	if status != "healthy" {
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, gin.H{
		"status":     status,
		"timestamp":  time.Now().UTC(),
		"components": components,
		"pipeline":   h.coordinator.GetStats(),
	})
}
