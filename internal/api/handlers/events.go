package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/streamflow/analytics-core/internal/core/stream"
	"github.com/streamflow/analytics-core/internal/core/types"
)

// eventRequest is the JSON intake format. ID and timestamp are
// optional; redeliveries must reuse the original id to dedupe.
type eventRequest struct {
	ID        string                 `json:"id"`
	Type      string                 `json:"type" binding:"required"`
	Source    string                 `json:"source"`
	Timestamp *time.Time             `json:"timestamp"`
	Severity  string                 `json:"severity"`
	Data      map[string]interface{} `json:"data"`
	Tags      []string               `json:"tags"`
}

// IngestEvent accepts one event into the pipeline. A full queue
// returns 429 so producers can back off.
func (h *Handlers) IngestEvent(c *gin.Context) {
	var req eventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ev := types.NewEvent(req.Type, req.Source, req.Data)
	if req.ID != "" {
		id, err := uuid.Parse(req.ID)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid event id"})
			return
		}
		ev.ID = id
	}
	if req.Timestamp != nil {
		ev.Timestamp = req.Timestamp.UTC()
	}
	ev.Severity = types.ParseSeverity(req.Severity)
	ev.Tags = req.Tags

	if err := h.coordinator.Submit(c.Request.Context(), ev); err != nil {
		if err == stream.ErrQueueFull {
			c.JSON(http.StatusTooManyRequests, gin.H{"error": "event queue full"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"event_id": ev.ID})
}

// PipelineStats exposes coordinator throughput.
func (h *Handlers) PipelineStats(c *gin.Context) {
	c.JSON(http.StatusOK, h.coordinator.GetStats())
}
