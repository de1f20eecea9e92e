package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/streamflow/analytics-core/internal/core/alerts"
)

// ListAlerts returns alerts, filterable with ?status=active|resolved.
func (h *Handlers) ListAlerts(c *gin.Context) {
	status := alerts.Status(c.Query("status"))
	if status != "" && status != alerts.StatusActive && status != alerts.StatusResolved {
		c.JSON(http.StatusBadRequest, gin.H{"error": "status must be active or resolved"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"alerts": h.alertMgr.List(status)})
}

// GetAlert returns one alert by id.
func (h *Handlers) GetAlert(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid alert id"})
		return
	}
	alert, err := h.alertMgr.Get(id)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, alert)
}

// AcknowledgeAlert flags an active alert as acknowledged.
func (h *Handlers) AcknowledgeAlert(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid alert id"})
		return
	}
	var body struct {
		By string `json:"by"`
	}
	_ = c.ShouldBindJSON(&body)

	alert, err := h.alertMgr.Acknowledge(c.Request.Context(), id, body.By)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, alert)
}

// ResolveAlert explicitly resolves an active alert.
func (h *Handlers) ResolveAlert(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid alert id"})
		return
	}
	alert, err := h.alertMgr.Resolve(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, alert)
}

// AlertStats summarizes alert counts by status and severity.
func (h *Handlers) AlertStats(c *gin.Context) {
	c.JSON(http.StatusOK, h.alertMgr.GetStats())
}

// AlertHistory returns the persisted transition log for one alert.
func (h *Handlers) AlertHistory(c *gin.Context) {
	if h.alertRepo == nil {
		c.JSON(http.StatusNotImplemented, gin.H{"error": "persistence disabled"})
		return
	}
	history, err := h.alertRepo.History(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"history": history})
}
