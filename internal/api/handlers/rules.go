package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/streamflow/analytics-core/internal/core/rules"
	"github.com/streamflow/analytics-core/internal/core/types"
	"github.com/streamflow/analytics-core/internal/core/window"
	"github.com/streamflow/analytics-core/pkg/errors"
)

// ruleRequest is the JSON body for rule creation and updates.
// Durations are strings ("5m", "30s"), matching the rules file format.
type ruleRequest struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Condition   string `json:"condition"`
	Window      struct {
		Kind        string `json:"kind"`
		Size        string `json:"size"`
		Slide       string `json:"slide"`
		SessionGap  string `json:"session_gap"`
		PartitionBy string `json:"partition_by"`
		ValueField  string `json:"value_field"`
	} `json:"window"`
	EventTypes         []string `json:"event_types"`
	Continuous         bool     `json:"continuous"`
	Severity           string   `json:"severity"`
	Channels           []string `json:"channels"`
	Suppression        string   `json:"suppression"`
	EscalationWindow   string   `json:"escalation_window"`
	EscalationChannels []string `json:"escalation_channels"`
	Enabled            *bool    `json:"enabled"`
}

func (req *ruleRequest) toRule() (*rules.Rule, error) {
	kind, err := window.ParseKind(req.Window.Kind)
	if err != nil {
		return nil, err
	}
	spec := window.Spec{
		Kind:        kind,
		PartitionBy: req.Window.PartitionBy,
		ValueField:  req.Window.ValueField,
	}
	if spec.Size, err = parseDuration("window.size", req.Window.Size); err != nil {
		return nil, err
	}
	if spec.Slide, err = parseDuration("window.slide", req.Window.Slide); err != nil {
		return nil, err
	}
	if spec.SessionGap, err = parseDuration("window.session_gap", req.Window.SessionGap); err != nil {
		return nil, err
	}

	rule := &rules.Rule{
		ID:                 req.ID,
		Name:               req.Name,
		Description:        req.Description,
		Condition:          req.Condition,
		Window:             spec,
		EventTypes:         req.EventTypes,
		Continuous:         req.Continuous,
		Severity:           types.ParseSeverity(req.Severity),
		Channels:           req.Channels,
		EscalationChannels: req.EscalationChannels,
		Enabled:            true,
	}
	if req.Severity == "" {
		rule.Severity = types.SeverityMedium
	}
	if req.Enabled != nil {
		rule.Enabled = *req.Enabled
	}
	if rule.Suppression, err = parseDuration("suppression", req.Suppression); err != nil {
		return nil, err
	}
	if rule.EscalationWindow, err = parseDuration("escalation_window", req.EscalationWindow); err != nil {
		return nil, err
	}
	return rule, nil
}

func parseDuration(field, s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, errors.NewConfigError(field, "invalid duration %q", s)
	}
	return d, nil
}

// ListRules returns every registered rule.
func (h *Handlers) ListRules(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"rules": h.engine.List()})
}

// GetRule returns one rule by id.
func (h *Handlers) GetRule(c *gin.Context) {
	rule, err := h.engine.Get(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, rule)
}

// CreateRule registers a new rule and persists it.
func (h *Handlers) CreateRule(c *gin.Context) {
	var req ruleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	rule, err := req.toRule()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.engine.Register(rule); err != nil {
		// Registration failures (bad condition, bad spec, duplicate
		// id) are all caller errors.
		status := http.StatusInternalServerError
		if errors.IsParseError(err) || errors.IsConfigError(err) {
			status = http.StatusBadRequest
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}
	h.persistRule(c, rule)
	c.JSON(http.StatusCreated, rule)
}

// UpdateRule replaces an existing rule.
func (h *Handlers) UpdateRule(c *gin.Context) {
	var req ruleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	req.ID = c.Param("id")
	rule, err := req.toRule()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.engine.Update(rule); err != nil {
		status := http.StatusNotFound
		if errors.IsParseError(err) || errors.IsConfigError(err) {
			status = http.StatusBadRequest
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}
	h.persistRule(c, rule)
	c.JSON(http.StatusOK, rule)
}

// SetRuleEnabled toggles a rule without re-registering it.
func (h *Handlers) SetRuleEnabled(c *gin.Context) {
	var body struct {
		Enabled bool `json:"enabled"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	id := c.Param("id")
	if err := h.engine.SetEnabled(id, body.Enabled); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	if rule, err := h.engine.Get(id); err == nil {
		h.persistRule(c, rule)
		c.JSON(http.StatusOK, rule)
		return
	}
	c.Status(http.StatusOK)
}

// DeleteRule unregisters and deletes a rule.
func (h *Handlers) DeleteRule(c *gin.Context) {
	id := c.Param("id")
	if err := h.engine.Remove(id); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	if h.ruleRepo != nil {
		if err := h.ruleRepo.Delete(c.Request.Context(), id); err != nil {
			h.log.WithError(err).WithField("rule_id", id).Error("Failed to delete persisted rule")
		}
	}
	c.JSON(http.StatusOK, gin.H{"deleted": id})
}

func (h *Handlers) persistRule(c *gin.Context, rule *rules.Rule) {
	if h.ruleRepo == nil {
		return
	}
	if err := h.ruleRepo.Save(c.Request.Context(), rule); err != nil {
		h.log.WithError(err).WithField("rule_id", rule.ID).Error("Failed to persist rule")
	}
}
