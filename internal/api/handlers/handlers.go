package handlers

import (
	"github.com/sirupsen/logrus"

	"github.com/streamflow/analytics-core/internal/config"
	"github.com/streamflow/analytics-core/internal/core/alerts"
	"github.com/streamflow/analytics-core/internal/core/rules"
	"github.com/streamflow/analytics-core/internal/core/stream"
	"github.com/streamflow/analytics-core/internal/database"
	"github.com/streamflow/analytics-core/internal/websocket"
)

// Handlers carries the pipeline components each endpoint needs.
type Handlers struct {
	cfg         *config.Config
	log         *logrus.Logger
	engine      *rules.Engine
	alertMgr    *alerts.Manager
	coordinator *stream.Coordinator
	hub         *websocket.Hub
	ruleRepo    database.RuleRepository
	alertRepo   database.AlertRepository
	dbPing      func() error
}

// NewHandlers wires the HTTP layer. Repositories and dbPing may be nil
// when running without persistence.
func NewHandlers(cfg *config.Config, engine *rules.Engine, alertMgr *alerts.Manager,
	coordinator *stream.Coordinator, hub *websocket.Hub,
	ruleRepo database.RuleRepository, alertRepo database.AlertRepository,
	dbPing func() error, log *logrus.Logger) *Handlers {
	return &Handlers{
		cfg:         cfg,
		log:         log,
		engine:      engine,
		alertMgr:    alertMgr,
		coordinator: coordinator,
		hub:         hub,
		ruleRepo:    ruleRepo,
		alertRepo:   alertRepo,
		dbPing:      dbPing,
	}
}
