package database

import (
	"context"

	"github.com/streamflow/analytics-core/internal/core/alerts"
	"github.com/streamflow/analytics-core/internal/core/rules"
	"github.com/streamflow/analytics-core/internal/database/models"
)

// RuleRepository persists rule definitions so registered rules survive
// restarts.
type RuleRepository interface {
	Save(ctx context.Context, rule *rules.Rule) error
	GetAll(ctx context.Context) ([]*rules.Rule, error)
	Delete(ctx context.Context, id string) error
}

// AlertRepository persists alerts and their transition history. It
// satisfies alerts.Store.
type AlertRepository interface {
	alerts.Store
	ListRecent(ctx context.Context, limit int) ([]*models.AlertRecord, error)
	History(ctx context.Context, alertID string) ([]*models.AlertHistoryRecord, error)
}
