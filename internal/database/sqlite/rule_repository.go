package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/sirupsen/logrus"

	"github.com/streamflow/analytics-core/internal/core/rules"
	"github.com/streamflow/analytics-core/internal/core/types"
	"github.com/streamflow/analytics-core/internal/core/window"
	"github.com/streamflow/analytics-core/internal/database/models"
)

// RuleRepository stores rule definitions in SQLite.
type RuleRepository struct {
	db  *sqlx.DB
	log *logrus.Logger
}

// NewRuleRepository creates a rule repository.
func NewRuleRepository(db *sqlx.DB, log *logrus.Logger) *RuleRepository {
	return &RuleRepository{db: db, log: log}
}

// ruleConfig is the JSON blob for everything outside the window spec.
type ruleConfig struct {
	EventTypes         []string      `json:"event_types,omitempty"`
	Continuous         bool          `json:"continuous"`
	Severity           string        `json:"severity"`
	Channels           []string      `json:"channels"`
	Suppression        time.Duration `json:"suppression"`
	EscalationWindow   time.Duration `json:"escalation_window"`
	EscalationChannels []string      `json:"escalation_channels,omitempty"`
}

// Save upserts a rule definition.
func (r *RuleRepository) Save(ctx context.Context, rule *rules.Rule) error {
	windowJSON, err := json.Marshal(rule.Window)
	if err != nil {
		return fmt.Errorf("marshaling window spec: %w", err)
	}
	configJSON, err := json.Marshal(ruleConfig{
		EventTypes:         rule.EventTypes,
		Continuous:         rule.Continuous,
		Severity:           string(rule.Severity),
		Channels:           rule.Channels,
		Suppression:        rule.Suppression,
		EscalationWindow:   rule.EscalationWindow,
		EscalationChannels: rule.EscalationChannels,
	})
	if err != nil {
		return fmt.Errorf("marshaling rule config: %w", err)
	}

	query := `
		INSERT INTO rules (id, name, description, condition, window_json, config_json, enabled, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			description = excluded.description,
			condition = excluded.condition,
			window_json = excluded.window_json,
			config_json = excluded.config_json,
			enabled = excluded.enabled,
			updated_at = excluded.updated_at`

	_, err = r.db.ExecContext(ctx, query,
		rule.ID, rule.Name, rule.Description, rule.Condition,
		string(windowJSON), string(configJSON), rule.Enabled,
		rule.CreatedAt, rule.UpdatedAt)
	if err != nil {
		return fmt.Errorf("saving rule %s: %w", rule.ID, err)
	}
	return nil
}

// GetAll loads every stored rule.
func (r *RuleRepository) GetAll(ctx context.Context) ([]*rules.Rule, error) {
	var records []models.RuleRecord
	if err := r.db.SelectContext(ctx, &records, `SELECT * FROM rules ORDER BY id`); err != nil {
		return nil, fmt.Errorf("loading rules: %w", err)
	}

	out := make([]*rules.Rule, 0, len(records))
	for _, rec := range records {
		rule, err := recordToRule(rec)
		if err != nil {
			// A corrupt row should not block the others.
			r.log.WithError(err).WithField("rule_id", rec.ID).Error("Skipping unreadable rule row")
			continue
		}
		out = append(out, rule)
	}
	return out, nil
}

// Delete removes a rule definition.
func (r *RuleRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM rules WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting rule %s: %w", id, err)
	}
	affected, _ := result.RowsAffected()
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func recordToRule(rec models.RuleRecord) (*rules.Rule, error) {
	var spec window.Spec
	if err := json.Unmarshal([]byte(rec.WindowJSON), &spec); err != nil {
		return nil, fmt.Errorf("unmarshaling window spec: %w", err)
	}
	var cfg ruleConfig
	if err := json.Unmarshal([]byte(rec.ConfigJSON), &cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling rule config: %w", err)
	}

	return &rules.Rule{
		ID:                 rec.ID,
		Name:               rec.Name,
		Description:        rec.Description.String,
		Condition:          rec.Condition,
		Window:             spec,
		EventTypes:         cfg.EventTypes,
		Continuous:         cfg.Continuous,
		Severity:           types.ParseSeverity(cfg.Severity),
		Channels:           cfg.Channels,
		Suppression:        cfg.Suppression,
		EscalationWindow:   cfg.EscalationWindow,
		EscalationChannels: cfg.EscalationChannels,
		Enabled:            rec.Enabled,
		CreatedAt:          rec.CreatedAt,
		UpdatedAt:          rec.UpdatedAt,
	}, nil
}
