package models

import (
	"database/sql"
	"time"
)

// RuleRecord is the persisted form of a processing rule. The window
// spec and routing lists are stored as JSON columns; the engine is the
// source of truth for their shape.
type RuleRecord struct {
	ID          string         `db:"id"`
	Name        string         `db:"name"`
	Description sql.NullString `db:"description"`
	Condition   string         `db:"condition"`
	WindowJSON  string         `db:"window_json"`
	ConfigJSON  string         `db:"config_json"`
	Enabled     bool           `db:"enabled"`
	CreatedAt   time.Time      `db:"created_at"`
	UpdatedAt   time.Time      `db:"updated_at"`
}

// AlertRecord is one alert row, updated in place on every transition.
type AlertRecord struct {
	ID             string         `db:"id"`
	RuleID         string         `db:"rule_id"`
	RuleName       string         `db:"rule_name"`
	Partition      string         `db:"partition_key"`
	Severity       string         `db:"severity"`
	Status         string         `db:"status"`
	Message        string         `db:"message"`
	SnapshotJSON   string         `db:"snapshot_json"`
	FireCount      int            `db:"fire_count"`
	FiredAt        time.Time      `db:"fired_at"`
	LastFiredAt    time.Time      `db:"last_fired_at"`
	Acknowledged   bool           `db:"acknowledged"`
	AcknowledgedBy sql.NullString `db:"acknowledged_by"`
	AcknowledgedAt sql.NullTime   `db:"acknowledged_at"`
	ResolvedAt     sql.NullTime   `db:"resolved_at"`
	EscalatedAt    sql.NullTime   `db:"escalated_at"`
	DeliveryFailed bool           `db:"delivery_failed"`
}

// AlertHistoryRecord is an append-only transition log row.
type AlertHistoryRecord struct {
	ID         int64     `db:"id"`
	AlertID    string    `db:"alert_id"`
	RuleID     string    `db:"rule_id"`
	Transition string    `db:"transition"`
	OccurredAt time.Time `db:"occurred_at"`
}
