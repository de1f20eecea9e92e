package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/sirupsen/logrus"

	"github.com/streamflow/analytics-core/internal/core/alerts"
	"github.com/streamflow/analytics-core/internal/database/models"
)

// AlertRepository stores alerts and their transition log in SQLite.
// It satisfies alerts.Store for the alert manager.
type AlertRepository struct {
	db  *sqlx.DB
	log *logrus.Logger
}

// NewAlertRepository creates an alert repository.
func NewAlertRepository(db *sqlx.DB, log *logrus.Logger) *AlertRepository {
	return &AlertRepository{db: db, log: log}
}

// SaveAlert upserts the alert row with its current state.
func (r *AlertRepository) SaveAlert(ctx context.Context, alert *alerts.Alert) error {
	snapshotJSON, err := json.Marshal(alert.Snapshot)
	if err != nil {
		return fmt.Errorf("marshaling alert snapshot: %w", err)
	}

	query := `
		INSERT INTO alerts (id, rule_id, rule_name, partition_key, severity, status, message,
			snapshot_json, fire_count, fired_at, last_fired_at,
			acknowledged, acknowledged_by, acknowledged_at, resolved_at, escalated_at, delivery_failed)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			message = excluded.message,
			snapshot_json = excluded.snapshot_json,
			fire_count = excluded.fire_count,
			last_fired_at = excluded.last_fired_at,
			acknowledged = excluded.acknowledged,
			acknowledged_by = excluded.acknowledged_by,
			acknowledged_at = excluded.acknowledged_at,
			resolved_at = excluded.resolved_at,
			escalated_at = excluded.escalated_at,
			delivery_failed = excluded.delivery_failed`

	_, err = r.db.ExecContext(ctx, query,
		alert.ID.String(), alert.RuleID, alert.RuleName, alert.Partition,
		string(alert.Severity), string(alert.Status), alert.Message,
		string(snapshotJSON), alert.FireCount, alert.FiredAt, alert.LastFiredAt,
		alert.Acknowledged, nullString(alert.AcknowledgedBy), nullTime(alert.AcknowledgedAt),
		nullTime(alert.ResolvedAt), nullTime(alert.EscalatedAt), alert.DeliveryFailed)
	if err != nil {
		return fmt.Errorf("saving alert %s: %w", alert.ID, err)
	}
	return nil
}

// AppendHistory records one state transition.
func (r *AlertRepository) AppendHistory(ctx context.Context, alertID uuid.UUID, ruleID, transition string, at time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO alert_history (alert_id, rule_id, transition, occurred_at) VALUES (?, ?, ?, ?)`,
		alertID.String(), ruleID, transition, at)
	if err != nil {
		return fmt.Errorf("appending alert history: %w", err)
	}
	return nil
}

// ListRecent returns the newest alert rows.
func (r *AlertRepository) ListRecent(ctx context.Context, limit int) ([]*models.AlertRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	var records []*models.AlertRecord
	err := r.db.SelectContext(ctx, &records,
		`SELECT * FROM alerts ORDER BY fired_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("listing alerts: %w", err)
	}
	return records, nil
}

// History returns the transition log for one alert, oldest first.
func (r *AlertRepository) History(ctx context.Context, alertID string) ([]*models.AlertHistoryRecord, error) {
	var records []*models.AlertHistoryRecord
	err := r.db.SelectContext(ctx, &records,
		`SELECT * FROM alert_history WHERE alert_id = ? ORDER BY occurred_at ASC, id ASC`, alertID)
	if err != nil {
		return nil, fmt.Errorf("loading alert history: %w", err)
	}
	return records, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}
