package sqlite

import (
	"context"
	"database/sql"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/streamflow/analytics-core/internal/core/aggregate"
	"github.com/streamflow/analytics-core/internal/core/alerts"
	"github.com/streamflow/analytics-core/internal/core/rules"
	"github.com/streamflow/analytics-core/internal/core/types"
	"github.com/streamflow/analytics-core/internal/core/window"
)

func testDB(t *testing.T) *sqlx.DB {
	t.Helper()
	db, err := sqlx.Open("sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	schema, err := os.ReadFile(filepath.Join("..", "..", "..", "migrations", "001_initial_schema.up.sql"))
	require.NoError(t, err)
	_, err = db.Exec(string(schema))
	require.NoError(t, err)
	return db
}

func testLog() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func TestRuleRepository_SaveLoadDelete(t *testing.T) {
	repo := NewRuleRepository(testDB(t), testLog())
	ctx := context.Background()

	rule := &rules.Rule{
		ID:        "high_error_rate",
		Name:      "High Error Rate",
		Condition: "count >= 50",
		Window: window.Spec{
			Kind: window.KindTumbling,
			Size: time.Minute,
		},
		EventTypes:       []string{"api_error"},
		Severity:         types.SeverityHigh,
		Channels:         []string{"slack"},
		Suppression:      5 * time.Minute,
		EscalationWindow: 15 * time.Minute,
		Enabled:          true,
		CreatedAt:        time.Now().UTC(),
		UpdatedAt:        time.Now().UTC(),
	}
	require.NoError(t, repo.Save(ctx, rule))

	loaded, err := repo.GetAll(ctx)
	require.NoError(t, err)
	require.Len(t, loaded, 1)
	got := loaded[0]
	assert.Equal(t, rule.ID, got.ID)
	assert.Equal(t, rule.Condition, got.Condition)
	assert.Equal(t, window.KindTumbling, got.Window.Kind)
	assert.Equal(t, time.Minute, got.Window.Size)
	assert.Equal(t, 5*time.Minute, got.Suppression)
	assert.Equal(t, types.SeverityHigh, got.Severity)

	// Upsert keeps a single row.
	rule.Condition = "count >= 100"
	require.NoError(t, repo.Save(ctx, rule))
	loaded, err = repo.GetAll(ctx)
	require.NoError(t, err)
	require.Len(t, loaded, 1)
	assert.Equal(t, "count >= 100", loaded[0].Condition)

	require.NoError(t, repo.Delete(ctx, rule.ID))
	assert.ErrorIs(t, repo.Delete(ctx, rule.ID), sql.ErrNoRows)
}

func TestAlertRepository_SaveAndHistory(t *testing.T) {
	repo := NewAlertRepository(testDB(t), testLog())
	ctx := context.Background()

	alert := &alerts.Alert{
		ID:          uuid.New(),
		RuleID:      "high_error_rate",
		RuleName:    "High Error Rate",
		Partition:   "api_error",
		Severity:    types.SeverityHigh,
		Status:      alerts.StatusActive,
		Message:     "count over threshold",
		Snapshot:    aggregate.Result{Count: 80},
		FireCount:   1,
		FiredAt:     time.Now().UTC(),
		LastFiredAt: time.Now().UTC(),
	}
	require.NoError(t, repo.SaveAlert(ctx, alert))
	require.NoError(t, repo.AppendHistory(ctx, alert.ID, alert.RuleID, "fired", time.Now().UTC()))

	resolvedAt := time.Now().UTC()
	alert.Status = alerts.StatusResolved
	alert.ResolvedAt = &resolvedAt
	require.NoError(t, repo.SaveAlert(ctx, alert))
	require.NoError(t, repo.AppendHistory(ctx, alert.ID, alert.RuleID, "resolved", time.Now().UTC()))

	recent, err := repo.ListRecent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, string(alerts.StatusResolved), recent[0].Status)
	assert.True(t, recent[0].ResolvedAt.Valid)

	history, err := repo.History(ctx, alert.ID.String())
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, "fired", history[0].Transition)
	assert.Equal(t, "resolved", history[1].Transition)
}
