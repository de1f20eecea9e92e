package websocket

import (
	"github.com/streamflow/analytics-core/internal/core/alerts"
	"github.com/streamflow/analytics-core/internal/core/rules"
	"github.com/streamflow/analytics-core/internal/core/stream"
)

// Feed translates pipeline output into hub broadcasts, wired into the
// alert manager's fire hook, the coordinator's match hook, and the
// stats loop.

// BroadcastAlert publishes a fired or escalated alert.
func BroadcastAlert(hub *Hub, alert *alerts.Alert, escalation bool) {
	msgType := "alert_fired"
	if escalation {
		msgType = "alert_escalated"
	}
	hub.Broadcast(NewMessage(msgType, TopicAlerts, map[string]interface{}{
		"alert_id":   alert.ID.String(),
		"rule_id":    alert.RuleID,
		"rule_name":  alert.RuleName,
		"partition":  alert.Partition,
		"severity":   string(alert.Severity),
		"status":     string(alert.Status),
		"message":    alert.Message,
		"fire_count": alert.FireCount,
		"snapshot":   alert.Snapshot,
	}))
}

// BroadcastMatch publishes a rule match before alert processing.
func BroadcastMatch(hub *Hub, match rules.Match) {
	hub.Broadcast(NewMessage("rule_matched", TopicMatches, map[string]interface{}{
		"rule_id":   match.RuleID,
		"rule_name": match.RuleName,
		"window_id": match.WindowID.String(),
		"partition": match.Partition,
		"severity":  string(match.Severity),
		"snapshot":  match.Snapshot,
	}))
}

// BroadcastStats publishes coordinator throughput for live dashboards.
func BroadcastStats(hub *Hub, stats stream.Stats) {
	hub.Broadcast(NewMessage("pipeline_stats", TopicStats, map[string]interface{}{
		"events_processed": stats.EventsProcessed,
		"folded":           stats.Folded,
		"duplicates":       stats.Duplicates,
		"late_dropped":     stats.LateDropped,
		"queue_depth":      stats.QueueDepth,
		"backpressure":     stats.Backpressure,
	}))
}
