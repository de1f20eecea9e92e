package alerts

import (
	"time"

	"github.com/google/uuid"

	"github.com/streamflow/analytics-core/internal/core/aggregate"
	"github.com/streamflow/analytics-core/internal/core/types"
)

// Status is the lifecycle state of an alert. The idle state has no
// alert object; suppression is tracked on the active alert itself.
type Status string

const (
	StatusActive   Status = "active"
	StatusResolved Status = "resolved"
)

// Alert is the per-rule alerting state. One active alert exists per
// rule at a time; repeated matches during the suppression window bump
// FireCount without re-sending notifications.
type Alert struct {
	ID        uuid.UUID        `json:"id"`
	RuleID    string           `json:"rule_id"`
	RuleName  string           `json:"rule_name"`
	Partition string           `json:"partition,omitempty"`
	Severity  types.Severity   `json:"severity"`
	Status    Status           `json:"status"`
	Message   string           `json:"message"`
	Snapshot  aggregate.Result `json:"snapshot"`

	FireCount   int       `json:"fire_count"`
	FiredAt     time.Time `json:"fired_at"`
	LastFiredAt time.Time `json:"last_fired_at"`
	LastMatchAt time.Time `json:"last_match_at"`

	// Acknowledged is orthogonal to status: an acknowledged alert is
	// still active until it resolves, but it is exempt from
	// escalation.
	Acknowledged   bool       `json:"acknowledged"`
	AcknowledgedBy string     `json:"acknowledged_by,omitempty"`
	AcknowledgedAt *time.Time `json:"acknowledged_at,omitempty"`

	ResolvedAt  *time.Time `json:"resolved_at,omitempty"`
	EscalatedAt *time.Time `json:"escalated_at,omitempty"`

	// DeliveryFailed marks that notification delivery exhausted its
	// retries. The alert stays active regardless.
	DeliveryFailed bool `json:"delivery_failed"`

	// Routing snapshot copied from the rule at fire time, so later
	// rule edits do not change an in-flight alert's behavior.
	Channels           []Channel     `json:"channels"`
	EscalationChannels []Channel     `json:"escalation_channels,omitempty"`
	Suppression        time.Duration `json:"suppression"`
	EscalationWindow   time.Duration `json:"escalation_window"`
}

// Stats summarizes alerts for the API and dashboard.
type Stats struct {
	Active       int                      `json:"active"`
	Resolved     int                      `json:"resolved"`
	Acknowledged int                      `json:"acknowledged"`
	TotalFired   uint64                   `json:"total_fired"`
	BySeverity   map[types.Severity]int   `json:"by_severity"`
}
