package alerts

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/streamflow/analytics-core/internal/core/rules"
	"github.com/streamflow/analytics-core/internal/core/types"
	"github.com/streamflow/analytics-core/pkg/errors"
)

// Store persists alerts and their transitions. The manager treats
// persistence as best-effort: store errors are logged, never block the
// alerting path.
type Store interface {
	SaveAlert(ctx context.Context, alert *Alert) error
	AppendHistory(ctx context.Context, alertID uuid.UUID, ruleID, transition string, at time.Time) error
}

// Options tunes delivery retries and auto-resolution.
type Options struct {
	MaxDeliveryTries int
	InitialBackoff   time.Duration
	MaxBackoff       time.Duration
	AutoResolveAfter time.Duration
}

func (o *Options) withDefaults() {
	if o.MaxDeliveryTries <= 0 {
		o.MaxDeliveryTries = 5
	}
	if o.InitialBackoff <= 0 {
		o.InitialBackoff = 500 * time.Millisecond
	}
	if o.MaxBackoff <= 0 {
		o.MaxBackoff = 30 * time.Second
	}
	if o.AutoResolveAfter <= 0 {
		o.AutoResolveAfter = 15 * time.Minute
	}
}

// Manager runs the per-rule alert state machine: idle, active,
// suppressed re-fires, escalation, resolution.
type Manager struct {
	log       *logrus.Logger
	transport Transport
	store     Store
	opts      Options

	// OnFired is invoked after a notification round for dashboard
	// broadcast. Optional.
	OnFired func(alert *Alert, escalation bool)

	mu       sync.RWMutex
	active   map[string]*Alert // rule id -> active alert
	resolved []*Alert

	firedTotal      uint64
	deliveryFailTot uint64
}

const resolvedHistoryLimit = 1000

// NewManager creates an alert manager. store may be nil for
// memory-only operation; transport defaults to LogTransport.
func NewManager(transport Transport, store Store, opts Options, log *logrus.Logger) *Manager {
	opts.withDefaults()
	if transport == nil {
		transport = &LogTransport{Log: log}
	}
	return &Manager{
		log:       log,
		transport: transport,
		store:     store,
		opts:      opts,
		active:    make(map[string]*Alert),
	}
}

// HandleMatch feeds one rule match into the state machine. It returns
// the alert and whether notifications were sent (false while the
// suppression window holds the alert quiet).
func (m *Manager) HandleMatch(ctx context.Context, match rules.Match, rule *rules.Rule, now time.Time) (*Alert, bool) {
	m.mu.Lock()

	if alert, ok := m.active[match.RuleID]; ok {
		alert.LastMatchAt = now
		alert.FireCount++
		alert.Snapshot = match.Snapshot
		alert.Partition = match.Partition

		if now.Sub(alert.LastFiredAt) < alert.Suppression {
			// Suppressed: state updated, nothing sent.
			m.mu.Unlock()
			m.persist(ctx, alert, "suppressed")
			return alert, false
		}

		alert.LastFiredAt = now
		notifications := m.buildLocked(alert, alert.Channels, false)
		m.firedTotal++
		m.mu.Unlock()

		m.log.WithFields(logrus.Fields{
			"alert_id":   alert.ID,
			"rule_id":    alert.RuleID,
			"fire_count": alert.FireCount,
		}).Info("Alert re-fired")
		m.deliver(ctx, alert, notifications)
		m.persist(ctx, alert, "refired")
		m.notifyHook(alert, false)
		return alert, true
	}

	channels, err := ParseChannels(rule.Channels)
	if err != nil || len(channels) == 0 {
		channels = []Channel{ChannelWebhook}
	}
	escChannels, err := ParseChannels(rule.EscalationChannels)
	if err != nil {
		escChannels = nil
	}

	alert := &Alert{
		ID:                 uuid.New(),
		RuleID:             match.RuleID,
		RuleName:           match.RuleName,
		Partition:          match.Partition,
		Severity:           match.Severity,
		Status:             StatusActive,
		Message:            fmt.Sprintf("Rule %q matched: %s", match.RuleName, rule.Condition),
		Snapshot:           match.Snapshot,
		FireCount:          1,
		FiredAt:            now,
		LastFiredAt:        now,
		LastMatchAt:        now,
		Channels:           channels,
		EscalationChannels: escChannels,
		Suppression:        rule.Suppression,
		EscalationWindow:   rule.EscalationWindow,
	}
	m.active[match.RuleID] = alert
	notifications := m.buildLocked(alert, alert.Channels, false)
	m.firedTotal++
	m.mu.Unlock()

	m.log.WithFields(logrus.Fields{
		"alert_id": alert.ID,
		"rule_id":  alert.RuleID,
		"severity": string(alert.Severity),
	}).Warn("Alert fired")
	m.deliver(ctx, alert, notifications)
	m.persist(ctx, alert, "fired")
	m.notifyHook(alert, false)
	return alert, true
}

// buildLocked renders notifications for each channel. Caller holds mu.
func (m *Manager) buildLocked(alert *Alert, channels []Channel, escalation bool) []Notification {
	out := make([]Notification, 0, len(channels))
	for _, ch := range channels {
		out = append(out, Notification{
			Channel:    ch,
			Escalation: escalation,
			Alert:      alert,
			Payload:    buildPayload(ch, alert, escalation),
		})
	}
	return out
}

// deliver sends each notification with exponential backoff. Exhausted
// retries mark the alert delivery_failed; the alert stays active.
func (m *Manager) deliver(ctx context.Context, alert *Alert, notifications []Notification) {
	for _, n := range notifications {
		policy := backoff.NewExponentialBackOff()
		policy.InitialInterval = m.opts.InitialBackoff
		policy.MaxInterval = m.opts.MaxBackoff
		policy.MaxElapsedTime = 0

		send := func() error {
			return m.transport.Send(ctx, n)
		}
		err := backoff.Retry(send, backoff.WithContext(
			backoff.WithMaxRetries(policy, uint64(m.opts.MaxDeliveryTries-1)), ctx))
		if err == nil {
			continue
		}

		delivErr := &errors.DeliveryError{Channel: string(n.Channel), Err: err}
		m.log.WithError(delivErr).WithFields(logrus.Fields{
			"alert_id": alert.ID,
			"channel":  string(n.Channel),
			"attempts": m.opts.MaxDeliveryTries,
		}).Error("Notification delivery failed")

		m.mu.Lock()
		alert.DeliveryFailed = true
		m.deliveryFailTot++
		m.mu.Unlock()
	}
}

// Sweep drives time-based transitions: auto-resolve of quiet alerts
// and one-shot escalation of unacknowledged ones.
func (m *Manager) Sweep(ctx context.Context, now time.Time) {
	type escalation struct {
		alert         *Alert
		notifications []Notification
	}

	m.mu.Lock()
	var toResolve []*Alert
	var toEscalate []escalation

	for _, alert := range m.active {
		if now.Sub(alert.LastMatchAt) >= m.opts.AutoResolveAfter {
			toResolve = append(toResolve, alert)
			continue
		}
		if alert.EscalationWindow > 0 && !alert.Acknowledged && alert.EscalatedAt == nil &&
			now.Sub(alert.FiredAt) >= alert.EscalationWindow && len(alert.EscalationChannels) > 0 {
			at := now
			alert.EscalatedAt = &at
			toEscalate = append(toEscalate, escalation{
				alert:         alert,
				notifications: m.buildLocked(alert, alert.EscalationChannels, true),
			})
		}
	}
	for _, alert := range toResolve {
		m.resolveLocked(alert, now)
	}
	m.mu.Unlock()

	for _, alert := range toResolve {
		m.log.WithFields(logrus.Fields{
			"alert_id": alert.ID,
			"rule_id":  alert.RuleID,
		}).Info("Alert auto-resolved")
		m.persist(ctx, alert, "auto_resolved")
	}
	for _, esc := range toEscalate {
		m.log.WithFields(logrus.Fields{
			"alert_id": esc.alert.ID,
			"rule_id":  esc.alert.RuleID,
		}).Warn("Alert escalated")
		m.deliver(ctx, esc.alert, esc.notifications)
		m.persist(ctx, esc.alert, "escalated")
		m.notifyHook(esc.alert, true)
	}
}

// Acknowledge flags an active alert. Acknowledged alerts stay active
// but are exempt from escalation.
func (m *Manager) Acknowledge(ctx context.Context, id uuid.UUID, by string) (*Alert, error) {
	m.mu.Lock()
	alert := m.findActiveLocked(id)
	if alert == nil {
		m.mu.Unlock()
		return nil, fmt.Errorf("active alert %s not found", id)
	}
	now := time.Now()
	alert.Acknowledged = true
	alert.AcknowledgedBy = by
	alert.AcknowledgedAt = &now
	m.mu.Unlock()

	m.persist(ctx, alert, "acknowledged")
	return alert, nil
}

// Resolve explicitly resolves an active alert.
func (m *Manager) Resolve(ctx context.Context, id uuid.UUID) (*Alert, error) {
	m.mu.Lock()
	alert := m.findActiveLocked(id)
	if alert == nil {
		m.mu.Unlock()
		return nil, fmt.Errorf("active alert %s not found", id)
	}
	m.resolveLocked(alert, time.Now())
	m.mu.Unlock()

	m.persist(ctx, alert, "resolved")
	return alert, nil
}

// resolveLocked moves an alert out of the active set. Caller holds mu.
func (m *Manager) resolveLocked(alert *Alert, now time.Time) {
	at := now
	alert.Status = StatusResolved
	alert.ResolvedAt = &at
	delete(m.active, alert.RuleID)
	m.resolved = append(m.resolved, alert)
	if len(m.resolved) > resolvedHistoryLimit {
		m.resolved = m.resolved[len(m.resolved)-resolvedHistoryLimit:]
	}
}

func (m *Manager) findActiveLocked(id uuid.UUID) *Alert {
	for _, alert := range m.active {
		if alert.ID == id {
			return alert
		}
	}
	return nil
}

// Get returns an alert by id, active or recently resolved.
func (m *Manager) Get(id uuid.UUID) (*Alert, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if alert := m.findActiveLocked(id); alert != nil {
		copied := *alert
		return &copied, nil
	}
	for _, alert := range m.resolved {
		if alert.ID == id {
			copied := *alert
			return &copied, nil
		}
	}
	return nil, fmt.Errorf("alert %s not found", id)
}

// List returns alerts, optionally filtered by status, newest first.
func (m *Manager) List(status Status) []*Alert {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*Alert
	if status == "" || status == StatusActive {
		for _, alert := range m.active {
			copied := *alert
			out = append(out, &copied)
		}
	}
	if status == "" || status == StatusResolved {
		for _, alert := range m.resolved {
			copied := *alert
			out = append(out, &copied)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].FiredAt.After(out[j].FiredAt) })
	return out
}

// GetStats summarizes current alerting state.
func (m *Manager) GetStats() Stats {
	m.mu.RLock()
	defer m.mu.RUnlock()
	stats := Stats{
		Active:     len(m.active),
		Resolved:   len(m.resolved),
		TotalFired: m.firedTotal,
		BySeverity: make(map[types.Severity]int),
	}
	for _, alert := range m.active {
		stats.BySeverity[alert.Severity]++
		if alert.Acknowledged {
			stats.Acknowledged++
		}
	}
	return stats
}

// DeliveryFailures reports the total count of exhausted deliveries.
func (m *Manager) DeliveryFailures() uint64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.deliveryFailTot
}

// FiredTotal reports how many notification rounds were sent.
func (m *Manager) FiredTotal() uint64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.firedTotal
}

func (m *Manager) persist(ctx context.Context, alert *Alert, transition string) {
	if m.store == nil {
		return
	}
	m.mu.RLock()
	copied := *alert
	m.mu.RUnlock()
	if err := m.store.SaveAlert(ctx, &copied); err != nil {
		m.log.WithError(err).WithField("alert_id", copied.ID).Error("Failed to persist alert")
	}
	if err := m.store.AppendHistory(ctx, copied.ID, copied.RuleID, transition, time.Now()); err != nil {
		m.log.WithError(err).WithField("alert_id", copied.ID).Error("Failed to persist alert transition")
	}
}

func (m *Manager) notifyHook(alert *Alert, escalation bool) {
	if m.OnFired == nil {
		return
	}
	m.mu.RLock()
	copied := *alert
	m.mu.RUnlock()
	m.OnFired(&copied, escalation)
}
