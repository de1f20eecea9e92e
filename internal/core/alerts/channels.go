package alerts

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/streamflow/analytics-core/pkg/errors"
)

// Channel is a notification destination kind. The set is closed;
// transports decide how each kind is actually delivered.
type Channel string

const (
	ChannelEmail   Channel = "email"
	ChannelSlack   Channel = "slack"
	ChannelWebhook Channel = "webhook"
)

// ParseChannel validates a channel name from config or the API.
func ParseChannel(s string) (Channel, error) {
	switch Channel(strings.ToLower(strings.TrimSpace(s))) {
	case ChannelEmail:
		return ChannelEmail, nil
	case ChannelSlack:
		return ChannelSlack, nil
	case ChannelWebhook:
		return ChannelWebhook, nil
	default:
		return "", errors.NewConfigError("channel", "unknown notification channel %q", s)
	}
}

// ParseChannels converts a list of names, rejecting the whole list on
// the first unknown entry.
func ParseChannels(names []string) ([]Channel, error) {
	out := make([]Channel, 0, len(names))
	for _, name := range names {
		ch, err := ParseChannel(name)
		if err != nil {
			return nil, err
		}
		out = append(out, ch)
	}
	return out, nil
}

// Notification is one outbound message for one channel.
type Notification struct {
	Channel    Channel                `json:"channel"`
	Escalation bool                   `json:"escalation"`
	Alert      *Alert                 `json:"alert"`
	Payload    map[string]interface{} `json:"payload"`
}

// Transport delivers notifications. Implementations live outside this
// module (SMTP relays, Slack apps, HTTP posters); the manager only
// retries and records the outcome.
type Transport interface {
	Send(ctx context.Context, n Notification) error
}

// buildPayload renders the channel-specific message body.
func buildPayload(ch Channel, alert *Alert, escalation bool) map[string]interface{} {
	title := fmt.Sprintf("[%s] %s", strings.ToUpper(string(alert.Severity)), alert.RuleName)
	if escalation {
		title = "[ESCALATED] " + title
	}

	switch ch {
	case ChannelEmail:
		return map[string]interface{}{
			"subject": title,
			"body": fmt.Sprintf("%s\n\nRule: %s\nPartition: %s\nFire count: %d\nWindow count: %d\nFirst fired: %s",
				alert.Message, alert.RuleID, alert.Partition, alert.FireCount,
				alert.Snapshot.Count, alert.FiredAt.Format(time.RFC3339)),
		}
	case ChannelSlack:
		return map[string]interface{}{
			"text": fmt.Sprintf("*%s*\n%s", title, alert.Message),
			"fields": map[string]interface{}{
				"rule":       alert.RuleID,
				"partition":  alert.Partition,
				"severity":   string(alert.Severity),
				"fire_count": alert.FireCount,
			},
		}
	default: // webhook gets the structured alert
		return map[string]interface{}{
			"title":      title,
			"alert_id":   alert.ID.String(),
			"rule_id":    alert.RuleID,
			"partition":  alert.Partition,
			"severity":   string(alert.Severity),
			"status":     string(alert.Status),
			"message":    alert.Message,
			"fire_count": alert.FireCount,
			"snapshot":   alert.Snapshot,
			"escalation": escalation,
		}
	}
}

// LogTransport writes notifications to the log. It is the default
// transport when no external delivery is wired up.
type LogTransport struct {
	Log *logrus.Logger
}

func (t *LogTransport) Send(_ context.Context, n Notification) error {
	t.Log.WithFields(logrus.Fields{
		"channel":    string(n.Channel),
		"alert_id":   n.Alert.ID,
		"rule_id":    n.Alert.RuleID,
		"escalation": n.Escalation,
	}).Info("Notification delivered")
	return nil
}
