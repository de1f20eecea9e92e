package types

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Severity classifies an event on intake. The intake layer validates
// the value; unknown severities are normalized to SeverityLow.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// ParseSeverity normalizes a severity string.
func ParseSeverity(s string) Severity {
	switch sev := Severity(strings.ToLower(strings.TrimSpace(s))); sev {
	case SeverityMedium, SeverityHigh, SeverityCritical:
		return sev
	default:
		return SeverityLow
	}
}

// Event is a single immutable record from the inbound stream. Delivery
// is at-least-once; the aggregation path deduplicates by ID per window.
type Event struct {
	ID        uuid.UUID              `json:"id"`
	Type      string                 `json:"type"`
	Source    string                 `json:"source"`
	Timestamp time.Time              `json:"timestamp"`
	Severity  Severity               `json:"severity"`
	Data      map[string]interface{} `json:"data,omitempty"`
	Tags      []string               `json:"tags,omitempty"`
}

// NewEvent builds an event with a fresh id and the current time.
func NewEvent(eventType, source string, data map[string]interface{}) *Event {
	return &Event{
		ID:        uuid.New(),
		Type:      eventType,
		Source:    source,
		Timestamp: time.Now().UTC(),
		Severity:  SeverityLow,
		Data:      data,
	}
}

// Context exposes the event to the expression evaluator. Tags are
// presented as a membership map so conditions like tags.prod == true
// work without list syntax in the grammar.
func (e *Event) Context() map[string]interface{} {
	tags := make(map[string]interface{}, len(e.Tags))
	for _, t := range e.Tags {
		tags[t] = true
	}
	return map[string]interface{}{
		"type":     e.Type,
		"source":   e.Source,
		"severity": string(e.Severity),
		"data":     e.Data,
		"tags":     tags,
	}
}
