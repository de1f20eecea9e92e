package rules

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/streamflow/analytics-core/internal/core/types"
	"github.com/streamflow/analytics-core/internal/core/window"
	"github.com/streamflow/analytics-core/pkg/errors"
)

// ruleFile is the on-disk shape of a rule definitions file. Durations
// are strings ("5m", "30s") so the files stay human-editable.
type ruleFile struct {
	Rules []ruleDef `json:"rules" yaml:"rules"`
}

type ruleDef struct {
	ID                 string        `json:"id" yaml:"id"`
	Name               string        `json:"name" yaml:"name"`
	Description        string        `json:"description" yaml:"description"`
	Condition          string        `json:"condition" yaml:"condition"`
	Window             windowDef     `json:"window" yaml:"window"`
	EventTypes         []string      `json:"event_types" yaml:"event_types"`
	Continuous         bool          `json:"continuous" yaml:"continuous"`
	Severity           string        `json:"severity" yaml:"severity"`
	Channels           []string      `json:"channels" yaml:"channels"`
	Suppression        string        `json:"suppression" yaml:"suppression"`
	EscalationWindow   string        `json:"escalation_window" yaml:"escalation_window"`
	EscalationChannels []string      `json:"escalation_channels" yaml:"escalation_channels"`
	Enabled            *bool         `json:"enabled" yaml:"enabled"`
}

type windowDef struct {
	Kind        string `json:"kind" yaml:"kind"`
	Size        string `json:"size" yaml:"size"`
	Slide       string `json:"slide" yaml:"slide"`
	SessionGap  string `json:"session_gap" yaml:"session_gap"`
	PartitionBy string `json:"partition_by" yaml:"partition_by"`
	ValueField  string `json:"value_field" yaml:"value_field"`
}

// LoadFile reads rule definitions from a YAML or JSON file.
func LoadFile(path string) ([]*Rule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading rules file: %w", err)
	}

	var file ruleFile
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		if err := json.Unmarshal(data, &file); err != nil {
			return nil, errors.NewConfigError("rules_file", "invalid JSON: %v", err)
		}
	default:
		if err := yaml.Unmarshal(data, &file); err != nil {
			return nil, errors.NewConfigError("rules_file", "invalid YAML: %v", err)
		}
	}

	out := make([]*Rule, 0, len(file.Rules))
	for i, def := range file.Rules {
		rule, err := def.toRule()
		if err != nil {
			return nil, fmt.Errorf("rule %d (%s): %w", i, def.ID, err)
		}
		out = append(out, rule)
	}
	return out, nil
}

func (d ruleDef) toRule() (*Rule, error) {
	kind, err := window.ParseKind(d.Window.Kind)
	if err != nil {
		return nil, err
	}

	spec := window.Spec{
		Kind:        kind,
		PartitionBy: d.Window.PartitionBy,
		ValueField:  d.Window.ValueField,
	}
	if spec.Size, err = optionalDuration("window.size", d.Window.Size); err != nil {
		return nil, err
	}
	if spec.Slide, err = optionalDuration("window.slide", d.Window.Slide); err != nil {
		return nil, err
	}
	if spec.SessionGap, err = optionalDuration("window.session_gap", d.Window.SessionGap); err != nil {
		return nil, err
	}

	severity := types.SeverityMedium
	if d.Severity != "" {
		severity = types.ParseSeverity(d.Severity)
	}

	rule := &Rule{
		ID:                 d.ID,
		Name:               d.Name,
		Description:        d.Description,
		Condition:          d.Condition,
		Window:             spec,
		EventTypes:         d.EventTypes,
		Continuous:         d.Continuous,
		Severity:           severity,
		Channels:           d.Channels,
		EscalationChannels: d.EscalationChannels,
		Enabled:            true,
	}
	if d.Enabled != nil {
		rule.Enabled = *d.Enabled
	}
	if rule.Suppression, err = optionalDuration("suppression", d.Suppression); err != nil {
		return nil, err
	}
	if rule.EscalationWindow, err = optionalDuration("escalation_window", d.EscalationWindow); err != nil {
		return nil, err
	}
	return rule, nil
}

func optionalDuration(field, s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	dur, err := time.ParseDuration(s)
	if err != nil {
		return 0, errors.NewConfigError(field, "invalid duration %q", s)
	}
	return dur, nil
}
