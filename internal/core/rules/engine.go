package rules

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/streamflow/analytics-core/internal/core/aggregate"
	"github.com/streamflow/analytics-core/internal/core/expr"
	"github.com/streamflow/analytics-core/internal/core/types"
	"github.com/streamflow/analytics-core/internal/core/window"
	pkgerrors "github.com/streamflow/analytics-core/pkg/errors"
)

// compiledRule pairs a rule with its compiled condition. The program
// is immutable and shared by every evaluation; rules never share
// mutable state with each other, so a panicking or erroring rule
// cannot affect its neighbors.
type compiledRule struct {
	rule    *Rule
	program *expr.Program
}

// Engine owns the registered rules and drives their evaluation against
// closing windows and the periodic tick.
type Engine struct {
	log     *logrus.Logger
	windows *window.Manager

	mu    sync.RWMutex
	rules map[string]*compiledRule

	// Evaluation outcomes, exported for the metrics collector.
	evalCount uint64
	evalErrs  uint64
}

// NewEngine creates a rule engine bound to a window manager.
func NewEngine(windows *window.Manager, log *logrus.Logger) *Engine {
	return &Engine{
		log:     log,
		windows: windows,
		rules:   make(map[string]*compiledRule),
	}
}

// Register validates and compiles a rule. Malformed conditions are
// rejected here with a ParseError so they can never reach evaluation.
func (e *Engine) Register(rule *Rule) error {
	if err := rule.Validate(); err != nil {
		return err
	}
	program, err := expr.Compile(rule.Condition)
	if err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if _, exists := e.rules[rule.ID]; exists {
		return pkgerrors.NewConfigError("rule.id", "rule %s already registered", rule.ID)
	}
	now := time.Now()
	rule.CreatedAt = now
	rule.UpdatedAt = now
	e.rules[rule.ID] = &compiledRule{rule: rule, program: program}

	e.log.WithFields(logrus.Fields{
		"rule_id":   rule.ID,
		"rule_name": rule.Name,
		"window":    string(rule.Window.Kind),
		"enabled":   rule.Enabled,
	}).Info("Rule registered")
	return nil
}

// Update replaces an existing rule, recompiling its condition.
func (e *Engine) Update(rule *Rule) error {
	if err := rule.Validate(); err != nil {
		return err
	}
	program, err := expr.Compile(rule.Condition)
	if err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	existing, ok := e.rules[rule.ID]
	if !ok {
		return fmt.Errorf("rule %s not found", rule.ID)
	}
	rule.CreatedAt = existing.rule.CreatedAt
	rule.UpdatedAt = time.Now()
	e.rules[rule.ID] = &compiledRule{rule: rule, program: program}

	e.log.WithField("rule_id", rule.ID).Info("Rule updated")
	return nil
}

// SetEnabled enables or disables a rule without touching its windows.
func (e *Engine) SetEnabled(id string, enabled bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	cr, ok := e.rules[id]
	if !ok {
		return fmt.Errorf("rule %s not found", id)
	}
	cr.rule.Enabled = enabled
	cr.rule.UpdatedAt = time.Now()
	e.log.WithFields(logrus.Fields{"rule_id": id, "enabled": enabled}).Info("Rule toggled")
	return nil
}

// Remove unregisters a rule.
func (e *Engine) Remove(id string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.rules[id]; !ok {
		return fmt.Errorf("rule %s not found", id)
	}
	delete(e.rules, id)
	return nil
}

// Get returns a copy of a rule.
func (e *Engine) Get(id string) (*Rule, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	cr, ok := e.rules[id]
	if !ok {
		return nil, fmt.Errorf("rule %s not found", id)
	}
	copied := *cr.rule
	return &copied, nil
}

// List returns all rules sorted by id.
func (e *Engine) List() []*Rule {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]*Rule, 0, len(e.rules))
	for _, cr := range e.rules {
		copied := *cr.rule
		out = append(out, &copied)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Route folds one event into the windows of every enabled rule it
// applies to, and reports how many folds and late drops happened.
func (e *Engine) Route(ev *types.Event) window.FoldResult {
	e.mu.RLock()
	targets := make([]*Rule, 0, len(e.rules))
	for _, cr := range e.rules {
		if cr.rule.Enabled && cr.rule.AppliesTo(ev) {
			targets = append(targets, cr.rule)
		}
	}
	e.mu.RUnlock()

	var total window.FoldResult
	for _, rule := range targets {
		value, hasValue := rule.Value(ev)
		res := e.windows.Fold(rule.Window, rule.Partition(ev), ev.ID, ev.Timestamp, value, hasValue)
		total.Folded += res.Folded
		total.Duplicates += res.Duplicates
		total.LateDropped += res.LateDropped
	}
	return total
}

// EvaluateWindow runs every enabled rule sharing the window's spec
// against its final snapshot. Evaluation errors are logged and treated
// as a non-match; they never stop other rules.
func (e *Engine) EvaluateWindow(w *window.Window, now time.Time) []Match {
	snapshot := w.Snapshot()
	ctx := snapshot.Context()
	ctx["partition"] = w.Partition

	e.mu.RLock()
	candidates := make([]*compiledRule, 0, len(e.rules))
	for _, cr := range e.rules {
		if cr.rule.Enabled && cr.rule.Window.Key() == w.SpecKey {
			candidates = append(candidates, cr)
		}
	}
	e.mu.RUnlock()

	var matches []Match
	for _, cr := range candidates {
		if e.evaluate(cr, ctx) {
			matches = append(matches, Match{
				ID:        uuid.New(),
				RuleID:    cr.rule.ID,
				RuleName:  cr.rule.Name,
				WindowID:  w.ID,
				Partition: w.Partition,
				Severity:  cr.rule.Severity,
				Snapshot:  snapshot,
				MatchedAt: now,
			})
		}
	}
	return matches
}

// EvaluateTick runs continuous rules against their open windows. A
// continuous rule with no open window is evaluated against an empty
// snapshot so absence conditions like count == 0 can match.
func (e *Engine) EvaluateTick(now time.Time) []Match {
	e.mu.RLock()
	continuous := make([]*compiledRule, 0)
	for _, cr := range e.rules {
		if cr.rule.Enabled && cr.rule.Continuous {
			continuous = append(continuous, cr)
		}
	}
	e.mu.RUnlock()

	var matches []Match
	for _, cr := range continuous {
		open := e.windows.OpenWindows(cr.rule.Window)
		if len(open) == 0 {
			ctx := (aggregate.Result{}).Context()
			if e.evaluate(cr, ctx) {
				matches = append(matches, Match{
					ID:        uuid.New(),
					RuleID:    cr.rule.ID,
					RuleName:  cr.rule.Name,
					Severity:  cr.rule.Severity,
					MatchedAt: now,
				})
			}
			continue
		}
		for _, w := range open {
			snapshot := w.Snapshot()
			ctx := snapshot.Context()
			ctx["partition"] = w.Partition
			if e.evaluate(cr, ctx) {
				matches = append(matches, Match{
					ID:        uuid.New(),
					RuleID:    cr.rule.ID,
					RuleName:  cr.rule.Name,
					WindowID:  w.ID,
					Partition: w.Partition,
					Severity:  cr.rule.Severity,
					Snapshot:  snapshot,
					MatchedAt: now,
				})
			}
		}
	}
	return matches
}

func (e *Engine) evaluate(cr *compiledRule, ctx map[string]interface{}) bool {
	e.mu.Lock()
	e.evalCount++
	e.mu.Unlock()

	matched, err := cr.program.Evaluate(ctx)
	if err != nil {
		e.mu.Lock()
		e.evalErrs++
		e.mu.Unlock()
		e.log.WithError(err).WithFields(logrus.Fields{
			"rule_id":   cr.rule.ID,
			"condition": cr.rule.Condition,
		}).Warn("Rule evaluation failed, treating as no match")
		return false
	}
	return matched
}

// Stats reports evaluation counters.
func (e *Engine) Stats() (evaluations, errors uint64) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.evalCount, e.evalErrs
}
