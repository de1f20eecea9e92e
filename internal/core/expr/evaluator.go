package expr

import (
	"fmt"

	"github.com/streamflow/analytics-core/pkg/errors"
)

// Program is a compiled rule condition. It is immutable and safe for
// concurrent evaluation against independent contexts.
type Program struct {
	source string
	root   expression
}

// Source returns the original condition string.
func (p *Program) Source() string { return p.source }

func (p *Program) String() string { return p.root.String() }

// missing marks a field reference that resolved to nothing. It
// propagates through comparisons and not, so a result that depends on
// an absent field stays missing all the way to the root, where it
// lands as false. Sparse event data is normal and must neither raise
// errors nor fire negated rules.
type missing struct{}

// Evaluate runs the condition against a context of named values.
// Nested maps are reachable through dotted access. A type mismatch
// returns an EvaluationError; callers are expected to log it and treat
// the condition as false.
func (p *Program) Evaluate(context map[string]interface{}) (bool, error) {
	value, err := p.eval(p.root, context)
	if err != nil {
		return false, err
	}
	return truthy(value), nil
}

func (p *Program) eval(node expression, context map[string]interface{}) (interface{}, error) {
	switch n := node.(type) {
	case *numberLiteral:
		return n.Value, nil
	case *stringLiteral:
		return n.Value, nil
	case *identifier:
		value, ok := context[n.Name]
		if !ok {
			return missing{}, nil
		}
		return value, nil
	case *fieldAccess:
		left, err := p.eval(n.Left, context)
		if err != nil {
			return nil, err
		}
		if _, absent := left.(missing); absent {
			return missing{}, nil
		}
		container, ok := left.(map[string]interface{})
		if !ok {
			return missing{}, nil
		}
		value, ok := container[n.Field]
		if !ok {
			return missing{}, nil
		}
		return value, nil
	case *prefixExpression:
		right, err := p.eval(n.Right, context)
		if err != nil {
			return nil, err
		}
		if isMissing(right) {
			return missing{}, nil
		}
		return !truthy(right), nil
	case *infixExpression:
		return p.evalInfix(n, context)
	default:
		return nil, p.evalError("unknown expression node %T", node)
	}
}

func (p *Program) evalInfix(n *infixExpression, context map[string]interface{}) (interface{}, error) {
	left, err := p.eval(n.Left, context)
	if err != nil {
		return nil, err
	}

	// Short-circuit the boolean combinators. A missing operand only
	// decides the result when the other side already does (false for
	// and, true for or); otherwise missing propagates up.
	switch n.Operator {
	case "and":
		if !isMissing(left) && !truthy(left) {
			return false, nil
		}
		right, err := p.eval(n.Right, context)
		if err != nil {
			return nil, err
		}
		if !isMissing(right) && !truthy(right) {
			return false, nil
		}
		if isMissing(left) || isMissing(right) {
			return missing{}, nil
		}
		return true, nil
	case "or":
		if !isMissing(left) && truthy(left) {
			return true, nil
		}
		right, err := p.eval(n.Right, context)
		if err != nil {
			return nil, err
		}
		if !isMissing(right) && truthy(right) {
			return true, nil
		}
		if isMissing(left) || isMissing(right) {
			return missing{}, nil
		}
		return false, nil
	}

	right, err := p.eval(n.Right, context)
	if err != nil {
		return nil, err
	}

	// A comparison touching a missing field stays missing, never an
	// error, so negation cannot flip it to true.
	if isMissing(left) || isMissing(right) {
		return missing{}, nil
	}

	return p.compare(n.Operator, left, right)
}

func (p *Program) compare(operator string, left, right interface{}) (interface{}, error) {
	if lf, lok := toFloat(left); lok {
		rf, rok := toFloat(right)
		if !rok {
			return nil, p.evalError("cannot compare number with %T", right)
		}
		switch operator {
		case "==":
			return lf == rf, nil
		case "!=":
			return lf != rf, nil
		case "<":
			return lf < rf, nil
		case ">":
			return lf > rf, nil
		case "<=":
			return lf <= rf, nil
		case ">=":
			return lf >= rf, nil
		}
		return nil, p.evalError("unsupported operator %q", operator)
	}

	if ls, lok := left.(string); lok {
		rs, rok := right.(string)
		if !rok {
			return nil, p.evalError("cannot compare string with %T", right)
		}
		switch operator {
		case "==":
			return ls == rs, nil
		case "!=":
			return ls != rs, nil
		case "<":
			return ls < rs, nil
		case ">":
			return ls > rs, nil
		case "<=":
			return ls <= rs, nil
		case ">=":
			return ls >= rs, nil
		}
		return nil, p.evalError("unsupported operator %q", operator)
	}

	if lb, lok := left.(bool); lok {
		rb, rok := right.(bool)
		if !rok {
			return nil, p.evalError("cannot compare bool with %T", right)
		}
		switch operator {
		case "==":
			return lb == rb, nil
		case "!=":
			return lb != rb, nil
		}
		return nil, p.evalError("operator %q is not defined for booleans", operator)
	}

	return nil, p.evalError("cannot compare values of type %T", left)
}

func (p *Program) evalError(format string, args ...interface{}) error {
	return &errors.EvaluationError{
		Condition: p.source,
		Detail:    fmt.Sprintf(format, args...),
	}
}

func isMissing(v interface{}) bool {
	_, ok := v.(missing)
	return ok
}

// truthy maps an evaluated value to a boolean result. Only true is
// truthy; a missing field or any non-boolean value is false, matching
// the missing-field policy at the condition level.
func truthy(v interface{}) bool {
	b, ok := v.(bool)
	return ok && b
}

// toFloat widens the numeric types that show up in decoded JSON and
// snapshot contexts.
func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint64:
		return float64(n), true
	default:
		return 0, false
	}
}
