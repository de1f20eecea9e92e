package errors

import (
	"errors"
	"fmt"
)

// The pipeline error taxonomy. Registration-time errors (ParseError,
// ConfigError) are returned synchronously to the caller; runtime errors
// (EvaluationError, DeliveryError) are logged and isolated per
// rule/window/alert so one bad rule cannot halt the stream.

// ParseError reports a malformed rule condition. It is produced when a
// rule is registered, never during evaluation.
type ParseError struct {
	Condition string
	Problems  []string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("cannot parse condition %q: %v", e.Condition, e.Problems)
}

// EvaluationError reports a type mismatch while evaluating a compiled
// condition. Callers treat the condition result as false.
type EvaluationError struct {
	Condition string
	Detail    string
}

func (e *EvaluationError) Error() string {
	return fmt.Sprintf("cannot evaluate condition %q: %s", e.Condition, e.Detail)
}

// ConfigError reports an invalid rule configuration (bad window spec,
// duplicate rule id). Rejected at registration.
type ConfigError struct {
	Field  string
	Detail string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid configuration for %s: %s", e.Field, e.Detail)
}

// DeliveryError reports a notification transport failure. The alert
// manager retries with backoff before surfacing delivery_failed.
type DeliveryError struct {
	Channel string
	Err     error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("delivery to %s failed: %v", e.Channel, e.Err)
}

func (e *DeliveryError) Unwrap() error { return e.Err }

// NewConfigError builds a ConfigError.
func NewConfigError(field, format string, args ...interface{}) *ConfigError {
	return &ConfigError{Field: field, Detail: fmt.Sprintf(format, args...)}
}

// IsParseError reports whether err is (or wraps) a ParseError.
func IsParseError(err error) bool {
	var pe *ParseError
	return errors.As(err, &pe)
}

// IsConfigError reports whether err is (or wraps) a ConfigError.
func IsConfigError(err error) bool {
	var ce *ConfigError
	return errors.As(err, &ce)
}

// IsEvaluationError reports whether err is (or wraps) an EvaluationError.
func IsEvaluationError(err error) bool {
	var ee *EvaluationError
	return errors.As(err, &ee)
}
