// Package errors provides severity-aware error types.
package errors

import (
	stderrors "errors"
	"fmt"
)

// Severity indicates error impact level.
type Severity int

const (
	SeverityInfo Severity = iota
	SeverityWarning
	SeverityError
	SeverityFatal
)

func (s Severity) String() string {
	switch s {
	case SeverityInfo:
		return "info"
	case SeverityWarning:
		return "warning"
	case SeverityError:
		return "error"
	case SeverityFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// MarshalText renders the severity by name in JSON payloads.
func (s Severity) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// InsightError is a structured error with context.
type InsightError struct {
	Code        string   `json:"code"`
	Message     string   `json:"message"`
	Severity    Severity `json:"severity"`
	OrderID     string   `json:"order_id,omitempty"`
	Recoverable bool     `json:"recoverable"`
}

func (e *InsightError) Error() string {
	if e.OrderID != "" {
		return fmt.Sprintf("[%s] %s: %s (order: %s)", e.Severity, e.Code, e.Message, e.OrderID)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Severity, e.Code, e.Message)
}

// Is matches any InsightError carrying the same code.
func (e *InsightError) Is(target error) bool {
	var other *InsightError
	if !stderrors.As(target, &other) {
		return false
	}
	return other.Code == e.Code
}

// Error codes
const (
	ErrCodeOrderNotFound     = "ORDER_NOT_FOUND"
	ErrCodeUnsupportedIntent = "UNSUPPORTED_INTENT"
	ErrCodeSourceFailed      = "SOURCE_FAILED"
	ErrCodeInvalidConfig     = "INVALID_CONFIG"
)

// Sentinels for errors.Is checks
var (
	ErrOrderNotFound     = &InsightError{Code: ErrCodeOrderNotFound, Message: "order not found", Severity: SeverityError}
	ErrUnsupportedIntent = &InsightError{Code: ErrCodeUnsupportedIntent, Message: "unsupported intent", Severity: SeverityWarning, Recoverable: true}
)

// NewOrderNotFoundError creates an error for an approval target absent from the order set.
func NewOrderNotFoundError(orderID string) *InsightError {
	return &InsightError{
		Code:        ErrCodeOrderNotFound,
		Message:     fmt.Sprintf("Purchase order %q not found", orderID),
		Severity:    SeverityError,
		OrderID:     orderID,
		Recoverable: false,
	}
}

// NewUnsupportedIntentError creates an error for an intent with no explanation template.
func NewUnsupportedIntentError(intent string) *InsightError {
	return &InsightError{
		Code:        ErrCodeUnsupportedIntent,
		Message:     fmt.Sprintf("No explanation template for intent: %s", intent),
		Severity:    SeverityWarning,
		Recoverable: true,
	}
}

// NewInvalidConfigError creates an error for an out-of-range setting.
func NewInvalidConfigError(setting, reason string) *InsightError {
	return &InsightError{
		Code:        ErrCodeInvalidConfig,
		Message:     fmt.Sprintf("Invalid %s: %s", setting, reason),
		Severity:    SeverityFatal,
		Recoverable: false,
	}
}

// NewSourceError wraps a failure to load orders from a source.
func NewSourceError(source string, err error) error {
	return fmt.Errorf("%w: %s: %w", &InsightError{
		Code:        ErrCodeSourceFailed,
		Message:     "failed to load orders",
		Severity:    SeverityError,
		Recoverable: true,
	}, source, err)
}

// IsNotFound reports whether err is an order-not-found error.
func IsNotFound(err error) bool {
	return stderrors.Is(err, ErrOrderNotFound)
}
