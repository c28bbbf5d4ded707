package domain

import "fmt"

// Error is a coded error. errors.Is matches on Code, so wrapped instances
// compare equal to the package-level sentinels below.
type Error struct {
	Code    string
	Message string
	Cause   error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for errors.Is/As support.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is implements errors.Is matching by code.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Code == t.Code
	}
	return false
}

// WrapError creates a new error with the same code but with a cause.
func WrapError(base *Error, cause error) *Error {
	return &Error{
		Code:    base.Code,
		Message: base.Message,
		Cause:   cause,
	}
}

// Errorf wraps a formatted cause with the code of base.
func Errorf(base *Error, format string, args ...any) *Error {
	return WrapError(base, fmt.Errorf(format, args...))
}

// Error taxonomy.
//
// ErrConfiguration and ErrOrderingViolation are structural and always abort
// the replay that raised them. ErrDataGap is per item and recoverable at the
// batch level. ErrExecutionDegradation is never returned from a replay; it
// only classifies entries in BacktestResult.Degradations.
var (
	ErrConfiguration        = &Error{Code: "CONFIGURATION", Message: "invalid strategy or risk configuration"}
	ErrOrderingViolation    = &Error{Code: "ORDERING_VIOLATION", Message: "look-ahead or non-monotonic time"}
	ErrDataGap              = &Error{Code: "DATA_GAP", Message: "insufficient causally visible data"}
	ErrExecutionDegradation = &Error{Code: "EXECUTION_DEGRADATION", Message: "simulated fill degraded"}
)

// ErrorMode selects how a batch reacts to a per-item failure.
type ErrorMode string

// Error modes.
const (
	ErrorModeCollect  ErrorMode = "collect"
	ErrorModeFailFast ErrorMode = "fail-fast"
)

// ParseErrorMode parses an error mode. Empty means collect.
func ParseErrorMode(s string) (ErrorMode, error) {
	switch ErrorMode(s) {
	case "", ErrorModeCollect:
		return ErrorModeCollect, nil
	case ErrorModeFailFast:
		return ErrorModeFailFast, nil
	}
	return "", Errorf(ErrConfiguration, "unknown error mode %q", s)
}
