package errs

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrConfig marks a fatal configuration error, reported before any work starts.
	ErrConfig = errors.New("configuration error")
	// ErrIntegrity marks data that violates the windowing invariants.
	ErrIntegrity = errors.New("data integrity error")
	// ErrNotFound is returned by stores for unknown buildings or meters.
	ErrNotFound = errors.New("not found")
)

type ConfigError struct {
	Field  string
	Reason string
}

func Config(field, format string, args ...interface{}) *ConfigError {
	return &ConfigError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("%s: %s: %s", ErrConfig, e.Field, e.Reason)
}

func (e *ConfigError) Unwrap() error {
	return ErrConfig
}

// IntegrityError carries the identity of the offending meter or interval
// together with the expected and actual values of the failed check.
type IntegrityError struct {
	Building int
	Meter    string
	Start    time.Time
	End      time.Time
	Expected int64
	Actual   int64
	Reason   string
}

func (e *IntegrityError) Error() string {
	msg := fmt.Sprintf("%s: building %d", ErrIntegrity, e.Building)
	if e.Meter != "" {
		msg += ", meter " + e.Meter
	}
	if !e.Start.IsZero() {
		msg += fmt.Sprintf(", interval [%s, %s)",
			e.Start.Format(time.RFC3339), e.End.Format(time.RFC3339))
	}
	if e.Expected == 0 && e.Actual == 0 {
		return fmt.Sprintf("%s: %s", msg, e.Reason)
	}
	return fmt.Sprintf("%s: %s: expected %d, got %d",
		msg, e.Reason, e.Expected, e.Actual)
}

func (e *IntegrityError) Unwrap() error {
	return ErrIntegrity
}
