package config

import (
	"fmt"

	"codeberg.org/mutker/apcupsd-exporter/internal/errors"
)

// Option adjusts how Load finds its sources
type Option func(*options) error

type options struct {
	configPath string
}

// WithConfigFile replaces the default configuration file path. Unlike the
// default, an explicit file must exist.
func WithConfigFile(path string) Option {
	return func(o *options) error {
		if path == "" {
			return errors.New().WithData(errors.ErrInvalidArgument, "empty config file path")
		}
		o.configPath = path
		return nil
	}
}

// LogLevel represents valid logging levels
type LogLevel string

const (
	LogLevelDebug   LogLevel = "debug"
	LogLevelInfo    LogLevel = "info"
	LogLevelWarning LogLevel = "warning"
	LogLevelError   LogLevel = "error"
)

// IsValid returns whether the log level is valid
func (l LogLevel) IsValid() bool {
	switch l {
	case LogLevelDebug, LogLevelInfo, LogLevelWarning, LogLevelError:
		return true
	default:
		return false
	}
}

// String implements the Stringer interface
func (l LogLevel) String() string {
	return string(l)
}

// ValidationError represents a configuration validation error
type ValidationError interface {
	error
	// Field returns the name of the invalid field
	Field() string
	// Value returns the invalid value
	Value() any
	// Reason returns why the value is invalid
	Reason() string
}

// FieldError is the ValidationError returned by Validate.
type FieldError struct {
	code   errors.ErrorCode
	field  string
	value  any
	reason string
}

var _ ValidationError = (*FieldError)(nil)

func (e *FieldError) Error() string {
	return fmt.Sprintf("%s: %s (got %v)", e.field, e.reason, e.value)
}

func (e *FieldError) Field() string          { return e.field }
func (e *FieldError) Value() any             { return e.value }
func (e *FieldError) Reason() string         { return e.reason }
func (e *FieldError) Code() errors.ErrorCode { return e.code }
