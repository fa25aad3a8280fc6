package core

import (
	"errors"
	"fmt"
	"strings"
)

// Construction-time error kinds. A ConfigError always unwraps to one of these.
var (
	ErrInvalidConfig       = errors.New("invalid configuration")
	ErrNoFields            = errors.New("table has no bound fields")
	ErrKeyTypeMismatch     = errors.New("join key type mismatch")
	ErrUnknownField        = errors.New("unknown field")
	ErrMissingKeyDimension = errors.New("primary key column has no dimension")
	ErrFieldConflict       = errors.New("field defined as both metric and dimension")
	ErrGraphCycle          = errors.New("join graph contains a cycle")
)

// ConfigError is a fatal metadata construction failure. It is never retried:
// the configuration must be fixed and the source or warehouse rebuilt.
type ConfigError struct {
	Kind       error
	DataSource string
	Table      string
	Column     string
	Message    string
}

func (e *ConfigError) Error() string {
	var loc []string
	if e.DataSource != "" {
		loc = append(loc, "datasource "+e.DataSource)
	}
	if e.Table != "" {
		loc = append(loc, "table "+e.Table)
	}
	if e.Column != "" {
		loc = append(loc, "column "+e.Column)
	}
	msg := e.Kind.Error()
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if len(loc) > 0 {
		return fmt.Sprintf("%s (%s)", msg, strings.Join(loc, ", "))
	}
	return msg
}

func (e *ConfigError) Unwrap() error { return e.Kind }

// ErrConfig creates a ConfigError of the given kind with a formatted message.
func ErrConfig(kind error, format string, args ...interface{}) *ConfigError {
	return &ConfigError{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// At fills in the location of a ConfigError and returns it.
func (e *ConfigError) At(datasource, table, column string) *ConfigError {
	if e.DataSource == "" {
		e.DataSource = datasource
	}
	if e.Table == "" {
		e.Table = table
	}
	if e.Column == "" {
		e.Column = column
	}
	return e
}

// IsConfigError reports whether err is (or wraps) a ConfigError.
func IsConfigError(err error) bool {
	var ce *ConfigError
	return errors.As(err, &ce)
}

// UnsupportedGrainError is the expected, recoverable outcome of a planning
// request no join path can satisfy. Callers may retry with other fields.
type UnsupportedGrainError struct {
	Metric  string
	Grain   []string
	Missing []string
	Reason  string
	Cause   error
}

func (e *UnsupportedGrainError) Error() string {
	var b strings.Builder
	b.WriteString("unsupported grain")
	if e.Metric != "" {
		fmt.Fprintf(&b, " for metric %q", e.Metric)
	}
	fmt.Fprintf(&b, ": [%s]", strings.Join(e.Grain, ", "))
	if len(e.Missing) > 0 {
		fmt.Fprintf(&b, " (unreachable: %s)", strings.Join(e.Missing, ", "))
	}
	if e.Reason != "" {
		b.WriteString(": " + e.Reason)
	}
	return b.String()
}

func (e *UnsupportedGrainError) Unwrap() error { return e.Cause }

// IsUnsupportedGrain reports whether err is (or wraps) an UnsupportedGrainError.
func IsUnsupportedGrain(err error) bool {
	var ue *UnsupportedGrainError
	return errors.As(err, &ue)
}
