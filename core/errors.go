package core

import (
	"errors"
	"fmt"
)

// Common errors used across the package
var (
	ErrSchedulerStopped = errors.New("scheduler already stopped")
	ErrRegistryClosed   = errors.New("datasource registry is closed")
	ErrJobNotFound      = errors.New("job not found")
)

// ConfigError reports a violation in one job section. The offending job is
// skipped and alerted; the rest of the jobs proceed.
type ConfigError struct {
	Msg string
}

func (e *ConfigError) Error() string { return e.Msg }

// ConfigErrorf builds a ConfigError from a format string.
func ConfigErrorf(format string, args ...any) *ConfigError {
	return &ConfigError{Msg: fmt.Sprintf(format, args...)}
}

// ConflictError reports a job name defined in two different config files.
// It is fatal; the process exits before any scheduling begins.
type ConflictError struct {
	Name  string
	File1 string
	File2 string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("conflicted job name %q in %q and %q", e.Name, e.File1, e.File2)
}

// ValidatorError reports a user validator expression that raised at run
// time. Converted to an exception alarm and treated as a failed run.
type ValidatorError struct {
	Expr string
	Err  error
}

func (e *ValidatorError) Error() string {
	return fmt.Sprintf("your validator %q raised an exception: %v", e.Expr, e.Err)
}

func (e *ValidatorError) Unwrap() error { return e.Err }

// ProbeError reports a SQL or connection failure. Same treatment as
// ValidatorError.
type ProbeError struct {
	Datasource string
	Err        error
}

func (e *ProbeError) Error() string {
	return fmt.Sprintf("probe on datasource %q: %v", e.Datasource, e.Err)
}

func (e *ProbeError) Unwrap() error { return e.Err }

// WrapJobError wraps a job-related error with context
func WrapJobError(op string, jobName string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s job %q: %w", op, jobName, err)
}
