package model

import (
	"errors"
	"fmt"
)

// Exit codes follow sysexits(3).
const (
	ExitOK          = 0
	ExitFailure     = 1
	ExitUnavailable = 69 // EX_UNAVAILABLE
	ExitIOErr       = 74 // EX_IOERR
	ExitConfig      = 78 // EX_CONFIG
)

// ConfigurationError is a fatal pre-flight failure. Nothing has been mutated
// when it is returned.
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("configuration error (%s): %s", e.Field, e.Reason)
	}
	return "configuration error: " + e.Reason
}

// IOError is a fatal failure reading or writing the blacklist file.
type IOError struct {
	Op   string
	Path string
	Err  error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *IOError) Unwrap() error { return e.Err }

// EnforcementError is a fatal failure while creating the set, inserting the
// firewall rule or applying the restore script.
type EnforcementError struct {
	Stage string
	Err   error
}

func (e *EnforcementError) Error() string {
	return fmt.Sprintf("enforcement failed (%s): %v", e.Stage, e.Err)
}

func (e *EnforcementError) Unwrap() error { return e.Err }

// ReconciliationWarning records one failed unban. It never stops a run.
type ReconciliationWarning struct {
	Jail    string
	Address string
	Err     error
}

func (w *ReconciliationWarning) Error() string {
	return fmt.Sprintf("unban %s from %s: %v", w.Address, w.Jail, w.Err)
}

func (w *ReconciliationWarning) Unwrap() error { return w.Err }

// Configf builds a ConfigurationError for field.
func Configf(field, format string, args ...any) error {
	return &ConfigurationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// ExitCode maps an error returned by a run to a process exit code.
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}
	var cfgErr *ConfigurationError
	var ioErr *IOError
	var enfErr *EnforcementError
	switch {
	case errors.As(err, &cfgErr):
		return ExitConfig
	case errors.As(err, &ioErr):
		return ExitIOErr
	case errors.As(err, &enfErr):
		return ExitUnavailable
	default:
		return ExitFailure
	}
}
