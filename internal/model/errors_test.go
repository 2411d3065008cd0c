package model

import (
	"errors"
	"fmt"
	"testing"
)

func TestExitCodeMapping(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, ExitOK},
		{"config", Configf("jails", "at least one jail is required"), ExitConfig},
		{"wrapped config", fmt.Errorf("preflight: %w", Configf("jails", "unknown jail %q", "x")), ExitConfig},
		{"io", &IOError{Op: "write", Path: "/tmp/x", Err: errors.New("disk full")}, ExitIOErr},
		{"enforcement", &EnforcementError{Stage: "restore", Err: errors.New("boom")}, ExitUnavailable},
		{"other", errors.New("plain"), ExitFailure},
	}
	for _, tc := range cases {
		if got := ExitCode(tc.err); got != tc.want {
			t.Errorf("%s: ExitCode = %d, want %d", tc.name, got, tc.want)
		}
	}
}

func TestErrorsUnwrap(t *testing.T) {
	cause := errors.New("permission denied")
	ioErr := &IOError{Op: "read", Path: "/etc/blacklist", Err: cause}
	if !errors.Is(ioErr, cause) {
		t.Error("IOError should unwrap to its cause")
	}
	w := &ReconciliationWarning{Jail: "sshd", Address: "1.2.3.4", Err: cause}
	if !errors.Is(w, cause) {
		t.Error("ReconciliationWarning should unwrap to its cause")
	}
	if got := w.Error(); got != "unban 1.2.3.4 from sshd: permission denied" {
		t.Errorf("unexpected message %q", got)
	}
}

func TestConfigurationErrorMessage(t *testing.T) {
	err := &ConfigurationError{Reason: "no jails"}
	if err.Error() != "configuration error: no jails" {
		t.Errorf("unexpected message %q", err.Error())
	}
	err = &ConfigurationError{Field: "set_name", Reason: "empty"}
	if err.Error() != "configuration error (set_name): empty" {
		t.Errorf("unexpected message %q", err.Error())
	}
}
