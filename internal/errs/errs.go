// Package errs defines the error taxonomy shared by the registration core.
//
// Two failure classes exist: configuration faults, raised before any command
// is assembled, and external process failures, raised when the registration
// engine exits non-zero. Neither is retried.
package errs

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrConfiguration matches every *ConfigurationError via errors.Is.
	ErrConfiguration = errors.New("configuration error")

	// ErrExternalProcess matches every *ExternalProcessError via errors.Is.
	ErrExternalProcess = errors.New("external process failed")
)

// ConfigurationError reports a malformed or inconsistent job configuration.
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("configuration error: %s", e.Reason)
	}
	return fmt.Sprintf("configuration error: %s: %s", e.Field, e.Reason)
}

// Is reports whether target is ErrConfiguration.
func (e *ConfigurationError) Is(target error) bool {
	return target == ErrConfiguration
}

// Configf builds a *ConfigurationError for field with a formatted reason.
func Configf(field, format string, args ...any) error {
	return &ConfigurationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// stderrTailLines bounds how much engine output is embedded in Error().
const stderrTailLines = 5

// ExternalProcessError reports a non-zero exit (or failure to start) of an
// external command. Stderr holds the full captured diagnostic stream.
type ExternalProcessError struct {
	Args     []string
	ExitCode int
	Stderr   string
	Err      error
}

func (e *ExternalProcessError) Error() string {
	name := "<empty command>"
	if len(e.Args) > 0 {
		name = e.Args[0]
	}
	msg := fmt.Sprintf("%s exited with code %d", name, e.ExitCode)
	if tail := tailLines(e.Stderr, stderrTailLines); tail != "" {
		msg += ": " + tail
	} else if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying exec error.
func (e *ExternalProcessError) Unwrap() error {
	return e.Err
}

// Is reports whether target is ErrExternalProcess.
func (e *ExternalProcessError) Is(target error) bool {
	return target == ErrExternalProcess
}

func tailLines(s string, n int) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.TrimSpace(strings.Join(lines, " | "))
}
