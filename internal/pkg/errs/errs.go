// Package errs holds the typed failures that decide a run's exit status.
package errs

import (
	"errors"
	"fmt"
	"strings"
)

// PreconditionError reports a missing directory, descriptor, flag or artifact.
type PreconditionError struct {
	Msg string
}

func (e *PreconditionError) Error() string { return e.Msg }

// Preconditionf builds a PreconditionError.
func Preconditionf(format string, args ...any) error {
	return &PreconditionError{Msg: fmt.Sprintf(format, args...)}
}

// ToolError reports an external process that failed or could not be started.
// ExitCode is the child's exit status, or 1 when it never ran.
type ToolError struct {
	Tool     string
	Args     []string
	ExitCode int
	Stderr   string
	Err      error
}

func (e *ToolError) Error() string {
	msg := fmt.Sprintf("%s %s failed: %v", e.Tool, strings.Join(e.Args, " "), e.Err)
	if s := strings.TrimSpace(e.Stderr); s != "" {
		msg += "\nStderr:\n" + s
	}
	return msg
}

func (e *ToolError) Unwrap() error { return e.Err }

// ComponentNotFoundError is returned when no entity of Kind carries Name.
type ComponentNotFoundError struct {
	Kind string
	Name string
}

func (e *ComponentNotFoundError) Error() string {
	return fmt.Sprintf("component %q not found: no %s with that name", e.Name, e.Kind)
}

// NoRefError is returned for a GitRepository with neither tag nor branch.
type NoRefError struct {
	Name string
}

func (e *NoRefError) Error() string {
	return fmt.Sprintf("GitRepository %q has neither spec.ref.tag nor spec.ref.branch", e.Name)
}

// AmbiguousRefError is returned when a descriptor pins more than one distinct ref.
type AmbiguousRefError struct {
	File string
	Refs []string
}

func (e *AmbiguousRefError) Error() string {
	return fmt.Sprintf("ambiguous ref in %s: found %s", e.File, strings.Join(e.Refs, ", "))
}

// ExitCode maps an error chain to a process exit status.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	var toolErr *ToolError
	if errors.As(err, &toolErr) && toolErr.ExitCode > 0 {
		return toolErr.ExitCode
	}
	return 1
}
