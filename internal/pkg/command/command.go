// Package command runs the external tools the build chains together.
package command

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os/exec"
	"strings"

	"bbinflator/internal/pkg/errs"
	"bbinflator/internal/pkg/logger"
)

type Options struct {
	// Dir is the child's working directory; empty means the current one.
	Dir   string
	Stdin io.Reader
}

// Run executes name with args and returns its stdout. Stderr is logged as a
// warning. A non-zero exit or a start failure yields *errs.ToolError.
func Run(ctx context.Context, opts Options, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = opts.Dir
	cmd.Stdin = opts.Stdin

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	entry := logger.Log.WithField("cmd", cmd.String())
	if opts.Dir != "" {
		entry = entry.WithField("dir", opts.Dir)
	}
	entry.Info("Executing command")

	err := cmd.Run()
	if stderr.Len() > 0 {
		logger.Log.Warn(strings.TrimSpace(stderr.String()))
	}
	if err != nil {
		toolErr := &errs.ToolError{Tool: name, Args: args, ExitCode: 1, Stderr: stderr.String(), Err: err}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && exitErr.ExitCode() > 0 {
			toolErr.ExitCode = exitErr.ExitCode()
		}
		return nil, toolErr
	}
	return stdout.Bytes(), nil
}
