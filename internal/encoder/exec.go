// SPDX-License-Identifier: MIT

package encoder

import (
	"bytes"
	"context"
	"os/exec"

	"github.com/rs/zerolog"
)

// Exec abstracts command execution for testing.
type Exec interface {
	// Run executes name with args and returns captured stderr output.
	Run(ctx context.Context, name string, args []string) (stderr string, err error)
}

// DefaultExecutor runs commands with exec.CommandContext.
type DefaultExecutor struct {
	Logger zerolog.Logger
}

// Run executes the command, capturing stderr for error reporting.
func (e *DefaultExecutor) Run(ctx context.Context, name string, args []string) (string, error) {
	cmd := exec.CommandContext(ctx, name, args...)

	var stderrBuf bytes.Buffer
	cmd.Stderr = &stderrBuf

	e.Logger.Debug().Str("bin", name).Strs("args", args).Msg("executing")

	err := cmd.Run()
	return stderrBuf.String(), err
}

// Available reports whether the binary can be resolved on PATH.
func Available(bin string) bool {
	_, err := exec.LookPath(bin)
	return err == nil
}
