// SPDX-License-Identifier: MIT

package encoder

import "fmt"

// ExecutionError reports a failed ffmpeg invocation for one quality rung.
// The orchestrator treats it as a non-fatal per-rung failure.
type ExecutionError struct {
	Quality string
	Stderr  string
	Err     error
}

func (e *ExecutionError) Error() string {
	if e.Stderr != "" {
		return fmt.Sprintf("encode %s: %v: %s", e.Quality, e.Err, truncate(e.Stderr, 512))
	}
	return fmt.Sprintf("encode %s: %v", e.Quality, e.Err)
}

func (e *ExecutionError) Unwrap() error {
	return e.Err
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
