// Package exec runs external helper commands as line streams that are cut
// short as soon as the caller has seen what it needs.
package exec

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

const (
	// DefaultTimeout bounds a single streamed command
	DefaultTimeout = 8 * time.Second
	// MaxStderrSize is the most stderr kept for diagnostics (64KB)
	MaxStderrSize = 64 * 1024
	// waitDelay bounds how long Wait blocks on pipes after the process is killed
	waitDelay = time.Second
)

// Result holds the outcome of a streamed command
type Result struct {
	// Command is the command that was executed
	Command string
	// Args are the arguments passed to the command
	Args []string
	// Matched is true when the line callback accepted a line
	Matched bool
	// Lines is how many stdout lines were read
	Lines int
	// ExitCode is the exit code, -1 when killed or not started
	ExitCode int
	// Stderr is the captured stderr, truncated at MaxStderrSize
	Stderr string
	// Duration is how long the command ran
	Duration time.Duration
	// Error is set when the command failed without a match
	Error error
	// TimedOut is true if the timeout expired before a match
	TimedOut bool
}

// OK returns true if the stream produced a match
func (r *Result) OK() bool {
	return r.Matched && r.Error == nil
}

// String returns a human-readable summary
func (r *Result) String() string {
	status := "NO MATCH"
	switch {
	case r.Matched:
		status = "MATCH"
	case r.TimedOut:
		status = "TIMEOUT"
	case r.Error != nil:
		status = fmt.Sprintf("FAILED (exit %d)", r.ExitCode)
	}
	return fmt.Sprintf("%s %s [%s] (%s)", r.Command, strings.Join(r.Args, " "), status, r.Duration.Round(time.Millisecond))
}

// Runner starts helper commands
type Runner struct {
	// Timeout is the default timeout for commands
	Timeout time.Duration
	// Env is additional environment variables
	Env []string
}

// NewRunner creates a new Runner with defaults
func NewRunner() *Runner {
	return &Runner{
		Timeout: DefaultTimeout,
	}
}

// Stream starts name with args and feeds every stdout line to onLine until
// onLine returns true, the timeout expires or ctx is cancelled. The process
// is killed as soon as onLine accepts a line.
func (r *Runner) Stream(ctx context.Context, name string, args []string, onLine func(line string) bool) *Result {
	return r.StreamWithTimeout(ctx, r.Timeout, name, args, onLine)
}

// StreamWithTimeout is Stream with an explicit timeout
func (r *Runner) StreamWithTimeout(ctx context.Context, timeout time.Duration, name string, args []string, onLine func(line string) bool) *Result {
	start := time.Now()
	result := &Result{
		Command:  name,
		Args:     args,
		ExitCode: -1,
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, name, args...)
	cmd.WaitDelay = waitDelay
	if len(r.Env) > 0 {
		cmd.Env = append(cmd.Environ(), r.Env...)
	}

	var stderr bytes.Buffer
	cmd.Stderr = &limitedWriter{w: &stderr, limit: MaxStderrSize}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		result.Error = err
		return result
	}
	if err := cmd.Start(); err != nil {
		result.Error = err
		result.Duration = time.Since(start)
		return result
	}

	scanner := bufio.NewScanner(stdout)
	for scanner.Scan() {
		result.Lines++
		if onLine(scanner.Text()) {
			result.Matched = true
			cancel()
			break
		}
	}

	waitErr := cmd.Wait()
	result.Duration = time.Since(start)
	result.Stderr = stderr.String()
	if cmd.ProcessState != nil {
		result.ExitCode = cmd.ProcessState.ExitCode()
	}

	if result.Matched {
		return result
	}
	switch {
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		result.TimedOut = true
		result.Error = fmt.Errorf("command timed out after %s", timeout)
	case ctx.Err() != nil:
		result.Error = ctx.Err()
	case waitErr != nil:
		result.Error = waitErr
	default:
		result.Error = errors.New("command exited without a match")
	}
	return result
}

// CommandExists checks if a command is available in PATH
func CommandExists(name string) bool {
	_, err := exec.LookPath(name)
	return err == nil
}

// limitedWriter limits the amount written to prevent memory issues
type limitedWriter struct {
	w       *bytes.Buffer
	limit   int
	written int
}

func (lw *limitedWriter) Write(p []byte) (n int, err error) {
	if lw.written >= lw.limit {
		return len(p), nil // Discard but pretend we wrote it
	}
	remaining := lw.limit - lw.written
	if len(p) > remaining {
		p = p[:remaining]
	}
	n, err = lw.w.Write(p)
	lw.written += n
	return len(p), err
}
