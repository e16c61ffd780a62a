// Package runner executes one prepared command line per call, bounded
// by a timeout and an output capture ceiling.
package runner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"time"
	"unicode/utf8"
)

// TruncationMarker terminates any captured stream that hit the ceiling.
const TruncationMarker = "\n\n[output truncated]"

// Result reports one subprocess run. ExitCode is nil when the process
// was killed on timeout; a nonzero code is the script's own failure,
// not an orchestration error.
type Result struct {
	Cmd      []string
	Dir      string
	ExitCode *int
	Duration time.Duration
	Stdout   string
	Stderr   string
	Err      string
	TimedOut bool
}

// Runner spawns exactly one subprocess per Run call. No retries.
type Runner struct {
	// MaxOutputChars bounds each captured stream independently.
	MaxOutputChars int
}

// Run blocks until the command exits or timeout elapses, then reports
// exit status, elapsed time and size-bounded output. Partial output
// captured before a timeout kill is preserved. The returned error is
// reserved for orchestration failures (e.g. the command could not be
// started); script exit codes travel in the Result.
func (r Runner) Run(ctx context.Context, argv []string, dir string, timeout time.Duration) (Result, error) {
	if len(argv) == 0 {
		return Result{}, errors.New("runner: empty command")
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, argv[0], argv[1:]...)
	cmd.Dir = dir
	// A descendant process inheriting the output pipes must not stall
	// Wait past the kill; give pipe copying a short grace period.
	cmd.WaitDelay = 2 * time.Second

	// The byte cap must hold strictly more than MaxOutputChars runes in
	// the worst (all multibyte) case, so a capped stream always decodes
	// past the ceiling and the marker below cannot be skipped.
	byteCap := (r.MaxOutputChars + 1) * utf8.UTFMax
	stdout := newCappedBuffer(byteCap)
	stderr := newCappedBuffer(byteCap)
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	started := time.Now()
	err := cmd.Run()
	duration := time.Since(started)

	res := Result{
		Cmd:      argv,
		Dir:      dir,
		Duration: duration,
		Stdout:   truncate(stdout.String(), r.MaxOutputChars, stdout.Overflowed()),
		Stderr:   truncate(stderr.String(), r.MaxOutputChars, stderr.Overflowed()),
	}

	if runCtx.Err() == context.DeadlineExceeded {
		res.TimedOut = true
		res.Err = fmt.Sprintf("Timed out after %ds", int(timeout.Seconds()))
		return res, nil
	}

	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && exitErr.ProcessState != nil {
			code := exitErr.ProcessState.ExitCode()
			res.ExitCode = &code
			return res, nil
		}
		return res, fmt.Errorf("runner: %w", err)
	}

	zero := 0
	res.ExitCode = &zero
	return res, nil
}

// truncate bounds text to max characters, appending the marker when
// anything was cut at either the rune ceiling or the byte cap.
// Truncation is never silent. Cutting on rune boundaries also discards
// any partial rune the byte cap may have split off at the tail.
func truncate(text string, max int, overflowed bool) string {
	if max <= 0 {
		return text
	}
	runes := []rune(text)
	if len(runes) > max {
		return string(runes[:max]) + TruncationMarker
	}
	if overflowed {
		return text + TruncationMarker
	}
	return text
}

// cappedBuffer accepts writes up to a byte limit and drops the rest,
// so a runaway process cannot grow capture memory unbounded. Dropping
// is recorded, never silent.
type cappedBuffer struct {
	buf      bytes.Buffer
	limit    int
	overflow bool
}

func newCappedBuffer(limit int) *cappedBuffer {
	return &cappedBuffer{limit: limit}
}

func (c *cappedBuffer) Write(p []byte) (int, error) {
	remaining := c.limit - c.buf.Len()
	switch {
	case remaining >= len(p):
		c.buf.Write(p)
	case remaining > 0:
		c.buf.Write(p[:remaining])
		c.overflow = true
	default:
		if len(p) > 0 {
			c.overflow = true
		}
	}
	// Report full consumption so the child never blocks on a pipe.
	return len(p), nil
}

func (c *cappedBuffer) String() string {
	return c.buf.String()
}

// Overflowed reports whether any byte was dropped at the cap.
func (c *cappedBuffer) Overflowed() bool {
	return c.overflow
}
