// Package runner executes a submitted Python snippet as a time-bounded
// subprocess, feeding collected inputs as sequential lines on stdin.
package runner

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"
)

// Outcome classifies how a run ended.
type Outcome int

const (
	OutcomeOK Outcome = iota
	OutcomeRuntimeError
	OutcomeTimeout
)

func (o Outcome) String() string {
	switch o {
	case OutcomeOK:
		return "ok"
	case OutcomeRuntimeError:
		return "runtime_error"
	case OutcomeTimeout:
		return "timeout"
	default:
		return "unknown"
	}
}

type Config struct {
	PythonBin       string
	Timeout         time.Duration
	MaxCaptureBytes int
	// TempDir overrides the directory for the scratch source file.
	// Empty means the OS default.
	TempDir string
}

func (c Config) withDefaults() Config {
	if strings.TrimSpace(c.PythonBin) == "" {
		c.PythonBin = "python3"
	}
	if c.Timeout <= 0 {
		c.Timeout = 12 * time.Second
	}
	if c.MaxCaptureBytes <= 0 {
		c.MaxCaptureBytes = 256 * 1024
	}
	return c
}

type Result struct {
	Outcome         Outcome
	Stdout          string
	Stderr          string
	ExitCode        int
	Duration        time.Duration
	StdoutTruncated bool
	StderrTruncated bool
}

// Run writes source to a scratch file, executes it under cfg.PythonBin with
// a wall-clock timeout, and classifies the outcome. The scratch file is
// removed on every exit path. Inputs are supplied as sequential lines on
// stdin; when the program asks for more input than was collected it reads
// end-of-input and fails on its own, which lands in OutcomeRuntimeError.
// An error return means the run could not be attempted at all (scratch file
// or interpreter problems), not that the program failed.
func Run(ctx context.Context, cfg Config, source string, inputs []string) (Result, error) {
	cfg = cfg.withDefaults()

	f, err := os.CreateTemp(cfg.TempDir, "pyrunx-*.py")
	if err != nil {
		return Result{}, fmt.Errorf("create scratch file: %w", err)
	}
	name := f.Name()
	defer func() { _ = os.Remove(name) }()

	if _, err := f.WriteString(source); err != nil {
		_ = f.Close()
		return Result{}, fmt.Errorf("write scratch file: %w", err)
	}
	if err := f.Close(); err != nil {
		return Result{}, fmt.Errorf("close scratch file: %w", err)
	}

	runCtx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, cfg.PythonBin, name)
	cmd.Stdin = strings.NewReader(stdinPayload(inputs))

	var stdout, stderr cappedBuffer
	stdout.Limit = cfg.MaxCaptureBytes
	stderr.Limit = cfg.MaxCaptureBytes
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	runErr := cmd.Run()
	res := Result{
		Stdout:          stdout.String(),
		Stderr:          stderr.String(),
		Duration:        time.Since(start),
		StdoutTruncated: stdout.Truncated,
		StderrTruncated: stderr.Truncated,
	}

	if runErr == nil {
		res.Outcome = OutcomeOK
		return res, nil
	}
	if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
		res.Outcome = OutcomeTimeout
		res.ExitCode = -1
		return res, nil
	}
	var ee *exec.ExitError
	if errors.As(runErr, &ee) {
		res.Outcome = OutcomeRuntimeError
		res.ExitCode = ee.ExitCode()
		return res, nil
	}
	return Result{}, fmt.Errorf("run %s: %w", cfg.PythonBin, runErr)
}

func stdinPayload(inputs []string) string {
	if len(inputs) == 0 {
		return ""
	}
	return strings.Join(inputs, "\n") + "\n"
}
