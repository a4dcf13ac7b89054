// Package runner executes external commands for build pipelines. Output of
// both streams is surfaced line by line while the child runs; the outcome is
// decided by the exit status alone.
package runner

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"

	"golang.org/x/sync/errgroup"
)

// maxLineSize bounds a single output line. Longer lines end line-by-line
// reporting for that stream; the remainder is still drained.
const maxLineSize = 1024 * 1024

// Observer receives every output line. stream is "stdout" or "stderr".
type Observer func(stream, line string)

// Runner executes commands. It holds no state between invocations and is safe
// for concurrent use.
type Runner struct {
	logger   *slog.Logger
	observer Observer
}

// New creates a Runner that logs each output line at info level.
// A nil logger uses slog.Default().
func New(logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{logger: logger}
}

// WithObserver returns a Runner that also hands every output line to o.
// o is called from two goroutines at once and must be safe for concurrent use.
func (r *Runner) WithObserver(o Observer) *Runner {
	return &Runner{logger: r.logger, observer: o}
}

// Run executes command with env overlaid on the parent environment and
// command.Env, and blocks until the child exits and both output streams are
// drained. It returns nil only for exit status 0. Cancelling ctx kills the
// child and Run returns the context error.
func (r *Runner) Run(ctx context.Context, command Command, env map[string]string) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%s: %w", command, err)
	}

	cmd := exec.CommandContext(ctx, command.Program, command.Args...)
	cmd.Dir = command.Dir
	cmd.Env = mergeEnv(os.Environ(), command.Env, env)
	setProcessGroup(cmd)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("creating stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("creating stderr pipe: %w", err)
	}

	logger := r.logger.With("command", command.String())
	logger.Info("running command", "dir", command.Dir)

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("starting %s: %w", command, err)
	}

	// Both pipes must be read until EOF before Wait, and concurrently, so a
	// child filling one pipe buffer never blocks while we wait on the other.
	var streams errgroup.Group
	streams.Go(func() error { return r.drain(logger, "stdout", stdout) })
	streams.Go(func() error { return r.drain(logger, "stderr", stderr) })
	_ = streams.Wait()

	waitErr := cmd.Wait()

	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("%s: %w", command, ctxErr)
	}

	var exitErr *exec.ExitError
	if errors.As(waitErr, &exitErr) {
		code := exitErr.ExitCode()
		if code < 0 {
			return fmt.Errorf("%s: %w", command, ErrNoExitStatus)
		}
		return &ExitError{Command: command.String(), Code: code}
	}
	if waitErr != nil {
		return fmt.Errorf("waiting for %s: %w", command, waitErr)
	}
	return nil
}

func (r *Runner) drain(logger *slog.Logger, stream string, reader io.Reader) error {
	scanner := bufio.NewScanner(reader)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	for scanner.Scan() {
		line := scanner.Text()
		logger.Info(stream, "stream", stream, "line", line)
		if r.observer != nil {
			r.observer(stream, line)
		}
	}
	if err := scanner.Err(); err != nil {
		logger.Warn("output no longer line-readable, discarding rest of stream", "stream", stream, "error", err)
		_, _ = io.Copy(io.Discard, reader)
	}
	return nil
}
