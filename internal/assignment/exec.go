package assignment

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"syscall"
	"time"

	"github.com/cenkalti/backoff/v4"
)

const (
	// stderrLimit bounds how much diagnostic output is kept from a run.
	stderrLimit = 64 * 1024
	// waitDelay bounds how long Wait blocks on pipes held open after the
	// process exits or is killed.
	waitDelay = 2 * time.Second
)

// Command is a single subprocess invocation.
type Command struct {
	Path    string
	Args    []string
	Dir     string
	Timeout time.Duration
}

// Result is what a successful run produced.
type Result struct {
	Stdout   []byte
	Stderr   []byte
	Duration time.Duration
}

// Executor runs subprocesses in their own process group with a wall-clock
// limit. Only the spawn is retried, and only for resource exhaustion.
type Executor struct {
	spawnRetries uint64
	spawnBackoff time.Duration
	logger       *slog.Logger
}

// NewExecutor creates an executor that retries a failed spawn up to
// retries times, starting at the given backoff interval.
func NewExecutor(retries int, interval time.Duration, logger *slog.Logger) *Executor {
	if interval <= 0 {
		interval = 200 * time.Millisecond
	}
	return &Executor{
		spawnRetries: uint64(max(retries, 0)),
		spawnBackoff: interval,
		logger:       logger.With("system", "executor"),
	}
}

// Run executes cmd and waits for it. On timeout or cancellation the whole
// process group is killed before Run returns.
//
// Errors: *ToolError (matching ErrToolFailure) on a non-zero exit,
// ErrTimeout when cmd.Timeout elapses, ErrCancelled when ctx ends first.
func (x *Executor) Run(ctx context.Context, cmd Command) (*Result, error) {
	runCtx := ctx
	if cmd.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, cmd.Timeout)
		defer cancel()
	}

	var stdout bytes.Buffer
	stderr := &tailBuffer{limit: stderrLimit}

	start := time.Now()
	proc, err := x.spawn(runCtx, cmd, &stdout, stderr)
	if err != nil {
		if cerr := interrupted(ctx, runCtx); cerr != nil {
			return nil, cerr
		}
		return nil, fmt.Errorf("start %s: %w", cmd.Path, err)
	}

	waitErr := proc.Wait()
	// Reap anything the tool left behind in its group.
	killProcessGroup(proc)

	if cerr := interrupted(ctx, runCtx); cerr != nil {
		x.logger.Warn("assignment tool stopped",
			"path", cmd.Path,
			"pid", proc.Process.Pid,
			"error", cerr,
		)
		return nil, cerr
	}

	if waitErr != nil {
		var exitErr *exec.ExitError
		if errors.As(waitErr, &exitErr) {
			return nil, &ToolError{
				ExitCode: exitErr.ExitCode(),
				Stderr:   stderr.String(),
			}
		}
		return nil, fmt.Errorf("wait %s: %w", cmd.Path, waitErr)
	}

	return &Result{
		Stdout:   stdout.Bytes(),
		Stderr:   stderr.Bytes(),
		Duration: time.Since(start),
	}, nil
}

// spawn starts the process, retrying with exponential backoff while the
// failure is transient.
func (x *Executor) spawn(ctx context.Context, cmd Command, stdout *bytes.Buffer, stderr *tailBuffer) (*exec.Cmd, error) {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = x.spawnBackoff
	policy.MaxElapsedTime = 0

	attempt := 0
	op := func() (*exec.Cmd, error) {
		attempt++
		stdout.Reset()
		stderr.Reset()

		proc := exec.CommandContext(ctx, cmd.Path, cmd.Args...)
		proc.Dir = cmd.Dir
		proc.Stdout = stdout
		proc.Stderr = stderr
		proc.WaitDelay = waitDelay
		setupProcessGroup(proc)
		proc.Cancel = func() error {
			return killProcessGroup(proc)
		}

		if err := proc.Start(); err != nil {
			if transient(err) {
				return nil, err
			}
			return nil, backoff.Permanent(err)
		}
		return proc, nil
	}

	notify := func(err error, wait time.Duration) {
		x.logger.Warn("spawn failed, retrying",
			"path", cmd.Path,
			"attempt", attempt,
			"wait", wait,
			"error", err,
		)
	}

	return backoff.RetryNotifyWithData(
		op,
		backoff.WithContext(backoff.WithMaxRetries(policy, x.spawnRetries), ctx),
		notify,
	)
}

// transient reports whether a spawn failure comes from temporary resource
// exhaustion.
func transient(err error) bool {
	return errors.Is(err, syscall.EAGAIN) ||
		errors.Is(err, syscall.ENOMEM) ||
		errors.Is(err, syscall.ETXTBSY)
}

// interrupted reports why the run was stopped, if it was. Cancellation of
// the caller's context wins over the run's own deadline.
func interrupted(parent, run context.Context) error {
	if err := parent.Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrCancelled, err)
	}
	if errors.Is(run.Err(), context.DeadlineExceeded) {
		return ErrTimeout
	}
	return nil
}

// tailBuffer keeps the last limit bytes written to it.
type tailBuffer struct {
	buf   []byte
	limit int
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	n := len(p)
	if len(p) >= t.limit {
		t.buf = append(t.buf[:0], p[len(p)-t.limit:]...)
		return n, nil
	}
	if over := len(t.buf) + len(p) - t.limit; over > 0 {
		t.buf = append(t.buf[:0], t.buf[over:]...)
	}
	t.buf = append(t.buf, p...)
	return n, nil
}

func (t *tailBuffer) Bytes() []byte  { return t.buf }
func (t *tailBuffer) String() string { return string(t.buf) }
func (t *tailBuffer) Reset()         { t.buf = t.buf[:0] }
