package assignment_test

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JaimeStill/geoassign/internal/assignment"
)

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func writeScript(t *testing.T, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell scripts require a POSIX shell")
	}
	path := filepath.Join(t.TempDir(), "tool.sh")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0o755))
	return path
}

func TestExecutorSuccess(t *testing.T) {
	path := writeScript(t, "echo \"hello $1\"\necho warming up >&2\n")
	x := assignment.NewExecutor(0, 0, discard())

	res, err := x.Run(context.Background(), assignment.Command{
		Path:    path,
		Args:    []string{"world"},
		Timeout: 10 * time.Second,
	})
	require.NoError(t, err)
	assert.Equal(t, "hello world\n", string(res.Stdout))
	assert.Equal(t, "warming up\n", string(res.Stderr))
	assert.Positive(t, res.Duration)
}

func TestExecutorToolFailure(t *testing.T) {
	path := writeScript(t, "echo 'invalid panel size' >&2\nexit 1\n")
	x := assignment.NewExecutor(0, 0, discard())

	_, err := x.Run(context.Background(), assignment.Command{
		Path:    path,
		Timeout: 10 * time.Second,
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, assignment.ErrToolFailure)

	var toolErr *assignment.ToolError
	require.ErrorAs(t, err, &toolErr)
	assert.Equal(t, 1, toolErr.ExitCode)
	assert.Contains(t, toolErr.Stderr, "invalid panel size")
	assert.Contains(t, err.Error(), "invalid panel size")
}

func TestExecutorTimeoutKillsProcessGroup(t *testing.T) {
	pidFile := filepath.Join(t.TempDir(), "child.pid")
	path := writeScript(t, "sleep 30 &\necho $! > \"$1\"\nwait\n")
	x := assignment.NewExecutor(0, 0, discard())

	start := time.Now()
	_, err := x.Run(context.Background(), assignment.Command{
		Path:    path,
		Args:    []string{pidFile},
		Timeout: 500 * time.Millisecond,
	})
	require.ErrorIs(t, err, assignment.ErrTimeout)
	assert.NotErrorIs(t, err, assignment.ErrCancelled)
	assert.Less(t, time.Since(start), 10*time.Second)

	if runtime.GOOS != "linux" {
		return
	}

	data, err := os.ReadFile(pidFile)
	require.NoError(t, err)
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		return !alive(pid)
	}, 5*time.Second, 50*time.Millisecond, "child %d outlived the timeout", pid)
}

// alive reports whether pid exists and is not a zombie.
func alive(pid int) bool {
	stat, err := os.ReadFile(filepath.Join("/proc", strconv.Itoa(pid), "stat"))
	if err != nil {
		return false
	}
	// The state follows the parenthesised command name.
	i := strings.LastIndexByte(string(stat), ')')
	if i < 0 || i+2 >= len(stat) {
		return false
	}
	state := stat[i+2]
	return state != 'Z' && state != 'X'
}

func TestExecutorCancelled(t *testing.T) {
	path := writeScript(t, "sleep 30\n")
	x := assignment.NewExecutor(0, 0, discard())

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(100*time.Millisecond, cancel)

	start := time.Now()
	_, err := x.Run(ctx, assignment.Command{
		Path:    path,
		Timeout: time.Minute,
	})
	require.ErrorIs(t, err, assignment.ErrCancelled)
	assert.NotErrorIs(t, err, assignment.ErrTimeout)
	assert.Less(t, time.Since(start), 10*time.Second)
}

func TestExecutorMissingBinary(t *testing.T) {
	x := assignment.NewExecutor(3, time.Millisecond, discard())

	_, err := x.Run(context.Background(), assignment.Command{
		Path:    filepath.Join(t.TempDir(), "does-not-exist"),
		Timeout: time.Second,
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, fs.ErrNotExist)
	assert.False(t, errors.Is(err, assignment.ErrToolFailure))
}

func TestExecutorStderrTail(t *testing.T) {
	// 100 KiB of filler followed by the message that matters.
	path := writeScript(t, "head -c 102400 /dev/zero | tr '\\0' x >&2\necho >&2\necho 'tail marker' >&2\nexit 3\n")
	x := assignment.NewExecutor(0, 0, discard())

	_, err := x.Run(context.Background(), assignment.Command{
		Path:    path,
		Timeout: 10 * time.Second,
	})

	var toolErr *assignment.ToolError
	require.ErrorAs(t, err, &toolErr)
	assert.Equal(t, 3, toolErr.ExitCode)
	assert.LessOrEqual(t, len(toolErr.Stderr), 64*1024)
	assert.True(t, strings.HasSuffix(toolErr.Stderr, "tail marker\n"))
}
