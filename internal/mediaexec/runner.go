package mediaexec

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"sync"
	"time"

	"media-pipeline/internal/logging"
)

// DefaultWaitDelay bounds how long Wait blocks on I/O after the process
// group has been killed.
const DefaultWaitDelay = 5 * time.Second

// ErrToolNotFound is returned when the requested binary is not on PATH.
var ErrToolNotFound = errors.New("media tool not found")

// Result carries the captured output streams of one invocation.
type Result struct {
	Stdout []byte
	Stderr []byte
}

// StderrTail returns at most the last n bytes of stderr, trimmed.
func (r Result) StderrTail(n int) string {
	s := strings.TrimSpace(string(r.Stderr))
	if n > 0 && len(s) > n {
		s = "..." + s[len(s)-n:]
	}
	return s
}

// Runner executes an external program.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) (Result, error)
}

// CommandRunner runs programs with os/exec and tracks the ones in flight.
type CommandRunner struct {
	WaitDelay time.Duration

	mu      sync.Mutex
	nextID  uint64
	running map[uint64]*exec.Cmd
}

// NewCommandRunner creates a CommandRunner with default settings.
func NewCommandRunner() *CommandRunner {
	return &CommandRunner{
		WaitDelay: DefaultWaitDelay,
		running:   make(map[uint64]*exec.Cmd),
	}
}

// Run starts name with args, waits for it and returns both output streams.
// A non-zero exit yields an *exec.ExitError; the Result is populated either way.
func (r *CommandRunner) Run(ctx context.Context, name string, args ...string) (Result, error) {
	if _, err := exec.LookPath(name); err != nil {
		return Result{}, fmt.Errorf("%w: %s: %v", ErrToolNotFound, name, err)
	}

	cmd := exec.CommandContext(ctx, name, args...)
	setProcessGroup(cmd)
	cmd.WaitDelay = r.WaitDelay

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	logging.Debug("exec: %s %s", name, strings.Join(args, " "))

	if err := cmd.Start(); err != nil {
		return Result{}, fmt.Errorf("failed to start %s: %w", name, err)
	}

	id := r.track(cmd)
	err := cmd.Wait()
	r.untrack(id)

	res := Result{Stdout: stdout.Bytes(), Stderr: stderr.Bytes()}
	if err != nil && ctx.Err() != nil {
		return res, fmt.Errorf("%s interrupted: %w", name, ctx.Err())
	}
	return res, err
}

func (r *CommandRunner) track(cmd *exec.Cmd) uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running == nil {
		r.running = make(map[uint64]*exec.Cmd)
	}
	r.nextID++
	r.running[r.nextID] = cmd
	return r.nextID
}

func (r *CommandRunner) untrack(id uint64) {
	r.mu.Lock()
	delete(r.running, id)
	r.mu.Unlock()
}

// Active returns the number of processes currently running.
func (r *CommandRunner) Active() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.running)
}

// KillAll terminates every tracked process group. Used during shutdown.
func (r *CommandRunner) KillAll() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, cmd := range r.running {
		if cmd.Process == nil {
			continue
		}
		logging.Info("Killing media process %d (%s)", cmd.Process.Pid, cmd.Path)
		if err := killProcessGroup(cmd); err != nil {
			logging.Warn("failed to kill media process %d: %v", cmd.Process.Pid, err)
		}
	}
}

// ExitCode extracts the process exit code from err, or -1 when err does not
// describe a process exit.
func ExitCode(err error) int {
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	return -1
}
