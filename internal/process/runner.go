package process

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"
)

const (
	// maxOutput caps the captured combined output of one run.
	maxOutput = 64 * 1024

	defaultTimeout         = 10 * time.Minute
	defaultGracefulTimeout = 5 * time.Second
)

// Config holds the settings shared by every script run.
type Config struct {
	// Dir restricts scripts to this directory. Relative script names are
	// resolved against it. If empty, any path is accepted.
	Dir string

	// DefaultTimeout applies when Run is called with a zero timeout.
	DefaultTimeout time.Duration

	// GracefulTimeout is how long to wait after SIGTERM before SIGKILL.
	GracefulTimeout time.Duration

	// Env are additional environment variables (key=value format).
	// If nil, inherits from parent process.
	Env []string
}

// Logger defines the logging interface for the runner.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Result describes one finished script run.
type Result struct {
	Script   string        `json:"script"`
	PID      int           `json:"pid,omitempty"`
	ExitCode int           `json:"exit_code"`
	Output   string        `json:"output,omitempty"`
	Duration time.Duration `json:"duration"`
}

// Runner executes scripts. It is safe for concurrent use.
type Runner struct {
	config Config
	logger Logger
}

// NewRunner creates a runner with the given configuration.
func NewRunner(cfg Config) *Runner {
	if cfg.DefaultTimeout <= 0 {
		cfg.DefaultTimeout = defaultTimeout
	}
	if cfg.GracefulTimeout <= 0 {
		cfg.GracefulTimeout = defaultGracefulTimeout
	}
	return &Runner{config: cfg, logger: noopLogger{}}
}

// SetLogger sets the logger for the runner.
func (r *Runner) SetLogger(logger Logger) {
	r.logger = logger
}

// Resolve returns the absolute path of script after applying the directory
// restriction and checking that it exists and is executable.
func (r *Runner) Resolve(script string) (string, error) {
	if strings.TrimSpace(script) == "" {
		return "", fmt.Errorf("%w: empty name", ErrScriptNotFound)
	}

	path := script
	if r.config.Dir != "" && !filepath.IsAbs(path) {
		path = filepath.Join(r.config.Dir, path)
	}
	path, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("resolving %s: %w", script, err)
	}

	if r.config.Dir != "" {
		dir, err := filepath.Abs(r.config.Dir)
		if err != nil {
			return "", fmt.Errorf("resolving script dir: %w", err)
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			return "", fmt.Errorf("%w: %s", ErrNotAllowed, script)
		}
	}

	info, err := os.Stat(path)
	if errors.Is(err, os.ErrNotExist) {
		return "", fmt.Errorf("%w: %s", ErrScriptNotFound, path)
	}
	if err != nil {
		return "", fmt.Errorf("inspecting %s: %w", path, err)
	}
	if info.IsDir() || info.Mode().Perm()&0o111 == 0 {
		return "", fmt.Errorf("%w: %s", ErrNotExecutable, path)
	}
	return path, nil
}

// Run executes script with args and waits for it to finish.
//
// The script runs in a new process group. When timeout (or the default
// timeout, if zero) expires or ctx is cancelled, the whole group receives
// SIGTERM, then SIGKILL after the graceful timeout.
//
// Parameters:
//   - ctx: Cancels the run
//   - script: Script name or path
//   - args: Command-line arguments
//   - timeout: Run limit; 0 uses Config.DefaultTimeout
//
// Returns:
//   - Result: Exit code, captured output and duration; filled as far as the run got
//   - error: ErrScriptNotFound, ErrNotAllowed, ErrNotExecutable, ErrTimeout,
//     ErrExit or the context error
func (r *Runner) Run(ctx context.Context, script string, args []string, timeout time.Duration) (Result, error) {
	res := Result{Script: script, ExitCode: -1}

	path, err := r.Resolve(script)
	if err != nil {
		return res, err
	}
	res.Script = path
	if timeout <= 0 {
		timeout = r.config.DefaultTimeout
	}

	// Not CommandContext: cancellation must reach the whole group, not just the leader.
	cmd := exec.Command(path, args...) //nolint:gosec // path is resolved and checked above
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	if r.config.Env != nil {
		cmd.Env = append(os.Environ(), r.config.Env...)
	}
	cmd.Dir = filepath.Dir(path)
	// Bounds the wait for pipes held open by orphaned children.
	cmd.WaitDelay = r.config.GracefulTimeout

	out := &cappedBuffer{limit: maxOutput}
	cmd.Stdout = out
	cmd.Stderr = out

	r.logger.Info("starting script", "script", path, "args", args, "timeout", timeout)

	start := time.Now()
	if err := cmd.Start(); err != nil {
		return res, fmt.Errorf("starting %s: %w", path, err)
	}
	res.PID = cmd.Process.Pid

	exitCh := make(chan error, 1)
	go func() {
		exitCh <- cmd.Wait()
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	var waitErr, runErr error
	select {
	case waitErr = <-exitCh:
	case <-timer.C:
		r.logger.Warn("script timed out, terminating", "script", path, "pid", res.PID, "timeout", timeout)
		waitErr = r.terminate(res.PID, exitCh)
		runErr = fmt.Errorf("%w after %s: %s", ErrTimeout, timeout, path)
	case <-ctx.Done():
		r.logger.Warn("script cancelled, terminating", "script", path, "pid", res.PID)
		waitErr = r.terminate(res.PID, exitCh)
		runErr = fmt.Errorf("running %s: %w", path, ctx.Err())
	}

	res.Duration = time.Since(start)
	res.Output = out.String()
	if cmd.ProcessState != nil {
		res.ExitCode = cmd.ProcessState.ExitCode()
	}

	if output := strings.TrimSpace(res.Output); output != "" {
		r.logger.Debug("script output", "script", path, "output", output)
	}

	if runErr != nil {
		return res, runErr
	}
	if waitErr != nil {
		var exitErr *exec.ExitError
		if errors.As(waitErr, &exitErr) {
			r.logger.Warn("script failed", "script", path, "exit_code", res.ExitCode, "duration", res.Duration)
			return res, fmt.Errorf("%w: %s exited %d", ErrExit, path, res.ExitCode)
		}
		return res, fmt.Errorf("waiting for %s: %w", path, waitErr)
	}

	r.logger.Info("script finished", "script", path, "duration", res.Duration)
	return res, nil
}

// terminate signals the process group of pid and waits for the leader to exit.
func (r *Runner) terminate(pid int, exitCh <-chan error) error {
	// Negative PID signals the process group created via Setpgid.
	if err := syscall.Kill(-pid, syscall.SIGTERM); err != nil && !errors.Is(err, syscall.ESRCH) {
		r.logger.Warn("failed to send SIGTERM to process group", "pid", pid, "error", err)
	}

	select {
	case err := <-exitCh:
		// The leader is gone but children may still hold the group.
		_ = syscall.Kill(-pid, syscall.SIGKILL) //nolint:errcheck // ESRCH when the group is already empty
		return err
	case <-time.After(r.config.GracefulTimeout):
		r.logger.Warn("graceful shutdown timeout, sending SIGKILL", "pid", pid)
	}

	if err := syscall.Kill(-pid, syscall.SIGKILL); err != nil && !errors.Is(err, syscall.ESRCH) {
		r.logger.Error("failed to kill process group", "pid", pid, "error", err)
	}
	return <-exitCh
}

// cappedBuffer keeps the first limit bytes written to it and discards the rest.
type cappedBuffer struct {
	mu        sync.Mutex
	buf       bytes.Buffer
	limit     int
	truncated bool
}

func (b *cappedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	room := b.limit - b.buf.Len()
	if room <= 0 {
		b.truncated = true
		return len(p), nil
	}
	if len(p) > room {
		b.buf.Write(p[:room])
		b.truncated = true
		return len(p), nil
	}
	b.buf.Write(p)
	return len(p), nil
}

func (b *cappedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.truncated {
		return b.buf.String() + "\n[output truncated]"
	}
	return b.buf.String()
}
