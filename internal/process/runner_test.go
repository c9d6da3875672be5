package process

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeScript(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0o755); err != nil { //nolint:gosec // test script must be executable
		t.Fatalf("writing script: %v", err)
	}
	return path
}

func TestNewRunner_Defaults(t *testing.T) {
	r := NewRunner(Config{})

	if r.config.DefaultTimeout != 10*time.Minute {
		t.Errorf("DefaultTimeout = %v, want %v", r.config.DefaultTimeout, 10*time.Minute)
	}
	if r.config.GracefulTimeout != 5*time.Second {
		t.Errorf("GracefulTimeout = %v, want %v", r.config.GracefulTimeout, 5*time.Second)
	}
}

func TestRunner_RunSuccess(t *testing.T) {
	dir := t.TempDir()
	writeScript(t, dir, "hello.sh", `echo "hello $1"`)
	r := NewRunner(Config{Dir: dir})

	res, err := r.Run(context.Background(), "hello.sh", []string{"dome"}, time.Minute)
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if res.ExitCode != 0 {
		t.Errorf("ExitCode = %d, want 0", res.ExitCode)
	}
	if strings.TrimSpace(res.Output) != "hello dome" {
		t.Errorf("Output = %q, want %q", res.Output, "hello dome")
	}
	if res.PID == 0 {
		t.Error("PID = 0, want the child pid")
	}
}

func TestRunner_NonZeroExit(t *testing.T) {
	dir := t.TempDir()
	writeScript(t, dir, "fail.sh", "echo oops >&2\nexit 3")
	r := NewRunner(Config{Dir: dir})

	res, err := r.Run(context.Background(), "fail.sh", nil, time.Minute)
	if !errors.Is(err, ErrExit) {
		t.Fatalf("Run() error = %v, want ErrExit", err)
	}
	if res.ExitCode != 3 {
		t.Errorf("ExitCode = %d, want 3", res.ExitCode)
	}
	if !strings.Contains(res.Output, "oops") {
		t.Errorf("Output = %q, want stderr captured", res.Output)
	}
}

func TestRunner_Resolve(t *testing.T) {
	dir := t.TempDir()
	writeScript(t, dir, "ok.sh", "true")
	if err := os.WriteFile(filepath.Join(dir, "plain.txt"), []byte("x"), 0o600); err != nil {
		t.Fatal(err)
	}
	outside := writeScript(t, t.TempDir(), "elsewhere.sh", "true")

	tests := []struct {
		name    string
		script  string
		wantErr error
	}{
		{"relative inside dir", "ok.sh", nil},
		{"absolute inside dir", filepath.Join(dir, "ok.sh"), nil},
		{"missing", "nope.sh", ErrScriptNotFound},
		{"empty", "", ErrScriptNotFound},
		{"escape with dots", "../elsewhere.sh", ErrNotAllowed},
		{"absolute outside dir", outside, ErrNotAllowed},
		{"not executable", "plain.txt", ErrNotExecutable},
		{"directory", ".", ErrNotExecutable},
	}

	r := NewRunner(Config{Dir: dir})
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := r.Resolve(tt.script)
			if tt.wantErr == nil {
				if err != nil {
					t.Fatalf("Resolve(%q) error = %v", tt.script, err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Resolve(%q) error = %v, want %v", tt.script, err, tt.wantErr)
			}
		})
	}
}

func TestRunner_NoDirAcceptsAnyPath(t *testing.T) {
	path := writeScript(t, t.TempDir(), "any.sh", "true")
	r := NewRunner(Config{})

	if _, err := r.Run(context.Background(), path, nil, time.Minute); err != nil {
		t.Fatalf("Run() error: %v", err)
	}
}

func TestRunner_TimeoutKillsProcessGroup(t *testing.T) {
	dir := t.TempDir()
	marker := filepath.Join(dir, "survived")
	// The background child writes the marker unless the group kill reaches it.
	writeScript(t, dir, "slow.sh", "(sleep 2; touch "+marker+") &\nsleep 30")
	r := NewRunner(Config{Dir: dir, GracefulTimeout: 200 * time.Millisecond})

	start := time.Now()
	_, err := r.Run(context.Background(), "slow.sh", nil, 200*time.Millisecond)
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("Run() error = %v, want ErrTimeout", err)
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Errorf("Run() took %v, want the script killed promptly", elapsed)
	}

	time.Sleep(2500 * time.Millisecond)
	if _, err := os.Stat(marker); err == nil {
		t.Error("background child survived the group kill")
	}
}

func TestRunner_ContextCancel(t *testing.T) {
	dir := t.TempDir()
	writeScript(t, dir, "wait.sh", "sleep 30")
	r := NewRunner(Config{Dir: dir, GracefulTimeout: 200 * time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(100 * time.Millisecond)
		cancel()
	}()

	_, err := r.Run(ctx, "wait.sh", nil, time.Minute)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Run() error = %v, want context.Canceled", err)
	}
}

func TestCappedBuffer(t *testing.T) {
	b := &cappedBuffer{limit: 4}
	n, err := b.Write([]byte("abcdef"))
	if err != nil || n != 6 {
		t.Fatalf("Write() = %d, %v; want 6, nil", n, err)
	}
	if _, err := b.Write([]byte("gh")); err != nil {
		t.Fatal(err)
	}
	if got := b.String(); got != "abcd\n[output truncated]" {
		t.Errorf("String() = %q", got)
	}
}

func TestRunner_SetLogger(t *testing.T) {
	r := NewRunner(Config{})

	// Should not panic
	r.SetLogger(noopLogger{})
}
