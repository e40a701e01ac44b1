// Package ptyshell runs the child shell on a pseudo-terminal and owns its lifecycle.
package ptyshell

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/creack/pty"
	"golang.org/x/sys/unix"

	"pkt.systems/pslog"
	"pkt.systems/shellm/schema"
)

// ProcessSignal names the signals the proxy forwards to the shell.
type ProcessSignal string

const (
	// SignalHUP tells the shell its terminal went away.
	SignalHUP ProcessSignal = "SIGHUP"
	// SignalTERM asks the shell to terminate.
	SignalTERM ProcessSignal = "SIGTERM"
	// SignalKILL kills the shell.
	SignalKILL ProcessSignal = "SIGKILL"
)

// DefaultGrace is how long Terminate waits after SIGHUP before SIGKILL.
const DefaultGrace = 2 * time.Second

// Options describes the shell to spawn.
type Options struct {
	Path string
	Args []string
	Dir  string
	Env  []string
	Rows int
	Cols int
}

// Session is a running shell attached to a pseudo-terminal master.
type Session struct {
	cmd     *exec.Cmd
	ptmx    *os.File
	log     pslog.Logger
	started time.Time

	done     chan struct{}
	exitCode int
	waitErr  error

	closeOnce sync.Once
}

// Spawn starts the shell with the given initial size.
func Spawn(ctx context.Context, opts Options) (*Session, error) {
	if strings.TrimSpace(opts.Path) == "" {
		return nil, fmt.Errorf("%w: shell path is empty", schema.ErrPTY)
	}
	log := pslog.Ctx(ctx)
	cmd := exec.Command(opts.Path, opts.Args...)
	cmd.Dir = opts.Dir
	cmd.Env = buildEnv(opts.Env)

	ptmx, err := pty.StartWithSize(cmd, winsize(opts.Rows, opts.Cols))
	if err != nil {
		return nil, fmt.Errorf("%w: start %s: %v", schema.ErrPTY, opts.Path, err)
	}
	s := &Session{
		cmd:     cmd,
		ptmx:    ptmx,
		log:     log,
		started: time.Now(),
		done:    make(chan struct{}),
	}
	log.Info("shell started", "path", opts.Path, "pid", cmd.Process.Pid, "rows", opts.Rows, "cols", opts.Cols)
	go s.reap()
	return s, nil
}

func buildEnv(env []string) []string {
	if env == nil {
		env = os.Environ()
	}
	env = filterEnv(env, "SHELLM")
	if !hasEnv(env, "TERM") {
		env = append(env, "TERM=xterm-256color")
	}
	return append(env, "SHELLM=1")
}

func winsize(rows, cols int) *pty.Winsize {
	if rows <= 0 {
		rows = 24
	}
	if cols <= 0 {
		cols = 80
	}
	return &pty.Winsize{Rows: uint16(rows), Cols: uint16(cols)}
}

func (s *Session) reap() {
	err := s.cmd.Wait()
	exitCode := 0
	signal := ""
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			exitCode = exitErr.ExitCode()
			if status, ok := exitErr.Sys().(syscall.WaitStatus); ok && status.Signaled() {
				signal = status.Signal().String()
				exitCode = 128 + int(status.Signal())
			}
			err = nil
		} else {
			exitCode = 1
		}
	}
	s.exitCode = exitCode
	s.waitErr = err
	fields := []any{
		"exit_code", exitCode,
		"duration_ms", time.Since(s.started).Milliseconds(),
	}
	if signal != "" {
		fields = append(fields, "signal", signal)
	}
	if err != nil {
		fields = append(fields, "err", err)
	}
	s.log.Info("shell exited", fields...)
	close(s.done)
}

// Pid returns the shell's process id.
func (s *Session) Pid() int {
	return s.cmd.Process.Pid
}

// Read reads shell output from the master. Once the shell is gone the master reports EIO;
// that is returned as io.EOF.
func (s *Session) Read(p []byte) (int, error) {
	n, err := s.ptmx.Read(p)
	if err != nil && (errors.Is(err, unix.EIO) || errors.Is(err, os.ErrClosed)) {
		err = io.EOF
	}
	return n, err
}

// Write delivers bytes to the shell as keystrokes.
func (s *Session) Write(p []byte) (int, error) {
	return s.ptmx.Write(p)
}

// Resize propagates a new geometry to the shell.
func (s *Session) Resize(rows, cols int) error {
	if err := pty.Setsize(s.ptmx, winsize(rows, cols)); err != nil {
		return fmt.Errorf("resize pty: %w", err)
	}
	return nil
}

// Signal sends sig to the shell process.
func (s *Session) Signal(sig ProcessSignal) error {
	if s.cmd == nil || s.cmd.Process == nil {
		return fmt.Errorf("process not started")
	}
	switch sig {
	case SignalHUP:
		return s.cmd.Process.Signal(syscall.SIGHUP)
	case SignalTERM:
		return s.cmd.Process.Signal(syscall.SIGTERM)
	case SignalKILL:
		return s.cmd.Process.Signal(syscall.SIGKILL)
	default:
		return fmt.Errorf("unsupported signal: %s", sig)
	}
}

// Done is closed once the shell has been reaped.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Wait blocks until the shell exits and returns its exit code. A shell killed by a signal
// reports 128 plus the signal number.
func (s *Session) Wait() (int, error) {
	<-s.done
	return s.exitCode, s.waitErr
}

// Terminate hangs up the shell, escalates to SIGKILL after grace, and waits for it to be reaped.
func (s *Session) Terminate(ctx context.Context, grace time.Duration) error {
	select {
	case <-s.done:
		return nil
	default:
	}
	if grace <= 0 {
		grace = DefaultGrace
	}
	if err := s.Signal(SignalHUP); err != nil && !errors.Is(err, os.ErrProcessDone) {
		s.log.Warn("shell hangup failed", "err", err)
	}
	timer := time.NewTimer(grace)
	defer timer.Stop()
	select {
	case <-s.done:
		return nil
	case <-timer.C:
	case <-ctx.Done():
	}
	s.log.Warn("shell ignored hangup, killing", "pid", s.Pid())
	if err := s.Signal(SignalKILL); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return fmt.Errorf("kill shell: %w", err)
	}
	<-s.done
	return nil
}

// Close releases the pseudo-terminal master.
func (s *Session) Close() error {
	var err error
	s.closeOnce.Do(func() {
		err = s.ptmx.Close()
	})
	return err
}

func filterEnv(env []string, key string) []string {
	if len(env) == 0 {
		return env
	}
	prefix := key + "="
	out := make([]string, 0, len(env))
	for _, entry := range env {
		if strings.HasPrefix(entry, prefix) {
			continue
		}
		out = append(out, entry)
	}
	return out
}

func hasEnv(env []string, key string) bool {
	prefix := key + "="
	for _, entry := range env {
		if strings.HasPrefix(entry, prefix) && len(entry) > len(prefix) {
			return true
		}
	}
	return false
}
