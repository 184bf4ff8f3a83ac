// Package command runs external helper programs (vendor GPU tools and the
// session bus monitor) with bounded runtimes.
package command

import (
	"bytes"
	"context"
	"io"
	"os/exec"
	"strings"
	"sync"
	"time"

	"codeberg.org/mutker/monitord/internal/errors"
)

const (
	DefaultTimeout = time.Second

	// waitDelay bounds how long output pipes stay open after a kill, for
	// children that leave grandchildren holding stdout.
	waitDelay = 250 * time.Millisecond
)

// Runner executes a program to completion and returns its stdout. On timeout
// the output captured before the kill is returned alongside ErrTimeout.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) (string, error)
}

// Streamer starts a long-running program and exposes its stdout line stream.
type Streamer interface {
	Stream(ctx context.Context, name string, args ...string) (*Stream, error)
}

// Stream is a running program.
type Stream struct {
	io.Reader
	wait   func() error
	cancel context.CancelFunc
	once   sync.Once
	err    error
}

func NewStream(r io.Reader, wait func() error, cancel context.CancelFunc) *Stream {
	return &Stream{Reader: r, wait: wait, cancel: cancel}
}

// Wait blocks until the program exits and returns its exit status.
func (s *Stream) Wait() error {
	s.once.Do(func() {
		if s.wait != nil {
			s.err = s.wait()
		}
	})

	return s.err
}

// Close stops the program and reaps it.
func (s *Stream) Close() error {
	if s.cancel != nil {
		s.cancel()
	}
	_ = s.Wait()

	return nil
}

type Exec struct {
	Timeout time.Duration
}

func NewExec(timeout time.Duration) *Exec {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	return &Exec{Timeout: timeout}
}

func (e *Exec) Run(ctx context.Context, name string, args ...string) (string, error) {
	errFactory := errors.New()

	ctx, cancel := context.WithTimeout(ctx, e.Timeout)
	defer cancel()

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	cmd.WaitDelay = waitDelay

	err := cmd.Run()
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return stdout.String(), errFactory.WithData(errors.ErrTimeout, commandLine(name, args))
	}
	if err != nil {
		return stdout.String(), errFactory.Wrap(ErrCommandFailed, err).WithData(struct {
			Command string
			Stderr  string
		}{
			Command: commandLine(name, args),
			Stderr:  strings.TrimSpace(stderr.String()),
		})
	}

	return stdout.String(), nil
}

func (e *Exec) Stream(ctx context.Context, name string, args ...string) (*Stream, error) {
	errFactory := errors.New()

	ctx, cancel := context.WithCancel(ctx)
	cmd := exec.CommandContext(ctx, name, args...)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return nil, errFactory.Wrap(ErrCommandFailed, err).WithData(commandLine(name, args))
	}

	if err := cmd.Start(); err != nil {
		cancel()
		return nil, errFactory.Wrap(ErrCommandFailed, err).WithData(commandLine(name, args))
	}

	return NewStream(stdout, cmd.Wait, cancel), nil
}

func commandLine(name string, args []string) string {
	return strings.TrimSpace(name + " " + strings.Join(args, " "))
}
