// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package hub

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"sync"
	"time"
)

// defaultStopTimeout bounds how long Close waits for a service process to
// exit after its stdin is closed.
const defaultStopTimeout = 5 * time.Second

// ProcessBroker starts one service process per request and talks to it
// over stdio.
type ProcessBroker struct {
	// Command is the executable, resolved through PATH.
	Command string

	// Args are passed to the command.
	Args []string

	// Env is appended to the current environment.
	Env []string

	// Dir is the working directory. Empty means the current directory.
	Dir string

	// StopTimeout bounds the wait for exit on Close before the process is
	// killed. Zero means 5s.
	StopTimeout time.Duration

	// Logger receives lifecycle logs. Nil uses slog.Default().
	Logger *slog.Logger
}

// RequestService starts the process.
//
// Description:
//
//	The process receives the host group and service name through
//	REFSLENS_HOST_GROUP and REFSLENS_SERVICE. Its stderr is inherited so
//	service logs reach the same destination as ours. The process outlives
//	ctx; it ends when the returned stream is closed.
//
// Outputs:
//
//	io.ReadWriteCloser - Writes go to the process stdin, reads come from
//	                     its stdout
//	error - ErrServiceUnavailable if the command is missing or fails to start
func (b *ProcessBroker) RequestService(ctx context.Context, desc ServiceDescriptor) (io.ReadWriteCloser, error) {
	if ctx == nil {
		return nil, fmt.Errorf("ctx must not be nil")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	logger := b.logger()
	path, err := exec.LookPath(b.Command)
	if err != nil {
		logger.Warn("Service command not installed",
			slog.String("service", desc.Name),
			slog.String("command", b.Command),
		)
		return nil, fmt.Errorf("%w: %s: %v", ErrServiceUnavailable, desc.Name, err)
	}

	cmd := exec.Command(path, b.Args...)
	cmd.Dir = b.Dir
	cmd.Stderr = os.Stderr
	cmd.Env = append(os.Environ(), b.Env...)
	cmd.Env = append(cmd.Env,
		EnvHostGroup+"="+desc.HostGroup,
		EnvServiceName+"="+desc.Name,
	)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		_ = stdin.Close()
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		_ = stdin.Close()
		_ = stdout.Close()
		return nil, fmt.Errorf("%w: %s: start process: %v", ErrServiceUnavailable, desc.Name, err)
	}

	logger.Info("Started service process",
		slog.String("service", desc.Name),
		slog.String("host_group", desc.HostGroup),
		slog.String("command", path),
		slog.Int("pid", cmd.Process.Pid),
	)

	timeout := b.StopTimeout
	if timeout <= 0 {
		timeout = defaultStopTimeout
	}
	return &processStream{
		cmd:     cmd,
		stdin:   stdin,
		stdout:  stdout,
		service: desc.Name,
		timeout: timeout,
		logger:  logger,
	}, nil
}

func (b *ProcessBroker) logger() *slog.Logger {
	if b.Logger != nil {
		return b.Logger
	}
	return slog.Default()
}

// processStream is the stdio of a running service process.
type processStream struct {
	cmd     *exec.Cmd
	stdin   io.WriteCloser
	stdout  io.ReadCloser
	service string
	timeout time.Duration
	logger  *slog.Logger

	closeOnce sync.Once
	closeErr  error
}

func (p *processStream) Read(b []byte) (int, error) {
	return p.stdout.Read(b)
}

func (p *processStream) Write(b []byte) (int, error) {
	return p.stdin.Write(b)
}

// Close closes stdin to signal EOF, then waits for the process to exit.
// A process that does not exit within the stop timeout is killed.
func (p *processStream) Close() error {
	p.closeOnce.Do(func() {
		_ = p.stdin.Close()

		done := make(chan error, 1)
		go func() { done <- p.cmd.Wait() }()

		select {
		case err := <-done:
			p.closeErr = exitError(err)
		case <-time.After(p.timeout):
			p.logger.Warn("Service process did not exit, killing",
				slog.String("service", p.service),
				slog.Int("pid", p.cmd.Process.Pid),
			)
			_ = p.cmd.Process.Kill()
			<-done
		}

		p.logger.Info("Stopped service process",
			slog.String("service", p.service),
			slog.Int("pid", p.cmd.Process.Pid),
		)
	})
	return p.closeErr
}

// exitError drops the error Wait reports for a pipe we closed ourselves.
func exitError(err error) error {
	if err == nil {
		return nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return err
	}
	return nil
}
