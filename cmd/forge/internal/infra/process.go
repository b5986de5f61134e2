// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package infra

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"sync"

	"github.com/AleutianAI/AleutianForge/cmd/forge/internal/util"
)

// stderrTailLimit bounds how much stderr a streaming command keeps for its error.
const stderrTailLimit = 4096

// -----------------------------------------------------------------------------
// Interface Definition
// -----------------------------------------------------------------------------

// ProcessManager runs external processes.
//
// All container engine calls go through this interface so the build
// pipeline can be tested without a daemon.
//
// # Context Handling
//
// Cancelling ctx kills the child process. No timeout is applied here.
type ProcessManager interface {
	// Run executes a command and returns its stdout.
	//
	// # Outputs
	//
	//   - []byte: Captured stdout.
	//   - error: *util.CommandError on a non-zero exit or failed start.
	//
	// # Examples
	//
	//	out, err := pm.Run(ctx, "docker", "images", "-q", "forge-builder")
	Run(ctx context.Context, name string, args ...string) ([]byte, error)

	// Stream executes a command with its output forwarded to stdout and
	// stderr as it is produced. Used for image builds and compilation runs.
	//
	// # Limitations
	//
	//   - Only the last few KB of stderr are kept in the returned error.
	Stream(ctx context.Context, stdout, stderr io.Writer, name string, args ...string) error
}

// -----------------------------------------------------------------------------
// Implementation
// -----------------------------------------------------------------------------

// DefaultProcessManager implements ProcessManager using os/exec.
type DefaultProcessManager struct{}

// NewDefaultProcessManager creates a new DefaultProcessManager.
func NewDefaultProcessManager() *DefaultProcessManager {
	return &DefaultProcessManager{}
}

// Run executes a command synchronously and returns its output.
func (pm *DefaultProcessManager) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, commandError(name, args, stderr.String(), err)
	}
	return stdout.Bytes(), nil
}

// Stream executes a command and forwards its output while it runs.
func (pm *DefaultProcessManager) Stream(ctx context.Context, stdout, stderr io.Writer, name string, args ...string) error {
	cmd := exec.CommandContext(ctx, name, args...)

	tail := &tailBuffer{limit: stderrTailLimit}
	cmd.Stdout = orDiscard(stdout)
	cmd.Stderr = io.MultiWriter(orDiscard(stderr), tail)

	if err := cmd.Run(); err != nil {
		return commandError(name, args, tail.String(), err)
	}
	return nil
}

// commandError converts an exec failure into a util.CommandError.
func commandError(name string, args []string, stderr string, err error) error {
	exitCode := -1
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		exitCode = exitErr.ExitCode()
	}
	return util.NewCommandError(commandLine(name, args), exitCode, stderr, err)
}

// commandLine renders name and the first args for error messages.
func commandLine(name string, args []string) string {
	const maxArgs = 2
	if len(args) > maxArgs {
		return fmt.Sprintf("%s %s ...", name, strings.Join(args[:maxArgs], " "))
	}
	return strings.TrimSpace(name + " " + strings.Join(args, " "))
}

func orDiscard(w io.Writer) io.Writer {
	if w == nil {
		return io.Discard
	}
	return w
}

// tailBuffer keeps the last limit bytes written to it.
type tailBuffer struct {
	limit int
	buf   []byte
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	t.buf = append(t.buf, p...)
	if over := len(t.buf) - t.limit; over > 0 {
		t.buf = t.buf[over:]
	}
	return len(p), nil
}

func (t *tailBuffer) String() string {
	return string(t.buf)
}

// -----------------------------------------------------------------------------
// Mock Implementation for Testing
// -----------------------------------------------------------------------------

// MockProcessManager is a test double for ProcessManager.
//
// Configure the mock by setting function fields before use. If a function
// field is nil and the corresponding method is called, it will panic.
//
// # Examples
//
//	mock := &MockProcessManager{
//	    RunFunc: func(ctx context.Context, name string, args ...string) ([]byte, error) {
//	        if args[0] == "info" {
//	            return []byte("Server Version: 27.0.1"), nil
//	        }
//	        return nil, fmt.Errorf("unexpected command: %v", args)
//	    },
//	}
type MockProcessManager struct {
	// RunFunc is called when Run is invoked
	RunFunc func(ctx context.Context, name string, args ...string) ([]byte, error)

	// StreamFunc is called when Stream is invoked
	StreamFunc func(ctx context.Context, stdout, stderr io.Writer, name string, args ...string) error

	// Calls records all method invocations for verification
	Calls []ProcessManagerCall

	mu sync.Mutex
}

// ProcessManagerCall records a single method invocation.
type ProcessManagerCall struct {
	Method string
	Name   string
	Args   []string
}

// Run delegates to RunFunc and records the call.
func (m *MockProcessManager) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	m.record("Run", name, args)
	if m.RunFunc == nil {
		panic("MockProcessManager.RunFunc not set")
	}
	return m.RunFunc(ctx, name, args...)
}

// Stream delegates to StreamFunc and records the call.
func (m *MockProcessManager) Stream(ctx context.Context, stdout, stderr io.Writer, name string, args ...string) error {
	m.record("Stream", name, args)
	if m.StreamFunc == nil {
		panic("MockProcessManager.StreamFunc not set")
	}
	return m.StreamFunc(ctx, stdout, stderr, name, args...)
}

func (m *MockProcessManager) record(method, name string, args []string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls = append(m.Calls, ProcessManagerCall{Method: method, Name: name, Args: args})
}

// GetCalls returns a copy of all recorded calls.
func (m *MockProcessManager) GetCalls() []ProcessManagerCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	result := make([]ProcessManagerCall, len(m.Calls))
	copy(result, m.Calls)
	return result
}

// Compile-time interface compliance check.
var (
	_ ProcessManager = (*DefaultProcessManager)(nil)
	_ ProcessManager = (*MockProcessManager)(nil)
)
