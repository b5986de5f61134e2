// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package builder

import (
	"fmt"
	"strings"
)

// ErrorKind tells the operator which remediation applies.
type ErrorKind int

const (
	// Unreachable means the container engine did not answer.
	Unreachable ErrorKind = iota

	// ImageBuildFailed means building the environment image failed.
	ImageBuildFailed

	// RunFailed means the compilation run exited non-zero.
	RunFailed
)

func (k ErrorKind) String() string {
	switch k {
	case Unreachable:
		return "engine unreachable"
	case ImageBuildFailed:
		return "image build failed"
	case RunFailed:
		return "build run failed"
	default:
		return "unknown"
	}
}

// EnvironmentError is a build environment failure with the steps that fix it.
//
// # Description
//
// Error returns a one-line summary for logs. FullError adds the
// remediation for display to the operator.
type EnvironmentError struct {
	Kind        ErrorKind
	Message     string
	Remediation string
	Err         error
}

func (e *EnvironmentError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *EnvironmentError) Unwrap() error {
	return e.Err
}

// FullError returns the message followed by the remediation steps.
func (e *EnvironmentError) FullError() string {
	if e.Remediation == "" {
		return e.Error()
	}
	return e.Error() + "\n\n" + e.Remediation
}

// unreachableRemediation returns the steps to bring engine up.
func unreachableRemediation(engine string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "The %s daemon is not running or not accessible:\n", engine)
	if engine == "podman" {
		b.WriteString("  1. Start it: podman machine start (macOS) or systemctl --user start podman.socket\n")
		b.WriteString("  2. Check it answers: podman info")
		return b.String()
	}
	fmt.Fprintf(&b, "  1. Start it: sudo systemctl start %s\n", engine)
	fmt.Fprintf(&b, "  2. Allow your user to reach it: sudo usermod -aG %s $USER, then log in again\n", engine)
	fmt.Fprintf(&b, "  3. Check it answers: %s info", engine)
	return b.String()
}
