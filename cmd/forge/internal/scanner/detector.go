// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package scanner

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/AleutianAI/AleutianForge/cmd/forge/internal/gosyntax"
)

// DefaultInitFunc is the exported function that marks a feature entry point.
const DefaultInitFunc = "Init"

// Detector names accepted by DetectorByName.
const (
	DetectorText   = "text"
	DetectorSyntax = "syntax"
)

// InitDetector decides whether a feature source file exposes an
// initialization entry point.
type InitDetector interface {
	// HasEntryPoint reports whether src (read from path) declares the
	// feature's exported initialization function.
	HasEntryPoint(ctx context.Context, path string, src []byte) (bool, error)
}

// TextDetector looks for the literal "func <Name>(" anywhere in the file.
//
// # Limitations
//
//   - Matches inside comments and string literals.
//   - Matches methods spelled "func Init(" only when written without a receiver.
type TextDetector struct {
	// FuncName defaults to DefaultInitFunc.
	FuncName string
}

// HasEntryPoint implements InitDetector.
func (d TextDetector) HasEntryPoint(_ context.Context, _ string, src []byte) (bool, error) {
	return bytes.Contains(src, []byte("func "+funcNameOrDefault(d.FuncName)+"(")), nil
}

// SyntaxDetector parses the file and looks for a top-level function
// declaration with the given name. Comments, strings and methods never match.
type SyntaxDetector struct {
	// FuncName defaults to DefaultInitFunc.
	FuncName string
}

// HasEntryPoint implements InitDetector.
func (d SyntaxDetector) HasEntryPoint(ctx context.Context, path string, src []byte) (bool, error) {
	f, err := gosyntax.Parse(ctx, src)
	if err != nil {
		return false, fmt.Errorf("parse %s: %w", path, err)
	}
	defer f.Close()

	return f.Func(funcNameOrDefault(d.FuncName)) != nil, nil
}

// DetectorByName returns the detector registered under name.
func DetectorByName(name string) (InitDetector, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case DetectorText:
		return TextDetector{}, nil
	case DetectorSyntax, "":
		return SyntaxDetector{}, nil
	default:
		return nil, fmt.Errorf("unknown detector %q (want %s or %s)", name, DetectorText, DetectorSyntax)
	}
}

func funcNameOrDefault(name string) string {
	if name == "" {
		return DefaultInitFunc
	}
	return name
}

var (
	_ InitDetector = TextDetector{}
	_ InitDetector = SyntaxDetector{}
)
