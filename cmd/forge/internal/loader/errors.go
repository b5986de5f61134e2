// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package loader

import "fmt"

// ErrorKind classifies generation failures.
type ErrorKind int

const (
	// KindInvalidPath is an empty path or one that leaves the features root.
	KindInvalidPath ErrorKind = iota

	// KindInvalidIdentifier is a package directory whose name cannot be
	// used as a Go identifier, or an import path Go would reject.
	KindInvalidIdentifier

	// KindConflict is two different package directories claiming one import name.
	KindConflict

	// KindInvalidCall is a call that is not an exported, argument-less function.
	KindInvalidCall

	// KindUnresolvable is a package directory missing from the project tree.
	KindUnresolvable

	// KindFormat is generated source that go/format rejects.
	KindFormat

	// KindMissingEntryPoint is a call naming a function the feature
	// package does not declare.
	KindMissingEntryPoint
)

// String returns a short name for the kind.
func (k ErrorKind) String() string {
	switch k {
	case KindInvalidPath:
		return "invalid path"
	case KindInvalidIdentifier:
		return "invalid identifier"
	case KindConflict:
		return "conflicting import"
	case KindInvalidCall:
		return "invalid call"
	case KindUnresolvable:
		return "unresolvable package"
	case KindFormat:
		return "format"
	case KindMissingEntryPoint:
		return "missing entry point"
	default:
		return "unknown"
	}
}

// GenerateError reports why no loader was produced.
type GenerateError struct {
	Kind    ErrorKind
	Feature string
	Detail  string
	Err     error
}

func (e *GenerateError) Error() string {
	msg := fmt.Sprintf("generate loader: %s", e.Kind)
	if e.Feature != "" {
		msg += fmt.Sprintf(" for feature %q", e.Feature)
	}
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *GenerateError) Unwrap() error {
	return e.Err
}
