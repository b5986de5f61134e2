// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package patcher

import (
	"errors"
	"fmt"
)

// Sentinel errors for entry file patching.
var (
	// ErrEntryNotFound means the entry file is not package main or has no
	// top-level func main.
	ErrEntryNotFound = errors.New("entry function main not found")

	// ErrMalformedEntry means the entry file does not parse as Go.
	ErrMalformedEntry = errors.New("entry file has syntax errors")

	// ErrLoaderNameTaken means both the loader package name and its
	// aliased form are already bound in the entry file.
	ErrLoaderNameTaken = errors.New("loader import name is already in use")
)

// PatchError wraps a patch failure with the file and the step that failed.
type PatchError struct {
	Path string
	Op   string
	Err  error
}

func (e *PatchError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("patch entry file: %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("patch %s: %s: %v", e.Path, e.Op, e.Err)
}

func (e *PatchError) Unwrap() error {
	return e.Err
}
