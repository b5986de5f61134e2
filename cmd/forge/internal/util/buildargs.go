// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package util

import (
	"errors"
	"fmt"
	"regexp"
)

// buildArgKeyPattern matches keys accepted by both `--build-arg` and `-e`.
var buildArgKeyPattern = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// ErrInvalidBuildArgKey is returned for keys that are not valid variable names.
var ErrInvalidBuildArgKey = errors.New("invalid build argument key")

// BuildArg is one named parameter handed to the build environment.
type BuildArg struct {
	Key   string
	Value string

	// Sensitive values are masked by Redacted.
	Sensitive bool
}

// String returns KEY=VALUE.
func (a BuildArg) String() string {
	return a.Key + "=" + a.Value
}

// Redacted returns KEY=VALUE, or KEY=[REDACTED] for sensitive args.
func (a BuildArg) Redacted() string {
	if a.Sensitive {
		return a.Key + "=[REDACTED]"
	}
	return a.String()
}

// Validate checks the key against [a-zA-Z_][a-zA-Z0-9_]*.
func (a BuildArg) Validate() error {
	if !buildArgKeyPattern.MatchString(a.Key) {
		return fmt.Errorf("%w: %q must match [a-zA-Z_][a-zA-Z0-9_]*", ErrInvalidBuildArgKey, a.Key)
	}
	return nil
}

// BuildArgs is an ordered set of build arguments. Setting an existing key
// replaces its value in place so flag order stays stable between runs.
//
// Not safe for concurrent modification.
type BuildArgs struct {
	args []BuildArg
}

// NewBuildArgs validates and collects args.
func NewBuildArgs(args ...BuildArg) (*BuildArgs, error) {
	b := &BuildArgs{}
	for _, a := range args {
		if err := b.Set(a.Key, a.Value, a.Sensitive); err != nil {
			return nil, err
		}
	}
	return b, nil
}

// Set adds or replaces a key.
func (b *BuildArgs) Set(key, value string, sensitive bool) error {
	arg := BuildArg{Key: key, Value: value, Sensitive: sensitive}
	if err := arg.Validate(); err != nil {
		return err
	}
	for i := range b.args {
		if b.args[i].Key == key {
			b.args[i] = arg
			return nil
		}
	}
	b.args = append(b.args, arg)
	return nil
}

// Get returns the value for key, or "" when absent.
func (b *BuildArgs) Get(key string) string {
	if b == nil {
		return ""
	}
	for _, a := range b.args {
		if a.Key == key {
			return a.Value
		}
	}
	return ""
}

// Has reports whether key is set.
func (b *BuildArgs) Has(key string) bool {
	if b == nil {
		return false
	}
	for _, a := range b.args {
		if a.Key == key {
			return true
		}
	}
	return false
}

// Len returns the number of args.
func (b *BuildArgs) Len() int {
	if b == nil {
		return 0
	}
	return len(b.args)
}

// All returns a copy of the args in order.
func (b *BuildArgs) All() []BuildArg {
	if b == nil {
		return nil
	}
	return append([]BuildArg(nil), b.args...)
}

// Flags expands the args as repeated flag pairs, e.g.
// Flags("--build-arg") = ["--build-arg", "PROFILE=x", "--build-arg", "TARGET=y"].
func (b *BuildArgs) Flags(flag string) []string {
	if b == nil {
		return nil
	}
	out := make([]string, 0, 2*len(b.args))
	for _, a := range b.args {
		out = append(out, flag, a.String())
	}
	return out
}

// Redacted returns KEY=VALUE strings with sensitive values masked, for logging.
func (b *BuildArgs) Redacted() []string {
	if b == nil {
		return nil
	}
	out := make([]string, len(b.args))
	for i, a := range b.args {
		out[i] = a.Redacted()
	}
	return out
}
