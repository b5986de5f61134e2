// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package featuremap models the mapping from feature name to the package
// that implements it and the call that initializes it.
//
// # Description
//
// A Map is built three ways:
//
//   - by the scanner, from the files under the features root
//   - by Synthesize, from a build profile's enabled list
//   - by Read, from the feature_map.yml document
//
// The Map keeps insertion order. Scans insert in sorted key order,
// synthesis keeps the profile's order and Read keeps document order, so
// serializing and generating code from a Map is stable across runs.
//
// # Thread Safety
//
// Map is not safe for concurrent mutation. Each command owns its own Map.
package featuremap

import (
	"errors"
	"fmt"
	"path"
	"strings"
)

const (
	// PathSeparator joins the segments of Entry.Path.
	PathSeparator = "/"

	// DefaultCall is the call expression of a feature exposing `func Init()`.
	DefaultCall = "Init()"
)

// Sentinel errors for entry validation.
var (
	ErrEmptyName = errors.New("feature name must not be empty")
	ErrEmptyPath = errors.New("feature path must not be empty")
	ErrEmptyCall = errors.New("feature call must not be empty when present")
)

// =============================================================================
// Entry
// =============================================================================

// Entry is one feature: where its code lives and how it is started.
type Entry struct {
	// Path is the slash-separated location relative to the features root,
	// without extension, e.g. "net/socket/socket".
	Path string `yaml:"path"`

	// Call is the initialization expression, nil for passive features.
	Call *string `yaml:"call,omitempty"`
}

// NewEntry returns an Entry with the given path and call; an empty call
// yields a passive entry.
func NewEntry(p, call string) Entry {
	e := Entry{Path: p}
	if call != "" {
		c := call
		e.Call = &c
	}
	return e
}

// HasCall reports whether the feature has an initialization call.
func (e Entry) HasCall() bool {
	return e.Call != nil
}

// CallExpr returns the call expression or "".
func (e Entry) CallExpr() string {
	if e.Call == nil {
		return ""
	}
	return *e.Call
}

// Segments splits Path on PathSeparator, dropping empty segments.
func (e Entry) Segments() []string {
	var segs []string
	for _, s := range strings.Split(e.Path, PathSeparator) {
		if s != "" {
			segs = append(segs, s)
		}
	}
	return segs
}

// PackageDir returns the directory of the package owning the feature.
//
// A single-segment path names the package directory itself ("http" is
// features/http). A longer path names a file inside its package directory
// ("http/server" lives in features/http).
func (e Entry) PackageDir() string {
	segs := e.Segments()
	switch len(segs) {
	case 0:
		return ""
	case 1:
		return segs[0]
	default:
		return path.Join(segs[:len(segs)-1]...)
	}
}

// Validate checks the structural invariants: non-empty path and, when
// present, a non-empty call.
func (e Entry) Validate() error {
	if len(e.Segments()) == 0 {
		return ErrEmptyPath
	}
	if e.Call != nil && strings.TrimSpace(*e.Call) == "" {
		return ErrEmptyCall
	}
	return nil
}

// =============================================================================
// Map
// =============================================================================

// Map is an insertion-ordered mapping from feature name to Entry.
type Map struct {
	names   []string
	entries map[string]Entry
}

// New returns an empty Map.
func New() *Map {
	return &Map{entries: make(map[string]Entry)}
}

// Set adds or replaces name. A replaced name keeps its position.
func (m *Map) Set(name string, e Entry) error {
	if strings.TrimSpace(name) == "" {
		return ErrEmptyName
	}
	if err := e.Validate(); err != nil {
		return fmt.Errorf("feature %q: %w", name, err)
	}
	if m.entries == nil {
		m.entries = make(map[string]Entry)
	}
	if _, exists := m.entries[name]; !exists {
		m.names = append(m.names, name)
	}
	m.entries[name] = e
	return nil
}

// Get returns the entry for name.
func (m *Map) Get(name string) (Entry, bool) {
	if m == nil {
		return Entry{}, false
	}
	e, ok := m.entries[name]
	return e, ok
}

// Has reports whether name is present.
func (m *Map) Has(name string) bool {
	_, ok := m.Get(name)
	return ok
}

// Names returns the feature names in insertion order.
func (m *Map) Names() []string {
	if m == nil {
		return nil
	}
	out := make([]string, len(m.names))
	copy(out, m.names)
	return out
}

// Len returns the number of features.
func (m *Map) Len() int {
	if m == nil {
		return 0
	}
	return len(m.names)
}

// Each calls fn for every feature in order, stopping at the first error.
func (m *Map) Each(fn func(name string, e Entry) error) error {
	if m == nil {
		return nil
	}
	for _, name := range m.names {
		if err := fn(name, m.entries[name]); err != nil {
			return err
		}
	}
	return nil
}

// Restrict returns a Map holding exactly names, in the order given.
//
// # Description
//
// Reconciles a profile's enabled list against an authoritative map. Every
// missing name is collected and reported in one UnresolvedFeatureError;
// no partial map is returned. Repeated names are kept once.
//
// # Inputs
//
//   - names: Enabled feature names, in initialization order.
//
// # Outputs
//
//   - *Map: The restricted map.
//   - error: *UnresolvedFeatureError if any name is absent.
func (m *Map) Restrict(names []string) (*Map, error) {
	out := New()
	var missing []string
	for _, name := range names {
		e, ok := m.Get(name)
		if !ok {
			missing = append(missing, name)
			continue
		}
		if out.Has(name) {
			continue
		}
		if err := out.Set(name, e); err != nil {
			return nil, err
		}
	}
	if len(missing) > 0 {
		return nil, &UnresolvedFeatureError{Names: missing}
	}
	return out, nil
}

// Synthesize builds a Map straight from enabled names without touching
// the disk: path is the name itself and call is DefaultCall.
//
// # Examples
//
//	m, _ := Synthesize([]string{"register_agent", "report_result"})
//	e, _ := m.Get("register_agent") // {Path: "register_agent", Call: "Init()"}
//
// Repeated names are kept once, at their first position.
func Synthesize(names []string) (*Map, error) {
	out := New()
	for _, name := range names {
		name = strings.TrimSpace(name)
		if out.Has(name) {
			continue
		}
		if err := out.Set(name, NewEntry(name, DefaultCall)); err != nil {
			return nil, err
		}
	}
	return out, nil
}
