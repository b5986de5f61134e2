// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package profile loads build profiles and reconciles their feature lists.
//
// A build profile is a YAML document in build_profiles/<name>.yml:
//
//	name: linux_agent
//	target: linux/amd64
//	release: true
//	strip: true
//	enabled_features:
//	  - http
//	  - execute_command
//
// The order of enabled_features is the initialization order of the
// generated loader and is never changed except by ApplyListener.
package profile

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Extensions accepted for profile documents, in lookup order.
var Extensions = []string{".yml", ".yaml"}

// Sentinel errors for profile validation.
var (
	ErrEmptyName       = errors.New("profile name must not be empty")
	ErrEmptyFeature    = errors.New("enabled_features contains an empty name")
	ErrInvalidTarget   = errors.New("target must have the form GOOS/GOARCH")
	ErrUnknownListener = errors.New("listener is not a known listener feature")
	ErrNotFound        = errors.New("profile not found")
)

// ConfigError reports a missing or malformed profile document.
type ConfigError struct {
	Path string
	Err  error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("build profile %s: %v", e.Path, e.Err)
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

// BuildProfile declares one build: target, flags and enabled features.
type BuildProfile struct {
	Name            string   `yaml:"name"`
	Target          string   `yaml:"target,omitempty"`
	Release         bool     `yaml:"release,omitempty"`
	Strip           bool     `yaml:"strip,omitempty"`
	EnabledFeatures []string `yaml:"enabled_features"`
}

// Load reads and validates the profile at path. Unknown keys are rejected
// so a misspelled "enabled_feature" fails instead of building nothing.
func Load(path string) (*BuildProfile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &ConfigError{Path: path, Err: err}
	}
	p, err := Decode(data)
	if err != nil {
		return nil, &ConfigError{Path: path, Err: err}
	}
	return p, nil
}

// Decode parses and validates a profile document.
func Decode(data []byte) (*BuildProfile, error) {
	var p BuildProfile
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&p); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("document is empty")
		}
		return nil, err
	}

	p.Name = strings.TrimSpace(p.Name)
	p.Target = strings.TrimSpace(p.Target)
	for i, f := range p.EnabledFeatures {
		p.EnabledFeatures[i] = strings.TrimSpace(f)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &p, nil
}

// Validate checks the name, feature names and target format.
func (p *BuildProfile) Validate() error {
	if p.Name == "" {
		return ErrEmptyName
	}
	for i, f := range p.EnabledFeatures {
		if f == "" {
			return fmt.Errorf("%w (index %d)", ErrEmptyFeature, i)
		}
	}
	if p.Target != "" {
		if _, err := ParseTarget(p.Target); err != nil {
			return err
		}
	}
	return nil
}

// ResolvedTarget returns the profile target, or def when unset.
func (p *BuildProfile) ResolvedTarget(def string) string {
	if p.Target != "" {
		return p.Target
	}
	return def
}

// FeatureList returns the enabled features comma-joined, as passed to the
// build environment.
func (p *BuildProfile) FeatureList() string {
	return strings.Join(p.EnabledFeatures, ",")
}

// ApplyListener makes listener the only active listener feature.
//
// # Description
//
// Listener features are mutually exclusive. Every name in listeners is
// removed from EnabledFeatures (keeping the order of the rest) and the
// chosen listener is appended.
//
// # Examples
//
//	p.EnabledFeatures = []string{"http", "execute_command"}
//	p.ApplyListener("socket", []string{"http", "socket"})
//	// p.EnabledFeatures == []string{"execute_command", "socket"}
//
// # Outputs
//
//   - error: ErrUnknownListener if listener is not in listeners; the
//     profile is left unchanged.
func (p *BuildProfile) ApplyListener(listener string, listeners []string) error {
	listener = strings.TrimSpace(listener)
	if !contains(listeners, listener) {
		return fmt.Errorf("%w: %q (known: %s)", ErrUnknownListener, listener, strings.Join(listeners, ", "))
	}

	kept := make([]string, 0, len(p.EnabledFeatures)+1)
	for _, f := range p.EnabledFeatures {
		if !contains(listeners, f) {
			kept = append(kept, f)
		}
	}
	p.EnabledFeatures = append(kept, listener)
	return nil
}

// Path returns the conventional location of a profile document.
func Path(dir, name string) string {
	return filepath.Join(dir, name+Extensions[0])
}

// Find locates the document for name in dir, trying each extension.
func Find(dir, name string) (string, error) {
	if strings.ContainsAny(name, `/\`) || name == "" || name == "." || name == ".." {
		return "", fmt.Errorf("%w: invalid profile name %q", ErrNotFound, name)
	}
	for _, ext := range Extensions {
		path := filepath.Join(dir, name+ext)
		if info, err := os.Stat(path); err == nil && info.Mode().IsRegular() {
			return path, nil
		}
	}
	available, _ := List(dir)
	if len(available) == 0 {
		return "", fmt.Errorf("%w: %q in %s", ErrNotFound, name, dir)
	}
	return "", fmt.Errorf("%w: %q in %s (available: %s)", ErrNotFound, name, dir, strings.Join(available, ", "))
}

// List returns the sorted profile names found in dir.
func List(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]bool)
	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		for _, ext := range Extensions {
			if name, ok := strings.CutSuffix(e.Name(), ext); ok && !seen[name] {
				seen[name] = true
				names = append(names, name)
			}
		}
	}
	sort.Strings(names)
	return names, nil
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
