// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package featuremap

import (
	"bytes"
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/AleutianAI/AleutianForge/cmd/forge/internal/util"
)

// MarshalYAML emits a mapping in insertion order.
func (m *Map) MarshalYAML() (interface{}, error) {
	root := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
	for _, name := range m.Names() {
		var value yaml.Node
		if err := value.Encode(m.entries[name]); err != nil {
			return nil, fmt.Errorf("encode feature %q: %w", name, err)
		}
		key := &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: name}
		root.Content = append(root.Content, key, &value)
	}
	return root, nil
}

// UnmarshalYAML reads a mapping, keeping document order and rejecting
// duplicate keys and invalid entries.
func (m *Map) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: feature map must be a mapping", node.Line)
	}

	fresh := New()
	for i := 0; i+1 < len(node.Content); i += 2 {
		keyNode, valueNode := node.Content[i], node.Content[i+1]
		name := keyNode.Value
		if fresh.Has(name) {
			return fmt.Errorf("line %d: duplicate feature %q", keyNode.Line, name)
		}

		var e Entry
		if err := valueNode.Decode(&e); err != nil {
			return fmt.Errorf("line %d: feature %q: %w", valueNode.Line, name, err)
		}
		if err := fresh.Set(name, e); err != nil {
			return fmt.Errorf("line %d: %w", keyNode.Line, err)
		}
	}

	*m = *fresh
	return nil
}

// Encode serializes m as YAML with two-space indentation.
func Encode(m *Map) ([]byte, error) {
	if m == nil {
		m = New()
	}
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(m); err != nil {
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Decode parses YAML into a Map. Empty input yields an empty Map.
func Decode(data []byte) (*Map, error) {
	m := New()
	if len(bytes.TrimSpace(data)) == 0 {
		return m, nil
	}
	if err := yaml.Unmarshal(data, m); err != nil {
		return nil, err
	}
	return m, nil
}

// Read loads the feature map document at path.
//
// # Outputs
//
//   - *Map: Entries in document order.
//   - error: *ConfigError naming path when the file is missing or malformed.
func Read(path string) (*Map, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, &ConfigError{Path: path, Err: fmt.Errorf("not found (run `forge autofill` to create it): %w", err)}
		}
		return nil, &ConfigError{Path: path, Err: err}
	}
	m, err := Decode(data)
	if err != nil {
		return nil, &ConfigError{Path: path, Err: err}
	}
	return m, nil
}

// Write atomically replaces the document at path with m.
func Write(path string, m *Map) error {
	data, err := Encode(m)
	if err != nil {
		return &ConfigError{Path: path, Err: err}
	}
	if err := util.WriteFileAtomic(path, data, 0644); err != nil {
		return &ConfigError{Path: path, Err: err}
	}
	return nil
}
