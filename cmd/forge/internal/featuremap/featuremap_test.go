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
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// Entry Tests
// =============================================================================

func TestEntry_PackageDir(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"http", "http"},
		{"http/http", "http"},
		{"net/socket/listener", "net/socket"},
		{"/http//server", "http"},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			if got := (Entry{Path: tt.path}).PackageDir(); got != tt.want {
				t.Errorf("PackageDir(%q) = %q, want %q", tt.path, got, tt.want)
			}
		})
	}
}

func TestEntry_Validate(t *testing.T) {
	empty := "  "
	assert.ErrorIs(t, Entry{}.Validate(), ErrEmptyPath)
	assert.ErrorIs(t, Entry{Path: "/"}.Validate(), ErrEmptyPath)
	assert.ErrorIs(t, Entry{Path: "x", Call: &empty}.Validate(), ErrEmptyCall)
	assert.NoError(t, NewEntry("x", "").Validate())
	assert.NoError(t, NewEntry("x", DefaultCall).Validate())
}

func TestNewEntry_Passive(t *testing.T) {
	e := NewEntry("report_result", "")
	if e.HasCall() || e.CallExpr() != "" {
		t.Errorf("expected passive entry, got %+v", e)
	}
}

// =============================================================================
// Map Tests
// =============================================================================

func TestMap_SetKeepsInsertionOrder(t *testing.T) {
	m := New()
	require.NoError(t, m.Set("zeta", NewEntry("zeta", "")))
	require.NoError(t, m.Set("alpha", NewEntry("alpha", DefaultCall)))
	require.NoError(t, m.Set("zeta", NewEntry("zeta/zeta", DefaultCall)))

	assert.Equal(t, []string{"zeta", "alpha"}, m.Names())
	e, ok := m.Get("zeta")
	require.True(t, ok)
	assert.Equal(t, "zeta/zeta", e.Path)
}

func TestMap_SetRejectsInvalid(t *testing.T) {
	m := New()
	assert.ErrorIs(t, m.Set(" ", NewEntry("x", "")), ErrEmptyName)
	assert.ErrorIs(t, m.Set("x", Entry{}), ErrEmptyPath)
	assert.Equal(t, 0, m.Len())
}

func TestSynthesize(t *testing.T) {
	m, err := Synthesize([]string{"register_agent", "report_result"})
	require.NoError(t, err)

	require.Equal(t, 2, m.Len())
	for _, name := range []string{"register_agent", "report_result"} {
		e, ok := m.Get(name)
		require.True(t, ok, name)
		assert.Equal(t, name, e.Path)
		assert.Equal(t, "Init()", e.CallExpr())
	}
	assert.Equal(t, []string{"register_agent", "report_result"}, m.Names())
}

func TestSynthesize_DropsRepeats(t *testing.T) {
	m, err := Synthesize([]string{"b", "a", "b"})
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "a"}, m.Names())
}

func TestRestrict_PreservesProfileOrder(t *testing.T) {
	m := New()
	for _, n := range []string{"a", "b", "c"} {
		require.NoError(t, m.Set(n, NewEntry(n+"/"+n, DefaultCall)))
	}

	got, err := m.Restrict([]string{"c", "a"})
	require.NoError(t, err)
	assert.Equal(t, []string{"c", "a"}, got.Names())
	e, _ := got.Get("c")
	assert.Equal(t, "c/c", e.Path)
}

func TestRestrict_Unresolved(t *testing.T) {
	m := New()
	require.NoError(t, m.Set("http", NewEntry("http", DefaultCall)))

	got, err := m.Restrict([]string{"http", "ghost", "phantom"})
	assert.Nil(t, got)

	var unresolved *UnresolvedFeatureError
	require.True(t, errors.As(err, &unresolved))
	assert.Equal(t, []string{"ghost", "phantom"}, unresolved.Names)
	assert.Contains(t, err.Error(), "ghost, phantom")
}

// =============================================================================
// Document Tests
// =============================================================================

func TestEncode_Format(t *testing.T) {
	m := New()
	require.NoError(t, m.Set("socket", NewEntry("socket/socket", DefaultCall)))
	require.NoError(t, m.Set("util", NewEntry("socket/util", "")))

	data, err := Encode(m)
	require.NoError(t, err)

	want := "socket:\n  path: socket/socket\n  call: Init()\nutil:\n  path: socket/util\n"
	assert.Equal(t, want, string(data))
}

func TestDecode_KeepsDocumentOrder(t *testing.T) {
	doc := []byte("zeta:\n  path: zeta\nalpha:\n  path: a/alpha\n  call: Init()\n")
	m, err := Decode(doc)
	require.NoError(t, err)

	assert.Equal(t, []string{"zeta", "alpha"}, m.Names())
	zeta, _ := m.Get("zeta")
	assert.False(t, zeta.HasCall())

	again, err := Encode(m)
	require.NoError(t, err)
	assert.Equal(t, string(doc), string(again))
}

func TestDecode_Errors(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"not a mapping", "- a\n- b\n"},
		{"missing path", "http:\n  call: Init()\n"},
		{"duplicate", "http:\n  path: http\nhttp:\n  path: http\n"},
		{"bad value", "http: [1, 2]\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Decode([]byte(tt.doc)); err == nil {
				t.Errorf("Decode(%q) expected error", tt.doc)
			}
		})
	}
}

func TestDecode_Empty(t *testing.T) {
	for _, doc := range []string{"", "  \n", "{}\n"} {
		m, err := Decode([]byte(doc))
		require.NoError(t, err)
		assert.Equal(t, 0, m.Len())
	}
}

func TestReadWrite_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "feature_map.yml")
	m, err := Synthesize([]string{"http", "execute_command"})
	require.NoError(t, err)

	require.NoError(t, Write(path, m))
	got, err := Read(path)
	require.NoError(t, err)

	assert.Equal(t, m.Names(), got.Names())
	for _, name := range m.Names() {
		want, _ := m.Get(name)
		have, _ := got.Get(name)
		assert.Equal(t, want, have, name)
	}
}

func TestRead_ConfigErrorCarriesPath(t *testing.T) {
	dir := t.TempDir()

	missing := filepath.Join(dir, "absent.yml")
	_, err := Read(missing)
	var cfgErr *ConfigError
	require.True(t, errors.As(err, &cfgErr))
	assert.Equal(t, missing, cfgErr.Path)
	assert.True(t, errors.Is(err, os.ErrNotExist))

	broken := filepath.Join(dir, "broken.yml")
	require.NoError(t, os.WriteFile(broken, []byte("http: [\n"), 0644))
	_, err = Read(broken)
	require.True(t, errors.As(err, &cfgErr))
	assert.Contains(t, err.Error(), broken)
}

func TestEach_StopsOnError(t *testing.T) {
	m, _ := Synthesize([]string{"a", "b", "c"})
	stop := errors.New("stop")
	var seen []string
	err := m.Each(func(name string, _ Entry) error {
		seen = append(seen, name)
		if name == "b" {
			return stop
		}
		return nil
	})
	assert.ErrorIs(t, err, stop)
	if !reflect.DeepEqual(seen, []string{"a", "b"}) {
		t.Errorf("Each visited %v", seen)
	}
}
