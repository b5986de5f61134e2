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

import (
	"errors"
	"go/parser"
	"go/token"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianForge/cmd/forge/internal/featuremap"
)

const testModule = "example.com/agent"

func newMap(t *testing.T, entries ...featuremap.Entry) *featuremap.Map {
	t.Helper()
	m := featuremap.New()
	for _, e := range entries {
		name := e.Path
		if segs := e.Segments(); len(segs) > 0 {
			name = segs[len(segs)-1]
		}
		require.NoError(t, m.Set(name, e))
	}
	return m
}

// writePackage creates features/<name>/<name>.go under root. An empty src
// only creates the directory.
func writePackage(t *testing.T, root, name, src string) {
	t.Helper()
	dir := filepath.Join(root, "features", name)
	require.NoError(t, os.MkdirAll(dir, 0755))
	if src != "" {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name+".go"), []byte(src), 0644))
	}
}

func newGenerator() *Generator {
	return &Generator{ModulePath: testModule, FeaturesDir: "features"}
}

// =============================================================================
// Generate Tests
// =============================================================================

func TestGenerate_Golden(t *testing.T) {
	m := newMap(t,
		featuremap.NewEntry("http", featuremap.DefaultCall),
		featuremap.NewEntry("report_result", ""),
	)

	got, err := newGenerator().Generate(m)
	require.NoError(t, err)

	want := `// Code generated by forge; DO NOT EDIT.

// Package loader initializes the features enabled for this build.
package loader

import (
	http "example.com/agent/features/http"
	_ "example.com/agent/features/report_result"
)

// InitFeatures runs every enabled feature's initialization call in order.
func InitFeatures() {
	http.Init()
}
`
	assert.Equal(t, want, string(got))
}

func TestGenerate_Deterministic(t *testing.T) {
	build := func() []byte {
		m := newMap(t,
			featuremap.NewEntry("register_agent", featuremap.DefaultCall),
			featuremap.NewEntry("report_result", featuremap.DefaultCall),
			featuremap.NewEntry("execute_command", featuremap.DefaultCall),
		)
		out, err := newGenerator().Generate(m)
		require.NoError(t, err)
		return out
	}

	first := build()
	for i := 0; i < 5; i++ {
		assert.Equal(t, first, build())
	}
}

func TestGenerate_CallsFollowMapOrder(t *testing.T) {
	m := newMap(t,
		featuremap.NewEntry("zeta", featuremap.DefaultCall),
		featuremap.NewEntry("alpha", featuremap.DefaultCall),
	)

	out, err := newGenerator().Generate(m)
	require.NoError(t, err)

	src := string(out)
	assert.Less(t, strings.Index(src, "zeta.Init()"), strings.Index(src, "alpha.Init()"),
		"calls must run in map order")
	assert.Less(t, strings.Index(src, `"example.com/agent/features/alpha"`), strings.Index(src, `"example.com/agent/features/zeta"`),
		"imports are sorted by path")
}

func TestGenerate_ParsesAsGo(t *testing.T) {
	m := newMap(t,
		featuremap.NewEntry("net/socket/socket", featuremap.DefaultCall),
		featuremap.NewEntry("net/socket/framing", ""),
		featuremap.NewEntry("report_result", ""),
	)

	out, err := newGenerator().Generate(m)
	require.NoError(t, err)

	f, err := parser.ParseFile(token.NewFileSet(), "loader.go", out, parser.ImportsOnly)
	require.NoError(t, err)
	require.Len(t, f.Imports, 2, "one import per package directory")
	assert.Equal(t, `"example.com/agent/features/net/socket"`, f.Imports[0].Path.Value)
	assert.Equal(t, "socket", f.Imports[0].Name.Name)
	assert.Equal(t, "_", f.Imports[1].Name.Name)
}

func TestGenerate_DuplicateCallsOnOnePackage(t *testing.T) {
	m := featuremap.New()
	require.NoError(t, m.Set("server", featuremap.NewEntry("http/server", featuremap.DefaultCall)))
	require.NoError(t, m.Set("client", featuremap.NewEntry("http/client", featuremap.DefaultCall)))

	out, err := newGenerator().Generate(m)
	require.NoError(t, err)
	assert.Equal(t, 1, strings.Count(string(out), "http.Init()"))
}

func TestGenerate_Empty(t *testing.T) {
	out, err := newGenerator().Generate(featuremap.New())
	require.NoError(t, err)

	_, err = parser.ParseFile(token.NewFileSet(), "loader.go", out, 0)
	require.NoError(t, err)
	assert.NotContains(t, string(out), "import")
	assert.Contains(t, string(out), "func InitFeatures() {")
}

func TestGenerate_CustomPackage(t *testing.T) {
	g := newGenerator()
	g.Package = "wiring"

	out, err := g.Generate(newMap(t, featuremap.NewEntry("http", featuremap.DefaultCall)))
	require.NoError(t, err)
	assert.Contains(t, string(out), "package wiring\n")
}

func TestGenerate_Errors(t *testing.T) {
	bad := "init(ctx)"
	lower := "start()"
	tests := []struct {
		name    string
		feature string
		entry   featuremap.Entry
		kind    ErrorKind
	}{
		{"parent segment", "escape", featuremap.Entry{Path: "../escape"}, KindInvalidPath},
		{"dot segment", "dot", featuremap.Entry{Path: "./dot/x"}, KindInvalidPath},
		{"keyword dir", "kw", featuremap.NewEntry("func", featuremap.DefaultCall), KindInvalidIdentifier},
		{"hyphen dir", "net", featuremap.NewEntry("net-tools", featuremap.DefaultCall), KindInvalidIdentifier},
		{"reserved name", "entry", featuremap.NewEntry("InitFeatures", ""), KindInvalidIdentifier},
		{"argument call", "args", featuremap.Entry{Path: "args", Call: &bad}, KindInvalidCall},
		{"unexported call", "lower", featuremap.Entry{Path: "lower", Call: &lower}, KindInvalidCall},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := featuremap.New()
			require.NoError(t, m.Set(tt.feature, tt.entry))

			_, err := newGenerator().Generate(m)
			var genErr *GenerateError
			require.True(t, errors.As(err, &genErr), "want *GenerateError, got %v", err)
			assert.Equal(t, tt.kind, genErr.Kind)
			assert.Equal(t, tt.feature, genErr.Feature)
		})
	}
}

func TestGenerate_Conflict(t *testing.T) {
	m := featuremap.New()
	require.NoError(t, m.Set("http", featuremap.NewEntry("http", featuremap.DefaultCall)))
	require.NoError(t, m.Set("legacy_http", featuremap.NewEntry("legacy/http/http", featuremap.DefaultCall)))

	_, err := newGenerator().Generate(m)

	var genErr *GenerateError
	require.ErrorAs(t, err, &genErr)
	assert.Equal(t, KindConflict, genErr.Kind)
	assert.Equal(t, "legacy_http", genErr.Feature)
	assert.Contains(t, err.Error(), "conflicting import")
}

func TestGenerate_Unresolvable(t *testing.T) {
	root := t.TempDir()
	writePackage(t, root, "http", "package http\n\nfunc Init() {}\n")

	g := newGenerator()
	g.ProjectRoot = root

	_, err := g.Generate(newMap(t, featuremap.NewEntry("http", featuremap.DefaultCall)))
	require.NoError(t, err)

	_, err = g.Generate(newMap(t,
		featuremap.NewEntry("http", featuremap.DefaultCall),
		featuremap.NewEntry("missing", featuremap.DefaultCall),
	))
	var genErr *GenerateError
	require.ErrorAs(t, err, &genErr)
	assert.Equal(t, KindUnresolvable, genErr.Kind)
	assert.Equal(t, "missing", genErr.Feature)
}

func TestGenerate_MissingEntryPoint(t *testing.T) {
	root := t.TempDir()
	writePackage(t, root, "passive", "package passive\n\n// func Init() {}\n\nvar Name = \"passive\"\n")
	require.NoError(t, os.WriteFile(filepath.Join(root, "features", "passive", "passive_test.go"),
		[]byte("package passive\n\nfunc Init() {}\n"), 0644))

	g := newGenerator()
	g.ProjectRoot = root

	_, err := g.Generate(newMap(t, featuremap.NewEntry("passive", featuremap.DefaultCall)))
	var genErr *GenerateError
	require.ErrorAs(t, err, &genErr)
	assert.Equal(t, KindMissingEntryPoint, genErr.Kind)
	assert.Equal(t, "passive", genErr.Feature)
	assert.Contains(t, err.Error(), "declares no func Init")

	out, err := g.Generate(newMap(t, featuremap.NewEntry("passive", "")))
	require.NoError(t, err, "a passive package is still blank-imported")
	assert.Contains(t, string(out), `_ "example.com/agent/features/passive"`)
}

func TestGenerate_EntryPointInSiblingFile(t *testing.T) {
	root := t.TempDir()
	writePackage(t, root, "http", "package http\n\nvar routes []string\n")
	require.NoError(t, os.WriteFile(filepath.Join(root, "features", "http", "init.go"),
		[]byte("package http\n\nfunc Start() {}\n"), 0644))

	g := newGenerator()
	g.ProjectRoot = root

	out, err := g.Generate(newMap(t, featuremap.NewEntry("http", "Start()")))
	require.NoError(t, err)
	assert.Contains(t, string(out), "http.Start()")
}

// =============================================================================
// WriteFile Tests
// =============================================================================

func TestWriteFile_WritesAndSkipsUnchanged(t *testing.T) {
	path := filepath.Join(t.TempDir(), "loader", "loader.go")
	m := newMap(t, featuremap.NewEntry("http", featuremap.DefaultCall))
	g := newGenerator()

	changed, err := g.WriteFile(path, m)
	require.NoError(t, err)
	assert.True(t, changed)

	info, err := os.Stat(path)
	require.NoError(t, err)

	changed, err = g.WriteFile(path, m)
	require.NoError(t, err)
	assert.False(t, changed, "identical output must not rewrite the file")

	again, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, info.ModTime(), again.ModTime())
}

func TestWriteFile_FailureLeavesFileUntouched(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "loader", "loader.go")
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	original := []byte("// previous loader\npackage loader\n")
	require.NoError(t, os.WriteFile(path, original, 0644))

	g := newGenerator()
	g.ProjectRoot = root

	changed, err := g.WriteFile(path, newMap(t, featuremap.NewEntry("ghost", featuremap.DefaultCall)))
	require.Error(t, err)
	assert.False(t, changed)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, original, data)
}
