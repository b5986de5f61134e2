// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package skeleton

import (
	"context"
	"go/parser"
	"go/token"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianForge/cmd/forge/internal/profile"
	"github.com/AleutianAI/AleutianForge/cmd/forge/internal/scanner"
)

func testData() ProjectData {
	return ProjectData{Name: "scout", Module: "example.com/scout", Target: "linux/amd64"}
}

// =============================================================================
// Init Tests
// =============================================================================

func TestInit_WritesLayout(t *testing.T) {
	root := t.TempDir()

	result, err := Init(root, testData())
	require.NoError(t, err)
	assert.Empty(t, result.Skipped)

	for _, rel := range []string{
		"go.mod", "main.go", "agent/agent.go", "comms/comms.go", "features/features.go",
		"build_profiles/default.yml", "feature_map.yml", "Dockerfile", "build.sh", ".env", ".gitignore",
	} {
		assert.Contains(t, result.Written, rel)
		assert.FileExists(t, filepath.Join(root, filepath.FromSlash(rel)))
	}

	goMod, err := os.ReadFile(filepath.Join(root, "go.mod"))
	require.NoError(t, err)
	assert.Equal(t, "module example.com/scout\n\ngo 1.22\n", string(goMod))

	info, err := os.Stat(filepath.Join(root, "build.sh"))
	require.NoError(t, err)
	assert.NotZero(t, info.Mode().Perm()&0100, "build.sh must be executable")
}

func TestInit_GoFilesParse(t *testing.T) {
	root := t.TempDir()
	result, err := Init(root, testData())
	require.NoError(t, err)

	for _, rel := range result.Written {
		if !strings.HasSuffix(rel, ".go") {
			continue
		}
		_, err := parser.ParseFile(token.NewFileSet(), rel, mustRead(t, filepath.Join(root, rel)), parser.AllErrors)
		assert.NoError(t, err, rel)
	}
}

func TestInit_DefaultProfileLoads(t *testing.T) {
	root := t.TempDir()
	_, err := Init(root, testData())
	require.NoError(t, err)

	p, err := profile.Load(filepath.Join(root, "build_profiles", "default.yml"))
	require.NoError(t, err)
	assert.Equal(t, "default", p.Name)
	assert.Equal(t, "linux/amd64", p.Target)
	assert.Empty(t, p.EnabledFeatures)
}

func TestInit_KeepsExistingFiles(t *testing.T) {
	root := t.TempDir()
	custom := []byte("package main\n\nfunc main() {}\n")
	require.NoError(t, os.WriteFile(filepath.Join(root, "main.go"), custom, 0644))

	result, err := Init(root, testData())
	require.NoError(t, err)
	assert.Equal(t, []string{"main.go"}, result.Skipped)
	assert.Equal(t, custom, mustRead(t, filepath.Join(root, "main.go")))

	again, err := Init(root, testData())
	require.NoError(t, err)
	assert.Empty(t, again.Written)
	assert.Len(t, again.Skipped, len(result.Written)+1)
}

func TestInit_InvalidModule(t *testing.T) {
	_, err := Init(t.TempDir(), ProjectData{Name: "x", Module: "bad module path"})
	assert.ErrorIs(t, err, ErrInvalidModule)
}

// =============================================================================
// Feature Tests
// =============================================================================

func TestValidateFeatureName(t *testing.T) {
	valid := []string{"http", "register_agent", "socket2"}
	invalid := []string{"", "HTTP", "2fast", "net-tools", "func", "loader", "main", "with space"}

	for _, name := range valid {
		assert.NoError(t, ValidateFeatureName(name), name)
	}
	for _, name := range invalid {
		assert.ErrorIs(t, ValidateFeatureName(name), ErrInvalidFeatureName, name)
	}
}

func TestNewFeature(t *testing.T) {
	ctx := context.Background()
	featuresDir := filepath.Join(t.TempDir(), "features")

	path, err := NewFeature(featuresDir, "example.com/scout", "execute_command")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(featuresDir, "execute_command", "execute_command.go"), path)

	src := mustRead(t, path)
	f, err := parser.ParseFile(token.NewFileSet(), path, src, parser.AllErrors)
	require.NoError(t, err)
	assert.Equal(t, "execute_command", f.Name.Name)
	assert.Contains(t, string(src), `"example.com/scout/features"`)

	has, err := scanner.SyntaxDetector{}.HasEntryPoint(ctx, path, src)
	require.NoError(t, err)
	assert.True(t, has)

	_, err = NewFeature(featuresDir, "example.com/scout", "execute_command")
	assert.ErrorIs(t, err, ErrFeatureExists)
}

func TestNewFeature_InvalidName(t *testing.T) {
	featuresDir := filepath.Join(t.TempDir(), "features")
	_, err := NewFeature(featuresDir, "example.com/scout", "Bad")
	assert.ErrorIs(t, err, ErrInvalidFeatureName)
	assert.NoDirExists(t, featuresDir)
}

func TestListFeatures(t *testing.T) {
	featuresDir := t.TempDir()
	write := func(rel, content string) {
		t.Helper()
		p := filepath.Join(featuresDir, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0755))
		require.NoError(t, os.WriteFile(p, []byte(content), 0644))
	}
	write("features.go", "package features\n")
	write("socket/socket.go", "package socket\n\nfunc Init() {}\n")
	write("socket/framing.go", "package socket\n")
	write("report_result/report_result.go", "package report_result\n\n// func Init() is not here\n")
	write("report_result/report_result_test.go", "package report_result\n\nfunc Init() {}\n")
	write("empty/README.md", "no go code\n")
	write("_disabled/x.go", "package x\n\nfunc Init() {}\n")

	got, err := ListFeatures(context.Background(), featuresDir, nil)
	require.NoError(t, err)

	require.Len(t, got, 2)
	assert.Equal(t, "report_result", got[0].Name)
	assert.False(t, got[0].HasInit, "comment and test file do not count")
	assert.Equal(t, []string{"report_result/report_result.go"}, got[0].Files)
	assert.Equal(t, "socket", got[1].Name)
	assert.True(t, got[1].HasInit)
	assert.Equal(t, []string{"report_result", "socket"}, Names(got))
}

func TestListFeatures_MissingDir(t *testing.T) {
	_, err := ListFeatures(context.Background(), filepath.Join(t.TempDir(), "nope"), nil)
	assert.Error(t, err)
}

func TestOutputName(t *testing.T) {
	assert.Equal(t, "main.go", outputName("main.go.tmpl"))
	assert.Equal(t, ".env", outputName("env.tmpl"))
	assert.Equal(t, "build_profiles/default.yml", outputName("build_profiles/default.yml.tmpl"))
}

func mustRead(t *testing.T, path string) []byte {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return data
}
