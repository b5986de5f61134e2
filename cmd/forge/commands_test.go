// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"github.com/AleutianAI/AleutianForge/cmd/forge/internal/builder"
	"github.com/AleutianAI/AleutianForge/cmd/forge/internal/featuremap"
	"github.com/AleutianAI/AleutianForge/cmd/forge/internal/infra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testModule = "example.com/scout"

// result is the outcome of one forge invocation.
type result struct {
	code   int
	stdout string
	stderr string
}

// runForge executes forge against dir in machine output mode.
func runForge(t *testing.T, dir string, pm infra.ProcessManager, args ...string) result {
	t.Helper()
	var stdout, stderr bytes.Buffer
	a := newApp(&stdout, &stderr)
	if pm != nil {
		a.pm = pm
	}
	full := append([]string{"--project", dir, "--personality", "machine"}, args...)
	code := execute(context.Background(), a, full)
	return result{code: code, stdout: stdout.String(), stderr: stderr.String()}
}

// newProject initializes a project in a temp dir and returns its root.
func newProject(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	res := runForge(t, dir, nil, "init", "--name", "scout", "--module", testModule)
	require.Equal(t, 0, res.code, "init failed: %s", res.stderr)
	return dir
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(data)
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
}

func addFeatures(t *testing.T, dir string, names ...string) {
	t.Helper()
	for _, name := range names {
		res := runForge(t, dir, nil, "feature", "new", "--name", name)
		require.Equal(t, 0, res.code, "feature new %s failed: %s", name, res.stderr)
	}
}

// =============================================================================
// init
// =============================================================================

func TestInit_CreatesWiredProject(t *testing.T) {
	dir := newProject(t)

	for _, f := range []string{"go.mod", "main.go", "forge.yaml", ".env", "Dockerfile", "loader/loader.go"} {
		assert.FileExists(t, filepath.Join(dir, f))
	}
	assert.Contains(t, readFile(t, filepath.Join(dir, "go.mod")), "module "+testModule)

	entry := readFile(t, filepath.Join(dir, "main.go"))
	assert.Contains(t, entry, "loader.InitFeatures()")
	assert.Contains(t, entry, `import "`+testModule+`/loader"`)
	assert.Contains(t, entry, `import _ "`+testModule+`/features"`)
	assert.Contains(t, readFile(t, filepath.Join(dir, "loader", "loader.go")), "func InitFeatures()")
}

func TestInit_RerunKeepsFiles(t *testing.T) {
	dir := newProject(t)
	before := readFile(t, filepath.Join(dir, "main.go"))

	res := runForge(t, dir, nil, "init", "--name", "scout", "--module", testModule)
	require.Equal(t, 0, res.code, res.stderr)

	assert.Contains(t, res.stdout, "SUMMARY: written=0")
	assert.Equal(t, before, readFile(t, filepath.Join(dir, "main.go")))
}

func TestInit_Dir(t *testing.T) {
	parent := t.TempDir()
	target := filepath.Join(parent, "relay")

	res := runForge(t, parent, nil, "init", "--dir", target)
	require.Equal(t, 0, res.code, res.stderr)

	assert.Contains(t, readFile(t, filepath.Join(target, "go.mod")), "module relay")
	assert.NoFileExists(t, filepath.Join(parent, "go.mod"))
}

// =============================================================================
// feature
// =============================================================================

func TestFeatureNew_RewiresLoader(t *testing.T) {
	dir := newProject(t)
	addFeatures(t, dir, "beacon", "relay")

	assert.FileExists(t, filepath.Join(dir, "features", "beacon", "beacon.go"))
	loaderSrc := readFile(t, filepath.Join(dir, "loader", "loader.go"))
	assert.Contains(t, loaderSrc, `"`+testModule+`/features/beacon"`)
	assert.Contains(t, loaderSrc, "beacon.Init()")
	assert.Contains(t, loaderSrc, "relay.Init()")
}

func TestFeatureNew_Errors(t *testing.T) {
	dir := newProject(t)
	addFeatures(t, dir, "beacon")

	res := runForge(t, dir, nil, "feature", "new", "--name", "Beacon")
	assert.Equal(t, 1, res.code)
	assert.Contains(t, res.stderr, "invalid feature name")

	res = runForge(t, dir, nil, "feature", "new", "--name", "beacon")
	assert.Equal(t, 1, res.code)
	assert.Contains(t, res.stderr, "feature already exists")
}

func TestFeatureList(t *testing.T) {
	dir := newProject(t)
	addFeatures(t, dir, "relay", "beacon")
	writeFile(t, filepath.Join(dir, "features", "passive", "passive.go"), "package passive\n\nconst Version = 1\n")

	res := runForge(t, dir, nil, "feature", "list")
	require.Equal(t, 0, res.code, res.stderr)

	lines := strings.Split(strings.TrimSpace(res.stdout), "\n")
	assert.Equal(t, []string{
		"beacon\tfeatures/beacon\tInit()",
		"passive\tfeatures/passive\tpassive",
		"relay\tfeatures/relay\tInit()",
	}, lines)
}

// =============================================================================
// autofill and generate
// =============================================================================

func TestAutofill_WritesFeatureMap(t *testing.T) {
	dir := newProject(t)
	addFeatures(t, dir, "beacon")
	writeFile(t, filepath.Join(dir, "features", "net", "socket", "socket.go"), "package socket\n\n// func Init() lives elsewhere\n")

	res := runForge(t, dir, nil, "autofill")
	require.Equal(t, 0, res.code, res.stderr)

	m, err := featuremap.Read(filepath.Join(dir, "feature_map.yml"))
	require.NoError(t, err)
	assert.Equal(t, []string{"beacon", "socket"}, m.Names())

	beacon, _ := m.Get("beacon")
	assert.Equal(t, "beacon/beacon", beacon.Path)
	assert.True(t, beacon.HasCall())

	socket, _ := m.Get("socket")
	assert.Equal(t, "net/socket/socket", socket.Path)
	assert.False(t, socket.HasCall(), "the syntax detector ignores comments")
}

func TestAutofill_TextDetector(t *testing.T) {
	dir := newProject(t)
	writeFile(t, filepath.Join(dir, "features", "socket", "socket.go"), "package socket\n\n// func Init() lives elsewhere\n")

	res := runForge(t, dir, nil, "autofill", "--detector", "text")
	require.Equal(t, 0, res.code, res.stderr)

	m, err := featuremap.Read(filepath.Join(dir, "feature_map.yml"))
	require.NoError(t, err)
	socket, _ := m.Get("socket")
	assert.True(t, socket.HasCall())
}

func TestGenerate_Profile(t *testing.T) {
	dir := newProject(t)
	addFeatures(t, dir, "beacon", "relay", "unused")
	require.Equal(t, 0, runForge(t, dir, nil, "autofill").code)
	writeFile(t, filepath.Join(dir, "build_profiles", "scout.yml"),
		"name: scout\ntarget: linux/arm64\nenabled_features: [relay, beacon]\n")

	res := runForge(t, dir, nil, "generate", "--profile", "scout")
	require.Equal(t, 0, res.code, res.stderr)

	loaderSrc := readFile(t, filepath.Join(dir, "loader", "loader.go"))
	relay := strings.Index(loaderSrc, "relay.Init()")
	beacon := strings.Index(loaderSrc, "beacon.Init()")
	require.NotEqual(t, -1, relay)
	require.NotEqual(t, -1, beacon)
	assert.Less(t, relay, beacon, "calls follow the profile order")
	assert.NotContains(t, loaderSrc, "unused")
}

func TestGenerate_WholeMap(t *testing.T) {
	dir := newProject(t)
	addFeatures(t, dir, "beacon")
	require.Equal(t, 0, runForge(t, dir, nil, "autofill").code)

	res := runForge(t, dir, nil, "generate")
	require.Equal(t, 0, res.code, res.stderr)
	assert.Contains(t, readFile(t, filepath.Join(dir, "loader", "loader.go")), "beacon.Init()")
}

func TestGenerate_UnknownFeatureLeavesLoader(t *testing.T) {
	dir := newProject(t)
	addFeatures(t, dir, "beacon")
	require.Equal(t, 0, runForge(t, dir, nil, "autofill").code)
	writeFile(t, filepath.Join(dir, "build_profiles", "broken.yml"),
		"name: broken\nenabled_features: [beacon, ghost]\n")
	before := readFile(t, filepath.Join(dir, "loader", "loader.go"))

	res := runForge(t, dir, nil, "generate", "--profile", "broken")
	assert.Equal(t, 1, res.code)
	assert.Contains(t, res.stderr, "ERROR: unknown feature")
	assert.Contains(t, res.stderr, "ghost")
	assert.Equal(t, before, readFile(t, filepath.Join(dir, "loader", "loader.go")))
}

func TestGenerate_MissingFeatureMap(t *testing.T) {
	dir := newProject(t)
	require.NoError(t, os.Remove(filepath.Join(dir, "feature_map.yml")))

	res := runForge(t, dir, nil, "generate")
	assert.Equal(t, 1, res.code)
	assert.Contains(t, res.stderr, "feature_map.yml")
}

// =============================================================================
// build
// =============================================================================

// engineMock answers like a reachable docker without a cached image and
// drops an artifact into the output directory when the build runs.
func engineMock(t *testing.T, outputDir string) *infra.MockProcessManager {
	return &infra.MockProcessManager{
		RunFunc: func(ctx context.Context, name string, args ...string) ([]byte, error) {
			switch args[0] {
			case "info":
				return []byte("Server Version: 27.0.1"), nil
			case "images":
				if args[1] == "--format" {
					return []byte("forge-builder\nforge-old\npostgres\n"), nil
				}
				return nil, nil
			case "rmi":
				return nil, nil
			}
			t.Errorf("unexpected command %v", args)
			return nil, errors.New("unexpected command")
		},
		StreamFunc: func(ctx context.Context, stdout, stderr io.Writer, name string, args ...string) error {
			if args[0] == "run" {
				return os.WriteFile(filepath.Join(outputDir, "scout"), []byte("ELF\n"), 0755)
			}
			return nil
		},
	}
}

func streamCall(calls []infra.ProcessManagerCall, sub string) []string {
	for _, c := range calls {
		if c.Method == "Stream" && len(c.Args) > 0 && c.Args[0] == sub {
			return c.Args
		}
	}
	return nil
}

func TestBuild_Pipeline(t *testing.T) {
	dir := newProject(t)
	addFeatures(t, dir, "http", "socket", "beacon")
	writeFile(t, filepath.Join(dir, "build_profiles", "scout.yml"),
		"name: scout\ntarget: linux/arm64\nrelease: true\nenabled_features: [http, beacon]\n")
	pm := engineMock(t, filepath.Join(dir, "target_output"))

	res := runForge(t, dir, pm, "build", "--profile", "scout", "--listener", "socket")
	require.Equal(t, 0, res.code, res.stderr)

	loaderSrc := readFile(t, filepath.Join(dir, "loader", "loader.go"))
	assert.Contains(t, loaderSrc, "beacon.Init()")
	assert.Contains(t, loaderSrc, "socket.Init()")
	assert.NotContains(t, loaderSrc, "http.Init()")

	run := streamCall(pm.GetCalls(), "run")
	require.NotNil(t, run)
	assert.True(t, slices.Contains(run, "FEATURES=beacon,socket"), "run args: %v", run)
	assert.True(t, slices.Contains(run, "TARGET=linux/arm64"), "run args: %v", run)
	assert.NotNil(t, streamCall(pm.GetCalls(), "build"), "image is built when not cached")

	var manifest builder.Manifest
	require.NoError(t, json.Unmarshal([]byte(readFile(t, filepath.Join(dir, "target_output", builder.ManifestFile))), &manifest))
	assert.Equal(t, "scout", manifest.Profile)
	assert.Equal(t, []string{"beacon", "socket"}, manifest.Features)
	require.Len(t, manifest.Artifacts, 1)
	assert.Equal(t, "scout", manifest.Artifacts[0].Name)

	assert.Contains(t, res.stdout, "STEP 4/4")
	assert.Contains(t, res.stdout, "build id="+manifest.BuildID)
}

func TestBuild_UnresolvableFeatureStopsBeforeEngine(t *testing.T) {
	dir := newProject(t)
	writeFile(t, filepath.Join(dir, "build_profiles", "scout.yml"),
		"name: scout\nenabled_features: [ghost]\n")
	pm := engineMock(t, filepath.Join(dir, "target_output"))
	before := readFile(t, filepath.Join(dir, "loader", "loader.go"))

	res := runForge(t, dir, pm, "build", "--profile", "scout")
	assert.Equal(t, 1, res.code)
	assert.Contains(t, res.stderr, "feature package missing")
	assert.Empty(t, pm.GetCalls())
	assert.Equal(t, before, readFile(t, filepath.Join(dir, "loader", "loader.go")))
}

func TestBuild_PassiveFeatureStopsBeforeEngine(t *testing.T) {
	dir := newProject(t)
	writeFile(t, filepath.Join(dir, "features", "registry", "registry.go"), "package registry\n\nvar Names []string\n")
	writeFile(t, filepath.Join(dir, "build_profiles", "scout.yml"),
		"name: scout\nenabled_features: [registry]\n")
	pm := engineMock(t, filepath.Join(dir, "target_output"))
	before := readFile(t, filepath.Join(dir, "loader", "loader.go"))

	res := runForge(t, dir, pm, "build", "--profile", "scout")
	assert.Equal(t, 1, res.code)
	assert.Contains(t, res.stderr, "feature entry point missing")
	assert.Empty(t, pm.GetCalls())
	assert.Equal(t, before, readFile(t, filepath.Join(dir, "loader", "loader.go")))
}

func TestBuild_EngineUnreachable(t *testing.T) {
	dir := newProject(t)
	pm := &infra.MockProcessManager{
		RunFunc: func(ctx context.Context, name string, args ...string) ([]byte, error) {
			return nil, errors.New("Cannot connect to the Docker daemon")
		},
	}

	res := runForge(t, dir, pm, "build", "--profile", "default")
	assert.Equal(t, 1, res.code)
	assert.Contains(t, res.stderr, "ERROR: engine unreachable")
	assert.Contains(t, res.stderr, "FIX:")
}

func TestBuild_UnknownProfile(t *testing.T) {
	dir := newProject(t)

	res := runForge(t, dir, nil, "build", "--profile", "nope")
	assert.Equal(t, 1, res.code)
	assert.Contains(t, res.stderr, "profile not found")
	assert.Contains(t, res.stderr, "default")
}

func TestBuild_RequiresProfile(t *testing.T) {
	dir := newProject(t)

	res := runForge(t, dir, nil, "build")
	assert.Equal(t, 1, res.code)
}

// =============================================================================
// clean
// =============================================================================

func TestClean_DryRun(t *testing.T) {
	dir := newProject(t)
	pm := engineMock(t, filepath.Join(dir, "target_output"))

	res := runForge(t, dir, pm, "clean", "--dry-run", "--keep", "forge-builder")
	require.Equal(t, 0, res.code, res.stderr)

	assert.Contains(t, res.stdout, "OK: Would remove forge-old")
	assert.Contains(t, res.stdout, "Kept forge-builder")
	assert.NotContains(t, res.stdout, "postgres")
	for _, c := range pm.GetCalls() {
		assert.NotEqual(t, "rmi", c.Args[0])
	}
}

func TestClean_AllRemovesOutput(t *testing.T) {
	dir := newProject(t)
	out := filepath.Join(dir, "target_output")
	writeFile(t, filepath.Join(out, "scout"), "ELF\n")
	pm := engineMock(t, out)

	res := runForge(t, dir, pm, "clean", "--all")
	require.Equal(t, 0, res.code, res.stderr)

	assert.NoDirExists(t, out)
	assert.Contains(t, res.stdout, "SUMMARY: removed=2 failed=0")
}

// =============================================================================
// helpers
// =============================================================================

func TestModuleRel(t *testing.T) {
	a := &app{}
	a.layout.Root = filepath.FromSlash("/work/agent")

	rel, err := a.moduleRel(filepath.FromSlash("/work/agent/pkg/features"))
	require.NoError(t, err)
	assert.Equal(t, "pkg/features", rel)

	for _, dir := range []string{"/work/agent", "/work/other", "/work"} {
		_, err := a.moduleRel(filepath.FromSlash(dir))
		assert.Error(t, err, dir)
	}
}
