// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package skeleton writes new agent projects and feature packages from
// embedded templates, and lists the features a project has.
package skeleton

import (
	"bytes"
	"context"
	"embed"
	"errors"
	"fmt"
	"go/token"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"text/template"

	"golang.org/x/mod/module"

	"github.com/AleutianAI/AleutianForge/cmd/forge/internal/scanner"
	"github.com/AleutianAI/AleutianForge/cmd/forge/internal/util"
)

//go:embed templates
var templates embed.FS

const (
	projectTemplates = "templates/project"
	featureTemplate  = "templates/feature/feature.go.tmpl"
	templateExt      = ".tmpl"

	// DefaultGoVersion is written to new go.mod files and picks the build image.
	DefaultGoVersion = "1.22"
)

// Sentinel errors for project and feature creation.
var (
	ErrInvalidFeatureName = errors.New("invalid feature name")
	ErrFeatureExists      = errors.New("feature already exists")
	ErrInvalidModule      = errors.New("invalid module path")
)

// featureNamePattern keeps feature names usable as package, directory and
// file names on every platform.
var featureNamePattern = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)

// reservedFeatureNames collide with packages of the project layout.
var reservedFeatureNames = map[string]bool{
	"main":     true,
	"init":     true,
	"features": true,
	"loader":   true,
	"agent":    true,
	"comms":    true,
}

// renamed maps template names that cannot be stored as-is.
var renamed = map[string]string{
	"env":       ".env",
	"gitignore": ".gitignore",
}

// executable lists generated files that need the exec bit.
var executable = map[string]bool{
	"build.sh": true,
}

// ProjectData fills the project templates.
type ProjectData struct {
	// Name is the agent name used in artifact names.
	Name string

	// Module is the Go module path written to go.mod.
	Module string

	// GoVersion defaults to DefaultGoVersion.
	GoVersion string

	// Target is the default GOOS/GOARCH of the default profile.
	Target string
}

// Result lists the files Init created and the ones it left alone,
// relative to the project root and slash-separated.
type Result struct {
	Written []string
	Skipped []string
}

// Init writes a new project into root.
//
// # Description
//
// Every template under templates/project is rendered to the same relative
// path without the .tmpl suffix. Files that already exist are never
// overwritten; they are reported in Result.Skipped, so Init can be re-run
// to restore deleted files.
//
// # Outputs
//
//   - *Result: Files written and skipped, in lexical order.
//   - error: ErrInvalidModule, or the first render or write failure.
func Init(root string, data ProjectData) (*Result, error) {
	if data.GoVersion == "" {
		data.GoVersion = DefaultGoVersion
	}
	if err := module.CheckImportPath(data.Module); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidModule, err)
	}

	result := &Result{}
	err := fs.WalkDir(templates, projectTemplates, func(p string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		rel := outputName(strings.TrimPrefix(p, projectTemplates+"/"))
		dst := filepath.Join(root, filepath.FromSlash(rel))
		if _, statErr := os.Stat(dst); statErr == nil {
			result.Skipped = append(result.Skipped, rel)
			return nil
		}

		content, err := render(p, data)
		if err != nil {
			return err
		}
		perm := os.FileMode(0644)
		if executable[rel] {
			perm = 0755
		}
		if err := util.WriteFileAtomic(dst, content, perm); err != nil {
			return fmt.Errorf("write %s: %w", rel, err)
		}
		result.Written = append(result.Written, rel)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// ValidateFeatureName checks that name can be a feature package.
func ValidateFeatureName(name string) error {
	switch {
	case !featureNamePattern.MatchString(name):
		return fmt.Errorf("%w: %q must be lower case letters, digits and underscores, starting with a letter", ErrInvalidFeatureName, name)
	case token.Lookup(name).IsKeyword():
		return fmt.Errorf("%w: %q is a Go keyword", ErrInvalidFeatureName, name)
	case reservedFeatureNames[name]:
		return fmt.Errorf("%w: %q is reserved by the project layout", ErrInvalidFeatureName, name)
	}
	return nil
}

// NewFeature writes <featuresDir>/<name>/<name>.go exposing Init.
//
// # Outputs
//
//   - string: Path of the written file.
//   - error: ErrInvalidFeatureName, ErrFeatureExists or a write failure.
func NewFeature(featuresDir, modulePath, name string) (string, error) {
	if err := ValidateFeatureName(name); err != nil {
		return "", err
	}
	dir := filepath.Join(featuresDir, name)
	if _, err := os.Stat(dir); err == nil {
		return "", fmt.Errorf("%w: %s", ErrFeatureExists, dir)
	}

	content, err := render(featureTemplate, struct {
		Module  string
		Feature string
	}{Module: modulePath, Feature: name})
	if err != nil {
		return "", err
	}

	dst := filepath.Join(dir, name+".go")
	if err := util.WriteFileAtomic(dst, content, 0644); err != nil {
		return "", fmt.Errorf("write %s: %w", dst, err)
	}
	return dst, nil
}

// Feature is one registered feature package.
type Feature struct {
	// Name is the package directory name.
	Name string

	// Files are the package's Go source files, slash-separated and
	// relative to the features root.
	Files []string

	// HasInit reports whether any file declares the entry point.
	HasInit bool
}

// ListFeatures returns the registered features: the subdirectories of
// featuresDir holding Go source, sorted by name.
func ListFeatures(ctx context.Context, featuresDir string, detector scanner.InitDetector) ([]Feature, error) {
	if detector == nil {
		detector = scanner.SyntaxDetector{}
	}
	entries, err := os.ReadDir(featuresDir)
	if err != nil {
		return nil, fmt.Errorf("list features: %w", err)
	}

	var out []Feature
	for _, e := range entries {
		if !e.IsDir() || scanner.SkipDir(e.Name()) {
			continue
		}
		f, err := inspectFeature(ctx, featuresDir, e.Name(), detector)
		if err != nil {
			return nil, err
		}
		if len(f.Files) > 0 {
			out = append(out, f)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// Names returns the names of features.
func Names(features []Feature) []string {
	names := make([]string, len(features))
	for i, f := range features {
		names[i] = f.Name
	}
	return names
}

func inspectFeature(ctx context.Context, root, name string, detector scanner.InitDetector) (Feature, error) {
	f := Feature{Name: name}
	files, err := os.ReadDir(filepath.Join(root, name))
	if err != nil {
		return f, fmt.Errorf("list feature %s: %w", name, err)
	}
	for _, file := range files {
		if !file.Type().IsRegular() || !scanner.IsSource(file.Name()) {
			continue
		}
		f.Files = append(f.Files, path.Join(name, file.Name()))
		if f.HasInit {
			continue
		}
		full := filepath.Join(root, name, file.Name())
		src, err := os.ReadFile(full)
		if err != nil {
			return f, fmt.Errorf("read %s: %w", full, err)
		}
		has, err := detector.HasEntryPoint(ctx, full, src)
		if err != nil {
			return f, err
		}
		f.HasInit = has
	}
	return f, nil
}

func outputName(rel string) string {
	rel = strings.TrimSuffix(rel, templateExt)
	dir, base := path.Split(rel)
	if to, ok := renamed[base]; ok {
		base = to
	}
	return dir + base
}

func render(name string, data any) ([]byte, error) {
	raw, err := templates.ReadFile(name)
	if err != nil {
		return nil, err
	}
	tmpl, err := template.New(path.Base(name)).Option("missingkey=error").Parse(string(raw))
	if err != nil {
		return nil, fmt.Errorf("parse template %s: %w", name, err)
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return nil, fmt.Errorf("render template %s: %w", name, err)
	}
	return buf.Bytes(), nil
}
