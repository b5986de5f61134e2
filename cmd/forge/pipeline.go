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
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/AleutianAI/AleutianForge/cmd/forge/internal/featuremap"
	"github.com/AleutianAI/AleutianForge/cmd/forge/internal/loader"
	"github.com/AleutianAI/AleutianForge/cmd/forge/internal/patcher"
	"github.com/AleutianAI/AleutianForge/cmd/forge/internal/profile"
	"github.com/AleutianAI/AleutianForge/cmd/forge/internal/skeleton"
)

// wireResult reports what wiring a feature map into the project changed.
type wireResult struct {
	LoaderChanged    bool
	Entry            *patcher.PatchResult
	FeaturesDeclared bool
}

// wire generates the loader for m and patches the entry file to run it.
//
// # Description
//
// The loader is generated first: a map that cannot be resolved fails
// before the entry file is touched. The entry file is then moved to
// FullyPatched and given the blank import of the shared features package.
func (a *app) wire(ctx context.Context, m *featuremap.Map) (*wireResult, error) {
	modulePath, err := loader.ModulePath(a.layout.GoMod)
	if err != nil {
		return nil, err
	}
	featuresRel, err := a.moduleRel(a.layout.FeaturesDir)
	if err != nil {
		return nil, err
	}
	loaderRel, err := a.moduleRel(a.layout.LoaderDir)
	if err != nil {
		return nil, err
	}

	gen := &loader.Generator{
		ModulePath:  modulePath,
		FeaturesDir: featuresRel,
		Package:     filepath.Base(a.layout.LoaderDir),
		ProjectRoot: a.layout.Root,
	}
	changed, err := gen.WriteFile(a.layout.LoaderFile, m)
	if err != nil {
		return nil, err
	}
	a.log.Debug("loader generated", "path", a.layout.LoaderFile, "features", m.Len(), "changed", changed)

	p := patcher.New(modulePath, loaderRel, featuresRel)
	p.Logger = a.log.With("entry", a.layout.EntryFile)
	entry, err := p.Patch(ctx, a.layout.EntryFile)
	if err != nil {
		return nil, err
	}
	declared, err := p.EnsureFeaturesDeclared(ctx, a.layout.EntryFile)
	if err != nil {
		return nil, err
	}
	return &wireResult{LoaderChanged: changed, Entry: entry, FeaturesDeclared: declared.Changed}, nil
}

// printWire reports a wireResult.
func (a *app) printWire(res *wireResult) {
	if res.LoaderChanged {
		a.out.Success("Loader written to " + a.display(a.layout.LoaderFile))
	} else {
		a.out.Muted("Loader unchanged")
	}
	switch {
	case res.Entry.Changed:
		a.out.Success(fmt.Sprintf("Patched %s (%s → %s)", a.display(res.Entry.Path), res.Entry.Before, res.Entry.After))
	case res.FeaturesDeclared:
		a.out.Success("Declared the features package in " + a.display(res.Entry.Path))
	default:
		a.out.Muted("Entry file already patched")
	}
}

// moduleRel returns dir relative to the project root, slash-separated.
// Generated imports are built from it, so it must stay inside the module.
func (a *app) moduleRel(dir string) (string, error) {
	rel, err := filepath.Rel(a.layout.Root, dir)
	if err != nil {
		return "", fmt.Errorf("resolve %s: %w", dir, err)
	}
	rel = filepath.ToSlash(rel)
	if rel == "." || rel == ".." || strings.HasPrefix(rel, "../") {
		return "", fmt.Errorf("%s must be a subdirectory of the project %s", dir, a.layout.Root)
	}
	return rel, nil
}

// display shortens path for output when it is inside the project.
func (a *app) display(path string) string {
	if rel, err := filepath.Rel(a.layout.Root, path); err == nil && !strings.HasPrefix(rel, "..") {
		return rel
	}
	return path
}

// loadProfile finds and loads the named build profile.
func (a *app) loadProfile(name string) (*profile.BuildProfile, error) {
	path, err := profile.Find(a.layout.ProfilesDir, name)
	if err != nil {
		return nil, err
	}
	return profile.Load(path)
}

// registeredMap builds the feature map of every registered feature
// package: path is the package name, and the call is present only for
// packages that declare the entry point.
func registeredMap(features []skeleton.Feature) (*featuremap.Map, error) {
	m := featuremap.New()
	for _, f := range features {
		call := ""
		if f.HasInit {
			call = featuremap.DefaultCall
		}
		if err := m.Set(f.Name, featuremap.NewEntry(f.Name, call)); err != nil {
			return nil, err
		}
	}
	return m, nil
}
