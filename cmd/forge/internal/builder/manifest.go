// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package builder

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/AleutianAI/AleutianForge/cmd/forge/internal/util"
)

// ManifestFile is written next to the artifacts after every build.
const ManifestFile = "forge-build.json"

// Artifact is one file produced by the build.
type Artifact struct {
	Name string `json:"name"`
	Size int64  `json:"size"`
}

// Manifest records what one build produced.
type Manifest struct {
	BuildID     string     `json:"build_id"`
	Profile     string     `json:"profile"`
	Target      string     `json:"target"`
	Release     bool       `json:"release"`
	Strip       bool       `json:"strip"`
	Features    []string   `json:"features"`
	Image       string     `json:"image"`
	ImageReused bool       `json:"image_reused"`
	Artifacts   []Artifact `json:"artifacts"`
	StartedAt   time.Time  `json:"started_at"`
	FinishedAt  time.Time  `json:"finished_at"`
}

// Snapshot records the size and modification time of every candidate
// artifact in an output directory before a build runs.
type Snapshot map[string]fileStamp

type fileStamp struct {
	size int64
	mod  time.Time
}

// TakeSnapshot stamps the candidate artifacts in dir. A missing dir gives
// an empty snapshot.
func TakeSnapshot(dir string) (Snapshot, error) {
	snap := make(Snapshot)
	err := eachCandidate(dir, func(name string, info fs.FileInfo) {
		snap[name] = fileStamp{size: info.Size(), mod: info.ModTime()}
	})
	if errors.Is(err, fs.ErrNotExist) {
		return snap, nil
	}
	return snap, err
}

// ListArtifacts returns the regular files in dir, sorted by name. The
// manifest, the metrics file and hidden files are not artifacts.
func ListArtifacts(dir string) ([]Artifact, error) {
	return ArtifactsSince(dir, nil)
}

// ArtifactsSince lists the artifacts in dir that are missing from before
// or whose size or modification time changed since it was taken. Files
// left by earlier builds are not reported again.
func ArtifactsSince(dir string, before Snapshot) ([]Artifact, error) {
	artifacts := []Artifact{}
	err := eachCandidate(dir, func(name string, info fs.FileInfo) {
		if old, ok := before[name]; ok && old.size == info.Size() && old.mod.Equal(info.ModTime()) {
			return
		}
		artifacts = append(artifacts, Artifact{Name: name, Size: info.Size()})
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(artifacts, func(i, j int) bool { return artifacts[i].Name < artifacts[j].Name })
	return artifacts, nil
}

func eachCandidate(dir string, fn func(name string, info fs.FileInfo)) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("list artifacts: %w", err)
	}
	for _, e := range entries {
		name := e.Name()
		if !e.Type().IsRegular() || name == ManifestFile || name == MetricsFile || name[0] == '.' {
			continue
		}
		info, err := e.Info()
		if err != nil {
			return fmt.Errorf("stat artifact %s: %w", name, err)
		}
		fn(name, info)
	}
	return nil
}

// WriteManifest writes m to <dir>/forge-build.json.
func WriteManifest(dir string, m *Manifest) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("encode manifest: %w", err)
	}
	data = append(data, '\n')
	if err := util.WriteFileAtomic(filepath.Join(dir, ManifestFile), data, 0644); err != nil {
		return fmt.Errorf("write manifest: %w", err)
	}
	return nil
}
