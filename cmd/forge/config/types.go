// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package config holds forge's tool settings: where the agent project keeps
// its files and how the build environment is reached.
package config

import (
	"path/filepath"
)

// FileName is the optional per-project configuration file.
const FileName = "forge.yaml"

type ForgeConfig struct {
	// Engine is the container engine binary (docker or podman)
	Engine string `yaml:"engine" validate:"nonblank"`

	// Image is the cached build environment image name
	Image string `yaml:"image" validate:"nonblank"`

	// ImagePrefix selects the images `forge clean` may remove
	ImagePrefix string `yaml:"image_prefix" validate:"nonblank"`

	// Dockerfile overrides <project>/Dockerfile
	Dockerfile string `yaml:"dockerfile,omitempty"`

	// OutputDir receives build artifacts, relative to the project
	OutputDir string `yaml:"output_dir" validate:"nonblank"`

	// DefaultTarget is the GOOS/GOARCH used when a profile sets none
	DefaultTarget string `yaml:"default_target" validate:"target"`

	ProfilesDir string `yaml:"profiles_dir" validate:"nonblank"`
	FeaturesDir string `yaml:"features_dir" validate:"nonblank,inproject"`
	LoaderDir   string `yaml:"loader_dir" validate:"nonblank,inproject"`
	EntryFile   string `yaml:"entry_file" validate:"nonblank"`
	FeatureMap  string `yaml:"feature_map" validate:"nonblank"`

	// ListenerFeatures are mutually exclusive; `build --listener` keeps one
	ListenerFeatures []string `yaml:"listener_features" validate:"dive,nonblank"`

	// ExtraBuildArgs are environment keys forwarded to the build when set
	ExtraBuildArgs []string `yaml:"extra_build_args" validate:"dive,envkey"`

	Logging LoggingConfig `yaml:"logging"`
}

type LoggingConfig struct {
	Level string `yaml:"level" validate:"omitempty,oneof=debug info warn warning error"` // debug, info, warn, error
	File  bool   `yaml:"file"`                                                           // also write JSON logs under .forge/logs
}

// Layout is the set of absolute paths of one agent project.
type Layout struct {
	Root        string
	GoMod       string
	EntryFile   string
	FeaturesDir string
	LoaderDir   string
	LoaderFile  string
	ProfilesDir string
	FeatureMap  string
	OutputDir   string
	Dockerfile  string
	DotEnv      string
	LogDir      string
}

// Layout resolves the configured locations against root.
func (c *ForgeConfig) Layout(root string) Layout {
	join := func(rel string) string {
		if filepath.IsAbs(rel) {
			return rel
		}
		return filepath.Join(root, filepath.FromSlash(rel))
	}
	dockerfile := c.Dockerfile
	if dockerfile == "" {
		dockerfile = "Dockerfile"
	}
	loaderDir := join(c.LoaderDir)
	return Layout{
		Root:        root,
		GoMod:       join("go.mod"),
		EntryFile:   join(c.EntryFile),
		FeaturesDir: join(c.FeaturesDir),
		LoaderDir:   loaderDir,
		LoaderFile:  filepath.Join(loaderDir, filepath.Base(loaderDir)+".go"),
		ProfilesDir: join(c.ProfilesDir),
		FeatureMap:  join(c.FeatureMap),
		OutputDir:   join(c.OutputDir),
		Dockerfile:  join(dockerfile),
		DotEnv:      join(".env"),
		LogDir:      join(filepath.Join(".forge", "logs")),
	}
}

func DefaultConfig() ForgeConfig {
	return ForgeConfig{
		Engine:           "docker",
		Image:            "forge-builder",
		ImagePrefix:      "forge-",
		OutputDir:        "target_output",
		DefaultTarget:    "linux/amd64",
		ProfilesDir:      "build_profiles",
		FeaturesDir:      "features",
		LoaderDir:        "loader",
		EntryFile:        "main.go",
		FeatureMap:       "feature_map.yml",
		ListenerFeatures: []string{"http", "socket"},
		ExtraBuildArgs:   []string{"SERVER_IP", "LISTENER_PORT"},
		Logging: LoggingConfig{
			Level: "info",
			File:  false,
		},
	}
}
