// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/AleutianAI/AleutianForge/cmd/forge/internal/util"
)

// Environment variables that override forge.yaml.
const (
	EnvEngine        = "FORGE_ENGINE"
	EnvImage         = "FORGE_IMAGE"
	EnvImagePrefix   = "FORGE_IMAGE_PREFIX"
	EnvOutputDir     = "FORGE_OUTPUT_DIR"
	EnvDefaultTarget = "FORGE_DEFAULT_TARGET"
	EnvLogLevel      = "FORGE_LOG_LEVEL"
)

// Load reads the configuration of the project at root.
//
// # Description
//
// Starts from DefaultConfig, applies <root>/forge.yaml when present, loads
// <root>/.env into the process environment (existing variables win), then
// applies FORGE_* overrides and validates the result.
//
// # Outputs
//
//   - *ForgeConfig: The effective configuration.
//   - error: Parse or validation failure, naming the offending file.
func Load(root string) (*ForgeConfig, error) {
	cfg := DefaultConfig()

	configPath := filepath.Join(root, FileName)
	data, err := os.ReadFile(configPath)
	switch {
	case err == nil:
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("failed to parse %s: %w", configPath, err)
		}
	case !errors.Is(err, os.ErrNotExist):
		return nil, fmt.Errorf("failed to read %s: %w", configPath, err)
	}

	if err := LoadDotEnv(root); err != nil {
		return nil, err
	}
	applyEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration (%s): %w", configPath, err)
	}
	return &cfg, nil
}

// LoadDotEnv loads <root>/.env without overriding variables already set.
// A missing file is not an error.
func LoadDotEnv(root string) error {
	envPath := filepath.Join(root, ".env")
	if !util.FileExists(envPath) {
		return nil
	}
	if err := godotenv.Load(envPath); err != nil {
		return fmt.Errorf("failed to load %s: %w", envPath, err)
	}
	return nil
}

func applyEnv(cfg *ForgeConfig) {
	overrides := []struct {
		key string
		dst *string
	}{
		{EnvEngine, &cfg.Engine},
		{EnvImage, &cfg.Image},
		{EnvImagePrefix, &cfg.ImagePrefix},
		{EnvOutputDir, &cfg.OutputDir},
		{EnvDefaultTarget, &cfg.DefaultTarget},
		{EnvLogLevel, &cfg.Logging.Level},
	}
	for _, o := range overrides {
		if v := strings.TrimSpace(os.Getenv(o.key)); v != "" {
			*o.dst = v
		}
	}
}

// WriteDefault writes the default configuration to path unless a file is
// already there. Returns whether it wrote.
func WriteDefault(path string) (bool, error) {
	if util.FileExists(path) {
		return false, nil
	}
	data, err := yaml.Marshal(DefaultConfig())
	if err != nil {
		return false, err
	}
	if err := util.WriteFileAtomic(path, data, 0644); err != nil {
		return false, fmt.Errorf("failed to write the config file: %w", err)
	}
	return true, nil
}
