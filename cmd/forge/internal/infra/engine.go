// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package infra drives the container engine that hosts the isolated
// build environment.
//
// # Description
//
// Engine wraps the handful of engine subcommands forge relies on (info,
// images, build, run, rmi). Commands are executed through ProcessManager so
// the build pipeline can be exercised with MockProcessManager.
//
// Any engine with a docker-compatible CLI works; podman is the usual
// alternative and is selected with the engine setting.
package infra

import (
	"context"
	"io"
	"sort"
	"strings"

	"github.com/AleutianAI/AleutianForge/cmd/forge/internal/util"
	"github.com/AleutianAI/AleutianForge/pkg/logging"
)

// Mount binds a host directory into the build container.
type Mount struct {
	// Source is the absolute host path.
	Source string

	// Target is the path inside the container.
	Target string
}

// String returns the -v value, "src:dst".
func (m Mount) String() string {
	return m.Source + ":" + m.Target
}

// BuildImageRequest describes one environment image build.
type BuildImageRequest struct {
	Image      string
	ContextDir string

	// Dockerfile overrides <ContextDir>/Dockerfile when set.
	Dockerfile string

	Args *util.BuildArgs
}

// RunRequest describes one compilation run.
type RunRequest struct {
	Image  string
	Mounts []Mount
	Env    *util.BuildArgs
}

// Engine runs container engine subcommands.
type Engine struct {
	// Binary is the engine executable, e.g. "docker" or "podman".
	Binary string

	pm     ProcessManager
	logger *logging.Logger
}

// NewEngine returns an Engine using pm to execute binary.
func NewEngine(binary string, pm ProcessManager, logger *logging.Logger) *Engine {
	if logger == nil {
		logger = logging.Nop()
	}
	return &Engine{Binary: binary, pm: pm, logger: logger}
}

// Info checks that the engine daemon answers.
func (e *Engine) Info(ctx context.Context) error {
	_, err := e.pm.Run(ctx, e.Binary, "info")
	return err
}

// ImageExists reports whether a local image with the given name exists.
func (e *Engine) ImageExists(ctx context.Context, image string) (bool, error) {
	out, err := e.pm.Run(ctx, e.Binary, "images", "-q", image)
	if err != nil {
		return false, err
	}
	return strings.TrimSpace(string(out)) != "", nil
}

// BuildImage builds and tags the environment image, streaming engine output.
func (e *Engine) BuildImage(ctx context.Context, req BuildImageRequest, stdout, stderr io.Writer) error {
	args := BuildImageArgs(req)
	e.logger.Debug("building environment image", "image", req.Image, "args", req.Args.Redacted())
	return e.pm.Stream(ctx, stdout, stderr, e.Binary, args...)
}

// RunContainer runs the environment image once and removes the container.
func (e *Engine) RunContainer(ctx context.Context, req RunRequest, stdout, stderr io.Writer) error {
	args := RunArgs(req)
	e.logger.Debug("running build container", "image", req.Image, "env", req.Env.Redacted())
	return e.pm.Stream(ctx, stdout, stderr, e.Binary, args...)
}

// Repositories lists the distinct repository names of local images, sorted.
// Dangling images ("<none>") are left out.
func (e *Engine) Repositories(ctx context.Context) ([]string, error) {
	out, err := e.pm.Run(ctx, e.Binary, "images", "--format", "{{.Repository}}")
	if err != nil {
		return nil, err
	}
	seen := make(map[string]bool)
	var repos []string
	for _, line := range strings.Split(string(out), "\n") {
		repo := strings.TrimSpace(line)
		if repo == "" || repo == "<none>" || seen[repo] {
			continue
		}
		seen[repo] = true
		repos = append(repos, repo)
	}
	sort.Strings(repos)
	return repos, nil
}

// RemoveImage force-removes an image.
func (e *Engine) RemoveImage(ctx context.Context, image string) error {
	_, err := e.pm.Run(ctx, e.Binary, "rmi", "-f", image)
	return err
}

// BuildImageArgs renders the arguments of `<engine> build`.
func BuildImageArgs(req BuildImageRequest) []string {
	args := []string{"build"}
	if req.Dockerfile != "" {
		args = append(args, "-f", req.Dockerfile)
	}
	args = append(args, req.Args.Flags("--build-arg")...)
	args = append(args, "-t", req.Image, req.ContextDir)
	return args
}

// RunArgs renders the arguments of `<engine> run`.
func RunArgs(req RunRequest) []string {
	args := []string{"run", "--rm"}
	for _, m := range req.Mounts {
		args = append(args, "-v", m.String())
	}
	args = append(args, req.Env.Flags("-e")...)
	args = append(args, req.Image)
	return args
}
