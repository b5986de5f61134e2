// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package builder hands a reconciled build profile to the isolated build
// environment and collects what it produces.
//
// # Description
//
// A build is four steps:
//
//  1. Check the container engine answers (`<engine> info`).
//  2. Reuse the environment image if it exists, otherwise build it once.
//     The image is keyed only by name: changing the profile never
//     invalidates it.
//  3. Run the image with the project mounted at /src and the output
//     directory at /output. Everything that varies per build (profile,
//     target, flags, features) is passed as run-time environment.
//  4. List the artifacts this run created or rewrote and write the
//     forge-build.json manifest and forge-build.prom metrics. Files left
//     by earlier builds stay on disk but are not reported.
//
// Failures are *EnvironmentError values whose Kind tells the operator
// whether to start the engine, fix the image or fix the code.
package builder

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/AleutianAI/AleutianForge/cmd/forge/internal/infra"
	"github.com/AleutianAI/AleutianForge/cmd/forge/internal/profile"
	"github.com/AleutianAI/AleutianForge/cmd/forge/internal/util"
	"github.com/AleutianAI/AleutianForge/pkg/logging"
)

// Container paths of the build environment contract.
const (
	ContainerOutputDir = "/output"
	ContainerSourceDir = "/src"
)

// Build parameter names of the build environment contract.
const (
	ParamProfile  = "PROFILE"
	ParamTarget   = "TARGET"
	ParamRelease  = "RELEASE"
	ParamStrip    = "STRIP"
	ParamFeatures = "FEATURES"
)

// Options configures one build.
type Options struct {
	// Image is the environment image name.
	Image string

	// ProjectDir is the agent project, used as build context and /src mount.
	ProjectDir string

	// Dockerfile overrides <ProjectDir>/Dockerfile when set.
	Dockerfile string

	// OutputDir receives the artifacts; created if missing.
	OutputDir string

	// DefaultTarget applies when the profile sets no target.
	DefaultTarget string

	// ExtraArgs are appended after the standard parameters.
	ExtraArgs *util.BuildArgs

	// Rebuild forces a fresh environment image.
	Rebuild bool

	// Stdout and Stderr receive engine output. Nil discards it.
	Stdout io.Writer
	Stderr io.Writer
}

// Builder runs builds against one container engine.
type Builder struct {
	engine *infra.Engine
	logger *logging.Logger

	now   func() time.Time
	newID func() string
}

// New returns a Builder using engine.
func New(engine *infra.Engine, logger *logging.Logger) *Builder {
	if logger == nil {
		logger = logging.Nop()
	}
	return &Builder{
		engine: engine,
		logger: logger,
		now:    time.Now,
		newID:  func() string { return uuid.New().String() },
	}
}

// CheckEngine fails with an Unreachable EnvironmentError when the engine
// does not answer. It never tries to start the engine.
func (b *Builder) CheckEngine(ctx context.Context) error {
	if err := b.engine.Info(ctx); err != nil {
		return &EnvironmentError{
			Kind:        Unreachable,
			Message:     fmt.Sprintf("%s is not reachable", b.engine.Binary),
			Remediation: unreachableRemediation(b.engine.Binary),
			Err:         err,
		}
	}
	return nil
}

// Params renders the standard build parameters for p, followed by extra.
func Params(p *profile.BuildProfile, target string, extra *util.BuildArgs) (*util.BuildArgs, error) {
	args, err := util.NewBuildArgs(
		util.BuildArg{Key: ParamProfile, Value: p.Name},
		util.BuildArg{Key: ParamTarget, Value: target},
		util.BuildArg{Key: ParamRelease, Value: strconv.FormatBool(p.Release)},
		util.BuildArg{Key: ParamStrip, Value: strconv.FormatBool(p.Strip)},
		util.BuildArg{Key: ParamFeatures, Value: p.FeatureList()},
	)
	if err != nil {
		return nil, err
	}
	if extra == nil {
		return args, nil
	}
	for _, a := range extra.All() {
		if args.Has(a.Key) {
			return nil, fmt.Errorf("extra build argument %s would override a standard parameter", a.Key)
		}
		if err := args.Set(a.Key, a.Value, a.Sensitive); err != nil {
			return nil, err
		}
	}
	return args, nil
}

// Build runs the whole pipeline for p and returns the written manifest.
//
// # Inputs
//
//   - ctx: Cancels engine commands.
//   - p: Profile already reconciled against the feature map.
//   - opts: Image, directories and output streams.
//
// # Outputs
//
//   - *Manifest: What was built, also written to <OutputDir>/forge-build.json
//     with its metrics in <OutputDir>/forge-build.prom.
//   - error: *EnvironmentError for engine failures, or an I/O error.
func (b *Builder) Build(ctx context.Context, p *profile.BuildProfile, opts Options) (*Manifest, error) {
	started := b.now()
	target := p.ResolvedTarget(opts.DefaultTarget)

	params, err := Params(p, target, opts.ExtraArgs)
	if err != nil {
		return nil, err
	}

	projectDir, err := filepath.Abs(opts.ProjectDir)
	if err != nil {
		return nil, fmt.Errorf("resolve project dir: %w", err)
	}
	outputDir, err := filepath.Abs(opts.OutputDir)
	if err != nil {
		return nil, fmt.Errorf("resolve output dir: %w", err)
	}

	if err := b.CheckEngine(ctx); err != nil {
		return nil, err
	}

	reused, err := b.ensureImage(ctx, opts, projectDir, params)
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}
	before, err := TakeSnapshot(outputDir)
	if err != nil {
		return nil, err
	}

	b.logger.Info("running build", "profile", p.Name, "target", target, "features", p.FeatureList())
	run := infra.RunRequest{
		Image: opts.Image,
		Mounts: []infra.Mount{
			{Source: outputDir, Target: ContainerOutputDir},
			{Source: projectDir, Target: ContainerSourceDir},
		},
		Env: params,
	}
	if err := b.engine.RunContainer(ctx, run, opts.Stdout, opts.Stderr); err != nil {
		return nil, &EnvironmentError{
			Kind:        RunFailed,
			Message:     fmt.Sprintf("compiling profile %q for %s failed", p.Name, target),
			Remediation: "Fix the compile errors shown above and run the build again.",
			Err:         err,
		}
	}

	artifacts, err := ArtifactsSince(outputDir, before)
	if err != nil {
		return nil, err
	}

	m := &Manifest{
		BuildID:     b.newID(),
		Profile:     p.Name,
		Target:      target,
		Release:     p.Release,
		Strip:       p.Strip,
		Features:    append([]string(nil), p.EnabledFeatures...),
		Image:       opts.Image,
		ImageReused: reused,
		Artifacts:   artifacts,
		StartedAt:   started.UTC(),
		FinishedAt:  b.now().UTC(),
	}
	if err := WriteManifest(outputDir, m); err != nil {
		return nil, err
	}
	if err := WriteMetrics(outputDir, m); err != nil {
		return nil, err
	}
	b.logger.Info("build finished", "build_id", m.BuildID, "artifacts", len(artifacts))
	return m, nil
}

// ensureImage builds the environment image unless it is cached.
// Returns true when the cached image was reused.
func (b *Builder) ensureImage(ctx context.Context, opts Options, projectDir string, params *util.BuildArgs) (bool, error) {
	if opts.Rebuild {
		b.logger.Info("removing environment image for rebuild", "image", opts.Image)
		if err := b.engine.RemoveImage(ctx, opts.Image); err != nil {
			b.logger.Warn("failed to remove image", "image", opts.Image, "error", err)
		}
	} else {
		exists, err := b.engine.ImageExists(ctx, opts.Image)
		if err != nil {
			return false, &EnvironmentError{
				Kind:        Unreachable,
				Message:     fmt.Sprintf("could not list images for %s", opts.Image),
				Remediation: unreachableRemediation(b.engine.Binary),
				Err:         err,
			}
		}
		if exists {
			b.logger.Info("reusing environment image", "image", opts.Image)
			return true, nil
		}
	}

	b.logger.Info("building environment image", "image", opts.Image)
	req := infra.BuildImageRequest{
		Image:      opts.Image,
		ContextDir: projectDir,
		Dockerfile: opts.Dockerfile,
		Args:       params,
	}
	if err := b.engine.BuildImage(ctx, req, opts.Stdout, opts.Stderr); err != nil {
		return false, &EnvironmentError{
			Kind:        ImageBuildFailed,
			Message:     fmt.Sprintf("building image %s failed", opts.Image),
			Remediation: "Check the Dockerfile and the engine output above, then run the build again.",
			Err:         err,
		}
	}
	return false, nil
}
