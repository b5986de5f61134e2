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
	"fmt"
	"strings"

	"github.com/AleutianAI/AleutianForge/cmd/forge/internal/builder"
	"github.com/AleutianAI/AleutianForge/cmd/forge/internal/featuremap"
	"github.com/AleutianAI/AleutianForge/cmd/forge/internal/infra"
	"github.com/leodido/structcli"
	"github.com/spf13/cobra"
)

// BuildOptions defines flags for the build command.
type BuildOptions struct {
	Profile  string `flag:"profile" flagshort:"p" flagdescr:"Build profile name" flagrequired:"true"`
	Listener string `flag:"listener" flagshort:"l" flagdescr:"Keep only this listener feature (e.g. http or socket); it must be listed under listener_features in forge.yaml"`
	Rebuild  bool   `flag:"rebuild" flagdescr:"Rebuild the build environment image even if cached"`
}

func (o *BuildOptions) Attach(c *cobra.Command) error {
	return structcli.Define(c, o)
}

// buildCmd compiles the agent for one profile.
//
// # Description
//
// Runs the whole pipeline:
//
//  1. Load the profile and apply the listener override.
//  2. Synthesize the feature map from the enabled names.
//  3. Generate the loader and patch the entry file.
//  4. Compile inside the cached build environment.
//
// # Examples
//
//	forge build --profile default
//	forge build --profile scout --listener socket
//	forge build --profile scout --rebuild
func buildCmd(a *app) *cobra.Command {
	opts := &BuildOptions{}

	cmd := &cobra.Command{
		Use:   "build",
		Short: "Compile the agent for a build profile",
		Args:  cobra.NoArgs,
		PreRunE: func(c *cobra.Command, args []string) error {
			return structcli.Unmarshal(c, opts)
		},
		RunE: func(c *cobra.Command, args []string) error {
			return a.runBuild(c, opts)
		},
	}

	if err := opts.Attach(cmd); err != nil {
		panic(err)
	}
	return cmd
}

func (a *app) runBuild(c *cobra.Command, opts *BuildOptions) error {
	ctx := c.Context()
	const steps = 4

	a.out.Step(1, steps, "Loading profile "+opts.Profile)
	p, err := a.loadProfile(opts.Profile)
	if err != nil {
		return err
	}
	if opts.Listener != "" {
		if err := p.ApplyListener(opts.Listener, a.cfg.ListenerFeatures); err != nil {
			return err
		}
	}
	target := p.ResolvedTarget(a.cfg.DefaultTarget)
	a.out.KeyValue("target", target)
	a.out.KeyValue("features", p.FeatureList())

	a.out.Step(2, steps, "Resolving features")
	m, err := featuremap.Synthesize(p.EnabledFeatures)
	if err != nil {
		return err
	}

	a.out.Step(3, steps, "Wiring the loader")
	wired, err := a.wire(ctx, m)
	if err != nil {
		return err
	}
	a.printWire(wired)

	a.out.Step(4, steps, "Compiling in "+a.cfg.Image)
	extra, err := builder.ExtraArgsFromEnv(a.cfg.ExtraBuildArgs)
	if err != nil {
		return err
	}
	if extra.Len() > 0 {
		a.log.Debug("extra build args", "args", strings.Join(extra.Redacted(), " "))
	}

	b := builder.New(infra.NewEngine(a.cfg.Engine, a.pm, a.log), a.log)
	manifest, err := b.Build(ctx, p, builder.Options{
		Image:         a.cfg.Image,
		ProjectDir:    a.layout.Root,
		Dockerfile:    a.cfg.Dockerfile,
		OutputDir:     a.layout.OutputDir,
		DefaultTarget: a.cfg.DefaultTarget,
		ExtraArgs:     extra,
		Rebuild:       opts.Rebuild,
		Stdout:        a.stdout,
		Stderr:        a.stderr,
	})
	if err != nil {
		return err
	}

	if manifest.ImageReused {
		a.out.Muted("Reused cached image " + manifest.Image)
	}
	for _, art := range manifest.Artifacts {
		a.out.Success(fmt.Sprintf("%s (%d bytes)", art.Name, art.Size))
	}
	a.out.KeyValue("build id", manifest.BuildID)
	a.out.KeyValue("output", a.display(a.layout.OutputDir))
	return nil
}
