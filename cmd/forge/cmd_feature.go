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
	"errors"
	"io/fs"

	"github.com/AleutianAI/AleutianForge/cmd/forge/internal/loader"
	"github.com/AleutianAI/AleutianForge/cmd/forge/internal/scanner"
	"github.com/AleutianAI/AleutianForge/cmd/forge/internal/skeleton"
	"github.com/leodido/structcli"
	"github.com/spf13/cobra"
)

func featureCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "feature",
		Short: "Create and list feature packages",
	}
	cmd.AddCommand(featureNewCmd(a))
	cmd.AddCommand(featureListCmd(a))
	return cmd
}

// FeatureNewOptions defines flags for the feature new command.
type FeatureNewOptions struct {
	Name string `flag:"name" flagshort:"n" flagdescr:"Feature package name (lower-case Go identifier)" flagrequired:"true"`
}

func (o *FeatureNewOptions) Attach(c *cobra.Command) error {
	return structcli.Define(c, o)
}

// featureNewCmd writes features/<name>/<name>.go and rewires the loader
// with every registered feature.
func featureNewCmd(a *app) *cobra.Command {
	opts := &FeatureNewOptions{}

	cmd := &cobra.Command{
		Use:   "new",
		Short: "Create a feature package with an Init entry point",
		Args:  cobra.NoArgs,
		PreRunE: func(c *cobra.Command, args []string) error {
			return structcli.Unmarshal(c, opts)
		},
		RunE: func(c *cobra.Command, args []string) error {
			modulePath, err := loader.ModulePath(a.layout.GoMod)
			if err != nil {
				return err
			}
			path, err := skeleton.NewFeature(a.layout.FeaturesDir, modulePath, opts.Name)
			if err != nil {
				return err
			}
			a.out.Success("Created " + a.display(path))

			features, err := skeleton.ListFeatures(c.Context(), a.layout.FeaturesDir, scanner.SyntaxDetector{})
			if err != nil {
				return err
			}
			m, err := registeredMap(features)
			if err != nil {
				return err
			}
			wired, err := a.wire(c.Context(), m)
			if err != nil {
				return err
			}
			a.printWire(wired)
			a.log.Info("feature created", "feature", opts.Name, "registered", len(features))
			return nil
		},
	}

	if err := opts.Attach(cmd); err != nil {
		panic(err)
	}
	return cmd
}

// FeatureListOptions defines flags for the feature list command.
type FeatureListOptions struct {
	Detector string `flag:"detector" flagdescr:"Entry point detector: syntax or text (default: syntax)"`
}

func (o *FeatureListOptions) Attach(c *cobra.Command) error {
	return structcli.Define(c, o)
}

func featureListCmd(a *app) *cobra.Command {
	opts := &FeatureListOptions{}

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List registered feature packages",
		Args:  cobra.NoArgs,
		PreRunE: func(c *cobra.Command, args []string) error {
			return structcli.Unmarshal(c, opts)
		},
		RunE: func(c *cobra.Command, args []string) error {
			detector, err := scanner.DetectorByName(opts.Detector)
			if err != nil {
				return err
			}
			features, err := skeleton.ListFeatures(c.Context(), a.layout.FeaturesDir, detector)
			if errors.Is(err, fs.ErrNotExist) {
				a.out.Warning("No features directory at " + a.display(a.layout.FeaturesDir))
				return nil
			}
			if err != nil {
				return err
			}
			if len(features) == 0 {
				a.out.Muted("No features registered")
				return nil
			}
			for _, f := range features {
				a.out.FeatureRow(f.Name, a.display(a.layout.FeaturesDir)+"/"+f.Name, f.HasInit)
			}
			return nil
		},
	}

	if err := opts.Attach(cmd); err != nil {
		panic(err)
	}
	return cmd
}
