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
	"github.com/AleutianAI/AleutianForge/cmd/forge/internal/featuremap"
	"github.com/leodido/structcli"
	"github.com/spf13/cobra"
)

// GenerateOptions defines flags for the generate command.
type GenerateOptions struct {
	Profile string `flag:"profile" flagshort:"p" flagdescr:"Restrict the feature map to this profile's enabled features"`
}

func (o *GenerateOptions) Attach(c *cobra.Command) error {
	return structcli.Define(c, o)
}

// generateCmd writes the loader from feature_map.yml and patches the
// entry file. With --profile only the profile's features are wired, in
// the profile's order; a name missing from the map fails the command
// before anything is written.
func generateCmd(a *app) *cobra.Command {
	opts := &GenerateOptions{}

	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate the feature loader and patch main.go",
		Args:  cobra.NoArgs,
		PreRunE: func(c *cobra.Command, args []string) error {
			return structcli.Unmarshal(c, opts)
		},
		RunE: func(c *cobra.Command, args []string) error {
			m, err := featuremap.Read(a.layout.FeatureMap)
			if err != nil {
				return err
			}
			if opts.Profile != "" {
				p, err := a.loadProfile(opts.Profile)
				if err != nil {
					return err
				}
				if m, err = m.Restrict(p.EnabledFeatures); err != nil {
					return err
				}
				a.out.Info("Profile " + p.Name + ": " + p.FeatureList())
			}

			wired, err := a.wire(c.Context(), m)
			if err != nil {
				return err
			}
			a.printWire(wired)
			return nil
		},
	}

	if err := opts.Attach(cmd); err != nil {
		panic(err)
	}
	return cmd
}
