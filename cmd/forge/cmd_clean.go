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
	"github.com/AleutianAI/AleutianForge/cmd/forge/internal/builder"
	"github.com/AleutianAI/AleutianForge/cmd/forge/internal/infra"
	"github.com/leodido/structcli"
	"github.com/spf13/cobra"
)

// CleanOptions defines flags for the clean command.
type CleanOptions struct {
	All    bool     `flag:"all" flagshort:"a" flagdescr:"Also remove the build output directory"`
	DryRun bool     `flag:"dry-run" flagdescr:"Show what would be removed without removing it"`
	Keep   []string `flag:"keep" flagshort:"k" flagdescr:"Image name prefixes to keep (repeatable)"`
}

func (o *CleanOptions) Attach(c *cobra.Command) error {
	return structcli.Define(c, o)
}

// cleanCmd removes cached build environment images named with the
// configured image prefix.
func cleanCmd(a *app) *cobra.Command {
	opts := &CleanOptions{}

	cmd := &cobra.Command{
		Use:   "clean",
		Short: "Remove cached build environment images",
		Args:  cobra.NoArgs,
		PreRunE: func(c *cobra.Command, args []string) error {
			return structcli.Unmarshal(c, opts)
		},
		RunE: func(c *cobra.Command, args []string) error {
			b := builder.New(infra.NewEngine(a.cfg.Engine, a.pm, a.log), a.log)
			cleanOpts := builder.CleanOptions{
				Prefix: a.cfg.ImagePrefix,
				Keep:   opts.Keep,
				DryRun: opts.DryRun,
			}
			if opts.All {
				cleanOpts.OutputDir = a.layout.OutputDir
			}
			report, err := b.Clean(c.Context(), cleanOpts)
			if err != nil {
				return err
			}

			verb := "Removed "
			if report.DryRun {
				verb = "Would remove "
			}
			for _, image := range report.Removed {
				a.out.Success(verb + image)
			}
			for _, image := range report.Kept {
				a.out.Info("Kept " + image)
			}
			for _, f := range report.Failed {
				a.out.Warning("Could not remove " + f.Image + ": " + f.Err.Error())
			}
			if report.OutputRemoved {
				a.out.Success(verb + a.display(a.layout.OutputDir))
			}
			a.out.Summary(len(report.Removed), len(report.Failed), "removed", "failed")
			return nil
		},
	}

	if err := opts.Attach(cmd); err != nil {
		panic(err)
	}
	return cmd
}
