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

	"github.com/AleutianAI/AleutianForge/cmd/forge/internal/featuremap"
	"github.com/AleutianAI/AleutianForge/cmd/forge/internal/scanner"
	"github.com/AleutianAI/AleutianForge/cmd/forge/internal/watcher"
	"github.com/leodido/structcli"
	"github.com/spf13/cobra"
)

// AutofillOptions defines flags for the autofill command.
type AutofillOptions struct {
	Detector string `flag:"detector" flagdescr:"Entry point detector: syntax or text (default: syntax)"`
	Watch    bool   `flag:"watch" flagshort:"w" flagdescr:"Keep rescanning while feature sources change"`
}

func (o *AutofillOptions) Attach(c *cobra.Command) error {
	return structcli.Define(c, o)
}

// autofillCmd scans the features directory and rewrites feature_map.yml.
//
// # Examples
//
//	forge autofill
//	forge autofill --detector text
//	forge autofill --watch
func autofillCmd(a *app) *cobra.Command {
	opts := &AutofillOptions{}

	cmd := &cobra.Command{
		Use:   "autofill",
		Short: "Discover features and write feature_map.yml",
		Args:  cobra.NoArgs,
		PreRunE: func(c *cobra.Command, args []string) error {
			return structcli.Unmarshal(c, opts)
		},
		RunE: func(c *cobra.Command, args []string) error {
			detector, err := scanner.DetectorByName(opts.Detector)
			if err != nil {
				return err
			}
			s := scanner.New(a.layout.FeaturesDir, detector)
			s.Logger = a.log

			m, err := a.autofill(c.Context(), s)
			if err != nil {
				return err
			}
			_ = m.Each(func(name string, e featuremap.Entry) error {
				a.out.FeatureRow(name, e.Path, e.HasCall())
				return nil
			})
			a.out.Success(fmt.Sprintf("Wrote %d features to %s", m.Len(), a.display(a.layout.FeatureMap)))

			if !opts.Watch {
				return nil
			}
			return a.watchFeatures(c.Context(), s)
		},
	}

	if err := opts.Attach(cmd); err != nil {
		panic(err)
	}
	return cmd
}

// autofill runs one scan and persists the result. A failed scan leaves
// the existing feature map untouched.
func (a *app) autofill(ctx context.Context, s *scanner.Scanner) (*featuremap.Map, error) {
	m, err := s.Scan(ctx)
	if err != nil {
		return nil, err
	}
	if err := featuremap.Write(a.layout.FeatureMap, m); err != nil {
		return nil, err
	}
	a.log.Debug("feature map written", "path", a.layout.FeatureMap, "features", m.Len())
	return m, nil
}

// watchFeatures rescans on every debounced batch of source changes until
// ctx is cancelled. Scan failures are reported and watching continues.
func (a *app) watchFeatures(ctx context.Context, s *scanner.Scanner) error {
	w, err := watcher.New(a.layout.FeaturesDir, func(ctx context.Context, paths []string) error {
		m, err := a.autofill(ctx, s)
		if err != nil {
			a.out.Warning(err.Error())
			return err
		}
		a.out.Success(fmt.Sprintf("%d changes, feature map now has %d features", len(paths), m.Len()))
		return nil
	}, watcher.Options{Logger: a.log})
	if err != nil {
		return err
	}
	defer w.Close()

	a.out.Info("Watching " + a.display(a.layout.FeaturesDir) + " (Ctrl+C to stop)")
	return w.Run(ctx)
}
