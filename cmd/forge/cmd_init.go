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
	"os"
	"path/filepath"

	"github.com/AleutianAI/AleutianForge/cmd/forge/config"
	"github.com/AleutianAI/AleutianForge/cmd/forge/internal/scanner"
	"github.com/AleutianAI/AleutianForge/cmd/forge/internal/skeleton"
	"github.com/leodido/structcli"
	"github.com/spf13/cobra"
)

// InitOptions defines flags for the init command.
type InitOptions struct {
	Name   string `flag:"name" flagshort:"n" flagdescr:"Agent name (default: the project directory name)"`
	Module string `flag:"module" flagshort:"m" flagdescr:"Go module path (default: the agent name)"`
	Dir    string `flag:"dir" flagshort:"d" flagdescr:"Directory to create the project in (default: --project)"`
}

func (o *InitOptions) Attach(c *cobra.Command) error {
	return structcli.Define(c, o)
}

// initCmd scaffolds a new agent project.
//
// # Examples
//
//	forge init --dir ./scout --module example.com/scout
//	forge init                 # restore missing files in the current project
//
// Existing files are never overwritten. After writing the layout the
// loader is generated from the registered features and main.go is
// patched, so the new project compiles as is.
func initCmd(a *app) *cobra.Command {
	opts := &InitOptions{}

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create a new agent project",
		Args:  cobra.NoArgs,
		PreRunE: func(c *cobra.Command, args []string) error {
			return structcli.Unmarshal(c, opts)
		},
		RunE: func(c *cobra.Command, args []string) error {
			return a.runInit(c, opts)
		},
	}

	if err := opts.Attach(cmd); err != nil {
		panic(err)
	}
	return cmd
}

func (a *app) runInit(c *cobra.Command, opts *InitOptions) error {
	root := a.layout.Root
	if opts.Dir != "" {
		abs, err := filepath.Abs(opts.Dir)
		if err != nil {
			return fmt.Errorf("resolve %s: %w", opts.Dir, err)
		}
		root = abs
	}
	if err := os.MkdirAll(root, 0755); err != nil {
		return fmt.Errorf("create project directory: %w", err)
	}
	if root != a.layout.Root {
		if err := a.loadProject(root); err != nil {
			return err
		}
	}

	name := opts.Name
	if name == "" {
		name = filepath.Base(root)
	}
	module := opts.Module
	if module == "" {
		module = name
	}

	a.out.Title("Forging project " + name)
	res, err := skeleton.Init(root, skeleton.ProjectData{
		Name:   name,
		Module: module,
		Target: a.cfg.DefaultTarget,
	})
	if err != nil {
		return err
	}
	wrote, err := config.WriteDefault(filepath.Join(root, config.FileName))
	if err != nil {
		return err
	}
	if wrote {
		res.Written = append(res.Written, config.FileName)
	} else {
		res.Skipped = append(res.Skipped, config.FileName)
	}
	for _, f := range res.Written {
		a.out.Success(f)
	}
	for _, f := range res.Skipped {
		a.out.Muted("exists: " + f)
	}

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

	a.out.Summary(len(res.Written), len(res.Skipped), "written", "skipped")
	a.log.Info("project initialized", "root", root, "module", module, "written", len(res.Written))
	return nil
}
