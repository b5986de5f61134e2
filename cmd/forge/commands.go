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
	"errors"
	"fmt"
	"io"
	"path/filepath"

	"github.com/AleutianAI/AleutianForge/cmd/forge/config"
	"github.com/AleutianAI/AleutianForge/cmd/forge/internal/builder"
	"github.com/AleutianAI/AleutianForge/cmd/forge/internal/featuremap"
	"github.com/AleutianAI/AleutianForge/cmd/forge/internal/infra"
	"github.com/AleutianAI/AleutianForge/cmd/forge/internal/loader"
	"github.com/AleutianAI/AleutianForge/cmd/forge/internal/patcher"
	"github.com/AleutianAI/AleutianForge/cmd/forge/internal/profile"
	"github.com/AleutianAI/AleutianForge/cmd/forge/internal/scanner"
	"github.com/AleutianAI/AleutianForge/pkg/logging"
	"github.com/AleutianAI/AleutianForge/pkg/ux"
	"github.com/spf13/cobra"
)

// =============================================================================
// GLOBAL STATE
// =============================================================================

// app carries what every command shares: global flags, the loaded
// project configuration, the logger and the printer. It is filled in by
// the root command's PersistentPreRunE.
type app struct {
	projectDir  string
	verbose     bool
	personality string

	stdout io.Writer
	stderr io.Writer

	// pm runs the container engine. Tests replace it with a mock.
	pm infra.ProcessManager

	out    *ux.Printer
	log    *logging.Logger
	cfg    *config.ForgeConfig
	layout config.Layout
}

func newApp(stdout, stderr io.Writer) *app {
	return &app{
		stdout: stdout,
		stderr: stderr,
		pm:     infra.NewDefaultProcessManager(),
		log:    logging.Nop(),
	}
}

// =============================================================================
// ROOT COMMAND
// =============================================================================

// newRootCmd builds the forge command tree bound to a.
func newRootCmd(a *app) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "forge",
		Short: "Assemble agent binaries from selectable feature modules",
		Long: `forge turns a build profile (a list of feature names) into a compiled
agent binary. It discovers feature packages, generates the loader that
initializes the enabled ones, patches the agent's main.go to call it, and
compiles inside a cached container build environment.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup(cmd)
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			_ = a.log.Close()
		},
	}
	rootCmd.SetOut(a.stdout)
	rootCmd.SetErr(a.stderr)

	rootCmd.PersistentFlags().StringVar(&a.projectDir, "project", ".",
		"Agent project directory")
	rootCmd.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false,
		"Print debug logs to stderr")
	rootCmd.PersistentFlags().StringVar(&a.personality, "personality", "",
		"Output style: full, standard, minimal, or machine (scripting)")

	rootCmd.AddCommand(initCmd(a))
	rootCmd.AddCommand(featureCmd(a))
	rootCmd.AddCommand(generateCmd(a))
	rootCmd.AddCommand(autofillCmd(a))
	rootCmd.AddCommand(buildCmd(a))
	rootCmd.AddCommand(cleanCmd(a))
	return rootCmd
}

// execute runs forge with args and returns the process exit code.
func execute(ctx context.Context, a *app, args []string) int {
	rootCmd := newRootCmd(a)
	rootCmd.SetArgs(args)
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		a.report(err)
		return 1
	}
	return 0
}

// setup resolves the project and loads its configuration.
func (a *app) setup(cmd *cobra.Command) error {
	a.out = &ux.Printer{Out: a.stdout, Err: a.stderr, Level: ux.DetectPersonality(a.personality)}

	root, err := filepath.Abs(a.projectDir)
	if err != nil {
		return fmt.Errorf("resolve project directory: %w", err)
	}
	// init may point --dir elsewhere; it reloads after resolving it
	return a.loadProject(root)
}

// loadProject loads the configuration of the project at root and opens
// the logger it asks for.
func (a *app) loadProject(root string) error {
	cfg, err := config.Load(root)
	if err != nil {
		return err
	}
	a.cfg = cfg
	a.layout = cfg.Layout(root)

	level, err := logging.ParseLevel(cfg.Logging.Level)
	if err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if a.verbose {
		level = logging.LevelDebug
	}
	logCfg := logging.Config{
		Level:   level,
		Service: "forge",
		Quiet:   !a.verbose,
		Output:  a.stderr,
	}
	if cfg.Logging.File {
		logCfg.LogDir = a.layout.LogDir
	}
	_ = a.log.Close()
	a.log = logging.New(logCfg)
	a.log.Debug("project loaded", "root", root, "engine", cfg.Engine)
	return nil
}

// =============================================================================
// ERROR REPORTING
// =============================================================================

// report prints err with the remediation that applies to it.
func (a *app) report(err error) {
	out := a.out
	if out == nil {
		out = &ux.Printer{Out: a.stdout, Err: a.stderr, Level: ux.DetectPersonality(a.personality)}
	}
	a.log.Error("command failed", "error", err)

	var (
		envErr   *builder.EnvironmentError
		dupErr   *scanner.DuplicateFeatureError
		unresErr *featuremap.UnresolvedFeatureError
		genErr   *loader.GenerateError
	)
	switch {
	case errors.As(err, &envErr):
		detail := envErr.Message
		if envErr.Err != nil {
			detail += "\n" + envErr.Err.Error()
		}
		out.ErrorBox(envErr.Kind.String(), detail, envErr.Remediation)
	case errors.As(err, &dupErr):
		out.ErrorBox("duplicate feature name", err.Error(),
			"Rename one of the files; feature names are file base names and must be unique.")
	case errors.As(err, &unresErr):
		out.ErrorBox("unknown feature", err.Error(),
			"Run `forge autofill` to refresh the feature map, or remove the name from the profile.")
	case errors.As(err, &genErr) && genErr.Kind == loader.KindUnresolvable:
		out.ErrorBox("feature package missing", err.Error(),
			"Create it with `forge feature new --name <name>`, or remove it from the profile.")
	case errors.As(err, &genErr) && genErr.Kind == loader.KindMissingEntryPoint:
		out.ErrorBox("feature entry point missing", err.Error(),
			"Add the function to the feature package, or run `forge autofill` so passive packages are only imported.")
	case errors.Is(err, patcher.ErrEntryNotFound):
		out.ErrorBox("no entry point", err.Error(),
			"The entry file must declare `func main()`; set entry_file in forge.yaml if it lives elsewhere.")
	case errors.Is(err, profile.ErrNotFound):
		out.ErrorBox("profile not found", err.Error(),
			"Profiles live in the profiles directory as <name>.yml.")
	default:
		out.Error(err.Error())
	}
}
