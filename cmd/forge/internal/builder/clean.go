// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package builder

import (
	"context"
	"fmt"
	"os"
	"strings"
)

// CleanOptions selects what Clean removes.
type CleanOptions struct {
	// Prefix selects candidate repositories, e.g. "forge-".
	Prefix string

	// Keep lists repository prefixes that are never removed.
	Keep []string

	// DryRun reports without removing anything.
	DryRun bool

	// OutputDir is removed as well when set.
	OutputDir string
}

// CleanFailure is an image that could not be removed.
type CleanFailure struct {
	Image string
	Err   error
}

// CleanReport is the outcome of Clean.
type CleanReport struct {
	Removed       []string
	Kept          []string
	Failed        []CleanFailure
	OutputRemoved bool
	DryRun        bool
}

// Clean removes cached environment images.
//
// # Description
//
// Lists local repositories, selects those starting with opts.Prefix and
// not starting with any keep prefix, and force-removes each. A failed
// removal is reported in the result and does not stop the others. With
// DryRun the selection is reported as Removed but nothing is touched.
func (b *Builder) Clean(ctx context.Context, opts CleanOptions) (*CleanReport, error) {
	if strings.TrimSpace(opts.Prefix) == "" {
		return nil, fmt.Errorf("clean: image prefix must not be empty")
	}
	if err := b.CheckEngine(ctx); err != nil {
		return nil, err
	}

	repos, err := b.engine.Repositories(ctx)
	if err != nil {
		return nil, &EnvironmentError{
			Kind:        Unreachable,
			Message:     "could not list images",
			Remediation: unreachableRemediation(b.engine.Binary),
			Err:         err,
		}
	}

	report := &CleanReport{DryRun: opts.DryRun}
	for _, repo := range repos {
		if !strings.HasPrefix(repo, opts.Prefix) {
			continue
		}
		if hasAnyPrefix(repo, opts.Keep) {
			report.Kept = append(report.Kept, repo)
			continue
		}
		if opts.DryRun {
			report.Removed = append(report.Removed, repo)
			continue
		}
		if err := b.engine.RemoveImage(ctx, repo); err != nil {
			b.logger.Warn("failed to remove image", "image", repo, "error", err)
			report.Failed = append(report.Failed, CleanFailure{Image: repo, Err: err})
			continue
		}
		b.logger.Info("removed image", "image", repo)
		report.Removed = append(report.Removed, repo)
	}

	if opts.OutputDir != "" {
		if _, err := os.Stat(opts.OutputDir); err == nil {
			if !opts.DryRun {
				if err := os.RemoveAll(opts.OutputDir); err != nil {
					return report, fmt.Errorf("remove output dir: %w", err)
				}
			}
			report.OutputRemoved = true
		}
	}
	return report, nil
}

func hasAnyPrefix(s string, prefixes []string) bool {
	for _, p := range prefixes {
		if p != "" && strings.HasPrefix(s, p) {
			return true
		}
	}
	return false
}
