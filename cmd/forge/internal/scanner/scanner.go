// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package scanner discovers features by walking the features root.
//
// Every Go file inside a feature package becomes an entry keyed by its
// base name. The entry's call is set when the configured InitDetector
// finds the initialization function in the file.
package scanner

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/AleutianAI/AleutianForge/cmd/forge/internal/featuremap"
	"github.com/AleutianAI/AleutianForge/pkg/logging"
)

// SourceExt is the extension of candidate files.
const SourceExt = ".go"

// ScanError is a discovery failure. The scan is aborted and no map is returned.
type ScanError struct {
	Path string
	Op   string
	Err  error
}

func (e *ScanError) Error() string {
	return fmt.Sprintf("scan %s: %s: %v", e.Path, e.Op, e.Err)
}

func (e *ScanError) Unwrap() error {
	return e.Err
}

// DuplicateFeatureError reports two files that would share one feature name.
type DuplicateFeatureError struct {
	Name   string
	First  string
	Second string
}

func (e *DuplicateFeatureError) Error() string {
	return fmt.Sprintf("feature name %q is used by both %s and %s; rename one of the files", e.Name, e.First, e.Second)
}

// ErrOutsideRoot is wrapped when a discovered path cannot be made relative to the root.
var ErrOutsideRoot = errors.New("path is outside the scan root")

// Scanner walks a features root.
type Scanner struct {
	// Root is the features directory.
	Root string

	// Detector decides whether a file has an entry point. Defaults to SyntaxDetector.
	Detector InitDetector

	// Call is recorded for files with an entry point. Defaults to featuremap.DefaultCall.
	Call string

	// Logger receives per-file debug records. Defaults to a no-op logger.
	Logger *logging.Logger
}

// New returns a Scanner for root using detector.
func New(root string, detector InitDetector) *Scanner {
	return &Scanner{Root: root, Detector: detector}
}

// Scan walks Root and returns the discovered feature map.
//
// # Description
//
// Candidates are .go files below a subdirectory of Root; files directly in
// Root belong to the shared features package and are skipped, as are
// _test.go files and directories starting with "." or "_" or named
// testdata. Keys are inserted in sorted order.
//
// # Limitations
//
//   - Files directly in Root are never features, even when they declare
//     the initialization function. Move such code into its own package.
//   - Detection is per file: a package whose Init lives in a sibling file
//     yields passive entries for the other files.
//
// # Outputs
//
//   - *featuremap.Map: One entry per candidate file.
//   - error: *ScanError on any I/O or path failure, *DuplicateFeatureError
//     when two files share a base name. No partial map is returned.
func (s *Scanner) Scan(ctx context.Context) (*featuremap.Map, error) {
	detector := s.Detector
	if detector == nil {
		detector = SyntaxDetector{}
	}
	call := s.Call
	if call == "" {
		call = featuremap.DefaultCall
	}
	logger := s.Logger
	if logger == nil {
		logger = logging.Nop()
	}

	files, err := s.candidates()
	if err != nil {
		return nil, err
	}

	found := make(map[string]featuremap.Entry, len(files))
	origin := make(map[string]string, len(files))

	for _, file := range files {
		if err := ctx.Err(); err != nil {
			return nil, &ScanError{Path: file, Op: "scan", Err: err}
		}

		rel, err := s.relative(file)
		if err != nil {
			return nil, &ScanError{Path: file, Op: "strip root", Err: err}
		}
		featurePath := strings.TrimSuffix(rel, SourceExt)
		name := featurePath[strings.LastIndex(featurePath, featuremap.PathSeparator)+1:]

		if prev, dup := origin[name]; dup {
			return nil, &DuplicateFeatureError{Name: name, First: prev, Second: rel}
		}

		src, err := os.ReadFile(file)
		if err != nil {
			return nil, &ScanError{Path: file, Op: "read", Err: err}
		}
		hasInit, err := detector.HasEntryPoint(ctx, file, src)
		if err != nil {
			return nil, &ScanError{Path: file, Op: "detect", Err: err}
		}

		entry := featuremap.NewEntry(featurePath, "")
		if hasInit {
			entry = featuremap.NewEntry(featurePath, call)
		}
		found[name] = entry
		origin[name] = rel
		logger.Debug("scanned feature file", "feature", name, "path", featurePath, "init", hasInit)
	}

	names := make([]string, 0, len(found))
	for name := range found {
		names = append(names, name)
	}
	sort.Strings(names)

	out := featuremap.New()
	for _, name := range names {
		if err := out.Set(name, found[name]); err != nil {
			return nil, &ScanError{Path: origin[name], Op: "record", Err: err}
		}
	}
	return out, nil
}

// candidates lists feature source files in lexical order.
func (s *Scanner) candidates() ([]string, error) {
	info, err := os.Stat(s.Root)
	if err != nil {
		return nil, &ScanError{Path: s.Root, Op: "stat root", Err: err}
	}
	if !info.IsDir() {
		return nil, &ScanError{Path: s.Root, Op: "stat root", Err: errors.New("not a directory")}
	}

	var files []string
	err = filepath.WalkDir(s.Root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return &ScanError{Path: path, Op: "walk", Err: walkErr}
		}
		if d.IsDir() {
			if path != s.Root && SkipDir(d.Name()) {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() || !IsSource(d.Name()) {
			return nil
		}
		if filepath.Dir(path) == filepath.Clean(s.Root) {
			return nil
		}
		files = append(files, path)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return files, nil
}

// relative strips Root from path and returns a slash-separated remainder.
func (s *Scanner) relative(path string) (string, error) {
	rel, err := filepath.Rel(s.Root, path)
	if err != nil {
		return "", err
	}
	if rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %s", ErrOutsideRoot, path)
	}
	return filepath.ToSlash(rel), nil
}

// SkipDir reports whether a directory is ignored by feature discovery.
func SkipDir(name string) bool {
	return strings.HasPrefix(name, ".") || strings.HasPrefix(name, "_") || name == "testdata" || name == "vendor"
}

// IsSource reports whether a file name is non-test Go source.
func IsSource(name string) bool {
	return strings.HasSuffix(name, SourceExt) && !strings.HasSuffix(name, "_test"+SourceExt)
}
