// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package watcher reruns feature discovery when feature sources change.
//
// # Description
//
// Watcher puts an fsnotify watch on the features root and every directory
// below it. Changes to Go source files, and directories appearing or
// disappearing, are batched for a debounce window; when the window
// passes quietly the OnChange callback runs once with the changed paths.
//
// Events and the callback are handled on the goroutine calling Run, so
// OnChange never runs concurrently with itself.
package watcher

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/AleutianAI/AleutianForge/cmd/forge/internal/scanner"
	"github.com/AleutianAI/AleutianForge/pkg/logging"
)

// DefaultDebounce is how long the tree must be quiet before OnChange runs.
const DefaultDebounce = 300 * time.Millisecond

// ChangeFunc handles one batch of changed paths, sorted and deduplicated.
type ChangeFunc func(ctx context.Context, paths []string) error

// Options configures a Watcher.
type Options struct {
	// Debounce defaults to DefaultDebounce.
	Debounce time.Duration

	// Logger defaults to a no-op logger.
	Logger *logging.Logger
}

// Watcher watches one features root.
type Watcher struct {
	root     string
	onChange ChangeFunc
	debounce time.Duration
	logger   *logging.Logger
	fsw      *fsnotify.Watcher
}

// New starts watching root and every directory below it. Events are
// queued from this point on; call Run to handle them and Close when done.
func New(root string, onChange ChangeFunc, opts Options) (*Watcher, error) {
	if opts.Debounce <= 0 {
		opts.Debounce = DefaultDebounce
	}
	if opts.Logger == nil {
		opts.Logger = logging.Nop()
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	w := &Watcher{
		root:     root,
		onChange: onChange,
		debounce: opts.Debounce,
		logger:   opts.Logger,
		fsw:      fsw,
	}
	if err := w.addRecursive(root); err != nil {
		fsw.Close()
		return nil, err
	}
	return w, nil
}

// Close stops the underlying watches.
func (w *Watcher) Close() error {
	return w.fsw.Close()
}

// Run handles events until ctx is cancelled. A batch still pending at
// cancellation is dropped. OnChange errors are logged and watching
// continues.
func (w *Watcher) Run(ctx context.Context) error {
	pending := make(map[string]bool)
	var timer *time.Timer
	var timerC <-chan time.Time

	flush := func() {
		timer, timerC = nil, nil
		if len(pending) == 0 {
			return
		}
		paths := make([]string, 0, len(pending))
		for p := range pending {
			paths = append(paths, p)
		}
		sort.Strings(paths)
		clear(pending)

		w.logger.Debug("feature sources changed", "paths", len(paths))
		if err := w.onChange(ctx, paths); err != nil {
			w.logger.Warn("change handler failed", "error", err)
		}
	}

	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return nil

		case event, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			if !w.relevant(event) {
				continue
			}
			pending[event.Name] = true
			if timer == nil {
				timer = time.NewTimer(w.debounce)
				timerC = timer.C
			} else {
				timer.Reset(w.debounce)
			}

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			if errors.Is(err, fsnotify.ErrEventOverflow) {
				w.logger.Warn("watch queue overflowed, rescanning")
				pending[w.root] = true
				flush()
				continue
			}
			w.logger.Warn("watch error", "error", err)

		case <-timerC:
			flush()
		}
	}
}

// relevant filters events down to Go sources and directories. New
// directories are watched as they appear.
func (w *Watcher) relevant(event fsnotify.Event) bool {
	if event.Has(fsnotify.Chmod) && !event.Has(fsnotify.Write) {
		return false
	}
	name := filepath.Base(event.Name)
	if event.Has(fsnotify.Create) {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if scanner.SkipDir(name) {
				return false
			}
			if err := w.addRecursive(event.Name); err != nil {
				w.logger.Warn("failed to watch new directory", "path", event.Name, "error", err)
			}
			return true
		}
	}
	if scanner.IsSource(name) {
		return true
	}
	// A removed or renamed directory takes its features with it.
	return (event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename)) && filepath.Ext(name) == ""
}

// addRecursive watches dir and its subdirectories, skipping the ones
// feature discovery ignores.
func (w *Watcher) addRecursive(dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != dir && scanner.SkipDir(d.Name()) {
			return filepath.SkipDir
		}
		return w.fsw.Add(path)
	})
}
