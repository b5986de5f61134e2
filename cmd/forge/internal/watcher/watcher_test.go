// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package watcher

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const waitFor = 5 * time.Second

func startWatcher(t *testing.T, root string) <-chan []string {
	t.Helper()
	batches := make(chan []string, 8)
	w, err := New(root, func(ctx context.Context, paths []string) error {
		batches <- paths
		return nil
	}, Options{Debounce: 50 * time.Millisecond})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = w.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
		w.Close()
	})
	return batches
}

func receive(t *testing.T, batches <-chan []string) []string {
	t.Helper()
	select {
	case b := <-batches:
		return b
	case <-time.After(waitFor):
		t.Fatal("no change batch received")
		return nil
	}
}

func TestWatcher_GoFileChange(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(root, "http"), 0755))
	batches := startWatcher(t, root)

	file := filepath.Join(root, "http", "http.go")
	require.NoError(t, os.WriteFile(file, []byte("package http\n"), 0644))

	assert.Contains(t, receive(t, batches), file)
}

func TestWatcher_DebouncesBurst(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(root, "socket"), 0755))
	batches := startWatcher(t, root)

	file := filepath.Join(root, "socket", "socket.go")
	for i := 0; i < 5; i++ {
		require.NoError(t, os.WriteFile(file, []byte("package socket\n"), 0644))
	}

	got := receive(t, batches)
	assert.Equal(t, []string{file}, got, "repeated writes to one file collapse into one path")
}

func TestWatcher_NewDirectoryIsWatched(t *testing.T) {
	root := t.TempDir()
	batches := startWatcher(t, root)

	dir := filepath.Join(root, "report_result")
	require.NoError(t, os.Mkdir(dir, 0755))
	assert.Contains(t, receive(t, batches), dir)

	file := filepath.Join(dir, "report_result.go")
	require.NoError(t, os.WriteFile(file, []byte("package report_result\n"), 0644))
	assert.Contains(t, receive(t, batches), file)
}

func TestWatcher_IgnoresOtherFiles(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(root, "http"), 0755))
	batches := startWatcher(t, root)

	require.NoError(t, os.WriteFile(filepath.Join(root, "http", "notes.md"), []byte("x"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "http", "http_test.go"), []byte("package http\n"), 0644))

	select {
	case b := <-batches:
		t.Fatalf("unexpected batch %v", b)
	case <-time.After(300 * time.Millisecond):
	}
}

func TestNew_MissingRoot(t *testing.T) {
	_, err := New(filepath.Join(t.TempDir(), "missing"), nil, Options{})
	assert.Error(t, err)
}
