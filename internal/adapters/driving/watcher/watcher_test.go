package watcher

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func noopRebuild(context.Context) error { return nil }

func TestHandleFsEvent_Directory(t *testing.T) {
	tests := []struct {
		name      string
		file      string
		setupDir  bool
		setupFile bool
		operation fsnotify.Op
		expected  bool
	}{
		{name: "create file", file: "rows.csv", setupFile: true, operation: fsnotify.Create, expected: true},
		{name: "write file", file: "labs.txt", setupFile: true, operation: fsnotify.Write, expected: true},
		{name: "remove file", file: "gone.txt", operation: fsnotify.Remove, expected: true},
		{name: "rename file", file: "moved.txt", operation: fsnotify.Rename, expected: true},
		{name: "chmod only", file: "rows.csv", setupFile: true, operation: fsnotify.Chmod, expected: false},
		{name: "create directory", file: "sub", setupDir: true, operation: fsnotify.Create, expected: false},
		{name: "hidden file", file: ".rows.csv.swp", setupFile: true, operation: fsnotify.Write, expected: false},
		{name: "editor backup", file: "rows.csv~", setupFile: true, operation: fsnotify.Write, expected: false},
		{name: "combined write and chmod", file: "rows.csv", setupFile: true, operation: fsnotify.Write | fsnotify.Chmod, expected: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			path := filepath.Join(dir, tt.file)
			switch {
			case tt.setupDir:
				require.NoError(t, os.Mkdir(path, 0o755))
			case tt.setupFile:
				require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))
			}

			w := New(dir, noopRebuild)
			w.dir = dir

			assert.Equal(t, tt.expected, w.handleFsEvent(fsnotify.Event{Name: path, Op: tt.operation}))
		})
	}
}

func TestHandleFsEvent_SingleFile(t *testing.T) {
	dir := t.TempDir()
	w := New(filepath.Join(dir, "rows.csv"), noopRebuild)
	w.dir, w.file = dir, "rows.csv"

	assert.True(t, w.handleFsEvent(fsnotify.Event{Name: filepath.Join(dir, "rows.csv"), Op: fsnotify.Write}))
	assert.True(t, w.handleFsEvent(fsnotify.Event{Name: filepath.Join(dir, "rows.csv"), Op: fsnotify.Create}))
	assert.False(t, w.handleFsEvent(fsnotify.Event{Name: filepath.Join(dir, "other.csv"), Op: fsnotify.Write}))
}

func TestWatcher_RebuildsAfterChanges(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "rows.jsonl")
	require.NoError(t, os.WriteFile(file, []byte("{}\n"), 0o644))

	var calls atomic.Int32
	done := make(chan error, 4)
	w := New(file, func(context.Context) error {
		calls.Add(1)
		return nil
	}, WithDebounce(50*time.Millisecond), WithOnRebuild(func(err error) { done <- err }))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	runErr := make(chan error, 1)
	go func() { runErr <- w.Run(ctx) }()

	time.Sleep(100 * time.Millisecond)
	for i := 0; i < 3; i++ {
		require.NoError(t, os.WriteFile(file, []byte("{\"row\":1}\n"), 0o644))
	}

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for rebuild")
	}
	assert.Equal(t, int32(1), calls.Load(), "writes within the debounce window coalesce")

	cancel()
	select {
	case err := <-runErr:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("watcher did not stop after cancellation")
	}
}

func TestWatcher_RebuildErrorsDoNotStop(t *testing.T) {
	dir := t.TempDir()

	done := make(chan error, 4)
	w := New(dir, func(context.Context) error {
		return errors.New("malformed row")
	}, WithDebounce(20*time.Millisecond), WithOnRebuild(func(err error) { done <- err }))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx) //nolint:errcheck

	time.Sleep(100 * time.Millisecond)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.csv"), []byte("x"), 0o644))

	select {
	case err := <-done:
		assert.EqualError(t, err, "malformed row")
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for first rebuild")
	}

	time.Sleep(50 * time.Millisecond)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.csv"), []byte("y"), 0o644))

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("watcher stopped after a failed rebuild")
	}
}

func TestWatcher_Errors(t *testing.T) {
	t.Run("missing path", func(t *testing.T) {
		w := New("/non/existent/path", noopRebuild)
		err := w.Run(context.Background())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "watch path error")
	})

	t.Run("closed watcher", func(t *testing.T) {
		w := New(t.TempDir(), noopRebuild)
		require.NoError(t, w.Close())
		err := w.Run(context.Background())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "closed")
	})

	t.Run("close is idempotent", func(t *testing.T) {
		w := New(t.TempDir(), noopRebuild)
		assert.NoError(t, w.Close())
		assert.NoError(t, w.Close())
	})
}
