package watcher_test

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zjrosen/regcascade/internal/watcher"
)

func writeJob(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestWatcher_DebounceMultipleWrites(t *testing.T) {
	dir := t.TempDir()
	jobPath := filepath.Join(dir, "job.yaml")
	writeJob(t, jobPath, "source: a.mnc")

	w, err := watcher.New(watcher.Config{Files: []string{jobPath}, Debounce: 50 * time.Millisecond})
	require.NoError(t, err)
	defer func() { _ = w.Stop() }()

	onChange, err := w.Start()
	require.NoError(t, err)

	for i := 0; i < 10; i++ {
		writeJob(t, jobPath, fmt.Sprintf("source: a%d.mnc", i))
		time.Sleep(10 * time.Millisecond)
	}

	select {
	case changed := <-onChange:
		assert.Equal(t, []string{jobPath}, changed)
	case <-time.After(300 * time.Millisecond):
		t.Fatal("expected notification but got timeout")
	}

	select {
	case <-onChange:
		t.Fatal("unexpected second notification")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestWatcher_IgnoresOtherFiles(t *testing.T) {
	dir := t.TempDir()
	jobPath := filepath.Join(dir, "job.yaml")
	otherPath := filepath.Join(dir, "other.yaml")
	writeJob(t, jobPath, "source: a.mnc")
	writeJob(t, otherPath, "initial")

	w, err := watcher.New(watcher.Config{Files: []string{jobPath}, Debounce: 50 * time.Millisecond})
	require.NoError(t, err)
	defer func() { _ = w.Stop() }()

	onChange, err := w.Start()
	require.NoError(t, err)

	writeJob(t, otherPath, "changed")

	select {
	case <-onChange:
		t.Fatal("should not notify for unrelated files")
	case <-time.After(150 * time.Millisecond):
	}
}

func TestWatcher_SeesRenameReplace(t *testing.T) {
	dir := t.TempDir()
	jobPath := filepath.Join(dir, "job.yaml")
	cfgPath := filepath.Join(dir, "config.yaml")
	writeJob(t, jobPath, "source: a.mnc")
	writeJob(t, cfgPath, "batch: {}")

	w, err := watcher.New(watcher.Config{Files: []string{jobPath, cfgPath}, Debounce: 50 * time.Millisecond})
	require.NoError(t, err)
	defer func() { _ = w.Stop() }()

	onChange, err := w.Start()
	require.NoError(t, err)

	tmp := filepath.Join(dir, ".config.yaml.swp")
	writeJob(t, tmp, "batch: {workers: 4}")
	require.NoError(t, os.Rename(tmp, cfgPath))

	select {
	case changed := <-onChange:
		assert.Equal(t, []string{cfgPath}, changed)
	case <-time.After(300 * time.Millisecond):
		t.Fatal("expected notification for replaced file")
	}
}

func TestWatcher_BurstAcrossFiles(t *testing.T) {
	dir := t.TempDir()
	aPath := filepath.Join(dir, "a.yaml")
	bPath := filepath.Join(dir, "b.yaml")
	writeJob(t, aPath, "source: a.mnc")
	writeJob(t, bPath, "source: b.mnc")

	w, err := watcher.New(watcher.Config{Files: []string{aPath, bPath}, Debounce: 50 * time.Millisecond})
	require.NoError(t, err)
	defer func() { _ = w.Stop() }()

	onChange, err := w.Start()
	require.NoError(t, err)

	writeJob(t, aPath, "source: a2.mnc")
	time.Sleep(5 * time.Millisecond)
	writeJob(t, bPath, "source: b2.mnc")

	select {
	case changed := <-onChange:
		assert.Equal(t, []string{aPath, bPath}, changed)
	case <-time.After(time.Second):
		t.Fatal("expected notification but got timeout")
	}
}

func TestWatcher_KeepsChangesWhileReaderBusy(t *testing.T) {
	dir := t.TempDir()
	aPath := filepath.Join(dir, "a.yaml")
	bPath := filepath.Join(dir, "b.yaml")
	writeJob(t, aPath, "source: a.mnc")
	writeJob(t, bPath, "source: b.mnc")

	w, err := watcher.New(watcher.Config{Files: []string{aPath, bPath}, Debounce: 50 * time.Millisecond})
	require.NoError(t, err)
	defer func() { _ = w.Stop() }()

	onChange, err := w.Start()
	require.NoError(t, err)

	// Two separate bursts, neither read until both have settled.
	writeJob(t, aPath, "source: a2.mnc")
	time.Sleep(150 * time.Millisecond)
	writeJob(t, bPath, "source: b2.mnc")
	time.Sleep(150 * time.Millisecond)

	seen := map[string]bool{}
	deadline := time.After(time.Second)
	for len(seen) < 2 {
		select {
		case changed := <-onChange:
			for _, p := range changed {
				seen[p] = true
			}
		case <-deadline:
			t.Fatalf("expected both files, saw %v", seen)
		}
	}
	assert.True(t, seen[aPath])
	assert.True(t, seen[bPath])
}

func TestWatcher_Stop(t *testing.T) {
	dir := t.TempDir()
	jobPath := filepath.Join(dir, "job.yaml")
	writeJob(t, jobPath, "source: a.mnc")

	w, err := watcher.New(watcher.DefaultConfig(jobPath))
	require.NoError(t, err)

	_, err = w.Start()
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		assert.NoError(t, w.Stop())
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Stop() timed out")
	}
}

func TestNew_RequiresFiles(t *testing.T) {
	_, err := watcher.New(watcher.Config{})
	require.Error(t, err)
}

func TestDefaultConfig(t *testing.T) {
	cfg := watcher.DefaultConfig("/jobs/a.yaml")
	assert.Equal(t, []string{"/jobs/a.yaml"}, cfg.Files)
	assert.Equal(t, watcher.DefaultDebounce, cfg.Debounce)
}
