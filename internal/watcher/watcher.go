// Package watcher notifies when job or config files change, coalescing
// bursts of editor writes into one batch of paths.
package watcher

import (
	"fmt"
	"path/filepath"
	"sort"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/zjrosen/regcascade/internal/log"
)

// DefaultDebounce is the quiet period before a change is reported.
const DefaultDebounce = 500 * time.Millisecond

// Config holds watcher options.
type Config struct {
	// Files are the paths whose changes are reported.
	Files    []string
	Debounce time.Duration
}

// DefaultConfig watches files with the default debounce.
func DefaultConfig(files ...string) Config {
	return Config{Files: files, Debounce: DefaultDebounce}
}

// Watcher reports changes to a fixed set of files.
type Watcher struct {
	fsWatcher *fsnotify.Watcher
	files     map[string]struct{}
	debounce  time.Duration
	onChange  chan []string
	done      chan struct{}
}

// New creates a watcher. Nothing is watched until Start.
func New(cfg Config) (*Watcher, error) {
	if len(cfg.Files) == 0 {
		return nil, fmt.Errorf("watcher: no files to watch")
	}
	files := make(map[string]struct{}, len(cfg.Files))
	for _, f := range cfg.Files {
		abs, err := filepath.Abs(f)
		if err != nil {
			return nil, fmt.Errorf("resolving %s: %w", f, err)
		}
		files[abs] = struct{}{}
	}
	if cfg.Debounce <= 0 {
		cfg.Debounce = DefaultDebounce
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating fsnotify watcher: %w", err)
	}
	return &Watcher{
		fsWatcher: fsw,
		files:     files,
		debounce:  cfg.Debounce,
		onChange:  make(chan []string),
		done:      make(chan struct{}),
	}, nil
}

// Start watches the parent directory of every file, so files replaced by
// rename are still seen. The returned channel carries the sorted, distinct
// paths changed in each burst. Changes made while the reader is busy are
// merged into the next batch rather than dropped.
func (w *Watcher) Start() (<-chan []string, error) {
	for _, dir := range w.dirs() {
		if err := w.fsWatcher.Add(dir); err != nil {
			return nil, fmt.Errorf("watching directory %s: %w", dir, err)
		}
		log.Debug(log.CatWatch, "Watching directory", "dir", dir)
	}
	go w.loop()
	return w.onChange, nil
}

// Stop terminates the watcher and releases resources.
func (w *Watcher) Stop() error {
	close(w.done)
	return w.fsWatcher.Close()
}

func (w *Watcher) dirs() []string {
	set := map[string]struct{}{}
	for f := range w.files {
		set[filepath.Dir(f)] = struct{}{}
	}
	dirs := make([]string, 0, len(set))
	for d := range set {
		dirs = append(dirs, d)
	}
	sort.Strings(dirs)
	return dirs
}

func (w *Watcher) loop() {
	var (
		timer   *time.Timer
		timerC  <-chan time.Time
		pending = map[string]struct{}{}
		ready   = map[string]struct{}{}
	)

	for {
		// Sending is only enabled while a settled batch is waiting.
		var out chan []string
		if len(ready) > 0 {
			out = w.onChange
		}

		select {
		case out <- sortedPaths(ready):
			ready = map[string]struct{}{}

		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return
			}
			path, ok := w.relevantPath(event)
			if !ok {
				continue
			}
			pending[path] = struct{}{}
			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				if !timer.Stop() {
					select {
					case <-timer.C:
					default:
					}
				}
				timer.Reset(w.debounce)
			}
			timerC = timer.C

		case <-timerC:
			timerC = nil
			for p := range pending {
				ready[p] = struct{}{}
			}
			pending = map[string]struct{}{}

		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return
			}
			log.Warn(log.CatWatch, "Watch error", "error", err)

		case <-w.done:
			if timer != nil {
				timer.Stop()
			}
			return
		}
	}
}

// relevantPath accepts writes, creates and renames onto a watched file and
// returns its absolute path.
func (w *Watcher) relevantPath(event fsnotify.Event) (string, bool) {
	if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
		return "", false
	}
	abs, err := filepath.Abs(event.Name)
	if err != nil {
		return "", false
	}
	_, ok := w.files[abs]
	return abs, ok
}

func sortedPaths(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for p := range set {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}
