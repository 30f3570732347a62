// Package workdir hands out intermediate file paths inside a per-context
// unique directory, so concurrent jobs never collide on temporary names.
package workdir

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/google/uuid"
	gocache "github.com/patrickmn/go-cache"
	"github.com/spf13/afero"

	"github.com/zjrosen/regcascade/internal/log"
)

// Cache owns one working directory and memoizes the paths handed out in it.
type Cache struct {
	fs   afero.Fs
	root string
	keep bool
	memo *gocache.Cache

	mu      sync.Mutex
	created bool
	closed  bool
}

// New returns a Cache rooted at <baseDir>/regcascade-<uuid>. The directory is
// created on first use. An empty baseDir means the OS temp dir.
func New(fs afero.Fs, baseDir string, keep bool) *Cache {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	if baseDir == "" {
		baseDir = os.TempDir()
	}
	return &Cache{
		fs:   fs,
		root: filepath.Join(baseDir, "regcascade-"+uuid.NewString()),
		keep: keep,
		memo: gocache.New(gocache.NoExpiration, 0),
	}
}

// Root returns the working directory path, created or not.
func (c *Cache) Root() string { return c.root }

// Path returns the path for name inside the working directory. Repeated
// calls with the same name return the same path.
func (c *Cache) Path(name string) (string, error) {
	if name == "" || filepath.Base(name) != name {
		return "", fmt.Errorf("invalid cache entry name %q", name)
	}
	if v, ok := c.memo.Get(name); ok {
		log.Debug(log.CatWorkdir, "Cache hit", "name", name)
		return v.(string), nil
	}
	if err := c.ensure(); err != nil {
		return "", err
	}

	p := filepath.Join(c.root, name)
	if err := c.memo.Add(name, p, gocache.NoExpiration); err != nil {
		// Another goroutine added it first; both computed the same path.
		v, _ := c.memo.Get(name)
		return v.(string), nil
	}
	return p, nil
}

// Entries returns every name handed out so far, sorted.
func (c *Cache) Entries() []string {
	items := c.memo.Items()
	names := make([]string, 0, len(items))
	for name := range items {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (c *Cache) ensure() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return fmt.Errorf("working directory %s already closed", c.root)
	}
	if c.created {
		return nil
	}
	if err := c.fs.MkdirAll(c.root, 0o750); err != nil {
		return fmt.Errorf("create working directory: %w", err)
	}
	c.created = true
	log.Debug(log.CatWorkdir, "Created working directory", "path", c.root)
	return nil
}

// Close removes the working directory unless keep was requested.
func (c *Cache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true
	c.memo.Flush()
	if !c.created || c.keep {
		if c.created {
			log.Info(log.CatWorkdir, "Keeping working directory", "path", c.root)
		}
		return nil
	}
	if err := c.fs.RemoveAll(c.root); err != nil {
		return fmt.Errorf("remove working directory: %w", err)
	}
	return nil
}
