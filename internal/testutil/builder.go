// Package testutil provides fixtures shared by the registration tests:
// job file builders, fake engine runners and a throwaway ledger.
package testutil

import (
	"path/filepath"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

// Builder creates image files and job documents in a scratch directory.
type Builder struct {
	t    *testing.T
	fs   afero.Fs
	dir  string
	jobs []map[string]any
}

// NewBuilder creates a builder writing under dir on fs.
func NewBuilder(t *testing.T, fs afero.Fs, dir string) *Builder {
	t.Helper()
	require.NoError(t, fs.MkdirAll(dir, 0o750))
	return &Builder{t: t, fs: fs, dir: dir}
}

// Dir returns the scratch directory.
func (b *Builder) Dir() string { return b.dir }

// Path joins name onto the scratch directory.
func (b *Builder) Path(name string) string {
	return filepath.Join(b.dir, name)
}

// WithImage creates an empty image file and returns the builder.
func (b *Builder) WithImage(name string) *Builder {
	b.t.Helper()
	Touch(b.t, b.fs, b.Path(name))
	return b
}

// WithJob adds a job document built from opts.
func (b *Builder) WithJob(name string, opts ...JobOption) *Builder {
	job := map[string]any{"name": name}
	for _, opt := range opts {
		opt(b, job)
	}
	b.jobs = append(b.jobs, job)
	return b
}

// Jobs returns the accumulated job documents.
func (b *Builder) Jobs() []map[string]any {
	return b.jobs
}

// WriteJobs writes every job to <dir>/jobs/<name>.yaml and returns the paths.
func (b *Builder) WriteJobs() []string {
	b.t.Helper()
	var out []string
	for _, job := range b.jobs {
		name, _ := job["name"].(string)
		p := filepath.Join(b.dir, "jobs", name+".yaml")
		WriteYAML(b.t, b.fs, p, job)
		out = append(out, p)
	}
	return out
}

// WriteYAML marshals v to path on fs.
func WriteYAML(t *testing.T, fs afero.Fs, path string, v any) {
	t.Helper()
	data, err := yaml.Marshal(v)
	require.NoError(t, err)
	require.NoError(t, fs.MkdirAll(filepath.Dir(path), 0o750))
	require.NoError(t, afero.WriteFile(fs, path, data, 0o644))
}

// Touch creates empty files, including parent directories.
func Touch(t *testing.T, fs afero.Fs, paths ...string) {
	t.Helper()
	for _, p := range paths {
		require.NoError(t, fs.MkdirAll(filepath.Dir(p), 0o750))
		require.NoError(t, afero.WriteFile(fs, p, nil, 0o644))
	}
}
