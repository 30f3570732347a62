// Package registration turns job descriptions into engine invocations: it
// decodes parameters, compiles the level schedule, assembles the command,
// prepares downsampled inputs and hands the plan to the invoker.
package registration

import (
	"bytes"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"

	"github.com/zjrosen/regcascade/internal/command"
	"github.com/zjrosen/regcascade/internal/errs"
	"github.com/zjrosen/regcascade/internal/modality"
)

// Mode selects the registration cascade.
type Mode string

const (
	ModeLinear    Mode = "linear"
	ModeNonlinear Mode = "nonlinear"
)

// ParseMode accepts the mode names and their short forms.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "linear", "lin", "affine":
		return ModeLinear, nil
	case "nonlinear", "nl", "non-linear":
		return ModeNonlinear, nil
	default:
		return "", errs.Configf("mode", "unknown mode %q", s)
	}
}

// Dialect maps the mode onto the engine dialect.
func (m Mode) Dialect() command.Dialect {
	if m == ModeNonlinear {
		return command.DialectNonlinear
	}
	return command.DialectLinear
}

// DefaultLevel is the terminal geometric level when none is given.
const DefaultLevel = 32

// Job describes one registration. Paths relative to the job file are
// resolved against its directory by LoadJob.
type Job struct {
	Name       string         `yaml:"name"`
	Mode       Mode           `yaml:"mode"`
	Source     modality.Paths `yaml:"source"`
	Target     modality.Paths `yaml:"target"`
	Output     string         `yaml:"output"`
	SourceMask string         `yaml:"source_mask"`
	TargetMask string         `yaml:"target_mask"`
	InitXfm    string         `yaml:"init_xfm"`
	Downsample float64        `yaml:"downsample"`
	Start      int            `yaml:"start"`
	Level      int            `yaml:"level"`
	Close      *bool          `yaml:"close"`
	Verbose    int            `yaml:"verbose"`
	Profile    string         `yaml:"profile"`
	Parameters map[string]any `yaml:"parameters"`
}

// LoadJob reads and validates a YAML job file.
func LoadJob(fs afero.Fs, path string) (Job, error) {
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return Job{}, fmt.Errorf("reading job %s: %w", path, err)
	}
	job, err := ParseJob(data)
	if err != nil {
		return Job{}, fmt.Errorf("job %s: %w", path, err)
	}
	if job.Name == "" {
		job.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	job.resolve(filepath.Dir(path))
	return job, job.Validate()
}

// ParseJob decodes a job document. Unknown keys are ignored.
func ParseJob(data []byte) (Job, error) {
	var job Job
	dec := yaml.NewDecoder(bytes.NewReader(data))
	if err := dec.Decode(&job); err != nil {
		return Job{}, errs.Configf("job", "%v", err)
	}
	mode, err := ParseMode(string(job.Mode))
	if err != nil {
		return Job{}, err
	}
	job.Mode = mode
	return job, nil
}

// Validate checks the fields every job needs.
func (j Job) Validate() error {
	if len(j.Source) == 0 {
		return errs.Configf("source", "at least one source image is required")
	}
	if len(j.Target) == 0 {
		return errs.Configf("target", "at least one target image is required")
	}
	if j.Output == "" {
		return errs.Configf("output", "output transform path is required")
	}
	if j.Downsample < 0 {
		return errs.Configf("downsample", "must not be negative, got %g", j.Downsample)
	}
	if j.Verbose < 0 {
		return errs.Configf("verbose", "must not be negative, got %d", j.Verbose)
	}
	return nil
}

// Geometric reports whether the job uses the halving cascade.
func (j Job) Geometric() bool {
	return j.Mode == ModeNonlinear || j.Start != 0 || j.Level != 0
}

// Levels returns the geometric start and terminal levels with defaults
// applied: level defaults to DefaultLevel and start to level.
func (j Job) Levels() (start, level int) {
	start, level = j.Start, j.Level
	if level == 0 {
		level = DefaultLevel
	}
	if start == 0 {
		start = level
	}
	return start, level
}

// CloseStart reports whether zero-initialization is suppressed. Nonlinear
// jobs start close unless told otherwise.
func (j Job) CloseStart() bool {
	if j.Close != nil {
		return *j.Close
	}
	return j.Mode == ModeNonlinear
}

func (j *Job) resolve(dir string) {
	abs := func(p string) string {
		if p == "" || filepath.IsAbs(p) {
			return p
		}
		return filepath.Join(dir, p)
	}
	for i := range j.Source {
		j.Source[i] = abs(j.Source[i])
	}
	for i := range j.Target {
		j.Target[i] = abs(j.Target[i])
	}
	j.Output = abs(j.Output)
	j.SourceMask = abs(j.SourceMask)
	j.TargetMask = abs(j.TargetMask)
	j.InitXfm = abs(j.InitXfm)
}
