// Package config provides configuration types and defaults for regcascade.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/zjrosen/regcascade/internal/log"
	"github.com/zjrosen/regcascade/internal/tracing"
)

// Config holds all configuration options for regcascade.
type Config struct {
	// StateDir holds the ledger, traces and the project config.
	// Default: ./.regcascade
	StateDir string                    `mapstructure:"state_dir"`
	Engine   EngineConfig              `mapstructure:"engine"`
	Workdir  WorkdirConfig             `mapstructure:"workdir"`
	Resample ResampleConfig            `mapstructure:"resample"`
	Ledger   LedgerConfig              `mapstructure:"ledger"`
	Tracing  tracing.Config            `mapstructure:"tracing"`
	Metrics  MetricsConfig             `mapstructure:"metrics"`
	Batch    BatchConfig               `mapstructure:"batch"`
	Profiles map[string]map[string]any `mapstructure:"profiles"`
}

// EngineConfig selects the registration binary.
type EngineConfig struct {
	Executable     string `mapstructure:"executable"`
	Dimensionality int    `mapstructure:"dimensionality"`
}

// WorkdirConfig controls where intermediate files live.
type WorkdirConfig struct {
	// BaseDir is the parent of per-run working directories. Empty means the OS temp dir.
	BaseDir string `mapstructure:"base_dir"`
	// Keep leaves working directories in place after a run.
	Keep bool `mapstructure:"keep"`
}

// ResampleConfig holds the argv templates used to downsample inputs.
// Placeholders: {input}, {output}, {step}.
type ResampleConfig struct {
	Image []string `mapstructure:"image"`
	Label []string `mapstructure:"label"`
}

// LedgerConfig controls the invocation ledger.
type LedgerConfig struct {
	Enabled bool `mapstructure:"enabled"`
	// Path of the sqlite database. Default: <state dir>/ledger.db
	Path string `mapstructure:"path"`
}

// MetricsConfig controls prometheus textfile export.
type MetricsConfig struct {
	// TextfilePath, when set, receives the metrics after every command.
	TextfilePath string `mapstructure:"textfile_path"`
}

// BatchConfig controls the batch worker pool.
type BatchConfig struct {
	Workers  int  `mapstructure:"workers"`
	FailFast bool `mapstructure:"fail_fast"`
}

// Defaults returns a Config with sensible default values.
func Defaults() Config {
	return Config{
		Engine: EngineConfig{
			Executable:     "antsRegistration",
			Dimensionality: 3,
		},
		Resample: ResampleConfig{
			Image: []string{"mincresample", "-q", "-clobber", "-trilinear",
				"-step", "{step}", "{step}", "{step}", "{input}", "{output}"},
			Label: []string{"mincresample", "-q", "-clobber", "-nearest_neighbour", "-labels", "-byte",
				"-step", "{step}", "{step}", "{step}", "{input}", "{output}"},
		},
		Ledger:   LedgerConfig{Enabled: true},
		Tracing:  tracing.DefaultConfig(),
		Batch:    BatchConfig{Workers: 2},
		Profiles: map[string]map[string]any{},
	}
}

// SetDefaults registers Defaults on v key by key, so a config file only
// needs the keys it changes.
func SetDefaults(v *viper.Viper) {
	d := Defaults()
	v.SetDefault("engine.executable", d.Engine.Executable)
	v.SetDefault("engine.dimensionality", d.Engine.Dimensionality)
	v.SetDefault("workdir.keep", d.Workdir.Keep)
	v.SetDefault("resample.image", d.Resample.Image)
	v.SetDefault("resample.label", d.Resample.Label)
	v.SetDefault("ledger.enabled", d.Ledger.Enabled)
	v.SetDefault("tracing.enabled", d.Tracing.Enabled)
	v.SetDefault("tracing.exporter", d.Tracing.Exporter)
	v.SetDefault("tracing.otlp_endpoint", d.Tracing.OTLPEndpoint)
	v.SetDefault("tracing.sample_rate", d.Tracing.SampleRate)
	v.SetDefault("tracing.service_name", d.Tracing.ServiceName)
	v.SetDefault("batch.workers", d.Batch.Workers)
	v.SetDefault("batch.fail_fast", d.Batch.FailFast)
}

// Validate checks the whole configuration.
func (c Config) Validate() error {
	if err := ValidateEngine(c.Engine); err != nil {
		return err
	}
	if err := ValidateWorkdir(c.Workdir); err != nil {
		return err
	}
	if err := ValidateResample(c.Resample); err != nil {
		return err
	}
	if err := ValidateTracing(c.Tracing); err != nil {
		return err
	}
	if c.Batch.Workers < 0 {
		return fmt.Errorf("batch.workers must not be negative, got %d", c.Batch.Workers)
	}
	for name, p := range c.Profiles {
		if strings.TrimSpace(name) == "" {
			return fmt.Errorf("profiles: profile name must not be empty")
		}
		if p == nil {
			return fmt.Errorf("profiles.%s must be a mapping", name)
		}
	}
	return nil
}

// ValidateEngine checks engine configuration for errors.
func ValidateEngine(e EngineConfig) error {
	if e.Dimensionality != 0 && (e.Dimensionality < 2 || e.Dimensionality > 4) {
		return fmt.Errorf("engine.dimensionality must be 2, 3 or 4, got %d", e.Dimensionality)
	}
	return nil
}

// ValidateWorkdir checks working directory configuration for errors.
func ValidateWorkdir(w WorkdirConfig) error {
	if w.BaseDir != "" && !filepath.IsAbs(w.BaseDir) {
		return fmt.Errorf("workdir.base_dir must be an absolute path, got %q", w.BaseDir)
	}
	return nil
}

// ValidateResample checks that configured templates read an input and write an output.
// Empty templates fall back to the built-in ones.
func ValidateResample(r ResampleConfig) error {
	for name, tmpl := range map[string][]string{"resample.image": r.Image, "resample.label": r.Label} {
		if len(tmpl) == 0 {
			continue
		}
		joined := strings.Join(tmpl, " ")
		if !strings.Contains(joined, "{input}") || !strings.Contains(joined, "{output}") {
			return fmt.Errorf("%s must contain {input} and {output}", name)
		}
	}
	return nil
}

// ValidateTracing checks tracing configuration for errors.
// Returns nil if the configuration is valid (empty values use defaults).
func ValidateTracing(t tracing.Config) error {
	if t.SampleRate < 0.0 || t.SampleRate > 1.0 {
		return fmt.Errorf("tracing.sample_rate must be between 0.0 and 1.0, got %v", t.SampleRate)
	}

	if t.Exporter != "" {
		switch t.Exporter {
		case tracing.ExporterNone, tracing.ExporterFile, tracing.ExporterStdout, tracing.ExporterOTLP:
		default:
			return fmt.Errorf("tracing.exporter must be \"none\", \"file\", \"stdout\", or \"otlp\", got %q", t.Exporter)
		}
	}

	// Path requirements only matter when tracing is on.
	if t.Enabled && t.Exporter == tracing.ExporterOTLP && t.OTLPEndpoint == "" {
		return fmt.Errorf("tracing.otlp_endpoint is required when exporter is \"otlp\"")
	}
	return nil
}

// DefaultConfigTemplate returns the default config as a YAML string with comments.
func DefaultConfigTemplate() string {
	return `# regcascade configuration

# Directory holding the ledger and traces (default: ./.regcascade)
# state_dir: /path/to/project/.regcascade

# Registration engine
engine:
  executable: antsRegistration
  dimensionality: 3

# Working directories for downsampled inputs
workdir:
  # base_dir: /scratch      # Parent directory (default: OS temp dir)
  keep: false               # Keep working directories after each run

# Downsampling tools. Placeholders: {input}, {output}, {step}
resample:
  image: [mincresample, -q, -clobber, -trilinear, -step, "{step}", "{step}", "{step}", "{input}", "{output}"]
  label: [mincresample, -q, -clobber, -nearest_neighbour, -labels, -byte, -step, "{step}", "{step}", "{step}", "{input}", "{output}"]

# Invocation ledger (sqlite)
ledger:
  enabled: true
  # path: /path/to/ledger.db

# Tracing
# tracing:
#   enabled: false
#   exporter: file                 # none, file, stdout, otlp
#   file_path: .regcascade/traces/traces.jsonl
#   otlp_endpoint: localhost:4317
#   sample_rate: 1.0

# Prometheus textfile export
# metrics:
#   textfile_path: /var/lib/node_exporter/regcascade.prom

# Batch worker pool
batch:
  workers: 2
  fail_fast: false

# Named parameter profiles. Jobs select one with "profile:" and their own
# parameters are merged on top.
profiles:
  fast-nonlinear:
    conf: {"32": 20, "16": 20, "8": 10}
    convergence: "1.e-5,10"
  rigid:
    rigid: true
    cost_function: Mattes
`
}

// WriteDefaultConfig creates a config file at the given path with default settings and comments.
// Creates the parent directory if it doesn't exist.
func WriteDefaultConfig(configPath string) error {
	log.Debug(log.CatConfig, "Writing default config", "path", configPath)

	var probe map[string]any
	if err := yaml.Unmarshal([]byte(DefaultConfigTemplate()), &probe); err != nil {
		return fmt.Errorf("default config template is not valid YAML: %w", err)
	}

	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		log.ErrorErr(log.CatConfig, "Failed to create config directory", err, "dir", dir)
		return fmt.Errorf("creating config directory: %w", err)
	}

	if err := os.WriteFile(configPath, []byte(DefaultConfigTemplate()), 0o600); err != nil {
		log.ErrorErr(log.CatConfig, "Failed to write config file", err, "path", configPath)
		return fmt.Errorf("writing config file: %w", err)
	}

	log.Info(log.CatConfig, "Created default config", "path", configPath)
	return nil
}
