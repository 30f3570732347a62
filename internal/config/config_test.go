package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/require"

	"github.com/zjrosen/regcascade/internal/tracing"
)

// loadConfigFromYAML is a helper to load config from YAML string.
func loadConfigFromYAML(t *testing.T, yaml string) Config {
	t.Helper()

	configPath := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte(yaml), 0o644))

	v := viper.New()
	SetDefaults(v)
	v.SetConfigFile(configPath)
	require.NoError(t, v.ReadInConfig())

	var cfg Config
	require.NoError(t, v.Unmarshal(&cfg))
	return cfg
}

func TestDefaults(t *testing.T) {
	cfg := Defaults()
	require.Equal(t, "antsRegistration", cfg.Engine.Executable)
	require.Equal(t, 3, cfg.Engine.Dimensionality)
	require.True(t, cfg.Ledger.Enabled)
	require.False(t, cfg.Tracing.Enabled)
	require.Equal(t, tracing.ExporterFile, cfg.Tracing.Exporter)
	require.Equal(t, 2, cfg.Batch.Workers)
	require.Contains(t, cfg.Resample.Image, "{input}")
	require.Contains(t, cfg.Resample.Label, "-labels")
	require.NoError(t, cfg.Validate())
}

func TestDefaultConfigTemplate_Loads(t *testing.T) {
	cfg := loadConfigFromYAML(t, DefaultConfigTemplate())
	require.NoError(t, cfg.Validate())

	def := Defaults()
	require.Equal(t, def.Engine, cfg.Engine)
	require.Equal(t, def.Resample, cfg.Resample)
	require.Equal(t, def.Batch, cfg.Batch)

	require.Contains(t, cfg.Profiles, "fast-nonlinear")
	require.Equal(t, "1.e-5,10", cfg.Profiles["fast-nonlinear"]["convergence"])
	require.Equal(t, true, cfg.Profiles["rigid"]["rigid"])
}

func TestLoad_Overrides(t *testing.T) {
	cfg := loadConfigFromYAML(t, `
engine:
  executable: /opt/ants/bin/antsRegistration
workdir:
  base_dir: /scratch
  keep: true
tracing:
  enabled: true
  exporter: stdout
batch:
  workers: 8
`)
	require.Equal(t, "/opt/ants/bin/antsRegistration", cfg.Engine.Executable)
	require.Equal(t, 3, cfg.Engine.Dimensionality, "unset keys keep defaults")
	require.Equal(t, WorkdirConfig{BaseDir: "/scratch", Keep: true}, cfg.Workdir)
	require.True(t, cfg.Tracing.Enabled)
	require.Equal(t, tracing.ExporterStdout, cfg.Tracing.Exporter)
	require.Equal(t, 8, cfg.Batch.Workers)
	require.NoError(t, cfg.Validate())
}

func TestValidateEngine(t *testing.T) {
	require.NoError(t, ValidateEngine(EngineConfig{}))
	require.NoError(t, ValidateEngine(EngineConfig{Dimensionality: 2}))

	err := ValidateEngine(EngineConfig{Dimensionality: 5})
	require.Error(t, err)
	require.Contains(t, err.Error(), "engine.dimensionality")
}

func TestValidateWorkdir(t *testing.T) {
	require.NoError(t, ValidateWorkdir(WorkdirConfig{}))
	require.NoError(t, ValidateWorkdir(WorkdirConfig{BaseDir: "/tmp/x"}))

	err := ValidateWorkdir(WorkdirConfig{BaseDir: "relative/dir"})
	require.Error(t, err)
	require.Contains(t, err.Error(), "absolute path")
}

func TestValidateResample(t *testing.T) {
	require.NoError(t, ValidateResample(ResampleConfig{}))

	err := ValidateResample(ResampleConfig{Image: []string{"resample", "{input}"}})
	require.Error(t, err)
	require.Contains(t, err.Error(), "resample.image")
}

func TestValidateTracing(t *testing.T) {
	tests := []struct {
		name    string
		cfg     tracing.Config
		wantErr string
	}{
		{name: "defaults", cfg: tracing.DefaultConfig()},
		{name: "empty", cfg: tracing.Config{}},
		{name: "sample rate high", cfg: tracing.Config{SampleRate: 1.5}, wantErr: "sample_rate"},
		{name: "sample rate negative", cfg: tracing.Config{SampleRate: -0.1}, wantErr: "sample_rate"},
		{name: "bad exporter", cfg: tracing.Config{Exporter: "jaeger"}, wantErr: "tracing.exporter"},
		{name: "otlp without endpoint", cfg: tracing.Config{Enabled: true, Exporter: tracing.ExporterOTLP}, wantErr: "otlp_endpoint"},
		{name: "otlp disabled without endpoint", cfg: tracing.Config{Exporter: tracing.ExporterOTLP}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateTracing(tt.cfg)
			if tt.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			require.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestConfig_ValidateBatchAndProfiles(t *testing.T) {
	cfg := Defaults()
	cfg.Batch.Workers = -1
	require.ErrorContains(t, cfg.Validate(), "batch.workers")

	cfg = Defaults()
	cfg.Profiles = map[string]map[string]any{"broken": nil}
	require.ErrorContains(t, cfg.Validate(), "profiles.broken")
}

func TestSetDefaults_WithoutFile(t *testing.T) {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	require.NoError(t, v.Unmarshal(&cfg))
	def := Defaults()
	require.Equal(t, def.Engine, cfg.Engine)
	require.Equal(t, def.Resample, cfg.Resample)
	require.Equal(t, def.Tracing, cfg.Tracing)
	require.Equal(t, def.Ledger, cfg.Ledger)
}

func TestWriteDefaultConfig(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "nested", "config.yaml")
	require.NoError(t, WriteDefaultConfig(configPath))

	data, err := os.ReadFile(configPath)
	require.NoError(t, err)
	require.Equal(t, DefaultConfigTemplate(), string(data))

	info, err := os.Stat(configPath)
	require.NoError(t, err)
	require.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}
