package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"

	"github.com/zjrosen/regcascade/internal/errs"
	"github.com/zjrosen/regcascade/internal/presentation"
	"github.com/zjrosen/regcascade/internal/registration"
	"github.com/zjrosen/regcascade/internal/testutil"
)

// execute runs the root command with args and returns its stdout.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cfgFile = ""
	runJSON, runWatch, planJSON, planDiff, batchJSON, batchFailFast = false, false, false, false, false, false
	historyJob, historyOutput, historyStatus = "", "", ""

	var out, errOut bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&errOut)
	rootCmd.SetArgs(args)
	t.Cleanup(func() { rootCmd.SetArgs(nil) })

	err := rootCmd.ExecuteContext(context.Background())
	return out.String(), err
}

// project writes a config file pointing the state dir into a temp dir and
// installs a fake engine.
func project(t *testing.T) (configPath string, b *testutil.Builder, runner *testutil.FakeRunner) {
	t.Helper()
	dir := t.TempDir()
	configPath = filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte("state_dir: "+filepath.Join(dir, "state")+"\n"), 0o600))

	fs := afero.NewOsFs()
	runner = &testutil.FakeRunner{Fs: fs}
	engineRunner = runner
	t.Cleanup(func() { engineRunner = nil })

	return configPath, testutil.NewBuilder(t, fs, filepath.Join(dir, "data")).WithStandardImages(), runner
}

func TestRun_ThenHistoryAndPlanDiff(t *testing.T) {
	configPath, b, runner := project(t)
	jobs := b.WithJob("lin", testutil.Source("t1.mnc"), testutil.Target("ref_t1.mnc"), testutil.Output("lin.xfm")).WriteJobs()

	out, err := execute(t, "run", "-c", configPath, jobs[0])
	require.NoError(t, err)
	require.Contains(t, out, "succeeded")
	require.Equal(t, 1, runner.CallCount())

	out, err = execute(t, "run", "-c", configPath, "--json", jobs[0])
	require.NoError(t, err)
	var results []presentation.ResultDTO
	require.NoError(t, json.Unmarshal([]byte(out), &results))
	require.Len(t, results, 1)
	require.Equal(t, "skipped", results[0].Status)
	require.Equal(t, 1, runner.CallCount(), "existing output is not rebuilt")

	out, err = execute(t, "history", "list", "-c", configPath, "--job", "lin")
	require.NoError(t, err)
	var records []presentation.InvocationDTO
	require.NoError(t, json.Unmarshal([]byte(out), &records))
	require.Len(t, records, 2)
	require.Equal(t, "skipped", records[0].Status)
	require.Equal(t, "succeeded", records[1].Status)

	out, err = execute(t, "history", "show", "-c", configPath, records[1].ID[:8])
	require.NoError(t, err)
	require.Contains(t, out, records[1].ID)

	out, err = execute(t, "plan", "-c", configPath, "--diff", jobs[0])
	require.NoError(t, err)
	require.Contains(t, out, "unchanged since invocation")
}

func TestPlanDiff_DownsampledRunIsUnchanged(t *testing.T) {
	configPath, b, runner := project(t)
	jobs := b.WithJob("ds", testutil.Source("t1.mnc"), testutil.Target("ref_t1.mnc"), testutil.Output("ds.xfm"),
		testutil.Field("downsample", 2.0)).WriteJobs()

	_, err := execute(t, "run", "-c", configPath, jobs[0])
	require.NoError(t, err)
	require.Greater(t, runner.CallCount(), 1, "inputs are resampled before registering")

	out, err := execute(t, "plan", "-c", configPath, "--diff", jobs[0])
	require.NoError(t, err)
	require.Contains(t, out, "unchanged since invocation")
}

func TestPlan_PrintsWithoutRunning(t *testing.T) {
	configPath, b, runner := project(t)
	jobs := b.WithJob("nl", testutil.Mode("nonlinear"), testutil.Source("t1.mnc"), testutil.Target("ref_t1.mnc"),
		testutil.Output("nl.xfm"), testutil.Levels(8, 2)).WriteJobs()

	out, err := execute(t, "plan", "-c", configPath, "--json", jobs[0])
	require.NoError(t, err)

	var plan presentation.PlanDTO
	require.NoError(t, json.Unmarshal([]byte(out), &plan))
	require.Equal(t, "nonlinear", plan.Dialect)
	require.Contains(t, plan.Args, "8x4x2")
	require.Equal(t, 0, runner.CallCount())

	out, err = execute(t, "plan", "-c", configPath, "--diff", jobs[0])
	require.NoError(t, err)
	require.Contains(t, out, "no recorded invocation")
}

func TestBatch_ReportsFailures(t *testing.T) {
	configPath, b, _ := project(t)
	b.WithJob("ok", testutil.Source("t1.mnc"), testutil.Target("ref_t1.mnc"), testutil.Output("ok.xfm")).
		WithJob("broken", testutil.Source("t1.mnc"))
	b.WriteJobs()

	out, err := execute(t, "batch", "-c", configPath, filepath.Join(b.Dir(), "jobs", "*.yaml"))
	require.Error(t, err)
	require.Contains(t, err.Error(), "1 of 2 job(s) failed")
	require.Contains(t, out, "1 succeeded, 0 skipped, 1 failed")
}

func TestConfigInit_RefusesToOverwrite(t *testing.T) {
	dir := t.TempDir()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })

	out, err := execute(t, "config", "init")
	require.NoError(t, err)
	require.Contains(t, out, filepath.Join(".regcascade", "config.yaml"))

	_, err = execute(t, "config", "init")
	require.ErrorContains(t, err, "already exists")

	out, err = execute(t, "config", "show")
	require.NoError(t, err)
	require.Contains(t, out, "fast-nonlinear")
}

func TestBuildRegisterJob_Nonlinear(t *testing.T) {
	f := &registerFlags{output: "out/nl.xfm", start: defaultStart, level: 4, iter: "40x30x20x10"}
	job, err := buildRegisterJob(registration.ModeNonlinear, "t1.mnc", "/atlas/ref.mnc", f, func(string) bool { return false })
	require.NoError(t, err)

	wd, err := os.Getwd()
	require.NoError(t, err)
	require.Equal(t, "nl", job.Name)
	require.Equal(t, filepath.Join(wd, "t1.mnc"), job.Source[0])
	require.Equal(t, "/atlas/ref.mnc", job.Target[0])
	require.Equal(t, filepath.Join(wd, "out", "nl.xfm"), job.Output)
	require.Equal(t, 32, job.Start)
	require.Equal(t, 4, job.Level)
	require.True(t, job.CloseStart())
	require.Equal(t, map[string]any{"32": "40", "16": "30", "8": "20", "4": "10"}, job.Parameters[registration.KeyConf])

	p, err := registration.DecodeParameters(job.Parameters)
	require.NoError(t, err)
	require.Equal(t, "20", p.Overrides.Iterations.Named["8"])
}

func TestBuildRegisterJob_Linear(t *testing.T) {
	f := &registerFlags{output: "/o/lin.xfm", start: defaultStart, level: defaultLevel, close: true, cost: "CC", par: "1,4"}
	job, err := buildRegisterJob(registration.ModeLinear, "/i/s.mnc", "/i/t.mnc", f, func(string) bool { return false })
	require.NoError(t, err)
	require.False(t, job.Geometric(), "three linear levels unless start or level is given")
	require.True(t, job.CloseStart())
	require.Equal(t, "CC", job.Parameters[registration.KeyCostFunction])
	require.Equal(t, "1,4", job.Parameters[registration.KeyCostFunctionPar])

	job, err = buildRegisterJob(registration.ModeLinear, "/i/s.mnc", "/i/t.mnc",
		&registerFlags{output: "/o/lin.xfm", start: 8, level: 2}, func(name string) bool { return name == "start" })
	require.NoError(t, err)
	require.True(t, job.Geometric())
	require.False(t, job.CloseStart())

	_, err = buildRegisterJob(registration.ModeLinear, "/i/s.mnc", "/i/t.mnc", &registerFlags{}, func(string) bool { return false })
	require.ErrorIs(t, err, errs.ErrConfiguration)
}
