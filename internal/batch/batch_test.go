package batch

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"

	"github.com/zjrosen/regcascade/internal/errs"
	"github.com/zjrosen/regcascade/internal/gate"
	"github.com/zjrosen/regcascade/internal/invoker"
	"github.com/zjrosen/regcascade/internal/pubsub"
	"github.com/zjrosen/regcascade/internal/registration"
	"github.com/zjrosen/regcascade/internal/testutil"
)

func newService(fs afero.Fs, runner *testutil.FakeRunner) *registration.Service {
	return registration.New(invoker.New(runner, invoker.WithGate(gate.New(fs))))
}

func TestDiscover(t *testing.T) {
	fs := afero.NewMemMapFs()
	testutil.Touch(t, fs,
		"/data/jobs/a.yaml",
		"/data/jobs/sub/b.yaml",
		"/data/jobs/sub/deep/c.yaml",
		"/data/jobs/notes.txt",
	)

	got, err := Discover(fs, []string{"/data/jobs/**/*.yaml"})
	require.NoError(t, err)
	require.Equal(t, []string{
		"/data/jobs/a.yaml",
		"/data/jobs/sub/b.yaml",
		"/data/jobs/sub/deep/c.yaml",
	}, got)

	got, err = Discover(fs, []string{"/data/jobs/*.yaml", "/data/jobs/a.yaml", "/nowhere/*.yaml"})
	require.NoError(t, err)
	require.Equal(t, []string{"/data/jobs/a.yaml"}, got)
}

func TestDiscover_BadPattern(t *testing.T) {
	_, err := Discover(afero.NewMemMapFs(), []string{"/data/[.yaml"})
	require.Error(t, err)
}

func TestRunner_RunsAllJobs(t *testing.T) {
	fs := afero.NewMemMapFs()
	b := testutil.NewBuilder(t, fs, "/data").WithStandardImages().WithStandardJobs()
	jobPaths := b.WriteJobs()
	testutil.Touch(t, fs, b.Path("nl.xfm"))

	runner := &testutil.FakeRunner{Fs: fs}
	broker := pubsub.NewBroker[invoker.Event]()
	defer broker.Close()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	events := broker.Subscribe(ctx)

	r := NewRunner(fs, newService(fs, runner), WithWorkers(4), WithEvents(broker))
	results, err := r.Run(context.Background(), jobPaths)
	require.NoError(t, err)
	require.Len(t, results, 2)

	require.Equal(t, "lin", results[0].Job)
	require.Equal(t, invoker.StatusSucceeded, results[0].Outcome.Status)
	require.Equal(t, "nl", results[1].Job)
	require.Equal(t, invoker.StatusSkipped, results[1].Outcome.Status)
	require.Equal(t, Summary{Succeeded: 1, Skipped: 1}, Summarize(results))
	require.Equal(t, 1, runner.CallCount())

	var started, finished int
	timeout := time.After(time.Second)
	for started+finished < 4 {
		select {
		case e := <-events:
			switch e.Type {
			case pubsub.JobStarted:
				started++
			case pubsub.JobFinished:
				finished++
			}
		case <-timeout:
			t.Fatalf("got %d started and %d finished events", started, finished)
		}
	}
}

func TestRunner_ReportsLoadAndEngineFailures(t *testing.T) {
	fs := afero.NewMemMapFs()
	b := testutil.NewBuilder(t, fs, "/data").WithStandardImages().
		WithJob("ok", testutil.Source("t1.mnc"), testutil.Target("ref_t1.mnc"), testutil.Output("ok.xfm")).
		WithJob("broken", testutil.Source("t1.mnc"))
	jobPaths := b.WriteJobs()

	runner := &testutil.FakeRunner{Fs: fs}
	results, err := NewRunner(fs, newService(fs, runner)).Run(context.Background(), jobPaths)
	require.NoError(t, err, "failures are per job unless fail-fast")
	require.NoError(t, results[0].Err)
	require.ErrorIs(t, results[1].Err, errs.ErrConfiguration)
	require.Equal(t, Summary{Succeeded: 1, Failed: 1}, Summarize(results))
}

type blockingRegistrar struct {
	mu      sync.Mutex
	active  int
	maxSeen int
	fail    string
}

func (b *blockingRegistrar) Register(ctx context.Context, job registration.Job) (invoker.Outcome, error) {
	b.mu.Lock()
	b.active++
	if b.active > b.maxSeen {
		b.maxSeen = b.active
	}
	b.mu.Unlock()

	select {
	case <-time.After(20 * time.Millisecond):
	case <-ctx.Done():
	}

	b.mu.Lock()
	b.active--
	b.mu.Unlock()

	if job.Name == b.fail {
		return invoker.Outcome{Status: invoker.StatusFailed}, errors.New("engine exploded")
	}
	return invoker.Outcome{Status: invoker.StatusSucceeded}, nil
}

func writeJobs(t *testing.T, fs afero.Fs, n int) []string {
	t.Helper()
	var out []string
	for i := range n {
		p := filepath.Join("/jobs", string(rune('a'+i))+".yaml")
		testutil.WriteYAML(t, fs, p, map[string]any{"source": "s.mnc", "target": "t.mnc", "output": "o.xfm"})
		out = append(out, p)
	}
	return out
}

func TestRunner_BoundsConcurrency(t *testing.T) {
	fs := afero.NewMemMapFs()
	reg := &blockingRegistrar{}
	results, err := NewRunner(fs, reg, WithWorkers(2)).Run(context.Background(), writeJobs(t, fs, 6))
	require.NoError(t, err)
	require.Len(t, results, 6)
	require.LessOrEqual(t, reg.maxSeen, 2)
	require.Equal(t, 6, Summarize(results).Succeeded)
}

func TestRunner_FailFast(t *testing.T) {
	fs := afero.NewMemMapFs()
	reg := &blockingRegistrar{fail: "a"}
	results, err := NewRunner(fs, reg, WithWorkers(1), WithFailFast(true)).Run(context.Background(), writeJobs(t, fs, 4))
	require.Error(t, err)
	require.Contains(t, err.Error(), "engine exploded")
	require.Error(t, results[0].Err)
	for _, r := range results[1:] {
		require.ErrorIs(t, r.Err, context.Canceled)
	}
}
