package testutil

import (
	"context"
	"slices"
	"sync"

	"github.com/spf13/afero"

	"github.com/zjrosen/regcascade/internal/errs"
	"github.com/zjrosen/regcascade/internal/invoker"
)

// Compile-time check that FakeRunner implements invoker.Runner.
var _ invoker.Runner = (*FakeRunner)(nil)

// FakeRunner records invocations instead of spawning processes. When Fs is
// set, a successful run creates the file named by the argument after
// "--output" with ".xfm" appended, as the engine would. Commands without
// "--output" are treated as tools writing their last argument.
type FakeRunner struct {
	Fs       afero.Fs
	ExitCode int
	Stderr   string

	mu    sync.Mutex
	calls []invoker.Invocation
}

// Run records inv and simulates the engine.
func (f *FakeRunner) Run(_ context.Context, inv invoker.Invocation) (invoker.Result, error) {
	f.mu.Lock()
	f.calls = append(f.calls, inv)
	f.mu.Unlock()

	res := invoker.Result{ExitCode: f.ExitCode, Stderr: f.Stderr}
	if f.ExitCode != 0 {
		return res, &errs.ExternalProcessError{Args: inv.Args, ExitCode: f.ExitCode, Stderr: f.Stderr}
	}
	if f.Fs != nil && len(inv.Args) > 0 {
		if err := afero.WriteFile(f.Fs, producedFile(inv.Args), nil, 0o644); err != nil {
			return res, err
		}
	}
	return res, nil
}

// Calls returns a copy of the recorded invocations.
func (f *FakeRunner) Calls() []invoker.Invocation {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]invoker.Invocation(nil), f.calls...)
}

// CallCount returns the number of recorded invocations.
func (f *FakeRunner) CallCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func producedFile(args []string) string {
	if i := slices.Index(args, "--output"); i >= 0 && i+1 < len(args) {
		return args[i+1] + ".xfm"
	}
	return args[len(args)-1]
}
