package invoker

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os/exec"
	"time"

	"github.com/zjrosen/regcascade/internal/errs"
	"github.com/zjrosen/regcascade/internal/log"
)

// Invocation is one external process call.
type Invocation struct {
	Args []string
	Dir  string
	Env  []string

	// Stdout and Stderr, when set, receive the process streams as they are
	// produced in addition to being captured.
	Stdout io.Writer
	Stderr io.Writer
}

// Result is what a finished process left behind.
type Result struct {
	ExitCode int
	Stdout   string
	Stderr   string
	Duration time.Duration
}

// Runner executes invocations. Implementations block until the process exits.
type Runner interface {
	Run(ctx context.Context, inv Invocation) (Result, error)
}

// CommandFactoryFunc creates an exec.Cmd. Tests swap it to avoid spawning
// the real engine.
type CommandFactoryFunc func(ctx context.Context, name string, args ...string) *exec.Cmd

// Compile-time check that ProcessRunner implements Runner.
var _ Runner = (*ProcessRunner)(nil)

// ProcessRunner runs invocations as OS processes.
type ProcessRunner struct {
	commandFactory CommandFactoryFunc
}

// NewProcessRunner returns a runner using exec.CommandContext.
func NewProcessRunner() *ProcessRunner {
	return &ProcessRunner{commandFactory: exec.CommandContext}
}

// WithCommandFactory replaces the command factory.
func (r *ProcessRunner) WithCommandFactory(fn CommandFactoryFunc) *ProcessRunner {
	r.commandFactory = fn
	return r
}

// Run executes inv and waits for it. A non-zero exit, a start failure or a
// cancelled context yields *errs.ExternalProcessError.
func (r *ProcessRunner) Run(ctx context.Context, inv Invocation) (Result, error) {
	if len(inv.Args) == 0 {
		return Result{ExitCode: -1}, &errs.ExternalProcessError{ExitCode: -1, Err: errors.New("empty command")}
	}

	//nolint:gosec // G204: argv is assembled from validated job parameters
	cmd := r.commandFactory(ctx, inv.Args[0], inv.Args[1:]...)
	if inv.Dir != "" {
		cmd.Dir = inv.Dir
	}
	if len(inv.Env) > 0 {
		cmd.Env = append(cmd.Environ(), inv.Env...)
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = tee(&stdout, inv.Stdout)
	cmd.Stderr = tee(&stderr, inv.Stderr)

	log.Debug(log.CatInvoke, "Starting process", "executable", inv.Args[0], "args", len(inv.Args)-1)
	start := time.Now()
	err := cmd.Run()
	res := Result{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		Duration: time.Since(start),
	}

	if err != nil {
		res.ExitCode = -1
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			res.ExitCode = exitErr.ExitCode()
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			err = errors.Join(err, ctxErr)
		}
		log.Debug(log.CatInvoke, "Process failed", "executable", inv.Args[0], "exit_code", res.ExitCode, "duration", res.Duration)
		return res, &errs.ExternalProcessError{
			Args:     append([]string(nil), inv.Args...),
			ExitCode: res.ExitCode,
			Stderr:   res.Stderr,
			Err:      err,
		}
	}

	log.Debug(log.CatInvoke, "Process finished", "executable", inv.Args[0], "duration", res.Duration)
	return res, nil
}

func tee(buf *bytes.Buffer, w io.Writer) io.Writer {
	if w == nil {
		return buf
	}
	return io.MultiWriter(buf, w)
}
