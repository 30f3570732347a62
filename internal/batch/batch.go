// Package batch discovers job files and registers them on a bounded worker pool.
package batch

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/spf13/afero"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"golang.org/x/sync/errgroup"

	"github.com/zjrosen/regcascade/internal/invoker"
	"github.com/zjrosen/regcascade/internal/log"
	"github.com/zjrosen/regcascade/internal/pubsub"
	"github.com/zjrosen/regcascade/internal/registration"
	"github.com/zjrosen/regcascade/internal/tracing"
)

// DefaultWorkers is the pool size when none is configured.
const DefaultWorkers = 2

// Registrar registers one job. *registration.Service satisfies it.
type Registrar interface {
	Register(ctx context.Context, job registration.Job) (invoker.Outcome, error)
}

var _ Registrar = (*registration.Service)(nil)

// Result is the outcome of one job file.
type Result struct {
	Path    string
	Job     string
	Outcome invoker.Outcome
	Err     error
}

// Summary counts results by status.
type Summary struct {
	Succeeded int
	Skipped   int
	Failed    int
}

// Summarize counts results. Load and configuration errors count as failures.
func Summarize(results []Result) Summary {
	var s Summary
	for _, r := range results {
		switch {
		case r.Err != nil:
			s.Failed++
		case r.Outcome.Status == invoker.StatusSkipped:
			s.Skipped++
		default:
			s.Succeeded++
		}
	}
	return s
}

// Discover expands glob patterns (with ** support) into a sorted, de-duplicated
// list of job files.
func Discover(fs afero.Fs, patterns []string) ([]string, error) {
	seen := map[string]struct{}{}
	var out []string
	for _, pattern := range patterns {
		matches, err := glob(fs, pattern)
		if err != nil {
			return nil, fmt.Errorf("glob %q: %w", pattern, err)
		}
		if len(matches) == 0 {
			log.Warn(log.CatBatch, "Pattern matched no job files", "pattern", pattern)
		}
		for _, m := range matches {
			if _, dup := seen[m]; dup {
				continue
			}
			seen[m] = struct{}{}
			out = append(out, m)
		}
	}
	sort.Strings(out)
	return out, nil
}

func glob(fs afero.Fs, pattern string) ([]string, error) {
	abs, err := filepath.Abs(pattern)
	if err != nil {
		return nil, err
	}
	base, rel := doublestar.SplitPattern(filepath.ToSlash(abs))
	fsys := afero.NewIOFS(afero.NewBasePathFs(fs, filepath.FromSlash(base)))

	matches, err := doublestar.Glob(fsys, rel, doublestar.WithFilesOnly())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	out := make([]string, len(matches))
	for i, m := range matches {
		out[i] = filepath.Join(filepath.FromSlash(base), filepath.FromSlash(m))
	}
	return out, nil
}

// Runner registers job files concurrently.
type Runner struct {
	fs       afero.Fs
	reg      Registrar
	workers  int
	failFast bool
	events   pubsub.Publisher[invoker.Event]
	tracer   trace.Tracer
}

// Option configures a Runner.
type Option func(*Runner)

// WithWorkers bounds the number of concurrent jobs.
func WithWorkers(n int) Option { return func(r *Runner) { r.workers = n } }

// WithFailFast cancels remaining jobs after the first failure.
func WithFailFast(v bool) Option { return func(r *Runner) { r.failFast = v } }

// WithEvents publishes job start and finish events.
func WithEvents(p pubsub.Publisher[invoker.Event]) Option { return func(r *Runner) { r.events = p } }

// WithTracer wraps the batch in a span.
func WithTracer(t trace.Tracer) Option { return func(r *Runner) { r.tracer = t } }

// NewRunner returns a Runner loading job files from fs.
func NewRunner(fs afero.Fs, reg Registrar, opts ...Option) *Runner {
	r := &Runner{fs: fs, reg: reg, workers: DefaultWorkers}
	for _, opt := range opts {
		opt(r)
	}
	if r.workers < 1 {
		r.workers = 1
	}
	if r.tracer == nil {
		r.tracer = noop.NewTracerProvider().Tracer("noop")
	}
	return r
}

// Run registers every job file and returns one result per path, in input
// order. The returned error is the first failure when fail-fast is on, or
// the context error if the batch was cancelled.
func (r *Runner) Run(ctx context.Context, jobPaths []string) ([]Result, error) {
	ctx, span := r.tracer.Start(ctx, tracing.SpanBatch, trace.WithAttributes(
		attribute.Int("batch.jobs", len(jobPaths)),
		attribute.Int("batch.workers", r.workers),
	))
	defer span.End()

	results := make([]Result, len(jobPaths))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.workers)

	for i, p := range jobPaths {
		if gctx.Err() != nil {
			results[i] = Result{Path: p, Err: gctx.Err()}
			continue
		}
		g.Go(func() error {
			res := r.runOne(gctx, p)
			mu.Lock()
			results[i] = res
			mu.Unlock()
			if res.Err != nil && r.failFast {
				return fmt.Errorf("job %s: %w", p, res.Err)
			}
			return nil
		})
	}

	err := g.Wait()
	if err == nil {
		err = ctx.Err()
	}
	s := Summarize(results)
	span.SetAttributes(
		attribute.Int("batch.succeeded", s.Succeeded),
		attribute.Int("batch.skipped", s.Skipped),
		attribute.Int("batch.failed", s.Failed),
	)
	log.Info(log.CatBatch, "Batch finished",
		"jobs", len(jobPaths), "succeeded", s.Succeeded, "skipped", s.Skipped, "failed", s.Failed)
	return results, err
}

func (r *Runner) runOne(ctx context.Context, path string) Result {
	res := Result{Path: path}
	if err := ctx.Err(); err != nil {
		res.Err = err
		return res
	}

	job, err := registration.LoadJob(r.fs, path)
	if err != nil {
		res.Err = err
		log.ErrorErr(log.CatBatch, "Failed to load job", err, "path", path)
		r.publish(pubsub.JobFinished, invoker.Event{Job: path, Status: invoker.StatusFailed, Err: err})
		return res
	}
	res.Job = job.Name
	r.publish(pubsub.JobStarted, invoker.Event{Job: job.Name, Output: job.Output})

	res.Outcome, res.Err = r.reg.Register(ctx, job)
	status := res.Outcome.Status
	if res.Err != nil {
		status = invoker.StatusFailed
	}
	r.publish(pubsub.JobFinished, invoker.Event{
		ID:       res.Outcome.ID,
		Job:      job.Name,
		Output:   job.Output,
		Status:   status,
		ExitCode: res.Outcome.Result.ExitCode,
		Duration: res.Outcome.Result.Duration,
		Err:      res.Err,
	})
	return res
}

func (r *Runner) publish(t pubsub.EventType, e invoker.Event) {
	if r.events != nil {
		r.events.Publish(t, e)
	}
}
