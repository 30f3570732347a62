// Package invoker executes assembled plans: it consults the staleness gate,
// runs the engine, and reports each outcome to tracing, metrics, the event
// broker and the ledger.
package invoker

import (
	"context"
	"errors"
	"io"
	"time"
	"unicode/utf8"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/zjrosen/regcascade/internal/command"
	"github.com/zjrosen/regcascade/internal/errs"
	"github.com/zjrosen/regcascade/internal/gate"
	"github.com/zjrosen/regcascade/internal/ledger"
	"github.com/zjrosen/regcascade/internal/log"
	"github.com/zjrosen/regcascade/internal/metrics"
	"github.com/zjrosen/regcascade/internal/pubsub"
	"github.com/zjrosen/regcascade/internal/tracing"
)

// Status is the outcome class of one Execute call.
type Status = ledger.Status

const (
	StatusSkipped   = ledger.StatusSkipped
	StatusSucceeded = ledger.StatusSucceeded
	StatusFailed    = ledger.StatusFailed
)

// maxStoredStderr bounds the stderr kept in the ledger.
const maxStoredStderr = 16 * 1024

// Outcome describes what Execute did.
type Outcome struct {
	ID      string
	Status  Status
	Missing []string
	Result  Result
}

// Event is published for every invocation state change.
type Event struct {
	ID       string
	Job      string
	Dialect  string
	Output   string
	Status   Status
	ExitCode int
	Duration time.Duration
	Err      error
}

// Invoker runs plans through the gate and a Runner.
type Invoker struct {
	runner  Runner
	gate    *gate.Gate
	tracer  trace.Tracer
	metrics *metrics.Recorder
	events  pubsub.Publisher[Event]
	ledger  ledger.Repository
	stdout  io.Writer
	stderr  io.Writer
	job     string
}

// Option configures an Invoker.
type Option func(*Invoker)

// WithGate sets the staleness gate. Default: gate over the OS filesystem.
func WithGate(g *gate.Gate) Option { return func(i *Invoker) { i.gate = g } }

// WithTracer sets the tracer for invocation spans.
func WithTracer(t trace.Tracer) Option { return func(i *Invoker) { i.tracer = t } }

// WithMetrics sets the metrics recorder.
func WithMetrics(m *metrics.Recorder) Option { return func(i *Invoker) { i.metrics = m } }

// WithEvents sets the publisher for invocation events.
func WithEvents(p pubsub.Publisher[Event]) Option { return func(i *Invoker) { i.events = p } }

// WithLedger sets the repository every outcome is recorded in.
func WithLedger(r ledger.Repository) Option { return func(i *Invoker) { i.ledger = r } }

// WithOutput streams engine output to stdout/stderr for verbose plans.
func WithOutput(stdout, stderr io.Writer) Option {
	return func(i *Invoker) { i.stdout, i.stderr = stdout, stderr }
}

// New returns an Invoker around runner.
func New(runner Runner, opts ...Option) *Invoker {
	i := &Invoker{runner: runner}
	for _, opt := range opts {
		opt(i)
	}
	if i.gate == nil {
		i.gate = gate.New(nil)
	}
	if i.tracer == nil {
		i.tracer = noop.NewTracerProvider().Tracer("noop")
	}
	return i
}

// WithJob returns a copy of the invoker that labels outcomes with job.
func (i *Invoker) WithJob(job string) *Invoker {
	cp := *i
	cp.job = job
	return &cp
}

// Gate returns the staleness gate in use.
func (i *Invoker) Gate() *gate.Gate { return i.gate }

// Execute runs plan unless all of its outputs exist. A skip is not an error.
// Engine failures are returned as *errs.ExternalProcessError; no retry and
// no cleanup of partial outputs is attempted.
func (i *Invoker) Execute(ctx context.Context, plan *command.Plan) (Outcome, error) {
	args, inputs, outputs := plan.Args(), plan.Inputs(), plan.Outputs()
	dialect := plan.Dialect().String()

	ctx, span := i.tracer.Start(ctx, tracing.SpanInvocation, trace.WithAttributes(
		attribute.String(tracing.AttrJobName, i.job),
		attribute.String(tracing.AttrDialect, dialect),
		attribute.Int(tracing.AttrArgCount, len(args)),
		attribute.StringSlice(tracing.AttrOutputs, outputs),
	))
	defer span.End()

	rec := ledger.NewRecord(i.job, dialect, args, inputs, outputs)
	span.SetAttributes(attribute.String(tracing.AttrInvocationID, rec.ID))

	decision := i.gate.Check(inputs, outputs)
	span.AddEvent(tracing.EventGateChecked, trace.WithAttributes(
		attribute.Int(tracing.AttrMissing, len(decision.Missing)),
	))

	if !decision.Run {
		rec.Status = StatusSkipped
		span.AddEvent(tracing.EventSkipped)
		span.SetAttributes(attribute.String(tracing.AttrStatus, string(rec.Status)))
		log.Info(log.CatInvoke, "Outputs exist, skipping", "job", i.job, "output", rec.PrimaryOutput())
		i.finish(span, rec, Result{})
		return Outcome{ID: rec.ID, Status: StatusSkipped}, nil
	}

	i.publish(pubsub.InvocationStarted, rec, nil)
	log.Info(log.CatInvoke, "Running engine", "job", i.job, "dialect", dialect, "output", rec.PrimaryOutput())

	inv := Invocation{Args: args}
	if plan.Has(command.RuleVerbose) {
		inv.Stdout, inv.Stderr = i.stdout, i.stderr
	}

	ctx, procSpan := i.tracer.Start(ctx, tracing.SpanProcess, trace.WithAttributes(
		attribute.String(tracing.AttrExecutable, args[0]),
	))
	var done func()
	if i.metrics != nil {
		done = i.metrics.Started()
	}
	res, err := i.runner.Run(ctx, inv)
	if done != nil {
		done()
	}
	procSpan.SetAttributes(attribute.Int(tracing.AttrExitCode, res.ExitCode))
	procSpan.End()

	rec.Duration = res.Duration
	rec.ExitCode = res.ExitCode
	outcome := Outcome{ID: rec.ID, Missing: decision.Missing, Result: res}

	if err != nil {
		rec.Status = StatusFailed
		rec.Stderr = tail(res.Stderr, maxStoredStderr)
		rec.Error = err.Error()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		span.SetAttributes(
			attribute.String(tracing.AttrStatus, string(rec.Status)),
			attribute.String(tracing.AttrErrorType, errorType(err)),
		)
		log.ErrorErr(log.CatInvoke, "Engine failed", err, "job", i.job, "exit_code", res.ExitCode)
		i.finish(span, rec, res)
		outcome.Status = StatusFailed
		return outcome, err
	}

	rec.Status = StatusSucceeded
	span.SetStatus(codes.Ok, "")
	span.SetAttributes(attribute.String(tracing.AttrStatus, string(rec.Status)))
	log.Info(log.CatInvoke, "Engine finished", "job", i.job, "duration", res.Duration)
	i.finish(span, rec, res)
	outcome.Status = StatusSucceeded
	return outcome, nil
}

// finish records, counts and publishes a terminal outcome.
func (i *Invoker) finish(span trace.Span, rec *ledger.Record, res Result) {
	if i.ledger != nil {
		if err := i.ledger.Save(rec); err != nil {
			log.Warn(log.CatLedger, "Failed to record invocation", "id", rec.ID, "error", err)
		} else {
			span.AddEvent(tracing.EventRecorded)
		}
	}
	if i.metrics != nil {
		i.metrics.Observe(rec.Dialect, string(rec.Status), res.Duration, rec.Status != StatusSkipped)
	}

	var err error
	if rec.Error != "" {
		err = errors.New(rec.Error)
	}
	switch rec.Status {
	case StatusSkipped:
		i.publish(pubsub.InvocationSkipped, rec, nil)
	case StatusSucceeded:
		i.publish(pubsub.InvocationSucceeded, rec, nil)
	default:
		i.publish(pubsub.InvocationFailed, rec, err)
	}
}

func (i *Invoker) publish(t pubsub.EventType, rec *ledger.Record, err error) {
	if i.events == nil {
		return
	}
	i.events.Publish(t, Event{
		ID:       rec.ID,
		Job:      i.job,
		Dialect:  rec.Dialect,
		Output:   rec.PrimaryOutput(),
		Status:   rec.Status,
		ExitCode: rec.ExitCode,
		Duration: rec.Duration,
		Err:      err,
	})
}

func errorType(err error) string {
	switch {
	case errors.Is(err, context.Canceled):
		return "canceled"
	case errors.Is(err, errs.ErrExternalProcess):
		return "external_process"
	default:
		return "unknown"
	}
}

// tail keeps at most the last n bytes of s without splitting a rune.
func tail(s string, n int) string {
	if len(s) <= n {
		return s
	}
	i := len(s) - n
	for i < len(s) && !utf8.RuneStart(s[i]) {
		i++
	}
	return s[i:]
}
