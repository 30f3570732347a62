package registration

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/zjrosen/regcascade/internal/command"
	"github.com/zjrosen/regcascade/internal/downsample"
	"github.com/zjrosen/regcascade/internal/errs"
	"github.com/zjrosen/regcascade/internal/invoker"
	"github.com/zjrosen/regcascade/internal/log"
	"github.com/zjrosen/regcascade/internal/modality"
	"github.com/zjrosen/regcascade/internal/paths"
	"github.com/zjrosen/regcascade/internal/schedule"
	"github.com/zjrosen/regcascade/internal/tracing"
	"github.com/zjrosen/regcascade/internal/workdir"
)

// Engine configures the registration binary.
type Engine struct {
	Executable     string
	Dimensionality int
}

// Resample configures where and how lowered inputs are produced.
type Resample struct {
	BaseDir   string
	Keep      bool
	Templates downsample.Templates
}

// Service registers jobs.
type Service struct {
	invoker  *invoker.Invoker
	engine   Engine
	profiles map[string]map[string]any
	resample Resample
	tracer   trace.Tracer
}

// Option configures a Service.
type Option func(*Service)

// WithEngine sets the engine binary and dimensionality.
func WithEngine(e Engine) Option { return func(s *Service) { s.engine = e } }

// WithProfiles sets the named parameter profiles jobs may refer to.
func WithProfiles(p map[string]map[string]any) Option { return func(s *Service) { s.profiles = p } }

// WithResample sets the downsampling working directory and tool templates.
func WithResample(r Resample) Option { return func(s *Service) { s.resample = r } }

// WithTracer sets the tracer for register spans.
func WithTracer(t trace.Tracer) Option { return func(s *Service) { s.tracer = t } }

// New returns a Service executing through inv.
func New(inv *invoker.Invoker, opts ...Option) *Service {
	s := &Service{invoker: inv}
	for _, opt := range opts {
		opt(s)
	}
	if s.tracer == nil {
		s.tracer = noop.NewTracerProvider().Tracer("noop")
	}
	return s
}

// Parameters returns the job's parameters merged over its profile.
func (s *Service) Parameters(job Job) (map[string]any, error) {
	if job.Profile == "" {
		return job.Parameters, nil
	}
	profile, ok := s.profiles[job.Profile]
	if !ok {
		return nil, errs.Configf("profile", "unknown profile %q", job.Profile)
	}
	return MergeParameters(profile, job.Parameters), nil
}

// Request builds the registration request for job.
func (s *Service) Request(job Job) (command.Request, error) {
	if err := job.Validate(); err != nil {
		return command.Request{}, err
	}
	raw, err := s.Parameters(job)
	if err != nil {
		return command.Request{}, err
	}
	p, err := DecodeParameters(raw)
	if err != nil {
		return command.Request{}, err
	}
	set, err := modality.Expand(job.Source, job.Target)
	if err != nil {
		return command.Request{}, err
	}
	sched, err := compile(job, p)
	if err != nil {
		return command.Request{}, err
	}

	return command.Request{
		Dialect:           job.Mode.Dialect(),
		Executable:        s.engine.Executable,
		Dimensionality:    s.engine.Dimensionality,
		Modalities:        set,
		CostFunction:      p.CostFunction,
		CostParameters:    p.CostParameters,
		Schedule:          sched,
		Transformation:    p.Transformation,
		Output:            job.Output,
		SourceMask:        job.SourceMask,
		TargetMask:        job.TargetMask,
		UseMask:           p.UseMask,
		InitialTransform:  job.InitXfm,
		InitializeFixed:   p.InitializeFixed,
		InitializeMoving:  p.InitializeMoving,
		Close:             job.CloseStart(),
		HistogramMatching: p.HistogramMatching,
		Winsorize:         p.Winsorize,
		Float:             p.Float,
		Rigid:             p.Rigid,
		Verbose:           job.Verbose,
	}, nil
}

func compile(job Job, p Parameters) (schedule.Schedule, error) {
	defaults := schedule.LinearDefaults
	if job.Mode == ModeNonlinear {
		defaults = schedule.NonlinearDefaults
	}
	if job.Geometric() {
		start, level := job.Levels()
		return schedule.CompileGeometric(start, level, p.Overrides, defaults)
	}
	return schedule.CompileLinear(p.Levels, p.Overrides, defaults)
}

// Plan assembles the invocation for job against its original images. It
// touches no files.
func (s *Service) Plan(job Job) (*command.Plan, error) {
	req, err := s.Request(job)
	if err != nil {
		return nil, err
	}
	return command.Assemble(req, req.Files())
}

// Register runs job: it downsamples inputs when asked and the output is
// missing, assembles the command and executes it behind the gate.
func (s *Service) Register(ctx context.Context, job Job) (invoker.Outcome, error) {
	ctx, span := s.tracer.Start(ctx, tracing.SpanRegister, trace.WithAttributes(
		attribute.String(tracing.AttrJobName, job.Name),
		attribute.String(tracing.AttrDialect, job.Mode.Dialect().String()),
		attribute.Int(tracing.AttrModalities, len(job.Source)),
	))
	defer span.End()

	outcome, err := s.register(ctx, job, span)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return outcome, err
	}
	span.SetAttributes(attribute.String(tracing.AttrStatus, string(outcome.Status)))
	return outcome, nil
}

func (s *Service) register(ctx context.Context, job Job, span trace.Span) (invoker.Outcome, error) {
	req, err := s.Request(job)
	if err != nil {
		return invoker.Outcome{}, err
	}
	span.SetAttributes(attribute.Int(tracing.AttrLevels, len(req.Schedule.Levels)))

	inv := s.invoker.WithJob(job.Name)
	files := req.Files()

	if job.Downsample > 0 && inv.Gate().Check(nil, []string{req.Output}).Run {
		cache := workdir.New(inv.Gate().Fs(), s.resample.BaseDir, s.resample.Keep)
		defer func() {
			if cerr := cache.Close(); cerr != nil {
				log.Warn(log.CatWorkdir, "Failed to remove working directory", "error", cerr)
			}
		}()
		files, err = s.lower(ctx, inv, cache, files, job.Downsample)
		if err != nil {
			return invoker.Outcome{}, err
		}
	}

	plan, err := command.Assemble(req, files)
	if err != nil {
		return invoker.Outcome{}, err
	}
	return inv.Execute(ctx, plan)
}

func (s *Service) lower(ctx context.Context, inv *invoker.Invoker, cache *workdir.Cache, files command.Files, step float64) (command.Files, error) {
	ctx, span := s.tracer.Start(ctx, tracing.SpanResample, trace.WithAttributes(
		attribute.String(tracing.AttrStep, paths.FormatStep(step)),
	))
	defer span.End()

	d, err := downsample.New(cache, inv, s.resample.Templates)
	if err != nil {
		return command.Files{}, err
	}
	lowered, err := d.Lowered(files, step)
	if err != nil {
		return command.Files{}, err
	}
	if err := d.Prepare(ctx, files, lowered, step); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return command.Files{}, fmt.Errorf("downsampling to %s: %w", paths.FormatStep(step), err)
	}
	log.Info(log.CatResample, "Inputs downsampled", "step", step, "dir", cache.Root())
	return lowered, nil
}
