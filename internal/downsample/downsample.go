// Package downsample produces lower-resolution copies of registration inputs
// before the engine runs.
package downsample

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/zjrosen/regcascade/internal/command"
	"github.com/zjrosen/regcascade/internal/errs"
	"github.com/zjrosen/regcascade/internal/invoker"
	"github.com/zjrosen/regcascade/internal/log"
	"github.com/zjrosen/regcascade/internal/paths"
	"github.com/zjrosen/regcascade/internal/workdir"
)

// Downsampler names and produces lowered copies of a file set.
type Downsampler interface {
	// Lowered returns the file set the engine should read at step.
	Lowered(files command.Files, step float64) (command.Files, error)
	// Prepare writes lowered from original. Existing outputs are kept.
	Prepare(ctx context.Context, original, lowered command.Files, step float64) error
}

// Executor runs a gated plan. *invoker.Invoker satisfies it.
type Executor interface {
	Execute(ctx context.Context, plan *command.Plan) (invoker.Outcome, error)
}

// Compile-time interface checks.
var (
	_ Downsampler = Passthrough{}
	_ Downsampler = (*ToolDownsampler)(nil)
	_ Executor    = (*invoker.Invoker)(nil)
)

// Passthrough leaves every file at its original resolution.
type Passthrough struct{}

// Lowered returns files unchanged.
func (Passthrough) Lowered(files command.Files, _ float64) (command.Files, error) {
	return files, nil
}

// Prepare does nothing.
func (Passthrough) Prepare(context.Context, command.Files, command.Files, float64) error {
	return nil
}

// Templates holds argv templates with {input}, {output} and {step} placeholders.
type Templates struct {
	Image []string
	Label []string
}

// DefaultTemplates resample intensity images with smoothing and labels with
// nearest-neighbour interpolation.
func DefaultTemplates() Templates {
	return Templates{
		Image: []string{"mincresample", "-q", "-clobber", "-trilinear",
			"-step", "{step}", "{step}", "{step}", "{input}", "{output}"},
		Label: []string{"mincresample", "-q", "-clobber", "-nearest_neighbour", "-labels", "-byte",
			"-step", "{step}", "{step}", "{step}", "{input}", "{output}"},
	}
}

// Validate checks that both templates read an input and write an output.
func (t Templates) Validate() error {
	for name, tmpl := range map[string][]string{"resample.image": t.Image, "resample.label": t.Label} {
		if len(tmpl) == 0 {
			return errs.Configf(name, "template is empty")
		}
		joined := strings.Join(tmpl, " ")
		for _, ph := range []string{command.PlaceholderInput, command.PlaceholderOutput} {
			if !strings.Contains(joined, ph) {
				return errs.Configf(name, "template lacks %s", ph)
			}
		}
	}
	return nil
}

// ToolDownsampler resamples through an external tool, placing lowered files
// in a working directory and running each resample behind the gate.
type ToolDownsampler struct {
	cache     *workdir.Cache
	exec      Executor
	templates Templates
}

// New returns a ToolDownsampler. Zero templates mean DefaultTemplates.
func New(cache *workdir.Cache, exec Executor, templates Templates) (*ToolDownsampler, error) {
	if cache == nil || exec == nil {
		return nil, fmt.Errorf("downsample: cache and executor are required")
	}
	def := DefaultTemplates()
	if len(templates.Image) == 0 {
		templates.Image = def.Image
	}
	if len(templates.Label) == 0 {
		templates.Label = def.Label
	}
	if err := templates.Validate(); err != nil {
		return nil, err
	}
	return &ToolDownsampler{cache: cache, exec: exec, templates: templates}, nil
}

// Lowered names every file of files inside the working directory. Masks are
// named after their own file, and two inputs sharing a base name get
// distinct lowered names.
func (d *ToolDownsampler) Lowered(files command.Files, step float64) (command.Files, error) {
	if step <= 0 {
		return command.Files{}, errs.Configf("downsample", "step must be positive, got %g", step)
	}
	n := namer{taken: make(map[string]string)}
	out := command.Files{}
	var err error

	if out.Set.Sources, err = d.lowerAll(&n, files.Set.Sources, step, paths.LoweredName); err != nil {
		return command.Files{}, err
	}
	if out.Set.Targets, err = d.lowerAll(&n, files.Set.Targets, step, paths.LoweredName); err != nil {
		return command.Files{}, err
	}
	if files.SourceMask != "" {
		if out.SourceMask, err = d.lower(&n, files.SourceMask, step, paths.LoweredMaskName); err != nil {
			return command.Files{}, err
		}
	}
	if files.TargetMask != "" {
		if out.TargetMask, err = d.lower(&n, files.TargetMask, step, paths.LoweredMaskName); err != nil {
			return command.Files{}, err
		}
	}
	return out, nil
}

func (d *ToolDownsampler) lowerAll(n *namer, in []string, step float64, name func(string, float64) string) ([]string, error) {
	out := make([]string, len(in))
	for i, p := range in {
		lp, err := d.lower(n, p, step, name)
		if err != nil {
			return nil, err
		}
		out[i] = lp
	}
	return out, nil
}

func (d *ToolDownsampler) lower(n *namer, original string, step float64, name func(string, float64) string) (string, error) {
	return d.cache.Path(n.claim(name(original, step), original))
}

// Prepare resamples each original into its lowered path. Masks use the
// label template.
func (d *ToolDownsampler) Prepare(ctx context.Context, original, lowered command.Files, step float64) error {
	if len(original.Set.Sources) != len(lowered.Set.Sources) || len(original.Set.Targets) != len(lowered.Set.Targets) {
		return fmt.Errorf("downsample: lowered set does not match original")
	}
	stepArg := paths.FormatStep(step)

	type job struct {
		in, out string
		tmpl    []string
	}
	var jobs []job
	for i := range original.Set.Sources {
		jobs = append(jobs, job{original.Set.Sources[i], lowered.Set.Sources[i], d.templates.Image})
	}
	for i := range original.Set.Targets {
		jobs = append(jobs, job{original.Set.Targets[i], lowered.Set.Targets[i], d.templates.Image})
	}
	if original.SourceMask != "" && lowered.SourceMask != "" {
		jobs = append(jobs, job{original.SourceMask, lowered.SourceMask, d.templates.Label})
	}
	if original.TargetMask != "" && lowered.TargetMask != "" {
		jobs = append(jobs, job{original.TargetMask, lowered.TargetMask, d.templates.Label})
	}

	for _, j := range jobs {
		if j.in == j.out {
			continue
		}
		plan, err := command.ToolPlan(command.ExpandTemplate(j.tmpl, j.in, j.out, stepArg), j.in, j.out)
		if err != nil {
			return err
		}
		log.Debug(log.CatResample, "Resampling", "input", j.in, "output", j.out, "step", stepArg)
		if _, err := d.exec.Execute(ctx, plan); err != nil {
			return fmt.Errorf("resample %s: %w", j.in, err)
		}
	}
	return nil
}

// namer hands out lowered names, suffixing a counter when two different
// originals would map to the same name.
type namer struct {
	taken map[string]string
}

func (n *namer) claim(name, original string) string {
	candidate := name
	for i := 1; ; i++ {
		owner, ok := n.taken[candidate]
		if !ok || owner == original {
			n.taken[candidate] = original
			return candidate
		}
		candidate = strings.TrimSuffix(name, ".mnc") + "_" + strconv.Itoa(i) + ".mnc"
	}
}
