// Package command turns a registration request into an ordered argv plan.
//
// Each group of tokens is recorded as a Term tagged with the Rule that
// produced it, so tests can assert on rules directly without running the
// engine.
package command

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/zjrosen/regcascade/internal/errs"
	"github.com/zjrosen/regcascade/internal/log"
	"github.com/zjrosen/regcascade/internal/modality"
	"github.com/zjrosen/regcascade/internal/paths"
)

// Plan is an assembled invocation: ordered terms, declared inputs and
// outputs, and files the engine writes that are never gated.
type Plan struct {
	dialect     Dialect
	terms       []Term
	inputs      []string
	outputs     []string
	sideEffects []string
}

// Dialect returns the dialect the plan was assembled for.
func (p *Plan) Dialect() Dialect { return p.dialect }

// Terms returns a copy of the ordered terms.
func (p *Plan) Terms() []Term {
	return append([]Term(nil), p.terms...)
}

// TermsFor returns the terms produced by rule, in order.
func (p *Plan) TermsFor(rule Rule) []Term {
	var out []Term
	for _, t := range p.terms {
		if t.rule == rule {
			out = append(out, t)
		}
	}
	return out
}

// Has reports whether any term was produced by rule.
func (p *Plan) Has(rule Rule) bool {
	for _, t := range p.terms {
		if t.rule == rule {
			return true
		}
	}
	return false
}

// Args flattens the terms into argv.
func (p *Plan) Args() []string {
	var args []string
	for _, t := range p.terms {
		args = append(args, t.tokens...)
	}
	return args
}

// Inputs returns the declared input files.
func (p *Plan) Inputs() []string { return append([]string(nil), p.inputs...) }

// Outputs returns the declared output files.
func (p *Plan) Outputs() []string { return append([]string(nil), p.outputs...) }

// SideEffects returns files the engine writes that are not gated on.
func (p *Plan) SideEffects() []string { return append([]string(nil), p.sideEffects...) }

// String renders argv as a single command line.
func (p *Plan) String() string {
	return strings.Join(p.Args(), " ")
}

// builder accumulates terms in rule order.
type builder struct {
	terms []Term
}

func (b *builder) add(rule Rule, tokens ...string) {
	b.terms = append(b.terms, newTerm(rule, tokens...))
}

// Assemble builds the plan for req using files as the images the engine
// reads. A zero files value means the request's own images.
func Assemble(req Request, files Files) (*Plan, error) {
	if files.Set.Count() == 0 {
		files = req.Files()
	}
	if err := validate(req, files); err != nil {
		return nil, err
	}

	executable := req.Executable
	if executable == "" {
		executable = DefaultExecutable
	}
	dim := req.Dimensionality
	if dim == 0 {
		dim = DefaultDimensionality
	}
	transformation := req.Transformation
	if transformation == "" {
		transformation = DefaultTransformation(req.Dialect, req.Rigid)
	}

	cost, costPar := req.CostFunction, req.CostParameters
	defCost, defPar := DefaultCost(req.Dialect)
	if cost.IsZero() {
		cost = modality.Shared(defCost)
	}
	if costPar.IsZero() {
		costPar = modality.Shared(defPar)
	}

	var b builder

	preamble := []string{executable}
	if req.Dialect == DialectLinear {
		preamble = append(preamble, "--collapse-output-transforms", "0")
	}
	preamble = append(preamble, "--minc", "-a", "--dimensionality", strconv.Itoa(dim))
	b.add(RulePreamble, preamble...)

	for i := 0; i < files.Set.Count(); i++ {
		b.add(RuleMetric, "--metric", fmt.Sprintf("%s[%s,%s,%s]",
			cost.At(i), files.Set.Sources[i], files.Set.Targets[i], costPar.At(i)))
	}

	b.add(RuleConvergence, "--convergence", req.Schedule.ConvergenceArg())
	b.add(RuleShrink, "--shrink-factors", req.Schedule.ShrinkString())
	b.add(RuleSmoothing, "--smoothing-sigmas", req.Schedule.BlurString())
	b.add(RuleTransform, "--transform", transformation)
	b.add(RuleOutput, "--output", paths.TransformBase(req.Output))

	addInitialization(&b, req, files)

	inputs := append(append([]string(nil), files.Set.Sources...), files.Set.Targets...)
	if req.UseMask && files.HasMasks() {
		inputs = append(inputs, files.SourceMask, files.TargetMask)
		b.add(RuleMask, "-x", fmt.Sprintf("[%s,%s]", files.SourceMask, files.TargetMask))
	}

	if req.HistogramMatching {
		b.add(RuleHistogramMatching, "--use-histogram-matching")
	}
	if w := req.Winsorize; w != nil {
		if w.Bounded {
			b.add(RuleWinsorize, "--winsorize-image-intensities", fmt.Sprintf("[%s,%s]", w.Low, w.High))
		} else {
			b.add(RuleWinsorize, "--winsorize-image-intensities")
		}
	}
	if req.Float {
		b.add(RuleFloat, "--float")
	}
	if req.Verbose > 0 {
		b.add(RuleVerbose, "--verbose", "1")
	}

	p := &Plan{
		dialect:     req.Dialect,
		terms:       b.terms,
		inputs:      inputs,
		outputs:     []string{req.Output},
		sideEffects: []string{paths.InverseTransform(req.Output)},
	}
	log.Debug(log.CatPlan, "Assembled plan",
		"dialect", req.Dialect, "terms", len(p.terms), "inputs", len(p.inputs), "output", req.Output)
	return p, nil
}

// addInitialization emits the initial-transform terms. An explicit initial
// transform suppresses every other initialization term and must be paired
// with per-stage initialization for the engine to honour it.
func addInitialization(b *builder, req Request, files Files) {
	if req.InitialTransform != "" {
		b.add(RuleInitialTransform, "--initial-fixed-transform", req.InitialTransform)
		b.add(RulePerStageInit, "--initialize-transforms-per-stage", "1")
		return
	}

	switch {
	case req.InitializeFixed != "":
		b.add(RuleFixedInit, "--initial-fixed-transform", initPair(files, req.InitializeFixed))
	case !req.Close:
		b.add(RuleFixedZeroInit, "--initial-fixed-transform", initPair(files, "0"))
	}
	switch {
	case req.InitializeMoving != "":
		b.add(RuleMovingInit, "--initial-moving-transform", initPair(files, req.InitializeMoving))
	case !req.Close:
		b.add(RuleMovingZeroInit, "--initial-moving-transform", initPair(files, "0"))
	}
}

// initPair renders [source0,target0,descriptor] from the first modality.
func initPair(files Files, descriptor string) string {
	src, tgt := files.Set.Primary()
	return fmt.Sprintf("[%s,%s,%s]", src, tgt, descriptor)
}

func validate(req Request, files Files) error {
	if req.Output == "" {
		return errs.Configf("output", "output transform path is required")
	}
	if files.Set.Count() == 0 {
		return errs.Configf("source", "at least one modality is required")
	}
	if len(files.Set.Targets) != files.Set.Count() {
		return errs.Configf("target", "%d sources but %d targets", files.Set.Count(), len(files.Set.Targets))
	}
	if req.Schedule.Empty() {
		return errs.Configf("levels", "schedule has no levels")
	}
	if err := req.CostFunction.Validate("cost_function", files.Set.Count()); err != nil {
		return err
	}
	return req.CostParameters.Validate("cost_function_par", files.Set.Count())
}
