package command

import (
	"github.com/zjrosen/regcascade/internal/modality"
	"github.com/zjrosen/regcascade/internal/schedule"
)

// Dialect selects the engine preamble and the mode defaults.
type Dialect int

const (
	DialectLinear Dialect = iota
	DialectNonlinear
	// DialectTool marks plans for auxiliary tools such as resampling.
	DialectTool
)

func (d Dialect) String() string {
	switch d {
	case DialectNonlinear:
		return "nonlinear"
	case DialectTool:
		return "tool"
	default:
		return "linear"
	}
}

const (
	// DefaultExecutable is the registration engine binary.
	DefaultExecutable = "antsRegistration"

	// DefaultDimensionality is the image dimensionality passed to the engine.
	DefaultDimensionality = 3

	// RigidTransformation replaces the linear default when rigid-only is requested.
	RigidTransformation = "Rigid[ 0.1 ]"
)

// DefaultTransformation returns the transform descriptor used when none is configured.
func DefaultTransformation(d Dialect, rigid bool) string {
	if rigid {
		return RigidTransformation
	}
	if d == DialectNonlinear {
		return "SyN[ .25, 2, 0.5 ]"
	}
	return "affine[ 0.1 ]"
}

// DefaultCost returns the cost function and its parameters for d.
func DefaultCost(d Dialect) (function, parameters string) {
	if d == DialectNonlinear {
		return "CC", "1,2,Regular,1.0"
	}
	return "Mattes", "1,32,regular,0.3"
}

// Winsorize requests intensity winsorization. A bare request emits the flag
// alone; a bounded one also emits [low,high] percentiles.
type Winsorize struct {
	Bounded bool
	Low     string
	High    string
}

// DefaultWinsorize returns bounded winsorization at the engine percentiles.
func DefaultWinsorize() *Winsorize {
	return &Winsorize{Bounded: true, Low: "1", High: "99"}
}

// Request aggregates everything needed to assemble one invocation.
type Request struct {
	Dialect        Dialect
	Executable     string
	Dimensionality int

	Modalities     modality.Set
	CostFunction   modality.Choice
	CostParameters modality.Choice
	Schedule       schedule.Schedule
	Transformation string
	Output         string

	SourceMask string
	TargetMask string
	UseMask    bool

	InitialTransform string
	InitializeFixed  string
	InitializeMoving string
	Close            bool

	HistogramMatching bool
	Winsorize         *Winsorize
	Float             bool
	Rigid             bool
	Verbose           int
}

// Files returns the request's own images and masks, unmodified.
func (r Request) Files() Files {
	return Files{Set: r.Modalities, SourceMask: r.SourceMask, TargetMask: r.TargetMask}
}

// Files holds the images the engine actually reads. They differ from the
// request's images when inputs were downsampled.
type Files struct {
	Set        modality.Set
	SourceMask string
	TargetMask string
}

// HasMasks reports whether both masks are present.
func (f Files) HasMasks() bool {
	return f.SourceMask != "" && f.TargetMask != ""
}
