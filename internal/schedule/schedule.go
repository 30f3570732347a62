// Package schedule compiles sparse per-level overrides into the dense
// multi-resolution schedules consumed by the registration engine.
//
// Two cascades exist. The geometric cascade walks resolution levels
// 2^i from start down to level (inclusive). The linear cascade walks a
// plain level count n, n-1, ..., 1. Both resolve each value through
// Lookup so their fallback semantics cannot drift apart.
package schedule

import (
	"math/bits"
	"strconv"
	"strings"

	"github.com/zjrosen/regcascade/internal/errs"
	"github.com/zjrosen/regcascade/internal/log"
)

// LevelSeparator joins per-level values in schedule strings.
const LevelSeparator = "x"

// Schedule holds the three parallel per-level value lists, in descending
// level order, plus the global convergence threshold/window.
type Schedule struct {
	Levels      []int
	Iterations  []string
	Shrink      []string
	Blur        []string
	Sources     map[Axis][]Source
	Convergence string
}

// Values returns the per-level values for axis.
func (s Schedule) Values(axis Axis) []string {
	switch axis {
	case Iterations:
		return s.Iterations
	case Shrink:
		return s.Shrink
	default:
		return s.Blur
	}
}

// Join renders axis as the engine expects it, e.g. "4x2x1".
func (s Schedule) Join(axis Axis) string {
	return strings.Join(s.Values(axis), LevelSeparator)
}

// IterationsString renders the iteration schedule.
func (s Schedule) IterationsString() string { return s.Join(Iterations) }

// ShrinkString renders the shrink-factor schedule.
func (s Schedule) ShrinkString() string { return s.Join(Shrink) }

// BlurString renders the smoothing-sigma schedule.
func (s Schedule) BlurString() string { return s.Join(Blur) }

// ConvergenceArg renders the convergence term value: [iterations,threshold,window].
func (s Schedule) ConvergenceArg() string {
	return "[" + s.IterationsString() + "," + s.Convergence + "]"
}

// Separators returns the number of level separators in each axis string.
func (s Schedule) Separators() int {
	if len(s.Levels) == 0 {
		return 0
	}
	return len(s.Levels) - 1
}

// Empty reports whether the schedule has no levels.
func (s Schedule) Empty() bool {
	return len(s.Levels) == 0
}

// IsPowerOfTwo reports whether n is a positive power of two.
func IsPowerOfTwo(n int) bool {
	return n > 0 && n&(n-1) == 0
}

// Log2 returns floor(log2(n)) for n > 0.
func Log2(n int) int {
	return bits.Len(uint(n)) - 1
}

// CompileGeometric expands overrides across resolutions 2^i for i from
// floor(log2(start)) down to 0, keeping every resolution >= level.
// Values are keyed by the resolution itself. A start that is not a power of
// two begins at the next lower power, so 6 starts at 4.
func CompileGeometric(start, level int, o Overrides, d Defaults) (Schedule, error) {
	if !IsPowerOfTwo(level) {
		return Schedule{}, errs.Configf("level", "must be a positive power of two, got %d", level)
	}
	if start < 1 {
		return Schedule{}, errs.Configf("start", "must be positive, got %d", start)
	}
	if start < level {
		return Schedule{}, errs.Configf("start", "start level %d is below terminal level %d", start, level)
	}

	s := newSchedule(o, d)
	for i := Log2(start); i >= 0; i-- {
		res := 1 << i
		if res < level {
			break
		}
		s.addLevel(res, i, o, d)
	}

	log.Debug(log.CatSchedule, "Compiled geometric schedule",
		"start", start, "level", level,
		"iterations", s.IterationsString(), "shrink", s.ShrinkString(), "blur", s.BlurString())
	return s, nil
}

// CompileLinear expands overrides across levels n, n-1, ..., 1.
// Values are keyed by the level index; shrink and blur default to 2^index.
func CompileLinear(levels int, o Overrides, d Defaults) (Schedule, error) {
	if levels < 1 {
		return Schedule{}, errs.Configf("levels", "must be at least 1, got %d", levels)
	}

	s := newSchedule(o, d)
	for i := levels; i >= 1; i-- {
		s.addLevel(i, i, o, d)
	}

	log.Debug(log.CatSchedule, "Compiled linear schedule",
		"levels", levels,
		"iterations", s.IterationsString(), "shrink", s.ShrinkString(), "blur", s.BlurString())
	return s, nil
}

func newSchedule(o Overrides, d Defaults) Schedule {
	convergence := o.Convergence
	if convergence == "" {
		convergence = d.Convergence
	}
	return Schedule{
		Sources:     make(map[Axis][]Source, len(AllAxes)),
		Convergence: convergence,
	}
}

// addLevel resolves one level on every axis. key is the lookup key and
// exponent drives the power-of-two defaults.
func (s *Schedule) addLevel(key, exponent int, o Overrides, d Defaults) {
	s.Levels = append(s.Levels, key)
	for _, axis := range AllAxes {
		r := o.resolve(axis, key, exponent, d)
		switch axis {
		case Iterations:
			s.Iterations = append(s.Iterations, r.Value)
		case Shrink:
			s.Shrink = append(s.Shrink, r.Value)
		case Blur:
			s.Blur = append(s.Blur, r.Value)
		}
		s.Sources[axis] = append(s.Sources[axis], r.Source)
	}
}

// ParseCascade maps an "AxBxC" iteration string onto the geometric levels
// from start downwards, producing named overrides for every level >= level.
// Surplus values are ignored; missing values fall back to defaults.
func ParseCascade(cascade string, start, level int) LevelConfig {
	cfg := LevelConfig{Numeric: map[int]string{}, Named: map[string]string{}}
	if strings.TrimSpace(cascade) == "" || start < 1 {
		return cfg
	}
	values := strings.Split(cascade, LevelSeparator)
	i := Log2(start)
	for _, v := range values {
		if i < 0 {
			break
		}
		res := 1 << i
		if res >= level {
			cfg.Named[strconv.Itoa(res)] = strings.TrimSpace(v)
		}
		i--
	}
	return cfg
}
