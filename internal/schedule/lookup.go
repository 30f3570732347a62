package schedule

import (
	"fmt"
	"math"
	"reflect"
	"strconv"
	"strings"

	"github.com/spf13/cast"

	"github.com/zjrosen/regcascade/internal/errs"
)

// Axis identifies one of the three per-level schedules.
type Axis int

const (
	Iterations Axis = iota
	Shrink
	Blur
)

func (a Axis) String() string {
	switch a {
	case Iterations:
		return "iterations"
	case Shrink:
		return "shrink"
	case Blur:
		return "blur"
	default:
		return "unknown"
	}
}

// ConfigKey returns the parameter key the axis is configured under.
func (a Axis) ConfigKey() string {
	switch a {
	case Iterations:
		return "conf"
	case Shrink:
		return "shrink"
	case Blur:
		return "blur"
	default:
		return ""
	}
}

// AllAxes lists every axis in schedule order.
var AllAxes = []Axis{Iterations, Shrink, Blur}

// LevelConfig holds sparse per-level overrides for one axis.
// Keys written as numbers and keys written as strings are kept apart so a
// numeric override can win over a string override for the same level.
type LevelConfig struct {
	Numeric map[int]string
	Named   map[string]string
}

// Len returns the number of overrides across both key spaces.
func (c LevelConfig) Len() int {
	return len(c.Numeric) + len(c.Named)
}

// Source tells where a resolved value came from.
type Source int

const (
	SourceDefault Source = iota
	SourceNumeric
	SourceNamed
)

func (s Source) String() string {
	switch s {
	case SourceNumeric:
		return "numeric"
	case SourceNamed:
		return "named"
	default:
		return "default"
	}
}

// Resolved is the outcome of a per-level lookup.
type Resolved struct {
	Value  string
	Source Source
}

// Defaults carries the mode-specific fallbacks. Shrink and blur always
// default to 2^exponent; only the iteration count differs between modes.
type Defaults struct {
	Iterations  int
	Convergence string
}

var (
	// LinearDefaults apply to affine/rigid cascades.
	LinearDefaults = Defaults{Iterations: 10000, Convergence: "1.e-8,20"}

	// NonlinearDefaults apply to deformable cascades.
	NonlinearDefaults = Defaults{Iterations: 20, Convergence: "1.e-6,10"}
)

// Value computes the default for axis at the given power-of-two exponent.
func (d Defaults) Value(axis Axis, exponent int) string {
	if axis == Iterations {
		return strconv.Itoa(d.Iterations)
	}
	return strconv.Itoa(1 << exponent)
}

// Lookup resolves the value for key: numeric key, then string key, then default.
func Lookup(cfg LevelConfig, key int, def string) Resolved {
	if v, ok := cfg.Numeric[key]; ok {
		return Resolved{Value: v, Source: SourceNumeric}
	}
	if v, ok := cfg.Named[strconv.Itoa(key)]; ok {
		return Resolved{Value: v, Source: SourceNamed}
	}
	return Resolved{Value: def, Source: SourceDefault}
}

// Overrides bundles the three axis configs and the global convergence
// threshold/window appended to the iteration schedule.
type Overrides struct {
	Iterations  LevelConfig
	Shrink      LevelConfig
	Blur        LevelConfig
	Convergence string
}

// For returns the LevelConfig for axis.
func (o Overrides) For(axis Axis) LevelConfig {
	switch axis {
	case Iterations:
		return o.Iterations
	case Shrink:
		return o.Shrink
	default:
		return o.Blur
	}
}

// resolve applies Lookup with the axis default formula.
func (o Overrides) resolve(axis Axis, key, exponent int, d Defaults) Resolved {
	return Lookup(o.For(axis), key, d.Value(axis, exponent))
}

// ParseLevelConfig decodes a YAML-style mapping of level -> value.
// Integer (or integral float) keys are numeric overrides, string keys are
// named overrides. Values must be scalars.
func ParseLevelConfig(field string, raw any) (LevelConfig, error) {
	cfg := LevelConfig{Numeric: map[int]string{}, Named: map[string]string{}}
	if raw == nil {
		return cfg, nil
	}
	if lc, ok := raw.(LevelConfig); ok {
		return lc, nil
	}

	v := reflect.ValueOf(raw)
	if v.Kind() != reflect.Map {
		return cfg, errs.Configf(field, "expected a mapping of level to value, got %T", raw)
	}

	iter := v.MapRange()
	for iter.Next() {
		value, err := scalarString(iter.Value().Interface())
		if err != nil {
			return cfg, errs.Configf(field, "level %v: %v", iter.Key().Interface(), err)
		}

		key := iter.Key()
		if key.Kind() == reflect.Interface {
			key = key.Elem()
		}
		switch key.Kind() {
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
			cfg.Numeric[int(key.Int())] = value
		case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
			cfg.Numeric[int(key.Uint())] = value
		case reflect.Float32, reflect.Float64:
			f := key.Float()
			if f != math.Trunc(f) {
				return cfg, errs.Configf(field, "level key %v is not an integer", f)
			}
			cfg.Numeric[int(f)] = value
		case reflect.String:
			cfg.Named[strings.TrimSpace(key.String())] = value
		default:
			return cfg, errs.Configf(field, "unsupported level key type %s", key.Kind())
		}
	}
	return cfg, nil
}

func scalarString(v any) (string, error) {
	if v == nil {
		return "", fmt.Errorf("value is empty")
	}
	switch v.(type) {
	case map[string]any, map[any]any, []any:
		return "", fmt.Errorf("value must be a scalar, got %T", v)
	}
	return cast.ToStringE(v)
}
