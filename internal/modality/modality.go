// Package modality normalizes single- and multi-modality image inputs into
// parallel source/target lists and resolves per-modality parameter choices.
package modality

import (
	"fmt"

	"github.com/spf13/cast"
	"gopkg.in/yaml.v3"

	"github.com/zjrosen/regcascade/internal/errs"
)

// Paths is an ordered list of image paths. In YAML it may be written as a
// single scalar or as a sequence.
type Paths []string

// UnmarshalYAML accepts a scalar or a sequence of scalars.
func (p *Paths) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		var s string
		if err := node.Decode(&s); err != nil {
			return err
		}
		*p = Paths{s}
		return nil
	case yaml.SequenceNode:
		var list []string
		if err := node.Decode(&list); err != nil {
			return err
		}
		*p = list
		return nil
	default:
		return fmt.Errorf("line %d: expected a path or a list of paths", node.Line)
	}
}

// PathsFrom converts a decoded value (string, []string, []any) into Paths.
func PathsFrom(field string, v any) (Paths, error) {
	switch x := v.(type) {
	case nil:
		return nil, nil
	case Paths:
		return x, nil
	case string:
		return Paths{x}, nil
	default:
		list, err := cast.ToStringSliceE(v)
		if err != nil {
			return nil, errs.Configf(field, "expected a path or a list of paths: %v", err)
		}
		return list, nil
	}
}

// Set holds parallel source and target lists. Index i pairs sources[i]
// with targets[i].
type Set struct {
	Sources []string
	Targets []string
}

// Expand pairs sources with targets. It fails only when the lengths differ;
// requiring at least one image is left to the job.
func Expand(sources, targets Paths) (Set, error) {
	if len(sources) != len(targets) {
		return Set{}, errs.Configf("source", "%d source images but %d target images", len(sources), len(targets))
	}
	return Set{
		Sources: append([]string(nil), sources...),
		Targets: append([]string(nil), targets...),
	}, nil
}

// Count returns the number of modalities.
func (s Set) Count() int {
	return len(s.Sources)
}

// Primary returns the first source/target pair, used for initialization.
func (s Set) Primary() (source, target string) {
	if s.Count() == 0 {
		return "", ""
	}
	return s.Sources[0], s.Targets[0]
}

// Choice is either one value shared by every modality or one value per modality.
type Choice struct {
	shared string
	each   []string
}

// Shared returns a Choice applying v to every modality.
func Shared(v string) Choice {
	return Choice{shared: v}
}

// PerModality returns a Choice with one value per modality.
func PerModality(values ...string) Choice {
	return Choice{each: append([]string(nil), values...)}
}

// ChoiceFrom decodes a scalar or a list into a Choice. A nil value yields def.
func ChoiceFrom(field string, v any, def string) (Choice, error) {
	switch x := v.(type) {
	case nil:
		return Shared(def), nil
	case Choice:
		return x, nil
	case []string:
		return PerModality(x...), nil
	case []any:
		list, err := cast.ToStringSliceE(x)
		if err != nil {
			return Choice{}, errs.Configf(field, "%v", err)
		}
		return PerModality(list...), nil
	default:
		s, err := cast.ToStringE(v)
		if err != nil {
			return Choice{}, errs.Configf(field, "expected a value or a list of values: %v", err)
		}
		return Shared(s), nil
	}
}

// IsZero reports whether the choice carries no value at all.
func (c Choice) IsZero() bool {
	return c.shared == "" && c.each == nil
}

// IsPerModality reports whether the choice carries a per-modality list.
func (c Choice) IsPerModality() bool {
	return c.each != nil
}

// At returns the value for modality i.
func (c Choice) At(i int) string {
	if c.each == nil {
		return c.shared
	}
	if i < 0 || i >= len(c.each) {
		return ""
	}
	return c.each[i]
}

// Validate checks a per-modality list against the modality count.
func (c Choice) Validate(field string, count int) error {
	if c.each != nil && len(c.each) != count {
		return errs.Configf(field, "%d values for %d modalities", len(c.each), count)
	}
	return nil
}

func (c Choice) String() string {
	if c.each == nil {
		return c.shared
	}
	return fmt.Sprintf("%v", c.each)
}
