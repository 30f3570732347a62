package registration

import (
	"maps"
	"strings"

	"github.com/spf13/cast"

	"github.com/zjrosen/regcascade/internal/command"
	"github.com/zjrosen/regcascade/internal/errs"
	"github.com/zjrosen/regcascade/internal/modality"
	"github.com/zjrosen/regcascade/internal/schedule"
)

// Recognised parameter keys. Anything else in a parameters mapping is ignored.
const (
	KeyConf              = "conf"
	KeyShrink            = "shrink"
	KeyBlur              = "blur"
	KeyConvergence       = "convergence"
	KeyCostFunction      = "cost_function"
	KeyCostFunctionPar   = "cost_function_par"
	KeyTransformation    = "transformation"
	KeyUseMask           = "use_mask"
	KeyHistogramMatching = "use_histogram_matching"
	KeyWinsorize         = "winsorize-image-intensities"
	KeyUseFloat          = "use_float"
	KeyInitializeFixed   = "initialize_fixed"
	KeyInitializeMoving  = "initialize_moving"
	KeyLevels            = "levels"
	KeyRigid             = "rigid"

	// legacyInitializeMoving is the historical misspelling still found in
	// older parameter files.
	legacyInitializeMoving = "intialize_moving"
)

// DefaultLevels is the linear cascade depth when "levels" is not given.
const DefaultLevels = 3

// Parameters is the decoded form of a job's parameters mapping.
type Parameters struct {
	Overrides         schedule.Overrides
	Levels            int
	CostFunction      modality.Choice
	CostParameters    modality.Choice
	Transformation    string
	UseMask           bool
	HistogramMatching bool
	Winsorize         *command.Winsorize
	Float             bool
	InitializeFixed   string
	InitializeMoving  string
	Rigid             bool
}

// DecodeParameters converts a loosely typed mapping into Parameters,
// applying key-level defaults. Mode defaults are applied later.
func DecodeParameters(raw map[string]any) (Parameters, error) {
	p := Parameters{Levels: DefaultLevels, UseMask: true}
	var err error

	for _, axis := range schedule.AllAxes {
		cfg, perr := schedule.ParseLevelConfig(axis.ConfigKey(), raw[axis.ConfigKey()])
		if perr != nil {
			return Parameters{}, perr
		}
		switch axis {
		case schedule.Iterations:
			p.Overrides.Iterations = cfg
		case schedule.Shrink:
			p.Overrides.Shrink = cfg
		case schedule.Blur:
			p.Overrides.Blur = cfg
		}
	}

	if p.Overrides.Convergence, err = optString(raw, KeyConvergence); err != nil {
		return Parameters{}, err
	}
	if v, ok := raw[KeyLevels]; ok && v != nil {
		if p.Levels, err = cast.ToIntE(v); err != nil {
			return Parameters{}, errs.Configf(KeyLevels, "%v", err)
		}
	}
	if p.CostFunction, err = modality.ChoiceFrom(KeyCostFunction, raw[KeyCostFunction], ""); err != nil {
		return Parameters{}, err
	}
	if p.CostParameters, err = modality.ChoiceFrom(KeyCostFunctionPar, raw[KeyCostFunctionPar], ""); err != nil {
		return Parameters{}, err
	}
	if p.Transformation, err = optString(raw, KeyTransformation); err != nil {
		return Parameters{}, err
	}
	if p.InitializeFixed, err = optString(raw, KeyInitializeFixed); err != nil {
		return Parameters{}, err
	}
	if p.InitializeMoving, err = optString(raw, KeyInitializeMoving); err != nil {
		return Parameters{}, err
	}
	if p.InitializeMoving == "" {
		if p.InitializeMoving, err = optString(raw, legacyInitializeMoving); err != nil {
			return Parameters{}, err
		}
	}

	if p.UseMask, err = optBool(raw, KeyUseMask, true); err != nil {
		return Parameters{}, err
	}
	if p.HistogramMatching, err = optBool(raw, KeyHistogramMatching, false); err != nil {
		return Parameters{}, err
	}
	if p.Float, err = optBool(raw, KeyUseFloat, false); err != nil {
		return Parameters{}, err
	}
	if p.Rigid, err = optBool(raw, KeyRigid, false); err != nil {
		return Parameters{}, err
	}
	if p.Winsorize, err = decodeWinsorize(raw[KeyWinsorize]); err != nil {
		return Parameters{}, err
	}
	return p, nil
}

// MergeParameters overlays over onto base. The per-level mappings are merged
// one level deeper so a job can override a single level of a profile.
func MergeParameters(base, over map[string]any) map[string]any {
	out := make(map[string]any, len(base)+len(over))
	maps.Copy(out, base)
	for k, v := range over {
		if isLevelKey(k) {
			if merged, ok := mergeLevels(out[k], v); ok {
				out[k] = merged
				continue
			}
		}
		out[k] = v
	}
	return out
}

func isLevelKey(k string) bool {
	return k == KeyConf || k == KeyShrink || k == KeyBlur
}

// mergeLevels merges two level mappings keyed by any scalar.
func mergeLevels(base, over any) (map[any]any, bool) {
	b, ok1 := toAnyMap(base)
	o, ok2 := toAnyMap(over)
	if !ok1 || !ok2 {
		return nil, false
	}
	maps.Copy(b, o)
	return b, true
}

func toAnyMap(v any) (map[any]any, bool) {
	out := map[any]any{}
	switch m := v.(type) {
	case map[any]any:
		maps.Copy(out, m)
	case map[string]any:
		for k, x := range m {
			out[k] = x
		}
	case map[int]any:
		for k, x := range m {
			out[k] = x
		}
	default:
		return nil, false
	}
	return out, true
}

func decodeWinsorize(v any) (*command.Winsorize, error) {
	switch x := v.(type) {
	case nil:
		return nil, nil
	case bool:
		if !x {
			return nil, nil
		}
		return &command.Winsorize{}, nil
	case map[string]any, map[any]any:
		m, _ := toAnyMap(x)
		w := command.DefaultWinsorize()
		for key, val := range m {
			s, err := cast.ToStringE(val)
			if err != nil {
				return nil, errs.Configf(KeyWinsorize, "%v: %v", key, err)
			}
			switch strings.ToLower(cast.ToString(key)) {
			case "low":
				w.Low = s
			case "high":
				w.High = s
			}
		}
		return w, nil
	default:
		b, err := cast.ToBoolE(v)
		if err != nil {
			return nil, errs.Configf(KeyWinsorize, "expected a boolean or a {low, high} mapping, got %T", v)
		}
		if !b {
			return nil, nil
		}
		return &command.Winsorize{}, nil
	}
}

func optString(raw map[string]any, key string) (string, error) {
	v, ok := raw[key]
	if !ok || v == nil {
		return "", nil
	}
	s, err := cast.ToStringE(v)
	if err != nil {
		return "", errs.Configf(key, "%v", err)
	}
	return strings.TrimSpace(s), nil
}

func optBool(raw map[string]any, key string, def bool) (bool, error) {
	v, ok := raw[key]
	if !ok || v == nil {
		return def, nil
	}
	b, err := cast.ToBoolE(v)
	if err != nil {
		return def, errs.Configf(key, "%v", err)
	}
	return b, nil
}
