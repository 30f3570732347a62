package testutil

// JobOption sets one field of a job document.
type JobOption func(b *Builder, job map[string]any)

// Mode sets the registration mode ("linear" or "nonlinear").
func Mode(mode string) JobOption {
	return func(_ *Builder, job map[string]any) { job["mode"] = mode }
}

// Source sets the source image(s), relative to the scratch dir.
func Source(names ...string) JobOption {
	return func(b *Builder, job map[string]any) { job["source"] = b.paths(names) }
}

// Target sets the target image(s), relative to the scratch dir.
func Target(names ...string) JobOption {
	return func(b *Builder, job map[string]any) { job["target"] = b.paths(names) }
}

// Output sets the output transform, relative to the scratch dir.
func Output(name string) JobOption {
	return func(b *Builder, job map[string]any) { job["output"] = b.Path(name) }
}

// Masks sets both masks, relative to the scratch dir.
func Masks(source, target string) JobOption {
	return func(b *Builder, job map[string]any) {
		job["source_mask"] = b.Path(source)
		job["target_mask"] = b.Path(target)
	}
}

// Levels sets the geometric start and terminal levels.
func Levels(start, level int) JobOption {
	return func(_ *Builder, job map[string]any) {
		job["start"] = start
		job["level"] = level
	}
}

// Field sets an arbitrary top-level field.
func Field(key string, value any) JobOption {
	return func(_ *Builder, job map[string]any) { job[key] = value }
}

// Param sets one entry of the parameters mapping.
func Param(key string, value any) JobOption {
	return func(_ *Builder, job map[string]any) {
		params, _ := job["parameters"].(map[string]any)
		if params == nil {
			params = map[string]any{}
			job["parameters"] = params
		}
		params[key] = value
	}
}

func (b *Builder) paths(names []string) any {
	if len(names) == 1 {
		return b.Path(names[0])
	}
	out := make([]string, len(names))
	for i, n := range names {
		out[i] = b.Path(n)
	}
	return out
}
