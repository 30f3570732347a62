// Package gate decides whether an invocation can be skipped.
//
// The check is existence-only: an invocation is skipped when every declared
// output already exists. Modification times and content are not compared,
// so a stale output produced from older inputs is still treated as current.
package gate

import (
	"github.com/spf13/afero"

	"github.com/zjrosen/regcascade/internal/log"
)

// ShouldRun reports whether the invocation must run. It returns false iff
// outputs is non-empty and every output exists. Inputs are accepted for
// logging only; a missing input is never an error here.
func ShouldRun(fs afero.Fs, inputs, outputs []string) bool {
	return New(fs).Check(inputs, outputs).Run
}

// Decision is the gate verdict together with the outputs that were missing.
type Decision struct {
	Run     bool
	Missing []string
}

// Gate evaluates staleness against a filesystem.
type Gate struct {
	fs afero.Fs
}

// New returns a Gate over fs. A nil fs means the OS filesystem.
func New(fs afero.Fs) *Gate {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	return &Gate{fs: fs}
}

// Fs returns the filesystem the gate checks against.
func (g *Gate) Fs() afero.Fs { return g.fs }

// Check evaluates the declared outputs.
func (g *Gate) Check(inputs, outputs []string) Decision {
	if len(outputs) == 0 {
		log.Debug(log.CatGate, "No declared outputs, running", "inputs", len(inputs))
		return Decision{Run: true}
	}

	var missing []string
	for _, out := range outputs {
		if ok, err := afero.Exists(g.fs, out); err != nil || !ok {
			missing = append(missing, out)
		}
	}

	d := Decision{Run: len(missing) > 0, Missing: missing}
	if d.Run {
		log.Debug(log.CatGate, "Outputs missing, running", "missing", len(missing), "outputs", len(outputs))
	} else {
		log.Debug(log.CatGate, "All outputs exist, skipping", "outputs", len(outputs))
	}
	return d
}
