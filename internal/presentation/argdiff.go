package presentation

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"
)

// ChangeType classifies one argument in an argument diff.
type ChangeType int

const (
	Unchanged ChangeType = iota
	Removed
	Added
)

// ArgChange is one argument of a diff between two command lines.
type ArgChange struct {
	Type ChangeType
	Arg  string
}

// DiffArgs compares two argument vectors one argument at a time.
func DiffArgs(before, after []string) []ArgChange {
	dmp := diffmatchpatch.New()
	a, b, lines := dmp.DiffLinesToChars(joinArgs(before), joinArgs(after))
	diffs := dmp.DiffCharsToLines(dmp.DiffMain(a, b, false), lines)

	var out []ArgChange
	for _, d := range diffs {
		var t ChangeType
		switch d.Type {
		case diffmatchpatch.DiffDelete:
			t = Removed
		case diffmatchpatch.DiffInsert:
			t = Added
		default:
			t = Unchanged
		}
		for _, arg := range strings.Split(strings.TrimSuffix(d.Text, "\n"), "\n") {
			out = append(out, ArgChange{Type: t, Arg: arg})
		}
	}
	return out
}

// RebaseArgs rewrites every occurrence of from[i] in args to to[i]. It lines
// up a recorded command whose inputs were downsampled copies with a plan
// built from the original files. Paths that do not pair up are left alone.
func RebaseArgs(args, from, to []string) []string {
	if len(from) != len(to) {
		return append([]string(nil), args...)
	}
	idx := make([]int, 0, len(from))
	for i := range from {
		if from[i] != "" && from[i] != to[i] {
			idx = append(idx, i)
		}
	}
	if len(idx) == 0 {
		return append([]string(nil), args...)
	}
	// Longer paths first so a path never matches inside a longer one.
	sort.SliceStable(idx, func(a, b int) bool { return len(from[idx[a]]) > len(from[idx[b]]) })
	pairs := make([]string, 0, 2*len(idx))
	for _, i := range idx {
		pairs = append(pairs, from[i], to[i])
	}
	r := strings.NewReplacer(pairs...)

	out := make([]string, len(args))
	for i, a := range args {
		out[i] = r.Replace(a)
	}
	return out
}

// WriteArgDiff prints a unified-style diff, one argument per line.
func WriteArgDiff(w io.Writer, changes []ArgChange) error {
	for _, c := range changes {
		prefix := " "
		switch c.Type {
		case Removed:
			prefix = "-"
		case Added:
			prefix = "+"
		}
		if _, err := fmt.Fprintf(w, "%s %s\n", prefix, c.Arg); err != nil {
			return err
		}
	}
	return nil
}

// Changed reports whether any argument differs.
func Changed(changes []ArgChange) bool {
	for _, c := range changes {
		if c.Type != Unchanged {
			return true
		}
	}
	return false
}

func joinArgs(args []string) string {
	if len(args) == 0 {
		return ""
	}
	return strings.Join(args, "\n") + "\n"
}
