// Package paths provides path resolution utilities.
package paths

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// StateDirName is the per-project directory holding config, ledger and traces.
const StateDirName = ".regcascade"

// TransformSuffix is the extension of engine transform files.
const TransformSuffix = ".xfm"

// ResolveStateDir resolves the .regcascade directory from user input.
// It accepts either a project dir or the state dir itself and follows a
// redirect file so several checkouts can share one ledger.
//
//   - "/path/to/project" -> "/path/to/project/.regcascade"
//   - "/path/to/project/.regcascade" -> "/path/to/project/.regcascade"
//   - "" -> "./.regcascade"
func ResolveStateDir(path string) string {
	if path == "" {
		path = "."
	}
	path = filepath.Clean(path)

	if filepath.Base(path) == StateDirName {
		return followRedirect(path)
	}
	return followRedirect(filepath.Join(path, StateDirName))
}

// followRedirect returns the directory named by stateDir/redirect, if any.
func followRedirect(stateDir string) string {
	content, err := os.ReadFile(filepath.Join(stateDir, "redirect")) //nolint:gosec // redirect path is within the state dir
	if err != nil {
		return stateDir
	}

	target := strings.TrimSpace(string(content))
	if target == "" {
		return stateDir
	}
	if filepath.IsAbs(target) {
		return filepath.Clean(target)
	}
	return filepath.Clean(filepath.Join(stateDir, target))
}

// LedgerPath returns the default ledger database path under stateDir.
func LedgerPath(stateDir string) string {
	return filepath.Join(stateDir, "ledger.db")
}

// TracePath returns the default JSONL trace file path under stateDir.
func TracePath(stateDir string) string {
	return filepath.Join(stateDir, "traces", "traces.jsonl")
}

// BaseName strips the directory and the image extensions from an image path:
// "/data/t1.mnc.gz" -> "t1".
func BaseName(path string) string {
	base := filepath.Base(path)
	base = cutLast(base, ".gz")
	return cutLast(base, ".mnc")
}

// LoweredName names a downsampled copy of an image: "<base>_<step>.mnc".
func LoweredName(path string, step float64) string {
	return BaseName(path) + "_" + FormatStep(step) + ".mnc"
}

// LoweredMaskName names a downsampled mask: "<base>_mask_<step>.mnc".
func LoweredMaskName(path string, step float64) string {
	return BaseName(path) + "_mask_" + FormatStep(step) + ".mnc"
}

// FormatStep renders a voxel step without trailing zeros.
func FormatStep(step float64) string {
	return strconv.FormatFloat(step, 'f', -1, 64)
}

// TransformBase strips the last .xfm suffix (and anything after it) from a
// transform path. The engine appends its own suffixes to this base.
func TransformBase(xfm string) string {
	return cutLast(xfm, TransformSuffix)
}

// InverseTransform returns the inverse transform the engine writes next to
// the requested output.
func InverseTransform(xfm string) string {
	return TransformBase(xfm) + "_inverse" + TransformSuffix
}

func cutLast(s, sep string) string {
	if i := strings.LastIndex(s, sep); i >= 0 {
		return s[:i]
	}
	return s
}
