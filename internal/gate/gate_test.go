package gate

import (
	"fmt"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func touch(t *testing.T, fs afero.Fs, path string) {
	t.Helper()
	require.NoError(t, afero.WriteFile(fs, path, []byte("x"), 0o644))
}

func TestShouldRun_EmptyOutputs(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.True(t, ShouldRun(fs, nil, nil))
	require.True(t, ShouldRun(fs, []string{"/in.mnc"}, []string{}))
}

func TestShouldRun_OutputExistsInputsAbsent(t *testing.T) {
	fs := afero.NewMemMapFs()
	touch(t, fs, "/out/nl.xfm")

	require.False(t, ShouldRun(fs, []string{"/missing/src.mnc", "/missing/tgt.mnc"}, []string{"/out/nl.xfm"}))
}

func TestCheck_ReportsMissing(t *testing.T) {
	fs := afero.NewMemMapFs()
	touch(t, fs, "/out/a.xfm")

	d := New(fs).Check(nil, []string{"/out/a.xfm", "/out/b.xfm"})
	require.True(t, d.Run)
	require.Equal(t, []string{"/out/b.xfm"}, d.Missing)
}

func TestNew_DefaultsToOsFs(t *testing.T) {
	g := New(nil)
	require.IsType(t, &afero.OsFs{}, g.Fs())
}

func TestShouldRun_Property(t *testing.T) {
	rapid.Check(t, func(r *rapid.T) {
		fs := afero.NewMemMapFs()
		n := rapid.IntRange(0, 6).Draw(r, "outputs")
		outputs := make([]string, n)
		allExist := true
		for i := range outputs {
			outputs[i] = fmt.Sprintf("/out/%d.xfm", i)
			if rapid.Bool().Draw(r, "exists") {
				if err := afero.WriteFile(fs, outputs[i], nil, 0o644); err != nil {
					r.Fatalf("write: %v", err)
				}
			} else {
				allExist = false
			}
		}

		want := n == 0 || !allExist
		if got := ShouldRun(fs, nil, outputs); got != want {
			r.Fatalf("ShouldRun=%v want %v (outputs=%d allExist=%v)", got, want, n, allExist)
		}
	})
}
