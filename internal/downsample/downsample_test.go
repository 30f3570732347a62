package downsample

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"

	"github.com/zjrosen/regcascade/internal/command"
	"github.com/zjrosen/regcascade/internal/errs"
	"github.com/zjrosen/regcascade/internal/gate"
	"github.com/zjrosen/regcascade/internal/invoker"
	"github.com/zjrosen/regcascade/internal/modality"
	"github.com/zjrosen/regcascade/internal/testutil"
	"github.com/zjrosen/regcascade/internal/workdir"
)

func setup(t *testing.T) (afero.Fs, *testutil.FakeRunner, *ToolDownsampler) {
	t.Helper()
	fs := afero.NewMemMapFs()
	runner := &testutil.FakeRunner{Fs: fs}
	inv := invoker.New(runner, invoker.WithGate(gate.New(fs)))
	cache := workdir.New(fs, "/work", false)
	d, err := New(cache, inv, Templates{})
	require.NoError(t, err)
	return fs, runner, d
}

func files(t *testing.T, sources, targets modality.Paths, srcMask, tgtMask string) command.Files {
	t.Helper()
	set, err := modality.Expand(sources, targets)
	require.NoError(t, err)
	return command.Files{Set: set, SourceMask: srcMask, TargetMask: tgtMask}
}

func TestPassthrough(t *testing.T) {
	f := files(t, modality.Paths{"/in/a.mnc"}, modality.Paths{"/in/b.mnc"}, "/in/am.mnc", "")
	got, err := Passthrough{}.Lowered(f, 2)
	require.NoError(t, err)
	require.Equal(t, f, got)
	require.NoError(t, Passthrough{}.Prepare(context.Background(), f, got, 2))
}

func TestLowered_NamesFromOwnBaseName(t *testing.T) {
	_, _, d := setup(t)
	f := files(t, modality.Paths{"/in/src.mnc.gz"}, modality.Paths{"/in/tgt.mnc"}, "/in/src_brain.mnc", "/in/tgt_brain.mnc")

	low, err := d.Lowered(f, 2)
	require.NoError(t, err)

	root := d.cache.Root()
	require.Equal(t, []string{filepath.Join(root, "src_2.mnc")}, low.Set.Sources)
	require.Equal(t, []string{filepath.Join(root, "tgt_2.mnc")}, low.Set.Targets)
	require.Equal(t, filepath.Join(root, "src_brain_mask_2.mnc"), low.SourceMask)
	require.Equal(t, filepath.Join(root, "tgt_brain_mask_2.mnc"), low.TargetMask)
}

func TestLowered_DisambiguatesSharedBaseNames(t *testing.T) {
	_, _, d := setup(t)
	f := files(t, modality.Paths{"/a/t1.mnc"}, modality.Paths{"/b/t1.mnc"}, "", "")

	low, err := d.Lowered(f, 4)
	require.NoError(t, err)
	require.NotEqual(t, low.Set.Sources[0], low.Set.Targets[0])
	require.Equal(t, "t1_4_1.mnc", filepath.Base(low.Set.Targets[0]))

	again, err := d.Lowered(f, 4)
	require.NoError(t, err)
	require.Equal(t, low, again)
}

func TestLowered_RejectsBadStep(t *testing.T) {
	_, _, d := setup(t)
	f := files(t, modality.Paths{"/in/a.mnc"}, modality.Paths{"/in/b.mnc"}, "", "")
	_, err := d.Lowered(f, 0)
	require.ErrorIs(t, err, errs.ErrConfiguration)
}

func TestPrepare_RunsImageAndLabelTemplates(t *testing.T) {
	fs, runner, d := setup(t)
	for _, p := range []string{"/in/src.mnc", "/in/tgt.mnc", "/in/src_mask.mnc"} {
		testutil.Touch(t, fs, p)
	}
	f := files(t, modality.Paths{"/in/src.mnc"}, modality.Paths{"/in/tgt.mnc"}, "/in/src_mask.mnc", "")
	low, err := d.Lowered(f, 2)
	require.NoError(t, err)

	require.NoError(t, d.Prepare(context.Background(), f, low, 2))

	calls := runner.Calls()
	require.Len(t, calls, 3)
	require.Contains(t, calls[0].Args, "-trilinear")
	require.Equal(t, "/in/src.mnc", calls[0].Args[len(calls[0].Args)-2])
	require.Equal(t, low.Set.Sources[0], calls[0].Args[len(calls[0].Args)-1])
	require.Contains(t, calls[2].Args, "-labels")
	require.Contains(t, calls[2].Args, "2")

	for _, p := range []string{low.Set.Sources[0], low.Set.Targets[0], low.SourceMask} {
		ok, err := afero.Exists(fs, p)
		require.NoError(t, err)
		require.True(t, ok, p)
	}

	// Second pass finds every lowered file present.
	require.NoError(t, d.Prepare(context.Background(), f, low, 2))
	require.Equal(t, 3, runner.CallCount())
}

func TestPrepare_PropagatesToolFailure(t *testing.T) {
	fs, runner, d := setup(t)
	testutil.Touch(t, fs, "/in/src.mnc")
	testutil.Touch(t, fs, "/in/tgt.mnc")
	runner.ExitCode = 2
	f := files(t, modality.Paths{"/in/src.mnc"}, modality.Paths{"/in/tgt.mnc"}, "", "")
	low, err := d.Lowered(f, 2)
	require.NoError(t, err)

	err = d.Prepare(context.Background(), f, low, 2)
	require.ErrorIs(t, err, errs.ErrExternalProcess)
	require.Equal(t, 1, runner.CallCount())
}

func TestTemplates_Validate(t *testing.T) {
	require.NoError(t, DefaultTemplates().Validate())

	bad := DefaultTemplates()
	bad.Label = []string{"tool", "{input}"}
	require.ErrorIs(t, bad.Validate(), errs.ErrConfiguration)

	bad = DefaultTemplates()
	bad.Image = nil
	require.ErrorIs(t, bad.Validate(), errs.ErrConfiguration)
}

func TestNew_RequiresCollaborators(t *testing.T) {
	_, err := New(nil, nil, Templates{})
	require.Error(t, err)
}
