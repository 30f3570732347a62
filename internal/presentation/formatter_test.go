package presentation

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/zjrosen/regcascade/internal/batch"
	"github.com/zjrosen/regcascade/internal/command"
	"github.com/zjrosen/regcascade/internal/invoker"
	"github.com/zjrosen/regcascade/internal/ledger"
	"github.com/zjrosen/regcascade/internal/modality"
	"github.com/zjrosen/regcascade/internal/schedule"
)

func TestFormatInvocations(t *testing.T) {
	rec := ledger.NewRecord("subj01", "linear", []string{"antsRegistration", "--minc"}, []string{"/in/a.mnc"}, []string{"/out/a.xfm"})
	rec.Status = ledger.StatusSucceeded
	rec.Duration = 1500 * time.Millisecond

	var buf bytes.Buffer
	require.NoError(t, NewFormatter(&buf).FormatInvocations(FromRecords([]*ledger.Record{rec})))

	var got []map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	require.Len(t, got, 1)
	require.Equal(t, rec.ID, got[0]["id"])
	require.Equal(t, "succeeded", got[0]["status"])
	require.Equal(t, float64(1500), got[0]["duration_ms"])
	require.NotContains(t, got[0], "stderr")
}

func TestFormatPlan(t *testing.T) {
	s, err := schedule.CompileGeometric(4, 2, schedule.Overrides{}, schedule.NonlinearDefaults)
	require.NoError(t, err)
	set, err := modality.Expand(modality.Paths{"/in/s.mnc"}, modality.Paths{"/in/t.mnc"})
	require.NoError(t, err)
	plan, err := command.Assemble(command.Request{
		Dialect: command.DialectNonlinear, Modalities: set, Schedule: s, Output: "/out/nl.xfm", Close: true,
	}, command.Files{})
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, NewFormatter(&buf).FormatPlan(FromPlan(plan)))

	var got PlanDTO
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	require.Equal(t, "nonlinear", got.Dialect)
	require.Equal(t, plan.Args(), got.Args)
	require.Equal(t, string(command.RulePreamble), got.Terms[0].Rule)
	require.Equal(t, []string{"/out/nl.xfm"}, got.Outputs)
	require.Equal(t, []string{"/out/nl_inverse.xfm"}, got.SideEffects)
}

func TestFromResults(t *testing.T) {
	dtos := FromResults([]batch.Result{
		{Path: "/jobs/a.yaml", Job: "a", Outcome: invoker.Outcome{ID: "1", Status: invoker.StatusSkipped}},
		{Path: "/jobs/b.yaml", Job: "b", Err: errors.New("boom")},
	})
	require.Equal(t, ResultDTO{Path: "/jobs/a.yaml", Job: "a", ID: "1", Status: "skipped"}, dtos[0])
	require.Equal(t, "failed", dtos[1].Status)
	require.Equal(t, "boom", dtos[1].Error)

	var buf bytes.Buffer
	require.NoError(t, NewFormatter(&buf).FormatResults(dtos))
	require.Contains(t, buf.String(), `"error": "boom"`)
}
