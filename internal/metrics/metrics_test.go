package metrics

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestRecorder_Observe(t *testing.T) {
	r := New()

	r.Observe("linear", "succeeded", 3*time.Second, true)
	r.Observe("linear", "skipped", 0, false)
	r.Observe("linear", "skipped", 0, false)

	require.Equal(t, 1.0, testutil.ToFloat64(r.invocations.WithLabelValues("linear", "succeeded")))
	require.Equal(t, 2.0, testutil.ToFloat64(r.invocations.WithLabelValues("linear", "skipped")))
	require.Equal(t, 1, testutil.CollectAndCount(r.duration), "skips do not record durations")
}

func TestRecorder_InFlight(t *testing.T) {
	r := New()

	done := r.Started()
	require.Equal(t, 1.0, testutil.ToFloat64(r.inFlight))
	done()
	require.Equal(t, 0.0, testutil.ToFloat64(r.inFlight))
}

func TestRecorder_WriteTextfile(t *testing.T) {
	r := New()
	r.Observe("nonlinear", "failed", time.Second, true)

	path := filepath.Join(t.TempDir(), "textfile", "regcascade.prom")
	require.NoError(t, r.WriteTextfile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(data), `regcascade_invocations_total{dialect="nonlinear",status="failed"} 1`)
	require.Contains(t, string(data), "regcascade_invocation_duration_seconds_bucket")
}
