package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_Counters(t *testing.T) {
	t.Parallel()
	m := New()

	m.File(FileAnalyzed)
	m.File(FileAnalyzed)
	m.File(FileCached)
	m.Gap("critical")
	m.Generation(OutcomeFailed)
	m.RunFinished("/repo", 0.75)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.files.WithLabelValues(FileAnalyzed)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.files.WithLabelValues(FileCached)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.gaps.WithLabelValues("critical")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.generations.WithLabelValues(OutcomeFailed)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.runs))
	assert.Equal(t, 0.75, testutil.ToFloat64(m.coverage.WithLabelValues("/repo")))
}

func TestMetrics_RegistryExposition(t *testing.T) {
	t.Parallel()
	m := New()
	m.Stage("analyzing", time.Now())
	m.RunFinished("/repo", 1)

	err := testutil.GatherAndCompare(m.Registry(), strings.NewReader(`
# HELP docgap_runs_total Completed analysis runs.
# TYPE docgap_runs_total counter
docgap_runs_total 1
`), "docgap_runs_total")
	require.NoError(t, err)

	n, err := testutil.GatherAndCount(m.Registry(), "docgap_stage_duration_seconds")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestMetrics_NilIsNoop(t *testing.T) {
	t.Parallel()
	var m *Metrics
	assert.NotPanics(t, func() {
		m.File(FileFailed)
		m.Gap("low")
		m.Generation(OutcomeGenerated)
		m.Stage("walking", time.Now())
		m.RunFinished("/", 0)
	})
	assert.Nil(t, m.Registry())
}

func TestMetrics_Handler(t *testing.T) {
	t.Parallel()
	m := New()
	m.RunFinished("/repo", 0.5)

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "docgap_runs_total 1")
	assert.Contains(t, string(body), `docgap_coverage_ratio{root="/repo"} 0.5`)
}
