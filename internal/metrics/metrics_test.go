package metrics

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestCounters(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	m := New(reg)

	m.PageFetched("ok")
	m.PageFetched("ok")
	m.PageFetched("blocked")
	m.ItemsDropped(2)
	m.ItemsDropped(0)
	m.AICall("success", 40)
	m.AICall("failure", 0)
	m.Normalization("normalized")
	m.RowsPersisted(250)
	m.RunFinished(3 * time.Second)
	m.RateLimitDelay("llm", 200*time.Millisecond)

	require.InDelta(t, 2, testutil.ToFloat64(m.pagesTotal.WithLabelValues("ok")), 0)
	require.InDelta(t, 1, testutil.ToFloat64(m.pagesTotal.WithLabelValues("blocked")), 0)
	require.InDelta(t, 2, testutil.ToFloat64(m.itemsDroppedTotal), 0)
	require.InDelta(t, 1, testutil.ToFloat64(m.aiCallsTotal.WithLabelValues("failure")), 0)
	require.InDelta(t, 40, testutil.ToFloat64(m.aiTokensTotal), 0)
	require.InDelta(t, 1, testutil.ToFloat64(m.normalizationsTotal.WithLabelValues("normalized")), 0)
	require.InDelta(t, 250, testutil.ToFloat64(m.rowsPersistedTotal), 0)
	require.Equal(t, 1, testutil.CollectAndCount(m.runDurationSeconds))
	require.Equal(t, 1, testutil.CollectAndCount(m.rateLimitDelay))
}

func TestNilMetricsIsNoop(t *testing.T) {
	t.Parallel()

	var m *Metrics
	require.NotPanics(t, func() {
		m.PageFetched("ok")
		m.ItemsDropped(1)
		m.AICall("success", 1)
		m.Normalization("failed")
		m.RowsPersisted(1)
		m.RunFinished(time.Second)
		m.RateLimitDelay("llm", time.Second)
		m.ObserveHTTPRequest("GET", "/", 200, time.Millisecond)
	})
}

func TestWriteTextfile(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	m := New(reg)
	m.RowsPersisted(7)

	path := filepath.Join(t.TempDir(), "top250.prom")
	require.NoError(t, WriteTextfile(path, reg))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	require.True(t, strings.Contains(string(raw), "top250_rows_persisted_total 7"))
}

func TestWriteTextfileBadPath(t *testing.T) {
	t.Parallel()

	err := WriteTextfile(filepath.Join(t.TempDir(), "missing", "dir", "x.prom"), prometheus.NewRegistry())
	require.Error(t, err)
}
