package stats_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	"github.com/tdex-network/tdex-tradeengine/pkg/stats"
)

func TestDumpMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	counter := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "test_counter_total",
		Help: "test counter",
	})
	reg.MustRegister(counter)
	counter.Add(3)

	path := filepath.Join(t.TempDir(), "stats")
	require.NoError(t, stats.DumpMetrics(reg, path))
	require.NoError(t, stats.DumpMetrics(reg, path))

	buf, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(buf), "test_counter_total")
	require.Greater(t, len(buf), 0)
}
