package services

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunMetrics_IndependentRegistries(t *testing.T) {
	a := NewRunMetrics()
	b := NewRunMetrics()

	a.Conflicts.Add(3)
	b.Conflicts.Inc()

	assert.Equal(t, 3.0, testutil.ToFloat64(a.Conflicts))
	assert.Equal(t, 1.0, testutil.ToFloat64(b.Conflicts))
}

func TestRunMetrics_WriteTextfile(t *testing.T) {
	m := NewRunMetrics()
	m.FilesAnalyzed.Add(2)
	m.SyntheticKeys.Inc()

	path := filepath.Join(t.TempDir(), "ingest.prom")
	require.NoError(t, m.WriteTextfile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "ingest_files_analyzed_total 2")
	assert.Contains(t, string(data), "ingest_synthetic_keys_total 1")
}
