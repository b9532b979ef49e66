// Copyright (c) 2026 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package telemetry

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestMetrics(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	m, err := New(reg)
	require.NoError(t, err)

	m.BlockProcessed(10)
	m.BlockProcessed(11)
	m.AddCrossings(3)
	m.AddCrossings(0)
	m.ObserveFlush(20*time.Millisecond, true)
	m.CostBasisRebuilt()
	m.RolledBack(9)

	require.Equal(t, 2.0, testutil.ToFloat64(m.blocks))
	require.Equal(t, 9.0, testutil.ToFloat64(m.tip))
	require.Equal(t, 3.0, testutil.ToFloat64(m.crossings))
	require.Equal(t, 1.0, testutil.ToFloat64(m.rebuilds))

	rec := httptest.NewRecorder()
	Handler(reg).ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	require.True(t, strings.Contains(rec.Body.String(),
		"btccohort_blocks_processed_total 2"))

	// Registering twice fails.
	_, err = New(reg)
	require.Error(t, err)
}

func TestNilMetrics(t *testing.T) {
	t.Parallel()

	var m *Metrics
	m.BlockProcessed(1)
	m.AddCrossings(1)
	m.ObserveFlush(time.Second, false)
	m.CostBasisRebuilt()
	m.RolledBack(0)
}
