// Copyright (c) 2026 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package telemetry exports ingestion metrics to Prometheus.
package telemetry

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "btccohort"

// Metrics are the ingestion metrics of the engine.  A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	blocks        prometheus.Counter
	tip           prometheus.Gauge
	crossings     prometheus.Counter
	flushDuration *prometheus.HistogramVec
	rebuilds      prometheus.Counter
	rollbacks     prometheus.Counter
}

// New creates the metrics and registers them with reg.
func New(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		blocks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "blocks_processed_total",
			Help:      "Blocks applied to the cohort ledgers",
		}),
		tip: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "tip_height",
			Help:      "Height of the last processed block",
		}),
		crossings: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "age_crossings_total",
			Help:      "Block supplies moved across an age boundary",
		}),
		flushDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "flush_duration_seconds",
				Help:      "Duration of checkpoint flushes",
				Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5,
					1, 2.5, 5, 10, 30},
			},
			[]string{"with_changes"},
		),
		rebuilds: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cost_basis_rebuilds_total",
			Help:      "Cost basis distributions rebuilt from history",
		}),
		rollbacks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rollbacks_total",
			Help:      "Rollbacks caused by chain reorganizations",
		}),
	}

	collectors := []prometheus.Collector{
		m.blocks, m.tip, m.crossings, m.flushDuration, m.rebuilds,
		m.rollbacks,
	}
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// BlockProcessed records that the block at height was applied.
func (m *Metrics) BlockProcessed(height int32) {
	if m == nil {
		return
	}
	m.blocks.Inc()
	m.tip.Set(float64(height))
}

// AddCrossings records n block supplies moved by tick-tock.
func (m *Metrics) AddCrossings(n int) {
	if m == nil || n == 0 {
		return
	}
	m.crossings.Add(float64(n))
}

// ObserveFlush records the duration of a flush.
func (m *Metrics) ObserveFlush(d time.Duration, withChanges bool) {
	if m == nil {
		return
	}
	label := "false"
	if withChanges {
		label = "true"
	}
	m.flushDuration.WithLabelValues(label).Observe(d.Seconds())
}

// CostBasisRebuilt records a cost basis rebuild.
func (m *Metrics) CostBasisRebuilt() {
	if m == nil {
		return
	}
	m.rebuilds.Inc()
}

// RolledBack records a rollback.
func (m *Metrics) RolledBack(height int32) {
	if m == nil {
		return
	}
	m.rollbacks.Inc()
	m.tip.Set(float64(height))
}

// Handler returns the HTTP handler exposing the metrics gathered by g.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
