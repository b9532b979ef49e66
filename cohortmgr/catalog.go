// Copyright (c) 2026 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package cohortmgr

import "github.com/btcsuite/btccohort/cohort"

// CohortInfo describes one cohort to consumers of its series.
type CohortInfo struct {
	Axis    Axis
	Name    string
	Filter  cohort.Filter
	Context cohort.Context

	// Extended cohorts keep a cost basis distribution, adjusted ones
	// the adjusted value flows.
	Extended bool
	Adjusted bool

	// Parents are the names of the cohorts of the same context whose
	// filter includes this one.
	Parents []string

	// Metrics are the metric names with a column for this cohort.
	Metrics []string
}

// Catalog lists every cohort, output cohorts first.
func (m *Manager) Catalog() []CohortInfo {
	var entries []*entry
	m.eachEntry(func(e *entry) { entries = append(entries, e) })

	infos := make([]CohortInfo, 0, len(entries))
	for _, e := range entries {
		info := CohortInfo{
			Axis:     e.axis,
			Name:     e.name,
			Filter:   e.filter,
			Context:  e.ctx,
			Extended: e.state.CostBasis != nil,
			Adjusted: e.state.Adjusted,
			Metrics:  metricsFor(e),
		}
		for _, p := range entries {
			if p == e || p.ctx != e.ctx {
				continue
			}
			if p.filter.Includes(e.filter) && !e.filter.Includes(p.filter) {
				info.Parents = append(info.Parents, p.name)
			}
		}
		infos = append(infos, info)
	}
	return infos
}
