// Copyright (c) 2026 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package cohortmgr

import (
	"math"

	"github.com/btcsuite/btccohort/colstore"
	"github.com/btcsuite/btccohort/supply"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/holiman/uint256"
	"github.com/lightningnetwork/lnd/fn/v2"
)

// Metric names.  Every cohort has a column per metric named
// "<cohort>/<metric>", holding one value per block height.
const (
	MetricSupply            = "supply"
	MetricSupplyUSD         = "supply_usd"
	MetricUTXOCount         = "utxo_count"
	MetricRealizedCap       = "realized_cap"
	MetricRealizedPrice     = "realized_price"
	MetricProfit            = "realized_profit"
	MetricLoss              = "realized_loss"
	MetricValueCreated      = "value_created"
	MetricValueDestroyed    = "value_destroyed"
	MetricPeakRegret        = "peak_regret"
	MetricSent              = "sent"
	MetricReceived          = "received"
	MetricCoinDaysDestroyed = "coindays_destroyed"

	MetricAdjValueCreated   = "adj_value_created"
	MetricAdjValueDestroyed = "adj_value_destroyed"

	MetricSupplyInProfit = "supply_in_profit"
	MetricSupplyInLoss   = "supply_in_loss"
	MetricCostBasisMin   = "cost_basis_min"
	MetricCostBasisMax   = "cost_basis_max"

	MetricAddrCount = "addr_count"
)

// Percentiles is the set of cost basis percentiles kept for extended
// cohorts, in percent.
var Percentiles = []int{5, 10, 25, 50, 75, 90, 95}

// PercentileMetric returns the metric name of cost basis percentile p.
func PercentileMetric(p int) string {
	return "cost_basis_p" + twoDigits(p)
}

func twoDigits(p int) string {
	return string([]byte{byte('0' + p/10), byte('0' + p%10)})
}

// metricsFor returns the metrics kept by a cohort.
func metricsFor(e *entry) []string {
	m := []string{
		MetricSupply, MetricSupplyUSD, MetricUTXOCount,
		MetricRealizedCap, MetricRealizedPrice, MetricProfit,
		MetricLoss, MetricValueCreated, MetricValueDestroyed,
		MetricPeakRegret, MetricSent, MetricReceived,
		MetricCoinDaysDestroyed,
	}
	if e.state.Adjusted {
		m = append(m, MetricAdjValueCreated, MetricAdjValueDestroyed)
	}
	if e.state.CostBasis != nil {
		m = append(m, MetricSupplyInProfit, MetricSupplyInLoss,
			MetricCostBasisMin, MetricCostBasisMax)
		for _, p := range Percentiles {
			m = append(m, PercentileMetric(p))
		}
	}
	if e.addr != nil {
		m = append(m, MetricAddrCount)
	}
	return m
}

// ColumnName returns the column holding metric of the named cohort.
func ColumnName(cohortName, metric string) string {
	return cohortName + "/" + metric
}

// series is the set of columns of one cohort.
type series struct {
	columns map[string]*colstore.Column
}

func openSeries(store *colstore.Store, e *entry) (*series, error) {
	s := &series{columns: make(map[string]*colstore.Column)}
	for _, metric := range metricsFor(e) {
		c, err := store.Column(ColumnName(e.name, metric))
		if err != nil {
			return nil, err
		}
		s.columns[metric] = c
	}
	return s, nil
}

// truncate aligns every column with the history, dropping values above
// height.
func (s *series) truncate(height int32) {
	for _, c := range s.columns {
		c.Truncate(uint64(height + 1))
	}
}

func centSats(x *uint256.Int) uint64 {
	return uint64(supply.CentSatsToCents(x))
}

// push appends the values of the block just processed.
func (s *series) push(e *entry, price fn.Option[supply.Cents]) {
	st := e.state
	put := func(metric string, v uint64) {
		if c, ok := s.columns[metric]; ok {
			c.Push(v)
		}
	}

	put(MetricSupply, uint64(st.Supply.Value))
	put(MetricUTXOCount, st.Supply.UTXOCount)
	put(MetricSupplyUSD, uint64(supply.CentSatsToCents(
		supply.CentSats(price.UnwrapOr(0), st.Supply.Value),
	)))

	if r := st.Realized; r != nil {
		put(MetricRealizedCap, centSats(&r.Cap))
		put(MetricRealizedPrice, uint64(st.RealizedPrice()))
		put(MetricProfit, centSats(&r.Profit))
		put(MetricLoss, centSats(&r.Loss))
		put(MetricValueCreated, centSats(&r.ValueCreated))
		put(MetricValueDestroyed, centSats(&r.ValueDestroyed))
		put(MetricPeakRegret, centSats(&r.PeakRegret))
		put(MetricSent, uint64(r.Sent))
		put(MetricReceived, uint64(r.Received))
		put(MetricCoinDaysDestroyed, satDays(&r.CoinSecondsDestroyed))
		put(MetricAdjValueCreated, centSats(&r.AdjValueCreated))
		put(MetricAdjValueDestroyed, centSats(&r.AdjValueDestroyed))
	}

	if cb := st.CostBasis; cb != nil {
		var inProfit, inLoss btcutil.Amount
		price.WhenSome(func(p supply.Cents) {
			inProfit = cb.SupplyBelow(p)
			inLoss = cb.Total() - cb.SupplyBelow(p+1)
		})
		put(MetricSupplyInProfit, uint64(inProfit))
		put(MetricSupplyInLoss, uint64(inLoss))

		lo, _, _ := cb.FirstKeyValue()
		hi, _, _ := cb.LastKeyValue()
		put(MetricCostBasisMin, uint64(lo))
		put(MetricCostBasisMax, uint64(hi))
		for _, p := range Percentiles {
			v, _ := cb.Percentile(float64(p) / 100)
			put(PercentileMetric(p), uint64(v))
		}
	}

	if e.addr != nil {
		put(MetricAddrCount, e.addr.AddrCount)
	}
}

// satDays converts sat·seconds to sat·days, saturating.
func satDays(x *uint256.Int) uint64 {
	var z uint256.Int
	z.Div(x, uint256.NewInt(86_400))
	if !z.IsUint64() {
		return math.MaxUint64
	}
	return z.Uint64()
}
