// Copyright (c) 2026 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package cohortmgr

import (
	"github.com/btcsuite/btccohort/colstore"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcwallet/walletdb"
)

// SeriesReader reads committed cohort series.  It is safe for concurrent
// use alongside a running Manager and only observes committed heights.
type SeriesReader struct {
	r *colstore.Reader
}

// NewSeriesReader returns a reader over the series committed in db.
func NewSeriesReader(db walletdb.DB) *SeriesReader {
	return &SeriesReader{r: colstore.NewReader(db)}
}

// Tip returns the last committed height, or false before the first
// commit.
func (s *SeriesReader) Tip() (int32, bool, error) {
	stamp, ok, err := s.r.Stamp()
	return int32(stamp), ok, err
}

// Series returns the raw values of metric for the named cohort at heights
// [from, to).
func (s *SeriesReader) Series(cohortName, metric string, from,
	to int32) ([]uint64, error) {

	return s.r.ReadRange(ColumnName(cohortName, metric), uint64(from),
		uint64(to))
}

// Prices returns the block prices in cents at heights [from, to).
func (s *SeriesReader) Prices(from, to int32) ([]uint64, error) {
	return s.r.ReadRange(ColumnPrice, uint64(from), uint64(to))
}

// SupplyBTC returns the supply of the named cohort in bitcoin.
func (s *SeriesReader) SupplyBTC(cohortName string, from,
	to int32) ([]float64, error) {

	sats, err := s.Series(cohortName, MetricSupply, from, to)
	if err != nil {
		return nil, err
	}
	out := make([]float64, len(sats))
	for i, v := range sats {
		out[i] = btcutil.Amount(v).ToBTC()
	}
	return out, nil
}

// SOPR returns the spent output profit ratio of the named cohort, value
// created over value destroyed.  Heights without spends yield 0.  The
// adjusted ratio is only available for adjusted cohorts.
func (s *SeriesReader) SOPR(cohortName string, adjusted bool, from,
	to int32) ([]float64, error) {

	created, destroyed := MetricValueCreated, MetricValueDestroyed
	if adjusted {
		created, destroyed = MetricAdjValueCreated, MetricAdjValueDestroyed
	}
	return s.ratio(cohortName, created, destroyed, from, to)
}

// MVRV returns the market value of the named cohort's supply over its
// realized cap.
func (s *SeriesReader) MVRV(cohortName string, from,
	to int32) ([]float64, error) {

	return s.ratio(cohortName, MetricSupplyUSD, MetricRealizedCap, from, to)
}

func (s *SeriesReader) ratio(cohortName, num, den string, from,
	to int32) ([]float64, error) {

	n, err := s.Series(cohortName, num, from, to)
	if err != nil {
		return nil, err
	}
	d, err := s.Series(cohortName, den, from, to)
	if err != nil {
		return nil, err
	}
	if len(d) < len(n) {
		n = n[:len(d)]
	}
	out := make([]float64, len(n))
	for i := range n {
		if d[i] != 0 {
			out[i] = float64(n[i]) / float64(d[i])
		}
	}
	return out, nil
}
