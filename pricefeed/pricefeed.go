// Copyright (c) 2026 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package pricefeed prices blocks from a static table of daily bitcoin
// prices.
package pricefeed

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/btcsuite/btccohort/supply"
	"github.com/lightningnetwork/lnd/fn/v2"
	"github.com/shopspring/decimal"
)

const secondsPerDay = 86_400

// dateLayout is the layout of the date column.
const dateLayout = "2006-01-02"

var hundred = decimal.NewFromInt(100)

// ErrNoPrices is returned when a price file holds no row.
var ErrNoPrices = errors.New("price file has no prices")

// Table holds one USD price per UTC day.  A timestamp is priced with its
// own day, or the closest earlier day when its day is missing.  Timestamps
// before the first day have no price.
type Table struct {
	days   []int64
	prices []supply.Cents
}

// day is one parsed row.
type day struct {
	day   int64
	price supply.Cents
}

// Load reads a price table from a CSV file.
func Load(path string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	t, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	log.Infof("Loaded %d daily prices from %s", t.Len(), path)
	return t, nil
}

// Parse reads a price table from CSV rows of a date and a USD price.  The
// date is either YYYY-MM-DD or unix seconds.  A first row whose price is not
// a number is taken as a header.  Prices are rounded to the cent.  A later
// row for the same day replaces an earlier one.
func Parse(r io.Reader) (*Table, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	cr.Comment = '#'

	var rows []day
	for line := 1; ; line++ {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		if len(rec) < 2 {
			return nil, fmt.Errorf("line %d: expected date and price",
				line)
		}

		price, err := decimal.NewFromString(strings.TrimSpace(rec[1]))
		if err != nil {
			if line == 1 {
				continue
			}
			return nil, fmt.Errorf("line %d: price %q: %w", line,
				rec[1], err)
		}
		if price.IsNegative() {
			return nil, fmt.Errorf("line %d: negative price %v",
				line, price)
		}

		d, err := parseDay(strings.TrimSpace(rec[0]))
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}

		cents := price.Mul(hundred).Round(0)
		rows = append(rows, day{day: d, price: supply.Cents(cents.IntPart())})
	}
	if len(rows) == 0 {
		return nil, ErrNoPrices
	}

	sort.SliceStable(rows, func(i, j int) bool {
		return rows[i].day < rows[j].day
	})

	t := &Table{}
	for _, row := range rows {
		if n := len(t.days); n > 0 && t.days[n-1] == row.day {
			t.prices[n-1] = row.price
			continue
		}
		t.days = append(t.days, row.day)
		t.prices = append(t.prices, row.price)
	}
	return t, nil
}

// parseDay returns the UTC day number of a date or unix timestamp.
func parseDay(s string) (int64, error) {
	if secs, err := strconv.ParseInt(s, 10, 64); err == nil {
		return floorDiv(secs, secondsPerDay), nil
	}
	ts, err := time.ParseInLocation(dateLayout, s, time.UTC)
	if err != nil {
		return 0, fmt.Errorf("date %q: %w", s, err)
	}
	return floorDiv(ts.Unix(), secondsPerDay), nil
}

func floorDiv(a, b int64) int64 {
	q := a / b
	if a%b != 0 && a < 0 {
		q--
	}
	return q
}

// Len returns the number of days in the table.
func (t *Table) Len() int {
	return len(t.days)
}

// PriceAt returns the price of the UTC day of timestamp.
func (t *Table) PriceAt(timestamp uint32) fn.Option[supply.Cents] {
	d := int64(timestamp) / secondsPerDay
	i := sort.Search(len(t.days), func(i int) bool {
		return t.days[i] > d
	})
	if i == 0 {
		return fn.None[supply.Cents]()
	}
	return fn.Some(t.prices[i-1])
}
