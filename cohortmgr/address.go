// Copyright (c) 2026 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package cohortmgr

import (
	"context"
	"fmt"
	"sort"

	"github.com/btcsuite/btccohort/cohort"
	"github.com/btcsuite/btccohort/supply"
	"github.com/btcsuite/btcd/btcutil"
	"golang.org/x/sync/errgroup"
)

// addressSpend is one spent output of an address.
type addressSpend struct {
	value  btcutil.Amount
	origin int32
}

// addressDelta is everything a block does to one address.
type addressDelta struct {
	received []btcutil.Amount
	spent    []addressSpend
}

func (d *addressDelta) merge(o *addressDelta) {
	d.received = append(d.received, o.received...)
	d.spent = append(d.spent, o.spent...)
}

// foldAddresses groups the outputs and inputs of a block by address, in
// parallel.
func (m *Manager) foldAddresses(ctx context.Context,
	blk *Block) (map[string]*addressDelta, error) {

	outParts := chunks(len(blk.Outputs), m.cfg.Workers)
	inParts := chunks(len(blk.Inputs), m.cfg.Workers)
	partial := make([]map[string]*addressDelta, len(outParts)+len(inParts))

	get := func(p map[string]*addressDelta, addr []byte) *addressDelta {
		d, ok := p[string(addr)]
		if !ok {
			d = &addressDelta{}
			p[string(addr)] = d
		}
		return d
	}

	g, _ := errgroup.WithContext(ctx)
	for i, r := range outParts {
		i, r := i, r
		g.Go(func() error {
			p := make(map[string]*addressDelta)
			for _, out := range blk.Outputs[r[0]:r[1]] {
				if out.Address == nil || !out.Type.HasAddress() {
					continue
				}
				d := get(p, out.Address)
				d.received = append(d.received, out.Value)
			}
			partial[i] = p
			return nil
		})
	}
	for i, r := range inParts {
		i, r := i+len(outParts), r
		g.Go(func() error {
			p := make(map[string]*addressDelta)
			for _, in := range blk.Inputs[r[0]:r[1]] {
				if in.Address == nil || !in.Type.HasAddress() {
					continue
				}
				d := get(p, in.Address)
				d.spent = append(d.spent, addressSpend{
					value:  in.Value,
					origin: in.OriginHeight,
				})
			}
			partial[i] = p
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return mergeMaps(partial, func(dst, src *addressDelta) {
		dst.merge(src)
	}), nil
}

// loadAddress returns the balance record of addr, or an empty one.
func (m *Manager) loadAddress(addr string) (*cohort.AddressData, error) {
	v, err := m.addressData.Get([]byte(addr))
	if err != nil {
		return nil, err
	}
	if v == nil {
		return &cohort.AddressData{}, nil
	}
	return cohort.DecodeAddressData(v)
}

// addressBucket returns the cohort of an address, or nil for an empty one.
func (m *Manager) addressBucket(a *cohort.AddressData) *entry {
	if a.IsEmpty() {
		return nil
	}
	return *m.addr.amount.Get(a.Balance())
}

// applyAddresses updates the balance record and cohort of every address
// touched by the block.  An address that stays in its cohort is updated in
// place.  One that changes cohort is removed whole from the old cohort and
// added whole to the new one.
func (m *Manager) applyAddresses(height int32,
	deltas map[string]*addressDelta) error {

	addrs := make([]string, 0, len(deltas))
	for a := range deltas {
		addrs = append(addrs, a)
	}
	sort.Strings(addrs)

	bs := m.history.At(height)
	for _, addr := range addrs {
		d := deltas[addr]
		data, err := m.loadAddress(addr)
		if err != nil {
			return fmt.Errorf("load address: %w", err)
		}

		before := *data
		old := m.addressBucket(&before)

		spends := make([]cohort.SpendInfo, len(d.spent))
		for i, s := range d.spent {
			ob := m.history.At(s.origin)
			spends[i] = cohort.SpendInfo{
				Current: bs.Price,
				Prev:    ob.Price,
				Peak:    m.history.PeakSince(s.origin),
				Age: cohort.Age{
					Seconds: int64(bs.Timestamp) - int64(ob.Timestamp),
					Blocks:  height - s.origin,
				},
			}
		}

		for _, v := range d.received {
			data.Receive(v, supply.CentSats(bs.Price.UnwrapOr(0), v))
		}
		for i, s := range d.spent {
			prev := spends[i].Prev.UnwrapOr(0)
			data.Send(s.value, supply.CentSats(prev, s.value))
		}
		cur := m.addressBucket(data)

		if old != nil && old == cur {
			for _, v := range d.received {
				old.state.Receive(supply.One(v), bs.Price)
			}
			for i, s := range d.spent {
				err := old.state.Send(supply.One(s.value), spends[i])
				if err != nil {
					return err
				}
			}
		} else {
			if old != nil {
				old.addr.SubAddress(&before)
				for i, s := range d.spent {
					old.state.RecordSpend(s.value, spends[i])
				}
			}
			if cur != nil {
				cur.addr.AddAddress(data)
				for _, v := range d.received {
					cur.state.Realized.Received += v
				}
			}
		}

		b, err := data.Encode()
		if err != nil {
			return err
		}
		m.addressData.Put([]byte(addr), b)
	}
	return nil
}
