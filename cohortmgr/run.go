// Copyright (c) 2026 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package cohortmgr

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrReorgTooDeep is returned by Run when the source chain forked below
// the deepest block that can be rolled back.
var ErrReorgTooDeep = errors.New("reorganization deeper than the " +
	"maximum reorg depth")

// Run processes blocks from src until ctx is done, then commits.  Near the
// best height every block is committed with changes, farther away a commit
// without changes is made every FlushInterval blocks.  A block that does
// not connect to the processed chain triggers a rollback to the fork
// point.
func (m *Manager) Run(ctx context.Context, src BlockSource) error {
	if m.cfg.PollTicker == nil || m.cfg.ProgressTicker == nil {
		return errors.New("cohortmgr: run needs poll and progress tickers")
	}

	m.cfg.ProgressTicker.Resume()
	defer m.cfg.ProgressTicker.Stop()
	defer m.cfg.PollTicker.Stop()

	var (
		processed int
		lastLog   = time.Now()
	)
	for {
		select {
		case <-ctx.Done():
			return m.shutdown()

		case <-m.cfg.ProgressTicker.Ticks():
			tip := m.Tip()
			log.Infof("Processed %d blocks in %v, height %d", processed,
				time.Since(lastLog).Truncate(time.Millisecond), tip)
			processed, lastLog = 0, time.Now()

		default:
		}

		best, err := src.BestHeight(ctx)
		if err != nil {
			return m.stop(ctx, err)
		}

		next := m.NextHeight()
		if next > best {
			if err := m.Commit(true); err != nil {
				return err
			}
			if err := m.waitForBlocks(ctx); err != nil {
				return m.shutdown()
			}
			continue
		}

		blk, err := src.FetchBlock(ctx, next)
		if err != nil {
			return m.stop(ctx, err)
		}

		if next > 0 {
			prev, ok, err := m.BlockHash(next - 1)
			if err != nil {
				return err
			}
			if ok && prev != blk.PrevHash {
				if err := m.reorg(ctx, src); err != nil {
					return m.stop(ctx, err)
				}
				continue
			}
		}

		if err := m.ProcessBlock(ctx, blk); err != nil {
			return m.stop(ctx, err)
		}
		processed++

		switch {
		case best-blk.Height <= m.cfg.TipDistance:
			err = m.Commit(true)
		case m.sinceCommitted() >= m.cfg.FlushInterval:
			err = m.Commit(false)
		}
		if err != nil {
			return err
		}
	}
}

func (m *Manager) sinceCommitted() int32 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sinceCommit
}

// waitForBlocks blocks until the next poll tick.
func (m *Manager) waitForBlocks(ctx context.Context) error {
	m.cfg.PollTicker.Resume()
	defer m.cfg.PollTicker.Pause()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-m.cfg.PollTicker.Ticks():
		return nil
	}
}

// stop returns err unless ctx was canceled, in which case the error came
// from the cancellation and the manager shuts down cleanly.
func (m *Manager) stop(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return m.shutdown()
	}
	return err
}

func (m *Manager) shutdown() error {
	log.Infof("Shutting down at height %d", m.Tip())
	return m.Commit(true)
}

// reorg finds the highest processed block still on the chain of src and
// rolls back to it.
func (m *Manager) reorg(ctx context.Context, src BlockSource) error {
	tip := m.Tip()
	for h := tip; h >= 0 && tip-h <= m.cfg.MaxReorgDepth; h-- {
		ours, ok, err := m.BlockHash(h)
		if err != nil {
			return err
		}
		if !ok {
			break
		}
		theirs, err := src.BlockHash(ctx, h)
		if err != nil {
			return err
		}
		if ours != theirs {
			continue
		}

		log.Infof("Chain reorganized above height %d (tip %d)", h, tip)
		restored, err := m.Rollback(h)
		if err != nil {
			return fmt.Errorf("roll back to %d: %w", h, err)
		}
		if restored < h {
			log.Infof("Reprocessing from height %d", restored+1)
		}
		return nil
	}
	return fmt.Errorf("%w: tip %d", ErrReorgTooDeep, tip)
}
