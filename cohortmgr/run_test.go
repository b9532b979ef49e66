// Copyright (c) 2026 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package cohortmgr

import (
	"context"
	"math/rand"
	"testing"
	"time"

	"github.com/lightningnetwork/lnd/ticker"
	"github.com/stretchr/testify/require"
)

func TestRunFollowsReorg(t *testing.T) {
	t.Parallel()

	r := rand.New(rand.NewSource(21))
	var c chainBuilder
	for i := 0; i < 12; i++ {
		c.random(r)
	}
	src := &fakeSource{chain: &c}

	cfg := testConfig(t, testDB(t))
	cfg.TipDistance = 5
	cfg.MaxReorgDepth = 5
	cfg.FlushInterval = 4
	m, err := New(cfg)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- m.Run(ctx, src) }()

	require.Eventually(t, func() bool { return m.Tip() == 11 },
		5*time.Second, 10*time.Millisecond)

	// Replace the last three blocks with a longer fork.
	src.mu.Lock()
	c.rewind(8)
	for i := 0; i < 5; i++ {
		c.random(r)
	}
	src.mu.Unlock()

	poll := cfg.PollTicker.(*ticker.Force)
	require.Eventually(t, func() bool {
		select {
		case poll.Force <- time.Now():
		default:
		}
		return m.Tip() == 13
	}, 5*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("run did not stop")
	}

	for h := int32(0); h <= 13; h++ {
		hash, ok, err := m.BlockHash(h)
		require.NoError(t, err)
		require.True(t, ok)
		require.Equal(t, c.blocks[h].Hash, hash, "height %d", h)
	}
	requirePartitions(t, m, &c)

	stamp, ok := m.store.Stamp()
	require.True(t, ok)
	require.Equal(t, uint32(13), stamp)
}

func TestRunReorgTooDeep(t *testing.T) {
	t.Parallel()

	r := rand.New(rand.NewSource(4))
	var c chainBuilder
	for i := 0; i < 4; i++ {
		c.random(r)
	}
	src := &fakeSource{chain: &c}

	m := testManager(t, testDB(t))
	processAll(t, m, c.blocks)
	require.NoError(t, m.Commit(true))

	// A source on a chain sharing no block with ours.
	var other chainBuilder
	other.fork = 7
	for i := 0; i < 6; i++ {
		other.random(r)
	}
	src.chain = &other

	err := m.Run(context.Background(), src)
	require.ErrorIs(t, err, ErrReorgTooDeep)
}
