// Copyright (c) 2026 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package chainsrc

import (
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/lightninglabs/gozmq"
)

const (
	// hashBlockZMQCommand is the topic bitcoind publishes the hash of
	// every new best block on (-zmqpubhashblock).
	hashBlockZMQCommand = "hashblock"

	// seqNumLen is the length of the sequence number of a message sent
	// from bitcoind through ZMQ.
	seqNumLen = 4
)

// zmqConn is the part of a ZMQ subscription the notifier reads from.
type zmqConn interface {
	Receive([][]byte) ([][]byte, error)
	Close() error
}

// BlockNotifier wakes the engine as soon as bitcoind announces a new block,
// instead of waiting for the next poll.
type BlockNotifier struct {
	conn zmqConn
	wake func(chainhash.Hash)

	wg   sync.WaitGroup
	quit chan struct{}
	once sync.Once
}

// NewBlockNotifier subscribes to the hashblock topic of the bitcoind ZMQ
// endpoint at host.  wake is called from the notifier's goroutine for every
// announced block and must not block.
func NewBlockNotifier(host string, readDeadline time.Duration,
	wake func(chainhash.Hash)) (*BlockNotifier, error) {

	conn, err := gozmq.Subscribe(
		host, []string{hashBlockZMQCommand}, readDeadline,
	)
	if err != nil {
		return nil, fmt.Errorf("unable to subscribe for zmq block "+
			"events: %w", err)
	}
	log.Infof("Listening for bitcoind block notifications via ZMQ on %v",
		conn.RemoteAddr())

	return newBlockNotifier(conn, wake), nil
}

func newBlockNotifier(conn zmqConn, wake func(chainhash.Hash)) *BlockNotifier {
	n := &BlockNotifier{
		conn: conn,
		wake: wake,
		quit: make(chan struct{}),
	}
	n.wg.Add(1)
	go n.blockEventHandler()
	return n
}

// Stop closes the subscription and waits for the handler to exit.
func (n *BlockNotifier) Stop() error {
	var err error
	n.once.Do(func() {
		close(n.quit)
		err = n.conn.Close()
		n.wg.Wait()
	})
	return err
}

// blockEventHandler reads hashblock events until the connection is closed.
//
// NOTE: This must be run as a goroutine.
func (n *BlockNotifier) blockEventHandler() {
	defer n.wg.Done()

	var (
		command [len(hashBlockZMQCommand)]byte
		hash    [chainhash.HashSize]byte
		seqNum  [seqNumLen]byte
	)

	for {
		select {
		case <-n.quit:
			return
		default:
		}

		bufs := [][]byte{command[:], hash[:], seqNum[:]}
		bufs, err := n.conn.Receive(bufs)
		if err != nil {
			// EOF should only be returned if the connection was
			// explicitly closed, so we can exit at this point.
			if errors.Is(err, io.EOF) {
				return
			}

			// Timeouts are expected while no block arrives.
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				continue
			}

			select {
			case <-n.quit:
				return
			default:
			}
			log.Errorf("Unable to receive ZMQ %v message: %v",
				hashBlockZMQCommand, err)
			continue
		}

		if len(bufs) < 2 || string(bufs[0]) != hashBlockZMQCommand {
			continue
		}
		if len(bufs[1]) != chainhash.HashSize {
			log.Warnf("Received hashblock event of %d bytes",
				len(bufs[1]))
			continue
		}

		// bitcoind sends the hash in display order.
		var h chainhash.Hash
		for i := 0; i < chainhash.HashSize; i++ {
			h[i] = bufs[1][chainhash.HashSize-1-i]
		}
		log.Debugf("Block %v announced via ZMQ", h)
		n.wake(h)
	}
}
