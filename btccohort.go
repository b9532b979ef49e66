// Copyright (c) 2013-2026 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	_ "net/http/pprof" // nolint:gosec
	"os"
	"path/filepath"
	"time"

	"github.com/btcsuite/btccohort/chainsrc"
	"github.com/btcsuite/btccohort/cohortmgr"
	"github.com/btcsuite/btccohort/colstore"
	"github.com/btcsuite/btccohort/internal/cfgutil"
	"github.com/btcsuite/btccohort/internal/prompt"
	"github.com/btcsuite/btccohort/internal/telemetry"
	"github.com/btcsuite/btccohort/pricefeed"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcwallet/walletdb"
	_ "github.com/btcsuite/btcwallet/walletdb/bdb"
	"github.com/lightningnetwork/lnd/ticker"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

const (
	// progressInterval paces the progress lines logged while processing.
	progressInterval = 10 * time.Second

	// zmqReadDeadline bounds each read of the ZMQ block subscription.
	zmqReadDeadline = 5 * time.Second
)

var cfg *config

func main() {
	// Work around defer not working after os.Exit.
	if err := cohortMain(); err != nil {
		os.Exit(1)
	}
}

// cohortMain is a work-around main function that is required since deferred
// functions (such as log flushing) are not called with calls to os.Exit.
// Instead, main runs this function and checks for a non-nil error, at which
// point any defers have already run, and if the error is non-nil, the program
// can be exited with an error exit status.
func cohortMain() error {
	// Load configuration and parse command line.  This function also
	// initializes logging and configures it accordingly.
	tcfg, _, err := loadConfig()
	if err != nil {
		return err
	}
	cfg = tcfg
	defer func() {
		if logRotator != nil {
			logRotator.Close()
		}
	}()

	// Show version at startup.
	log.Infof("Version %s (%s)", version(), activeNet.Params.Name)

	if cfg.Profile != "" {
		go func() {
			listenAddr := net.JoinHostPort("", cfg.Profile)
			log.Infof("Profile server listening on %s", listenAddr)
			profileRedirect := http.RedirectHandler("/debug/pprof",
				http.StatusSeeOther)
			http.Handle("/", profileRedirect)
			log.Errorf("%v", http.ListenAndServe(listenAddr, nil))
		}()
	}

	ctx, cancel := interruptContext()
	defer cancel()

	db, err := openDB(cfg.dbPath(), cfg.DBTimeout)
	if err != nil {
		log.Errorf("Unable to open cohort database: %v", err)
		return err
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Errorf("Unable to close cohort database: %v", err)
		}
	}()

	store, err := colstore.Open(db, uint32(cfg.MaxReorgDepth))
	if colstore.IsError(err, colstore.ErrVersionMismatch) {
		log.Criticalf("%v -- delete %s and process the chain again",
			err, filepath.Dir(cfg.dbPath()))
		return err
	}
	if err != nil {
		log.Errorf("Unable to open column store: %v", err)
		return err
	}

	metrics, err := startMetrics(cfg.MetricsListen)
	if err != nil {
		log.Errorf("Unable to start metrics server: %v", err)
		return err
	}

	src, shutdownRPC, err := newBlockSource(store)
	if err != nil {
		log.Errorf("Unable to create block source: %v", err)
		return err
	}
	defer shutdownRPC()

	pollTicker := ticker.NewForce(cfg.PollInterval)
	if cfg.ZMQBlock != "" {
		notifier, err := chainsrc.NewBlockNotifier(cfg.ZMQBlock,
			zmqReadDeadline, func(chainhash.Hash) {
				select {
				case pollTicker.Force <- time.Now():
				default:
				}
			})
		if err != nil {
			log.Errorf("Unable to subscribe to block notifications: "+
				"%v", err)
			return err
		}
		defer notifier.Stop()
	}

	mgr, err := cohortmgr.New(cohortmgr.Config{
		Store:          store,
		Workers:        cfg.Workers,
		TipDistance:    cfg.TipDistance,
		FlushInterval:  cfg.FlushInterval,
		MaxReorgDepth:  cfg.MaxReorgDepth,
		PollTicker:     pollTicker,
		ProgressTicker: ticker.New(progressInterval),
		Metrics:        metrics,
	})
	if err != nil {
		log.Errorf("Unable to load cohorts: %v", err)
		return err
	}

	log.Infof("Tracking %d cohorts, resuming at height %d",
		len(mgr.Catalog()), mgr.NextHeight())

	err = mgr.Run(ctx, src)
	if err != nil && !errors.Is(err, context.Canceled) {
		log.Errorf("Cohort processing stopped: %v", err)
		return err
	}

	log.Info("Shutdown complete")
	return nil
}

// openDB opens the cohort database at dbPath, creating it and its directory
// on first start.
func openDB(dbPath string, timeout time.Duration) (walletdb.DB, error) {
	exists, err := cfgutil.FileExists(dbPath)
	if err != nil {
		return nil, err
	}
	if exists {
		return walletdb.Open("bdb", dbPath, true, timeout, false)
	}

	if err := os.MkdirAll(filepath.Dir(dbPath), 0700); err != nil {
		return nil, err
	}
	log.Infof("Creating cohort database %s", dbPath)
	return walletdb.Create("bdb", dbPath, true, timeout, false)
}

// newBlockSource connects to the node and returns a block source over it,
// along with a function disconnecting the client.
func newBlockSource(store *colstore.Store) (*chainsrc.Source, func(), error) {
	var certs []byte
	if !cfg.NoTLS {
		var err error
		certs, err = os.ReadFile(cfg.CAFile)
		if err != nil {
			return nil, nil, fmt.Errorf("cannot open CA file: %w", err)
		}
	} else {
		log.Info("Node RPC TLS is disabled")
	}

	// Ask for the password on the terminal rather than requiring it in
	// the config file or on the command line.
	rpcPass := cfg.RPCPass
	if cfg.RPCUser != "" && rpcPass == "" {
		pass, err := prompt.PassPrompt(int(os.Stdin.Fd()), os.Stdout,
			fmt.Sprintf("RPC password for %s@%s", cfg.RPCUser,
				cfg.RPCConnect))
		switch {
		case errors.Is(err, prompt.ErrNotTerminal):
			log.Warn("No RPC password given")
		case err != nil:
			return nil, nil, err
		default:
			rpcPass = string(pass)
		}
	}

	client, err := chainsrc.NewRPCClient(cfg.RPCConnect, cfg.RPCUser,
		rpcPass, certs, cfg.NoTLS)
	if err != nil {
		return nil, nil, err
	}

	srcCfg := chainsrc.Config{
		Client:  client,
		Params:  activeNet.Params,
		Store:   store,
		Workers: cfg.Workers,
	}
	if cfg.PriceFile != "" {
		prices, err := pricefeed.Load(cfg.PriceFile)
		if err != nil {
			client.Shutdown()
			return nil, nil, err
		}
		srcCfg.Prices = prices
	} else {
		log.Warn("No price file given, realized metrics stay at zero")
	}

	src, err := chainsrc.New(srcCfg)
	if err != nil {
		client.Shutdown()
		return nil, nil, err
	}

	log.Infof("Following node at %s", cfg.RPCConnect)
	return src, client.Shutdown, nil
}

// startMetrics serves Prometheus metrics on listen.  No metrics are
// collected when listen is empty.
func startMetrics(listen string) (*telemetry.Metrics, error) {
	if listen == "" {
		return nil, nil
	}

	reg := prometheus.NewRegistry()
	err := reg.Register(collectors.NewGoCollector())
	if err != nil {
		return nil, err
	}
	err = reg.Register(collectors.NewProcessCollector(
		collectors.ProcessCollectorOpts{},
	))
	if err != nil {
		return nil, err
	}

	metrics, err := telemetry.New(reg)
	if err != nil {
		return nil, err
	}

	listener, err := net.Listen("tcp", listen)
	if err != nil {
		return nil, err
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", telemetry.Handler(reg))
	server := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		log.Infof("Metrics server listening on %s", listener.Addr())
		err := server.Serve(listener)
		if !errors.Is(err, http.ErrServerClosed) {
			log.Errorf("Metrics server: %v", err)
		}
	}()

	return metrics, nil
}
