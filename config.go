// Copyright (c) 2013-2026 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/btcsuite/btccohort/internal/cfgutil"
	"github.com/btcsuite/btccohort/netparams"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btclog"
	flags "github.com/jessevdk/go-flags"
)

const (
	defaultConfigFilename = "btccohort.conf"
	defaultLogLevel       = "info"
	defaultLogDirname     = "logs"
	defaultLogFilename    = "btccohort.log"
	defaultFlushInterval  = 10000
	defaultTipDistance    = 100
	defaultMaxReorgDepth  = 100
	defaultPollInterval   = 5 * time.Second
	defaultDBTimeout      = 60 * time.Second

	cohortDBName = "cohort.db"
)

var (
	btcdDefaultCAFile  = filepath.Join(btcutil.AppDataDir("btcd", false), "rpc.cert")
	defaultAppDataDir  = btcutil.AppDataDir("btccohort", false)
	defaultConfigFile  = filepath.Join(defaultAppDataDir, defaultConfigFilename)
	defaultLogDir      = filepath.Join(defaultAppDataDir, defaultLogDirname)
	errMultipleNetwork = errors.New("the testnet, testnet4, signet and " +
		"regtest params can't be used together -- choose one")
)

type config struct {
	// General application behavior
	ConfigFile    *cfgutil.ExplicitString `short:"C" long:"configfile" description:"Path to configuration file"`
	ShowVersion   bool                    `short:"V" long:"version" description:"Display version information and exit"`
	AppDataDir    *cfgutil.ExplicitString `short:"A" long:"appdata" description:"Application data directory for the cohort database"`
	TestNet3      bool                    `long:"testnet" description:"Follow the test network (version 3)"`
	TestNet4      bool                    `long:"testnet4" description:"Follow the test network (version 4)"`
	SigNet        bool                    `long:"signet" description:"Follow the default signet"`
	RegTest       bool                    `long:"regtest" description:"Follow a regression test network"`
	DebugLevel    string                  `short:"d" long:"debuglevel" description:"Logging level for all subsystems {trace, debug, info, warn, error, critical} -- You may also specify <subsystem>=<level>,<subsystem2>=<level>,... to set the log level for individual subsystems -- Use show to list available subsystems"`
	LogDir        string                  `long:"logdir" description:"Directory to log output."`
	Profile       string                  `long:"profile" description:"Enable HTTP profiling on given port -- NOTE port must be between 1024 and 65536"`
	MetricsListen string                  `long:"metricslisten" description:"Serve Prometheus metrics on this interface/port (disabled by default)"`
	DBTimeout     time.Duration           `long:"dbtimeout" description:"The timeout value to use when opening the cohort database."`

	// Node RPC options
	RPCConnect string `short:"c" long:"rpcconnect" description:"Hostname/IP and port of the node RPC server to connect to (default localhost:8332, testnet: localhost:18332, testnet4: localhost:48332, signet: localhost:38332, regtest: localhost:18443)"`
	RPCUser    string `short:"u" long:"rpcuser" description:"Username for node RPC authentication"`
	RPCPass    string `short:"P" long:"rpcpass" default-mask:"-" description:"Password for node RPC authentication"`
	CAFile     string `long:"cafile" description:"File containing root certificates to authenticate a TLS connection with the node"`
	NoTLS      bool   `long:"notls" description:"Disable TLS for the node RPC connection"`
	ZMQBlock   string `long:"zmqpubhashblock" description:"bitcoind ZMQ hashblock endpoint to wake on new blocks instead of waiting for the next poll (eg. tcp://127.0.0.1:28332)"`

	// Engine options
	PriceFile     string        `long:"pricefile" description:"CSV file of daily USD prices (date,price); blocks are unpriced without it"`
	FlushInterval int32         `long:"flushinterval" description:"Blocks between checkpoints while far from the tip"`
	TipDistance   int32         `long:"tipdistance" description:"Blocks from the best block within which every block is checkpointed"`
	MaxReorgDepth int32         `long:"maxreorgdepth" description:"Deepest chain reorganization that can be rolled back"`
	Workers       int           `long:"workers" description:"Parallel workers per block (default: number of CPUs)"`
	PollInterval  time.Duration `long:"pollinterval" description:"Interval between polls of the node for new blocks once caught up"`
}

// networkDir returns the directory name of a network directory to hold
// cohort data.
func networkDir(dataDir string, chainParams *chaincfg.Params) string {
	return filepath.Join(dataDir, chainParams.Name)
}

// dbPath returns the path of the cohort database of the active network.
func (c *config) dbPath() string {
	return filepath.Join(networkDir(c.AppDataDir.Value, activeNet.Params),
		cohortDBName)
}

// validLogLevel returns whether or not logLevel is a valid debug log level.
func validLogLevel(logLevel string) bool {
	_, ok := btclog.LevelFromString(logLevel)
	return ok
}

// parseAndSetDebugLevels attempts to parse the specified debug level and set
// the levels accordingly.  An appropriate error is returned if anything is
// invalid.
func parseAndSetDebugLevels(debugLevel string) error {
	// When the specified string doesn't have any delimters, treat it as
	// the log level for all subsystems.
	if !strings.Contains(debugLevel, ",") && !strings.Contains(debugLevel, "=") {
		level, ok := btclog.LevelFromString(debugLevel)
		if !ok {
			str := "the specified debug level [%v] is invalid"
			return fmt.Errorf(str, debugLevel)
		}

		// Change the logging level for all subsystems.
		setLogLevels(level)

		return nil
	}

	// Split the specified string into subsystem/level pairs while detecting
	// issues and update the log levels accordingly.
	for _, logLevelPair := range strings.Split(debugLevel, ",") {
		if !strings.Contains(logLevelPair, "=") {
			str := "the specified debug level contains an invalid " +
				"subsystem/level pair [%v]"
			return fmt.Errorf(str, logLevelPair)
		}

		// Extract the specified subsystem and log level.
		fields := strings.Split(logLevelPair, "=")
		subsysID, logLevel := fields[0], fields[1]

		// Validate subsystem.
		if _, exists := subsystemLoggers[subsysID]; !exists {
			str := "the specified subsystem [%v] is invalid -- " +
				"supported subsytems %v"
			return fmt.Errorf(str, subsysID, supportedSubsystems())
		}

		level, ok := btclog.LevelFromString(logLevel)
		if !ok {
			str := "the specified debug level [%v] is invalid"
			return fmt.Errorf(str, logLevel)
		}

		setLogLevel(subsysID, level)
	}

	return nil
}

// defaultConfig returns the configuration before any file or command line
// options are applied.
func defaultConfig() config {
	return config{
		ConfigFile:    cfgutil.NewExplicitString(defaultConfigFile),
		AppDataDir:    cfgutil.NewExplicitString(defaultAppDataDir),
		DebugLevel:    defaultLogLevel,
		LogDir:        defaultLogDir,
		DBTimeout:     defaultDBTimeout,
		CAFile:        btcdDefaultCAFile,
		FlushInterval: defaultFlushInterval,
		TipDistance:   defaultTipDistance,
		MaxReorgDepth: defaultMaxReorgDepth,
		PollInterval:  defaultPollInterval,
	}
}

// loadConfig initializes and parses the config using a config file and command
// line options.
//
// The configuration proceeds as follows:
//  1. Start with a default config with sane settings
//  2. Pre-parse the command line to check for an alternative config file
//  3. Load configuration file overwriting defaults with any specified options
//  4. Parse CLI options and overwrite/add any specified options
//
// The above results in btccohort functioning properly without any config
// settings while still allowing the user to override settings with config files
// and command line options.  Command line options always take precedence.
func loadConfig() (*config, []string, error) {
	cfg := defaultConfig()

	// Pre-parse the command line options to see if an alternative config
	// file or the version flag was specified.
	preCfg := cfg
	preParser := flags.NewParser(&preCfg, flags.Default)
	_, err := preParser.Parse()
	if err != nil {
		var e *flags.Error
		if !errors.As(err, &e) || e.Type != flags.ErrHelp {
			preParser.WriteHelp(os.Stderr)
		}
		return nil, nil, err
	}

	// Show the version and exit if the version flag was specified.
	funcName := "loadConfig"
	appName := filepath.Base(os.Args[0])
	appName = strings.TrimSuffix(appName, filepath.Ext(appName))
	usageMessage := fmt.Sprintf("Use %s -h to show usage", appName)
	if preCfg.ShowVersion {
		fmt.Println(appName, "version", version())
		os.Exit(0)
	}

	// If the config file path has not been modified by user, then we'll
	// use the default config file path within the app data directory.
	configFilePath := preCfg.ConfigFile.Value
	if preCfg.AppDataDir.ExplicitlySet() && !preCfg.ConfigFile.ExplicitlySet() {
		configFilePath = filepath.Join(
			preCfg.AppDataDir.Value, defaultConfigFilename,
		)
	}
	configFilePath = cfgutil.CleanAndExpandPath(configFilePath)

	// Load additional config from file.
	var configFileError error
	parser := flags.NewParser(&cfg, flags.Default)
	err = flags.NewIniParser(parser).ParseFile(configFilePath)
	if err != nil {
		var pathErr *os.PathError
		if !errors.As(err, &pathErr) {
			fmt.Fprintln(os.Stderr, err)
			parser.WriteHelp(os.Stderr)
			return nil, nil, err
		}
		configFileError = err
	}

	// Parse command line options again to ensure they take precedence.
	remainingArgs, err := parser.Parse()
	if err != nil {
		var e *flags.Error
		if !errors.As(err, &e) || e.Type != flags.ErrHelp {
			parser.WriteHelp(os.Stderr)
		}
		return nil, nil, err
	}

	if err := cfg.validate(); err != nil {
		err := fmt.Errorf("%s: %w", funcName, err)
		fmt.Fprintln(os.Stderr, err)
		fmt.Fprintln(os.Stderr, usageMessage)
		return nil, nil, err
	}

	// Special show command to list supported subsystems and exit.
	if cfg.DebugLevel == "show" {
		fmt.Println("Supported subsystems", supportedSubsystems())
		os.Exit(0)
	}

	// Initialize log rotation.  After log rotation has been initialized,
	// the logger variables may be used.
	if err := initLogRotator(filepath.Join(cfg.LogDir, defaultLogFilename)); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return nil, nil, err
	}

	// Parse, validate, and set debug log level(s).
	if err := parseAndSetDebugLevels(cfg.DebugLevel); err != nil {
		err := fmt.Errorf("%s: %w", funcName, err)
		fmt.Fprintln(os.Stderr, err)
		fmt.Fprintln(os.Stderr, usageMessage)
		return nil, nil, err
	}

	// Warn about missing config file after the final command line parse
	// succeeds.  This prevents the warning on help messages and invalid
	// options.
	if configFileError != nil {
		log.Warnf("%v", configFileError)
	}

	return &cfg, remainingArgs, nil
}

// validate selects the active network and checks and normalizes the
// parsed options.  It does not touch the logging system, so a config can
// be validated before log rotation is set up.
func (c *config) validate() error {
	// Choose the active network params based on the selected network.
	// Multiple networks can't be selected simultaneously.
	numNets := 0
	if c.TestNet3 {
		activeNet = &netparams.TestNet3Params
		numNets++
	}
	if c.TestNet4 {
		activeNet = &netparams.TestNet4Params
		numNets++
	}
	if c.SigNet {
		activeNet = &netparams.SigNetParams
		numNets++
	}
	if c.RegTest {
		activeNet = &netparams.RegTestParams
		numNets++
	}
	if numNets > 1 {
		return errMultipleNetwork
	}

	c.AppDataDir.Value = cfgutil.CleanAndExpandPath(c.AppDataDir.Value)

	// If an alternate data directory was specified, and the log directory
	// was left at its default, keep the logs under the new data directory.
	if c.AppDataDir.ExplicitlySet() && c.LogDir == defaultLogDir {
		c.LogDir = filepath.Join(c.AppDataDir.Value, defaultLogDirname)
	}

	// Append the network type to the log directory so it is "namespaced"
	// per network.
	c.LogDir = cfgutil.CleanAndExpandPath(c.LogDir)
	c.LogDir = filepath.Join(c.LogDir, activeNet.Params.Name)

	if c.DebugLevel != "show" && !strings.ContainsAny(c.DebugLevel, ",=") &&
		!validLogLevel(c.DebugLevel) {

		return fmt.Errorf("the specified debug level [%v] is invalid",
			c.DebugLevel)
	}

	if c.RPCConnect == "" {
		c.RPCConnect = "localhost"
	}
	rpcConnect, err := cfgutil.NormalizeAddress(c.RPCConnect,
		activeNet.RPCPort)
	if err != nil {
		return fmt.Errorf("invalid rpcconnect network address: %w", err)
	}
	c.RPCConnect = rpcConnect
	c.CAFile = cfgutil.CleanAndExpandPath(c.CAFile)
	c.PriceFile = cfgutil.CleanAndExpandPath(c.PriceFile)

	if c.FlushInterval < 1 {
		return fmt.Errorf("flushinterval must be positive, got %d",
			c.FlushInterval)
	}
	if c.TipDistance < 0 {
		return fmt.Errorf("tipdistance must not be negative, got %d",
			c.TipDistance)
	}
	if c.MaxReorgDepth < 1 {
		return fmt.Errorf("maxreorgdepth must be positive, got %d",
			c.MaxReorgDepth)
	}
	if c.TipDistance < c.MaxReorgDepth {
		return fmt.Errorf("tipdistance (%d) must be at least "+
			"maxreorgdepth (%d)", c.TipDistance, c.MaxReorgDepth)
	}
	if c.Workers < 0 {
		return fmt.Errorf("workers must not be negative, got %d",
			c.Workers)
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("pollinterval must be positive, got %v",
			c.PollInterval)
	}

	return nil
}
