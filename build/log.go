// Copyright (c) 2015-2026 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package build

import (
	"os"

	"github.com/btcsuite/btclog"
)

// LogType selects where package loggers write when the daemon has not
// handed them a backend of its own.  It is chosen at compile time by the
// stdlog and nolog build tags.
type LogType byte

const (
	// LogTypeNone disables package logging.
	LogTypeNone LogType = iota

	// LogTypeStdOut writes package logging to stdout at LogLevel, which
	// is what `go test -tags stdlog` uses to debug a failing test.
	LogTypeStdOut

	// LogTypeDefault leaves package logging off until the daemon
	// installs its rotating backend through each package's UseLogger.
	LogTypeDefault
)

// String returns a human readable identifier for the logging type.
func (t LogType) String() string {
	switch t {
	case LogTypeNone:
		return "none"
	case LogTypeStdOut:
		return "stdout"
	case LogTypeDefault:
		return "default"
	default:
		return "unknown"
	}
}

// NewSubLogger returns the logger a package starts with.  genSubLogger,
// when given, derives the logger from a shared backend; without it the
// result depends on the deployment and LoggingType.
func NewSubLogger(subsystem string,
	genSubLogger func(string) btclog.Logger) btclog.Logger {

	if genSubLogger != nil && (Deployment == Production ||
		LoggingType == LogTypeDefault) {

		return genSubLogger(subsystem)
	}

	if Deployment == Development && LoggingType == LogTypeStdOut {
		return stdoutLogger(subsystem)
	}

	return btclog.Disabled
}

// stdoutLogger returns a logger for subsystem with its own stdout backend,
// set to the compiled-in LogLevel.
func stdoutLogger(subsystem string) btclog.Logger {
	logger := btclog.NewBackend(os.Stdout).Logger(subsystem)

	level, ok := btclog.LevelFromString(LogLevel)
	if !ok {
		level = btclog.LevelInfo
	}
	logger.SetLevel(level)

	return logger
}
