// Copyright (c) 2026 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package colstore

import (
	"errors"
	"fmt"
)

// ErrorCode identifies a kind of error.
type ErrorCode int

// These constants are used to identify a specific Error.
const (
	// ErrDatabase indicates an error with the underlying database.  When
	// this error code is set, the Err field of the Error will be set to
	// the underlying error returned from the database.
	ErrDatabase ErrorCode = iota

	// ErrVersionMismatch indicates the persisted layout was written by an
	// incompatible version.  The only recovery is to delete the data
	// directory and process the chain again.
	ErrVersionMismatch

	// ErrRollbackUnavailable indicates that no checkpoint able to restore
	// the requested height is retained.
	ErrRollbackUnavailable

	// ErrOutOfRange indicates a column read past its length.
	ErrOutOfRange

	// ErrCorrupt indicates a persisted record could not be decoded.
	ErrCorrupt
)

// Map of ErrorCode values back to their constant names for pretty printing.
var errorCodeStrings = map[ErrorCode]string{
	ErrDatabase:            "ErrDatabase",
	ErrVersionMismatch:     "ErrVersionMismatch",
	ErrRollbackUnavailable: "ErrRollbackUnavailable",
	ErrOutOfRange:          "ErrOutOfRange",
	ErrCorrupt:             "ErrCorrupt",
}

// String returns the ErrorCode as a human-readable name.
func (e ErrorCode) String() string {
	if s := errorCodeStrings[e]; s != "" {
		return s
	}
	return fmt.Sprintf("Unknown ErrorCode (%d)", int(e))
}

// Error provides a single type for errors that can happen during column
// store operation.
type Error struct {
	ErrorCode   ErrorCode // Describes the kind of error
	Description string    // Human readable description of the issue
	Err         error     // Underlying error
}

// Error satisfies the error interface and prints human-readable errors.
func (e Error) Error() string {
	if e.Err != nil {
		return e.Description + ": " + e.Err.Error()
	}
	return e.Description
}

// Unwrap returns the underlying error, if any.
func (e Error) Unwrap() error {
	return e.Err
}

// storeError creates an Error given a set of arguments.
func storeError(c ErrorCode, desc string, err error) Error {
	return Error{ErrorCode: c, Description: desc, Err: err}
}

// IsError returns whether err is, or wraps, an Error with the given code.
func IsError(err error, code ErrorCode) bool {
	var e Error
	if errors.As(err, &e) {
		return e.ErrorCode == code
	}
	return false
}
