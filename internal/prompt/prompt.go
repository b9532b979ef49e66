// Copyright (c) 2015-2026 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package prompt reads secrets that were left out of the configuration from
// the controlling terminal.
package prompt

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"golang.org/x/term"
)

// ErrNotTerminal is returned when the input is not a terminal, so nothing
// can be read without echoing it.
var ErrNotTerminal = errors.New("input is not a terminal")

// maxAttempts bounds how many empty answers are accepted before giving up.
const maxAttempts = 3

// PassPrompt prompts on out with the given prefix and reads a passphrase from
// the terminal fd without echo.  Empty answers repeat the prompt.
func PassPrompt(fd int, out io.Writer, prefix string) ([]byte, error) {
	if !term.IsTerminal(fd) {
		return nil, ErrNotTerminal
	}

	prompt := fmt.Sprintf("%s: ", prefix)
	for i := 0; i < maxAttempts; i++ {
		fmt.Fprint(out, prompt)
		pass, err := term.ReadPassword(fd)
		if err != nil {
			return nil, err
		}
		fmt.Fprint(out, "\n")
		pass = bytes.TrimSpace(pass)
		if len(pass) == 0 {
			continue
		}

		return pass, nil
	}
	return nil, errors.New("no passphrase entered")
}
