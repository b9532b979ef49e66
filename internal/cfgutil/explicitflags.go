// Copyright (c) 2016-2026 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package cfgutil

// ExplicitString is a path option that remembers whether it was given on
// the command line or in the config file.  The data directory uses it to
// move the config file and logs along with it only when they were left at
// their defaults.
type ExplicitString struct {
	Value string
	set   bool
}

func NewExplicitString(value string) *ExplicitString {
	return &ExplicitString{Value: value}
}

func (e *ExplicitString) ExplicitlySet() bool { return e.set }

// MarshalFlag and UnmarshalFlag make ExplicitString a go-flags option.
func (e *ExplicitString) MarshalFlag() (string, error) { return e.Value, nil }

func (e *ExplicitString) UnmarshalFlag(value string) error {
	e.Value, e.set = value, true
	return nil
}
