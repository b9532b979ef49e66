// Copyright (c) 2015-2026 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package cfgutil

import (
	"os"
	"os/user"
	"path/filepath"
	"strings"
)

// FileExists reports whether the named file or directory exists.
func FileExists(filePath string) (bool, error) {
	_, err := os.Stat(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// CleanAndExpandPath expands environment variables and a leading ~ in the
// passed path, cleans the result, and returns it.  An empty path stays
// empty.
func CleanAndExpandPath(path string) string {
	if path == "" {
		return ""
	}

	// Expand initial ~ to the current user's home directory, or ~otheruser
	// to otheruser's home directory.
	if strings.HasPrefix(path, "~") {
		var username string
		rest := path[1:]
		if i := strings.IndexAny(rest, `/\`); i >= 0 {
			username, rest = rest[:i], rest[i:]
		} else {
			username, rest = rest, ""
		}

		var homeDir string
		if username == "" {
			if u, err := user.Current(); err == nil {
				homeDir = u.HomeDir
			} else {
				homeDir = os.Getenv("HOME")
			}
		} else if u, err := user.Lookup(username); err == nil {
			homeDir = u.HomeDir
		}
		if homeDir != "" {
			path = homeDir + rest
		}
	}

	// NOTE: The os.ExpandEnv doesn't work with Windows cmd.exe-style
	// %VARIABLE%, but the variables can still be expanded via POSIX-style
	// $VARIABLE.
	return filepath.Clean(os.ExpandEnv(path))
}
