// Copyright (c) 2015-2026 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package cfgutil

import "net"

// NormalizeAddress returns addr as host:port, using defaultPort when addr
// names only a host such as "localhost" or "::1".
func NormalizeAddress(addr, defaultPort string) (string, error) {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		host, port = addr, defaultPort
		_, _, retryErr := net.SplitHostPort(net.JoinHostPort(host, port))
		if retryErr != nil {
			return "", err
		}
	}
	return net.JoinHostPort(host, port), nil
}
