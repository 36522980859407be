// Copyright 2025 The go-zeromq Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

//go:build !(linux || darwin || freebsd || netbsd || openbsd || dragonfly)

package asyncnet

import (
	"errors"
	"syscall"
)

var errReuseUnsupported = errors.New("asyncnet: address reuse not supported on this platform")

func reuseControl(network, address string, rc syscall.RawConn) error {
	return errReuseUnsupported
}

func setSockoptInt(rc syscall.RawConn, opt SockOption, value int) error {
	return errReuseUnsupported
}
