// Copyright 2025 The go-zeromq Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package asyncnet

import (
	"encoding/binary"
	"errors"
	"net"
)

// address families used in the peer info blob, sockaddr compatible
const (
	familyInet  = 2
	familyInet6 = 10
)

var errPeerInfo = errors.New("asyncnet: malformed peer info")

// EncodePeerInfo builds the blob carried by NEW events:
//
//	IPv4: family(1) 0(1) port(2 BE) ip(4)
//	IPv6: family(1) 0(1) port(2 BE) flowinfo(4) ip(16)
func EncodePeerInfo(addr net.Addr) []byte {
	ta, ok := addr.(*net.TCPAddr)
	if !ok || ta == nil {
		return nil
	}
	if ip4 := ta.IP.To4(); ip4 != nil {
		b := make([]byte, 8)
		b[0] = familyInet
		binary.BigEndian.PutUint16(b[2:], uint16(ta.Port))
		copy(b[4:], ip4)
		return b
	}
	b := make([]byte, 24)
	b[0] = familyInet6
	binary.BigEndian.PutUint16(b[2:], uint16(ta.Port))
	copy(b[8:], ta.IP.To16())
	return b
}

// ParsePeerInfo decodes a blob produced by EncodePeerInfo.
func ParsePeerInfo(b []byte) (*net.TCPAddr, error) {
	if len(b) < 4 {
		return nil, errPeerInfo
	}
	port := int(binary.BigEndian.Uint16(b[2:]))
	switch b[0] {
	case familyInet:
		if len(b) < 8 {
			return nil, errPeerInfo
		}
		return &net.TCPAddr{IP: net.IPv4(b[4], b[5], b[6], b[7]), Port: port}, nil
	case familyInet6:
		if len(b) < 24 {
			return nil, errPeerInfo
		}
		ip := make(net.IP, net.IPv6len)
		copy(ip, b[8:24])
		return &net.TCPAddr{IP: ip, Port: port}, nil
	}
	return nil, errPeerInfo
}
