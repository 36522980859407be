// Copyright 2025 The go-zeromq Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package notify

import (
	"encoding/binary"
	"errors"
)

// Every link message starts with a little-endian msgid and cmd.
const (
	msgLogin    uint16 = 0x6801
	msgLoginAck uint16 = 0x6802
	msgData     uint16 = 0x6803
	msgPing     uint16 = 0x6804
	msgPong     uint16 = 0x6805
	msgError    uint16 = 0x6806
)

const (
	headerSize = 4
	signSize   = 32
	// LOGIN header, self sid, remote sid, timestamp, signature
	loginSize = headerSize + 4 + 4 + 8 + signSize
	// the signature covers everything before it
	loginSigned = loginSize - signSize
)

// login results carried in the cmd field of LOGINACK
const (
	loginOK = iota
	loginBadSign
	loginExpired
	loginBadSID
	loginNotIncoming
	loginState
)

// reasons carried in the cmd field of ERROR
const (
	errNotLoggedIn = 1
	errBadMessage  = 2
)

var errShortMessage = errors.New("notify: short message")

type login struct {
	self   uint32
	remote uint32
	ts     int64
	sign   [signSize]byte
}

func appendHeader(dst []byte, msgid, cmd uint16) []byte {
	dst = binary.LittleEndian.AppendUint16(dst, msgid)
	return binary.LittleEndian.AppendUint16(dst, cmd)
}

func parseHeader(b []byte) (msgid, cmd uint16, body []byte, err error) {
	if len(b) < headerSize {
		return 0, 0, nil, errShortMessage
	}
	return binary.LittleEndian.Uint16(b), binary.LittleEndian.Uint16(b[2:]), b[headerSize:], nil
}

func encodeLogin(l login, s *signer) []byte {
	b := make([]byte, 0, loginSize)
	b = appendHeader(b, msgLogin, 0)
	b = binary.LittleEndian.AppendUint32(b, l.self)
	b = binary.LittleEndian.AppendUint32(b, l.remote)
	b = binary.LittleEndian.AppendUint64(b, uint64(l.ts))
	sig := s.sign(b)
	return append(b, sig[:]...)
}

// decodeLogin parses a full LOGIN message including its header.
func decodeLogin(b []byte) (login, error) {
	if len(b) < loginSize {
		return login{}, errShortMessage
	}
	var l login
	l.self = binary.LittleEndian.Uint32(b[4:])
	l.remote = binary.LittleEndian.Uint32(b[8:])
	l.ts = int64(binary.LittleEndian.Uint64(b[12:]))
	copy(l.sign[:], b[loginSigned:loginSize])
	return l, nil
}

func encodeData(cmd uint16, data []byte) []byte {
	b := make([]byte, 0, headerSize+len(data))
	b = appendHeader(b, msgData, cmd)
	return append(b, data...)
}

func encodePing(msgid uint16, stamp uint32) []byte {
	b := appendHeader(make([]byte, 0, headerSize+4), msgid, 0)
	return binary.LittleEndian.AppendUint32(b, stamp)
}
