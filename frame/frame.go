// Copyright 2025 The go-zeromq Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package frame implements the message framing disciplines used on
// asyncnet connections.
//
// A discipline turns a byte stream into discrete messages. Twelve of them
// prefix every message with a 1, 2 or 4 byte length in either byte order,
// where the length either counts the header itself (WordLSB..ByteMSB) or
// only the payload (EWordLSB..EByteMSB). DwordMask carries an extra mask
// byte in the high bits of a 4 byte length, RawData delivers whatever bytes
// arrived, and LineSplit terminates messages with '\n'.
package frame

import (
	"errors"
	"fmt"
)

var (
	ErrBadHeader = errors.New("frame: invalid header discipline")
	ErrMalformed = errors.New("frame: declared length smaller than header")
	ErrOversize  = errors.New("frame: message exceeds maximum size")
	ErrTooLarge  = errors.New("frame: payload does not fit the length field")
	ErrDelimiter = errors.New("frame: payload contains line delimiter")
)

// Header identifies a framing discipline. The numeric values are part of
// the public contract and match the wire-compatible peers.
type Header int

const (
	WordLSB Header = iota
	WordMSB
	DwordLSB
	DwordMSB
	ByteLSB
	ByteMSB
	EWordLSB
	EWordMSB
	EDwordLSB
	EDwordMSB
	EByteLSB
	EByteMSB
	DwordMask
	RawData
	LineSplit
)

// DefaultMaxSize is the payload limit used when none is configured.
const DefaultMaxSize = 0x200000

var headerNames = [...]string{
	"WORDLSB", "WORDMSB", "DWORDLSB", "DWORDMSB", "BYTELSB", "BYTEMSB",
	"EWORDLSB", "EWORDMSB", "EDWORDLSB", "EDWORDMSB", "EBYTELSB", "EBYTEMSB",
	"DWORDMASK", "RAWDATA", "LINESPLIT",
}

// header length in bytes, indexed by Header
var headerLen = [...]int{2, 2, 4, 4, 1, 1, 2, 2, 4, 4, 1, 1, 4, 0, 0}

func (h Header) Valid() bool {
	return h >= WordLSB && h <= LineSplit
}

func (h Header) String() string {
	if !h.Valid() {
		return fmt.Sprintf("Header(%d)", int(h))
	}
	return headerNames[h]
}

// Len returns the size of the length prefix, 0 for RawData and LineSplit.
func (h Header) Len() int {
	if !h.Valid() {
		return 0
	}
	return headerLen[h]
}

// Exclusive reports whether the length field excludes the header itself.
func (h Header) Exclusive() bool {
	return h >= EWordLSB && h <= EByteMSB
}

func (h Header) bigEndian() bool {
	switch h {
	case WordMSB, DwordMSB, ByteMSB, EWordMSB, EDwordMSB, EByteMSB:
		return true
	}
	return false
}

// Message is one decoded frame. Mask is only meaningful for DwordMask.
type Message struct {
	Payload []byte
	Mask    byte
}
