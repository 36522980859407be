// Copyright 2025 The go-zeromq Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package frame

import "bytes"

// Splitter accumulates stream bytes and cuts them into messages.
// It is not safe for concurrent use.
type Splitter struct {
	codec Codec
	buf   []byte
	off   int
	err   error
}

// NewSplitter returns a Splitter decoding with c.
func NewSplitter(c Codec) *Splitter {
	return &Splitter{codec: c}
}

func (s *Splitter) Codec() Codec { return s.codec }

// SetCodec switches to c, keeping residual bytes.
func (s *Splitter) SetCodec(c Codec) { s.codec = c }

// Write appends p to the residual buffer. It never fails.
func (s *Splitter) Write(p []byte) (int, error) {
	if s.off > 0 && s.off >= len(s.buf)/2 {
		n := copy(s.buf, s.buf[s.off:])
		s.buf = s.buf[:n]
		s.off = 0
	}
	s.buf = append(s.buf, p...)
	return len(p), nil
}

// Next returns the next complete message. ok is false when more bytes are
// needed. Once a decode error is returned, every later call returns it too.
func (s *Splitter) Next() (msg Message, ok bool, err error) {
	if s.err != nil {
		return Message{}, false, s.err
	}
	m, n, err := s.codec.Decode(s.buf[s.off:])
	if err != nil {
		s.err = err
		return Message{}, false, err
	}
	if n == 0 {
		return Message{}, false, nil
	}
	s.off += n
	m.Payload = bytes.Clone(m.Payload)
	if m.Payload == nil {
		m.Payload = []byte{}
	}
	if s.off == len(s.buf) {
		s.buf = s.buf[:0]
		s.off = 0
	}
	return m, true, nil
}

// Buffered returns the number of residual bytes.
func (s *Splitter) Buffered() int {
	return len(s.buf) - s.off
}
