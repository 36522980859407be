// Copyright 2025 The go-zeromq Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package frame

import (
	"bytes"
	"encoding/binary"
)

// Codec encodes and decodes messages for a single discipline.
// Implementations are stateless; residual bytes live in a Splitter.
type Codec interface {
	Header() Header

	// MaxSize is the largest payload the codec accepts in either direction.
	MaxSize() int

	// Encode appends the framed payload to dst. A payload over MaxSize
	// yields ErrOversize, one the length field cannot express ErrTooLarge.
	Encode(dst, payload []byte, mask byte) ([]byte, error)

	// Decode extracts the first complete message of buf. It returns n == 0
	// and a nil error when buf does not hold a complete message yet.
	// The returned payload aliases buf.
	Decode(buf []byte) (msg Message, n int, err error)
}

// New returns the codec for h. A non-positive maxSize selects DefaultMaxSize.
func New(h Header, maxSize int) (Codec, error) {
	if !h.Valid() {
		return nil, ErrBadHeader
	}
	if maxSize <= 0 {
		maxSize = DefaultMaxSize
	}
	switch h {
	case RawData:
		return &rawCodec{max: maxSize}, nil
	case LineSplit:
		return &lineCodec{max: maxSize}, nil
	}

	c := &lengthCodec{
		h:    h,
		size: h.Len(),
		big:  h.bigEndian(),
		mask: h == DwordMask,
	}
	if !h.Exclusive() {
		c.incl = c.size
	}
	field := int64(1)<<(8*uint(c.size)) - 1
	if c.mask {
		field = 0xffffff
	}
	c.capacity = field - int64(c.incl)
	c.max = int64(maxSize)
	if c.max > c.capacity {
		c.max = c.capacity
	}
	return c, nil
}

type lengthCodec struct {
	h        Header
	size     int
	incl     int
	big      bool
	mask     bool
	capacity int64
	max      int64
}

func (c *lengthCodec) Header() Header { return c.h }
func (c *lengthCodec) MaxSize() int   { return int(c.max) }

func (c *lengthCodec) Encode(dst, payload []byte, mask byte) ([]byte, error) {
	n := int64(len(payload))
	switch {
	case n > c.capacity:
		return dst, ErrTooLarge
	case n > c.max:
		return dst, ErrOversize
	}
	v := uint32(n + int64(c.incl))
	if c.mask {
		v = v&0xffffff | uint32(mask)<<24
	}
	switch c.size {
	case 1:
		dst = append(dst, byte(v))
	case 2:
		if c.big {
			dst = binary.BigEndian.AppendUint16(dst, uint16(v))
		} else {
			dst = binary.LittleEndian.AppendUint16(dst, uint16(v))
		}
	case 4:
		if c.big {
			dst = binary.BigEndian.AppendUint32(dst, v)
		} else {
			dst = binary.LittleEndian.AppendUint32(dst, v)
		}
	}
	return append(dst, payload...), nil
}

func (c *lengthCodec) Decode(buf []byte) (Message, int, error) {
	if len(buf) < c.size {
		return Message{}, 0, nil
	}
	var v uint32
	switch c.size {
	case 1:
		v = uint32(buf[0])
	case 2:
		if c.big {
			v = uint32(binary.BigEndian.Uint16(buf))
		} else {
			v = uint32(binary.LittleEndian.Uint16(buf))
		}
	case 4:
		if c.big {
			v = binary.BigEndian.Uint32(buf)
		} else {
			v = binary.LittleEndian.Uint32(buf)
		}
	}
	var mask byte
	if c.mask {
		mask = byte(v >> 24)
		v &= 0xffffff
	}
	n := int64(v) - int64(c.incl)
	switch {
	case n < 0:
		return Message{}, 0, ErrMalformed
	case n > c.max:
		return Message{}, 0, ErrOversize
	}
	end := c.size + int(n)
	if len(buf) < end {
		return Message{}, 0, nil
	}
	return Message{Payload: buf[c.size:end], Mask: mask}, end, nil
}

type rawCodec struct {
	max int
}

func (c *rawCodec) Header() Header { return RawData }
func (c *rawCodec) MaxSize() int   { return c.max }

func (c *rawCodec) Encode(dst, payload []byte, _ byte) ([]byte, error) {
	if len(payload) > c.max {
		return dst, ErrOversize
	}
	return append(dst, payload...), nil
}

// Decode hands out everything buffered, at most MaxSize bytes at a time.
// An empty buffer never yields a message.
func (c *rawCodec) Decode(buf []byte) (Message, int, error) {
	n := min(len(buf), c.max)
	if n == 0 {
		return Message{}, 0, nil
	}
	return Message{Payload: buf[:n]}, n, nil
}

type lineCodec struct {
	max int
}

func (c *lineCodec) Header() Header { return LineSplit }
func (c *lineCodec) MaxSize() int   { return c.max }

func (c *lineCodec) Encode(dst, payload []byte, _ byte) ([]byte, error) {
	if bytes.IndexByte(payload, '\n') >= 0 {
		return dst, ErrDelimiter
	}
	if len(payload) > c.max {
		return dst, ErrOversize
	}
	dst = append(dst, payload...)
	return append(dst, '\n'), nil
}

func (c *lineCodec) Decode(buf []byte) (Message, int, error) {
	i := bytes.IndexByte(buf, '\n')
	if i < 0 {
		if len(buf) > c.max {
			return Message{}, 0, ErrOversize
		}
		return Message{}, 0, nil
	}
	if i > c.max {
		return Message{}, 0, ErrOversize
	}
	return Message{Payload: buf[:i]}, i + 1, nil
}
