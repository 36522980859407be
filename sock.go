// Copyright 2025 The go-zeromq Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package asyncnet

import (
	"context"
	"crypto/cipher"
	"fmt"
	"net"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/destiny/asyncnet/frame"
)

// SockState is the state of a Sock.
type SockState int

const (
	SockClosed SockState = iota
	SockConnecting
	SockEstablished
)

func (s SockState) String() string {
	switch s {
	case SockClosed:
		return "closed"
	case SockConnecting:
		return "connecting"
	case SockEstablished:
		return "established"
	}
	return fmt.Sprintf("SockState(%d)", int(s))
}

// Sock is a single framed connection driven by its owner rather than by a
// Core. Process applies completed I/O and Recv pops decoded messages.
//
// A Sock is not safe for concurrent use.
type Sock struct {
	log    *Logger
	group  errgroup.Group
	io     ioLoop
	dialer net.Dialer

	limited int
	maxSize int
	linger  time.Duration

	serial HID
	c      *conn
	err    error
}

// NewSock returns an unconnected Sock. Of the Core options, WithLogger,
// WithLimit, WithDialTimeout, WithLinger and WithReadBufferSize apply.
func NewSock(ctx context.Context, opts ...Option) *Sock {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg := Core{
		log:      DefaultLogger,
		readSize: defaultReadSize,
		maxSize:  frame.DefaultMaxSize,
		linger:   defaultLinger,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	s := &Sock{
		log:     cfg.log,
		dialer:  cfg.dialer,
		limited: cfg.limited,
		maxSize: cfg.maxSize,
		linger:  cfg.linger,
	}
	s.io = ioLoop{ctx: ctx, inbox: make(chan ioEvent, 64), dialer: &s.dialer, readSize: cfg.readSize}
	return s
}

// Connect closes the current connection, if any, and starts dialing addr.
// Data sent while connecting is queued.
func (s *Sock) Connect(addr string, header frame.Header) error {
	if !header.Valid() {
		return frame.ErrBadHeader
	}
	if err := s.io.ctx.Err(); err != nil {
		return err
	}
	raddr, err := net.ResolveTCPAddr("tcp", addr)
	if err != nil {
		return fmt.Errorf("asyncnet: resolve %s: %w", addr, err)
	}
	c, err := s.reset(ModeOutbound, header)
	if err != nil {
		return err
	}
	c.remote = raddr
	ctx, cancel := context.WithCancel(s.io.ctx)
	c.cancel = cancel
	s.group.Go(func() error { return s.io.dialLoop(ctx, c, raddr.String()) })
	return nil
}

// Assign closes the current connection, if any, and adopts nc.
func (s *Sock) Assign(nc net.Conn, header frame.Header) error {
	if !header.Valid() {
		return frame.ErrBadHeader
	}
	c, err := s.reset(ModeAssign, header)
	if err != nil {
		return err
	}
	s.establish(c, nc)
	return nil
}

func (s *Sock) reset(mode Mode, header frame.Header) (*conn, error) {
	if s.c != nil && s.c.state != stateClosed {
		s.c.teardown(s.linger)
	}
	c, err := newConn(mode, header, s.limited, s.maxSize)
	if err != nil {
		return nil, err
	}
	s.serial++
	c.hid = s.serial
	s.c = c
	s.err = nil
	return c, nil
}

func (s *Sock) establish(c *conn, nc net.Conn) {
	c.nc = nc
	c.state = stateEstablished
	c.local = nc.LocalAddr()
	c.remote = nc.RemoteAddr()
	c.active = time.Now()
	for _, d := range c.deferred {
		if err := c.applyOption(d.opt, d.value); err != nil {
			s.log.Warn("sock: option %v: %v", d.opt, err)
		}
	}
	c.deferred = nil
	s.group.Go(func() error { return s.io.readLoop(c) })
	s.group.Go(func() error { return s.io.writeLoop(c) })
	c.takeBatch()
}

// Close closes the connection, flushing queued output for up to the linger
// duration, and waits for its goroutines. Messages already received stay
// available to Recv. The Sock may be connected again.
func (s *Sock) Close() error {
	if s.c != nil && s.c.state != stateClosed {
		s.c.teardown(s.linger)
	}
	s.group.Wait()
	for {
		select {
		case ev := <-s.io.inbox:
			if ev.nc != nil {
				ev.nc.Close()
			}
		default:
			return nil
		}
	}
}

func (s *Sock) shut(err error) {
	s.c.teardown(s.linger)
	if s.err == nil {
		s.err = err
	}
}

// State reports the connection state.
func (s *Sock) State() SockState {
	if s.c == nil {
		return SockClosed
	}
	switch s.c.state {
	case stateConnecting:
		return SockConnecting
	case stateEstablished:
		return SockEstablished
	}
	return SockClosed
}

// Err returns the error that closed the connection: io.EOF after an orderly
// remote close, nil after Close.
func (s *Sock) Err() error { return s.err }

// Remain returns the number of bytes queued or in flight.
func (s *Sock) Remain() int {
	if s.c == nil {
		return 0
	}
	return s.c.remain()
}

// LocalAddr returns the local address once established.
func (s *Sock) LocalAddr() net.Addr {
	if s.c == nil {
		return nil
	}
	return s.c.local
}

// RemoteAddr returns the peer address.
func (s *Sock) RemoteAddr() net.Addr {
	if s.c == nil {
		return nil
	}
	return s.c.remote
}

// SyscallConn exposes the socket descriptor of an established connection.
func (s *Sock) SyscallConn() (syscall.RawConn, error) {
	if s.c == nil || s.c.nc == nil || s.c.state == stateClosed {
		return nil, ErrNotConnected
	}
	sc, ok := s.c.nc.(syscall.Conn)
	if !ok {
		return nil, fmt.Errorf("%w: no socket descriptor", ErrBadMode)
	}
	return sc.SyscallConn()
}

// Send frames data and queues it. It returns the number of bytes still
// waiting to be written. Exceeding the backlog limit closes the connection.
func (s *Sock) Send(data []byte) (int, error) {
	return s.SendMask(data, 0)
}

// SendMask is Send with the mask byte of the DwordMask discipline.
func (s *Sock) SendMask(data []byte, mask byte) (int, error) {
	c := s.c
	if c == nil || c.state == stateClosed {
		return 0, ErrNotConnected
	}
	if _, err := c.enqueue(data, mask); err != nil {
		return 0, fmt.Errorf("asyncnet: sock send: %w", err)
	}
	if c.limited > 0 && c.remain() > c.limited {
		s.shut(ErrLimited)
		return 0, ErrLimited
	}
	c.takeBatch()
	return c.remain(), nil
}

// Recv pops the next complete message. A framing error closes the
// connection and is reported by Err.
func (s *Sock) Recv() ([]byte, bool) {
	if s.c == nil {
		return nil, false
	}
	m, ok, err := s.c.split.Next()
	if err != nil {
		if s.c.state != stateClosed {
			s.shut(err)
		}
		return nil, false
	}
	if !ok {
		return nil, false
	}
	return m.Payload, true
}

// Process applies completed I/O to the connection. It waits up to timeout
// for the first result; zero polls and a negative timeout waits until
// something happens.
func (s *Sock) Process(timeout time.Duration) error {
	if s.c == nil || s.c.state == stateClosed {
		return ErrNotConnected
	}
	var first ioEvent
	switch {
	case timeout == 0:
		select {
		case first = <-s.io.inbox:
		default:
			return nil
		}
	case timeout < 0:
		select {
		case first = <-s.io.inbox:
		case <-s.io.ctx.Done():
			return s.io.ctx.Err()
		}
	default:
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		select {
		case first = <-s.io.inbox:
		case <-timer.C:
			return nil
		case <-s.io.ctx.Done():
			return s.io.ctx.Err()
		}
	}
	s.handle(first)
	for {
		select {
		case ev := <-s.io.inbox:
			s.handle(ev)
		default:
			return nil
		}
	}
}

func (s *Sock) handle(ev ioEvent) {
	c := s.c
	if c == nil || ev.hid != c.hid || c.state == stateClosed {
		// left over from an earlier connection
		if ev.nc != nil {
			ev.nc.Close()
		}
		return
	}
	switch ev.kind {
	case ioDial:
		if ev.err != nil {
			s.shut(ev.err)
			return
		}
		s.establish(c, ev.nc)
	case ioRead:
		if ev.err != nil {
			s.shut(ev.err)
			return
		}
		c.active = time.Now()
		if c.dec != nil {
			c.dec.XORKeyStream(ev.data, ev.data)
		}
		c.split.Write(ev.data)
	case ioWrite:
		c.writing = false
		c.inflight = 0
		if ev.err != nil {
			s.shut(ev.err)
			return
		}
		c.takeBatch()
	}
}

// SetSendKey enables RC4 on outgoing bytes of the current connection. An
// empty key turns it off.
func (s *Sock) SetSendKey(key []byte) error {
	st, err := rc4Stream(key)
	if err != nil {
		return err
	}
	return s.SetSendCipher(st)
}

// SetRecvKey enables RC4 on incoming bytes of the current connection.
func (s *Sock) SetRecvKey(key []byte) error {
	st, err := rc4Stream(key)
	if err != nil {
		return err
	}
	return s.SetRecvCipher(st)
}

// SetSendCipher installs st on the outgoing stream; nil removes it.
func (s *Sock) SetSendCipher(st cipher.Stream) error {
	if s.c == nil || s.c.state == stateClosed {
		return ErrNotConnected
	}
	s.c.enc = st
	return nil
}

// SetRecvCipher installs st on the incoming stream; nil removes it.
func (s *Sock) SetRecvCipher(st cipher.Stream) error {
	if s.c == nil || s.c.state == stateClosed {
		return ErrNotConnected
	}
	s.c.dec = st
	return nil
}

// SetNoDelay toggles Nagle's algorithm.
func (s *Sock) SetNoDelay(on bool) error {
	v := 0
	if on {
		v = 1
	}
	return s.setOption(OptNoDelay, v)
}

// SetSysBuffer sets the kernel receive and send buffer sizes. Non-positive
// sizes are left alone.
func (s *Sock) SetSysBuffer(rcv, snd int) error {
	if rcv > 0 {
		if err := s.setOption(OptSysRcvBuf, rcv); err != nil {
			return err
		}
	}
	if snd > 0 {
		return s.setOption(OptSysSndBuf, snd)
	}
	return nil
}

// SetKeepAlive enables TCP keepalive with the given period. A zero period
// turns it off.
func (s *Sock) SetKeepAlive(period time.Duration) error {
	v := int(period / time.Second)
	if period > 0 && v < 1 {
		v = 1
	}
	return s.setOption(OptKeepAlive, v)
}

// setOption applies opt now, or once the connection is established.
func (s *Sock) setOption(opt SockOption, value int) error {
	c := s.c
	switch {
	case c == nil || c.state == stateClosed:
		return ErrNotConnected
	case c.state == stateConnecting:
		c.deferred = append(c.deferred, deferredOpt{opt, value})
		return nil
	}
	return c.applyOption(opt, value)
}
