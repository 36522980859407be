// Copyright 2025 The go-zeromq Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package asyncnet

import (
	"bytes"
	"context"
	"crypto/cipher"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/destiny/asyncnet/frame"
)

type connState int

const (
	stateConnecting connState = iota
	stateEstablished
	stateClosed
)

type deferredOpt struct {
	opt   SockOption
	value int
}

// conn is the per-handle state. Fields are owned by the core and only
// touched with the core lock held, except nc, ln, gate, flush and done which
// are set before the I/O goroutines start and never change afterwards.
type conn struct {
	hid    HID
	seq    uint64
	mode   Mode
	tag    int64
	state  connState
	header frame.Header

	nc net.Conn
	ln net.Listener

	split    *frame.Splitter
	maxSize  int
	limited  int
	progress bool
	disabled bool

	sendq    net.Buffers
	pending  int
	inflight int
	writing  bool

	enc cipher.Stream
	dec cipher.Stream

	deferred []deferredOpt
	created  time.Time
	active   time.Time
	local    net.Addr
	remote   net.Addr

	gate   *gate
	flush  chan net.Buffers
	done   chan struct{}
	cancel context.CancelFunc
}

func newConn(mode Mode, header frame.Header, limited, maxSize int) (*conn, error) {
	codec, err := frame.New(header, maxSize)
	if err != nil {
		return nil, err
	}
	now := time.Now()
	return &conn{
		mode:    mode,
		header:  header,
		split:   frame.NewSplitter(codec),
		maxSize: maxSize,
		limited: limited,
		created: now,
		active:  now,
		gate:    newGate(),
		flush:   make(chan net.Buffers, 1),
		done:    make(chan struct{}),
	}, nil
}

func (c *conn) remain() int { return c.pending + c.inflight }

// enqueue frames payload and appends it to the send queue.
func (c *conn) enqueue(payload []byte, mask byte) (int, error) {
	b, err := c.split.Codec().Encode(nil, payload, mask)
	if err != nil {
		return 0, err
	}
	if c.enc != nil {
		c.enc.XORKeyStream(b, b)
	}
	c.sendq = append(c.sendq, b)
	c.pending += len(b)
	return len(b), nil
}

// takeBatch hands the queued buffers to the writer if it is idle.
func (c *conn) takeBatch() bool {
	if c.writing || len(c.sendq) == 0 || c.state != stateEstablished {
		return false
	}
	b := c.sendq
	c.sendq = nil
	c.inflight += c.pending
	c.pending = 0
	c.writing = true
	c.flush <- b
	return true
}

func (c *conn) setMaxSize(n int) error {
	codec, err := frame.New(c.header, n)
	if err != nil {
		return err
	}
	c.maxSize = n
	c.split.SetCodec(codec)
	return nil
}

// teardown releases the socket. Pending output gets linger to drain.
func (c *conn) teardown(linger time.Duration) {
	c.state = stateClosed
	if c.cancel != nil {
		c.cancel()
	}
	c.gate.close()
	if c.ln != nil {
		c.ln.Close()
	}
	if c.nc != nil {
		if len(c.sendq) > 0 {
			select {
			case c.flush <- c.sendq:
			default:
			}
			c.sendq = nil
		}
		c.nc.SetWriteDeadline(time.Now().Add(linger))
	}
	close(c.done)
}

func (c *conn) applyOption(opt SockOption, value int) error {
	if c.ln != nil {
		tl, ok := c.ln.(*net.TCPListener)
		if !ok || (opt != OptReuseAddr && opt != OptReusePort) {
			return fmt.Errorf("%w: %v on listener", ErrBadMode, opt)
		}
		rc, err := tl.SyscallConn()
		if err != nil {
			return err
		}
		return setSockoptInt(rc, opt, value)
	}

	tc, ok := c.nc.(*net.TCPConn)
	if !ok {
		return fmt.Errorf("%w: %v needs a TCP socket", ErrBadMode, opt)
	}
	switch opt {
	case OptNoDelay:
		return tc.SetNoDelay(value != 0)
	case OptKeepAlive:
		if err := tc.SetKeepAlive(value != 0); err != nil {
			return err
		}
		if value > 1 {
			return tc.SetKeepAlivePeriod(time.Duration(value) * time.Second)
		}
		return nil
	case OptSysSndBuf:
		return tc.SetWriteBuffer(value)
	case OptSysRcvBuf:
		return tc.SetReadBuffer(value)
	case OptReuseAddr, OptReusePort:
		rc, err := tc.SyscallConn()
		if err != nil {
			return err
		}
		return setSockoptInt(rc, opt, value)
	}
	return ErrBadOption
}

// gate pauses a reader goroutine while its handle is disabled.
type gate struct {
	mu     sync.Mutex
	cond   *sync.Cond
	paused bool
	closed bool
}

func newGate() *gate {
	g := &gate{}
	g.cond = sync.NewCond(&g.mu)
	return g
}

func (g *gate) set(paused bool) {
	g.mu.Lock()
	g.paused = paused
	g.mu.Unlock()
	g.cond.Broadcast()
}

func (g *gate) close() {
	g.mu.Lock()
	g.closed = true
	g.mu.Unlock()
	g.cond.Broadcast()
}

// wait blocks while paused. It reports false once the gate is closed.
func (g *gate) wait() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	for g.paused && !g.closed {
		g.cond.Wait()
	}
	return !g.closed
}

type ioKind int

const (
	ioAccept ioKind = iota
	ioDial
	ioRead
	ioWrite
)

// ioEvent is what I/O goroutines report to the poll loop.
type ioEvent struct {
	kind ioKind
	hid  HID
	nc   net.Conn
	data []byte
	n    int64
	err  error
}

// ioLoop carries what the I/O goroutines need to report back to whoever
// polls inbox, a Core or a Sock.
type ioLoop struct {
	ctx      context.Context
	inbox    chan ioEvent
	dialer   *net.Dialer
	readSize int
}

func (l *ioLoop) deliver(done <-chan struct{}, ev ioEvent) bool {
	select {
	case l.inbox <- ev:
		return true
	case <-done:
		return false
	case <-l.ctx.Done():
		return false
	}
}

func (l *ioLoop) readLoop(c *conn) error {
	buf := make([]byte, l.readSize)
	for {
		if !c.gate.wait() {
			return nil
		}
		n, err := c.nc.Read(buf)
		if n > 0 {
			ev := ioEvent{kind: ioRead, hid: c.hid, data: bytes.Clone(buf[:n])}
			if !l.deliver(c.done, ev) {
				return nil
			}
		}
		if err != nil {
			l.deliver(c.done, ioEvent{kind: ioRead, hid: c.hid, err: err})
			return nil
		}
	}
}

func (l *ioLoop) writeLoop(c *conn) error {
	defer c.nc.Close()
	for {
		select {
		case bufs := <-c.flush:
			n, err := bufs.WriteTo(c.nc)
			if !l.deliver(c.done, ioEvent{kind: ioWrite, hid: c.hid, n: n, err: err}) {
				drainFinal(c)
				return nil
			}
		case <-c.done:
			drainFinal(c)
			return nil
		case <-l.ctx.Done():
			return nil
		}
	}
}

// drainFinal writes whatever was queued when the handle was closed. The
// write deadline set by teardown bounds it.
func drainFinal(c *conn) {
	select {
	case bufs := <-c.flush:
		bufs.WriteTo(c.nc)
	default:
	}
}

func (l *ioLoop) dialLoop(ctx context.Context, c *conn, addr string) error {
	nc, err := l.dialer.DialContext(ctx, "tcp", addr)
	if !l.deliver(c.done, ioEvent{kind: ioDial, hid: c.hid, nc: nc, err: err}) && nc != nil {
		nc.Close()
	}
	return nil
}

func (co *Core) acceptLoop(c *conn) error {
	var delay time.Duration
	for {
		nc, err := c.ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			// transient failure such as descriptor exhaustion
			if delay == 0 {
				delay = 5 * time.Millisecond
			} else {
				delay = min(2*delay, time.Second)
			}
			co.log.Warn("accept on %v: %v; retrying in %v", c.hid, err, delay)
			select {
			case <-time.After(delay):
				continue
			case <-c.done:
				return nil
			}
		}
		delay = 0
		if !co.io.deliver(c.done, ioEvent{kind: ioAccept, hid: c.hid, nc: nc}) {
			nc.Close()
			return nil
		}
	}
}
