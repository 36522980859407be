// Copyright 2025 The go-zeromq Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package asyncnet multiplexes many TCP connections behind a single event
// loop.
//
// A Core owns listeners, accepted, outbound and adopted connections, each
// addressed by a HID. Network activity is turned into Events (NEW, ESTAB,
// DATA, PROGRESS, LEAVE) that the owner drains with Read after Wait returns.
// Every connection frames its byte stream with one of the disciplines of
// package frame.
//
// Per-connection goroutines only move bytes. Framing, flow control, timeouts
// and event emission run on the goroutine calling Wait, so events for a
// handle are always observed in order: NEW first, LEAVE last and exactly
// once.
package asyncnet

import (
	"bytes"
	"context"
	"crypto/cipher"
	"crypto/rc4"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"sync"
	"time"

	"github.com/hashicorp/go-metrics"
	"golang.org/x/sync/errgroup"

	"github.com/destiny/asyncnet/frame"
	"github.com/destiny/asyncnet/internal/queue"
)

const (
	defaultQueueSize = 0x10000
	defaultReadSize  = 0x10000
	defaultLinger    = time.Second
	sweepInterval    = 100 * time.Millisecond
)

// Core is an event-driven connection multiplexer.
type Core struct {
	mu     sync.Mutex
	ctx    context.Context
	cancel context.CancelFunc
	group  errgroup.Group

	log   *Logger
	msink metrics.MetricSink

	table  *handleTable
	events *queue.Queue[Event]
	inbox  chan ioEvent
	io     ioLoop
	wake   chan struct{}

	dialer    net.Dialer
	queueSize int
	readSize  int
	limited   int
	maxSize   int
	timeout   time.Duration
	linger    time.Duration
	firewall  Firewall
	lastSweep time.Time
	closed    bool
}

// NewCore returns a Core whose goroutines live until Shutdown or until ctx
// is done.
func NewCore(ctx context.Context, opts ...Option) *Core {
	if ctx == nil {
		ctx = context.Background()
	}
	co := &Core{
		log:       DefaultLogger,
		table:     newHandleTable(),
		wake:      make(chan struct{}, 1),
		queueSize: defaultQueueSize,
		readSize:  defaultReadSize,
		maxSize:   frame.DefaultMaxSize,
		linger:    defaultLinger,
	}
	for _, opt := range opts {
		opt(co)
	}
	if co.msink == nil {
		co.msink = metrics.Default()
	}
	co.ctx, co.cancel = context.WithCancel(ctx)
	co.events = queue.New[Event](co.queueSize)
	co.inbox = make(chan ioEvent, 1024)
	co.io = ioLoop{ctx: co.ctx, inbox: co.inbox, dialer: &co.dialer, readSize: co.readSize}
	return co
}

// NewListen binds addr and returns the listener handle. A NEW event with
// Aux -1 announces it.
func (co *Core) NewListen(addr string, header frame.Header, reuse bool) (HID, error) {
	if !header.Valid() {
		return 0, frame.ErrBadHeader
	}
	if co.ctx.Err() != nil {
		return 0, ErrClosed
	}
	var lc net.ListenConfig
	if reuse {
		lc.Control = reuseControl
	}
	ln, err := lc.Listen(co.ctx, "tcp", addr)
	if err != nil {
		return 0, fmt.Errorf("asyncnet: listen %s: %w", addr, err)
	}

	mode := ModeListen4
	if ta, ok := ln.Addr().(*net.TCPAddr); ok && ta.IP.To4() == nil {
		mode = ModeListen6
	}

	co.mu.Lock()
	defer co.mu.Unlock()
	if co.closed {
		ln.Close()
		return 0, ErrClosed
	}
	c, err := newConn(mode, header, co.limited, co.maxSize)
	if err != nil {
		ln.Close()
		return 0, err
	}
	c.ln = ln
	c.local = ln.Addr()
	c.state = stateEstablished
	hid, err := co.table.alloc(c)
	if err != nil {
		ln.Close()
		return 0, err
	}
	co.events.Force(Event{Kind: EventNew, HID: hid, Aux: -1, Data: EncodePeerInfo(c.local)})
	co.group.Go(func() error { return co.acceptLoop(c) })
	co.log.Debug("%v listening on %v", hid, c.local)
	co.Notify()
	return hid, nil
}

// NewConnect starts an outbound connection to addr. NEW is queued at once,
// followed by ESTAB on success or LEAVE on failure. Data sent before ESTAB
// is queued.
func (co *Core) NewConnect(addr string, header frame.Header) (HID, error) {
	if !header.Valid() {
		return 0, frame.ErrBadHeader
	}
	raddr, err := net.ResolveTCPAddr("tcp", addr)
	if err != nil {
		return 0, fmt.Errorf("asyncnet: resolve %s: %w", addr, err)
	}

	co.mu.Lock()
	defer co.mu.Unlock()
	if co.closed {
		return 0, ErrClosed
	}
	c, err := newConn(ModeOutbound, header, co.limited, co.maxSize)
	if err != nil {
		return 0, err
	}
	c.remote = raddr
	hid, err := co.table.alloc(c)
	if err != nil {
		return 0, err
	}
	ctx, cancel := context.WithCancel(co.ctx)
	c.cancel = cancel
	co.events.Force(Event{Kind: EventNew, HID: hid, Data: EncodePeerInfo(raddr)})
	co.msink.IncrCounter(MetricCoreConnectCount, 1)
	co.group.Go(func() error { return co.io.dialLoop(ctx, c, raddr.String()) })
	co.Notify()
	return hid, nil
}

// NewAssign adopts an established connection. Only NEW is queued, with
// Aux 0.
func (co *Core) NewAssign(nc net.Conn, header frame.Header) (HID, error) {
	if !header.Valid() {
		return 0, frame.ErrBadHeader
	}
	co.mu.Lock()
	defer co.mu.Unlock()
	if co.closed {
		return 0, ErrClosed
	}
	c, err := newConn(ModeAssign, header, co.limited, co.maxSize)
	if err != nil {
		return 0, err
	}
	hid, err := co.table.alloc(c)
	if err != nil {
		return 0, err
	}
	co.events.Force(Event{Kind: EventNew, HID: hid, Data: EncodePeerInfo(nc.RemoteAddr())})
	co.establish(c, nc)
	co.Notify()
	return hid, nil
}

// establish attaches nc to c and starts its I/O goroutines.
func (co *Core) establish(c *conn, nc net.Conn) {
	c.nc = nc
	c.state = stateEstablished
	c.local = nc.LocalAddr()
	c.remote = nc.RemoteAddr()
	c.active = time.Now()
	for _, d := range c.deferred {
		if err := c.applyOption(d.opt, d.value); err != nil {
			co.log.Warn("%v: option %v: %v", c.hid, d.opt, err)
		}
	}
	c.deferred = nil
	co.group.Go(func() error { return co.io.readLoop(c) })
	co.group.Go(func() error { return co.io.writeLoop(c) })
	c.takeBatch()
}

// Send frames data and queues it on hid. It returns the number of bytes
// still waiting to be written. A connection whose backlog exceeds its limit
// is closed with CodeLimited and ErrLimited is returned.
func (co *Core) Send(hid HID, data []byte) (int, error) {
	return co.SendMask(hid, data, 0)
}

// SendMask is Send with the mask byte of the DwordMask discipline.
func (co *Core) SendMask(hid HID, data []byte, mask byte) (int, error) {
	co.mu.Lock()
	defer co.mu.Unlock()
	c := co.table.get(hid)
	if c == nil {
		return 0, ErrNotFound
	}
	return co.send(c, data, mask)
}

// SendVector sends the concatenation of parts as one message.
func (co *Core) SendVector(hid HID, mask byte, parts ...[]byte) (int, error) {
	return co.SendMask(hid, bytes.Join(parts, nil), mask)
}

func (co *Core) send(c *conn, data []byte, mask byte) (int, error) {
	if c.mode.listener() {
		return 0, ErrBadMode
	}
	n, err := c.enqueue(data, mask)
	if err != nil {
		return 0, fmt.Errorf("asyncnet: send %v: %w", c.hid, err)
	}
	co.msink.IncrCounter(MetricCoreOutBytes, float32(n))
	if c.limited > 0 && c.remain() > c.limited {
		co.log.Warn("%v: backlog %d over limit %d", c.hid, c.remain(), c.limited)
		co.closeConn(c, CodeLimited, nil)
		co.Notify()
		return 0, ErrLimited
	}
	c.takeBatch()
	return c.remain(), nil
}

// Close closes hid with code. Queued output is flushed for up to the linger
// duration. Closing an unknown handle does nothing and reports ErrNotFound.
func (co *Core) Close(hid HID, code int) error {
	co.mu.Lock()
	defer co.mu.Unlock()
	c := co.table.get(hid)
	if c == nil {
		return ErrNotFound
	}
	co.closeConn(c, code, nil)
	co.Notify()
	return nil
}

func (co *Core) closeConn(c *conn, code int, err error) {
	if c.state == stateClosed {
		return
	}
	co.table.remove(c.hid)
	c.teardown(co.linger)
	co.events.Force(Event{Kind: EventLeave, HID: c.hid, Aux: c.tag, Code: code, Err: err})
	co.msink.IncrCounterWithLabels(MetricCoreLeaveCount, 1, []metrics.Label{codeLabel(code), modeLabel(c.mode)})
	if err != nil {
		co.log.Debug("%v closed with %d: %v", c.hid, code, err)
	} else {
		co.log.Debug("%v closed with %d", c.hid, code)
	}
}

// Post queues a PUSH event carrying wparam, lparam and a copy of data, then
// wakes Wait. It is safe to call from any goroutine and never touches
// connection state.
func (co *Core) Post(wparam, lparam int64, data []byte) error {
	ev := Event{Kind: EventPush, HID: HID(wparam), Aux: lparam, Data: bytes.Clone(data)}
	if err := co.events.Push(ev); err != nil {
		co.msink.IncrCounter(MetricCorePushDropCount, 1)
		return ErrQueueFull
	}
	co.Notify()
	return nil
}

// Notify wakes a blocked Wait. Redundant calls coalesce.
func (co *Core) Notify() {
	select {
	case co.wake <- struct{}{}:
	default:
	}
}

// Read pops the next event.
func (co *Core) Read() (Event, bool) {
	return co.events.Pop()
}

// Wait blocks until network activity, a Notify or the timeout, then turns
// pending activity into events. A zero timeout polls and a negative one
// waits without limit. Wait does not block while events are queued.
func (co *Core) Wait(timeout time.Duration) error {
	var deadline time.Time
	if timeout > 0 {
		deadline = time.Now().Add(timeout)
	}
	for {
		if co.ctx.Err() != nil {
			return ErrClosed
		}
		block := timeout != 0 && co.events.Len() == 0
		step := time.Duration(-1)
		if timeout > 0 {
			step = time.Until(deadline)
		}
		if co.sweeping() && (step < 0 || step > sweepInterval) {
			step = sweepInterval
		}

		var (
			first ioEvent
			got   bool
			woken bool
		)
		if !block {
			select {
			case first = <-co.inbox:
				got = true
			default:
			}
		} else {
			var (
				t  *time.Timer
				tc <-chan time.Time
			)
			if step >= 0 {
				t = time.NewTimer(step)
				tc = t.C
			}
			select {
			case first = <-co.inbox:
				got = true
			case <-co.wake:
				woken = true
			case <-tc:
			case <-co.ctx.Done():
			}
			if t != nil {
				t.Stop()
			}
		}

		if err := co.process(first, got); err != nil {
			return err
		}
		if !block || got || woken || co.events.Len() > 0 {
			return nil
		}
		if timeout > 0 && !time.Now().Before(deadline) {
			return nil
		}
	}
}

func (co *Core) sweeping() bool {
	co.mu.Lock()
	defer co.mu.Unlock()
	return co.timeout > 0
}

// process handles first, drains the inbox while the event queue has room,
// and enforces timeouts.
func (co *Core) process(first ioEvent, got bool) error {
	co.mu.Lock()
	defer co.mu.Unlock()
	if co.closed {
		return ErrClosed
	}
	if got {
		co.handle(first)
	}
	for n := cap(co.inbox); n > 0 && !co.events.Full(); n-- {
		select {
		case ev := <-co.inbox:
			co.handle(ev)
			continue
		default:
		}
		break
	}
	co.sweep(time.Now())
	co.msink.SetGauge(MetricCoreEventQueueSize, float32(co.events.Len()))
	return nil
}

func (co *Core) handle(ev ioEvent) {
	switch ev.kind {
	case ioAccept:
		co.handleAccept(ev)
	case ioDial:
		co.handleDial(ev)
	case ioRead:
		co.handleRead(ev)
	case ioWrite:
		co.handleWrite(ev)
	}
}

func (co *Core) handleAccept(ev ioEvent) {
	lc := co.table.get(ev.hid)
	if lc == nil {
		ev.nc.Close()
		return
	}
	remote := ev.nc.RemoteAddr()
	if co.firewall != nil && !co.firewall(remote, lc.hid) {
		co.log.Info("%v: rejected %v", lc.hid, remote)
		co.msink.IncrCounter(MetricCoreRejectCount, 1)
		ev.nc.Close()
		return
	}
	// accepted connections inherit the listener's limits
	c, err := newConn(ModeInbound, lc.header, lc.limited, lc.maxSize)
	if err == nil {
		c.progress = lc.progress
		_, err = co.table.alloc(c)
	}
	if err != nil {
		co.log.Error("%v: cannot accept %v: %v", lc.hid, remote, err)
		ev.nc.Close()
		return
	}
	c.deferred = append(c.deferred, lc.deferred...)
	co.events.Force(Event{Kind: EventNew, HID: c.hid, Aux: int64(lc.hid), Data: EncodePeerInfo(remote)})
	co.msink.IncrCounter(MetricCoreAcceptCount, 1)
	co.establish(c, ev.nc)
}

func (co *Core) handleDial(ev ioEvent) {
	c := co.table.get(ev.hid)
	if c == nil {
		if ev.nc != nil {
			ev.nc.Close()
		}
		return
	}
	if ev.err != nil {
		code := CodeConnectFailed
		var ne net.Error
		if errors.As(ev.err, &ne) && ne.Timeout() {
			code = CodeTimeout
		}
		co.closeConn(c, code, ev.err)
		return
	}
	co.establish(c, ev.nc)
	co.events.Force(Event{Kind: EventEstablished, HID: c.hid, Aux: c.tag})
}

func (co *Core) handleRead(ev ioEvent) {
	c := co.table.get(ev.hid)
	if c == nil {
		return
	}
	if ev.err != nil {
		var err error
		if !errors.Is(ev.err, io.EOF) {
			err = ev.err
		}
		co.closeConn(c, CodeRemote, err)
		return
	}
	c.active = time.Now()
	if c.dec != nil {
		c.dec.XORKeyStream(ev.data, ev.data)
	}
	c.split.Write(ev.data)
	co.msink.IncrCounter(MetricCoreInBytes, float32(len(ev.data)))
	co.dispatch(c)
}

// dispatch turns buffered bytes into DATA events.
func (co *Core) dispatch(c *conn) {
	for !c.disabled && c.state == stateEstablished {
		m, ok, err := c.split.Next()
		if err != nil {
			code := CodeMalformed
			if errors.Is(err, frame.ErrOversize) {
				code = CodeOversize
			}
			co.msink.IncrCounter(MetricCoreFrameErrCount, 1)
			co.closeConn(c, code, err)
			return
		}
		if !ok {
			return
		}
		co.events.Force(Event{Kind: EventData, HID: c.hid, Aux: c.tag, Mask: m.Mask, Data: m.Payload})
	}
}

func (co *Core) handleWrite(ev ioEvent) {
	c := co.table.get(ev.hid)
	if c == nil {
		return
	}
	c.writing = false
	c.inflight = 0
	if ev.err != nil {
		co.closeConn(c, CodeSendError, ev.err)
		return
	}
	if !c.takeBatch() && c.progress {
		co.events.Force(Event{Kind: EventProgress, HID: c.hid, Aux: c.tag})
	}
}

func (co *Core) sweep(now time.Time) {
	if co.timeout <= 0 || now.Sub(co.lastSweep) < sweepInterval {
		return
	}
	co.lastSweep = now
	var idle []*conn
	co.table.each(func(c *conn) bool {
		if !c.mode.listener() && now.Sub(c.active) > co.timeout {
			idle = append(idle, c)
		}
		return true
	})
	for _, c := range idle {
		co.closeConn(c, CodeTimeout, os.ErrDeadlineExceeded)
	}
}

// Limit sets the backlog limit and maximum message size for existing and
// future connections. Negative values leave a setting unchanged.
func (co *Core) Limit(limited, maxSize int) {
	co.mu.Lock()
	defer co.mu.Unlock()
	if limited >= 0 {
		co.limited = limited
	}
	if maxSize >= 0 {
		co.maxSize = maxSize
	}
	co.table.each(func(c *conn) bool {
		if limited >= 0 {
			c.limited = limited
		}
		if maxSize >= 0 {
			c.setMaxSize(maxSize)
		}
		return true
	})
}

// SetTimeout sets the idle timeout. Zero disables it.
func (co *Core) SetTimeout(d time.Duration) {
	co.mu.Lock()
	co.timeout = d
	co.mu.Unlock()
	co.Notify()
}

// SetFirewall replaces the accept filter. nil accepts everyone.
func (co *Core) SetFirewall(fw Firewall) {
	co.mu.Lock()
	co.firewall = fw
	co.mu.Unlock()
}

// SetOption changes a per-connection option. Socket level options on an
// outbound connection that is still connecting are applied once it is
// established; on a listener they are inherited by accepted connections,
// except address reuse which applies to the listening socket.
func (co *Core) SetOption(hid HID, opt SockOption, value int) error {
	co.mu.Lock()
	defer co.mu.Unlock()
	c := co.table.get(hid)
	if c == nil {
		return ErrNotFound
	}
	switch opt {
	case OptLimited:
		c.limited = value
		return nil
	case OptMaxSize:
		return c.setMaxSize(value)
	case OptProgress:
		c.progress = value != 0
		return nil
	}
	if !opt.socketLevel() {
		return ErrBadOption
	}
	if c.mode.listener() && opt != OptReuseAddr && opt != OptReusePort {
		c.deferred = append(c.deferred, deferredOpt{opt, value})
		return nil
	}
	if c.state == stateConnecting {
		c.deferred = append(c.deferred, deferredOpt{opt, value})
		return nil
	}
	return c.applyOption(opt, value)
}

// Option is SetOption with the option given by name, see ParseSockOption.
func (co *Core) Option(hid HID, name string, value int) error {
	opt, err := ParseSockOption(name)
	if err != nil {
		return err
	}
	return co.SetOption(hid, opt, value)
}

// GetTag returns the tag of hid.
func (co *Core) GetTag(hid HID) (int64, error) {
	co.mu.Lock()
	defer co.mu.Unlock()
	c := co.table.get(hid)
	if c == nil {
		return 0, ErrNotFound
	}
	return c.tag, nil
}

// SetTag attaches an application value to hid, echoed in event Aux fields.
func (co *Core) SetTag(hid HID, tag int64) error {
	co.mu.Lock()
	defer co.mu.Unlock()
	c := co.table.get(hid)
	if c == nil {
		return ErrNotFound
	}
	c.tag = tag
	return nil
}

func (co *Core) GetMode(hid HID) (Mode, error) {
	co.mu.Lock()
	defer co.mu.Unlock()
	c := co.table.get(hid)
	if c == nil {
		return 0, ErrNotFound
	}
	return c.mode, nil
}

// Remain returns the number of bytes queued on hid and not yet written.
func (co *Core) Remain(hid HID) (int, error) {
	co.mu.Lock()
	defer co.mu.Unlock()
	c := co.table.get(hid)
	if c == nil {
		return 0, ErrNotFound
	}
	return c.remain(), nil
}

// Sockname returns the local address of hid.
func (co *Core) Sockname(hid HID) (*net.TCPAddr, error) {
	return co.addr(hid, func(c *conn) net.Addr { return c.local })
}

// Peername returns the remote address of hid.
func (co *Core) Peername(hid HID) (*net.TCPAddr, error) {
	return co.addr(hid, func(c *conn) net.Addr {
		if c.mode.listener() {
			return nil
		}
		return c.remote
	})
}

func (co *Core) addr(hid HID, pick func(*conn) net.Addr) (*net.TCPAddr, error) {
	co.mu.Lock()
	defer co.mu.Unlock()
	c := co.table.get(hid)
	if c == nil {
		return nil, ErrNotFound
	}
	ta, ok := pick(c).(*net.TCPAddr)
	if !ok || ta == nil {
		return nil, ErrNotConnected
	}
	return ta, nil
}

// Disable stops reading from hid while keeping it open. Bytes already
// received stay buffered and are delivered once reading is enabled again.
func (co *Core) Disable(hid HID, disabled bool) error {
	co.mu.Lock()
	defer co.mu.Unlock()
	c := co.table.get(hid)
	if c == nil {
		return ErrNotFound
	}
	if c.mode.listener() {
		return ErrBadMode
	}
	c.disabled = disabled
	c.gate.set(disabled)
	if !disabled {
		co.dispatch(c)
		co.Notify()
	}
	return nil
}

// SetSendKey enables RC4 on outgoing bytes of hid. An empty key disables
// it. Only bytes queued afterwards are affected.
func (co *Core) SetSendKey(hid HID, key []byte) error {
	s, err := rc4Stream(key)
	if err != nil {
		return err
	}
	return co.SetSendCipher(hid, s)
}

// SetRecvKey enables RC4 on incoming bytes of hid.
func (co *Core) SetRecvKey(hid HID, key []byte) error {
	s, err := rc4Stream(key)
	if err != nil {
		return err
	}
	return co.SetRecvCipher(hid, s)
}

func rc4Stream(key []byte) (cipher.Stream, error) {
	if len(key) == 0 {
		return nil, nil
	}
	s, err := rc4.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("asyncnet: rc4 key: %w", err)
	}
	return s, nil
}

// SetSendCipher installs s on the outgoing stream of hid; nil removes it.
func (co *Core) SetSendCipher(hid HID, s cipher.Stream) error {
	co.mu.Lock()
	defer co.mu.Unlock()
	c := co.table.get(hid)
	if c == nil {
		return ErrNotFound
	}
	c.enc = s
	return nil
}

// SetRecvCipher installs s on the incoming stream of hid; nil removes it.
func (co *Core) SetRecvCipher(hid HID, s cipher.Stream) error {
	co.mu.Lock()
	defer co.mu.Unlock()
	c := co.table.get(hid)
	if c == nil {
		return ErrNotFound
	}
	c.dec = s
	return nil
}

// NodeHead returns the oldest live handle.
func (co *Core) NodeHead() (HID, bool) {
	co.mu.Lock()
	defer co.mu.Unlock()
	return co.table.head()
}

// NodeNext returns the handle created after hid.
func (co *Core) NodeNext(hid HID) (HID, bool) {
	co.mu.Lock()
	defer co.mu.Unlock()
	return co.table.next(hid)
}

// NodePrev returns the handle created before hid.
func (co *Core) NodePrev(hid HID) (HID, bool) {
	co.mu.Lock()
	defer co.mu.Unlock()
	return co.table.prev(hid)
}

// Len returns the number of live handles.
func (co *Core) Len() int {
	co.mu.Lock()
	defer co.mu.Unlock()
	return co.table.len()
}

// Shutdown closes every handle without emitting events and waits for all
// goroutines of the core to exit. Queued events are discarded.
func (co *Core) Shutdown() error {
	co.mu.Lock()
	if co.closed {
		co.mu.Unlock()
		return nil
	}
	co.closed = true
	for _, c := range co.table.snapshot() {
		co.table.remove(c.hid)
		c.teardown(0)
	}
	co.mu.Unlock()

	co.cancel()
	err := co.group.Wait()
	for {
		select {
		case ev := <-co.inbox:
			if ev.nc != nil {
				ev.nc.Close()
			}
			continue
		default:
		}
		break
	}
	co.events.Clear()
	return err
}
