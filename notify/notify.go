// Copyright 2025 The go-zeromq Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package notify connects servers identified by integer sids into a mesh
// over a single asyncnet.Core.
//
// Callers register peers with SidAdd and exchange (cmd, payload) messages
// with Send and Read. The mesh dials every registered peer, authenticates
// each link with a shared token, keeps one link per peer and redials with
// backoff when a link is lost. Which physical connection carries a message
// is never visible to the caller.
//
// When both nodes dial each other the link opened by the lower sid is kept.
// Messages sent while a link is being replaced may arrive out of order with
// respect to those sent just before.
package notify

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"maps"
	"math"
	"net"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hashicorp/go-metrics"

	"github.com/destiny/asyncnet"
	"github.com/destiny/asyncnet/frame"
	"github.com/destiny/asyncnet/internal/queue"
)

var (
	ErrBadSID     = errors.New("notify: invalid sid")
	ErrSelf       = errors.New("notify: sid is this node")
	ErrUnknownSID = errors.New("notify: unknown sid")
	ErrNoLink     = errors.New("notify: no live link")
	ErrBadCommand = errors.New("notify: command out of range")
)

const tickInterval = 100 * time.Millisecond

// errIdle is sent in an ERROR message before an idle link is closed so that
// the peer stops redialing too.
const errIdle = 3

// Mesh is a node of a notify mesh. All methods are safe for concurrent use.
type Mesh struct {
	mu   sync.Mutex
	core *asyncnet.Core

	log      *asyncnet.Logger
	msink    metrics.MetricSink
	coreOpts []asyncnet.Option
	cfg      config
	signer   *signer
	allow    *allowList

	sid       int
	nodes     map[int]*serverNode
	links     map[asyncnet.HID]*link
	live      map[int]*link
	listeners map[asyncnet.HID]struct{}

	events *queue.Queue[Event]
	woken  atomic.Bool
	start  time.Time
	closed bool
}

func validSID(sid int) bool { return sid > 0 && sid <= math.MaxUint32 }

// New returns a mesh node with the given sid. Its core lives until Shutdown
// or until ctx is done.
func New(ctx context.Context, sid int, opts ...Option) (*Mesh, error) {
	if !validSID(sid) {
		return nil, fmt.Errorf("%w: %d", ErrBadSID, sid)
	}
	m := &Mesh{
		log:       asyncnet.DefaultLogger.Named("notify: "),
		cfg:       defaultConfig(),
		signer:    newSigner(""),
		allow:     newAllowList(),
		sid:       sid,
		nodes:     make(map[int]*serverNode),
		links:     make(map[asyncnet.HID]*link),
		live:      make(map[int]*link),
		listeners: make(map[asyncnet.HID]struct{}),
		events:    queue.New[Event](0),
		start:     time.Now(),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.msink == nil {
		m.msink = metrics.Default()
	}
	coreOpts := []asyncnet.Option{
		asyncnet.WithLogger(m.log),
		asyncnet.WithMetricSink(m.msink),
		asyncnet.WithFirewall(m.allow.permit),
	}
	m.core = asyncnet.NewCore(ctx, append(coreOpts, m.coreOpts...)...)
	m.applyConfig()
	return m, nil
}

func (m *Mesh) applyConfig() {
	m.core.Limit(m.cfg.limited, -1)
	m.core.SetTimeout(m.cfg.netTimeout)
}

// SID returns the sid of this node.
func (m *Mesh) SID() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sid
}

// Listen accepts peer links on addr and returns the listener id.
func (m *Mesh) Listen(addr string, reuse bool) (asyncnet.HID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return 0, asyncnet.ErrClosed
	}
	hid, err := m.core.NewListen(addr, frame.DwordLSB, reuse)
	if err != nil {
		return 0, err
	}
	m.listeners[hid] = struct{}{}
	// inherited by accepted links
	m.applySockopts(hid)
	m.logf(LogInfo, "listening on %s as %v", addr, hid)
	return hid, nil
}

// Remove closes a listener returned by Listen.
func (m *Mesh) Remove(listenID asyncnet.HID, code int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.listeners[listenID]; !ok {
		return asyncnet.ErrNotFound
	}
	delete(m.listeners, listenID)
	return m.core.Close(listenID, code)
}

// Port returns the bound port of a listener.
func (m *Mesh) Port(listenID asyncnet.HID) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.listeners[listenID]; !ok {
		return 0, asyncnet.ErrNotFound
	}
	addr, err := m.core.Sockname(listenID)
	if err != nil {
		return 0, err
	}
	return addr.Port, nil
}

// Change gives this node a new sid. Every link is closed and registered
// peers are dialed again under the new identity.
func (m *Mesh) Change(sid int) error {
	if !validSID(sid) {
		return fmt.Errorf("%w: %d", ErrBadSID, sid)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return asyncnet.ErrClosed
	}
	if sid == m.sid {
		return nil
	}
	m.logf(LogInfo, "sid %d changed to %d", m.sid, sid)
	m.sid = sid
	for _, n := range m.nodes {
		n.dialing = nil
		n.failures = 0
		n.state = StateWantLink
	}
	for _, l := range m.links {
		m.closeLink(l, CodeSidChanged)
	}
	m.core.Notify()
	return nil
}

// SidAdd registers or updates the dialable address of a peer.
func (m *Mesh) SidAdd(sid int, addr string) error {
	if !validSID(sid) {
		return fmt.Errorf("%w: %d", ErrBadSID, sid)
	}
	if _, _, err := net.SplitHostPort(addr); err != nil {
		return fmt.Errorf("notify: sid %d address: %w", sid, err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return asyncnet.ErrClosed
	}
	if sid == m.sid {
		return ErrSelf
	}
	n := m.nodes[sid]
	switch {
	case n == nil:
		n = &serverNode{sid: sid, state: StateWantLink}
		m.nodes[sid] = n
	case n.addr != addr:
		n.failures = 0
		if n.state == StateRetrying {
			n.state = StateWantLink
		}
	}
	n.addr = addr
	if m.live[sid] != nil {
		n.state = StateLinked
	}
	m.core.Notify()
	return nil
}

// SidDel forgets a peer. Its pending messages and any dial in progress are
// dropped; an established link stays open until it closes on its own.
func (m *Mesh) SidDel(sid int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := m.nodes[sid]
	if n == nil {
		return ErrUnknownSID
	}
	m.dropNode(n)
	return nil
}

// SidClear forgets every peer.
func (m *Mesh) SidClear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, n := range m.nodes {
		m.dropNode(n)
	}
}

func (m *Mesh) dropNode(n *serverNode) {
	delete(m.nodes, n.sid)
	n.dropPending()
	if d := n.dialing; d != nil {
		n.dialing = nil
		m.closeLink(d, CodeRemoved)
	}
}

// SidList returns the registered sids in ascending order.
func (m *Mesh) SidList() []int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Sorted(maps.Keys(m.nodes))
}

// LinkState reports the state of a registered sid, or StateLinked for an
// unregistered peer that dialed in.
func (m *Mesh) LinkState(sid int) (LinkState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if n := m.nodes[sid]; n != nil {
		return n.state, nil
	}
	if m.live[sid] != nil {
		return StateLinked, nil
	}
	return 0, ErrUnknownSID
}

// LinkCount returns the number of peers with a live link.
func (m *Mesh) LinkCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.live)
}

func (m *Mesh) countLinks(outbound bool) int {
	n := 0
	for _, l := range m.links {
		if l.outbound == outbound && l.usable() {
			n++
		}
	}
	return n
}

// AllowAdd permits inbound links from ip once the allow-list is enabled.
func (m *Mesh) AllowAdd(ip string) error { return m.allow.add(ip) }

// AllowDel removes ip from the allow-list.
func (m *Mesh) AllowDel(ip string) error { return m.allow.del(ip) }

// AllowClear empties the allow-list.
func (m *Mesh) AllowClear() { m.allow.clear() }

// AllowEnable turns filtering of inbound links on or off.
func (m *Mesh) AllowEnable(on bool) { m.allow.enable(on) }

// Allow replaces the allow-list with ips and enables it.
func (m *Mesh) Allow(ips []string) error {
	for _, ip := range ips {
		if _, err := normalizeIP(ip); err != nil {
			return err
		}
	}
	m.allow.clear()
	for _, ip := range ips {
		m.allow.add(ip)
	}
	m.allow.enable(true)
	return nil
}

// SetToken changes the shared secret used by new logins.
func (m *Mesh) SetToken(token string) {
	m.mu.Lock()
	m.signer = newSigner(token)
	m.mu.Unlock()
}

// Send delivers (cmd, data) to sid. Without a live link the message is
// buffered until one comes up, up to the LIMITED option in bytes. A link
// the core already dropped counts as no link.
func (m *Mesh) Send(sid, cmd int, data []byte) error {
	if cmd < 0 || cmd > math.MaxUint16 {
		return fmt.Errorf("%w: %d", ErrBadCommand, cmd)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return asyncnet.ErrClosed
	}
	if sid == m.sid {
		return ErrSelf
	}
	msg := encodeData(uint16(cmd), data)
	if l := m.live[sid]; l != nil {
		err := m.send(l, msg)
		switch {
		case err == nil:
			l.lastData = time.Now()
			m.msink.IncrCounter(MetricDataOutCount, 1)
			return nil
		case errors.Is(err, asyncnet.ErrNotFound):
			// the core dropped the handle before its LEAVE was pumped
			m.closeLink(l, asyncnet.CodeSendError)
		default:
			return fmt.Errorf("notify: send to sid %d: %w", sid, err)
		}
	}
	n := m.nodes[sid]
	if n == nil {
		return fmt.Errorf("%w: %d", ErrUnknownSID, sid)
	}
	if m.cfg.limited > 0 && n.pendingBytes+len(msg) > m.cfg.limited {
		return fmt.Errorf("notify: sid %d pending: %w", sid, asyncnet.ErrLimited)
	}
	n.pending = append(n.pending, msg)
	n.pendingBytes += len(msg)
	if n.state == StateIdle {
		n.state = StateWantLink
	}
	m.core.Notify()
	return nil
}

// CloseLink closes the live link to sid with code. The peer is redialed
// after the retry delay.
func (m *Mesh) CloseLink(sid, code int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	l := m.live[sid]
	if l == nil {
		return ErrNoLink
	}
	m.closeLink(l, code)
	return nil
}

// Wait runs the mesh until an event is readable, Wake is called or the
// timeout expires. A zero timeout polls and a negative one waits without
// limit.
func (m *Mesh) Wait(timeout time.Duration) error {
	var deadline time.Time
	if timeout > 0 {
		deadline = time.Now().Add(timeout)
	}
	for {
		if m.events.Len() > 0 || m.woken.Swap(false) {
			return nil
		}
		step := tickInterval
		switch {
		case timeout == 0:
			step = 0
		case timeout > 0:
			step = max(min(step, time.Until(deadline)), 0)
		}
		if err := m.core.Wait(step); err != nil {
			return err
		}

		m.mu.Lock()
		if m.closed {
			m.mu.Unlock()
			return asyncnet.ErrClosed
		}
		now := time.Now()
		m.pump(now)
		m.tick(now)
		m.mu.Unlock()

		if timeout == 0 || m.events.Len() > 0 || m.woken.Swap(false) {
			return nil
		}
		if timeout > 0 && !time.Now().Before(deadline) {
			return nil
		}
	}
}

// Wake makes a blocked Wait return.
func (m *Mesh) Wake() {
	m.woken.Store(true)
	m.core.Notify()
}

// Read pops the next event.
func (m *Mesh) Read() (Event, bool) {
	return m.events.Pop()
}

// Shutdown closes every link and listener and stops the core.
func (m *Mesh) Shutdown() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.mu.Unlock()
	err := m.core.Shutdown()
	m.events.Clear()
	return err
}

func (m *Mesh) push(ev Event) {
	if ev.Kind != EventData && m.cfg.evtMask&int(ev.Kind) == 0 {
		return
	}
	m.events.Force(ev)
}

func (m *Mesh) logf(category int, format string, args ...interface{}) {
	if m.cfg.logMask&category == 0 {
		return
	}
	level := asyncnet.LogLevelDebug
	switch category {
	case LogError:
		level = asyncnet.LogLevelError
	case LogWarning, LogReject:
		level = asyncnet.LogLevelWarn
	case LogInfo:
		level = asyncnet.LogLevelInfo
	}
	m.log.Log(level, format, args...)
}

func (m *Mesh) applySockopts(hid asyncnet.HID) {
	opts := []struct {
		opt   asyncnet.SockOption
		value int
	}{
		{asyncnet.OptNoDelay, 1},
		{asyncnet.OptKeepAlive, m.cfg.keepalive},
		{asyncnet.OptSysSndBuf, m.cfg.sndbuf},
		{asyncnet.OptSysRcvBuf, m.cfg.rcvbuf},
	}
	for _, o := range opts {
		if o.value <= 0 {
			continue
		}
		if err := m.core.SetOption(hid, o.opt, o.value); err != nil {
			m.logf(LogWarning, "%v: option %v: %v", hid, o.opt, err)
		}
	}
}

func (m *Mesh) send(l *link, msg []byte) error {
	_, err := m.core.Send(l.hid, msg)
	if err != nil {
		m.logf(LogError, "%v: send: %v", l, err)
	}
	return err
}

// pump turns core events into link state changes.
func (m *Mesh) pump(now time.Time) {
	for {
		ev, ok := m.core.Read()
		if !ok {
			return
		}
		m.push(Event{Kind: EventCore, Core: ev})
		switch ev.Kind {
		case asyncnet.EventNew:
			if ev.Aux > 0 {
				m.links[ev.HID] = newLink(ev.HID, false, now)
			}
		case asyncnet.EventEstablished:
			if l := m.links[ev.HID]; l != nil && l.outbound {
				m.sendLogin(l)
			}
		case asyncnet.EventData:
			if l := m.links[ev.HID]; l != nil && !l.closing {
				m.onMessage(l, ev.Data, now)
			}
		case asyncnet.EventLeave:
			m.onLeave(ev, now)
		}
	}
}

func (m *Mesh) onLeave(ev asyncnet.Event, now time.Time) {
	if _, ok := m.listeners[ev.HID]; ok {
		delete(m.listeners, ev.HID)
		m.logf(LogError, "listener %v closed with %d: %v", ev.HID, ev.Code, ev.Err)
		return
	}
	l := m.links[ev.HID]
	if l == nil {
		return
	}
	delete(m.links, ev.HID)
	if n := m.nodes[l.sid]; n != nil && n.dialing == l {
		n.dialing = nil
		n.fail(now, m.cfg.retry)
		m.msink.IncrCounter(MetricRetryCount, 1)
		m.logf(LogWarning, "sid %d: link to %s failed with %d, retry in %v",
			l.sid, n.addr, ev.Code, n.retryAt.Sub(now))
	}
	if m.live[l.sid] == l {
		m.unlive(l, ev.Code, now)
		return
	}
	m.logf(LogDebug, "%v closed with %d", l, ev.Code)
}

func (m *Mesh) onMessage(l *link, b []byte, now time.Time) {
	msgid, cmd, body, err := parseHeader(b)
	if err != nil {
		m.protocolError(l, err)
		return
	}
	switch msgid {
	case msgLogin:
		m.onLogin(l, b, now)
	case msgLoginAck:
		m.onLoginAck(l, int(cmd), now)
	case msgData:
		if !l.authed {
			m.unauthorized(l)
			return
		}
		l.lastData = now
		m.msink.IncrCounter(MetricDataInCount, 1)
		m.push(Event{Kind: EventData, SID: l.sid, Cmd: int(cmd), Data: body})
	case msgPing:
		if !l.authed {
			m.unauthorized(l)
			return
		}
		if len(body) < 4 {
			m.protocolError(l, errShortMessage)
			return
		}
		m.send(l, encodePing(msgPong, binary.LittleEndian.Uint32(body)))
	case msgPong:
		if len(body) < 4 {
			m.protocolError(l, errShortMessage)
			return
		}
		sent := time.Duration(binary.LittleEndian.Uint32(body)) * time.Millisecond
		l.rtt = max(now.Sub(m.start)-sent, 0)
	case msgError:
		if cmd == errIdle {
			m.closeLink(l, CodeIdle)
			return
		}
		m.logf(LogError, "%v: peer error %d", l, cmd)
		m.push(Event{Kind: EventError, SID: l.sid, Code: CodePeerError + int(cmd)})
		m.closeLink(l, CodePeerError+int(cmd))
	default:
		m.protocolError(l, fmt.Errorf("unknown message %#04x", msgid))
	}
}

func (m *Mesh) sendLogin(l *link) {
	msg := encodeLogin(login{
		self:   uint32(m.sid),
		remote: uint32(l.sid),
		ts:     time.Now().Unix(),
	}, m.signer)
	m.send(l, msg)
}

func (m *Mesh) onLogin(l *link, b []byte, now time.Time) {
	lg, err := decodeLogin(b)
	if err != nil {
		m.protocolError(l, err)
		return
	}
	peer := int(lg.self)
	res := loginOK
	switch {
	case l.outbound:
		res = loginNotIncoming
	case l.authed:
		res = loginState
	case int(lg.remote) != m.sid || peer == 0 || peer == m.sid:
		res = loginBadSID
	case !m.signer.verify(b[:loginSigned], lg.sign):
		res = loginBadSign
	case m.cfg.signTimeout > 0 && now.Sub(time.Unix(lg.ts, 0)).Abs() > m.cfg.signTimeout:
		res = loginExpired
	}
	m.msink.IncrCounterWithLabels(MetricLoginCount, 1, resultLabel(res))
	m.send(l, appendHeader(nil, msgLoginAck, uint16(res)))
	if res != loginOK {
		m.logf(LogReject, "%v: login from sid %d rejected with %d", l, peer, res)
		m.push(Event{Kind: EventError, SID: peer, Code: CodeLoginRejected + res})
		m.closeLink(l, CodeLoginRejected+res)
		return
	}
	l.sid = peer
	l.dialer = peer
	l.authed = true
	m.promote(l, now)
}

func (m *Mesh) onLoginAck(l *link, res int, now time.Time) {
	if !l.outbound || l.authed {
		m.protocolError(l, errors.New("unexpected login ack"))
		return
	}
	if res != loginOK {
		m.logf(LogReject, "%v: login refused with %d", l, res)
		m.push(Event{Kind: EventError, SID: l.sid, Code: CodeLoginFailed + res})
		m.closeLink(l, CodeLoginFailed+res)
		return
	}
	l.dialer = m.sid
	l.authed = true
	m.promote(l, now)
}

// promote makes an authenticated link the live one for its sid unless a
// preferred link already exists. Between two links the one opened by the
// lower sid wins, and between two opened by the same node the newer wins.
func (m *Mesh) promote(l *link, now time.Time) {
	l.lastData, l.lastPing = now, now
	if n := m.nodes[l.sid]; n != nil && n.dialing == l {
		n.dialing = nil
	}
	cur := m.live[l.sid]
	if cur == nil {
		m.live[l.sid] = l
		m.linkUp(l)
		return
	}
	m.msink.IncrCounter(MetricDedupCount, 1)
	code := CodeDuplicate
	if cur.dialer == l.dialer {
		code = CodeReplaced
	}
	preferred := min(m.sid, l.sid)
	if cur.dialer == preferred && l.dialer != preferred {
		m.logf(LogDebug, "%v: keeping %v", l, cur)
		m.retire(l, code, now)
		return
	}
	m.logf(LogDebug, "%v: replacing %v", l, cur)
	m.live[l.sid] = l
	m.retire(cur, code, now)
	m.flush(l)
}

// retire takes a link out of service. Links the peer opened are left for
// the peer to close so that data it already sent on them is still read.
func (m *Mesh) retire(l *link, code int, now time.Time) {
	if l.outbound || code == CodeReplaced {
		m.closeLink(l, code)
		return
	}
	l.draining = true
	l.drainAt = now
}

func (m *Mesh) linkUp(l *link) {
	m.msink.SetGauge(MetricLinks, float32(len(m.live)))
	m.logf(LogInfo, "sid %d: link up on %v", l.sid, l)
	m.push(Event{Kind: EventLinkUp, SID: l.sid})
	if n := m.nodes[l.sid]; n != nil {
		n.state = StateLinked
		n.failures = 0
	}
	m.flush(l)
}

func (m *Mesh) unlive(l *link, code int, now time.Time) {
	delete(m.live, l.sid)
	m.msink.SetGauge(MetricLinks, float32(len(m.live)))
	m.logf(LogInfo, "sid %d: link down on %v with %d", l.sid, l, code)
	m.push(Event{Kind: EventLinkDown, SID: l.sid, Code: code})
	n := m.nodes[l.sid]
	if n == nil {
		return
	}
	switch code {
	case CodeIdle:
		n.state = StateIdle
	case CodeSidChanged:
		n.state = StateWantLink
	default:
		n.state = StateRetrying
		n.retryAt = now.Add(m.cfg.retry)
	}
}

// flush sends messages buffered while sid had no link.
func (m *Mesh) flush(l *link) {
	n := m.nodes[l.sid]
	if n == nil || len(n.pending) == 0 {
		return
	}
	pending := n.pending
	n.dropPending()
	for _, msg := range pending {
		if err := m.send(l, msg); err != nil {
			return
		}
		m.msink.IncrCounter(MetricDataOutCount, 1)
	}
	l.lastData = time.Now()
}

func (m *Mesh) closeLink(l *link, code int) {
	if l.closing {
		return
	}
	l.closing = true
	if m.live[l.sid] == l {
		m.unlive(l, code, time.Now())
	}
	if err := m.core.Close(l.hid, code); err != nil {
		m.logf(LogDebug, "%v: close: %v", l, err)
	}
}

func (m *Mesh) protocolError(l *link, err error) {
	m.logf(LogError, "%v: protocol error: %v", l, err)
	m.send(l, appendHeader(nil, msgError, errBadMessage))
	m.closeLink(l, CodeProtocol)
}

func (m *Mesh) unauthorized(l *link) {
	m.logf(LogReject, "%v: message before login", l)
	m.send(l, appendHeader(nil, msgError, errNotLoggedIn))
	m.closeLink(l, CodeUnauthorized)
}

func (m *Mesh) stamp(now time.Time) uint32 {
	return uint32(now.Sub(m.start).Milliseconds())
}

// tick enforces handshake, drain, heartbeat and idle timers and dials
// peers that need a link.
func (m *Mesh) tick(now time.Time) {
	for _, l := range m.links {
		switch {
		case l.closing:
		case !l.authed:
			if m.cfg.handshake > 0 && now.Sub(l.created) > m.cfg.handshake {
				m.logf(LogWarning, "%v: no login within %v", l, m.cfg.handshake)
				m.closeLink(l, CodeHandshake)
			}
		case l.draining:
			if now.Sub(l.drainAt) > m.cfg.handshake {
				m.closeLink(l, CodeDuplicate)
			}
		case m.live[l.sid] == l:
			m.keepalive(l, now)
		}
	}
	for _, n := range m.nodes {
		if n.sid == m.sid || m.live[n.sid] != nil || n.dialing != nil {
			continue
		}
		switch n.state {
		case StateIdle:
			continue
		case StateRetrying:
			if now.Before(n.retryAt) {
				continue
			}
		}
		m.dial(n, now)
	}
}

func (m *Mesh) keepalive(l *link, now time.Time) {
	if m.cfg.idle > 0 && now.Sub(l.lastData) > m.cfg.idle {
		m.logf(LogInfo, "%v: idle for %v", l, m.cfg.idle)
		m.send(l, appendHeader(nil, msgError, errIdle))
		m.closeLink(l, CodeIdle)
		return
	}
	if m.cfg.heartbeat > 0 && now.Sub(l.lastPing) >= m.cfg.heartbeat {
		l.lastPing = now
		m.send(l, encodePing(msgPing, m.stamp(now)))
	}
}

func (m *Mesh) dial(n *serverNode, now time.Time) {
	hid, err := m.core.NewConnect(n.addr, frame.DwordLSB)
	if err != nil {
		m.logf(LogError, "sid %d: dial %s: %v", n.sid, n.addr, err)
		n.fail(now, m.cfg.retry)
		m.msink.IncrCounter(MetricRetryCount, 1)
		return
	}
	l := newLink(hid, true, now)
	l.sid = n.sid
	m.links[hid] = l
	n.dialing = l
	if err := m.core.SetTag(hid, int64(n.sid)); err != nil {
		m.logf(LogDebug, "%v: tag: %v", l, err)
	}
	m.applySockopts(hid)
	m.logf(LogDebug, "sid %d: dialing %s on %v", n.sid, n.addr, hid)
}
