// Copyright 2025 The go-zeromq Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package notify

import (
	"fmt"
	"time"

	"github.com/destiny/asyncnet"
)

// Close codes used by the mesh on top of the core ones.
const (
	CodeLoginRejected = 8000 // + login result, acceptor side
	CodeReplaced      = 8010
	CodeDuplicate     = 8020
	CodeHandshake     = 8030
	CodeRemoved       = 8040
	CodeProtocol      = 8050
	CodeUnauthorized  = 8060
	CodeSidChanged    = 8070
	CodeLoginFailed   = 8100 // + login result, dialer side
	CodePeerError     = 8200 // + reason sent by the peer
	CodeIdle          = 8301
)

// LinkState is the reachability of a registered sid.
type LinkState int

const (
	StateWantLink LinkState = iota
	StateLinked
	StateRetrying
	StateIdle
)

func (s LinkState) String() string {
	switch s {
	case StateWantLink:
		return "WANT_LINK"
	case StateLinked:
		return "LINKED"
	case StateRetrying:
		return "RETRYING"
	case StateIdle:
		return "IDLE"
	}
	return fmt.Sprintf("LinkState(%d)", int(s))
}

// serverNode is a registered peer.
type serverNode struct {
	sid      int
	addr     string
	state    LinkState
	failures int
	retryAt  time.Time
	dialing  *link

	pending      [][]byte
	pendingBytes int
}

// backoff returns the delay before the next dial after a failure.
func (n *serverNode) backoff(base time.Duration) time.Duration {
	shift := min(n.failures-1, 3)
	if shift < 0 {
		shift = 0
	}
	return base << shift
}

func (n *serverNode) fail(now time.Time, base time.Duration) {
	n.failures++
	n.state = StateRetrying
	n.retryAt = now.Add(n.backoff(base))
}

func (n *serverNode) dropPending() {
	n.pending = nil
	n.pendingBytes = 0
}

// link is one physical connection carrying the mesh protocol.
type link struct {
	hid      asyncnet.HID
	outbound bool
	// sid is the peer, known up front when dialing and after LOGIN when
	// accepting.
	sid int
	// dialer is the sid of the node that opened the connection.
	dialer int

	authed   bool
	draining bool
	closing  bool

	created  time.Time
	drainAt  time.Time
	lastData time.Time
	lastPing time.Time
	rtt      time.Duration
}

func newLink(hid asyncnet.HID, outbound bool, now time.Time) *link {
	return &link{hid: hid, outbound: outbound, created: now, lastData: now, lastPing: now, rtt: -1}
}

func (l *link) usable() bool { return l.authed && !l.closing && !l.draining }

func (l *link) String() string {
	dir := "in"
	if l.outbound {
		dir = "out"
	}
	return fmt.Sprintf("%v(%s sid=%d)", l.hid, dir, l.sid)
}
