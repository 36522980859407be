// Copyright 2018 The go-zeromq Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package asyncnet

import (
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/hashicorp/go-metrics"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Option configures some aspect of a Core.
type Option func(c *Core)

// WithLogger sets the logger of the core.
func WithLogger(l *Logger) Option {
	return func(c *Core) {
		c.log = l
	}
}

// WithMetricSink sets where counters are emitted. metrics.Default() is used
// otherwise.
func WithMetricSink(s metrics.MetricSink) Option {
	return func(c *Core) {
		c.msink = s
	}
}

// WithQueueSize bounds the event queue. Posts beyond the bound fail and
// network input is held back until the queue drains.
func WithQueueSize(n int) Option {
	return func(c *Core) {
		c.queueSize = n
	}
}

// WithLimit sets the default backlog limit and maximum message size of new
// connections. Zero disables the backlog limit.
func WithLimit(limited, maxSize int) Option {
	return func(c *Core) {
		c.limited = limited
		c.maxSize = maxSize
	}
}

// WithTimeout sets the idle timeout of connections.
func WithTimeout(d time.Duration) Option {
	return func(c *Core) {
		c.timeout = d
	}
}

// WithDialTimeout bounds outbound connection attempts.
func WithDialTimeout(d time.Duration) Option {
	return func(c *Core) {
		c.dialer.Timeout = d
	}
}

// WithLinger sets how long pending output is flushed after a local close.
func WithLinger(d time.Duration) Option {
	return func(c *Core) {
		c.linger = d
	}
}

// WithFirewall installs an accept filter.
func WithFirewall(fw Firewall) Option {
	return func(c *Core) {
		c.firewall = fw
	}
}

// WithReadBufferSize sets the size of per-connection read buffers.
func WithReadBufferSize(n int) Option {
	return func(c *Core) {
		if n > 0 {
			c.readSize = n
		}
	}
}

// Firewall decides whether a connection accepted on listener from remote
// may proceed. Rejected connections are closed before any event is queued.
type Firewall func(remote net.Addr, listener HID) bool

// SockOption names a per-connection option for Core.SetOption.
type SockOption int

const (
	OptNoDelay   SockOption = 1
	OptReuseAddr SockOption = 2
	OptKeepAlive SockOption = 3
	OptSysSndBuf SockOption = 4
	OptSysRcvBuf SockOption = 5
	OptLimited   SockOption = 6
	OptMaxSize   SockOption = 7
	OptProgress  SockOption = 8
	OptReusePort SockOption = 10
)

var sockOptionNames = map[string]SockOption{
	"NODELAY":   OptNoDelay,
	"REUSEADDR": OptReuseAddr,
	"KEEPALIVE": OptKeepAlive,
	"SYSSNDBUF": OptSysSndBuf,
	"SYSRCVBUF": OptSysRcvBuf,
	"LIMITED":   OptLimited,
	"MAXSIZE":   OptMaxSize,
	"PROGRESS":  OptProgress,
	"REUSEPORT": OptReusePort,
}

var upper = cases.Upper(language.Und)

// ParseSockOption maps an option name such as "nodelay" or "ASYNC_NODELAY"
// to its SockOption.
func ParseSockOption(name string) (SockOption, error) {
	key := strings.TrimPrefix(upper.String(strings.TrimSpace(name)), "ASYNC_")
	opt, ok := sockOptionNames[key]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrBadOption, name)
	}
	return opt, nil
}

func (o SockOption) String() string {
	for name, v := range sockOptionNames {
		if v == o {
			return name
		}
	}
	return fmt.Sprintf("SockOption(%d)", int(o))
}

// socket-level options are deferred until a connection is established
func (o SockOption) socketLevel() bool {
	switch o {
	case OptLimited, OptMaxSize, OptProgress:
		return false
	}
	return true
}
