// Copyright 2025 The go-zeromq Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package notify

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hashicorp/go-metrics"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/destiny/asyncnet"
)

var ErrBadOption = errors.New("notify: unknown option")

// Option configures a Mesh at creation.
type Option func(m *Mesh)

// WithLogger sets the logger of the mesh and its core.
func WithLogger(l *asyncnet.Logger) Option {
	return func(m *Mesh) {
		m.log = l
	}
}

// WithMetricSink sets where mesh and core counters go.
func WithMetricSink(s metrics.MetricSink) Option {
	return func(m *Mesh) {
		m.msink = s
	}
}

// WithToken sets the shared secret that authenticates links.
func WithToken(token string) Option {
	return func(m *Mesh) {
		m.signer = newSigner(token)
	}
}

// WithProfile loads a preset, see SetOption("PROFILE").
func WithProfile(p int) Option {
	return func(m *Mesh) {
		m.cfg.profile(p)
	}
}

// WithRetryTimeout sets the base delay before redialing a failed peer.
func WithRetryTimeout(d time.Duration) Option {
	return func(m *Mesh) {
		m.cfg.retry = d
	}
}

// WithHandshakeTimeout bounds how long a link may stay unauthenticated.
func WithHandshakeTimeout(d time.Duration) Option {
	return func(m *Mesh) {
		m.cfg.handshake = d
	}
}

// WithHeartbeat sets the ping interval on live links. Zero disables it.
func WithHeartbeat(d time.Duration) Option {
	return func(m *Mesh) {
		m.cfg.heartbeat = d
	}
}

// WithIdleTimeout closes links that carried no data for d. Zero disables it.
func WithIdleTimeout(d time.Duration) Option {
	return func(m *Mesh) {
		m.cfg.idle = d
	}
}

// WithSignTimeout bounds the clock skew accepted in LOGIN timestamps.
func WithSignTimeout(d time.Duration) Option {
	return func(m *Mesh) {
		m.cfg.signTimeout = d
	}
}

// WithEventMask selects which non-data events are delivered.
func WithEventMask(mask int) Option {
	return func(m *Mesh) {
		m.cfg.evtMask = mask
	}
}

// WithLogMask selects which log categories are written.
func WithLogMask(mask int) Option {
	return func(m *Mesh) {
		m.cfg.logMask = mask
	}
}

// WithCoreOptions passes extra options to the underlying core.
func WithCoreOptions(opts ...asyncnet.Option) Option {
	return func(m *Mesh) {
		m.coreOpts = append(m.coreOpts, opts...)
	}
}

// Log categories for the LOGMASK option.
const (
	LogInfo    = 1
	LogReject  = 2
	LogError   = 4
	LogWarning = 8
	LogDebug   = 16
)

type config struct {
	idle        time.Duration
	heartbeat   time.Duration
	keepalive   int
	sndbuf      int
	rcvbuf      int
	limited     int
	signTimeout time.Duration
	retry       time.Duration
	netTimeout  time.Duration
	handshake   time.Duration
	evtMask     int
	logMask     int
}

func defaultConfig() config {
	c := config{
		handshake: 10 * time.Second,
		evtMask:   defaultEventMask,
		logMask:   LogError | LogWarning,
	}
	c.profile(1)
	return c
}

// profile 0 turns every timer off, profile 1 is the long-lived server
// preset.
func (c *config) profile(p int) {
	switch p {
	case 0:
		c.idle = 0
		c.heartbeat = 0
		c.keepalive = 0
		c.limited = 0
		c.signTimeout = 0
		c.retry = time.Second
		c.netTimeout = 0
	case 1:
		c.idle = 300 * time.Second
		c.heartbeat = 300 * time.Second
		c.keepalive = 1
		c.limited = 0x400000
		c.signTimeout = 300 * time.Second
		c.retry = 10 * time.Second
		c.netTimeout = 2 * c.heartbeat
	}
}

var optionNames = []string{
	"PROFILE", "IDLE", "HEARTBEAT", "KEEPALIVE", "SYSSNDBUF", "SYSRCVBUF",
	"LIMITED", "SIGN_TIMEOUT", "RETRY_TIMEOUT", "NET_TIMEOUT", "EVTMASK",
	"LOGMASK", "HANDSHAKE", "GET_PING", "GET_OUT_COUNT", "GET_IN_COUNT",
}

var upper = cases.Upper(language.Und)

func parseOption(name string) (string, error) {
	key := upper.String(strings.TrimSpace(name))
	key = strings.TrimPrefix(key, "NOTIFY_")
	if key == "PING" {
		key = "HEARTBEAT"
	}
	for _, n := range optionNames {
		if n == key {
			return key, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrBadOption, name)
}

func seconds(v int) time.Duration { return time.Duration(v) * time.Second }

// SetOption changes a setting by name. Durations are in seconds.
//
//	PROFILE        0 disables timers, 1 loads server defaults
//	IDLE           close links without data for that long
//	HEARTBEAT      ping interval on live links (alias PING)
//	KEEPALIVE      TCP keepalive on new links, seconds or 1 for on
//	SYSSNDBUF      kernel send buffer of new links
//	SYSRCVBUF      kernel receive buffer of new links
//	LIMITED        per link backlog limit in bytes
//	SIGN_TIMEOUT   accepted LOGIN clock skew
//	RETRY_TIMEOUT  base redial delay
//	NET_TIMEOUT    core idle timeout
//	EVTMASK        delivered event kinds
//	LOGMASK        written log categories
//	HANDSHAKE      authentication window of a new link
func (m *Mesh) SetOption(name string, value int) error {
	key, err := parseOption(name)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	switch key {
	case "PROFILE":
		m.cfg.profile(value)
	case "IDLE":
		m.cfg.idle = seconds(value)
	case "HEARTBEAT":
		m.cfg.heartbeat = seconds(value)
	case "KEEPALIVE":
		m.cfg.keepalive = value
	case "SYSSNDBUF":
		m.cfg.sndbuf = value
	case "SYSRCVBUF":
		m.cfg.rcvbuf = value
	case "LIMITED":
		m.cfg.limited = value
	case "SIGN_TIMEOUT":
		m.cfg.signTimeout = seconds(value)
	case "RETRY_TIMEOUT":
		m.cfg.retry = seconds(value)
	case "NET_TIMEOUT":
		m.cfg.netTimeout = seconds(value)
	case "EVTMASK":
		m.cfg.evtMask = value
	case "LOGMASK":
		m.cfg.logMask = value
	case "HANDSHAKE":
		m.cfg.handshake = seconds(value)
	default:
		return fmt.Errorf("%w: %s is read-only", ErrBadOption, key)
	}
	m.applyConfig()
	return nil
}

// GetOption reads a setting by name. GET_PING takes the peer sid as arg and
// returns the last round trip in milliseconds, or -1 without a live link.
func (m *Mesh) GetOption(name string, arg int) (int, error) {
	key, err := parseOption(name)
	if err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	switch key {
	case "IDLE":
		return int(m.cfg.idle / time.Second), nil
	case "HEARTBEAT":
		return int(m.cfg.heartbeat / time.Second), nil
	case "KEEPALIVE":
		return m.cfg.keepalive, nil
	case "SYSSNDBUF":
		return m.cfg.sndbuf, nil
	case "SYSRCVBUF":
		return m.cfg.rcvbuf, nil
	case "LIMITED":
		return m.cfg.limited, nil
	case "SIGN_TIMEOUT":
		return int(m.cfg.signTimeout / time.Second), nil
	case "RETRY_TIMEOUT":
		return int(m.cfg.retry / time.Second), nil
	case "NET_TIMEOUT":
		return int(m.cfg.netTimeout / time.Second), nil
	case "EVTMASK":
		return m.cfg.evtMask, nil
	case "LOGMASK":
		return m.cfg.logMask, nil
	case "HANDSHAKE":
		return int(m.cfg.handshake / time.Second), nil
	case "GET_PING":
		l := m.live[arg]
		if l == nil || l.rtt < 0 {
			return -1, nil
		}
		return int(l.rtt / time.Millisecond), nil
	case "GET_OUT_COUNT":
		return m.countLinks(true), nil
	case "GET_IN_COUNT":
		return m.countLinks(false), nil
	}
	return 0, fmt.Errorf("%w: %s is write-only", ErrBadOption, key)
}
