// Copyright 2025 The go-zeromq Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package notify

import (
	"context"
	"fmt"
	"io"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/hashicorp/go-metrics"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/destiny/asyncnet"
	"github.com/destiny/asyncnet/frame"
	"github.com/destiny/asyncnet/internal/testutil"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func newTestMesh(t *testing.T, sid int, opts ...Option) (*Mesh, string) {
	t.Helper()
	base := []Option{
		WithLogger(asyncnet.DevNullLogger),
		WithMetricSink(&metrics.BlackholeSink{}),
		WithProfile(0),
		WithRetryTimeout(50 * time.Millisecond),
	}
	m, err := New(context.Background(), sid, append(base, opts...)...)
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, m.Shutdown()) })

	lid, err := m.Listen("127.0.0.1:0", false)
	require.NoError(t, err)
	port, err := m.Port(lid)
	require.NoError(t, err)
	return m, fmt.Sprintf("127.0.0.1:%d", port)
}

// harness drives several meshes from the test goroutine and records their
// events.
type harness struct {
	t      *testing.T
	meshes []*Mesh
	events [][]Event
}

func newHarness(t *testing.T, meshes ...*Mesh) *harness {
	return &harness{t: t, meshes: meshes, events: make([][]Event, len(meshes))}
}

func (h *harness) step() {
	for i, m := range h.meshes {
		require.NoError(h.t, m.Wait(5*time.Millisecond))
		for {
			ev, ok := m.Read()
			if !ok {
				break
			}
			h.events[i] = append(h.events[i], ev)
		}
	}
}

func (h *harness) until(timeout time.Duration, cond func() bool) {
	h.t.Helper()
	ok := testutil.Loop(h.t, timeout, func() bool {
		h.step()
		return cond()
	})
	require.True(h.t, ok, "condition not met, events: %v", h.events)
}

func (h *harness) run(d time.Duration) {
	testutil.Loop(h.t, d, func() bool {
		h.step()
		return false
	})
}

func (h *harness) filter(i int, kind EventKind) []Event {
	var out []Event
	for _, ev := range h.events[i] {
		if ev.Kind == kind {
			out = append(out, ev)
		}
	}
	return out
}

func (h *harness) has(i int, match func(Event) bool) bool {
	for _, ev := range h.events[i] {
		if match(ev) {
			return true
		}
	}
	return false
}

func linked(meshes ...*Mesh) func() bool {
	return func() bool {
		for _, m := range meshes {
			if m.LinkCount() != 1 {
				return false
			}
		}
		return true
	}
}

func option(t *testing.T, m *Mesh, name string, arg int) int {
	t.Helper()
	v, err := m.GetOption(name, arg)
	require.NoError(t, err)
	return v
}

func TestMeshSendReceive(t *testing.T) {
	token := testutil.NewTestToken(t)
	a, addrA := newTestMesh(t, 1, WithToken(token))
	b, addrB := newTestMesh(t, 2, WithToken(token))
	require.NoError(t, a.SidAdd(2, addrB))
	require.NoError(t, b.SidAdd(1, addrA))

	h := newHarness(t, a, b)
	h.until(5*time.Second, linked(a, b))

	require.NoError(t, a.Send(2, 5, []byte("x")))
	h.until(5*time.Second, func() bool { return len(h.filter(1, EventData)) == 1 })
	got := h.filter(1, EventData)[0]
	assert.Equal(t, 1, got.SID)
	assert.Equal(t, 5, got.Cmd)
	assert.Equal(t, []byte("x"), got.Data)

	t.Run("reply", func(t *testing.T) {
		require.NoError(t, b.Send(1, 7, []byte("y")))
		h.until(5*time.Second, func() bool { return len(h.filter(0, EventData)) == 1 })
		got := h.filter(0, EventData)[0]
		assert.Equal(t, 2, got.SID)
		assert.Equal(t, 7, got.Cmd)
		assert.Equal(t, []byte("y"), got.Data)
	})

	t.Run("order", func(t *testing.T) {
		tracker := testutil.NewMessageTracker()
		for i := range 50 {
			require.NoError(t, a.Send(2, i, []byte(fmt.Sprint(i))))
		}
		h.until(5*time.Second, func() bool {
			for _, ev := range h.events[1] {
				if ev.Kind == EventData && ev.Cmd < 50 && string(ev.Data) != "x" {
					tracker.MarkReceived(int64(ev.SID), string(ev.Data))
				}
			}
			h.events[1] = nil
			return tracker.Count() == 50
		})
		got := tracker.Received(1)
		for i, s := range got {
			assert.Equal(t, fmt.Sprint(i), s)
		}
	})

	t.Run("empty_payload", func(t *testing.T) {
		require.NoError(t, a.Send(2, 0xffff, nil))
		h.until(5*time.Second, func() bool {
			return h.has(1, func(ev Event) bool { return ev.Kind == EventData && ev.Cmd == 0xffff })
		})
	})
}

func TestMeshBuffersUntilLinked(t *testing.T) {
	a, _ := newTestMesh(t, 1)
	b, addrB := newTestMesh(t, 2)
	require.NoError(t, a.SidAdd(2, addrB))

	// B never registered A: the link comes from A only.
	require.NoError(t, a.Send(2, 1, []byte("early")))
	require.NoError(t, a.Send(2, 2, []byte("later")))

	h := newHarness(t, a, b)
	h.until(5*time.Second, func() bool { return len(h.filter(1, EventData)) == 2 })
	data := h.filter(1, EventData)
	assert.Equal(t, []byte("early"), data[0].Data)
	assert.Equal(t, []byte("later"), data[1].Data)
	assert.Equal(t, 1, data[0].SID)

	state, err := b.LinkState(1)
	require.NoError(t, err)
	assert.Equal(t, StateLinked, state)

	require.NoError(t, b.Send(1, 3, []byte("back")))
	h.until(5*time.Second, func() bool { return len(h.filter(0, EventData)) == 1 })
	assert.Equal(t, 1, option(t, a, "GET_OUT_COUNT", 0))
	assert.Equal(t, 1, option(t, b, "GET_IN_COUNT", 0))
}

func TestMeshDedup(t *testing.T) {
	a, addrA := newTestMesh(t, 1)
	b, addrB := newTestMesh(t, 2)
	require.NoError(t, a.SidAdd(2, addrB))
	require.NoError(t, b.SidAdd(1, addrA))

	h := newHarness(t, a, b)
	h.until(5*time.Second, func() bool {
		return linked(a, b)() &&
			option(t, a, "GET_OUT_COUNT", 0) == 1 && option(t, a, "GET_IN_COUNT", 0) == 0 &&
			option(t, b, "GET_OUT_COUNT", 0) == 0 && option(t, b, "GET_IN_COUNT", 0) == 1
	})
	h.run(200 * time.Millisecond)

	for i := range h.meshes {
		assert.Len(t, h.filter(i, EventLinkUp), 1)
		assert.Empty(t, h.filter(i, EventLinkDown))
	}
	assert.Equal(t, 1, a.LinkCount())
	assert.Equal(t, 1, b.LinkCount())

	require.NoError(t, b.Send(1, 9, []byte("after")))
	h.until(5*time.Second, func() bool { return len(h.filter(0, EventData)) == 1 })
}

func TestMeshTokenMismatch(t *testing.T) {
	a, addrA := newTestMesh(t, 1, WithToken("alpha"))
	b, addrB := newTestMesh(t, 2, WithToken("beta"))
	require.NoError(t, a.SidAdd(2, addrB))
	require.NoError(t, b.SidAdd(1, addrA))

	h := newHarness(t, a, b)
	h.until(5*time.Second, func() bool {
		return len(h.filter(0, EventError)) > 0 && len(h.filter(1, EventError)) > 0
	})
	assert.Zero(t, a.LinkCount())
	assert.Zero(t, b.LinkCount())
	for i := range h.meshes {
		assert.Empty(t, h.filter(i, EventLinkUp))
		for _, ev := range h.filter(i, EventError) {
			assert.Contains(t, []int{CodeLoginRejected + loginBadSign, CodeLoginFailed + loginBadSign}, ev.Code)
		}
	}

	t.Run("same_token_links", func(t *testing.T) {
		b.SetToken("alpha")
		h.until(5*time.Second, linked(a, b))
	})
}

func TestMeshAllowList(t *testing.T) {
	a, _ := newTestMesh(t, 1)
	b, addrB := newTestMesh(t, 2)
	require.NoError(t, a.SidAdd(2, addrB))
	require.NoError(t, b.Allow([]string{"10.1.2.3"}))

	h := newHarness(t, a, b)
	h.until(5*time.Second, func() bool {
		state, err := a.LinkState(2)
		return err == nil && state == StateRetrying
	})
	assert.Zero(t, a.LinkCount())
	assert.Zero(t, b.LinkCount())

	require.NoError(t, b.AllowAdd("127.0.0.1"))
	h.until(5*time.Second, linked(a, b))

	assert.Error(t, b.AllowAdd("not-an-ip"))
	assert.Error(t, b.Allow([]string{"127.0.0.1", "nope"}))
}

func TestMeshRedial(t *testing.T) {
	a, addrA := newTestMesh(t, 1)
	b, addrB := newTestMesh(t, 2)
	require.NoError(t, a.SidAdd(2, addrB))
	require.NoError(t, b.SidAdd(1, addrA))

	h := newHarness(t, a, b)
	h.until(5*time.Second, linked(a, b))

	require.NoError(t, a.CloseLink(2, 1234))
	h.until(5*time.Second, func() bool {
		return len(h.filter(0, EventLinkDown)) == 1 && len(h.filter(1, EventLinkDown)) == 1
	})
	assert.Equal(t, 1234, h.filter(0, EventLinkDown)[0].Code)
	assert.Equal(t, asyncnet.CodeRemote, h.filter(1, EventLinkDown)[0].Code)

	h.until(5*time.Second, func() bool {
		return linked(a, b)() && len(h.filter(0, EventLinkUp)) == 2 && len(h.filter(1, EventLinkUp)) == 2
	})
	require.NoError(t, a.Send(2, 1, []byte("again")))
	h.until(5*time.Second, func() bool { return len(h.filter(1, EventData)) == 1 })
}

func TestMeshIdle(t *testing.T) {
	a, addrA := newTestMesh(t, 1, WithIdleTimeout(300*time.Millisecond))
	b, addrB := newTestMesh(t, 2, WithIdleTimeout(300*time.Millisecond))
	require.NoError(t, a.SidAdd(2, addrB))
	require.NoError(t, b.SidAdd(1, addrA))

	h := newHarness(t, a, b)
	h.until(5*time.Second, linked(a, b))
	h.until(5*time.Second, func() bool {
		sa, _ := a.LinkState(2)
		sb, _ := b.LinkState(1)
		return sa == StateIdle && sb == StateIdle
	})
	for i := range h.meshes {
		downs := h.filter(i, EventLinkDown)
		require.NotEmpty(t, downs)
		assert.Equal(t, CodeIdle, downs[len(downs)-1].Code)
	}

	h.run(200 * time.Millisecond)
	assert.Zero(t, a.LinkCount())

	require.NoError(t, a.Send(2, 4, []byte("wake")))
	h.until(5*time.Second, func() bool { return len(h.filter(1, EventData)) == 1 })
	assert.Equal(t, []byte("wake"), h.filter(1, EventData)[0].Data)
}

func TestMeshHeartbeat(t *testing.T) {
	a, _ := newTestMesh(t, 1, WithHeartbeat(50*time.Millisecond))
	b, addrB := newTestMesh(t, 2)
	require.NoError(t, a.SidAdd(2, addrB))
	assert.Equal(t, -1, option(t, a, "GET_PING", 2))

	h := newHarness(t, a, b)
	h.until(5*time.Second, func() bool { return option(t, a, "GET_PING", 2) >= 0 })
	assert.Equal(t, -1, option(t, b, "GET_PING", 1))
}

func TestMeshChange(t *testing.T) {
	a, addrA := newTestMesh(t, 1)
	b, addrB := newTestMesh(t, 2)
	require.NoError(t, a.SidAdd(2, addrB))
	require.NoError(t, b.SidAdd(1, addrA))

	h := newHarness(t, a, b)
	h.until(5*time.Second, linked(a, b))

	require.NoError(t, a.Change(3))
	assert.Equal(t, 3, a.SID())
	h.until(5*time.Second, func() bool {
		return h.has(1, func(ev Event) bool { return ev.Kind == EventLinkUp && ev.SID == 3 })
	})
	assert.True(t, h.has(0, func(ev Event) bool {
		return ev.Kind == EventLinkDown && ev.Code == CodeSidChanged
	}))

	require.NoError(t, a.Send(2, 1, []byte("new id")))
	h.until(5*time.Second, func() bool {
		return h.has(1, func(ev Event) bool { return ev.Kind == EventData && ev.SID == 3 })
	})
	assert.ErrorIs(t, a.Change(0), ErrBadSID)
}

func TestMeshErrors(t *testing.T) {
	_, err := New(context.Background(), 0)
	assert.ErrorIs(t, err, ErrBadSID)

	a, _ := newTestMesh(t, 1)
	assert.ErrorIs(t, a.Send(1, 1, nil), ErrSelf)
	assert.ErrorIs(t, a.Send(99, 1, nil), ErrUnknownSID)
	assert.ErrorIs(t, a.Send(2, 0x10000, nil), ErrBadCommand)
	assert.ErrorIs(t, a.Send(2, -1, nil), ErrBadCommand)
	assert.ErrorIs(t, a.SidAdd(1, "127.0.0.1:1"), ErrSelf)
	assert.ErrorIs(t, a.SidAdd(0, "127.0.0.1:1"), ErrBadSID)
	assert.Error(t, a.SidAdd(3, "bogus"))
	assert.ErrorIs(t, a.SidDel(42), ErrUnknownSID)
	assert.ErrorIs(t, a.CloseLink(2, asyncnet.CodeLocal), ErrNoLink)
	assert.ErrorIs(t, a.Remove(12345, 0), asyncnet.ErrNotFound)
	_, err = a.Port(12345)
	assert.ErrorIs(t, err, asyncnet.ErrNotFound)
	_, err = a.LinkState(42)
	assert.ErrorIs(t, err, ErrUnknownSID)

	t.Run("pending_limit", func(t *testing.T) {
		require.NoError(t, a.SidAdd(2, "127.0.0.1:1"))
		require.NoError(t, a.SetOption("LIMITED", 16))
		require.NoError(t, a.Send(2, 1, []byte("tiny")))
		assert.ErrorIs(t, a.Send(2, 1, make([]byte, 32)), asyncnet.ErrLimited)
	})
}

func TestMeshSidList(t *testing.T) {
	a, _ := newTestMesh(t, 1)
	for _, sid := range []int{5, 3, 2} {
		require.NoError(t, a.SidAdd(sid, fmt.Sprintf("127.0.0.1:%d", 1000+sid)))
	}
	assert.Equal(t, []int{2, 3, 5}, a.SidList())

	state, err := a.LinkState(5)
	require.NoError(t, err)
	assert.Equal(t, StateWantLink, state)

	require.NoError(t, a.SidDel(3))
	assert.Equal(t, []int{2, 5}, a.SidList())
	a.SidClear()
	assert.Empty(t, a.SidList())
}

func TestMeshOptions(t *testing.T) {
	a, _ := newTestMesh(t, 1)

	require.NoError(t, a.SetOption("notify_idle", 30))
	assert.Equal(t, 30, option(t, a, "IDLE", 0))
	require.NoError(t, a.SetOption("ping", 7))
	assert.Equal(t, 7, option(t, a, "HEARTBEAT", 0))

	require.NoError(t, a.SetOption("PROFILE", 1))
	assert.Equal(t, 10, option(t, a, "RETRY_TIMEOUT", 0))
	assert.Equal(t, 0x400000, option(t, a, "LIMITED", 0))
	assert.Equal(t, 600, option(t, a, "NET_TIMEOUT", 0))
	assert.Equal(t, 300, option(t, a, "SIGN_TIMEOUT", 0))

	require.NoError(t, a.SetOption("PROFILE", 0))
	assert.Equal(t, 0, option(t, a, "IDLE", 0))
	assert.Equal(t, 0, option(t, a, "LIMITED", 0))

	assert.ErrorIs(t, a.SetOption("bogus", 1), ErrBadOption)
	assert.ErrorIs(t, a.SetOption("GET_PING", 1), ErrBadOption)
	_, err := a.GetOption("PROFILE", 0)
	assert.ErrorIs(t, err, ErrBadOption)

	assert.Equal(t, defaultEventMask, option(t, a, "EVTMASK", 0))
	assert.Equal(t, LogError|LogWarning, option(t, a, "LOGMASK", 0))
	assert.Equal(t, 10, option(t, a, "HANDSHAKE", 0))
	assert.Equal(t, 0, option(t, a, "GET_OUT_COUNT", 0))
}

func TestMeshEventMask(t *testing.T) {
	a, _ := newTestMesh(t, 1, WithEventMask(int(EventCore)))
	b, addrB := newTestMesh(t, 2)
	require.NoError(t, a.SidAdd(2, addrB))

	h := newHarness(t, a, b)
	h.until(5*time.Second, linked(a, b))
	require.NoError(t, b.Send(1, 1, []byte("data")))
	h.until(5*time.Second, func() bool { return len(h.filter(0, EventData)) == 1 })

	assert.Empty(t, h.filter(0, EventLinkUp))
	assert.True(t, h.has(0, func(ev Event) bool {
		return ev.Kind == EventCore && ev.Core.Kind == asyncnet.EventEstablished
	}))
	assert.Len(t, h.filter(1, EventLinkUp), 1)
	assert.Empty(t, h.filter(1, EventCore))
}

func TestMeshMetrics(t *testing.T) {
	sink := metrics.NewInmemSink(time.Second, time.Minute)
	a, _ := newTestMesh(t, 1, WithMetricSink(sink))
	b, addrB := newTestMesh(t, 2)
	require.NoError(t, a.SidAdd(2, addrB))

	h := newHarness(t, a, b)
	h.until(5*time.Second, linked(a, b))
	require.NoError(t, a.Send(2, 1, []byte("m")))
	h.until(5*time.Second, func() bool { return len(h.filter(1, EventData)) == 1 })

	assert.Equal(t, 1, counter(sink, "asyncnet.notify.data.out.count"))
	assert.Equal(t, 1, counter(sink, "asyncnet.core.connect.count"))
}

// counter sums the samples of every counter whose key starts with name.
func counter(sink *metrics.InmemSink, name string) int {
	n := 0
	for _, iv := range sink.Data() {
		for key, v := range iv.Counters {
			if strings.HasPrefix(key, name) {
				n += v.Count
			}
		}
	}
	return n
}

// readAll reports everything nc receives once the peer closes it.
func readAll(nc net.Conn) <-chan []byte {
	out := make(chan []byte, 1)
	go func() {
		b, _ := io.ReadAll(nc)
		out <- b
	}()
	return out
}

func received(out <-chan []byte, got *[]byte) func() bool {
	return func() bool {
		select {
		case b := <-out:
			*got = b
			return true
		default:
			return false
		}
	}
}

func coreLeave(code int) func(Event) bool {
	return func(ev Event) bool {
		return ev.Kind == EventCore && ev.Core.Kind == asyncnet.EventLeave && ev.Core.Code == code
	}
}

func TestMeshHandshakeWindow(t *testing.T) {
	mask := WithEventMask(int(EventLinkUp | EventLinkDown | EventError | EventCore))

	t.Run("silent_inbound", func(t *testing.T) {
		m, addr := newTestMesh(t, 1, WithHandshakeTimeout(200*time.Millisecond), mask)
		nc, err := net.Dial("tcp", addr)
		require.NoError(t, err)
		defer nc.Close()

		start := time.Now()
		var got []byte
		h := newHarness(t, m)
		h.until(5*time.Second, received(readAll(nc), &got))
		assert.Empty(t, got)
		assert.GreaterOrEqual(t, time.Since(start), 150*time.Millisecond)
		h.until(time.Second, func() bool { return h.has(0, coreLeave(CodeHandshake)) })
		assert.Zero(t, m.LinkCount())
	})

	t.Run("silent_outbound", func(t *testing.T) {
		m, _ := newTestMesh(t, 1, WithHandshakeTimeout(200*time.Millisecond), mask)

		ln, err := net.Listen("tcp", "127.0.0.1:0")
		require.NoError(t, err)
		var (
			wg    sync.WaitGroup
			mu    sync.Mutex
			conns []net.Conn
		)
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				nc, err := ln.Accept()
				if err != nil {
					return
				}
				mu.Lock()
				conns = append(conns, nc)
				mu.Unlock()
			}
		}()
		defer func() {
			ln.Close()
			wg.Wait()
			for _, nc := range conns {
				nc.Close()
			}
		}()

		require.NoError(t, m.SidAdd(9, ln.Addr().String()))
		h := newHarness(t, m)
		h.until(5*time.Second, func() bool { return h.has(0, coreLeave(CodeHandshake)) })

		state, err := m.LinkState(9)
		require.NoError(t, err)
		assert.Equal(t, StateRetrying, state)
		m.mu.Lock()
		failures := m.nodes[9].failures
		m.mu.Unlock()
		assert.GreaterOrEqual(t, failures, 1)
		assert.Empty(t, h.filter(0, EventLinkUp))
	})

	t.Run("data_before_login", func(t *testing.T) {
		m, addr := newTestMesh(t, 1, mask)
		nc, err := net.Dial("tcp", addr)
		require.NoError(t, err)
		defer nc.Close()

		codec, err := frame.New(frame.DwordLSB, 0)
		require.NoError(t, err)
		b, err := codec.Encode(nil, encodeData(5, []byte("early")), 0)
		require.NoError(t, err)
		_, err = nc.Write(b)
		require.NoError(t, err)

		var got []byte
		h := newHarness(t, m)
		h.until(5*time.Second, received(readAll(nc), &got))
		msg, n, err := codec.Decode(got)
		require.NoError(t, err)
		require.Equal(t, len(got), n)
		msgid, reason, _, err := parseHeader(msg.Payload)
		require.NoError(t, err)
		assert.Equal(t, msgError, msgid)
		assert.Equal(t, uint16(errNotLoggedIn), reason)

		h.until(time.Second, func() bool { return h.has(0, coreLeave(CodeUnauthorized)) })
		assert.Empty(t, h.filter(0, EventData))
	})
}

func TestMeshSendAfterCoreDrop(t *testing.T) {
	a, _ := newTestMesh(t, 1)
	b, addrB := newTestMesh(t, 2)
	require.NoError(t, a.SidAdd(2, addrB))

	h := newHarness(t, a, b)
	h.until(5*time.Second, linked(a, b))

	// close the handle underneath the mesh without pumping its LEAVE
	a.mu.Lock()
	hid := a.live[2].hid
	a.mu.Unlock()
	require.NoError(t, a.core.Close(hid, asyncnet.CodeLocal))

	require.NoError(t, a.Send(2, 3, []byte("buffered")))
	a.mu.Lock()
	pending := len(a.nodes[2].pending)
	_, live := a.live[2]
	a.mu.Unlock()
	assert.Equal(t, 1, pending)
	assert.False(t, live)

	h.until(5*time.Second, func() bool {
		return h.has(1, func(ev Event) bool { return ev.Kind == EventData && string(ev.Data) == "buffered" })
	})
}

func TestMeshWake(t *testing.T) {
	a, _ := newTestMesh(t, 1)
	done := make(chan struct{})
	go func() {
		defer close(done)
		time.Sleep(50 * time.Millisecond)
		a.Wake()
	}()
	start := time.Now()
	require.NoError(t, a.Wait(-1))
	assert.Less(t, time.Since(start), 5*time.Second)
	testutil.WaitWithTimeout(t, func() bool {
		select {
		case <-done:
			return true
		default:
			return false
		}
	}, time.Second, 5*time.Millisecond)
}

func TestMeshShutdown(t *testing.T) {
	m, err := New(context.Background(), 1, WithLogger(asyncnet.DevNullLogger), WithMetricSink(&metrics.BlackholeSink{}))
	require.NoError(t, err)
	_, err = m.Listen("127.0.0.1:0", false)
	require.NoError(t, err)

	require.NoError(t, m.Shutdown())
	require.NoError(t, m.Shutdown())
	assert.ErrorIs(t, m.Wait(0), asyncnet.ErrClosed)
	assert.ErrorIs(t, m.Send(2, 1, nil), asyncnet.ErrClosed)
	_, err = m.Listen("127.0.0.1:0", false)
	assert.ErrorIs(t, err, asyncnet.ErrClosed)
	_, ok := m.Read()
	assert.False(t, ok)
}
