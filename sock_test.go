// Copyright 2025 The go-zeromq Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package asyncnet

import (
	"context"
	"errors"
	"io"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/destiny/asyncnet/frame"
	"github.com/destiny/asyncnet/internal/testutil"
)

func newTestSock(t *testing.T) *Sock {
	t.Helper()
	s := NewSock(context.Background(), WithLogger(DevNullLogger), WithLinger(100*time.Millisecond))
	t.Cleanup(func() { require.NoError(t, s.Close()) })
	return s
}

// processUntil drives s until cond holds.
func processUntil(t *testing.T, s *Sock, cond func() bool) {
	t.Helper()
	ok := testutil.Loop(t, 5*time.Second, func() bool {
		if err := s.Process(10 * time.Millisecond); err != nil && !errors.Is(err, ErrNotConnected) {
			require.NoError(t, err)
		}
		return cond()
	})
	require.True(t, ok, "sock %v, err %v", s.State(), s.Err())
}

func recvInto(s *Sock, got *[]byte) func() bool {
	return func() bool {
		b, ok := s.Recv()
		if ok {
			*got = b
		}
		return ok
	}
}

func TestSockConnect(t *testing.T) {
	co := newTestCore(t)
	lh, addr := listen(t, co, frame.WordLSB)

	s := newTestSock(t)
	assert.Equal(t, SockClosed, s.State())
	require.NoError(t, s.Connect(addr, frame.WordLSB))
	assert.Equal(t, SockConnecting, s.State())
	require.NoError(t, s.SetNoDelay(true))

	// queued until the dial completes
	_, err := s.Send([]byte("ping"))
	require.NoError(t, err)

	var server HID
	evs := pump(t, co, 5*time.Second, func(ev Event) bool {
		if ev.Kind == EventNew && ev.Aux == int64(lh) {
			server = ev.HID
		}
		return ev.Kind == EventData && ev.HID == server
	})
	assert.Equal(t, "ping", string(evs[len(evs)-1].Data))

	_, err = co.Send(server, []byte("pong"))
	require.NoError(t, err)
	var got []byte
	processUntil(t, s, recvInto(s, &got))
	assert.Equal(t, "pong", string(got))
	assert.Equal(t, SockEstablished, s.State())
	assert.NotNil(t, s.LocalAddr())
	assert.Equal(t, addr, s.RemoteAddr().String())
	processUntil(t, s, func() bool { return s.Remain() == 0 })

	t.Run("socket_options", func(t *testing.T) {
		assert.NoError(t, s.SetSysBuffer(1<<16, 1<<16))
		assert.NoError(t, s.SetKeepAlive(time.Minute))
		assert.NoError(t, s.SetKeepAlive(0))
		rc, err := s.SyscallConn()
		require.NoError(t, err)
		assert.NotNil(t, rc)
	})

	t.Run("rc4", func(t *testing.T) {
		require.NoError(t, s.SetSendKey([]byte("upstream")))
		require.NoError(t, co.SetRecvKey(server, []byte("upstream")))
		_, err := s.Send([]byte("secret"))
		require.NoError(t, err)
		evs := pump(t, co, 5*time.Second, func(ev Event) bool {
			return ev.Kind == EventData && ev.HID == server
		})
		assert.Equal(t, "secret", string(evs[len(evs)-1].Data))

		require.NoError(t, co.SetSendKey(server, []byte("downstream")))
		require.NoError(t, s.SetRecvKey([]byte("downstream")))
		_, err = co.Send(server, []byte("reply"))
		require.NoError(t, err)
		var got []byte
		processUntil(t, s, recvInto(s, &got))
		assert.Equal(t, "reply", string(got))
	})

	t.Run("remote_close", func(t *testing.T) {
		require.NoError(t, co.Close(server, 0))
		processUntil(t, s, func() bool { return s.State() == SockClosed })
		assert.ErrorIs(t, s.Err(), io.EOF)
		_, err := s.Send([]byte("late"))
		assert.ErrorIs(t, err, ErrNotConnected)
		assert.ErrorIs(t, s.Process(0), ErrNotConnected)
		assert.ErrorIs(t, s.SetNoDelay(true), ErrNotConnected)
	})

	t.Run("reconnect", func(t *testing.T) {
		require.NoError(t, s.Connect(addr, frame.WordLSB))
		processUntil(t, s, func() bool { return s.State() == SockEstablished })
		assert.NoError(t, s.Err())
	})
}

func TestSockConnectFailure(t *testing.T) {
	addr, err := testutil.GetTestAddress()
	require.NoError(t, err)

	s := newTestSock(t)
	require.NoError(t, s.Connect(addr, frame.DwordLSB))
	processUntil(t, s, func() bool { return s.State() == SockClosed })
	assert.Error(t, s.Err())

	assert.ErrorIs(t, s.Connect(addr, frame.Header(99)), frame.ErrBadHeader)
}

func TestSockAssign(t *testing.T) {
	a, b := net.Pipe()
	defer b.Close()

	s := newTestSock(t)
	require.NoError(t, s.Assign(a, frame.LineSplit))
	assert.Equal(t, SockEstablished, s.State())
	assert.ErrorIs(t, s.SetNoDelay(true), ErrBadMode, "pipes have no TCP options")

	go b.Write([]byte("hi\n"))
	var got []byte
	processUntil(t, s, recvInto(s, &got))
	assert.Equal(t, "hi", string(got))

	_, err := s.Send([]byte("yo"))
	require.NoError(t, err)
	buf := make([]byte, 3)
	_, err = io.ReadFull(b, buf)
	require.NoError(t, err)
	assert.Equal(t, "yo\n", string(buf))

	require.NoError(t, s.Close())
	assert.Equal(t, SockClosed, s.State())
	assert.NoError(t, s.Err())
}

func TestSockMalformedFrame(t *testing.T) {
	a, b := net.Pipe()
	defer b.Close()

	s := newTestSock(t)
	require.NoError(t, s.Assign(a, frame.WordLSB))
	go b.Write([]byte{1, 0})
	processUntil(t, s, func() bool {
		s.Recv()
		return s.State() == SockClosed
	})
	assert.ErrorIs(t, s.Err(), frame.ErrMalformed)
}

func TestSockBacklogLimit(t *testing.T) {
	a, b := net.Pipe()
	defer b.Close()

	s := NewSock(context.Background(), WithLogger(DevNullLogger), WithLimit(16, 0), WithLinger(10*time.Millisecond))
	t.Cleanup(func() { require.NoError(t, s.Close()) })
	require.NoError(t, s.Assign(a, frame.DwordLSB))

	// nobody reads b, so the first write stays in flight
	_, err := s.Send(make([]byte, 8))
	require.NoError(t, err)
	_, err = s.Send(make([]byte, 8))
	assert.ErrorIs(t, err, ErrLimited)
	assert.Equal(t, SockClosed, s.State())
	assert.ErrorIs(t, s.Err(), ErrLimited)
}
