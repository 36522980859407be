// Copyright 2025 The go-zeromq Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package testutil

import (
	"crypto/rand"
	"encoding/hex"
	"sync"
	"testing"
	"time"
)

// Loop repeatedly calls step until it reports true or timeout elapses.
// step typically waits on a core and drains its events.
func Loop(t testing.TB, timeout time.Duration, step func() bool) bool {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if step() {
			return true
		}
	}
	return false
}

// WaitWithTimeout waits for a condition with timeout
func WaitWithTimeout(t testing.TB, condition func() bool, timeout time.Duration, checkInterval time.Duration) {
	t.Helper()
	ticker := time.NewTicker(checkInterval)
	defer ticker.Stop()
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		select {
		case <-timer.C:
			t.Fatalf("Timeout waiting for condition after %v", timeout)
		case <-ticker.C:
			if condition() {
				return
			}
		}
	}
}

// MessageTracker records payloads per source in arrival order
type MessageTracker struct {
	mu       sync.Mutex
	received map[int64][]string
}

// NewMessageTracker creates a new message tracker
func NewMessageTracker() *MessageTracker {
	return &MessageTracker{received: make(map[int64][]string)}
}

// MarkReceived appends msg to the sequence of src
func (mt *MessageTracker) MarkReceived(src int64, msg string) {
	mt.mu.Lock()
	defer mt.mu.Unlock()
	mt.received[src] = append(mt.received[src], msg)
}

// Received returns a copy of what src delivered so far
func (mt *MessageTracker) Received(src int64) []string {
	mt.mu.Lock()
	defer mt.mu.Unlock()
	return append([]string(nil), mt.received[src]...)
}

// Count returns the number of messages from all sources
func (mt *MessageTracker) Count() int {
	mt.mu.Lock()
	defer mt.mu.Unlock()
	n := 0
	for _, v := range mt.received {
		n += len(v)
	}
	return n
}

// NewTestToken returns a random hex token for authenticated meshes
func NewTestToken(t testing.TB) string {
	t.Helper()
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		t.Fatalf("token: %v", err)
	}
	return hex.EncodeToString(b)
}
