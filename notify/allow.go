// Copyright 2025 The go-zeromq Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package notify

import (
	"fmt"
	"net"
	"sync"

	"github.com/destiny/asyncnet"
)

// allowList filters inbound links by source IP. It is consulted by the core
// firewall on the poll goroutine, so it carries its own lock.
type allowList struct {
	mu      sync.RWMutex
	enabled bool
	ips     map[string]struct{}
}

func newAllowList() *allowList {
	return &allowList{ips: make(map[string]struct{})}
}

func normalizeIP(ip string) (string, error) {
	parsed := net.ParseIP(ip)
	if parsed == nil {
		return "", fmt.Errorf("notify: invalid ip %q", ip)
	}
	return parsed.String(), nil
}

func (a *allowList) add(ip string) error {
	key, err := normalizeIP(ip)
	if err != nil {
		return err
	}
	a.mu.Lock()
	a.ips[key] = struct{}{}
	a.mu.Unlock()
	return nil
}

func (a *allowList) del(ip string) error {
	key, err := normalizeIP(ip)
	if err != nil {
		return err
	}
	a.mu.Lock()
	delete(a.ips, key)
	a.mu.Unlock()
	return nil
}

func (a *allowList) clear() {
	a.mu.Lock()
	a.ips = make(map[string]struct{})
	a.mu.Unlock()
}

func (a *allowList) enable(on bool) {
	a.mu.Lock()
	a.enabled = on
	a.mu.Unlock()
}

// permit is installed as the core firewall.
func (a *allowList) permit(remote net.Addr, _ asyncnet.HID) bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if !a.enabled {
		return true
	}
	ta, ok := remote.(*net.TCPAddr)
	if !ok {
		return false
	}
	_, ok = a.ips[ta.IP.String()]
	return ok
}
