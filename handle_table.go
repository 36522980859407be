// Copyright 2025 The go-zeromq Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package asyncnet

import (
	"github.com/google/btree"
)

const maxSlots = 0x10000

type orderKey struct {
	seq uint64
	hid HID
}

// handleTable maps handles to connections. Connections live in an arena
// indexed by the low 16 bits of the handle; the upper bits hold a serial so
// that a recycled slot never yields a handle seen before. A btree keyed by
// insertion sequence provides ordered enumeration.
type handleTable struct {
	slots  []*conn
	free   []int
	serial int64
	seq    uint64
	order  *btree.BTreeG[orderKey]
}

func newHandleTable() *handleTable {
	return &handleTable{
		order: btree.NewG(16, func(a, b orderKey) bool { return a.seq < b.seq }),
	}
}

func (t *handleTable) alloc(c *conn) (HID, error) {
	var slot int
	if n := len(t.free); n > 0 {
		slot = t.free[n-1]
		t.free = t.free[:n-1]
	} else {
		if len(t.slots) >= maxSlots {
			return 0, ErrTooManyConns
		}
		slot = len(t.slots)
		t.slots = append(t.slots, nil)
	}
	t.serial++
	t.seq++
	c.hid = HID(t.serial<<16 | int64(slot))
	c.seq = t.seq
	t.slots[slot] = c
	t.order.ReplaceOrInsert(orderKey{seq: c.seq, hid: c.hid})
	return c.hid, nil
}

func (t *handleTable) get(hid HID) *conn {
	if hid <= 0 {
		return nil
	}
	slot := hid.Slot()
	if slot >= len(t.slots) {
		return nil
	}
	c := t.slots[slot]
	if c == nil || c.hid != hid {
		return nil
	}
	return c
}

func (t *handleTable) remove(hid HID) *conn {
	c := t.get(hid)
	if c == nil {
		return nil
	}
	t.slots[hid.Slot()] = nil
	t.free = append(t.free, hid.Slot())
	t.order.Delete(orderKey{seq: c.seq})
	return c
}

func (t *handleTable) len() int { return t.order.Len() }

func (t *handleTable) head() (HID, bool) {
	k, ok := t.order.Min()
	return k.hid, ok
}

func (t *handleTable) next(hid HID) (HID, bool) {
	c := t.get(hid)
	if c == nil {
		return 0, false
	}
	var (
		res HID
		ok  bool
	)
	t.order.AscendGreaterOrEqual(orderKey{seq: c.seq + 1}, func(k orderKey) bool {
		res, ok = k.hid, true
		return false
	})
	return res, ok
}

func (t *handleTable) prev(hid HID) (HID, bool) {
	c := t.get(hid)
	if c == nil || c.seq == 0 {
		return 0, false
	}
	var (
		res HID
		ok  bool
	)
	t.order.DescendLessOrEqual(orderKey{seq: c.seq - 1}, func(k orderKey) bool {
		res, ok = k.hid, true
		return false
	})
	return res, ok
}

// each visits connections in insertion order until fn returns false.
// fn must not mutate the table.
func (t *handleTable) each(fn func(c *conn) bool) {
	t.order.Ascend(func(k orderKey) bool {
		return fn(t.get(k.hid))
	})
}

// snapshot returns the live connections in insertion order.
func (t *handleTable) snapshot() []*conn {
	out := make([]*conn, 0, t.len())
	t.each(func(c *conn) bool {
		out = append(out, c)
		return true
	})
	return out
}
