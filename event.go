// Copyright 2025 The go-zeromq Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package asyncnet

import (
	"errors"
	"fmt"
)

var (
	ErrClosed       = errors.New("asyncnet: core closed")
	ErrNotFound     = errors.New("asyncnet: no such handle")
	ErrBadMode      = errors.New("asyncnet: operation not supported by handle mode")
	ErrNotConnected = errors.New("asyncnet: handle not connected")
	ErrQueueFull    = errors.New("asyncnet: event queue full")
	ErrLimited      = errors.New("asyncnet: send backlog limit exceeded")
	ErrTooManyConns = errors.New("asyncnet: handle table full")
	ErrBadOption    = errors.New("asyncnet: unknown option")
)

// HID identifies a connection managed by a Core. Valid handles are positive.
type HID int64

// Slot returns the arena index encoded in the handle.
func (h HID) Slot() int { return int(h & 0xffff) }

func (h HID) String() string { return fmt.Sprintf("hid:%d/%d", h.Slot(), int64(h)>>16) }

// Mode is the role of a connection, fixed at creation.
type Mode int

const (
	ModeInbound  Mode = 1
	ModeOutbound Mode = 2
	ModeListen4  Mode = 3
	ModeListen6  Mode = 4
	ModeAssign   Mode = 5
)

func (m Mode) String() string {
	switch m {
	case ModeInbound:
		return "IN"
	case ModeOutbound:
		return "OUT"
	case ModeListen4:
		return "LISTEN4"
	case ModeListen6:
		return "LISTEN6"
	case ModeAssign:
		return "ASSIGN"
	}
	return fmt.Sprintf("Mode(%d)", int(m))
}

func (m Mode) listener() bool { return m == ModeListen4 || m == ModeListen6 }

// EventKind is the type of an Event.
type EventKind int

const (
	EventNew EventKind = iota
	EventLeave
	EventEstablished
	EventData
	EventProgress
	EventPush
)

func (k EventKind) String() string {
	switch k {
	case EventNew:
		return "NEW"
	case EventLeave:
		return "LEAVE"
	case EventEstablished:
		return "ESTAB"
	case EventData:
		return "DATA"
	case EventProgress:
		return "PROGRESS"
	case EventPush:
		return "PUSH"
	}
	return fmt.Sprintf("EventKind(%d)", int(k))
}

// Close codes carried by LEAVE events.
const (
	CodeRemote        = 0
	CodeLocal         = 1000
	CodeConnect       = 2000
	CodeMalformed     = 2001
	CodeOversize      = 2002
	CodeConnectFailed = 2004
	CodeSendError     = 2005
	CodeTimeout       = 2006
	CodeLimited       = 2007
	CodeShutdown      = 2008
)

// Event is one notification drained with Core.Read.
//
// For NEW, Aux is the listener handle of an accepted connection, 0 for an
// outbound or assigned one and -1 for a listener, and Data holds the peer
// info blob. For LEAVE, Code tells why and Err carries the socket error if
// any. For PUSH, HID and Aux are the posted parameters. Otherwise Aux is the
// handle tag.
type Event struct {
	Kind EventKind
	HID  HID
	Aux  int64
	Mask byte
	Code int
	Err  error
	Data []byte
}

func (e Event) String() string {
	switch e.Kind {
	case EventLeave:
		return fmt.Sprintf("LEAVE %v code=%d", e.HID, e.Code)
	case EventData:
		return fmt.Sprintf("DATA %v len=%d", e.HID, len(e.Data))
	}
	return fmt.Sprintf("%v %v aux=%d", e.Kind, e.HID, e.Aux)
}
