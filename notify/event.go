// Copyright 2025 The go-zeromq Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package notify

import (
	"fmt"

	"github.com/destiny/asyncnet"
)

// EventKind is the type of a mesh Event. Kinds other than EventData are bit
// flags selected by the EVTMASK option.
type EventKind int

const (
	EventData     EventKind = 1
	EventLinkUp   EventKind = 2
	EventLinkDown EventKind = 8
	EventError    EventKind = 32
	EventCore     EventKind = 64
)

const defaultEventMask = int(EventLinkUp | EventLinkDown | EventError)

func (k EventKind) String() string {
	switch k {
	case EventData:
		return "DATA"
	case EventLinkUp:
		return "LINK_UP"
	case EventLinkDown:
		return "LINK_DOWN"
	case EventError:
		return "ERROR"
	case EventCore:
		return "CORE"
	}
	return fmt.Sprintf("EventKind(%d)", int(k))
}

// Event is one notification drained with Mesh.Read.
//
// EventData carries the sender SID, the application Cmd and Data.
// EventLinkUp and EventLinkDown report a peer becoming reachable or not,
// with the close Code for the latter. EventError carries a Code for a
// failed handshake or an error reported by the peer. EventCore wraps the
// raw core event in Core.
type Event struct {
	Kind EventKind
	SID  int
	Cmd  int
	Code int
	Data []byte
	Core asyncnet.Event
}

func (e Event) String() string {
	switch e.Kind {
	case EventData:
		return fmt.Sprintf("DATA sid=%d cmd=%d len=%d", e.SID, e.Cmd, len(e.Data))
	case EventCore:
		return "CORE " + e.Core.String()
	}
	return fmt.Sprintf("%v sid=%d code=%d", e.Kind, e.SID, e.Code)
}
