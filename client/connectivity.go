////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

package client

import "gitlab.com/quietmesh/murmur/relay"

// Connectivity is the client's aggregate view of the relay mesh.
type Connectivity int

const (
	// NoRelays means the user has zero relays configured or every
	// configured URL was invalid.
	NoRelays Connectivity = iota
	// Online means at least one relay is connected and writable.
	Online
	// ReadOnly means relays are connected but every one of them has
	// rejected our writes.
	ReadOnly
	// Reconnecting means no relay is connected but at least one connection
	// attempt is in progress or scheduled.
	Reconnecting
	// Offline means every configured relay is down with no attempt running.
	Offline
)

// String adheres to the fmt.Stringer interface.
func (c Connectivity) String() string {
	switch c {
	case NoRelays:
		return "noRelays"
	case Online:
		return "online"
	case ReadOnly:
		return "readOnly"
	case Reconnecting:
		return "reconnecting"
	case Offline:
		return "offline"
	default:
		return "unknown"
	}
}

// deriveConnectivity folds the per-relay states and the write-rejection set
// into one aggregate value.
func deriveConnectivity(states map[string]relay.State,
	writeRejected map[string]bool) Connectivity {
	usable := 0
	connected := 0
	connecting := 0
	writable := 0
	for u, s := range states {
		if s == relay.StateFailed {
			continue
		}
		usable++
		switch s {
		case relay.StateConnected:
			connected++
			if !writeRejected[u] {
				writable++
			}
		case relay.StateConnecting, relay.StateDisconnected:
			// Disconnected relays always carry a scheduled retry.
			connecting++
		}
	}

	switch {
	case usable == 0:
		return NoRelays
	case writable > 0:
		return Online
	case connected > 0:
		return ReadOnly
	case connecting > 0:
		return Reconnecting
	default:
		return Offline
	}
}
