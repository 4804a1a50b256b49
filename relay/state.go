////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

package relay

// State is the lifecycle state of a single relay connection.
type State int

const (
	// StateConnecting means a dial is in progress.
	StateConnecting State = iota
	// StateConnected means the socket is up and subscriptions are installed.
	StateConnected
	// StateDisconnected means the socket dropped; a reconnect is scheduled.
	StateDisconnected
	// StateFailed means the relay URL is unusable and will not be retried.
	StateFailed
)

// String adheres to the fmt.Stringer interface.
func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateDisconnected:
		return "disconnected"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}
