////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

package relay

import "time"

// Params holds the tunables of the connection manager.
type Params struct {
	// HandshakeTimeout bounds the websocket dial handshake.
	HandshakeTimeout time.Duration

	// ReconnectInitial is the first reconnect delay after a drop. Delays
	// grow from here toward ReconnectMax while a relay stays unreachable and
	// reset once it connects.
	ReconnectInitial time.Duration
	ReconnectMax     time.Duration
}

// GetDefaultParams returns the default connection manager tunables.
func GetDefaultParams() Params {
	return Params{
		HandshakeTimeout: 10 * time.Second,
		ReconnectInitial: 2 * time.Second,
		ReconnectMax:     time.Minute,
	}
}
