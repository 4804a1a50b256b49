////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

package client

import (
	"time"

	"gitlab.com/quietmesh/murmur/relay"
)

// Params holds the orchestrator's tunables.
type Params struct {
	// AckTimeout bounds how long a publish waits for any relay to
	// acknowledge before failing.
	AckTimeout time.Duration

	// ReadinessPollInterval and ReadinessTimeout shape the send path's
	// await-relay loop: connectivity is polled at the interval, re-kicking
	// a connection attempt each time, until the overall timeout.
	ReadinessPollInterval time.Duration
	ReadinessTimeout      time.Duration

	// BackfillPageSize is the per-page envelope limit of historical
	// queries.
	BackfillPageSize int

	Relay relay.Params
}

// GetDefaultParams returns the default orchestrator tunables.
func GetDefaultParams() Params {
	return Params{
		AckTimeout:            30 * time.Second,
		ReadinessPollInterval: time.Second,
		ReadinessTimeout:      20 * time.Second,
		BackfillPageSize:      500,
		Relay:                 relay.GetDefaultParams(),
	}
}
