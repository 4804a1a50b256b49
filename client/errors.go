////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

package client

import (
	"github.com/pkg/errors"

	"gitlab.com/quietmesh/murmur/ack"
)

// Error taxonomy of user-initiated operations. Validation errors fail fast
// before any network attempt; relay errors surface only once an operation's
// entire expected relay set is exhausted.
var (
	// ErrUnconfigured means no identity exists yet.
	ErrUnconfigured = errors.New("no identity is configured")

	// ErrNoRelays means the user has no (valid) relays enabled at all.
	ErrNoRelays = errors.New("no relays are enabled")

	// ErrRelayUnavailable means no relay was connected within the readiness
	// window.
	ErrRelayUnavailable = errors.New("no relay connection is available")

	// ErrInvalidRecipient means a recipient key failed to parse.
	ErrInvalidRecipient = errors.New("invalid recipient key")

	// ErrInvalidPayload means local validation rejected the payload before
	// anything was sent.
	ErrInvalidPayload = errors.New("invalid payload")

	// ErrStoreFailure wraps persistence errors on the send path.
	ErrStoreFailure = errors.New("local storage failure")
)

// UserMessage maps an operation error to a short actionable string for
// display. Empty for nil.
func UserMessage(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrUnconfigured):
		return "set up an identity first"
	case errors.Is(err, ErrNoRelays):
		return "no relays enabled"
	case errors.Is(err, ErrRelayUnavailable):
		return "offline, waiting for a relay connection"
	case errors.Is(err, ErrInvalidRecipient):
		return "that recipient key isn't valid"
	case errors.Is(err, ErrInvalidPayload):
		return "that can't be sent"
	case errors.Is(err, ack.ErrTimedOut):
		return "couldn't confirm send, try again"
	case errors.Is(err, ack.ErrRejected):
		return "the relays rejected this send"
	case errors.Is(err, ack.ErrShutdown):
		return "send cancelled"
	case errors.Is(err, ErrStoreFailure):
		return "couldn't save locally, try again"
	default:
		return "something went wrong, try again"
	}
}
