////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

// Package envelope defines the encrypted envelope codec and the rumor and
// payload types it transports. Envelopes are relay events whose content is
// ciphertext; relays see nothing but an ephemeral key and a recipient tag.
package envelope

import (
	"github.com/pkg/errors"

	"gitlab.com/quietmesh/murmur/identity"
	"gitlab.com/quietmesh/murmur/relay"
)

// Codec wraps rumors into envelopes and opens inbound envelopes.
type Codec interface {
	// Wrap encrypts the rumor to a single recipient.
	Wrap(rumor *Rumor, recipient identity.PublicKey,
		ident *identity.Identity) (*relay.Event, error)

	// Open decrypts an inbound envelope. It returns nil, not an error,
	// when the envelope is not addressed to the local identity, fails to
	// decrypt, or carries an unverifiable rumor. Callers ignore nil
	// silently.
	Open(ev *relay.Event, ident *identity.Identity) *Rumor
}

// Built holds the result of envelope construction for one logical send.
type Built struct {
	Envelopes []*relay.Event

	// AckID is the envelope ID acknowledgment tracking is keyed on: the
	// self-echo envelope if one was produced, otherwise the first recipient
	// envelope.
	AckID string
}

// BuildEnvelopes produces one envelope per distinct recipient plus, when the
// sender is not already among the recipients, one extra self-addressed echo
// so the sender's other devices can observe the send. The membership check
// is by key equality on the recipient list, nothing cleverer.
func BuildEnvelopes(codec Codec, rumor *Rumor, recipients []identity.PublicKey,
	ident *identity.Identity) (*Built, error) {
	recipients = identity.DedupKeys(recipients)
	if len(recipients) == 0 {
		return nil, errors.New("cannot build envelopes with no recipients")
	}

	built := &Built{}
	selfIncluded := false
	for _, rcpt := range recipients {
		if rcpt.Equal(ident.PubKey) {
			selfIncluded = true
		}
		ev, err := codec.Wrap(rumor, rcpt, ident)
		if err != nil {
			return nil, errors.Wrapf(err,
				"failed to wrap envelope for %s", rcpt)
		}
		built.Envelopes = append(built.Envelopes, ev)
	}
	built.AckID = built.Envelopes[0].ID

	if !selfIncluded {
		echo, err := codec.Wrap(rumor, ident.PubKey, ident)
		if err != nil {
			return nil, errors.Wrap(err, "failed to wrap self-echo envelope")
		}
		built.Envelopes = append(built.Envelopes, echo)
		built.AckID = echo.ID
	}

	return built, nil
}
