////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

package client

import (
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	jww "github.com/spf13/jwalterweatherman"

	"gitlab.com/quietmesh/murmur/ack"
	"gitlab.com/quietmesh/murmur/catalog"
	"gitlab.com/quietmesh/murmur/emoji"
	"gitlab.com/quietmesh/murmur/envelope"
	"gitlab.com/quietmesh/murmur/identity"
)

// CreateSession starts a new session with the given members and fans the
// creation event out to each of them. The local identity is always part of
// the member set. Returns the new session ID once at least one relay has
// acknowledged the publish and the session is stored locally.
func (c *Client) CreateSession(name string, memberKeys []string) (
	string, error) {
	recipients, err := parseRecipients(memberKeys)
	if err != nil {
		c.recordError(err)
		return "", err
	}
	recipients = append(recipients, c.ident.PubKey)
	recipients = identity.DedupKeys(recipients)

	sessionID := uuid.NewString()
	p := &envelope.Payload{
		Type:           catalog.SessionCreate,
		ConversationID: sessionID,
		RootID:         uuid.NewString(),
		Timestamp:      time.Now().Unix(),
		Name:           name,
		MemberKeys:     hexKeys(recipients),
	}

	if err = c.sendPayload(p, recipients); err != nil {
		return "", err
	}
	return sessionID, nil
}

// UpdateMembers replaces the session's member snapshot. The event goes to the
// union of the old and new member sets so removed members learn of their
// removal.
func (c *Client) UpdateMembers(sessionID string, memberKeys []string) error {
	newMembers, err := parseRecipients(memberKeys)
	if err != nil {
		c.recordError(err)
		return err
	}
	newMembers = append(newMembers, c.ident.PubKey)
	newMembers = identity.DedupKeys(newMembers)

	current, err := c.sessionRecipients(sessionID)
	if err != nil {
		c.recordError(err)
		return err
	}

	p := &envelope.Payload{
		Type:           catalog.SessionMembers,
		ConversationID: sessionID,
		RootID:         uuid.NewString(),
		Timestamp:      time.Now().Unix(),
		MemberKeys:     hexKeys(newMembers),
	}

	recipients := identity.DedupKeys(append(current, newMembers...))
	return c.sendPayload(p, recipients)
}

// CreateRootPost shares a URL with an optional note into the session and
// returns the new post's root ID.
func (c *Client) CreateRootPost(sessionID, url, note string) (string, error) {
	if url == "" {
		err := errors.Wrap(ErrInvalidPayload, "post needs a URL")
		c.recordError(err)
		return "", err
	}

	recipients, err := c.sessionRecipients(sessionID)
	if err != nil {
		c.recordError(err)
		return "", err
	}

	rootID := uuid.NewString()
	p := &envelope.Payload{
		Type:           catalog.Root,
		ConversationID: sessionID,
		RootID:         rootID,
		Timestamp:      time.Now().Unix(),
		URL:            url,
		Note:           note,
	}

	if err = c.sendPayload(p, recipients); err != nil {
		return "", err
	}
	return rootID, nil
}

// ToggleReaction sets or clears a single-emoji reaction on the post with the
// given root ID.
func (c *Client) ToggleReaction(sessionID, rootID, emojiChar string,
	active bool) error {
	if err := emoji.ValidateReaction(emojiChar); err != nil {
		err = errors.Wrap(ErrInvalidPayload, err.Error())
		c.recordError(err)
		return err
	}

	recipients, err := c.sessionRecipients(sessionID)
	if err != nil {
		c.recordError(err)
		return err
	}

	p := &envelope.Payload{
		Type:           catalog.Reaction,
		ConversationID: sessionID,
		RootID:         rootID,
		Timestamp:      time.Now().Unix(),
		Emoji:          emojiChar,
		Active:         active,
	}
	return c.sendPayload(p, recipients)
}

// sendPayload is the shared publish path: await a relay, build and sign the
// rumor, wrap one envelope per recipient plus the self-echo, publish, wait
// for the acknowledgment outcome, and on success fold the event into local
// state through the same reconciler remote events go through.
func (c *Client) sendPayload(p *envelope.Payload,
	recipients []identity.PublicKey) error {
	if c.idStore.CurrentIdentity() == nil {
		c.recordError(ErrUnconfigured)
		return ErrUnconfigured
	}
	if c.relays.NumConfigured() == 0 {
		c.recordError(ErrNoRelays)
		return ErrNoRelays
	}
	if err := c.awaitReady(); err != nil {
		c.recordError(err)
		return err
	}

	var rumor *envelope.Rumor
	resCh := make(chan ack.Result, 1)
	var sendErr error
	c.call(func() {
		body, err := p.Encode()
		if err != nil {
			sendErr = errors.Wrap(ErrInvalidPayload, err.Error())
			return
		}
		rumor, err = envelope.NewRumor(c.ident, p.Timestamp, body)
		if err != nil {
			sendErr = err
			return
		}
		built, err := envelope.BuildEnvelopes(
			c.codec, rumor, recipients, c.ident)
		if err != nil {
			sendErr = err
			return
		}

		var expected []string
		for _, ev := range built.Envelopes {
			urls, pubErr := c.relays.Publish(ev)
			if pubErr != nil {
				sendErr = pubErr
				return
			}
			if ev.ID == built.AckID {
				expected = urls
			}
		}
		if len(expected) == 0 {
			// Every relay dropped between the readiness check and the write.
			sendErr = ErrRelayUnavailable
			return
		}

		c.tracker.Register(built.AckID, rumor.ID, expected,
			c.params.AckTimeout, func(r ack.Result) { resCh <- r })
	})
	if sendErr != nil {
		c.recordError(sendErr)
		return sendErr
	}

	res := <-resCh
	if res.Err != nil {
		jww.WARN.Printf("Publish of rumor %s failed: %+v", rumor.ID, res.Err)
		c.recordError(res.Err)
		return res.Err
	}

	var applyErr error
	c.call(func() { applyErr = c.rec.Apply(rumor, p) })
	if applyErr != nil {
		applyErr = errors.Wrapf(ErrStoreFailure, "%+v", applyErr)
		c.recordError(applyErr)
		return applyErr
	}
	return nil
}

// awaitReady blocks until at least one relay is connected, re-kicking the
// reconnect machinery on every poll, or gives up after the readiness window.
func (c *Client) awaitReady() error {
	deadline := time.Now().Add(c.params.ReadinessTimeout)
	for {
		if len(c.relays.ConnectedURLs()) > 0 {
			return nil
		}
		if time.Now().After(deadline) {
			return ErrRelayUnavailable
		}
		c.relays.Reconnect()
		time.Sleep(c.params.ReadinessPollInterval)
	}
}

// sessionRecipients resolves the session's active member set for fan-out.
func (c *Client) sessionRecipients(sessionID string) (
	[]identity.PublicKey, error) {
	ownerKey := c.ident.PubKey.Hex()

	var keys []identity.PublicKey
	var lookupErr error
	c.call(func() {
		s, err := c.st.SessionByID(ownerKey, sessionID)
		if err != nil {
			lookupErr = errors.Wrapf(ErrStoreFailure, "%+v", err)
			return
		}
		if s == nil {
			lookupErr = errors.Wrapf(ErrInvalidPayload,
				"unknown session %s", sessionID)
			return
		}
		members, err := c.st.ActiveMembers(ownerKey, sessionID)
		if err != nil {
			lookupErr = errors.Wrapf(ErrStoreFailure, "%+v", err)
			return
		}
		for _, m := range members {
			pk, err := identity.ParsePublicKey(m.MemberKey)
			if err != nil {
				jww.WARN.Printf("Skipping unparseable member key %q in "+
					"session %s", m.MemberKey, sessionID)
				continue
			}
			keys = append(keys, pk)
		}
	})
	if lookupErr != nil {
		return nil, lookupErr
	}

	keys = append(keys, c.ident.PubKey)
	return identity.DedupKeys(keys), nil
}

// parseRecipients parses user-supplied hex keys, failing on the first bad
// one.
func parseRecipients(memberKeys []string) ([]identity.PublicKey, error) {
	keys := make([]identity.PublicKey, 0, len(memberKeys))
	for _, s := range memberKeys {
		pk, err := identity.ParsePublicKey(s)
		if err != nil {
			return nil, errors.Wrapf(ErrInvalidRecipient, "%q", s)
		}
		keys = append(keys, pk)
	}
	return identity.DedupKeys(keys), nil
}

func hexKeys(keys []identity.PublicKey) []string {
	out := make([]string, len(keys))
	for i, k := range keys {
		out[i] = k.Hex()
	}
	return out
}
