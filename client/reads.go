////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

package client

import (
	"time"

	"gitlab.com/quietmesh/murmur/store"
)

// Read accessors. Each runs on the event loop so the store only ever sees one
// caller at a time.

// Sessions lists every session in the local partition.
func (c *Client) Sessions() ([]store.Session, error) {
	var out []store.Session
	var err error
	c.call(func() { out, err = c.st.Sessions(c.ident.PubKey.Hex()) })
	return out, err
}

// ActiveMembers lists the session's current member snapshot.
func (c *Client) ActiveMembers(sessionID string) ([]store.Member, error) {
	var out []store.Member
	var err error
	c.call(func() {
		out, err = c.st.ActiveMembers(c.ident.PubKey.Hex(), sessionID)
	})
	return out, err
}

// RootMessages lists the session's stored posts.
func (c *Client) RootMessages(sessionID string) ([]store.Message, error) {
	var out []store.Message
	var err error
	c.call(func() {
		out, err = c.st.RootMessages(c.ident.PubKey.Hex(), sessionID)
	})
	return out, err
}

// ReactionsForMessage lists the reactions on a post by its root ID.
func (c *Client) ReactionsForMessage(rootID string) ([]store.Reaction, error) {
	var out []store.Reaction
	var err error
	c.call(func() {
		out, err = c.st.ReactionsForMessage(c.ident.PubKey.Hex(), rootID)
	})
	return out, err
}

// MarkRead records that the local user has seen a post. Purely local; nothing
// is published.
func (c *Client) MarkRead(eventID string) error {
	var err error
	now := time.Now().Unix()
	c.call(func() {
		err = c.st.MarkRead(c.ident.PubKey.Hex(), eventID, now)
	})
	return err
}
