////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

package reconcile

import "gitlab.com/quietmesh/murmur/identity"

// ContactResolver supplies best-effort display names for public keys. An
// empty return means unknown. Backfill can deliver a post before the session
// that owns it; the eagerly-created session is named through this.
type ContactResolver interface {
	DisplayName(key identity.PublicKey) string
}

// NotificationSink receives fire-and-forget local notifications for remote
// activity. Implementations must not block.
type NotificationSink interface {
	Notify(kind, senderLabel, body, threadID string)
}

// RefreshEnqueue requests link-preview metadata for a stored message.
type RefreshEnqueue func(messageID string)

// NopContacts is a ContactResolver that knows nobody.
type NopContacts struct{}

func (NopContacts) DisplayName(identity.PublicKey) string { return "" }

// NopSink is a NotificationSink that drops everything.
type NopSink struct{}

func (NopSink) Notify(kind, senderLabel, body, threadID string) {}
