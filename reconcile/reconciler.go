////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

// Package reconcile folds rumors into stored state under one rule: an event
// is applied iff its timestamp is at least the target row's watermark. The
// rule is the same whether the event was authored locally or arrived from a
// relay, live or backfilled, in order or not; all ordering correctness
// derives from it rather than from transport order.
package reconcile

import (
	"github.com/pkg/errors"
	jww "github.com/spf13/jwalterweatherman"

	"gitlab.com/quietmesh/murmur/catalog"
	"gitlab.com/quietmesh/murmur/emoji"
	"gitlab.com/quietmesh/murmur/envelope"
	"gitlab.com/quietmesh/murmur/identity"
	"gitlab.com/quietmesh/murmur/store"
)

// fallbackSessionName names sessions created without any better information.
const fallbackSessionName = "Session"

// Reconciler applies decoded payloads to the owner's partition of the store.
// Owned by the client's event loop.
type Reconciler struct {
	ownerKey string
	localKey identity.PublicKey

	st             store.Store
	contacts       ContactResolver
	enqueueRefresh RefreshEnqueue
	notify         NotificationSink
}

// New builds a Reconciler for the given owner.
func New(localKey identity.PublicKey, st store.Store,
	contacts ContactResolver, enqueueRefresh RefreshEnqueue,
	notify NotificationSink) *Reconciler {
	return &Reconciler{
		ownerKey:       localKey.Hex(),
		localKey:       localKey,
		st:             st,
		contacts:       contacts,
		enqueueRefresh: enqueueRefresh,
		notify:         notify,
	}
}

// Apply folds one rumor into stored state. The returned error is a store
// failure; callers on the inbound path report it and continue, while the
// send path surfaces it to the user. Payloads that fail domain validation
// (e.g. a multi-character reaction) are dropped with a nil return; they are
// bad input, not a local fault.
func (r *Reconciler) Apply(rumor *envelope.Rumor,
	payload *envelope.Payload) error {
	switch payload.Type {
	case catalog.SessionCreate, catalog.SessionMembers:
		return r.applyMembership(rumor, payload)
	case catalog.Root:
		return r.applyRoot(rumor, payload)
	case catalog.Reaction:
		return r.applyReaction(rumor, payload)
	default:
		jww.WARN.Printf("Dropping rumor %s with unhandled type %s",
			rumor.ID, payload.Type)
		return nil
	}
}

// applyMembership handles SessionCreate and SessionMembers identically: the
// session row is upserted, then the member snapshot is applied row-by-row.
//
// Note there is no check that the author is the session's creator; any
// snapshot with a newer timestamp wins. That is the accepted trade-off of a
// fully decentralized relay model.
func (r *Reconciler) applyMembership(rumor *envelope.Rumor,
	payload *envelope.Payload) error {
	name := payload.Name
	if name == "" {
		existing, err := r.st.SessionByID(r.ownerKey, payload.ConversationID)
		if err != nil {
			return errors.Wrap(err, "session lookup failed")
		}
		if existing != nil && existing.Name != "" {
			name = existing.Name
		} else {
			name = fallbackSessionName
		}
	}

	applied, err := r.st.UpsertSession(store.Session{
		OwnerKey:     r.ownerKey,
		SessionID:    payload.ConversationID,
		Name:         name,
		CreatedByKey: rumor.AuthorKey,
		CreatedAt:    payload.Timestamp,
		UpdatedAt:    payload.Timestamp,
	})
	if err != nil {
		return err
	}
	if !applied {
		jww.DEBUG.Printf("Stale session snapshot %s for %s dropped",
			rumor.ID, payload.ConversationID)
	}

	members, err := payload.MemberPublicKeys()
	if err != nil {
		jww.WARN.Printf("Dropping member snapshot %s: %+v", rumor.ID, err)
		return nil
	}
	keys := make([]string, len(members))
	for i, m := range members {
		keys[i] = m.Hex()
	}
	return r.st.ApplyMemberSnapshot(
		r.ownerKey, payload.ConversationID, keys, payload.Timestamp)
}

// applyRoot stores a root post, eagerly creating its session if the
// membership event has not arrived yet.
func (r *Reconciler) applyRoot(rumor *envelope.Rumor,
	payload *envelope.Payload) error {
	if err := r.ensureSession(rumor, payload); err != nil {
		return err
	}

	inserted, err := r.st.InsertMessage(store.Message{
		OwnerKey:  r.ownerKey,
		EventID:   rumor.ID,
		SessionID: payload.ConversationID,
		RootID:    payload.RootID,
		SenderKey: rumor.AuthorKey,
		URL:       payload.URL,
		Note:      payload.Note,
		Timestamp: payload.Timestamp,
	})
	if err != nil {
		return err
	}

	r.enqueueRefresh(rumor.ID)

	if inserted && rumor.AuthorKey != r.ownerKey {
		r.notify.Notify("post", r.senderLabel(rumor), payload.URL,
			payload.ConversationID)
	}
	return nil
}

// applyReaction validates and last-writer-wins-upserts a reaction row.
func (r *Reconciler) applyReaction(rumor *envelope.Rumor,
	payload *envelope.Payload) error {
	if err := emoji.ValidateReaction(payload.Emoji); err != nil {
		jww.WARN.Printf("Dropping reaction %s with invalid emoji %q",
			rumor.ID, payload.Emoji)
		return nil
	}

	if err := r.ensureSession(rumor, payload); err != nil {
		return err
	}

	applied, err := r.st.UpsertReaction(store.Reaction{
		OwnerKey:  r.ownerKey,
		SessionID: payload.ConversationID,
		PostID:    payload.RootID,
		Emoji:     payload.Emoji,
		SenderKey: rumor.AuthorKey,
		IsActive:  payload.Active,
		UpdatedAt: payload.Timestamp,
	})
	if err != nil {
		return err
	}
	if !applied {
		jww.DEBUG.Printf("Stale reaction %s on post %s dropped",
			rumor.ID, payload.RootID)
	}
	return nil
}

// ensureSession creates a placeholder session row when an event references a
// session we have not seen created. The row carries the event's timestamp as
// its watermark, so a later-arriving creation event with a newer timestamp
// still lands.
func (r *Reconciler) ensureSession(rumor *envelope.Rumor,
	payload *envelope.Payload) error {
	existing, err := r.st.SessionByID(r.ownerKey, payload.ConversationID)
	if err != nil {
		return errors.Wrap(err, "session lookup failed")
	}
	if existing != nil {
		return nil
	}

	name := r.senderLabel(rumor)
	jww.DEBUG.Printf("Eagerly creating session %s for out-of-order event %s",
		payload.ConversationID, rumor.ID)
	_, err = r.st.UpsertSession(store.Session{
		OwnerKey:     r.ownerKey,
		SessionID:    payload.ConversationID,
		Name:         name,
		CreatedByKey: rumor.AuthorKey,
		CreatedAt:    payload.Timestamp,
		UpdatedAt:    payload.Timestamp,
	})
	return err
}

// senderLabel is the best display name available for the rumor's author.
func (r *Reconciler) senderLabel(rumor *envelope.Rumor) string {
	author, err := identity.ParsePublicKey(rumor.AuthorKey)
	if err == nil {
		if name := r.contacts.DisplayName(author); name != "" {
			return name
		}
	}
	if len(rumor.AuthorKey) >= 8 {
		return rumor.AuthorKey[:8]
	}
	return fallbackSessionName
}
