////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

// Package inbound funnels every envelope from every relay and subscription,
// live or backfilled, through one gate: kind filter, decrypt, payload
// validation, then deduplication against a bounded set of processed rumor
// IDs. A rumor makes it out of this package exactly once.
package inbound

import (
	jww "github.com/spf13/jwalterweatherman"

	"gitlab.com/quietmesh/murmur/catalog"
	"gitlab.com/quietmesh/murmur/envelope"
	"gitlab.com/quietmesh/murmur/identity"
	"gitlab.com/quietmesh/murmur/relay"
)

// DedupCapacity bounds the processed-ID set. At ~10k IDs, replaying an
// entire deep backfill cannot grow memory unboundedly, while the window
// comfortably covers any realistic overlap between live and backfill
// delivery.
const DedupCapacity = 10_000

// Handler receives each rumor exactly once, with its decoded payload.
type Handler func(rumor *envelope.Rumor, payload *envelope.Payload)

// MessageExists reports whether a root message with the given rumor ID is
// already stored. Used only for the duplicate-root exception.
type MessageExists func(rumorID string) bool

// RefreshEnqueue asks for a metadata refresh of an already-stored root post.
type RefreshEnqueue func(messageID string)

// Processor is the dedup-and-unwrap gate. Owned by the client's event loop;
// Process must only be called from that loop.
type Processor struct {
	codec envelope.Codec
	ident *identity.Identity

	known          *knownRumors
	handler        Handler
	messageExists  MessageExists
	enqueueRefresh RefreshEnqueue
}

// NewProcessor builds a Processor for the given local identity.
func NewProcessor(codec envelope.Codec, ident *identity.Identity,
	handler Handler, messageExists MessageExists,
	enqueueRefresh RefreshEnqueue) *Processor {
	return &Processor{
		codec:          codec,
		ident:          ident,
		known:          newKnownRumors(DedupCapacity),
		handler:        handler,
		messageExists:  messageExists,
		enqueueRefresh: enqueueRefresh,
	}
}

// Process runs one envelope through the gate. Envelopes of the wrong kind,
// envelopes not addressed to us, undecodable payloads, and duplicates are
// all dropped silently; dropping is normal operation, not an error.
func (p *Processor) Process(ev *relay.Event) {
	if ev == nil || ev.Kind != relay.EnvelopeKind {
		return
	}

	rumor := p.codec.Open(ev, p.ident)
	if rumor == nil {
		// Not addressed to us or unverifiable. Either way, not ours.
		return
	}

	payload, err := envelope.DecodePayload(rumor.Payload)
	if err != nil {
		jww.WARN.Printf("Dropping rumor %s with invalid payload: %+v",
			rumor.ID, err)
		return
	}

	if !p.known.Admit(rumor.ID) {
		// Backfill routinely redelivers stored posts; that redelivery is
		// the one chance to repair missing link-preview metadata, so a
		// duplicate root still triggers a refresh. Everything else about a
		// duplicate is a no-op.
		if payload.Type == catalog.Root && p.messageExists(rumor.ID) {
			jww.TRACE.Printf(
				"Duplicate root %s, enqueueing metadata refresh", rumor.ID)
			p.enqueueRefresh(rumor.ID)
		}
		return
	}

	jww.TRACE.Printf("Processed rumor %s (%s) from %s",
		rumor.ID, payload.Type, rumor.AuthorKey)
	p.handler(rumor, payload)
}
