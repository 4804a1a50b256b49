////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

package envelope

import (
	"encoding/json"

	"github.com/pkg/errors"

	"gitlab.com/quietmesh/murmur/catalog"
	"gitlab.com/quietmesh/murmur/identity"
)

// Payload is the decoded rumor body: a tagged union over the session,
// post, and reaction variants. Every variant carries the session it belongs
// to, a root post ID, and the sender-claimed send time in unix seconds.
type Payload struct {
	Type catalog.PayloadType `json:"type"`

	// ConversationID is the session the payload belongs to.
	ConversationID string `json:"conversation_id"`

	// RootID is the post ID: generated for Root payloads, the target post's
	// ID for Reaction payloads, and the session-creation marker for the
	// session variants.
	RootID string `json:"root_id"`

	// Timestamp is the sender-claimed send time in unix seconds. It drives
	// last-writer-wins reconciliation.
	Timestamp int64 `json:"timestamp"`

	// SessionCreate only.
	Name string `json:"name,omitempty"`

	// SessionCreate and SessionMembers: hex public keys of the full member
	// snapshot.
	MemberKeys []string `json:"member_keys,omitempty"`

	// Root only.
	URL  string `json:"url,omitempty"`
	Note string `json:"note,omitempty"`

	// Reaction only.
	Emoji  string `json:"emoji,omitempty"`
	Active bool   `json:"active,omitempty"`
}

// DecodePayload parses and structurally validates a rumor body. Anything
// that fails here is dropped by the inbound pipeline before reaching the
// reconciler.
func DecodePayload(body []byte) (*Payload, error) {
	p := &Payload{}
	if err := json.Unmarshal(body, p); err != nil {
		return nil, errors.Wrap(err, "payload is not valid JSON")
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

// Encode serializes the payload for wrapping into a rumor.
func (p *Payload) Encode() ([]byte, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return json.Marshal(p)
}

// Validate checks the structural invariants shared by all variants plus the
// per-variant required fields.
func (p *Payload) Validate() error {
	if !p.Type.Valid() {
		return errors.Errorf("unknown payload type %d", uint32(p.Type))
	}
	if p.ConversationID == "" {
		return errors.New("payload is missing a conversation ID")
	}
	if p.RootID == "" {
		return errors.New("payload is missing a root ID")
	}
	if p.Timestamp <= 0 {
		return errors.Errorf("payload timestamp %d is not positive",
			p.Timestamp)
	}

	switch p.Type {
	case catalog.SessionCreate, catalog.SessionMembers:
		if _, err := p.MemberPublicKeys(); err != nil {
			return err
		}
	case catalog.Root:
		if p.URL == "" {
			return errors.New("root payload is missing a URL")
		}
	case catalog.Reaction:
		if p.Emoji == "" {
			return errors.New("reaction payload is missing an emoji")
		}
	}
	return nil
}

// MemberPublicKeys parses the member snapshot into key form, rejecting the
// whole payload on the first malformed key.
func (p *Payload) MemberPublicKeys() ([]identity.PublicKey, error) {
	keys := make([]identity.PublicKey, 0, len(p.MemberKeys))
	for _, s := range p.MemberKeys {
		pk, err := identity.ParsePublicKey(s)
		if err != nil {
			return nil, errors.Wrap(err, "bad member key in snapshot")
		}
		keys = append(keys, pk)
	}
	return identity.DedupKeys(keys), nil
}
