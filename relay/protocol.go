////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

// Package relay manages the pool of websocket connections to the relay mesh
// and speaks the relay wire protocol: JSON array frames carrying opaque
// encrypted envelope events, subscription requests, acknowledgments, and
// end-of-stream markers.
package relay

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"

	"github.com/pkg/errors"
)

// EnvelopeKind is the event kind used for encrypted envelopes. Relays treat
// it as opaque; nothing else is ever published by this client.
const EnvelopeKind = 1059

// RecipientTag is the tag name addressing an envelope to a public key.
const RecipientTag = "p"

// EphemeralTag carries the sender's one-shot Diffie-Hellman public key for
// the envelope.
const EphemeralTag = "eph"

// Event is the relay-visible unit of storage and delivery. For envelope
// events the content is ciphertext, so the relay learns who is talking to
// whom but never what is said.
type Event struct {
	ID        string     `json:"id"`
	PubKey    string     `json:"pubkey"`
	CreatedAt int64      `json:"created_at"`
	Kind      int        `json:"kind"`
	Tags      [][]string `json:"tags"`
	Content   string     `json:"content"`
	Sig       string     `json:"sig,omitempty"`
}

// ComputeID returns the content-derived event ID: the hex sha256 of the
// canonical serialization [0, pubkey, created_at, kind, tags, content].
func (e *Event) ComputeID() string {
	canonical, err := json.Marshal([]interface{}{
		0, e.PubKey, e.CreatedAt, e.Kind, e.Tags, e.Content})
	if err != nil {
		// Marshalling a slice of plain values cannot fail; treat it as such.
		panic(err)
	}
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:])
}

// TagValue returns the first value of the first tag with the given name, or
// empty if absent.
func (e *Event) TagValue(name string) string {
	for _, tag := range e.Tags {
		if len(tag) >= 2 && tag[0] == name {
			return tag[1]
		}
	}
	return ""
}

// Filter selects events within a subscription. Zero fields are omitted from
// the wire form and match everything.
type Filter struct {
	Kinds   []int    `json:"kinds,omitempty"`
	Authors []string `json:"authors,omitempty"`
	Ps      []string `json:"#p,omitempty"`
	Until   int64    `json:"until,omitempty"`
	Limit   int      `json:"limit,omitempty"`
}

// FrameType tags a parsed relay-to-client frame.
type FrameType int

const (
	// FrameEvent delivers an event on a subscription.
	FrameEvent FrameType = iota
	// FrameOK acknowledges (or rejects) a published event.
	FrameOK
	// FrameEOSE marks the end of stored events for a subscription.
	FrameEOSE
	// FrameNotice is a free-form relay diagnostic.
	FrameNotice
)

// Frame is a parsed relay-to-client message. Which fields are set depends on
// Type.
type Frame struct {
	Type    FrameType
	SubID   string
	Event   *Event
	EventID string
	OK      bool
	Reason  string
	Notice  string
}

// EventFrame encodes a client-to-relay publish frame.
func EventFrame(ev *Event) ([]byte, error) {
	return json.Marshal([]interface{}{"EVENT", ev})
}

// ReqFrame encodes a client-to-relay subscription request.
func ReqFrame(subID string, filter Filter) ([]byte, error) {
	return json.Marshal([]interface{}{"REQ", subID, filter})
}

// CloseFrame encodes a client-to-relay subscription close.
func CloseFrame(subID string) ([]byte, error) {
	return json.Marshal([]interface{}{"CLOSE", subID})
}

// ParseFrame decodes a relay-to-client frame. Unknown frame labels are an
// error; the read loop drops them with a warning.
func ParseFrame(data []byte) (*Frame, error) {
	var parts []json.RawMessage
	if err := json.Unmarshal(data, &parts); err != nil {
		return nil, errors.Wrap(err, "frame is not a JSON array")
	}
	if len(parts) < 1 {
		return nil, errors.New("frame is empty")
	}

	var label string
	if err := json.Unmarshal(parts[0], &label); err != nil {
		return nil, errors.Wrap(err, "frame label is not a string")
	}

	switch label {
	case "EVENT":
		if len(parts) < 3 {
			return nil, errors.Errorf(
				"EVENT frame has %d elements, expected 3", len(parts))
		}
		f := &Frame{Type: FrameEvent, Event: &Event{}}
		if err := json.Unmarshal(parts[1], &f.SubID); err != nil {
			return nil, errors.Wrap(err, "bad EVENT subscription ID")
		}
		if err := json.Unmarshal(parts[2], f.Event); err != nil {
			return nil, errors.Wrap(err, "bad EVENT body")
		}
		return f, nil

	case "OK":
		if len(parts) < 3 {
			return nil, errors.Errorf(
				"OK frame has %d elements, expected at least 3", len(parts))
		}
		f := &Frame{Type: FrameOK}
		if err := json.Unmarshal(parts[1], &f.EventID); err != nil {
			return nil, errors.Wrap(err, "bad OK event ID")
		}
		if err := json.Unmarshal(parts[2], &f.OK); err != nil {
			return nil, errors.Wrap(err, "bad OK flag")
		}
		if len(parts) >= 4 {
			if err := json.Unmarshal(parts[3], &f.Reason); err != nil {
				return nil, errors.Wrap(err, "bad OK reason")
			}
		}
		return f, nil

	case "EOSE":
		if len(parts) < 2 {
			return nil, errors.New("EOSE frame is missing a subscription ID")
		}
		f := &Frame{Type: FrameEOSE}
		if err := json.Unmarshal(parts[1], &f.SubID); err != nil {
			return nil, errors.Wrap(err, "bad EOSE subscription ID")
		}
		return f, nil

	case "NOTICE":
		f := &Frame{Type: FrameNotice}
		if len(parts) >= 2 {
			if err := json.Unmarshal(parts[1], &f.Notice); err != nil {
				return nil, errors.Wrap(err, "bad NOTICE body")
			}
		}
		return f, nil

	default:
		return nil, errors.Errorf("unknown frame label %q", label)
	}
}
