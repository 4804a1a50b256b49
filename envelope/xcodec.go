////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

package envelope

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"io"
	"time"

	"github.com/pkg/errors"
	jww "github.com/spf13/jwalterweatherman"
	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"

	"gitlab.com/quietmesh/murmur/identity"
	"gitlab.com/quietmesh/murmur/relay"
)

// hkdfInfo domain-separates envelope keys from any other use of the shared
// secret.
const hkdfInfo = "murmur-envelope-v1"

// XCodec is the production Codec: per-envelope ephemeral curve25519 key
// agreement, HKDF-SHA256 key derivation, XChaCha20-Poly1305 sealing.
type XCodec struct {
	// now is injectable for tests; envelope timestamps otherwise come from
	// the wall clock.
	now func() int64
}

// NewXCodec returns the production codec.
func NewXCodec() *XCodec {
	return &XCodec{now: func() int64 { return time.Now().Unix() }}
}

// NewXCodecWithClock returns a codec with a fixed clock for tests.
func NewXCodecWithClock(now func() int64) *XCodec {
	return &XCodec{now: now}
}

// Wrap adheres to the Codec interface.
func (c *XCodec) Wrap(rumor *Rumor, recipient identity.PublicKey,
	ident *identity.Identity) (*relay.Event, error) {
	plaintext, err := json.Marshal(rumor)
	if err != nil {
		return nil, errors.Wrap(err, "failed to serialize rumor")
	}

	ephPub, ephPriv, err := identity.EphemeralDH()
	if err != nil {
		return nil, err
	}
	secret, err := identity.SharedSecretEphemeral(ephPriv, recipient)
	if err != nil {
		return nil, err
	}

	aead, err := chacha20poly1305.NewX(deriveKey(secret))
	if err != nil {
		return nil, errors.Wrap(err, "failed to build AEAD")
	}

	nonce := make([]byte, chacha20poly1305.NonceSizeX)
	if _, err = rand.Read(nonce); err != nil {
		return nil, errors.Wrap(err, "failed to read nonce entropy")
	}
	sealed := aead.Seal(nonce, nonce, plaintext, nil)

	// The envelope is authored and signed by the sender's real key so the
	// by-author backfill query can find it; the relay sees who is talking
	// to whom but never what is said.
	ev := &relay.Event{
		PubKey:    ident.PubKey.Hex(),
		CreatedAt: c.now(),
		Kind:      relay.EnvelopeKind,
		Tags: [][]string{
			{relay.RecipientTag, recipient.Hex()},
			{relay.EphemeralTag, hex.EncodeToString(ephPub)},
		},
		Content: base64.StdEncoding.EncodeToString(sealed),
	}
	ev.ID = ev.ComputeID()

	idBytes, err := hex.DecodeString(ev.ID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to decode envelope ID")
	}
	ev.Sig = hex.EncodeToString(ident.Sign(idBytes))
	return ev, nil
}

// Open adheres to the Codec interface. Every failure path returns nil; an
// envelope we cannot open is simply not for us.
func (c *XCodec) Open(ev *relay.Event, ident *identity.Identity) *Rumor {
	if ev == nil || ev.Kind != relay.EnvelopeKind {
		return nil
	}
	if ev.TagValue(relay.RecipientTag) != ident.PubKey.Hex() {
		return nil
	}

	ephPub, err := hex.DecodeString(ev.TagValue(relay.EphemeralTag))
	if err != nil || len(ephPub) == 0 {
		jww.TRACE.Printf("Envelope %s has a bad ephemeral key", ev.ID)
		return nil
	}
	secret, err := ident.SharedSecret(ephPub)
	if err != nil {
		jww.TRACE.Printf("Key agreement failed for envelope %s", ev.ID)
		return nil
	}

	sealed, err := base64.StdEncoding.DecodeString(ev.Content)
	if err != nil || len(sealed) < chacha20poly1305.NonceSizeX {
		return nil
	}
	nonce := sealed[:chacha20poly1305.NonceSizeX]
	ciphertext := sealed[chacha20poly1305.NonceSizeX:]

	aead, err := chacha20poly1305.NewX(deriveKey(secret))
	if err != nil {
		return nil
	}
	plaintext, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		// Wrong key or tampered ciphertext; either way not ours to read.
		return nil
	}

	rumor := &Rumor{}
	if err = json.Unmarshal(plaintext, rumor); err != nil {
		jww.TRACE.Printf("Envelope %s carried unparseable plaintext", ev.ID)
		return nil
	}
	if !rumor.Verify() {
		jww.WARN.Printf("Envelope %s carried a rumor with a bad signature, "+
			"dropping", ev.ID)
		return nil
	}
	return rumor
}

// deriveKey expands the DH shared secret into an AEAD key.
func deriveKey(secret []byte) []byte {
	key := make([]byte, chacha20poly1305.KeySize)
	r := hkdf.New(sha256.New, secret, nil, []byte(hkdfInfo))
	if _, err := io.ReadFull(r, key); err != nil {
		panic(err)
	}
	return key
}
