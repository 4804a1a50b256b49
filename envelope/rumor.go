////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

package envelope

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"

	"github.com/pkg/errors"

	"gitlab.com/quietmesh/murmur/identity"
)

// Rumor is the decrypted, signed inner event carried by an envelope. Its ID
// is content-derived and serves as the idempotence key for the entire
// inbound pipeline: the same rumor delivered by any number of relays, live
// or backfilled, is admitted exactly once.
type Rumor struct {
	ID        string          `json:"id"`
	AuthorKey string          `json:"author"`
	CreatedAt int64           `json:"created_at"`
	Payload   json.RawMessage `json:"payload"`
	Sig       string          `json:"sig"`
}

// NewRumor builds and signs a rumor from the local identity.
func NewRumor(ident *identity.Identity, createdAt int64, payload []byte) (
	*Rumor, error) {
	r := &Rumor{
		AuthorKey: ident.PubKey.Hex(),
		CreatedAt: createdAt,
		Payload:   payload,
	}
	r.ID = r.computeID()
	idBytes, err := hex.DecodeString(r.ID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to decode rumor ID")
	}
	r.Sig = hex.EncodeToString(ident.Sign(idBytes))
	return r, nil
}

// computeID hashes the canonical serialization [author, created_at,
// payload] so the ID is stable across re-encodings.
func (r *Rumor) computeID() string {
	canonical, err := json.Marshal(
		[]interface{}{r.AuthorKey, r.CreatedAt, r.Payload})
	if err != nil {
		panic(err)
	}
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:])
}

// Verify checks that the ID matches the content and the signature matches
// the claimed author. Returns false rather than an error; an unverifiable
// rumor is silently dropped.
func (r *Rumor) Verify() bool {
	if r.ID != r.computeID() {
		return false
	}

	author, err := identity.ParsePublicKey(r.AuthorKey)
	if err != nil {
		return false
	}
	idBytes, err := hex.DecodeString(r.ID)
	if err != nil {
		return false
	}
	sig, err := hex.DecodeString(r.Sig)
	if err != nil {
		return false
	}
	return identity.Verify(author, idBytes, sig)
}

// Author parses the author key. Call only after Verify.
func (r *Rumor) Author() identity.PublicKey {
	pk, _ := identity.ParsePublicKey(r.AuthorKey)
	return pk
}
