////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

package identity

import (
	"bytes"
	"crypto/ed25519"
	"encoding/hex"

	"github.com/pkg/errors"
)

// KeyLen is the length in bytes of a public key.
const KeyLen = ed25519.PublicKeySize

// PublicKey is a user's ed25519 signing public key. Its hex encoding is the
// owner key used to partition all stored state.
type PublicKey [KeyLen]byte

// ParsePublicKey decodes a hex-encoded public key. It rejects strings of the
// wrong length and non-hex characters.
func ParsePublicKey(s string) (PublicKey, error) {
	var pk PublicKey
	raw, err := hex.DecodeString(s)
	if err != nil {
		return pk, errors.Wrapf(err, "invalid public key %q", s)
	}
	if len(raw) != KeyLen {
		return pk, errors.Errorf("invalid public key %q: have %d bytes, "+
			"expected %d", s, len(raw), KeyLen)
	}
	copy(pk[:], raw)
	return pk, nil
}

// MustParsePublicKey is a test helper that panics on a bad key string.
func MustParsePublicKey(s string) PublicKey {
	pk, err := ParsePublicKey(s)
	if err != nil {
		panic(err)
	}
	return pk
}

// Hex returns the lowercase hex encoding of the key.
func (pk PublicKey) Hex() string {
	return hex.EncodeToString(pk[:])
}

// String adheres to the fmt.Stringer interface.
func (pk PublicKey) String() string {
	return pk.Hex()
}

// Bytes returns a copy of the key as a byte slice.
func (pk PublicKey) Bytes() []byte {
	b := make([]byte, KeyLen)
	copy(b, pk[:])
	return b
}

// Equal returns true if both keys hold the same bytes.
func (pk PublicKey) Equal(other PublicKey) bool {
	return bytes.Equal(pk[:], other[:])
}

// DedupKeys returns the given keys with duplicates removed, preserving first
// occurrence order.
func DedupKeys(keys []PublicKey) []PublicKey {
	seen := make(map[PublicKey]struct{}, len(keys))
	out := make([]PublicKey, 0, len(keys))
	for _, k := range keys {
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	return out
}
