////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

// Package identity holds the local user's keypair. A single ed25519 key
// identifies the user; the envelope codec needs Diffie-Hellman, so the
// signing keys are birationally mapped onto curve25519 when agreeing on
// envelope keys.
package identity

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha512"

	"filippo.io/edwards25519"
	"github.com/pkg/errors"
	"golang.org/x/crypto/curve25519"
)

// Identity is the local user's keypair. All session-scoped storage is
// partitioned by PubKey.
type Identity struct {
	PubKey  PublicKey
	privKey ed25519.PrivateKey
}

// Generate creates a fresh identity from the OS entropy source.
func Generate() (*Identity, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, errors.Wrap(err, "failed to generate identity keypair")
	}

	var pk PublicKey
	copy(pk[:], pub)
	return &Identity{PubKey: pk, privKey: priv}, nil
}

// FromSeed rebuilds an identity from a stored 32-byte seed.
func FromSeed(seed []byte) (*Identity, error) {
	if len(seed) != ed25519.SeedSize {
		return nil, errors.Errorf("identity seed must be %d bytes, got %d",
			ed25519.SeedSize, len(seed))
	}

	priv := ed25519.NewKeyFromSeed(seed)
	var pk PublicKey
	copy(pk[:], priv.Public().(ed25519.PublicKey))
	return &Identity{PubKey: pk, privKey: priv}, nil
}

// Seed returns the 32-byte seed the identity can be rebuilt from.
func (i *Identity) Seed() []byte {
	return i.privKey.Seed()
}

// Sign signs the given message with the identity's private key.
func (i *Identity) Sign(msg []byte) []byte {
	return ed25519.Sign(i.privKey, msg)
}

// Verify checks sig over msg against the given public key.
func Verify(pk PublicKey, msg, sig []byte) bool {
	return ed25519.Verify(ed25519.PublicKey(pk[:]), msg, sig)
}

// DHPublic maps an ed25519 public key onto its curve25519 equivalent so it
// can be used for key agreement.
func DHPublic(pk PublicKey) ([]byte, error) {
	p, err := new(edwards25519.Point).SetBytes(pk[:])
	if err != nil {
		return nil, errors.Wrapf(err,
			"public key %s is not a valid curve point", pk)
	}
	return p.BytesMontgomery(), nil
}

// dhScalar derives the curve25519 private scalar from the ed25519 seed, per
// RFC 8032 key expansion.
func (i *Identity) dhScalar() []byte {
	h := sha512.Sum512(i.privKey.Seed())
	scalar := make([]byte, curve25519.ScalarSize)
	copy(scalar, h[:curve25519.ScalarSize])
	scalar[0] &= 248
	scalar[31] &= 127
	scalar[31] |= 64
	return scalar
}

// SharedSecret computes the Diffie-Hellman shared secret between the local
// identity and a peer's curve25519 public key (32 bytes, montgomery form).
func (i *Identity) SharedSecret(peerDHPub []byte) ([]byte, error) {
	secret, err := curve25519.X25519(i.dhScalar(), peerDHPub)
	if err != nil {
		return nil, errors.Wrap(err, "key agreement failed")
	}
	return secret, nil
}

// EphemeralDH generates a one-shot curve25519 keypair for a single envelope.
func EphemeralDH() (pub, priv []byte, err error) {
	priv = make([]byte, curve25519.ScalarSize)
	if _, err = rand.Read(priv); err != nil {
		return nil, nil, errors.Wrap(err, "failed to read entropy")
	}
	priv[0] &= 248
	priv[31] &= 127
	priv[31] |= 64

	pub, err = curve25519.X25519(priv, curve25519.Basepoint)
	if err != nil {
		return nil, nil, errors.Wrap(err, "failed to derive ephemeral key")
	}
	return pub, priv, nil
}

// SharedSecretEphemeral computes the sender-side shared secret between an
// ephemeral private scalar and a recipient's ed25519 public key.
func SharedSecretEphemeral(ephPriv []byte, recipient PublicKey) ([]byte, error) {
	dhPub, err := DHPublic(recipient)
	if err != nil {
		return nil, err
	}
	secret, err := curve25519.X25519(ephPriv, dhPub)
	if err != nil {
		return nil, errors.Wrap(err, "key agreement failed")
	}
	return secret, nil
}
