////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

package identity

import (
	"bytes"
	"testing"
)

// Tests that FromSeed rebuilds the identity Generate created, with the same
// public key and seed.
func TestGenerate_FromSeed_Roundtrip(t *testing.T) {
	ident, err := Generate()
	if err != nil {
		t.Fatalf("Generate failed: %+v", err)
	}

	rebuilt, err := FromSeed(ident.Seed())
	if err != nil {
		t.Fatalf("FromSeed failed: %+v", err)
	}

	if !rebuilt.PubKey.Equal(ident.PubKey) {
		t.Errorf("Rebuilt identity has a different public key."+
			"\nexpected: %s\nreceived: %s", ident.PubKey, rebuilt.PubKey)
	}
	if !bytes.Equal(rebuilt.Seed(), ident.Seed()) {
		t.Error("Rebuilt identity has a different seed.")
	}
}

// Tests that FromSeed rejects seeds of the wrong length.
func TestFromSeed_BadLength(t *testing.T) {
	if _, err := FromSeed(make([]byte, 16)); err == nil {
		t.Error("FromSeed accepted a 16-byte seed.")
	}
	if _, err := FromSeed(nil); err == nil {
		t.Error("FromSeed accepted a nil seed.")
	}
}

// Tests that signatures verify under the signer's key and fail under another
// key or on modified messages.
func TestSign_Verify(t *testing.T) {
	ident, err := Generate()
	if err != nil {
		t.Fatalf("Generate failed: %+v", err)
	}
	other, err := Generate()
	if err != nil {
		t.Fatalf("Generate failed: %+v", err)
	}

	msg := []byte("the quick brown fox")
	sig := ident.Sign(msg)

	if !Verify(ident.PubKey, msg, sig) {
		t.Error("Verify rejected a valid signature.")
	}
	if Verify(other.PubKey, msg, sig) {
		t.Error("Verify accepted a signature under the wrong key.")
	}
	if Verify(ident.PubKey, []byte("the quick brown fax"), sig) {
		t.Error("Verify accepted a signature over a modified message.")
	}
}

// Tests that both sides of the ephemeral key agreement derive the same
// secret: sender uses the ephemeral scalar with the recipient's identity key,
// recipient uses its identity scalar with the ephemeral public key.
func TestSharedSecret_Agreement(t *testing.T) {
	recipient, err := Generate()
	if err != nil {
		t.Fatalf("Generate failed: %+v", err)
	}

	ephPub, ephPriv, err := EphemeralDH()
	if err != nil {
		t.Fatalf("EphemeralDH failed: %+v", err)
	}

	senderSide, err := SharedSecretEphemeral(ephPriv, recipient.PubKey)
	if err != nil {
		t.Fatalf("SharedSecretEphemeral failed: %+v", err)
	}
	recipientSide, err := recipient.SharedSecret(ephPub)
	if err != nil {
		t.Fatalf("SharedSecret failed: %+v", err)
	}

	if !bytes.Equal(senderSide, recipientSide) {
		t.Errorf("Shared secrets disagree.\nsender:    %x\nrecipient: %x",
			senderSide, recipientSide)
	}
}

// Tests that a third party with neither private key derives a different
// secret.
func TestSharedSecret_ThirdParty(t *testing.T) {
	recipient, err := Generate()
	if err != nil {
		t.Fatalf("Generate failed: %+v", err)
	}
	eavesdropper, err := Generate()
	if err != nil {
		t.Fatalf("Generate failed: %+v", err)
	}

	ephPub, ephPriv, err := EphemeralDH()
	if err != nil {
		t.Fatalf("EphemeralDH failed: %+v", err)
	}

	senderSide, err := SharedSecretEphemeral(ephPriv, recipient.PubKey)
	if err != nil {
		t.Fatalf("SharedSecretEphemeral failed: %+v", err)
	}
	eveSide, err := eavesdropper.SharedSecret(ephPub)
	if err != nil {
		t.Fatalf("SharedSecret failed: %+v", err)
	}

	if bytes.Equal(senderSide, eveSide) {
		t.Error("Eavesdropper derived the sender's secret.")
	}
}
