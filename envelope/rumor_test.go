////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

package envelope

import (
	"testing"

	"gitlab.com/quietmesh/murmur/identity"
)

// Tests that a freshly built rumor verifies and carries the author's key.
func TestNewRumor_Verify(t *testing.T) {
	ident, err := identity.Generate()
	if err != nil {
		t.Fatalf("Generate failed: %+v", err)
	}

	r, err := NewRumor(ident, 1700000000, []byte(`{"k":"v"}`))
	if err != nil {
		t.Fatalf("NewRumor failed: %+v", err)
	}

	if !r.Verify() {
		t.Error("A fresh rumor failed verification.")
	}
	if r.AuthorKey != ident.PubKey.Hex() {
		t.Errorf("Wrong author key.\nexpected: %s\nreceived: %s",
			ident.PubKey.Hex(), r.AuthorKey)
	}
	if !r.Author().Equal(ident.PubKey) {
		t.Error("Author did not parse back to the signing key.")
	}
}

// Tests that tampering with any field breaks verification.
func TestRumor_Verify_Tampered(t *testing.T) {
	ident, err := identity.Generate()
	if err != nil {
		t.Fatalf("Generate failed: %+v", err)
	}
	other, err := identity.Generate()
	if err != nil {
		t.Fatalf("Generate failed: %+v", err)
	}

	fresh := func() *Rumor {
		r, err := NewRumor(ident, 1700000000, []byte(`{"k":"v"}`))
		if err != nil {
			t.Fatalf("NewRumor failed: %+v", err)
		}
		return r
	}

	r := fresh()
	r.Payload = []byte(`{"k":"forged"}`)
	if r.Verify() {
		t.Error("A rumor with a swapped payload verified.")
	}

	r = fresh()
	r.CreatedAt++
	if r.Verify() {
		t.Error("A rumor with a shifted timestamp verified.")
	}

	r = fresh()
	r.AuthorKey = other.PubKey.Hex()
	if r.Verify() {
		t.Error("A rumor with a swapped author verified.")
	}

	r = fresh()
	r.Sig = ""
	if r.Verify() {
		t.Error("A rumor without a signature verified.")
	}
}

// Tests that the rumor ID is deterministic for identical content.
func TestRumor_ID_Deterministic(t *testing.T) {
	ident, err := identity.Generate()
	if err != nil {
		t.Fatalf("Generate failed: %+v", err)
	}

	a, err := NewRumor(ident, 42, []byte(`{"k":"v"}`))
	if err != nil {
		t.Fatalf("NewRumor failed: %+v", err)
	}
	b, err := NewRumor(ident, 42, []byte(`{"k":"v"}`))
	if err != nil {
		t.Fatalf("NewRumor failed: %+v", err)
	}

	if a.ID != b.ID {
		t.Errorf("Identical content produced different IDs."+
			"\nfirst:  %s\nsecond: %s", a.ID, b.ID)
	}
}
