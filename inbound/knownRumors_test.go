////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

package inbound

import (
	"fmt"
	"testing"
)

// Tests that Admit accepts new IDs and rejects duplicates.
func TestKnownRumors_Admit(t *testing.T) {
	k := newKnownRumors(4)

	if !k.Admit("a") {
		t.Error("Admit rejected a fresh ID.")
	}
	if k.Admit("a") {
		t.Error("Admit accepted a duplicate ID.")
	}
	if k.Len() != 1 {
		t.Errorf("Len returned %d, expected 1", k.Len())
	}
}

// Tests that the set evicts oldest-first when full, and that an evicted ID is
// admitted again.
func TestKnownRumors_Eviction(t *testing.T) {
	k := newKnownRumors(3)
	for _, id := range []string{"a", "b", "c"} {
		k.Admit(id)
	}

	// "d" evicts "a".
	if !k.Admit("d") {
		t.Error("Admit rejected a fresh ID at capacity.")
	}
	if k.Len() != 3 {
		t.Errorf("Len returned %d at capacity, expected 3", k.Len())
	}
	if !k.Admit("a") {
		t.Error("An evicted ID was still treated as a duplicate.")
	}
	if k.Admit("c") {
		t.Error("A still-resident ID was admitted again.")
	}
}

// Tests that the set never exceeds its capacity under heavy churn.
func TestKnownRumors_Bounded(t *testing.T) {
	k := newKnownRumors(100)
	for i := 0; i < 10_000; i++ {
		k.Admit(fmt.Sprintf("id-%d", i))
	}
	if k.Len() != 100 {
		t.Errorf("Len returned %d after churn, expected 100", k.Len())
	}
}
