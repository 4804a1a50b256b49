////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

package client

import (
	"testing"
	"time"

	"gitlab.com/elixxir/ekv"

	"gitlab.com/quietmesh/murmur/reconcile"
	"gitlab.com/quietmesh/murmur/relay"
	"gitlab.com/quietmesh/murmur/store/memory"
)

// Tests the aggregate connectivity derivation across relay state mixes.
func TestDeriveConnectivity(t *testing.T) {
	cases := []struct {
		name     string
		states   map[string]relay.State
		rejected map[string]bool
		expected Connectivity
	}{
		{
			name:     "no relays at all",
			states:   map[string]relay.State{},
			expected: NoRelays,
		},
		{
			name: "only invalid relays",
			states: map[string]relay.State{
				"a": relay.StateFailed, "b": relay.StateFailed},
			expected: NoRelays,
		},
		{
			name: "one connected writable",
			states: map[string]relay.State{
				"a": relay.StateConnected, "b": relay.StateDisconnected},
			expected: Online,
		},
		{
			name: "connected but every relay rejects writes",
			states: map[string]relay.State{
				"a": relay.StateConnected, "b": relay.StateConnected},
			rejected: map[string]bool{"a": true, "b": true},
			expected: ReadOnly,
		},
		{
			name: "one rejecting, one writable",
			states: map[string]relay.State{
				"a": relay.StateConnected, "b": relay.StateConnected},
			rejected: map[string]bool{"a": true},
			expected: Online,
		},
		{
			name: "nothing connected, dial in progress",
			states: map[string]relay.State{
				"a": relay.StateConnecting, "b": relay.StateFailed},
			expected: Reconnecting,
		},
		{
			name: "nothing connected, retry scheduled",
			states: map[string]relay.State{
				"a": relay.StateDisconnected},
			expected: Reconnecting,
		},
	}

	for _, c := range cases {
		rejected := c.rejected
		if rejected == nil {
			rejected = map[string]bool{}
		}
		if got := deriveConnectivity(c.states, rejected); got != c.expected {
			t.Errorf("%s: expected %s, received %s",
				c.name, c.expected, got)
		}
	}
}

// Tests that Connectivity answers without the event loop: Offline before
// Start and again after Stop, rather than blocking forever.
func TestClient_Connectivity_BeforeStart(t *testing.T) {
	kv := ekv.MakeMemstore()
	c, err := New(kv, memory.NewStore(), &fakeRelayDialer{}, nopFetcher{},
		reconcile.NopContacts{}, reconcile.NopSink{}, testClientParams())
	if err != nil {
		t.Fatalf("New failed: %+v", err)
	}

	done := make(chan Connectivity, 1)
	go func() { done <- c.Connectivity() }()
	select {
	case got := <-done:
		if got != Offline {
			t.Errorf("Connectivity before Start."+
				"\nexpected: %s\nreceived: %s", Offline, got)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Connectivity blocked before Start.")
	}

	if err = c.Start(); err != nil {
		t.Fatalf("Start failed: %+v", err)
	}
	if err = c.Stop(); err != nil {
		t.Fatalf("Stop failed: %+v", err)
	}
	if got := c.Connectivity(); got != Offline {
		t.Errorf("Connectivity after Stop.\nexpected: %s\nreceived: %s",
			Offline, got)
	}
}

// Tests that every error in the taxonomy maps to a non-empty short message
// and nil maps to empty.
func TestUserMessage(t *testing.T) {
	if UserMessage(nil) != "" {
		t.Error("UserMessage(nil) is not empty.")
	}

	errs := []error{ErrUnconfigured, ErrNoRelays, ErrRelayUnavailable,
		ErrInvalidRecipient, ErrInvalidPayload, ErrStoreFailure}
	seen := make(map[string]bool)
	for _, err := range errs {
		msg := UserMessage(err)
		if msg == "" {
			t.Errorf("UserMessage(%v) is empty.", err)
		}
		if seen[msg] {
			t.Errorf("UserMessage(%v) collides with another error: %q",
				err, msg)
		}
		seen[msg] = true
	}
}
