////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

package client

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"gitlab.com/elixxir/ekv"

	"gitlab.com/quietmesh/murmur/ack"
	"gitlab.com/quietmesh/murmur/catalog"
	"gitlab.com/quietmesh/murmur/envelope"
	"gitlab.com/quietmesh/murmur/identity"
	"gitlab.com/quietmesh/murmur/metadata"
	"gitlab.com/quietmesh/murmur/reconcile"
	"gitlab.com/quietmesh/murmur/relay"
	"gitlab.com/quietmesh/murmur/store/memory"
)

// fakeRelayConn is a scripted relay: it acknowledges published events and
// answers subscriptions with immediate end-of-stream, which is exactly what a
// relay with no stored history does.
type fakeRelayConn struct {
	mux        sync.Mutex
	acceptPubs bool
	inbound    chan []byte
	closed     chan struct{}
	closeOnce  sync.Once
	published  []*relay.Event
}

func newFakeRelayConn(acceptPubs bool) *fakeRelayConn {
	return &fakeRelayConn{
		acceptPubs: acceptPubs,
		inbound:    make(chan []byte, 64),
		closed:     make(chan struct{}),
	}
}

func (c *fakeRelayConn) ReadMessage() ([]byte, error) {
	select {
	case data := <-c.inbound:
		return data, nil
	case <-c.closed:
		return nil, errors.New("connection closed")
	}
}

func (c *fakeRelayConn) WriteMessage(data []byte) error {
	select {
	case <-c.closed:
		return errors.New("connection closed")
	default:
	}

	var parts []json.RawMessage
	if err := json.Unmarshal(data, &parts); err != nil || len(parts) == 0 {
		return errors.New("bad frame")
	}
	var label string
	_ = json.Unmarshal(parts[0], &label)

	switch label {
	case "EVENT":
		ev := &relay.Event{}
		_ = json.Unmarshal(parts[1], ev)
		c.mux.Lock()
		c.published = append(c.published, ev)
		c.mux.Unlock()
		if c.acceptPubs {
			c.push(`["OK","` + ev.ID + `",true,""]`)
		} else {
			c.push(`["OK","` + ev.ID + `",false,"blocked: read only"]`)
		}
	case "REQ":
		var subID string
		_ = json.Unmarshal(parts[1], &subID)
		c.push(`["EOSE","` + subID + `"]`)
	}
	return nil
}

func (c *fakeRelayConn) push(frame string) {
	select {
	case c.inbound <- []byte(frame):
	case <-c.closed:
	}
}

// deliver hands an event to the client as live delivery on a subscription.
func (c *fakeRelayConn) deliver(t *testing.T, subID string, ev *relay.Event) {
	t.Helper()
	body, err := json.Marshal([]interface{}{"EVENT", subID, ev})
	if err != nil {
		t.Fatalf("Marshal failed: %+v", err)
	}
	c.push(string(body))
}

func (c *fakeRelayConn) Close() error {
	c.closeOnce.Do(func() { close(c.closed) })
	return nil
}

func (c *fakeRelayConn) numPublished() int {
	c.mux.Lock()
	defer c.mux.Unlock()
	return len(c.published)
}

// fakeRelayDialer hands out fakeRelayConns.
type fakeRelayDialer struct {
	mux        sync.Mutex
	acceptPubs bool
	conns      []*fakeRelayConn
}

func (d *fakeRelayDialer) Dial(url string) (relay.Conn, error) {
	c := newFakeRelayConn(d.acceptPubs)
	d.mux.Lock()
	d.conns = append(d.conns, c)
	d.mux.Unlock()
	return c, nil
}

func (d *fakeRelayDialer) latest() *fakeRelayConn {
	d.mux.Lock()
	defer d.mux.Unlock()
	if len(d.conns) == 0 {
		return nil
	}
	return d.conns[len(d.conns)-1]
}

type nopFetcher struct{}

func (nopFetcher) FetchPreview(string) *metadata.Preview { return nil }

func testClientParams() Params {
	p := GetDefaultParams()
	p.AckTimeout = 2 * time.Second
	p.ReadinessPollInterval = 5 * time.Millisecond
	p.ReadinessTimeout = 2 * time.Second
	p.Relay.ReconnectInitial = 5 * time.Millisecond
	p.Relay.ReconnectMax = 10 * time.Millisecond
	return p
}

// newTestClient builds a started client over one scripted relay.
func newTestClient(t *testing.T, acceptPubs bool) (
	*Client, *fakeRelayDialer, *memory.Store) {
	t.Helper()
	kv := ekv.MakeMemstore()
	if err := (&relayList{kv: kv}).Set(
		[]string{"wss://fake.example"}); err != nil {
		t.Fatalf("Seeding the relay list failed: %+v", err)
	}

	st := memory.NewStore()
	d := &fakeRelayDialer{acceptPubs: acceptPubs}
	c, err := New(kv, st, d, nopFetcher{}, reconcile.NopContacts{},
		reconcile.NopSink{}, testClientParams())
	if err != nil {
		t.Fatalf("New failed: %+v", err)
	}
	if err = c.Start(); err != nil {
		t.Fatalf("Start failed: %+v", err)
	}
	t.Cleanup(func() { _ = c.Stop() })

	waitUntil(t, "the relay to connect", func() bool {
		return c.Connectivity() == Online
	})
	return c, d, st
}

func waitUntil(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("Timed out waiting for %s.", what)
		}
		time.Sleep(time.Millisecond)
	}
}

// Tests the full local send path: create a session, post into it, and react,
// with every publish acknowledged by the relay and folded into local state.
func TestClient_SendPath(t *testing.T) {
	c, d, _ := newTestClient(t, true)

	member, err := identity.Generate()
	if err != nil {
		t.Fatalf("Generate failed: %+v", err)
	}

	sessionID, err := c.CreateSession("trip planning",
		[]string{member.PubKey.Hex()})
	if err != nil {
		t.Fatalf("CreateSession failed: %+v", err)
	}

	sessions, err := c.Sessions()
	if err != nil {
		t.Fatalf("Sessions failed: %+v", err)
	}
	if len(sessions) != 1 || sessions[0].SessionID != sessionID ||
		sessions[0].Name != "trip planning" {
		t.Fatalf("Wrong local session state: %+v", sessions)
	}
	members, err := c.ActiveMembers(sessionID)
	if err != nil {
		t.Fatalf("ActiveMembers failed: %+v", err)
	}
	if len(members) != 2 {
		t.Errorf("ActiveMembers returned %d, expected 2 (member and self)",
			len(members))
	}

	rootID, err := c.CreateRootPost(sessionID,
		"https://example.com/article", "read this")
	if err != nil {
		t.Fatalf("CreateRootPost failed: %+v", err)
	}
	msgs, err := c.RootMessages(sessionID)
	if err != nil {
		t.Fatalf("RootMessages failed: %+v", err)
	}
	if len(msgs) != 1 || msgs[0].RootID != rootID {
		t.Fatalf("Wrong local message state: %+v", msgs)
	}

	if err = c.ToggleReaction(sessionID, rootID, "👍", true); err != nil {
		t.Fatalf("ToggleReaction failed: %+v", err)
	}
	reactions, err := c.ReactionsForMessage(rootID)
	if err != nil {
		t.Fatalf("ReactionsForMessage failed: %+v", err)
	}
	if len(reactions) != 1 || !reactions[0].IsActive {
		t.Errorf("Wrong local reaction state: %+v", reactions)
	}

	second, err := identity.Generate()
	if err != nil {
		t.Fatalf("Generate failed: %+v", err)
	}
	err = c.UpdateMembers(sessionID,
		[]string{member.PubKey.Hex(), second.PubKey.Hex()})
	if err != nil {
		t.Fatalf("UpdateMembers failed: %+v", err)
	}
	members, err = c.ActiveMembers(sessionID)
	if err != nil {
		t.Fatalf("ActiveMembers failed: %+v", err)
	}
	if len(members) != 3 {
		t.Errorf("ActiveMembers returned %d after the update, expected 3",
			len(members))
	}

	// Each send wraps one envelope per recipient, self included.
	if d.latest().numPublished() < 6 {
		t.Errorf("Only %d envelopes were published.",
			d.latest().numPublished())
	}
}

// Tests that a relay rejecting every publish surfaces the rejection to the
// sender and records it in the error slot.
func TestClient_Send_Rejected(t *testing.T) {
	c, _, _ := newTestClient(t, false)

	member, err := identity.Generate()
	if err != nil {
		t.Fatalf("Generate failed: %+v", err)
	}

	_, err = c.CreateSession("doomed", []string{member.PubKey.Hex()})
	if !errors.Is(err, ack.ErrRejected) {
		t.Fatalf("Wrong error.\nexpected: %v\nreceived: %v",
			ack.ErrRejected, err)
	}
	if UserMessage(err) == "" {
		t.Error("The rejection maps to an empty user message.")
	}

	if got := c.LastError(); !errors.Is(got, ack.ErrRejected) {
		t.Errorf("The error slot holds %v.", got)
	}
	if c.LastError() != nil {
		t.Error("Reading the error slot did not clear it.")
	}

	// Nothing is stored locally for a failed send.
	sessions, _ := c.Sessions()
	if len(sessions) != 0 {
		t.Errorf("A rejected send left local state: %+v", sessions)
	}
}

// Tests that a live envelope from another user is decrypted, reconciled, and
// visible through the read API.
func TestClient_InboundDelivery(t *testing.T) {
	c, d, _ := newTestClient(t, true)

	sender, err := identity.Generate()
	if err != nil {
		t.Fatalf("Generate failed: %+v", err)
	}
	me, err := identity.ParsePublicKey(c.PubKeyHex())
	if err != nil {
		t.Fatalf("ParsePublicKey failed: %+v", err)
	}

	p := &envelope.Payload{
		Type:           catalog.SessionCreate,
		ConversationID: "remote-session",
		RootID:         "marker",
		Timestamp:      time.Now().Unix(),
		Name:           "from afar",
		MemberKeys:     []string{sender.PubKey.Hex(), me.Hex()},
	}
	body, err := p.Encode()
	if err != nil {
		t.Fatalf("Encode failed: %+v", err)
	}
	rumor, err := envelope.NewRumor(sender, p.Timestamp, body)
	if err != nil {
		t.Fatalf("NewRumor failed: %+v", err)
	}
	ev, err := envelope.NewXCodec().Wrap(rumor, me, sender)
	if err != nil {
		t.Fatalf("Wrap failed: %+v", err)
	}

	d.latest().deliver(t, liveRecipientSubID, ev)

	waitUntil(t, "the session to reconcile", func() bool {
		sessions, err := c.Sessions()
		return err == nil && len(sessions) == 1 &&
			sessions[0].Name == "from afar"
	})

	// Redelivery (a second relay would do this) must not duplicate anything.
	d.latest().deliver(t, liveRecipientSubID, ev)
	time.Sleep(50 * time.Millisecond)
	sessions, _ := c.Sessions()
	if len(sessions) != 1 {
		t.Errorf("Redelivery duplicated the session: %+v", sessions)
	}
}

// Tests fast validation failures: bad recipients, bad payloads, and unknown
// sessions never touch the network.
func TestClient_Send_Validation(t *testing.T) {
	c, d, _ := newTestClient(t, true)

	if _, err := c.CreateSession("x", []string{"nothex"}); !errors.Is(
		err, ErrInvalidRecipient) {
		t.Errorf("Wrong error for a bad recipient: %v", err)
	}
	if _, err := c.CreateRootPost("nosession", "", "note"); !errors.Is(
		err, ErrInvalidPayload) {
		t.Errorf("Wrong error for a missing URL: %v", err)
	}
	if _, err := c.CreateRootPost("nosession",
		"https://example.com", ""); !errors.Is(err, ErrInvalidPayload) {
		t.Errorf("Wrong error for an unknown session: %v", err)
	}
	if err := c.ToggleReaction("nosession", "r1", "AB",
		true); !errors.Is(err, ErrInvalidPayload) {
		t.Errorf("Wrong error for a bad emoji: %v", err)
	}

	if d.latest().numPublished() != 0 {
		t.Errorf("Validation failures published %d envelopes.",
			d.latest().numPublished())
	}
}

// Tests that a client with an explicitly empty relay list fails sends with
// ErrNoRelays.
func TestClient_Send_NoRelays(t *testing.T) {
	kv := ekv.MakeMemstore()
	if err := (&relayList{kv: kv}).Set([]string{}); err != nil {
		t.Fatalf("Seeding the relay list failed: %+v", err)
	}

	c, err := New(kv, memory.NewStore(), &fakeRelayDialer{acceptPubs: true},
		nopFetcher{}, reconcile.NopContacts{}, reconcile.NopSink{},
		testClientParams())
	if err != nil {
		t.Fatalf("New failed: %+v", err)
	}
	if err = c.Start(); err != nil {
		t.Fatalf("Start failed: %+v", err)
	}
	defer c.Stop()

	member, err := identity.Generate()
	if err != nil {
		t.Fatalf("Generate failed: %+v", err)
	}
	if _, err = c.CreateSession("x",
		[]string{member.PubKey.Hex()}); !errors.Is(err, ErrNoRelays) {
		t.Errorf("Wrong error with no relays: %v", err)
	}
	if c.Connectivity() != NoRelays {
		t.Errorf("Connectivity is %s, expected %s",
			c.Connectivity(), NoRelays)
	}
}

// Tests that the identity persists across client restarts on the same
// key-value store.
func TestClient_IdentityPersistence(t *testing.T) {
	kv := ekv.MakeMemstore()
	if err := (&relayList{kv: kv}).Set(
		[]string{"wss://fake.example"}); err != nil {
		t.Fatalf("Seeding the relay list failed: %+v", err)
	}

	build := func() *Client {
		c, err := New(kv, memory.NewStore(),
			&fakeRelayDialer{acceptPubs: true}, nopFetcher{},
			reconcile.NopContacts{}, reconcile.NopSink{}, testClientParams())
		if err != nil {
			t.Fatalf("New failed: %+v", err)
		}
		return c
	}

	first := build().PubKeyHex()
	second := build().PubKeyHex()
	if first != second {
		t.Errorf("Identity changed across restarts.\nfirst:  %s\nsecond: %s",
			first, second)
	}
}

// Tests that Logout wipes the owner's stored rows.
func TestClient_Logout(t *testing.T) {
	kv := ekv.MakeMemstore()
	if err := (&relayList{kv: kv}).Set(
		[]string{"wss://fake.example"}); err != nil {
		t.Fatalf("Seeding the relay list failed: %+v", err)
	}

	st := memory.NewStore()
	c, err := New(kv, st, &fakeRelayDialer{acceptPubs: true}, nopFetcher{},
		reconcile.NopContacts{}, reconcile.NopSink{}, testClientParams())
	if err != nil {
		t.Fatalf("New failed: %+v", err)
	}
	if err = c.Start(); err != nil {
		t.Fatalf("Start failed: %+v", err)
	}
	waitUntil(t, "the relay to connect", func() bool {
		return c.Connectivity() == Online
	})

	member, err := identity.Generate()
	if err != nil {
		t.Fatalf("Generate failed: %+v", err)
	}
	if _, err = c.CreateSession("gone soon",
		[]string{member.PubKey.Hex()}); err != nil {
		t.Fatalf("CreateSession failed: %+v", err)
	}

	owner := c.PubKeyHex()
	if err = c.Logout(); err != nil {
		t.Fatalf("Logout failed: %+v", err)
	}

	sessions, err := st.Sessions(owner)
	if err != nil {
		t.Fatalf("Sessions failed: %+v", err)
	}
	if len(sessions) != 0 {
		t.Errorf("Logout left %d sessions behind.", len(sessions))
	}
}
