////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

// Package client is the orchestrator: it owns the identity, the relay
// connection manager, the acknowledgment tracker, the backfill pager, the
// inbound processor, and the reconciler, and serializes all of their state
// onto one event loop. Relay callbacks arrive on connection goroutines and
// are posted onto the loop; user operations run on their own goroutines and
// post loop closures for anything touching shared state.
package client

import (
	"sync"
	"sync/atomic"

	"github.com/pkg/errors"
	jww "github.com/spf13/jwalterweatherman"
	"gitlab.com/elixxir/ekv"

	"gitlab.com/quietmesh/murmur/ack"
	"gitlab.com/quietmesh/murmur/backfill"
	"gitlab.com/quietmesh/murmur/envelope"
	"gitlab.com/quietmesh/murmur/event"
	"gitlab.com/quietmesh/murmur/identity"
	"gitlab.com/quietmesh/murmur/inbound"
	"gitlab.com/quietmesh/murmur/metadata"
	"gitlab.com/quietmesh/murmur/reconcile"
	"gitlab.com/quietmesh/murmur/relay"
	"gitlab.com/quietmesh/murmur/stoppable"
	"gitlab.com/quietmesh/murmur/store"
)

// Live subscription IDs. Deterministic, so reinstalls after a reconnect are
// idempotent on the relay side.
const (
	liveRecipientSubID = "live-recipient"
	liveAuthorSubID    = "live-author"
)

// callsBuffer sizes the loop's post queue. Connection goroutines block when
// it fills, which backpressures relay reads rather than dropping work.
const callsBuffer = 128

// Client is the top-level handle. Construct with New, then Start.
type Client struct {
	params Params

	kv       ekv.KeyValue
	idStore  *identity.Store
	ident    *identity.Identity
	relayCfg *relayList

	st      store.Store
	codec   envelope.Codec
	relays  *relay.Manager
	tracker *ack.Tracker
	pager   *backfill.Pager
	proc    *inbound.Processor
	rec     *reconcile.Reconciler
	refresh *metadata.Queue
	events  event.Manager

	// Loop-owned state. Only touched from run().
	relayStates   map[string]relay.State
	writeRejected map[string]bool
	pagerStarted  bool

	calls   chan func()
	running uint32
	stop    *stoppable.Multi

	errMux  sync.Mutex
	lastErr error
}

// New wires the client together. The identity is loaded or generated from kv;
// no network activity happens until Start.
func New(kv ekv.KeyValue, st store.Store, dialer relay.Dialer,
	fetcher metadata.Fetcher, contacts reconcile.ContactResolver,
	notify reconcile.NotificationSink, params Params) (*Client, error) {
	idStore := identity.NewStore(kv)
	ident, err := idStore.LoadOrGenerate()
	if err != nil {
		return nil, err
	}

	c := &Client{
		params:        params,
		kv:            kv,
		idStore:       idStore,
		ident:         ident,
		relayCfg:      &relayList{kv: kv},
		st:            st,
		events:        event.NewManager(),
		relayStates:   make(map[string]relay.State),
		writeRejected: make(map[string]bool),
		calls:         make(chan func(), callsBuffer),
	}
	ownerKey := ident.PubKey.Hex()

	// The refresh worker fetches off-loop but does all of its store access
	// through call, so the store keeps its single caller.
	c.refresh = metadata.NewQueue(st, fetcher, func(f func()) { c.call(f) })
	enqueueRefresh := func(messageID string) {
		c.refresh.Enqueue(ownerKey, messageID)
	}

	c.rec = reconcile.New(ident.PubKey, st, contacts, enqueueRefresh, notify)
	c.tracker = ack.NewTracker(func(ackID string) {
		c.post(func() { c.tracker.TimedOut(ackID) })
	})
	c.codec = envelope.NewXCodec()
	c.proc = inbound.NewProcessor(c.codec, ident,
		c.onRumor, c.messageExists, enqueueRefresh)

	c.relays = relay.NewManager(dialer, params.Relay, relay.Callbacks{
		Inbound:     c.onInbound,
		Ack:         c.onAck,
		EndOfStream: c.onEndOfStream,
		Status:      c.onStatus,
	})
	c.pager = backfill.NewPager(params.BackfillPageSize, c.relays,
		relay.Filter{
			Kinds: []int{relay.EnvelopeKind},
			Ps:    []string{ownerKey},
		},
		relay.Filter{
			Kinds:   []int{relay.EnvelopeKind},
			Authors: []string{ownerKey},
		},
		nil)

	return c, nil
}

// PubKeyHex returns the local identity's hex public key.
func (c *Client) PubKeyHex() string {
	return c.ident.PubKey.Hex()
}

// Start installs the live subscriptions, launches the event loop, and begins
// connecting to the configured relays. With an empty relay list the client
// still runs; operations fail with ErrNoRelays until SetRelays is called.
func (c *Client) Start() error {
	urls, err := c.relayCfg.LoadOrSeed()
	if err != nil {
		return err
	}

	// Installed before any connection exists so the manager replays them
	// onto every relay as it comes up.
	ownerKey := c.ident.PubKey.Hex()
	c.relays.Subscribe(liveRecipientSubID, relay.Filter{
		Kinds: []int{relay.EnvelopeKind},
		Ps:    []string{ownerKey},
	})
	c.relays.Subscribe(liveAuthorSubID, relay.Filter{
		Kinds:   []int{relay.EnvelopeKind},
		Authors: []string{ownerKey},
	})

	c.stop = stoppable.NewMulti("client")
	loopStop := stoppable.NewSingle("client-loop")
	c.stop.Add(loopStop)
	go c.run(loopStop)
	atomic.StoreUint32(&c.running, 1)

	evtStop, err := c.events.EventService()
	if err != nil {
		return err
	}
	c.stop.Add(evtStop)

	jww.INFO.Printf("Starting client %s with %d relays", ownerKey, len(urls))
	return c.relays.Start(urls)
}

// Stop tears the client down: sockets, reconnect timers, the refresh worker,
// and the event loop. Pending sends resolve with ack.ErrShutdown.
func (c *Client) Stop() error {
	c.relays.Stop()
	c.call(func() { c.tracker.FailAll() })
	c.refresh.Stop()
	atomic.StoreUint32(&c.running, 0)
	return c.stop.Close()
}

// Resume kicks every down relay into an immediate reconnect attempt and, if
// the previous backfill finished, sweeps history again. Called when the
// application returns to the foreground.
func (c *Client) Resume() {
	c.relays.Reconnect()
	c.post(func() {
		if c.pagerStarted && c.pager.Done() &&
			len(c.relays.ConnectedURLs()) > 0 {
			c.pager.Start()
		}
	})
}

// Logout wipes the local partition: pending metadata work, every stored row
// belonging to this identity, and the identity seed itself. The relay layer
// is stopped; a new identity is generated on the next Start.
func (c *Client) Logout() error {
	ownerKey := c.ident.PubKey.Hex()
	c.refresh.Clear()

	if err := c.st.DeleteOwner(ownerKey); err != nil {
		return errors.Wrap(err, "failed to delete local data on logout")
	}
	c.idStore.Clear()

	jww.INFO.Printf("Logged out %s", ownerKey)
	return c.Stop()
}

// Connectivity returns the aggregate relay state. Before Start and after
// Stop there is no loop to ask, so the client reports Offline.
func (c *Client) Connectivity() Connectivity {
	if atomic.LoadUint32(&c.running) == 0 {
		return Offline
	}
	var result Connectivity
	c.call(func() {
		result = deriveConnectivity(c.relayStates, c.writeRejected)
	})
	return result
}

// RelayURLs returns the persisted relay configuration.
func (c *Client) RelayURLs() ([]string, error) {
	return c.relayCfg.LoadOrSeed()
}

// SetRelays replaces the relay configuration and restarts the connection
// pool against it. An empty list is honored and persisted; it is not
// re-seeded with defaults.
func (c *Client) SetRelays(urls []string) error {
	if err := c.relayCfg.Set(urls); err != nil {
		return err
	}
	c.relays.Stop()
	c.call(func() {
		c.relayStates = make(map[string]relay.State)
		c.writeRejected = make(map[string]bool)
		c.tracker.FailAll()
	})
	return c.relays.Start(urls)
}

// RegisterEventCallback subscribes to client event reports.
func (c *Client) RegisterEventCallback(name string, cb event.Callback) error {
	return c.events.RegisterEventCallback(name, cb)
}

// LastError returns and clears the most recent operation failure. The UI
// surface polls this for its single error slot.
func (c *Client) LastError() error {
	c.errMux.Lock()
	defer c.errMux.Unlock()
	err := c.lastErr
	c.lastErr = nil
	return err
}

func (c *Client) recordError(err error) {
	c.errMux.Lock()
	c.lastErr = err
	c.errMux.Unlock()
}

// run is the event loop. Everything the relay callbacks and operations hand
// to post/call executes here, one closure at a time.
func (c *Client) run(stop *stoppable.Single) {
	for {
		select {
		case <-stop.Quit():
			stop.ToStopped()
			return
		case f := <-c.calls:
			f()
		}
	}
}

// post hands a closure to the event loop without waiting for it.
func (c *Client) post(f func()) {
	c.calls <- f
}

// call hands a closure to the event loop and waits for it to finish.
func (c *Client) call(f func()) {
	done := make(chan struct{})
	c.calls <- func() {
		f()
		close(done)
	}
	<-done
}

// Relay callbacks. Each arrives on a connection goroutine and is posted onto
// the loop untouched.

func (c *Client) onInbound(relayURL, subID string, ev *relay.Event) {
	c.post(func() {
		c.pager.Envelope(subID, ev)
		c.proc.Process(ev)
	})
}

func (c *Client) onAck(relayURL, eventID string, accepted bool, reason string) {
	c.post(func() {
		if accepted {
			delete(c.writeRejected, relayURL)
			c.tracker.Accept(relayURL, eventID)
		} else {
			c.writeRejected[relayURL] = true
			c.tracker.Reject(relayURL, eventID, reason)
		}
	})
}

func (c *Client) onEndOfStream(relayURL, subID string) {
	c.post(func() { c.pager.EndOfStream(relayURL, subID) })
}

func (c *Client) onStatus(relayURL string, state relay.State, reason string) {
	c.post(func() {
		if relayURL != "" {
			c.relayStates[relayURL] = state
		}
		switch state {
		case relay.StateConnected:
			delete(c.writeRejected, relayURL)
			// First connection starts the historical sweep; later
			// connections join the subscriptions the manager reinstalls.
			if !c.pagerStarted {
				c.pagerStarted = true
				c.pager.Start()
			}
		case relay.StateDisconnected, relay.StateFailed:
			c.tracker.RelayGone(relayURL)
			c.pager.RelayGone(relayURL)
		}
		if reason != "" {
			c.events.Report(5, "relay", state.String(),
				relayURL+": "+reason)
		}
	})
}

// onRumor receives each rumor exactly once from the inbound processor and
// folds it into the store. Store failures on this path are reported and
// swallowed; the rumor will come around again on the next backfill.
func (c *Client) onRumor(rumor *envelope.Rumor, payload *envelope.Payload) {
	if err := c.rec.Apply(rumor, payload); err != nil {
		jww.ERROR.Printf("Failed to apply rumor %s: %+v", rumor.ID, err)
		c.events.Report(10, "store", "applyFailure", err.Error())
	}
}

// messageExists backs the inbound processor's duplicate-root check.
func (c *Client) messageExists(rumorID string) bool {
	m, err := c.st.MessageByID(c.ident.PubKey.Hex(), rumorID)
	if err != nil {
		jww.WARN.Printf("Message lookup for %s failed: %+v", rumorID, err)
		return false
	}
	return m != nil
}
