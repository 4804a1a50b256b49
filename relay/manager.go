////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

package relay

import (
	"net/url"
	"sync"

	"github.com/pkg/errors"
	jww "github.com/spf13/jwalterweatherman"
)

// Callbacks are the manager's push interface toward the client layer. All of
// them are invoked from connection goroutines; the client layer is expected
// to marshal them onto its own serialized context before touching shared
// state. Nil callbacks are skipped.
type Callbacks struct {
	// Inbound delivers an event received on a subscription.
	Inbound func(relayURL, subID string, ev *Event)

	// Ack delivers a relay's accept/reject response for a published event.
	Ack func(relayURL, eventID string, accepted bool, reason string)

	// EndOfStream signals that a relay finished replaying stored events for
	// a subscription.
	EndOfStream func(relayURL, subID string)

	// Status reports relay lifecycle transitions.
	Status func(relayURL string, state State, reason string)
}

// Manager owns one connection per configured relay URL, reconnects dropped
// connections with growing delays, and re-installs every standing
// subscription when a relay comes (back) up. None of its methods block on
// network I/O.
type Manager struct {
	dialer Dialer
	params Params
	cbs    Callbacks

	mux     sync.Mutex
	running bool
	conns   map[string]*connection
	subs    map[string]Filter
}

// NewManager builds an unstarted Manager.
func NewManager(dialer Dialer, params Params, cbs Callbacks) *Manager {
	return &Manager{
		dialer: dialer,
		params: params,
		cbs:    cbs,
		conns:  make(map[string]*connection),
		subs:   make(map[string]Filter),
	}
}

// Start begins connecting to the given relay URLs. Invalid URLs are reported
// individually through the Status callback and do not block valid ones; if
// no URL is valid a single synthetic failure is reported and no connection
// is attempted. Returns an error only if the manager is already running.
func (m *Manager) Start(relayURLs []string) error {
	m.mux.Lock()
	if m.running {
		m.mux.Unlock()
		return errors.New("relay manager is already running")
	}
	m.running = true

	var started []*connection
	valid := 0
	for _, u := range relayURLs {
		if reason, ok := checkRelayURL(u); !ok {
			jww.WARN.Printf("Skipping relay %q: %s", u, reason)
			m.notifyStatusAsync(u, StateFailed, reason)
			continue
		}
		if _, exists := m.conns[u]; exists {
			continue
		}
		valid++
		c := newConnection(u, m)
		m.conns[u] = c
		started = append(started, c)
	}
	m.mux.Unlock()

	if valid == 0 {
		m.notifyStatusAsync("", StateFailed, "no valid relay URLs configured")
		return nil
	}

	for _, c := range started {
		go c.connect()
	}
	return nil
}

// Stop tears down every connection and cancels pending reconnects. The
// manager can be started again afterward.
func (m *Manager) Stop() {
	m.mux.Lock()
	conns := m.conns
	m.conns = make(map[string]*connection)
	m.running = false
	m.mux.Unlock()

	for _, c := range conns {
		c.shutdown()
	}
}

// Publish writes the event to every currently-connected relay and returns
// the URLs it was written to. Acceptance arrives later via the Ack callback.
func (m *Manager) Publish(ev *Event) ([]string, error) {
	frame, err := EventFrame(ev)
	if err != nil {
		return nil, errors.Wrap(err, "failed to encode publish frame")
	}

	var published []string
	for _, c := range m.connections() {
		if sendErr := c.send(frame); sendErr == nil {
			published = append(published, c.url)
		}
	}
	return published, nil
}

// Subscribe installs a standing subscription under the given deterministic
// ID. It is sent to every currently-connected relay now and re-sent to each
// relay on every future (re)connect. Installing the same ID again replaces
// the filter; relays treat a repeated REQ with a known ID as a replacement,
// so installs are idempotent.
func (m *Manager) Subscribe(subID string, filter Filter) {
	m.mux.Lock()
	m.subs[subID] = filter
	m.mux.Unlock()

	frame, err := ReqFrame(subID, filter)
	if err != nil {
		jww.ERROR.Printf("Failed to encode REQ for %q: %+v", subID, err)
		return
	}
	for _, c := range m.connections() {
		_ = c.send(frame)
	}
}

// CloseSubscription removes a standing subscription and tells connected
// relays to stop serving it.
func (m *Manager) CloseSubscription(subID string) {
	m.mux.Lock()
	delete(m.subs, subID)
	m.mux.Unlock()

	frame, err := CloseFrame(subID)
	if err != nil {
		jww.ERROR.Printf("Failed to encode CLOSE for %q: %+v", subID, err)
		return
	}
	for _, c := range m.connections() {
		_ = c.send(frame)
	}
}

// ConnectedURLs returns the URLs of every relay currently connected.
func (m *Manager) ConnectedURLs() []string {
	var urls []string
	for _, c := range m.connections() {
		if c.isConnected() {
			urls = append(urls, c.url)
		}
	}
	return urls
}

// NumConfigured returns how many relay connections the manager owns,
// connected or not.
func (m *Manager) NumConfigured() int {
	m.mux.Lock()
	defer m.mux.Unlock()
	return len(m.conns)
}

// Reconnect requests an immediate connection attempt on every relay that is
// not currently connected, collapsing any scheduled backoff delay. Used when
// the application returns to the foreground.
func (m *Manager) Reconnect() {
	for _, c := range m.connections() {
		c.retryNow()
	}
}

// connections snapshots the connection set without holding the lock during
// I/O.
func (m *Manager) connections() []*connection {
	m.mux.Lock()
	defer m.mux.Unlock()
	out := make([]*connection, 0, len(m.conns))
	for _, c := range m.conns {
		out = append(out, c)
	}
	return out
}

// installSubscriptions replays every standing subscription onto a freshly
// connected relay. Subscription IDs are deterministic, so repeats after a
// reconnect are safe.
func (m *Manager) installSubscriptions(c *connection) {
	m.mux.Lock()
	subs := make(map[string]Filter, len(m.subs))
	for id, f := range m.subs {
		subs[id] = f
	}
	m.mux.Unlock()

	for id, f := range subs {
		frame, err := ReqFrame(id, f)
		if err != nil {
			jww.ERROR.Printf("Failed to encode REQ for %q: %+v", id, err)
			continue
		}
		if err = c.send(frame); err != nil {
			jww.WARN.Printf("Failed to install subscription %q on %s: %+v",
				id, c.url, err)
			return
		}
	}
}

func (m *Manager) notifyStatus(relayURL string, state State, reason string) {
	if m.cbs.Status != nil {
		m.cbs.Status(relayURL, state, reason)
	}
}

// notifyStatusAsync reports a status transition without blocking the caller;
// used on paths where the callback may re-enter the manager.
func (m *Manager) notifyStatusAsync(relayURL string, state State, reason string) {
	if m.cbs.Status != nil {
		go m.cbs.Status(relayURL, state, reason)
	}
}

// checkRelayURL validates a relay URL, returning a reason when unusable.
func checkRelayURL(raw string) (string, bool) {
	u, err := url.Parse(raw)
	if err != nil {
		return "unparseable URL", false
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return "scheme must be ws or wss", false
	}
	if u.Host == "" {
		return "missing host", false
	}
	return "", true
}
