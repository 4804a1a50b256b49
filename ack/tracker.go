////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

// Package ack resolves a multi-relay publish into a single logical outcome:
// accepted by at least one relay, rejected by every relay that could still
// answer, or timed out. The tracker is owned by the client's event loop and
// must only be touched from that loop; timeout timers post back into the
// loop rather than mutating state directly.
package ack

import (
	"time"

	"github.com/pkg/errors"
	jww "github.com/spf13/jwalterweatherman"
)

var (
	// ErrRejected is wrapped with the relay-reported reason when every relay
	// in the expected set explicitly rejected the publish.
	ErrRejected = errors.New("publish rejected by every relay")

	// ErrTimedOut means no relay acknowledged before the deadline.
	ErrTimedOut = errors.New("no relay acknowledged the publish in time")

	// ErrShutdown resolves every pending publish when the client stops.
	ErrShutdown = errors.New("client stopped while publish was pending")
)

// Result is the terminal outcome of one tracked publish.
type Result struct {
	RumorID string
	Err     error
}

// pending is one in-flight publish awaiting first-success-or-all-rejected
// across its expected relay set.
type pending struct {
	rumorID    string
	expected   map[string]struct{}
	lastReason string
	timer      *time.Timer
	resolve    func(Result)
}

// Tracker keys pending publishes by their designated envelope ID. The map is
// bounded in practice by the number of concurrently awaited sends; entries
// are removed on resolution, so nothing accretes.
type Tracker struct {
	pending map[string]*pending

	// timeoutPost marshals a fired timeout back onto the owning loop, which
	// then calls TimedOut. Timers never mutate tracker state themselves.
	timeoutPost func(ackID string)
}

// NewTracker builds a Tracker. timeoutPost must hand the ID to the owning
// event loop.
func NewTracker(timeoutPost func(ackID string)) *Tracker {
	return &Tracker{
		pending:     make(map[string]*pending),
		timeoutPost: timeoutPost,
	}
}

// Register adds a pending publish. expectedURLs is the set of relays the
// envelopes were actually written to; resolve fires exactly once with the
// terminal outcome.
func (t *Tracker) Register(ackID, rumorID string, expectedURLs []string,
	timeout time.Duration, resolve func(Result)) {
	p := &pending{
		rumorID:  rumorID,
		expected: make(map[string]struct{}, len(expectedURLs)),
		resolve:  resolve,
	}
	for _, u := range expectedURLs {
		p.expected[u] = struct{}{}
	}
	p.timer = time.AfterFunc(timeout, func() { t.timeoutPost(ackID) })
	t.pending[ackID] = p

	jww.DEBUG.Printf("Tracking publish %s across %d relays",
		ackID, len(expectedURLs))
}

// Accept records a relay's acceptance. The first accept resolves the publish
// as a success; responses from the remaining relays are ignored.
func (t *Tracker) Accept(relayURL, ackID string) {
	p, ok := t.pending[ackID]
	if !ok {
		return
	}
	jww.DEBUG.Printf("Relay %s accepted publish %s", relayURL, ackID)
	t.conclude(ackID, p, Result{RumorID: p.rumorID})
}

// Reject removes the relay from the expected set and records its reason. An
// expected set run empty resolves the publish as rejected with the most
// recent reason.
func (t *Tracker) Reject(relayURL, ackID, reason string) {
	p, ok := t.pending[ackID]
	if !ok {
		return
	}
	if _, inSet := p.expected[relayURL]; !inSet {
		return
	}
	delete(p.expected, relayURL)
	if reason != "" {
		p.lastReason = reason
	}
	jww.INFO.Printf("Relay %s rejected publish %s: %s", relayURL, ackID, reason)

	if len(p.expected) == 0 {
		t.conclude(ackID, p, Result{
			RumorID: p.rumorID,
			Err:     errors.Wrap(ErrRejected, p.lastReason),
		})
	}
}

// RelayGone removes a disconnected relay from every pending publish's
// expected set, exactly as a rejection would, so a flapping relay cannot
// block completion indefinitely.
func (t *Tracker) RelayGone(relayURL string) {
	for ackID, p := range t.pending {
		if _, inSet := p.expected[relayURL]; !inSet {
			continue
		}
		delete(p.expected, relayURL)
		if len(p.expected) == 0 {
			reason := p.lastReason
			if reason == "" {
				reason = "every relay disconnected before acknowledging"
			}
			t.conclude(ackID, p, Result{
				RumorID: p.rumorID,
				Err:     errors.Wrap(ErrRejected, reason),
			})
		}
	}
}

// TimedOut resolves a publish as timed out. Called by the owning loop when a
// timeout posted via timeoutPost arrives; a publish resolved in the interim
// is a no-op.
func (t *Tracker) TimedOut(ackID string) {
	p, ok := t.pending[ackID]
	if !ok {
		return
	}
	t.conclude(ackID, p, Result{RumorID: p.rumorID, Err: ErrTimedOut})
}

// FailAll resolves every pending publish as failed. Used on shutdown so no
// waiter is left hanging.
func (t *Tracker) FailAll() {
	for ackID, p := range t.pending {
		t.conclude(ackID, p, Result{RumorID: p.rumorID, Err: ErrShutdown})
	}
}

// NumPending returns the number of in-flight publishes.
func (t *Tracker) NumPending() int {
	return len(t.pending)
}

// conclude fires the resolution exactly once: the entry is removed from the
// map before resolve runs, and the timeout timer is cancelled so it cannot
// fire later.
func (t *Tracker) conclude(ackID string, p *pending, r Result) {
	delete(t.pending, ackID)
	p.timer.Stop()
	p.resolve(r)
}
