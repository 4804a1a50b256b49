////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

// Package backfill recovers historical envelopes the local identity missed:
// everything addressed to it and everything it authored, paged backward
// through time across every connected relay. Two pipelines run in parallel
// and terminate independently; each page waits for end-of-stream from every
// relay that was connected when the page opened, with disconnected relays
// dropped from the wait so one flaky relay cannot stall recovery.
//
// The pager is owned by the client's event loop; all methods must be called
// from that loop.
package backfill

import (
	"github.com/golang-collections/collections/set"
	jww "github.com/spf13/jwalterweatherman"

	"gitlab.com/quietmesh/murmur/relay"
)

// Deterministic subscription IDs. Reinstalling them after a reconnect is
// idempotent on the relay side.
const (
	RecipientSubID = "backfill-recipient"
	AuthorSubID    = "backfill-author"
)

// Requester is the slice of the connection manager the pager drives.
// *relay.Manager satisfies it.
type Requester interface {
	Subscribe(subID string, filter relay.Filter)
	CloseSubscription(subID string)
	ConnectedURLs() []string
}

// pipeline pages one historical query to completion.
type pipeline struct {
	subID      string
	baseFilter relay.Filter

	// until is the exclusive upper bound of the current page; zero on the
	// first page, meaning unbounded.
	until int64

	waitSet map[string]struct{}
	seen    *set.Set
	oldest  int64
	done    bool
}

// Pager drives both backfill pipelines.
type Pager struct {
	pageSize int
	req      Requester
	pipes    []*pipeline
	running  bool

	// onDone fires once when both pipelines have terminated. May be nil.
	onDone func()
}

// NewPager builds a Pager over the given filters. recipientFilter and
// authorFilter must not carry Until or Limit; the pager owns those.
func NewPager(pageSize int, req Requester,
	recipientFilter, authorFilter relay.Filter, onDone func()) *Pager {
	return &Pager{
		pageSize: pageSize,
		req:      req,
		onDone:   onDone,
		pipes: []*pipeline{
			{subID: RecipientSubID, baseFilter: recipientFilter},
			{subID: AuthorSubID, baseFilter: authorFilter},
		},
	}
}

// Start opens the first page of both pipelines. Starting a pager that is
// already running is a no-op; a pager that finished can be started again to
// re-sweep history.
func (p *Pager) Start() {
	if p.running {
		jww.DEBUG.Print("Backfill already running, ignoring start")
		return
	}
	p.running = true

	jww.INFO.Print("Starting backfill")
	for _, pipe := range p.pipes {
		pipe.until = 0
		pipe.done = false
		p.openPage(pipe)
	}
}

// Running returns true while either pipeline is still paging.
func (p *Pager) Running() bool {
	return p.running
}

// Done returns true once both pipelines have terminated.
func (p *Pager) Done() bool {
	for _, pipe := range p.pipes {
		if !pipe.done {
			return false
		}
	}
	return true
}

// Envelope records an envelope delivered on a backfill subscription; the
// pager only tracks page counts and timestamp watermarks. Content flows
// through the same inbound pipeline as live delivery, elsewhere. Events on
// non-backfill subscriptions are ignored.
func (p *Pager) Envelope(subID string, ev *relay.Event) {
	pipe := p.lookup(subID)
	if pipe == nil || pipe.done || !p.running {
		return
	}
	if pipe.seen.Has(ev.ID) {
		return
	}
	pipe.seen.Insert(ev.ID)
	if pipe.oldest == 0 || ev.CreatedAt < pipe.oldest {
		pipe.oldest = ev.CreatedAt
	}
}

// EndOfStream records a relay's end-of-stream for a backfill subscription.
// The page completes when every relay in its wait set has answered.
func (p *Pager) EndOfStream(relayURL, subID string) {
	pipe := p.lookup(subID)
	if pipe == nil || pipe.done || !p.running {
		return
	}
	delete(pipe.waitSet, relayURL)
	if len(pipe.waitSet) == 0 {
		p.completePage(pipe)
	}
}

// RelayGone removes a disconnected relay from every page's wait set, the
// same rule the acknowledgment tracker applies.
func (p *Pager) RelayGone(relayURL string) {
	if !p.running {
		return
	}
	for _, pipe := range p.pipes {
		if pipe.done {
			continue
		}
		if _, waiting := pipe.waitSet[relayURL]; !waiting {
			continue
		}
		delete(pipe.waitSet, relayURL)
		if len(pipe.waitSet) == 0 {
			p.completePage(pipe)
		}
	}
}

// openPage issues the pipeline's current page to every connected relay under
// its shared subscription ID.
func (p *Pager) openPage(pipe *pipeline) {
	urls := p.req.ConnectedURLs()
	if len(urls) == 0 {
		// Nobody to ask; the pipeline cannot make progress this run.
		jww.WARN.Printf("Backfill %s has no connected relays, stopping",
			pipe.subID)
		p.finishPipeline(pipe)
		return
	}

	pipe.waitSet = make(map[string]struct{}, len(urls))
	for _, u := range urls {
		pipe.waitSet[u] = struct{}{}
	}
	pipe.seen = set.New()
	pipe.oldest = 0

	filter := pipe.baseFilter
	filter.Limit = p.pageSize
	if pipe.until > 0 {
		filter.Until = pipe.until
	}

	jww.DEBUG.Printf("Backfill %s opening page until=%d across %d relays",
		pipe.subID, pipe.until, len(urls))
	p.req.Subscribe(pipe.subID, filter)
}

// completePage decides whether the pipeline is exhausted or needs another,
// older page. The next page's upper bound must strictly decrease; a relay
// serving overlapping pages would otherwise loop us forever.
func (p *Pager) completePage(pipe *pipeline) {
	p.req.CloseSubscription(pipe.subID)

	got := pipe.seen.Len()
	if got < p.pageSize {
		jww.INFO.Printf("Backfill %s finished: final page had %d envelopes",
			pipe.subID, got)
		p.finishPipeline(pipe)
		return
	}

	nextUntil := pipe.oldest - 1
	if pipe.oldest == 0 || (pipe.until > 0 && nextUntil >= pipe.until) {
		jww.WARN.Printf("Backfill %s aborted: page bound failed to "+
			"decrease (until=%d, next=%d)", pipe.subID, pipe.until, nextUntil)
		p.finishPipeline(pipe)
		return
	}

	pipe.until = nextUntil
	p.openPage(pipe)
}

func (p *Pager) finishPipeline(pipe *pipeline) {
	pipe.done = true
	pipe.waitSet = nil
	pipe.seen = nil

	if p.Done() {
		p.running = false
		jww.INFO.Print("Backfill complete")
		if p.onDone != nil {
			p.onDone()
		}
	}
}

func (p *Pager) lookup(subID string) *pipeline {
	for _, pipe := range p.pipes {
		if pipe.subID == subID {
			return pipe
		}
	}
	return nil
}
