////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

// Package metadata runs the single-flight link-preview refresh worker.
// Requests are deduplicated against an in-flight set, drained strictly one
// at a time, and written back only when the fetched metadata differs from
// what is stored. The drain loop exits when the queue is empty; because the
// empty check and enqueue share one lock, work enqueued during an in-flight
// fetch is always observed and no wake-up is lost.
//
// Only the fetch itself happens on the drain goroutine. The store lookup and
// write-back are handed to the exec dispatcher, which the owner points at its
// serialized execution context, so the store never sees a second caller.
package metadata

import (
	"os"
	"sync"

	"github.com/golang-collections/collections/queue"
	"github.com/golang-collections/collections/set"
	jww "github.com/spf13/jwalterweatherman"

	"gitlab.com/quietmesh/murmur/store"
)

// Preview is fetched link metadata. Either field may be empty.
type Preview struct {
	Title         string
	ThumbnailPath string
}

// Fetcher fetches link previews. Best effort: nil means the fetch yielded
// nothing usable.
type Fetcher interface {
	FetchPreview(url string) *Preview
}

type item struct {
	ownerKey  string
	messageID string
}

// Queue is the refresh worker.
type Queue struct {
	st      store.Store
	fetcher Fetcher
	exec    func(func())

	mux      sync.Mutex
	idle     *sync.Cond
	fifo     *queue.Queue
	inFlight *set.Set
	draining bool
	stopped  bool
}

// NewQueue builds an idle Queue. exec must run the given closure on the
// store's single execution context and not return until it has finished.
func NewQueue(st store.Store, fetcher Fetcher, exec func(func())) *Queue {
	q := &Queue{
		st:       st,
		fetcher:  fetcher,
		exec:     exec,
		fifo:     queue.New(),
		inFlight: set.New(),
	}
	q.idle = sync.NewCond(&q.mux)
	return q
}

// Enqueue requests a refresh for the given message. Requests already queued
// or currently being fetched are dropped. Spawns the drain loop if idle.
func (q *Queue) Enqueue(ownerKey, messageID string) {
	q.mux.Lock()
	defer q.mux.Unlock()

	if q.stopped {
		return
	}
	if q.inFlight.Has(messageID) {
		return
	}
	q.inFlight.Insert(messageID)
	q.fifo.Enqueue(item{ownerKey: ownerKey, messageID: messageID})

	if !q.draining {
		q.draining = true
		go q.drain()
	}
}

// Clear wipes all pending and in-flight bookkeeping. Called on logout. A
// fetch already handed to the Fetcher finishes but its result is written
// against a store row that no longer exists, which the store treats as a
// no-op.
func (q *Queue) Clear() {
	q.mux.Lock()
	defer q.mux.Unlock()
	q.fifo = queue.New()
	q.inFlight = set.New()
}

// Stop permanently idles the queue and waits for any in-flight fetch to
// finish, so the owner can tear down its execution context afterward without
// stranding a dispatched closure.
func (q *Queue) Stop() {
	q.mux.Lock()
	defer q.mux.Unlock()
	q.stopped = true
	q.fifo = queue.New()
	q.inFlight = set.New()
	for q.draining {
		q.idle.Wait()
	}
}

// drain pops one request at a time until the queue is empty.
func (q *Queue) drain() {
	for {
		q.mux.Lock()
		if q.stopped || q.fifo.Len() == 0 {
			q.draining = false
			q.idle.Broadcast()
			q.mux.Unlock()
			return
		}
		it := q.fifo.Dequeue().(item)
		q.mux.Unlock()

		q.process(it)

		q.mux.Lock()
		q.inFlight.Remove(it.messageID)
		q.mux.Unlock()
	}
}

// process fetches and conditionally writes back one message's metadata. The
// store calls are dispatched through exec; only the fetch runs here.
func (q *Queue) process(it item) {
	var m *store.Message
	var err error
	q.exec(func() { m, err = q.st.MessageByID(it.ownerKey, it.messageID) })
	if err != nil {
		jww.WARN.Printf("Metadata refresh for %s: lookup failed: %+v",
			it.messageID, err)
		return
	}
	if m == nil {
		return
	}

	// A thumbnail evicted from the cache directory behind our back counts
	// as missing, so the ref is only satisfied if the file is still there.
	thumbSatisfied := m.CachedMediaRef != "" && fileExists(m.CachedMediaRef)
	if m.Title != "" && thumbSatisfied {
		return
	}

	p := q.fetcher.FetchPreview(m.URL)
	if p == nil {
		return
	}

	title := m.Title
	if p.Title != "" {
		title = p.Title
	}
	mediaRef := m.CachedMediaRef
	if !thumbSatisfied && p.ThumbnailPath != "" {
		mediaRef = p.ThumbnailPath
	}

	if title == m.Title && mediaRef == m.CachedMediaRef {
		return
	}

	q.exec(func() {
		err = q.st.SetMessageMetadata(it.ownerKey, it.messageID, title,
			mediaRef)
	})
	if err != nil {
		jww.WARN.Printf("Metadata refresh for %s: write-back failed: %+v",
			it.messageID, err)
		return
	}
	jww.TRACE.Printf("Refreshed metadata for message %s", it.messageID)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
