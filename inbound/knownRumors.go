////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

package inbound

import (
	"github.com/golang-collections/collections/queue"
	"github.com/golang-collections/collections/set"
)

// knownRumors is a bounded, insertion-ordered set of processed rumor IDs.
// When full, admitting a new ID evicts the oldest one. A FIFO carries the
// eviction order and a set carries membership, so it can never grow without
// bound no matter how much history relays replay.
type knownRumors struct {
	capacity int
	order    *queue.Queue
	present  *set.Set
}

func newKnownRumors(capacity int) *knownRumors {
	return &knownRumors{
		capacity: capacity,
		order:    queue.New(),
		present:  set.New(),
	}
}

// Admit returns true and records the ID if it has not been seen; returns
// false for a duplicate without modifying the set.
func (k *knownRumors) Admit(id string) bool {
	if k.present.Has(id) {
		return false
	}

	if k.order.Len() >= k.capacity {
		k.present.Remove(k.order.Dequeue())
	}
	k.order.Enqueue(id)
	k.present.Insert(id)
	return true
}

// Len returns the number of IDs currently held.
func (k *knownRumors) Len() int {
	return k.present.Len()
}
