////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

// Package event surfaces non-fatal client events (store faults during
// reconciliation, dropped envelopes, relay rejections) to embedding
// applications without interrupting the processing pipeline.
package event

import (
	"fmt"
	"sync"

	"github.com/pkg/errors"
	jww "github.com/spf13/jwalterweatherman"

	"gitlab.com/quietmesh/murmur/stoppable"
)

// reportableEvent is used to surface events to client users.
type reportableEvent struct {
	Priority  int
	Category  string
	EventType string
	Details   string
}

// String stringer interface implementation
func (e reportableEvent) String() string {
	return fmt.Sprintf("Event(%d, %s, %s, %s)", e.Priority, e.Category,
		e.EventType, e.Details)
}

// Holds state for the event reporting system
type eventManager struct {
	eventCh  chan reportableEvent
	eventCbs sync.Map
}

// NewManager returns a Manager with an empty callback registry.
func NewManager() Manager {
	return &eventManager{
		eventCh: make(chan reportableEvent, 1000),
	}
}

// Report reports an event from the client to api users, providing a priority,
// category, eventType, and details. Reports are dropped, with an error log,
// if the queue is full.
func (e *eventManager) Report(priority int, category, evtType, details string) {
	re := reportableEvent{
		Priority:  priority,
		Category:  category,
		EventType: evtType,
		Details:   details,
	}
	select {
	case e.eventCh <- re:
		jww.TRACE.Printf("Event reported: %s", re)
	default:
		jww.ERROR.Printf("Event queue full, unable to report: %s", re)
	}
}

// RegisterEventCallback records the given function to receive events. The
// name must be unique among registered callbacks.
func (e *eventManager) RegisterEventCallback(name string, myFunc Callback) error {
	_, existsAlready := e.eventCbs.LoadOrStore(name, myFunc)
	if existsAlready {
		return errors.Errorf("key %s already exists as event callback", name)
	}
	return nil
}

// UnregisterEventCallback deletes the callback identified by name.
func (e *eventManager) UnregisterEventCallback(name string) {
	e.eventCbs.Delete(name)
}

// EventService starts the report delivery thread and returns its stoppable.
func (e *eventManager) EventService() (stoppable.Stoppable, error) {
	stop := stoppable.NewSingle("EventReporting")
	go e.reportEventsHandler(stop)
	return stop, nil
}

// reportEventsHandler reports events to every registered event callback.
func (e *eventManager) reportEventsHandler(stop *stoppable.Single) {
	jww.DEBUG.Print("reportEventsHandler routine started")
	for {
		select {
		case <-stop.Quit():
			stop.ToStopped()
			return
		case evt := <-e.eventCh:
			// Callbacks run on this thread; it is the embedder's job to keep
			// them short.
			e.eventCbs.Range(func(name, myFunc interface{}) bool {
				f := myFunc.(Callback)
				f(evt.Priority, evt.Category, evt.EventType, evt.Details)
				return true
			})
		}
	}
}
