////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

package stoppable

import (
	"sync"
	"sync/atomic"

	"github.com/pkg/errors"
	jww "github.com/spf13/jwalterweatherman"
)

// Single allows stopping a single goroutine using a channel. It adheres to
// the Stoppable interface.
type Single struct {
	name   string
	quit   chan struct{}
	status Status
	once   sync.Once
}

// NewSingle returns a new single Stoppable.
func NewSingle(name string) *Single {
	return &Single{
		name:   name,
		quit:   make(chan struct{}, 1),
		status: Running,
	}
}

// Name returns the name of the Single Stoppable.
func (s *Single) Name() string {
	return s.name
}

// GetStatus returns the status of the Stoppable.
func (s *Single) GetStatus() Status {
	return Status(atomic.LoadUint32((*uint32)(&s.status)))
}

// IsRunning returns true if the Stoppable is marked as running.
func (s *Single) IsRunning() bool {
	return s.GetStatus() == Running
}

// Quit returns a receive-only channel that is triggered when the Stoppable
// is closed.
func (s *Single) Quit() <-chan struct{} {
	return s.quit
}

// ToStopped marks the Stoppable as stopped. It must only be called by the
// goroutine the Stoppable controls, after it has observed the quit channel.
// Panics if the status is not Stopping.
func (s *Single) ToStopped() {
	if !atomic.CompareAndSwapUint32(
		(*uint32)(&s.status), uint32(Stopping), uint32(Stopped)) {
		jww.FATAL.Panicf("Failed to set the status of stoppable %q to %s "+
			"when status is %s instead of %s.",
			s.name, Stopped, s.GetStatus(), Stopping)
	}

	jww.TRACE.Printf("Stoppable %q switched from %s to %s.",
		s.name, Stopping, Stopped)
}

// Close signals the controlled goroutine to quit. Returns an error if the
// Stoppable was not running. Subsequent calls are no-ops that return the
// first call's result.
func (s *Single) Close() error {
	var err error
	s.once.Do(func() {
		if !atomic.CompareAndSwapUint32(
			(*uint32)(&s.status), uint32(Running), uint32(Stopping)) {
			err = errors.Errorf("cannot close stoppable %q with status %s",
				s.name, s.GetStatus())
			return
		}

		jww.TRACE.Printf("Sending quit signal to stoppable %q.", s.name)
		s.quit <- struct{}{}
	})

	if err != nil {
		jww.ERROR.Print(err.Error())
	}

	return err
}
