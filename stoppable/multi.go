////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

package stoppable

import (
	"strings"
	"sync"

	"github.com/pkg/errors"
)

// Multi aggregates a group of Stoppables so they can be closed as a unit. It
// adheres to the Stoppable interface.
type Multi struct {
	name       string
	stoppables []Stoppable
	mux        sync.RWMutex
	once       sync.Once
}

// NewMulti returns a new empty Multi Stoppable.
func NewMulti(name string) *Multi {
	return &Multi{name: name}
}

// Add appends the given Stoppable to the group.
func (m *Multi) Add(stoppable Stoppable) {
	m.mux.Lock()
	m.stoppables = append(m.stoppables, stoppable)
	m.mux.Unlock()
}

// Name returns the name of the Multi Stoppable and the names of all the
// Stoppables it contains.
func (m *Multi) Name() string {
	m.mux.RLock()
	defer m.mux.RUnlock()

	names := make([]string, len(m.stoppables))
	for i, s := range m.stoppables {
		names[i] = s.Name()
	}

	return m.name + "{" + strings.Join(names, ", ") + "}"
}

// GetStatus returns the lowest status of all the contained Stoppables. An
// empty Multi reports Stopped.
func (m *Multi) GetStatus() Status {
	m.mux.RLock()
	defer m.mux.RUnlock()

	lowest := Stopped
	for _, s := range m.stoppables {
		if status := s.GetStatus(); status < lowest {
			lowest = status
		}
	}

	return lowest
}

// IsRunning returns true if any contained Stoppable is still running.
func (m *Multi) IsRunning() bool {
	return m.GetStatus() == Running
}

// Close closes all the contained Stoppables concurrently and waits for all of
// them to return. Returns an error listing each Stoppable that failed to
// close. Subsequent calls are no-ops.
func (m *Multi) Close() error {
	var err error
	m.once.Do(func() {
		m.mux.RLock()
		defer m.mux.RUnlock()

		var wg sync.WaitGroup
		var mux sync.Mutex
		var failed []string

		for _, s := range m.stoppables {
			wg.Add(1)
			go func(s Stoppable) {
				defer wg.Done()
				if closeErr := s.Close(); closeErr != nil {
					mux.Lock()
					failed = append(failed, s.Name())
					mux.Unlock()
				}
			}(s)
		}

		wg.Wait()

		if len(failed) > 0 {
			err = errors.Errorf("multi stoppable %q failed to close: %s",
				m.name, strings.Join(failed, ", "))
		}
	})

	return err
}
