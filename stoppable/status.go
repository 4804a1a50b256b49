////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

package stoppable

import "strconv"

// Status holds the current status of a Stoppable.
type Status uint32

const (
	// Running signifies that the Stoppable has not been closed.
	Running Status = 0

	// Stopping signifies that the Stoppable has been signalled to close but
	// its goroutine has not yet observed the quit channel.
	Stopping Status = 1

	// Stopped signifies that the controlled goroutine has exited.
	Stopped Status = 2
)

// String prints a string representation of the Status. This functions
// satisfies the fmt.Stringer interface.
func (s Status) String() string {
	switch s {
	case Running:
		return "running"
	case Stopping:
		return "stopping"
	case Stopped:
		return "stopped"
	default:
		return "INVALID STATUS: " + strconv.FormatUint(uint64(s), 10)
	}
}
