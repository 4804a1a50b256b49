////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

package catalog

import "fmt"

// PayloadType identifies the decoded body of a rumor. The zero value is not a
// valid type so that an unset field in a decoded payload is caught by
// validation.
type PayloadType uint32

const (
	// SessionCreate announces a new session and its initial member set.
	SessionCreate PayloadType = 1

	// SessionMembers replaces a session's member set with a new snapshot.
	SessionMembers PayloadType = 2

	// Root carries a root post (a URL plus an optional note).
	Root PayloadType = 3

	// Reaction toggles a single-emoji reaction on a root post.
	Reaction PayloadType = 4
)

// String returns a human-readable form of the PayloadType for logging and
// debugging. This adheres to the fmt.Stringer interface.
func (pt PayloadType) String() string {
	switch pt {
	case SessionCreate:
		return "SessionCreate"
	case SessionMembers:
		return "SessionMembers"
	case Root:
		return "Root"
	case Reaction:
		return "Reaction"
	default:
		return fmt.Sprintf("Unknown PayloadType %d", uint32(pt))
	}
}

// Valid returns true if the PayloadType is one of the known variants.
func (pt PayloadType) Valid() bool {
	return pt >= SessionCreate && pt <= Reaction
}
