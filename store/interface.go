////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

// Package store defines the owner-partitioned persistence consumed by the
// reconciler and orchestrator. Every operation is scoped by the owner key
// (the hex public key of the local identity) and no call ever reads or
// writes another owner's rows. Watermark-guarded operations (sessions,
// member snapshots, reactions) apply last-writer-wins inside the store so
// the check-and-set is atomic.
package store

// Session is a multi-party conversation container.
type Session struct {
	OwnerKey     string
	SessionID    string
	Name         string
	CreatedByKey string
	CreatedAt    int64
	UpdatedAt    int64
	IsArchived   bool
}

// Member is one row of a session's membership snapshot. Deactivated members
// keep their row; membership is a replaceable snapshot, not an append log.
type Member struct {
	OwnerKey  string
	SessionID string
	MemberKey string
	IsActive  bool
	UpdatedAt int64
}

// Message is a stored root post. EventID is the originating rumor ID and is
// the row key; RootID is the sender-generated post ID reactions reference.
type Message struct {
	OwnerKey       string
	EventID        string
	SessionID      string
	RootID         string
	SenderKey      string
	URL            string
	Note           string
	Title          string
	Timestamp      int64
	ReadAt         int64
	CachedMediaRef string
}

// Reaction is a single-emoji reaction row, keyed by
// (owner, session, post, emoji, sender).
type Reaction struct {
	OwnerKey  string
	SessionID string
	PostID    string
	Emoji     string
	SenderKey string
	IsActive  bool
	UpdatedAt int64
}

// Store is the persistence contract. Implementations need not be thread
// safe; all mutation arrives from the client's single execution context.
type Store interface {
	// UpsertSession creates the session if absent, else updates name,
	// archive flag, and watermark iff s.UpdatedAt >= the stored watermark.
	// Returns whether the write was applied.
	UpsertSession(s Session) (bool, error)

	// SessionByID returns nil without error when the session does not exist.
	SessionByID(ownerKey, sessionID string) (*Session, error)

	Sessions(ownerKey string) ([]Session, error)

	// ApplyMemberSnapshot replaces the session's member set: keys present in
	// the snapshot are activated, keys absent are deactivated, each row
	// individually guarded by its own watermark against ts. Stale snapshots
	// are dropped per-row, not globally.
	ApplyMemberSnapshot(
		ownerKey, sessionID string, memberKeys []string, ts int64) error

	ActiveMembers(ownerKey, sessionID string) ([]Member, error)

	// InsertMessage inserts the message iff no row with the same
	// (owner, event ID) exists. Returns whether a row was inserted.
	InsertMessage(m Message) (bool, error)

	// MessageByID returns nil without error when the message does not exist.
	MessageByID(ownerKey, eventID string) (*Message, error)

	RootMessages(ownerKey, sessionID string) ([]Message, error)

	MarkRead(ownerKey, eventID string, readAt int64) error

	// SetMessageMetadata stores fetched link-preview metadata.
	SetMessageMetadata(ownerKey, eventID, title, mediaRef string) error

	// UpsertReaction applies the reaction iff r.UpdatedAt >= the stored
	// row's watermark. Returns whether the write was applied.
	UpsertReaction(r Reaction) (bool, error)

	ReactionsForMessage(ownerKey, postID string) ([]Reaction, error)

	// DeleteOwner removes every row belonging to the owner. Logout cascade.
	DeleteOwner(ownerKey string) error
}
