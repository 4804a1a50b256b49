////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

package sqlite

import "gitlab.com/quietmesh/murmur/store"

// Session defines the sqlite representation of a single Session.
//
// A Session has many Member, Message, and Reaction rows.
type Session struct {
	OwnerKey     string `gorm:"primaryKey;not null"`
	SessionId    string `gorm:"primaryKey;not null"`
	Name         string `gorm:"not null"`
	CreatedByKey string `gorm:"not null"`
	CreatedAt    int64  `gorm:"not null"`
	UpdatedAt    int64  `gorm:"not null;index"`
	IsArchived   bool   `gorm:"not null"`
}

// TableName overrides the table name used by Session.
func (Session) TableName() string {
	return "sessions"
}

// Member defines the sqlite representation of a single membership row.
type Member struct {
	OwnerKey  string `gorm:"primaryKey;not null"`
	SessionId string `gorm:"primaryKey;not null"`
	MemberKey string `gorm:"primaryKey;not null"`
	IsActive  bool   `gorm:"not null"`
	UpdatedAt int64  `gorm:"not null"`
}

// TableName overrides the table name used by Member.
func (Member) TableName() string {
	return "session_members"
}

// Message defines the sqlite representation of a single root post.
type Message struct {
	OwnerKey       string `gorm:"primaryKey;not null"`
	EventId        string `gorm:"primaryKey;not null"`
	SessionId      string `gorm:"index;not null"`
	RootId         string `gorm:"not null"`
	SenderKey      string `gorm:"index;not null"`
	Url            string `gorm:"not null"`
	Note           string `gorm:""`
	Title          string `gorm:""`
	Timestamp      int64  `gorm:"index;not null"`
	ReadAt         int64  `gorm:""`
	CachedMediaRef string `gorm:""`
}

// TableName overrides the table name used by Message.
func (Message) TableName() string {
	return "messages"
}

// Reaction defines the sqlite representation of a single reaction row.
type Reaction struct {
	OwnerKey  string `gorm:"primaryKey;not null"`
	SessionId string `gorm:"primaryKey;not null"`
	PostId    string `gorm:"primaryKey;not null"`
	Emoji     string `gorm:"primaryKey;not null"`
	SenderKey string `gorm:"primaryKey;not null"`
	IsActive  bool   `gorm:"not null"`
	UpdatedAt int64  `gorm:"not null"`
}

// TableName overrides the table name used by Reaction.
func (Reaction) TableName() string {
	return "reactions"
}

func toStoreSession(s *Session) *store.Session {
	return &store.Session{
		OwnerKey:     s.OwnerKey,
		SessionID:    s.SessionId,
		Name:         s.Name,
		CreatedByKey: s.CreatedByKey,
		CreatedAt:    s.CreatedAt,
		UpdatedAt:    s.UpdatedAt,
		IsArchived:   s.IsArchived,
	}
}

func toStoreMember(m *Member) store.Member {
	return store.Member{
		OwnerKey:  m.OwnerKey,
		SessionID: m.SessionId,
		MemberKey: m.MemberKey,
		IsActive:  m.IsActive,
		UpdatedAt: m.UpdatedAt,
	}
}

func toStoreMessage(m *Message) *store.Message {
	return &store.Message{
		OwnerKey:       m.OwnerKey,
		EventID:        m.EventId,
		SessionID:      m.SessionId,
		RootID:         m.RootId,
		SenderKey:      m.SenderKey,
		URL:            m.Url,
		Note:           m.Note,
		Title:          m.Title,
		Timestamp:      m.Timestamp,
		ReadAt:         m.ReadAt,
		CachedMediaRef: m.CachedMediaRef,
	}
}

func toStoreReaction(r *Reaction) store.Reaction {
	return store.Reaction{
		OwnerKey:  r.OwnerKey,
		SessionID: r.SessionId,
		PostID:    r.PostId,
		Emoji:     r.Emoji,
		SenderKey: r.SenderKey,
		IsActive:  r.IsActive,
		UpdatedAt: r.UpdatedAt,
	}
}
