////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

// Package memory is a map-backed store.Store used by tests of the layers
// above persistence. Semantics mirror the sqlite implementation.
package memory

import (
	"sort"

	"gitlab.com/quietmesh/murmur/store"
)

type sessionKey struct{ owner, session string }
type memberKey struct{ owner, session, member string }
type messageKey struct{ owner, event string }
type reactionKey struct{ owner, session, post, emoji, sender string }

// Store implements store.Store in memory.
type Store struct {
	sessions  map[sessionKey]store.Session
	members   map[memberKey]store.Member
	messages  map[messageKey]store.Message
	reactions map[reactionKey]store.Reaction

	// FailNext forces the next mutation to fail, for error-path tests.
	FailNext error
}

// NewStore returns an empty in-memory store.
func NewStore() *Store {
	return &Store{
		sessions:  make(map[sessionKey]store.Session),
		members:   make(map[memberKey]store.Member),
		messages:  make(map[messageKey]store.Message),
		reactions: make(map[reactionKey]store.Reaction),
	}
}

func (s *Store) takeFailure() error {
	err := s.FailNext
	s.FailNext = nil
	return err
}

func (s *Store) UpsertSession(sess store.Session) (bool, error) {
	if err := s.takeFailure(); err != nil {
		return false, err
	}
	k := sessionKey{sess.OwnerKey, sess.SessionID}
	current, exists := s.sessions[k]
	if exists && sess.UpdatedAt < current.UpdatedAt {
		return false, nil
	}
	if exists {
		// Creation facts never change after the first write.
		sess.CreatedAt = current.CreatedAt
		sess.CreatedByKey = current.CreatedByKey
	}
	s.sessions[k] = sess
	return true, nil
}

func (s *Store) SessionByID(ownerKey, sessionID string) (
	*store.Session, error) {
	sess, exists := s.sessions[sessionKey{ownerKey, sessionID}]
	if !exists {
		return nil, nil
	}
	return &sess, nil
}

func (s *Store) Sessions(ownerKey string) ([]store.Session, error) {
	var out []store.Session
	for k, sess := range s.sessions {
		if k.owner == ownerKey {
			out = append(out, sess)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].UpdatedAt > out[j].UpdatedAt
	})
	return out, nil
}

func (s *Store) ApplyMemberSnapshot(
	ownerKey, sessionID string, memberKeys []string, ts int64) error {
	if err := s.takeFailure(); err != nil {
		return err
	}
	inSnapshot := make(map[string]struct{}, len(memberKeys))
	for _, key := range memberKeys {
		inSnapshot[key] = struct{}{}
		mk := memberKey{ownerKey, sessionID, key}
		row, exists := s.members[mk]
		if exists && ts < row.UpdatedAt {
			continue
		}
		s.members[mk] = store.Member{
			OwnerKey:  ownerKey,
			SessionID: sessionID,
			MemberKey: key,
			IsActive:  true,
			UpdatedAt: ts,
		}
	}
	for mk, row := range s.members {
		if mk.owner != ownerKey || mk.session != sessionID {
			continue
		}
		if _, present := inSnapshot[mk.member]; present {
			continue
		}
		if ts < row.UpdatedAt {
			continue
		}
		row.IsActive = false
		row.UpdatedAt = ts
		s.members[mk] = row
	}
	return nil
}

func (s *Store) ActiveMembers(ownerKey, sessionID string) (
	[]store.Member, error) {
	var out []store.Member
	for mk, row := range s.members {
		if mk.owner == ownerKey && mk.session == sessionID && row.IsActive {
			out = append(out, row)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].MemberKey < out[j].MemberKey
	})
	return out, nil
}

func (s *Store) InsertMessage(m store.Message) (bool, error) {
	if err := s.takeFailure(); err != nil {
		return false, err
	}
	k := messageKey{m.OwnerKey, m.EventID}
	if _, exists := s.messages[k]; exists {
		return false, nil
	}
	s.messages[k] = m
	return true, nil
}

func (s *Store) MessageByID(ownerKey, eventID string) (*store.Message, error) {
	m, exists := s.messages[messageKey{ownerKey, eventID}]
	if !exists {
		return nil, nil
	}
	return &m, nil
}

func (s *Store) RootMessages(ownerKey, sessionID string) (
	[]store.Message, error) {
	var out []store.Message
	for k, m := range s.messages {
		if k.owner == ownerKey && m.SessionID == sessionID {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Timestamp > out[j].Timestamp
	})
	return out, nil
}

func (s *Store) MarkRead(ownerKey, eventID string, readAt int64) error {
	k := messageKey{ownerKey, eventID}
	if m, exists := s.messages[k]; exists {
		m.ReadAt = readAt
		s.messages[k] = m
	}
	return nil
}

func (s *Store) SetMessageMetadata(
	ownerKey, eventID, title, mediaRef string) error {
	if err := s.takeFailure(); err != nil {
		return err
	}
	k := messageKey{ownerKey, eventID}
	if m, exists := s.messages[k]; exists {
		m.Title = title
		m.CachedMediaRef = mediaRef
		s.messages[k] = m
	}
	return nil
}

func (s *Store) UpsertReaction(r store.Reaction) (bool, error) {
	if err := s.takeFailure(); err != nil {
		return false, err
	}
	k := reactionKey{r.OwnerKey, r.SessionID, r.PostID, r.Emoji, r.SenderKey}
	if current, exists := s.reactions[k]; exists &&
		r.UpdatedAt < current.UpdatedAt {
		return false, nil
	}
	s.reactions[k] = r
	return true, nil
}

func (s *Store) ReactionsForMessage(ownerKey, postID string) (
	[]store.Reaction, error) {
	var out []store.Reaction
	for k, r := range s.reactions {
		if k.owner == ownerKey && k.post == postID {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Emoji < out[j].Emoji
	})
	return out, nil
}

func (s *Store) DeleteOwner(ownerKey string) error {
	for k := range s.sessions {
		if k.owner == ownerKey {
			delete(s.sessions, k)
		}
	}
	for k := range s.members {
		if k.owner == ownerKey {
			delete(s.members, k)
		}
	}
	for k := range s.messages {
		if k.owner == ownerKey {
			delete(s.messages, k)
		}
	}
	for k := range s.reactions {
		if k.owner == ownerKey {
			delete(s.reactions, k)
		}
	}
	return nil
}
