////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

package sqlite

import (
	"github.com/pkg/errors"
	jww "github.com/spf13/jwalterweatherman"
	"gorm.io/gorm"

	"gitlab.com/quietmesh/murmur/store"
)

// UpsertSession creates or last-writer-wins-updates a session row.
func (i *impl) UpsertSession(s store.Session) (bool, error) {
	jww.TRACE.Printf("[STORE SQL] UpsertSession(%s, %s)",
		s.OwnerKey, s.SessionID)

	applied := false
	ctx, cancel := newContext()
	defer cancel()
	err := i.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		current := &Session{}
		err := tx.Where("owner_key = ? AND session_id = ?",
			s.OwnerKey, s.SessionID).Take(current).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			applied = true
			return tx.Create(&Session{
				OwnerKey:     s.OwnerKey,
				SessionId:    s.SessionID,
				Name:         s.Name,
				CreatedByKey: s.CreatedByKey,
				CreatedAt:    s.CreatedAt,
				UpdatedAt:    s.UpdatedAt,
				IsArchived:   s.IsArchived,
			}).Error
		} else if err != nil {
			return err
		}

		if s.UpdatedAt < current.UpdatedAt {
			// Stale snapshot; drop it.
			return nil
		}
		applied = true
		return tx.Model(current).
			Where("owner_key = ? AND session_id = ?",
				s.OwnerKey, s.SessionID).
			Updates(map[string]interface{}{
				"name":        s.Name,
				"updated_at":  s.UpdatedAt,
				"is_archived": s.IsArchived,
			}).Error
	})
	if err != nil {
		return false, errors.Wrap(err, "failed to upsert session")
	}
	return applied, nil
}

// SessionByID returns nil without error when no row exists.
func (i *impl) SessionByID(ownerKey, sessionID string) (*store.Session, error) {
	ctx, cancel := newContext()
	defer cancel()

	result := &Session{}
	err := i.db.WithContext(ctx).Where(
		"owner_key = ? AND session_id = ?", ownerKey, sessionID).
		Take(result).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	} else if err != nil {
		return nil, errors.Wrap(err, "failed to look up session")
	}
	return toStoreSession(result), nil
}

// Sessions lists the owner's sessions, most recently updated first.
func (i *impl) Sessions(ownerKey string) ([]store.Session, error) {
	ctx, cancel := newContext()
	defer cancel()

	var rows []Session
	err := i.db.WithContext(ctx).Where("owner_key = ?", ownerKey).
		Order("updated_at DESC").Find(&rows).Error
	if err != nil {
		return nil, errors.Wrap(err, "failed to list sessions")
	}

	out := make([]store.Session, len(rows))
	for idx := range rows {
		out[idx] = *toStoreSession(&rows[idx])
	}
	return out, nil
}

// ApplyMemberSnapshot performs authoritative set-replacement with a per-row
// watermark guard: rows whose stored UpdatedAt is newer than ts keep their
// state.
func (i *impl) ApplyMemberSnapshot(
	ownerKey, sessionID string, memberKeys []string, ts int64) error {
	jww.TRACE.Printf("[STORE SQL] ApplyMemberSnapshot(%s, %s, %d members)",
		ownerKey, sessionID, len(memberKeys))

	inSnapshot := make(map[string]struct{}, len(memberKeys))
	for _, k := range memberKeys {
		inSnapshot[k] = struct{}{}
	}

	ctx, cancel := newContext()
	defer cancel()
	err := i.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing []Member
		err := tx.Where("owner_key = ? AND session_id = ?",
			ownerKey, sessionID).Find(&existing).Error
		if err != nil {
			return err
		}

		known := make(map[string]*Member, len(existing))
		for idx := range existing {
			known[existing[idx].MemberKey] = &existing[idx]
		}

		// Activate present keys, creating rows for first-seen members.
		for _, key := range memberKeys {
			row, exists := known[key]
			if !exists {
				err = tx.Create(&Member{
					OwnerKey:  ownerKey,
					SessionId: sessionID,
					MemberKey: key,
					IsActive:  true,
					UpdatedAt: ts,
				}).Error
				if err != nil {
					return err
				}
				continue
			}
			if ts < row.UpdatedAt {
				continue
			}
			err = tx.Model(&Member{}).Where(
				"owner_key = ? AND session_id = ? AND member_key = ?",
				ownerKey, sessionID, key).
				Updates(map[string]interface{}{
					"is_active": true, "updated_at": ts}).Error
			if err != nil {
				return err
			}
		}

		// Deactivate rows absent from the snapshot.
		for key, row := range known {
			if _, present := inSnapshot[key]; present {
				continue
			}
			if ts < row.UpdatedAt {
				continue
			}
			err = tx.Model(&Member{}).Where(
				"owner_key = ? AND session_id = ? AND member_key = ?",
				ownerKey, sessionID, key).
				Updates(map[string]interface{}{
					"is_active": false, "updated_at": ts}).Error
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return errors.Wrap(err, "failed to apply member snapshot")
	}
	return nil
}

// ActiveMembers lists the session's currently active members.
func (i *impl) ActiveMembers(ownerKey, sessionID string) (
	[]store.Member, error) {
	ctx, cancel := newContext()
	defer cancel()

	var rows []Member
	err := i.db.WithContext(ctx).Where(
		"owner_key = ? AND session_id = ? AND is_active = ?",
		ownerKey, sessionID, true).Find(&rows).Error
	if err != nil {
		return nil, errors.Wrap(err, "failed to list members")
	}

	out := make([]store.Member, len(rows))
	for idx := range rows {
		out[idx] = toStoreMember(&rows[idx])
	}
	return out, nil
}

// InsertMessage inserts iff absent; the rumor ID is the idempotence key.
func (i *impl) InsertMessage(m store.Message) (bool, error) {
	jww.TRACE.Printf("[STORE SQL] InsertMessage(%s, %s)",
		m.OwnerKey, m.EventID)

	inserted := false
	ctx, cancel := newContext()
	defer cancel()
	err := i.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Where("owner_key = ? AND event_id = ?",
			m.OwnerKey, m.EventID).Take(&Message{}).Error
		if err == nil {
			return nil
		} else if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		inserted = true
		return tx.Create(&Message{
			OwnerKey:       m.OwnerKey,
			EventId:        m.EventID,
			SessionId:      m.SessionID,
			RootId:         m.RootID,
			SenderKey:      m.SenderKey,
			Url:            m.URL,
			Note:           m.Note,
			Title:          m.Title,
			Timestamp:      m.Timestamp,
			ReadAt:         m.ReadAt,
			CachedMediaRef: m.CachedMediaRef,
		}).Error
	})
	if err != nil {
		return false, errors.Wrap(err, "failed to insert message")
	}
	return inserted, nil
}

// MessageByID returns nil without error when no row exists.
func (i *impl) MessageByID(ownerKey, eventID string) (*store.Message, error) {
	ctx, cancel := newContext()
	defer cancel()

	result := &Message{}
	err := i.db.WithContext(ctx).Where(
		"owner_key = ? AND event_id = ?", ownerKey, eventID).
		Take(result).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	} else if err != nil {
		return nil, errors.Wrap(err, "failed to look up message")
	}
	return toStoreMessage(result), nil
}

// RootMessages lists a session's posts, newest first.
func (i *impl) RootMessages(ownerKey, sessionID string) (
	[]store.Message, error) {
	ctx, cancel := newContext()
	defer cancel()

	var rows []Message
	err := i.db.WithContext(ctx).Where(
		"owner_key = ? AND session_id = ?", ownerKey, sessionID).
		Order("timestamp DESC").Find(&rows).Error
	if err != nil {
		return nil, errors.Wrap(err, "failed to list messages")
	}

	out := make([]store.Message, len(rows))
	for idx := range rows {
		out[idx] = *toStoreMessage(&rows[idx])
	}
	return out, nil
}

// MarkRead stamps a message's read time.
func (i *impl) MarkRead(ownerKey, eventID string, readAt int64) error {
	ctx, cancel := newContext()
	defer cancel()

	err := i.db.WithContext(ctx).Model(&Message{}).Where(
		"owner_key = ? AND event_id = ?", ownerKey, eventID).
		Update("read_at", readAt).Error
	return errors.Wrap(err, "failed to mark message read")
}

// SetMessageMetadata writes fetched link-preview metadata back to a message.
func (i *impl) SetMessageMetadata(
	ownerKey, eventID, title, mediaRef string) error {
	jww.TRACE.Printf("[STORE SQL] SetMessageMetadata(%s, %s)",
		ownerKey, eventID)

	ctx, cancel := newContext()
	defer cancel()
	err := i.db.WithContext(ctx).Model(&Message{}).Where(
		"owner_key = ? AND event_id = ?", ownerKey, eventID).
		Updates(map[string]interface{}{
			"title": title, "cached_media_ref": mediaRef}).Error
	return errors.Wrap(err, "failed to set message metadata")
}

// UpsertReaction creates or last-writer-wins-updates a reaction row.
func (i *impl) UpsertReaction(r store.Reaction) (bool, error) {
	jww.TRACE.Printf("[STORE SQL] UpsertReaction(%s, %s, %s)",
		r.OwnerKey, r.PostID, r.Emoji)

	applied := false
	ctx, cancel := newContext()
	defer cancel()
	err := i.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		current := &Reaction{}
		err := tx.Where("owner_key = ? AND session_id = ? AND post_id = ? "+
			"AND emoji = ? AND sender_key = ?",
			r.OwnerKey, r.SessionID, r.PostID, r.Emoji, r.SenderKey).
			Take(current).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			applied = true
			return tx.Create(&Reaction{
				OwnerKey:  r.OwnerKey,
				SessionId: r.SessionID,
				PostId:    r.PostID,
				Emoji:     r.Emoji,
				SenderKey: r.SenderKey,
				IsActive:  r.IsActive,
				UpdatedAt: r.UpdatedAt,
			}).Error
		} else if err != nil {
			return err
		}

		if r.UpdatedAt < current.UpdatedAt {
			return nil
		}
		applied = true
		return tx.Model(current).Where(
			"owner_key = ? AND session_id = ? AND post_id = ? "+
				"AND emoji = ? AND sender_key = ?",
			r.OwnerKey, r.SessionID, r.PostID, r.Emoji, r.SenderKey).
			Updates(map[string]interface{}{
				"is_active": r.IsActive, "updated_at": r.UpdatedAt}).Error
	})
	if err != nil {
		return false, errors.Wrap(err, "failed to upsert reaction")
	}
	return applied, nil
}

// ReactionsForMessage lists every reaction row on a post.
func (i *impl) ReactionsForMessage(ownerKey, postID string) (
	[]store.Reaction, error) {
	ctx, cancel := newContext()
	defer cancel()

	var rows []Reaction
	err := i.db.WithContext(ctx).Where(
		"owner_key = ? AND post_id = ?", ownerKey, postID).
		Find(&rows).Error
	if err != nil {
		return nil, errors.Wrap(err, "failed to list reactions")
	}

	out := make([]store.Reaction, len(rows))
	for idx := range rows {
		out[idx] = toStoreReaction(&rows[idx])
	}
	return out, nil
}

// DeleteOwner removes every row belonging to the owner across all tables.
// Used by logout.
func (i *impl) DeleteOwner(ownerKey string) error {
	jww.INFO.Printf("[STORE SQL] DeleteOwner(%s)", ownerKey)

	ctx, cancel := newContext()
	defer cancel()
	return i.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, model := range []interface{}{
			&Reaction{}, &Message{}, &Member{}, &Session{}} {
			if err := tx.Where("owner_key = ?", ownerKey).
				Delete(model).Error; err != nil {
				return errors.Wrap(err, "failed to delete owner rows")
			}
		}
		return nil
	})
}
