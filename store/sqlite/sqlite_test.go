////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

package sqlite

import (
	"path/filepath"
	"testing"

	"gitlab.com/quietmesh/murmur/store"
)

func newTestStore(t *testing.T) store.Store {
	t.Helper()
	s, err := NewStore(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("NewStore failed: %+v", err)
	}
	return s
}

// Tests that sessions round-trip through sqlite with the watermark enforced.
func TestImpl_Sessions(t *testing.T) {
	s := newTestStore(t)

	applied, err := s.UpsertSession(store.Session{
		OwnerKey: "me", SessionID: "s1", Name: "reading group",
		CreatedByKey: "creator", CreatedAt: 10, UpdatedAt: 10,
	})
	if err != nil || !applied {
		t.Fatalf("Upsert failed: applied=%t err=%+v", applied, err)
	}

	applied, err = s.UpsertSession(store.Session{
		OwnerKey: "me", SessionID: "s1", Name: "renamed", UpdatedAt: 20,
	})
	if err != nil || !applied {
		t.Fatalf("Newer upsert failed: applied=%t err=%+v", applied, err)
	}

	applied, err = s.UpsertSession(store.Session{
		OwnerKey: "me", SessionID: "s1", Name: "stale", UpdatedAt: 15,
	})
	if err != nil {
		t.Fatalf("Stale upsert errored: %+v", err)
	}
	if applied {
		t.Error("A stale session snapshot was applied.")
	}

	sess, err := s.SessionByID("me", "s1")
	if err != nil {
		t.Fatalf("SessionByID failed: %+v", err)
	}
	if sess == nil {
		t.Fatal("SessionByID returned nil for a stored session.")
	}
	if sess.Name != "renamed" || sess.UpdatedAt != 20 {
		t.Errorf("Wrong stored session: %+v", sess)
	}
	if sess.CreatedByKey != "creator" || sess.CreatedAt != 10 {
		t.Errorf("Creation facts were overwritten: %+v", sess)
	}

	missing, err := s.SessionByID("me", "nope")
	if err != nil {
		t.Fatalf("Missing lookup errored: %+v", err)
	}
	if missing != nil {
		t.Error("SessionByID returned a row for a missing session.")
	}

	all, err := s.Sessions("me")
	if err != nil {
		t.Fatalf("Sessions failed: %+v", err)
	}
	if len(all) != 1 {
		t.Errorf("Sessions returned %d rows, expected 1", len(all))
	}
}

// Tests member snapshot replacement and the per-row watermark in sqlite.
func TestImpl_Members(t *testing.T) {
	s := newTestStore(t)

	if err := s.ApplyMemberSnapshot(
		"me", "s1", []string{"a", "b"}, 10); err != nil {
		t.Fatalf("ApplyMemberSnapshot failed: %+v", err)
	}
	if err := s.ApplyMemberSnapshot(
		"me", "s1", []string{"a", "c"}, 20); err != nil {
		t.Fatalf("ApplyMemberSnapshot failed: %+v", err)
	}
	// Stale snapshot trying to restore b.
	if err := s.ApplyMemberSnapshot(
		"me", "s1", []string{"b"}, 15); err != nil {
		t.Fatalf("ApplyMemberSnapshot failed: %+v", err)
	}

	members, err := s.ActiveMembers("me", "s1")
	if err != nil {
		t.Fatalf("ActiveMembers failed: %+v", err)
	}
	got := make(map[string]bool, len(members))
	for _, m := range members {
		got[m.MemberKey] = true
	}
	if len(got) != 2 || !got["a"] || !got["c"] {
		t.Errorf("Wrong active member set: %v", got)
	}
}

// Tests message persistence: idempotent insert, read marking, and metadata
// updates.
func TestImpl_Messages(t *testing.T) {
	s := newTestStore(t)

	m := store.Message{OwnerKey: "me", EventID: "e1", SessionID: "s1",
		RootID: "r1", SenderKey: "a", URL: "https://example.com",
		Note: "worth a look", Timestamp: 100}
	inserted, err := s.InsertMessage(m)
	if err != nil || !inserted {
		t.Fatalf("Insert failed: inserted=%t err=%+v", inserted, err)
	}
	inserted, err = s.InsertMessage(m)
	if err != nil {
		t.Fatalf("Duplicate insert errored: %+v", err)
	}
	if inserted {
		t.Error("A duplicate message was inserted.")
	}

	if err = s.MarkRead("me", "e1", 150); err != nil {
		t.Fatalf("MarkRead failed: %+v", err)
	}
	if err = s.SetMessageMetadata(
		"me", "e1", "Example Article", "/cache/thumb1"); err != nil {
		t.Fatalf("SetMessageMetadata failed: %+v", err)
	}

	got, err := s.MessageByID("me", "e1")
	if err != nil {
		t.Fatalf("MessageByID failed: %+v", err)
	}
	if got == nil {
		t.Fatal("MessageByID returned nil for a stored message.")
	}
	if got.ReadAt != 150 || got.Title != "Example Article" ||
		got.CachedMediaRef != "/cache/thumb1" || got.Note != "worth a look" {
		t.Errorf("Stored message lost updates: %+v", got)
	}

	msgs, err := s.RootMessages("me", "s1")
	if err != nil {
		t.Fatalf("RootMessages failed: %+v", err)
	}
	if len(msgs) != 1 {
		t.Errorf("RootMessages returned %d rows, expected 1", len(msgs))
	}
}

// Tests reaction upserts with the last-writer-wins watermark in sqlite.
func TestImpl_Reactions(t *testing.T) {
	s := newTestStore(t)

	set := store.Reaction{OwnerKey: "me", SessionID: "s1", PostID: "p1",
		Emoji: "🎉", SenderKey: "a", IsActive: true, UpdatedAt: 100}
	if _, err := s.UpsertReaction(set); err != nil {
		t.Fatalf("UpsertReaction failed: %+v", err)
	}

	clear := set
	clear.IsActive = false
	clear.UpdatedAt = 101
	applied, err := s.UpsertReaction(clear)
	if err != nil || !applied {
		t.Fatalf("Clear failed: applied=%t err=%+v", applied, err)
	}

	// Redelivered stale set must not resurrect the reaction.
	applied, err = s.UpsertReaction(set)
	if err != nil {
		t.Fatalf("Stale upsert errored: %+v", err)
	}
	if applied {
		t.Error("A stale reaction was applied over a newer clear.")
	}

	reactions, err := s.ReactionsForMessage("me", "p1")
	if err != nil {
		t.Fatalf("ReactionsForMessage failed: %+v", err)
	}
	if len(reactions) != 1 || reactions[0].IsActive {
		t.Errorf("Wrong final reaction state: %+v", reactions)
	}
}

// Tests that two owners' partitions are fully isolated and that DeleteOwner
// only removes one of them.
func TestImpl_OwnerPartition(t *testing.T) {
	s := newTestStore(t)

	for _, owner := range []string{"me", "other"} {
		if _, err := s.UpsertSession(store.Session{
			OwnerKey: owner, SessionID: "s1", Name: owner,
			UpdatedAt: 1}); err != nil {
			t.Fatalf("Upsert failed: %+v", err)
		}
		if _, err := s.InsertMessage(store.Message{
			OwnerKey: owner, EventID: "e1", SessionID: "s1"}); err != nil {
			t.Fatalf("Insert failed: %+v", err)
		}
	}

	sess, err := s.SessionByID("me", "s1")
	if err != nil || sess == nil {
		t.Fatalf("SessionByID failed: %+v", err)
	}
	if sess.Name != "me" {
		t.Errorf("Read crossed the owner partition: %+v", sess)
	}

	if err = s.DeleteOwner("me"); err != nil {
		t.Fatalf("DeleteOwner failed: %+v", err)
	}
	if sess, _ = s.SessionByID("me", "s1"); sess != nil {
		t.Error("The deleted owner still has rows.")
	}
	if sess, _ = s.SessionByID("other", "s1"); sess == nil {
		t.Error("DeleteOwner crossed the owner partition.")
	}
	if m, _ := s.MessageByID("other", "e1"); m == nil {
		t.Error("DeleteOwner removed another owner's message.")
	}
}
