////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

package identity

import (
	"github.com/pkg/errors"
	jww "github.com/spf13/jwalterweatherman"
	"gitlab.com/elixxir/ekv"
)

const seedStorageKey = "identitySeed"

// Provider supplies the current local identity. Returns nil when no identity
// is configured; callers treat that as the Unconfigured condition, not an
// error.
type Provider interface {
	CurrentIdentity() *Identity
}

// Store is an ekv-backed Provider that persists the identity seed across
// runs.
type Store struct {
	kv      ekv.KeyValue
	current *Identity
}

// NewStore wraps the given key-value store. No identity is loaded until
// LoadOrGenerate or Import is called.
func NewStore(kv ekv.KeyValue) *Store {
	return &Store{kv: kv}
}

// CurrentIdentity adheres to the Provider interface.
func (s *Store) CurrentIdentity() *Identity {
	return s.current
}

// LoadOrGenerate loads the persisted identity, generating and persisting a
// fresh one on first run.
func (s *Store) LoadOrGenerate() (*Identity, error) {
	var seed []byte
	err := s.kv.GetInterface(seedStorageKey, &seed)
	if ekv.Exists(err) {
		if err != nil {
			return nil, errors.Wrap(err, "failed to load identity seed")
		}
		ident, err := FromSeed(seed)
		if err != nil {
			return nil, errors.Wrap(err, "persisted identity seed is corrupt")
		}
		s.current = ident
		return ident, nil
	}

	ident, err := Generate()
	if err != nil {
		return nil, err
	}
	if err = s.kv.SetInterface(seedStorageKey, ident.Seed()); err != nil {
		return nil, errors.Wrap(err, "failed to persist identity seed")
	}

	jww.INFO.Printf("Generated new identity %s", ident.PubKey)
	s.current = ident
	return ident, nil
}

// Import replaces the stored identity with one rebuilt from the given seed.
func (s *Store) Import(seed []byte) (*Identity, error) {
	ident, err := FromSeed(seed)
	if err != nil {
		return nil, err
	}
	if err = s.kv.SetInterface(seedStorageKey, ident.Seed()); err != nil {
		return nil, errors.Wrap(err, "failed to persist identity seed")
	}
	s.current = ident
	return ident, nil
}

// Clear drops the in-memory identity on logout. The persisted seed is
// deleted so the next boot generates a new identity.
func (s *Store) Clear() {
	if err := s.kv.Delete(seedStorageKey); err != nil {
		jww.WARN.Printf("Failed to delete identity seed: %+v", err)
	}
	s.current = nil
}
