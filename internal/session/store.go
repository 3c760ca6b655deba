// Package session issues and resolves the opaque tokens the dashboard
// hands out after login. Sessions live in badger with a native TTL, so
// expiry needs no sweeper: an expired token simply stops resolving.
package session

import (
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"

	"github.com/ReignOfTea/protest-dash/internal/storage"
)

type Session struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

func (s *Session) GetID() string {
	return s.ID
}

type Store struct {
	store *storage.BadgerStore
	ttl   time.Duration
}

func NewStore(db *badger.DB, ttl time.Duration) *Store {
	return &Store{
		store: storage.NewBadgerStore(db, "session"),
		ttl:   ttl,
	}
}

// Create mints a fresh session token for the given user.
func (s *Store) Create(userID string) (*Session, error) {
	now := time.Now()
	sess := &Session{
		ID:        uuid.New().String(),
		UserID:    userID,
		CreatedAt: now,
		ExpiresAt: now.Add(s.ttl),
	}

	if err := s.store.CreateWithTTL(sess, s.ttl); err != nil {
		return nil, err
	}
	return sess, nil
}

// Get resolves a token. Expired or unknown tokens return a NOT_FOUND
// error.
func (s *Store) Get(id string) (*Session, error) {
	var sess Session
	if err := s.store.Get(id, &sess); err != nil {
		return nil, err
	}
	return &sess, nil
}

// Delete revokes a token (logout).
func (s *Store) Delete(id string) error {
	return s.store.Delete(id)
}
