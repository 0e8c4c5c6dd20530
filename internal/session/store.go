// Package session tracks per-conversation bot state.
package session

import (
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/iconidentify/ytgrabba/internal/domain"
)

// State is the conversation's position in the download flow.
type State int

const (
	StateIdle State = iota
	StateURLReceived
	StateInfoFetched
	StateAwaitingSelection
)

func (s State) String() string {
	switch s {
	case StateURLReceived:
		return "url_received"
	case StateInfoFetched:
		return "info_fetched"
	case StateAwaitingSelection:
		return "awaiting_selection"
	default:
		return "idle"
	}
}

// Session holds what a conversation last asked for.
type Session struct {
	URL      domain.SourceReference
	Metadata *domain.MediaMetadata
	// Pending is the kind awaiting a numeric quality reply, or empty.
	Pending   domain.MediaKind
	UpdatedAt time.Time
}

// State derives the conversation state from the session fields.
func (s Session) State() State {
	switch {
	case s.URL == "":
		return StateIdle
	case s.Pending != "":
		return StateAwaitingSelection
	case s.Metadata != nil:
		return StateInfoFetched
	default:
		return StateURLReceived
	}
}

// Store maps conversation ids to sessions. Entries are evicted least
// recently used first once capacity is reached, and expire after ttl of
// inactivity.
type Store struct {
	mu    sync.Mutex
	cache *expirable.LRU[int64, Session]
}

// NewStore creates a store. A zero ttl disables expiry.
func NewStore(capacity int, ttl time.Duration) *Store {
	return &Store{
		cache: expirable.NewLRU[int64, Session](capacity, nil, ttl),
	}
}

// Get returns the session for chatID.
func (s *Store) Get(chatID int64) (Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cache.Get(chatID)
}

// SetURL starts over with a new source. Cached metadata and any pending
// selection belong to the previous URL and are dropped.
func (s *Store) SetURL(chatID int64, url domain.SourceReference) Session {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess := Session{URL: url, UpdatedAt: time.Now()}
	s.cache.Add(chatID, sess)
	return sess
}

// SetMetadata caches metadata fetched for url. It reports false when the
// conversation has moved on to another URL or has none.
func (s *Store) SetMetadata(chatID int64, url domain.SourceReference, meta *domain.MediaMetadata) (Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.cache.Get(chatID)
	if !ok || sess.URL == "" || sess.URL != url {
		return Session{}, false
	}
	sess.Metadata = meta
	sess.UpdatedAt = time.Now()
	s.cache.Add(chatID, sess)
	return sess, true
}

// Await marks the conversation as waiting for a quality reply for kind.
func (s *Store) Await(chatID int64, kind domain.MediaKind) (Session, bool) {
	return s.update(chatID, func(sess *Session) {
		sess.Pending = kind
	})
}

// Resolve clears the pending selection. The URL stays so the user can
// download again.
func (s *Store) Resolve(chatID int64) (Session, bool) {
	return s.update(chatID, func(sess *Session) {
		sess.Pending = ""
	})
}

// Cancel deletes the conversation's session.
func (s *Store) Cancel(chatID int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cache.Remove(chatID)
}

// Len returns the number of live sessions.
func (s *Store) Len() int {
	return s.cache.Len()
}

func (s *Store) update(chatID int64, fn func(*Session)) (Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.cache.Get(chatID)
	if !ok || sess.URL == "" {
		return Session{}, false
	}
	fn(&sess)
	sess.UpdatedAt = time.Now()
	s.cache.Add(chatID, sess)
	return sess, true
}
