// Package session keeps the authenticated session across restarts.
package session

import (
	"sync"

	"pkt.systems/companion/internal/persist"
	"pkt.systems/companion/schema"
	"pkt.systems/pslog"
)

const documentName = "session"

// Store is the durable source of truth for "is the user authenticated".
// Reads return snapshots; writes happen only from the auth flow and on 401.
type Store struct {
	mu      sync.RWMutex
	current schema.Session
	files   *persist.Store
	log     pslog.Logger
}

// Open loads the session persisted in dir, if any.
// A persisted session missing either field loads as absent.
func Open(dir string, logger pslog.Logger) (*Store, error) {
	files, err := persist.NewStoreWithLogger(dir, logger)
	if err != nil {
		return nil, err
	}
	s := &Store{files: files, log: logger}
	var stored schema.Session
	ok, err := files.Load(documentName, &stored)
	if err != nil {
		return nil, err
	}
	if ok && stored.Valid() {
		s.current = stored
	} else if ok && s.log != nil {
		s.log.Warn("session discarded", "reason", "incomplete")
	}
	return s, nil
}

// Current returns a snapshot of the session and whether it is authenticated.
func (s *Store) Current() (schema.Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current, s.current.Valid()
}

// Set stores a new session. Both token and display name are required.
func (s *Store) Set(sess schema.Session) error {
	if !sess.Valid() {
		return schema.ErrInvalidSession
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.files.Save(documentName, sess); err != nil {
		return err
	}
	s.current = sess
	if s.log != nil {
		s.log.Info("session stored", "user", sess.DisplayName)
	}
	return nil
}

// Clear forgets the session in memory and on disk.
func (s *Store) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	had := s.current.Valid()
	s.current = schema.Session{}
	if err := s.files.Remove(documentName); err != nil {
		return err
	}
	if had && s.log != nil {
		s.log.Info("session cleared")
	}
	return nil
}
