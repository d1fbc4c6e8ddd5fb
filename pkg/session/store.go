package session

import "time"

// Store persists issued sessions. Implementations need not be safe for
// concurrent use; the Manager serializes access.
type Store interface {
	Put(s Session) error
	Get(token string) (Session, bool, error)
	Delete(token string) error
	Purge(cutoff time.Time) error
	Close() error
}

// MemoryStore keeps sessions in a map. Sessions vanish when the process
// exits, which is the right default for an interactive tool.
type MemoryStore struct {
	sessions map[string]Session
}

// NewMemoryStore builds an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[string]Session)}
}

func (s *MemoryStore) Put(sess Session) error {
	s.sessions[sess.Token] = sess
	return nil
}

func (s *MemoryStore) Get(token string) (Session, bool, error) {
	sess, ok := s.sessions[token]
	return sess, ok, nil
}

func (s *MemoryStore) Delete(token string) error {
	delete(s.sessions, token)
	return nil
}

func (s *MemoryStore) Purge(cutoff time.Time) error {
	for token, sess := range s.sessions {
		if !cutoff.Before(sess.ExpiresAt) {
			delete(s.sessions, token)
		}
	}
	return nil
}

func (s *MemoryStore) Close() error { return nil }
