package session

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/insightlab/analyst/models"
)

type memoryStore struct {
	sessions map[string]*memorySession
	mu       sync.RWMutex
}

// NewInMemoryStore returns a process-local session store.
func NewInMemoryStore() Store {
	return &memoryStore{sessions: make(map[string]*memorySession)}
}

func (s *memoryStore) EnsureSession(id string, ttl time.Duration) (Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.evictExpired()
	if id != "" {
		if sess, ok := s.sessions[id]; ok {
			sess.expire(ttl)
			return sess, nil
		}
	}
	sess := &memorySession{id: uuid.NewString(), expiresAt: time.Now().Add(ttl)}
	s.sessions[sess.id] = sess
	return sess, nil
}

func (s *memoryStore) GetSession(id string) (Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return nil, nil
	}
	if sess.expired() {
		delete(s.sessions, id)
		return nil, nil
	}
	return sess, nil
}

// evictExpired drops expired sessions so the map does not grow without
// bound. Callers must hold the write lock.
func (s *memoryStore) evictExpired() {
	for id, sess := range s.sessions {
		if sess.expired() {
			delete(s.sessions, id)
		}
	}
}

type memorySession struct {
	id        string
	expiresAt time.Time
	messages  []models.Message
	mu        sync.RWMutex
}

func (s *memorySession) ID() string { return s.id }

func (s *memorySession) expired() bool { return time.Now().After(s.expiresAt) }

func (s *memorySession) expire(ttl time.Duration) { s.expiresAt = time.Now().Add(ttl) }

func (s *memorySession) Append(msg models.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, msg)
	return nil
}

func (s *memorySession) History() ([]models.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Message, len(s.messages))
	copy(out, s.messages)
	return out, nil
}
