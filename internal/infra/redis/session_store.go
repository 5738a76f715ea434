package redis

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"live-quiz-service/internal/app"
)

// SessionStore is a Redis-aware implementation of app.SessionRepository.
// Notes:
//   - Sessions run in-process, so the session objects live in a local map.
//   - Join PINs are reserved in Redis with SETNX, which keeps them unique
//     across every instance sharing the Redis.
//   - A liveness key per session records which quiz it runs until it expires or
//     the session is released.
type SessionStore struct {
	client *redis.Client
	ttl    time.Duration

	mu       sync.RWMutex
	sessions map[string]*app.Session
	pins     map[string]string
}

func NewSessionStore(client *redis.Client, ttl time.Duration) *SessionStore {
	return &SessionStore{
		client:   client,
		ttl:      ttl,
		sessions: make(map[string]*app.Session),
		pins:     make(map[string]string),
	}
}

func (s *SessionStore) Save(ctx context.Context, session *app.Session) error {
	reserved, err := s.client.SetNX(ctx, s.pinKey(session.PIN()), session.ID(), s.ttl).Result()
	if err != nil {
		return fmt.Errorf("reserve pin: %w", err)
	}
	if !reserved {
		owner, err := s.client.Get(ctx, s.pinKey(session.PIN())).Result()
		if err != nil || owner != session.ID() {
			return app.ErrPINInUse
		}
	}
	if err := s.client.Set(ctx, s.key(session.ID()), session.PIN(), s.ttl).Err(); err != nil {
		_ = s.client.Del(ctx, s.pinKey(session.PIN())).Err()
		return fmt.Errorf("mark session live: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[session.ID()] = session
	s.pins[session.PIN()] = session.ID()
	return nil
}

func (s *SessionStore) Get(sessionID string) (*app.Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.sessions[sessionID]
	return session, ok
}

func (s *SessionStore) FindByPIN(pin string) (*app.Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.pins[pin]
	if !ok {
		return nil, false
	}
	session, ok := s.sessions[id]
	return session, ok
}

func (s *SessionStore) Delete(ctx context.Context, sessionID string) {
	s.mu.Lock()
	session, ok := s.sessions[sessionID]
	if ok {
		delete(s.sessions, sessionID)
		delete(s.pins, session.PIN())
	}
	s.mu.Unlock()
	if !ok {
		return
	}
	if err := s.client.Del(ctx, s.key(sessionID), s.pinKey(session.PIN())).Err(); err != nil {
		log.Printf("session key cleanup failed session_id=%s error=%v", sessionID, err)
	}
}

func (s *SessionStore) key(sessionID string) string {
	return "quiz:session:" + sessionID
}

func (s *SessionStore) pinKey(pin string) string {
	return "quiz:pin:" + pin
}
