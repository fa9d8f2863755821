// Package storage keeps the live solution sessions of a running server.
package storage

import (
	"sort"
	"sync"
	"time"

	"github.com/scanhelper/scanhelper/internal/identity"
	"github.com/scanhelper/scanhelper/internal/metrics"
	"github.com/scanhelper/scanhelper/internal/solution"
)

type SessionStore struct {
	sessions map[string]*solution.Controller
	mu       sync.RWMutex
}

func New() *SessionStore {
	return &SessionStore{
		sessions: make(map[string]*solution.Controller),
	}
}

func (s *SessionStore) Get(sessionID string) (*solution.Controller, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, exists := s.sessions[sessionID]
	return session, exists
}

func (s *SessionStore) Set(session *solution.Controller) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[session.ID()] = session
	metrics.SetLiveSessions(len(s.sessions))
}

// ForDevice returns the device's sessions, newest first.
func (s *SessionStore) ForDevice(deviceID identity.DeviceID) []*solution.Controller {
	s.mu.RLock()
	result := make([]*solution.Controller, 0, len(s.sessions))
	for _, session := range s.sessions {
		if session.DeviceID() == deviceID {
			result = append(result, session)
		}
	}
	s.mu.RUnlock()

	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt().After(result[j].CreatedAt())
	})
	return result
}

// Delete removes the session and returns it so the caller can close it.
func (s *SessionStore) Delete(sessionID string) (*solution.Controller, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, exists := s.sessions[sessionID]
	delete(s.sessions, sessionID)
	metrics.SetLiveSessions(len(s.sessions))
	return session, exists
}

// Prune removes idle sessions created before cutoff and returns them so the
// caller can close them. Sessions that are still streaming are kept.
func (s *SessionStore) Prune(cutoff time.Time) []*solution.Controller {
	s.mu.Lock()
	defer s.mu.Unlock()
	var pruned []*solution.Controller
	for id, session := range s.sessions {
		if session.CreatedAt().Before(cutoff) && !session.Loading() {
			pruned = append(pruned, session)
			delete(s.sessions, id)
		}
	}
	metrics.SetLiveSessions(len(s.sessions))
	return pruned
}

// CloseAll cancels and removes every session.
func (s *SessionStore) CloseAll() {
	s.mu.Lock()
	sessions := s.sessions
	s.sessions = make(map[string]*solution.Controller)
	s.mu.Unlock()
	metrics.SetLiveSessions(0)

	for _, session := range sessions {
		session.Close()
	}
}

func (s *SessionStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}
