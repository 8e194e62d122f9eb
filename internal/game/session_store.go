package game

import (
	"fmt"
	"sync"
)

// SessionStore is the process-wide room registry, keyed by room key. Rooms
// share no mutable state with each other beyond this map; the store lock
// guards the map only, never the sessions themselves.
type SessionStore struct {
	mu       sync.Mutex
	sessions map[string]*GameSession
}

// NewSessionStore initializes an empty registry.
func NewSessionStore() *SessionStore {
	return &SessionStore{
		sessions: make(map[string]*GameSession),
	}
}

// Add registers a session under its room key. Adding an existing key fails;
// room keys are random and must not collide silently.
func (st *SessionStore) Add(s *GameSession) error {
	st.mu.Lock()
	defer st.mu.Unlock()
	if _, exists := st.sessions[s.RoomKey]; exists {
		return fmt.Errorf("room %s already exists: %w", s.RoomKey, ErrInvalidConfiguration)
	}
	st.sessions[s.RoomKey] = s
	return nil
}

// Get returns the session for a room key.
func (st *SessionStore) Get(roomKey string) (*GameSession, bool) {
	st.mu.Lock()
	defer st.mu.Unlock()
	s, ok := st.sessions[roomKey]
	return s, ok
}

// Delete drops a room from the registry. Called when the host disconnects
// and the room is abandoned.
func (st *SessionStore) Delete(roomKey string) {
	st.mu.Lock()
	defer st.mu.Unlock()
	delete(st.sessions, roomKey)
}

// Len returns the number of active rooms.
func (st *SessionStore) Len() int {
	st.mu.Lock()
	defer st.mu.Unlock()
	return len(st.sessions)
}
