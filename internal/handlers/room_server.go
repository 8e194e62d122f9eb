package handlers

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"log"
	"net/http"

	"github.com/sirfilior/jass/internal/game"
	"github.com/sirfilior/jass/internal/models"
)

// RoomServer owns the room registry and creates sessions for new rooms.
type RoomServer struct {
	Sessions *game.SessionStore
	Logf     func(f string, v ...interface{})
}

func NewRoomServer() *RoomServer {
	return &RoomServer{
		Sessions: game.NewSessionStore(),
		Logf:     log.Printf,
	}
}

// newRoomKey generates the externally visible random room key.
func newRoomKey() (string, error) {
	b := make([]byte, 8)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// CreateRoomHandler creates a session with the authenticated caller as host
// at place 0 and returns the room key. The host then opens the room
// WebSocket to attach their connection.
func (rs *RoomServer) CreateRoomHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	userID, err := EnsureEphemeralUser(w, r)
	if err != nil {
		http.Error(w, "authentication failed", http.StatusForbidden)
		return
	}

	key, err := newRoomKey()
	if err != nil {
		http.Error(w, "failed to create room key", http.StatusInternalServerError)
		return
	}

	host := &models.Player{ID: userID}
	if u, uerr := fetchUser(r.Context(), userID); uerr == nil {
		host.User = u
	}
	session := game.NewGameSession(key, host)
	if err := rs.Sessions.Add(session); err != nil {
		http.Error(w, "room key collision, retry", http.StatusInternalServerError)
		return
	}
	rs.Logf("room %s created by host %s", key, userID)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"room_key": key,
		"settings": session.GetSettings(),
	})
}
