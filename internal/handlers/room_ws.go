package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/sirfilior/jass/internal/database"
	"github.com/sirfilior/jass/internal/deck"
	"github.com/sirfilior/jass/internal/game"
	"github.com/sirfilior/jass/internal/models"
)

// RoomMessage is the shape of inbound WebSocket messages for a room.
type RoomMessage struct {
	Type string `json:"type"`

	CardID    *int                 `json:"cardId,omitempty"`    // play_card
	RoundType string               `json:"roundType,omitempty"` // set_round_type
	Settings  *models.GameSettings `json:"settings,omitempty"`  // set_settings
}

// roomConns tracks the live WebSocket connections of one room, separate
// from the session so broadcast callbacks never need the session lock.
type roomConns struct {
	mu    sync.Mutex
	conns map[uuid.UUID]*websocket.Conn
}

func newRoomConns() *roomConns {
	return &roomConns{conns: make(map[uuid.UUID]*websocket.Conn)}
}

func (rc *roomConns) set(id uuid.UUID, c *websocket.Conn) {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	rc.conns[id] = c
}

func (rc *roomConns) remove(id uuid.UUID) {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	delete(rc.conns, id)
}

func (rc *roomConns) snapshot() map[uuid.UUID]*websocket.Conn {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	out := make(map[uuid.UUID]*websocket.Conn, len(rc.conns))
	for k, v := range rc.conns {
		out[k] = v
	}
	return out
}

// connRegistry maps room keys to their connection sets.
type connRegistry struct {
	mu    sync.Mutex
	rooms map[string]*roomConns
}

func newConnRegistry() *connRegistry {
	return &connRegistry{rooms: make(map[string]*roomConns)}
}

func (cr *connRegistry) forRoom(key string) *roomConns {
	cr.mu.Lock()
	defer cr.mu.Unlock()
	rc, ok := cr.rooms[key]
	if !ok {
		rc = newRoomConns()
		cr.rooms[key] = rc
	}
	return rc
}

func (cr *connRegistry) drop(key string) {
	cr.mu.Lock()
	defer cr.mu.Unlock()
	delete(cr.rooms, key)
}

var registry = newConnRegistry()

func fetchUser(ctx context.Context, id uuid.UUID) (*models.User, error) {
	return database.GetUserByID(ctx, id)
}

// RoomWSHandler upgrades the connection for /room/ws/{room_key}, seats or
// re-attaches the authenticated user and runs the read loop until the
// connection drops. Host disconnect abandons and deletes the room.
func RoomWSHandler(logger *logrus.Logger, rs *RoomServer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		roomKey := strings.TrimPrefix(r.URL.Path, "/room/ws/")
		if roomKey == "" || strings.Contains(roomKey, "/") {
			http.Error(w, "missing room key in path (/room/ws/{room_key})", http.StatusBadRequest)
			return
		}

		session, ok := rs.Sessions.Get(roomKey)
		if !ok {
			http.Error(w, "room not found", http.StatusNotFound)
			return
		}

		c, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			Subprotocols:   []string{"jass"},
			OriginPatterns: []string{"*"}, // tighten for production
		})
		if err != nil {
			logger.Warnf("WebSocket accept error for room %s: %v", roomKey, err)
			return
		}
		defer c.Close(websocket.StatusInternalError, "handler exit")

		if c.Subprotocol() != "jass" {
			c.Close(websocket.StatusPolicyViolation, "client must use the 'jass' subprotocol")
			return
		}

		userID, err := EnsureEphemeralUser(w, r)
		if err != nil {
			logger.Warnf("authentication failed for room %s: %v", roomKey, err)
			c.Close(websocket.StatusPolicyViolation, "authentication failed")
			return
		}
		logger.Infof("user %s connected to room %s", userID, roomKey)

		conns := registry.forRoom(roomKey)
		attachBroadcasters(session, conns, logger)

		if err := seatOrAttach(r.Context(), session, conns, userID, c); err != nil {
			logger.Warnf("user %s cannot join room %s: %v", userID, roomKey, err)
			sendRoomError(c, err.Error())
			c.Close(websocket.StatusPolicyViolation, "cannot join room")
			return
		}

		// Private state snapshot so (re)connecting clients can render.
		writeEvent(c, game.RoomEvent{Type: game.EventPrivateState, State: snapshotPtr(session.SnapshotFor(userID))})

		readRoomMessages(r.Context(), c, session, userID, logger)

		// Connection gone: host leaving abandons the room, others unseat.
		conns.remove(userID)
		if userID == session.HostID {
			logger.Infof("host %s left, abandoning room %s", userID, roomKey)
			broadcastToConns(conns, game.RoomEvent{Type: game.EventRoomAbandoned}, logger)
			rs.Sessions.Delete(roomKey)
			registry.drop(roomKey)
			return
		}
		if outcome, err := session.RemovePlayer(userID); err == nil && outcome != nil {
			logger.Infof("room %s: seat %d left mid-round, %d points forfeited",
				roomKey, outcome.LeftPlace, outcome.AwardedPoints)
		}
	}
}

func snapshotPtr(s game.Snapshot) *game.Snapshot { return &s }

// seatOrAttach either reconnects a seated player or takes the next free seat.
func seatOrAttach(ctx context.Context, session *game.GameSession, conns *roomConns, userID uuid.UUID, c *websocket.Conn) error {
	if p, err := session.Player(userID); err == nil {
		p.Conn = c
		p.Connected = true
		conns.set(userID, c)
		return nil
	}

	place, err := session.NextFreePlace()
	if err != nil {
		return fmt.Errorf("room is full")
	}
	p := &models.Player{ID: userID, Place: place, Connected: true, Conn: c}
	if u, uerr := fetchUser(ctx, userID); uerr == nil {
		p.User = u
	}
	if err := session.AddPlayer(p); err != nil {
		return err
	}
	conns.set(userID, c)
	return nil
}

// attachBroadcasters wires the session's outbound callbacks to the room's
// connection set. The callbacks run while the session lock is held, so they
// only snapshot connections and write asynchronously.
func attachBroadcasters(session *game.GameSession, conns *roomConns, logger *logrus.Logger) {
	session.Mu.Lock()
	defer session.Mu.Unlock()
	if session.BroadcastFn == nil {
		session.BroadcastFn = func(ev game.RoomEvent) {
			broadcastToConns(conns, ev, logger)
		}
	}
	if session.BroadcastToPlayerFn == nil {
		session.BroadcastToPlayerFn = func(playerID uuid.UUID, ev game.RoomEvent) {
			targets := conns.snapshot()
			conn, ok := targets[playerID]
			if !ok {
				return
			}
			data, err := json.Marshal(ev)
			if err != nil {
				logger.Errorf("failed to marshal private event %s: %v", ev.Type, err)
				return
			}
			go writeWithTimeout(conn, data, logger)
		}
	}
}

func broadcastToConns(conns *roomConns, ev game.RoomEvent, logger *logrus.Logger) {
	data, err := json.Marshal(ev)
	if err != nil {
		logger.Errorf("failed to marshal event %s: %v", ev.Type, err)
		return
	}
	targets := conns.snapshot()
	go func() {
		for _, conn := range targets {
			writeWithTimeout(conn, data, logger)
		}
	}()
}

func writeWithTimeout(conn *websocket.Conn, data []byte, logger *logrus.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := conn.Write(ctx, websocket.MessageText, data); err != nil {
		logger.Warnf("failed to write room message: %v", err)
	}
}

// readRoomMessages routes inbound messages into the session until the
// connection closes or the context is canceled.
func readRoomMessages(ctx context.Context, c *websocket.Conn, session *game.GameSession, userID uuid.UUID, logger *logrus.Logger) {
	for {
		msgType, data, err := c.Read(ctx)
		if err != nil {
			status := websocket.CloseStatus(err)
			if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway {
				logger.Infof("WebSocket closed normally for user %s in room %s", userID, session.RoomKey)
			} else if !strings.Contains(err.Error(), "context canceled") {
				logger.Warnf("WebSocket read error for user %s in room %s: %v", userID, session.RoomKey, err)
			}
			return
		}
		if msgType != websocket.MessageText {
			continue
		}

		var msg RoomMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			logger.Warnf("invalid JSON from user %s in room %s: %v", userID, session.RoomKey, err)
			sendRoomError(c, "invalid JSON format")
			continue
		}
		logger.Debugf("room %s: %s from %s", session.RoomKey, msg.Type, userID)

		isHost := userID == session.HostID

		switch msg.Type {
		case "start_game":
			if !isHost {
				sendRoomError(c, "only the host can start the game")
				continue
			}
			session.StartGame()
			if err := session.BeginRound(); err != nil {
				sendRoomError(c, err.Error())
			}

		case "set_round_type":
			if !isHost {
				sendRoomError(c, "only the host can pick the round type")
				continue
			}
			rt, err := deck.ParseRoundType(msg.RoundType)
			if err != nil {
				sendRoomError(c, err.Error())
				continue
			}
			if err := session.SetRoundType(rt); err != nil {
				sendRoomError(c, err.Error())
				continue
			}
			if session.IsRunning() {
				if err := session.BeginRound(); err != nil {
					sendRoomError(c, err.Error())
				}
			}

		case "set_settings":
			if !isHost {
				sendRoomError(c, "only the host can change settings")
				continue
			}
			if msg.Settings == nil {
				sendRoomError(c, "missing settings payload")
				continue
			}
			if err := session.SetSettings(*msg.Settings); err != nil {
				sendRoomError(c, err.Error())
			}

		case "play_card":
			if msg.CardID == nil {
				sendRoomError(c, "missing cardId")
				continue
			}
			session.HandlePlay(userID, *msg.CardID)

		case "ping":
			writeEvent(c, game.RoomEvent{Type: "pong"})

		default:
			sendRoomError(c, fmt.Sprintf("unknown message type: %s", msg.Type))
		}
	}
}

func writeEvent(c *websocket.Conn, ev game.RoomEvent) {
	data, err := json.Marshal(ev)
	if err != nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	c.Write(ctx, websocket.MessageText, data)
}

func sendRoomError(c *websocket.Conn, message string) {
	writeEvent(c, game.RoomEvent{
		Type:    game.EventPrivateError,
		Payload: map[string]interface{}{"message": message},
	})
}
