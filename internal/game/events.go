package game

import (
	"github.com/google/uuid"

	"github.com/sirfilior/jass/internal/models"
)

// RoomEventType is an enum-like type for broadcasting room facts.
type RoomEventType string

const (
	EventRoomPlayers    RoomEventType = "room_players"    // roster after join/leave
	EventRoomSettings   RoomEventType = "room_settings"   // settings after change
	EventGameStart      RoomEventType = "game_start"      // host started the game
	EventRoundType      RoomEventType = "round_type"      // round type selected
	EventPrivateHand    RoomEventType = "private_hand"    // dealt hand, per player
	EventPlayerTurn     RoomEventType = "player_turn"     // seat that must act
	EventCardPlayed     RoomEventType = "card_played"     // trick contents after a play
	EventScoreUpdate    RoomEventType = "score_update"    // team totals after a trick
	EventRoundFinished  RoomEventType = "round_finished"  // round complete, next seat
	EventRoundForfeited RoomEventType = "round_forfeited" // mid-round leaver, award
	EventGameOver       RoomEventType = "game_over"       // win threshold reached
	EventRoomAbandoned  RoomEventType = "room_abandoned"  // host left, room deleted
	EventPrivateError   RoomEventType = "error"           // rejected action, acting player only
	EventPrivateState   RoomEventType = "private_state"   // snapshot on (re)connect
)

// EventPlayer describes one roster entry.
type EventPlayer struct {
	ID    uuid.UUID `json:"id"`
	Name  string    `json:"name"`
	Place int       `json:"place"`
	Host  bool      `json:"host"`
}

// EventTrickCard is one trick entry as broadcast to the table: the card's
// display label plus the seat that played it.
type EventTrickCard struct {
	CardID  int    `json:"cardId"`
	Display string `json:"display"`
	Place   int    `json:"place"`
}

// RoomEvent holds data about a single room fact in a broadcast-ready shape.
type RoomEvent struct {
	Type RoomEventType `json:"type"`

	Players []EventPlayer    `json:"players,omitempty"`
	Hand    []*models.Card   `json:"hand,omitempty"`
	Trick   []EventTrickCard `json:"trick,omitempty"`
	Score   *models.Score    `json:"score,omitempty"`
	Place   *int             `json:"place,omitempty"` // next-to-act seat

	Payload map[string]interface{} `json:"payload,omitempty"`

	State *Snapshot `json:"state,omitempty"`
}
