package models

import (
	"github.com/coder/websocket"
	"github.com/google/uuid"
)

// Player is one seated participant of a room. Place 0..3 is the fixed seat;
// places {0,2} form team A, {1,3} team B. The hand is exclusively owned by
// the player; cards reference catalog entries and are never copied.
type Player struct {
	ID         uuid.UUID       `json:"id"`
	Place      int             `json:"place"`
	Hand       []*Card         `json:"hand"`
	ShouldPlay bool            `json:"shouldPlay"`
	Connected  bool            `json:"connected"`
	Conn       *websocket.Conn `json:"-"`

	User *User `json:"-"`
}

// HasCard reports whether the player currently holds the card with the given id.
func (p *Player) HasCard(cardID int) bool {
	for _, c := range p.Hand {
		if c.ID == cardID {
			return true
		}
	}
	return false
}

// HasSuit reports whether any card of the given suit remains in the hand.
func (p *Player) HasSuit(suit Suit) bool {
	for _, c := range p.Hand {
		if c.Suit == suit {
			return true
		}
	}
	return false
}
