package models

import "github.com/google/uuid"

// Suit identifies one of the four French suits used in a Jass deck.
type Suit string

const (
	SuitHearts   Suit = "hearts"
	SuitDiamonds Suit = "diamonds"
	SuitClubs    Suit = "clubs"
	SuitSpades   Suit = "spades"
)

// Suits lists all suits in catalog order. Card ids are derived from this order.
var Suits = []Suit{SuitHearts, SuitDiamonds, SuitClubs, SuitSpades}

// Card is one entry of the round catalog. ID is stable across round type
// changes; Rank and Score are re-derived whenever the round type changes.
type Card struct {
	ID      int    `json:"id"`
	Suit    Suit   `json:"suit"`
	Display string `json:"display"`
	Rank    int    `json:"rank"`
	Score   int    `json:"score"`
}

// PlayedCard pairs a card with the player who put it into the trick.
type PlayedCard struct {
	Card     *Card     `json:"card"`
	PlayerID uuid.UUID `json:"playerId"`
}
