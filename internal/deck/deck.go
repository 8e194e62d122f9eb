// Package deck builds the round-specific card catalog and implements the
// per-round-type rules: rank/score derivation, play legality and trick
// resolution for trump, up-down and down-up rounds.
package deck

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/sirfilior/jass/internal/models"
)

// RoundType selects the rule set for one round.
type RoundType int

const (
	RoundTrumpHearts RoundType = iota
	RoundTrumpDiamonds
	RoundTrumpClubs
	RoundTrumpSpades
	RoundUpDown // no trump, higher rank wins
	RoundDownUp // no trump, lower rank wins
)

var roundTypeNames = map[RoundType]string{
	RoundTrumpHearts:   "trump_hearts",
	RoundTrumpDiamonds: "trump_diamonds",
	RoundTrumpClubs:    "trump_clubs",
	RoundTrumpSpades:   "trump_spades",
	RoundUpDown:        "updown",
	RoundDownUp:        "downup",
}

func (rt RoundType) String() string {
	if s, ok := roundTypeNames[rt]; ok {
		return s
	}
	return fmt.Sprintf("unknown(%d)", int(rt))
}

// ParseRoundType maps a wire selector to a RoundType. Unknown selectors are
// an error; callers must keep the previous round type in that case.
func ParseRoundType(s string) (RoundType, error) {
	for rt, name := range roundTypeNames {
		if name == s {
			return rt, nil
		}
	}
	return 0, fmt.Errorf("unrecognized round type %q", s)
}

var trumpSuits = map[RoundType]models.Suit{
	RoundTrumpHearts:   models.SuitHearts,
	RoundTrumpDiamonds: models.SuitDiamonds,
	RoundTrumpClubs:    models.SuitClubs,
	RoundTrumpSpades:   models.SuitSpades,
}

// rankLabels in natural ascending order; a card's stable id is
// suitIndex*len(rankLabels) + rankIndex.
var rankLabels = []string{"6", "7", "8", "9", "10", "J", "Q", "K", "A"}

var suitSymbols = map[models.Suit]string{
	models.SuitHearts:   "♥",
	models.SuitDiamonds: "♦",
	models.SuitClubs:    "♣",
	models.SuitSpades:   "♠",
}

// baseScores is the non-trump point table.
var baseScores = map[string]int{
	"A": 11, "K": 4, "Q": 3, "J": 2, "10": 10,
}

// trumpRanks re-orders the trump suit: Jack highest, nine second.
var trumpRanks = map[string]int{
	"6": 0, "7": 1, "8": 2, "10": 3, "Q": 4, "K": 5, "A": 6, "9": 7, "J": 8,
}

// trumpScores overrides the point table for trump cards.
var trumpScores = map[string]int{
	"J": 20, "9": 14,
}

// Deck is the catalog of one round: every card of the current round type,
// keyed by stable id. It is immutable after Build; sessions hand out
// references into it.
type Deck struct {
	Type  RoundType
	cards map[int]*models.Card
	order []*models.Card

	rng *rand.Rand
}

// New builds a ready catalog for the given round type.
func New(rt RoundType) (*Deck, error) {
	if _, ok := roundTypeNames[rt]; !ok {
		return nil, fmt.Errorf("unrecognized round type %d", int(rt))
	}
	d := &Deck{
		Type:  rt,
		cards: make(map[int]*models.Card),
		rng:   rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	d.build()
	return d, nil
}

// build populates the catalog with deterministic ids and round-type derived
// rank and score values.
func (d *Deck) build() {
	trump, hasTrump := trumpSuits[d.Type]
	for si, suit := range models.Suits {
		for ri, label := range rankLabels {
			card := &models.Card{
				ID:      si*len(rankLabels) + ri,
				Suit:    suit,
				Display: label + suitSymbols[suit],
				Rank:    ri,
				Score:   baseScores[label],
			}
			switch {
			case hasTrump && suit == trump:
				card.Rank = trumpRanks[label]
				if s, ok := trumpScores[label]; ok {
					card.Score = s
				}
			case d.Type == RoundDownUp:
				card.Rank = len(rankLabels) - 1 - ri
			}
			d.cards[card.ID] = card
			d.order = append(d.order, card)
		}
	}
}

// Size returns the number of cards in the catalog.
func (d *Deck) Size() int {
	return len(d.order)
}

// TricksPerRound is the number of tricks needed to exhaust the catalog.
func (d *Deck) TricksPerRound(seats int) int {
	return len(d.order) / seats
}

// Trump returns the trump suit of the round, if the round type has one.
func (d *Deck) Trump() (models.Suit, bool) {
	s, ok := trumpSuits[d.Type]
	return s, ok
}

// CardByID looks up a catalog card. Unknown ids are an explicit error; the
// caller must not dereference a card it did not get from the catalog.
func (d *Deck) CardByID(id int) (*models.Card, error) {
	c, ok := d.cards[id]
	if !ok {
		return nil, fmt.Errorf("card %d not in catalog", id)
	}
	return c, nil
}

// Distribute shuffles the catalog uniformly and partitions it into seats
// equal hands in seating order. Every card lands in exactly one hand.
func (d *Deck) Distribute(seats int) ([][]*models.Card, error) {
	if seats <= 0 || len(d.order)%seats != 0 {
		return nil, fmt.Errorf("cannot split %d cards across %d seats", len(d.order), seats)
	}
	shuffled := make([]*models.Card, len(d.order))
	copy(shuffled, d.order)
	d.rng.Shuffle(len(shuffled), func(i, j int) {
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	})

	handSize := len(shuffled) / seats
	hands := make([][]*models.Card, seats)
	for s := 0; s < seats; s++ {
		hands[s] = append([]*models.Card(nil), shuffled[s*handSize:(s+1)*handSize]...)
	}
	return hands, nil
}

// ValidateCard decides whether candidate may be played, given the suit that
// opened the trick, whether the player still holds that suit, and the card
// played immediately before. The trick being empty is the caller's case;
// this check only covers followers.
//
// Rules: following the active suit is always legal. In a trump round a
// trump card is always playable, except under-trumping: when the previous
// card is a higher trump and the active suit is not trump itself. Any other
// off-suit card is legal only when the active suit is exhausted in hand.
func (d *Deck) ValidateCard(activeSuit models.Suit, playerHasSuit bool, prev, candidate *models.Card) bool {
	if candidate.Suit == activeSuit {
		return true
	}
	if trump, ok := trumpSuits[d.Type]; ok && candidate.Suit == trump {
		if prev.Suit == trump && prev.Rank > candidate.Rank {
			return false
		}
		return true
	}
	return !playerHasSuit
}

// TrickWinner returns the id of the winning card of a full trick. In a
// trump round any trump beats every non-trump card; otherwise the highest
// rank of the active suit wins. Down-up rounds need no special case since
// their ranks are derived inverted.
func (d *Deck) TrickWinner(trick []models.PlayedCard) (int, error) {
	if len(trick) == 0 {
		return 0, fmt.Errorf("cannot resolve empty trick")
	}
	activeSuit := trick[0].Card.Suit
	contestedSuit := activeSuit
	if trump, ok := trumpSuits[d.Type]; ok {
		for _, pc := range trick {
			if pc.Card.Suit == trump {
				contestedSuit = trump
				break
			}
		}
	}

	best := -1
	winner := trick[0].Card.ID
	for _, pc := range trick {
		if pc.Card.Suit != contestedSuit {
			continue
		}
		if pc.Card.Rank > best {
			best = pc.Card.Rank
			winner = pc.Card.ID
		}
	}
	return winner, nil
}
