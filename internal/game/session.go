// Package game holds the in-memory state of one play session (room): the
// seated players, the current trick, team scores and round progression.
// Transport code forwards validated events in and broadcasts the resulting
// facts back out; the session never talks to the network directly.
package game

import (
	"context"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/sirfilior/jass/internal/cache"
	"github.com/sirfilior/jass/internal/deck"
	"github.com/sirfilior/jass/internal/models"
)

// MaxPlayers is the fixed table size. Places {0,2} form team A, {1,3} team B.
const MaxPlayers = 4

// TrickResult tells the caller who acts next after a resolved trick.
type TrickResult struct {
	NextPlayerID  uuid.UUID
	NextPlace     int
	RoundFinished bool
}

// ForfeitOutcome describes the observable result of a mid-round leave.
type ForfeitOutcome struct {
	LeftPlace      int
	AwardedPoints  int
	AwardedToTeamA bool
	NextPlace      int
}

// GameSession is the orchestrator for a single room. Every mutating call
// for one session is serialized through Mu; separate rooms run fully in
// parallel. All operations are synchronous and perform no blocking I/O.
type GameSession struct {
	RoomKey string
	HostID  uuid.UUID

	Settings models.GameSettings
	Running  bool
	GameOver bool

	// RoundStartPlace rotates by one seat each round, regardless of which
	// seat won the last trick. TrickCount resets with each round.
	RoundStartPlace int
	TrickCount      int

	players map[uuid.UUID]*models.Player
	deck    *deck.Deck
	trick   []models.PlayedCard
	score   models.Score
	dealt   bool

	playIndex int // monotonic per-session action counter for the historian

	Mu sync.Mutex

	// BroadcastFn sends an event to every player in the room. If nil, no
	// broadcast is done.
	BroadcastFn func(ev RoomEvent)

	// BroadcastToPlayerFn sends an event to a single specific player.
	BroadcastToPlayerFn func(playerID uuid.UUID, ev RoomEvent)
}

// NewGameSession creates a session for roomKey with the host seated at
// place 0 and default settings. The first round defaults to up-down until
// the host selects a round type.
func NewGameSession(roomKey string, host *models.Player) *GameSession {
	d, _ := deck.New(deck.RoundUpDown)
	host.Place = 0
	host.Hand = []*models.Card{}
	host.ShouldPlay = false
	s := &GameSession{
		RoomKey:  roomKey,
		HostID:   host.ID,
		Settings: models.GameSettings{WinAmount: 1000, EnableWise: true},
		players:  map[uuid.UUID]*models.Player{host.ID: host},
		deck:     d,
	}
	return s
}

// AddPlayer seats a new player. The place must be free and within 0..3;
// a fifth seat request fails with ErrCapacityExceeded.
func (s *GameSession) AddPlayer(p *models.Player) error {
	s.Mu.Lock()
	defer s.Mu.Unlock()

	if len(s.players) >= MaxPlayers {
		return fmt.Errorf("seat %d: %w", p.Place, ErrCapacityExceeded)
	}
	if p.Place < 0 || p.Place >= MaxPlayers {
		return fmt.Errorf("place %d out of range: %w", p.Place, ErrInvalidConfiguration)
	}
	for _, other := range s.players {
		if other.Place == p.Place {
			return fmt.Errorf("place %d already taken: %w", p.Place, ErrInvalidConfiguration)
		}
	}
	p.Hand = []*models.Card{}
	p.ShouldPlay = false
	s.players[p.ID] = p
	s.logPlay(p.ID, "player_join", map[string]interface{}{"place": p.Place})
	s.fireEvent(RoomEvent{Type: EventRoomPlayers, Players: s.roster()})
	return nil
}

// RemovePlayer unseats a player. Leaving mid-round forfeits the round: all
// points not yet scored this round (cards still in hands plus the open
// trick) go to the opposing team, the round is cleared and the start seat
// rotates. The outcome is broadcast and returned, never silently skipped.
func (s *GameSession) RemovePlayer(id uuid.UUID) (*ForfeitOutcome, error) {
	s.Mu.Lock()
	defer s.Mu.Unlock()

	p, ok := s.players[id]
	if !ok {
		return nil, fmt.Errorf("player %s: %w", id, ErrNotFound)
	}
	s.logPlay(id, "player_leave", map[string]interface{}{"place": p.Place})

	// Forfeit before unseating so the leaver's own hand counts toward the
	// award; the points of a round always sum to the same total.
	var outcome *ForfeitOutcome
	if s.Running && !s.GameOver && s.roundInProgress() {
		outcome = s.forfeitRound(p.Place)
	}
	delete(s.players, id)
	s.fireEvent(RoomEvent{Type: EventRoomPlayers, Players: s.roster()})
	return outcome, nil
}

// roundInProgress reports whether dealt cards of the current round are
// still unresolved. Assumes lock is held.
func (s *GameSession) roundInProgress() bool {
	if !s.dealt {
		return false
	}
	if len(s.trick) > 0 {
		return true
	}
	for _, p := range s.players {
		if len(p.Hand) > 0 {
			return true
		}
	}
	return false
}

// forfeitRound awards the remaining round points to the team opposing the
// leaver's seat and resets the round. Assumes lock is held.
func (s *GameSession) forfeitRound(leftPlace int) *ForfeitOutcome {
	remaining := 0
	for _, pc := range s.trick {
		remaining += pc.Card.Score
	}
	for _, p := range s.players {
		for _, c := range p.Hand {
			remaining += c.Score
		}
		p.Hand = []*models.Card{}
		p.ShouldPlay = false
	}

	toTeamA := leftPlace%2 == 1 // leaver on B forfeits to A and vice versa
	if toTeamA {
		s.score.TeamA += remaining
	} else {
		s.score.TeamB += remaining
	}

	s.trick = nil
	s.TrickCount = 0
	s.dealt = false
	s.RoundStartPlace = (s.RoundStartPlace + 1) % MaxPlayers

	outcome := &ForfeitOutcome{
		LeftPlace:      leftPlace,
		AwardedPoints:  remaining,
		AwardedToTeamA: toTeamA,
		NextPlace:      s.RoundStartPlace,
	}
	s.logPlay(uuid.Nil, string(EventRoundForfeited), map[string]interface{}{
		"leftPlace": leftPlace,
		"awarded":   remaining,
		"toTeamA":   toTeamA,
	})
	score := s.score
	next := s.RoundStartPlace
	s.fireEvent(RoomEvent{
		Type:  EventRoundForfeited,
		Score: &score,
		Place: &next,
		Payload: map[string]interface{}{
			"leftPlace": leftPlace,
			"awarded":   remaining,
		},
	})
	s.checkGameOverLocked()
	return outcome
}

// StartGame marks the session as running. Calling it twice is a no-op.
func (s *GameSession) StartGame() {
	s.Mu.Lock()
	defer s.Mu.Unlock()
	if s.Running {
		return
	}
	s.Running = true
	s.logPlay(s.HostID, string(EventGameStart), nil)
	s.fireEvent(RoomEvent{Type: EventGameStart})
}

// IsRunning reports whether the host has started the game.
func (s *GameSession) IsRunning() bool {
	s.Mu.Lock()
	defer s.Mu.Unlock()
	return s.Running
}

// SetRoundType rebuilds the catalog under the new round type and re-derives
// rank and score for every card already held, matched by stable id. Hand
// composition is preserved; distribution is not repeated.
func (s *GameSession) SetRoundType(rt deck.RoundType) error {
	s.Mu.Lock()
	defer s.Mu.Unlock()

	d, err := deck.New(rt)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfiguration, err)
	}
	s.deck = d
	for _, p := range s.players {
		for _, c := range p.Hand {
			fresh, err := d.CardByID(c.ID)
			if err != nil {
				return fmt.Errorf("held card %d: %w", c.ID, ErrNotFound)
			}
			c.Rank = fresh.Rank
			c.Score = fresh.Score
		}
	}
	s.logPlay(uuid.Nil, string(EventRoundType), map[string]interface{}{"roundType": rt.String()})
	s.fireEvent(RoomEvent{
		Type:    EventRoundType,
		Payload: map[string]interface{}{"roundType": rt.String()},
	})
	return nil
}

// RoundType returns the active round type.
func (s *GameSession) RoundType() deck.RoundType {
	s.Mu.Lock()
	defer s.Mu.Unlock()
	return s.deck.Type
}

// Dealt reports whether the current round's hands are already out.
func (s *GameSession) Dealt() bool {
	s.Mu.Lock()
	defer s.Mu.Unlock()
	return s.dealt
}

// DealHands distributes the catalog into the four seated hands. It must be
// called exactly once between round type selection and the first play of
// the round; a second call fails and keeps the dealt hands.
func (s *GameSession) DealHands() error {
	s.Mu.Lock()
	defer s.Mu.Unlock()
	return s.dealHands()
}

// dealHands assumes lock is held.
func (s *GameSession) dealHands() error {
	if s.dealt {
		return fmt.Errorf("hands already dealt this round: %w", ErrInvalidConfiguration)
	}
	if len(s.players) != MaxPlayers {
		return fmt.Errorf("need %d seated players, have %d: %w", MaxPlayers, len(s.players), ErrInvalidConfiguration)
	}
	hands, err := s.deck.Distribute(MaxPlayers)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfiguration, err)
	}
	for _, p := range s.players {
		p.Hand = hands[p.Place]
	}
	s.dealt = true
	s.logPlay(uuid.Nil, "hands_dealt", map[string]interface{}{"roundType": s.deck.Type.String()})
	for _, p := range s.players {
		s.fireEventToPlayer(p.ID, RoomEvent{Type: EventPrivateHand, Hand: p.Hand})
	}
	return nil
}

// BeginRound deals the round's hands and flags the round's starting seat,
// under a single lock acquisition. No-op when hands are already out.
func (s *GameSession) BeginRound() error {
	s.Mu.Lock()
	defer s.Mu.Unlock()
	if s.dealt {
		return nil
	}
	if err := s.dealHands(); err != nil {
		return err
	}
	return s.setPlayerTurn(s.RoundStartPlace)
}

// SetPlayerTurn flags the player at place as the single seat that must act.
func (s *GameSession) SetPlayerTurn(place int) error {
	s.Mu.Lock()
	defer s.Mu.Unlock()
	return s.setPlayerTurn(place)
}

// setPlayerTurn assumes lock is held.
func (s *GameSession) setPlayerTurn(place int) error {
	var found bool
	for _, p := range s.players {
		p.ShouldPlay = p.Place == place
		if p.ShouldPlay {
			found = true
		}
	}
	if !found {
		for _, p := range s.players {
			p.ShouldPlay = false
		}
		return fmt.Errorf("no player at place %d: %w", place, ErrNotFound)
	}
	pl := place
	s.fireEvent(RoomEvent{Type: EventPlayerTurn, Place: &pl})
	return nil
}

// ValidatePlay reports whether the player may put the card into the trick
// right now. It never mutates state.
func (s *GameSession) ValidatePlay(playerID uuid.UUID, cardID int) bool {
	s.Mu.Lock()
	defer s.Mu.Unlock()
	return s.validatePlay(playerID, cardID)
}

// validatePlay assumes lock is held.
func (s *GameSession) validatePlay(playerID uuid.UUID, cardID int) bool {
	if s.GameOver || !s.Running || !s.dealt {
		return false
	}
	p, ok := s.players[playerID]
	if !ok {
		return false
	}
	if !p.ShouldPlay {
		log.Printf("room %s: invalid play, place %d should not play", s.RoomKey, p.Place)
		return false
	}
	if !p.HasCard(cardID) {
		log.Printf("room %s: invalid play, place %d does not hold card %d", s.RoomKey, p.Place, cardID)
		return false
	}
	if len(s.trick) == 0 {
		return true // the player leads; any held card is legal
	}
	activeSuit := s.trick[0].Card.Suit
	prev := s.trick[len(s.trick)-1].Card
	candidate, err := s.deck.CardByID(cardID)
	if err != nil {
		log.Printf("room %s: invalid play, card %d not in catalog", s.RoomKey, cardID)
		return false
	}
	return s.deck.ValidateCard(activeSuit, p.HasSuit(activeSuit), prev, candidate)
}

// PlayCard removes the card from the player's hand and appends it to the
// trick. The caller must have confirmed ValidatePlay first; a validated
// play is never rejected here.
func (s *GameSession) PlayCard(playerID uuid.UUID, cardID int) error {
	s.Mu.Lock()
	defer s.Mu.Unlock()
	return s.playCard(playerID, cardID)
}

// playCard assumes lock is held.
func (s *GameSession) playCard(playerID uuid.UUID, cardID int) error {
	p, ok := s.players[playerID]
	if !ok {
		return fmt.Errorf("player %s: %w", playerID, ErrNotFound)
	}
	card, err := s.deck.CardByID(cardID)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrNotFound, err)
	}
	hand := p.Hand[:0]
	for _, c := range p.Hand {
		if c.ID != cardID {
			hand = append(hand, c)
		}
	}
	p.Hand = hand
	s.trick = append(s.trick, models.PlayedCard{Card: card, PlayerID: playerID})
	s.logPlay(playerID, string(EventCardPlayed), map[string]interface{}{"cardId": cardID})
	s.fireEvent(RoomEvent{Type: EventCardPlayed, Trick: s.trickView()})
	return nil
}

// ResolveTrick determines the trick winner, credits the summed card scores
// to the winning team, clears the trick and advances the round counters.
// After the last trick of a round it completes the round and names the
// seat that opens the next one.
func (s *GameSession) ResolveTrick() (TrickResult, error) {
	s.Mu.Lock()
	defer s.Mu.Unlock()
	return s.resolveTrick()
}

// resolveTrick assumes lock is held.
func (s *GameSession) resolveTrick() (TrickResult, error) {
	if len(s.trick) != MaxPlayers {
		return TrickResult{}, fmt.Errorf("trick has %d of %d cards: %w", len(s.trick), MaxPlayers, ErrInvalidPlay)
	}

	winningCardID, err := s.deck.TrickWinner(s.trick)
	if err != nil {
		return TrickResult{}, fmt.Errorf("%w: %v", ErrInvalidPlay, err)
	}

	sum := 0
	var winner *models.Player
	for _, pc := range s.trick {
		sum += pc.Card.Score
		if pc.Card.ID == winningCardID {
			winner = s.players[pc.PlayerID]
		}
	}
	if winner == nil {
		return TrickResult{}, fmt.Errorf("winning player left the room: %w", ErrNotFound)
	}
	if winner.Place%2 == 0 {
		s.score.TeamA += sum
	} else {
		s.score.TeamB += sum
	}

	s.trick = nil
	s.TrickCount++
	s.logPlay(winner.ID, "trick_resolved", map[string]interface{}{
		"winningCard": winningCardID,
		"points":      sum,
	})
	score := s.score
	s.fireEvent(RoomEvent{Type: EventScoreUpdate, Score: &score})

	if s.checkGameOverLocked() {
		return TrickResult{NextPlayerID: winner.ID, NextPlace: winner.Place, RoundFinished: true}, nil
	}

	if s.TrickCount == s.deck.TricksPerRound(MaxPlayers) {
		next := s.finishRound()
		nextID := uuid.Nil
		if p := s.playerByPlace(next); p != nil {
			nextID = p.ID
		}
		pl := next
		s.fireEvent(RoomEvent{Type: EventRoundFinished, Place: &pl, Score: &score})
		return TrickResult{NextPlayerID: nextID, NextPlace: next, RoundFinished: true}, nil
	}
	return TrickResult{NextPlayerID: winner.ID, NextPlace: winner.Place, RoundFinished: false}, nil
}

// finishRound rotates the starting seat by a fixed offset, independent of
// the last trick's winner, and resets the round counters. Assumes lock is
// held. Returns the place opening the next round.
func (s *GameSession) finishRound() int {
	s.RoundStartPlace = (s.RoundStartPlace + 1) % MaxPlayers
	s.TrickCount = 0
	s.trick = nil
	s.dealt = false
	return s.RoundStartPlace
}

// CheckGameOver reports whether either team reached the win amount.
// Game-over is terminal; no further plays are accepted once true.
func (s *GameSession) CheckGameOver() bool {
	s.Mu.Lock()
	defer s.Mu.Unlock()
	return s.checkGameOverLocked()
}

// checkGameOverLocked assumes lock is held.
func (s *GameSession) checkGameOverLocked() bool {
	if s.GameOver {
		return true
	}
	if s.score.TeamA < s.Settings.WinAmount && s.score.TeamB < s.Settings.WinAmount {
		return false
	}
	s.GameOver = true
	winningTeam := "teamA"
	if s.score.TeamB >= s.Settings.WinAmount {
		winningTeam = "teamB"
	}
	s.logPlay(uuid.Nil, string(EventGameOver), map[string]interface{}{"winner": winningTeam})
	score := s.score
	s.fireEvent(RoomEvent{
		Type:    EventGameOver,
		Score:   &score,
		Payload: map[string]interface{}{"winner": winningTeam},
	})
	return true
}

// HandlePlay is the transport entrypoint for a play-card event. It runs
// validation, mutation and, on the fourth card, trick resolution under a
// single lock acquisition so plays apply in exactly the order delivered.
func (s *GameSession) HandlePlay(playerID uuid.UUID, cardID int) {
	s.Mu.Lock()
	defer s.Mu.Unlock()

	if !s.validatePlay(playerID, cardID) {
		s.fireEventToPlayer(playerID, RoomEvent{
			Type:    EventPrivateError,
			Payload: map[string]interface{}{"message": "invalid play"},
		})
		return
	}
	if err := s.playCard(playerID, cardID); err != nil {
		log.Printf("room %s: play after validation failed: %v", s.RoomKey, err)
		return
	}
	if len(s.trick) < MaxPlayers {
		if p := s.players[playerID]; p != nil {
			if err := s.setPlayerTurn((p.Place + 1) % MaxPlayers); err != nil {
				log.Printf("room %s: %v", s.RoomKey, err)
			}
		}
		return
	}
	res, err := s.resolveTrick()
	if err != nil {
		log.Printf("room %s: trick resolution failed: %v", s.RoomKey, err)
		return
	}
	if !s.GameOver {
		if err := s.setPlayerTurn(res.NextPlace); err != nil {
			log.Printf("room %s: %v", s.RoomKey, err)
		}
	}
}

// GetSettings returns the current room settings.
func (s *GameSession) GetSettings() models.GameSettings {
	s.Mu.Lock()
	defer s.Mu.Unlock()
	return s.Settings
}

// SetSettings replaces the room settings. A non-positive win amount is
// rejected and the prior settings are kept.
func (s *GameSession) SetSettings(settings models.GameSettings) error {
	s.Mu.Lock()
	defer s.Mu.Unlock()
	if settings.WinAmount <= 0 {
		return fmt.Errorf("winAmount must be positive: %w", ErrInvalidConfiguration)
	}
	s.Settings = settings
	s.fireEvent(RoomEvent{
		Type:    EventRoomSettings,
		Payload: map[string]interface{}{"settings": settings},
	})
	return nil
}

// Score returns the current team totals.
func (s *GameSession) Score() models.Score {
	s.Mu.Lock()
	defer s.Mu.Unlock()
	return s.score
}

// Trick returns a copy of the current trick in play order.
func (s *GameSession) Trick() []models.PlayedCard {
	s.Mu.Lock()
	defer s.Mu.Unlock()
	return append([]models.PlayedCard(nil), s.trick...)
}

// Player returns the seated player with the given id.
func (s *GameSession) Player(id uuid.UUID) (*models.Player, error) {
	s.Mu.Lock()
	defer s.Mu.Unlock()
	p, ok := s.players[id]
	if !ok {
		return nil, fmt.Errorf("player %s: %w", id, ErrNotFound)
	}
	return p, nil
}

// Players returns all seated players ordered by place.
func (s *GameSession) Players() []*models.Player {
	s.Mu.Lock()
	defer s.Mu.Unlock()
	return s.playersByPlace()
}

// playersByPlace assumes lock is held.
func (s *GameSession) playersByPlace() []*models.Player {
	out := make([]*models.Player, 0, len(s.players))
	for _, p := range s.players {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Place < out[j].Place })
	return out
}

// playerByPlace assumes lock is held.
func (s *GameSession) playerByPlace(place int) *models.Player {
	for _, p := range s.players {
		if p.Place == place {
			return p
		}
	}
	return nil
}

// NextFreePlace returns the lowest unseated place.
func (s *GameSession) NextFreePlace() (int, error) {
	s.Mu.Lock()
	defer s.Mu.Unlock()
	for place := 0; place < MaxPlayers; place++ {
		if s.playerByPlace(place) == nil {
			return place, nil
		}
	}
	return 0, ErrCapacityExceeded
}

// roster assumes lock is held.
func (s *GameSession) roster() []EventPlayer {
	var roster []EventPlayer
	for _, p := range s.playersByPlace() {
		entry := EventPlayer{ID: p.ID, Place: p.Place, Host: p.ID == s.HostID}
		if p.User != nil {
			entry.Name = p.User.Username
		}
		roster = append(roster, entry)
	}
	return roster
}

// Roster returns the broadcastable seat list.
func (s *GameSession) Roster() []EventPlayer {
	s.Mu.Lock()
	defer s.Mu.Unlock()
	return s.roster()
}

// trickView assumes lock is held.
func (s *GameSession) trickView() []EventTrickCard {
	view := make([]EventTrickCard, 0, len(s.trick))
	for _, pc := range s.trick {
		place := -1
		if p, ok := s.players[pc.PlayerID]; ok {
			place = p.Place
		}
		view = append(view, EventTrickCard{CardID: pc.Card.ID, Display: pc.Card.Display, Place: place})
	}
	return view
}

// fireEvent broadcasts an event to the whole room. Assumes lock is held.
func (s *GameSession) fireEvent(ev RoomEvent) {
	if s.BroadcastFn != nil {
		s.BroadcastFn(ev)
	}
}

// fireEventToPlayer sends an event to one player only. Assumes lock is held.
func (s *GameSession) fireEventToPlayer(playerID uuid.UUID, ev RoomEvent) {
	if s.BroadcastToPlayerFn != nil {
		s.BroadcastToPlayerFn(playerID, ev)
	}
}

// logPlay publishes an action record to the historian queue without
// blocking session logic. Assumes lock is held.
func (s *GameSession) logPlay(actorID uuid.UUID, actionType string, payload map[string]interface{}) {
	s.playIndex++
	if payload == nil {
		payload = make(map[string]interface{})
	}
	record := cache.PlayRecord{
		RoomKey:     s.RoomKey,
		ActionIndex: s.playIndex,
		ActorID:     actorID,
		ActionType:  actionType,
		Payload:     payload,
		Timestamp:   time.Now().UnixMilli(),
	}
	go func(rec cache.PlayRecord) {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if cache.Rdb == nil {
			return
		}
		if err := cache.PublishPlayRecord(ctx, rec); err != nil {
			log.Printf("room %s: failed to publish play record %d: %v", rec.RoomKey, rec.ActionIndex, err)
		}
	}(record)
}
