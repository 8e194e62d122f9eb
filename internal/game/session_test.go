// internal/game/session_test.go
package game

import (
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sirfilior/jass/internal/deck"
	"github.com/sirfilior/jass/internal/models"
)

// mockBroadcaster collects events instead of sending them over WS.
type mockBroadcaster struct {
	mu           sync.Mutex
	allEvents    []RoomEvent
	playerEvents map[uuid.UUID][]RoomEvent
}

func newMockBroadcaster() *mockBroadcaster {
	return &mockBroadcaster{
		playerEvents: make(map[uuid.UUID][]RoomEvent),
	}
}

func (mb *mockBroadcaster) broadcastFn(ev RoomEvent) {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	mb.allEvents = append(mb.allEvents, ev)
}

func (mb *mockBroadcaster) broadcastToPlayerFn(playerID uuid.UUID, ev RoomEvent) {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	mb.playerEvents[playerID] = append(mb.playerEvents[playerID], ev)
}

func (mb *mockBroadcaster) lastEventOfType(evType RoomEventType) *RoomEvent {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	for i := len(mb.allEvents) - 1; i >= 0; i-- {
		if mb.allEvents[i].Type == evType {
			return &mb.allEvents[i]
		}
	}
	return nil
}

func (mb *mockBroadcaster) lastPlayerEvent(playerID uuid.UUID) *RoomEvent {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	events := mb.playerEvents[playerID]
	if len(events) == 0 {
		return nil
	}
	return &events[len(events)-1]
}

// setupTestSession seats four players with the host at place 0.
func setupTestSession(t *testing.T) (*GameSession, []*models.Player, *mockBroadcaster) {
	t.Helper()
	host := &models.Player{ID: uuid.New(), Connected: true}
	s := NewGameSession("testroom", host)
	mb := newMockBroadcaster()
	s.BroadcastFn = mb.broadcastFn
	s.BroadcastToPlayerFn = mb.broadcastToPlayerFn

	players := []*models.Player{host}
	for place := 1; place < MaxPlayers; place++ {
		p := &models.Player{ID: uuid.New(), Place: place, Connected: true}
		require.NoError(t, s.AddPlayer(p))
		players = append(players, p)
	}
	return s, players, mb
}

// giveHand assigns deterministic catalog cards, bypassing distribution.
func giveHand(t *testing.T, s *GameSession, p *models.Player, cardIDs ...int) {
	t.Helper()
	hand := make([]*models.Card, 0, len(cardIDs))
	for _, id := range cardIDs {
		c, err := s.deck.CardByID(id)
		require.NoError(t, err)
		hand = append(hand, c)
	}
	p.Hand = hand
}

// Hearts occupy ids 0..8 in rank order: 6♥=0 .. A♥=8.
const (
	sixHearts   = 0
	sevenHearts = 1
	eightHearts = 2
	queenHearts = 6
	kingHearts  = 7
	aceHearts   = 8
	jackSpades  = 32
)

func TestAddPlayerSeating(t *testing.T) {
	s, _, _ := setupTestSession(t)

	fifth := &models.Player{ID: uuid.New(), Place: 2}
	err := s.AddPlayer(fifth)
	assert.ErrorIs(t, err, ErrCapacityExceeded)

	host := &models.Player{ID: uuid.New(), Connected: true}
	s2 := NewGameSession("testroom2", host)
	dup := &models.Player{ID: uuid.New(), Place: 0}
	assert.ErrorIs(t, s2.AddPlayer(dup), ErrInvalidConfiguration)

	outOfRange := &models.Player{ID: uuid.New(), Place: 7}
	assert.ErrorIs(t, s2.AddPlayer(outOfRange), ErrInvalidConfiguration)

	place, err := s2.NextFreePlace()
	require.NoError(t, err)
	assert.Equal(t, 1, place)
}

func TestBeginRoundDealsEveryCardOnce(t *testing.T) {
	s, players, mb := setupTestSession(t)
	s.StartGame()
	require.NoError(t, s.SetRoundType(deck.RoundTrumpHearts))
	require.NoError(t, s.BeginRound())

	seen := make(map[int]bool)
	for _, p := range players {
		assert.Len(t, p.Hand, 9)
		for _, c := range p.Hand {
			assert.False(t, seen[c.ID], "card %d dealt twice", c.ID)
			seen[c.ID] = true
		}
		priv := mb.lastPlayerEvent(p.ID)
		require.NotNil(t, priv)
		assert.Equal(t, EventPrivateHand, priv.Type)
	}
	assert.Len(t, seen, 36)
	assert.True(t, s.Dealt())

	// Exactly the round's starting seat is on turn.
	for _, p := range players {
		assert.Equal(t, p.Place == 0, p.ShouldPlay)
	}

	// A second deal attempt of the same round is rejected.
	assert.ErrorIs(t, s.DealHands(), ErrInvalidConfiguration)
	// BeginRound is a no-op once hands are out.
	assert.NoError(t, s.BeginRound())
}

func TestCardCountConservedDuringRound(t *testing.T) {
	s, players, _ := setupTestSession(t)
	s.StartGame()
	require.NoError(t, s.BeginRound())

	// The lead may play anything held, so play the first dealt card.
	lead := players[0]
	s.HandlePlay(lead.ID, lead.Hand[0].ID)

	inHands := 0
	for _, p := range players {
		inHands += len(p.Hand)
	}
	assert.Equal(t, 36, inHands+len(s.Trick()))
	assert.Len(t, s.Trick(), 1)
}

func TestDealRequiresFullTable(t *testing.T) {
	host := &models.Player{ID: uuid.New()}
	s := NewGameSession("shortroom", host)
	s.StartGame()
	assert.ErrorIs(t, s.DealHands(), ErrInvalidConfiguration)
}

func TestValidatePlayRejections(t *testing.T) {
	s, players, _ := setupTestSession(t)

	// Not running, nothing dealt.
	assert.False(t, s.ValidatePlay(players[0].ID, sixHearts))

	s.StartGame()
	s.dealt = true
	giveHand(t, s, players[0], aceHearts)
	giveHand(t, s, players[1], kingHearts)
	require.NoError(t, s.SetPlayerTurn(0))

	// Out of turn.
	assert.False(t, s.ValidatePlay(players[1].ID, kingHearts))
	// Card not in hand.
	assert.False(t, s.ValidatePlay(players[0].ID, sixHearts))
	// Unknown player.
	assert.False(t, s.ValidatePlay(uuid.New(), aceHearts))
	// Leading any held card is legal.
	assert.True(t, s.ValidatePlay(players[0].ID, aceHearts))
}

func TestValidatePlayFollowSuit(t *testing.T) {
	s, players, _ := setupTestSession(t)
	s.StartGame()
	s.dealt = true
	giveHand(t, s, players[0], aceHearts)
	giveHand(t, s, players[1], kingHearts, jackSpades)
	require.NoError(t, s.SetPlayerTurn(0))

	s.HandlePlay(players[0].ID, aceHearts)

	// Holding the active suit forbids discarding off-suit.
	assert.False(t, s.ValidatePlay(players[1].ID, jackSpades))
	assert.True(t, s.ValidatePlay(players[1].ID, kingHearts))
}

func TestHandlePlayFullTrick(t *testing.T) {
	s, players, mb := setupTestSession(t)
	s.StartGame()
	s.dealt = true
	giveHand(t, s, players[0], aceHearts, sixHearts)
	giveHand(t, s, players[1], kingHearts, sevenHearts)
	giveHand(t, s, players[2], queenHearts, eightHearts)
	giveHand(t, s, players[3], 3, 4) // 9♥, 10♥
	require.NoError(t, s.SetPlayerTurn(0))

	s.HandlePlay(players[0].ID, aceHearts)
	assert.True(t, players[1].ShouldPlay)
	s.HandlePlay(players[1].ID, kingHearts)
	s.HandlePlay(players[2].ID, queenHearts)
	s.HandlePlay(players[3].ID, 3) // 9♥, zero points

	// A11 + K4 + Q3 + 9:0, taken by the ace's team.
	score := s.Score()
	assert.Equal(t, 18, score.TeamA)
	assert.Equal(t, 0, score.TeamB)
	assert.Empty(t, s.Trick())
	assert.Equal(t, 1, s.TrickCount)

	// Winner of the trick leads the next one.
	assert.True(t, players[0].ShouldPlay)
	assert.False(t, players[1].ShouldPlay)

	ev := mb.lastEventOfType(EventScoreUpdate)
	require.NotNil(t, ev)
	require.NotNil(t, ev.Score)
	assert.Equal(t, 18, ev.Score.TeamA)
}

func TestHandlePlayInvalidSendsPrivateError(t *testing.T) {
	s, players, mb := setupTestSession(t)
	s.StartGame()
	s.dealt = true
	giveHand(t, s, players[0], aceHearts)
	require.NoError(t, s.SetPlayerTurn(0))

	s.HandlePlay(players[1].ID, kingHearts)

	ev := mb.lastPlayerEvent(players[1].ID)
	require.NotNil(t, ev)
	assert.Equal(t, EventPrivateError, ev.Type)
	assert.Empty(t, s.Trick())
}

func TestTrumpDominatesTrick(t *testing.T) {
	s, players, _ := setupTestSession(t)
	s.StartGame()
	require.NoError(t, s.SetRoundType(deck.RoundTrumpClubs))
	s.dealt = true
	sixClubs := 2*9 + 0
	giveHand(t, s, players[0], aceHearts)
	giveHand(t, s, players[1], sixClubs)
	giveHand(t, s, players[2], kingHearts)
	giveHand(t, s, players[3], queenHearts)
	require.NoError(t, s.SetPlayerTurn(0))

	s.HandlePlay(players[0].ID, aceHearts)
	s.HandlePlay(players[1].ID, sixClubs)
	s.HandlePlay(players[2].ID, kingHearts)
	s.HandlePlay(players[3].ID, queenHearts)

	// The trump six takes the trick for team B despite the ace lead.
	score := s.Score()
	assert.Equal(t, 0, score.TeamA)
	assert.Equal(t, 18, score.TeamB)
	assert.True(t, players[1].ShouldPlay)
}

func TestRoundFinishRotatesStartingSeat(t *testing.T) {
	s, players, mb := setupTestSession(t)
	s.StartGame()
	s.dealt = true
	s.TrickCount = 8 // final trick of the round
	giveHand(t, s, players[0], aceHearts)
	giveHand(t, s, players[1], kingHearts)
	giveHand(t, s, players[2], queenHearts)
	giveHand(t, s, players[3], sixHearts)
	require.NoError(t, s.SetPlayerTurn(0))

	s.HandlePlay(players[0].ID, aceHearts)
	s.HandlePlay(players[1].ID, kingHearts)
	s.HandlePlay(players[2].ID, queenHearts)
	s.HandlePlay(players[3].ID, sixHearts)

	assert.Equal(t, 1, s.RoundStartPlace)
	assert.Equal(t, 0, s.TrickCount)
	assert.False(t, s.Dealt())
	// The rotated seat opens the next round, not the trick winner.
	assert.True(t, players[1].ShouldPlay)
	assert.False(t, players[0].ShouldPlay)

	ev := mb.lastEventOfType(EventRoundFinished)
	require.NotNil(t, ev)
	require.NotNil(t, ev.Place)
	assert.Equal(t, 1, *ev.Place)
}

func TestResolveTrickRequiresFullTrick(t *testing.T) {
	s, players, _ := setupTestSession(t)
	s.StartGame()
	s.dealt = true
	giveHand(t, s, players[0], aceHearts)
	require.NoError(t, s.SetPlayerTurn(0))
	s.HandlePlay(players[0].ID, aceHearts)

	_, err := s.ResolveTrick()
	assert.ErrorIs(t, err, ErrInvalidPlay)
}

func TestSetRoundTypeRescoresHeldCards(t *testing.T) {
	s, players, mb := setupTestSession(t)
	giveHand(t, s, players[0], jackSpades, aceHearts)

	require.NoError(t, s.SetRoundType(deck.RoundTrumpSpades))
	assert.Equal(t, 20, players[0].Hand[0].Score)
	assert.Equal(t, 11, players[0].Hand[1].Score)
	assert.Greater(t, players[0].Hand[0].Rank, 7)

	// Switching back restores base values on the same held cards.
	require.NoError(t, s.SetRoundType(deck.RoundUpDown))
	assert.Equal(t, 2, players[0].Hand[0].Score)
	assert.Equal(t, jackSpades, players[0].Hand[0].ID)

	ev := mb.lastEventOfType(EventRoundType)
	require.NotNil(t, ev)
	assert.Equal(t, "updown", ev.Payload["roundType"])
	assert.Equal(t, deck.RoundUpDown, s.RoundType())
}

func TestGameOverIsTerminal(t *testing.T) {
	s, players, mb := setupTestSession(t)
	s.StartGame()
	s.dealt = true
	s.score.TeamA = 995
	giveHand(t, s, players[0], aceHearts, sixHearts)
	giveHand(t, s, players[1], sevenHearts)
	giveHand(t, s, players[2], eightHearts)
	giveHand(t, s, players[3], 3) // 9♥
	require.NoError(t, s.SetPlayerTurn(0))

	s.HandlePlay(players[0].ID, aceHearts)
	s.HandlePlay(players[1].ID, sevenHearts)
	s.HandlePlay(players[2].ID, eightHearts)
	s.HandlePlay(players[3].ID, 3)

	assert.True(t, s.GameOver)
	assert.Equal(t, 1006, s.Score().TeamA)

	ev := mb.lastEventOfType(EventGameOver)
	require.NotNil(t, ev)
	assert.Equal(t, "teamA", ev.Payload["winner"])

	// No further plays are accepted.
	assert.False(t, s.ValidatePlay(players[0].ID, sixHearts))
}

func TestMidRoundLeaveForfeitsRound(t *testing.T) {
	s, players, mb := setupTestSession(t)
	s.StartGame()
	s.dealt = true
	giveHand(t, s, players[0], aceHearts)  // 11
	giveHand(t, s, players[1], kingHearts) // 4
	giveHand(t, s, players[2], queenHearts) // 3
	giveHand(t, s, players[3], 4) // 10♥, 10

	outcome, err := s.RemovePlayer(players[1].ID)
	require.NoError(t, err)
	require.NotNil(t, outcome)

	// The leaver sat on team B, so team A collects the unscored 28 points.
	assert.Equal(t, 1, outcome.LeftPlace)
	assert.True(t, outcome.AwardedToTeamA)
	assert.Equal(t, 28, outcome.AwardedPoints)
	assert.Equal(t, 1, outcome.NextPlace)

	score := s.Score()
	assert.Equal(t, 28, score.TeamA)
	assert.Equal(t, 0, score.TeamB)
	assert.False(t, s.Dealt())
	assert.Empty(t, players[0].Hand)

	ev := mb.lastEventOfType(EventRoundForfeited)
	require.NotNil(t, ev)
	assert.Equal(t, 28, ev.Payload["awarded"])
}

func TestRemovePlayerBeforeDealSkipsForfeit(t *testing.T) {
	s, players, _ := setupTestSession(t)
	s.StartGame()

	outcome, err := s.RemovePlayer(players[2].ID)
	require.NoError(t, err)
	assert.Nil(t, outcome)

	_, err = s.RemovePlayer(uuid.New())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSetSettingsValidation(t *testing.T) {
	s, _, mb := setupTestSession(t)

	err := s.SetSettings(models.GameSettings{WinAmount: 0})
	assert.ErrorIs(t, err, ErrInvalidConfiguration)
	assert.Equal(t, 1000, s.GetSettings().WinAmount)

	require.NoError(t, s.SetSettings(models.GameSettings{WinAmount: 2500, EnableWise: false}))
	assert.Equal(t, 2500, s.GetSettings().WinAmount)
	assert.False(t, s.GetSettings().EnableWise)

	ev := mb.lastEventOfType(EventRoomSettings)
	require.NotNil(t, ev)
}

func TestSnapshotHidesOtherHands(t *testing.T) {
	s, players, _ := setupTestSession(t)
	s.StartGame()
	require.NoError(t, s.BeginRound())

	snap := s.SnapshotFor(players[0].ID)
	assert.Equal(t, "testroom", snap.RoomKey)
	assert.True(t, snap.Running)
	require.Len(t, snap.Players, 4)
	for _, sp := range snap.Players {
		assert.Equal(t, 9, sp.HandSize)
		if sp.PlayerID == players[0].ID {
			assert.Len(t, sp.Hand, 9)
			assert.True(t, sp.Host)
		} else {
			assert.Nil(t, sp.Hand)
		}
	}
}

func TestSessionStore(t *testing.T) {
	store := NewSessionStore()
	host := &models.Player{ID: uuid.New()}
	s := NewGameSession("abc123", host)

	require.NoError(t, store.Add(s))
	assert.Equal(t, 1, store.Len())
	assert.ErrorIs(t, store.Add(s), ErrInvalidConfiguration)

	got, ok := store.Get("abc123")
	require.True(t, ok)
	assert.Same(t, s, got)

	_, ok = store.Get("missing")
	assert.False(t, ok)

	store.Delete("abc123")
	assert.Equal(t, 0, store.Len())
}
