package game

import (
	"github.com/google/uuid"

	"github.com/sirfilior/jass/internal/models"
)

// SnapshotPlayer is one seat from the perspective of the requesting player.
// Other players' hands are reported by size only; card contents stay hidden.
type SnapshotPlayer struct {
	PlayerID   uuid.UUID      `json:"playerId"`
	Place      int            `json:"place"`
	Host       bool           `json:"host"`
	HandSize   int            `json:"handSize"`
	ShouldPlay bool           `json:"shouldPlay"`
	Connected  bool           `json:"connected"`
	Hand       []*models.Card `json:"hand,omitempty"` // only for the requesting player
}

// Snapshot is the reconnect/spectator view of a session, sent privately.
type Snapshot struct {
	RoomKey         string              `json:"roomKey"`
	Settings        models.GameSettings `json:"settings"`
	Running         bool                `json:"running"`
	GameOver        bool                `json:"gameOver"`
	RoundType       string              `json:"roundType"`
	RoundStartPlace int                 `json:"roundStartPlace"`
	TrickCount      int                 `json:"trickCount"`
	Score           models.Score        `json:"score"`
	Trick           []EventTrickCard    `json:"trick"`
	Players         []SnapshotPlayer    `json:"players"`
}

// SnapshotFor generates the session snapshot for one requesting player.
func (s *GameSession) SnapshotFor(forPlayer uuid.UUID) Snapshot {
	s.Mu.Lock()
	defer s.Mu.Unlock()

	snap := Snapshot{
		RoomKey:         s.RoomKey,
		Settings:        s.Settings,
		Running:         s.Running,
		GameOver:        s.GameOver,
		RoundType:       s.deck.Type.String(),
		RoundStartPlace: s.RoundStartPlace,
		TrickCount:      s.TrickCount,
		Score:           s.score,
		Trick:           s.trickView(),
	}
	for _, p := range s.playersByPlace() {
		sp := SnapshotPlayer{
			PlayerID:   p.ID,
			Place:      p.Place,
			Host:       p.ID == s.HostID,
			HandSize:   len(p.Hand),
			ShouldPlay: p.ShouldPlay,
			Connected:  p.Connected,
		}
		if p.ID == forPlayer {
			sp.Hand = p.Hand
		}
		snap.Players = append(snap.Players, sp)
	}
	return snap
}
