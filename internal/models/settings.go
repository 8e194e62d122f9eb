package models

// GameSettings captures the host-configurable parameters of a room.
type GameSettings struct {
	// WinAmount is the team score at which the game ends. Must be positive.
	WinAmount int `json:"winAmount"`

	// EnableWise toggles Wise (meld) announcements. The flag is stored and
	// broadcast with the settings; announcement handling lives client-side.
	EnableWise bool `json:"enableWise"`
}

// Score holds the cumulative points of the two teams. Team A owns places
// {0,2}, team B places {1,3}. Totals only ever grow.
type Score struct {
	TeamA int `json:"teamA"`
	TeamB int `json:"teamB"`
}
