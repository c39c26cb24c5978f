package models

// Mode selects how card values are drawn for a round.
type Mode string

const (
	ModeStandard Mode = "STANDARD" // classic 1-75 with B/I/N/G/O column ranges
	ModeThemed   Mode = "THEMED"   // free-form short strings from a theme pool
)

// GameState is the canonical state of one round. Exactly one instance lives
// per round; only the host session mutates it, and it is replaced wholesale
// when a new round starts.
type GameState struct {
	Mode  Mode   `json:"mode"`
	Theme string `json:"theme,omitempty"`
	Prize string `json:"prize,omitempty"`

	// AllItems is the ordered pool of callable values for the round.
	AllItems []string `json:"allItems"`
	// CalledItems is the duplicate-free call history, most recent first.
	CalledItems []string `json:"calledItems"`
	// CurrentCall is the last called value, or "" before the first call.
	CurrentCall string `json:"currentCall"`

	// Cards holds every card across all players for the round.
	Cards []*BingoCard `json:"cards"`

	// WinnerIDs only ever grows, and only contains card ids the host
	// independently verified.
	WinnerIDs []string `json:"winnerIds"`

	WinPatterns []WinPattern `json:"winPatterns"`
}

// HasWinner reports whether a card id has already been certified.
func (gs *GameState) HasWinner(cardID string) bool {
	for _, id := range gs.WinnerIDs {
		if id == cardID {
			return true
		}
	}
	return false
}

// CardByID finds a card in the round, or nil.
func (gs *GameState) CardByID(cardID string) *BingoCard {
	for _, c := range gs.Cards {
		if c.ID == cardID {
			return c
		}
	}
	return nil
}

// Called reports whether an item is part of the call history.
func (gs *GameState) Called(item string) bool {
	for _, it := range gs.CalledItems {
		if it == item {
			return true
		}
	}
	return false
}
