package models

const (
	// CardCells is the fixed cell count of a 5x5 card, row-major.
	CardCells = 25
	// FreeSpaceIndex is the center cell (row 2, col 2). Exactly one cell per
	// card is a free space, always at this index.
	FreeSpaceIndex = 12
)

// BingoCell is a single stateful cell on a card. Value and IsFreeSpace are
// fixed at generation time; only Marked mutates afterwards.
type BingoCell struct {
	ID          string `json:"id"`
	Value       string `json:"value"`
	Marked      bool   `json:"marked"`
	IsFreeSpace bool   `json:"isFreeSpace"`
}

// Satisfied reports whether the cell counts toward a win pattern.
func (c *BingoCell) Satisfied() bool {
	return c.Marked || c.IsFreeSpace
}

// BingoCard is one of a player's four cards in a round. The cell layout never
// changes after creation; the whole card is discarded at round reset.
type BingoCard struct {
	ID string `json:"id"`
	// OwnerIndex is the stable integer identity of the owning player within
	// the round (smallest unused non-negative integer at allocation time).
	OwnerIndex int `json:"ownerIndex"`
	// CardIndex is the card's position in the owner's set, 0..3.
	CardIndex  int          `json:"cardIndex"`
	PlayerName string       `json:"playerName"`
	Cells      []*BingoCell `json:"cells"`
	// HasBingo is derived and recomputed on every relevant change. It is
	// never authoritative on the client side.
	HasBingo bool   `json:"hasBingo"`
	Color    string `json:"color,omitempty"`
}

// Cell returns the cell at a grid index, or nil when out of range.
func (c *BingoCard) Cell(index int) *BingoCell {
	if index < 0 || index >= len(c.Cells) {
		return nil
	}
	return c.Cells[index]
}

// MarkValue marks every non-free cell holding the given value. Returns true
// if any cell changed.
func (c *BingoCard) MarkValue(value string) bool {
	changed := false
	for _, cell := range c.Cells {
		if !cell.IsFreeSpace && cell.Value == value && !cell.Marked {
			cell.Marked = true
			changed = true
		}
	}
	return changed
}

// WinPattern is a non-empty set of cell indices (0..24) that must all be
// satisfied (marked or free) for the pattern to count as a win.
type WinPattern []int
