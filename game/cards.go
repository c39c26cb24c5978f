package game

import (
	"fmt"
	"math/rand"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/jestadalan-dotcom/Jes-Bingo/models"
)

const (
	// CardsPerPlayer is the fixed card count generated for every owner slot.
	CardsPerPlayer = 4

	// MinThemedItems is the smallest pool a themed round can be generated
	// from: 24 values fill a card around the free space.
	MinThemedItems = 24

	columns     = 5
	rowsPerCard = 5
	// rangePerColumn partitions 1-75 into B/I/N/G/O ranges of 15.
	rangePerColumn = 15
)

// cardColors tags each of a player's cards for presentation. No game-state
// semantics.
var cardColors = []string{"emerald", "sky", "violet", "amber"}

// GenerationError reports a themed pool too small to fill a card. The round
// start aborts; callers fall back to standard mode or re-prompt for a theme.
type GenerationError struct {
	Need int
	Got  int
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("themed item pool too small: need at least %d items, got %d", e.Need, e.Got)
}

// StandardPool returns the ordered callable pool for a standard round,
// "1" through "75".
func StandardPool() []string {
	pool := make([]string, 0, 75)
	for i := 1; i <= 75; i++ {
		pool = append(pool, strconv.Itoa(i))
	}
	return pool
}

// GenerateCards produces exactly four cards for one owner slot. Standard
// cards draw each column independently from its 15-number range, so no value
// repeats anywhere on a card. Themed cards shuffle the full pool per card and
// take the first 24 values; duplicate cards across players are improbable but
// not impossible, which is accepted.
func GenerateCards(pool []string, mode models.Mode, playerName string, ownerIndex int) ([]*models.BingoCard, error) {
	if mode == models.ModeThemed && len(pool) < MinThemedItems {
		return nil, &GenerationError{Need: MinThemedItems, Got: len(pool)}
	}

	rng := rand.New(rand.NewSource(time.Now().UnixNano()))

	cards := make([]*models.BingoCard, 0, CardsPerPlayer)
	for i := 0; i < CardsPerPlayer; i++ {
		var cells []*models.BingoCell
		if mode == models.ModeThemed {
			cells = themedCells(rng, pool)
		} else {
			cells = standardCells(rng)
		}

		card := &models.BingoCard{
			ID:         uuid.NewString(),
			OwnerIndex: ownerIndex,
			CardIndex:  i,
			PlayerName: playerName,
			Cells:      cells,
			Color:      cardColors[i%len(cardColors)],
		}
		for idx, cell := range cells {
			cell.ID = fmt.Sprintf("%s:%d", card.ID, idx)
		}
		cards = append(cards, card)
	}
	return cards, nil
}

// standardCells fills a row-major 5x5 grid, column by column. Drawing five of
// the fifteen values per column via a shuffle guarantees no duplicates inside
// a column, and the disjoint ranges rule out duplicates across columns.
func standardCells(rng *rand.Rand) []*models.BingoCell {
	cells := make([]*models.BingoCell, models.CardCells)
	for col := 0; col < columns; col++ {
		low := col*rangePerColumn + 1
		vals := make([]int, rangePerColumn)
		for i := range vals {
			vals[i] = low + i
		}
		shuffle(rng, vals)

		for row := 0; row < rowsPerCard; row++ {
			idx := row*columns + col
			cells[idx] = &models.BingoCell{Value: strconv.Itoa(vals[row])}
		}
	}
	free := cells[models.FreeSpaceIndex]
	free.Value = ""
	free.IsFreeSpace = true
	return cells
}

// themedCells shuffles the whole pool and fills the grid row-major, skipping
// the free space.
func themedCells(rng *rand.Rand, pool []string) []*models.BingoCell {
	shuffled := append([]string(nil), pool...)
	rng.Shuffle(len(shuffled), func(i, j int) {
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	})

	cells := make([]*models.BingoCell, models.CardCells)
	next := 0
	for idx := 0; idx < models.CardCells; idx++ {
		if idx == models.FreeSpaceIndex {
			cells[idx] = &models.BingoCell{IsFreeSpace: true}
			continue
		}
		cells[idx] = &models.BingoCell{Value: shuffled[next]}
		next++
	}
	return cells
}

// shuffle is a uniform Fisher-Yates over an int slice.
func shuffle(rng *rand.Rand, vals []int) {
	for i := len(vals) - 1; i >= 1; i-- {
		j := rng.Intn(i + 1)
		vals[i], vals[j] = vals[j], vals[i]
	}
}
