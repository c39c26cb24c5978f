package game

import (
	"errors"
	"fmt"

	"github.com/jestadalan-dotcom/Jes-Bingo/models"
)

// Preset names a win-pattern family over the 5x5 grid.
type Preset string

const (
	PresetAnyLine     Preset = "ANY_LINE"
	PresetBlackout    Preset = "BLACKOUT"
	PresetLetterX     Preset = "LETTER_X"
	PresetFourCorners Preset = "FOUR_CORNERS"
	PresetCustom      Preset = "CUSTOM"
)

var errEmptyCustomPattern = errors.New("custom win pattern must not be empty")

// Evaluate reports whether at least one pattern has every listed index in a
// satisfied state (marked or free). It is recomputed from scratch on every
// relevant state change; hasBingo is never cached across them.
func Evaluate(cells []*models.BingoCell, patterns []models.WinPattern) bool {
	for _, pattern := range patterns {
		if len(pattern) == 0 {
			continue
		}
		won := true
		for _, idx := range pattern {
			if idx < 0 || idx >= len(cells) || !cells[idx].Satisfied() {
				won = false
				break
			}
		}
		if won {
			return true
		}
	}
	return false
}

// AnyLine yields the 12 line patterns: 5 rows, 5 columns, 2 diagonals.
func AnyLine() []models.WinPattern {
	patterns := make([]models.WinPattern, 0, 12)
	for row := 0; row < 5; row++ {
		line := make(models.WinPattern, 0, 5)
		for col := 0; col < 5; col++ {
			line = append(line, row*5+col)
		}
		patterns = append(patterns, line)
	}
	for col := 0; col < 5; col++ {
		line := make(models.WinPattern, 0, 5)
		for row := 0; row < 5; row++ {
			line = append(line, row*5+col)
		}
		patterns = append(patterns, line)
	}
	diag1 := make(models.WinPattern, 0, 5)
	diag2 := make(models.WinPattern, 0, 5)
	for i := 0; i < 5; i++ {
		diag1 = append(diag1, i*5+i)
		diag2 = append(diag2, i*5+(4-i))
	}
	return append(patterns, diag1, diag2)
}

// Blackout is the single all-25-cells pattern.
func Blackout() []models.WinPattern {
	all := make(models.WinPattern, models.CardCells)
	for i := range all {
		all[i] = i
	}
	return []models.WinPattern{all}
}

// LetterX covers both diagonals at once.
func LetterX() []models.WinPattern {
	return []models.WinPattern{{0, 4, 6, 8, 12, 16, 18, 20, 24}}
}

// FourCorners covers the four corner cells.
func FourCorners() []models.WinPattern {
	return []models.WinPattern{{0, 4, 20, 24}}
}

// Custom wraps a host-chosen index subset as a single pattern. An empty
// subset is rejected.
func Custom(indices []int) ([]models.WinPattern, error) {
	if len(indices) == 0 {
		return nil, errEmptyCustomPattern
	}
	pattern := make(models.WinPattern, 0, len(indices))
	for _, idx := range indices {
		if idx < 0 || idx >= models.CardCells {
			return nil, fmt.Errorf("custom win pattern index %d out of range 0..%d", idx, models.CardCells-1)
		}
		pattern = append(pattern, idx)
	}
	return []models.WinPattern{pattern}, nil
}

// PatternsForPreset resolves a preset name to its index-sets. The custom
// indices are only consulted for PresetCustom.
func PatternsForPreset(preset Preset, custom []int) ([]models.WinPattern, error) {
	switch preset {
	case PresetAnyLine, "":
		return AnyLine(), nil
	case PresetBlackout:
		return Blackout(), nil
	case PresetLetterX:
		return LetterX(), nil
	case PresetFourCorners:
		return FourCorners(), nil
	case PresetCustom:
		return Custom(custom)
	default:
		return nil, fmt.Errorf("unknown win pattern preset %q", preset)
	}
}
