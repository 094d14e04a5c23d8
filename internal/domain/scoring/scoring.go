// Package scoring converts a member's ranked weekly list into normalised
// per-position scores and defines how scores become group contributions.
package scoring

import (
	"github.com/okian/tunechart/internal/domain/model"
)

// Scoring window constants. The window is fixed and independent of the
// group chart size.
const (
	// Window is the number of ranked positions that earn a score.
	Window = 100

	topScore      = 2.00
	pivotPosition = 21 // last position of the steep segment; scores exactly 1.00
	tailSpan      = 80 // positions 21..101 decay from 1.00 to 0.00
)

// Scored is a ranked item together with its position and score.
type Scored struct {
	Item     model.RankedItem
	Position int
	Score    float64
}

// PositionScore returns the score earned at a 1-indexed position.
//
//	1        -> 2.00
//	2..21    -> 2.00 - 0.05*(p-1)
//	22..100  -> 1.00 * (1 - (p-21)/80)
//	>100     -> 0
func PositionScore(position int) float64 {
	switch {
	case position < 1 || position > Window:
		return 0
	case position <= pivotPosition:
		// integer hundredths keep 21 landing exactly on 1.00
		return float64(200-5*(position-1)) / 100
	default:
		return float64(tailSpan-(position-pivotPosition)) / tailSpan
	}
}

// ScoreList scores an already-ranked list. Items past the window score zero
// and are dropped, so the result never holds more than Window items.
func ScoreList(items []model.RankedItem) []Scored {
	n := len(items)
	if n > Window {
		n = Window
	}
	out := make([]Scored, 0, n)
	for i := 0; i < n; i++ {
		pos := i + 1
		out = append(out, Scored{Item: items[i], Position: pos, Score: PositionScore(pos)})
	}
	return out
}
