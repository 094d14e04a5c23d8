package scoring

import (
	"fmt"

	"github.com/okian/tunechart/internal/domain/model"
)

// Mode turns one member's scored item into its contribution to the group
// chart. The set of modes is closed; use ModeFor to obtain one.
type Mode interface {
	Name() model.ScoringMode
	Contribution(s Scored) float64
	mode()
}

type playsOnly struct{}

func (playsOnly) Name() model.ScoringMode       { return model.ModePlaysOnly }
func (playsOnly) Contribution(s Scored) float64 { return float64(s.Item.Playcount) }
func (playsOnly) mode()                         {}

type versus struct{}

func (versus) Name() model.ScoringMode       { return model.ModeVS }
func (versus) Contribution(s Scored) float64 { return s.Score }
func (versus) mode()                         {}

type versusWeighted struct{}

func (versusWeighted) Name() model.ScoringMode { return model.ModeVSWeighted }
func (versusWeighted) Contribution(s Scored) float64 {
	return s.Score * float64(s.Item.Playcount)
}
func (versusWeighted) mode() {}

// ModeFor returns the strategy for a configured scoring mode. An empty mode
// falls back to vs.
func ModeFor(m model.ScoringMode) (Mode, error) {
	switch m {
	case model.ModePlaysOnly:
		return playsOnly{}, nil
	case model.ModeVS, "":
		return versus{}, nil
	case model.ModeVSWeighted:
		return versusWeighted{}, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownMode, m)
}
