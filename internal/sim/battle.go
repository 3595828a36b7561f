package sim

import (
	"math"

	"github.com/MJE43/arenacore/internal/apperr"
	"github.com/MJE43/arenacore/internal/engine"
)

// BattleStats are raw [0,100] stats; values outside the range are clamped.
type BattleStats struct {
	Intelligence float64 `json:"intelligence"`
	Speed        float64 `json:"speed"`
	Risk         float64 `json:"risk"`
}

// BattleInput is everything a battle outcome depends on.
type BattleInput struct {
	Stats   BattleStats `json:"stats"`
	Weights Weights     `json:"weights"`
	League  League      `json:"league"`
	Seed    engine.Seed `json:"seed"`
}

// BattleResult is the outcome of one battle.
type BattleResult struct {
	Score    int         `json:"score"`
	Seed     engine.Seed `json:"seed"`
	Base     float64     `json:"base"`
	Variance float64     `json:"variance"`
	Draw     float64     `json:"draw"`
}

// SimulateBattle scores one battle. It consumes exactly one draw of the stream.
func SimulateBattle(in BattleInput) (BattleResult, error) {
	if !finite(in.Stats.Intelligence, in.Stats.Speed, in.Stats.Risk) {
		return BattleResult{}, apperr.Validation("stats", "battle stats must be finite")
	}
	if err := in.Weights.Validate(); err != nil {
		return BattleResult{}, err
	}
	mult, ok := in.League.Multiplier()
	if !ok {
		return BattleResult{}, apperr.Validation("league", "unknown league "+string(in.League))
	}

	g := engine.NewGenerator(in.Seed)
	return battleWithDraw(in, mult, g.Next()), nil
}

// battleWithDraw evaluates the battle for a pre-computed draw. Every product
// is rounded explicitly so the result cannot depend on fused multiply-add.
func battleWithDraw(in BattleInput, mult, draw float64) BattleResult {
	i := normalize(in.Stats.Intelligence)
	s := normalize(in.Stats.Speed)
	r := normalize(in.Stats.Risk)

	weighted := float64(in.Weights.Intelligence*i) + float64(in.Weights.Speed*s) + float64(in.Weights.Risk*r)
	base := float64(float64(100*mult) * weighted)
	variance := float64(float64(30*mult) * (0.2 + r))
	noise := float64(float64((draw-0.5)*2) * variance)

	return BattleResult{
		Score:    int(math.Max(0, roundHalfUp(base+noise))),
		Seed:     in.Seed,
		Base:     base,
		Variance: variance,
		Draw:     draw,
	}
}
