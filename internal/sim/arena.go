package sim

import (
	"math"
	"sort"

	"github.com/MJE43/arenacore/internal/apperr"
)

// League is a difficulty tier; higher tiers scale both base score and variance.
type League string

const (
	LeagueRookie League = "rookie"
	LeaguePro    League = "pro"
	LeagueElite  League = "elite"
)

var leagueMultipliers = map[League]float64{
	LeagueRookie: 1.0,
	LeaguePro:    1.1,
	LeagueElite:  1.2,
}

// Multiplier returns the league multiplier.
func (l League) Multiplier() (float64, bool) {
	m, ok := leagueMultipliers[l]
	return m, ok
}

// Leagues lists the known leagues from lowest to highest.
func Leagues() []League {
	return []League{LeagueRookie, LeaguePro, LeagueElite}
}

// ParseLeague validates a league name.
func ParseLeague(s string) (League, error) {
	l := League(s)
	if _, ok := leagueMultipliers[l]; !ok {
		return "", apperr.Validation("league", "unknown league "+s)
	}
	return l, nil
}

// Weights is an arena's emphasis on each battle stat.
type Weights struct {
	Intelligence float64 `json:"intelligence" yaml:"intelligence"`
	Speed        float64 `json:"speed" yaml:"speed"`
	Risk         float64 `json:"risk" yaml:"risk"`
}

// Validate requires non-negative weights summing to 1 within 0.01.
func (w Weights) Validate() error {
	for _, v := range []float64{w.Intelligence, w.Speed, w.Risk} {
		if v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
			return apperr.Validation("weights", "arena weights must be finite and non-negative")
		}
	}
	if math.Abs(w.Intelligence+w.Speed+w.Risk-1) > 0.01 {
		return apperr.Validation("weights", "arena weights must sum to 1")
	}
	return nil
}

// Arenas maps arena keys to their weights.
type Arenas map[string]Weights

// DefaultArenas returns the built-in arena table.
func DefaultArenas() Arenas {
	return Arenas{
		"prediction": {Intelligence: 0.5, Speed: 0.3, Risk: 0.2},
		"momentum":   {Intelligence: 0.2, Speed: 0.6, Risk: 0.2},
		"volatility": {Intelligence: 0.2, Speed: 0.2, Risk: 0.6},
	}
}

// Lookup returns the weights for arena.
func (a Arenas) Lookup(arena string) (Weights, error) {
	w, ok := a[arena]
	if !ok {
		return Weights{}, apperr.Validation("arena", "unknown arena "+arena)
	}
	return w, nil
}

// Names returns the arena keys in sorted order.
func (a Arenas) Names() []string {
	names := make([]string, 0, len(a))
	for name := range a {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Validate checks every arena's weights.
func (a Arenas) Validate() error {
	for name, w := range a {
		if err := w.Validate(); err != nil {
			return apperr.WithMetadata(apperr.CodeValidation, "arena "+name+": "+err.Error(), map[string]string{"arena": name})
		}
	}
	return nil
}

func clamp(v, lo, hi float64) float64 {
	return math.Min(hi, math.Max(lo, v))
}

// normalize maps a raw [0,100] stat onto [0,1].
func normalize(v float64) float64 {
	return clamp(v, 0, 100) / 100
}

// roundHalfUp matches the reference runtime's rounding.
func roundHalfUp(x float64) float64 {
	return math.Floor(x + 0.5)
}

func finite(vs ...float64) bool {
	for _, v := range vs {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}
