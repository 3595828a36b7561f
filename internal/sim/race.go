package sim

import (
	"math"
	"sort"

	"github.com/MJE43/arenacore/internal/apperr"
	"github.com/MJE43/arenacore/internal/engine"
)

// MaxRaceEntrants bounds a single race.
const MaxRaceEntrants = 64

// RacePoints is awarded by finishing position; positions past the table earn 0.
var RacePoints = []int{25, 18, 15, 12, 10, 8, 6, 4, 2, 1}

// RaceEntrant carries raw [0,100] vehicle stats and a level in [1,1000].
type RaceEntrant struct {
	ID           string  `json:"id"`
	TopSpeed     float64 `json:"top_speed"`
	Acceleration float64 `json:"acceleration"`
	Handling     float64 `json:"handling"`
	Durability   float64 `json:"durability"`
	Level        int     `json:"level"`
}

// Track describes the course; both values are on a [0,100] scale.
type Track struct {
	Length     float64 `json:"length"`
	Difficulty float64 `json:"difficulty"`
}

// RaceEntry is one entrant's placing.
type RaceEntry struct {
	EntryID     string  `json:"entry_id"`
	Position    int     `json:"position"`
	FinishTime  float64 `json:"finish_time"`
	Points      int     `json:"points"`
	Performance float64 `json:"performance"`
}

// RaceResult lists placings from first to last.
type RaceResult struct {
	Seed    engine.Seed `json:"seed"`
	Entries []RaceEntry `json:"entries"`
}

// PointsFor returns the points for a 1-based position.
func PointsFor(position int) int {
	if position < 1 || position > len(RacePoints) {
		return 0
	}
	return RacePoints[position-1]
}

// SimulateRace ranks entrants by performance. One draw is consumed per entrant
// in input order; equal performances keep input order.
func SimulateRace(entrants []RaceEntrant, track Track, seed engine.Seed) (RaceResult, error) {
	if len(entrants) == 0 {
		return RaceResult{}, apperr.Validation("entrants", "race needs at least one entrant")
	}
	if len(entrants) > MaxRaceEntrants {
		return RaceResult{}, apperr.Validation("entrants", "too many entrants")
	}
	if !finite(track.Length, track.Difficulty) {
		return RaceResult{}, apperr.Validation("track", "track parameters must be finite")
	}
	seen := make(map[string]struct{}, len(entrants))
	for _, e := range entrants {
		if e.ID == "" {
			return RaceResult{}, apperr.Validation("entrants", "entrant id is required")
		}
		if _, dup := seen[e.ID]; dup {
			return RaceResult{}, apperr.Validation("entrants", "duplicate entrant "+e.ID)
		}
		seen[e.ID] = struct{}{}
		if !finite(e.TopSpeed, e.Acceleration, e.Handling, e.Durability) {
			return RaceResult{}, apperr.Validation("entrants", "entrant stats must be finite")
		}
	}

	d := clamp(track.Difficulty, 0, 100) / 100
	length := clamp(track.Length, 1, 100) / 100
	g := engine.NewGenerator(seed)

	type scored struct {
		id   string
		perf float64
	}
	ranked := make([]scored, len(entrants))
	for idx, e := range entrants {
		ranked[idx] = scored{id: e.ID, perf: performance(e, d, length, g.Next())}
	}
	sort.SliceStable(ranked, func(a, b int) bool {
		return ranked[a].perf > ranked[b].perf
	})

	out := RaceResult{Seed: seed, Entries: make([]RaceEntry, len(ranked))}
	for k, r := range ranked {
		out.Entries[k] = RaceEntry{
			EntryID:     r.id,
			Position:    k + 1,
			FinishTime:  1000 / math.Max(r.perf, 1e-9),
			Points:      PointsFor(k + 1),
			Performance: r.perf,
		}
	}
	return out, nil
}

func performance(e RaceEntrant, difficulty, length, draw float64) float64 {
	ts := normalize(e.TopSpeed)
	ac := normalize(e.Acceleration)
	ha := normalize(e.Handling)
	du := normalize(e.Durability)
	level := clamp(float64(e.Level), 1, 1000)

	handlingWeight := 0.15 + float64(difficulty*0.2)
	p := float64(ts*0.35) + float64(ac*0.35) + float64(ha*handlingWeight) + float64(du*0.15)
	p = float64(p * (1 + float64((level-1)*0.01)))
	p = float64(p * length)

	noise := float64(float64((draw-0.5)*0.2) * (1 - float64(du*0.5)))
	return float64(p * (1 + noise))
}
