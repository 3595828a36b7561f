package tournament

import (
	"sort"

	"github.com/MJE43/arenacore/internal/engine"
	"github.com/MJE43/arenacore/internal/sim"
)

// Match is one pairing of the round-robin.
type Match struct {
	A      int `json:"a"`
	B      int `json:"b"`
	ScoreA int `json:"score_a"`
	ScoreB int `json:"score_b"`
	Winner int `json:"winner"`
}

// Standing is an entry's bracket result.
type Standing struct {
	Index int `json:"index"`
	Wins  int `json:"wins"`
	Rank  int `json:"rank"`
}

// RoundRobin plays every unordered pair (i, j), i < j. Side i battles with
// the sub-seed for "seed+i-j" and side j with "seed+j-i"; i wins ties.
// Standings are ordered by wins descending, ties keeping entry order.
func RoundRobin(stats []sim.BattleStats, seedHex string, weights sim.Weights, league sim.League) ([]Standing, []Match, error) {
	wins := make([]int, len(stats))
	matches := make([]Match, 0, len(stats)*(len(stats)-1)/2)

	for i := 0; i < len(stats); i++ {
		for j := i + 1; j < len(stats); j++ {
			ri, err := sim.SimulateBattle(sim.BattleInput{
				Stats: stats[i], Weights: weights, League: league, Seed: engine.SubSeed(seedHex, i, j),
			})
			if err != nil {
				return nil, nil, err
			}
			rj, err := sim.SimulateBattle(sim.BattleInput{
				Stats: stats[j], Weights: weights, League: league, Seed: engine.SubSeed(seedHex, j, i),
			})
			if err != nil {
				return nil, nil, err
			}

			m := Match{A: i, B: j, ScoreA: ri.Score, ScoreB: rj.Score, Winner: j}
			if ri.Score >= rj.Score {
				m.Winner = i
			}
			wins[m.Winner]++
			matches = append(matches, m)
		}
	}

	standings := make([]Standing, len(stats))
	for i := range stats {
		standings[i] = Standing{Index: i, Wins: wins[i]}
	}
	sort.SliceStable(standings, func(a, b int) bool {
		return standings[a].Wins > standings[b].Wins
	})
	for rank := range standings {
		standings[rank].Rank = rank + 1
	}
	return standings, matches, nil
}
