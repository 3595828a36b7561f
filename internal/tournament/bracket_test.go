package tournament

import (
	"reflect"
	"testing"

	"github.com/MJE43/arenacore/internal/sim"
)

func TestRoundRobinReferenceVector(t *testing.T) {
	stats := []sim.BattleStats{
		{Intelligence: 60, Speed: 50, Risk: 30},
		{Intelligence: 80, Speed: 70, Risk: 20},
		{Intelligence: 40, Speed: 90, Risk: 60},
		{Intelligence: 55, Speed: 55, Risk: 55},
	}
	standings, matches, err := RoundRobin(stats, "tourney-seed-1", sim.DefaultArenas()["prediction"], sim.LeaguePro)
	if err != nil {
		t.Fatalf("RoundRobin() error = %v", err)
	}

	wantMatches := []Match{
		{A: 0, B: 1, ScoreA: 45, ScoreB: 81, Winner: 1},
		{A: 0, B: 2, ScoreA: 61, ScoreB: 57, Winner: 0},
		{A: 0, B: 3, ScoreA: 67, ScoreB: 84, Winner: 3},
		{A: 1, B: 2, ScoreA: 79, ScoreB: 75, Winner: 1},
		{A: 1, B: 3, ScoreA: 71, ScoreB: 49, Winner: 1},
		{A: 2, B: 3, ScoreA: 74, ScoreB: 52, Winner: 2},
	}
	if !reflect.DeepEqual(matches, wantMatches) {
		t.Errorf("matches = %+v\nwant %+v", matches, wantMatches)
	}

	// three entries tie on one win and keep their entry order
	wantStandings := []Standing{
		{Index: 1, Wins: 3, Rank: 1},
		{Index: 0, Wins: 1, Rank: 2},
		{Index: 2, Wins: 1, Rank: 3},
		{Index: 3, Wins: 1, Rank: 4},
	}
	if !reflect.DeepEqual(standings, wantStandings) {
		t.Errorf("standings = %+v, want %+v", standings, wantStandings)
	}
}

func TestRoundRobinTieGoesToFirstIndex(t *testing.T) {
	stats := make([]sim.BattleStats, 3)
	standings, matches, err := RoundRobin(stats, "00000000", sim.DefaultArenas()["prediction"], sim.LeagueRookie)
	if err != nil {
		t.Fatal(err)
	}
	if matches[0].ScoreA != 0 || matches[0].ScoreB != 0 || matches[0].Winner != 0 {
		t.Errorf("0-0 match = %+v, want winner 0", matches[0])
	}
	if matches[1].ScoreA != 0 || matches[1].ScoreB != 0 || matches[1].Winner != 0 {
		t.Errorf("0-0 match = %+v, want winner 0", matches[1])
	}
	if standings[0].Index != 0 || standings[0].Wins != 2 {
		t.Errorf("leader = %+v", standings[0])
	}
}

func TestRoundRobinDeterministic(t *testing.T) {
	stats := []sim.BattleStats{
		{Intelligence: 70, Speed: 55, Risk: 40},
		{Intelligence: 20, Speed: 90, Risk: 80},
		{Intelligence: 50, Speed: 50, Risk: 50},
		{Intelligence: 90, Speed: 10, Risk: 10},
		{Intelligence: 30, Speed: 30, Risk: 95},
	}
	w := sim.DefaultArenas()["volatility"]
	a, _, err := RoundRobin(stats, "a1b2c3d4e5f6a7b8", w, sim.LeagueElite)
	if err != nil {
		t.Fatal(err)
	}
	b, _, _ := RoundRobin(stats, "a1b2c3d4e5f6a7b8", w, sim.LeagueElite)
	if !reflect.DeepEqual(a, b) {
		t.Fatalf("same seed produced different standings: %v vs %v", a, b)
	}

	total := 0
	for _, st := range a {
		total += st.Wins
	}
	if want := len(stats) * (len(stats) - 1) / 2; total != want {
		t.Errorf("total wins = %d, want %d", total, want)
	}
}

func TestPrizeShares(t *testing.T) {
	tests := []struct {
		pool  int64
		split []int
		want  []int64
	}{
		{400, []int{50, 30, 15, 5}, []int64{200, 120, 60, 20}},
		{333, []int{50, 30, 15, 5}, []int64{166, 99, 49, 16}},
		{0, []int{100}, []int64{0}},
		{7, []int{60, 40}, []int64{4, 2}},
	}
	for _, tt := range tests {
		if got := PrizeShares(tt.pool, tt.split); !reflect.DeepEqual(got, tt.want) {
			t.Errorf("PrizeShares(%d, %v) = %v, want %v", tt.pool, tt.split, got, tt.want)
		}
	}
}

func TestValidateSplit(t *testing.T) {
	valid := [][]int{{100}, {50, 30, 15, 5}, {60, 30}}
	for _, s := range valid {
		if err := ValidateSplit(s); err != nil {
			t.Errorf("ValidateSplit(%v) error = %v", s, err)
		}
	}
	invalid := [][]int{nil, {60, 50}, {50, 0}, {-10, 20}}
	for _, s := range invalid {
		if err := ValidateSplit(s); err == nil {
			t.Errorf("ValidateSplit(%v) should fail", s)
		}
	}
}
