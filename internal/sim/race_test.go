package sim

import (
	"encoding/json"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/MJE43/arenacore/internal/apperr"
	"github.com/MJE43/arenacore/internal/engine"
)

type raceVector struct {
	Description string        `json:"description"`
	Seed        uint32        `json:"seed"`
	SeedText    string        `json:"seed_text"`
	Track       Track         `json:"track"`
	Entrants    []RaceEntrant `json:"entrants"`
	Expected    []RaceEntry   `json:"expected"`
}

func TestRaceReferenceVectors(t *testing.T) {
	data, err := os.ReadFile(filepath.Join("testdata", "race_reference_vectors.json"))
	if err != nil {
		t.Fatalf("Failed to read vectors: %v", err)
	}
	var vectors []raceVector
	if err := json.Unmarshal(data, &vectors); err != nil {
		t.Fatalf("Failed to parse vectors: %v", err)
	}

	for _, v := range vectors {
		t.Run(v.Description, func(t *testing.T) {
			seed := v.Seed
			if v.SeedText != "" {
				seed = engine.SeedFromString(v.SeedText)
			}
			res, err := SimulateRace(v.Entrants, v.Track, seed)
			if err != nil {
				t.Fatalf("SimulateRace: %v", err)
			}
			if len(res.Entries) != len(v.Expected) {
				t.Fatalf("got %d entries, want %d", len(res.Entries), len(v.Expected))
			}
			for i, want := range v.Expected {
				got := res.Entries[i]
				if got.EntryID != want.EntryID || got.Position != want.Position || got.Points != want.Points {
					t.Errorf("entry %d = %+v, want %+v", i, got, want)
				}
				if math.Abs(got.Performance-want.Performance) > 1e-12 {
					t.Errorf("entry %d performance = %.17g, want %.17g", i, got.Performance, want.Performance)
				}
				if math.Abs(got.FinishTime-want.FinishTime) > 1e-9 {
					t.Errorf("entry %d finish = %.17g, want %.17g", i, got.FinishTime, want.FinishTime)
				}
			}
		})
	}
}

func TestRaceFastestEntrantWins(t *testing.T) {
	entrants := []RaceEntrant{
		{ID: "0", TopSpeed: 90, Acceleration: 50, Handling: 50, Durability: 50, Level: 1},
		{ID: "1", TopSpeed: 50, Acceleration: 50, Handling: 50, Durability: 50, Level: 1},
		{ID: "2", TopSpeed: 50, Acceleration: 50, Handling: 50, Durability: 50, Level: 1},
	}
	res, err := SimulateRace(entrants, Track{Length: 100, Difficulty: 50}, 42)
	if err != nil {
		t.Fatalf("SimulateRace: %v", err)
	}
	if res.Entries[0].EntryID != "0" || res.Entries[0].Position != 1 {
		t.Errorf("entrant 0 should finish first, got %+v", res.Entries[0])
	}
}

func TestRaceIsPermutationWithPoints(t *testing.T) {
	var entrants []RaceEntrant
	for i := 0; i < 12; i++ {
		entrants = append(entrants, RaceEntrant{
			ID:           string(rune('a' + i)),
			TopSpeed:     float64(40 + i*5),
			Acceleration: float64(90 - i*3),
			Handling:     60,
			Durability:   float64(10 * (i % 10)),
			Level:        i * 7,
		})
	}
	res, err := SimulateRace(entrants, Track{Length: 75, Difficulty: 30}, engine.SeedFromString("grand-prix"))
	if err != nil {
		t.Fatalf("SimulateRace: %v", err)
	}

	seen := map[string]bool{}
	for i, e := range res.Entries {
		if e.Position != i+1 {
			t.Errorf("entry %d has position %d", i, e.Position)
		}
		if e.Points != PointsFor(e.Position) {
			t.Errorf("position %d has %d points", e.Position, e.Points)
		}
		if i > 0 && res.Entries[i-1].Performance < e.Performance {
			t.Errorf("entries %d and %d out of order", i-1, i)
		}
		if i > 0 && res.Entries[i-1].FinishTime > e.FinishTime {
			t.Errorf("finish times %d and %d out of order", i-1, i)
		}
		seen[e.EntryID] = true
	}
	if len(seen) != len(entrants) {
		t.Errorf("result is not a permutation: %d distinct ids", len(seen))
	}
	if res.Entries[10].Points != 0 || res.Entries[11].Points != 0 {
		t.Error("positions past 10 must earn zero points")
	}
}

func TestRaceTieKeepsInputOrder(t *testing.T) {
	entrants := []RaceEntrant{{ID: "first"}, {ID: "second"}, {ID: "third"}}
	res, err := SimulateRace(entrants, Track{Length: 50, Difficulty: 50}, 7)
	if err != nil {
		t.Fatalf("SimulateRace: %v", err)
	}
	for i, want := range []string{"first", "second", "third"} {
		if res.Entries[i].EntryID != want {
			t.Errorf("position %d = %s, want %s", i+1, res.Entries[i].EntryID, want)
		}
	}
}

func TestRaceDeterministic(t *testing.T) {
	entrants := []RaceEntrant{
		{ID: "a", TopSpeed: 60, Acceleration: 60, Handling: 60, Durability: 60, Level: 3},
		{ID: "b", TopSpeed: 61, Acceleration: 59, Handling: 60, Durability: 60, Level: 3},
	}
	a, _ := SimulateRace(entrants, Track{Length: 40, Difficulty: 70}, 1234)
	b, _ := SimulateRace(entrants, Track{Length: 40, Difficulty: 70}, 1234)
	for i := range a.Entries {
		if a.Entries[i] != b.Entries[i] {
			t.Fatalf("entry %d differs: %+v vs %+v", i, a.Entries[i], b.Entries[i])
		}
	}
}

func TestRaceValidation(t *testing.T) {
	tests := []struct {
		name     string
		entrants []RaceEntrant
	}{
		{"empty", nil},
		{"missing id", []RaceEntrant{{ID: ""}}},
		{"duplicate", []RaceEntrant{{ID: "a"}, {ID: "a"}}},
		{"nan", []RaceEntrant{{ID: "a", TopSpeed: math.NaN()}}},
		{"too many", make([]RaceEntrant, MaxRaceEntrants+1)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := SimulateRace(tt.entrants, Track{Length: 50}, 1)
			if !apperr.HasCode(err, apperr.CodeValidation) {
				t.Errorf("expected validation error, got %v", err)
			}
		})
	}
}

func TestModes(t *testing.T) {
	if len(ListModes()) != 2 {
		t.Errorf("expected 2 modes, got %d", len(ListModes()))
	}
	if _, ok := GetMode("battle"); !ok {
		t.Error("battle mode should be registered")
	}
	if _, ok := GetMode("keno"); ok {
		t.Error("unexpected mode")
	}
}
