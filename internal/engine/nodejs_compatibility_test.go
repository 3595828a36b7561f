package engine

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

// NodeJSReferenceVector is one stream captured from the JavaScript reference implementation.
type NodeJSReferenceVector struct {
	Description string    `json:"description"`
	Seed        uint32    `json:"seed"`
	Expected    []float64 `json:"expected"`
}

type seedReferenceVector struct {
	Description string      `json:"description"`
	Key         string      `json:"key"`
	Message     SeedMessage `json:"message"`
	Expected    uint32      `json:"expected"`
}

func loadVectors(t *testing.T, name string, v any) {
	t.Helper()
	data, err := os.ReadFile(filepath.Join("testdata", name))
	if err != nil {
		t.Fatalf("Failed to read %s: %v", name, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		t.Fatalf("Failed to parse %s: %v", name, err)
	}
}

// TestNodeJSCompatibility requires bit-exact equality with the reference outputs.
func TestNodeJSCompatibility(t *testing.T) {
	var vectors []NodeJSReferenceVector
	loadVectors(t, "mulberry32_reference_vectors.json", &vectors)
	if len(vectors) == 0 {
		t.Fatal("no reference vectors loaded")
	}

	for _, vector := range vectors {
		t.Run(vector.Description, func(t *testing.T) {
			actual := floats(vector.Seed, len(vector.Expected))
			for i, expected := range vector.Expected {
				if actual[i] != expected {
					t.Errorf("Float mismatch at index %d: expected %.17g, got %.17g", i, expected, actual[i])
				}
			}
		})
	}
}

func TestLiteralMulberryOutputs(t *testing.T) {
	got := floats(42, 3)
	want := []float64{0.6011037519201636, 0.44829055899754167, 0.8524657934904099}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("seed 42 draw %d = %.17g, want %.17g", i, got[i], want[i])
		}
	}
}

func TestSeedReferenceVectors(t *testing.T) {
	var vectors []seedReferenceVector
	loadVectors(t, "seed_reference_vectors.json", &vectors)

	for _, vector := range vectors {
		t.Run(vector.Description, func(t *testing.T) {
			got := DeriveSeed([]byte(vector.Key), vector.Message)
			if got != vector.Expected {
				t.Errorf("DeriveSeed() = %d, want %d", got, vector.Expected)
			}
		})
	}
}
