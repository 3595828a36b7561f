package economy

import (
	"encoding/json"
	"reflect"
	"testing"
	"time"

	"github.com/MJE43/arenacore/internal/apperr"
)

func testAllowed() AllowedKeys {
	return NewAllowedKeys([]ArenaLeague{
		{Arena: "prediction", League: "rookie"},
		{Arena: "prediction", League: "pro"},
		{Arena: "momentum", League: "elite"},
	}, SystemArenas)
}

func TestSanitizeCapMapDropsQualifiedUnknownAndInvalid(t *testing.T) {
	allowed := NewAllowedKeys([]ArenaLeague{{Arena: "prediction"}}, nil)
	raw := map[string]any{
		"prediction":        float64(100),
		"prediction:rookie": float64(999),
		"unknown":           float64(50),
		"bad":               float64(-1),
	}

	got := SanitizeCapMap(raw, allowed)
	want := map[string]int64{"prediction": 100}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("SanitizeCapMap() = %v, want %v", got, want)
	}
}

func TestSanitizeCapMapCoercion(t *testing.T) {
	allowed := testAllowed()
	tests := []struct {
		name  string
		value any
		want  int64
		keep  bool
	}{
		{"integer float", float64(250), 250, true},
		{"fraction floors", 12.9, 12, true},
		{"zero kept", float64(0), 0, true},
		{"numeric string", "40", 40, true},
		{"json number", json.Number("7"), 7, true},
		{"negative", float64(-3), 0, false},
		{"non numeric string", "lots", 0, false},
		{"bool", true, 0, false},
		{"nil", nil, 0, false},
		{"object", map[string]any{"v": 1}, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SanitizeCapMap(map[string]any{"training": tt.value}, allowed)
			v, ok := got["training"]
			if ok != tt.keep {
				t.Fatalf("kept = %v, want %v (%v)", ok, tt.keep, got)
			}
			if ok && v != tt.want {
				t.Errorf("value = %d, want %d", v, tt.want)
			}
		})
	}
}

func TestSanitizeEmissionWindows(t *testing.T) {
	allowed := testAllowed()
	raw := map[string]any{
		"*":                 map[string]any{"startHourUtc": float64(0), "endHourUtc": float64(24)},
		"prediction":        map[string]any{"startHourUtc": float64(8), "endHourUtc": float64(20)},
		"prediction:rookie": map[string]any{"startHourUtc": float64(-5), "endHourUtc": float64(30)},
		"momentum:rookie":   map[string]any{"startHourUtc": float64(1), "endHourUtc": float64(2)},
		"volatility":        map[string]any{"startHourUtc": float64(1), "endHourUtc": float64(2)},
		"training":          map[string]any{"startHourUtc": float64(3)},
		"repairs":           "always",
		"upgrades":          map[string]any{"start_hour_utc": "22", "end_hour_utc": 6.7},
	}

	got := SanitizeEmissionWindowsUTC(raw, allowed)
	want := map[string]Window{
		"*":                 {StartHourUTC: 0, EndHourUTC: 24},
		"prediction":        {StartHourUTC: 8, EndHourUTC: 20},
		"prediction:rookie": {StartHourUTC: 0, EndHourUTC: 24},
		"upgrades":          {StartHourUTC: 22, EndHourUTC: 6},
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("SanitizeEmissionWindowsUTC() = %v, want %v", got, want)
	}
}

func TestWindowContains(t *testing.T) {
	tests := []struct {
		name string
		w    Window
		open []int
		shut []int
	}{
		{"day", Window{8, 20}, []int{8, 12, 19}, []int{7, 20, 23}},
		{"wrap", Window{22, 6}, []int{22, 23, 0, 5}, []int{6, 12, 21}},
		{"all day", Window{0, 24}, []int{0, 12, 23}, nil},
		{"closed", Window{5, 5}, nil, []int{0, 5, 23}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for _, h := range tt.open {
				if !tt.w.Contains(h) {
					t.Errorf("hour %d should be open", h)
				}
			}
			for _, h := range tt.shut {
				if tt.w.Contains(h) {
					t.Errorf("hour %d should be closed", h)
				}
			}
		})
	}
}

func TestWindowForPrecedence(t *testing.T) {
	cfg := CapConfiguration{Windows: map[string]Window{
		"*":                 {0, 24},
		"prediction":        {8, 20},
		"prediction:rookie": {10, 12},
	}}

	tests := []struct {
		arena, league string
		want          Window
	}{
		{"prediction", "rookie", Window{10, 12}},
		{"prediction", "pro", Window{8, 20}},
		{"momentum", "elite", Window{0, 24}},
	}
	for _, tt := range tests {
		got, ok := cfg.WindowFor(tt.arena, tt.league)
		if !ok || got != tt.want {
			t.Errorf("WindowFor(%s, %s) = %v, %v; want %v", tt.arena, tt.league, got, ok, tt.want)
		}
	}

	if _, ok := (CapConfiguration{}).WindowFor("prediction", "rookie"); ok {
		t.Error("empty configuration should have no window")
	}
}

func TestCheckEmission(t *testing.T) {
	cfg := CapConfiguration{
		Caps:    map[string]int64{"prediction": 100},
		Windows: map[string]Window{"prediction": {8, 20}},
	}
	noon := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	night := time.Date(2026, 3, 1, 23, 0, 0, 0, time.UTC)
	ec := Context{OwnerID: "u1", Arena: "prediction", League: "rookie"}

	tests := []struct {
		name    string
		amount  int64
		emitted int64
		now     time.Time
		ec      Context
		want    Result
	}{
		{"within cap", 40, 60, noon, ec, Result{OK: true}},
		{"over cap", 41, 60, noon, ec, Result{OK: false, Reason: ReasonCapExceeded}},
		{"outside window", 1, 0, night, ec, Result{OK: false, Reason: ReasonOutsideWindow}},
		{"uncapped arena", 1_000_000, 0, night, Context{Arena: "training"}, Result{OK: true}},
		{"negative", -1, 0, noon, ec, Result{OK: false, Reason: ReasonInvalidAmount}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := cfg.CheckEmission(tt.ec, tt.amount, tt.emitted, tt.now); got != tt.want {
				t.Errorf("CheckEmission() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestParseRawAndSanitize(t *testing.T) {
	body := []byte(`{
		"caps": {"prediction": 100, "prediction:rookie": 999, "unknown": 50, "training": "25"},
		"emission_windows_utc": {"*": {"startHourUtc": 0, "endHourUtc": 24}}
	}`)

	raw, err := ParseRaw(body)
	if err != nil {
		t.Fatalf("ParseRaw() error = %v", err)
	}
	cfg := Sanitize(raw, testAllowed())
	wantCaps := map[string]int64{"prediction": 100, "training": 25}
	if !reflect.DeepEqual(cfg.Caps, wantCaps) {
		t.Errorf("caps = %v, want %v", cfg.Caps, wantCaps)
	}
	if w, ok := cfg.WindowFor("prediction", "rookie"); !ok || w != (Window{0, 24}) {
		t.Errorf("wildcard window = %v, %v", w, ok)
	}
}

func TestParseRawDropsBadEntriesInsteadOfRejecting(t *testing.T) {
	body := []byte(`{
		"caps": {"prediction": 100, "momentum": null, "training": true, "upgrades": {"n": 1}},
		"emission_windows_utc": {
			"prediction": 7,
			"momentum": null,
			"*": {"startHourUtc": 6, "endHourUtc": 18}
		}
	}`)

	raw, err := ParseRaw(body)
	if err != nil {
		t.Fatalf("ParseRaw() error = %v, want bad entries left to Sanitize", err)
	}
	cfg := Sanitize(raw, testAllowed())
	wantCaps := map[string]int64{"prediction": 100}
	if !reflect.DeepEqual(cfg.Caps, wantCaps) {
		t.Errorf("caps = %v, want %v", cfg.Caps, wantCaps)
	}
	wantWindows := map[string]Window{"*": {StartHourUTC: 6, EndHourUTC: 18}}
	if !reflect.DeepEqual(cfg.Windows, wantWindows) {
		t.Errorf("windows = %v, want %v", cfg.Windows, wantWindows)
	}
}

func TestParseRawRejectsBadShape(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"not json", `{caps:`},
		{"unknown top-level", `{"limits": {}}`},
		{"caps not object", `{"caps": [1,2]}`},
		{"caps null", `{"caps": null}`},
		{"windows not object", `{"emission_windows_utc": "all day"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseRaw([]byte(tt.body))
			if !apperr.HasCode(err, apperr.CodeValidation) {
				t.Fatalf("ParseRaw() error = %v, want validation error", err)
			}
		})
	}
}
