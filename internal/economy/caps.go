// Package economy sanitizes admin-supplied emission caps and windows and
// defines the ledger the settlement components draw currency from.
package economy

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// Wildcard is the window key applying to every arena.
const Wildcard = "*"

// SystemArenas are emission sources that exist regardless of configured arenas.
var SystemArenas = []string{"training", "repairs", "upgrades", "referrals", "admin", "vault"}

// ArenaLeague is one configured arena/league pairing.
type ArenaLeague struct {
	Arena  string `json:"arena"`
	League string `json:"league"`
}

// Key returns the qualified "arena:league" form.
func (al ArenaLeague) Key() string {
	return al.Arena + ":" + al.League
}

// AllowedKeys is the set of keys caps and windows may be persisted under.
type AllowedKeys struct {
	Arenas       map[string]struct{}
	ArenaLeagues map[string]struct{}
}

// NewAllowedKeys builds the allowed sets from configured pairings plus system arenas.
func NewAllowedKeys(configured []ArenaLeague, system []string) AllowedKeys {
	allowed := AllowedKeys{
		Arenas:       make(map[string]struct{}),
		ArenaLeagues: make(map[string]struct{}),
	}
	for _, a := range system {
		if a = strings.TrimSpace(a); a != "" {
			allowed.Arenas[a] = struct{}{}
		}
	}
	for _, al := range configured {
		arena := strings.TrimSpace(al.Arena)
		if arena == "" {
			continue
		}
		allowed.Arenas[arena] = struct{}{}
		if league := strings.TrimSpace(al.League); league != "" {
			allowed.ArenaLeagues[arena+":"+league] = struct{}{}
		}
	}
	return allowed
}

// HasArena reports whether arena is allowed.
func (a AllowedKeys) HasArena(arena string) bool {
	_, ok := a.Arenas[arena]
	return ok
}

// HasArenaLeague reports whether the qualified key is allowed.
func (a AllowedKeys) HasArenaLeague(key string) bool {
	_, ok := a.ArenaLeagues[key]
	return ok
}

// SanitizeCapMap keeps arena-scoped caps only. Keys with a league qualifier,
// unknown arenas and values that are not finite non-negative numbers are dropped;
// fractional values are floored.
func SanitizeCapMap(raw map[string]any, allowed AllowedKeys) map[string]int64 {
	out := make(map[string]int64, len(raw))
	for key, value := range raw {
		if strings.Contains(key, ":") || !allowed.HasArena(key) {
			continue
		}
		n, ok := toNonNegativeInt(value)
		if !ok {
			continue
		}
		out[key] = n
	}
	return out
}

// SanitizeEmissionWindowsUTC keeps windows keyed by the wildcard, an allowed
// arena or an allowed arena:league pair. Each entry needs both hours; hours are
// clamped to [0,24]. Invalid entries are dropped, never defaulted.
func SanitizeEmissionWindowsUTC(raw map[string]any, allowed AllowedKeys) map[string]Window {
	out := make(map[string]Window, len(raw))
	for key, value := range raw {
		switch {
		case key == Wildcard:
		case strings.Contains(key, ":"):
			if !allowed.HasArenaLeague(key) {
				continue
			}
		default:
			if !allowed.HasArena(key) {
				continue
			}
		}
		w, ok := toWindow(value)
		if !ok {
			continue
		}
		out[key] = w
	}
	return out
}

func toWindow(value any) (Window, bool) {
	var fields map[string]any
	switch v := value.(type) {
	case map[string]any:
		fields = v
	case Window:
		return v.clamped(), true
	default:
		return Window{}, false
	}

	start, ok := hourField(fields, "startHourUtc", "start_hour_utc")
	if !ok {
		return Window{}, false
	}
	end, ok := hourField(fields, "endHourUtc", "end_hour_utc")
	if !ok {
		return Window{}, false
	}
	return Window{StartHourUTC: start, EndHourUTC: end}.clamped(), true
}

func hourField(fields map[string]any, names ...string) (int, bool) {
	for _, name := range names {
		v, present := fields[name]
		if !present {
			continue
		}
		f, ok := toFloat(v)
		if !ok {
			return 0, false
		}
		return int(math.Floor(math.Min(24, math.Max(0, f)))), true
	}
	return 0, false
}

func toNonNegativeInt(value any) (int64, bool) {
	f, ok := toFloat(value)
	if !ok || f < 0 {
		return 0, false
	}
	if f > math.MaxInt64/2 {
		return 0, false
	}
	return int64(math.Floor(f)), true
}

func toFloat(value any) (float64, bool) {
	var f float64
	switch v := value.(type) {
	case float64:
		f = v
	case float32:
		f = float64(v)
	case int:
		f = float64(v)
	case int64:
		f = float64(v)
	case int32:
		f = float64(v)
	case uint32:
		f = float64(v)
	case uint64:
		f = float64(v)
	case json.Number:
		parsed, err := v.Float64()
		if err != nil {
			return 0, false
		}
		f = parsed
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return 0, false
		}
		f = parsed
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}
