package economy

import (
	"time"
)

// Window is an emission window in whole UTC hours.
type Window struct {
	StartHourUTC int `json:"startHourUtc"`
	EndHourUTC   int `json:"endHourUtc"`
}

func (w Window) clamped() Window {
	clampHour := func(h int) int {
		if h < 0 {
			return 0
		}
		if h > 24 {
			return 24
		}
		return h
	}
	return Window{StartHourUTC: clampHour(w.StartHourUTC), EndHourUTC: clampHour(w.EndHourUTC)}
}

// Contains reports whether hour (0-23) is open. start<end is [start,end),
// start>end wraps past midnight and start==end is closed all day.
func (w Window) Contains(hour int) bool {
	switch {
	case w.StartHourUTC < w.EndHourUTC:
		return hour >= w.StartHourUTC && hour < w.EndHourUTC
	case w.StartHourUTC > w.EndHourUTC:
		return hour >= w.StartHourUTC || hour < w.EndHourUTC
	default:
		return false
	}
}

// CapConfiguration is the sanitized emission policy. Construct it with Sanitize
// or by decoding a previously sanitized value; raw admin maps never reach the ledger.
type CapConfiguration struct {
	Caps    map[string]int64  `json:"caps"`
	Windows map[string]Window `json:"emission_windows_utc"`
}

// RawConfig is the untrusted admin payload.
type RawConfig struct {
	Caps    map[string]any `json:"caps"`
	Windows map[string]any `json:"emission_windows_utc"`
}

// Sanitize filters raw against allowed.
func Sanitize(raw RawConfig, allowed AllowedKeys) CapConfiguration {
	return CapConfiguration{
		Caps:    SanitizeCapMap(raw.Caps, allowed),
		Windows: SanitizeEmissionWindowsUTC(raw.Windows, allowed),
	}
}

// CapFor returns the daily cap for arena, if one is set.
func (c CapConfiguration) CapFor(arena string) (int64, bool) {
	v, ok := c.Caps[arena]
	return v, ok
}

// WindowFor resolves the most specific window: arena:league, arena, then wildcard.
func (c CapConfiguration) WindowFor(arena, league string) (Window, bool) {
	if league != "" {
		if w, ok := c.Windows[arena+":"+league]; ok {
			return w, true
		}
	}
	if w, ok := c.Windows[arena]; ok {
		return w, true
	}
	w, ok := c.Windows[Wildcard]
	return w, ok
}

// Denial reasons reported by CheckEmission.
const (
	ReasonOutsideWindow = "outside_emission_window"
	ReasonCapExceeded   = "emission_cap_exceeded"
	ReasonInvalidAmount = "invalid_amount"
)

// CheckEmission decides whether amount may be minted for ec given what the
// arena already emitted today. Arenas without a cap are uncapped; arenas
// without any applicable window are always open.
func (c CapConfiguration) CheckEmission(ec Context, amount, emittedToday int64, now time.Time) Result {
	if amount < 0 {
		return Result{OK: false, Reason: ReasonInvalidAmount}
	}
	if w, ok := c.WindowFor(ec.Arena, ec.League); ok && !w.Contains(now.UTC().Hour()) {
		return Result{OK: false, Reason: ReasonOutsideWindow}
	}
	if limit, ok := c.CapFor(ec.Arena); ok && emittedToday+amount > limit {
		return Result{OK: false, Reason: ReasonCapExceeded}
	}
	return Result{OK: true}
}
